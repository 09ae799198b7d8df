// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package series reduces detection results to per-frame spot and background intensities.
package series

import (
	"fmt"
	"math"

	"github.com/spotlight-imaging/spotlight/internal/spots"
	"github.com/spotlight-imaging/spotlight/internal/volume"
	"gonum.org/v1/gonum/floats"
)

// Average spot and background intensity per frame. Frames without spot pixels
// or without annulus pixels hold NaN, so indices stay aligned with frames
type Series struct {
	Spot       []float64 `json:"spot"`
	Background []float64 `json:"background"`
}

// Computes the spot and background series of a volume from its detection result
func Aggregate(vol *volume.Volume, res *spots.Result) (*Series, error) {
	if vol == nil || res == nil {
		return nil, fmt.Errorf("%w: missing volume or detection result", spots.ErrInvalidInput)
	}
	if err := vol.Check(); err != nil {
		return nil, fmt.Errorf("%w: %s", spots.ErrInvalidInput, err.Error())
	}
	if vol.Frames != res.Frames || vol.Height != res.Height || vol.Width != res.Width ||
		len(res.Spots) != len(vol.Data) || len(res.Background) != len(vol.Data) || len(res.Ring) != len(vol.Data) {
		return nil, fmt.Errorf("%w: volume %s does not match detection result %dx%dx%d",
			spots.ErrInvalidInput, vol.DimensionsToString(), res.Frames, res.Height, res.Width)
	}

	s := &Series{
		Spot:       make([]float64, vol.Frames),
		Background: make([]float64, vol.Frames),
	}
	for t := 0; t < vol.Frames; t++ {
		s.Spot[t] = maskedMean(vol.Frame(t), res.FrameSpots(t))
		// divide by ring membership, not nonzero count: a ring over zero intensities averages to 0
		s.Background[t] = maskedMean(res.FrameBackground(t), res.FrameRing(t))
	}
	return s, nil
}

// Mean of the values where mask is set, or NaN for an empty mask
func maskedMean(values []float32, mask []bool) float64 {
	sum, count := 0.0, 0
	for i, m := range mask {
		if m {
			sum += float64(values[i])
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// Number of frames
func (s *Series) Len() int { return len(s.Spot) }

// Returns spot over background intensity per frame. NaN entries propagate
func (s *Series) Ratio() []float64 {
	ratio := make([]float64, len(s.Spot))
	floats.DivTo(ratio, s.Spot, s.Background)
	return ratio
}

// Number of frames with a NaN spot or background entry
func (s *Series) NumNaN() int {
	n := 0
	for t := range s.Spot {
		if math.IsNaN(s.Spot[t]) || math.IsNaN(s.Background[t]) {
			n++
		}
	}
	return n
}

// Returns mean spot and background intensity over all frames, ignoring NaN entries
func (s *Series) Means() (spot, background float64) {
	return nanMean(s.Spot), nanMean(s.Background)
}

func nanMean(xs []float64) float64 {
	valid := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			valid = append(valid, x)
		}
	}
	if len(valid) == 0 {
		return math.NaN()
	}
	return floats.Sum(valid) / float64(len(valid))
}
