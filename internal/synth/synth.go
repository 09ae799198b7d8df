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

// Package synth generates deterministic synthetic time series of frames
// with Gaussian read noise and Gaussian-profile spots.
package synth

import (
	"math"

	"github.com/spotlight-imaging/spotlight/internal/volume"
	"github.com/valyala/fastrand"
)

// A spot with a Gaussian intensity profile
type Spot struct {
	X          float32   `json:"x"`          // center column
	Y          float32   `json:"y"`          // center row
	Sigma      float32   `json:"sigma"`      // profile width in pixels
	Amplitude  float32   `json:"amplitude"`  // peak intensity above background
	Amplitudes []float32 `json:"amplitudes"` // optional per-frame peak intensity, overrides Amplitude
}

// Returns the spot amplitude in frame t
func (s *Spot) AmplitudeAt(t int) float32 {
	if t < len(s.Amplitudes) {
		return s.Amplitudes[t]
	}
	return s.Amplitude
}

// Options for generating a synthetic volume
type Options struct {
	Frames     int     `json:"frames"`
	Height     int     `json:"height"`
	Width      int     `json:"width"`
	Background float32 `json:"background"` // constant background level
	Noise      float32 `json:"noise"`      // standard deviation of Gaussian read noise
	Seed       uint32  `json:"seed"`       // noise seed, identical seeds give identical volumes
	Spots      []Spot  `json:"spots"`
}

func NewOptionsDefault() *Options {
	return &Options{
		Frames:     10,
		Height:     64,
		Width:      64,
		Background: 100,
		Noise:      5,
		Seed:       1,
		Spots: []Spot{
			{X: 20, Y: 20, Sigma: 1.5, Amplitude: 200},
			{X: 44, Y: 40, Sigma: 2, Amplitude: 120},
		},
	}
}

// Generates a volume as described by the options
func Generate(o *Options) (*volume.Volume, error) {
	v, err := volume.New(o.Frames, o.Height, o.Width, nil)
	if err != nil {
		return nil, err
	}
	r := newRNG(o.Seed)
	for t := 0; t < o.Frames; t++ {
		frame := v.Frame(t)
		for i := range frame {
			frame[i] = o.Background
			if o.Noise != 0 {
				frame[i] += o.Noise * float32(r.normal())
			}
		}
		for si := range o.Spots {
			addSpot(frame, o.Width, &o.Spots[si], o.Spots[si].AmplitudeAt(t))
		}
	}
	return v, nil
}

// Adds a Gaussian spot profile into the given frame, within four sigma of the center
func addSpot(frame []float32, width int, s *Spot, amplitude float32) {
	if amplitude == 0 || s.Sigma <= 0 {
		return
	}
	height := len(frame) / width
	radius := int(math.Ceil(float64(4 * s.Sigma)))
	cx, cy := int(s.X+0.5), int(s.Y+0.5)
	inv2s2 := 1 / (2 * float64(s.Sigma) * float64(s.Sigma))
	for y := cy - radius; y <= cy+radius; y++ {
		if y < 0 || y >= height {
			continue
		}
		for x := cx - radius; x <= cx+radius; x++ {
			if x < 0 || x >= width {
				continue
			}
			dx, dy := float64(x)-float64(s.X), float64(y)-float64(s.Y)
			frame[y*width+x] += amplitude * float32(math.Exp(-(dx*dx+dy*dy)*inv2s2))
		}
	}
}

// Returns a volume of zeros with a square block of given value in every frame
func Block(frames, height, width, y0, x0, size int, value float32) *volume.Volume {
	v, _ := volume.New(frames, height, width, nil)
	for t := 0; t < frames; t++ {
		for y := y0; y < y0+size && y < height; y++ {
			for x := x0; x < x0+size && x < width; x++ {
				v.Set(t, y, x, value)
			}
		}
	}
	return v
}

// Seeded pseudo random numbers
type rng struct {
	r fastrand.RNG
}

func newRNG(seed uint32) *rng {
	r := &rng{}
	if seed == 0 {
		seed = 1 // zero would let fastrand pick a random seed
	}
	r.r.Seed(seed)
	return r
}

// Uniform random number in (0,1]
func (r *rng) uniform() float64 {
	return (float64(r.r.Uint32()) + 1) / (1 << 32)
}

// Standard normal random number via the Box-Muller transform
func (r *rng) normal() float64 {
	u1, u2 := r.uniform(), r.uniform()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Returns n spots at random positions at least margin pixels from the frame border
func RandomSpots(n, height, width, margin int, sigma, amplitude float32, seed uint32) []Spot {
	r := newRNG(seed)
	spanX, spanY := width-2*margin, height-2*margin
	if spanX < 1 {
		spanX = 1
	}
	if spanY < 1 {
		spanY = 1
	}
	spots := make([]Spot, n)
	for i := range spots {
		spots[i] = Spot{
			X:         float32(margin) + float32(r.r.Uint32n(uint32(spanX))),
			Y:         float32(margin) + float32(r.r.Uint32n(uint32(spanY))),
			Sigma:     sigma,
			Amplitude: amplitude,
		}
	}
	return spots
}
