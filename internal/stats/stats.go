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

package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Parameters of a normal distribution fitted to pixel values
type Normal struct {
	Mu    float64 `json:"mu"`
	Sigma float64 `json:"sigma"`
}

func (n Normal) String() string {
	return fmt.Sprintf("mu %.6g sigma %.6g", n.Mu, n.Sigma)
}

// Returns true if the fit has a usable, strictly positive and finite standard deviation
func (n Normal) IsDegenerate() bool {
	return !(n.Sigma > 0) || math.IsInf(n.Sigma, 0) || math.IsNaN(n.Mu) || math.IsInf(n.Mu, 0)
}

// Returns the value k standard deviations above the mean
func (n Normal) Threshold(k float64) float64 {
	return n.Mu + k*n.Sigma
}

// Enumerated type for the noise fit modes
type FitMode string

const (
	FitMLE       FitMode = "mle"       // maximum likelihood, i.e. mean and population standard deviation
	FitHistogram FitMode = "histogram" // least squares fit of a normal curve to the value histogram
	FitMedian    FitMode = "median"    // median and normalized median absolute deviation
)

func (m FitMode) Valid() bool {
	return m == FitMLE || m == FitHistogram || m == FitMedian
}

// Fits a normal distribution to the given values with the given mode.
// Uniform data always yields sigma 0. bins is only used for histogram fits
func Fit(data []float32, mode FitMode, bins int) (Normal, error) {
	if len(data) == 0 {
		return Normal{math.NaN(), 0}, nil
	}
	if min, max := minMax(data); min == max {
		return Normal{float64(min), 0}, nil
	}
	switch mode {
	case FitMLE, "":
		return FitMaximumLikelihood(data), nil
	case FitHistogram:
		return FitNormalToHistogram(data, bins)
	case FitMedian:
		return FitMedianMAD(data), nil
	default:
		return Normal{}, fmt.Errorf("unknown fit mode '%s'", mode)
	}
}

// Maximum likelihood fit of a normal distribution: mean and biased standard deviation
func FitMaximumLikelihood(data []float32) Normal {
	xs := toFloat64(data)
	mean, variance := stat.PopMeanVariance(xs, nil)
	if variance < 0 {
		variance = 0
	}
	return Normal{mean, math.Sqrt(variance)}
}

// Robust fit: median as location, median absolute deviation scaled to a normal standard deviation as scale.
// Does not modify data
func FitMedianMAD(data []float32) Normal {
	tmp := make([]float32, len(data))
	copy(tmp, data)
	median := QSelectMedianFloat32(tmp)
	for i, d := range data {
		tmp[i] = float32(math.Abs(float64(d - median)))
	}
	mad := QSelectMedianFloat32(tmp) * 1.4826
	return Normal{float64(median), float64(mad)}
}

// Fraction of pure noise pixels expected above a threshold k standard deviations above the mean
func FalsePositiveFraction(k float64) float64 {
	return distuv.UnitNormal.Survival(k)
}

func minMax(data []float32) (min, max float32) {
	min, max = data[0], data[0]
	for _, d := range data {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}

func toFloat64(data []float32) []float64 {
	xs := make([]float64, len(data))
	for i, d := range data {
		xs[i] = float64(d)
	}
	return xs
}
