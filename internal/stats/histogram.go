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
	"errors"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Calculate histogram of data between min and max into given bins
func Histogram(data []float32, min, max float32, bins []int32) {
	for i := range bins {
		bins[i] = 0
	}
	scale := float32(len(bins)-1) / (max - min)
	for _, d := range data {
		index := int((d - min) * scale)
		if index < 0 {
			index = 0
		} else if index >= len(bins) {
			index = len(bins) - 1
		}
		bins[index]++
	}
}

// Returns the center of the given bin
func binCenter(i int, min, max float32, numBins int) float64 {
	return float64(min) + (float64(i)+0.5)*float64(max-min)/float64(numBins-1)
}

// Returns the location and the value of the histogram peak
func GetPeak(bins []int32, min, max float32) (x, y float64) {
	maxIndex, maxValue := -1, int32(math.MinInt32)
	for i, v := range bins {
		if v > maxValue {
			maxIndex, maxValue = i, v
		}
	}
	return binCenter(maxIndex, min, max, len(bins)), float64(maxValue)
}

// Fits a normal curve to the histogram of the given data by least squares.
// Uses the histogram peak and the maximum likelihood scale as initial guess
func FitNormalToHistogram(data []float32, numBins int) (Normal, error) {
	if numBins < 3 {
		return Normal{}, errors.New("histogram fit needs at least 3 bins")
	}
	min, max := minMax(data)
	if min == max {
		return Normal{float64(min), 0}, nil
	}
	bins := make([]int32, numBins)
	Histogram(data, min, max, bins)
	binWidth := float64(max-min) / float64(numBins-1)

	// Take an educated initial guess: the peak of the histogram, and the overall scale
	peak, peakVal := GetPeak(bins, min, max)
	guess := FitMaximumLikelihood(data)
	sigma0 := guess.Sigma
	if sigma0 < binWidth {
		sigma0 = binWidth
	}
	alpha0 := peakVal * sigma0 * math.Sqrt(2*math.Pi)

	// Now minimize the distance between the histogram and a normal distribution
	x0 := []float64{alpha0, peak, sigma0}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			alpha, mu, sigma := x[0], x[1], math.Abs(x[2])
			if sigma == 0 {
				return math.Inf(1)
			}
			scaler := alpha / (sigma * math.Sqrt(2*math.Pi))
			sumSqDiff := float64(0)
			for i, y := range bins {
				xmusig := (binCenter(i, min, max, numBins) - mu) / sigma
				yPredict := scaler * math.Exp(-0.5*xmusig*xmusig)
				diff := float64(y) - yPredict
				sumSqDiff += diff * diff
			}
			return math.Sqrt(sumSqDiff / float64(numBins))
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return Normal{}, err
	}
	return Normal{result.X[1], math.Abs(result.X[2])}, nil
}
