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

package filter

import (
	"math"
)

// Check if coordinate is within [0, size-1], and if not, reflect out of bounds coordinates back into the value range.
// Edge pixels are repeated, i.e. (d c b a | a b c d | d c b a)
func reflect(size, x int) int {
	for x < 0 || x >= size {
		if x < 0 {
			x = -x - 1
		}
		if x >= size {
			x = 2*size - x - 1
		}
	}
	return x
}

// Generates a 1D gaussian kernel for the given sigma, sampled at integer offsets and truncated
// at truncate standard deviations. The kernel is normalized to sum 1
func GaussianKernel1D(sigma, truncate float32) (kernel []float32) {
	radius := int(truncate*sigma + 0.5)
	kernel = make([]float32, 2*radius+1)

	// Accumulate in double precision, the tails are tiny
	weights := make([]float64, 2*radius+1)
	sum := float64(0)
	s2 := float64(sigma) * float64(sigma)
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-0.5 * float64(i*i) / s2)
		weights[i+radius] = w
		sum += w
	}
	for i, w := range weights {
		kernel[i] = float32(w / sum)
	}
	return kernel
}

// Convolve the given 2D image provided by data and with with the given convolution kernel along the x axis, and store the result in res
func Convolve1DX(res, data []float32, width int, kernel []float32) {
	height := len(data) / width
	k := len(kernel) / 2
	for y := 0; y < height; y++ {
		row := data[y*width : (y+1)*width]
		for x := 0; x < width; x++ {
			sum := float32(0.0)
			for i := -k; i <= k; i++ {
				sum += row[reflect(width, x+i)] * kernel[i+k]
			}
			res[y*width+x] = sum
		}
	}
}

// Convolve the given 2D image provided by data and with with the given convolution kernel along the y axis, and store the result in res
func Convolve1DY(res, data []float32, width int, kernel []float32) {
	height := len(data) / width
	k := len(kernel) / 2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			sum := float32(0.0)
			for i := -k; i <= k; i++ {
				y1 := reflect(height, y+i)
				sum += data[y1*width+x] * kernel[i+k]
			}
			res[y*width+x] = sum
		}
	}
}

// Applies a 2D gauss filter of given standard deviation to the 2D image given by data and width.
// Overwrites tmp and returns the result in res. res and data may not alias
func GaussFilter2D(res, tmp, data []float32, width int, sigma, truncate float32) {
	kernel := GaussianKernel1D(sigma, truncate)
	Convolve1DX(tmp, data, width, kernel)
	Convolve1DY(res, tmp, width, kernel)
}
