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

// Package label finds connected components in binary masks of single frames,
// filters them by size and grows them by Euclidean distance.
package label

// Labels connected components of the mask of a width-wide frame into labels, with 4- or 8-connectivity.
// Labels are assigned 1..n in raster order of each component's first pixel, 0 is background.
// Returns n
func Label(labels []uint32, mask []bool, width, connectivity int) uint32 {
	height := len(mask) / width
	for i := range labels {
		labels[i] = 0
	}

	dxs, dys := neighbors4X, neighbors4Y
	if connectivity == 8 {
		dxs, dys = neighbors8X, neighbors8Y
	}

	next := uint32(0)
	queue := make([]int, 0, 64)
	for start, m := range mask {
		if !m || labels[start] != 0 {
			continue
		}
		next++
		labels[start] = next
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%width, idx/width
			for n := range dxs {
				nx, ny := x+dxs[n], y+dys[n]
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				nIdx := ny*width + nx
				if mask[nIdx] && labels[nIdx] == 0 {
					labels[nIdx] = next
					queue = append(queue, nIdx)
				}
			}
		}
	}
	return next
}

var (
	neighbors4X = []int{-1, 1, 0, 0}
	neighbors4Y = []int{0, 0, -1, 1}
	neighbors8X = []int{-1, 0, 1, -1, 1, -1, 0, 1}
	neighbors8Y = []int{-1, -1, -1, 0, 0, 1, 1, 1}
)

// Returns the number of pixels per label, indexed by label. Index 0 counts background
func Sizes(labels []uint32, numLabels uint32) []int {
	sizes := make([]int, numLabels+1)
	for _, l := range labels {
		sizes[l]++
	}
	return sizes
}

// Sets all components with fewer than minSize pixels to background. Remaining labels keep their values,
// so the label set may be sparse afterwards. minSize <= 1 removes nothing. Returns the number of kept components
func RemoveSmall(labels []uint32, numLabels uint32, minSize int) int {
	sizes := Sizes(labels, numLabels)
	kept := 0
	for l := 1; l < len(sizes); l++ {
		if sizes[l] >= minSize && sizes[l] > 0 {
			kept++
		}
	}
	if minSize <= 1 {
		return kept
	}
	for i, l := range labels {
		if l != 0 && sizes[l] < minSize {
			labels[i] = 0
		}
	}
	return kept
}
