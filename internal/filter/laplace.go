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

// Calculates the negated discrete Laplacian of the 2D image given by data and width, and stores it in res.
// Uses the 5-point stencil with reflected borders. Bright blobs yield positive peaks at their centers
func NegLaplace(res, data []float32, width int) {
	height := len(data) / width
	for y := 0; y < height; y++ {
		up, down := reflect(height, y-1)*width, reflect(height, y+1)*width
		row := y * width
		for x := 0; x < width; x++ {
			left, right := reflect(width, x-1), reflect(width, x+1)
			center := data[row+x]
			lap := data[row+left] + data[row+right] + data[up+x] + data[down+x] - 4*center
			res[row+x] = -lap
		}
	}
}
