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

// Applies a 3x3 median filter to the 2D image given by data and width, and stores results in res.
// Border pixels use reflected neighbors. Suppresses isolated hot pixels before smoothing
func MedianFilter3x3(res, data []float32, width int) {
	height := len(data) / width
	gathered := make([]float32, 9)
	for y := 0; y < height; y++ {
		rows := [3]int{reflect(height, y-1) * width, y * width, reflect(height, y+1) * width}
		for x := 0; x < width; x++ {
			cols := [3]int{reflect(width, x-1), x, reflect(width, x+1)}
			j := 0
			for _, r := range rows {
				for _, c := range cols {
					gathered[j] = data[r+c]
					j++
				}
			}
			res[y*width+x] = medianOf9(gathered)
		}
	}
}

// Calculates the median of a float32 slice of length nine with a sorting network.
// Modifies the elements in place. From https://stackoverflow.com/questions/45453537/
// Array must not contain IEEE NaN
func medianOf9(a []float32) float32 {
	sort2 := func(i, j int) {
		if a[i] > a[j] {
			a[i], a[j] = a[j], a[i]
		}
	}
	max2 := func(i, j int) {
		if a[i] > a[j] {
			a[j] = a[i]
		}
	}
	min2 := func(i, j int) {
		if a[i] > a[j] {
			a[i] = a[j]
		}
	}
	sort2(0, 1)
	sort2(3, 4)
	sort2(6, 7)
	sort2(1, 2)
	sort2(4, 5)
	sort2(7, 8)
	sort2(0, 1)
	sort2(3, 4)
	sort2(6, 7)
	max2(0, 3)
	max2(3, 6)
	sort2(1, 4)
	min2(4, 7)
	max2(1, 4)
	min2(5, 8)
	min2(2, 5)
	sort2(2, 4)
	min2(4, 6)
	max2(2, 4)
	return a[4]
}
