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

package label

import "sort"

// A relative pixel offset within a disk
type offset struct {
	dx, dy int
	dist2  int
}

// Returns all offsets with Euclidean distance <= radius, ordered by distance, then row, then column
func diskOffsets(radius int) []offset {
	r2 := radius * radius
	offs := []offset{}
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if d2 := dx*dx + dy*dy; d2 <= r2 {
				offs = append(offs, offset{dx, dy, d2})
			}
		}
	}
	sort.SliceStable(offs, func(i, j int) bool { return offs[i].dist2 < offs[j].dist2 })
	return offs
}

// Expands labels of a width-wide frame into background pixels within Euclidean distance radius.
// Each background pixel takes the label of the nearest labeled pixel, with ties resolved
// in raster order of the offsets. Labeled pixels keep their labels, so labels never overwrite each other.
// Writes into res, which must not alias labels
func Expand(res, labels []uint32, width, radius int) {
	height := len(labels) / width
	if radius <= 0 {
		copy(res, labels)
		return
	}
	offs := diskOffsets(radius)[1:] // skip the center
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if l := labels[idx]; l != 0 {
				res[idx] = l
				continue
			}
			res[idx] = 0
			for _, o := range offs {
				nx, ny := x+o.dx, y+o.dy
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				if l := labels[ny*width+nx]; l != 0 {
					res[idx] = l
					break
				}
			}
		}
	}
}
