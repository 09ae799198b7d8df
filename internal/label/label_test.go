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

import (
	"testing"
)

// Parses a mask from rows of '#' and '.'
func parseMask(rows ...string) ([]bool, int) {
	width := len(rows[0])
	mask := make([]bool, 0, width*len(rows))
	for _, r := range rows {
		for _, c := range r {
			mask = append(mask, c == '#')
		}
	}
	return mask, width
}

func TestLabelConnectivity(t *testing.T) {
	mask, width := parseMask(
		"#..#",
		".#.#",
		"....",
		"##..",
	)
	labels := make([]uint32, len(mask))
	tcs := []struct {
		connectivity int
		want         uint32
	}{
		{8, 3},
		{4, 4},
	}
	for _, tc := range tcs {
		if got := Label(labels, mask, width, tc.connectivity); got != tc.want {
			t.Errorf("connectivity %d: got %d components; want %d", tc.connectivity, got, tc.want)
		}
	}

	Label(labels, mask, width, 8)
	if labels[0] != 1 || labels[1*width+1] != 1 {
		t.Errorf("diagonal pixels not joined: %v", labels)
	}
	if labels[3] != 2 || labels[1*width+3] != 2 {
		t.Errorf("vertical pair not labeled 2: %v", labels)
	}
	if labels[3*width] != 3 || labels[3*width+1] != 3 {
		t.Errorf("horizontal pair not labeled 3: %v", labels)
	}
	if labels[2] != 0 {
		t.Errorf("background labeled: %v", labels)
	}
}

func TestLabelEmpty(t *testing.T) {
	mask := make([]bool, 12)
	labels := make([]uint32, len(mask))
	labels[3] = 9
	if n := Label(labels, mask, 4, 8); n != 0 {
		t.Errorf("got %d components; want 0", n)
	}
	for i, l := range labels {
		if l != 0 {
			t.Errorf("labels[%d]=%d; want 0", i, l)
		}
	}
}

func TestRemoveSmall(t *testing.T) {
	mask, width := parseMask(
		"##...",
		"##..#",
		".....",
		"###..",
	)
	labels := make([]uint32, len(mask))
	n := Label(labels, mask, width, 8)
	if n != 3 {
		t.Fatalf("got %d components; want 3", n)
	}

	tcs := []struct {
		minSize, kept int
	}{
		{0, 3}, {1, 3}, {2, 2}, {4, 1}, {5, 0},
	}
	for _, tc := range tcs {
		tmp := append([]uint32(nil), labels...)
		if got := RemoveSmall(tmp, n, tc.minSize); got != tc.kept {
			t.Errorf("minSize %d: kept %d; want %d", tc.minSize, got, tc.kept)
		}
		sizes := Sizes(tmp, n)
		for l := 1; l < len(sizes); l++ {
			if sizes[l] > 0 && sizes[l] < tc.minSize {
				t.Errorf("minSize %d: label %d with size %d survived", tc.minSize, l, sizes[l])
			}
		}
	}

	// removal leaves remaining labels untouched, so the label set is sparse
	RemoveSmall(labels, n, 2)
	if labels[1*width+4] != 0 || labels[3*width] != 3 || labels[0] != 1 {
		t.Errorf("unexpected labels after removal: %v", labels)
	}
}

func TestExpand(t *testing.T) {
	width, height := 11, 11
	labels := make([]uint32, width*height)
	labels[5*width+5] = 7
	res := make([]uint32, len(labels))

	for _, radius := range []int{0, 1, 2, 4} {
		Expand(res, labels, width, radius)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				d2 := (x-5)*(x-5) + (y-5)*(y-5)
				want := uint32(0)
				if d2 <= radius*radius {
					want = 7
				}
				if got := res[y*width+x]; got != want {
					t.Errorf("radius %d: res(%d,%d)=%d; want %d", radius, x, y, got, want)
				}
			}
		}
	}
}

func TestExpandNearestLabelWins(t *testing.T) {
	width := 9
	labels := make([]uint32, width)
	labels[1] = 1
	labels[6] = 2
	res := make([]uint32, width)
	Expand(res, labels, width, 3)
	want := []uint32{1, 1, 1, 1, 2, 2, 2, 2, 2}
	for i := range res {
		if res[i] != want[i] {
			t.Errorf("res[%d]=%d; want %d", i, res[i], want[i])
		}
	}
	// seeds are never overwritten
	if res[1] != 1 || res[6] != 2 {
		t.Errorf("seeds changed: %v", res)
	}
}
