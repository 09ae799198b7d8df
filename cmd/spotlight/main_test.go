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

package main

import (
	"reflect"
	"testing"
)

func TestSplitList(t *testing.T) {
	got := splitList(" a.csv, b.xlsx,,c.png ")
	want := []string{"a.csv", "b.xlsx", "c.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v want %v", got, want)
	}
	if got := splitList(""); len(got) != 0 {
		t.Errorf("empty list got %v", got)
	}
}

func TestTriangle(t *testing.T) {
	tcs := []struct{ x, want float64 }{{0, 0}, {0.25, 0.5}, {0.5, 1}, {0.75, 0.5}, {1.25, 0.5}}
	for _, tc := range tcs {
		if got := triangle(tc.x); got != tc.want {
			t.Errorf("triangle(%g) got %g want %g", tc.x, got, tc.want)
		}
	}
}

func TestDetectorSettingsDefaults(t *testing.T) {
	p, c, err := detectorSettings()
	if err != nil {
		t.Fatal(err)
	}
	if p.Sigma != 3 || p.MinSize != 5 {
		t.Errorf("params got %+v", p)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
