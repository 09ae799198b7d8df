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

package fits

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spotlight-imaging/spotlight/internal/volume"
)

// Expands file name patterns with wildcards into a list of files, in natural sort order
func GlobFilenameWildcards(patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	fileNames := []string{}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pattern, err)
		}
		fileNames = append(fileNames, matches...)
	}
	sort.SliceStable(fileNames, func(i, j int) bool { return NaturalLess(fileNames[i], fileNames[j]) })
	return fileNames, nil
}

// Compares strings so that embedded decimal numbers are ordered by value, e.g. t2 before t10
func NaturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		ca, cb := chunk(a), chunk(b)
		a, b = a[len(ca):], b[len(cb):]
		if ca == cb {
			continue
		}
		if isDigit(ca[0]) && isDigit(cb[0]) {
			ta, tb := strings.TrimLeft(ca, "0"), strings.TrimLeft(cb, "0")
			if len(ta) != len(tb) {
				return len(ta) < len(tb)
			}
			if ta != tb {
				return ta < tb
			}
			return len(ca) < len(cb) // fewer leading zeros first
		}
		return ca < cb
	}
	return len(a) < len(b)
}

// Returns the leading run of digits or of non-digits
func chunk(s string) string {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Loads the given files in natural sort order, projects z stacks and concatenates all frames
// into one volume. All files must share the frame height and width
func LoadVolume(fileNames []string, logWriter io.Writer) (*volume.Volume, error) {
	if len(fileNames) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	sorted := append([]string(nil), fileNames...)
	sort.SliceStable(sorted, func(i, j int) bool { return NaturalLess(sorted[i], sorted[j]) })

	vols := make([]*volume.Volume, 0, len(sorted))
	for _, fileName := range sorted {
		img, err := NewImageFromFile(fileName, logWriter)
		if err != nil {
			return nil, err
		}
		v, err := img.ToVolume()
		if err != nil {
			return nil, err
		}
		min, mean, max := volume.MinMeanMax(v.Data)
		fmt.Fprintf(logWriter, "Loaded %s: %s as %d frames of %dx%d, min %.4g mean %.4g max %.4g\n",
			fileName, img.DimensionsToString(), v.Frames, v.Width, v.Height, min, mean, max)
		vols = append(vols, v)
	}
	if len(vols) == 1 {
		return vols[0], nil
	}
	v, err := volume.Concat(vols...)
	if err != nil {
		return nil, fmt.Errorf("concatenating %d files: %w", len(vols), err)
	}
	return v, nil
}

// Writes the volume as a FITS cube of float32 values, with frames along the third axis
func WriteVolume(fileName string, v *volume.Volume, history ...string) error {
	img := NewImageFromVolume(v)
	img.Header.History = append(img.Header.History, history...)
	return img.WriteFile(fileName)
}
