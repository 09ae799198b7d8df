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
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Writes an uncompressed 16-bit grayscale TIFF with one strip per page. The description goes on the first page
func writeTIFFStack(t *testing.T, fileName string, bo byteOrder, width, height int, description string, pages [][]uint16) {
	t.Helper()
	data := make([]byte, 8)
	if bo.String() == "LittleEndian" {
		copy(data, "II*\x00")
	} else {
		copy(data, "MM\x00*")
	}
	next := 4
	for i, pix := range pages {
		pixOffset := len(data)
		for _, v := range pix {
			data = bo.AppendUint16(data, v)
		}
		desc := ""
		if i == 0 {
			desc = description
		}
		descOffset := len(data)
		if desc != "" {
			data = append(data, desc...)
			data = append(data, 0)
		}
		if len(data)%2 == 1 {
			data = append(data, 0)
		}
		bo.PutUint32(data[next:], uint32(len(data)))

		type field struct {
			tag, typ     uint16
			count, value uint32
		}
		fields := []field{
			{256, 3, 1, uint32(width)}, {257, 3, 1, uint32(height)}, {258, 3, 1, 16},
			{259, 3, 1, 1}, {262, 3, 1, 1},
		}
		if desc != "" {
			fields = append(fields, field{270, 2, uint32(len(desc) + 1), uint32(descOffset)})
		}
		fields = append(fields, field{273, 4, 1, uint32(pixOffset)}, field{277, 3, 1, 1},
			field{278, 3, 1, uint32(height)}, field{279, 4, 1, uint32(2 * len(pix))})

		data = bo.AppendUint16(data, uint16(len(fields)))
		for _, f := range fields {
			data = bo.AppendUint16(data, f.tag)
			data = bo.AppendUint16(data, f.typ)
			data = bo.AppendUint32(data, f.count)
			if f.typ == 3 {
				data = bo.AppendUint16(data, uint16(f.value))
				data = bo.AppendUint16(data, 0)
			} else {
				data = bo.AppendUint32(data, f.value)
			}
		}
		next = len(data)
		data = bo.AppendUint32(data, 0)
	}
	if err := os.WriteFile(fileName, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// Page p pixel i holds 100*p+i
func rampPages(n, size int) [][]uint16 {
	pages := make([][]uint16, n)
	for p := range pages {
		pages[p] = make([]uint16, size)
		for i := range pages[p] {
			pages[p][i] = uint16(100*p + i)
		}
	}
	return pages
}

func TestTIFFStackTimeSeries(t *testing.T) {
	dir := t.TempDir()
	writeTIFFStack(t, filepath.Join(dir, "t2.tif"), binary.LittleEndian, 3, 2, "", rampPages(3, 6))
	writeTIFFStack(t, filepath.Join(dir, "t10.tif"), binary.LittleEndian, 3, 2, "", rampPages(2, 6))

	img, err := NewImageFromFile(filepath.Join(dir, "t2.tif"), io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if img.DimensionsToString() != "3x2x3" || img.Bitpix != 16 {
		t.Fatalf("dimensions %s bitpix %d; want 3x2x3 and 16", img.DimensionsToString(), img.Bitpix)
	}

	v, err := LoadVolume([]string{filepath.Join(dir, "t10.tif"), filepath.Join(dir, "t2.tif")}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if v.Frames != 5 || v.Width != 3 || v.Height != 2 {
		t.Fatalf("got %d frames of %dx%d; want 5 of 3x2", v.Frames, v.Width, v.Height)
	}
	// t2 sorts first, its pages are frames 0..2
	for f, want := range []float32{0, 100, 200, 0, 100} {
		if got := v.Frame(f)[0]; got != want {
			t.Errorf("frame %d pixel 0 = %f; want %f", f, got, want)
		}
	}
	if got := v.Frame(2)[5]; got != 205 {
		t.Errorf("frame 2 pixel 5 = %f; want 205", got)
	}
}

func TestTIFFStackTimeZProjection(t *testing.T) {
	frames, depth, size := 2, 3, 6
	pages := make([][]uint16, frames*depth)
	for p := range pages {
		pages[p] = make([]uint16, size)
		for i := range pages[p] {
			z := p % depth
			pages[p][i] = uint16((z*7+i*5)%11 + 100*(p/depth))
		}
	}

	tcs := []struct {
		name        string
		bo          byteOrder
		description string
	}{
		{"tifffile", binary.BigEndian, `{"shape": [2, 3, 2, 3]}`},
		{"imagej", binary.LittleEndian, "ImageJ=1.53t\nimages=6\nslices=3\nframes=2\nhyperstack=true\n"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			fileName := filepath.Join(t.TempDir(), "stack.tiff")
			writeTIFFStack(t, fileName, tc.bo, 3, 2, tc.description, pages)

			v, err := LoadVolume([]string{fileName}, io.Discard)
			if err != nil {
				t.Fatal(err)
			}
			if v.Frames != frames {
				t.Fatalf("got %d frames; want %d", v.Frames, frames)
			}
			for f := 0; f < frames; f++ {
				for i := 0; i < size; i++ {
					want := uint16(0)
					for z := 0; z < depth; z++ {
						if p := pages[f*depth+z][i]; p > want {
							want = p
						}
					}
					if got := v.Frame(f)[i]; got != float32(want) {
						t.Errorf("frame %d pixel %d = %f; want max over z %d", f, i, got, want)
					}
				}
			}
		})
	}
}

func TestTIFFStackLayoutMismatch(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "odd.tif")
	writeTIFFStack(t, fileName, binary.LittleEndian, 2, 2, "ImageJ=1.53t\nimages=4\nslices=3\n", rampPages(4, 4))
	_, err := NewImageFromFile(fileName, io.Discard)
	if !errors.Is(err, errTIFFStack) {
		t.Errorf("got %v; want unsupported TIFF stack error", err)
	}
}

func TestStackLayout(t *testing.T) {
	tcs := []struct {
		description   string
		pages         int
		depth, frames int
		wantErr       bool
	}{
		{"", 5, 1, 5, false},
		{"written by a microscope", 4, 1, 4, false},
		{`{"shape": [4, 16, 16]}`, 4, 1, 4, false},
		{`{"shape": [2, 5, 16, 16]}`, 10, 5, 2, false},
		{`{"shape": [2, 5, 16, 16]}`, 8, 0, 0, true},
		{"ImageJ=1.53t\nimages=6\nslices=6\n", 6, 6, 1, false},
		{"ImageJ=1.53t\nimages=6\nframes=6\n", 6, 1, 6, false},
		{"ImageJ=1.53t\nimages=8\nchannels=2\nframes=4\n", 8, 0, 0, true},
	}
	for _, tc := range tcs {
		depth, frames, err := stackLayout(tc.description, tc.pages)
		if (err != nil) != tc.wantErr {
			t.Errorf("%q with %d pages: error %v", tc.description, tc.pages, err)
			continue
		}
		if !tc.wantErr && (depth != tc.depth || frames != tc.frames) {
			t.Errorf("%q with %d pages: got %dx%d; want depth %d frames %d",
				tc.description, tc.pages, depth, frames, tc.depth, tc.frames)
		}
	}
}

func TestDeflatePredictorStrip(t *testing.T) {
	// rows 10 20 30 and 5 6 7, stored as horizontal differences
	diffs := []uint16{10, 10, 10, 5, 1, 1}
	raw := []byte{}
	for _, d := range diffs {
		raw = binary.LittleEndian.AppendUint16(raw, d)
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()

	p := tiffPage{width: 3, height: 2, bitsPerSample: 16, samplesPerPixel: 1, sampleFormat: 1,
		compression: 8, predictor: 2, rowsPerStrip: 2,
		stripOffsets: []uint32{0}, stripByteCounts: []uint32{uint32(buf.Len())}}
	res := make([]float32, 6)
	if err := p.decode(buf.Bytes(), binary.LittleEndian, res); err != nil {
		t.Fatal(err)
	}
	for i, want := range []float32{10, 20, 30, 5, 6, 7} {
		if res[i] != want {
			t.Errorf("pixel %d = %f; want %f", i, res[i], want)
		}
	}
}
