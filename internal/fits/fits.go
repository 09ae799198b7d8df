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
	"strings"

	"github.com/spotlight-imaging/spotlight/internal/volume"
)

// A FITS image.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	FileName string // Original file name, if any, for log output

	Header Header  // The header with all keys, values, comments, history entries etc.
	Bitpix int32   // Bits per pixel value from the header. Positive values are integral, negative floating.
	Bzero  float32 // Zero offset. True pixel value is Bzero + Bscale * Data[i].
	Bscale float32 // Value scaler. True pixel value is Bzero + Bscale * Data[i].
	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y,Z,T)
	Pixels int     // Number of pixels in the image. Product of Naxisn[]

	Data []float32 // The image data
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header: NewHeader(),
		Bscale: 1,
	}
}

// Creates a FITS image of float32 values from a volume, with frames along the third axis. Data is not copied
func NewImageFromVolume(v *volume.Volume) *Image {
	return &Image{
		Header: NewHeader(),
		Bitpix: -32,
		Bscale: 1,
		Naxisn: []int32{int32(v.Width), int32(v.Height), int32(v.Frames)},
		Pixels: len(v.Data),
		Data:   v.Data,
	}
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int32),
		Floats:   make(map[string]float32),
		Strings:  make(map[string]string),
		Dates:    make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
		End:      false,
	}
}

const fitsBlockSize int = 2880 // Block size of FITS header and data units
const HeaderLineSize int = 80  // Line size of a FITS header

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Converts the image into a time series volume. Two axes give a single frame,
// three axes a series of frames, and four axes a series of z stacks which are
// projected onto single frames by their per-pixel maximum
func (f *Image) ToVolume() (*volume.Volume, error) {
	if len(f.Naxisn) < 2 || len(f.Naxisn) > 4 {
		return nil, fmt.Errorf("%s: cannot convert %d axes into frames", f.FileName, len(f.Naxisn))
	}
	width, height := int(f.Naxisn[0]), int(f.Naxisn[1])
	frames, depth := 1, 1
	switch len(f.Naxisn) {
	case 3:
		frames = int(f.Naxisn[2])
	case 4:
		depth, frames = int(f.Naxisn[2]), int(f.Naxisn[3])
	}
	if depth == 1 {
		return volume.New(frames, height, width, f.Data)
	}

	v, err := volume.New(frames, height, width, nil)
	if err != nil {
		return nil, err
	}
	stackSize := depth * height * width
	for t := 0; t < frames; t++ {
		mip := volume.MaxProjection(f.Data[t*stackSize:(t+1)*stackSize], depth, height, width)
		copy(v.Frame(t), mip)
	}
	return v, nil
}
