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
	"bufio"
	"bytes"
	"image"
	"image/color"
	"io"
	"math"
	"os"

	"golang.org/x/image/tiff"
)

// Read a TIFF file into a FITS image. A single page becomes a single frame, and color pages are
// converted to luminance. Multi-page grayscale stacks become t or t*z cubes, see readTIFFStack
func (f *Image) ReadTIFF(fileName string) error {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return err
	}
	return f.readTIFFBytes(data)
}

func (f *Image) readTIFFBytes(data []byte) error {
	pages, bo, err := parseTIFFPages(data)
	if err == nil && len(pages) > 1 {
		return f.readTIFFStack(data, pages, bo)
	}
	return f.readTIFF(bytes.NewReader(data))
}

func (f *Image) readTIFF(r io.Reader) error {
	t, err := tiff.Decode(r)
	if err != nil {
		return err
	}

	bounds := t.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	f.Bitpix = 16
	if t.ColorModel() == color.GrayModel {
		f.Bitpix = 8
	}
	f.Naxisn = []int32{int32(width), int32(height)}
	f.Pixels = width * height
	f.Bzero, f.Bscale = 0, 1
	f.Data = make([]float32, f.Pixels)

	switch img := t.(type) {
	case *image.Gray16:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				f.Data[y*width+x] = float32(img.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	case *image.Gray:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				f.Data[y*width+x] = float32(img.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g := color.Gray16Model.Convert(t.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
				f.Data[y*width+x] = float32(g.Y)
			}
		}
	}
	return nil
}

// Write a single frame to a grayscale 16-bit TIFF file, using the given min, max and gamma.
func WriteMonoTIFF16ToFile(fileName string, data []float32, width int, min, max, gamma float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err := WriteMonoTIFF16(writer, data, width, min, max, gamma); err != nil {
		return err
	}
	return writer.Flush()
}

// Write a single frame to grayscale 16-bit TIFF, using the given min, max and gamma.
func WriteMonoTIFF16(writer io.Writer, data []float32, width int, min, max, gamma float32) error {
	height := len(data) / width
	img := image.NewGray16(image.Rect(0, 0, width, height))
	scale := float32(0)
	if max > min {
		scale = 1 / (max - min)
	}
	gammaInv := float64(1.0 / gamma)
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := (data[yoffset+x] - min) * scale
			// replace NaNs with zeros for export, else TIFF output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			if gammaInv != 1.0 {
				gray = float32(math.Pow(float64(gray), gammaInv))
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(gray * 65535)})
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
