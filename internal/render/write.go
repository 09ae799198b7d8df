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

package render

import (
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spotlight-imaging/spotlight/internal/fits"
	"github.com/spotlight-imaging/spotlight/internal/spots"
	"github.com/spotlight-imaging/spotlight/internal/volume"
)

// Saves an image, upscaled by the given integer factor with nearest neighbor sampling.
// The format is chosen from the file suffix
func Save(fileName string, img image.Image, scale int) error {
	if scale > 1 {
		b := img.Bounds()
		img = imaging.Resize(img, b.Dx()*scale, b.Dy()*scale, imaging.NearestNeighbor)
	}
	return imaging.Save(img, fileName, imaging.JPEGQuality(95))
}

// Returns the file name for frame t. Patterns containing a % verb are formatted with the frame index,
// otherwise the index is inserted before the suffix
func FrameFileName(pattern string, t int) string {
	if strings.Contains(pattern, "%") {
		return fmt.Sprintf(pattern, t)
	}
	ext := filepath.Ext(pattern)
	return fmt.Sprintf("%s_%04d%s", strings.TrimSuffix(pattern, ext), t, ext)
}

// Writes one preview per frame. TIFF files receive the plain 16-bit intensity frame,
// all other formats an overlay of spots and background annulus
func WritePreviews(pattern string, vol *volume.Volume, res *spots.Result, o *Options, logWriter io.Writer) error {
	ext := strings.ToLower(filepath.Ext(pattern))
	for t := 0; t < vol.Frames; t++ {
		fileName := FrameFileName(pattern, t)
		frame := vol.Frame(t)
		min, _, max := volume.MinMeanMax(frame)

		var err error
		if ext == ".tif" || ext == ".tiff" {
			err = fits.WriteMonoTIFF16ToFile(fileName, frame, vol.Width, min, max, o.Gamma)
		} else {
			img := Overlay(frame, res.FrameLabels(t), res.FrameRing(t), vol.Width, min, max, o)
			err = Save(fileName, img, o.Scale)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}
		fmt.Fprintf(logWriter, "%d: wrote preview %s\n", t, fileName)
	}
	return nil
}
