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

// Package render draws preview images of detected spots and their background annulus.
package render

import (
	"image"
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Options for overlay rendering
type Options struct {
	Gamma     float32 // gamma applied to the scaled intensity
	SpotAlpha float32 // blend weight of the label color over spot pixels
	RingAlpha float32 // blend weight of the ring tint over annulus pixels
	Scale     int     // integer upscale factor, nearest neighbor
	RingColor color.NRGBA
}

func NewOptionsDefault() *Options {
	return &Options{
		Gamma:     1,
		SpotAlpha: 0.6,
		RingAlpha: 0.35,
		Scale:     1,
		RingColor: color.NRGBA{R: 0, G: 160, B: 255, A: 255},
	}
}

// Returns n visually distinct colors with equal lightness and chroma in HCL space.
// Hues are spaced by the golden angle so that neighboring labels differ strongly
func LabelColors(n int) []color.NRGBA {
	cols := make([]color.NRGBA, n)
	for i := range cols {
		hue := math.Mod(float64(i)*137.50776405, 360)
		c := colorful.Hcl(hue, 0.8, 0.65).Clamped()
		r, g, b := c.RGB255()
		cols[i] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return cols
}

// Renders a frame as gray image scaled from min to max, with spots tinted per label and
// the annulus tinted in the ring color. Labels and ring may be nil
func Overlay(frame []float32, labels []uint32, ring []bool, width int, min, max float32, o *Options) *image.NRGBA {
	height := len(frame) / width
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	var maxLabel uint32
	for _, l := range labels {
		if l > maxLabel {
			maxLabel = l
		}
	}
	cols := LabelColors(int(maxLabel))

	scale := float32(0)
	if max > min {
		scale = 1 / (max - min)
	}
	gammaInv := float64(1)
	if o.Gamma > 0 {
		gammaInv = 1 / float64(o.Gamma)
	}

	for i, v := range frame {
		gray := (v - min) * scale
		if math.IsNaN(float64(gray)) || gray < 0 {
			gray = 0
		}
		if gray > 1 {
			gray = 1
		}
		if gammaInv != 1 {
			gray = float32(math.Pow(float64(gray), gammaInv))
		}
		g := uint8(gray*255 + 0.5)
		px := color.NRGBA{R: g, G: g, B: g, A: 255}

		if labels != nil && labels[i] > 0 {
			px = blend(px, cols[labels[i]-1], o.SpotAlpha)
		} else if ring != nil && ring[i] {
			px = blend(px, o.RingColor, o.RingAlpha)
		}
		img.SetNRGBA(i%width, i/width, px)
	}
	return img
}

// Blends color b over a with weight alpha
func blend(a, b color.NRGBA, alpha float32) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float32(x)*(1-alpha) + float32(y)*alpha + 0.5)
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}
