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

package export

import (
	"image/color"
	"io"
	"math"

	"github.com/spotlight-imaging/spotlight/internal/series"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	spotColor       = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	backgroundColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	ratioColor      = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// Writes a PNG with the intensities in an upper and their ratio in a lower panel. NaN frames are skipped
func WritePNG(w io.Writer, s *series.Series, title string) error {
	pInts := plot.New()
	pInts.Title.Text = title
	pInts.X.Label.Text = "Frame"
	pInts.Y.Label.Text = "Intensity"
	if err := addLine(pInts, "Av Ints", s.Spot, spotColor); err != nil {
		return err
	}
	if err := addLine(pInts, "Bckg", s.Background, backgroundColor); err != nil {
		return err
	}

	pRatio := plot.New()
	pRatio.X.Label.Text = "Frame"
	pRatio.Y.Label.Text = "Ints / Bckg"
	if err := addLine(pRatio, "Ints / Bckg", s.Ratio(), ratioColor); err != nil {
		return err
	}

	img := vgimg.New(10*vg.Inch, 7*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{Rows: 2, Cols: 1, PadY: 5 * vg.Millimeter, PadTop: 2 * vg.Millimeter, PadBottom: 2 * vg.Millimeter}
	canvases := plot.Align([][]*plot.Plot{{pInts}, {pRatio}}, tiles, dc)
	pInts.Draw(canvases[0][0])
	pRatio.Draw(canvases[1][0])

	png := vgimg.PngCanvas{Canvas: img}
	_, err := png.WriteTo(w)
	return err
}

// Adds a line with points for all finite values to the plot
func addLine(p *plot.Plot, name string, values []float64, c color.Color) error {
	pts := make(plotter.XYs, 0, len(values))
	for t, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(t), Y: v})
	}
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}
