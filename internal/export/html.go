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
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/spotlight-imaging/spotlight/internal/series"
)

// Writes an HTML page with interactive line charts of the intensities and their ratio.
// NaN frames are shown as gaps
func WriteHTML(w io.Writer, s *series.Series, title string) error {
	frames := make([]int, s.Len())
	for t := range frames {
		frames[t] = t
	}
	subtitle := fmt.Sprintf("%d frames, %d without spots", s.Len(), s.NumNaN())

	intensities := charts.NewLine()
	intensities.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Intensity"}),
	)
	intensities.SetXAxis(frames).
		AddSeries("Av Ints", lineData(s.Spot)).
		AddSeries("Bckg", lineData(s.Background))

	ratio := charts.NewLine()
	ratio.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Ints / Bckg"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
	)
	ratio.SetXAxis(frames).AddSeries("Ints / Bckg", lineData(s.Ratio()))

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(intensities, ratio)
	return page.Render(w)
}

// Converts values to chart points. Non-finite values become empty points
func lineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			data[i] = opts.LineData{Value: nil}
		} else {
			data[i] = opts.LineData{Value: v}
		}
	}
	return data
}
