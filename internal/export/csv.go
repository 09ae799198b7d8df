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
	"encoding/csv"
	"io"
	"strconv"

	"github.com/spotlight-imaging/spotlight/internal/series"
)

// Writes one line per frame with spot, background and their ratio. NaN entries are written as NaN
func WriteCSV(w io.Writer, s *series.Series) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	ratio := s.Ratio()
	for t := 0; t < s.Len(); t++ {
		record := []string{
			strconv.Itoa(t),
			formatFloat(s.Spot[t]),
			formatFloat(s.Background[t]),
			formatFloat(ratio[t]),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
