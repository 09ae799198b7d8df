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

// Package export writes spot and background intensity series to CSV, XLSX, HTML and PNG files.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spotlight-imaging/spotlight/internal/series"
)

// Column headers of tabular exports
var (
	csvHeader  = []string{"Frame", "AvInts", "Bckg", "IntsOverBckg"}
	xlsxHeader = []string{"Frame", "Av Ints", "Bckg", "Ints / Bckg"}
)

// Writes the series to the given file, choosing the format by file suffix:
// .csv, .html, .png or .xlsx. Files without a known suffix are written as XLSX
// with the .xlsx suffix appended. Returns the name of the written file
func WriteFile(fileName string, s *series.Series, title string) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return fileName, writeTo(fileName, func(w io.Writer) error { return WriteCSV(w, s) })
	case ".html", ".htm":
		return fileName, writeTo(fileName, func(w io.Writer) error { return WriteHTML(w, s, title) })
	case ".png":
		return fileName, writeTo(fileName, func(w io.Writer) error { return WritePNG(w, s, title) })
	case ".xlsx":
		return fileName, WriteXLSX(fileName, s)
	default:
		fileName += ".xlsx"
		return fileName, WriteXLSX(fileName, s)
	}
}

// Writes all given files, stopping at the first error
func WriteFiles(fileNames []string, s *series.Series, title string, logWriter io.Writer) error {
	for _, fileName := range fileNames {
		written, err := WriteFile(fileName, s, title)
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}
		fmt.Fprintf(logWriter, "Wrote %d frames to %s\n", s.Len(), written)
	}
	return nil
}

func writeTo(fileName string, write func(w io.Writer) error) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
