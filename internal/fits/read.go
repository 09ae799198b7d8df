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
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

// Reads a FITS or TIFF image from the file with the given name
func NewImageFromFile(fileName string, logWriter io.Writer) (i *Image, err error) {
	i = NewImage()
	return i, i.ReadFile(fileName, true, logWriter)
}

// Read FITS data from the file with the given name. Decompresses gzip if .gz or gzip suffix is present.
// Reads metadata only (fast) if readData is false. TIFF files are decoded as single frames or page stacks
func (fits *Image) ReadFile(fileName string, readData bool, logWriter io.Writer) error {
	fits.FileName = fileName
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".tif" || lExt == ".tiff" {
		return fits.ReadTIFF(fileName)
	}

	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if lExt == ".gz" || lExt == ".gzip" {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%s: %w", fileName, err)
		}
		defer gz.Close()
		r = gz
	}
	return fits.Read(r, readData, logWriter)
}

func (fits *Image) PopHeaderInt32(key string) (res int32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("%s: FITS header does not contain key %s", fits.FileName, key)
}

func (fits *Image) PopHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := fits.Header.Floats[key]; ok {
		delete(fits.Header.Floats, key)
		return val, nil
	}
	return 0, fmt.Errorf("%s: FITS header does not contain key %s", fits.FileName, key)
}

// Reads the primary header and data unit from the reader
func (fits *Image) Read(f io.Reader, readData bool, logWriter io.Writer) (err error) {
	if err = fits.Header.read(f, fits.FileName, logWriter); err != nil {
		return err
	}

	// check mandatory fields as per standard
	if !fits.Header.Bools["SIMPLE"] {
		return fmt.Errorf("%s: Not a valid FITS file; SIMPLE=T missing in header", fits.FileName)
	}
	delete(fits.Header.Bools, "SIMPLE")

	if fits.Bitpix, err = fits.PopHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = fits.PopHeaderInt32("NAXIS"); err != nil {
		return err
	}
	if naxis < 1 {
		return fmt.Errorf("%s: primary data unit holds no image", fits.FileName)
	}
	fits.Naxisn = make([]int32, naxis)
	fits.Pixels = 1
	for i := int32(1); i <= naxis; i++ {
		name := "NAXIS" + strconv.FormatInt(int64(i), 10)
		var nai int32
		if nai, err = fits.PopHeaderInt32(name); err != nil {
			return err
		}
		if nai < 0 {
			return fmt.Errorf("%s: negative axis length %s=%d", fits.FileName, name, nai)
		}
		fits.Naxisn[i-1] = nai
		fits.Pixels *= int(nai)
	}

	if fits.Bzero, err = fits.PopHeaderInt32OrFloat("BZERO"); err != nil {
		fits.Bzero = 0
	}
	if fits.Bscale, err = fits.PopHeaderInt32OrFloat("BSCALE"); err != nil {
		fits.Bscale = 1
	}

	if !readData {
		return nil
	}
	return fits.readData(f, logWriter)
}

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Decodes one big-endian value of the given BITPIX type
type decoder func(b []byte) float32

func decoderFor(bitpix int32) (dec decoder, bytesPerValue int, ok bool) {
	switch bitpix {
	case 8:
		return func(b []byte) float32 { return float32(b[0]) }, 1, true
	case 16:
		return func(b []byte) float32 { return float32(int16(binary.BigEndian.Uint16(b))) }, 2, true
	case 32:
		return func(b []byte) float32 { return float32(int32(binary.BigEndian.Uint32(b))) }, 4, true
	case 64:
		return func(b []byte) float32 { return float32(int64(binary.BigEndian.Uint64(b))) }, 8, true
	case -32:
		return func(b []byte) float32 { return math.Float32frombits(binary.BigEndian.Uint32(b)) }, 4, true
	case -64:
		return func(b []byte) float32 { return float32(math.Float64frombits(binary.BigEndian.Uint64(b))) }, 8, true
	}
	return nil, 0, false
}

// Read image data from file, convert to float32 data type, apply BZero offset and BScale, and reset them afterwards.
func (fits *Image) readData(r io.Reader, logWriter io.Writer) (err error) {
	dec, bytesPerValue, ok := decoderFor(fits.Bitpix)
	if !ok {
		return fmt.Errorf("%s: Unknown BITPIX value %d", fits.FileName, fits.Bitpix)
	}
	if fits.Bitpix == 32 || fits.Bitpix == 64 || fits.Bitpix == -64 {
		fmt.Fprintf(logWriter, "%s: Warning: loss of precision converting BITPIX %d to float32 values\n", fits.FileName, fits.Bitpix)
	}

	fits.Data = make([]float32, fits.Pixels)
	buf := make([]byte, bufLen)
	valuesPerBuf := bufLen / bytesPerValue
	for dataIndex := 0; dataIndex < len(fits.Data); {
		n := len(fits.Data) - dataIndex
		if n > valuesPerBuf {
			n = valuesPerBuf
		}
		if _, err := io.ReadFull(r, buf[:n*bytesPerValue]); err != nil {
			return fmt.Errorf("%s: reading pixel %d: %w", fits.FileName, dataIndex, err)
		}
		for i := 0; i < n; i++ {
			fits.Data[dataIndex+i] = dec(buf[i*bytesPerValue:])*fits.Bscale + fits.Bzero
		}
		dataIndex += n
	}
	fits.Bzero, fits.Bscale = 0, 1 // reflect that data values incorporate these now
	return nil
}

func (h *Header) read(r io.Reader, fileName string, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		bytesRead, err := io.ReadFull(r, buf)
		if err != nil {
			return fmt.Errorf("%s: reading header: %w", fileName, err)
		}
		h.Length += int32(bytesRead)

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "%s: Warning: Cannot parse '%s', ignoring\n", fileName, strings.TrimSpace(string(line)))
			} else {
				h.readLine(reParser.SubexpNames(), subValues)
			}
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] == nil || len(subNames[i]) != 1 {
			continue
		}
		value := string(subValues[i])
		switch subNames[i][0] {
		case 'E':
			h.End = true
		case 'H':
			h.History = append(h.History, strings.TrimRight(value, " "))
		case 'C':
			h.Comments = append(h.Comments, strings.TrimRight(value, " "))
		case 'k':
			key = value
		case 'b':
			h.Bools[key] = value == "T"
		case 'i':
			if val, err := strconv.ParseInt(value, 10, 64); err == nil {
				if val >= math.MinInt32 && val <= math.MaxInt32 {
					h.Ints[key] = int32(val)
				} else {
					h.Floats[key] = float32(val) // e.g. BZERO of unsigned 32-bit data
				}
			}
		case 'f':
			if val, err := strconv.ParseFloat(strings.NewReplacer("D", "E", "d", "e").Replace(value), 32); err == nil {
				h.Floats[key] = float32(val)
			}
		case 's':
			h.Strings[key] = strings.TrimRight(strings.ReplaceAll(value, "''", "'"), " ")
		case 'd':
			h.Dates[key] = value
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"

	histLine := "HISTORY" + whiteOpt + "(?P<H>.*)"
	commLine := "COMMENT" + whiteOpt + "(?P<C>.*)"
	endLine := "(?P<E>END)" + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[EDed][-+]?[0-9]+)?|[+-]?[0-9]+[EDed][-+]?[0-9]+)"
	stri := "'(?P<s>(?:[^']|'')*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)"
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + "=" + whiteOpt + val + whiteOpt + commOpt

	lineRe := "^(?:" + white + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
