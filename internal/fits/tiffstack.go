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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/tiff/lzw"
)

// TIFF tags used for grayscale page stacks
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagImageDescription = 270
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPredictor        = 317
	tagTileWidth        = 322
	tagSampleFormat     = 339
)

// TIFF field types
const (
	dtByte  = 1
	dtASCII = 2
	dtShort = 3
	dtLong  = 4
)

var errTIFFStack = errors.New("unsupported TIFF stack")

// One page (IFD) of a TIFF file
type tiffPage struct {
	width, height   int
	bitsPerSample   int
	samplesPerPixel int
	sampleFormat    int // 1 unsigned, 2 signed, 3 float
	compression     int
	predictor       int
	rowsPerStrip    int
	tiled           bool
	stripOffsets    []uint32
	stripByteCounts []uint32
	description     string
}

// Parses the IFD chain of a TIFF file held in memory
func parseTIFFPages(data []byte) ([]tiffPage, binary.ByteOrder, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("%w: file too short", errTIFFStack)
	}
	var bo binary.ByteOrder
	switch string(data[:4]) {
	case "II*\x00":
		bo = binary.LittleEndian
	case "MM\x00*":
		bo = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("%w: not a classic TIFF header", errTIFFStack)
	}

	pages := []tiffPage{}
	seen := map[uint32]bool{}
	for offset := bo.Uint32(data[4:8]); offset != 0; {
		if seen[offset] || int(offset)+2 > len(data) {
			return nil, nil, fmt.Errorf("%w: bad IFD offset %d", errTIFFStack, offset)
		}
		seen[offset] = true
		n := int(bo.Uint16(data[offset:]))
		end := int(offset) + 2 + 12*n
		if end+4 > len(data) {
			return nil, nil, fmt.Errorf("%w: truncated IFD at %d", errTIFFStack, offset)
		}
		p := tiffPage{bitsPerSample: 1, samplesPerPixel: 1, sampleFormat: 1, compression: 1, predictor: 1}
		for i := 0; i < n; i++ {
			entry := data[int(offset)+2+12*i:]
			if err := p.setField(data, entry, bo); err != nil {
				return nil, nil, err
			}
		}
		if p.rowsPerStrip <= 0 || p.rowsPerStrip > p.height {
			p.rowsPerStrip = p.height
		}
		pages = append(pages, p)
		offset = bo.Uint32(data[end:])
	}
	return pages, bo, nil
}

// Reads one IFD entry into the page
func (p *tiffPage) setField(data, entry []byte, bo binary.ByteOrder) error {
	tag, typ, count := bo.Uint16(entry[0:]), bo.Uint16(entry[2:]), int(bo.Uint32(entry[4:]))
	size := 0
	switch typ {
	case dtByte, dtASCII:
		size = 1
	case dtShort:
		size = 2
	case dtLong:
		size = 4
	default:
		return nil // rationals and others are not needed
	}
	raw := entry[8:12]
	if count*size > 4 {
		off := int(bo.Uint32(entry[8:]))
		if off < 0 || off+count*size > len(data) {
			return fmt.Errorf("%w: tag %d points outside the file", errTIFFStack, tag)
		}
		raw = data[off : off+count*size]
	}

	if tag == tagImageDescription {
		p.description = strings.TrimRight(string(raw[:count]), "\x00 \n")
		return nil
	}
	values := make([]uint32, count)
	for i := range values {
		switch size {
		case 1:
			values[i] = uint32(raw[i])
		case 2:
			values[i] = uint32(bo.Uint16(raw[2*i:]))
		case 4:
			values[i] = bo.Uint32(raw[4*i:])
		}
	}
	if count == 0 {
		return nil
	}
	switch tag {
	case tagImageWidth:
		p.width = int(values[0])
	case tagImageLength:
		p.height = int(values[0])
	case tagBitsPerSample:
		p.bitsPerSample = int(values[0])
	case tagCompression:
		p.compression = int(values[0])
	case tagSamplesPerPixel:
		p.samplesPerPixel = int(values[0])
	case tagRowsPerStrip:
		p.rowsPerStrip = int(values[0])
	case tagStripOffsets:
		p.stripOffsets = values
	case tagStripByteCounts:
		p.stripByteCounts = values
	case tagPredictor:
		p.predictor = int(values[0])
	case tagTileWidth:
		p.tiled = true
	case tagSampleFormat:
		p.sampleFormat = int(values[0])
	}
	return nil
}

// Decodes the pixels of a grayscale page into res
func (p *tiffPage) decode(data []byte, bo binary.ByteOrder, res []float32) error {
	if p.tiled || p.samplesPerPixel != 1 || len(p.stripOffsets) != len(p.stripByteCounts) {
		return fmt.Errorf("%w: only single sample strip layouts are supported", errTIFFStack)
	}
	bytesPerSample := p.bitsPerSample / 8
	if p.bitsPerSample%8 != 0 || bytesPerSample < 1 || bytesPerSample > 8 {
		return fmt.Errorf("%w: %d bits per sample", errTIFFStack, p.bitsPerSample)
	}

	rowBytes := p.width * bytesPerSample
	pix := make([]byte, 0, rowBytes*p.height)
	for i, off := range p.stripOffsets {
		end := int(off) + int(p.stripByteCounts[i])
		if end > len(data) {
			return fmt.Errorf("%w: strip %d outside the file", errTIFFStack, i)
		}
		strip, err := decompress(data[off:end], p.compression)
		if err != nil {
			return err
		}
		pix = append(pix, strip...)
	}
	if len(pix) < rowBytes*p.height {
		return fmt.Errorf("%w: %d pixel bytes, want %d", errTIFFStack, len(pix), rowBytes*p.height)
	}
	if p.predictor == 2 {
		undoHorizontalDifferencing(pix, p.width, p.height, bytesPerSample, bo)
	} else if p.predictor != 1 {
		return fmt.Errorf("%w: predictor %d", errTIFFStack, p.predictor)
	}

	for i := 0; i < p.width*p.height; i++ {
		b := pix[i*bytesPerSample:]
		switch {
		case p.sampleFormat == 3 && bytesPerSample == 4:
			res[i] = math.Float32frombits(bo.Uint32(b))
		case p.sampleFormat == 3 && bytesPerSample == 8:
			res[i] = float32(math.Float64frombits(bo.Uint64(b)))
		case bytesPerSample == 1 && p.sampleFormat == 2:
			res[i] = float32(int8(b[0]))
		case bytesPerSample == 1:
			res[i] = float32(b[0])
		case bytesPerSample == 2 && p.sampleFormat == 2:
			res[i] = float32(int16(bo.Uint16(b)))
		case bytesPerSample == 2:
			res[i] = float32(bo.Uint16(b))
		case bytesPerSample == 4 && p.sampleFormat == 2:
			res[i] = float32(int32(bo.Uint32(b)))
		case bytesPerSample == 4:
			res[i] = float32(bo.Uint32(b))
		default:
			return fmt.Errorf("%w: %d bit samples of format %d", errTIFFStack, p.bitsPerSample, p.sampleFormat)
		}
	}
	return nil
}

func decompress(strip []byte, compression int) ([]byte, error) {
	switch compression {
	case 1:
		return strip, nil
	case 5:
		r := lzw.NewReader(bytes.NewReader(strip), lzw.MSB, 8)
		defer r.Close()
		return io.ReadAll(r)
	case 8, 32946:
		r, err := zlib.NewReader(bytes.NewReader(strip))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("%w: compression %d", errTIFFStack, compression)
	}
}

// Reverts TIFF predictor 2 for integer samples
func undoHorizontalDifferencing(pix []byte, width, height, bytesPerSample int, bo binary.ByteOrder) {
	rowBytes := width * bytesPerSample
	for y := 0; y < height; y++ {
		row := pix[y*rowBytes : (y+1)*rowBytes]
		for x := 1; x < width; x++ {
			cur, prev := row[x*bytesPerSample:], row[(x-1)*bytesPerSample:]
			switch bytesPerSample {
			case 1:
				cur[0] += prev[0]
			case 2:
				bo.PutUint16(cur, bo.Uint16(cur)+bo.Uint16(prev))
			case 4:
				bo.PutUint32(cur, bo.Uint32(cur)+bo.Uint32(prev))
			}
		}
	}
}

// Derives depth (z planes per time point) and frames from the description of the first page.
// ImageJ hyperstacks carry slices= and frames=, tifffile writes a JSON shape. Without either,
// every page is a frame
func stackLayout(description string, pages int) (depth, frames int, err error) {
	depth, frames = 1, pages
	switch {
	case strings.HasPrefix(description, "ImageJ="):
		kv := map[string]int{}
		for _, line := range strings.Split(description, "\n") {
			if k, v, ok := strings.Cut(strings.TrimSpace(line), "="); ok {
				if n, err := strconv.Atoi(v); err == nil {
					kv[k] = n
				}
			}
		}
		if c := kv["channels"]; c > 1 {
			return 0, 0, fmt.Errorf("%w: %d channels", errTIFFStack, c)
		}
		if s := kv["slices"]; s > 1 {
			depth = s
			frames = pages / s
		}
		if f := kv["frames"]; f > 0 {
			frames = f
		}
	case strings.HasPrefix(description, "{"):
		var meta struct {
			Shape []int `json:"shape"`
		}
		if json.Unmarshal([]byte(description), &meta) == nil {
			switch len(meta.Shape) {
			case 4:
				frames, depth = meta.Shape[0], meta.Shape[1]
			case 3:
				frames = meta.Shape[0]
			case 2:
				frames = 1
			}
		}
	}
	if depth*frames != pages {
		return 0, 0, fmt.Errorf("%w: %d pages do not match %d frames of %d planes", errTIFFStack, pages, frames, depth)
	}
	return depth, frames, nil
}

// Reads all pages of a grayscale TIFF stack. Frames go to the third axis, z planes per
// frame to the third and frames to the fourth axis, like a FITS cube
func (f *Image) readTIFFStack(data []byte, pages []tiffPage, bo binary.ByteOrder) error {
	width, height := pages[0].width, pages[0].height
	depth, frames, err := stackLayout(pages[0].description, len(pages))
	if err != nil {
		return err
	}
	size := width * height
	f.Data = make([]float32, size*len(pages))
	for i := range pages {
		if pages[i].width != width || pages[i].height != height {
			return fmt.Errorf("%w: page %d is %dx%d, want %dx%d", errTIFFStack, i,
				pages[i].width, pages[i].height, width, height)
		}
		if err := pages[i].decode(data, bo, f.Data[i*size:(i+1)*size]); err != nil {
			return fmt.Errorf("page %d: %w", i, err)
		}
	}

	f.Bitpix = int32(pages[0].bitsPerSample)
	if pages[0].sampleFormat == 3 {
		f.Bitpix = -f.Bitpix
	}
	f.Bzero, f.Bscale = 0, 1
	f.Pixels = len(f.Data)
	if depth > 1 {
		f.Naxisn = []int32{int32(width), int32(height), int32(depth), int32(frames)}
	} else {
		f.Naxisn = []int32{int32(width), int32(height), int32(frames)}
	}
	return nil
}
