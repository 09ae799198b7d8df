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

package volume

import (
	"errors"
	"fmt"
	"math"
)

// A time series of 2D intensity frames, typically maximum intensity projections.
// Data is stored frame-major, and row-major within each frame.
type Volume struct {
	Frames int       // Number of time frames
	Height int       // Frame height in pixels
	Width  int       // Frame width in pixels
	Data   []float32 // Frames*Height*Width intensity values
}

var ErrShape = errors.New("volume shape mismatch")

// Creates a volume of given dimensions. Data is allocated if nil, and must otherwise match the dimensions
func New(frames, height, width int, data []float32) (*Volume, error) {
	if frames < 0 || height < 0 || width < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%dx%d", ErrShape, frames, height, width)
	}
	size := frames * height * width
	if data == nil {
		data = make([]float32, size)
	} else if len(data) != size {
		return nil, fmt.Errorf("%w: %d values for %dx%dx%d", ErrShape, len(data), frames, height, width)
	}
	return &Volume{Frames: frames, Height: height, Width: width, Data: data}, nil
}

// Creates a volume from a list of frames given as rows of pixel values. Used mostly for tests
func FromRows(frames ...[][]float32) (*Volume, error) {
	if len(frames) == 0 {
		return New(0, 0, 0, nil)
	}
	height := len(frames[0])
	width := 0
	if height > 0 {
		width = len(frames[0][0])
	}
	v, err := New(len(frames), height, width, nil)
	if err != nil {
		return nil, err
	}
	for t, rows := range frames {
		if len(rows) != height {
			return nil, fmt.Errorf("%w: frame %d has %d rows, want %d", ErrShape, t, len(rows), height)
		}
		frame := v.Frame(t)
		for y, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("%w: frame %d row %d has %d columns, want %d", ErrShape, t, y, len(row), width)
			}
			copy(frame[y*width:(y+1)*width], row)
		}
	}
	return v, nil
}

// Number of pixels per frame
func (v *Volume) FrameSize() int {
	return v.Height * v.Width
}

// Returns the pixels of frame t. The slice aliases the volume data
func (v *Volume) Frame(t int) []float32 {
	size := v.FrameSize()
	return v.Data[t*size : (t+1)*size]
}

// Returns the intensity at frame t, row y and column x
func (v *Volume) At(t, y, x int) float32 {
	return v.Data[t*v.FrameSize()+y*v.Width+x]
}

// Sets the intensity at frame t, row y and column x
func (v *Volume) Set(t, y, x int, value float32) {
	v.Data[t*v.FrameSize()+y*v.Width+x] = value
}

// Checks dimensions and data length for consistency
func (v *Volume) Check() error {
	if v == nil {
		return fmt.Errorf("%w: nil volume", ErrShape)
	}
	if v.Frames < 0 || v.Height < 0 || v.Width < 0 {
		return fmt.Errorf("%w: negative dimensions %s", ErrShape, v.DimensionsToString())
	}
	if len(v.Data) != v.Frames*v.Height*v.Width {
		return fmt.Errorf("%w: %d values for %s", ErrShape, len(v.Data), v.DimensionsToString())
	}
	return nil
}

// Returns the dimensions as frames x height x width
func (v *Volume) DimensionsToString() string {
	return fmt.Sprintf("%dx%dx%d", v.Frames, v.Height, v.Width)
}

// Returns a new volume with the given frame range [from, to). Data is copied
func (v *Volume) Slice(from, to int) (*Volume, error) {
	if from < 0 || to > v.Frames || from > to {
		return nil, fmt.Errorf("%w: frame range [%d,%d) outside 0..%d", ErrShape, from, to, v.Frames)
	}
	size := v.FrameSize()
	data := make([]float32, (to-from)*size)
	copy(data, v.Data[from*size:to*size])
	return &Volume{Frames: to - from, Height: v.Height, Width: v.Width, Data: data}, nil
}

// Concatenates volumes along the frame axis. All volumes must share height and width
func Concat(vs ...*Volume) (*Volume, error) {
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrShape)
	}
	for i, v := range vs {
		if err := v.Check(); err != nil {
			return nil, fmt.Errorf("volume %d: %w", i, err)
		}
	}
	height, width, frames := vs[0].Height, vs[0].Width, 0
	for i, v := range vs {
		if v.Height != height || v.Width != width {
			return nil, fmt.Errorf("%w: volume %d is %s, want frames of %dx%d", ErrShape, i, v.DimensionsToString(), height, width)
		}
		frames += v.Frames
	}
	data := make([]float32, 0, frames*height*width)
	for _, v := range vs {
		data = append(data, v.Data...)
	}
	return &Volume{Frames: frames, Height: height, Width: width, Data: data}, nil
}

// Projects a stack of depth planes onto a single frame by taking the per-pixel maximum.
// Planes are given back to back in data, each of height*width pixels
func MaxProjection(data []float32, depth, height, width int) []float32 {
	size := height * width
	res := make([]float32, size)
	for i := range res {
		res[i] = float32(math.Inf(-1))
	}
	for z := 0; z < depth; z++ {
		plane := data[z*size : (z+1)*size]
		for i, v := range plane {
			if v > res[i] {
				res[i] = v
			}
		}
	}
	return res
}

// Returns minimum, mean and maximum of the given frame
func MinMeanMax(frame []float32) (min, mean, max float32) {
	if len(frame) == 0 {
		nan := float32(math.NaN())
		return nan, nan, nan
	}
	min, max = frame[0], frame[0]
	sum := float64(0)
	for _, v := range frame {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += float64(v)
	}
	return min, float32(sum / float64(len(frame))), max
}
