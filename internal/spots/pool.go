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

package spots

import (
	"context"
	"sync"
)

// Applies fun to frame indices 0..frames-1 with at most maxThreads goroutines in parallel.
// The context is checked before each frame is started. Waits for all started frames to finish,
// and returns the context error if scheduling was cut short
func forEachFrame(ctx context.Context, frames, maxThreads int, fun func(t int)) error {
	if maxThreads < 1 {
		maxThreads = 1
	}
	limiter := make(chan bool, maxThreads)
	var err error
	for t := 0; t < frames; t++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case limiter <- true:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			break
		}
		go func(t int) {
			defer func() { <-limiter }()
			fun(t)
		}(t)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	return err
}

// Per-worker buffers for processing one frame
type scratch struct {
	median   []float32
	smooth   []float32
	tmp      []float32
	enhanced []float32
	mask     []bool
	inner    []uint32
	outer    []uint32
}

// A pool of frame scratch buffers, so workers do not reallocate them for each frame
type scratchPool struct {
	pool sync.Pool
}

func newScratchPool(frameSize int) *scratchPool {
	return &scratchPool{pool: sync.Pool{New: func() interface{} {
		return &scratch{
			median:   make([]float32, frameSize),
			smooth:   make([]float32, frameSize),
			tmp:      make([]float32, frameSize),
			enhanced: make([]float32, frameSize),
			mask:     make([]bool, frameSize),
			inner:    make([]uint32, frameSize),
			outer:    make([]uint32, frameSize),
		}
	}}}
}

func (sp *scratchPool) get() *scratch  { return sp.pool.Get().(*scratch) }
func (sp *scratchPool) put(s *scratch) { sp.pool.Put(s) }
