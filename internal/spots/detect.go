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

// Package spots detects bright blobs in each frame of a projected time series
// and derives the background annulus around them.
package spots

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/pbnjay/memory"
	"github.com/spotlight-imaging/spotlight/internal/filter"
	"github.com/spotlight-imaging/spotlight/internal/label"
	"github.com/spotlight-imaging/spotlight/internal/stats"
	"github.com/spotlight-imaging/spotlight/internal/volume"
)

// Per-frame detection statistics
type FrameStats struct {
	Frame         int     `json:"frame"`
	Mu            float64 `json:"mu"`            // fitted mean of the enhanced frame
	Sigma         float64 `json:"sigma"`         // fitted standard deviation of the enhanced frame
	Threshold     float64 `json:"threshold"`     // mu + sigma threshold * sigma
	Degenerate    bool    `json:"degenerate"`    // zero or non-finite sigma, no spots
	Candidates    int     `json:"candidates"`    // pixels above threshold
	Components    int     `json:"components"`    // connected components above threshold
	Kept          int     `json:"kept"`          // components passing the size filter
	SpotPixels    int     `json:"spotPixels"`    // pixels in kept components
	RingPixels    int     `json:"ringPixels"`    // pixels in the background annulus
	FalsePositive float64 `json:"falsePositive"` // expected fraction of pure noise pixels above threshold
}

func (fs *FrameStats) String() string {
	if fs.Degenerate {
		return fmt.Sprintf("degenerate frame, mu %.4g sigma %.4g, no spots", fs.Mu, fs.Sigma)
	}
	return fmt.Sprintf("mu %.4g sigma %.4g threshold %.4g, %d candidates, %d/%d components kept, %d spot and %d ring pixels",
		fs.Mu, fs.Sigma, fs.Threshold, fs.Candidates, fs.Kept, fs.Components, fs.SpotPixels, fs.RingPixels)
}

// Result of a detection run over a volume. All per-pixel slices are frame-major like the volume
type Result struct {
	Frames, Height, Width int
	Spots                 []bool       // spot mask
	Labels                []uint32     // frame-local spot labels after size filtering, 0 is background, possibly sparse
	Background            []float32    // intensity inside the background annulus, 0 elsewhere
	Ring                  []bool       // background annulus membership
	FrameStats            []FrameStats // statistics per frame
}

func (r *Result) FrameSize() int { return r.Height * r.Width }

// Returns the spot mask of frame t
func (r *Result) FrameSpots(t int) []bool {
	return r.Spots[t*r.FrameSize() : (t+1)*r.FrameSize()]
}

// Returns the labels of frame t
func (r *Result) FrameLabels(t int) []uint32 {
	return r.Labels[t*r.FrameSize() : (t+1)*r.FrameSize()]
}

// Returns the background mask of frame t
func (r *Result) FrameBackground(t int) []float32 {
	return r.Background[t*r.FrameSize() : (t+1)*r.FrameSize()]
}

// Returns the annulus membership of frame t
func (r *Result) FrameRing(t int) []bool {
	return r.Ring[t*r.FrameSize() : (t+1)*r.FrameSize()]
}

// Returns the spot mask as a float volume with 1 for spot pixels, for saving
func (r *Result) SpotVolume() *volume.Volume {
	data := make([]float32, len(r.Spots))
	for i, s := range r.Spots {
		if s {
			data[i] = 1
		}
	}
	return &volume.Volume{Frames: r.Frames, Height: r.Height, Width: r.Width, Data: data}
}

// Returns the background mask as a volume sharing the result's data
func (r *Result) BackgroundVolume() *volume.Volume {
	return &volume.Volume{Frames: r.Frames, Height: r.Height, Width: r.Width, Data: r.Background}
}

// Checks volume, parameters and configuration before any frame is processed
func Validate(vol *volume.Volume, p *Params, c *Config) error {
	if vol == nil {
		return fmt.Errorf("%w: no volume", ErrInvalidInput)
	}
	if vol.Frames < 1 {
		return fmt.Errorf("%w: volume has no frames", ErrInvalidInput)
	}
	if err := vol.Check(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	if p == nil || c == nil {
		return fmt.Errorf("%w: missing parameters or configuration", ErrParameter)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if min := c.MinExtent(); vol.Height < min || vol.Width < min {
		return fmt.Errorf("%w: frame size %dx%d is smaller than the background annulus needs (%dx%d)",
			ErrInvalidInput, vol.Width, vol.Height, min, min)
	}
	return nil
}

// Detects spots and their background annulus in every frame of the volume.
// Frames are processed independently by a bounded pool of workers, each writing only its own
// frame's region of the result. Cancelling the context stops scheduling further frames and
// returns the context error without a result. Progress is logged to log, which may be nil
func Detect(ctx context.Context, vol *volume.Volume, p *Params, c *Config, log io.Writer) (*Result, error) {
	if err := Validate(vol, p, c); err != nil {
		return nil, err
	}
	if log == nil {
		log = io.Discard
	}
	log = &syncWriter{w: log}

	fs := vol.FrameSize()
	checkMemory(vol, c, log)
	res := &Result{
		Frames:     vol.Frames,
		Height:     vol.Height,
		Width:      vol.Width,
		Spots:      make([]bool, len(vol.Data)),
		Labels:     make([]uint32, len(vol.Data)),
		Background: make([]float32, len(vol.Data)),
		Ring:       make([]bool, len(vol.Data)),
		FrameStats: make([]FrameStats, vol.Frames),
	}

	scratches := newScratchPool(fs)
	err := forEachFrame(ctx, vol.Frames, c.threads(), func(t int) {
		s := scratches.get()
		defer scratches.put(s)
		from, to := t*fs, (t+1)*fs
		out := frameOutput{
			spots:      res.Spots[from:to],
			labels:     res.Labels[from:to],
			background: res.Background[from:to],
			ring:       res.Ring[from:to],
		}
		res.FrameStats[t] = detectFrame(t, vol.Frame(t), vol.Width, p, c, s, out, log)
		fmt.Fprintf(log, "%d: %s\n", t, res.FrameStats[t].String())
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Output slices of a single frame
type frameOutput struct {
	spots      []bool
	labels     []uint32
	background []float32
	ring       []bool
}

// Detects spots in a single frame of given width. Never fails: degenerate frames produce empty masks
func detectFrame(t int, in []float32, width int, p *Params, c *Config, s *scratch, out frameOutput, log io.Writer) (fs FrameStats) {
	fs.Frame = t

	// Smooth and enhance blobs
	src := in
	if c.Median3x3 {
		filter.MedianFilter3x3(s.median, in, width)
		src = s.median
	}
	filter.GaussFilter2D(s.smooth, s.tmp, src, width, c.SmoothSigma, c.Truncate)
	filter.NegLaplace(s.enhanced, s.smooth, width)

	// Fit noise and threshold
	n, err := stats.Fit(s.enhanced, c.FitMode, c.HistogramBins)
	if err != nil {
		fmt.Fprintf(log, "%d: %s fit failed (%s), using maximum likelihood\n", t, c.FitMode, err.Error())
		n, _ = stats.Fit(s.enhanced, stats.FitMLE, 0)
	}
	fs.Mu, fs.Sigma = n.Mu, n.Sigma
	if n.IsDegenerate() {
		fs.Degenerate = true
		fs.Threshold = math.NaN()
		fs.FalsePositive = math.NaN()
		clearFrame(out)
		return fs
	}
	fs.Threshold = n.Threshold(float64(p.Sigma))
	fs.FalsePositive = stats.FalsePositiveFraction(float64(p.Sigma))
	thresh := fs.Threshold
	for i, e := range s.enhanced {
		above := float64(e) > thresh
		s.mask[i] = above
		if above {
			fs.Candidates++
		}
	}

	// Label and filter components
	numLabels := label.Label(out.labels, s.mask, width, c.Connectivity)
	fs.Components = int(numLabels)
	fs.Kept = label.RemoveSmall(out.labels, numLabels, p.MinSize)

	// Background annulus between inner and outer expansion
	label.Expand(s.outer, out.labels, width, c.OuterRadius)
	label.Expand(s.inner, out.labels, width, c.InnerRadius)
	for i, l := range out.labels {
		isSpot := l != 0
		out.spots[i] = isSpot
		if isSpot {
			fs.SpotPixels++
		}
		isRing := s.outer[i] != 0 && s.inner[i] == 0
		out.ring[i] = isRing
		if isRing {
			out.background[i] = in[i]
			fs.RingPixels++
		} else {
			out.background[i] = 0
		}
	}
	return fs
}

func clearFrame(out frameOutput) {
	for i := range out.spots {
		out.spots[i] = false
		out.labels[i] = 0
		out.background[i] = 0
		out.ring[i] = false
	}
}

// Logs a warning if the result buffers exceed the usual share of physical memory
func checkMemory(vol *volume.Volume, c *Config, log io.Writer) {
	totalMB := int64(memory.TotalMemory() / 1024 / 1024)
	if totalMB <= 0 {
		return
	}
	// spots, labels, background, ring, plus per-worker scratch of roughly eight float frames
	perPixel := int64(1 + 4 + 4 + 1)
	needMB := (int64(len(vol.Data))*perPixel + int64(c.threads())*int64(vol.FrameSize())*32) / 1024 / 1024
	if budgetMB := totalMB * 7 / 10; needMB > budgetMB {
		fmt.Fprintf(log, "Warning: detection needs about %d MB, more than %d MB of %d MB physical memory\n",
			needMB, budgetMB, totalMB)
	}
}

// Serializes writes of concurrent frame workers
type syncWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

func (sw *syncWriter) Write(p []byte) (int, error) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return sw.w.Write(p)
}
