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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spotlight-imaging/spotlight/internal/stats"
	"github.com/spotlight-imaging/spotlight/internal/synth"
	"github.com/spotlight-imaging/spotlight/internal/volume"
)

func testVolume(t *testing.T, frames int) *volume.Volume {
	t.Helper()
	o := &synth.Options{
		Frames: frames, Height: 48, Width: 48, Background: 100, Noise: 5, Seed: 11,
		Spots: []synth.Spot{
			{X: 12, Y: 14, Sigma: 1.5, Amplitude: 200},
			{X: 34, Y: 30, Sigma: 2, Amplitude: 150, Amplitudes: []float32{150, 300, 80, 220}},
		},
	}
	v, err := synth.Generate(o)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func detect(t *testing.T, v *volume.Volume, sigma float32, minSize int, c *Config) *Result {
	t.Helper()
	if c == nil {
		c = NewConfigDefault()
	}
	res, err := Detect(context.Background(), v, &Params{Sigma: sigma, MinSize: minSize}, c, nil)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestValidation(t *testing.T) {
	good := synth.Block(1, 20, 20, 7, 7, 5, 100)
	small := synth.Block(1, 8, 20, 2, 2, 3, 100)
	broken := &volume.Volume{Frames: 2, Height: 20, Width: 20, Data: make([]float32, 10)}
	empty := &volume.Volume{}

	tcs := []struct {
		name   string
		vol    *volume.Volume
		params Params
		modify func(c *Config)
		want   error
	}{
		{"nil volume", nil, Params{3, 5}, nil, ErrInvalidInput},
		{"no frames", empty, Params{3, 5}, nil, ErrInvalidInput},
		{"data length", broken, Params{3, 5}, nil, ErrInvalidInput},
		{"too small for annulus", small, Params{3, 5}, nil, ErrInvalidInput},
		{"negative min size", good, Params{3, -1}, nil, ErrParameter},
		{"nan sigma", good, Params{float32(math.NaN()), 5}, nil, ErrParameter},
		{"inf sigma", good, Params{float32(math.Inf(1)), 5}, nil, ErrParameter},
		{"radii", good, Params{3, 5}, func(c *Config) { c.InnerRadius = 4 }, ErrParameter},
		{"connectivity", good, Params{3, 5}, func(c *Config) { c.Connectivity = 6 }, ErrParameter},
		{"fit mode", good, Params{3, 5}, func(c *Config) { c.FitMode = "bogus" }, ErrParameter},
		{"smooth sigma", good, Params{3, 5}, func(c *Config) { c.SmoothSigma = 0 }, ErrParameter},
		{"histogram bins", good, Params{3, 5}, func(c *Config) { c.FitMode = stats.FitHistogram; c.HistogramBins = 1 }, ErrParameter},
		{"valid", good, Params{3, 5}, nil, nil},
		{"negative sigma is valid", good, Params{-1, 0}, nil, nil},
	}
	for _, tc := range tcs {
		c := NewConfigDefault()
		if tc.modify != nil {
			tc.modify(c)
		}
		res, err := Detect(context.Background(), tc.vol, &tc.params, c, nil)
		if tc.want == nil {
			if err != nil {
				t.Errorf("%s: got error %v; want none", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got error %v; want %v", tc.name, err, tc.want)
		}
		if res != nil {
			t.Errorf("%s: got result despite error", tc.name)
		}
	}
}

func TestResultShapeAndDisjointMasks(t *testing.T) {
	v := testVolume(t, 4)
	res := detect(t, v, 3, 3, nil)
	if res.Frames != v.Frames || len(res.Spots) != len(v.Data) || len(res.Background) != len(v.Data) ||
		len(res.Ring) != len(v.Data) || len(res.Labels) != len(v.Data) || len(res.FrameStats) != v.Frames {
		t.Fatalf("result shape does not match volume %s", v.DimensionsToString())
	}
	for i := range res.Spots {
		if res.Spots[i] && res.Ring[i] {
			t.Fatalf("pixel %d is both spot and annulus", i)
		}
		if res.Spots[i] != (res.Labels[i] != 0) {
			t.Fatalf("pixel %d: spot mask and labels disagree", i)
		}
		if !res.Ring[i] && res.Background[i] != 0 {
			t.Fatalf("pixel %d: background value outside annulus", i)
		}
		if res.Ring[i] && res.Background[i] != v.Data[i] {
			t.Fatalf("pixel %d: background %f; want intensity %f", i, res.Background[i], v.Data[i])
		}
	}
	for tt := 0; tt < v.Frames; tt++ {
		fs := res.FrameStats[tt]
		if fs.Frame != tt || fs.SpotPixels == 0 || fs.RingPixels == 0 {
			t.Errorf("frame %d: unexpected stats %s", tt, fs.String())
		}
		// both synthetic spot centers are found
		if !res.FrameSpots(tt)[14*v.Width+12] || !res.FrameSpots(tt)[30*v.Width+34] {
			t.Errorf("frame %d: spot centers not detected", tt)
		}
	}
}

func TestIdempotent(t *testing.T) {
	v := testVolume(t, 3)
	a := detect(t, v, 2.5, 4, nil)
	c := NewConfigDefault()
	c.MaxThreads = 1
	b := detect(t, v, 2.5, 4, c)
	for i := range a.Spots {
		if a.Spots[i] != b.Spots[i] || a.Labels[i] != b.Labels[i] || a.Background[i] != b.Background[i] || a.Ring[i] != b.Ring[i] {
			t.Fatalf("pixel %d differs between runs", i)
		}
	}
}

func TestMonotoneInSigma(t *testing.T) {
	v := testVolume(t, 3)
	prev := detect(t, v, 1, 3, nil)
	for _, sigma := range []float32{2, 3, 5, 8} {
		res := detect(t, v, sigma, 3, nil)
		for i := range res.Spots {
			if res.Spots[i] && !prev.Spots[i] {
				t.Fatalf("sigma %f: pixel %d is a spot, but not at lower sigma", sigma, i)
			}
		}
		prev = res
	}
}

func TestMonotoneInMinSize(t *testing.T) {
	v := testVolume(t, 3)
	prev := detect(t, v, 2, 0, nil)
	for _, minSize := range []int{1, 2, 5, 10, 40, 1000} {
		res := detect(t, v, 2, minSize, nil)
		for i := range res.Spots {
			if res.Spots[i] && !prev.Spots[i] {
				t.Fatalf("minSize %d: pixel %d is a spot, but not at lower minSize", minSize, i)
			}
		}
		prev = res
	}
	for i, s := range prev.Spots {
		if s {
			t.Fatalf("minSize 1000: pixel %d is still a spot", i)
		}
	}
}

func TestMinSizeZeroKeepsAllComponents(t *testing.T) {
	v := testVolume(t, 2)
	for _, minSize := range []int{0, 1} {
		res := detect(t, v, 2, minSize, nil)
		for _, fs := range res.FrameStats {
			if fs.SpotPixels != fs.Candidates || fs.Kept != fs.Components {
				t.Errorf("minSize %d frame %d: %d of %d candidates kept, %d of %d components",
					minSize, fs.Frame, fs.SpotPixels, fs.Candidates, fs.Kept, fs.Components)
			}
		}
	}
}

func TestUniformFrame(t *testing.T) {
	v, _ := volume.New(2, 16, 16, nil)
	for i := range v.Data {
		v.Data[i] = 7.25
	}
	for _, mode := range []stats.FitMode{stats.FitMLE, stats.FitHistogram, stats.FitMedian} {
		c := NewConfigDefault()
		c.FitMode = mode
		res := detect(t, v, 0.5, 0, c)
		for i := range res.Spots {
			if res.Spots[i] || res.Ring[i] {
				t.Fatalf("mode %s: uniform frame has spot or annulus at %d", mode, i)
			}
		}
		if !res.FrameStats[0].Degenerate {
			t.Errorf("mode %s: uniform frame not flagged degenerate", mode)
		}
	}
}

func TestFrameIndependence(t *testing.T) {
	a := testVolume(t, 3)
	b := synth.Block(2, 48, 48, 20, 20, 6, 50)
	both, err := volume.Concat(a, b)
	if err != nil {
		t.Fatal(err)
	}
	resA := detect(t, a, 2, 3, nil)
	resB := detect(t, b, 2, 3, nil)
	resBoth := detect(t, both, 2, 3, nil)

	n := len(a.Data)
	for i := range resBoth.Spots {
		var spot, ring bool
		var lbl uint32
		var back float32
		if i < n {
			spot, ring, lbl, back = resA.Spots[i], resA.Ring[i], resA.Labels[i], resA.Background[i]
		} else {
			j := i - n
			spot, ring, lbl, back = resB.Spots[j], resB.Ring[j], resB.Labels[j], resB.Background[j]
		}
		if resBoth.Spots[i] != spot || resBoth.Ring[i] != ring || resBoth.Labels[i] != lbl || resBoth.Background[i] != back {
			t.Fatalf("pixel %d differs between joint and separate detection", i)
		}
	}
}

func TestConnectivity(t *testing.T) {
	// two blocks touching only diagonally, separated from the rest
	v := synth.Block(1, 24, 24, 6, 6, 4, 100)
	for y := 10; y < 14; y++ {
		for x := 10; x < 14; x++ {
			v.Set(0, y, x, 100)
		}
	}
	c := NewConfigDefault()
	c.Connectivity = 4
	res4 := detect(t, v, 1, 0, c)
	res8 := detect(t, v, 1, 0, nil)
	if got := res4.FrameStats[0].Components; got != 2 {
		t.Errorf("4-connectivity found %d components; want 2", got)
	}
	if got := res8.FrameStats[0].Components; got != 1 {
		t.Errorf("8-connectivity found %d components; want 1", got)
	}
}

func TestMedianPrefilterRemovesHotPixel(t *testing.T) {
	v, _ := volume.New(1, 24, 24, nil)
	for i := range v.Data {
		v.Data[i] = float32(i % 5)
	}
	v.Set(0, 12, 12, 10000)
	c := NewConfigDefault()
	c.Median3x3 = true
	res := detect(t, v, 3, 0, c)
	if res.FrameSpots(0)[12*24+12] {
		t.Errorf("hot pixel detected as spot despite median prefilter")
	}
	plain := detect(t, v, 3, 0, nil)
	if !plain.FrameSpots(0)[12*24+12] {
		t.Errorf("hot pixel not detected without median prefilter")
	}
}

func TestCancellation(t *testing.T) {
	v := testVolume(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Detect(ctx, v, NewParamsDefault(), NewConfigDefault(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v; want %v", err, context.Canceled)
	}
	if res != nil {
		t.Errorf("got partial result after cancellation")
	}
}

func TestForEachFrame(t *testing.T) {
	var count int32
	seen := make([]int32, 100)
	err := forEachFrame(context.Background(), len(seen), 3, func(frame int) {
		atomic.AddInt32(&count, 1)
		atomic.AddInt32(&seen[frame], 1)
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 100 {
		t.Errorf("ran %d frames; want 100", count)
	}
	for i, s := range seen {
		if s != 1 {
			t.Errorf("frame %d ran %d times", i, s)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	count = 0
	err = forEachFrame(ctx, 100, 1, func(frame int) {
		if atomic.AddInt32(&count, 1) == 5 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v; want %v", err, context.Canceled)
	}
	if c := atomic.LoadInt32(&count); c >= 100 {
		t.Errorf("all %d frames ran despite cancellation", c)
	}
}

func TestLogsPerFrame(t *testing.T) {
	v := testVolume(t, 3)
	buf := &bytes.Buffer{}
	if _, err := Detect(context.Background(), v, NewParamsDefault(), NewConfigDefault(), buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, prefix := range []string{"0: ", "1: ", "2: "} {
		if !strings.Contains(out, prefix+"mu ") {
			t.Errorf("log lacks line for frame %s\n%s", prefix, out)
		}
	}
}

func TestConfigJSONDefaults(t *testing.T) {
	c := &Config{}
	if err := json.Unmarshal([]byte(`{"outerRadius": 6, "fitMode": "median"}`), c); err != nil {
		t.Fatal(err)
	}
	if c.OuterRadius != 6 || c.FitMode != stats.FitMedian {
		t.Errorf("explicit keys not applied: %+v", c)
	}
	def := NewConfigDefault()
	if c.SmoothSigma != def.SmoothSigma || c.InnerRadius != def.InnerRadius || c.Connectivity != def.Connectivity ||
		c.Truncate != def.Truncate || c.HistogramBins != def.HistogramBins {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.MinExtent() != 13 {
		t.Errorf("min extent %d; want 13", c.MinExtent())
	}

	p := &Params{}
	if err := json.Unmarshal([]byte(`{"sigma": 2.5}`), p); err != nil {
		t.Fatal(err)
	}
	if p.Sigma != 2.5 || p.MinSize != NewParamsDefault().MinSize {
		t.Errorf("params %+v", p)
	}
}
