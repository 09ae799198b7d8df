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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"

	"github.com/spotlight-imaging/spotlight/internal/stats"
)

var (
	// The input volume is missing, empty or too small for the background annulus
	ErrInvalidInput = errors.New("invalid input")
	// A detection parameter or configuration value is out of range
	ErrParameter = errors.New("invalid parameter")
)

// Caller-supplied detection parameters
type Params struct {
	Sigma   float32 `json:"sigma"`   // threshold in standard deviations above the mean of the enhanced frame
	MinSize int     `json:"minSize"` // minimum number of connected pixels per spot
}

func NewParamsDefault() *Params {
	return &Params{Sigma: 3, MinSize: 5}
}

func (p *Params) UnmarshalJSON(data []byte) error {
	type defaults Params
	def := defaults(*NewParamsDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*p = Params(def)
	return nil
}

func (p *Params) Validate() error {
	if p.MinSize < 0 {
		return fmt.Errorf("%w: minimum spot size %d is negative", ErrParameter, p.MinSize)
	}
	if math.IsNaN(float64(p.Sigma)) || math.IsInf(float64(p.Sigma), 0) {
		return fmt.Errorf("%w: sigma threshold %f is not finite", ErrParameter, p.Sigma)
	}
	return nil
}

// Constants of the detection pipeline. The defaults reproduce the established analysis
type Config struct {
	SmoothSigma   float32       `json:"smoothSigma"`   // Gaussian smoothing sigma in pixels
	Truncate      float32       `json:"truncate"`      // Gaussian kernel radius in multiples of sigma
	InnerRadius   int           `json:"innerRadius"`   // radius of the excluded halo around spots
	OuterRadius   int           `json:"outerRadius"`   // outer radius of the background annulus
	Connectivity  int           `json:"connectivity"`  // 4 or 8
	FitMode       stats.FitMode `json:"fitMode"`       // noise fit of the enhanced frame
	HistogramBins int           `json:"histogramBins"` // bins for the histogram fit mode
	Median3x3     bool          `json:"median3x3"`     // apply a 3x3 median filter before smoothing
	MaxThreads    int           `json:"maxThreads"`    // worker pool size, <=0 for GOMAXPROCS
}

func NewConfigDefault() *Config {
	return &Config{
		SmoothSigma:   1,
		Truncate:      4,
		InnerRadius:   2,
		OuterRadius:   4,
		Connectivity:  8,
		FitMode:       stats.FitMLE,
		HistogramBins: 1024,
		Median3x3:     false,
		MaxThreads:    runtime.GOMAXPROCS(0),
	}
}

func (c *Config) UnmarshalJSON(data []byte) error {
	type defaults Config
	def := defaults(*NewConfigDefault())
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	*c = Config(def)
	return nil
}

// Loads a configuration from a JSON file. Missing keys keep their defaults
func LoadConfig(fileName string) (*Config, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	c := NewConfigDefault()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if !(c.SmoothSigma > 0) || math.IsInf(float64(c.SmoothSigma), 0) {
		return fmt.Errorf("%w: smoothing sigma %f must be positive", ErrParameter, c.SmoothSigma)
	}
	if !(c.Truncate > 0) || math.IsInf(float64(c.Truncate), 0) {
		return fmt.Errorf("%w: kernel truncation %f must be positive", ErrParameter, c.Truncate)
	}
	if c.InnerRadius <= 0 || c.OuterRadius <= c.InnerRadius {
		return fmt.Errorf("%w: radii must satisfy 0 < inner (%d) < outer (%d)", ErrParameter, c.InnerRadius, c.OuterRadius)
	}
	if c.Connectivity != 4 && c.Connectivity != 8 {
		return fmt.Errorf("%w: connectivity %d is neither 4 nor 8", ErrParameter, c.Connectivity)
	}
	if !c.FitMode.Valid() {
		return fmt.Errorf("%w: unknown fit mode '%s'", ErrParameter, c.FitMode)
	}
	if c.FitMode == stats.FitHistogram && c.HistogramBins < 3 {
		return fmt.Errorf("%w: histogram fit needs at least 3 bins, have %d", ErrParameter, c.HistogramBins)
	}
	return nil
}

// Returns the effective worker pool size
func (c *Config) threads() int {
	if c.MaxThreads <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.MaxThreads
}

// Returns the minimal frame height and width for the background annulus
func (c *Config) MinExtent() int {
	return 2*c.OuterRadius + 1
}
