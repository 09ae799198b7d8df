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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	nl "github.com/spotlight-imaging/spotlight/internal"
	"github.com/spotlight-imaging/spotlight/internal/export"
	"github.com/spotlight-imaging/spotlight/internal/fits"
	"github.com/spotlight-imaging/spotlight/internal/render"
	"github.com/spotlight-imaging/spotlight/internal/rest"
	"github.com/spotlight-imaging/spotlight/internal/series"
	"github.com/spotlight-imaging/spotlight/internal/spots"
	"github.com/spotlight-imaging/spotlight/internal/stats"
	"github.com/spotlight-imaging/spotlight/internal/synth"
	"github.com/spotlight-imaging/spotlight/internal/volume"
)

const version = "0.3.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "spots.xlsx", "save intensity series to comma-separated `files`, format by suffix .csv, .xlsx, .html or .png")
var log = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of the first output file with .log")
var masks = flag.String("masks", "", "save spot mask as FITS cube to `file`")
var back = flag.String("back", "", "save background annulus intensities as FITS cube to `file`")
var preview = flag.String("preview", "", "save per-frame previews with given filename pattern, e.g. `prev%04d.png`; .tif saves 16-bit frames")
var previewScale = flag.Int("previewScale", 4, "upscale previews by this integer factor")

var configFile = flag.String("config", "", "load detector configuration from JSON `file`; explicit flags override it")

var sigma = flag.Float64("sigma", 3, "threshold in standard deviations above the mean of the enhanced frame")
var minSize = flag.Int("minSize", 5, "minimum number of connected pixels per spot, 0 or 1 keeps all")

var smoothSigma = flag.Float64("smoothSigma", 1, "Gaussian smoothing sigma in pixels")
var truncate = flag.Float64("truncate", 4, "Gaussian kernel radius in multiples of sigma")
var innerRadius = flag.Int("innerRadius", 2, "radius of the excluded halo around spots")
var outerRadius = flag.Int("outerRadius", 4, "outer radius of the background annulus")
var connectivity = flag.Int("connectivity", 8, "pixel connectivity for spot labeling, 4 or 8")
var fitMode = flag.String("fitMode", "mle", "noise fit of the enhanced frame, one of mle, histogram, median")
var histogramBins = flag.Int("histogramBins", 1024, "number of bins for the histogram fit")
var median3x3 = flag.Bool("median3x3", false, "apply a 3x3 median filter before smoothing to suppress hot pixels")
var maxThreads = flag.Int("maxThreads", 0, "number of frames processed in parallel, 0=number of CPUs")

var synFrames = flag.Int("synFrames", 20, "synth: number of frames")
var synSize = flag.Int("synSize", 128, "synth: frame width and height in pixels")
var synSpots = flag.Int("synSpots", 8, "synth: number of spots")
var synNoise = flag.Float64("synNoise", 5, "synth: standard deviation of the read noise")
var synSeed = flag.Uint("synSeed", 1, "synth: random seed")

var addr = flag.String("addr", ":8080", "serve: listen address")
var chroot = flag.String("chroot", "", "serve: change filesystem root to `dir` before serving (requires root)")
var setuid = flag.Int("setuid", -1, "serve: change user id after chroot, -1=keep")

func main() {
	logWriter := nl.LogWriter()
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Spotlight Copyright (c) 2024 The Spotlight Authors
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (detect|stats|synth|serve|legal|version) (img0.fits ... imgn.fits)

Commands:
  detect  Detect spots in the time series and export spot and background intensities
  stats   Show per-frame detection statistics only
  synth   Write a synthetic time series with Gaussian spots to the given FITS file
  serve   Serve the web interface and REST API
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}
	outFiles := splitList(*out)

	// Initialize logging to file in addition to stdout, if selected
	if *log == "%auto" {
		*log = ""
		if args[0] == "detect" && len(outFiles) > 0 {
			*log = strings.TrimSuffix(outFiles[0], filepath.Ext(outFiles[0])) + ".log"
		}
	}
	if *log != "" {
		if err := nl.LogAlsoToFile(*log); err != nil {
			nl.LogFatalf("Unable to open logfile '%s': %s\n", *log, err)
		}
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			nl.LogFatalf("Could not create CPU profile: %s\n", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			nl.LogFatalf("Could not start CPU profile: %s\n", err)
		}
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch args[0] {
	case "detect", "stats":
		fmt.Fprintf(logWriter, "%s with %d physical cores, %d logical cores, %d MiB memory\n",
			cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, memory.TotalMemory()/1024/1024)
		err = cmdDetect(ctx, args[0] == "stats", args[1:], outFiles, logWriter)
	case "synth":
		err = cmdSynth(args[1:], logWriter)
	case "serve":
		if err = rest.MakeSandbox(*chroot, *setuid, logWriter); err == nil {
			err = rest.Serve(*addr, logWriter)
		}
	case "legal":
		fmt.Fprint(logWriter, legal)
	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)
	case "help", "?":
		flag.Usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	if args[0] == "detect" || args[0] == "stats" || args[0] == "synth" {
		fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))
	}

	// Store memory profile if flagged
	if *memprofile != "" {
		f, perr := os.Create(*memprofile)
		if perr != nil {
			nl.LogFatalf("Could not create memory profile: %s\n", perr)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if perr := pprof.Lookup("allocs").WriteTo(f, 0); perr != nil {
			nl.LogFatalf("Could not write allocation profile: %s\n", perr)
		}
	}
	if err != nil {
		pprof.StopCPUProfile()
		nl.LogFatalf("Error: %s\n", err)
	}
	nl.LogClose()
}

// Runs detection on the given files. With statsOnly, only per-frame statistics are reported
func cmdDetect(ctx context.Context, statsOnly bool, patterns []string, outFiles []string, logWriter io.Writer) error {
	p, c, err := detectorSettings()
	if err != nil {
		return err
	}
	fileNames, err := fits.GlobFilenameWildcards(patterns)
	if err != nil {
		return err
	}
	if len(fileNames) == 0 {
		return errors.New("no input files")
	}
	vol, err := fits.LoadVolume(fileNames, logWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(logWriter, "\nDetecting spots in %s with sigma %g minSize %d, %s fit, radii %d/%d, connectivity %d:\n",
		vol.DimensionsToString(), p.Sigma, p.MinSize, c.FitMode, c.InnerRadius, c.OuterRadius, c.Connectivity)
	res, err := spots.Detect(ctx, vol, p, c, logWriter)
	if err != nil {
		return err
	}
	s, err := series.Aggregate(vol, res)
	if err != nil {
		return err
	}
	spotMean, backMean := s.Means()
	fmt.Fprintf(logWriter, "\n%d frames, %d without spots, mean spot intensity %.6g, mean background %.6g\n",
		s.Len(), s.NumNaN(), spotMean, backMean)
	if statsOnly {
		return nil
	}

	title := strings.Join(patterns, " ")
	if err := export.WriteFiles(outFiles, s, title, logWriter); err != nil {
		return err
	}
	history := fmt.Sprintf("spotlight sigma=%g minSize=%d", p.Sigma, p.MinSize)
	if *masks != "" {
		if err := fits.WriteVolume(*masks, res.SpotVolume(), history); err != nil {
			return err
		}
		fmt.Fprintf(logWriter, "Wrote spot mask to %s\n", *masks)
	}
	if *back != "" {
		if err := fits.WriteVolume(*back, res.BackgroundVolume(), history); err != nil {
			return err
		}
		fmt.Fprintf(logWriter, "Wrote background annulus to %s\n", *back)
	}
	if *preview != "" {
		o := render.NewOptionsDefault()
		o.Scale = *previewScale
		if err := render.WritePreviews(*preview, vol, res, o, logWriter); err != nil {
			return err
		}
	}
	return nil
}

// Builds detector parameters and configuration from the optional config file and the flags.
// Flags given on the command line override the config file
func detectorSettings() (*spots.Params, *spots.Config, error) {
	c := spots.NewConfigDefault()
	if *configFile != "" {
		var err error
		if c, err = spots.LoadConfig(*configFile); err != nil {
			return nil, nil, err
		}
	}
	p := spots.NewParamsDefault()
	p.Sigma, p.MinSize = float32(*sigma), *minSize

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "smoothSigma":
			c.SmoothSigma = float32(*smoothSigma)
		case "truncate":
			c.Truncate = float32(*truncate)
		case "innerRadius":
			c.InnerRadius = *innerRadius
		case "outerRadius":
			c.OuterRadius = *outerRadius
		case "connectivity":
			c.Connectivity = *connectivity
		case "fitMode":
			c.FitMode = stats.FitMode(*fitMode)
		case "histogramBins":
			c.HistogramBins = *histogramBins
		case "median3x3":
			c.Median3x3 = *median3x3
		case "maxThreads":
			c.MaxThreads = *maxThreads
		}
	})
	return p, c, nil
}

// Writes a synthetic time series with randomly placed spots of varying amplitude
func cmdSynth(args []string, logWriter io.Writer) error {
	if len(args) != 1 {
		return errors.New("synth needs exactly one output file name")
	}
	o := synth.NewOptionsDefault()
	o.Frames, o.Height, o.Width = *synFrames, *synSize, *synSize
	o.Noise, o.Seed = float32(*synNoise), uint32(*synSeed)
	o.Spots = synth.RandomSpots(*synSpots, o.Height, o.Width, 8, 1.5, 10*o.Noise, o.Seed)
	for i := range o.Spots {
		amps := make([]float32, o.Frames)
		for t := range amps {
			// slow rise and decay per spot, phase shifted by index
			phase := float64(t+3*i) / float64(o.Frames)
			amps[t] = o.Spots[i].Amplitude * float32(0.5+0.5*(1-2*triangle(phase)))
		}
		o.Spots[i].Amplitudes = amps
	}

	vol, err := synth.Generate(o)
	if err != nil {
		return err
	}
	min, mean, max := volume.MinMeanMax(vol.Data)
	history := fmt.Sprintf("spotlight synth seed=%d spots=%d noise=%g", o.Seed, len(o.Spots), o.Noise)
	if err := fits.WriteVolume(args[0], vol, history); err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "Wrote %s with %d spots to %s, min %.4g mean %.4g max %.4g\n",
		vol.DimensionsToString(), len(o.Spots), args[0], min, mean, max)
	return nil
}

// Triangle wave with period 1, rising from 0 to 1 and back
func triangle(x float64) float64 {
	f := x - float64(int(x))
	if f > 0.5 {
		return 2 * (1 - f)
	}
	return 2 * f
}

func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}
