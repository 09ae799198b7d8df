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

package stats

import (
	"math"
	"testing"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestMedian(t *testing.T) {
	rng := fastrand.RNG{}
	rng.Seed(42)
	for i := 1; i < 1000; i++ {
		// prepare array of given length with a random permutation of 1..n
		arr := make([]float32, i)
		for j := 0; j < len(arr); j++ {
			arr[j] = float32(j + 1)
		}
		for j := 0; j < len(arr); j++ {
			k := rng.Uint32n(uint32(len(arr)))
			arr[j], arr[k] = arr[k], arr[j]
		}

		// calculate expected result
		var expect float32
		if (i & 1) != 0 {
			expect = float32((i + 1) / 2)
		} else {
			expect = 0.5 * (float32(i/2) + float32(i/2+1))
		}

		// calculate actual result and compare
		res := QSelectMedianFloat32(arr)
		if res != expect {
			t.Errorf("median(1..%d) got %f expect %f", i, res, expect)
		}
	}
}

func TestQSelectFloat32(t *testing.T) {
	arr := []float32{5, 3, 9, 1, 7, 3, 8}
	for k, want := range []float32{1, 3, 3, 5, 7, 8, 9} {
		tmp := append([]float32(nil), arr...)
		if got := QSelectFloat32(tmp, k+1); got != want {
			t.Errorf("k=%d got %f want %f", k+1, got, want)
		}
	}
}

func TestFitModes(t *testing.T) {
	data := []float32{1, 2, 3, 4}
	mle, err := Fit(data, FitMLE, 0)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(mle.Mu-2.5) > 1e-12 || math.Abs(mle.Sigma-math.Sqrt(1.25)) > 1e-12 {
		t.Errorf("mle got %v", mle)
	}

	med, err := Fit(data, FitMedian, 0)
	if err != nil {
		t.Fatal(err)
	}
	if med.Mu != 2.5 || math.Abs(med.Sigma-1.4826) > 1e-5 {
		t.Errorf("median got %v", med)
	}

	if _, err := Fit(data, FitMode("bogus"), 0); err == nil {
		t.Errorf("expected error for unknown fit mode")
	}
	if _, err := FitNormalToHistogram(data, 2); err == nil {
		t.Errorf("expected error for too few bins")
	}
}

func TestFitUniformIsDegenerate(t *testing.T) {
	data := make([]float32, 100)
	for i := range data {
		data[i] = 0.1
	}
	for _, mode := range []FitMode{FitMLE, FitHistogram, FitMedian} {
		n, err := Fit(data, mode, 64)
		if err != nil {
			t.Fatal(err)
		}
		if n.Sigma != 0 || !n.IsDegenerate() {
			t.Errorf("mode %s: got %v, want sigma 0", mode, n)
		}
	}
	n, _ := Fit(nil, FitMLE, 0)
	if !math.IsNaN(n.Mu) || !n.IsDegenerate() {
		t.Errorf("empty: got %v", n)
	}
}

func TestFitNormalToHistogram(t *testing.T) {
	// deterministic sample following the quantiles of N(10, 2)
	dist := distuv.Normal{Mu: 10, Sigma: 2}
	n := 20000
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(dist.Quantile((float64(i) + 0.5) / float64(n)))
	}
	fit, err := Fit(data, FitHistogram, 101)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(fit.Mu-10) > 0.2 || math.Abs(fit.Sigma-2) > 0.2 {
		t.Errorf("got %v, want mu 10 sigma 2", fit)
	}
	mle := FitMaximumLikelihood(data)
	if math.Abs(mle.Mu-10) > 1e-3 || math.Abs(mle.Sigma-2) > 0.05 {
		t.Errorf("mle got %v, want mu 10 sigma 2", mle)
	}
}

func TestHistogramAndPeak(t *testing.T) {
	data := []float32{0, 1, 1, 1, 2, 3, 4}
	bins := make([]int32, 5)
	Histogram(data, 0, 4, bins)
	want := []int32{1, 3, 1, 1, 1}
	for i := range bins {
		if bins[i] != want[i] {
			t.Errorf("bins[%d]=%d want %d", i, bins[i], want[i])
		}
	}
	x, y := GetPeak(bins, 0, 4)
	if y != 3 || math.Abs(x-1.5) > 1e-9 {
		t.Errorf("peak at %f value %f; want 1.5 3", x, y)
	}
}

func TestFalsePositiveFraction(t *testing.T) {
	if got := FalsePositiveFraction(0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("k=0 got %f", got)
	}
	if got := FalsePositiveFraction(3); math.Abs(got-0.0013499) > 1e-6 {
		t.Errorf("k=3 got %f", got)
	}
}

func TestThreshold(t *testing.T) {
	n := Normal{Mu: 1, Sigma: 2}
	if n.Threshold(3) != 7 {
		t.Errorf("got %f", n.Threshold(3))
	}
	if n.IsDegenerate() {
		t.Errorf("%v is not degenerate", n)
	}
	if !(Normal{Mu: 0, Sigma: math.Inf(1)}).IsDegenerate() {
		t.Errorf("infinite sigma should be degenerate")
	}
}
