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

package rest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spotlight-imaging/spotlight/internal/fits"
	"github.com/spotlight-imaging/spotlight/internal/series"
	"github.com/spotlight-imaging/spotlight/internal/spots"
	"github.com/spotlight-imaging/spotlight/web"
)

// Builds the HTTP router. Server-side progress is logged to logWriter
func NewRouter(logWriter io.Writer) *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(logWriter), gin.Recovery())

	r.GET("/", getIndex)
	r.StaticFS("/js", web.JavascriptFS())
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/detect", func(c *gin.Context) { postDetect(c, logWriter) })
		}
	}
	return r
}

// Listens and serves on the given address until the server fails
func Serve(addr string, logWriter io.Writer) error {
	fmt.Fprintf(logWriter, "Listening on %s\n", addr)
	return NewRouter(logWriter).Run(addr)
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

type postDetectArgs struct {
	FilePatterns []string      `json:"filePatterns" binding:"required"`
	Sigma        *float32      `json:"sigma"`
	MinSize      *int          `json:"minSize"`
	Config       *spots.Config `json:"config"`
}

type frameStatsJSON struct {
	Frame         int      `json:"frame"`
	Mu            *float64 `json:"mu"`
	Sigma         *float64 `json:"sigma"`
	Threshold     *float64 `json:"threshold"`
	Degenerate    bool     `json:"degenerate"`
	Candidates    int      `json:"candidates"`
	Components    int      `json:"components"`
	Kept          int      `json:"kept"`
	SpotPixels    int      `json:"spotPixels"`
	RingPixels    int      `json:"ringPixels"`
	FalsePositive *float64 `json:"falsePositive"`
}

type detectResponse struct {
	Frames     int              `json:"frames"`
	Height     int              `json:"height"`
	Width      int              `json:"width"`
	Spot       []*float64       `json:"spot"`
	Background []*float64       `json:"background"`
	Ratio      []*float64       `json:"ratio"`
	FrameStats []frameStatsJSON `json:"frameStats"`
}

func postDetect(c *gin.Context, logWriter io.Writer) {
	var args postDetectArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := spots.NewParamsDefault()
	if args.Sigma != nil {
		p.Sigma = *args.Sigma
	}
	if args.MinSize != nil {
		p.MinSize = *args.MinSize
	}
	conf := args.Config
	if conf == nil {
		conf = spots.NewConfigDefault()
	}

	fileNames, err := fits.GlobFilenameWildcards(args.FilePatterns)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(fileNames) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files match the given patterns"})
		return
	}
	vol, err := fits.LoadVolume(fileNames, logWriter)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := spots.Detect(c.Request.Context(), vol, p, conf, logWriter)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	s, err := series.Aggregate(vol, res)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, newDetectResponse(res, s))
}

// Maps detection errors to HTTP status codes
func statusFor(err error) int {
	if errors.Is(err, spots.ErrInvalidInput) || errors.Is(err, spots.ErrParameter) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func newDetectResponse(res *spots.Result, s *series.Series) *detectResponse {
	resp := &detectResponse{
		Frames:     res.Frames,
		Height:     res.Height,
		Width:      res.Width,
		Spot:       nullables(s.Spot),
		Background: nullables(s.Background),
		Ratio:      nullables(s.Ratio()),
		FrameStats: make([]frameStatsJSON, len(res.FrameStats)),
	}
	for i, fs := range res.FrameStats {
		resp.FrameStats[i] = frameStatsJSON{
			Frame:         fs.Frame,
			Mu:            nullable(fs.Mu),
			Sigma:         nullable(fs.Sigma),
			Threshold:     nullable(fs.Threshold),
			Degenerate:    fs.Degenerate,
			Candidates:    fs.Candidates,
			Components:    fs.Components,
			Kept:          fs.Kept,
			SpotPixels:    fs.SpotPixels,
			RingPixels:    fs.RingPixels,
			FalsePositive: nullable(fs.FalsePositive),
		}
	}
	return resp
}

// JSON has no NaN or infinity, so these become null
func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullables(vs []float64) []*float64 {
	res := make([]*float64, len(vs))
	for i, v := range vs {
		res[i] = nullable(v)
	}
	return res
}
