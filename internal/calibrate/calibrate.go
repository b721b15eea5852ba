// Package calibrate measures transfer times and fits the linear rates the
// dispatcher's estimators use.
package calibrate

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Scale is the fixed point scale of a fitted rate.
const Scale = 10000

// ErrNoSamples is returned when there is nothing to fit.
var ErrNoSamples = errors.New("calibrate: no usable samples")

// Sample is one timed transfer.
type Sample struct {
	Bytes   int
	Elapsed time.Duration
}

// Transfer moves len(buf) bytes and returns how many it moved.
type Transfer func(buf []byte) (int, error)

// Measure times transfer once per size, using now as the clock.
func Measure(sizes []int, transfer Transfer, now func() time.Duration) ([]Sample, error) {
	samples := make([]Sample, 0, len(sizes))
	for _, size := range sizes {
		buf := make([]byte, size)
		start := now()
		n, err := transfer(buf)
		if err != nil {
			return samples, fmt.Errorf("calibrate: %d bytes: %w", size, err)
		}
		samples = append(samples, Sample{Bytes: n, Elapsed: now() - start})
	}
	return samples, nil
}

// Sizes returns steps sizes evenly spread up to max.
func Sizes(max, steps int) []int {
	sizes := make([]int, 0, steps)
	for i := 1; i <= steps; i++ {
		sizes = append(sizes, max*i/steps)
	}
	return sizes
}

// Fit is a rate fitted to samples: milliseconds per 100 bytes, times Scale.
type Fit struct {
	Rate int
	// R2 is the coefficient of determination of the fit.
	R2 float64
}

func x(s Sample) float64 { return float64(s.Bytes / 100) }
func y(s Sample) float64 { return float64(s.Elapsed) / float64(time.Millisecond) }

// FitRate fits ms = k * bytes/100 through the origin by least squares.
func FitRate(samples []Sample) (Fit, error) {
	var sxy, sxx, sy float64
	for _, s := range samples {
		sxy += x(s) * y(s)
		sxx += x(s) * x(s)
		sy += y(s)
	}
	if sxx == 0 {
		return Fit{}, ErrNoSamples
	}
	k := sxy / sxx

	mean := sy / float64(len(samples))
	var ssRes, ssTot float64
	for _, s := range samples {
		ssRes += math.Pow(y(s)-k*x(s), 2)
		ssTot += math.Pow(y(s)-mean, 2)
	}
	f := Fit{Rate: int(math.Round(k * Scale)), R2: 1}
	if ssTot > 0 {
		f.R2 = 1 - ssRes/ssTot
	}
	return f, nil
}

// Estimate predicts the transfer time of size bytes the way the
// dispatcher does, truncating at every step.
func (f Fit) Estimate(size int) time.Duration {
	return time.Duration(size/100*f.Rate/Scale) * time.Millisecond
}

func (f Fit) String() string {
	return fmt.Sprintf("%d/%d ms per 100 bytes (r² %.4f)", f.Rate, Scale, f.R2)
}

// Plot renders the samples and the fitted line as a PNG to w.
func Plot(w io.Writer, title string, samples []Sample, fit Fit) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "bytes"
	p.Y.Label.Text = "ms"

	points := make(plotter.XYs, len(samples))
	var maxBytes int
	for i, s := range samples {
		points[i].X = float64(s.Bytes)
		points[i].Y = y(s)
		maxBytes = max(maxBytes, s.Bytes)
	}
	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return err
	}

	line, err := plotter.NewLine(plotter.XYs{
		{X: 0, Y: 0},
		{X: float64(maxBytes), Y: float64(fit.Estimate(maxBytes)) / float64(time.Millisecond)},
	})
	if err != nil {
		return err
	}

	p.Add(scatter, line, plotter.NewGrid())
	p.Legend.Add("measured", scatter)
	p.Legend.Add(fmt.Sprintf("fit %d", fit.Rate), line)
	p.Legend.Top, p.Legend.Left = true, true

	c := vgimg.New(8*vg.Inch, 5*vg.Inch)
	p.Draw(draw.New(c))
	_, err = vgimg.PngCanvas{Canvas: c}.WriteTo(w)
	return err
}
