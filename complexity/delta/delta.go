// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package delta computes per-metric deviation from a locked baseline
// (Δ and z-score), with optional EMA smoothing of the deltas across
// calls.
package delta

import "alec.dev/alec/complexity/baseline"

// Deltas holds raw (x - mean) for each metric. HBytes is always
// present; the others are nil when their baseline field isn't valid or
// the input didn't carry that metric.
type Deltas struct {
	HBytes float64
	TC     *float64
	HJoint *float64
	R      *float64
}

// ZScores mirrors Deltas, each entry divided by its baseline's std (0
// when std is 0).
type ZScores struct {
	HBytes float64
	TC     *float64
	HJoint *float64
	R      *float64
}

// MaxAbs returns the largest absolute z-score among the present metrics.
func (z ZScores) MaxAbs() float64 {
	max := absf(z.HBytes)
	for _, p := range []*float64{z.TC, z.HJoint, z.R} {
		if p != nil && absf(*p) > max {
			max = absf(*p)
		}
	}
	return max
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Config parameterises optional EMA smoothing of the computed deltas.
type Config struct {
	EnableSmoothing bool
	SmoothingAlpha  float64
}

type smoothedField struct {
	value float64
	has   bool
}

// Calculator computes Deltas/ZScores against a baseline and, when
// configured, smooths the deltas across successive calls.
type Calculator struct {
	cfg      Config
	smoothed struct {
		hBytes        smoothedField
		tc, hJoint, r smoothedField
	}
}

// NewCalculator creates a Calculator with the given smoothing config.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

func (c *Calculator) smooth(field *smoothedField, raw float64) float64 {
	if !c.cfg.EnableSmoothing {
		return raw
	}
	if !field.has {
		field.value = raw
		field.has = true
		return raw
	}
	field.value = c.cfg.SmoothingAlpha*raw + (1-c.cfg.SmoothingAlpha)*field.value
	return field.value
}

func zOf(delta, std float64) float64 {
	if std == 0 {
		return 0
	}
	return delta / std
}

// Compute derives Deltas/ZScores from in against b, computing a metric
// only when its baseline field IsValid() and the input carries it.
func (c *Calculator) Compute(b *baseline.Baseline, in baseline.SampleInput) (Deltas, ZScores) {
	var d Deltas
	var z ZScores

	rawHBytes := in.HBytes - b.HBytes.Mean
	d.HBytes = c.smooth(&c.smoothed.hBytes, rawHBytes)
	z.HBytes = zOf(d.HBytes, b.HBytes.Std)

	if in.HasSignal && b.TC.IsValid() {
		raw := in.TC - b.TC.Mean
		v := c.smooth(&c.smoothed.tc, raw)
		d.TC = &v
		zv := zOf(v, b.TC.Std)
		z.TC = &zv
	}
	if in.HasSignal && b.HJoint.IsValid() {
		raw := in.HJoint - b.HJoint.Mean
		v := c.smooth(&c.smoothed.hJoint, raw)
		d.HJoint = &v
		zv := zOf(v, b.HJoint.Std)
		z.HJoint = &zv
	}
	if in.HasResilience && b.R.IsValid() {
		raw := in.R - b.R.Mean
		v := c.smooth(&c.smoothed.r, raw)
		d.R = &v
		zv := zOf(v, b.R.Std)
		z.R = &zv
	}

	return d, z
}
