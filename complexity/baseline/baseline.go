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

// Package baseline tracks running statistics per tracked metric through
// a two-phase lifecycle: Building accumulates sums and sums of squares, Locked
// applies one of a small set of update policies.
package baseline

import "math"

// State is a baseline's lifecycle phase.
type State uint8

const (
	Building State = iota
	Locked
)

// Policy selects how a Locked baseline absorbs new samples.
type Policy uint8

const (
	PolicyFrozen Policy = iota
	PolicyEMA
	// PolicyRolling is reserved; this implementation treats it exactly
	// like PolicyFrozen, as permitted.
	PolicyRolling
)

// Config parameterises the build gate and locked-update policy.
type Config struct {
	BuildTimeMS       uint64
	MinValidSnapshots uint64
	LockedPolicy      Policy
	// EMAAlphaPercent is alpha expressed as an integer percent (0-100),
	// matching the original's integer-percent storage.
	EMAAlphaPercent int
}

// DefaultConfig returns conservative defaults: a 60s build window, at
// least 30 valid signal samples, frozen once locked.
func DefaultConfig() Config {
	return Config{BuildTimeMS: 60000, MinValidSnapshots: 30, LockedPolicy: PolicyFrozen}
}

// FieldStats is a running mean/variance accumulator for one scalar
// metric, derived from a running sum and sum of squares.
type FieldStats struct {
	Mean  float64
	Sum   float64
	SumSq float64
	Count uint64
	Std   float64
}

// AddSample folds a new observation into the running statistics.
func (f *FieldStats) AddSample(x float64) {
	f.Count++
	f.Sum += x
	f.SumSq += x * x
	f.Mean = f.Sum / float64(f.Count)

	if f.Count > 1 {
		variance := (f.SumSq - float64(f.Count)*f.Mean*f.Mean) / float64(f.Count-1)
		if variance < 0 {
			variance = 0
		}
		f.Std = math.Sqrt(variance)
	} else {
		f.Std = 0
	}
}

// UpdateEMA applies an exponential-moving-average update once a
// baseline is locked: the mean moves toward the new sample by alpha,
// and the variance moves toward the sample's instantaneous squared
// deviation from the old mean by the same alpha.
func (f *FieldStats) UpdateEMA(x, alpha float64) {
	deviation := x - f.Mean
	instantVariance := deviation * deviation

	f.Mean = alpha*x + (1-alpha)*f.Mean

	currentVariance := f.Std * f.Std
	newVariance := alpha*instantVariance + (1-alpha)*currentVariance
	if newVariance < 0 {
		newVariance = 0
	}
	f.Std = math.Sqrt(newVariance)
	f.Count++
}

// IsValid reports whether this field has enough history to derive a
// meaningful z-score from (at least two samples and nonzero spread).
func (f FieldStats) IsValid() bool {
	return f.Count >= 2 && f.Std > 0
}

// SampleInput is one tick's worth of metrics fed to a Baseline. HBytes
// is always present; TC/HJoint are only meaningful when HasSignal is
// set, and R only when HasResilience is set.
type SampleInput struct {
	HBytes        float64
	HasSignal     bool
	TC            float64
	HJoint        float64
	HasResilience bool
	R             float64
}

// Baseline is the running state for one tracked channel group: a
// lifecycle phase plus per-metric FieldStats.
type Baseline struct {
	State            State
	StartTimeMS      uint64
	BuildProgress    float64
	ValidSignalCount uint64

	HBytes FieldStats
	TC     FieldStats
	HJoint FieldStats
	R      FieldStats
}

// New starts a Baseline in the Building state at startTimeMS.
func New(startTimeMS uint64) *Baseline {
	return &Baseline{State: Building, StartTimeMS: startTimeMS}
}

// AddSample folds in a Building-phase observation, updating HBytes
// unconditionally and the signal/resilience fields only when present.
func (b *Baseline) AddSample(in SampleInput) {
	b.HBytes.AddSample(in.HBytes)
	if in.HasSignal {
		b.TC.AddSample(in.TC)
		b.HJoint.AddSample(in.HJoint)
		b.ValidSignalCount++
	}
	if in.HasResilience {
		b.R.AddSample(in.R)
	}
}

// ApplyEMA folds in a Locked-phase observation under the EMA policy.
func (b *Baseline) ApplyEMA(in SampleInput, alpha float64) {
	b.HBytes.UpdateEMA(in.HBytes, alpha)
	if in.HasSignal {
		b.TC.UpdateEMA(in.TC, alpha)
		b.HJoint.UpdateEMA(in.HJoint, alpha)
	}
	if in.HasResilience {
		b.R.UpdateEMA(in.R, alpha)
	}
}

// ShouldLock reports whether both the elapsed-time and minimum-sample
// gates have passed.
func (b *Baseline) ShouldLock(nowMS uint64, cfg Config) bool {
	elapsed := nowMS-b.StartTimeMS >= cfg.BuildTimeMS
	enough := b.ValidSignalCount >= cfg.MinValidSnapshots
	return elapsed && enough
}

// Lock transitions Building to Locked. Calling it again (or calling it
// on an already-Locked baseline) is a no-op, so a caller that double-
// checks ShouldLock before firing a one-time event never double-fires.
func (b *Baseline) Lock() {
	if b.State == Building {
		b.State = Locked
	}
}

// IsReady reports whether the baseline has locked.
func (b *Baseline) IsReady() bool {
	return b.State == Locked
}

// UpdateProgress recomputes BuildProgress as the minimum of the
// time-elapsed fraction and the valid-sample fraction, each capped at 1.
func (b *Baseline) UpdateProgress(nowMS uint64, cfg Config) {
	timeProgress := 1.0
	if cfg.BuildTimeMS > 0 {
		timeProgress = float64(nowMS-b.StartTimeMS) / float64(cfg.BuildTimeMS)
	}
	if timeProgress > 1 {
		timeProgress = 1
	}

	sampleProgress := 1.0
	if cfg.MinValidSnapshots > 0 {
		sampleProgress = float64(b.ValidSignalCount) / float64(cfg.MinValidSnapshots)
	}
	if sampleProgress > 1 {
		sampleProgress = 1
	}

	progress := timeProgress
	if sampleProgress < progress {
		progress = sampleProgress
	}
	b.BuildProgress = progress
}

// Builder drives a Baseline through Process calls: Building accumulates
// and checks the lock gate, Locked dispatches to the configured update
// policy.
type Builder struct {
	cfg       Config
	baseline  *Baseline
	started   bool
}

// NewBuilder creates a Builder that lazily starts its Baseline on the
// first Process call.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg}
}

// Baseline returns the underlying Baseline, or nil if Process has never
// been called (the Baseline is started by the first Process call).
func (bb *Builder) Baseline() *Baseline {
	return bb.baseline
}

// Process folds one tick's SampleInput into the baseline and returns
// true exactly on the tick that causes a Building -> Locked transition
// (the BaselineLocked event should fire once, on that tick only).
func (bb *Builder) Process(in SampleInput, nowMS uint64) bool {
	if !bb.started {
		bb.baseline = New(nowMS)
		bb.started = true
	}
	b := bb.baseline

	switch b.State {
	case Building:
		b.AddSample(in)
		b.UpdateProgress(nowMS, bb.cfg)
		if b.ShouldLock(nowMS, bb.cfg) {
			b.Lock()
			return true
		}
		return false

	case Locked:
		switch bb.cfg.LockedPolicy {
		case PolicyEMA:
			b.ApplyEMA(in, float64(bb.cfg.EMAAlphaPercent)/100)
		case PolicyFrozen, PolicyRolling:
			// no change
		}
		return false

	default:
		return false
	}
}
