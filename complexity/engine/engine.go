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

// Package engine wires the sliding window, alignment, signal, resilience,
// baseline, delta, structure and anomaly stages into a single pipeline
// that turns raw channel observations into periodic complexity
// snapshots.
package engine

import (
	"sync/atomic"

	"alec.dev/alec/align"
	"alec.dev/alec/complexity/anomaly"
	"alec.dev/alec/complexity/baseline"
	"alec.dev/alec/complexity/delta"
	"alec.dev/alec/complexity/payload"
	"alec.dev/alec/complexity/resilience"
	"alec.dev/alec/complexity/signal"
	"alec.dev/alec/complexity/structure"
	"alec.dev/alec/window"
)

// Config aggregates every stage's configuration.
type Config struct {
	Window     window.Config
	Strategy   align.Strategy
	Missing    align.MissingPolicy
	MinChannels int
	Signal     signal.Config
	Resilience resilience.Config
	Baseline   baseline.Config
	Delta      delta.Config
	Structure  structure.Config
	Anomaly    anomaly.Config
	Payload    payload.Config
}

// DefaultConfig returns the reference configuration for every stage.
func DefaultConfig() Config {
	return Config{
		Window:      window.Config{MaxAgeMS: 60000, MaxCount: 4096},
		Strategy:    align.SampleAndHold,
		Missing:     align.AllowPartial,
		MinChannels: 2,
		Signal:      signal.DefaultConfig(),
		Resilience:  resilience.DefaultConfig(),
		Baseline:    baseline.DefaultConfig(),
		Delta:       delta.Config{},
		Structure:   structure.DefaultConfig(),
		Anomaly:     anomaly.DefaultConfig(),
		Payload:     payload.Config{},
	}
}

// Status is a lightweight, human-facing summary of the pipeline's
// current phase, independent of the full JSON snapshot.
type Status struct {
	BaselineState    baseline.State
	BaselineProgress float64
	ResilienceZone   resilience.Zone
	ActiveChannels   int
	LastStructureBreak *structure.StructureBreak
}

// Counters is a set of atomically-updated pipeline counters, exposed in
// the same Header()/ToSlice() shape a periodic CSV logger expects.
type Counters struct {
	samplesObserved     uint64
	snapshotsProcessed  uint64
	structureBreaks     uint64
	eventsFired         uint64
	baselineLocked      uint64
}

// Header names each counter column, in the order ToSlice emits them.
func (c *Counters) Header() []string {
	return []string{"SamplesObserved", "SnapshotsProcessed", "StructureBreaks", "EventsFired", "BaselineLocked"}
}

// ToSlice renders the current counter values as strings.
func (c *Counters) ToSlice() []string {
	return []string{
		itoa(atomic.LoadUint64(&c.samplesObserved)),
		itoa(atomic.LoadUint64(&c.snapshotsProcessed)),
		itoa(atomic.LoadUint64(&c.structureBreaks)),
		itoa(atomic.LoadUint64(&c.eventsFired)),
		itoa(atomic.LoadUint64(&c.baselineLocked)),
	}
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Engine runs the full complexity pipeline over a channel group.
type Engine struct {
	cfg      Config
	window   *window.SlidingWindow
	extractor *structure.Extractor
	builder  *baseline.Builder
	deltaCalc *delta.Calculator
	detector *anomaly.Detector
	payload  payload.Config

	structureVersion uint64
	lastPayload      payload.Metrics
	lastBreak        *structure.StructureBreak

	counters Counters
}

// New creates an Engine with the given config.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:       cfg,
		window:    window.New(cfg.Window),
		extractor: structure.NewExtractor(cfg.Structure),
		builder:   baseline.NewBuilder(cfg.Baseline),
		deltaCalc: delta.NewCalculator(cfg.Delta),
		detector:  anomaly.NewDetector(cfg.Anomaly),
		payload:   cfg.Payload,
	}
}

// Ingest pushes one channel observation into the sliding window.
func (e *Engine) Ingest(channelID uint32, value float64, tsMS uint64) {
	e.window.Push(channelID, value, tsMS)
	atomic.AddUint64(&e.counters.samplesObserved, 1)
}

// RecordFrame folds a transmitted frame's bytes into the payload
// entropy estimate used as the HBytes baseline metric.
func (e *Engine) RecordFrame(b []byte) {
	e.lastPayload = payload.ByteEntropy(b)
}

// Snapshot is one Process call's full pipeline output.
type Snapshot struct {
	TimestampMS uint64
	Signal      signal.Metrics
	Resilience  resilience.Metrics
	Criticality []resilience.ChannelCriticality
	Baseline    *baseline.Baseline
	Delta       delta.Deltas
	ZScores     delta.ZScores
	HasDelta    bool
	SLite       structure.SLite
	Break       *structure.StructureBreak
	Events      []anomaly.ComplexityEvent
	Payload     payload.Metrics
	Status      Status
}

// Process aligns the current window against refTimestamps and runs
// every downstream stage, returning the combined snapshot.
func (e *Engine) Process(refTimestamps []uint64, nowMS uint64) Snapshot {
	snaps := align.Align(e.window, refTimestamps, e.cfg.Strategy, e.cfg.Missing, e.cfg.MinChannels)
	sig := signal.Estimate(snaps, e.cfg.Signal)
	res := resilience.Compute(sig, e.cfg.Resilience)

	var crit []resilience.ChannelCriticality
	if res.Valid {
		crit = resilience.ComputeCriticality(sig, res, e.cfg.Resilience)
	}

	e.structureVersion++
	sLite, brk := e.extractor.Process(sig.PerChannelH, sig.ChannelOrder, e.structureVersion)
	if brk != nil {
		e.lastBreak = brk
		atomic.AddUint64(&e.counters.structureBreaks, 1)
	}

	in := baseline.SampleInput{
		HBytes:        e.lastPayload.HBytes,
		HasSignal:     sig.Valid,
		TC:            sig.TotalCorr,
		HJoint:        sig.HJoint,
		HasResilience: res.Valid,
		R:             res.R,
	}
	locked := e.builder.Process(in, nowMS)
	if locked {
		atomic.AddUint64(&e.counters.baselineLocked, 1)
	}

	var d delta.Deltas
	var z delta.ZScores
	var events []anomaly.ComplexityEvent
	hasDelta := e.builder.Baseline().IsReady()
	if hasDelta {
		d, z = e.deltaCalc.Compute(e.builder.Baseline(), in)
		events = e.detector.Detect(z, nowMS)
		atomic.AddUint64(&e.counters.eventsFired, uint64(len(events)))
	}

	atomic.AddUint64(&e.counters.snapshotsProcessed, 1)

	return Snapshot{
		TimestampMS: nowMS,
		Signal:      sig,
		Resilience:  res,
		Criticality: crit,
		Baseline:    e.builder.Baseline(),
		Delta:       d,
		ZScores:     z,
		HasDelta:    hasDelta,
		SLite:       sLite,
		Break:       brk,
		Events:      events,
		Payload:     e.lastPayload,
		Status: Status{
			BaselineState:       e.builder.Baseline().State,
			BaselineProgress:    e.builder.Baseline().BuildProgress,
			ResilienceZone:      res.Zone,
			ActiveChannels:      len(e.window.ChannelIDs()),
			LastStructureBreak:  e.lastBreak,
		},
	}
}

// Counters returns the engine's atomic counters for periodic logging.
func (e *Engine) Counters() *Counters {
	return &e.counters
}
