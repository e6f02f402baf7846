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

// Package anomaly turns delta z-scores into discrete complexity events,
// gated by persistence (the condition must hold continuously for a
// configured span of time, not just a tick count) and cooldown (no
// re-firing within a configured window).
package anomaly

import "alec.dev/alec/complexity/delta"

// EventType names the condition a ComplexityEvent reports.
type EventType uint8

const (
	PayloadEntropySpike EventType = iota
	ComplexitySurge
	RedundancyDrop
)

func (t EventType) String() string {
	switch t {
	case PayloadEntropySpike:
		return "payload_entropy_spike"
	case ComplexitySurge:
		return "complexity_surge"
	case RedundancyDrop:
		return "redundancy_drop"
	default:
		return "unknown"
	}
}

// EventSeverity ranks how far an event's z-score cleared its threshold.
type EventSeverity uint8

const (
	SeverityWarning EventSeverity = iota
	SeverityCritical
)

func (s EventSeverity) String() string {
	if s == SeverityCritical {
		return "critical"
	}
	return "warning"
}

// ComplexityEvent is one fired anomaly.
type ComplexityEvent struct {
	Type        EventType
	Severity    EventSeverity
	ZScore      float64
	TimestampMS uint64
}

// RuleConfig parameterises one event type's detection gate.
type RuleConfig struct {
	// Threshold is the z-score magnitude that must be cleared. A zero
	// (or negative) Threshold disables the rule, so a zero-value
	// RuleConfig never fires.
	Threshold float64
	// PersistenceMS is how long the condition must hold continuously,
	// from the first sample that clears Threshold, before the event
	// fires.
	PersistenceMS uint64
	// CooldownMS is the minimum time between two firings of this event.
	CooldownMS uint64
	// CriticalMultiple scales Threshold to decide Critical vs Warning.
	CriticalMultiple float64
}

// Config holds one RuleConfig per directional event type.
type Config struct {
	PayloadEntropySpike RuleConfig
	ComplexitySurge     RuleConfig
	RedundancyDrop      RuleConfig
}

// DefaultConfig returns a 2-sigma threshold, 1s persistence, and a 5s
// cooldown for all three event types.
func DefaultConfig() Config {
	rc := RuleConfig{Threshold: 2.0, PersistenceMS: 1000, CooldownMS: 5000, CriticalMultiple: 1.5}
	return Config{PayloadEntropySpike: rc, ComplexitySurge: rc, RedundancyDrop: rc}
}

type ruleState struct {
	conditioning     bool
	conditionStartMS uint64
	lastFiredMS      uint64
	everFired        bool
}

// Detector evaluates z-scores against configured rules, tracking
// per-event-type persistence and cooldown state.
type Detector struct {
	cfg   Config
	state map[EventType]*ruleState
}

// NewDetector creates a Detector with the given config.
func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg: cfg,
		state: map[EventType]*ruleState{
			PayloadEntropySpike: {},
			ComplexitySurge:     {},
			RedundancyDrop:      {},
		},
	}
}

// Detect evaluates one tick's z-scores and returns any events that
// fired: payload-entropy-spike and complexity-surge are positive-only
// (a rise above the threshold), redundancy-drop is negative-only (a
// fall below the negated threshold).
func (d *Detector) Detect(z delta.ZScores, nowMS uint64) []ComplexityEvent {
	var events []ComplexityEvent

	if e := d.evaluate(PayloadEntropySpike, &z.HBytes, d.cfg.PayloadEntropySpike, true, nowMS); e != nil {
		events = append(events, *e)
	}
	if e := d.evaluate(ComplexitySurge, z.TC, d.cfg.ComplexitySurge, true, nowMS); e != nil {
		events = append(events, *e)
	}
	if e := d.evaluate(RedundancyDrop, z.R, d.cfg.RedundancyDrop, false, nowMS); e != nil {
		events = append(events, *e)
	}

	return events
}

func (d *Detector) evaluate(t EventType, zval *float64, rc RuleConfig, positive bool, nowMS uint64) *ComplexityEvent {
	st := d.state[t]

	if zval == nil || rc.Threshold <= 0 {
		st.conditioning = false
		return nil
	}

	cleared := false
	if positive {
		cleared = *zval >= rc.Threshold
	} else {
		cleared = *zval <= -rc.Threshold
	}

	if !cleared {
		st.conditioning = false
		return nil
	}

	if !st.conditioning {
		st.conditioning = true
		st.conditionStartMS = nowMS
	}
	if nowMS-st.conditionStartMS < rc.PersistenceMS {
		return nil
	}
	if st.everFired && nowMS-st.lastFiredMS < rc.CooldownMS {
		return nil
	}

	st.lastFiredMS = nowMS
	st.everFired = true

	severity := SeverityWarning
	if absf(*zval) >= rc.Threshold*rc.CriticalMultiple {
		severity = SeverityCritical
	}

	return &ComplexityEvent{Type: t, Severity: severity, ZScore: *zval, TimestampMS: nowMS}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
