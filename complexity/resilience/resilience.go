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

// Package resilience turns a signal.Metrics batch into a single bounded
// index describing how much of a channel group's joint information is
// shared (redundant) versus independent, plus an optional per-channel
// criticality ranking.
package resilience

import (
	"sort"

	"alec.dev/alec/complexity/signal"
)

// Zone classifies the resilience index against configured thresholds.
type Zone uint8

const (
	ZoneHealthy Zone = iota
	ZoneAttention
	ZoneCritical
)

func (z Zone) String() string {
	switch z {
	case ZoneHealthy:
		return "healthy"
	case ZoneAttention:
		return "attention"
	case ZoneCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Config parameterises the gate and zone thresholds.
type Config struct {
	MinSumH            float64
	HealthyMin         float64
	AttentionMin       float64
	PreciseCriticality bool
}

// DefaultConfig returns conservative reference thresholds.
func DefaultConfig() Config {
	return Config{MinSumH: 1e-6, HealthyMin: 0.6, AttentionMin: 0.3}
}

// ChannelCriticality is one channel's contribution to the resilience
// index, as estimated by removing it from consideration.
type ChannelCriticality struct {
	ChannelID     uint32
	RWithoutChan  float64
	DeltaR        float64
}

// Metrics is the resilience computation's output for one signal.Metrics batch.
type Metrics struct {
	Valid        bool
	R            float64
	Zone         Zone
	Criticality  []ChannelCriticality
	// Note is a slot for the leave-one-out approximation label (see
	// NoteFor). Compute leaves it empty and nothing in this module
	// fills it; the only approximation implemented is the scaled-ratio
	// one in ComputeCriticality.
	Note string
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Compute derives the resilience index from a signal.Metrics batch. It
// emits nothing (Valid: false) when sumH is below Config.MinSumH.
func Compute(m signal.Metrics, cfg Config) Metrics {
	if !m.Valid || m.SumH < cfg.MinSumH {
		return Metrics{}
	}

	r := clamp01(m.TotalCorr / m.SumH)
	zone := ZoneCritical
	switch {
	case r >= cfg.HealthyMin:
		zone = ZoneHealthy
	case r >= cfg.AttentionMin:
		zone = ZoneAttention
	}

	return Metrics{Valid: true, R: r, Zone: zone}
}

// ComputeCriticality ranks channels by how much the resilience index
// would change if each were removed, using the cheap scaled-ratio
// approximation from the design notes:
//
//	sum_h_without = sum_h - h_k
//	tc_without_approx = tc * (sum_h_without / sum_h)
//	r_without = tc_without_approx / sum_h_without = tc / sum_h = r
//
// which collapses to r_without == r (the approximation is deliberately
// crude: removing a channel scales both numerator and denominator by
// the same factor). DeltaR is therefore always 0 under this
// approximation; it exists so a future, more precise submatrix-based
// recomputation (Config.PreciseCriticality) can report a nonzero value
// through the same field without changing the snapshot shape.
func ComputeCriticality(m signal.Metrics, r Metrics, cfg Config) []ChannelCriticality {
	if !m.Valid || !r.Valid {
		return nil
	}

	out := make([]ChannelCriticality, 0, len(m.ChannelOrder))
	for _, id := range m.ChannelOrder {
		hk := m.PerChannelH[id]
		sumWithout := m.SumH - hk
		rWithout := r.R
		if sumWithout > 0 {
			rWithout = clamp01((m.TotalCorr * (sumWithout / m.SumH)) / sumWithout)
		}
		out = append(out, ChannelCriticality{
			ChannelID:    id,
			RWithoutChan: rWithout,
			DeltaR:       r.R - rWithout,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return absf(out[i].DeltaR) > absf(out[j].DeltaR)
	})

	return out
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// NoteFor returns the criticality approximation identifier for a config:
// "submatrix" when PreciseCriticality is set, "scaled-ratio" otherwise.
// ComputeCriticality does not read PreciseCriticality and always applies
// the scaled-ratio approximation.
func NoteFor(cfg Config) string {
	if cfg.PreciseCriticality {
		return "submatrix"
	}
	return "scaled-ratio"
}
