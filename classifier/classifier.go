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

// Package classifier decides whether and at what priority a new
// observation should be transmitted, given the context's current
// prediction for its source.
package classifier

import (
	"math"

	"alec.dev/alec/context"
	"alec.dev/alec/protocol"
)

// Reason names which rule in the decision order fired.
type Reason uint8

const (
	ReasonNoPrediction Reason = iota
	ReasonThresholdExceeded
	ReasonExtremeAnomaly
	ReasonSignificantAnomaly
	ReasonBelowMinimumDelta
	ReasonScheduledTransmission
	ReasonNormalValue
)

func (r Reason) String() string {
	switch r {
	case ReasonNoPrediction:
		return "no_prediction"
	case ReasonThresholdExceeded:
		return "threshold_exceeded"
	case ReasonExtremeAnomaly:
		return "extreme_anomaly"
	case ReasonSignificantAnomaly:
		return "significant_anomaly"
	case ReasonBelowMinimumDelta:
		return "below_minimum_delta"
	case ReasonScheduledTransmission:
		return "scheduled_transmission"
	case ReasonNormalValue:
		return "normal_value"
	default:
		return "unknown"
	}
}

// Classification is the outcome of Classify: a priority, why it was
// chosen, the relative delta that drove the decision, and the
// prediction's confidence (0 when there was no prediction at all).
// A transmit decision is implicit in the priority: PriorityDisposable
// (and only PriorityDisposable) means "do not transmit".
type Classification struct {
	Priority      protocol.Priority
	Reason        Reason
	RelativeDelta float64
	Confidence    float64
}

// Transmit reports whether this classification calls for sending the
// frame at all.
func (c Classification) Transmit() bool {
	return c.Priority != protocol.PriorityDisposable
}

// Config parameterises the classifier's thresholds.
type Config struct {
	// ExtremeAnomalyThreshold: relative delta strictly above this is Critical.
	ExtremeAnomalyThreshold float64
	// SignificantAnomalyThreshold: relative delta strictly above this is Important.
	SignificantAnomalyThreshold float64
	// MinimumDelta: relative delta below this need not be sent at all
	// outside a scheduled transmission.
	MinimumDelta float64
	// ScheduleIntervalMS: milliseconds since the last transmission for
	// this source before one is forced regardless of delta. Zero
	// disables scheduled transmission.
	ScheduleIntervalMS uint64
	// HardThreshold: an optional absolute value threshold. A value whose
	// absolute magnitude meets or exceeds this is always Critical,
	// independent of the prediction. Zero disables this rule.
	HardThreshold float64
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		ExtremeAnomalyThreshold:     0.30,
		SignificantAnomalyThreshold: 0.15,
		MinimumDelta:                0.01,
		ScheduleIntervalMS:          0,
		HardThreshold:               0,
	}
}

// RelativeDelta computes |value - predicted| / max(|predicted|, epsilon).
func RelativeDelta(value, predicted float64) float64 {
	const epsilon = 1e-9
	denom := math.Abs(predicted)
	if denom < epsilon {
		denom = epsilon
	}
	return math.Abs(value-predicted) / denom
}

// Classify applies the seven-step decision order:
//
//  1. No prediction available for rv.SourceID -> always transmit, Normal.
//  2. Hard absolute threshold exceeded -> Critical.
//  3. Relative delta > ExtremeAnomalyThreshold -> Critical.
//  4. Relative delta > SignificantAnomalyThreshold -> Important.
//  5. Relative delta < MinimumDelta -> Disposable (do not transmit),
//     unless step 6 forces a scheduled transmission.
//  6. nowMS - lastSentMS >= ScheduleIntervalMS (interval > 0) -> forced
//     Normal transmission regardless of delta.
//  7. Otherwise, transmit at Deferred priority.
func Classify(cfg Config, rv protocol.RawValue, ctx *context.Context, lastSentMS uint64, nowMS uint64) Classification {
	pred, ok := ctx.Predict(rv.SourceID)
	if !ok {
		return Classification{Priority: protocol.PriorityNormal, Reason: ReasonNoPrediction}
	}

	if cfg.HardThreshold > 0 && math.Abs(rv.Value) >= cfg.HardThreshold {
		return Classification{Priority: protocol.PriorityCritical, Reason: ReasonThresholdExceeded, Confidence: pred.Confidence}
	}

	delta := RelativeDelta(rv.Value, pred.Value)
	due := cfg.ScheduleIntervalMS > 0 && nowMS-lastSentMS >= cfg.ScheduleIntervalMS

	if delta > cfg.ExtremeAnomalyThreshold {
		return Classification{Priority: protocol.PriorityCritical, Reason: ReasonExtremeAnomaly, RelativeDelta: delta, Confidence: pred.Confidence}
	}
	if delta > cfg.SignificantAnomalyThreshold {
		return Classification{Priority: protocol.PriorityImportant, Reason: ReasonSignificantAnomaly, RelativeDelta: delta, Confidence: pred.Confidence}
	}
	if delta < cfg.MinimumDelta {
		if due {
			return Classification{Priority: protocol.PriorityNormal, Reason: ReasonScheduledTransmission, RelativeDelta: delta, Confidence: pred.Confidence}
		}
		return Classification{Priority: protocol.PriorityDisposable, Reason: ReasonBelowMinimumDelta, RelativeDelta: delta, Confidence: pred.Confidence}
	}
	if due {
		return Classification{Priority: protocol.PriorityNormal, Reason: ReasonScheduledTransmission, RelativeDelta: delta, Confidence: pred.Confidence}
	}

	return Classification{Priority: protocol.PriorityDeferred, Reason: ReasonNormalValue, RelativeDelta: delta, Confidence: pred.Confidence}
}
