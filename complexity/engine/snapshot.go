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

package engine

// ComplexitySnapshot is the "0.1.0" JSON schema: a compact, mostly-
// optional-field view suited to frequent emission.
type ComplexitySnapshot struct {
	Version     string           `json:"version"`
	TimestampMS uint64           `json:"timestamp_ms"`
	Baseline    BaselineJSON     `json:"baseline"`
	Deltas      *DeltasJSON      `json:"deltas,omitempty"`
	ZScores     *ZScoresJSON     `json:"z_scores,omitempty"`
	SLite       *SLiteJSON       `json:"s_lite,omitempty"`
	Events      []EventJSON      `json:"events,omitempty"`
	Flags       []string         `json:"flags,omitempty"`
}

// BaselineJSON is the required baseline block of a ComplexitySnapshot.
type BaselineJSON struct {
	State       string             `json:"state"`
	SampleCount uint64             `json:"sample_count"`
	Progress    float64            `json:"progress"`
	Stats       map[string]float64 `json:"stats,omitempty"`
}

// DeltasJSON mirrors delta.Deltas with nil fields omitted.
type DeltasJSON struct {
	HBytes float64  `json:"h_bytes"`
	TC     *float64 `json:"tc,omitempty"`
	HJoint *float64 `json:"h_joint,omitempty"`
	R      *float64 `json:"r,omitempty"`
}

// ZScoresJSON mirrors delta.ZScores with nil fields omitted.
type ZScoresJSON struct {
	HBytes float64  `json:"h_bytes"`
	TC     *float64 `json:"tc,omitempty"`
	HJoint *float64 `json:"h_joint,omitempty"`
	R      *float64 `json:"r,omitempty"`
}

// SLiteEdgeJSON is one similarity-graph edge.
type SLiteEdgeJSON struct {
	A      uint32  `json:"a"`
	B      uint32  `json:"b"`
	Weight float64 `json:"weight"`
}

// SLiteJSON is the sparsified similarity graph, as attached to a snapshot.
type SLiteJSON struct {
	Version uint64          `json:"version"`
	Edges   []SLiteEdgeJSON `json:"edges"`
}

// EventJSON is one fired complexity event.
type EventJSON struct {
	Type        string  `json:"type"`
	Severity    string  `json:"severity"`
	ZScore      float64 `json:"z_score"`
	TimestampMS uint64  `json:"timestamp_ms"`
}

// ToComplexitySnapshot renders the 0.1.0 schema from one Process result.
func (e *Engine) ToComplexitySnapshot(s Snapshot, flags []string) ComplexitySnapshot {
	state := "building"
	if s.Baseline.State == 1 {
		state = "locked"
	}

	out := ComplexitySnapshot{
		Version:     "0.1.0",
		TimestampMS: s.TimestampMS,
		Baseline: BaselineJSON{
			State:       state,
			SampleCount: s.Baseline.ValidSignalCount,
			Progress:    s.Baseline.BuildProgress,
			Stats: map[string]float64{
				"h_bytes_mean": s.Baseline.HBytes.Mean,
				"h_bytes_std":  s.Baseline.HBytes.Std,
			},
		},
		Flags: flags,
	}

	if s.HasDelta {
		out.Deltas = &DeltasJSON{HBytes: s.Delta.HBytes, TC: s.Delta.TC, HJoint: s.Delta.HJoint, R: s.Delta.R}
		out.ZScores = &ZScoresJSON{HBytes: s.ZScores.HBytes, TC: s.ZScores.TC, HJoint: s.ZScores.HJoint, R: s.ZScores.R}
	}

	if len(s.SLite.Edges) > 0 {
		edges := make([]SLiteEdgeJSON, len(s.SLite.Edges))
		for i, edge := range s.SLite.Edges {
			edges[i] = SLiteEdgeJSON{A: edge.A, B: edge.B, Weight: edge.Weight}
		}
		out.SLite = &SLiteJSON{Version: s.SLite.Version, Edges: edges}
	}

	if len(s.Events) > 0 {
		out.Events = make([]EventJSON, len(s.Events))
		for i, ev := range s.Events {
			out.Events[i] = EventJSON{
				Type:        ev.Type.String(),
				Severity:    ev.Severity.String(),
				ZScore:      ev.ZScore,
				TimestampMS: ev.TimestampMS,
			}
		}
	}

	return out
}

// MetricsSnapshot is the "1" JSON schema: the full per-call metrics
// view, suited to lower-frequency detailed emission.
type MetricsSnapshot struct {
	Version     int              `json:"version"`
	TimestampMS uint64           `json:"timestamp_ms"`
	Window      WindowJSON       `json:"window"`
	Signal      SignalJSON       `json:"signal"`
	Payload     PayloadJSON      `json:"payload"`
	Resilience  *ResilienceJSON  `json:"resilience,omitempty"`
	Flags       []string         `json:"flags,omitempty"`
}

// WindowJSON describes the alignment window used to produce this snapshot.
type WindowJSON struct {
	Kind             string `json:"kind"`
	Value            uint64 `json:"value"`
	AlignedSamples   int    `json:"aligned_samples"`
	ChannelsIncluded int    `json:"channels_included"`
}

// SignalJSON mirrors signal.Metrics.
type SignalJSON struct {
	Valid     bool      `json:"valid"`
	LogBase   string    `json:"log_base"`
	SumH      float64   `json:"sum_h"`
	HJoint    float64   `json:"h_joint"`
	TotalCorr float64   `json:"total_corr"`
	HPerChannel []ChannelEntropyJSON `json:"h_per_channel"`
}

// ChannelEntropyJSON is one channel's entropy contribution.
type ChannelEntropyJSON struct {
	ChannelID uint32  `json:"channel_id"`
	H         float64 `json:"h"`
}

// PayloadJSON mirrors payload.Metrics.
type PayloadJSON struct {
	FrameSizeBytes int       `json:"frame_size_bytes"`
	HBytes         float64   `json:"h_bytes"`
	Histogram      []float64 `json:"histogram,omitempty"`
}

// ResilienceJSON mirrors resilience.Metrics.
type ResilienceJSON struct {
	R           float64                `json:"r"`
	Zone        string                 `json:"zone"`
	Criticality []CriticalityJSON      `json:"criticality,omitempty"`
}

// CriticalityJSON is one channel's leave-one-out criticality entry.
type CriticalityJSON struct {
	ChannelID    uint32  `json:"channel_id"`
	RWithoutChan float64 `json:"r_without_chan"`
	DeltaR       float64 `json:"delta_r"`
}

// ToMetricsSnapshot renders the version-1 schema from one Process result.
func (e *Engine) ToMetricsSnapshot(s Snapshot, windowKind string, windowValue uint64, flags []string) MetricsSnapshot {
	logBase := "nats"
	if e.cfg.Signal.Base == 1 {
		logBase = "bits"
	}

	histogram := make([]float64, len(s.Payload.Histogram))
	for i, count := range s.Payload.Histogram {
		histogram[i] = float64(count)
	}

	perChannel := make([]ChannelEntropyJSON, 0, len(s.Signal.ChannelOrder))
	for _, id := range s.Signal.ChannelOrder {
		perChannel = append(perChannel, ChannelEntropyJSON{ChannelID: id, H: s.Signal.PerChannelH[id]})
	}

	out := MetricsSnapshot{
		Version:     1,
		TimestampMS: s.TimestampMS,
		Window: WindowJSON{
			Kind:             windowKind,
			Value:            windowValue,
			AlignedSamples:   len(s.Signal.ChannelOrder),
			ChannelsIncluded: s.Status.ActiveChannels,
		},
		Signal: SignalJSON{
			Valid:       s.Signal.Valid,
			LogBase:     logBase,
			SumH:        s.Signal.SumH,
			HJoint:      s.Signal.HJoint,
			TotalCorr:   s.Signal.TotalCorr,
			HPerChannel: perChannel,
		},
		Payload: PayloadJSON{
			FrameSizeBytes: s.Payload.FrameSizeBytes,
			HBytes:         s.Payload.HBytes,
			Histogram:      histogram,
		},
		Flags: flags,
	}

	if s.Resilience.Valid {
		crit := make([]CriticalityJSON, len(s.Criticality))
		for i, c := range s.Criticality {
			crit[i] = CriticalityJSON{ChannelID: c.ChannelID, RWithoutChan: c.RWithoutChan, DeltaR: c.DeltaR}
		}
		out.Resilience = &ResilienceJSON{R: s.Resilience.R, Zone: s.Resilience.Zone.String(), Criticality: crit}
	}

	return out
}
