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

// Package structure builds a lightweight ("lite") entropy-similarity
// graph over the currently known channels and flags when the graph's
// sparsified topology shifts enough to call it a structure break.
package structure

import "sort"

// SLiteEdge is one retained edge of a similarity graph: channels A and
// B (A < B) and their similarity weight in [0,1].
type SLiteEdge struct {
	A, B   uint32
	Weight float64
}

// SLite is a sparsified similarity graph snapshot.
type SLite struct {
	Version      uint64
	ChannelOrder []uint32
	Edges        []SLiteEdge
}

// EdgeChange describes how one edge's weight moved between two SLite
// snapshots. An edge absent from the prior snapshot has OldWeight 0; an
// edge absent from the new snapshot has NewWeight 0.
type EdgeChange struct {
	A, B               uint32
	OldWeight, NewWeight float64
	Delta              float64
}

// StructureBreak reports the edges that changed enough, relative to the
// last retained SLite, to treat the topology as having shifted.
type StructureBreak struct {
	Changed  []EdgeChange
	MaxDelta float64
}

// Config parameterises edge weighting, sparsification, and break
// sensitivity.
type Config struct {
	// TopK keeps only the TopK highest-weight edges, 0 disables this cut.
	TopK int
	// MinAbsWeight drops edges below this weight regardless of TopK.
	MinAbsWeight float64
	// BreakThreshold is the minimum |delta| on any edge to call a break.
	BreakThreshold float64
}

// DefaultConfig returns permissive defaults: no top-K cut, a small
// weight floor, and a break threshold tuned for normalized weights.
func DefaultConfig() Config {
	return Config{TopK: 0, MinAbsWeight: 0.05, BreakThreshold: 0.2}
}

func edgeKey(a, b uint32) (uint32, uint32) {
	if a < b {
		return a, b
	}
	return b, a
}

// Extractor builds successive SLite snapshots and detects breaks
// against the last one it produced.
type Extractor struct {
	cfg  Config
	last *SLite
}

// NewExtractor creates an Extractor with no prior snapshot.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract builds a sparsified similarity graph from per-channel
// entropy values: weight(i,j) = 1 - min(|Hi-Hj|/maxH, 1), so identical
// entropies score 1 and maximally-different ones score 0.
func Extract(perChannelH map[uint32]float64, channelOrder []uint32, version uint64, cfg Config) SLite {
	maxH := 0.0
	for _, h := range perChannelH {
		if h > maxH {
			maxH = h
		}
	}

	order := make([]uint32, len(channelOrder))
	copy(order, channelOrder)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var edges []SLiteEdge
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			a, b := order[i], order[j]
			diff := perChannelH[a] - perChannelH[b]
			if diff < 0 {
				diff = -diff
			}
			ratio := 1.0
			if maxH > 0 {
				ratio = diff / maxH
				if ratio > 1 {
					ratio = 1
				}
			} else {
				ratio = 0
			}
			weight := 1 - ratio
			if weight < cfg.MinAbsWeight {
				continue
			}
			edges = append(edges, SLiteEdge{A: a, B: b, Weight: weight})
		}
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].Weight > edges[j].Weight })
	if cfg.TopK > 0 && len(edges) > cfg.TopK {
		edges = edges[:cfg.TopK]
	}

	return SLite{Version: version, ChannelOrder: order, Edges: edges}
}

// Process extracts a new SLite and, if a prior snapshot exists, detects
// a structure break against it. The new snapshot becomes "last" for the
// next call regardless of whether a break was detected.
func (e *Extractor) Process(perChannelH map[uint32]float64, channelOrder []uint32, version uint64) (SLite, *StructureBreak) {
	s := Extract(perChannelH, channelOrder, version, e.cfg)

	var brk *StructureBreak
	if e.last != nil {
		brk = detectBreak(*e.last, s, e.cfg)
	}
	e.last = &s
	return s, brk
}

func detectBreak(prev, next SLite, cfg Config) *StructureBreak {
	prevByKey := make(map[[2]uint32]float64, len(prev.Edges))
	for _, e := range prev.Edges {
		a, b := edgeKey(e.A, e.B)
		prevByKey[[2]uint32{a, b}] = e.Weight
	}
	nextByKey := make(map[[2]uint32]float64, len(next.Edges))
	for _, e := range next.Edges {
		a, b := edgeKey(e.A, e.B)
		nextByKey[[2]uint32{a, b}] = e.Weight
	}

	seen := make(map[[2]uint32]bool)
	var changes []EdgeChange
	maxDelta := 0.0

	for k, oldW := range prevByKey {
		newW := nextByKey[k]
		delta := newW - oldW
		if absf(delta) > absf(maxDelta) {
			maxDelta = delta
		}
		if absf(delta) >= cfg.BreakThreshold {
			changes = append(changes, EdgeChange{A: k[0], B: k[1], OldWeight: oldW, NewWeight: newW, Delta: delta})
		}
		seen[k] = true
	}
	for k, newW := range nextByKey {
		if seen[k] {
			continue
		}
		delta := newW
		if absf(delta) > absf(maxDelta) {
			maxDelta = delta
		}
		if absf(delta) >= cfg.BreakThreshold {
			changes = append(changes, EdgeChange{A: k[0], B: k[1], OldWeight: 0, NewWeight: newW, Delta: delta})
		}
	}

	if len(changes) == 0 {
		return nil
	}

	sort.Slice(changes, func(i, j int) bool { return absf(changes[i].Delta) > absf(changes[j].Delta) })
	return &StructureBreak{Changed: changes, MaxDelta: maxDelta}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
