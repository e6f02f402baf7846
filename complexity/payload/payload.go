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

// Package payload computes the Shannon byte entropy of a frame's raw
// bytes, independent of its decoded meaning. Always computable, unlike
// the signal estimator which needs a batch of aligned history.
package payload

import "math"

// Config toggles the per-channel reporting extension.
type Config struct {
	PerChannelSplit bool
}

// Metrics is one frame's payload-entropy measurement.
type Metrics struct {
	FrameSizeBytes int
	HBytes         float64
	Histogram      [256]uint32
}

// ByteEntropy computes the 256-bin Shannon entropy (in bits) of b.
func ByteEntropy(b []byte) Metrics {
	var hist [256]uint32
	for _, c := range b {
		hist[c]++
	}

	n := float64(len(b))
	h := 0.0
	if n > 0 {
		for _, count := range hist {
			if count == 0 {
				continue
			}
			p := float64(count) / n
			h -= p * math.Log2(p)
		}
	}

	return Metrics{FrameSizeBytes: len(b), HBytes: h, Histogram: hist}
}

// HistogramByChannel splits a concatenated multi-channel payload into
// len(bounds)+1 contiguous byte ranges (bounds are split offsets) and
// computes ByteEntropy independently for each range. This is the
// reporting extension referenced in the signal estimator's design
// notes: off unless Config.PerChannelSplit is set.
func HistogramByChannel(b []byte, bounds []int, cfg Config) []Metrics {
	if !cfg.PerChannelSplit {
		return nil
	}

	out := make([]Metrics, 0, len(bounds)+1)
	start := 0
	for _, end := range bounds {
		if end > len(b) {
			end = len(b)
		}
		out = append(out, ByteEntropy(b[start:end]))
		start = end
	}
	out = append(out, ByteEntropy(b[start:]))
	return out
}
