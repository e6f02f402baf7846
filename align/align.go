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

// Package align reconciles independently-timestamped channels in a
// window.SlidingWindow onto a common set of reference timestamps, so
// downstream complexity metrics can treat a multi-channel observation
// as one vector.
package align

import (
	"sort"

	"alec.dev/alec/window"
)

// Strategy picks how a channel's value at a reference timestamp is
// derived from its nearby samples.
type Strategy uint8

const (
	SampleAndHold Strategy = iota
	Nearest
	LinearInterpolation
)

// MissingPolicy controls what happens when one or more channels have no
// resolvable value at a reference timestamp.
type MissingPolicy uint8

const (
	DropIncomplete MissingPolicy = iota
	AllowPartial
	FillWithLastKnown
)

// AlignedSnapshot is one reference timestamp's reconciled view across
// channels. ChannelIDs is sorted and matches the iteration a caller
// should use for deterministic output.
type AlignedSnapshot struct {
	TimestampMS uint64
	Values      map[uint32]float64
	ChannelIDs  []uint32
}

// Align produces one AlignedSnapshot per entry in refTimestamps (in the
// order given), dropping or trimming snapshots per missing according to
// missing and minChannels.
func Align(w *window.SlidingWindow, refTimestamps []uint64, strategy Strategy, missing MissingPolicy, minChannels int) []AlignedSnapshot {
	channelIDs := append([]uint32(nil), w.ChannelIDs()...)
	sort.Slice(channelIDs, func(i, j int) bool { return channelIDs[i] < channelIDs[j] })

	out := make([]AlignedSnapshot, 0, len(refTimestamps))

	for _, ts := range refTimestamps {
		values := make(map[uint32]float64, len(channelIDs))

		for _, id := range channelIDs {
			samples := w.Samples(id)
			v, ok := resolve(samples, ts, strategy)
			if !ok && missing == FillWithLastKnown {
				if last, lok := w.Latest(id); lok {
					v, ok = last.Value, true
				}
			}
			if ok {
				values[id] = v
			}
		}

		if missing == DropIncomplete && len(values) < len(channelIDs) {
			continue
		}
		if len(values) < minChannels {
			continue
		}

		present := make([]uint32, 0, len(values))
		for id := range values {
			present = append(present, id)
		}
		sort.Slice(present, func(i, j int) bool { return present[i] < present[j] })

		out = append(out, AlignedSnapshot{TimestampMS: ts, Values: values, ChannelIDs: present})
	}

	return out
}

func resolve(samples []window.Sample, ts uint64, strategy Strategy) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}

	switch strategy {
	case SampleAndHold:
		return sampleAndHold(samples, ts)
	case Nearest:
		return nearest(samples, ts)
	case LinearInterpolation:
		return linearInterpolate(samples, ts)
	default:
		return 0, false
	}
}

func sampleAndHold(samples []window.Sample, ts uint64) (float64, bool) {
	found := false
	var v float64
	for _, s := range samples {
		if s.TimestampMS > ts {
			break
		}
		v = s.Value
		found = true
	}
	return v, found
}

func nearest(samples []window.Sample, ts uint64) (float64, bool) {
	bestDiff := int64(-1)
	var best float64
	for _, s := range samples {
		diff := int64(s.TimestampMS) - int64(ts)
		if diff < 0 {
			diff = -diff
		}
		if bestDiff == -1 || diff < bestDiff {
			bestDiff = diff
			best = s.Value
		}
	}
	return best, bestDiff != -1
}

func linearInterpolate(samples []window.Sample, ts uint64) (float64, bool) {
	var before, after *window.Sample
	for i := range samples {
		s := &samples[i]
		if s.TimestampMS <= ts {
			before = s
		}
		if s.TimestampMS >= ts && after == nil {
			after = s
		}
	}

	switch {
	case before == nil && after == nil:
		return 0, false
	case before == nil:
		return after.Value, true
	case after == nil:
		return before.Value, true
	case before.TimestampMS == after.TimestampMS:
		return before.Value, true
	default:
		span := float64(after.TimestampMS - before.TimestampMS)
		frac := float64(ts-before.TimestampMS) / span
		return before.Value + frac*(after.Value-before.Value), true
	}
}
