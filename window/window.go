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

// Package window holds a bounded per-channel history of recent samples,
// evicted lazily (on the next Push) rather than on a timer.
package window

// Sample is one value observed on a channel at a point in time.
type Sample struct {
	TimestampMS uint64
	Value       float64
}

// Config bounds a channel's retained history. At least one of MaxAge or
// MaxCount should be nonzero; zero disables that bound.
type Config struct {
	MaxAgeMS uint64
	MaxCount int
}

type channel struct {
	samples []Sample
}

// SlidingWindow retains, per channel ID, the most recent samples bounded
// by Config. Eviction happens lazily inside Push, never on a timer.
type SlidingWindow struct {
	cfg      Config
	channels map[uint32]*channel
	order    []uint32
}

// New creates an empty SlidingWindow.
func New(cfg Config) *SlidingWindow {
	return &SlidingWindow{cfg: cfg, channels: make(map[uint32]*channel)}
}

// Push appends a sample to a channel's history and evicts anything that
// now falls outside the configured bounds.
func (w *SlidingWindow) Push(channelID uint32, value float64, tsMS uint64) {
	ch, ok := w.channels[channelID]
	if !ok {
		ch = &channel{}
		w.channels[channelID] = ch
		w.order = append(w.order, channelID)
	}
	ch.samples = append(ch.samples, Sample{TimestampMS: tsMS, Value: value})
	w.evict(ch, tsMS)
}

func (w *SlidingWindow) evict(ch *channel, nowMS uint64) {
	if w.cfg.MaxAgeMS > 0 {
		cutoff := int64(nowMS) - int64(w.cfg.MaxAgeMS)
		i := 0
		for i < len(ch.samples) && int64(ch.samples[i].TimestampMS) < cutoff {
			i++
		}
		if i > 0 {
			ch.samples = append([]Sample(nil), ch.samples[i:]...)
		}
	}
	if w.cfg.MaxCount > 0 && len(ch.samples) > w.cfg.MaxCount {
		drop := len(ch.samples) - w.cfg.MaxCount
		ch.samples = append([]Sample(nil), ch.samples[drop:]...)
	}
}

// Samples returns the current retained samples for a channel, oldest
// first. Returns nil for a channel that has never been pushed to.
func (w *SlidingWindow) Samples(channelID uint32) []Sample {
	ch, ok := w.channels[channelID]
	if !ok {
		return nil
	}
	return ch.samples
}

// ChannelIDs returns every channel ID that has ever received a Push, in
// first-seen order.
func (w *SlidingWindow) ChannelIDs() []uint32 {
	out := make([]uint32, len(w.order))
	copy(out, w.order)
	return out
}

// Latest returns the most recent sample for a channel, if any.
func (w *SlidingWindow) Latest(channelID uint32) (Sample, bool) {
	ch, ok := w.channels[channelID]
	if !ok || len(ch.samples) == 0 {
		return Sample{}, false
	}
	return ch.samples[len(ch.samples)-1], true
}
