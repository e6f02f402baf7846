package window

import "testing"

func TestPushAndSamples(t *testing.T) {
	w := New(Config{})
	w.Push(1, 10, 100)
	w.Push(1, 20, 200)

	samples := w.Samples(1)
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].Value != 10 || samples[1].Value != 20 {
		t.Fatalf("unexpected sample order: %+v", samples)
	}
}

func TestEvictionByCount(t *testing.T) {
	w := New(Config{MaxCount: 2})
	w.Push(1, 1, 0)
	w.Push(1, 2, 1)
	w.Push(1, 3, 2)

	samples := w.Samples(1)
	if len(samples) != 2 {
		t.Fatalf("expected 2 retained samples, got %d", len(samples))
	}
	if samples[0].Value != 2 || samples[1].Value != 3 {
		t.Fatalf("expected oldest sample evicted, got %+v", samples)
	}
}

func TestEvictionByAge(t *testing.T) {
	w := New(Config{MaxAgeMS: 100})
	w.Push(1, 1, 0)
	w.Push(1, 2, 50)
	w.Push(1, 3, 250)

	samples := w.Samples(1)
	if len(samples) != 1 {
		t.Fatalf("expected 1 retained sample, got %d: %+v", len(samples), samples)
	}
	if samples[0].Value != 3 {
		t.Fatalf("expected only the freshest sample to remain, got %+v", samples)
	}
}

func TestChannelIDsAndLatest(t *testing.T) {
	w := New(Config{})
	w.Push(5, 1, 0)
	w.Push(2, 2, 0)

	ids := w.ChannelIDs()
	if len(ids) != 2 || ids[0] != 5 || ids[1] != 2 {
		t.Fatalf("expected first-seen order [5 2], got %v", ids)
	}

	latest, ok := w.Latest(5)
	if !ok || latest.Value != 1 {
		t.Fatalf("unexpected latest: %+v ok=%v", latest, ok)
	}

	if _, ok := w.Latest(99); ok {
		t.Fatalf("expected no latest for unknown channel")
	}
}
