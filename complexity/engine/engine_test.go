package engine

import "testing"

func refTimestamps(n int, stepMS uint64) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(i) * stepMS
	}
	return out
}

func seededEngine(t *testing.T) (*Engine, []uint64) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Signal.MinAlignedSamples = 8
	cfg.Baseline.BuildTimeMS = 0
	cfg.Baseline.MinValidSnapshots = 1
	e := New(cfg)

	for i := 0; i < 20; i++ {
		ts := uint64(i) * 100
		e.Ingest(1, float64(i%5), ts)
		e.Ingest(2, float64((i*3)%7), ts)
	}
	return e, refTimestamps(20, 100)
}

func TestProcessProducesValidSignalWithEnoughSamples(t *testing.T) {
	e, refs := seededEngine(t)
	e.RecordFrame([]byte("abcdefgh"))

	snap := e.Process(refs, 2000)
	if !snap.Signal.Valid {
		t.Fatalf("expected valid signal metrics with %d aligned samples", len(refs))
	}
	if snap.Status.ActiveChannels != 2 {
		t.Fatalf("expected 2 active channels, got %d", snap.Status.ActiveChannels)
	}
}

func TestProcessLocksBaselineAndThenProducesDeltas(t *testing.T) {
	e, refs := seededEngine(t)
	e.RecordFrame([]byte("abcdefgh"))

	first := e.Process(refs, 1000)
	if first.Baseline.State != 1 {
		t.Fatalf("expected baseline to have locked on first process call, got state %v", first.Baseline.State)
	}

	second := e.Process(refs, 2000)
	if !second.HasDelta {
		t.Fatalf("expected deltas once the baseline is locked")
	}
}

func TestToComplexitySnapshotReflectsBaselineState(t *testing.T) {
	e, refs := seededEngine(t)
	e.RecordFrame([]byte("abcdefgh"))
	snap := e.Process(refs, 1000)

	j := e.ToComplexitySnapshot(snap, nil)
	if j.Version != "0.1.0" {
		t.Fatalf("expected schema version 0.1.0, got %v", j.Version)
	}
	if j.Baseline.State != "locked" {
		t.Fatalf("expected baseline state 'locked', got %v", j.Baseline.State)
	}
}

func TestToMetricsSnapshotCarriesSignalAndPayload(t *testing.T) {
	e, refs := seededEngine(t)
	e.RecordFrame([]byte("abcdefgh"))
	snap := e.Process(refs, 1000)

	j := e.ToMetricsSnapshot(snap, "count", uint64(len(refs)), nil)
	if j.Version != 1 {
		t.Fatalf("expected schema version 1, got %v", j.Version)
	}
	if j.Signal.Valid != snap.Signal.Valid {
		t.Fatalf("metrics snapshot signal.valid mismatch")
	}
	if j.Payload.FrameSizeBytes != len("abcdefgh") {
		t.Fatalf("expected frame size %d, got %d", len("abcdefgh"), j.Payload.FrameSizeBytes)
	}
}

func TestCountersTrackSamplesAndSnapshots(t *testing.T) {
	e, refs := seededEngine(t)
	e.Process(refs, 1000)

	c := e.Counters()
	slice := c.ToSlice()
	header := c.Header()
	if len(slice) != len(header) {
		t.Fatalf("Header/ToSlice length mismatch: %d vs %d", len(header), len(slice))
	}
	if slice[0] == "0" {
		t.Fatalf("expected nonzero SamplesObserved counter")
	}
}
