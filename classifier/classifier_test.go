package classifier

import (
	"testing"

	"alec.dev/alec/context"
	"alec.dev/alec/protocol"
)

func primedContext(t *testing.T, value float64) *context.Context {
	t.Helper()
	ctx := context.New(context.DefaultConfig())
	for i := 0; i < 20; i++ {
		ctx.Observe(protocol.RawValue{SourceID: 1, TimestampMS: uint64(i), Value: value})
	}
	return ctx
}

func TestClassifyNoPrediction(t *testing.T) {
	ctx := context.New(context.DefaultConfig())
	rv := protocol.RawValue{SourceID: 1, Value: 10}
	c := Classify(DefaultConfig(), rv, ctx, 0, 0)
	if !c.Transmit() || c.Priority != protocol.PriorityNormal || c.Reason != ReasonNoPrediction {
		t.Fatalf("unexpected classification: %+v", c)
	}
}

func TestClassifyExtremeAnomaly(t *testing.T) {
	ctx := primedContext(t, 100)
	rv := protocol.RawValue{SourceID: 1, Value: 140}
	c := Classify(DefaultConfig(), rv, ctx, 0, 1000)
	if !c.Transmit() || c.Priority != protocol.PriorityCritical || c.Reason != ReasonExtremeAnomaly {
		t.Fatalf("unexpected classification: %+v", c)
	}
}

func TestClassifySignificantAnomaly(t *testing.T) {
	ctx := primedContext(t, 100)
	rv := protocol.RawValue{SourceID: 1, Value: 120}
	c := Classify(DefaultConfig(), rv, ctx, 0, 1000)
	if !c.Transmit() || c.Priority != protocol.PriorityImportant || c.Reason != ReasonSignificantAnomaly {
		t.Fatalf("unexpected classification: %+v", c)
	}
}

func TestClassifyBelowMinimumDelta(t *testing.T) {
	ctx := primedContext(t, 100)
	rv := protocol.RawValue{SourceID: 1, Value: 100.5}
	c := Classify(DefaultConfig(), rv, ctx, 0, 1000)
	if c.Transmit() || c.Reason != ReasonBelowMinimumDelta {
		t.Fatalf("unexpected classification: %+v", c)
	}
}

func TestClassifyScheduledTransmissionOverridesBelowMinimum(t *testing.T) {
	ctx := primedContext(t, 100)
	cfg := DefaultConfig()
	cfg.ScheduleIntervalMS = 500
	rv := protocol.RawValue{SourceID: 1, Value: 100.5}
	c := Classify(cfg, rv, ctx, 0, 1000)
	if !c.Transmit() || c.Priority != protocol.PriorityNormal || c.Reason != ReasonScheduledTransmission {
		t.Fatalf("unexpected classification: %+v", c)
	}
}

func TestClassifyNormalValue(t *testing.T) {
	ctx := primedContext(t, 100)
	rv := protocol.RawValue{SourceID: 1, Value: 105}
	c := Classify(DefaultConfig(), rv, ctx, 0, 1000)
	if !c.Transmit() || c.Priority != protocol.PriorityDeferred || c.Reason != ReasonNormalValue {
		t.Fatalf("unexpected classification: %+v", c)
	}
}

func TestClassifyHardThreshold(t *testing.T) {
	ctx := primedContext(t, 100)
	cfg := DefaultConfig()
	cfg.HardThreshold = 1000
	rv := protocol.RawValue{SourceID: 1, Value: 1200}
	c := Classify(cfg, rv, ctx, 0, 1000)
	if !c.Transmit() || c.Priority != protocol.PriorityCritical || c.Reason != ReasonThresholdExceeded {
		t.Fatalf("unexpected classification: %+v", c)
	}
}

func TestRelativeDeltaHandlesNearZeroPrediction(t *testing.T) {
	d := RelativeDelta(0.5, 0)
	if d <= 0 {
		t.Fatalf("expected large relative delta for near-zero predicted value, got %v", d)
	}
}
