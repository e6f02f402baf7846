package anomaly

import (
	"testing"

	"alec.dev/alec/complexity/delta"
)

func rule() RuleConfig {
	return RuleConfig{Threshold: 2.0, PersistenceMS: 1000, CooldownMS: 1000, CriticalMultiple: 1.5}
}

func TestNoEventBelowThreshold(t *testing.T) {
	d := NewDetector(Config{PayloadEntropySpike: rule(), ComplexitySurge: rule(), RedundancyDrop: rule()})
	events := d.Detect(delta.ZScores{HBytes: 0.5}, 0)
	if len(events) != 0 {
		t.Fatalf("expected no events below threshold, got %+v", events)
	}
}

// TestRequiresPersistenceBeforeFiring models worked example S5: three
// over-threshold samples at ts 0, 500 and 1100 with a 1000ms persistence
// window must not fire before ts 1100.
func TestRequiresPersistenceBeforeFiring(t *testing.T) {
	cfg := Config{PayloadEntropySpike: rule()}
	d := NewDetector(cfg)

	events := d.Detect(delta.ZScores{HBytes: 3.0}, 0)
	if len(events) != 0 {
		t.Fatalf("expected no event when the condition has just started, got %+v", events)
	}
	events = d.Detect(delta.ZScores{HBytes: 3.0}, 500)
	if len(events) != 0 {
		t.Fatalf("expected no event before persistence_ms has elapsed, got %+v", events)
	}
	events = d.Detect(delta.ZScores{HBytes: 3.0}, 1100)
	if len(events) != 1 {
		t.Fatalf("expected event once the condition has held for persistence_ms, got %+v", events)
	}
	if events[0].Type != PayloadEntropySpike {
		t.Fatalf("expected PayloadEntropySpike event, got %v", events[0].Type)
	}
}

func TestPersistenceResetsOnDrop(t *testing.T) {
	cfg := Config{PayloadEntropySpike: rule()}
	d := NewDetector(cfg)

	d.Detect(delta.ZScores{HBytes: 3.0}, 0)
	d.Detect(delta.ZScores{HBytes: 0.1}, 500) // drops below threshold, resets the condition start
	events := d.Detect(delta.ZScores{HBytes: 3.0}, 600)
	if len(events) != 0 {
		t.Fatalf("expected the condition-start timestamp to have reset, got %+v", events)
	}
	events = d.Detect(delta.ZScores{HBytes: 3.0}, 1700)
	if len(events) != 1 {
		t.Fatalf("expected event once the condition has held for persistence_ms from its new start, got %+v", events)
	}
}

func TestCooldownSuppressesRefiring(t *testing.T) {
	cfg := Config{PayloadEntropySpike: RuleConfig{Threshold: 2.0, PersistenceMS: 0, CooldownMS: 1000, CriticalMultiple: 1.5}}
	d := NewDetector(cfg)

	events := d.Detect(delta.ZScores{HBytes: 3.0}, 0)
	if len(events) != 1 {
		t.Fatalf("expected first event to fire immediately, got %+v", events)
	}
	events = d.Detect(delta.ZScores{HBytes: 3.0}, 500)
	if len(events) != 0 {
		t.Fatalf("expected cooldown to suppress refiring within the window, got %+v", events)
	}
	events = d.Detect(delta.ZScores{HBytes: 3.0}, 1500)
	if len(events) != 1 {
		t.Fatalf("expected event to fire again after cooldown elapses, got %+v", events)
	}
}

func TestRedundancyDropIsNegativeOnly(t *testing.T) {
	cfg := Config{RedundancyDrop: RuleConfig{Threshold: 2.0, PersistenceMS: 0, CooldownMS: 0, CriticalMultiple: 1.5}}
	d := NewDetector(cfg)

	r := 3.0
	events := d.Detect(delta.ZScores{R: &r}, 0)
	if len(events) != 0 {
		t.Fatalf("expected no redundancy-drop event for a positive z-score, got %+v", events)
	}

	d2 := NewDetector(cfg)
	neg := -3.0
	events = d2.Detect(delta.ZScores{R: &neg}, 0)
	if len(events) != 1 {
		t.Fatalf("expected redundancy-drop event for a negative z-score, got %+v", events)
	}
}

func TestNilFieldNeverFires(t *testing.T) {
	cfg := Config{ComplexitySurge: RuleConfig{Threshold: 0.1, PersistenceMS: 0, CooldownMS: 0, CriticalMultiple: 1.5}}
	d := NewDetector(cfg)
	events := d.Detect(delta.ZScores{TC: nil}, 0)
	if len(events) != 0 {
		t.Fatalf("expected no event when the field is absent, got %+v", events)
	}
}

func TestSeverityEscalatesAboveCriticalMultiple(t *testing.T) {
	cfg := Config{PayloadEntropySpike: RuleConfig{Threshold: 2.0, PersistenceMS: 0, CooldownMS: 0, CriticalMultiple: 1.5}}
	d := NewDetector(cfg)
	events := d.Detect(delta.ZScores{HBytes: 10.0}, 0)
	if len(events) != 1 || events[0].Severity != SeverityCritical {
		t.Fatalf("expected Critical severity for a far-over-threshold z-score, got %+v", events)
	}
}
