package baseline

import "testing"

func TestFieldStatsAddSample(t *testing.T) {
	var f FieldStats
	f.AddSample(10)
	if f.Mean != 10 || f.Std != 0 {
		t.Fatalf("single sample should have mean=10, std=0, got mean=%v std=%v", f.Mean, f.Std)
	}
	f.AddSample(20)
	if f.Mean != 15 {
		t.Fatalf("expected mean 15 after [10,20], got %v", f.Mean)
	}
	if f.Std <= 0 {
		t.Fatalf("expected nonzero std after two distinct samples, got %v", f.Std)
	}
}

func TestFieldStatsIsValid(t *testing.T) {
	var f FieldStats
	if f.IsValid() {
		t.Fatalf("empty stats should not be valid")
	}
	f.AddSample(1)
	if f.IsValid() {
		t.Fatalf("single sample should not be valid (count < 2)")
	}
	f.AddSample(1)
	if f.IsValid() {
		t.Fatalf("identical samples should not be valid (std == 0)")
	}
	f.AddSample(5)
	if !f.IsValid() {
		t.Fatalf("expected valid stats with count >= 2 and nonzero std")
	}
}

func TestBaselineLockTransition(t *testing.T) {
	cfg := Config{BuildTimeMS: 1000, MinValidSnapshots: 3}
	b := New(0)

	for i := 0; i < 2; i++ {
		b.AddSample(SampleInput{HBytes: 1, HasSignal: true, TC: 1, HJoint: 1})
		b.UpdateProgress(500, cfg)
		if b.ShouldLock(500, cfg) {
			t.Fatalf("should not lock yet at sample %d", i)
		}
	}

	b.AddSample(SampleInput{HBytes: 1, HasSignal: true, TC: 1, HJoint: 1})
	b.UpdateProgress(1500, cfg)
	if !b.ShouldLock(1500, cfg) {
		t.Fatalf("expected lock gate to pass after enough time and samples")
	}
	b.Lock()
	if b.State != Locked {
		t.Fatalf("expected Locked state")
	}
}

func TestBaselineLockIsIdempotent(t *testing.T) {
	b := New(0)
	b.State = Locked
	b.HBytes.AddSample(42)

	b.Lock() // second call, already Locked

	if b.State != Locked {
		t.Fatalf("expected state to remain Locked")
	}
	if b.HBytes.Mean != 42 {
		t.Fatalf("Lock must not mutate field stats")
	}
}

func TestBuildProgressIsMinOfTimeAndSampleProgress(t *testing.T) {
	cfg := Config{BuildTimeMS: 1000, MinValidSnapshots: 10}
	b := New(0)
	for i := 0; i < 2; i++ {
		b.AddSample(SampleInput{HBytes: 1, HasSignal: true})
	}
	b.UpdateProgress(1000, cfg) // time progress maxed, sample progress 0.2
	if b.BuildProgress != 0.2 {
		t.Fatalf("expected build progress 0.2 (sample-bound), got %v", b.BuildProgress)
	}
}

func TestBuilderFiresLockedEventExactlyOnce(t *testing.T) {
	cfg := Config{BuildTimeMS: 100, MinValidSnapshots: 1}
	bb := NewBuilder(cfg)

	fired := bb.Process(SampleInput{HBytes: 1, HasSignal: true}, 0)
	if fired {
		t.Fatalf("should not lock before build time elapses")
	}
	fired = bb.Process(SampleInput{HBytes: 1, HasSignal: true}, 200)
	if !fired {
		t.Fatalf("expected lock event to fire once gates pass")
	}
	fired = bb.Process(SampleInput{HBytes: 1, HasSignal: true}, 300)
	if fired {
		t.Fatalf("lock event must not refire on subsequent ticks")
	}
}

func TestBuilderLockedFrozenPolicyDoesNotChangeStats(t *testing.T) {
	cfg := Config{BuildTimeMS: 0, MinValidSnapshots: 1, LockedPolicy: PolicyFrozen}
	bb := NewBuilder(cfg)
	bb.Process(SampleInput{HBytes: 1, HasSignal: true}, 0)

	meanBefore := bb.Baseline().HBytes.Mean
	bb.Process(SampleInput{HBytes: 1000, HasSignal: true}, 1)
	if bb.Baseline().HBytes.Mean != meanBefore {
		t.Fatalf("frozen policy must not change stats: before=%v after=%v", meanBefore, bb.Baseline().HBytes.Mean)
	}
}

func TestBuilderLockedEMAPolicyMovesMean(t *testing.T) {
	cfg := Config{BuildTimeMS: 0, MinValidSnapshots: 1, LockedPolicy: PolicyEMA, EMAAlphaPercent: 50}
	bb := NewBuilder(cfg)
	bb.Process(SampleInput{HBytes: 1, HasSignal: true}, 0)

	meanBefore := bb.Baseline().HBytes.Mean
	bb.Process(SampleInput{HBytes: 1000, HasSignal: true}, 1)
	if bb.Baseline().HBytes.Mean <= meanBefore {
		t.Fatalf("EMA policy should move mean toward a large new sample: before=%v after=%v", meanBefore, bb.Baseline().HBytes.Mean)
	}
}
