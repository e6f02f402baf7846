package context

import (
	"testing"

	"alec.dev/alec/protocol"
)

func TestObserveAndPredictColdIsLastValue(t *testing.T) {
	c := New(DefaultConfig())
	c.Observe(protocol.RawValue{SourceID: 1, TimestampMS: 0, Value: 10})

	pred, ok := c.Predict(1)
	if !ok {
		t.Fatalf("expected prediction after one observation")
	}
	if pred.ModelTag != ModelLastValue {
		t.Fatalf("cold source should predict LastValue, got %v", pred.ModelTag)
	}
	if pred.Value != 10 {
		t.Fatalf("want 10, got %v", pred.Value)
	}
}

func TestPredictMissingSource(t *testing.T) {
	c := New(DefaultConfig())
	if _, ok := c.Predict(99); ok {
		t.Fatalf("expected no prediction for unobserved source")
	}
}

func TestPredictSwitchesToMovingAverageOnceStable(t *testing.T) {
	c := New(DefaultConfig())
	for i := 0; i < 20; i++ {
		c.Observe(protocol.RawValue{SourceID: 1, TimestampMS: uint64(i), Value: 5.0})
	}
	pred, ok := c.Predict(1)
	if !ok {
		t.Fatalf("expected prediction")
	}
	if pred.ModelTag != ModelMovingAverage {
		t.Fatalf("stable low-variance source should predict MovingAverage, got %v", pred.ModelTag)
	}
	if pred.Confidence != 0.95 {
		t.Fatalf("zero-variance source should have top confidence, got %v", pred.Confidence)
	}
}

func TestVersionIncrementsOnObserve(t *testing.T) {
	c := New(DefaultConfig())
	if c.Version() != 0 {
		t.Fatalf("new context should start at version 0")
	}
	c.Observe(protocol.RawValue{SourceID: 1, Value: 1})
	if c.Version() != 1 {
		t.Fatalf("expected version 1 after one observe, got %d", c.Version())
	}
}

func TestRegisterPatternDedupes(t *testing.T) {
	c := New(DefaultConfig())
	code1, err := c.RegisterPattern(Pattern{Data: []byte("abc")})
	if err != nil {
		t.Fatalf("RegisterPattern: %v", err)
	}
	v1 := c.Version()

	code2, err := c.RegisterPattern(Pattern{Data: []byte("abc")})
	if err != nil {
		t.Fatalf("RegisterPattern dup: %v", err)
	}
	if code1 != code2 {
		t.Fatalf("expected dedup to return same code: %d vs %d", code1, code2)
	}
	if c.Version() != v1 {
		t.Fatalf("duplicate registration should not bump version")
	}

	code3, err := c.RegisterPattern(Pattern{Data: []byte("xyz")})
	if err != nil {
		t.Fatalf("RegisterPattern new: %v", err)
	}
	if code3 == code1 {
		t.Fatalf("distinct patterns must get distinct codes")
	}
	if c.Version() != v1+1 {
		t.Fatalf("new registration should bump version")
	}
}

func TestRegisterPatternResolvesForcedHashCollision(t *testing.T) {
	c := New(DefaultConfig())
	codeA, err := c.RegisterPattern(Pattern{Data: []byte("abc")})
	if err != nil {
		t.Fatalf("RegisterPattern: %v", err)
	}

	// Force a collision: point "abc"'s slot at a different pattern's
	// bytes, as if two unrelated patterns truly hashed to the same key.
	h := patternHash([]byte("abc"))
	c.dictionary[codeA] = Pattern{Data: []byte("not-abc")}
	c.patternIndex[h] = codeA

	codeB, err := c.RegisterPattern(Pattern{Data: []byte("abc")})
	if err != nil {
		t.Fatalf("RegisterPattern colliding: %v", err)
	}
	if codeB == codeA {
		t.Fatalf("colliding pattern must not alias the existing, different entry")
	}
	got, ok := c.Pattern(codeB)
	if !ok || string(got.Data) != "abc" {
		t.Fatalf("expected the tie-broken code to store the new pattern's own bytes, got %+v ok=%v", got, ok)
	}
}

func TestRegisterPatternTooLarge(t *testing.T) {
	c := New(DefaultConfig())
	_, err := c.RegisterPattern(Pattern{Data: make([]byte, 256)})
	if err == nil {
		t.Fatalf("expected PatternTooLarge error")
	}
}

func TestRegisterPatternDictionaryFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPatterns = 1
	c := New(cfg)
	if _, err := c.RegisterPattern(Pattern{Data: []byte("a")}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := c.RegisterPattern(Pattern{Data: []byte("b")}); err == nil {
		t.Fatalf("expected DictionaryFull error")
	}
}

func TestHashDeterministicAcrossInsertionOrder(t *testing.T) {
	c1 := New(DefaultConfig())
	c1.RegisterPattern(Pattern{Data: []byte("a")})
	c1.RegisterPattern(Pattern{Data: []byte("b")})

	c2 := New(DefaultConfig())
	c2.SetPattern(1, Pattern{Data: []byte("b")})
	c2.SetPattern(0, Pattern{Data: []byte("a")})

	if c1.Hash() != c2.Hash() {
		t.Fatalf("hash should be independent of insertion order")
	}
}

func TestExportImportFullRoundtrip(t *testing.T) {
	c := New(DefaultConfig())
	c.RegisterPattern(Pattern{Data: []byte("hello")})
	c.RegisterPattern(Pattern{Data: []byte("world")})

	blob := c.ExportFull()

	c2 := New(DefaultConfig())
	if err := c2.ImportFull(blob); err != nil {
		t.Fatalf("ImportFull: %v", err)
	}
	if c2.Hash() != c.Hash() {
		t.Fatalf("imported context hash mismatch")
	}
	if c2.Version() != c.Version() {
		t.Fatalf("imported context version mismatch: got %d want %d", c2.Version(), c.Version())
	}
	if c2.PatternCount() != c.PatternCount() {
		t.Fatalf("imported pattern count mismatch")
	}
}

func TestImportFullRejectsTamperedHash(t *testing.T) {
	c := New(DefaultConfig())
	c.RegisterPattern(Pattern{Data: []byte("hello")})
	blob := c.ExportFull()
	blob[4] ^= 0xFF // corrupt the claimed hash

	c2 := New(DefaultConfig())
	if err := c2.ImportFull(blob); err == nil {
		t.Fatalf("expected hash mismatch error")
	}
}

func TestMemoryUsageGrowsWithPatternsAndSources(t *testing.T) {
	c := New(DefaultConfig())
	base := c.MemoryUsage()

	c.RegisterPattern(Pattern{Data: []byte("abcdef")})
	c.Observe(protocol.RawValue{SourceID: 1, Value: 1})

	if c.MemoryUsage() <= base {
		t.Fatalf("memory usage should grow after adding a pattern and a source")
	}
}

func TestDeriveScaleSeedDeterministic(t *testing.T) {
	a := DeriveScaleSeed("pressure")
	b := DeriveScaleSeed("pressure")
	c := DeriveScaleSeed("temperature")
	if len(a) != 32 {
		t.Fatalf("expected 32-byte seed, got %d", len(a))
	}
	if string(a) != string(b) {
		t.Fatalf("same sensor type must derive the same seed")
	}
	if string(a) == string(c) {
		t.Fatalf("different sensor types must derive different seeds")
	}
}
