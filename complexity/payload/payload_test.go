package payload

import "testing"

func TestByteEntropyEmptyIsZero(t *testing.T) {
	m := ByteEntropy(nil)
	if m.HBytes != 0 {
		t.Fatalf("expected zero entropy for empty payload, got %v", m.HBytes)
	}
}

func TestByteEntropyUniformIsZero(t *testing.T) {
	m := ByteEntropy([]byte{7, 7, 7, 7, 7})
	if m.HBytes != 0 {
		t.Fatalf("expected zero entropy for a single repeated byte, got %v", m.HBytes)
	}
}

func TestByteEntropyMaximalForUniformDistribution(t *testing.T) {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	m := ByteEntropy(b)
	if m.HBytes < 7.99 || m.HBytes > 8.0001 {
		t.Fatalf("expected entropy near 8 bits for a uniform byte distribution, got %v", m.HBytes)
	}
}

func TestByteEntropyNonNegative(t *testing.T) {
	m := ByteEntropy([]byte{1, 2, 3, 1, 2, 1})
	if m.HBytes < 0 {
		t.Fatalf("entropy must be non-negative, got %v", m.HBytes)
	}
}

func TestHistogramByChannelDisabledByDefault(t *testing.T) {
	got := HistogramByChannel([]byte{1, 2, 3, 4}, []int{2}, Config{})
	if got != nil {
		t.Fatalf("expected nil when PerChannelSplit is disabled")
	}
}

func TestHistogramByChannelSplitsRanges(t *testing.T) {
	got := HistogramByChannel([]byte{1, 2, 3, 4}, []int{2}, Config{PerChannelSplit: true})
	if len(got) != 2 {
		t.Fatalf("expected 2 ranges, got %d", len(got))
	}
	if got[0].FrameSizeBytes != 2 || got[1].FrameSizeBytes != 2 {
		t.Fatalf("unexpected range sizes: %+v", got)
	}
}
