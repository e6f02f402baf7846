package codec

import (
	"math"
	"testing"

	"alec.dev/alec/classifier"
	"alec.dev/alec/context"
	"alec.dev/alec/protocol"
)

func roundtrip(t *testing.T, values []float64) {
	t.Helper()

	encCtx := context.New(context.DefaultConfig())
	decCtx := context.New(context.DefaultConfig())
	var encSeq, decSeq uint32

	for i, v := range values {
		rv := protocol.RawValue{SourceID: 1, TimestampMS: uint64(i), Value: v}
		cls := classifier.Classification{Priority: protocol.PriorityNormal}

		frame, err := Encode(rv, cls, encCtx, &encSeq)
		if err != nil {
			t.Fatalf("Encode(%v): %v", v, err)
		}

		got, _, err := Decode(frame, decCtx, &decSeq)
		if err != nil {
			t.Fatalf("Decode(%v): %v", v, err)
		}

		if math.IsNaN(v) {
			if !math.IsNaN(got.Value) {
				t.Fatalf("value %d: want NaN, got %v", i, got.Value)
			}
			continue
		}
		if got.Value != v {
			t.Fatalf("value %d: roundtrip mismatch: got %v, want %v", i, got.Value, v)
		}
	}
}

func TestRoundtripExactRepeat(t *testing.T) {
	roundtrip(t, []float64{10, 10, 10})
}

func TestRoundtripSmallIntegerDeltas(t *testing.T) {
	roundtrip(t, []float64{100, 101, 99, 105, 90})
}

func TestRoundtripNonFinite(t *testing.T) {
	roundtrip(t, []float64{1, math.NaN(), math.Inf(1), math.Inf(-1)})
}

func TestRoundtripLargeJump(t *testing.T) {
	roundtrip(t, []float64{1, 1e9})
}

func TestEncodingSelectionMinimality(t *testing.T) {
	ctx := context.New(context.DefaultConfig())
	var seq uint32
	cls := classifier.Classification{Priority: protocol.PriorityNormal}

	first, err := Encode(protocol.RawValue{SourceID: 1, Value: 100}, cls, ctx, &seq)
	if err != nil {
		t.Fatalf("Encode first: %v", err)
	}
	if protocol.EncodingTag(first.Payload[0]) != protocol.TagRaw32 && protocol.EncodingTag(first.Payload[0]) != protocol.TagRaw64 {
		t.Fatalf("first observation should have no delta basis, got tag %d", first.Payload[0])
	}

	repeat, err := Encode(protocol.RawValue{SourceID: 1, Value: 100}, cls, ctx, &seq)
	if err != nil {
		t.Fatalf("Encode repeat: %v", err)
	}
	if protocol.EncodingTag(repeat.Payload[0]) != protocol.TagRepeated {
		t.Fatalf("exact repeat should use Repeated, got tag %d", repeat.Payload[0])
	}

	small, err := Encode(protocol.RawValue{SourceID: 1, Value: 101}, cls, ctx, &seq)
	if err != nil {
		t.Fatalf("Encode small delta: %v", err)
	}
	if protocol.EncodingTag(small.Payload[0]) != protocol.TagDelta8 {
		t.Fatalf("small integer delta should use Delta8, got tag %d", small.Payload[0])
	}
}

func TestSequenceGapDetection(t *testing.T) {
	ctx := context.New(context.DefaultConfig())
	var seq uint32
	// One before the encoder's first sequence number (0), so the first
	// frame is exactly one past the last decoded sequence.
	lastSeq := ^uint32(0)
	cls := classifier.Classification{Priority: protocol.PriorityNormal}

	f1, _ := Encode(protocol.RawValue{SourceID: 1, Value: 1}, cls, ctx, &seq)
	if _, meta, err := Decode(f1, ctx, &lastSeq); err != nil || meta.SequenceGap {
		t.Fatalf("first frame should have no gap: meta=%+v err=%v", meta, err)
	}

	seq++ // simulate a dropped frame in between
	f3, _ := Encode(protocol.RawValue{SourceID: 1, Value: 2}, cls, ctx, &seq)
	_, meta, err := Decode(f3, ctx, &lastSeq)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !meta.SequenceGap || meta.Gap != 1 {
		t.Fatalf("expected gap of 1, got %+v", meta)
	}
}

func TestDecodeRepeatedWithoutPriorValueFails(t *testing.T) {
	ctx := context.New(context.DefaultConfig())
	var lastSeq uint32
	body := []byte{byte(protocol.TagRepeated)}
	body = protocol.AppendVarint(body, 1)
	frame := protocol.Frame{Header: protocol.Header{Sequence: 0}, Payload: body}

	if _, _, err := Decode(frame, ctx, &lastSeq); err == nil {
		t.Fatalf("expected error decoding Repeated with no prior value")
	}
}

func TestDecodeUnknownPattern(t *testing.T) {
	ctx := context.New(context.DefaultConfig())
	var lastSeq uint32
	body := []byte{byte(protocol.TagPattern)}
	body = protocol.AppendVarint(body, 1) // source id
	body = protocol.AppendVarint(body, 42)
	frame := protocol.Frame{Header: protocol.Header{Sequence: 0}, Payload: body}

	if _, _, err := Decode(frame, ctx, &lastSeq); err == nil {
		t.Fatalf("expected UnknownPattern error")
	}
}

func TestDecodeDeltaWithoutPriorPredictionFails(t *testing.T) {
	ctx := context.New(context.DefaultConfig())
	var lastSeq uint32
	body := []byte{byte(protocol.TagDelta8)}
	body = protocol.AppendVarint(body, 1)
	body = append(body, 0x01)
	frame := protocol.Frame{Header: protocol.Header{Sequence: 0}, Payload: body}

	if _, _, err := Decode(frame, ctx, &lastSeq); err == nil {
		t.Fatalf("expected error decoding Delta8 with no prior prediction")
	}
}

func TestDecodeInterpolatedWithoutPriorPredictionFails(t *testing.T) {
	ctx := context.New(context.DefaultConfig())
	var lastSeq uint32
	body := []byte{byte(protocol.TagInterpolated)}
	body = protocol.AppendVarint(body, 1)
	frame := protocol.Frame{Header: protocol.Header{Sequence: 0}, Payload: body}

	if _, _, err := Decode(frame, ctx, &lastSeq); err == nil {
		t.Fatalf("expected error decoding Interpolated with no prior prediction")
	}
}

func TestEncodingDeltaBasisUsesPredictionNotLastValue(t *testing.T) {
	ctx := context.New(context.DefaultConfig())
	var seq uint32
	cls := classifier.Classification{Priority: protocol.PriorityNormal}

	// Settle the source into a low-variance, warm MovingAverage regime
	// where the last raw value and the predicted moving average diverge.
	for _, v := range []float64{100, 100, 100, 100, 100.02} {
		if _, err := Encode(protocol.RawValue{SourceID: 1, Value: v}, cls, ctx, &seq); err != nil {
			t.Fatalf("Encode settle: %v", err)
		}
	}
	pred, ok := ctx.Predict(1)
	if !ok || pred.ModelTag != context.ModelMovingAverage {
		t.Fatalf("expected source to be warm and in MovingAverage regime, got %+v ok=%v", pred, ok)
	}
	last, _ := ctx.LastValue(1)
	if pred.Value == last {
		t.Fatalf("test requires prediction and last value to diverge, both were %v", last)
	}

	// Encoding and decoding pred.Value itself must round-trip exactly: the
	// delta basis on both ends is the prediction, not the raw last value.
	frame, err := Encode(protocol.RawValue{SourceID: 1, Value: pred.Value}, cls, ctx, &seq)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var lastSeq uint32
	decCtx := context.New(context.DefaultConfig())
	for _, v := range []float64{100, 100, 100, 100, 100.02} {
		decCtx.Observe(protocol.RawValue{SourceID: 1, Value: v})
	}
	got, _, err := Decode(frame, decCtx, &lastSeq)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Value != pred.Value {
		t.Fatalf("roundtrip mismatch: got %v, want %v (basis must be the prediction)", got.Value, pred.Value)
	}
}

func TestDecodeUnknownEncodingTag(t *testing.T) {
	ctx := context.New(context.DefaultConfig())
	var lastSeq uint32
	body := []byte{0xFE}
	body = protocol.AppendVarint(body, 1)
	frame := protocol.Frame{Header: protocol.Header{Sequence: 0}, Payload: body}

	if _, _, err := Decode(frame, ctx, &lastSeq); err == nil {
		t.Fatalf("expected UnknownEncodingType error")
	}
}
