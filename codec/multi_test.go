package codec

import (
	"testing"

	"alec.dev/alec/context"
	"alec.dev/alec/protocol"
)

func TestEncodeDecodeMultiRoundtrip(t *testing.T) {
	ctx := context.New(context.DefaultConfig())
	var seq uint32

	values := []protocol.RawValue{
		{SourceID: 5, Value: 1.5},
		{SourceID: 5, Value: 2.5},
		{SourceID: 5, Value: 3.5},
	}

	frame, err := EncodeMulti(values, 5, 1000, protocol.PriorityNormal, ctx, &seq)
	if err != nil {
		t.Fatalf("EncodeMulti: %v", err)
	}

	got, err := DecodeMulti(frame)
	if err != nil {
		t.Fatalf("DecodeMulti: %v", err)
	}
	if len(got) != len(values) {
		t.Fatalf("got %d values, want %d", len(got), len(values))
	}
	for i, v := range got {
		if float32(v.Value) != float32(values[i].Value) {
			t.Errorf("value %d: got %v, want %v", i, v.Value, values[i].Value)
		}
		if v.SourceID != 5 {
			t.Errorf("value %d: source id mismatch", i)
		}
	}
}

func TestDecodeMultiRejectsWrongTag(t *testing.T) {
	frame := protocol.Frame{Payload: []byte{byte(protocol.TagRaw64)}}
	if _, err := DecodeMulti(frame); err == nil {
		t.Fatalf("expected error for non-multi frame")
	}
}
