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

// Package codec turns a RawValue plus a Classification into the smallest
// frame that reconstructs it on the other side, and reverses the
// process. Encoding choice never depends on anything the decoder cannot
// also derive from the shared context.
package codec

import (
	"math"

	"alec.dev/alec/classifier"
	"alec.dev/alec/context"
	"alec.dev/alec/errs"
	"alec.dev/alec/protocol"
)

// DecodeMeta carries information about the frame's place in the sequence
// that isn't part of the reconstructed value itself.
type DecodeMeta struct {
	// SequenceGap is true when the frame's sequence number is not
	// exactly one past the last decoded sequence.
	SequenceGap bool
	// Gap is signed: positive means frames were lost, negative means a
	// reorder or a wraparound was observed.
	Gap int64
}

// Encode picks the smallest encoding that reconstructs rv, to within the
// resolution of the chosen encoding, given the context's current
// knowledge of its source, in this precedence:
//
//  1. Non-finite (NaN or +/-Inf) values always use Raw64 (delta and
//     float32 arithmetic on them is not well-defined).
//  2. An exact repeat of the source's last observed value uses Repeated
//     (zero-byte payload).
//  3. A delta from the source's current prediction (ctx.Predict) that
//     fits, once scaled by the context's scale factor and rounded, in a
//     signed 8/16/32-bit integer uses the smallest of
//     Delta8/Delta16/Delta32; the reconstruction is exact only to
//     1/scale.
//  4. A value whose float32 round-trip reproduces it within 1e-4 uses
//     Raw32.
//  5. Otherwise, Raw64.
//
// Encode observes rv into ctx and advances *seq after a successful
// encode.
func Encode(rv protocol.RawValue, cls classifier.Classification, ctx *context.Context, seq *uint32) (protocol.Frame, error) {
	tag, payload := chooseEncoding(rv.Value, ctx, rv.SourceID)

	body := make([]byte, 0, 16)
	body = append(body, byte(tag))
	body = protocol.AppendVarint(body, uint64(rv.SourceID))
	body = append(body, payload...)

	h := protocol.Header{
		Version:        protocol.ProtocolVersion,
		MsgType:        protocol.MsgData,
		Priority:       cls.Priority,
		Sequence:       *seq,
		TimestampLow32: uint32(rv.TimestampMS),
		ContextVersion: ctx.Version(),
	}

	frame := protocol.Frame{Header: h, Payload: body}

	ctx.Observe(rv)
	*seq++

	return frame, nil
}

func chooseEncoding(value float64, ctx *context.Context, sourceID uint32) (protocol.EncodingTag, []byte) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return protocol.TagRaw64, encodeRaw64(value)
	}

	last, hasLast := ctx.LastValue(sourceID)

	if hasLast && value == last {
		return protocol.TagRepeated, nil
	}

	if pred, hasPred := ctx.Predict(sourceID); hasPred {
		scale := float64(ctx.ScaleFactor())
		if scale <= 0 {
			scale = 1
		}
		delta := value - pred.Value
		scaled := math.Round(delta * scale)

		if fitsInt(scaled, 8) {
			return protocol.TagDelta8, encodeDeltaN(int64(scaled), 1)
		}
		if fitsInt(scaled, 16) {
			return protocol.TagDelta16, encodeDeltaN(int64(scaled), 2)
		}
		if fitsInt(scaled, 32) {
			return protocol.TagDelta32, encodeDeltaN(int64(scaled), 4)
		}
	}

	f32 := float32(value)
	if float64(f32) == value || math.Abs(float64(f32)-value) < 1e-4 {
		return protocol.TagRaw32, encodeRaw32(f32)
	}

	return protocol.TagRaw64, encodeRaw64(value)
}

func fitsInt(v float64, bits int) bool {
	switch bits {
	case 8:
		return v >= math.MinInt8 && v <= math.MaxInt8
	case 16:
		return v >= math.MinInt16 && v <= math.MaxInt16
	case 32:
		return v >= math.MinInt32 && v <= math.MaxInt32
	default:
		return false
	}
}

func encodeRaw64(v float64) []byte {
	bits := math.Float64bits(v)
	return []byte{
		byte(bits >> 56), byte(bits >> 48), byte(bits >> 40), byte(bits >> 32),
		byte(bits >> 24), byte(bits >> 16), byte(bits >> 8), byte(bits),
	}
}

func decodeRaw64(b []byte) float64 {
	var bits uint64
	for i := 0; i < 8; i++ {
		bits = bits<<8 | uint64(b[i])
	}
	return math.Float64frombits(bits)
}

func encodeRaw32(v float32) []byte {
	bits := math.Float32bits(v)
	return []byte{byte(bits >> 24), byte(bits >> 16), byte(bits >> 8), byte(bits)}
}

func decodeRaw32(b []byte) float64 {
	bits := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return float64(math.Float32frombits(bits))
}

func encodeDeltaN(v int64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[n-1-i] = byte(v >> (8 * i))
	}
	return out
}

func decodeDeltaN(b []byte) int64 {
	var v int64
	neg := b[0]&0x80 != 0
	if neg {
		v = -1
	}
	for _, c := range b {
		v = (v << 8) | int64(c)
	}
	return v
}

// Decode reverses Encode. It tracks sequence continuity against
// *lastSeq (updated unconditionally on success) and observes the
// reconstructed value into ctx.
func Decode(frame protocol.Frame, ctx *context.Context, lastSeq *uint32) (protocol.RawValue, DecodeMeta, error) {
	body := frame.Payload
	if len(body) < 1 {
		return protocol.RawValue{}, DecodeMeta{}, errs.NewBufferTooShort(1, len(body))
	}
	tag := protocol.EncodingTag(body[0])

	sourceID, n, err := protocol.Varint(body[1:])
	if err != nil {
		return protocol.RawValue{}, DecodeMeta{}, err
	}
	offset := 1 + n
	rest := body[offset:]

	value, err := decodePayload(tag, rest, ctx, uint32(sourceID))
	if err != nil {
		return protocol.RawValue{}, DecodeMeta{}, err
	}

	meta := sequenceMeta(frame.Header.Sequence, lastSeq)

	rv := protocol.RawValue{
		SourceID:    uint32(sourceID),
		TimestampMS: uint64(frame.Header.TimestampLow32),
		Value:       value,
	}
	ctx.Observe(rv)

	return rv, meta, nil
}

func sequenceMeta(seq uint32, lastSeq *uint32) DecodeMeta {
	expected := *lastSeq + 1
	gap := int64(seq) - int64(expected)
	*lastSeq = seq
	return DecodeMeta{SequenceGap: gap != 0, Gap: gap}
}

func decodePayload(tag protocol.EncodingTag, rest []byte, ctx *context.Context, sourceID uint32) (float64, error) {
	switch tag {
	case protocol.TagRaw64:
		if len(rest) < 8 {
			return 0, errs.NewBufferTooShort(8, len(rest))
		}
		return decodeRaw64(rest), nil

	case protocol.TagRaw32:
		if len(rest) < 4 {
			return 0, errs.NewBufferTooShort(4, len(rest))
		}
		return decodeRaw32(rest), nil

	case protocol.TagDelta8, protocol.TagDelta16, protocol.TagDelta32:
		size := tag.TypicalSize()
		if len(rest) < size {
			return 0, errs.NewBufferTooShort(size, len(rest))
		}
		pred, ok := ctx.Predict(sourceID)
		if !ok {
			return 0, errs.NewMalformedMessage(0, "delta tag with no prediction available for source")
		}
		scale := float64(ctx.ScaleFactor())
		if scale <= 0 {
			scale = 1
		}
		delta := decodeDeltaN(rest[:size])
		return pred.Value + float64(delta)/scale, nil

	case protocol.TagRepeated:
		last, ok := ctx.LastValue(sourceID)
		if !ok {
			return 0, errs.NewMalformedMessage(0, "repeated tag with no prior value for source")
		}
		return last, nil

	case protocol.TagInterpolated:
		// Payload carries no bytes; the value is reconstructed exactly
		// from the source's current prediction.
		pred, ok := ctx.Predict(sourceID)
		if !ok {
			return 0, errs.NewMalformedMessage(0, "interpolated tag with no prediction available for source")
		}
		return pred.Value, nil

	case protocol.TagPattern:
		code, n, err := protocol.Varint(rest)
		if err != nil {
			return 0, err
		}
		_ = n
		p, ok := ctx.Pattern(uint32(code))
		if !ok {
			return 0, errs.NewUnknownPattern(uint32(code))
		}
		if p.Value == nil {
			return 0, nil
		}
		return *p.Value, nil

	case protocol.TagPatternDelta:
		code, n, err := protocol.Varint(rest)
		if err != nil {
			return 0, err
		}
		tail := rest[n:]
		if len(tail) < 4 {
			return 0, errs.NewBufferTooShort(4, len(tail))
		}
		p, ok := ctx.Pattern(uint32(code))
		if !ok {
			return 0, errs.NewUnknownPattern(uint32(code))
		}
		base := 0.0
		if p.Value != nil {
			base = *p.Value
		}
		scale := float64(ctx.ScaleFactor())
		if scale <= 0 {
			scale = 1
		}
		delta := decodeDeltaN(tail[:4])
		return base + float64(delta)/scale, nil

	default:
		return 0, errs.NewUnknownEncodingType(byte(tag))
	}
}
