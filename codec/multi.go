package codec

import (
	"alec.dev/alec/context"
	"alec.dev/alec/errs"
	"alec.dev/alec/protocol"
)

// EncodeMulti packs several simultaneous observations from one source
// into a single frame. The inner tag is always TagRaw32 today; the
// dispatch below is an exhaustive switch so a future inner encoding is a
// single added case rather than a new wire format.
func EncodeMulti(values []protocol.RawValue, sourceID uint32, tsMS uint64, pr protocol.Priority, ctx *context.Context, seq *uint32) (protocol.Frame, error) {
	body := make([]byte, 0, 8+len(values)*4)
	body = append(body, byte(protocol.TagMulti))
	body = protocol.AppendVarint(body, uint64(sourceID))
	body = protocol.AppendVarint(body, uint64(len(values)))
	body = append(body, byte(protocol.TagRaw32))

	for _, v := range values {
		switch protocol.TagRaw32 {
		case protocol.TagRaw32:
			body = append(body, encodeRaw32(float32(v.Value))...)
		default:
			return protocol.Frame{}, errs.NewUnknownEncodingType(byte(protocol.TagRaw32))
		}
		ctx.Observe(protocol.RawValue{SourceID: sourceID, TimestampMS: tsMS, Value: v.Value})
	}

	h := protocol.Header{
		Version:        protocol.ProtocolVersion,
		MsgType:        protocol.MsgData,
		Priority:       pr,
		Sequence:       *seq,
		TimestampLow32: uint32(tsMS),
	}
	*seq++

	return protocol.Frame{Header: h, Payload: body}, nil
}

// DecodeMulti reverses EncodeMulti, returning one RawValue per packed
// sample, all sharing the frame's source ID and timestamp.
func DecodeMulti(frame protocol.Frame) ([]protocol.RawValue, error) {
	body := frame.Payload
	if len(body) < 1 || protocol.EncodingTag(body[0]) != protocol.TagMulti {
		return nil, errs.NewMalformedMessage(0, "not a multi-value frame")
	}

	sourceID, n, err := protocol.Varint(body[1:])
	if err != nil {
		return nil, err
	}
	offset := 1 + n

	count, n, err := protocol.Varint(body[offset:])
	if err != nil {
		return nil, err
	}
	offset += n

	if offset >= len(body) {
		return nil, errs.NewBufferTooShort(offset+1, len(body))
	}
	innerTag := protocol.EncodingTag(body[offset])
	offset++

	values := make([]protocol.RawValue, 0, count)
	for i := uint64(0); i < count; i++ {
		var value float64
		switch innerTag {
		case protocol.TagRaw32:
			if offset+4 > len(body) {
				return nil, errs.NewBufferTooShort(offset+4, len(body))
			}
			value = decodeRaw32(body[offset : offset+4])
			offset += 4
		default:
			return nil, errs.NewUnknownEncodingType(byte(innerTag))
		}
		values = append(values, protocol.RawValue{
			SourceID:    uint32(sourceID),
			TimestampMS: uint64(frame.Header.TimestampLow32),
			Value:       value,
		})
	}

	return values, nil
}
