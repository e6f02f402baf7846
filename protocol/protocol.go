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

// Package protocol defines the wire-level primitives shared by the codec
// and synchroniser: priorities, message kinds, encoding tags, the fixed
// 13-byte header and the varint helpers. Nothing here touches a context
// or performs any I/O.
package protocol

import (
	"alec.dev/alec/errs"
)

// ProtocolVersion is the current wire version, carried in the top two
// bits of header byte 0. Decoders reject frames with any other version.
const ProtocolVersion uint8 = 0

// HeaderSize is the fixed size in bytes of a Frame's header.
const HeaderSize = 13

// Priority is a totally ordered transmission priority. The first three
// imply immediate transmission; Critical additionally requires an ack at
// the transport layer.
type Priority uint8

const (
	PriorityCritical Priority = iota
	PriorityImportant
	PriorityNormal
	PriorityDeferred
	PriorityDisposable
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityImportant:
		return "important"
	case PriorityNormal:
		return "normal"
	case PriorityDeferred:
		return "deferred"
	case PriorityDisposable:
		return "disposable"
	default:
		return "unknown"
	}
}

// RequiresImmediateTransmission reports whether this priority implies the
// value must be sent right away rather than batched or dropped.
func (p Priority) RequiresImmediateTransmission() bool {
	return p == PriorityCritical || p == PriorityImportant || p == PriorityNormal
}

// RequiresAck reports whether transport-level acknowledgement is implied.
func (p Priority) RequiresAck() bool {
	return p == PriorityCritical
}

// MsgType identifies the purpose of a Frame on the wire.
type MsgType uint8

const (
	MsgData MsgType = iota
	MsgAnnounce
	MsgRequest
	MsgDiff
	MsgReqDetail
	MsgReqRange
	MsgDetailResponse
)

// EncodingTag is the closed set of payload encodings a Data frame may use.
type EncodingTag uint8

const (
	TagRaw64 EncodingTag = iota
	TagRaw32
	TagDelta8
	TagDelta16
	TagDelta32
	TagPattern
	TagPatternDelta
	TagRepeated
	TagInterpolated
	TagMulti
)

// TypicalSize returns the fixed payload size in bytes following the tag
// byte, for tags whose size does not depend on content. Pattern, varint
// or count-prefixed tags return -1.
func (t EncodingTag) TypicalSize() int {
	switch t {
	case TagRaw64:
		return 8
	case TagRaw32:
		return 4
	case TagDelta8:
		return 1
	case TagDelta16:
		return 2
	case TagDelta32:
		return 4
	case TagRepeated, TagInterpolated:
		return 0
	default:
		return -1
	}
}

// RawValue is an immutable observation: a source identifier, a monotonic
// millisecond timestamp, and the observed value.
type RawValue struct {
	SourceID    uint32
	TimestampMS uint64
	Value       float64
}

// Header is the fixed 13-byte frame preamble.
type Header struct {
	Version        uint8
	MsgType        MsgType
	Priority       Priority
	Sequence       uint32
	TimestampLow32 uint32
	ContextVersion uint32
}

// Encode writes the header's 13-byte wire representation into dst, which
// must have length >= HeaderSize.
func (h Header) Encode(dst []byte) {
	_ = dst[HeaderSize-1]
	dst[0] = (h.Version << 6) | (uint8(h.MsgType) << 3) | uint8(h.Priority)
	putU32(dst[1:5], h.Sequence)
	putU32(dst[5:9], h.TimestampLow32)
	putU32(dst[9:13], h.ContextVersion)
}

// DecodeHeader parses a 13-byte header. Returns InvalidHeader on an
// unsupported protocol version.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, errs.NewBufferTooShort(HeaderSize, len(src))
	}
	b0 := src[0]
	version := b0 >> 6
	msgType := (b0 >> 3) & 0x07
	priority := b0 & 0x07

	if version != ProtocolVersion {
		return Header{}, errs.NewInvalidHeader("unsupported protocol version")
	}
	if msgType > uint8(MsgDetailResponse) {
		return Header{}, errs.NewUnknownMessageType(msgType)
	}

	return Header{
		Version:        version,
		MsgType:        MsgType(msgType),
		Priority:       Priority(priority),
		Sequence:       getU32(src[1:5]),
		TimestampLow32: getU32(src[5:9]),
		ContextVersion: getU32(src[9:13]),
	}, nil
}

// Frame is a complete wire message: header plus opaque payload bytes.
type Frame struct {
	Header  Header
	Payload []byte
}

// Bytes serialises the frame to its wire form.
func (f Frame) Bytes() []byte {
	out := make([]byte, HeaderSize+len(f.Payload))
	f.Header.Encode(out[:HeaderSize])
	copy(out[HeaderSize:], f.Payload)
	return out
}

// ParseFrame reverses Bytes.
func ParseFrame(src []byte) (Frame, error) {
	h, err := DecodeHeader(src)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Header: h, Payload: src[HeaderSize:]}, nil
}

func putU32(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}

func getU32(src []byte) uint32 {
	return uint32(src[0])<<24 | uint32(src[1])<<16 | uint32(src[2])<<8 | uint32(src[3])
}

// PutVarint appends the base-128 little-endian varint encoding of v to dst
// and returns the number of bytes written.
func PutVarint(dst []byte, v uint64) int {
	n := 0
	for v >= 0x80 {
		dst[n] = byte(v&0x7F) | 0x80
		v >>= 7
		n++
	}
	dst[n] = byte(v)
	n++
	return n
}

// AppendVarint is the growing-slice counterpart of PutVarint.
func AppendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v&0x7F)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// Varint decodes a base-128 little-endian varint from src, returning the
// value, the number of bytes consumed, and an error. A varint whose
// continuation bits run past 32 bits of payload (5 bytes with a 7-bit
// group in the last) is malformed, matching the wire format's use of
// varints strictly for 32-bit source IDs.
func Varint(src []byte) (v uint64, n int, err error) {
	var shift uint
	for {
		if n >= len(src) {
			return 0, 0, errs.NewBufferTooShort(n+1, len(src))
		}
		b := src[n]
		n++
		if shift >= 32 {
			return 0, 0, errs.NewMalformedMessage(n-1, "varint too long")
		}
		v |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return v, n, nil
		}
		shift += 7
	}
}
