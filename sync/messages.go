package sync

import (
	"math"

	"alec.dev/alec/context"
	"alec.dev/alec/errs"
	"alec.dev/alec/protocol"
)

// Wire tags for sync messages: the first byte of the payload, distinct
// from protocol.MsgType's 3-bit header field since these messages are
// self-describing and can be exchanged outside a full Frame.
const (
	tagAnnounce       byte = 0x10
	tagRequest        byte = 0x11
	tagDiff           byte = 0x12
	tagReqDetail      byte = 0x13
	tagReqRange       byte = 0x14
	tagDetailResponse byte = 0x15
)

// Announce advertises a peer's current dictionary version and hash.
type Announce struct {
	Version      uint32
	Hash         uint64
	PatternCount uint32
}

// ToBytes serialises an Announce message.
func (a Announce) ToBytes() []byte {
	buf := make([]byte, 0, 17)
	buf = append(buf, tagAnnounce)
	buf = appendU32(buf, a.Version)
	buf = appendU64(buf, a.Hash)
	buf = appendU32(buf, a.PatternCount)
	return buf
}

// Request asks a peer for a Diff from FromVersion. ToVersion is only
// meaningful when HasToVersion is set; an unset ToVersion means "up to
// whatever you currently have".
type Request struct {
	FromVersion  uint32
	ToVersion    uint32
	HasToVersion bool
}

// ToBytes serialises a Request message.
func (r Request) ToBytes() []byte {
	buf := make([]byte, 0, 10)
	buf = append(buf, tagRequest)
	buf = appendU32(buf, r.FromVersion)
	if r.HasToVersion {
		buf = append(buf, 1)
		buf = appendU32(buf, r.ToVersion)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// ToBytes serialises a Diff message.
func (d Diff) ToBytes() []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, tagDiff)
	buf = appendU32(buf, d.BaseVersion)
	buf = appendU32(buf, d.NewVersion)
	buf = appendU64(buf, d.Hash)

	buf = appendU32(buf, uint32(len(d.Added)))
	for _, a := range d.Added {
		buf = appendU32(buf, a.Code)
		buf = append(buf, byte(len(a.Pattern.Data)))
		buf = append(buf, a.Pattern.Data...)
	}

	buf = appendU32(buf, uint32(len(d.Removed)))
	for _, code := range d.Removed {
		buf = appendU32(buf, code)
	}
	return buf
}

// ReqDetail asks a peer to resend the raw value for one sequence number.
type ReqDetail struct {
	Sequence uint32
}

func (r ReqDetail) ToBytes() []byte {
	buf := make([]byte, 0, 5)
	buf = append(buf, tagReqDetail)
	buf = appendU32(buf, r.Sequence)
	return buf
}

// ReqRange asks a peer to resend every raw value for a source within a
// timestamp range.
type ReqRange struct {
	SourceID uint32
	FromTS   uint64
	ToTS     uint64
}

func (r ReqRange) ToBytes() []byte {
	buf := make([]byte, 0, 20)
	buf = append(buf, tagReqRange)
	buf = appendU32(buf, r.SourceID)
	buf = appendU64(buf, r.FromTS)
	buf = appendU64(buf, r.ToTS)
	return buf
}

// DetailResponse answers a ReqDetail with the original raw value.
type DetailResponse struct {
	Sequence uint32
	RawValue protocol.RawValue
}

func (r DetailResponse) ToBytes() []byte {
	buf := make([]byte, 0, 25)
	buf = append(buf, tagDetailResponse)
	buf = appendU32(buf, r.Sequence)
	buf = appendU32(buf, r.RawValue.SourceID)
	buf = appendU64(buf, r.RawValue.TimestampMS)
	bits := math.Float64bits(r.RawValue.Value)
	buf = appendU64(buf, bits)
	return buf
}

// Message is the closed set of decoded sync wire messages.
type Message interface {
	ToBytes() []byte
}

// FromBytes dispatches on the leading tag byte and decodes the
// corresponding Message.
func FromBytes(b []byte) (Message, error) {
	if len(b) < 1 {
		return nil, errs.NewBufferTooShort(1, len(b))
	}
	switch b[0] {
	case tagAnnounce:
		if len(b) < 17 {
			return nil, errs.NewBufferTooShort(17, len(b))
		}
		return Announce{
			Version:      getU32(b[1:5]),
			Hash:         getU64(b[5:13]),
			PatternCount: getU32(b[13:17]),
		}, nil

	case tagRequest:
		if len(b) < 6 {
			return nil, errs.NewBufferTooShort(6, len(b))
		}
		has := b[5] != 0
		req := Request{FromVersion: getU32(b[1:5]), HasToVersion: has}
		if has {
			if len(b) < 10 {
				return nil, errs.NewBufferTooShort(10, len(b))
			}
			req.ToVersion = getU32(b[6:10])
		}
		return req, nil

	case tagDiff:
		return decodeDiff(b)

	case tagReqDetail:
		if len(b) < 5 {
			return nil, errs.NewBufferTooShort(5, len(b))
		}
		return ReqDetail{Sequence: getU32(b[1:5])}, nil

	case tagReqRange:
		if len(b) < 21 {
			return nil, errs.NewBufferTooShort(21, len(b))
		}
		return ReqRange{
			SourceID: getU32(b[1:5]),
			FromTS:   getU64(b[5:13]),
			ToTS:     getU64(b[13:21]),
		}, nil

	case tagDetailResponse:
		if len(b) < 25 {
			return nil, errs.NewBufferTooShort(25, len(b))
		}
		return DetailResponse{
			Sequence: getU32(b[1:5]),
			RawValue: protocol.RawValue{
				SourceID:    getU32(b[5:9]),
				TimestampMS: getU64(b[9:17]),
				Value:       math.Float64frombits(getU64(b[17:25])),
			},
		}, nil

	default:
		return nil, errs.NewUnknownMessageType(b[0])
	}
}

func decodeDiff(b []byte) (Diff, error) {
	if len(b) < 17 {
		return Diff{}, errs.NewBufferTooShort(17, len(b))
	}
	d := Diff{
		BaseVersion: getU32(b[1:5]),
		NewVersion:  getU32(b[5:9]),
		Hash:        getU64(b[9:17]),
	}
	offset := 17

	if offset+4 > len(b) {
		return Diff{}, errs.NewBufferTooShort(offset+4, len(b))
	}
	addedCount := getU32(b[offset : offset+4])
	offset += 4

	for i := uint32(0); i < addedCount; i++ {
		if offset+5 > len(b) {
			return Diff{}, errs.NewBufferTooShort(offset+5, len(b))
		}
		code := getU32(b[offset : offset+4])
		plen := int(b[offset+4])
		offset += 5
		if offset+plen > len(b) {
			return Diff{}, errs.NewBufferTooShort(offset+plen, len(b))
		}
		data := append([]byte(nil), b[offset:offset+plen]...)
		offset += plen
		d.Added = append(d.Added, AddedPattern{Code: code, Pattern: context.Pattern{Data: data}})
	}

	if offset+4 > len(b) {
		return Diff{}, errs.NewBufferTooShort(offset+4, len(b))
	}
	removedCount := getU32(b[offset : offset+4])
	offset += 4

	for i := uint32(0); i < removedCount; i++ {
		if offset+4 > len(b) {
			return Diff{}, errs.NewBufferTooShort(offset+4, len(b))
		}
		d.Removed = append(d.Removed, getU32(b[offset:offset+4]))
		offset += 4
	}

	return d, nil
}

func appendU32(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendU64(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func getU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
