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

// Package errs collects the tagged error types surfaced across the codec,
// context, sync and channel boundaries. Errors are never coalesced into a
// single opaque type: callers switch on the concrete type to decide whether
// a frame is droppable, whether a resync is required, or whether the
// failure is fatal to the call but survivable to the engine.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// BufferTooShort is returned when a byte slice does not contain enough
// bytes to decode the structure being parsed.
type BufferTooShort struct {
	Needed    int
	Available int
}

func (e *BufferTooShort) Error() string {
	return fmt.Sprintf("buffer too short: need at least %d bytes, got %d", e.Needed, e.Available)
}

// NewBufferTooShort builds a BufferTooShort wrapped with a stack trace.
func NewBufferTooShort(needed, available int) error {
	return errors.WithStack(&BufferTooShort{Needed: needed, Available: available})
}

// UnknownEncodingType is returned when a payload's encoding tag byte does
// not match any defined EncodingTag.
type UnknownEncodingType struct {
	Tag byte
}

func (e *UnknownEncodingType) Error() string {
	return fmt.Sprintf("unknown encoding type: 0x%02x", e.Tag)
}

func NewUnknownEncodingType(tag byte) error {
	return errors.WithStack(&UnknownEncodingType{Tag: tag})
}

// UnknownMessageType is returned when a frame header names a message type
// outside the closed set.
type UnknownMessageType struct {
	Tag byte
}

func (e *UnknownMessageType) Error() string {
	return fmt.Sprintf("unknown message type: %d", e.Tag)
}

func NewUnknownMessageType(tag byte) error {
	return errors.WithStack(&UnknownMessageType{Tag: tag})
}

// MalformedMessage is returned for any structurally invalid payload whose
// failure mode doesn't fit a more specific category.
type MalformedMessage struct {
	Offset int
	Reason string
}

func (e *MalformedMessage) Error() string {
	return fmt.Sprintf("malformed message at offset %d: %s", e.Offset, e.Reason)
}

func NewMalformedMessage(offset int, reason string) error {
	return errors.WithStack(&MalformedMessage{Offset: offset, Reason: reason})
}

// InvalidHeader is returned when the fixed 13-byte header fails structural
// validation (an unsupported protocol version).
type InvalidHeader struct {
	Reason string
}

func (e *InvalidHeader) Error() string {
	return fmt.Sprintf("invalid header: %s", e.Reason)
}

func NewInvalidHeader(reason string) error {
	return errors.WithStack(&InvalidHeader{Reason: reason})
}

// UnknownPattern is returned by the decoder when a Pattern/PatternDelta
// frame references a dictionary code the local context does not hold.
type UnknownPattern struct {
	Code uint32
}

func (e *UnknownPattern) Error() string {
	return fmt.Sprintf("unknown pattern code: %d", e.Code)
}

func NewUnknownPattern(code uint32) error {
	return errors.WithStack(&UnknownPattern{Code: code})
}

// ContextMismatch describes a frame whose context version does not match
// what the decoder holds. codec.Decode does not compare context versions,
// so no function in this module returns it.
type ContextMismatch struct {
	Expected uint32
	Actual   uint32
}

func (e *ContextMismatch) Error() string {
	return fmt.Sprintf("context version mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func NewContextMismatch(expected, actual uint32) error {
	return errors.WithStack(&ContextMismatch{Expected: expected, Actual: actual})
}

// InvalidChecksum is returned by the preload-file loader when the stored
// CRC32 does not match the recomputed value.
type InvalidChecksum struct {
	Expected uint32
	Actual   uint32
}

func (e *InvalidChecksum) Error() string {
	return fmt.Sprintf("invalid checksum: expected %08x, got %08x", e.Expected, e.Actual)
}

func NewInvalidChecksum(expected, actual uint32) error {
	return errors.WithStack(&InvalidChecksum{Expected: expected, Actual: actual})
}

// HashMismatch is returned when applying a sync Diff yields a context
// whose hash does not equal the claimed resulting hash.
type HashMismatch struct {
	Expected uint64
	Actual   uint64
}

func (e *HashMismatch) Error() string {
	return fmt.Sprintf("hash mismatch: expected %016x, got %016x", e.Expected, e.Actual)
}

func NewHashMismatch(expected, actual uint64) error {
	return errors.WithStack(&HashMismatch{Expected: expected, Actual: actual})
}

// VersionGapTooLarge describes a peer's announced version differing from
// the local version by more than the configured max_version_gap. The
// synchroniser's OnAnnounce reports such a gap as an ActionRequestFull
// with a nil error and does not return this type.
type VersionGapTooLarge struct {
	From uint32
	To   uint32
}

func (e *VersionGapTooLarge) Error() string {
	return fmt.Sprintf("version gap too large: from %d to %d", e.From, e.To)
}

func NewVersionGapTooLarge(from, to uint32) error {
	return errors.WithStack(&VersionGapTooLarge{From: from, To: to})
}

// DictionaryFull is returned by RegisterPattern once the dictionary holds
// its configured maximum number of entries.
type DictionaryFull struct {
	Max int
}

func (e *DictionaryFull) Error() string {
	return fmt.Sprintf("dictionary full: maximum %d patterns reached", e.Max)
}

func NewDictionaryFull(max int) error {
	return errors.WithStack(&DictionaryFull{Max: max})
}

// PatternTooLarge is returned by RegisterPattern when the pattern's byte
// length exceeds the 255-byte wire limit.
type PatternTooLarge struct {
	Size int
	Max  int
}

func (e *PatternTooLarge) Error() string {
	return fmt.Sprintf("pattern too large: %d bytes exceeds maximum %d", e.Size, e.Max)
}

func NewPatternTooLarge(size, max int) error {
	return errors.WithStack(&PatternTooLarge{Size: size, Max: max})
}

// SyncFailed wraps a lower-level I/O or reconciliation failure encountered
// while synchronising or persisting a context.
type SyncFailed struct {
	Reason string
}

func (e *SyncFailed) Error() string {
	return fmt.Sprintf("synchronization failed: %s", e.Reason)
}

func NewSyncFailed(reason string) error {
	return errors.WithStack(&SyncFailed{Reason: reason})
}

// MemoryLimitExceeded is returned by admission-control callers (not by the
// core itself, which never enforces it) to signal that MemoryUsage() has
// crossed a caller-supplied limit.
type MemoryLimitExceeded struct {
	Used  int
	Limit int
}

func (e *MemoryLimitExceeded) Error() string {
	return fmt.Sprintf("memory limit exceeded: %d bytes exceeds %d", e.Used, e.Limit)
}

func NewMemoryLimitExceeded(used, limit int) error {
	return errors.WithStack(&MemoryLimitExceeded{Used: used, Limit: limit})
}
