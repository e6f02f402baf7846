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

// Package context holds the shared, version-numbered state that both ends
// of a stream evolve in lockstep: a pattern dictionary and per-source
// running statistics. Encoder and decoder derive every prediction and
// dictionary lookup from here; nothing in this package performs I/O or
// blocks.
package context

import (
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/pbkdf2"
	"crypto/sha256"

	"alec.dev/alec/errs"
	"alec.dev/alec/protocol"
)

// ModelTag identifies which predictive model produced a Prediction.
type ModelTag uint8

const (
	ModelNone ModelTag = iota
	ModelLastValue
	ModelLinear
	ModelMovingAverage
	ModelPeriodic
)

// Pattern is a dictionary entry: a byte blob (<=255 bytes), an optional
// resolved numeric value (used by PatternDelta), and an observation
// frequency carried through for preload export.
type Pattern struct {
	Data      []byte
	Value     *float64
	Frequency uint64
}

// Prediction is the result of Predict: a value, a confidence in [0,1],
// and which model produced it.
type Prediction struct {
	Value      float64
	Confidence float64
	ModelTag   ModelTag
}

// Config parameterises a Context's history and dictionary limits.
type Config struct {
	// HistorySize bounds the per-source moving-average ring.
	HistorySize int
	// MaxPatterns bounds the dictionary (wire limit is 65536).
	MaxPatterns int
	// ScaleFactor is the fixed-point scale applied to deltas.
	ScaleFactor uint32
	// VarianceFloor: predictions switch to MovingAverage once the
	// source's sample variance drops below this floor.
	VarianceFloor float64
	// ColdSamples: fewer observations than this and the source is
	// considered "cold", forcing LastValue regardless of variance.
	ColdSamples uint64
	// SensorType seeds RegisterPattern's hash-collision tie-break (see
	// DeriveScaleSeed). Two peers that preload the same named sensor
	// resolve a dictionary hash collision identically even if the
	// colliding patterns arrive in a different order. Leaving it empty
	// is safe; collisions just tie-break on a fixed, unnamed seed.
	SensorType string
}

// DefaultConfig returns sane defaults matching the reference values named
// in the confidence-plateau table.
func DefaultConfig() Config {
	return Config{
		HistorySize:   16,
		MaxPatterns:   65536,
		ScaleFactor:   100,
		VarianceFloor: 1e-2,
		ColdSamples:   4,
	}
}

// sourceStats tracks Welford online mean/variance plus a bounded moving
// average ring and the last observed value, per source.
type sourceStats struct {
	count      uint64
	mean       float64
	m2         float64
	hasLast    bool
	last       float64
	history    []float64
	head       int
	hasMinMax  bool
	min, max   float64
}

func newSourceStats(historySize int) *sourceStats {
	return &sourceStats{history: make([]float64, 0, historySize)}
}

func (s *sourceStats) observe(value float64, historySize int) {
	s.count++
	delta := value - s.mean
	s.mean += delta / float64(s.count)
	delta2 := value - s.mean
	s.m2 += delta * delta2

	s.last = value
	s.hasLast = true

	if !s.hasMinMax {
		s.min, s.max = value, value
		s.hasMinMax = true
	} else {
		if value < s.min {
			s.min = value
		}
		if value > s.max {
			s.max = value
		}
	}

	if historySize <= 0 {
		return
	}
	if len(s.history) < historySize {
		s.history = append(s.history, value)
	} else {
		s.history[s.head] = value
		s.head = (s.head + 1) % historySize
	}
}

func (s *sourceStats) variance() float64 {
	if s.count < 2 {
		return 0
	}
	v := s.m2 / float64(s.count-1)
	if v < 0 {
		return 0
	}
	return v
}

func (s *sourceStats) movingAverage() float64 {
	if len(s.history) == 0 {
		return s.last
	}
	sum := 0.0
	for _, v := range s.history {
		sum += v
	}
	return sum / float64(len(s.history))
}

// Context is the shared predictive state: a pattern dictionary with a
// hash index for deduplication, and per-source statistics.
type Context struct {
	cfg Config

	version uint32

	dictionary   map[uint32]Pattern
	patternIndex map[uint64]uint32
	nextCode     uint32
	scaleSeed    []byte

	sources map[uint32]*sourceStats

	observationCount uint64
}

// New creates an empty Context with the given configuration.
func New(cfg Config) *Context {
	return &Context{
		cfg:          cfg,
		dictionary:   make(map[uint32]Pattern),
		patternIndex: make(map[uint64]uint32),
		sources:      make(map[uint32]*sourceStats),
		scaleSeed:    DeriveScaleSeed(cfg.SensorType),
	}
}

// Version returns the current version counter. It increments on every
// successful Observe, RegisterPattern, or SetPattern.
func (c *Context) Version() uint32 { return c.version }

// ObservationCount returns the total number of Observe calls.
func (c *Context) ObservationCount() uint64 { return c.observationCount }

// Observe folds a new sample into the source's running statistics and
// bumps the context version. Both sides of a stream must call this after
// every successfully en/decoded value for reconstructability to hold.
func (c *Context) Observe(rv protocol.RawValue) {
	s, ok := c.sources[rv.SourceID]
	if !ok {
		s = newSourceStats(c.cfg.HistorySize)
		c.sources[rv.SourceID] = s
	}
	s.observe(rv.Value, c.cfg.HistorySize)
	c.observationCount++
	c.version++
}

// LastValue returns the most recently observed value for a source, if any.
func (c *Context) LastValue(sourceID uint32) (float64, bool) {
	s, ok := c.sources[sourceID]
	if !ok || !s.hasLast {
		return 0, false
	}
	return s.last, true
}

// ScaleFactor returns the configured fixed-point delta scale.
func (c *Context) ScaleFactor() uint32 { return c.cfg.ScaleFactor }

// Predict returns the current prediction for a source, or false if the
// source has never been observed.
func (c *Context) Predict(sourceID uint32) (Prediction, bool) {
	s, ok := c.sources[sourceID]
	if !ok || s.count == 0 {
		return Prediction{}, false
	}

	variance := s.variance()
	confidence := confidenceFor(variance)

	cold := s.count < c.cfg.ColdSamples
	noisy := variance >= c.cfg.VarianceFloor

	if cold || noisy {
		return Prediction{Value: s.last, Confidence: confidence, ModelTag: ModelLastValue}, true
	}
	return Prediction{Value: s.movingAverage(), Confidence: confidence, ModelTag: ModelMovingAverage}, true
}

// SourceStats is a snapshot of one source's running statistics, used
// by preload-file serialisation.
type SourceStats struct {
	Mean        float64
	Variance    float64
	MinObserved float64
	MaxObserved float64
	MinExpected float64
	MaxExpected float64
	Recent      []float64
}

// Stats returns a snapshot of the source's statistics, or false if the
// source has never been observed. Expected bounds are mean +/- 3
// standard deviations of the Gaussian model implied by the running
// variance.
func (c *Context) Stats(sourceID uint32) (SourceStats, bool) {
	s, ok := c.sources[sourceID]
	if !ok || s.count == 0 {
		return SourceStats{}, false
	}
	variance := s.variance()
	std := math.Sqrt(variance)
	recent := append([]float64(nil), s.history...)
	return SourceStats{
		Mean:        s.mean,
		Variance:    variance,
		MinObserved: s.min,
		MaxObserved: s.max,
		MinExpected: s.mean - 3*std,
		MaxExpected: s.mean + 3*std,
		Recent:      recent,
	}, true
}

func confidenceFor(variance float64) float64 {
	switch {
	case variance < 1e-3:
		return 0.95
	case variance < 1e-2:
		return 0.85
	case variance < 1e-1:
		return 0.70
	default:
		return 0.50
	}
}

// patternHash fingerprints a pattern's bytes for dictionary dedup.
func patternHash(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// RegisterPattern deduplicates by the pattern's byte hash: a pattern
// whose bytes already exist in the dictionary returns the existing code
// without bumping the version. A genuinely new pattern is assigned the
// next code, inserted, and bumps the version. Fails with DictionaryFull
// or PatternTooLarge without mutating any state.
//
// Two distinct patterns can land on the same 64-bit hash. When that
// happens, RegisterPattern re-hashes the new pattern's bytes salted with
// the context's scale seed (see DeriveScaleSeed) to pick a tie-broken
// slot instead of silently aliasing it to the existing entry. Because
// the seed is derived only from the sensor type, two peers that preload
// the same named sensor resolve the collision to the same slot.
func (c *Context) RegisterPattern(p Pattern) (uint32, error) {
	if len(p.Data) > 255 {
		return 0, errs.NewPatternTooLarge(len(p.Data), 255)
	}

	h := c.resolvePatternHash(p.Data)
	if code, ok := c.patternIndex[h]; ok {
		return code, nil
	}

	if len(c.dictionary) >= c.cfg.MaxPatterns {
		return 0, errs.NewDictionaryFull(c.cfg.MaxPatterns)
	}

	code := c.nextCode
	c.nextCode++
	c.dictionary[code] = p
	c.patternIndex[h] = code
	c.version++
	return code, nil
}

// resolvePatternHash returns data's dictionary key, tie-breaking a
// collision against an existing, different pattern by folding in the
// context's scale seed until a free or matching slot is found.
func (c *Context) resolvePatternHash(data []byte) uint64 {
	h := patternHash(data)
	salted := append(append([]byte(nil), data...), c.scaleSeed...)
	for attempt := 0; ; attempt++ {
		code, ok := c.patternIndex[h]
		if !ok {
			return h
		}
		if existing := c.dictionary[code]; bytesEqual(existing.Data, data) {
			return h
		}
		h = xxhash.Sum64(appendU32(salted, uint32(attempt)))
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HasPattern reports whether a dictionary code is currently bound.
func (c *Context) HasPattern(code uint32) bool {
	_, ok := c.dictionary[code]
	return ok
}

// Pattern looks up a dictionary entry by code.
func (c *Context) Pattern(code uint32) (Pattern, bool) {
	p, ok := c.dictionary[code]
	return p, ok
}

// SetPattern binds a pattern to an explicit code (used when applying a
// sync Diff), replacing any prior binding, and bumps the version.
func (c *Context) SetPattern(code uint32, p Pattern) error {
	if len(p.Data) > 255 {
		return errs.NewPatternTooLarge(len(p.Data), 255)
	}
	if old, ok := c.dictionary[code]; ok {
		delete(c.patternIndex, patternHash(old.Data))
	}
	c.dictionary[code] = p
	c.patternIndex[patternHash(p.Data)] = code
	if code >= c.nextCode {
		c.nextCode = code + 1
	}
	c.version++
	return nil
}

// RemovePattern unbinds a dictionary code, if present.
func (c *Context) RemovePattern(code uint32) {
	if old, ok := c.dictionary[code]; ok {
		delete(c.patternIndex, patternHash(old.Data))
		delete(c.dictionary, code)
		c.version++
	}
}

// PatternCount returns the number of bound dictionary entries.
func (c *Context) PatternCount() int { return len(c.dictionary) }

// PatternCodes returns the currently bound dictionary codes, sorted.
func (c *Context) PatternCodes() []uint32 {
	codes := make([]uint32, 0, len(c.dictionary))
	for code := range c.dictionary {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// SetVersion overwrites the version counter directly; used when applying
// a sync Diff, which carries its own resulting version.
func (c *Context) SetVersion(v uint32) { c.version = v }

// Hash is a deterministic fingerprint over the sorted (code, len, data)
// triples of the dictionary. Identical dictionaries always hash equal,
// regardless of insertion order.
func (c *Context) Hash() uint64 {
	codes := c.PatternCodes()

	var buf []byte
	for _, code := range codes {
		p := c.dictionary[code]
		buf = protocol.AppendVarint(buf, uint64(code))
		buf = append(buf, byte(len(p.Data)))
		buf = append(buf, p.Data...)
	}
	return xxhash.Sum64(buf)
}

// MemoryUsage is an O(#patterns) estimate used by callers for admission
// control: dictionary bytes plus a fixed per-entry overhead, plus a fixed
// per-source-stats cost, plus a small constant for the context itself.
func (c *Context) MemoryUsage() int {
	total := 256
	for _, p := range c.dictionary {
		total += len(p.Data) + 32
	}
	total += len(c.sources) * 200
	return total
}

// ExportFull serialises the dictionary (not per-source stats) to bytes:
// version(4) | hash(8) | count(2) | [code(4) | len(1) | data(len)]*.
func (c *Context) ExportFull() []byte {
	codes := c.PatternCodes()

	buf := make([]byte, 0, 14+len(codes)*8)
	buf = appendU32(buf, c.version)
	buf = appendU64(buf, c.Hash())
	buf = appendU16(buf, uint16(len(codes)))
	for _, code := range codes {
		p := c.dictionary[code]
		buf = appendU32(buf, code)
		buf = append(buf, byte(len(p.Data)))
		buf = append(buf, p.Data...)
	}
	return buf
}

// ImportFull rebuilds the dictionary and its index from a byte blob
// produced by ExportFull, then verifies the recomputed hash against the
// blob's claimed hash. A mismatch is a hard error and the Context is left
// unmodified.
func (c *Context) ImportFull(b []byte) error {
	if len(b) < 14 {
		return errs.NewBufferTooShort(14, len(b))
	}
	version := getU32(b[0:4])
	claimedHash := getU64(b[4:12])
	count := int(getU16(b[12:14]))
	prevDictionary, prevIndex, prevNextCode, prevVersion := c.dictionary, c.patternIndex, c.nextCode, c.version

	offset := 14
	dictionary := make(map[uint32]Pattern, count)
	patternIndex := make(map[uint64]uint32, count)
	maxCode := uint32(0)

	for i := 0; i < count; i++ {
		if offset+5 > len(b) {
			return errs.NewBufferTooShort(offset+5, len(b))
		}
		code := getU32(b[offset : offset+4])
		plen := int(b[offset+4])
		offset += 5
		if offset+plen > len(b) {
			return errs.NewBufferTooShort(offset+plen, len(b))
		}
		data := append([]byte(nil), b[offset:offset+plen]...)
		offset += plen

		dictionary[code] = Pattern{Data: data}
		patternIndex[patternHash(data)] = code
		if code >= maxCode {
			maxCode = code + 1
		}
	}

	c.dictionary = dictionary
	c.patternIndex = patternIndex
	c.nextCode = maxCode
	c.version = version

	actual := c.Hash()
	if actual != claimedHash {
		c.dictionary, c.patternIndex, c.nextCode, c.version = prevDictionary, prevIndex, prevNextCode, prevVersion
		return errs.NewHashMismatch(claimedHash, actual)
	}
	return nil
}

// DeriveScaleSeed derives a deterministic 32-byte seed from a sensor-type
// name, used to salt RegisterPattern's hash-collision tie-break. This is
// not cryptographic: the KDF is PBKDF2 purely for its stable, collision-
// resistant stretching properties, not for secrecy.
func DeriveScaleSeed(sensorType string) []byte {
	const iterations = 1000
	const keyLen = 32
	salt := []byte("alec-context-seed")
	return pbkdf2.Key([]byte(sensorType), salt, iterations, keyLen, sha256.New)
}

func appendU16(dst []byte, v uint16) []byte {
	return append(dst, byte(v>>8), byte(v))
}

func appendU32(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendU64(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func getU16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
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
