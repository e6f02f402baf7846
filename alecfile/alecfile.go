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

// Package alecfile reads and writes .alec-context preload files: a
// portable snapshot of one source's dictionary, statistics, and
// prediction model, so a fresh process can start warm instead of cold.
package alecfile

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"os"

	"alec.dev/alec/context"
	"alec.dev/alec/errs"
)

var magic = [4]byte{'A', 'L', 'E', 'C'}

const formatVersion uint32 = 1
const sensorTypeFieldLen = 32

// PreloadFile is the fully decoded contents of a .alec-context file.
type PreloadFile struct {
	ContextVersion  uint32
	SensorType      string
	CreatedTS       uint64
	TrainingSamples uint64

	Patterns []PreloadPattern
	Stats    context.SourceStats

	ModelTag     context.ModelTag
	Coefficients []float64
	PeriodSamples uint32
}

// PreloadPattern is one dictionary entry as stored in the file.
type PreloadPattern struct {
	Data      []byte
	Code      uint16
	Frequency uint32
}

// FromContext builds a PreloadFile from a live context's dictionary and
// a single source's statistics and prediction.
func FromContext(ctx *context.Context, sourceID uint32, sensorType string, createdTS, trainingSamples uint64) (PreloadFile, error) {
	stats, ok := ctx.Stats(sourceID)
	if !ok {
		return PreloadFile{}, errs.NewBufferTooShort(1, 0)
	}

	codes := ctx.PatternCodes()
	patterns := make([]PreloadPattern, 0, len(codes))
	for _, code := range codes {
		p, _ := ctx.Pattern(code)
		patterns = append(patterns, PreloadPattern{Data: p.Data, Code: uint16(code), Frequency: uint32(p.Frequency)})
	}

	pf := PreloadFile{
		ContextVersion:  ctx.Version(),
		SensorType:      sensorType,
		CreatedTS:       createdTS,
		TrainingSamples: trainingSamples,
		Patterns:        patterns,
		Stats:           stats,
		ModelTag:        context.ModelNone,
	}

	if pred, ok := ctx.Predict(sourceID); ok {
		pf.ModelTag = pred.ModelTag
		pf.Coefficients = []float64{pred.Value}
	}

	return pf, nil
}

// ToBytes serialises the preload file to its little-endian wire form.
func (pf PreloadFile) ToBytes() []byte {
	buf := make([]byte, 0, 256+len(pf.Patterns)*16)
	buf = append(buf, magic[:]...)
	buf = appendU32(buf, formatVersion)
	buf = appendU32(buf, pf.ContextVersion)

	sensorBytes := []byte(pf.SensorType)
	buf = appendU16(buf, uint16(len(sensorBytes)))
	padded := make([]byte, sensorTypeFieldLen)
	copy(padded, sensorBytes)
	buf = append(buf, padded...)

	buf = appendU64(buf, pf.CreatedTS)
	buf = appendU64(buf, pf.TrainingSamples)

	crcPlaceholderOffset := len(buf)
	buf = appendU32(buf, 0) // crc placeholder, filled below

	bodyStart := len(buf)
	buf = appendU32(buf, uint32(len(pf.Patterns)))
	for _, p := range pf.Patterns {
		buf = append(buf, byte(len(p.Data)))
		buf = append(buf, p.Data...)
		buf = appendU16(buf, p.Code)
		buf = appendU32(buf, p.Frequency)
	}

	buf = appendF64(buf, pf.Stats.Mean)
	buf = appendF64(buf, pf.Stats.Variance)
	buf = appendF64(buf, pf.Stats.MinObserved)
	buf = appendF64(buf, pf.Stats.MaxObserved)
	buf = appendF64(buf, pf.Stats.MinExpected)
	buf = appendF64(buf, pf.Stats.MaxExpected)
	buf = append(buf, byte(len(pf.Stats.Recent)))
	for _, v := range pf.Stats.Recent {
		buf = appendF64(buf, v)
	}

	buf = append(buf, byte(pf.ModelTag))
	buf = append(buf, byte(len(pf.Coefficients)))
	for _, c := range pf.Coefficients {
		buf = appendF64(buf, c)
	}
	buf = appendU32(buf, pf.PeriodSamples)

	sum := crc32.ChecksumIEEE(buf[:crcPlaceholderOffset])
	sum = crc32.Update(sum, crc32.IEEETable, buf[bodyStart:])
	binary.LittleEndian.PutUint32(buf[crcPlaceholderOffset:crcPlaceholderOffset+4], sum)

	return buf
}

// FromBytes parses a preload file produced by ToBytes.
func FromBytes(b []byte) (PreloadFile, error) {
	if len(b) < 4+4+4+2+sensorTypeFieldLen+8+8+4+4 {
		return PreloadFile{}, errs.NewBufferTooShort(4+4+4+2+sensorTypeFieldLen+8+8+4+4, len(b))
	}
	if b[0] != magic[0] || b[1] != magic[1] || b[2] != magic[2] || b[3] != magic[3] {
		return PreloadFile{}, errs.NewMalformedMessage(0, "bad magic")
	}

	off := 4
	_ = getU32(b[off:]) // format_version, unused beyond acceptance
	off += 4
	contextVersion := getU32(b[off:])
	off += 4

	sensorLen := int(getU16(b[off:]))
	off += 2
	if sensorLen > sensorTypeFieldLen {
		return PreloadFile{}, errs.NewMalformedMessage(off, "sensor_type_len exceeds field")
	}
	sensorType := string(b[off : off+sensorLen])
	off += sensorTypeFieldLen

	createdTS := getU64(b[off:])
	off += 8
	trainingSamples := getU64(b[off:])
	off += 8

	crcOffset := off
	claimedCRC := getU32(b[off:])
	off += 4
	bodyStart := off

	if off+4 > len(b) {
		return PreloadFile{}, errs.NewBufferTooShort(off+4, len(b))
	}
	count := int(getU32(b[off:]))
	off += 4

	patterns := make([]PreloadPattern, 0, count)
	for i := 0; i < count; i++ {
		if off+1 > len(b) {
			return PreloadFile{}, errs.NewBufferTooShort(off+1, len(b))
		}
		plen := int(b[off])
		off++
		if off+plen+2+4 > len(b) {
			return PreloadFile{}, errs.NewBufferTooShort(off+plen+2+4, len(b))
		}
		data := append([]byte(nil), b[off:off+plen]...)
		off += plen
		code := getU16(b[off:])
		off += 2
		freq := getU32(b[off:])
		off += 4
		patterns = append(patterns, PreloadPattern{Data: data, Code: code, Frequency: freq})
	}

	if off+6*8+1 > len(b) {
		return PreloadFile{}, errs.NewBufferTooShort(off+6*8+1, len(b))
	}
	stats := context.SourceStats{
		Mean:        getF64(b[off:]),
		Variance:    getF64(b[off+8:]),
		MinObserved: getF64(b[off+16:]),
		MaxObserved: getF64(b[off+24:]),
		MinExpected: getF64(b[off+32:]),
		MaxExpected: getF64(b[off+40:]),
	}
	off += 48
	recentLen := int(b[off])
	off++
	if off+recentLen*8 > len(b) {
		return PreloadFile{}, errs.NewBufferTooShort(off+recentLen*8, len(b))
	}
	recent := make([]float64, recentLen)
	for i := range recent {
		recent[i] = getF64(b[off:])
		off += 8
	}
	stats.Recent = recent

	if off+2 > len(b) {
		return PreloadFile{}, errs.NewBufferTooShort(off+2, len(b))
	}
	modelTag := context.ModelTag(b[off])
	off++
	coefCount := int(b[off])
	off++
	if off+coefCount*8+4 > len(b) {
		return PreloadFile{}, errs.NewBufferTooShort(off+coefCount*8+4, len(b))
	}
	coefs := make([]float64, coefCount)
	for i := range coefs {
		coefs[i] = getF64(b[off:])
		off += 8
	}
	periodSamples := getU32(b[off:])
	off += 4

	actual := crc32.ChecksumIEEE(b[:crcOffset])
	actual = crc32.Update(actual, crc32.IEEETable, b[bodyStart:off])
	if actual != claimedCRC {
		return PreloadFile{}, errs.NewInvalidChecksum(claimedCRC, actual)
	}

	return PreloadFile{
		ContextVersion:  contextVersion,
		SensorType:      sensorType,
		CreatedTS:       createdTS,
		TrainingSamples: trainingSamples,
		Patterns:        patterns,
		Stats:           stats,
		ModelTag:        modelTag,
		Coefficients:    coefs,
		PeriodSamples:   periodSamples,
	}, nil
}

// SaveToFile writes a preload file to path.
func SaveToFile(pf PreloadFile, path string) error {
	return os.WriteFile(path, pf.ToBytes(), 0644)
}

// LoadFromFile reads and parses a preload file from path.
func LoadFromFile(path string) (PreloadFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PreloadFile{}, err
	}
	return FromBytes(b)
}

func appendU16(dst []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(dst, tmp[:]...)
}

func appendU32(dst []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(dst, tmp[:]...)
}

func appendU64(dst []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(dst, tmp[:]...)
}

func appendF64(dst []byte, v float64) []byte {
	return appendU64(dst, math.Float64bits(v))
}

func getU16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func getU32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func getU64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
func getF64(b []byte) float64 { return math.Float64frombits(getU64(b)) }
