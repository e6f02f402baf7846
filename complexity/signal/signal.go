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

// Package signal estimates Gaussian differential entropy, per-channel
// and joint, from aligned multi-channel snapshots, and derives total
// correlation from the two.
package signal

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"alec.dev/alec/align"
)

// LogBase selects the entropy unit.
type LogBase uint8

const (
	Nats LogBase = iota
	Bits
)

// Config parameterises the estimator's gates and numerical safety knobs.
type Config struct {
	Base                 LogBase
	MinAlignedSamples    int
	MaxChannelsForJoint  int
	CovarianceRegulariser float64
}

// DefaultConfig returns the reference gates and a 1e-9 regulariser.
func DefaultConfig() Config {
	return Config{
		Base:                  Nats,
		MinAlignedSamples:     8,
		MaxChannelsForJoint:   32,
		CovarianceRegulariser: 1e-9,
	}
}

// Metrics is the estimator's output for one batch of aligned snapshots.
type Metrics struct {
	Valid        bool
	SumH         float64
	HJoint       float64
	TotalCorr    float64
	PerChannelH  map[uint32]float64
	ChannelOrder []uint32
}

const twoPiE = 2 * math.Pi * math.E

func logFn(base LogBase) func(float64) float64 {
	if base == Bits {
		return math.Log2
	}
	return math.Log
}

// channelEntropy computes H_i = 0.5*log(2*pi*e*variance), 0 for non-positive variance.
func channelEntropy(variance float64, log func(float64) float64) float64 {
	if variance <= 0 {
		return 0
	}
	return 0.5 * log(twoPiE*variance)
}

func sampleVariance(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	variance := ss / float64(n-1)
	if variance < 0 {
		return 0
	}
	return variance
}

// Estimate computes per-channel and joint Gaussian entropy and total
// correlation from a batch of aligned snapshots. Returns Metrics{Valid:
// false} if the pre-conditions (minimum sample count, channel count
// bounds) are not met.
func Estimate(snapshots []align.AlignedSnapshot, cfg Config) Metrics {
	if len(snapshots) < cfg.MinAlignedSamples {
		return Metrics{}
	}

	channelSet := make(map[uint32]bool)
	for _, snap := range snapshots {
		for _, id := range snap.ChannelIDs {
			channelSet[id] = true
		}
	}
	if len(channelSet) == 0 || len(channelSet) > cfg.MaxChannelsForJoint {
		return Metrics{}
	}

	channels := make([]uint32, 0, len(channelSet))
	for id := range channelSet {
		channels = append(channels, id)
	}
	sortUint32s(channels)

	log := logFn(cfg.Base)

	// Only snapshots carrying every channel contribute to the joint
	// matrix; channels with too few complete rows can't form a
	// covariance estimate.
	rows := make([][]float64, 0, len(snapshots))
	for _, snap := range snapshots {
		if len(snap.Values) != len(channels) {
			continue
		}
		row := make([]float64, len(channels))
		ok := true
		for i, id := range channels {
			v, present := snap.Values[id]
			if !present {
				ok = false
				break
			}
			row[i] = v
		}
		if ok {
			rows = append(rows, row)
		}
	}
	if len(rows) < 2 {
		return Metrics{}
	}

	k := len(channels)
	n := len(rows)

	means := make([]float64, k)
	for _, row := range rows {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}

	perChannel := make(map[uint32]float64, k)
	sumH := 0.0
	colValues := make([][]float64, k)
	for j := range colValues {
		colValues[j] = make([]float64, n)
	}
	for i, row := range rows {
		for j, v := range row {
			colValues[j][i] = v
		}
	}
	for j, id := range channels {
		h := channelEntropy(sampleVariance(colValues[j]), log)
		perChannel[id] = h
		sumH += h
	}

	centred := mat.NewDense(n, k, nil)
	for i, row := range rows {
		for j, v := range row {
			centred.Set(i, j, v-means[j])
		}
	}

	var cov mat.Dense
	cov.Mul(centred.T(), centred)
	cov.Scale(1/float64(n-1), &cov)
	for i := 0; i < k; i++ {
		cov.Set(i, i, cov.At(i, i)+cfg.CovarianceRegulariser)
	}

	det := mat.Det(&cov)

	hJoint := 0.0
	if det > 0 {
		hJoint = 0.5 * log(math.Pow(twoPiE, float64(k))*det)
	}

	tc := sumH - hJoint
	if tc < 0 {
		tc = 0
	}

	return Metrics{
		Valid:        true,
		SumH:         sumH,
		HJoint:       hJoint,
		TotalCorr:    tc,
		PerChannelH:  perChannel,
		ChannelOrder: channels,
	}
}

func sortUint32s(s []uint32) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
