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

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"alec.dev/alec/classifier"
	"alec.dev/alec/codec"
	"alec.dev/alec/complexity/engine"
	"alec.dev/alec/context"
	"alec.dev/alec/protocol"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	myApp := cli.NewApp()
	myApp.Name = "alec-bench"
	myApp.Usage = "round-trips a synthetic stream through the encoder, decoder and complexity engine"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.Float64Flag{
			Name:  "scale-factor",
			Value: 100,
			Usage: "fixed-point delta scale factor",
		},
		cli.IntFlag{
			Name:  "history-size",
			Value: 16,
			Usage: "per-source moving-average history length",
		},
		cli.IntFlag{
			Name:  "seed",
			Value: 1,
			Usage: "PRNG seed for the synthetic stream",
		},
		cli.IntFlag{
			Name:  "samples",
			Value: 200,
			Usage: "number of samples to generate per channel",
		},
		cli.StringFlag{
			Name:  "out",
			Value: "",
			Usage: "write the final complexity snapshot JSON to this path instead of stdout",
		},
	}
	myApp.Action = run

	if err := myApp.Run(os.Args); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := context.DefaultConfig()
	cfg.ScaleFactor = uint32(c.Float64("scale-factor"))
	cfg.HistorySize = c.Int("history-size")

	ctx := context.New(cfg)
	decCtx := context.New(cfg)
	classCfg := classifier.DefaultConfig()

	eng := engine.New(engine.DefaultConfig())

	rng := rand.New(rand.NewSource(int64(c.Int("seed"))))
	samples := c.Int("samples")

	var seq uint32
	var lastSentMS uint64
	var encodedBytes, rawBytes int
	var mismatches int

	channels := []uint32{1, 2}
	refTimestamps := make([]uint64, 0, samples)

	for i := 0; i < samples; i++ {
		nowMS := uint64(i) * 100
		refTimestamps = append(refTimestamps, nowMS)

		for _, ch := range channels {
			value := math.Sin(float64(i)/10) + rng.NormFloat64()*0.05
			rv := protocol.RawValue{SourceID: ch, TimestampMS: nowMS, Value: value}

			cls := classifier.Classify(classCfg, rv, ctx, lastSentMS, nowMS)
			eng.Ingest(ch, value, nowMS)
			rawBytes += 8

			if !cls.Transmit() {
				continue
			}

			frame, err := codec.Encode(rv, cls, ctx, &seq)
			if err != nil {
				return err
			}
			wire := frame.Bytes()
			encodedBytes += len(wire)
			eng.RecordFrame(wire)
			lastSentMS = nowMS

			var lastSeq uint32
			decoded, _, err := codec.Decode(frame, decCtx, &lastSeq)
			if err != nil {
				return err
			}
			if math.Abs(decoded.Value-rv.Value) > 1e-2 {
				mismatches++
			}
		}
	}

	snap := eng.Process(refTimestamps, uint64(samples)*100)
	out := eng.ToComplexitySnapshot(snap, nil)

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	color.Green("encoded %d samples into %d bytes (raw %d bytes), %d decode mismatches", samples*len(channels), encodedBytes, rawBytes, mismatches)

	outPath := c.String("out")
	if outPath == "" {
		fmt.Println(string(b))
		return nil
	}
	return os.WriteFile(outPath, b, 0644)
}
