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

// Package sync keeps two peers' dictionaries converged: it detects
// divergence from periodic Announce messages, drives a Request/Diff
// exchange, and applies the resulting Diff back into a context.Context.
// It never touches a socket; callers own delivery of the messages this
// package serialises.
package sync

import (
	"alec.dev/alec/context"
	"alec.dev/alec/errs"
)

// State is the synchroniser's current relationship to its peer.
type State uint8

const (
	StateSynchronised State = iota
	StateWaitingForSync
	StateApplying
	StateDiverged
)

func (s State) String() string {
	switch s {
	case StateSynchronised:
		return "synchronised"
	case StateWaitingForSync:
		return "waiting_for_sync"
	case StateApplying:
		return "applying"
	case StateDiverged:
		return "diverged"
	default:
		return "unknown"
	}
}

// Config parameterises announce cadence and divergence thresholds.
type Config struct {
	AnnounceInterval uint64
	MaxVersionGap    uint32
	SyncTimeoutMS    uint64
}

// DefaultConfig returns the reference cadence.
func DefaultConfig() Config {
	return Config{AnnounceInterval: 100, MaxVersionGap: 10, SyncTimeoutMS: 1000}
}

// ActionKind tells the caller what to send next after OnAnnounce.
type ActionKind uint8

const (
	ActionNone ActionKind = iota
	ActionRequestFull
	ActionRequestIncremental
)

// Action is the synchroniser's verdict on an incoming Announce.
type Action struct {
	Kind        ActionKind
	FromVersion uint32
	ToVersion   uint32
}

// Synchroniser runs the Announce/Request/Diff state machine described
// above. It holds at most one prior dictionary snapshot, used to produce
// a precise added/removed Diff for the common one-version-back request;
// any other request falls back to a full dictionary dump.
type Synchroniser struct {
	cfg Config

	state State
	since uint64

	messagesSinceAnnounce uint64

	prevSnapshotVersion uint32
	prevSnapshot        map[uint32]context.Pattern
	hasPrevSnapshot     bool
}

// New creates a Synchroniser in the Synchronised state.
func New(cfg Config) *Synchroniser {
	return &Synchroniser{cfg: cfg, state: StateSynchronised}
}

// State returns the current state.
func (s *Synchroniser) State() State { return s.state }

// Tick counts one outgoing message and reports whether an Announce is
// due; the internal counter resets whenever it fires.
func (s *Synchroniser) Tick() bool {
	s.messagesSinceAnnounce++
	if s.cfg.AnnounceInterval > 0 && s.messagesSinceAnnounce >= s.cfg.AnnounceInterval {
		s.messagesSinceAnnounce = 0
		return true
	}
	return false
}

func absGap(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// OnAnnounce implements the receiving side's branching logic on an
// incoming Announce(remoteV, remoteH).
func (s *Synchroniser) OnAnnounce(localV uint32, localH uint64, remoteV uint32, remoteH uint64, nowMS uint64) (Action, error) {
	if remoteV == localV && remoteH == localH {
		s.state = StateSynchronised
		return Action{Kind: ActionNone}, nil
	}
	if remoteV == localV && remoteH != localH {
		s.state = StateDiverged
		return Action{Kind: ActionRequestFull, FromVersion: 0}, nil
	}
	if absGap(localV, remoteV) > s.cfg.MaxVersionGap {
		s.state = StateDiverged
		return Action{Kind: ActionRequestFull, FromVersion: 0}, nil
	}

	s.state = StateWaitingForSync
	s.since = nowMS
	return Action{Kind: ActionRequestIncremental, FromVersion: localV, ToVersion: remoteV}, nil
}

// CheckTimeout transitions WaitingForSync to Diverged once sync_timeout
// has elapsed since the request was issued. The host polls this; no
// background timer exists.
func (s *Synchroniser) CheckTimeout(nowMS uint64) {
	if s.state == StateWaitingForSync && nowMS-s.since > s.cfg.SyncTimeoutMS {
		s.state = StateDiverged
	}
}

// AddedPattern is a (code, pattern) pair carried in a Diff.
type AddedPattern struct {
	Code    uint32
	Pattern context.Pattern
}

// Diff describes how to bring a dictionary from BaseVersion to
// NewVersion: remove the listed codes, then add the listed pairs.
type Diff struct {
	BaseVersion uint32
	NewVersion  uint32
	Added       []AddedPattern
	Removed     []uint32
	Hash        uint64
}

// Snapshot records the context's current dictionary as the prior
// snapshot used by the next GenerateDiff. Call after sending a Diff (or
// periodically) to keep future diffs precise.
func (s *Synchroniser) Snapshot(ctx *context.Context) {
	codes := ctx.PatternCodes()
	snap := make(map[uint32]context.Pattern, len(codes))
	for _, code := range codes {
		p, _ := ctx.Pattern(code)
		snap[code] = p
	}
	s.prevSnapshot = snap
	s.prevSnapshotVersion = ctx.Version()
	s.hasPrevSnapshot = true
}

// GenerateDiff builds a Diff bringing a peer at fromVersion up to ctx's
// current version. When fromVersion matches the held snapshot's
// version, the diff is precise (only what actually changed); otherwise
// it is a full dictionary dump, which is always correct, just not
// minimal.
func (s *Synchroniser) GenerateDiff(ctx *context.Context, fromVersion uint32) Diff {
	if s.hasPrevSnapshot && fromVersion == s.prevSnapshotVersion {
		return s.generateIncrementalDiff(ctx, fromVersion)
	}
	return s.generateFullDiff(ctx, fromVersion)
}

func (s *Synchroniser) generateFullDiff(ctx *context.Context, fromVersion uint32) Diff {
	codes := ctx.PatternCodes()
	added := make([]AddedPattern, 0, len(codes))
	for _, code := range codes {
		p, _ := ctx.Pattern(code)
		added = append(added, AddedPattern{Code: code, Pattern: p})
	}
	return Diff{
		BaseVersion: fromVersion,
		NewVersion:  ctx.Version(),
		Added:       added,
		Hash:        ctx.Hash(),
	}
}

func (s *Synchroniser) generateIncrementalDiff(ctx *context.Context, fromVersion uint32) Diff {
	current := make(map[uint32]context.Pattern)
	for _, code := range ctx.PatternCodes() {
		p, _ := ctx.Pattern(code)
		current[code] = p
	}

	var added []AddedPattern
	for code, p := range current {
		if old, ok := s.prevSnapshot[code]; !ok || string(old.Data) != string(p.Data) {
			added = append(added, AddedPattern{Code: code, Pattern: p})
		}
	}

	var removed []uint32
	for code := range s.prevSnapshot {
		if _, ok := current[code]; !ok {
			removed = append(removed, code)
		}
	}

	return Diff{
		BaseVersion: fromVersion,
		NewVersion:  ctx.Version(),
		Added:       added,
		Removed:     removed,
		Hash:        ctx.Hash(),
	}
}

// ApplyDiff applies a received Diff to ctx: removes listed codes, adds
// listed pairs, sets the version, then verifies the recomputed hash
// against diff.Hash. A mismatch transitions to Diverged and returns
// HashMismatch; a match transitions to Synchronised. Safe to call twice
// with the same Diff: every step (remove-if-present, set, set-version)
// is idempotent, so the second application is a no-op that still
// verifies the same hash.
func (s *Synchroniser) ApplyDiff(ctx *context.Context, diff Diff) error {
	s.state = StateApplying

	for _, code := range diff.Removed {
		ctx.RemovePattern(code)
	}
	for _, pair := range diff.Added {
		if err := ctx.SetPattern(pair.Code, pair.Pattern); err != nil {
			s.state = StateDiverged
			return err
		}
	}
	ctx.SetVersion(diff.NewVersion)

	actual := ctx.Hash()
	if actual != diff.Hash {
		s.state = StateDiverged
		return errs.NewHashMismatch(diff.Hash, actual)
	}

	s.state = StateSynchronised
	return nil
}
