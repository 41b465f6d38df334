// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package detect implements the concurrency-bug detectors: double-lock,
// conflict-cycle, condvar-misuse (deadlock and missed-notify),
// data-race, and atomicity-violation, each built on top of the
// lock-lifetime dataflow, the points-to analysis, the synchronization
// registry, and the reachability graph.
package detect

import (
	"encoding/json"
	"sort"

	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
)

// Kind discriminates the report families the detectors emit.
type Kind int

const (
	KindDoubleLock Kind = iota
	KindConflictLock
	KindCondvarDeadlock
	KindMissNotify
	KindDataRace
	KindAtomicRace
)

func (k Kind) String() string {
	switch k {
	case KindDoubleLock:
		return "DoubleLock"
	case KindConflictLock:
		return "ConflictLock"
	case KindCondvarDeadlock:
		return "CondvarDeadlock"
	case KindMissNotify:
		return "MissNotify"
	case KindDataRace:
		return "DataRace"
	case KindAtomicRace:
		return "AtomicRace"
	default:
		return "Kind(?)"
	}
}

// MarshalJSON renders a Kind by name, so the JSON report dump is
// self-describing.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Location is one involved program point: the kind name of the
// primitive at that point (e.g. "StdMutex", "Condvar", "UnsafeRegion")
// and its source span.
type Location struct {
	PrimitiveKind string
	Span          ir.Span
}

// CallChain is a sample call path stitched by internal/cgraph.AllSimplePaths:
// one entry per hop, each entry the list of call-site spans available for
// that hop (a src/dst pair can have more than one call site).
type CallChain [][]ir.Span

// Report is the common shape every detector emits; not every field
// applies to every Kind (Confidence and Locations always do; CallChains
// only for the deadlock-shaped kinds).
type Report struct {
	Kind       Kind
	Confidence lattice.Approximate
	Locations  []Location
	CallChains []CallChain
}

// sortKey is the composite key reports serialize by:
// (kind, first-span, second-span).
func (r Report) sortKey() (Kind, ir.Span, ir.Span) {
	var first, second ir.Span
	if len(r.Locations) > 0 {
		first = r.Locations[0].Span
	}
	if len(r.Locations) > 1 {
		second = r.Locations[1].Span
	}
	return r.Kind, first, second
}

// SortReports orders reports by their composite sort key, so report
// output is deterministic run to run.
func SortReports(reports []Report) {
	sort.Slice(reports, func(i, j int) bool {
		ki, fi, si := reports[i].sortKey()
		kj, fj, sj := reports[j].sortKey()
		if ki != kj {
			return ki < kj
		}
		if fi != fj {
			return fi < fj
		}
		return si < sj
	})
}
