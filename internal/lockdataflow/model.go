// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lockdataflow computes the interprocedural lock-lifetime
// dataflow: a per-function gen/kill fix-point over live lock-guards, the
// resulting HoldsBefore relation, and the live-set snapshots at every
// condvar wait/notify call site that the condvar-misuse detector
// consumes.
package lockdataflow

import (
	"sort"

	"github.com/aclements/go-concur/internal/ir"
)

// HoldsPair is one ordered pair of the HoldsBefore relation: on some
// path, guard A is live at the instant guard B becomes live.
type HoldsPair struct {
	A, B ir.AliasID
}

// WaitSite is one Condvar::wait call site: which condvar it waits on and
// which guard it releases/reacquires across the wait, plus the
// lock-guards live at that point.
type WaitSite struct {
	Caller     int
	Location   ir.Span
	CondvarRes int // registry resource-place index, valid iff HasCondvar
	HasCondvar bool
	Guard      ir.AliasID // the guard argument passed to wait, valid iff HasGuard
	HasGuard   bool
	Live       []ir.AliasID // guards live immediately before the wait call
}

// NotifySite is one Condvar::notify* call site.
type NotifySite struct {
	Caller     int
	Location   ir.Span
	CondvarRes int
	HasCondvar bool
	Live       []ir.AliasID // guards live immediately before the notify call
}

// Result is the read-only output of Run: the HoldsBefore relation plus
// every wait/notify site found, each carrying its live-guard snapshot.
type Result struct {
	holds    map[HoldsPair]bool
	Waits    []WaitSite
	Notifies []NotifySite
}

// Holds reports whether (a, b) is a member of the HoldsBefore relation.
func (res *Result) Holds(a, b ir.AliasID) bool {
	return res.holds[HoldsPair{A: a, B: b}]
}

// HoldsBeforePairs returns every member of the HoldsBefore relation,
// sorted so detector reports built from it come out in the same order
// every run.
func (res *Result) HoldsBeforePairs() []HoldsPair {
	out := make([]HoldsPair, 0, len(res.holds))
	for p := range res.holds {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A.String() < out[j].A.String()
		}
		return out[i].B.String() < out[j].B.String()
	})
	return out
}
