// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/lockdataflow"
	"github.com/aclements/go-concur/internal/petri"
	"github.com/aclements/go-concur/internal/syncinv"
)

// DetectorKind selects which detector family cmd/concurcheck's
// detector_kind configuration value runs.
type DetectorKind int

const (
	All DetectorKind = iota
	Deadlock
	AtomicityViolation
	DataRaceKind
	PointsTo
)

// Inputs bundles every upstream analysis stage result a detector run
// needs; not every detector consumes every field.
type Inputs struct {
	Reg     *syncinv.Registry
	Aliases *alias.Analysis
	CG      *cgraph.Graph
	Flow    *lockdataflow.Result
	Net     *petri.Net
	RG      *petri.ReachabilityGraph
}

// Run executes the detector families selected by which and returns every
// surviving report in deterministic order.
func Run(in Inputs, which DetectorKind) []Report {
	var out []Report
	if which == All || which == Deadlock || which == PointsTo {
		out = append(out, DoubleLock(in.Flow, in.Reg, in.Aliases, in.CG)...)
		out = append(out, ConflictCycle(in.Flow, in.Reg, in.Aliases)...)
		out = append(out, CondvarMisuse(in.Flow, in.Reg, in.Aliases)...)
	}
	if which == All || which == DataRaceKind {
		out = append(out, DataRace(in.Net, in.RG)...)
	}
	if which == All || which == AtomicityViolation {
		out = append(out, AtomicRace(in.Net, in.RG)...)
	}
	SortReports(out)
	return out
}
