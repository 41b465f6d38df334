// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"strings"
	"testing"

	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/lockdataflow"
	"github.com/aclements/go-concur/internal/petri"
	"github.com/aclements/go-concur/internal/syncinv"
)

// doubleLockDump locks the same std::sync::Mutex twice into two distinct
// guard locals without an intervening drop: a single-function collapse of
// the classic f-acquires-A-then-calls-g-which-acquires-A-again shape,
// since alias.Analysis resolves both guards to the same allocation node
// either way.
const doubleLockDump = `{
  "instances": [
    {
      "def": "f",
      "body": {
        "args_count": 1,
        "locals": [
          {"type":"()"},
          {"type":"std::sync::Mutex<i32>"},
          {"type":"std::sync::MutexGuard<i32>"},
          {"type":"std::sync::MutexGuard<i32>"}
        ],
        "blocks": [
          {"name":"bb0","statements":[],"term":{"kind":"call","span":"f.rs:3:5","call":{"callee":"std::sync::Mutex::lock","args":[{"kind":"move","place":{"local":1}}],"destination":{"local":2},"has_target":true,"target":1}}},
          {"name":"bb1","statements":[],"term":{"kind":"call","span":"f.rs:5:5","call":{"callee":"std::sync::Mutex::lock","args":[{"kind":"move","place":{"local":1}}],"destination":{"local":3},"has_target":true,"target":2}}},
          {"name":"bb2","statements":[],"term":{"kind":"drop","drop_place":{"local":2},"target":3}},
          {"name":"bb3","statements":[],"term":{"kind":"drop","drop_place":{"local":3},"target":4}},
          {"name":"bb4","statements":[],"term":{"kind":"return"}}
        ]
      }
    }
  ]
}`

func buildPipeline(t *testing.T, dump string) (*ir.Program, *cgraph.Graph, *alias.Analysis, *syncinv.Registry) {
	t.Helper()
	prog, err := ir.Load(strings.NewReader(dump))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cg := cgraph.Build(prog, cgraph.ClassifyConfig{})
	a := alias.New(prog, cg)
	reg := syncinv.BuildRegistry(prog, a, syncinv.SiteConfig{})
	return prog, cg, a, reg
}

func TestDoubleLockDetectsSameMutexTwiceLive(t *testing.T) {
	prog, cg, a, reg := buildPipeline(t, doubleLockDump)
	flow := lockdataflow.Run(prog, cg, a, reg, cgraph.ClassifyConfig{})

	reports := DoubleLock(flow, reg, a, cg)
	if len(reports) != 1 {
		t.Fatalf("DoubleLock = %d reports, want 1: %+v", len(reports), reports)
	}
	r := reports[0]
	if r.Kind != KindDoubleLock {
		t.Errorf("Kind = %v, want KindDoubleLock", r.Kind)
	}
	if !r.Confidence.AtLeast(lattice.Possibly) {
		t.Errorf("Confidence = %v, want at least Possibly", r.Confidence)
	}
	if len(r.Locations) != 2 {
		t.Fatalf("Locations = %v, want 2 entries", r.Locations)
	}
}

func TestDeadlockPossibilityRequiresConflictingKinds(t *testing.T) {
	_, _, a, reg := buildPipeline(t, doubleLockDump)
	g2 := ir.AliasID{Instance: 0, Local: 2}
	g3 := ir.AliasID{Instance: 0, Local: 3}
	if got := deadlockPossibility(reg, a, g2, g3); !got.AtLeast(lattice.Possibly) {
		t.Errorf("deadlockPossibility(g2,g3) = %v, want at least Possibly", got)
	}
	unknown := ir.AliasID{Instance: 0, Local: 99}
	if got := deadlockPossibility(reg, a, g2, unknown); got != lattice.Unknown {
		t.Errorf("deadlockPossibility with an unregistered alias = %v, want Unknown", got)
	}
}

func TestSameSourceRecursive(t *testing.T) {
	_, _, _, reg := buildPipeline(t, doubleLockDump)
	g2 := ir.AliasID{Instance: 0, Local: 2}
	g3 := ir.AliasID{Instance: 0, Local: 3}
	if sameSourceRecursive(reg, g2, g3) {
		t.Error("the two lock calls are at distinct spans and should not be flagged recursive")
	}
	if !sameSourceRecursive(reg, g2, g2) {
		t.Error("a guard compared with itself is trivially the same source span")
	}
}

func TestGroupByVariableMergesSameSpan(t *testing.T) {
	ops := []accessOp{
		{isWrite: false, bb: 1, span: "a.rs:1:1"},
		{isWrite: true, bb: 1, span: "a.rs:1:1"},
		{isWrite: false, bb: 2, span: "a.rs:2:1"},
	}
	got := groupByVariable(ops)
	if len(got) != 2 {
		t.Fatalf("groupByVariable = %v, want 2 merged entries", got)
	}
	for _, g := range got {
		if g.span == "a.rs:1:1" && !g.isWrite {
			t.Error("merged entry at a.rs:1:1 should have isWrite set from the second op")
		}
	}
}

func straightLineUnsafeNet() (*petri.Net, *petri.ReachabilityGraph) {
	n := petri.New()
	p0 := n.AddPlace("p0", petri.BasicBlock, 1, 1, ir.Span(""))
	p1 := n.AddPlace("p1", petri.BasicBlock, 1, 0, ir.Span(""))
	res := n.AddPlace("res", petri.Resources, 1, 1, ir.Span(""))
	tw := n.AddTransition("write", petri.TransitionLabel{Kind: petri.LUnsafeWrite, Resource: res, BB: 0, Span: "a.rs:3:1"})
	n.AddInputArc(p0, tw, 1)
	n.AddOutputArc(p1, tw, 1)
	n.AddInputArc(res, tw, 1)
	n.AddOutputArc(res, tw, 1)

	m0 := n.InitialMarking()
	m1, ferr := n.FireTransition(m0, tw)
	if ferr != nil {
		panic(ferr)
	}
	rg := &petri.ReachabilityGraph{
		Markings: []petri.Marking{m0, m1},
		Edges:    []petri.ReachEdge{{From: 0, To: 1, Transition: tw}},
	}
	return n, rg
}

func TestDataRaceNoRaceWithSingleAccess(t *testing.T) {
	net, rg := straightLineUnsafeNet()
	if got := DataRace(net, rg); len(got) != 0 {
		t.Fatalf("DataRace = %v, want no reports for a single access", got)
	}
}

func TestDataRaceReadWritePair(t *testing.T) {
	net, rg := straightLineUnsafeNet()
	res := net.Places()[2].Index
	tr := net.AddTransition("read", petri.TransitionLabel{Kind: petri.LUnsafeRead, Resource: res, BB: 1, Span: "a.rs:4:1"})
	rg.Edges = append(rg.Edges, petri.ReachEdge{From: 1, To: 1, Transition: tr})

	got := DataRace(net, rg)
	if len(got) != 1 {
		t.Fatalf("DataRace = %d reports, want 1: %+v", len(got), got)
	}
	if got[0].Kind != KindDataRace {
		t.Errorf("Kind = %v, want KindDataRace", got[0].Kind)
	}
}

func TestAtomicRaceConvertsEvents(t *testing.T) {
	n := petri.New()
	t0 := n.AddTransition("store0", petri.TransitionLabel{Kind: petri.LAtomicStore, Span: "a.rs:1:1"})
	t1 := n.AddTransition("store1", petri.TransitionLabel{Kind: petri.LAtomicStore, Span: "a.rs:2:1"})
	rg := &petri.ReachabilityGraph{
		AtomicRaces: []petri.AtomicRace{{State: 0, Ops: [2]int{t0, t1}}},
	}
	got := AtomicRace(n, rg)
	if len(got) != 1 || got[0].Kind != KindAtomicRace {
		t.Fatalf("AtomicRace = %v, want 1 KindAtomicRace report", got)
	}
}

func TestSortReportsOrdersByKindThenSpans(t *testing.T) {
	reports := []Report{
		{Kind: KindMissNotify, Locations: []Location{{Span: "b.rs:1:1"}}},
		{Kind: KindDoubleLock, Locations: []Location{{Span: "z.rs:1:1"}, {Span: "a.rs:1:1"}}},
		{Kind: KindDoubleLock, Locations: []Location{{Span: "a.rs:1:1"}, {Span: "a.rs:1:1"}}},
	}
	SortReports(reports)
	if reports[0].Kind != KindDoubleLock || reports[0].Locations[0].Span != "a.rs:1:1" {
		t.Errorf("first report = %+v, want the DoubleLock with the earliest first span", reports[0])
	}
	if reports[len(reports)-1].Kind != KindMissNotify {
		t.Errorf("last report should be the MissNotify entry, got %+v", reports[len(reports)-1])
	}
}
