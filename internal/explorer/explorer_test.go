// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package explorer

import (
	"testing"

	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/petri"
)

// twoStepNet builds p0 -t0-> p1 -t1-> p2, a straight-line net with no
// branching: one reachable marking sequence and a single deadlock at the
// end.
func twoStepNet() *petri.Net {
	n := petri.New()
	p0 := n.AddPlace("p0", petri.BasicBlock, 1, 1, ir.Span(""))
	p1 := n.AddPlace("p1", petri.BasicBlock, 1, 0, ir.Span(""))
	p2 := n.AddPlace("p2", petri.BasicBlock, 1, 0, ir.Span(""))
	t0 := n.AddTransition("t0", petri.TransitionLabel{Kind: petri.LGoto})
	t1 := n.AddTransition("t1", petri.TransitionLabel{Kind: petri.LGoto})
	n.AddInputArc(p0, t0, 1)
	n.AddOutputArc(p1, t0, 1)
	n.AddInputArc(p1, t1, 1)
	n.AddOutputArc(p2, t1, 1)
	return n
}

func TestExploreStraightLine(t *testing.T) {
	rg := Explore(twoStepNet(), Config{})
	if len(rg.Markings) != 3 {
		t.Fatalf("want 3 markings, got %d", len(rg.Markings))
	}
	if len(rg.Edges) != 2 {
		t.Fatalf("want 2 edges, got %d", len(rg.Edges))
	}
	if len(rg.Deadlocks) != 1 {
		t.Fatalf("want 1 deadlock, got %d", len(rg.Deadlocks))
	}
	final := rg.Markings[rg.Deadlocks[0]]
	if final[2] != 1 || final[0] != 0 || final[1] != 0 {
		t.Fatalf("unexpected deadlock marking: %v", final)
	}
	if rg.Truncated {
		t.Fatal("did not expect truncation")
	}
}

func TestExploreStateLimitTruncates(t *testing.T) {
	rg := Explore(twoStepNet(), Config{StateLimit: 2})
	if !rg.Truncated {
		t.Fatal("expected truncation with a state limit of 2")
	}
	if len(rg.Markings) > 2 {
		t.Fatalf("want at most 2 markings, got %d", len(rg.Markings))
	}
}

// forkJoinNet builds two branches from a shared start place holding 2
// tokens: t0 moves a token into a, t1 into b, each of capacity 1. Both
// transitions consume from start, so their supports overlap.
func forkJoinNet() *petri.Net {
	n := petri.New()
	start := n.AddPlace("start", petri.BasicBlock, 2, 2, ir.Span(""))
	a := n.AddPlace("a", petri.BasicBlock, 1, 0, ir.Span(""))
	b := n.AddPlace("b", petri.BasicBlock, 1, 0, ir.Span(""))
	t0 := n.AddTransition("t0", petri.TransitionLabel{Kind: petri.LGoto})
	t1 := n.AddTransition("t1", petri.TransitionLabel{Kind: petri.LGoto})
	n.AddInputArc(start, t0, 1)
	n.AddOutputArc(a, t0, 1)
	n.AddInputArc(start, t1, 1)
	n.AddOutputArc(b, t1, 1)
	return n
}

func TestExploreInterleavingsWithoutPOR(t *testing.T) {
	rg := Explore(forkJoinNet(), Config{})
	// start has 2 tokens and a, b have capacity 1, so t0 and t1 each fire
	// once, in either order; without POR both orders are explored, giving
	// 4 distinct markings.
	if len(rg.Markings) < 4 {
		t.Fatalf("want at least 4 distinct markings, got %d", len(rg.Markings))
	}
}

func TestIndependentDisjointSupports(t *testing.T) {
	n := petri.New()
	a0 := n.AddPlace("a0", petri.BasicBlock, 1, 1, ir.Span(""))
	a1 := n.AddPlace("a1", petri.BasicBlock, 1, 0, ir.Span(""))
	b0 := n.AddPlace("b0", petri.BasicBlock, 1, 1, ir.Span(""))
	b1 := n.AddPlace("b1", petri.BasicBlock, 1, 0, ir.Span(""))
	t0 := n.AddTransition("t0", petri.TransitionLabel{Kind: petri.LGoto})
	t1 := n.AddTransition("t1", petri.TransitionLabel{Kind: petri.LGoto})
	n.AddInputArc(a0, t0, 1)
	n.AddOutputArc(a1, t0, 1)
	n.AddInputArc(b0, t1, 1)
	n.AddOutputArc(b1, t1, 1)
	if !independent(n, t0, t1) {
		t.Fatal("t0 and t1 have disjoint supports and should be independent")
	}
	if independent(forkJoinNet(), 0, 1) {
		t.Fatal("forkJoinNet's t0 and t1 share the start place and should not be independent")
	}
}

func TestPersistentSetNeverEmpty(t *testing.T) {
	n := forkJoinNet()
	m := n.InitialMarking()
	enabled := n.EnabledTransitions(m)
	got := persistentSet(n, m, enabled)
	if len(got) == 0 {
		t.Fatal("persistentSet must not drop every enabled transition")
	}
}

// racingAtomicsNet models two enabled atomic-store transitions on the
// same resource place, which should surface as an AtomicRace as soon as
// they are both found enabled.
func racingAtomicsNet() *petri.Net {
	n := petri.New()
	start := n.AddPlace("start", petri.BasicBlock, 1, 1, ir.Span(""))
	t0 := n.AddTransition("store0", petri.TransitionLabel{Kind: petri.LAtomicStore, Resource: 0})
	t1 := n.AddTransition("store1", petri.TransitionLabel{Kind: petri.LAtomicStore, Resource: 0})
	n.SetInputWeight(start, t0, 0)
	n.SetInputWeight(start, t1, 0)
	return n
}

func TestRecordAtomicRacesStoreStore(t *testing.T) {
	n := racingAtomicsNet()
	m := n.InitialMarking()
	enabled := n.EnabledTransitions(m)
	if len(enabled) != 2 {
		t.Fatalf("want both atomic transitions enabled with no guarding arcs, got %d", len(enabled))
	}
	rg := &petri.ReachabilityGraph{}
	recordAtomicRaces(n, enabled, 0, rg)
	if len(rg.AtomicRaces) != 1 {
		t.Fatalf("want 1 atomic race, got %d", len(rg.AtomicRaces))
	}
}

func TestRacesAtomicStoreRelaxedLoad(t *testing.T) {
	store := petri.TransitionLabel{Kind: petri.LAtomicStore}
	relaxedLoad := petri.TransitionLabel{Kind: petri.LAtomicLoad, Order: ir.OrdRelaxed}
	if !racesAtomic(store, relaxedLoad) {
		t.Fatal("store/relaxed-load should race")
	}
}

func TestRacesAtomicTwoRelaxedLoadsDoNotRace(t *testing.T) {
	l1 := petri.TransitionLabel{Kind: petri.LAtomicLoad, Order: ir.OrdRelaxed}
	l2 := petri.TransitionLabel{Kind: petri.LAtomicLoad, Order: ir.OrdRelaxed}
	if racesAtomic(l1, l2) {
		t.Fatal("two loads should never race")
	}
}
