// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package petri

import (
	"reflect"
	"testing"

	"github.com/aclements/go-concur/internal/ir"
)

// cycleNet is the simplest cyclic net: two capacity-1 places
// with one token circulating between them through t0 and t1.
func cycleNet() (*Net, int, int, int, int) {
	n := New()
	p0 := n.AddPlace("p0", BasicBlock, 1, 1, ir.Span(""))
	p1 := n.AddPlace("p1", BasicBlock, 1, 0, ir.Span(""))
	t0 := n.AddTransition("t0", TransitionLabel{Kind: LGoto, Resource: -1})
	t1 := n.AddTransition("t1", TransitionLabel{Kind: LGoto, Resource: -1})
	n.AddInputArc(p0, t0, 1)
	n.AddOutputArc(p1, t0, 1)
	n.AddInputArc(p1, t1, 1)
	n.AddOutputArc(p0, t1, 1)
	return n, p0, p1, t0, t1
}

func TestSimpleCycleAlternatesMarkings(t *testing.T) {
	n, p0, p1, t0, t1 := cycleNet()
	m0 := n.InitialMarking()

	if got := n.EnabledTransitions(m0); !reflect.DeepEqual(got, []int{t0}) {
		t.Fatalf("enabled(initial) = %v, want [t0]", got)
	}
	m1, ferr := n.FireTransition(m0, t0)
	if ferr != nil {
		t.Fatalf("fire t0: %v", ferr)
	}
	if m1[p0] != 0 || m1[p1] != 1 {
		t.Fatalf("after t0: %v, want [0 1]", m1)
	}
	if got := n.EnabledTransitions(m1); !reflect.DeepEqual(got, []int{t1}) {
		t.Fatalf("enabled(m1) = %v, want [t1]", got)
	}
	m2, ferr := n.FireTransition(m1, t1)
	if ferr != nil {
		t.Fatalf("fire t1: %v", ferr)
	}
	if !reflect.DeepEqual(m2, m0) {
		t.Fatalf("cycle did not return to the initial marking: %v vs %v", m2, m0)
	}
}

func TestFireNotEnabledDoesNotMutate(t *testing.T) {
	n, _, _, _, t1 := cycleNet()
	m := n.InitialMarking()
	saved := append(Marking(nil), m...)

	out, ferr := n.FireTransition(m, t1)
	if ferr == nil || ferr.Kind != NotEnabled {
		t.Fatalf("fire of a disabled transition = (%v, %v), want NotEnabled", out, ferr)
	}
	if !reflect.DeepEqual(m, saved) {
		t.Fatalf("input marking mutated on error: %v", m)
	}
}

func TestFireOutOfBounds(t *testing.T) {
	n, _, _, _, _ := cycleNet()
	m := n.InitialMarking()
	if _, ferr := n.FireTransition(m, 99); ferr == nil || ferr.Kind != OutOfBounds {
		t.Fatalf("fire(99) error = %v, want OutOfBounds", ferr)
	}
	if _, ferr := n.FireTransition(m, -1); ferr == nil || ferr.Kind != OutOfBounds {
		t.Fatalf("fire(-1) error = %v, want OutOfBounds", ferr)
	}
}

// TestCapacityJointlyChecked exercises the joint enabled/capacity check:
// a transition whose
// firing would push a place past its capacity is not enabled, and firing
// it reports the offending place.
func TestCapacityJointlyChecked(t *testing.T) {
	n := New()
	src := n.AddPlace("src", BasicBlock, 1, 1, ir.Span(""))
	full := n.AddPlace("full", BasicBlock, 1, 1, ir.Span(""))
	tr := n.AddTransition("t", TransitionLabel{Kind: LGoto, Resource: -1})
	n.AddInputArc(src, tr, 1)
	n.AddOutputArc(full, tr, 1)

	m := n.InitialMarking()
	if got := n.EnabledTransitions(m); len(got) != 0 {
		t.Fatalf("enabled = %v, want none (output place is at capacity)", got)
	}
	_, ferr := n.FireTransition(m, tr)
	if ferr == nil || ferr.Kind != Capacity {
		t.Fatalf("fire error = %v, want Capacity", ferr)
	}
	if ferr.Place != full || ferr.After != 2 || ferr.Cap != 1 {
		t.Fatalf("capacity detail = {place %d after %d cap %d}, want {%d 2 1}", ferr.Place, ferr.After, ferr.Cap, full)
	}
}

// TestSelfLoopLeavesMarkingUnchanged: pre == post means firing is a
// no-op on the marking.
func TestSelfLoopLeavesMarkingUnchanged(t *testing.T) {
	n := New()
	p := n.AddPlace("p", Resources, 1, 1, ir.Span(""))
	tr := n.AddTransition("loop", TransitionLabel{Kind: LAtomicLoad, Resource: 0})
	n.AddInputArc(p, tr, 1)
	n.AddOutputArc(p, tr, 1)

	m := n.InitialMarking()
	out, ferr := n.FireTransition(m, tr)
	if ferr != nil {
		t.Fatalf("fire: %v", ferr)
	}
	if !reflect.DeepEqual(out, m) {
		t.Fatalf("self-loop changed the marking: %v -> %v", m, out)
	}
}

func TestArcWeightsSumAndOverwrite(t *testing.T) {
	n := New()
	p := n.AddPlace("p", BasicBlock, 10, 0, ir.Span(""))
	tr := n.AddTransition("t", TransitionLabel{Kind: LGoto, Resource: -1})

	n.AddInputArc(p, tr, 1)
	n.AddInputArc(p, tr, 2)
	if got := n.InputWeight(p, tr); got != 3 {
		t.Errorf("additive input weight = %d, want 3", got)
	}
	n.AddInputArc(p, tr, 0)
	if got := n.InputWeight(p, tr); got != 3 {
		t.Errorf("zero-weight add changed the arc: %d", got)
	}
	n.SetInputWeight(p, tr, 1)
	if got := n.InputWeight(p, tr); got != 1 {
		t.Errorf("overwrite input weight = %d, want 1", got)
	}

	n.AddOutputArc(p, tr, 4)
	n.SetOutputWeight(p, tr, 2)
	if got := n.OutputWeight(p, tr); got != 2 {
		t.Errorf("overwrite output weight = %d, want 2", got)
	}
}

func TestInitialMarkingIsACopy(t *testing.T) {
	n, _, _, _, _ := cycleNet()
	m := n.InitialMarking()
	m[0] = 99
	if got := n.InitialMarking(); got[0] != 1 {
		t.Fatalf("mutating a returned marking leaked into the net: %v", got)
	}
}

func TestCMatrixIsPostMinusPre(t *testing.T) {
	n, p0, p1, t0, t1 := cycleNet()
	c := n.CMatrix()
	if r, cols := c.Dims(); r != 2 || cols != 2 {
		t.Fatalf("CMatrix dims = %dx%d, want 2x2", r, cols)
	}
	want := map[[2]int]float64{
		{p0, t0}: -1, {p1, t0}: 1,
		{p1, t1}: -1, {p0, t1}: 1,
	}
	for k, v := range want {
		if got := c.At(k[0], k[1]); got != v {
			t.Errorf("C[%d,%d] = %v, want %v", k[0], k[1], got, v)
		}
	}
}
