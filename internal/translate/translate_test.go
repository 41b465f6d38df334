// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package translate

import (
	"strings"
	"testing"

	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/petri"
	"github.com/aclements/go-concur/internal/syncinv"
)

// atomicOrderingDump has one function that stores to a shared
// AtomicUsize with an explicit "relaxed" ordering and then loads from it
// with no ordering field at all, exercising both the parsed-ordering
// path and the no-ordering-given default through internal/ir.Load and
// into the translator's atomic branch.
const atomicOrderingDump = `{
  "instances": [
    {
      "def": "f",
      "body": {
        "args_count": 1,
        "locals": [
          {"type":"()"},
          {"type":"std::sync::atomic::AtomicUsize"},
          {"type":"usize"}
        ],
        "blocks": [
          {"name":"bb0","statements":[],"term":{"kind":"call","span":"f.rs:3:5","call":{"callee":"core::sync::atomic::AtomicUsize::store","ordering":"relaxed","args":[{"kind":"move","place":{"local":1}},{"kind":"constant","const":0}],"has_target":true,"target":1}}},
          {"name":"bb1","statements":[],"term":{"kind":"call","span":"f.rs:4:5","call":{"callee":"core::sync::atomic::AtomicUsize::load","args":[{"kind":"move","place":{"local":1}}],"destination":{"local":2},"has_target":true,"target":2}}},
          {"name":"bb2","statements":[],"term":{"kind":"return"}}
        ]
      }
    }
  ]
}`

func TestTranslateThreadsRealAtomicOrdering(t *testing.T) {
	prog, err := ir.Load(strings.NewReader(atomicOrderingDump))
	if err != nil {
		t.Fatalf("ir.Load: %v", err)
	}
	cg := cgraph.Build(prog, cgraph.ClassifyConfig{})
	a := alias.New(prog, cg)
	reg := syncinv.BuildRegistry(prog, a, syncinv.SiteConfig{})

	net, err := Translate(prog, cg, a, reg, Config{Segment: true})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	var sawRelaxedStore, sawSeqCstLoad bool
	for _, tr := range net.Transitions() {
		switch tr.Label.Kind {
		case petri.LAtomicStore:
			if tr.Label.Order != ir.OrdRelaxed {
				t.Errorf("store transition Order = %v, want OrdRelaxed (the dump's explicit \"relaxed\")", tr.Label.Order)
			}
			sawRelaxedStore = true
		case petri.LAtomicLoad:
			if tr.Label.Order != ir.OrdSeqCst {
				t.Errorf("load transition Order = %v, want OrdSeqCst (the default for a call with no ordering field)", tr.Label.Order)
			}
			sawSeqCstLoad = true
		}
	}
	if !sawRelaxedStore {
		t.Error("expected an AtomicStore transition")
	}
	if !sawSeqCstLoad {
		t.Error("expected an AtomicLoad transition")
	}
}

func TestReduceCollapsesLinearChain(t *testing.T) {
	n := petri.New()
	p0 := n.AddPlace("p0", petri.BasicBlock, 1, 1, ir.Span(""))
	p1 := n.AddPlace("p1", petri.BasicBlock, 1, 0, ir.Span(""))
	p2 := n.AddPlace("p2", petri.BasicBlock, 1, 0, ir.Span(""))
	t0 := n.AddTransition("t0", petri.TransitionLabel{Kind: petri.LGoto, Resource: -1})
	t1 := n.AddTransition("t1", petri.TransitionLabel{Kind: petri.LGoto, Resource: -1})
	n.AddInputArc(p0, t0, 1)
	n.AddOutputArc(p1, t0, 1)
	n.AddInputArc(p1, t1, 1)
	n.AddOutputArc(p2, t1, 1)

	got := Reduce(n)
	if len(got.Places()) != 2 {
		t.Fatalf("reduced places = %d, want 2 (interior place removed)", len(got.Places()))
	}
	if len(got.Transitions()) != 1 || got.Transitions()[0].Label.Kind != petri.LGoto {
		t.Fatalf("reduced transitions = %v, want a single Goto", got.Transitions())
	}
	m := got.InitialMarking()
	if m[0] != 1 {
		t.Fatalf("initial marking = %v, want the start token preserved", m)
	}
	next, ferr := got.FireTransition(m, 0)
	if ferr != nil {
		t.Fatalf("fire reduced Goto: %v", ferr)
	}
	if next[0] != 0 || next[1] != 1 {
		t.Fatalf("after reduced Goto: %v, want the token on the chain's far endpoint", next)
	}
}

func TestReduceKeepsResourceTouchingChains(t *testing.T) {
	n := petri.New()
	p0 := n.AddPlace("p0", petri.BasicBlock, 1, 1, ir.Span(""))
	p1 := n.AddPlace("p1", petri.BasicBlock, 1, 0, ir.Span(""))
	p2 := n.AddPlace("p2", petri.BasicBlock, 1, 0, ir.Span(""))
	res := n.AddPlace("res", petri.Resources, 1, 1, ir.Span(""))
	t0 := n.AddTransition("lock", petri.TransitionLabel{Kind: petri.LLock, Resource: 0})
	t1 := n.AddTransition("t1", petri.TransitionLabel{Kind: petri.LGoto, Resource: -1})
	n.AddInputArc(p0, t0, 1)
	n.AddInputArc(res, t0, 1)
	n.AddOutputArc(p1, t0, 1)
	n.AddInputArc(p1, t1, 1)
	n.AddOutputArc(p2, t1, 1)

	if got := Reduce(n); got != n {
		t.Fatal("a chain whose transition consumes a resource place must not be collapsed")
	}
}
