// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package translate

import (
	"fmt"
	"sort"

	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/petri"
	"github.com/aclements/go-concur/internal/syncinv"
)

// concurrentRoots returns every instance index owning at least one site
// in the synchronization inventory: the additional translation roots the
// translate_concurrent_roots option brings into scope.
func concurrentRoots(prog *ir.Program, reg *syncinv.Registry) []int {
	seen := make(map[int]bool)
	add := func(id ir.AliasID) {
		if prog.InstanceByIndex(id.Instance) != nil {
			seen[id.Instance] = true
		}
	}
	for _, rp := range reg.Places {
		for _, g := range rp.Guards {
			add(g.Alias)
		}
		if rp.Condvar != nil {
			add(rp.Condvar.Alias)
		}
		for _, a := range rp.Atomic {
			add(a.Alias)
		}
		for _, c := range rp.Chan {
			add(c.Alias)
		}
		for _, u := range rp.Unsafe {
			add(u.Alias)
		}
	}
	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Reduce collapses linear P-T-P-... chains with no resource interaction
// into a single Goto transition between the chain's endpoint places. A
// transition is collapsible when its only arcs are one weight-1 input
// and one weight-1 output, neither touching a
// Resources place; a place is chain-interior when it starts empty, is not
// a Resources place, and has exactly one producing and one consuming
// transition, both collapsible. Only chains of two or more transitions
// are rewritten. Nets carrying inhibitor or reset arcs are returned
// unchanged, since the rebuild cannot reproduce them.
func Reduce(net *petri.Net) *petri.Net {
	if net.HasExtendedArcs() {
		return net
	}
	places := net.Places()
	trans := net.Transitions()
	initial := net.InitialMarking()

	tIn := make([][]int, len(trans))  // places feeding each transition
	tOut := make([][]int, len(trans)) // places fed by each transition
	pIn := make([][]int, len(places)) // transitions producing into each place
	pOut := make([][]int, len(places))
	for t := range trans {
		for p := range places {
			if net.InputWeight(p, t) > 0 {
				tIn[t] = append(tIn[t], p)
				pOut[p] = append(pOut[p], t)
			}
			if net.OutputWeight(p, t) > 0 {
				tOut[t] = append(tOut[t], p)
				pIn[p] = append(pIn[p], t)
			}
		}
	}

	collapsible := func(t int) bool {
		if len(tIn[t]) != 1 || len(tOut[t]) != 1 {
			return false
		}
		in, out := tIn[t][0], tOut[t][0]
		if net.InputWeight(in, t) != 1 || net.OutputWeight(out, t) != 1 {
			return false
		}
		return places[in].Kind != petri.Resources && places[out].Kind != petri.Resources
	}
	interior := func(p int) bool {
		return places[p].Kind != petri.Resources && initial[p] == 0 &&
			len(pIn[p]) == 1 && len(pOut[p]) == 1 &&
			collapsible(pIn[p][0]) && collapsible(pOut[p][0])
	}

	removedT := make([]bool, len(trans))
	removedP := make([]bool, len(places))
	type gotoArc struct{ from, to, tid int }
	var gotos []gotoArc

	for t := range trans {
		if removedT[t] || !collapsible(t) {
			continue
		}
		if interior(tIn[t][0]) {
			continue // not a chain head; reached from an earlier transition
		}
		chain := []int{t}
		q := tOut[t][0]
		for interior(q) && !removedT[pOut[q][0]] {
			next := pOut[q][0]
			chain = append(chain, next)
			q = tOut[next][0]
		}
		if len(chain) < 2 {
			continue
		}
		for _, ct := range chain {
			removedT[ct] = true
		}
		for _, ct := range chain[1:] {
			removedP[tIn[ct][0]] = true
		}
		gotos = append(gotos, gotoArc{from: tIn[t][0], to: q, tid: trans[t].Label.TID})
	}
	if len(gotos) == 0 {
		return net
	}

	out := petri.New()
	pmap := make([]int, len(places))
	for p, pl := range places {
		if removedP[p] {
			pmap[p] = -1
			continue
		}
		pmap[p] = out.AddPlace(pl.Name, pl.Kind, pl.Capacity, initial[p], pl.Span)
	}
	for t, tr := range trans {
		if removedT[t] {
			continue
		}
		nt := out.AddTransition(tr.Name, tr.Label)
		for _, p := range tIn[t] {
			out.AddInputArc(pmap[p], nt, net.InputWeight(p, t))
		}
		for _, p := range tOut[t] {
			out.AddOutputArc(pmap[p], nt, net.OutputWeight(p, t))
		}
	}
	for i, g := range gotos {
		nt := out.AddTransition(fmt.Sprintf("reduced::Goto%d", i), petri.TransitionLabel{Kind: petri.LGoto, TID: g.tid, Resource: -1})
		out.AddInputArc(pmap[g.from], nt, 1)
		out.AddOutputArc(pmap[g.to], nt, 1)
	}
	return out
}
