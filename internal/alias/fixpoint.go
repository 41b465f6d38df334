// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alias

import (
	"golang.org/x/tools/container/intsets"

	"github.com/aclements/go-concur/internal/ir"
)

// addCopy records a Copy edge src --Copy--> dst. AliasCopy edges are
// folded in here too: the only difference from a plain Copy is that the
// call site also adds a Load edge (see graph.go), so by the time an
// AliasCopy reaches this function it behaves identically to Copy.
func (a *Analysis) addCopy(src, dst int) {
	a.ensureLen(max(src, dst) + 1)
	a.copyEdges[src] = append(a.copyEdges[src], dst)
}

// addLoad records a Load edge src --Load--> dst: dst receives the points-to
// sets of everything src points to (one dereference).
func (a *Analysis) addLoad(src, dst int) {
	a.ensureLen(max(src, dst) + 1)
	a.loadEdges[src] = append(a.loadEdges[src], dst)
}

// seedPts adds node to the initial points-to set of owner. Used for address
// edges (pts(Place) gets an Alloc) and constant seeding (pts(Constant) gets
// its ConstantDeref).
func (a *Analysis) seedPts(owner, node int) {
	a.ensureLen(max(owner, node) + 1)
	if a.pts[owner] == nil {
		a.pts[owner] = &intsets.Sparse{}
	}
	a.pts[owner].Insert(node)
}

// addStore records a Store edge: the fixpoint's store rule propagates
// pts(src) into pts(o) for every o in pts(target); for `*x = y`,
// target == x the pointer, src == y the stored value.
func (a *Analysis) addStore(src, target int) {
	a.ensureLen(max(src, target) + 1)
	a.storeTargets[target] = append(a.storeTargets[target], src)
}

func (a *Analysis) ensureLen(n int) {
	for len(a.pts) < n {
		a.pts = append(a.pts, nil)
	}
}

// solve runs the worklist fixpoint over the whole global constraint
// graph built so far. It is idempotent and safe to call repeatedly;
// visitInstance clears a.solved whenever new edges are added.
func (a *Analysis) solve() {
	if a.solved {
		return
	}
	a.ensureLen(len(a.reg.infos))

	var worklist []int
	onWorklist := make(map[int]bool, len(a.pts))
	enqueue := func(n int) {
		if !onWorklist[n] {
			onWorklist[n] = true
			worklist = append(worklist, n)
		}
	}
	for n := range a.pts {
		if a.pts[n] != nil {
			enqueue(n)
		}
	}

	for len(worklist) > 0 {
		n := worklist[0]
		worklist = worklist[1:]
		onWorklist[n] = false
		if a.pts[n] == nil {
			continue
		}

		// Step 1: Copy edges out of n.
		for _, t := range a.copyEdges[n] {
			if a.unionInto(t, a.pts[n]) {
				enqueue(t)
			}
		}

		// Step 2: Load edges out of n (n is the pointer): for every o in
		// pts(n), pts(t) gets pts(o).
		if len(a.loadEdges[n]) > 0 {
			for _, o := range a.pts[n].AppendTo(nil) {
				if o >= len(a.pts) || a.pts[o] == nil {
					continue
				}
				for _, t := range a.loadEdges[n] {
					if a.unionInto(t, a.pts[o]) {
						enqueue(t)
					}
				}
			}
		}

		// Step 2 (store side): n may be the target of Store edges; for
		// every o in pts(n) and every source s with s--Store-->n,
		// pts(o) gets pts(s).
		if srcs := a.storeTargets[n]; len(srcs) > 0 {
			for _, o := range a.pts[n].AppendTo(nil) {
				if o >= len(a.pts) {
					continue
				}
				if a.pts[o] == nil {
					a.pts[o] = &intsets.Sparse{}
				}
				for _, s := range srcs {
					if s >= len(a.pts) || a.pts[s] == nil {
						continue
					}
					if a.unionInto(o, a.pts[s]) {
						enqueue(o)
					}
				}
			}
		}
	}

	// After fixpoint, propagate every field-bearing node's set down to
	// its ancestor root once: pts(x.f) gets pts(x).
	for id, info := range a.reg.infos {
		if info.Kind != NodePlace || len(info.Place.Projection) == 0 {
			continue
		}
		root := a.reg.placeNode(info.Inst, ir.Place{Local: info.Place.Local})
		if root == id || root >= len(a.pts) || a.pts[root] == nil {
			continue
		}
		if a.pts[id] == nil {
			a.pts[id] = &intsets.Sparse{}
		}
		a.pts[id].UnionWith(a.pts[root])
	}

	a.solved = true
}

// unionInto merges src into a.pts[dst], allocating it if necessary, and
// reports whether dst's set changed. Alloc nodes never receive anything:
// they are the address-taken sources of the graph, not sinks.
func (a *Analysis) unionInto(dst int, src *intsets.Sparse) bool {
	if a.reg.infos[dst].Kind == NodeAlloc {
		return false
	}
	if a.pts[dst] == nil {
		a.pts[dst] = &intsets.Sparse{}
	}
	return a.pts[dst].UnionWith(src)
}
