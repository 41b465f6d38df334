// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"sort"

	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/petri"
)

// accessOp is one UnsafeRead/UnsafeWrite transition observed leaving
// some reachable state, keyed by (basic block, span).
type accessOp struct {
	isWrite bool
	bb      int
	span    ir.Span
}

// DataRace is the data-race detector: for every
// state in rg, enumerate its outgoing UnsafeRead/UnsafeWrite edges,
// group by the resource place they touch, and report a race for every
// pair within a group where at least one access is a Write. Reports are
// then merged by groupByVariable's (bb, span) key, unioning operations:
// two accesses are the same variable when they share a basic block and
// source span.
func DataRace(net *petri.Net, rg *petri.ReachabilityGraph) []Report {
	transitions := net.Transitions()
	byResource := make(map[int][]accessOp)
	for _, e := range rg.Edges {
		lbl := transitions[e.Transition].Label
		if lbl.Kind != petri.LUnsafeRead && lbl.Kind != petri.LUnsafeWrite {
			continue
		}
		byResource[lbl.Resource] = append(byResource[lbl.Resource], accessOp{
			isWrite: lbl.Kind == petri.LUnsafeWrite,
			bb:      lbl.BB,
			span:    lbl.Span,
		})
	}

	type pairKey struct {
		resource int
		bb1, bb2 int
		span1    ir.Span
		span2    ir.Span
	}
	resources := make([]int, 0, len(byResource))
	for r := range byResource {
		resources = append(resources, r)
	}
	sort.Ints(resources)

	merged := make(map[pairKey]bool)
	var out []Report
	for _, resource := range resources {
		grouped := groupByVariable(byResource[resource])
		for i := 0; i < len(grouped); i++ {
			for j := i + 1; j < len(grouped); j++ {
				a, b := grouped[i], grouped[j]
				if !a.isWrite && !b.isWrite {
					continue
				}
				if a.span > b.span || (a.span == b.span && a.bb > b.bb) {
					a, b = b, a
				}
				key := pairKey{resource, a.bb, b.bb, a.span, b.span}
				if merged[key] {
					continue
				}
				merged[key] = true
				out = append(out, Report{
					Kind:       KindDataRace,
					Confidence: lattice.Probably,
					Locations: []Location{
						{PrimitiveKind: opKind(a), Span: a.span},
						{PrimitiveKind: opKind(b), Span: b.span},
					},
				})
			}
		}
	}
	return out
}

func opKind(a accessOp) string {
	if a.isWrite {
		return "UnsafeWrite"
	}
	return "UnsafeRead"
}

// groupByVariable merges access ops that share a (bb, span) key,
// deduplicating repeated
// observations of the same static access across many reachable states
// down to one representative per (bb, span), unioning the isWrite flag.
func groupByVariable(ops []accessOp) []accessOp {
	type groupKey struct {
		bb   int
		span ir.Span
	}
	groups := make(map[groupKey]*accessOp)
	var order []groupKey
	for _, op := range ops {
		k := groupKey{op.bb, op.span}
		if g, ok := groups[k]; ok {
			if op.isWrite {
				g.isWrite = true
			}
			continue
		}
		cp := op
		groups[k] = &cp
		order = append(order, k)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].span != order[j].span {
			return order[i].span < order[j].span
		}
		return order[i].bb < order[j].bb
	})
	out := make([]accessOp, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out
}
