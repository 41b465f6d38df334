// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/lockdataflow"
	"github.com/aclements/go-concur/internal/syncinv"
)

// ConflictCycle is the conflict-cycle (lock-ordering) detector:
// build the conflict-lock graph over HoldsBefore edges -- an edge from
// pair (_, b1) to pair (b2, _) exists when deadlock_possibility(b1,b2) is
// at least Possibly -- then enumerate its elementary cycles via Johnson's
// algorithm. Each cycle becomes one ConflictLock report.
func ConflictCycle(res *lockdataflow.Result, reg *syncinv.Registry, aliases *alias.Analysis) []Report {
	pairs := res.HoldsBeforePairs()
	if len(pairs) == 0 {
		return nil
	}

	g := simple.NewDirectedGraph()
	for i := range pairs {
		g.AddNode(simple.Node(i))
	}
	for i := range pairs {
		for j := range pairs {
			if i == j {
				continue
			}
			if deadlockPossibility(reg, aliases, pairs[i].B, pairs[j].A).AtLeast(lattice.Possibly) {
				g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
			}
		}
	}

	cycles := topo.DirectedCyclesIn(g)
	var out []Report
	for _, cycle := range cycles {
		out = append(out, reportForCycle(cycle, pairs, reg, aliases))
	}
	return out
}

func reportForCycle(cycle []graph.Node, pairs []lockdataflow.HoldsPair, reg *syncinv.Registry, aliases *alias.Analysis) Report {
	// DirectedCyclesIn repeats the start node as the final element; drop
	// it so a 2-cycle yields a length-2 diagnosis, not 3.
	if len(cycle) > 1 && cycle[0].ID() == cycle[len(cycle)-1].ID() {
		cycle = cycle[:len(cycle)-1]
	}
	conf := lattice.Probably
	var locs []Location
	for i, n := range cycle {
		idx := int(n.ID())
		next := cycle[(i+1)%len(cycle)]
		edgeConf := deadlockPossibility(reg, aliases, pairs[idx].B, pairs[int(next.ID())].A)
		if edgeConf < conf {
			conf = edgeConf
		}
		if gb, ok := reg.Guard(pairs[idx].B); ok {
			locs = append(locs, Location{PrimitiveKind: gb.Kind.String(), Span: gb.Span})
		}
	}
	return Report{Kind: KindConflictLock, Confidence: conf, Locations: locs}
}
