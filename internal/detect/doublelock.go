// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/lockdataflow"
	"github.com/aclements/go-concur/internal/syncinv"
)

// DoubleLock is the double-lock detector: for
// every pair in the HoldsBefore relation whose guards structurally
// conflict and alias at least Possibly, and that are not merely the same
// source-span guard seen twice, emit a report with a sample call chain
// from the outer acquisition's instance to the inner one's.
func DoubleLock(res *lockdataflow.Result, reg *syncinv.Registry, aliases *alias.Analysis, cg *cgraph.Graph) []Report {
	var out []Report
	for _, pair := range res.HoldsBeforePairs() {
		conf := deadlockPossibility(reg, aliases, pair.A, pair.B)
		if !conf.AtLeast(lattice.Possibly) {
			continue
		}
		if sameSourceRecursive(reg, pair.A, pair.B) {
			continue
		}
		ga, _ := reg.Guard(pair.A)
		gb, _ := reg.Guard(pair.B)
		out = append(out, Report{
			Kind:       KindDoubleLock,
			Confidence: conf,
			Locations: []Location{
				{PrimitiveKind: ga.Kind.String(), Span: ga.Span},
				{PrimitiveKind: gb.Kind.String(), Span: gb.Span},
			},
			CallChains: buildCallChains(cg, pair.A.Instance, pair.B.Instance),
		})
	}
	return out
}

// buildCallChains renders every simple call-graph path from src to dst as
// a CallChain, one entry per hop carrying every call-site span
// available for that hop.
func buildCallChains(cg *cgraph.Graph, src, dst int) []CallChain {
	paths := cg.AllSimplePaths(src, dst)
	out := make([]CallChain, 0, len(paths))
	for _, path := range paths {
		var chain CallChain
		for i := 0; i+1 < len(path); i++ {
			var spans []ir.Span
			for _, site := range cg.Callsites(path[i], path[i+1]) {
				spans = append(spans, site.Location)
			}
			chain = append(chain, spans)
		}
		out = append(out, chain)
	}
	return out
}
