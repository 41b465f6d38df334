// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/petri"
)

// AtomicRace is the atomicity-violation detector:
// every on-the-fly race the explorer recorded becomes one report,
// carrying the two racing transitions' spans. No deduplication is
// applied -- each occurrence is reported separately.
func AtomicRace(net *petri.Net, rg *petri.ReachabilityGraph) []Report {
	transitions := net.Transitions()
	out := make([]Report, 0, len(rg.AtomicRaces))
	for _, race := range rg.AtomicRaces {
		l1 := transitions[race.Ops[0]].Label
		l2 := transitions[race.Ops[1]].Label
		out = append(out, Report{
			Kind:       KindAtomicRace,
			Confidence: lattice.Probably,
			Locations: []Location{
				{PrimitiveKind: l1.Kind.String(), Span: l1.Span},
				{PrimitiveKind: l2.Kind.String(), Span: l2.Span},
			},
		})
	}
	return out
}
