// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/lockdataflow"
	"github.com/aclements/go-concur/internal/syncinv"
)

// CondvarMisuse is the condvar-misuse detector:
// pairs every wait site with every notify site that aliases on the same
// condvar resource place, forms the cartesian product of their live
// lock-guard snapshots, and keeps candidate pairs that both alias and
// structurally conflict -- excluding the guard that protects the wait
// itself, which the wait/notify protocol legitimately holds on both
// sides. A wait whose condvar is never aliased by any notify site instead
// yields a MissNotify report.
func CondvarMisuse(res *lockdataflow.Result, reg *syncinv.Registry, aliases *alias.Analysis) []Report {
	var out []Report
	for _, w := range res.Waits {
		if !w.HasCondvar {
			continue
		}
		var deadlockReports []Report
		notified := false
		for _, nf := range res.Notifies {
			if !nf.HasCondvar || nf.CondvarRes != w.CondvarRes {
				continue
			}
			notified = true
			if r, ok := condvarDeadlockCandidate(w, nf, reg, aliases); ok {
				deadlockReports = append(deadlockReports, r)
			}
		}
		if !notified {
			out = append(out, Report{
				Kind:       KindMissNotify,
				Confidence: lattice.Probably,
				Locations:  []Location{{PrimitiveKind: "Condvar", Span: w.Location}},
			})
			continue
		}
		out = append(out, deadlockReports...)
	}
	return out
}

func condvarDeadlockCandidate(w lockdataflow.WaitSite, nf lockdataflow.NotifySite, reg *syncinv.Registry, aliases *alias.Analysis) (Report, bool) {
	best := lattice.Unknown
	for _, g1 := range w.Live {
		if w.HasGuard && g1 == w.Guard {
			continue
		}
		for _, g2 := range nf.Live {
			aliasConf := aliases.Alias(g1, g2)
			if !aliasConf.AtLeast(lattice.Possibly) {
				continue
			}
			conflictConf := deadlockPossibility(reg, aliases, g1, g2)
			if !conflictConf.AtLeast(lattice.Possibly) {
				continue
			}
			conf := aliasConf
			if conflictConf < conf {
				conf = conflictConf
			}
			if conf > best {
				best = conf
			}
		}
	}
	if best == lattice.Unknown {
		return Report{}, false
	}
	return Report{
		Kind:       KindCondvarDeadlock,
		Confidence: best,
		Locations: []Location{
			{PrimitiveKind: "Condvar", Span: w.Location},
			{PrimitiveKind: "Condvar", Span: nf.Location},
		},
	}, true
}
