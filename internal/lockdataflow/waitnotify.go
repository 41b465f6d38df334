// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockdataflow

import (
	"sort"

	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/syncinv"
)

// collectWaitNotify makes one final pass over every call terminator
// classified CondvarWait/CondvarNotify, pairing each with the live-guard
// snapshot computed at its call site for the condvar detector. Run only
// after the whole-program fix-point has drained, so beforeTerm is
// stable.
func (r *runner) collectWaitNotify() ([]WaitSite, []NotifySite) {
	var waits []WaitSite
	var notifies []NotifySite

	for _, inst := range r.prog.AllInstances() {
		if !r.prog.IsMIRAvailable(inst.Def) {
			continue
		}
		body := r.prog.InstanceMIR(inst)
		for bi, bb := range body.Blocks {
			if bb.Term.Kind != ir.TermCall {
				continue
			}
			call := bb.Term.Call
			switch cgraph.Classify(r.prog, call.Callee, r.cfg) {
			case cgraph.CondvarWait:
				condRes, hasCond := r.findCondvarArg(inst.Index, call, 0)
				guard, hasGuard := directArgAlias(inst.Index, call, 1)
				waits = append(waits, WaitSite{
					Caller:     inst.Index,
					Location:   bb.Term.Span,
					CondvarRes: condRes,
					HasCondvar: hasCond,
					Guard:      guard,
					HasGuard:   hasGuard,
					Live:       sortedAliases(r.beforeTerm[inst.Index][bi]),
				})
			case cgraph.CondvarNotify:
				condRes, hasCond := r.findCondvarArg(inst.Index, call, 0)
				notifies = append(notifies, NotifySite{
					Caller:     inst.Index,
					Location:   bb.Term.Span,
					CondvarRes: condRes,
					HasCondvar: hasCond,
					Live:       sortedAliases(r.beforeTerm[inst.Index][bi]),
				})
			}
		}
	}

	sort.Slice(waits, func(i, j int) bool { return waits[i].Location < waits[j].Location })
	sort.Slice(notifies, func(i, j int) bool { return notifies[i].Location < notifies[j].Location })
	return waits, notifies
}

// findCondvarArg resolves argIdx's argument to the registry's condvar
// resource-place index, first by exact site identity and falling back to
// an alias query against every registered condvar -- the same pattern
// internal/translate's findCondvarArg uses for the Petri-net wiring.
func (r *runner) findCondvarArg(instIdx int, call ir.CallInfo, argIdx int) (int, bool) {
	id, ok := directArgAlias(instIdx, call, argIdx)
	if !ok {
		return 0, false
	}
	if idx, ok := r.reg.ResourceForCondvar(id); ok {
		return idx, true
	}
	for i, rp := range r.reg.Places {
		if rp.Kind != syncinv.ResourceCondvar || rp.Condvar == nil {
			continue
		}
		if r.aliases.Alias(id, rp.Condvar.Alias).AtLeast(lattice.Possibly) {
			return i, true
		}
	}
	return 0, false
}

func directArgAlias(instIdx int, call ir.CallInfo, argIdx int) (ir.AliasID, bool) {
	if argIdx < 0 || argIdx >= len(call.Args) || call.Args[argIdx].Kind == ir.OperandConstant {
		return ir.AliasID{}, false
	}
	return ir.AliasID{Instance: instIdx, Local: call.Args[argIdx].Place.Local}, true
}

func sortedAliases(s aliasSet) []ir.AliasID {
	out := make([]ir.AliasID, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
