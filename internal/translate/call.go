// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package translate

import (
	"fmt"
	"sort"

	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/petri"
	"github.com/aclements/go-concur/internal/syncinv"
)

// lockWiring returns the resource-place arc weight and the transition
// label a lock-guard's kind wires:
// mutexes and read-guards take one token, write-guards take all ten
// (modeling exclusive access to a 10-reader rwlock).
func lockWiring(k syncinv.LockKind) (weight int, label petri.LabelKind) {
	switch k {
	case syncinv.StdRwLockRead, syncinv.ParkingLotRead, syncinv.SpinRead:
		return 1, petri.LRwLockRead
	case syncinv.StdRwLockWrite, syncinv.ParkingLotWrite, syncinv.SpinWrite:
		return syncinv.RWLockCapacity, petri.LRwLockWrite
	default:
		return 1, petri.LLock
	}
}

func findGuard(reg *syncinv.Registry, regIdx int, id ir.AliasID) (syncinv.LockGuard, bool) {
	for _, g := range reg.Places[regIdx].Guards {
		if g.Alias == id {
			return g, true
		}
	}
	return syncinv.LockGuard{}, false
}

func argAliasID(instIdx int, call ir.CallInfo, argIdx int) (ir.AliasID, bool) {
	if argIdx < 0 || argIdx >= len(call.Args) || call.Args[argIdx].Kind == ir.OperandConstant {
		return ir.AliasID{}, false
	}
	return ir.AliasID{Instance: instIdx, Local: call.Args[argIdx].Place.Local}, true
}

func (tr *translator) findCondvarArg(instIdx int, call ir.CallInfo, argIdx int) (int, bool) {
	id, ok := argAliasID(instIdx, call, argIdx)
	if !ok {
		return 0, false
	}
	if idx, ok := tr.reg.ResourceForCondvar(id); ok {
		return idx, true
	}
	for i, rp := range tr.reg.Places {
		if rp.Kind != syncinv.ResourceCondvar || rp.Condvar == nil {
			continue
		}
		if tr.aliases.Alias(id, rp.Condvar.Alias).AtLeast(lattice.Possibly) {
			return i, true
		}
	}
	return 0, false
}

func (tr *translator) findChannelArg(instIdx int, call ir.CallInfo, argIdx int) (int, bool) {
	id, ok := argAliasID(instIdx, call, argIdx)
	if !ok {
		return 0, false
	}
	if idx, ok := tr.reg.ResourceForChannel(id); ok {
		return idx, true
	}
	for i, rp := range tr.reg.Places {
		if rp.Kind != syncinv.ResourceChannel {
			continue
		}
		for _, ep := range rp.Chan {
			if tr.aliases.Alias(id, ep.Alias).AtLeast(lattice.Possibly) {
				return i, true
			}
		}
	}
	return 0, false
}

func (tr *translator) findLockArg(instIdx int, call ir.CallInfo, argIdx int) (int, bool) {
	id, ok := argAliasID(instIdx, call, argIdx)
	if !ok {
		return 0, false
	}
	if idx, ok := tr.reg.ResourceForLock(id); ok {
		return idx, true
	}
	for i, rp := range tr.reg.Places {
		if rp.Kind != syncinv.ResourceMutex && rp.Kind != syncinv.ResourceRwLock {
			continue
		}
		for _, g := range rp.Guards {
			if tr.aliases.Alias(id, g.Alias).AtLeast(lattice.Possibly) {
				return i, true
			}
		}
	}
	return 0, false
}

func (tr *translator) findAtomicArg(instIdx int, call ir.CallInfo, argIdx int) (int, bool) {
	id, ok := argAliasID(instIdx, call, argIdx)
	if !ok {
		return 0, false
	}
	if idx, ok := tr.reg.ResourceForAtomic(id); ok {
		return idx, true
	}
	for i, rp := range tr.reg.Places {
		if rp.Kind != syncinv.ResourceAtomic {
			continue
		}
		for _, s := range rp.Atomic {
			if tr.aliases.AliasAtomic(id, s.Alias).AtLeast(lattice.Possibly) {
				return i, true
			}
		}
	}
	return 0, false
}

// connectCallTarget wires t's continuation: an ordinary live target gets
// a direct output arc to
// its BB head; a missing target, or one whose block is marked
// is_cleanup, synthesizes a Return(tid) transition via a fresh
// connecting place (t itself, a transition, cannot feed the shared
// Return transition's place-typed input directly).
func (tr *translator) connectCallTarget(instIdx, t int, call ir.CallInfo) {
	if call.HasTarget {
		body := tr.bodyOf(instIdx)
		if call.Target >= 0 && call.Target < len(body.Blocks) && !body.Blocks[call.Target].IsCleanup {
			tr.net.AddOutputArc(tr.skel[instIdx].bbHead[call.Target], t, 1)
			return
		}
	}
	fresh := tr.freshPlace(instIdx, "")
	tr.net.AddOutputArc(fresh, t, 1)
	tr.returnTransition(instIdx, fresh)
}

// translateCall translates a Call terminator: a generic Function-typed
// t_call consuming the BB's last-place, then a priority-ordered
// specialization (lock acquire, notify, wait, channel send/recv, thread
// control, atomics, known-body RPC, opaque skip).
func (tr *translator) translateCall(instIdx, bi, src int, term ir.Terminator) {
	call := term.Call
	t := tr.net.AddTransition(fmt.Sprintf("i%d::bb%d::Call", instIdx, bi), petri.TransitionLabel{Kind: petri.LFunction, TID: instIdx, Resource: -1, Span: term.Span})
	tr.net.AddInputArc(src, t, 1)

	// Step 1: lock-acquire, recognized because the destination local was
	// already registered as a lock-guard by the synchronization
	// inventory.
	if call.HasDest {
		destID := ir.AliasID{Instance: instIdx, Local: call.Destination.Local}
		if regIdx, ok := tr.reg.ResourceForLock(destID); ok {
			if guard, ok := findGuard(tr.reg, regIdx, destID); ok {
				weight, label := lockWiring(guard.Kind)
				tr.net.AddInputArc(tr.resPlace[regIdx], t, weight)
				tr.net.RelabelTransition(t, petri.TransitionLabel{Kind: label, TID: instIdx, Resource: regIdx, Span: term.Span})
				tr.connectCallTarget(instIdx, t, call)
				return
			}
		}
	}

	tag := cgraph.Classify(tr.prog, call.Callee, tr.cfg.Classify)

	// Step 2: Condvar::notify*.
	if tag == cgraph.CondvarNotify {
		if regIdx, ok := tr.findCondvarArg(instIdx, call, 0); ok {
			tr.net.AddOutputArc(tr.resPlace[regIdx], t, 1)
			tr.net.RelabelTransition(t, petri.TransitionLabel{Kind: petri.LNotify, TID: instIdx, Resource: regIdx, Span: term.Span})
		}
		tr.connectCallTarget(instIdx, t, call)
		return
	}

	// Step 3: Condvar::wait.
	if tag == cgraph.CondvarWait {
		tr.translateCondvarWait(instIdx, bi, t, call, term.Span)
		return
	}

	// Step 4: channel send.
	if tag == cgraph.ChannelSend {
		if regIdx, ok := tr.findChannelArg(instIdx, call, 0); ok {
			tr.net.AddOutputArc(tr.resPlace[regIdx], t, 1)
			tr.net.RelabelTransition(t, petri.TransitionLabel{Kind: petri.LFunction, TID: instIdx, Resource: regIdx, Span: term.Span})
		}
		tr.connectCallTarget(instIdx, t, call)
		return
	}

	// Step 5: channel recv.
	if tag == cgraph.ChannelRecv {
		if regIdx, ok := tr.findChannelArg(instIdx, call, 0); ok {
			tr.net.AddInputArc(tr.resPlace[regIdx], t, 1)
			tr.net.RelabelTransition(t, petri.TransitionLabel{Kind: petri.LFunction, TID: instIdx, Resource: regIdx, Span: term.Span})
		}
		tr.connectCallTarget(instIdx, t, call)
		return
	}

	// Step 6: thread-control classification.
	switch tag {
	case cgraph.Spawn, cgraph.AsyncSpawn:
		tr.wireSpawn(instIdx, t, call, term.Span, 0)
		return
	case cgraph.ScopeSpawn:
		tr.wireSpawn(instIdx, t, call, term.Span, 1)
		return
	case cgraph.Join, cgraph.AsyncJoin:
		tr.wireJoin(instIdx, t, call, term.Span, 0)
		return
	case cgraph.ScopeJoin:
		tr.wireJoin(instIdx, t, call, term.Span, 1)
		return
	case cgraph.RayonJoin:
		tr.wireRayonJoin(instIdx, bi, t, call, term.Span)
		return
	}

	// Step 7: atomic load/store.
	if call.Callee != "" {
		isLoad, isStore := tr.classifyAtomicCall(call.Callee)
		if (isLoad || isStore) && len(call.Args) > 0 {
			if regIdx, ok := tr.findAtomicArg(instIdx, call, 0); ok {
				argID, _ := argAliasID(instIdx, call, 0)
				kind := petri.LAtomicLoad
				if isStore {
					kind = petri.LAtomicStore
				}
				ord := call.Ordering
				tr.net.AddInputArc(tr.resPlace[regIdx], t, 1)
				tr.net.AddOutputArc(tr.resPlace[regIdx], t, 1)
				tr.net.RelabelTransition(t, petri.TransitionLabel{Kind: kind, TID: instIdx, Resource: regIdx, Alias: argID, Order: ord, Span: term.Span})
				if tr.cfg.Segment {
					tr.wireSegment(instIdx, t, ord)
				}
				tr.connectCallTarget(instIdx, t, call)
				return
			}
		}
	}

	// Step 8: callee has a known MIR body -- the RPC pattern.
	caller := tr.prog.InstanceByIndex(instIdx)
	if callee, ok := tr.prog.TryResolve(call.Callee, caller.Substs); ok && tr.cg.HasBody(callee.Index) {
		if _, ok := tr.skel[callee.Index]; ok {
			tr.translateRPC(instIdx, bi, t, call, callee.Index, term.Span)
			return
		}
	}

	// Step 9: opaque/extern callee -- skipped call.
	tr.connectCallTarget(instIdx, t, call)
}

// translateCondvarWait models Condvar::wait: a fresh
// `wait` place, a Wait-typed return transition consuming from it plus the
// matching condvar and held-mutex resource places, re-acquiring the
// mutex on the way out.
func (tr *translator) translateCondvarWait(instIdx, bi int, t int, call ir.CallInfo, span ir.Span) {
	wait := tr.freshPlace(instIdx, span)
	tr.net.AddOutputArc(wait, t, 1)

	condIdx, hasCond := tr.findCondvarArg(instIdx, call, 0)
	tRet := tr.net.AddTransition(fmt.Sprintf("i%d::bb%d::Wait", instIdx, bi), petri.TransitionLabel{Kind: petri.LWait, TID: instIdx, Resource: -1, Span: span})
	tr.net.AddInputArc(wait, tRet, 1)
	if hasCond {
		tr.net.AddInputArc(tr.resPlace[condIdx], tRet, 1)
		tr.net.RelabelTransition(tRet, petri.TransitionLabel{Kind: petri.LWait, TID: instIdx, Resource: condIdx, Span: span})
	}
	if lockIdx, ok := tr.findLockArg(instIdx, call, 1); ok {
		weight := 1
		if argID, ok := argAliasID(instIdx, call, 1); ok {
			if g, ok := findGuard(tr.reg, lockIdx, argID); ok {
				weight, _ = lockWiring(g.Kind)
			}
		}
		tr.net.AddInputArc(tr.resPlace[lockIdx], tRet, weight)
		tr.net.AddOutputArc(tr.resPlace[lockIdx], tRet, weight)
	}
	tr.connectCallTarget(instIdx, tRet, call)
}

// resolveClosureArg finds the instance a closure argument's
// ClosureDef-tagged call-graph edge resolves to, per the mechanism
// internal/cgraph.Build's recordClosureDef records.
func (tr *translator) resolveClosureArg(instIdx, local int) (int, bool) {
	for _, callee := range tr.cg.Callees(instIdx) {
		for _, site := range tr.cg.Callsites(instIdx, callee) {
			if site.SiteTag == cgraph.TagClosureDef && site.ClosureVal == local {
				return callee, true
			}
		}
	}
	return 0, false
}

// wireSpawn handles the Spawn/ScopeSpawn/AsyncSpawn case: attach the
// spawned closure's fn_start as an output of
// t_call. handleArgIdx is unused for Spawn (the join handle is the call's
// own destination) but kept for symmetry with wireJoin.
func (tr *translator) wireSpawn(instIdx int, t int, call ir.CallInfo, span ir.Span, _ int) {
	name := ""
	if call.HasDest {
		caller := tr.prog.InstanceByIndex(instIdx)
		destID := ir.AliasID{Instance: instIdx, Local: call.Destination.Local}
		for _, def := range tr.cg.SpawnLocals(caller.Def)[destID] {
			if callee, ok := tr.prog.TryResolve(def, caller.Substs); ok {
				if sk, ok := tr.skel[callee.Index]; ok {
					tr.net.AddOutputArc(sk.fnStart, t, 1)
					name = tr.prog.DefPathStr(def)
				}
			}
		}
	}
	tr.net.RelabelTransition(t, petri.TransitionLabel{Kind: petri.LSpawn, TID: instIdx, Resource: -1, Name: name, Span: span})
	tr.connectCallTarget(instIdx, t, call)
}

// wireJoin handles the Join/ScopeJoin/AsyncJoin case: alias the
// join-handle argument at handleArgIdx against every
// recorded spawn-site local and wire an input arc from each matching
// fn_end.
func (tr *translator) wireJoin(instIdx int, t int, call ir.CallInfo, span ir.Span, handleArgIdx int) {
	name := ""
	if joinID, ok := argAliasID(instIdx, call, handleArgIdx); ok {
		caller := tr.prog.InstanceByIndex(instIdx)
		spawns := tr.cg.SpawnLocals(caller.Def)
		keys := make([]ir.AliasID, 0, len(spawns))
		for key := range spawns {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Instance != keys[j].Instance {
				return keys[i].Instance < keys[j].Instance
			}
			return keys[i].Local < keys[j].Local
		})
		for _, key := range keys {
			if !tr.aliases.Alias(joinID, key).AtLeast(lattice.Possibly) {
				continue
			}
			for _, def := range spawns[key] {
				if callee, ok := tr.prog.TryResolve(def, caller.Substs); ok {
					if sk, ok := tr.skel[callee.Index]; ok {
						tr.net.AddInputArc(sk.fnEnd, t, 1)
						name = tr.prog.DefPathStr(def)
					}
				}
			}
		}
	}
	tr.net.RelabelTransition(t, petri.TransitionLabel{Kind: petri.LJoin, TID: instIdx, Resource: -1, Name: name, Span: span})
	tr.connectCallTarget(instIdx, t, call)
}

// wireRayonJoin handles the RayonJoin case: an
// explicit wait place feeding a Join transition, with each closure
// argument's fn_start/fn_end wired to t_call/the join transition
// respectively.
func (tr *translator) wireRayonJoin(instIdx, bi int, t int, call ir.CallInfo, span ir.Span) {
	wait := tr.freshPlace(instIdx, span)
	tr.net.AddOutputArc(wait, t, 1)
	tJoin := tr.net.AddTransition(fmt.Sprintf("i%d::bb%d::RayonJoin", instIdx, bi), petri.TransitionLabel{Kind: petri.LJoin, TID: instIdx, Resource: -1, Span: span})
	tr.net.AddInputArc(wait, tJoin, 1)

	for _, arg := range call.Args {
		if arg.Kind == ir.OperandConstant {
			continue
		}
		if calleeIdx, ok := tr.resolveClosureArg(instIdx, arg.Place.Local); ok {
			if sk, ok := tr.skel[calleeIdx]; ok {
				tr.net.AddOutputArc(sk.fnStart, t, 1)
				tr.net.AddInputArc(sk.fnEnd, tJoin, 1)
			}
		}
	}
	tr.connectCallTarget(instIdx, tJoin, call)
}

// translateRPC models a call to a callee with a known body: t_call
// outputs to
// both the callee's fn_start and a fresh wait place; the wait place and
// the callee's fn_end feed a return transition that connects to target.
func (tr *translator) translateRPC(instIdx, bi int, t int, call ir.CallInfo, calleeIdx int, span ir.Span) {
	calleeSk := tr.skel[calleeIdx]
	wait := tr.freshPlace(instIdx, span)
	tr.net.AddOutputArc(calleeSk.fnStart, t, 1)
	tr.net.AddOutputArc(wait, t, 1)

	tRet := tr.net.AddTransition(fmt.Sprintf("i%d::bb%d::Return(i%d)", instIdx, bi, calleeIdx), petri.TransitionLabel{Kind: petri.LFunction, TID: instIdx, Resource: -1, Span: span})
	tr.net.AddInputArc(wait, tRet, 1)
	tr.net.AddInputArc(calleeSk.fnEnd, tRet, 1)
	tr.connectCallTarget(instIdx, tRet, call)
}

// classifyAtomicCall reports whether callee names an atomic load or
// store, by the built-in "::load$"/"::store$" suffix match plus any
// user-supplied pattern.
func (tr *translator) classifyAtomicCall(callee ir.DefID) (isLoad, isStore bool) {
	path := tr.prog.DefPathStr(callee)
	isLoad = builtinAtomicLoad.MatchString(path) || (tr.cfg.AtomicLoad != nil && tr.cfg.AtomicLoad.MatchString(path))
	isStore = builtinAtomicStore.MatchString(path) || (tr.cfg.AtomicStore != nil && tr.cfg.AtomicStore.MatchString(path))
	return isLoad, isStore
}

// wireSegment wires the optional atomicity-violation segment model:
// Relaxed self-loops on the current segment; Acquire/
// Release/AcqRel/SeqCst advance to a fresh segment; SeqCst additionally
// self-loops on the global SeqCst place.
func (tr *translator) wireSegment(instIdx int, t int, ord ir.AtomicOrdering) {
	segs := tr.seg[instIdx]
	if len(segs) == 0 {
		first := tr.net.AddPlace(fmt.Sprintf("i%d::seg0", instIdx), petri.Resources, segUnbounded, 1, "")
		segs = []int{first}
		tr.seg[instIdx] = segs
	}
	cur := segs[len(segs)-1]
	if ord == ir.OrdRelaxed {
		tr.net.AddInputArc(cur, t, 1)
		tr.net.AddOutputArc(cur, t, 1)
		return
	}
	next := tr.net.AddPlace(fmt.Sprintf("i%d::seg%d", instIdx, len(segs)), petri.Resources, segUnbounded, 0, "")
	tr.net.AddInputArc(cur, t, 1)
	tr.net.AddOutputArc(next, t, 1)
	tr.seg[instIdx] = append(segs, next)
	if ord == ir.OrdSeqCst && tr.seqCst >= 0 {
		tr.net.AddInputArc(tr.seqCst, t, 1)
		tr.net.AddOutputArc(tr.seqCst, t, 1)
	}
}
