// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockdataflow

import (
	"sort"

	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/syncinv"
)

// event is one gen or kill of a guard at a program point within one
// basic block.
type event struct {
	stmt  int // -1 for a terminator-level event
	isGen bool
	guard syncinv.LockGuard
}

type aliasSet map[ir.AliasID]bool

type runner struct {
	prog    *ir.Program
	cg      *cgraph.Graph
	aliases *alias.Analysis
	reg     *syncinv.Registry
	cfg     cgraph.ClassifyConfig

	guardsByInst map[int][]syncinv.LockGuard
	paramGuard   map[int]map[int]syncinv.LockGuard // instance -> parameter local -> guard
	entryExtra   map[int]aliasSet                  // instance -> guards propagated in from a caller

	liveIn     map[int]map[int]aliasSet // instance -> bb -> live-in set
	liveOut    map[int]map[int]aliasSet
	beforeTerm map[int]map[int]aliasSet // live set immediately before the bb's terminator event

	holds map[HoldsPair]bool
}

// Run computes the lock-lifetime dataflow over every instance prog
// exposes with an available MIR body, using cg for interprocedural
// call-site propagation, aliases to match call arguments against callee
// parameters, and reg for the grouped lock-guard sites the dataflow
// walks.
func Run(prog *ir.Program, cg *cgraph.Graph, aliases *alias.Analysis, reg *syncinv.Registry, cfg cgraph.ClassifyConfig) *Result {
	r := &runner{
		prog:         prog,
		cg:           cg,
		aliases:      aliases,
		reg:          reg,
		cfg:          cfg,
		guardsByInst: make(map[int][]syncinv.LockGuard),
		paramGuard:   make(map[int]map[int]syncinv.LockGuard),
		entryExtra:   make(map[int]aliasSet),
		liveIn:       make(map[int]map[int]aliasSet),
		liveOut:      make(map[int]map[int]aliasSet),
		beforeTerm:   make(map[int]map[int]aliasSet),
		holds:        make(map[HoldsPair]bool),
	}

	for _, rp := range reg.Places {
		if rp.Kind != syncinv.ResourceMutex && rp.Kind != syncinv.ResourceRwLock {
			continue
		}
		for _, g := range rp.Guards {
			inst := g.Alias.Instance
			r.guardsByInst[inst] = append(r.guardsByInst[inst], g)
			if body, ok := r.bodyForOK(inst); ok && g.Alias.Local >= 1 && g.Alias.Local <= body.ArgsCount {
				if r.paramGuard[inst] == nil {
					r.paramGuard[inst] = make(map[int]syncinv.LockGuard)
				}
				r.paramGuard[inst][g.Alias.Local] = g
			}
		}
	}

	queue := make([]int, 0, len(r.guardsByInst))
	queued := make(map[int]bool, len(r.guardsByInst))
	for idx := range r.guardsByInst {
		queue = append(queue, idx)
		queued[idx] = true
	}
	sort.Ints(queue)

	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		queued[idx] = false
		if !r.analyzeInstance(idx) {
			continue
		}
		for _, callee := range r.propagateToCallees(idx) {
			if !queued[callee] {
				queued[callee] = true
				queue = append(queue, callee)
			}
		}
	}

	waits, notifies := r.collectWaitNotify()
	return &Result{holds: r.holds, Waits: waits, Notifies: notifies}
}

func (r *runner) bodyForOK(instIdx int) (*ir.Body, bool) {
	inst := r.prog.InstanceByIndex(instIdx)
	if inst == nil || !r.prog.IsMIRAvailable(inst.Def) {
		return nil, false
	}
	return r.prog.InstanceMIR(inst), true
}

// eventsFor partitions bi's gen/kill events into statement-level (applied
// in stmt order) and terminator-level (applied once, after the snapshot
// collectWaitNotify needs).
func (r *runner) eventsFor(idx, bi int) (stmtEvents, termEvents []event) {
	for _, g := range r.guardsByInst[idx] {
		for _, loc := range g.GenLocations {
			if loc.BB != bi {
				continue
			}
			e := event{stmt: loc.Stmt, isGen: true, guard: g}
			if loc.Stmt < 0 {
				termEvents = append(termEvents, e)
			} else {
				stmtEvents = append(stmtEvents, e)
			}
		}
		for _, loc := range g.KillLocations {
			if loc.BB != bi {
				continue
			}
			e := event{stmt: loc.Stmt, isGen: false, guard: g}
			if loc.Stmt < 0 {
				termEvents = append(termEvents, e)
			} else {
				stmtEvents = append(stmtEvents, e)
			}
		}
	}
	sort.Slice(stmtEvents, func(i, j int) bool { return stmtEvents[i].stmt < stmtEvents[j].stmt })
	return stmtEvents, termEvents
}

// applyEvent applies one gen/kill: a gen records a HoldsBefore edge from
// every currently-live guard before joining cur; a kill simply removes
// its guard.
func (r *runner) applyEvent(cur aliasSet, ev event) {
	if ev.isGen {
		for s := range cur {
			r.holds[HoldsPair{A: s, B: ev.guard.Alias}] = true
		}
		cur[ev.guard.Alias] = true
		return
	}
	delete(cur, ev.guard.Alias)
}

// analyzeInstance runs the intraprocedural block-level worklist for idx,
// seeded with its parameter-rooted guards (the forwarded-by-move case)
// and any entryExtra contributed by a caller. Returns whether any
// liveOut/beforeTerm set changed.
func (r *runner) analyzeInstance(idx int) bool {
	body, ok := r.bodyForOK(idx)
	if !ok || len(body.Blocks) == 0 {
		return false
	}
	if r.liveIn[idx] == nil {
		r.liveIn[idx] = make(map[int]aliasSet, len(body.Blocks))
		r.liveOut[idx] = make(map[int]aliasSet, len(body.Blocks))
		r.beforeTerm[idx] = make(map[int]aliasSet, len(body.Blocks))
		for bi := range body.Blocks {
			r.liveIn[idx][bi] = aliasSet{}
			r.liveOut[idx][bi] = aliasSet{}
			r.beforeTerm[idx][bi] = aliasSet{}
		}
	}

	changedAny := false

	seed := aliasSet{}
	for _, g := range r.guardsByInst[idx] {
		if g.GenOnlyByMove && len(g.GenLocations) == 0 {
			seed[g.Alias] = true
		}
	}
	for a := range r.entryExtra[idx] {
		seed[a] = true
	}
	if unionInto(r.liveIn[idx][0], seed) {
		changedAny = true
	}

	queue := make([]int, len(body.Blocks))
	queued := make([]bool, len(body.Blocks))
	for bi := range body.Blocks {
		queue[bi] = bi
		queued[bi] = true
	}
	head := 0
	for head < len(queue) {
		bi := queue[head]
		head++
		queued[bi] = false

		cur := cloneSet(r.liveIn[idx][bi])
		stmtEvents, termEvents := r.eventsFor(idx, bi)
		for _, ev := range stmtEvents {
			r.applyEvent(cur, ev)
		}
		before := cloneSet(cur)
		for _, ev := range termEvents {
			r.applyEvent(cur, ev)
		}

		if !setEqual(r.beforeTerm[idx][bi], before) {
			r.beforeTerm[idx][bi] = before
			changedAny = true
		}
		if setEqual(r.liveOut[idx][bi], cur) {
			continue
		}
		r.liveOut[idx][bi] = cur
		changedAny = true

		for _, succ := range successors(body, body.Blocks[bi].Term) {
			if succ < 0 || succ >= len(body.Blocks) {
				continue
			}
			if unionInto(r.liveIn[idx][succ], cur) && !queued[succ] {
				queued[succ] = true
				queue = append(queue, succ)
			}
		}
	}
	return changedAny
}

// propagateToCallees pushes live guards into callee entry contexts: for
// every direct call site from idx, alias-match the arguments live at
// that call
// against the callee's parameter-rooted guards, and return the callee
// indices whose entryExtra grew.
func (r *runner) propagateToCallees(idx int) []int {
	body, ok := r.bodyForOK(idx)
	if !ok {
		return nil
	}
	var grown []int
	for _, calleeIdx := range r.cg.Callees(idx) {
		if !r.cg.HasBody(calleeIdx) {
			continue
		}
		pg := r.paramGuard[calleeIdx]
		if len(pg) == 0 {
			continue
		}
		changed := false
		for _, site := range r.cg.Callsites(idx, calleeIdx) {
			if site.SiteTag != cgraph.TagDirect {
				continue
			}
			if site.CallerBB < 0 || site.CallerBB >= len(body.Blocks) {
				continue
			}
			term := body.Blocks[site.CallerBB].Term
			if term.Kind != ir.TermCall {
				continue
			}
			live := r.beforeTerm[idx][site.CallerBB]
			if len(live) == 0 {
				continue
			}
			for argIdx, arg := range term.Call.Args {
				if arg.Kind == ir.OperandConstant {
					continue
				}
				g, ok := pg[argIdx+1]
				if !ok {
					continue
				}
				argID := ir.AliasID{Instance: idx, Local: arg.Place.Local}
				for s := range live {
					if !r.aliases.Alias(s, argID).AtLeast(lattice.Possibly) {
						continue
					}
					if r.entryExtra[calleeIdx] == nil {
						r.entryExtra[calleeIdx] = aliasSet{}
					}
					if !r.entryExtra[calleeIdx][g.Alias] {
						r.entryExtra[calleeIdx][g.Alias] = true
						changed = true
					}
					break
				}
			}
		}
		if changed {
			grown = append(grown, calleeIdx)
		}
	}
	return grown
}

// successors returns the basic-block indices term can transfer control
// to, generalized from internal/translate's per-terminator dispatch
// (translateTerm/connectCallTarget) to a bare CFG-edge view.
func successors(body *ir.Body, term ir.Terminator) []int {
	switch term.Kind {
	case ir.TermGoto, ir.TermAssert, ir.TermFalseEdge, ir.TermFalseUnwind, ir.TermYield:
		return []int{term.Target}
	case ir.TermSwitchInt:
		return term.SwitchTargets
	case ir.TermDrop, ir.TermInlineAsm:
		if term.HasTarget {
			return []int{term.Target}
		}
	case ir.TermCall:
		var out []int
		if term.Call.HasTarget && term.Call.Target >= 0 && term.Call.Target < len(body.Blocks) && !body.Blocks[term.Call.Target].IsCleanup {
			out = append(out, term.Call.Target)
		}
		if term.Call.Unwind == ir.UnwindCleanup && term.Call.UnwindBB >= 0 && term.Call.UnwindBB < len(body.Blocks) {
			out = append(out, term.Call.UnwindBB)
		}
		return out
	}
	return nil
}

func cloneSet(s aliasSet) aliasSet {
	c := make(aliasSet, len(s))
	for a := range s {
		c[a] = true
	}
	return c
}

func setEqual(a, b aliasSet) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// unionInto merges src into dst in place, returning whether dst grew.
func unionInto(dst, src aliasSet) bool {
	grew := false
	for a := range src {
		if !dst[a] {
			dst[a] = true
			grew = true
		}
	}
	return grew
}
