// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package translate builds the Petri net from a program's MIR: one pass
// per in-scope function body, producing the
// fn_start/fn_end/basic-block skeleton, splicing unsafe-read/write
// transitions into statements, and specializing every call terminator
// against the lock/condvar/channel/thread-control/atomic tables.
package translate

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/petri"
	"github.com/aclements/go-concur/internal/syncinv"
)

// Config bundles the translator's tunable knobs: the thread-control
// classification bundle the call graph also uses, atomic load/store
// recognizers, and
// the two optional passes (segment model, linear-chain reduction).
type Config struct {
	Classify cgraph.ClassifyConfig

	// AtomicLoad / AtomicStore extend the built-in "::load$"/"::store$"
	// suffix match with a user pattern, tried in addition to (not instead
	// of) the built-in.
	AtomicLoad, AtomicStore *regexp.Regexp

	// Segment enables the atomicity-violation segment-place model.
	Segment bool

	// Reduce enables the optional linear-chain collapse pass.
	Reduce bool

	// EntryReachable restricts translation to functions reachable from
	// the program's entry point. If the program has no entry (a library
	// crate), this has no effect and every available body is translated
	// either way.
	EntryReachable bool

	// ConcurrentRoots additionally brings in every function that itself
	// touches a synchronization primitive (tracked in reg), plus their
	// reachable callees, even when EntryReachable would otherwise leave
	// them out of scope.
	ConcurrentRoots bool

	// Filter, when non-nil, drops functions whose fully qualified path it
	// rejects from the translation scope (the crate white/black filter).
	// The entry function is always kept.
	Filter func(path string) bool
}

var (
	builtinAtomicLoad  = regexp.MustCompile(`::load$`)
	builtinAtomicStore = regexp.MustCompile(`::store$`)
)

// segUnbounded is the capacity given to the segment-model's per-thread
// and SeqCst_Global places: unlike ordinary resource places, there is no
// natural upper bound to the count of segments a long-running instance
// creates.
const segUnbounded = 1 << 30

// instSkel is the per-instance skeleton built in the first pass: the
// fn_start/fn_end places and one head place per basic block.
type instSkel struct {
	fnStart, fnEnd int
	bbHead         []int
	returnTrans    int // -1 until the first Return/unwind-exit is translated
}

type translator struct {
	net     *petri.Net
	prog    *ir.Program
	cg      *cgraph.Graph
	aliases *alias.Analysis
	reg     *syncinv.Registry
	cfg     Config

	resPlace []int // reg.Places index -> net place index
	skel     map[int]*instSkel
	seg      map[int][]int // instance index -> segment place chain
	seqCst   int           // SeqCst_Global place index, -1 if Segment is off
	seq      int           // fresh-place name counter
}

// Translate builds the whole-program Petri net over every instance
// reachable from prog's entry function (or, for a library with no entry,
// every instance with an available MIR body).
func Translate(prog *ir.Program, cg *cgraph.Graph, aliases *alias.Analysis, reg *syncinv.Registry, cfg Config) (*petri.Net, error) {
	net := petri.New()

	entryIdx := -1
	if inst, ok := prog.EntryInstance(); ok {
		entryIdx = inst.Index
	}

	var inScope []int
	if entryIdx >= 0 && cfg.EntryReachable {
		roots := []int{entryIdx}
		if cfg.ConcurrentRoots {
			roots = append(roots, concurrentRoots(prog, reg)...)
		}
		reached := cg.ReachableFromRoots(roots)
		for idx := range reached {
			if cg.HasBody(idx) {
				inScope = append(inScope, idx)
			}
		}
	} else {
		for _, inst := range prog.AllInstances() {
			if prog.IsMIRAvailable(inst.Def) {
				inScope = append(inScope, inst.Index)
			}
		}
	}
	if cfg.Filter != nil {
		kept := inScope[:0]
		for _, idx := range inScope {
			inst := prog.InstanceByIndex(idx)
			if idx == entryIdx || cfg.Filter(prog.DefPathStr(inst.Def)) {
				kept = append(kept, idx)
			}
		}
		inScope = kept
	}
	sort.Ints(inScope)
	if len(inScope) == 0 {
		return nil, fmt.Errorf("translate: no in-scope function body to translate")
	}

	tr := &translator{
		net:     net,
		prog:    prog,
		cg:      cg,
		aliases: aliases,
		reg:     reg,
		cfg:     cfg,
		seg:     make(map[int][]int),
		seqCst:  -1,
	}
	tr.resPlace = tr.buildResourcePlaces()
	tr.skel = tr.buildSkeleton(inScope, entryIdx)

	if cfg.Segment {
		tr.seqCst = net.AddPlace("SeqCst_Global", petri.Resources, segUnbounded, 1, "")
	}

	for _, idx := range inScope {
		tr.translateInstance(idx)
	}

	if cfg.Reduce {
		return Reduce(net), nil
	}
	return net, nil
}

// buildResourcePlaces creates one net-wide Resources place per
// synchronization-inventory equivalence class, with the kind's own
// capacity and start tokens, widened to an effectively unbounded
// capacity when internal/alias.Boundedness flagged the place Unbounded.
func (tr *translator) buildResourcePlaces() []int {
	out := make([]int, len(tr.reg.Places))
	for i, rp := range tr.reg.Places {
		cap := rp.Kind.Capacity()
		if rp.Unbounded {
			cap = segUnbounded
		}
		out[i] = tr.net.AddPlace(fmt.Sprintf("res(%s)#%d", rp.Kind, i), petri.Resources, cap, rp.Kind.StartTokens(), "")
	}
	return out
}

func (tr *translator) buildSkeleton(inScope []int, entryIdx int) map[int]*instSkel {
	skel := make(map[int]*instSkel, len(inScope))
	for _, idx := range inScope {
		inst := tr.prog.InstanceByIndex(idx)
		body := tr.prog.InstanceMIR(inst)

		startTokens := 0
		if idx == entryIdx {
			startTokens = 1
		}
		fs := tr.net.AddPlace(fmt.Sprintf("%s::fn_start", inst), petri.FunctionStart, 1, startTokens, body.Span)
		fe := tr.net.AddPlace(fmt.Sprintf("%s::fn_end", inst), petri.FunctionEnd, 1, 0, body.Span)

		heads := make([]int, len(body.Blocks))
		for bi, bb := range body.Blocks {
			heads[bi] = tr.net.AddPlace(fmt.Sprintf("%s::bb%d", inst, bi), petri.BasicBlock, 1, 0, bb.Term.Span)
		}
		skel[idx] = &instSkel{fnStart: fs, fnEnd: fe, bbHead: heads, returnTrans: -1}
	}

	for _, idx := range inScope {
		sk := skel[idx]
		if len(sk.bbHead) == 0 {
			continue
		}
		t := tr.net.AddTransition(fmt.Sprintf("i%d::Start", idx), petri.TransitionLabel{Kind: petri.LStart, TID: idx, Resource: -1})
		tr.net.AddInputArc(sk.fnStart, t, 1)
		tr.net.AddOutputArc(sk.bbHead[0], t, 1)
	}
	return skel
}

func (tr *translator) translateInstance(idx int) {
	body := tr.bodyOf(idx)
	sk := tr.skel[idx]
	for bi, bb := range body.Blocks {
		last := sk.bbHead[bi]
		for si, s := range bb.Statements {
			last = tr.translateStmt(idx, bi, si, s, last)
		}
		tr.translateTerm(idx, bi, bb, last)
	}
}

func (tr *translator) bodyOf(instIdx int) *ir.Body {
	return tr.prog.InstanceMIR(tr.prog.InstanceByIndex(instIdx))
}

func (tr *translator) freshPlace(instIdx int, span ir.Span) int {
	tr.seq++
	return tr.net.AddPlace(fmt.Sprintf("i%d::p%d", instIdx, tr.seq), petri.BasicBlock, 1, 0, span)
}

// returnTransition routes src into the instance's single, lazily-created
// Return(tid) transition: exactly one exists per function, shared by
// every Return block and unwind exit.
func (tr *translator) returnTransition(instIdx, src int) {
	sk := tr.skel[instIdx]
	if sk.returnTrans < 0 {
		sk.returnTrans = tr.net.AddTransition(fmt.Sprintf("i%d::Return", instIdx), petri.TransitionLabel{Kind: petri.LReturn, TID: instIdx, Resource: -1})
		tr.net.AddOutputArc(sk.fnEnd, sk.returnTrans, 1)
	}
	tr.net.AddInputArc(src, sk.returnTrans, 1)
}

// readPlaces returns the set of places read on an Assign statement's
// right-hand side.
func readPlaces(rv ir.Rvalue) []ir.Place {
	var out []ir.Place
	switch rv.Kind {
	case ir.RvUse:
		if rv.Operand.Kind != ir.OperandConstant {
			out = append(out, rv.Operand.Place)
		}
	case ir.RvRef, ir.RvAddrOfField, ir.RvDeref, ir.RvDiscriminant:
		out = append(out, rv.Place)
	case ir.RvBinaryOp, ir.RvAggregate:
		for _, o := range rv.Operands {
			if o.Kind != ir.OperandConstant {
				out = append(out, o.Place)
			}
		}
	}
	return out
}

func (tr *translator) translateStmt(instIdx, bi, si int, s ir.Statement, last int) int {
	if s.Kind != ir.StmtAssign {
		return last
	}
	for _, p := range readPlaces(s.RHS) {
		last = tr.spliceUnsafe(instIdx, bi, p.Local, s.Span, petri.LUnsafeRead, last)
	}
	last = tr.spliceUnsafe(instIdx, bi, s.LHS.Local, s.Span, petri.LUnsafeWrite, last)
	return last
}

// spliceUnsafe splices an UnsafeRead/UnsafeWrite transition between the
// current last-place and a
// fresh place whenever a statement touches a registered unsafe region,
// with the region's resource place wired as a self-loop (acquire and
// release on the same transition).
func (tr *translator) spliceUnsafe(instIdx, bi, local int, span ir.Span, kind petri.LabelKind, last int) int {
	id := ir.AliasID{Instance: instIdx, Local: local}
	regionIdx, ok := tr.findUnsafeRegion(id)
	if !ok {
		return last
	}
	body := tr.bodyOf(instIdx)
	var ty ir.TypeID
	if local >= 0 && local < len(body.Locals) {
		ty = body.Locals[local].Type
	}
	fresh := tr.freshPlace(instIdx, span)
	t := tr.net.AddTransition(fmt.Sprintf("i%d::bb%d::%s", instIdx, bi, kind), petri.TransitionLabel{
		Kind: kind, TID: instIdx, Resource: regionIdx, Span: span, BB: bi, Type: ty,
	})
	tr.net.AddInputArc(last, t, 1)
	tr.net.AddOutputArc(fresh, t, 1)
	rp := tr.resPlace[regionIdx]
	tr.net.AddInputArc(rp, t, 1)
	tr.net.AddOutputArc(rp, t, 1)
	return fresh
}

// findUnsafeRegion looks up id's unsafe region by exact registry key
// first (the common case: id itself was collected as a site), falling
// back to an alias query against every registered region -- a read/write
// of a place derived from (rather than identical to) a registered raw
// pointer still needs to hit the same resource place.
func (tr *translator) findUnsafeRegion(id ir.AliasID) (int, bool) {
	if idx, ok := tr.reg.ResourceForUnsafe(id); ok {
		return idx, true
	}
	for i, rp := range tr.reg.Places {
		if rp.Kind != syncinv.ResourceUnsafeRegion {
			continue
		}
		for _, site := range rp.Unsafe {
			if tr.aliases.AliasAtomic(id, site.Alias).AtLeast(lattice.Possibly) {
				return i, true
			}
		}
	}
	return 0, false
}
