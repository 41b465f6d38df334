// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alias

import (
	"golang.org/x/tools/container/intsets"

	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
)

// Analysis is the whole-program pointer analysis: a single global
// constraint graph built incrementally as instances are
// visited, solved with one worklist fixpoint, and queried through Alias,
// PointsTo, and AliasAtomic. It is built once and never mutated by its
// query methods.
type Analysis struct {
	prog *ir.Program
	cg   *cgraph.Graph
	reg  *registry

	copyEdges    map[int][]int
	loadEdges    map[int][]int
	storeTargets map[int][]int
	pts          []*intsets.Sparse

	visited map[int]bool
	solved  bool

	resolving map[ir.AliasID]bool // recursion guard for closure-upvar resolution
}

// New builds a pointer analysis over every instance prog exposes with an
// available MIR body. cg supplies the call-graph edges the closure-upvar
// walk consults to find a closure's definition-site callers.
func New(prog *ir.Program, cg *cgraph.Graph) *Analysis {
	a := &Analysis{
		prog:         prog,
		cg:           cg,
		reg:          newRegistry(),
		copyEdges:    make(map[int][]int),
		loadEdges:    make(map[int][]int),
		storeTargets: make(map[int][]int),
		visited:      make(map[int]bool),
		resolving:    make(map[ir.AliasID]bool),
	}
	for _, inst := range prog.AllInstances() {
		a.visitInstance(inst.Index)
	}
	return a
}

func (a *Analysis) placeOf(id ir.AliasID) ir.Place { return ir.Place{Local: id.Local} }

func (a *Analysis) ptsOf(id ir.AliasID) *intsets.Sparse {
	a.solve()
	node := a.reg.placeNode(id.Instance, a.placeOf(id))
	if node >= len(a.pts) {
		return nil
	}
	return a.pts[node]
}

// Alias answers "may the two mir-places denoted by these alias-ids refer
// to overlapping storage?"
func (a *Analysis) Alias(a1, a2 ir.AliasID) lattice.Approximate {
	if !a.prog.IsMIRAvailable(a.instanceDef(a1.Instance)) || !a.prog.IsMIRAvailable(a.instanceDef(a2.Instance)) {
		return lattice.Unknown
	}
	pts1, pts2 := a.ptsOf(a1), a.ptsOf(a2)
	if pts1 != nil && pts2 != nil {
		if a.shareAnyNode(pts1, pts2) {
			return lattice.Probably
		}
		if a.shareParamRootedPlace(a1, pts1, a2, pts2) {
			return lattice.Possibly
		}
	}
	// A closure body often never mentions its captured place directly, so
	// its own points-to set can be empty; the upvar walk back to the
	// definition site is still decisive.
	if r := a.resolveClosureAlias(a1, a2); r.AtLeast(lattice.Possibly) {
		return r
	}
	if pts1 == nil || pts2 == nil {
		return lattice.Unknown
	}
	return lattice.Unlikely
}

func (a *Analysis) instanceDef(idx int) ir.DefID {
	inst := a.prog.InstanceByIndex(idx)
	if inst == nil {
		return ""
	}
	return inst.Def
}

// shareAnyNode reports whether pts1 and pts2 intersect at all. Within a
// single instance this is the precise Andersen alias test (two places
// sharing an Alloc node definitely overlap). Across two different
// instances, Alloc/Place node ids are instance-scoped and can never
// collide, so a cross-instance hit only ever happens through a shared
// ConstantDeref node, since constants denote the same abstract location
// regardless of which function references them.
func (a *Analysis) shareAnyNode(pts1, pts2 *intsets.Sparse) bool {
	return pts1.Intersects(pts2)
}

// shareParamRootedPlace reports whether both points-to sets contain an
// Alloc node rooted at a function parameter, of identical type and
// projection shape -- weaker evidence than a shared node, hence Possibly.
func (a *Analysis) shareParamRootedPlace(a1 ir.AliasID, pts1 *intsets.Sparse, a2 ir.AliasID, pts2 *intsets.Sparse) bool {
	body1, ok1 := a.bodyFor(a1.Instance)
	body2, ok2 := a.bodyFor(a2.Instance)
	if !ok1 || !ok2 {
		return false
	}
	set2 := pts2.AppendTo(nil)
	for _, n1 := range pts1.AppendTo(nil) {
		if n1 >= len(a.reg.infos) {
			continue
		}
		i1 := a.reg.infos[n1]
		if i1.Kind != NodeAlloc || !isParamRooted(i1.Place, body1) {
			continue
		}
		for _, n2 := range set2 {
			if n2 >= len(a.reg.infos) {
				continue
			}
			i2 := a.reg.infos[n2]
			if i2.Kind != NodeAlloc || !isParamRooted(i2.Place, body2) {
				continue
			}
			if sameShape(i1.Place, i2.Place) {
				return true
			}
		}
	}
	return false
}

func (a *Analysis) bodyFor(instIdx int) (*ir.Body, bool) {
	inst := a.prog.InstanceByIndex(instIdx)
	if inst == nil || !a.prog.IsMIRAvailable(inst.Def) {
		return nil, false
	}
	return a.prog.InstanceMIR(inst), true
}

func isParamRooted(p ir.Place, body *ir.Body) bool {
	return p.Local >= 1 && p.Local <= body.ArgsCount
}

func sameShape(p1, p2 ir.Place) bool {
	if len(p1.Projection) != len(p2.Projection) {
		return false
	}
	for i := range p1.Projection {
		if p1.Projection[i].Kind != p2.Projection[i].Kind {
			return false
		}
		if p1.Projection[i].Kind == ir.ProjField && p1.Projection[i].Type != p2.Projection[i].Type {
			return false
		}
	}
	return true
}

// resolveClosureAlias handles the context-sensitive closure case: when
// either query side is a closure instance, walk the points-to path from its
// argument to a root, consult the call graph for the closure's
// definition-site callers and their capturing local, reconstruct the
// corresponding upvar place in the caller, and recurse. Recursion in
// closure definitions is guarded by a.resolving and returns Unknown
// rather than looping.
func (a *Analysis) resolveClosureAlias(a1, a2 ir.AliasID) lattice.Approximate {
	if r, ok := a.tryResolveClosureSide(a1, a2); ok {
		return r
	}
	if r, ok := a.tryResolveClosureSide(a2, a1); ok {
		return r
	}
	return lattice.Unknown
}

func (a *Analysis) tryResolveClosureSide(closureSide, other ir.AliasID) (lattice.Approximate, bool) {
	body, ok := a.bodyFor(closureSide.Instance)
	if !ok || body.ClosureOf == "" {
		return lattice.Unknown, false
	}
	if a.resolving[closureSide] {
		return lattice.Unknown, false
	}
	a.resolving[closureSide] = true
	defer delete(a.resolving, closureSide)

	best := lattice.Unknown
	// Reconstruct the upvar alias via every recorded definition site
	// whose capturing local is known.
	for caller, locals := range a.definitionSiteCallers(closureSide.Instance) {
		for _, local := range locals {
			upvar := ir.AliasID{Instance: caller, Local: local}
			r := a.Alias(upvar, other)
			best = lattice.Join(best, r)
		}
	}
	return best, best != lattice.Unknown
}

// definitionSiteCallers returns, for a closure instance, every (caller
// instance index, capturing local) pair recorded by the call graph's
// ClosureDef-tagged edges.
func (a *Analysis) definitionSiteCallers(closureInst int) map[int][]int {
	out := make(map[int][]int)
	for _, caller := range a.cg.Callers(closureInst) {
		for _, site := range a.cg.Callsites(caller, closureInst) {
			if site.SiteTag == cgraph.TagClosureDef {
				out[caller] = append(out[caller], site.ClosureVal)
			}
		}
	}
	return out
}

// PointsTo answers "may the first dereference to the second?" by
// checking Alias between every node in pts(pointer) and the pointee.
func (a *Analysis) PointsTo(pointer, pointee ir.AliasID) lattice.Approximate {
	pts := a.ptsOf(pointer)
	if pts == nil {
		return lattice.Unknown
	}
	best := lattice.Unlikely
	for _, n := range pts.AppendTo(nil) {
		if n >= len(a.reg.infos) {
			continue
		}
		info := a.reg.infos[n]
		if info.Kind != NodeAlloc && info.Kind != NodePlace {
			continue
		}
		cand := ir.AliasID{Instance: info.Inst, Local: info.Place.Local}
		best = lattice.Join(best, a.Alias(cand, pointee))
	}
	return best
}

// AliasAtomic is Alias with transitive closure over the address-edge
// relation, catching chains like x -> y -> z where two atomics are
// reached through different pointers sharing a tail.
func (a *Analysis) AliasAtomic(a1, a2 ir.AliasID) lattice.Approximate {
	direct := a.Alias(a1, a2)
	if direct.AtLeast(lattice.Possibly) {
		return direct
	}
	pts1 := a.transitiveAllocClosure(a1)
	pts2 := a.transitiveAllocClosure(a2)
	if pts1 == nil || pts2 == nil {
		return direct
	}
	if pts1.Intersects(pts2) {
		return lattice.Probably
	}
	return direct
}

// transitiveAllocClosure follows Copy edges transitively starting from a's
// place node, collecting every Alloc node reachable -- the "chain" closure
// AliasAtomic needs.
func (a *Analysis) transitiveAllocClosure(id ir.AliasID) *intsets.Sparse {
	a.solve()
	start := a.reg.placeNode(id.Instance, a.placeOf(id))
	if start >= len(a.pts) {
		return nil
	}
	seen := &intsets.Sparse{}
	var stack []int
	stack = append(stack, start)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Has(n) {
			continue
		}
		seen.Insert(n)
		if n < len(a.pts) && a.pts[n] != nil {
			stack = append(stack, a.pts[n].AppendTo(nil)...)
		}
		stack = append(stack, a.copyEdges[n]...)
	}
	out := &intsets.Sparse{}
	for _, n := range seen.AppendTo(nil) {
		if n < len(a.reg.infos) && a.reg.infos[n].Kind == NodeAlloc {
			out.Insert(n)
		}
	}
	return out
}

// Boundedness classifies whether a place's points-to set is finite /
// closed at the current fixpoint, consulted by internal/syncinv when a
// channel or atomic resource's capacity cannot be pinned down directly
// from the MIR.
type Boundedness int

const (
	// Bounded means no pointer-chasing cycle leads back to the place:
	// walking Load edges from its place node never returns to that node,
	// and no node on the walk (the place itself included) has the place's
	// node in its points-to set.
	Bounded Boundedness = iota
	// Unbounded means the set is reachable through at least one Load
	// edge cycle (e.g. a recursive data structure), so its true size
	// cannot be bounded statically.
	Unbounded
)

func (b Boundedness) String() string {
	if b == Unbounded {
		return "Unbounded"
	}
	return "Bounded"
}

// BoundednessOf reports id's Boundedness: Unbounded if its place node can
// reach itself via a Load edge (a pointer-chasing cycle), Bounded
// otherwise.
func (a *Analysis) BoundednessOf(id ir.AliasID) Boundedness {
	a.solve()
	start := a.reg.placeNode(id.Instance, a.placeOf(id))
	visited := make(map[int]bool)
	var visit func(n int) bool
	visit = func(n int) bool {
		if visited[n] {
			return n == start
		}
		visited[n] = true
		if n < len(a.pts) && a.pts[n] != nil && a.pts[n].Has(start) {
			return true
		}
		for _, t := range a.loadEdges[n] {
			if visit(t) {
				return true
			}
		}
		return false
	}
	if visit(start) {
		return Unbounded
	}
	return Bounded
}
