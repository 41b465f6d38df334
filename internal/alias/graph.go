// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alias

import "github.com/aclements/go-concur/internal/ir"

// visitInstance adds the constraint edges and address-edge seeds for one
// function instance's body to the shared global graph. It is idempotent:
// calling it twice for the same instance is a no-op.
func (a *Analysis) visitInstance(instIdx int) {
	if a.visited[instIdx] {
		return
	}
	a.visited[instIdx] = true
	a.solved = false

	inst := a.prog.InstanceByIndex(instIdx)
	if inst == nil || !a.prog.IsMIRAvailable(inst.Def) {
		return
	}
	body := a.prog.InstanceMIR(inst)

	// Every place carries an implicit self-address arc to its own Alloc
	// node, which is how pts(Place(p)) seeds to {Alloc(p)}.
	var places []ir.Place
	for _, bb := range body.Blocks {
		for _, s := range bb.Statements {
			if s.Kind != ir.StmtAssign {
				continue
			}
			if isDerefPlace(s.LHS) {
				// *x = y / *x = const c: a store through the
				// pointer x, not a direct write to a Place(x).
				ptr := stripTrailingDeref(s.LHS)
				a.seedSelfPlace(instIdx, ptr, &places)
				a.visitStore(instIdx, ptr, s.RHS, &places)
				continue
			}
			lhs := a.seedSelfPlace(instIdx, s.LHS, &places)
			a.visitRvalue(instIdx, lhs, s.RHS, &places)
		}
		if bb.Term.Kind == ir.TermCall {
			a.visitCallConstraints(instIdx, bb.Term.Call, &places)
		}
	}

	a.addFieldPrefixEdges(instIdx, places)
}

// visitRvalue adds the constraint edge(s) for one assignment's
// right-hand side.
func (a *Analysis) visitRvalue(instIdx, lhs int, rv ir.Rvalue, places *[]ir.Place) {
	switch rv.Kind {
	case ir.RvRef, ir.RvAddrOfField:
		// x = &y (or &raw y, or &((*y).f...) through a closure aggregate):
		// an Address edge from y to x.
		a.seedSelfPlace(instIdx, rv.Place, places)
		a.seedPts(lhs, a.reg.allocNode(instIdx, rv.Place))
	case ir.RvDeref:
		// x = *y: a Load edge from y to x.
		src := a.seedSelfPlace(instIdx, rv.Place, places)
		a.addLoad(src, lhs)
	case ir.RvUse:
		a.visitOperand(instIdx, lhs, rv.Operand, places)
	case ir.RvBinaryOp, ir.RvAggregate:
		// For a closure aggregate, each operand is a captured upvar; the
		// Copy edges added here are what the closure-upvar walk
		// (resolveClosureAlias) later resolves through the caller.
		for _, op := range rv.Operands {
			a.visitOperand(instIdx, lhs, op, places)
		}
	case ir.RvDiscriminant:
		src := a.seedSelfPlace(instIdx, rv.Place, places)
		a.addCopy(src, lhs)
	}
}

// isDerefPlace reports whether p's last projection element is a Deref,
// i.e. p denotes `*x` for some pointer x -- an assignment to such a place
// is a store through the pointer, handled by visitStore rather than as an
// ordinary direct write.
func isDerefPlace(p ir.Place) bool {
	n := len(p.Projection)
	return n > 0 && p.Projection[n-1].Kind == ir.ProjDeref
}

// stripTrailingDeref returns the pointer place x given the store-target
// place `*x`.
func stripTrailingDeref(p ir.Place) ir.Place {
	return ir.Place{Local: p.Local, Projection: p.Projection[:len(p.Projection)-1]}
}

// visitStore adds the constraint edge for `*ptr = rhs`: the stored
// value's node becomes a Store-edge source into ptr, so that at fixpoint
// every node ptr may point to receives the stored value's points-to set.
func (a *Analysis) visitStore(instIdx int, ptr ir.Place, rv ir.Rvalue, places *[]ir.Place) {
	ptrNode := a.reg.placeNode(instIdx, ptr)
	switch {
	case rv.Kind == ir.RvUse && rv.Operand.Kind == ir.OperandConstant:
		cn := a.reg.constNode(rv.Operand.Const)
		cdn := a.reg.constDerefNode(rv.Operand.Const)
		a.seedPts(cn, cdn)
		a.addStore(cn, ptrNode)
	case rv.Kind == ir.RvUse:
		src := a.seedSelfPlace(instIdx, rv.Operand.Place, places)
		a.addStore(src, ptrNode)
	default:
		// Unanticipated RHS shape for a deref-store: fall back to
		// treating it as an ordinary assignment into Place(ptr) so
		// the edge set stays conservative rather than silently empty.
		lhs := a.seedSelfPlace(instIdx, ptr, places)
		a.visitRvalue(instIdx, lhs, rv, places)
	}
}

func (a *Analysis) visitOperand(instIdx, lhs int, op ir.Operand, places *[]ir.Place) {
	switch op.Kind {
	case ir.OperandConstant:
		cn := a.reg.constNode(op.Const)
		cdn := a.reg.constDerefNode(op.Const)
		a.seedPts(cn, cdn)
		a.addCopy(cn, lhs)
	default: // Move or Copy: x = y
		src := a.seedSelfPlace(instIdx, op.Place, places)
		a.addCopy(src, lhs)
	}
}

// seedSelfPlace interns p's place node, seeds its self-address Alloc, and
// records p for the field-prefix pass at the end of the body walk.
func (a *Analysis) seedSelfPlace(instIdx int, p ir.Place, places *[]ir.Place) int {
	*places = append(*places, p)
	pn := a.reg.placeNode(instIdx, p)
	an := a.reg.allocNode(instIdx, p)
	a.seedPts(pn, an)
	return pn
}

// visitCallConstraints handles the call-terminator rows of the MIR-shape
// table: index/index_mut, single-reference-argument casts, and the
// catch-all "for each argument, Copy to dest".
func (a *Analysis) visitCallConstraints(instIdx int, call ir.CallInfo, places *[]ir.Place) {
	if !call.HasDest || len(call.Args) == 0 {
		return
	}
	dest := a.seedSelfPlace(instIdx, call.Destination, places)

	path := a.prog.DefPathStr(call.Callee)
	switch path {
	case "core::ops::Index::index", "core::ops::IndexMut::index_mut",
		"std::ops::Index::index", "std::ops::IndexMut::index_mut":
		a.visitOperand(instIdx, dest, call.Args[0], places)
		return
	case "std::sync::Arc::clone", "alloc::sync::Arc::clone", "core::ptr::read", "std::ptr::read":
		// x = Arc::clone(y) / ptr::read(y): a Load edge from y to x
		// (x aliases y's pointee) plus an AliasCopy edge, which we
		// fold directly into an ordinary Copy edge (x also aliases y
		// itself).
		arg := call.Args[0]
		if arg.Kind != ir.OperandConstant {
			src := a.seedSelfPlace(instIdx, arg.Place, places)
			a.addLoad(src, dest)
			a.addCopy(src, dest)
		}
		return
	}
	if len(call.Args) == 1 {
		a.visitOperand(instIdx, dest, call.Args[0], places)
		return
	}
	for _, arg := range call.Args {
		a.visitOperand(instIdx, dest, arg, places)
	}
}

// addFieldPrefixEdges adds the field-prefix partial-copy edges: for
// every pair of places sharing a local where one's
// projection is a prefix of the other's, add a Copy edge from the prefix to
// the longer place, and treat sibling Index/ConstantIndex/Subslice
// projections on the same local as mutually aliasing.
func (a *Analysis) addFieldPrefixEdges(instIdx int, places []ir.Place) {
	seen := make(map[string]bool)
	var uniq []ir.Place
	for _, p := range places {
		k := p.String()
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, p)
		}
	}
	for i, p1 := range uniq {
		for j, p2 := range uniq {
			if i == j || p1.Local != p2.Local {
				continue
			}
			if p1.IsPrefixOf(p2) {
				a.addCopy(a.reg.placeNode(instIdx, p1), a.reg.placeNode(instIdx, p2))
			}
			if indexLike(p1) && indexLike(p2) && len(p1.Projection) == len(p2.Projection) {
				a.addCopy(a.reg.placeNode(instIdx, p1), a.reg.placeNode(instIdx, p2))
				a.addCopy(a.reg.placeNode(instIdx, p2), a.reg.placeNode(instIdx, p1))
			}
		}
	}
}

func indexLike(p ir.Place) bool {
	if len(p.Projection) == 0 {
		return false
	}
	switch p.Projection[len(p.Projection)-1].Kind {
	case ir.ProjIndex, ir.ProjConstantIndex, ir.ProjSubslice:
		return true
	default:
		return false
	}
}
