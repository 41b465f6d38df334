// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alias implements the pointer (alias) analysis: a
// field-sensitive, context-sensitive, Andersen-style inclusion points-to
// computation over a single global constraint graph shared
// across every function instance, in the manner golang.org/x/tools/go/pointer
// builds one whole-program constraint system rather than one per function.
package alias

import (
	"fmt"

	"github.com/aclements/go-concur/internal/ir"
)

// NodeKind discriminates the four constraint-node variants.
type NodeKind int

const (
	NodePlace NodeKind = iota
	NodeAlloc
	NodeConstant
	NodeConstantDeref
)

func (k NodeKind) String() string {
	switch k {
	case NodePlace:
		return "Place"
	case NodeAlloc:
		return "Alloc"
	case NodeConstant:
		return "Constant"
	case NodeConstantDeref:
		return "ConstantDeref"
	default:
		return "?"
	}
}

// nodeInfo is the decoded identity of one interned constraint node.
// Constant and ConstantDeref nodes are instance-independent (Inst == -1):
// a compile-time constant denotes the same abstract location regardless of
// which function references it, which is what lets alias_atomic's
// "shared ConstantDeref" rule compare across two different instances.
type nodeInfo struct {
	Kind    NodeKind
	Inst    int // -1 for Constant/ConstantDeref
	Place   ir.Place
	ConstID ir.ConstID
}

type nodeKey struct {
	kind     NodeKind
	inst     int
	placeStr string
	constID  ir.ConstID
}

func (n nodeInfo) key() nodeKey {
	k := nodeKey{kind: n.Kind, inst: n.Inst, constID: n.ConstID}
	if n.Kind == NodePlace || n.Kind == NodeAlloc {
		k.placeStr = n.Place.String()
	}
	return k
}

func (n nodeInfo) String() string {
	switch n.Kind {
	case NodeConstant:
		return fmt.Sprintf("Constant(%d)", n.ConstID)
	case NodeConstantDeref:
		return fmt.Sprintf("ConstantDeref(%d)", n.ConstID)
	default:
		return fmt.Sprintf("%s(i%d%s)", n.Kind, n.Inst, n.Place)
	}
}

// registry interns ConstraintNodes into a dense global id space, the id
// space the points-to bitsets are built over.
type registry struct {
	ids   map[nodeKey]int
	infos []nodeInfo
}

func newRegistry() *registry {
	return &registry{ids: make(map[nodeKey]int)}
}

func (r *registry) intern(n nodeInfo) int {
	k := n.key()
	if id, ok := r.ids[k]; ok {
		return id
	}
	id := len(r.infos)
	r.ids[k] = id
	r.infos = append(r.infos, n)
	return id
}

func (r *registry) info(id int) nodeInfo { return r.infos[id] }

func (r *registry) placeNode(inst int, p ir.Place) int {
	return r.intern(nodeInfo{Kind: NodePlace, Inst: inst, Place: p})
}

func (r *registry) allocNode(inst int, p ir.Place) int {
	return r.intern(nodeInfo{Kind: NodeAlloc, Inst: inst, Place: p})
}

func (r *registry) constNode(c ir.ConstID) int {
	return r.intern(nodeInfo{Kind: NodeConstant, Inst: -1, ConstID: c})
}

func (r *registry) constDerefNode(c ir.ConstID) int {
	return r.intern(nodeInfo{Kind: NodeConstantDeref, Inst: -1, ConstID: c})
}
