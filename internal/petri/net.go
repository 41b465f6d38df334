// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package petri is the bounded, capacity-constrained Petri net model:
// places, transitions, weighted arcs, markings, and firing, with the
// incidence-matrix and invariant queries built on top of it.
package petri

import "github.com/aclements/go-concur/internal/ir"

// PlaceKind discriminates the four roles a place can play.
type PlaceKind int

const (
	FunctionStart PlaceKind = iota
	FunctionEnd
	BasicBlock
	Resources
)

func (k PlaceKind) String() string {
	switch k {
	case FunctionStart:
		return "FunctionStart"
	case FunctionEnd:
		return "FunctionEnd"
	case BasicBlock:
		return "BasicBlock"
	case Resources:
		return "Resources"
	default:
		return "PlaceKind(?)"
	}
}

// Place is one node of the net's place set.
type Place struct {
	Index    int
	Name     string
	Kind     PlaceKind
	Capacity int
	Span     ir.Span
}

// LabelKind enumerates the transition-label shapes.
type LabelKind int

const (
	LStart LabelKind = iota
	LReturn
	LGoto
	LSwitch
	LAssert
	LDrop
	LFunction
	LLock
	LUnlock
	LRwLockRead
	LRwLockWrite
	LSpawn
	LJoin
	LWait
	LNotify
	LAtomicLoad
	LAtomicStore
	LUnsafeRead
	LUnsafeWrite
)

func (k LabelKind) String() string {
	names := [...]string{
		"Start", "Return", "Goto", "Switch", "Assert", "Drop", "Function",
		"Lock", "Unlock", "RwLockRead", "RwLockWrite", "Spawn", "Join",
		"Wait", "Notify", "AtomicLoad", "AtomicStore", "UnsafeRead", "UnsafeWrite",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "LabelKind(?)"
	}
	return names[k]
}

// TransitionLabel is the typed payload a transition carries. Not every
// field applies to every Kind; the per-field comments note which
// (Resource is a resource-place index, Alias an alias-id, TID the owning
// instance index).
type TransitionLabel struct {
	Kind     LabelKind
	TID      int // Start, Return, AtomicLoad, AtomicStore, UnsafeRead, UnsafeWrite
	Resource int // Lock, Unlock, RwLockRead, RwLockWrite, Notify, AtomicLoad, AtomicStore, UnsafeRead, UnsafeWrite; -1 if none
	Name     string // Spawn(name), Join(name)
	Alias    ir.AliasID // AtomicLoad, AtomicStore
	Order    ir.AtomicOrdering // AtomicLoad, AtomicStore
	Span     ir.Span // AtomicLoad, AtomicStore, UnsafeRead, UnsafeWrite
	BB       int // UnsafeRead, UnsafeWrite
	Type     ir.TypeID // UnsafeRead, UnsafeWrite
}

// Transition is one node of the net's T set.
type Transition struct {
	Index int
	Name  string
	Label TransitionLabel
}

type arcKey struct {
	P, T int
}

// Marking is a token count per place, indexed by Place.Index.
type Marking []int

func (m Marking) clone() Marking {
	c := make(Marking, len(m))
	copy(c, m)
	return c
}

// Net is the mutable-during-construction, frozen-thereafter Petri net:
// the translator builds it exactly once, optionally reduces it, and no
// caller mutates it afterwards.
type Net struct {
	places      []Place
	transitions []Transition
	pre         map[arcKey]int
	post        map[arcKey]int
	inhibitor   map[arcKey]bool
	reset       map[arcKey]bool
	initial     Marking
}

// New returns an empty net.
func New() *Net {
	return &Net{
		pre:       make(map[arcKey]int),
		post:      make(map[arcKey]int),
		inhibitor: make(map[arcKey]bool),
		reset:     make(map[arcKey]bool),
	}
}

// AddPlace adds a place and returns its index.
func (n *Net) AddPlace(name string, kind PlaceKind, capacity int, startTokens int, span ir.Span) int {
	idx := len(n.places)
	n.places = append(n.places, Place{Index: idx, Name: name, Kind: kind, Capacity: capacity, Span: span})
	n.initial = append(n.initial, startTokens)
	return idx
}

// AddTransition adds a transition and returns its index.
func (n *Net) AddTransition(name string, label TransitionLabel) int {
	idx := len(n.transitions)
	n.transitions = append(n.transitions, Transition{Index: idx, Name: name, Label: label})
	return idx
}

// RelabelTransition overwrites t's label in place, used by the translator
// when a generic `Function`-typed call transition is later specialized
// into `Lock(r)`, `Spawn(name)`, etc.
func (n *Net) RelabelTransition(t int, label TransitionLabel) {
	n.transitions[t].Label = label
}

// Places and Transitions expose the net's read-only node lists.
func (n *Net) Places() []Place           { return n.places }
func (n *Net) Transitions() []Transition { return n.transitions }

// AddInputArc adds w to the existing p→t input-arc weight (additive;
// w == 0 is a no-op).
func (n *Net) AddInputArc(p, t, w int) {
	if w == 0 {
		return
	}
	n.pre[arcKey{p, t}] += w
}

// AddOutputArc adds w to the existing t→p output-arc weight.
func (n *Net) AddOutputArc(p, t, w int) {
	if w == 0 {
		return
	}
	n.post[arcKey{p, t}] += w
}

// SetInputWeight overwrites the p→t input-arc weight.
func (n *Net) SetInputWeight(p, t, w int) { n.pre[arcKey{p, t}] = w }

// SetOutputWeight overwrites the t→p output-arc weight.
func (n *Net) SetOutputWeight(p, t, w int) { n.post[arcKey{p, t}] = w }

func (n *Net) inputWeight(p, t int) int  { return n.pre[arcKey{p, t}] }
func (n *Net) outputWeight(p, t int) int { return n.post[arcKey{p, t}] }

// InputWeight and OutputWeight expose the same arc weights to read-only
// consumers outside the package (internal/translate's reduction pass,
// internal/explorer, internal/detect) that need to inspect net structure
// without firing it.
func (n *Net) InputWeight(p, t int) int  { return n.inputWeight(p, t) }
func (n *Net) OutputWeight(p, t int) int { return n.outputWeight(p, t) }

// HasInhibitorArc and HasResetArc report whether p inhibits or resets t.
// Always available: the maps are simply empty without the corresponding
// build tag.
func (n *Net) HasInhibitorArc(p, t int) bool { return n.inhibitor[arcKey{p, t}] }
func (n *Net) HasResetArc(p, t int) bool     { return n.reset[arcKey{p, t}] }

// HasExtendedArcs reports whether any inhibitor or reset arc exists.
// internal/translate's reduction declines to rewrite a net carrying the
// extended arc kinds, since a rebuilt net cannot carry them over without
// the corresponding build tag.
func (n *Net) HasExtendedArcs() bool { return len(n.inhibitor) > 0 || len(n.reset) > 0 }

// InitialMarking returns a copy of the net's starting marking: one token
// at the entry function's fn_start plus each resource place's start
// tokens, nothing elsewhere.
func (n *Net) InitialMarking() Marking { return n.initial.clone() }
