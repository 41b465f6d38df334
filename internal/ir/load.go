// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

import (
	"encoding/json"
	"fmt"
	"io"
)

// dumpFile is the on-disk shape a host compiler plugin emits: one JSON
// document per analysis run. This format is intentionally outside the
// analytical core: Load is the single narrow seam the core is exercised
// through.
type dumpFile struct {
	Entry     string          `json:"entry,omitempty"`
	Instances []dumpInstance  `json:"instances"`
	DefPaths  map[string]string `json:"def_paths"`
	Attrs     map[string][]string `json:"attrs"`
}

type dumpInstance struct {
	Def    string   `json:"def"`
	Substs []string `json:"substs,omitempty"`
	Body   *dumpBody `json:"body,omitempty"`
}

type dumpBody struct {
	Blocks     []dumpBlock    `json:"blocks"`
	Locals     []dumpLocal    `json:"locals"`
	ArgsCount  int            `json:"args_count"`
	Promoted   bool           `json:"promoted,omitempty"`
	Span       string         `json:"span,omitempty"`
	ClosureOf  string         `json:"closure_of,omitempty"`
	UpvarTypes []string       `json:"upvar_types,omitempty"`
}

type dumpLocal struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type dumpBlock struct {
	Name       string          `json:"name"`
	Statements []dumpStatement `json:"statements"`
	Term       dumpTerm        `json:"term"`
	IsCleanup  bool            `json:"is_cleanup,omitempty"`
}

type dumpStatement struct {
	Kind string     `json:"kind"` // "assign" | "other"
	LHS  *dumpPlace `json:"lhs,omitempty"`
	RHS  *dumpRvalue `json:"rhs,omitempty"`
	Span string     `json:"span,omitempty"`
}

type dumpPlace struct {
	Local      int            `json:"local"`
	Projection []dumpProjElem `json:"projection,omitempty"`
}

type dumpProjElem struct {
	Kind   string `json:"kind"` // deref, field, index, constant_index, subslice
	Field  int    `json:"field,omitempty"`
	Type   string `json:"type,omitempty"`
	Local  int    `json:"local,omitempty"`
	Offset int    `json:"offset,omitempty"`
	From   int    `json:"from,omitempty"`
	To     int    `json:"to,omitempty"`
}

type dumpOperand struct {
	Kind  string     `json:"kind"` // move, copy, constant
	Place *dumpPlace `json:"place,omitempty"`
	Const int        `json:"const,omitempty"`
}

type dumpRvalue struct {
	Kind       string         `json:"kind"`
	Place      *dumpPlace     `json:"place,omitempty"`
	Operand    *dumpOperand   `json:"operand,omitempty"`
	Operands   []dumpOperand  `json:"operands,omitempty"`
	IsClosure  bool           `json:"is_closure,omitempty"`
	UpvarField []int          `json:"upvar_field,omitempty"`
	ClosureDef string         `json:"closure_def,omitempty"`
}

type dumpTerm struct {
	Kind          string        `json:"kind"`
	Span          string        `json:"span,omitempty"`
	Target        int           `json:"target,omitempty"`
	HasTarget     bool          `json:"has_target,omitempty"`
	SwitchTargets []int         `json:"switch_targets,omitempty"`
	AssertCond    *dumpPlace    `json:"assert_cond,omitempty"`
	DropPlace     *dumpPlace    `json:"drop_place,omitempty"`
	Call          *dumpCallInfo `json:"call,omitempty"`
}

type dumpCallInfo struct {
	Callee      string        `json:"callee,omitempty"`
	CalleeValue *dumpPlace    `json:"callee_value,omitempty"`
	Args        []dumpOperand `json:"args,omitempty"`
	Destination *dumpPlace    `json:"destination,omitempty"`
	Target      int           `json:"target,omitempty"`
	HasTarget   bool          `json:"has_target,omitempty"`
	Unwind      string        `json:"unwind,omitempty"` // continue, cleanup, unreachable
	UnwindBB    int           `json:"unwind_bb,omitempty"`
	Ordering    string        `json:"ordering,omitempty"` // relaxed, acquire, release, acqrel, seqcst
}

// Load decodes a JSON MIR dump into a Program. A decoding error anywhere
// in the document, including inside a single instance's body, fails the
// whole Load. An instance whose body is absent or null is kept without
// one: it is omitted from Program.bodies, which IsMIRAvailable and
// InstanceMIR's callers are required to check for.
func Load(r io.Reader) (*Program, error) {
	var df dumpFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&df); err != nil {
		return nil, fmt.Errorf("ir: decoding MIR dump: %w", err)
	}

	p := &Program{
		bodies:   make(map[int]*Body),
		defPath:  make(map[DefID]string),
		attrs:    make(map[DefID]map[string]bool),
		typeArgs: make(map[DefID][]TypeID),
	}
	for path, def := range df.DefPaths {
		p.defPath[DefID(def)] = path
	}
	for def, names := range df.Attrs {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		p.attrs[DefID(def)] = set
	}

	for i, di := range df.Instances {
		substs := make([]TypeID, len(di.Substs))
		for j, s := range di.Substs {
			substs[j] = TypeID(s)
		}
		inst := &Instance{Index: i, Def: DefID(di.Def), Substs: substs}
		if len(substs) > 0 {
			inst.typeStr = fmt.Sprintf("%s%v", di.Def, di.Substs)
		}
		p.instances = append(p.instances, inst)
		if di.Body != nil {
			p.bodies[i] = convertBody(di.Body)
		}
	}

	if df.Entry != "" {
		for _, inst := range p.instances {
			if string(inst.Def) == df.Entry && len(inst.Substs) == 0 {
				p.entry = inst
				break
			}
		}
		if p.entry == nil && len(p.instances) > 0 {
			// Entry named but only available in monomorphized form:
			// fall back to the first instance of that definition.
			for _, inst := range p.instances {
				if string(inst.Def) == df.Entry {
					p.entry = inst
					break
				}
			}
		}
	}

	return p, nil
}

func convertBody(d *dumpBody) *Body {
	b := &Body{
		ArgsCount: d.ArgsCount,
		Promoted:  d.Promoted,
		Span:      Span(d.Span),
		ClosureOf: DefID(d.ClosureOf),
	}
	for _, t := range d.UpvarTypes {
		b.UpvarTypes = append(b.UpvarTypes, TypeID(t))
	}
	for _, l := range d.Locals {
		b.Locals = append(b.Locals, LocalDecl{Type: TypeID(l.Type), Name: l.Name})
	}
	for bi, db := range d.Blocks {
		bb := BasicBlock{Index: bi, Name: db.Name, IsCleanup: db.IsCleanup}
		for _, ds := range db.Statements {
			bb.Statements = append(bb.Statements, convertStatement(ds, db.Name))
		}
		bb.Term = convertTerm(db.Term)
		b.Blocks = append(b.Blocks, bb)
	}
	return b
}

func convertPlace(d *dumpPlace) Place {
	if d == nil {
		return Place{}
	}
	p := Place{Local: d.Local}
	for _, e := range d.Projection {
		pe := ProjElem{Field: e.Field, Type: TypeID(e.Type), Local: e.Local, Offset: e.Offset, From: e.From, To: e.To}
		switch e.Kind {
		case "deref":
			pe.Kind = ProjDeref
		case "field":
			pe.Kind = ProjField
		case "index":
			pe.Kind = ProjIndex
		case "constant_index":
			pe.Kind = ProjConstantIndex
		case "subslice":
			pe.Kind = ProjSubslice
		}
		p.Projection = append(p.Projection, pe)
	}
	return p
}

func convertOperand(d *dumpOperand) Operand {
	if d == nil {
		return Operand{}
	}
	o := Operand{Const: ConstID(d.Const)}
	switch d.Kind {
	case "copy":
		o.Kind = OperandCopy
		o.Place = convertPlace(d.Place)
	case "constant":
		o.Kind = OperandConstant
	default:
		o.Kind = OperandMove
		o.Place = convertPlace(d.Place)
	}
	return o
}

func convertStatement(d dumpStatement, bbName string) Statement {
	s := Statement{Span: Span(d.Span), BBName: bbName}
	if d.Kind == "assign" {
		s.Kind = StmtAssign
		s.LHS = convertPlace(d.LHS)
		if d.RHS != nil {
			s.RHS = convertRvalue(*d.RHS)
		}
	} else {
		s.Kind = StmtOther
	}
	return s
}

func convertRvalue(d dumpRvalue) Rvalue {
	rv := Rvalue{IsClosure: d.IsClosure, UpvarField: d.UpvarField, ClosureDef: DefID(d.ClosureDef)}
	switch d.Kind {
	case "ref":
		rv.Kind = RvRef
		rv.Place = convertPlace(d.Place)
	case "addr_of_field":
		rv.Kind = RvAddrOfField
		rv.Place = convertPlace(d.Place)
	case "deref":
		rv.Kind = RvDeref
		rv.Place = convertPlace(d.Place)
	case "binary_op":
		rv.Kind = RvBinaryOp
		for _, o := range d.Operands {
			rv.Operands = append(rv.Operands, convertOperand(&o))
		}
	case "aggregate":
		rv.Kind = RvAggregate
		for _, o := range d.Operands {
			rv.Operands = append(rv.Operands, convertOperand(&o))
		}
	case "discriminant":
		rv.Kind = RvDiscriminant
		rv.Place = convertPlace(d.Place)
	default:
		rv.Kind = RvUse
		rv.Operand = convertOperand(d.Operand)
	}
	return rv
}

func convertTerm(d dumpTerm) Terminator {
	t := Terminator{Span: Span(d.Span), Target: d.Target, SwitchTargets: d.SwitchTargets, HasTarget: d.HasTarget}
	switch d.Kind {
	case "goto":
		t.Kind = TermGoto
	case "switch_int":
		t.Kind = TermSwitchInt
	case "assert":
		t.Kind = TermAssert
		t.AssertCond = convertPlace(d.AssertCond)
	case "return":
		t.Kind = TermReturn
	case "drop":
		// A Drop terminator always carries a success target in MIR; only
		// InlineAsm genuinely distinguishes target-less forms.
		t.Kind = TermDrop
		t.DropPlace = convertPlace(d.DropPlace)
		t.HasTarget = true
	case "call":
		t.Kind = TermCall
		if d.Call != nil {
			t.Call = convertCallInfo(*d.Call)
		}
	case "unreachable":
		t.Kind = TermUnreachable
	case "unwind_resume":
		t.Kind = TermUnwindResume
	case "unwind_terminate":
		t.Kind = TermUnwindTerminate
	case "coroutine_drop":
		t.Kind = TermCoroutineDrop
	case "tail_call":
		t.Kind = TermTailCall
	case "inline_asm":
		t.Kind = TermInlineAsm
	case "false_edge":
		t.Kind = TermFalseEdge
	case "false_unwind":
		t.Kind = TermFalseUnwind
	case "yield":
		t.Kind = TermYield
	default:
		t.Kind = TermUnreachable
	}
	return t
}

func convertCallInfo(d dumpCallInfo) CallInfo {
	ci := CallInfo{
		Callee:    DefID(d.Callee),
		Target:    d.Target,
		HasTarget: d.HasTarget,
		UnwindBB:  d.UnwindBB,
	}
	if d.CalleeValue != nil {
		ci.CalleeValue = convertPlace(d.CalleeValue)
	}
	for _, a := range d.Args {
		ci.Args = append(ci.Args, convertOperand(&a))
	}
	if d.Destination != nil {
		ci.Destination = convertPlace(d.Destination)
		ci.HasDest = true
	}
	switch d.Unwind {
	case "cleanup":
		ci.Unwind = UnwindCleanup
	case "unreachable":
		ci.Unwind = UnwindUnreachable
	default:
		ci.Unwind = UnwindContinue
	}
	switch d.Ordering {
	case "relaxed":
		ci.Ordering = OrdRelaxed
	case "acquire":
		ci.Ordering = OrdAcquire
	case "release":
		ci.Ordering = OrdRelease
	case "acqrel":
		ci.Ordering = OrdAcqRel
	case "seqcst", "":
		ci.Ordering = OrdSeqCst
	default:
		ci.Ordering = OrdSeqCst
	}
	return ci
}
