// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ir

// Program is the read-only MIR façade. It is created once by Load and
// never mutated; every downstream analysis queries it through this type
// only.
type Program struct {
	entry     *Instance
	instances []*Instance
	bodies    map[int]*Body // by Instance.Index; absent means no MIR available
	defPath   map[DefID]string
	attrs     map[DefID]map[string]bool
	typeArgs  map[DefID][]TypeID // generic parameter shape, for TryResolve
}

// EntryFn returns the program's entry-point definition, if it has one.
// Library crates with no callable entry return ok == false; internal/translate
// then translates every instance with an available body but puts no start
// token on any fn_start, and no function is explored as a separate entry.
func (p *Program) EntryFn() (DefID, bool) {
	if p.entry == nil {
		return "", false
	}
	return p.entry.Def, true
}

// EntryInstance returns the Instance for EntryFn's monomorphization, if
// known.
func (p *Program) EntryInstance() (*Instance, bool) {
	if p.entry == nil {
		return nil, false
	}
	return p.entry, true
}

// AllInstances returns every monomorphized function instance the host
// compiler emitted ("mono items").
func (p *Program) AllInstances() []*Instance {
	return p.instances
}

// InstanceMIR returns the MIR body for inst. It panics if no body is
// available; callers must check IsMIRAvailable first.
func (p *Program) InstanceMIR(inst *Instance) *Body {
	b, ok := p.bodies[inst.Index]
	if !ok {
		panic("ir: InstanceMIR called on an instance with no available body")
	}
	return b
}

// IsMIRAvailable reports whether def has a MIR body in this program.
func (p *Program) IsMIRAvailable(def DefID) bool {
	for _, inst := range p.instances {
		if inst.Def == def {
			_, ok := p.bodies[inst.Index]
			return ok
		}
	}
	return false
}

// DefPathStr returns the fully qualified path string of def, the form
// the key-API classification matches regexes against.
func (p *Program) DefPathStr(def DefID) string {
	if s, ok := p.defPath[def]; ok {
		return s
	}
	return string(def)
}

// HasAttribute reports whether def carries the named attribute (e.g.
// "pn_spawn", "pn_join" -- the attribute-based thread-control
// classification, which wins over path matching).
func (p *Program) HasAttribute(def DefID, name string) bool {
	return p.attrs[def][name]
}

// TryResolve attempts to monomorphize def with the given substitutions,
// returning the matching Instance if the program contains one. Returns
// ok == false (never panics) when the generic cannot be resolved -- the
// callers (internal/cgraph when adding call and closure-definition edges,
// internal/translate when wiring calls) skip the unresolved edge or wiring
// rather than failing the pipeline.
func (p *Program) TryResolve(def DefID, substs []TypeID) (*Instance, bool) {
	for _, inst := range p.instances {
		if inst.Def != def || len(inst.Substs) != len(substs) {
			continue
		}
		match := true
		for i := range substs {
			if inst.Substs[i] != substs[i] {
				match = false
				break
			}
		}
		if match {
			return inst, true
		}
	}
	return nil, false
}

// InstanceByIndex returns the Instance with the given stable index, or nil
// if out of range.
func (p *Program) InstanceByIndex(idx int) *Instance {
	if idx < 0 || idx >= len(p.instances) {
		return nil
	}
	return p.instances[idx]
}
