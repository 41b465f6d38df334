// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alias

import (
	"regexp"
	"strings"
	"testing"

	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
)

// aliasDump builds two locals, x and y, where y = &x (so Alias(x,y) should
// find y's points-to set contains Alloc(x)) and a third local z = x (a
// plain copy, sharing pts with x).
const aliasDump = `{
  "instances": [
    {
      "def": "f",
      "body": {
        "args_count": 0,
        "locals": [{"type":"()"},{"type":"i32"},{"type":"&i32"},{"type":"i32"},{"type":"i32"}],
        "blocks": [
          {
            "name": "bb0",
            "statements": [
              {"kind": "assign", "lhs": {"local": 2}, "rhs": {"kind": "ref", "place": {"local": 1}}},
              {"kind": "assign", "lhs": {"local": 3}, "rhs": {"kind": "use", "operand": {"kind": "move", "place": {"local": 1}}}},
              {"kind": "assign", "lhs": {"local": 4}, "rhs": {"kind": "use", "operand": {"kind": "constant", "const": 1}}}
            ],
            "term": {"kind": "return"}
          }
        ]
      }
    }
  ]
}`

func buildAnalysis(t *testing.T, dump string) (*ir.Program, *Analysis) {
	t.Helper()
	prog, err := ir.Load(strings.NewReader(dump))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cg := cgraph.Build(prog, cgraph.ClassifyConfig{})
	return prog, New(prog, cg)
}

func TestAliasRefSharesAlloc(t *testing.T) {
	prog, a := buildAnalysis(t, aliasDump)
	inst := prog.InstanceByIndex(0)
	_ = inst
	x := ir.AliasID{Instance: 0, Local: 1}
	y := ir.AliasID{Instance: 0, Local: 2}

	if got := a.PointsTo(y, x); !got.AtLeast(lattice.Possibly) {
		t.Errorf("PointsTo(y, x) = %v, want at least Possibly (y = &x)", got)
	}
}

func TestAliasCopySharesAlloc(t *testing.T) {
	_, a := buildAnalysis(t, aliasDump)
	x := ir.AliasID{Instance: 0, Local: 1}
	z := ir.AliasID{Instance: 0, Local: 3}

	if got := a.Alias(x, z); got != lattice.Probably {
		t.Errorf("Alias(x, z) = %v, want Probably (z = x is a plain copy)", got)
	}
}

func TestAliasUnrelatedLocalsUnlikely(t *testing.T) {
	_, a := buildAnalysis(t, aliasDump)
	y := ir.AliasID{Instance: 0, Local: 2}
	w := ir.AliasID{Instance: 0, Local: 4} // assigned from an unrelated constant

	if got := a.Alias(y, w); got != lattice.Unlikely {
		t.Errorf("Alias(y, w) = %v, want Unlikely (unrelated locals)", got)
	}
}

func TestAliasUnknownForUnanalyzableInstance(t *testing.T) {
	const dump = `{"instances": [{"def": "extern_fn"}]}`
	prog, err := ir.Load(strings.NewReader(dump))
	if err != nil {
		t.Fatal(err)
	}
	cg := cgraph.Build(prog, cgraph.ClassifyConfig{})
	a := New(prog, cg)

	id := ir.AliasID{Instance: 0, Local: 1}
	if got := a.Alias(id, id); got != lattice.Unknown {
		t.Errorf("Alias on a body-less instance = %v, want Unknown", got)
	}
}

// spawnClosureDump exercises the closure-upvar resolution path: main builds
// a closure aggregate capturing its local 1 and passes it to thread::spawn.
// The closure body never mentions its upvar (local 1 of the closure), so
// its own points-to set is empty; Alias between main's local 1 and the
// closure's local 1 resolves through the ClosureDef call-graph edge
// recorded where main builds the closure aggregate.
const spawnClosureDump = `{
  "entry": "main",
  "def_paths": {"main": "crate::main", "std::thread::spawn": "std::thread::spawn", "crate::closure": "crate::closure"},
  "instances": [
    {
      "def": "main",
      "body": {
        "args_count": 0,
        "locals": [{"type":"()"},{"type":"i32"},{"type":"Closure"},{"type":"JoinHandle"}],
        "blocks": [
          {
            "name": "bb0",
            "statements": [
              {"kind": "assign", "lhs": {"local": 2}, "rhs": {"kind": "aggregate", "is_closure": true, "closure_def": "crate::closure", "operands": [{"kind":"move","place":{"local":1}}]}}
            ],
            "term": {
              "kind": "call",
              "call": {"callee": "std::thread::spawn", "args": [{"kind":"move","place":{"local":2}}], "destination": {"local":3}, "has_target": true, "target": 1}
            }
          },
          {"name": "bb1", "statements": [], "term": {"kind": "return"}}
        ]
      }
    },
    {"def": "std::thread::spawn", "body": null},
    {
      "def": "crate::closure",
      "body": {
        "args_count": 1,
        "locals": [{"type":"()"},{"type":"i32"}],
        "closure_of": "crate::closure",
        "blocks": [{"name": "bb0", "statements": [], "term": {"kind": "return"}}]
      }
    }
  ]
}`

func TestClosureUpvarResolution(t *testing.T) {
	prog, err := ir.Load(strings.NewReader(spawnClosureDump))
	if err != nil {
		t.Fatal(err)
	}
	cfg := cgraph.ClassifyConfig{ThreadSpawn: regexp.MustCompile(`^std::thread::spawn$`)}
	cg := cgraph.Build(prog, cfg)
	a := New(prog, cg)

	var mainIdx, closureIdx int
	for _, inst := range prog.AllInstances() {
		switch inst.Def {
		case "main":
			mainIdx = inst.Index
		case "crate::closure":
			closureIdx = inst.Index
		}
	}

	mainLocal1 := ir.AliasID{Instance: mainIdx, Local: 1}
	closureLocal1 := ir.AliasID{Instance: closureIdx, Local: 1}

	if got := a.Alias(mainLocal1, closureLocal1); !got.AtLeast(lattice.Possibly) {
		t.Errorf("Alias(main._1, closure._1) = %v, want at least Possibly via closure-upvar resolution", got)
	}
}

func TestBoundednessOfAcyclicPlace(t *testing.T) {
	_, a := buildAnalysis(t, aliasDump)
	x := ir.AliasID{Instance: 0, Local: 1}
	if got := a.BoundednessOf(x); got != Bounded {
		t.Errorf("BoundednessOf(x) = %v, want Bounded", got)
	}
}
