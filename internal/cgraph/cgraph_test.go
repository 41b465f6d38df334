// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cgraph

import (
	"regexp"
	"strings"
	"testing"

	"github.com/aclements/go-concur/internal/ir"
)

func TestClassifyAttributeWinsOverPath(t *testing.T) {
	const dump = `{
	  "def_paths": {"std::thread::spawn": "std::thread::spawn"},
	  "attrs": {"std::thread::spawn": ["pn_condvar_wait"]},
	  "instances": [{"def": "std::thread::spawn"}]
	}`
	prog, err := ir.Load(strings.NewReader(dump))
	if err != nil {
		t.Fatal(err)
	}
	cfg := ClassifyConfig{ThreadSpawn: regexp.MustCompile(`^std::thread::spawn$`)}
	if got := Classify(prog, "std::thread::spawn", cfg); got != CondvarWait {
		t.Fatalf("Classify = %v, want CondvarWait (attribute should win)", got)
	}
}

func TestClassifyBuiltinRayonJoin(t *testing.T) {
	const dump = `{"def_paths": {"rayon::join": "rayon::join"}, "instances": [{"def": "rayon::join"}]}`
	prog, err := ir.Load(strings.NewReader(dump))
	if err != nil {
		t.Fatal(err)
	}
	if got := Classify(prog, "rayon::join", ClassifyConfig{}); got != RayonJoin {
		t.Fatalf("Classify = %v, want RayonJoin", got)
	}
}

func TestClassifyUserConfiguredBundle(t *testing.T) {
	const dump = `{"def_paths": {"mycrate::spawn_worker": "mycrate::spawn_worker"}, "instances": [{"def": "mycrate::spawn_worker"}]}`
	prog, err := ir.Load(strings.NewReader(dump))
	if err != nil {
		t.Fatal(err)
	}
	cfg := ClassifyConfig{ThreadSpawn: regexp.MustCompile(`spawn_worker$`)}
	if got := Classify(prog, "mycrate::spawn_worker", cfg); got != Spawn {
		t.Fatalf("Classify = %v, want Spawn", got)
	}
	if got := Classify(prog, "mycrate::spawn_worker", ClassifyConfig{}); got != NotThreadControl {
		t.Fatalf("Classify with empty config = %v, want NotThreadControl", got)
	}
}

const spawnDump = `{
  "entry": "main",
  "def_paths": {
    "main": "crate::main",
    "std::thread::spawn": "std::thread::spawn",
    "crate::worker": "crate::worker",
    "crate::leaf": "crate::leaf"
  },
  "attrs": {},
  "instances": [
    {
      "def": "main",
      "body": {
        "args_count": 0,
        "locals": [{"type": "()"}, {"type": "Closure"}, {"type": "JoinHandle"}],
        "blocks": [
          {
            "name": "bb0",
            "statements": [
              {"kind": "assign", "lhs": {"local": 1}, "rhs": {"kind": "aggregate", "is_closure": true, "closure_def": "crate::worker", "operands": []}}
            ],
            "term": {
              "kind": "call",
              "call": {
                "callee": "std::thread::spawn",
                "args": [{"kind": "move", "place": {"local": 1}}],
                "destination": {"local": 2},
                "has_target": true,
                "target": 1
              }
            }
          },
          {
            "name": "bb1",
            "statements": [],
            "term": {"kind": "return"}
          }
        ]
      }
    },
    {
      "def": "std::thread::spawn",
      "body": null
    },
    {
      "def": "crate::worker",
      "body": {
        "args_count": 1,
        "locals": [{"type": "()"}],
        "blocks": [
          {
            "name": "bb0",
            "statements": [],
            "term": {
              "kind": "call",
              "call": {"callee": "crate::leaf", "args": [], "has_target": true, "target": 1}
            }
          },
          {"name": "bb1", "statements": [], "term": {"kind": "return"}}
        ]
      }
    },
    {
      "def": "crate::leaf",
      "body": {
        "args_count": 0,
        "locals": [],
        "blocks": [{"name": "bb0", "statements": [], "term": {"kind": "return"}}]
      }
    }
  ]
}`

func buildSpawnGraph(t *testing.T) (*ir.Program, *Graph) {
	t.Helper()
	prog, err := ir.Load(strings.NewReader(spawnDump))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := ClassifyConfig{ThreadSpawn: regexp.MustCompile(`^std::thread::spawn$`)}
	return prog, Build(prog, cfg)
}

func instanceIndex(prog *ir.Program, def ir.DefID) int {
	for _, inst := range prog.AllInstances() {
		if inst.Def == def {
			return inst.Index
		}
	}
	return -1
}

func TestBuildRecordsSpawnedClosureDef(t *testing.T) {
	prog, cg := buildSpawnGraph(t)
	mainIdx := instanceIndex(prog, "main")

	spawns := cg.SpawnLocals("main")
	if len(spawns) != 1 {
		t.Fatalf("want 1 spawn record, got %d", len(spawns))
	}
	for _, defs := range spawns {
		if len(defs) != 1 || defs[0] != "crate::worker" {
			t.Fatalf("spawned defs = %v, want [crate::worker]", defs)
		}
	}

	spawnIdx := instanceIndex(prog, "std::thread::spawn")
	sites := cg.Callsites(mainIdx, spawnIdx)
	if len(sites) != 1 || sites[0].Tag != Spawn || sites[0].SiteTag != TagThreadControl {
		t.Fatalf("Callsites(main, spawn) = %+v, want one Spawn-tagged site", sites)
	}
}

func TestReachableFromEntry(t *testing.T) {
	prog, cg := buildSpawnGraph(t)
	mainIdx := instanceIndex(prog, "main")
	workerIdx := instanceIndex(prog, "crate::worker")
	leafIdx := instanceIndex(prog, "crate::leaf")

	reached := cg.ReachableFromEntry(mainIdx)
	if !reached[mainIdx] {
		t.Error("entry should reach itself")
	}
	if !reached[instanceIndex(prog, "std::thread::spawn")] {
		t.Error("entry should reach std::thread::spawn")
	}
	if !reached[workerIdx] {
		t.Error("entry should reach crate::worker through its ClosureDef construction edge, even though std::thread::spawn itself has no body")
	}
	if !reached[leafIdx] {
		t.Error("entry should transitively reach crate::leaf through worker")
	}
}

func TestAllSimplePaths(t *testing.T) {
	prog, cg := buildSpawnGraph(t)
	workerIdx := instanceIndex(prog, "crate::worker")
	leafIdx := instanceIndex(prog, "crate::leaf")

	paths := cg.AllSimplePaths(workerIdx, leafIdx)
	if len(paths) != 1 {
		t.Fatalf("want 1 simple path worker->leaf, got %d: %v", len(paths), paths)
	}
	if got := paths[0]; len(got) != 2 || got[0] != workerIdx || got[1] != leafIdx {
		t.Fatalf("path = %v, want [worker, leaf]", got)
	}
}

func TestHasBodyForExternFn(t *testing.T) {
	prog, cg := buildSpawnGraph(t)
	spawnIdx := instanceIndex(prog, "std::thread::spawn")
	if cg.HasBody(spawnIdx) {
		t.Error("std::thread::spawn has no MIR body and should report HasBody == false")
	}
}
