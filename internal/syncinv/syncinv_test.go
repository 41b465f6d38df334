// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syncinv

import (
	"strings"
	"testing"

	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/cgraph"
	"github.com/aclements/go-concur/internal/ir"
)

// lockDump exercises a single function that acquires a std::sync::Mutex,
// reads through the guard, then drops it explicitly.
const lockDump = `{
  "def_paths": {"std::sync::Mutex::lock": "std::sync::Mutex::lock"},
  "instances": [
    {
      "def": "f",
      "body": {
        "args_count": 1,
        "locals": [{"type":"()"},{"type":"std::sync::Mutex<i32>"},{"type":"std::sync::MutexGuard<i32>"}],
        "blocks": [
          {
            "name": "bb0",
            "statements": [],
            "term": {
              "kind": "call",
              "call": {"callee": "std::sync::Mutex::lock", "args": [{"kind":"move","place":{"local":1}}], "destination": {"local":2}, "has_target": true, "target": 1}
            }
          },
          {
            "name": "bb1",
            "statements": [],
            "term": {"kind": "drop", "drop_place": {"local": 2}, "target": 2}
          },
          {"name": "bb2", "statements": [], "term": {"kind": "return"}}
        ]
      }
    }
  ]
}`

func buildRegistry(t *testing.T, dump string, cfg SiteConfig) (*ir.Program, *Registry) {
	t.Helper()
	prog, err := ir.Load(strings.NewReader(dump))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cg := cgraph.Build(prog, cgraph.ClassifyConfig{})
	a := alias.New(prog, cg)
	return prog, BuildRegistry(prog, a, cfg)
}

func TestCollectLockGuardsFindsMutexLockAndDrop(t *testing.T) {
	prog, err := ir.Load(strings.NewReader(lockDump))
	if err != nil {
		t.Fatal(err)
	}
	inst := prog.AllInstances()[0]
	guards := CollectLockGuards(prog, inst, SiteConfig{})
	if len(guards) != 1 {
		t.Fatalf("CollectLockGuards = %v, want 1 guard", guards)
	}
	g := guards[0]
	if g.Kind != StdMutex {
		t.Errorf("Kind = %v, want StdMutex", g.Kind)
	}
	if len(g.GenLocations) != 1 || g.GenLocations[0] != (Point{BB: 0, Stmt: -1}) {
		t.Errorf("GenLocations = %v, want [{0,-1}]", g.GenLocations)
	}
	if len(g.KillLocations) != 1 || g.KillLocations[0] != (Point{BB: 1, Stmt: -1}) {
		t.Errorf("KillLocations = %v, want [{1,-1}]", g.KillLocations)
	}
	if g.GenOnlyByMove {
		t.Error("GenOnlyByMove should be false for a direct lock call")
	}
}

func TestBuildRegistryGroupsMutexIntoOnePlace(t *testing.T) {
	_, reg := buildRegistry(t, lockDump, SiteConfig{})
	if len(reg.Places) != 1 {
		t.Fatalf("Places = %v, want 1 resource place", reg.Places)
	}
	if reg.Places[0].Kind != ResourceMutex {
		t.Errorf("Kind = %v, want ResourceMutex", reg.Places[0].Kind)
	}
	idx, ok := reg.ResourceForLock(ir.AliasID{Instance: 0, Local: 2})
	if !ok || idx != 0 {
		t.Errorf("ResourceForLock = (%d, %v), want (0, true)", idx, ok)
	}
}

func TestLockGuardConflictMatrix(t *testing.T) {
	mutex := LockGuard{Kind: StdMutex}
	mutex2 := LockGuard{Kind: StdMutex}
	otherMutex := LockGuard{Kind: ParkingLotMutex}
	if !mutex.ConflictsWith(mutex2) {
		t.Error("same-kind mutexes should conflict")
	}
	if mutex.ConflictsWith(otherMutex) {
		t.Error("different mutex kinds should not be deemed conflicting by kind alone")
	}

	write := LockGuard{Kind: StdRwLockWrite}
	read := LockGuard{Kind: StdRwLockRead}
	if !write.ConflictsWith(read) || !read.ConflictsWith(write) {
		t.Error("write should conflict with any read")
	}
	if !write.ConflictsWith(LockGuard{Kind: ParkingLotWrite}) {
		t.Error("any two write-kinds should conflict")
	}

	plRead := LockGuard{Kind: ParkingLotRead}
	plReadRecursive := LockGuard{Kind: ParkingLotRead, Recursive: true}
	if !plRead.ConflictsWith(plRead) {
		t.Error("two non-recursive parking_lot reads should conflict")
	}
	if plRead.ConflictsWith(plReadRecursive) {
		t.Error("a non-recursive read should not conflict with a recursive second read")
	}

	stdRead := LockGuard{Kind: StdRwLockRead}
	if stdRead.ConflictsWith(stdRead) {
		t.Error("std RwLock reads should never conflict with each other")
	}
}

const atomicDump = `{
  "instances": [
    {
      "def": "f",
      "body": {
        "args_count": 1,
        "locals": [{"type":"()"},{"type":"core::sync::atomic::AtomicUsize"}],
        "blocks": [{"name": "bb0", "statements": [], "term": {"kind": "return"}}]
      }
    },
    {
      "def": "g",
      "body": {
        "args_count": 1,
        "locals": [{"type":"()"},{"type":"core::sync::atomic::AtomicUsize"}],
        "blocks": [{"name": "bb0", "statements": [], "term": {"kind": "return"}}]
      }
    }
  ]
}`

func TestCollectAtomicsByType(t *testing.T) {
	prog, err := ir.Load(strings.NewReader(atomicDump))
	if err != nil {
		t.Fatal(err)
	}
	inst := prog.AllInstances()[0]
	sites := CollectAtomics(prog, inst)
	if len(sites) != 1 || sites[0].Alias.Local != 1 {
		t.Fatalf("CollectAtomics = %v, want one site at local 1", sites)
	}
}
