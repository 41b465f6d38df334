// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"strings"
	"testing"

	"github.com/aclements/go-concur/internal/config"
	"github.com/aclements/go-concur/internal/detect"
	"github.com/aclements/go-concur/internal/ir"
)

// doubleLockDump is the same single-function double-lock fixture
// internal/detect's own end-to-end test uses: f acquires
// std::sync::Mutex twice into two distinct guard locals with no
// intervening drop.
const doubleLockDump = `{
  "instances": [
    {
      "def": "f",
      "body": {
        "args_count": 1,
        "locals": [
          {"type":"()"},
          {"type":"std::sync::Mutex<i32>"},
          {"type":"std::sync::MutexGuard<i32>"},
          {"type":"std::sync::MutexGuard<i32>"}
        ],
        "blocks": [
          {"name":"bb0","statements":[],"term":{"kind":"call","span":"f.rs:3:5","call":{"callee":"std::sync::Mutex::lock","args":[{"kind":"move","place":{"local":1}}],"destination":{"local":2},"has_target":true,"target":1}}},
          {"name":"bb1","statements":[],"term":{"kind":"call","span":"f.rs:5:5","call":{"callee":"std::sync::Mutex::lock","args":[{"kind":"move","place":{"local":1}}],"destination":{"local":3},"has_target":true,"target":2}}},
          {"name":"bb2","statements":[],"term":{"kind":"drop","drop_place":{"local":2},"target":3}},
          {"name":"bb3","statements":[],"term":{"kind":"drop","drop_place":{"local":3},"target":4}},
          {"name":"bb4","statements":[],"term":{"kind":"return"}}
        ]
      }
    }
  ]
}`

func TestRunFindsDoubleLockWithAllDetectors(t *testing.T) {
	prog, err := ir.Load(strings.NewReader(doubleLockDump))
	if err != nil {
		t.Fatalf("ir.Load: %v", err)
	}
	res, err := run(prog, config.Default())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.net == nil || res.cg == nil || res.reg == nil {
		t.Fatal("run should populate every intermediate artifact")
	}
	var found bool
	for _, r := range res.reports {
		if r.Kind == detect.KindDoubleLock {
			found = true
		}
	}
	if !found {
		t.Errorf("reports = %v, want a DoubleLock report", res.reports)
	}
}

func TestRunSkipsExplorerForDeadlockOnlyDetector(t *testing.T) {
	prog, err := ir.Load(strings.NewReader(doubleLockDump))
	if err != nil {
		t.Fatalf("ir.Load: %v", err)
	}
	cfg := config.Default()
	cfg.DetectorKind = "Deadlock"
	res, err := run(prog, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.rg != nil {
		t.Error("Deadlock-only runs should not populate the reachability graph; the lock detectors never consult the net")
	}
}

func TestFormatReportIncludesKindAndSpan(t *testing.T) {
	r := detect.Report{
		Kind: detect.KindMissNotify,
		Locations: []detect.Location{
			{PrimitiveKind: "Condvar", Span: "w.rs:1:1"},
		},
	}
	got := formatReport(r)
	if !strings.Contains(got, "MissNotify") || !strings.Contains(got, "w.rs:1:1") {
		t.Errorf("formatReport(%+v) = %q", r, got)
	}
}
