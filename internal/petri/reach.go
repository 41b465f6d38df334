// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package petri

// ReachEdge is one edge of a ReachabilityGraph: firing Transition at
// marking From produced marking To.
type ReachEdge struct {
	From, To, Transition int
}

// AtomicRace is one on-the-fly atomicity-violation event recorded while
// computing the enabled set at State: two co-enabled atomic transitions,
// Ops, that race: aliased atomics, at least one a Store, and Store/Store
// or Store/Relaxed-Load.
type AtomicRace struct {
	State int
	Ops   [2]int
}

// ReachabilityGraph is the BFS closure over distinct markings. This type
// is only the result shape: internal/explorer is what actually walks the
// net and populates one.
type ReachabilityGraph struct {
	Markings    []Marking
	Edges       []ReachEdge
	Deadlocks   []int // marking indices with no enabled transitions
	Truncated   bool
	AtomicRaces []AtomicRace
}
