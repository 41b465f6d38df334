// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package explorer is the state-space explorer: BFS reachability over a
// Petri net's markings, with optional partial-order
// reduction and on-the-fly atomic-race detection during enabled-set
// computation.
package explorer

import (
	"fmt"
	"sort"

	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/petri"
)

// Config bundles the explorer's tunable knobs: the state-space slice of
// the analyzer's configuration record.
type Config struct {
	// StateLimit stops the explorer once this many distinct markings have
	// been enqueued; zero means unbounded.
	StateLimit int
	// PartialOrderReduction enables the persistent-set reduction.
	PartialOrderReduction bool
}

type markingKey string

func keyOf(m petri.Marking) markingKey {
	// Canonicalize by (place-index, count) pairs; Marking is already
	// indexed by place, so this is just a hashable fingerprint, not a
	// sparse encoding.
	b := make([]byte, 0, len(m)*5)
	for i, c := range m {
		b = append(b, fmt.Sprintf("%d:%d,", i, c)...)
	}
	return markingKey(b)
}

// Explore runs a breadth-first search over net's markings starting from
// the initial marking, recording deadlock markings and, on the fly,
// co-enabled atomic races.
func Explore(net *petri.Net, cfg Config) *petri.ReachabilityGraph {
	rg := &petri.ReachabilityGraph{}
	visited := make(map[markingKey]int)

	initial := net.InitialMarking()
	rg.Markings = append(rg.Markings, initial)
	visited[keyOf(initial)] = 0

	queue := []int{0}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		m := rg.Markings[cur]

		enabled := net.EnabledTransitions(m)
		recordAtomicRaces(net, enabled, cur, rg)

		if cfg.PartialOrderReduction {
			enabled = persistentSet(net, m, enabled)
		}

		if len(enabled) == 0 {
			rg.Deadlocks = append(rg.Deadlocks, cur)
			continue
		}

		for _, t := range enabled {
			next, ferr := net.FireTransition(m, t)
			if ferr != nil {
				// Firing an enabled transition must not fail; treat as
				// a model inconsistency and skip it rather than abort
				// the whole exploration.
				continue
			}
			key := keyOf(next)
			idx, seen := visited[key]
			if !seen {
				if cfg.StateLimit > 0 && len(rg.Markings) >= cfg.StateLimit {
					rg.Truncated = true
					continue
				}
				idx = len(rg.Markings)
				rg.Markings = append(rg.Markings, next)
				visited[key] = idx
				queue = append(queue, idx)
			}
			rg.Edges = append(rg.Edges, petri.ReachEdge{From: cur, To: idx, Transition: t})
		}
	}

	sort.Slice(rg.Deadlocks, func(i, j int) bool { return rg.Deadlocks[i] < rg.Deadlocks[j] })
	return rg
}

// recordAtomicRaces performs on-the-fly atomicity-violation detection:
// for every pair of enabled transitions
// that are both atomic operations on aliased atomics, with at least one
// a Store and either (Store,Store) or (Store, Relaxed-Load), record an
// event.
func recordAtomicRaces(net *petri.Net, enabled []int, state int, rg *petri.ReachabilityGraph) {
	transitions := net.Transitions()
	for i := 0; i < len(enabled); i++ {
		l1 := transitions[enabled[i]].Label
		if !isAtomicOp(l1.Kind) {
			continue
		}
		for j := i + 1; j < len(enabled); j++ {
			l2 := transitions[enabled[j]].Label
			if !isAtomicOp(l2.Kind) {
				continue
			}
			if l1.Resource != l2.Resource || l1.Resource < 0 {
				continue
			}
			if !racesAtomic(l1, l2) {
				continue
			}
			rg.AtomicRaces = append(rg.AtomicRaces, petri.AtomicRace{
				State: state,
				Ops:   [2]int{enabled[i], enabled[j]},
			})
		}
	}
}

func isAtomicOp(k petri.LabelKind) bool {
	return k == petri.LAtomicLoad || k == petri.LAtomicStore
}

// racesAtomic reports whether a and b, both atomic ops on the same
// resource place, race: at least one
// is a Store, and either both are Stores, or one is a Store and the other
// a Relaxed Load.
func racesAtomic(a, b petri.TransitionLabel) bool {
	aStore := a.Kind == petri.LAtomicStore
	bStore := b.Kind == petri.LAtomicStore
	if aStore && bStore {
		return true
	}
	if aStore && b.Kind == petri.LAtomicLoad && b.Order == ir.OrdRelaxed {
		return true
	}
	if bStore && a.Kind == petri.LAtomicLoad && a.Order == ir.OrdRelaxed {
		return true
	}
	return false
}
