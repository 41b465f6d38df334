// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syncinv

import (
	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
)

// Registry is the read-only result of BuildRegistry: every resource place
// discovered across the whole program, plus lookup maps from a site's
// alias-id to its resource-place index. It is built exactly once and
// never mutated afterwards.
type Registry struct {
	Places []ResourcePlace

	lockIndex    map[ir.AliasID]int
	condvarIndex map[ir.AliasID]int
	atomicIndex  map[ir.AliasID]int
	channelIndex map[ir.AliasID]int
	unsafeIndex  map[ir.AliasID]int
}

// ResourceForLock returns the resource-place index owning the lock-guard
// at id, if any guard was registered there.
func (r *Registry) ResourceForLock(id ir.AliasID) (int, bool) {
	idx, ok := r.lockIndex[id]
	return idx, ok
}

// ResourceForCondvar returns the resource-place index for the condvar at
// id.
func (r *Registry) ResourceForCondvar(id ir.AliasID) (int, bool) {
	idx, ok := r.condvarIndex[id]
	return idx, ok
}

// ResourceForAtomic returns the resource-place index for the atomic
// variable at id.
func (r *Registry) ResourceForAtomic(id ir.AliasID) (int, bool) {
	idx, ok := r.atomicIndex[id]
	return idx, ok
}

// ResourceForChannel returns the resource-place index for the channel
// endpoint at id.
func (r *Registry) ResourceForChannel(id ir.AliasID) (int, bool) {
	idx, ok := r.channelIndex[id]
	return idx, ok
}

// ResourceForUnsafe returns the resource-place index for the unsafe
// memory region at id.
func (r *Registry) ResourceForUnsafe(id ir.AliasID) (int, bool) {
	idx, ok := r.unsafeIndex[id]
	return idx, ok
}

// Guard returns the LockGuard recorded at id, across whichever resource
// place its lock was grouped into -- the lookup internal/lockdataflow and
// internal/detect need to recover a guard's Kind for the conflict matrix
// given only the alias-id HoldsBefore/Live carry.
func (r *Registry) Guard(id ir.AliasID) (LockGuard, bool) {
	idx, ok := r.lockIndex[id]
	if !ok {
		return LockGuard{}, false
	}
	for _, g := range r.Places[idx].Guards {
		if g.Alias == id {
			return g, true
		}
	}
	return LockGuard{}, false
}

// BuildRegistry runs every collector over every MIR-available instance in
// prog and groups the resulting sites into resource places by alias
// identity, so every function's view of the same mutex, condvar, atomic,
// channel, or raw-pointer region lands on one shared place.
func BuildRegistry(prog *ir.Program, aliases *alias.Analysis, cfg SiteConfig) *Registry {
	var locks []LockGuard
	var condvars []CondvarSite
	var atomics []AtomicSite
	var channels []ChannelEndpoint
	var unsafes []UnsafeRegionSite

	for _, inst := range prog.AllInstances() {
		if !prog.IsMIRAvailable(inst.Def) {
			continue
		}
		locks = append(locks, CollectLockGuards(prog, inst, cfg)...)
		condvars = append(condvars, CollectCondvars(prog, inst, cfg)...)
		atomics = append(atomics, CollectAtomics(prog, inst)...)
		channels = append(channels, CollectChannelEndpoints(prog, inst)...)
		unsafes = append(unsafes, CollectUnsafeRegions(prog, inst)...)
	}

	reg := &Registry{
		lockIndex:    make(map[ir.AliasID]int),
		condvarIndex: make(map[ir.AliasID]int),
		atomicIndex:  make(map[ir.AliasID]int),
		channelIndex: make(map[ir.AliasID]int),
		unsafeIndex:  make(map[ir.AliasID]int),
	}

	groupLocks(reg, locks, aliases)
	groupCondvars(reg, condvars, aliases)
	groupAtomics(reg, atomics, aliases)
	groupChannels(reg, channels, aliases)
	groupUnsafe(reg, unsafes, aliases)
	return reg
}

func (reg *Registry) newPlace(kind ResourceKind) int {
	idx := len(reg.Places)
	reg.Places = append(reg.Places, ResourcePlace{Index: idx, Kind: kind})
	return idx
}

func resourceKindForGuards(guards []LockGuard) ResourceKind {
	for _, g := range guards {
		if g.Kind.isMutex() {
			return ResourceMutex
		}
	}
	return ResourceRwLock
}

func groupLocks(reg *Registry, locks []LockGuard, aliases *alias.Analysis) {
	if len(locks) == 0 {
		return
	}
	uf := newUnionFind(len(locks))
	for i := range locks {
		for j := i + 1; j < len(locks); j++ {
			if aliases.Alias(locks[i].Alias, locks[j].Alias).AtLeast(lattice.Possibly) {
				uf.union(i, j)
			}
		}
	}
	for _, members := range uf.classes(len(locks)) {
		var guards []LockGuard
		for _, i := range members {
			guards = append(guards, locks[i])
		}
		idx := reg.newPlace(resourceKindForGuards(guards))
		reg.Places[idx].Guards = guards
		for _, g := range guards {
			reg.lockIndex[g.Alias] = idx
		}
	}
}

func groupCondvars(reg *Registry, sites []CondvarSite, aliases *alias.Analysis) {
	if len(sites) == 0 {
		return
	}
	uf := newUnionFind(len(sites))
	for i := range sites {
		for j := i + 1; j < len(sites); j++ {
			if aliases.Alias(sites[i].Alias, sites[j].Alias).AtLeast(lattice.Possibly) {
				uf.union(i, j)
			}
		}
	}
	for _, members := range uf.classes(len(sites)) {
		idx := reg.newPlace(ResourceCondvar)
		first := sites[members[0]]
		reg.Places[idx].Condvar = &first
		for _, i := range members {
			reg.condvarIndex[sites[i].Alias] = idx
		}
	}
}

func groupAtomics(reg *Registry, sites []AtomicSite, aliases *alias.Analysis) {
	if len(sites) == 0 {
		return
	}
	uf := newUnionFind(len(sites))
	for i := range sites {
		for j := i + 1; j < len(sites); j++ {
			if aliases.AliasAtomic(sites[i].Alias, sites[j].Alias).AtLeast(lattice.Possibly) {
				uf.union(i, j)
			}
		}
	}
	for _, members := range uf.classes(len(sites)) {
		idx := reg.newPlace(ResourceAtomic)
		var group []AtomicSite
		unbounded := false
		for _, i := range members {
			group = append(group, sites[i])
			reg.atomicIndex[sites[i].Alias] = idx
			if aliases.BoundednessOf(sites[i].Alias) == alias.Unbounded {
				unbounded = true
			}
		}
		reg.Places[idx].Atomic = group
		reg.Places[idx].Unbounded = unbounded
	}
}

func groupChannels(reg *Registry, eps []ChannelEndpoint, aliases *alias.Analysis) {
	if len(eps) == 0 {
		return
	}
	uf := newUnionFind(len(eps))
	for i := range eps {
		for j := i + 1; j < len(eps); j++ {
			if aliases.Alias(eps[i].Alias, eps[j].Alias).AtLeast(lattice.Possibly) {
				uf.union(i, j)
			}
		}
	}
	for _, members := range uf.classes(len(eps)) {
		idx := reg.newPlace(ResourceChannel)
		var group []ChannelEndpoint
		unbounded := false
		for _, i := range members {
			group = append(group, eps[i])
			reg.channelIndex[eps[i].Alias] = idx
			if aliases.BoundednessOf(eps[i].Alias) == alias.Unbounded {
				unbounded = true
			}
		}
		reg.Places[idx].Chan = group
		reg.Places[idx].Unbounded = unbounded
	}
}

func groupUnsafe(reg *Registry, sites []UnsafeRegionSite, aliases *alias.Analysis) {
	if len(sites) == 0 {
		return
	}
	uf := newUnionFind(len(sites))
	for i := range sites {
		for j := i + 1; j < len(sites); j++ {
			if aliases.AliasAtomic(sites[i].Alias, sites[j].Alias).AtLeast(lattice.Possibly) {
				uf.union(i, j)
			}
		}
	}
	for _, members := range uf.classes(len(sites)) {
		idx := reg.newPlace(ResourceUnsafeRegion)
		var group []UnsafeRegionSite
		for _, i := range members {
			group = append(group, sites[i])
			reg.unsafeIndex[sites[i].Alias] = idx
		}
		reg.Places[idx].Unsafe = group
	}
}
