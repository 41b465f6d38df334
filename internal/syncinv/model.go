// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package syncinv builds the synchronization inventory: per-instance
// collectors that locate lock-guard creation sites, condition-variable
// allocation sites, atomic-variable sites, channel endpoints, and unsafe
// memory sites, then groups the sites across instances into
// resource-place equivalence classes using the points-to analysis.
package syncinv

import "github.com/aclements/go-concur/internal/ir"

// LockKind enumerates the nine lock-guard kinds the collectors
// distinguish.
type LockKind int

const (
	StdMutex LockKind = iota
	ParkingLotMutex
	SpinMutex
	StdRwLockRead
	ParkingLotRead
	SpinRead
	StdRwLockWrite
	ParkingLotWrite
	SpinWrite
)

func (k LockKind) String() string {
	switch k {
	case StdMutex:
		return "StdMutex"
	case ParkingLotMutex:
		return "ParkingLotMutex"
	case SpinMutex:
		return "SpinMutex"
	case StdRwLockRead:
		return "StdRwLockRead"
	case ParkingLotRead:
		return "ParkingLotRead"
	case SpinRead:
		return "SpinRead"
	case StdRwLockWrite:
		return "StdRwLockWrite"
	case ParkingLotWrite:
		return "ParkingLotWrite"
	case SpinWrite:
		return "SpinWrite"
	default:
		return "LockKind(?)"
	}
}

func (k LockKind) isMutex() bool {
	return k == StdMutex || k == ParkingLotMutex || k == SpinMutex
}

func (k LockKind) isWrite() bool {
	return k == StdRwLockWrite || k == ParkingLotWrite || k == SpinWrite
}

func (k LockKind) isRead() bool {
	return k == StdRwLockRead || k == ParkingLotRead || k == SpinRead
}

// Point is a program point within one instance: the block index and the
// statement index within it, or -1 for the block's terminator.
type Point struct {
	BB   int
	Stmt int // -1 means the block's terminator
}

// LockGuard is a lock-guard creation site.
type LockGuard struct {
	Alias         ir.AliasID
	Kind          LockKind
	Span          ir.Span
	GenLocations  []Point
	KillLocations []Point
	// GenOnlyByMove is true when the guard's only visible gen-location in
	// this body is a move from another place (a forwarded guard, e.g. a
	// parameter or a helper's return value) rather than a direct call to
	// a lock-acquire API: this instance never observes the acquire call
	// site itself.
	GenOnlyByMove bool
	// Recursive is set for ParkingLotRead guards acquired via
	// read_recursive, which the conflict matrix treats specially.
	Recursive bool
}

// ConflictsWith reports whether two lock-guards of potentially the same
// resource would contend for it: any two write-kinds conflict; write
// conflicts with any read; two reads
// of the same parking_lot RwLock conflict iff the second is
// non-recursive; same-kind mutexes conflict with themselves.
func (g LockGuard) ConflictsWith(o LockGuard) bool {
	switch {
	case g.Kind.isWrite() && o.Kind.isWrite():
		return true
	case g.Kind.isWrite() && o.Kind.isRead():
		return true
	case g.Kind.isRead() && o.Kind.isWrite():
		return true
	case g.Kind.isMutex() && o.Kind.isMutex():
		return g.Kind == o.Kind
	case g.Kind == ParkingLotRead && o.Kind == ParkingLotRead:
		return !o.Recursive
	case g.Kind.isRead() && o.Kind.isRead():
		return false
	default:
		return false
	}
}

// CondvarSite is a condition-variable allocation site.
type CondvarSite struct {
	Alias ir.AliasID
	Span  ir.Span
}

// AtomicSite is an atomic-variable allocation site.
type AtomicSite struct {
	Alias ir.AliasID
	Span  ir.Span
}

// ChannelDirection discriminates the two ends of a channel.
type ChannelDirection int

const (
	ChannelSender ChannelDirection = iota
	ChannelReceiver
)

// ChannelEndpoint is one end of a channel. Both ends of the same channel
// are collected as separate sites and later merged into one resource
// place by BuildRegistry.
type ChannelEndpoint struct {
	Alias     ir.AliasID
	Direction ChannelDirection
	Span      ir.Span
}

// UnsafeRegionSite is a raw-pointer-backed memory region reachable via
// unsafe code, tracked so the translator can splice UnsafeRead/
// UnsafeWrite transitions and the data-race detector can pair
// conflicting accesses.
type UnsafeRegionSite struct {
	Alias ir.AliasID
	Span  ir.Span
}

// ResourceKind discriminates the six families of resource place sites
// group into.
type ResourceKind int

const (
	ResourceMutex ResourceKind = iota
	ResourceRwLock
	ResourceCondvar
	ResourceChannel
	ResourceAtomic
	ResourceUnsafeRegion
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceMutex:
		return "Mutex"
	case ResourceRwLock:
		return "RwLock"
	case ResourceCondvar:
		return "Condvar"
	case ResourceChannel:
		return "Channel"
	case ResourceAtomic:
		return "Atomic"
	case ResourceUnsafeRegion:
		return "UnsafeRegion"
	default:
		return "ResourceKind(?)"
	}
}

// RWLockCapacity is the token pool of an RwLock resource place: up to
// this many concurrent readers, or one writer holding the whole pool.
// ChannelCapacity bounds the queued-message token count of a channel
// place.
const (
	RWLockCapacity  = 10
	ChannelCapacity = 100
)

// Capacity and StartTokens encode each primitive's semantics as a token
// pool: an available mutex is one token, an RwLock a pool of readers, a
// channel starts empty.
func (k ResourceKind) Capacity() int {
	switch k {
	case ResourceMutex:
		return 1
	case ResourceRwLock:
		return RWLockCapacity
	case ResourceCondvar:
		return 1
	case ResourceChannel:
		return ChannelCapacity
	case ResourceAtomic:
		return 1
	case ResourceUnsafeRegion:
		return 1
	default:
		return 0
	}
}

func (k ResourceKind) StartTokens() int {
	if k == ResourceChannel {
		return 0
	}
	return k.Capacity()
}

// ResourcePlace is one equivalence class of aliased synchronization
// objects, gathered across every instance's collected sites.
type ResourcePlace struct {
	Index   int
	Kind    ResourceKind
	Guards  []LockGuard       // ResourceMutex, ResourceRwLock
	Condvar *CondvarSite      // ResourceCondvar (first site seen; others merge in by alias only)
	Atomic  []AtomicSite      // ResourceAtomic
	Chan    []ChannelEndpoint // ResourceChannel: both directions
	Unsafe  []UnsafeRegionSite
	// Unbounded marks a channel/atomic resource place whose capacity the
	// MIR could not pin down directly, per internal/alias.Boundedness.
	Unbounded bool
}
