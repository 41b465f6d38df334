// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package syncinv

import (
	"regexp"

	"github.com/aclements/go-concur/internal/ir"
)

// SiteConfig extends the built-in lock/condvar/atomic/channel/unsafe
// call-path recognizers with user-supplied patterns, mirroring
// internal/cgraph.ClassifyConfig's priority scheme: built-ins are always
// tried first, the corresponding SiteConfig field only if they miss.
type SiteConfig struct {
	StdMutexLock, ParkingLotMutexLock, SpinMutexLock *regexp.Regexp
	StdRwLockRead, ParkingLotRead, SpinRead          *regexp.Regexp
	StdRwLockWrite, ParkingLotWrite, SpinWrite       *regexp.Regexp
	CondvarNew                                       *regexp.Regexp
}

var builtinLockPatterns = map[LockKind]*regexp.Regexp{
	StdMutex:        regexp.MustCompile(`^std::sync::Mutex::lock$`),
	ParkingLotMutex: regexp.MustCompile(`^(parking_lot|lock_api)::Mutex::lock$`),
	SpinMutex:       regexp.MustCompile(`^spin::Mutex::lock$`),
	StdRwLockRead:   regexp.MustCompile(`^std::sync::RwLock::read$`),
	ParkingLotRead:  regexp.MustCompile(`^(parking_lot|lock_api)::RwLock::read(_recursive)?$`),
	SpinRead:        regexp.MustCompile(`^spin::RwLock::read$`),
	StdRwLockWrite:  regexp.MustCompile(`^std::sync::RwLock::write$`),
	ParkingLotWrite: regexp.MustCompile(`^(parking_lot|lock_api)::RwLock::write$`),
	SpinWrite:       regexp.MustCompile(`^spin::RwLock::write$`),
}

var builtinParkingLotReadRecursive = regexp.MustCompile(`read_recursive$`)

var builtinCondvarNew = regexp.MustCompile(`^std::sync::Condvar::new$`)

var builtinGuardType = map[LockKind]*regexp.Regexp{
	StdMutex:        regexp.MustCompile(`std::sync::MutexGuard`),
	ParkingLotMutex:  regexp.MustCompile(`(parking_lot|lock_api)::.*MutexGuard`),
	SpinMutex:       regexp.MustCompile(`spin::.*MutexGuard`),
	StdRwLockRead:   regexp.MustCompile(`std::sync::RwLockReadGuard`),
	ParkingLotRead:  regexp.MustCompile(`(parking_lot|lock_api)::.*RwLockReadGuard`),
	SpinRead:        regexp.MustCompile(`spin::.*RwLockReadGuard`),
	StdRwLockWrite:  regexp.MustCompile(`std::sync::RwLockWriteGuard`),
	ParkingLotWrite: regexp.MustCompile(`(parking_lot|lock_api)::.*RwLockWriteGuard`),
	SpinWrite:       regexp.MustCompile(`spin::.*RwLockWriteGuard`),
}

var builtinAtomicType = regexp.MustCompile(`core::sync::atomic::Atomic|std::sync::atomic::Atomic`)

var builtinChannelType = map[ChannelDirection]*regexp.Regexp{
	ChannelSender:   regexp.MustCompile(`mpsc::Sender|mpsc::SyncSender|crossbeam.*::Sender`),
	ChannelReceiver: regexp.MustCompile(`mpsc::Receiver|crossbeam.*::Receiver`),
}

var builtinRawPointerType = regexp.MustCompile(`\*const |\*mut `)

func userLockPattern(cfg SiteConfig, k LockKind) *regexp.Regexp {
	switch k {
	case StdMutex:
		return cfg.StdMutexLock
	case ParkingLotMutex:
		return cfg.ParkingLotMutexLock
	case SpinMutex:
		return cfg.SpinMutexLock
	case StdRwLockRead:
		return cfg.StdRwLockRead
	case ParkingLotRead:
		return cfg.ParkingLotRead
	case SpinRead:
		return cfg.SpinRead
	case StdRwLockWrite:
		return cfg.StdRwLockWrite
	case ParkingLotWrite:
		return cfg.ParkingLotWrite
	case SpinWrite:
		return cfg.SpinWrite
	default:
		return nil
	}
}

func classifyLockCall(prog *ir.Program, callee ir.DefID, cfg SiteConfig) (LockKind, bool) {
	path := prog.DefPathStr(callee)
	for _, k := range []LockKind{StdMutex, ParkingLotMutex, SpinMutex, StdRwLockRead, ParkingLotRead, SpinRead, StdRwLockWrite, ParkingLotWrite, SpinWrite} {
		if re := builtinLockPatterns[k]; re != nil && re.MatchString(path) {
			return k, true
		}
		if re := userLockPattern(cfg, k); re != nil && re.MatchString(path) {
			return k, true
		}
	}
	return 0, false
}

// CollectLockGuards walks inst's body once, recording every lock-guard
// creation site. A guard is born either by a direct call to a recognized
// lock-acquire API, or -- when GenOnlyByMove is set -- by
// a local whose declared type names a known guard type but which this
// body only ever receives by move (a parameter, or a plain copy/move
// assignment with no acquire call in sight).
func CollectLockGuards(prog *ir.Program, inst *ir.Instance, cfg SiteConfig) []LockGuard {
	body := prog.InstanceMIR(inst)
	byLocal := make(map[int]*LockGuard)
	var order []int

	for bi, bb := range body.Blocks {
		if bb.Term.Kind != ir.TermCall || !bb.Term.Call.HasDest {
			continue
		}
		call := bb.Term.Call
		kind, ok := classifyLockCall(prog, call.Callee, cfg)
		if !ok {
			continue
		}
		local := call.Destination.Local
		g, seen := byLocal[local]
		if !seen {
			g = &LockGuard{
				Alias: ir.AliasID{Instance: inst.Index, Local: local},
				Kind:  kind,
				Span:  bb.Term.Span,
			}
			byLocal[local] = g
			order = append(order, local)
		}
		g.GenLocations = append(g.GenLocations, Point{BB: bi, Stmt: -1})
		if kind == ParkingLotRead {
			g.Recursive = builtinParkingLotReadRecursive.MatchString(prog.DefPathStr(call.Callee))
		}
	}

	// Type-based fallback for guards this body only forwards by move:
	// parameters typed as a guard, or plain copy/move assignments with no
	// matching call-based guard already recorded for that local.
	for local, decl := range body.Locals {
		if _, ok := byLocal[local]; ok {
			continue
		}
		for _, k := range []LockKind{StdMutex, ParkingLotMutex, SpinMutex, StdRwLockRead, ParkingLotRead, SpinRead, StdRwLockWrite, ParkingLotWrite, SpinWrite} {
			if !builtinGuardType[k].MatchString(string(decl.Type)) {
				continue
			}
			if local >= 1 && local <= body.ArgsCount {
				g := &LockGuard{
					Alias:         ir.AliasID{Instance: inst.Index, Local: local},
					Kind:          k,
					GenOnlyByMove: true,
				}
				byLocal[local] = g
				order = append(order, local)
				break
			}
			if pt, ok := firstMoveAssign(body, local); ok {
				g := &LockGuard{
					Alias:         ir.AliasID{Instance: inst.Index, Local: local},
					Kind:          k,
					GenLocations:  []Point{pt},
					GenOnlyByMove: true,
				}
				byLocal[local] = g
				order = append(order, local)
			}
			break
		}
	}

	// Kill-locations: every Drop terminator naming this local.
	for bi, bb := range body.Blocks {
		if bb.Term.Kind != ir.TermDrop {
			continue
		}
		if g, ok := byLocal[bb.Term.DropPlace.Local]; ok {
			g.KillLocations = append(g.KillLocations, Point{BB: bi, Stmt: -1})
		}
	}

	out := make([]LockGuard, 0, len(order))
	for _, local := range order {
		out = append(out, *byLocal[local])
	}
	return out
}

func firstMoveAssign(body *ir.Body, local int) (Point, bool) {
	for bi, bb := range body.Blocks {
		for si, s := range bb.Statements {
			if s.Kind != ir.StmtAssign || s.LHS.Local != local {
				continue
			}
			if s.RHS.Kind == ir.RvUse && s.RHS.Operand.Kind != ir.OperandConstant {
				return Point{BB: bi, Stmt: si}, true
			}
			return Point{}, false
		}
	}
	return Point{}, false
}

// CollectCondvars records every condition-variable allocation site: calls
// to a recognized Condvar-constructor API.
func CollectCondvars(prog *ir.Program, inst *ir.Instance, cfg SiteConfig) []CondvarSite {
	body := prog.InstanceMIR(inst)
	var out []CondvarSite
	re := builtinCondvarNew
	for _, bb := range body.Blocks {
		if bb.Term.Kind != ir.TermCall || !bb.Term.Call.HasDest {
			continue
		}
		path := prog.DefPathStr(bb.Term.Call.Callee)
		if re.MatchString(path) || (cfg.CondvarNew != nil && cfg.CondvarNew.MatchString(path)) {
			out = append(out, CondvarSite{
				Alias: ir.AliasID{Instance: inst.Index, Local: bb.Term.Call.Destination.Local},
				Span:  bb.Term.Span,
			})
		}
	}
	return out
}

// CollectAtomics records every local whose declared type names an atomic
// type. Atomics are most often born as struct fields rather than through
// a constructor call visible in any one function, so detection is
// type-based rather than call-based (unlike locks and condvars).
func CollectAtomics(prog *ir.Program, inst *ir.Instance) []AtomicSite {
	body := prog.InstanceMIR(inst)
	var out []AtomicSite
	for local, decl := range body.Locals {
		if builtinAtomicType.MatchString(string(decl.Type)) {
			out = append(out, AtomicSite{Alias: ir.AliasID{Instance: inst.Index, Local: local}})
		}
	}
	return out
}

// CollectChannelEndpoints records every local whose declared type names a
// channel sender or receiver.
func CollectChannelEndpoints(prog *ir.Program, inst *ir.Instance) []ChannelEndpoint {
	body := prog.InstanceMIR(inst)
	var out []ChannelEndpoint
	for local, decl := range body.Locals {
		for _, dir := range []ChannelDirection{ChannelSender, ChannelReceiver} {
			if builtinChannelType[dir].MatchString(string(decl.Type)) {
				out = append(out, ChannelEndpoint{Alias: ir.AliasID{Instance: inst.Index, Local: local}, Direction: dir})
			}
		}
	}
	return out
}

// CollectUnsafeRegions records every local whose declared type is a raw
// pointer (`*const T` / `*mut T`), the MIR's only direct signal that a
// place is reached through unsafe code rather than the borrow checker.
func CollectUnsafeRegions(prog *ir.Program, inst *ir.Instance) []UnsafeRegionSite {
	body := prog.InstanceMIR(inst)
	var out []UnsafeRegionSite
	for local, decl := range body.Locals {
		if builtinRawPointerType.MatchString(string(decl.Type)) {
			out = append(out, UnsafeRegionSite{Alias: ir.AliasID{Instance: inst.Index, Local: local}})
		}
	}
	return out
}
