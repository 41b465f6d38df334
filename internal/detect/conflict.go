// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"github.com/aclements/go-concur/internal/alias"
	"github.com/aclements/go-concur/internal/ir"
	"github.com/aclements/go-concur/internal/lattice"
	"github.com/aclements/go-concur/internal/syncinv"
)

// deadlockPossibility combines the conflict matrix on guard kinds with the
// alias confidence between a and b. A pair whose guards do not structurally
// conflict (e.g. two read-locks) is never a deadlock candidate regardless
// of how strongly they alias.
func deadlockPossibility(reg *syncinv.Registry, aliases *alias.Analysis, a, b ir.AliasID) lattice.Approximate {
	ga, ok := reg.Guard(a)
	if !ok {
		return lattice.Unknown
	}
	gb, ok := reg.Guard(b)
	if !ok {
		return lattice.Unknown
	}
	if !ga.ConflictsWith(gb) {
		return lattice.Unknown
	}
	return aliases.Alias(a, b)
}

// sameSourceRecursive reports whether a and b's guards were created at the
// literal same source span: an alias-merge artifact of the same lock()
// call seen from multiple contexts, not a genuine double-lock.
func sameSourceRecursive(reg *syncinv.Registry, a, b ir.AliasID) bool {
	ga, ok := reg.Guard(a)
	if !ok {
		return false
	}
	gb, ok := reg.Guard(b)
	if !ok {
		return false
	}
	return ga.Span == gb.Span
}
