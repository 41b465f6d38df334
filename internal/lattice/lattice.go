// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lattice defines the four-valued approximate alias lattice shared
// by the pointer analysis (internal/alias) and every detector that consumes
// its queries.
package lattice

// Approximate is the totally ordered alias confidence lattice:
// Unknown < Unlikely < Possibly < Probably.
type Approximate int

const (
	Unknown Approximate = iota
	Unlikely
	Possibly
	Probably
)

func (a Approximate) String() string {
	switch a {
	case Unknown:
		return "Unknown"
	case Unlikely:
		return "Unlikely"
	case Possibly:
		return "Possibly"
	case Probably:
		return "Probably"
	default:
		return "Approximate(?)"
	}
}

// Join returns the least upper bound of a and b. Callers merging evidence
// from several independent sources (e.g. several alias queries that each
// support the same conclusion) should Join the results rather than picking
// one arbitrarily.
func Join(a, b Approximate) Approximate {
	if a > b {
		return a
	}
	return b
}

// AtLeast reports whether a is at least as strong as min. This is the
// comparison every detector in internal/detect performs against the
// Possibly threshold.
func (a Approximate) AtLeast(min Approximate) bool {
	return a >= min
}
