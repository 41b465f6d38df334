// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !invariants

package petri

import "fmt"

// PlaceInvariants is unavailable without the invariants build tag: the
// SVD-based null-space extraction pulls in gonum/mat's factorization
// path, which the default build skips.
func (n *Net) PlaceInvariants() ([][]int, error) {
	return nil, fmt.Errorf("petri: built without the invariants tag")
}

// TransitionInvariants is unavailable without the invariants build tag.
func (n *Net) TransitionInvariants() ([][]int, error) {
	return nil, fmt.Errorf("petri: built without the invariants tag")
}
