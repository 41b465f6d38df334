// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build reset

package petri

// AddResetArc marks p as a reset predecessor of t: firing t zeros p
// unconditionally. Off by default; enabled by this build tag.
func (n *Net) AddResetArc(p, t int) {
	n.reset[arcKey{p, t}] = true
}
