// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build inhibitor

package petri

// AddInhibitorArc marks p as an inhibitor predecessor of t: t is not
// enabled while p holds at least pre[p,t] tokens. Off by default;
// enabled by this build tag.
func (n *Net) AddInhibitorArc(p, t int) {
	n.inhibitor[arcKey{p, t}] = true
}
