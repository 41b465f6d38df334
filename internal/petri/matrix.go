// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package petri

import "gonum.org/v1/gonum/mat"

// CMatrix returns the signed incidence matrix C = post − pre, places by
// transitions.
func (n *Net) CMatrix() *mat.Dense {
	np, nt := len(n.places), len(n.transitions)
	c := mat.NewDense(np, nt, nil)
	for key, w := range n.post {
		c.Set(key.P, key.T, c.At(key.P, key.T)+float64(w))
	}
	for key, w := range n.pre {
		c.Set(key.P, key.T, c.At(key.P, key.T)-float64(w))
	}
	return c
}
