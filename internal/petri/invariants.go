// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build invariants

package petri

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PlaceInvariants returns an integer basis for the left null-space of C
// (vectors y with yᵀC = 0), normalized by gcd and sign-fixed on the first
// nonzero component.
func (n *Net) PlaceInvariants() ([][]int, error) {
	return nullSpaceBasis(transpose(n.CMatrix()))
}

// TransitionInvariants returns an integer basis for the null-space of C
// (vectors x with Cx = 0).
func (n *Net) TransitionInvariants() ([][]int, error) {
	return nullSpaceBasis(n.CMatrix())
}

func transpose(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	t := mat.NewDense(c, r, nil)
	t.Copy(a.T())
	return t
}

// nullSpaceBasis extracts an integer basis of ker(a) via SVD: the
// right-singular vectors whose singular value is (numerically) zero span
// the null space.
func nullSpaceBasis(a *mat.Dense) ([][]int, error) {
	rows, cols := a.Dims()
	if rows == 0 || cols == 0 {
		return nil, nil
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, fmt.Errorf("petri: SVD factorization failed")
	}
	vals := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	const tol = 1e-9
	rank := 0
	for _, s := range vals {
		if s > tol {
			rank++
		}
	}

	var basis [][]int
	for j := rank; j < cols; j++ {
		col := make([]float64, cols)
		for i := 0; i < cols; i++ {
			col[i] = v.At(i, j)
		}
		basis = append(basis, normalizeInt(col))
	}
	return basis, nil
}

// normalizeInt converts a floating null-space vector to an integer basis
// vector: scale by the reciprocal of the smallest-magnitude nonzero
// entry, round to the nearest integer, divide through by the gcd of the
// rounded entries, then flip sign so the first nonzero component is
// positive. This is necessarily approximate -- the SVD's null-space
// vectors are only exact up to floating-point tolerance.
func normalizeInt(v []float64) []int {
	minAbs := math.Inf(1)
	for _, x := range v {
		if a := math.Abs(x); a > 1e-9 && a < minAbs {
			minAbs = a
		}
	}
	if math.IsInf(minAbs, 1) {
		return make([]int, len(v))
	}
	scaled := make([]int, len(v))
	for i, x := range v {
		scaled[i] = int(math.Round(x / minAbs))
	}
	g := 0
	for _, x := range scaled {
		g = gcd(g, abs(x))
	}
	if g > 1 {
		for i := range scaled {
			scaled[i] /= g
		}
	}
	for _, x := range scaled {
		if x > 0 {
			break
		}
		if x < 0 {
			for i := range scaled {
				scaled[i] = -scaled[i]
			}
			break
		}
	}
	return scaled
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
