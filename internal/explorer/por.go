// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package explorer

import "github.com/aclements/go-concur/internal/petri"

// support returns the set of place indices t reads or writes: its
// preset union its postset. Two transitions with disjoint supports
// cannot affect each other's enabledness or effect, regardless of
// marking.
func support(net *petri.Net, t int) map[int]bool {
	s := make(map[int]bool)
	for _, p := range net.Places() {
		if net.InputWeight(p.Index, t) != 0 || net.OutputWeight(p.Index, t) != 0 {
			s[p.Index] = true
		}
	}
	return s
}

// independent reports whether t1 and t2 have disjoint supports, the
// structural sufficient condition for the persistent-set reduction:
// firing one can never enable, disable, or
// change the effect of firing the other.
func independent(net *petri.Net, t1, t2 int) bool {
	s1 := support(net, t1)
	for p := range support(net, t2) {
		if s1[p] {
			return false
		}
	}
	return true
}

// persistentSet computes a sound approximation of a persistent set at m
// from the full enabled set: start from one enabled
// transition and close the set under "any enabled transition dependent
// on a member must also be a member," so every transition left out is
// guaranteed independent of everything explored from this set.
func persistentSet(net *petri.Net, m petri.Marking, enabled []int) []int {
	if len(enabled) <= 1 {
		return enabled
	}
	inSet := make(map[int]bool)
	inSet[enabled[0]] = true
	for {
		grew := false
		for _, t := range enabled {
			if inSet[t] {
				continue
			}
			for s := range inSet {
				if !independent(net, s, t) {
					inSet[t] = true
					grew = true
					break
				}
			}
		}
		if !grew {
			break
		}
	}
	out := make([]int, 0, len(inSet))
	for _, t := range enabled {
		if inSet[t] {
			out = append(out, t)
		}
	}
	return out
}
