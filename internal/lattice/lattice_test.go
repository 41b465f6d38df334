// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lattice

import "testing"

func TestJoin(t *testing.T) {
	tests := []struct {
		a, b, want Approximate
	}{
		{Unknown, Unknown, Unknown},
		{Unknown, Probably, Probably},
		{Possibly, Unlikely, Possibly},
		{Probably, Probably, Probably},
	}
	for _, tc := range tests {
		if got := Join(tc.a, tc.b); got != tc.want {
			t.Errorf("Join(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
		if got := Join(tc.b, tc.a); got != tc.want {
			t.Errorf("Join(%v, %v) = %v, want %v (not commutative)", tc.b, tc.a, got, tc.want)
		}
	}
}

func TestAtLeast(t *testing.T) {
	if !Probably.AtLeast(Possibly) {
		t.Error("Probably should be at least Possibly")
	}
	if Unlikely.AtLeast(Possibly) {
		t.Error("Unlikely should not be at least Possibly")
	}
	if !Unknown.AtLeast(Unknown) {
		t.Error("a value should always be at least itself")
	}
}
