// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package idset

import "testing"

func TestAddContainsRemove(t *testing.T) {
	var s Set
	s.Add(3)
	s.Add(7)
	if !s.Contains(3) || !s.Contains(7) {
		t.Fatal("expected 3 and 7 to be members")
	}
	if s.Contains(4) {
		t.Fatal("4 should not be a member")
	}
	s.Remove(3)
	if s.Contains(3) {
		t.Fatal("3 should have been removed")
	}
}

func TestCount(t *testing.T) {
	var s Set
	for _, id := range []uint{1, 2, 5, 100} {
		s.Add(id)
	}
	if got := s.Count(); got != 4 {
		t.Fatalf("Count() = %d, want 4", got)
	}
}

func TestEachAscendingAndEarlyStop(t *testing.T) {
	var s Set
	for _, id := range []uint{9, 1, 4} {
		s.Add(id)
	}
	var seen []uint
	s.Each(func(id uint) bool {
		seen = append(seen, id)
		return true
	})
	want := []uint{1, 4, 9}
	if len(seen) != len(want) {
		t.Fatalf("Each visited %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("Each visited %v, want %v", seen, want)
		}
	}

	var stopped []uint
	s.Each(func(id uint) bool {
		stopped = append(stopped, id)
		return false
	})
	if len(stopped) != 1 {
		t.Fatalf("Each should have stopped after first callback, got %v", stopped)
	}
}

func TestClear(t *testing.T) {
	var s Set
	s.Add(1)
	s.Add(2)
	s.Clear()
	if s.Count() != 0 {
		t.Fatalf("Count() after Clear = %d, want 0", s.Count())
	}
}
