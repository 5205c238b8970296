// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package idset tracks which CrumIDs in an arena are reserved (pinned
// against reaping by an in-flight tree operation), dirty (modified
// since the last flush) and aged-out (eligible for LRU reaping),
// keyed by small dense integer IDs rather than pointers — see
// spec.md §9 "Cyclic and disowned references".
package idset

import "github.com/bits-and-blooms/bitset"

// Set is a growable set of CrumIDs backed by a bitset. The zero value
// is an empty, usable set.
type Set struct {
	bits bitset.BitSet
}

// Add marks id as a member of the set.
func (s *Set) Add(id uint) {
	s.bits.Set(id)
}

// Remove clears id's membership.
func (s *Set) Remove(id uint) {
	s.bits.Clear(id)
}

// Contains reports whether id is a member.
func (s *Set) Contains(id uint) bool {
	return s.bits.Test(id)
}

// Count returns the number of members.
func (s *Set) Count() uint {
	return s.bits.Count()
}

// Each calls fn for every member id in ascending order, stopping early
// if fn returns false.
func (s *Set) Each(fn func(id uint) bool) {
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		if !fn(i) {
			return
		}
	}
}

// Clear empties the set without releasing its backing storage.
func (s *Set) Clear() {
	s.bits.ClearAll()
}
