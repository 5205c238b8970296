// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package enfilade implements the coupled labelled-tree storage engine
// shared by the three enfilade types: GRAN (1-D document content /
// address space), SPAN (2-D global span-by-content index) and POOM
// (2-D per-document version space). A node is called a "crum"; an
// internal crum is a "cuc", a leaf crum a "cbc" — terms kept from the
// historical implementation because they are used throughout
// spec.md and the wire DUMPSTATE format.
//
// Nodes are never referenced by pointer. Every edge (parent, left-bro,
// right-bro, leftson, sons) is a CrumID: a stable index into an
// Arena's slab. This sidesteps the "cyclic and disowned references"
// note in spec.md §9 — a node being reparented mid-operation is simply
// a CrumID being rewritten in its new parent's Sons slice, never a
// dangling pointer.
package enfilade

import "github.com/udanax/enfilade/tumbler"

// EnfType names which of the three enfilade types a tree belongs to.
type EnfType int

const (
	GRAN EnfType = iota
	SPAN
	POOM
)

func (e EnfType) String() string {
	switch e {
	case GRAN:
		return "GRAN"
	case SPAN:
		return "SPAN"
	case POOM:
		return "POOM"
	default:
		return "UNKNOWN"
	}
}

// Axis indexes into a Wid/Dsp vector.
type Axis int

// AxisWidth and AxisI alias the same slot (0): a given Tree is either
// GRAN (1-D, uses only AxisWidth) or SPAN/POOM (2-D, uses AxisI and
// AxisV), never both, so the two uses never collide over a Label's
// two slots.
const (
	AxisWidth Axis = 0 // GRAN's only axis
	AxisI     Axis = 0 // SPAN/POOM first axis
	AxisV     Axis = 1 // SPAN/POOM second axis
)

// WidSize returns the number of axes a node of enfilade type e carries
// width/displacement labels for: 1 for GRAN, 2 for SPAN and POOM.
func WidSize(e EnfType) int {
	if e == GRAN {
		return 1
	}
	return 2
}

// Label is a fixed two-slot vector of tumblers; GRAN trees use only
// slot 0. It backs both cwid (cumulative width) and cdsp (displacement
// from the parent's base).
type Label [2]tumbler.Tumbler

// Age values used by the arena's reaper. RESERVED pins a node against
// reaping while a tree operation has it live.
const (
	AgeReserved = -1
	AgeFresh    = 0
)

// nextAge returns an age that is older than a, for LRU comparisons, or a
// itself if already at the reserved sentinel.
func nextAge(a int) int {
	if a == AgeReserved {
		return AgeReserved
	}
	return a + 1
}
