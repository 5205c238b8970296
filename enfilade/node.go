// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package enfilade

import "github.com/udanax/enfilade/tumbler"

// CrumID addresses a node within an Arena's slab. The zero CrumID is
// the nil reference: no valid node is ever assigned ID 0.
type CrumID uint32

// NilCrum is the reference held by edges that point nowhere (a root's
// Parent, a rightmost node's RightBro, and so on).
const NilCrum CrumID = 0

// LeafInfo is the sum type carried by a bottom crum (height == 0);
// the concrete variant is chosen by EnfType and, for GRAN, by whether
// the leaf holds text or an orgl.
type LeafInfo interface {
	leafInfo()
}

// GranText is a GRAN bottom crum holding document content directly.
type GranText struct {
	Bytes []byte
}

func (GranText) leafInfo() {}

// GranOrgl is a GRAN bottom crum whose content is itself a POOM
// version space (spec.md §4.4). OrglRoot is valid only when
// OrglInCore is true; otherwise the orgl must be paged in from
// DiskOrglPtr before use (see package orgl).
type GranOrgl struct {
	OrglRoot   CrumID
	DiskOrglPtr int64
	OrglInCore bool
}

func (GranOrgl) leafInfo() {}

// TwoDInfo is the leaf payload for SPAN and POOM bottom crums: the
// document that owns the span/sporgl stored at this leaf.
type TwoDInfo struct {
	HomeDoc tumbler.Tumbler
}

func (TwoDInfo) leafInfo() {}

// OrglRange is a POOM bottom crum's payload for a document's orgl when
// the orgl is used as the document's V-to-I map (spec.md §3.5, §4.4):
// the document this range belongs to, and the start address of the
// matching range in the shared istream. The leaf's own CWid carries
// the (matching) width on both axes, but only IStart records where in
// the istream the range begins — cutHostLeaf splits a leaf's CWid
// correctly but copies Info verbatim, so a leaf that is itself split
// needs its right half's IStart advanced by hand (see
// docState.insertContent/deleteRange in package engine, which delete
// and manually reinsert a split leaf's pieces rather than trusting the
// generic 2-D cut to do it).
type OrglRange struct {
	HomeDoc tumbler.Tumbler
	IStart  tumbler.Tumbler
}

func (OrglRange) leafInfo() {}

// Crum is a single enfilade tree node. Internal-only and leaf-only
// fields are both present on the struct (Go has no variant-sized
// structs); Height == 0 selects which half is meaningful, matching
// the "polymorphic node layout" guidance in spec.md §9. Sons is
// non-empty only for an internal crum; Info is non-nil only for a leaf.
type Crum struct {
	EnfType EnfType
	Height  int
	IsApex  bool
	Modified bool
	Age     int

	Parent   CrumID
	LeftBro  CrumID
	RightBro CrumID
	Leftmost bool

	CWid Label
	CDsp Label

	// Internal (cuc) fields.
	Sons      []CrumID
	SonOrigin int64 // on-disk block pointer when Sons is paged out

	// Leaf (cbc) fields.
	Info LeafInfo
}

// IsLeaf reports whether c is a bottom crum (cbc).
func (c *Crum) IsLeaf() bool { return c.Height == 0 }

// reset clears c back to its zero value while retaining the slices'
// backing storage, mirroring the teacher's pool node reset.
func (c *Crum) reset() {
	sons := c.Sons[:0]
	*c = Crum{Sons: sons}
}
