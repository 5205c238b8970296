// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package item implements the tagged value types that flow between the
// wire protocol and the enfilade engine: spans, vspecs, text, links,
// sporgls and bare addresses. The historical C implementation used one
// struct (typeitem) with an itemid discriminator and a next pointer
// shared by every variant; here each kind is its own Go type and the
// list shape (next) is kept out of the item itself, matching the
// REDESIGN FLAGS guidance to turn an untagged union into a sum type.
package item

import "github.com/udanax/enfilade/tumbler"

// Kind identifies which concrete item variant a Value holds.
type Kind int

const (
	KindISpan Kind = iota
	KindVSpan
	KindVSpec
	KindText
	KindLink
	KindSporgl
	KindAddress
)

func (k Kind) String() string {
	switch k {
	case KindISpan:
		return "ispan"
	case KindVSpan:
		return "vspan"
	case KindVSpec:
		return "vspec"
	case KindText:
		return "text"
	case KindLink:
		return "link"
	case KindSporgl:
		return "sporgl"
	case KindAddress:
		return "address"
	default:
		return "unknown"
	}
}

// Value is the sum type every item kind implements. It exists so that
// code which must handle "some item, whichever kind" (list walking,
// wire encode/decode) can do so without a type switch at every call
// site; callers that know the concrete kind use it directly.
type Value interface {
	Kind() Kind
}

// Span is a half-open interval [Stream, Stream+Width) over tumbler
// addresses. It underlies both ispan (I-space identity ranges) and
// vspan (V-space document ranges); the two are distinguished only by
// which axis the stream addresses, so one Go type serves both roles
// and the caller's context (I or V) determines meaning, per spec.md §3.2.
type Span struct {
	Stream tumbler.Tumbler
	Width  tumbler.Tumbler
}

// ISpan is a Span interpreted as an I-space (content-identity) range.
type ISpan Span

func (ISpan) Kind() Kind { return KindISpan }

// End returns the exclusive upper bound of the interval.
func (s ISpan) End() tumbler.Tumbler { return tumbler.Add(s.Stream, s.Width) }

// VSpan is a Span interpreted as a V-space (document-local) range.
type VSpan Span

func (VSpan) Kind() Kind { return KindVSpan }

// End returns the exclusive upper bound of the interval.
func (s VSpan) End() tumbler.Tumbler { return tumbler.Add(s.Stream, s.Width) }

// InTextSubspace reports whether s lies entirely at or above the 1.0
// boundary that separates link metadata (0.x) from permascroll content
// (>= 1.x), per spec.md §3.4.
func (s VSpan) InTextSubspace() bool {
	boundary := tumbler.New(false, 1)
	return s.Stream.Cmp(boundary) >= 0
}

// VSpanSet is an ordered list of vspans, e.g. the V-ranges owned by a
// single document inside a VSpec.
type VSpanSet []VSpan

// Width sums the widths of every vspan in the set.
func (vs VSpanSet) Width() tumbler.Tumbler {
	w := tumbler.Zero
	for _, v := range vs {
		w = tumbler.Add(w, v.Width)
	}
	return w
}

// FilterToTextSubspace drops any vspan whose stream is below 1.0,
// mirroring filter_vspanset_to_text_subspace (spec.md §4.6).
func (vs VSpanSet) FilterToTextSubspace() VSpanSet {
	out := make(VSpanSet, 0, len(vs))
	for _, v := range vs {
		if v.InTextSubspace() {
			out = append(out, v)
		}
	}
	return out
}

// VSpec pairs a document's isa with the V-ranges inside it that a
// specset entry refers to.
type VSpec struct {
	DocISA   tumbler.Tumbler
	VSpanSet VSpanSet
}

func (VSpec) Kind() Kind { return KindVSpec }

// SpecSet is an ordered list of vspecs, one per document, spanning one
// or more documents.
type SpecSet []VSpec

// FilterToTextSubspace returns a SpecSet with every vspec's vspanset
// restricted to the text subspace; vspecs left with no vspans are
// dropped, mirroring filter_specset_to_text_subspace.
func (ss SpecSet) FilterToTextSubspace() SpecSet {
	out := make(SpecSet, 0, len(ss))
	for _, spec := range ss {
		filtered := spec.VSpanSet.FilterToTextSubspace()
		if len(filtered) == 0 {
			continue
		}
		out = append(out, VSpec{DocISA: spec.DocISA, VSpanSet: filtered})
	}
	return out
}

// Text is a byte-sequence item: length plus payload. Per spec.md's
// explicit Non-goal, text is treated as an opaque byte sequence with
// no Unicode-aware handling.
type Text struct {
	Bytes []byte
}

func (Text) Kind() Kind { return KindText }

// Len returns the text's length in bytes.
func (t Text) Len() int { return len(t.Bytes) }

// Link is an item that names a link document's isa.
type Link struct {
	ISA tumbler.Tumbler
}

func (Link) Kind() Kind { return KindLink }

// Sporgl is a packed 2-D reference — (address, origin, width) — used
// to store link end-sets inside an orgl.
type Sporgl struct {
	Address tumbler.Tumbler
	Origin  tumbler.Tumbler
	Width   tumbler.Tumbler
}

func (Sporgl) Kind() Kind { return KindSporgl }

// SporglSet is an ordered list of sporgls, e.g. one link end-set.
type SporglSet []Sporgl

// Address is a bare tumbler item, e.g. a document or account isa
// carried as a standalone wire item.
type Address struct {
	Tumbler tumbler.Tumbler
}

func (Address) Kind() Kind { return KindAddress }

// EndSetKind distinguishes a link's three end-sets.
type EndSetKind int

const (
	EndSetFrom EndSetKind = iota
	EndSetTo
	EndSetThree
)

func (k EndSetKind) String() string {
	switch k {
	case EndSetFrom:
		return "from"
	case EndSetTo:
		return "to"
	case EndSetThree:
		return "three"
	default:
		return "unknown"
	}
}
