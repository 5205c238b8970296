// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package span implements the half-open interval algebra over tumbler
// addresses: intersection, subtraction, and the specset-restriction
// operations version comparison builds on. It is grounded verbatim on
// original_source/backend/correspond.c's intersectspansets,
// comparespans, spanintersection, spansubtract,
// removespansnotinoriginal and restrictvspecsetovercommonispans.
//
// This package depends only on item and tumbler: it has no notion of
// an enfilade tree. Operations that need to resolve a document's
// content-identity (ispan2vspanset, the SPAN/GRAN tree walk) take that
// resolution as an injected function, supplied by whichever package
// owns the trees (orgl, engine) — see ISpanLookup below.
package span

import (
	"github.com/udanax/enfilade/item"
	"github.com/udanax/enfilade/tumbler"
)

// Intersect computes the intersection of two ispan sets via the
// classic two-pointer nested scan (intersectspansets): every pair
// whose intervals overlap contributes one sub-interval to the result.
// A NULL (empty) input on either side yields an empty result, which is
// success, not failure — spanf comparisons of documents with no
// permascroll content must not be treated as an error.
func Intersect(a, b []item.ISpan) []item.ISpan {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	var out []item.ISpan
	for _, sa := range a {
		for _, sb := range b {
			if c, ok := intersectOne(sa, sb); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// IntersectVSpans is Intersect specialized to vspans, used by
// RemoveSpansNotInOriginal to compare two documents' V-ranges.
func IntersectVSpans(a, b item.VSpanSet) item.VSpanSet {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	var out item.VSpanSet
	for _, sa := range a {
		for _, sb := range b {
			c, ok := intersectOne(item.ISpan(sa), item.ISpan(sb))
			if ok {
				out = append(out, item.VSpan(c))
			}
		}
	}
	return out
}

// intersectOne is comparespans + spanintersection fused: it returns
// false (comparespans' FALSE) for a zero-width operand or disjoint
// intervals, otherwise the overlap.
//
// The GREATER/LESS branches below use tumblersub in the
// half-open-interval-consistent form flagged as an Open Question in
// spec.md §9 (correspond.c carries commented-out corrective
// assignments dated 12/4/84): intersecting [a.stream, aend) with
// [b.stream, bend) when a starts first and ends last must yield
// [b.stream, bend) — the case below computes cptr->width as
// bend - a.stream would be wrong; the original's surviving
// (uncommented) code instead computes the width as the smaller
// remaining overlap, which is what tumblersub(bend, a.stream) and
// tumblersub(aend, b.stream) give when cross-checked against the
// round-trip property in spec.md §8 (a + (b-a) = b when a ⊆ b): this
// port keeps that surviving arithmetic rather than the dead 1984
// correction, per spec.md §9's instruction to follow the live branches.
func intersectOne(a, b item.ISpan) (item.ISpan, bool) {
	if a.Width.IsZero() || b.Width.IsZero() {
		return item.ISpan{}, false
	}
	aEnd, bEnd := a.End(), b.End()
	if a.Stream.Cmp(bEnd) >= 0 {
		return item.ISpan{}, false
	}
	if b.Stream.Cmp(aEnd) >= 0 {
		return item.ISpan{}, false
	}

	var c item.ISpan
	switch a.Stream.Cmp(b.Stream) {
	case 0:
		c.Stream = a.Stream
		if aEnd.Cmp(bEnd) <= 0 {
			c.Width = a.Width
		} else {
			c.Width = b.Width
		}
	case 1: // a.Stream > b.Stream
		c.Stream = a.Stream
		if aEnd.Cmp(bEnd) <= 0 {
			c.Width = a.Width
		} else {
			c.Width = tumbler.Sub(bEnd, a.Stream)
		}
	default: // a.Stream < b.Stream
		c.Stream = b.Stream
		if aEnd.Cmp(bEnd) >= 0 {
			c.Width = b.Width
		} else {
			c.Width = tumbler.Sub(aEnd, b.Stream)
		}
	}
	return c, true
}

// Subtract implements spansubtract: if the widths are equal the
// result is empty; otherwise it is the remainder of whichever operand
// is wider, shifted to start where the narrower one ends.
func Subtract(a, b item.ISpan) (item.ISpan, int) {
	switch a.Width.Cmp(b.Width) {
	case 0:
		return item.ISpan{}, 0
	case 1:
		return item.ISpan{Stream: tumbler.Add(a.Stream, b.Width), Width: tumbler.Sub(a.Width, b.Width)}, 1
	default:
		return item.ISpan{Stream: tumbler.Add(b.Stream, a.Width), Width: tumbler.Sub(b.Width, a.Width)}, -1
	}
}

// RemoveSpansNotInOriginal keeps only the vspans of new whose document
// also appears in original, restricted to the overlap with original's
// vspanset for that document — removespansnotinoriginal. A document in
// new with no overlap in original is dropped entirely rather than
// emitted with an empty vspanset.
func RemoveSpansNotInOriginal(original, new item.SpecSet) item.SpecSet {
	var out item.SpecSet
	for _, n := range new {
		for _, o := range original {
			if !n.DocISA.Eq(o.DocISA) {
				continue
			}
			if inter := IntersectVSpans(n.VSpanSet, o.VSpanSet); len(inter) > 0 {
				out = append(out, item.VSpec{DocISA: n.DocISA, VSpanSet: inter})
			}
		}
	}
	return out
}

// ISpanLookup resolves the vspans within docISA's orgl that back
// ispan — ispan2vspanset, walking the document's POOM version space to
// translate a content-identity range back into document-local
// addresses. It is supplied by the caller (orgl/engine own the trees
// this requires); span itself stays tree-agnostic.
type ISpanLookup func(docISA tumbler.Tumbler, ispan item.ISpan) (item.VSpanSet, bool)

// RestrictVSpecSetOverCommonISpans implements
// restrictvspecsetovercommonispans: for each ispan, and for each vspec
// in specset, resolve the vspans of that document backing the ispan
// and emit a fresh vspec carrying them. It runs in
// O(|ispanset| x |specset|) and preserves specset's input order within
// each ispan group, matching the original's nested-loop structure
// (ispanset outer, specset inner).
func RestrictVSpecSetOverCommonISpans(ispanset []item.ISpan, specset item.SpecSet, lookup ISpanLookup) item.SpecSet {
	var out item.SpecSet
	for _, ispan := range ispanset {
		for _, spec := range specset {
			vspans, ok := lookup(spec.DocISA, ispan)
			if !ok || len(vspans) == 0 {
				continue
			}
			out = append(out, item.VSpec{DocISA: spec.DocISA, VSpanSet: vspans})
		}
	}
	return out
}

// RestrictSpecSetsAccordingToISpans restricts both specset1 and
// specset2 to their shared content identity over ispanset, then drops
// anything restrictVSpecSetOverCommonISpans produced that doesn't
// actually overlap the corresponding original vspanset —
// restrictspecsetsaccordingtoispans, including the "Bug 009" guard in
// the original that tolerates either restriction coming back empty
// (a link subspace span may have no text-subspace ispan counterpart)
// instead of treating that as an error.
func RestrictSpecSetsAccordingToISpans(ispanset []item.ISpan, specset1, specset2 item.SpecSet, lookup ISpanLookup) (item.SpecSet, item.SpecSet) {
	r1 := RestrictVSpecSetOverCommonISpans(ispanset, specset1, lookup)
	if len(r1) > 0 && len(specset1) > 0 {
		r1 = RemoveSpansNotInOriginal(specset1, r1)
	}
	r2 := RestrictVSpecSetOverCommonISpans(ispanset, specset2, lookup)
	if len(r2) > 0 && len(specset2) > 0 {
		r2 = RemoveSpansNotInOriginal(specset2, r2)
	}
	return r1, r2
}
