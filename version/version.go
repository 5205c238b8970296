// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package version implements version comparison: given two specsets
// naming versions of (possibly several) documents, it reports the
// spans of text they share a common origin over. Grounded on
// original_source/backend/correspond.c's makespanpairset /
// makespanpairsforispan and do1.c's doshowrelationof2versions.
//
// Only the text subspace (V >= 1.0, "permascroll") has common-origin
// semantics: a link reference's ISA is unique per link and two
// different links can never meaningfully compare, so both specsets
// are filtered to the text subspace before anything else happens
// (spec.md §4.6, §9).
package version

import (
	"github.com/udanax/enfilade/item"
	"github.com/udanax/enfilade/span"
	"github.com/udanax/enfilade/tumbler"
)

// SpanPair is one matched range between two versions: the same
// content identity appears at Stream1 in the first version and
// Stream2 in the second, for Width positions. Stream1/Stream2 are
// doc.vstream concatenations (tumbler.DocIDAndVStream), matching
// makespanpair's use of docidandvstream2tumbler to print a single
// address rather than a (docisa, vspan) pair.
type SpanPair struct {
	Stream1 tumbler.Tumbler
	Stream2 tumbler.Tumbler
	Width   tumbler.Tumbler
}

// ISpanSetConverter resolves a specset to its corresponding ispanset,
// walking each document's orgl to translate vspans into
// content-identity ranges — specset2ispanset. Supplied by the engine,
// which owns the per-document orgls this requires.
type ISpanSetConverter func(specset item.SpecSet) []item.ISpan

// ShowRelationOf2Versions implements doshowrelationof2versions: filter
// both specsets to the text subspace, convert each to an ispanset,
// intersect the two ispansets, then walk the intersection emitting
// span-pairs by stepping in lockstep through each version's vspanset.
func ShowRelationOf2Versions(v1, v2 item.SpecSet, toISpanSet ISpanSetConverter) []SpanPair {
	v1 = v1.FilterToTextSubspace()
	v2 = v2.FilterToTextSubspace()

	i1 := toISpanSet(v1)
	i2 := toISpanSet(v2)
	common := span.Intersect(i1, i2)
	if len(common) == 0 {
		return nil
	}

	c1 := newCursor(v1)
	c2 := newCursor(v2)
	var pairs []SpanPair
	for _, ispan := range common {
		pairs = append(pairs, makeSpanPairsForISpan(ispan.Width, c1, c2)...)
	}
	return pairs
}

// makeSpanPairsForISpan implements makespanpairsforispan: maintain a
// running sum of consumed width; at each step compare the current
// head vspan widths of c1 and c2 against the width still owed for
// this ispan and emit a pair for the narrowest of the three, advancing
// whichever cursor (or both) was fully consumed and trimming the
// others' head vspans by the emitted width. Terminates when sum
// reaches iwidth or either cursor runs dry.
//
// The historical algorithm stepped by min(s1.Width, s2.Width) alone,
// with no third term — fine when a version's vspanset already comes
// pre-fragmented at common-ispan boundaries, but a whole-document
// vspan spanning several ispans makes it emit a pair wider than the
// ispan it was asked for, desynchronizing the cursors for every ispan
// after it. Clamping the step to the remaining iwidth keeps each
// emitted pair inside the ispan that licensed it.
func makeSpanPairsForISpan(iwidth tumbler.Tumbler, c1, c2 *cursor) []SpanPair {
	var pairs []SpanPair
	sum := tumbler.Zero
	for sum.Cmp(iwidth) < 0 {
		doc1, s1, ok1 := c1.peek()
		doc2, s2, ok2 := c2.peek()
		if !ok1 || !ok2 {
			break
		}
		step := s1.Width
		if s2.Width.Cmp(step) < 0 {
			step = s2.Width
		}
		if remaining := tumbler.Sub(iwidth, sum); remaining.Cmp(step) < 0 {
			step = remaining
		}
		pairs = append(pairs, makeSpanPair(doc1, s1.Stream, doc2, s2.Stream, step))
		sum = tumbler.Add(sum, step)
		if s1.Width.Cmp(step) == 0 {
			c1.advance()
		} else {
			c1.trimPrefix(step)
		}
		if s2.Width.Cmp(step) == 0 {
			c2.advance()
		} else {
			c2.trimPrefix(step)
		}
	}
	return pairs
}

func makeSpanPair(doc1 tumbler.Tumbler, start1 tumbler.Tumbler, doc2 tumbler.Tumbler, start2 tumbler.Tumbler, width tumbler.Tumbler) SpanPair {
	return SpanPair{
		Stream1: tumbler.DocIDAndVStream(doc1, start1),
		Stream2: tumbler.DocIDAndVStream(doc2, start2),
		Width:   width,
	}
}

// cursor walks a specset's vspans in document order, letting the
// lockstep merge above consume a prefix of the head vspan without
// mutating the caller's specset (the historical implementation
// threaded a *typespecset through these calls and rewrote ->stream/
// ->width in place; here the cursor owns its own copy of the
// remaining head vspan).
type cursor struct {
	specs   item.SpecSet
	specIdx int
	head    item.VSpan
	hasHead bool
}

func newCursor(specset item.SpecSet) *cursor {
	specs := make(item.SpecSet, len(specset))
	for i, s := range specset {
		specs[i] = s
		specs[i].VSpanSet = append(item.VSpanSet(nil), s.VSpanSet...)
	}
	c := &cursor{specs: specs}
	c.loadHead()
	return c
}

// loadHead seeks forward from specIdx to the next spec with at least
// one vspan, setting head to a copy of it.
func (c *cursor) loadHead() {
	for c.specIdx < len(c.specs) {
		spans := c.specs[c.specIdx].VSpanSet
		if len(spans) > 0 {
			c.head = spans[0]
			c.hasHead = true
			return
		}
		c.specIdx++
	}
	c.hasHead = false
}

// peek returns the owning document's isa and the current head vspan.
func (c *cursor) peek() (tumbler.Tumbler, item.VSpan, bool) {
	if !c.hasHead {
		return tumbler.Zero, item.VSpan{}, false
	}
	return c.specs[c.specIdx].DocISA, c.head, true
}

// advance drops the head vspan entirely and moves to the next one,
// crossing into the next spec if the current one is exhausted.
func (c *cursor) advance() {
	spans := c.specs[c.specIdx].VSpanSet
	rest := spans[1:]
	c.specs[c.specIdx].VSpanSet = rest
	if len(rest) > 0 {
		c.head = rest[0]
		return
	}
	c.specIdx++
	c.loadHead()
}

// trimPrefix shortens the head vspan by w from its front, mirroring
// the original's in-place "span->stream += w; span->width -= w".
func (c *cursor) trimPrefix(w tumbler.Tumbler) {
	c.head.Stream = tumbler.Add(c.head.Stream, w)
	c.head.Width = tumbler.Sub(c.head.Width, w)
	c.specs[c.specIdx].VSpanSet[0] = c.head
}
