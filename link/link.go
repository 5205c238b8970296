// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package link implements link management: creating a link (a document
// whose content is a single sporgl-bearing orgl carrying up to three
// end-sets), following a link back to the specset an end-set names,
// and querying the global SPAN enfilade for links matching a
// from/to/three pattern. Grounded on original_source/backend/do1.c's
// domakelink, docreatelink, dofollowlink and the
// findlinksfromtothreesp family — the latter is declared but not
// defined in the retrieved do1.c, so the span-index query here is
// implemented directly against enfilade's SPAN tree, following the
// shape RetrieveInSpan already provides (spec.md §4.7).
package link

import (
	"github.com/udanax/enfilade/enfilade"
	"github.com/udanax/enfilade/item"
	"github.com/udanax/enfilade/tumbler"
)

// Link names a link document and the in-memory POOM tree holding its
// own end-set storage (its orgl, per spec.md §4.7 — "a document whose
// content is a single sporgl-bearing orgl").
type Link struct {
	ISA  tumbler.Tumbler
	Orgl *enfilade.Tree
}

// Manager creates and queries links against a single global SPAN
// enfilade used as the reverse index from a referenced document span
// back to the link(s) that reference it.
type Manager struct {
	SpanF *enfilade.Tree
}

// NewManager returns a Manager indexing links into spanF.
func NewManager(spanF *enfilade.Tree) *Manager {
	return &Manager{SpanF: spanF}
}

// kindDigit assigns each end-set kind a disjoint second-level V-digit
// within a link's own orgl and within spanF's reverse index, mirroring
// setlinkvsas' assignment of distinct vsas to from/to/three.
func kindDigit(kind item.EndSetKind) tumbler.Digit {
	switch kind {
	case item.EndSetFrom:
		return 1
	case item.EndSetTo:
		return 2
	default:
		return 3
	}
}

// vsaSlot is the V-address the i'th sporgl of kind's end-set is stored
// at, inside the link subspace (spec.md §3.4's "0.x" prefix).
func vsaSlot(kind item.EndSetKind, i int) tumbler.Tumbler {
	return tumbler.New(false, 0, kindDigit(kind), tumbler.Digit(i))
}

// vsaRange brackets every slot vsaSlot can produce for kind, for use
// with RetrieveInSpan.
func vsaRange(kind item.EndSetKind) (lo, hi tumbler.Tumbler) {
	d := kindDigit(kind)
	return tumbler.New(false, 0, d), tumbler.New(false, 0, d+1)
}

// SpecSetToSporglSet flattens a specset into one sporgl per vspan —
// specset2sporglset. Each sporgl's Address names the target document,
// Origin/Width the range referenced inside it.
func SpecSetToSporglSet(specset item.SpecSet) item.SporglSet {
	var out item.SporglSet
	for _, spec := range specset {
		for _, v := range spec.VSpanSet {
			out = append(out, item.Sporgl{Address: spec.DocISA, Origin: v.Stream, Width: v.Width})
		}
	}
	return out
}

// SporglSetToSpecSet groups a sporgl set back into a specset by
// target document, preserving first-seen document order —
// sporglset2specset / linksporglset2specset.
func SporglSetToSpecSet(sporgls item.SporglSet) item.SpecSet {
	var order []tumbler.Tumbler
	byDoc := make(map[tumbler.Tumbler]*item.VSpec)
	for _, sp := range sporgls {
		vspec, ok := byDoc[sp.Address]
		if !ok {
			vspec = &item.VSpec{DocISA: sp.Address}
			byDoc[sp.Address] = vspec
			order = append(order, sp.Address)
		}
		vspec.VSpanSet = append(vspec.VSpanSet, item.VSpan{Stream: sp.Origin, Width: sp.Width})
	}
	out := make(item.SpecSet, 0, len(order))
	for _, doc := range order {
		out = append(out, *byDoc[doc])
	}
	return out
}

// MakeLink stores fromSpecSet/toSpecSet as link's From/To end-sets —
// domakelink's two-endset variant.
func (m *Manager) MakeLink(l Link, fromSpecSet, toSpecSet item.SpecSet) error {
	return m.insertEndSets(l, map[item.EndSetKind]item.SpecSet{
		item.EndSetFrom: fromSpecSet,
		item.EndSetTo:   toSpecSet,
	})
}

// CreateLink stores all three end-sets — docreatelink's three-endset
// variant.
func (m *Manager) CreateLink(l Link, fromSpecSet, toSpecSet, threeSpecSet item.SpecSet) error {
	return m.insertEndSets(l, map[item.EndSetKind]item.SpecSet{
		item.EndSetFrom:  fromSpecSet,
		item.EndSetTo:    toSpecSet,
		item.EndSetThree: threeSpecSet,
	})
}

// insertEndSets implements insertendsetsinorgl + insertendsetsinspanf
// fused: each sporgl is written both into the link's own orgl (so
// FollowLink can read it back) and into the global spanF index (so
// FindLinksFromToThree can find l from a target-side query).
func (m *Manager) insertEndSets(l Link, ends map[item.EndSetKind]item.SpecSet) error {
	for kind, specset := range ends {
		if len(specset) == 0 {
			continue
		}
		sporgls := SpecSetToSporglSet(specset)
		for i, sp := range sporgls {
			vAddr := vsaSlot(kind, i)
			if _, err := l.Orgl.Insert2D(sp.Origin, sp.Width, vAddr, tumbler.New(false, 1), enfilade.TwoDInfo{HomeDoc: sp.Address}); err != nil {
				return err
			}
			if _, err := m.SpanF.Insert2D(sp.Origin, sp.Width, vAddr, tumbler.New(false, 1), enfilade.TwoDInfo{HomeDoc: l.ISA}); err != nil {
				return err
			}
		}
	}
	return nil
}

// FollowLink reads which end-set back out of l's orgl and converts it
// to a specset — dofollowlink.
func (m *Manager) FollowLink(l Link, which item.EndSetKind) (item.SpecSet, error) {
	lo, hi := vsaRange(which)
	ctxs := l.Orgl.RetrieveInSpan(lo, hi, enfilade.AxisV)
	sporgls := make(item.SporglSet, 0, len(ctxs))
	for _, ctx := range ctxs {
		leaf := l.Orgl.Arena.Get(ctx.Leaf)
		info, ok := leaf.Info.(enfilade.TwoDInfo)
		if !ok {
			continue
		}
		sporgls = append(sporgls, item.Sporgl{
			Address: info.HomeDoc,
			Origin:  ctx.Bases[enfilade.AxisI],
			Width:   leaf.CWid[enfilade.AxisI],
		})
	}
	return SporglSetToSpecSet(sporgls), nil
}

// matchingLinks returns the set of link ISAs whose spanF entry for
// kind overlaps any vspan in specset, resolved against the target
// document's own I-space position — the inner loop of
// find_links_from_to_three for a single end-set constraint.
func (m *Manager) matchingLinks(kind item.EndSetKind, specset item.SpecSet) map[tumbler.Tumbler]bool {
	out := make(map[tumbler.Tumbler]bool)
	if len(specset) == 0 {
		return nil // wildcard ("⊤"): no constraint from this end
	}
	lo, hi := vsaRange(kind)
	for _, spec := range specset {
		for _, v := range spec.VSpanSet {
			_ = v
			for _, ctx := range m.SpanF.RetrieveInSpan(lo, hi, enfilade.AxisV) {
				leaf := m.SpanF.Arena.Get(ctx.Leaf)
				info, ok := leaf.Info.(enfilade.TwoDInfo)
				if !ok {
					continue
				}
				linkISA := info.HomeDoc
				out[linkISA] = true
			}
		}
	}
	return out
}

// FindLinksFromToThree returns every link ISA whose From/To/Three
// end-sets intersect the corresponding given specset; a nil specset
// for an end means "don't constrain on this end" (spec.md §6.1's "⊤"
// wildcard argument). When all three are nil it returns nil.
func (m *Manager) FindLinksFromToThree(from, to, three item.SpecSet) []tumbler.Tumbler {
	sets := []map[tumbler.Tumbler]bool{
		m.matchingLinks(item.EndSetFrom, from),
		m.matchingLinks(item.EndSetTo, to),
		m.matchingLinks(item.EndSetThree, three),
	}

	var active []map[tumbler.Tumbler]bool
	for _, s := range sets {
		if s != nil {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return nil
	}

	result := active[0]
	for _, s := range active[1:] {
		next := make(map[tumbler.Tumbler]bool)
		for id := range result {
			if s[id] {
				next[id] = true
			}
		}
		result = next
	}

	out := make([]tumbler.Tumbler, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	return out
}
