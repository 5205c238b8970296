// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package enfilade

import "github.com/udanax/enfilade/tumbler"

// Insert2D is the SPAN/POOM counterpart of InsertSequential: it places
// a new leaf carrying width (iWidth, vWidth) at (iAddr, vAddr),
// cutting the host leaf at up to four knife positions (the I-axis and
// V-axis start/end of the new leaf against the host's existing
// interval) so the new leaf's range never overlaps a survivor's, then
// re-wisps every affected ancestor (spec.md §4.3).
func (t *Tree) Insert2D(iAddr, iWidth, vAddr, vWidth tumbler.Tumbler, info LeafInfo) (CrumID, error) {
	ctx, ok := t.Retrieve(iAddr, AxisI)
	var after CrumID
	if !ok {
		if !t.Arena.Get(t.Root).IsLeaf() {
			return NilCrum, errNotFound{iAddr}
		}
		after = t.Root
	} else {
		after = t.cutHostLeaf(ctx, iAddr, iWidth)
	}

	newID, newNode := t.Arena.Alloc()
	newNode.EnfType = t.Type
	newNode.Height = 0
	newNode.CWid[AxisI] = iWidth
	newNode.CWid[AxisV] = vWidth
	newNode.Info = info

	t.insertLeafAfter(after, newID)
	t.Arena.Release(newID)
	return newID, nil
}

// cutHostLeaf splits the host leaf named by ctx so that [iAddr,
// iAddr+iWidth) no longer overlaps any surviving fragment, inserting
// up to two extra sibling leaves (the portion of the host strictly to
// the left, and strictly to the right, of the new interval) and
// returns the CrumID the new leaf should be spliced in after.
func (t *Tree) cutHostLeaf(ctx Context, iAddr, iWidth tumbler.Tumbler) CrumID {
	host := t.Arena.Get(ctx.Leaf)
	hostStart := ctx.Base
	hostEnd := addWid(hostStart, host.CWid[AxisI])
	newEnd := addWid(iAddr, iWidth)

	leftWidth := subWid(iAddr, hostStart)
	rightWidth := subWid(hostEnd, newEnd)

	after := ctx.Leaf
	if leftWidth.IsZero() {
		// new leaf starts exactly at the host's left edge: the host
		// becomes the right remainder in place, and we insert before it.
		if !rightWidth.IsZero() {
			host.CWid[AxisI] = rightWidth
			after = host.LeftBro
		} else {
			// host is consumed entirely; caller inserts in its place,
			// then we drop the host.
			after = host.LeftBro
			t.spliceOutLeaf(ctx.Leaf)
		}
		return after
	}

	// Shrink the host to be the left remainder in place.
	host.CWid[AxisI] = leftWidth
	after = ctx.Leaf

	if !rightWidth.IsZero() {
		rightInfo := host.Info
		rightID, rightNode := t.Arena.Alloc()
		rightNode.EnfType = t.Type
		rightNode.Height = 0
		rightNode.CWid[AxisI] = rightWidth
		rightNode.CWid[AxisV] = host.CWid[AxisV]
		rightNode.Info = rightInfo
		t.insertLeafAfter(ctx.Leaf, rightID)
		t.Arena.Release(rightID)
	}
	return after
}

// spliceOutLeaf removes a leaf from its parent's son list and frees
// it, for callers that immediately insert something in its place. An
// apex leaf (no parent) is left as it is.
func (t *Tree) spliceOutLeaf(id CrumID) {
	n := t.Arena.Get(id)
	parentID := n.Parent
	if parentID == NilCrum {
		return
	}
	parent := t.Arena.Get(parentID)
	parent.Sons = removeSon(parent.Sons, id)
	t.relinkBrothers(parentID)
	t.Arena.Free(id)
}

// RearrangeOp is one (source range, destination range) pair of a
// Rearrange request.
type RearrangeOp struct {
	SrcLower, SrcUpper tumbler.Tumbler
	DstLower           tumbler.Tumbler
}

// Rearrange reorders content by deleting each source leaf and
// reinserting it at its destination, all under the caller's arena, per
// spec.md §4.3 ("implemented as delete + insert under a single
// arena").
func (t *Tree) Rearrange(ops []RearrangeOp) error {
	for _, op := range ops {
		ctxs := t.RetrieveInSpan(op.SrcLower, op.SrcUpper, AxisWidth)
		dst := op.DstLower
		for _, ctx := range ctxs {
			leaf := t.Arena.Get(ctx.Leaf)
			width := leaf.CWid[AxisWidth]
			info := leaf.Info
			if err := t.Delete(ctx.Leaf); err != nil {
				return err
			}
			if _, err := t.InsertSequential(dst, width, info); err != nil {
				return err
			}
			dst = addWid(dst, width)
		}
	}
	return nil
}
