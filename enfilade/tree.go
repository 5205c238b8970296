// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package enfilade

import "github.com/udanax/enfilade/tumbler"

// Branching limits. MaxSons triggers a split on insert; MinSons is the
// low-water mark that triggers a recombine on delete. These play the
// role of the historical implementation's compiled-in crum capacity.
const (
	MaxSons = 8
	MinSons = 3
)

// Tree is one of the three enfilade types: a root CrumID plus the
// arena that owns every node reachable from it.
type Tree struct {
	Type  EnfType
	Arena *Arena
	Root  CrumID
}

// NewTree allocates an empty tree: a single apex leaf with zero width.
func NewTree(t EnfType) *Tree {
	a := NewArena()
	id, n := a.Alloc()
	n.EnfType = t
	n.Height = 0
	n.IsApex = true
	n.Leftmost = true
	a.Release(id)
	return &Tree{Type: t, Arena: a, Root: id}
}

// Context is the result of a retrieval: the bottom crum reached, the
// cumulative offset of its start along the query axis, the offset of
// the query address within it, and where the address landed relative
// to the leaf's interval. Bases carries the cumulative offset along
// every axis the tree's EnfType has (both I and V for SPAN/POOM), not
// just the one queried, so 2-D callers (package link's end-set
// lookups) can recover a leaf's full (I, V) position from a query
// along a single axis.
type Context struct {
	Leaf     CrumID
	Base     tumbler.Tumbler
	Bases    Label
	Offset   tumbler.Tumbler
	Position tumbler.IntervalPosition
}

// Retrieve walks from the root choosing, at each internal node, the
// child whose cumulative axis width covers addr, accumulating
// totaloffset as it goes (spec.md §4.2). It reports false if the tree
// is narrower than addr ("walked off the tree").
func (t *Tree) Retrieve(addr tumbler.Tumbler, axis Axis) (Context, bool) {
	id := t.Root
	var bases Label
	for {
		n := t.Arena.Get(id)
		end := addWid(bases[axis], n.CWid[axis])
		pos := tumbler.IntervalCmp(bases[axis], end, addr)
		if pos == tumbler.ToMyRight {
			return Context{}, false
		}
		if n.IsLeaf() {
			return Context{Leaf: id, Base: bases[axis], Bases: bases, Offset: subWid(addr, bases[axis]), Position: pos}, true
		}
		var ok bool
		bases, id, ok = t.descend(n, bases, addr, axis)
		if !ok {
			return Context{}, false
		}
	}
}

// descend picks the son of n covering addr along axis, returning the
// son's per-axis bases and ID.
func (t *Tree) descend(n *Crum, bases Label, addr tumbler.Tumbler, axis Axis) (Label, CrumID, bool) {
	wsize := WidSize(n.EnfType)
	for _, sonID := range n.Sons {
		son := t.Arena.Get(sonID)
		end := addWid(bases[axis], son.CWid[axis])
		pos := tumbler.IntervalCmp(bases[axis], end, addr)
		if pos != tumbler.ToMyRight {
			return bases, sonID, true
		}
		for i := 0; i < wsize; i++ {
			bases[i] = addWid(bases[i], son.CWid[i])
		}
	}
	return bases, NilCrum, false
}

// RetrieveInSpan returns the ordered contexts of every leaf
// overlapping the half-open interval [lower, upper) along axis.
func (t *Tree) RetrieveInSpan(lower, upper tumbler.Tumbler, axis Axis) []Context {
	var out []Context
	var bases Label
	t.collectInSpan(t.Root, bases, lower, upper, axis, &out)
	return out
}

func (t *Tree) collectInSpan(id CrumID, bases Label, lower, upper tumbler.Tumbler, axis Axis, out *[]Context) {
	n := t.Arena.Get(id)
	base := bases[axis]
	end := addWid(base, n.CWid[axis])
	if end.Cmp(lower) <= 0 || base.Cmp(upper) >= 0 {
		return
	}
	if n.IsLeaf() {
		pos := tumbler.IntervalCmp(lower, upper, base)
		*out = append(*out, Context{Leaf: id, Base: base, Bases: bases, Offset: subWid(base, lower), Position: pos})
		return
	}
	wsize := WidSize(n.EnfType)
	sonBases := bases
	for _, sonID := range n.Sons {
		son := t.Arena.Get(sonID)
		t.collectInSpan(sonID, sonBases, lower, upper, axis, out)
		for i := 0; i < wsize; i++ {
			sonBases[i] = addWid(sonBases[i], son.CWid[i])
		}
	}
}

// SetWispUpwards recomputes id's cwid from its children (if internal)
// and propagates the recomputed label to the root, stopping as soon as
// a node's label doesn't change — the "didntchangewisps" optimisation
// guard from spec.md §4.3.
func (t *Tree) SetWispUpwards(id CrumID) {
	for id != NilCrum {
		n := t.Arena.Get(id)
		old := n.CWid
		if !n.IsLeaf() {
			wsize := WidSize(n.EnfType)
			var sum Label
			for i := 0; i < wsize; i++ {
				sum[i] = zeroWid()
			}
			for _, sonID := range n.Sons {
				son := t.Arena.Get(sonID)
				for i := 0; i < wsize; i++ {
					sum[i] = addWid(sum[i], son.CWid[i])
				}
			}
			n.CWid = sum
		}
		n.Modified = true
		t.Arena.MarkDirty(id)
		if didntChangeWisps(old, n.CWid, WidSize(n.EnfType)) {
			return
		}
		id = n.Parent
	}
}

func didntChangeWisps(a, b Label, wsize int) bool {
	for i := 0; i < wsize; i++ {
		if !eqWid(a[i], b[i]) {
			return false
		}
	}
	return true
}

// InsertSequential implements the GRAN sequential-insert path: it
// finds the leaf at addr, splits its parent if that parent is already
// at the branching limit, then inserts a new leaf of the given width
// immediately to the right of the retrieval point.
func (t *Tree) InsertSequential(addr tumbler.Tumbler, width tumbler.Tumbler, info LeafInfo) (CrumID, error) {
	ctx, ok := t.Retrieve(addr, AxisWidth)
	if !ok && !t.Arena.Get(t.Root).IsLeaf() {
		return NilCrum, errNotFound{addr}
	}

	newID, newNode := t.Arena.Alloc()
	newNode.EnfType = t.Type
	newNode.Height = 0
	newNode.CWid[AxisWidth] = width
	newNode.Info = info

	var after CrumID
	if ok {
		after = ctx.Leaf
	} else {
		after = t.Root
	}
	t.insertLeafAfter(after, newID)
	t.Arena.Release(newID)
	return newID, nil
}

// insertLeafAfter splices newID into after's parent's son list directly
// following after, splitting the parent first if it is already at the
// branching limit.
func (t *Tree) insertLeafAfter(after, newID CrumID) {
	afterNode := t.Arena.Get(after)
	parentID := afterNode.Parent
	if parentID == NilCrum {
		// after is the apex: promote it to a new internal root with
		// after and newID as its only two sons.
		t.promoteToRoot(after, newID)
		return
	}
	parent := t.Arena.Get(parentID)
	if len(parent.Sons) >= MaxSons {
		t.split(parentID)
		parent = t.Arena.Get(parentID)
		afterNode = t.Arena.Get(after)
		parentID = afterNode.Parent
		parent = t.Arena.Get(parentID)
	}
	t.spliceSonAfter(parentID, after, newID)
	t.relinkBrothers(parentID)
	t.SetWispUpwards(parentID)
}

// promoteToRoot replaces the tree's single-leaf root with a fresh
// internal apex carrying left and right as its two sons.
func (t *Tree) promoteToRoot(left, right CrumID) {
	oldRoot := t.Arena.Get(t.Root)
	newID, newNode := t.Arena.Alloc()
	newNode.EnfType = t.Type
	newNode.Height = oldRoot.Height + 1
	newNode.IsApex = true
	newNode.Leftmost = true
	newNode.Sons = []CrumID{left, right}

	oldRoot.IsApex = false
	oldRoot.Parent = newID
	oldRoot.Leftmost = true
	rightNode := t.Arena.Get(right)
	rightNode.Parent = newID
	rightNode.Leftmost = false

	t.Root = newID
	t.relinkBrothers(newID)
	t.Arena.Release(newID)
	t.SetWispUpwards(newID)
}

// spliceSonAfter inserts son immediately after "after" in parentID's
// Sons list, setting son's Parent.
func (t *Tree) spliceSonAfter(parentID, after, son CrumID) {
	parent := t.Arena.Get(parentID)
	sonNode := t.Arena.Get(son)
	sonNode.Parent = parentID

	idx := len(parent.Sons)
	for i, s := range parent.Sons {
		if s == after {
			idx = i + 1
			break
		}
	}
	parent.Sons = append(parent.Sons, NilCrum)
	copy(parent.Sons[idx+1:], parent.Sons[idx:])
	parent.Sons[idx] = son
}

// relinkBrothers recomputes LeftBro/RightBro/Leftmost across
// parentID's direct sons after a splice.
func (t *Tree) relinkBrothers(parentID CrumID) {
	parent := t.Arena.Get(parentID)
	var prev CrumID
	for i, sonID := range parent.Sons {
		son := t.Arena.Get(sonID)
		son.Leftmost = i == 0
		son.LeftBro = prev
		if prev != NilCrum {
			t.Arena.Get(prev).RightBro = sonID
		}
		prev = sonID
	}
	if prev != NilCrum {
		t.Arena.Get(prev).RightBro = NilCrum
	}
}

// split breaks id's son list in half, creating a new right-hand
// sibling and reinserting it into id's parent (recursing upward if
// that parent is itself full), mirroring the generic B-tree-variant
// rebalance spec.md §4.3 calls for.
func (t *Tree) split(id CrumID) {
	n := t.Arena.Get(id)
	mid := len(n.Sons) / 2
	rightSons := append([]CrumID(nil), n.Sons[mid:]...)
	n.Sons = n.Sons[:mid]

	newID, newNode := t.Arena.Alloc()
	newNode.EnfType = n.EnfType
	newNode.Height = n.Height
	newNode.Sons = rightSons
	for _, s := range rightSons {
		t.Arena.Get(s).Parent = newID
	}
	// Both halves now cover fewer sons: recompute their cwids.
	t.SetWispUpwards(newID)
	t.SetWispUpwards(id)

	parentID := n.Parent
	if parentID == NilCrum {
		t.promoteToRoot(id, newID)
		t.Arena.Release(newID)
		return
	}
	parent := t.Arena.Get(parentID)
	if len(parent.Sons) >= MaxSons {
		t.split(parentID)
		n = t.Arena.Get(id)
		parentID = n.Parent
	}
	t.spliceSonAfter(parentID, id, newID)
	t.relinkBrothers(parentID)
	t.Arena.Release(newID)
	t.SetWispUpwards(parentID)
}

// Delete removes the leaf at id from the tree, recombining its parent
// if the removal drops it below MinSons.
func (t *Tree) Delete(id CrumID) error {
	n := t.Arena.Get(id)
	if !n.IsLeaf() {
		return errNotLeaf{id}
	}
	parentID := n.Parent
	if parentID == NilCrum {
		// sole remaining leaf: reset it to empty content in place.
		n.CWid = Label{}
		n.Info = nil
		return nil
	}
	parent := t.Arena.Get(parentID)
	parent.Sons = removeSon(parent.Sons, id)
	t.relinkBrothers(parentID)
	t.Arena.Free(id)

	if len(parent.Sons) == 0 {
		t.Delete(parentID) // parent became an empty internal node
	} else if len(parent.Sons) < MinSons && parent.Parent != NilCrum {
		t.recombine(parentID)
	}
	t.SetWispUpwards(parentID)
	return nil
}

func removeSon(sons []CrumID, target CrumID) []CrumID {
	out := sons[:0]
	for _, s := range sons {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// recombine merges id into a brother when id's son count has dropped
// below MinSons, mirroring the low-water-mark coalesce spec.md §4.3
// describes as the counterpart to split.
func (t *Tree) recombine(id CrumID) {
	n := t.Arena.Get(id)
	parentID := n.Parent
	if parentID == NilCrum {
		return
	}
	parent := t.Arena.Get(parentID)

	var donor CrumID
	if n.LeftBro != NilCrum {
		donor = n.LeftBro
	} else if n.RightBro != NilCrum {
		donor = n.RightBro
	} else {
		return
	}
	donorNode := t.Arena.Get(donor)
	if len(donorNode.Sons)+len(n.Sons) > MaxSons {
		return // merging would overflow; leave the under-full node as is
	}

	var merged []CrumID
	if n.LeftBro == donor {
		merged = append(append([]CrumID(nil), donorNode.Sons...), n.Sons...)
	} else {
		merged = append(append([]CrumID(nil), n.Sons...), donorNode.Sons...)
	}
	for _, s := range merged {
		t.Arena.Get(s).Parent = id
	}
	n.Sons = merged
	parent.Sons = removeSon(parent.Sons, donor)
	t.relinkBrothers(parentID)
	t.Arena.Free(donor)

	if len(parent.Sons) < MinSons && parent.Parent != NilCrum {
		t.recombine(parentID)
	}
}

type errNotFound struct{ addr tumbler.Tumbler }

func (e errNotFound) Error() string { return "enfilade: address not found: " + e.addr.String() }

type errNotLeaf struct{ id CrumID }

func (e errNotLeaf) Error() string { return "enfilade: crum is not a leaf" }
