// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package enfilade

// Clone returns a deep copy of the Crum: a fresh Sons slice and, for
// GranText leaves, a fresh Bytes slice, so that mutating the clone
// never aliases the original. This backs the copy-by-reference
// ("transclusion") and create-new-version operations, which need a
// node-sharing copy of a subtree that can subsequently diverge.
func (c *Crum) Clone() *Crum {
	clone := *c
	if len(c.Sons) > 0 {
		clone.Sons = append([]CrumID(nil), c.Sons...)
	}
	if gt, ok := c.Info.(GranText); ok {
		clone.Info = GranText{Bytes: append([]byte(nil), gt.Bytes...)}
	}
	return &clone
}

// CloneSubtree deep-copies the subtree rooted at id into dst's arena,
// allocating fresh CrumIDs throughout and returning the clone's root
// ID. This is the node-level primitive behind transclusion: callers
// assemble the shared-vs-copied distinction (spec.md's "content-
// addressed transclusion") at the orgl/version layer by choosing
// whether to clone or merely reference an existing subtree.
func CloneSubtree(src *Tree, id CrumID, dst *Tree) CrumID {
	n := src.Arena.Get(id)
	newID, newNode := dst.Arena.Alloc()
	*newNode = *n.Clone()
	newNode.Parent = NilCrum
	newNode.LeftBro = NilCrum
	newNode.RightBro = NilCrum

	if !n.IsLeaf() {
		sons := make([]CrumID, len(n.Sons))
		for i, sonID := range n.Sons {
			childID := CloneSubtree(src, sonID, dst)
			dst.Arena.Get(childID).Parent = newID
			sons[i] = childID
		}
		newNode.Sons = sons
		dst.relinkBrothers(newID)
	}
	dst.Arena.Release(newID)
	return newID
}
