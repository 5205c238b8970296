// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package enfilade

import (
	"fmt"

	"github.com/pkg/errors"
)

// Invariant is the typed panic value raised when the tree (or a
// tumbler inside it) is found in an impossible state: a wid mismatch,
// a null orgl with no disk pointer, a non-root apex, and so on. Per
// spec.md §7 this is not an expected failure and is never turned into
// a bool-false return: it is raised with panic, and nothing in this
// module recovers it, so it propagates out of the request that hit it.
type Invariant struct {
	Msg   string
	Cause error
}

func (e Invariant) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("enfilade: invariant violated: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("enfilade: invariant violated: %s", e.Msg)
}

func (e Invariant) Unwrap() error { return e.Cause }

// Violate panics with an Invariant wrapping cause, capturing a stack
// trace via pkg/errors the way disk and engine wrap I/O failures.
func Violate(msg string, cause error) {
	panic(Invariant{Msg: msg, Cause: errors.WithStack(cause)})
}

// AssertTreeIsOK walks the subtree rooted at id and panics with an
// Invariant if any of the structural invariants from spec.md §8 fail:
// every internal node's cwid equals the sum of its children's cwid
// per axis, only the root has IsApex, and height decreases by exactly
// one per level down to the leftmost leaf.
func (a *Arena) AssertTreeIsOK(id CrumID) {
	if id == NilCrum {
		return
	}
	root := a.Get(id)
	if !root.IsApex {
		Violate("root crum missing IsApex", nil)
	}
	a.assertSubtreeIsOK(id, true)
}

func (a *Arena) assertSubtreeIsOK(id CrumID, isRoot bool) {
	n := a.Get(id)
	if !isRoot && n.IsApex {
		Violate(fmt.Sprintf("non-root crum %d has IsApex set", id), nil)
	}
	if n.IsLeaf() {
		a.assertLeafIsOK(id, n)
		return
	}
	if len(n.Sons) == 0 && n.SonOrigin == 0 {
		Violate(fmt.Sprintf("internal crum %d has no sons and no on-disk sonorigin", id), nil)
	}
	wsize := WidSize(n.EnfType)
	var sum Label
	for i := 0; i < wsize; i++ {
		sum[i] = zeroWid()
	}
	for _, sonID := range n.Sons {
		son := a.Get(sonID)
		if son.Height != n.Height-1 {
			Violate(fmt.Sprintf("crum %d height %d is not one less than parent %d height %d", sonID, son.Height, id, n.Height), nil)
		}
		if son.Parent != id {
			Violate(fmt.Sprintf("crum %d parent field does not point back to %d", sonID, id), nil)
		}
		for i := 0; i < wsize; i++ {
			sum[i] = addWid(sum[i], son.CWid[i])
		}
		a.assertSubtreeIsOK(sonID, false)
	}
	for i := 0; i < wsize; i++ {
		if !eqWid(sum[i], n.CWid[i]) {
			Violate(fmt.Sprintf("crum %d cwid[%d] does not equal sum of children", id, i), nil)
		}
	}
}

func (a *Arena) assertLeafIsOK(id CrumID, n *Crum) {
	orgl, ok := n.Info.(GranOrgl)
	if !ok {
		return
	}
	if !orgl.OrglInCore && orgl.DiskOrglPtr == 0 {
		Violate(fmt.Sprintf("crum %d: GRANORGL leaf has no orgl source (no in-core root, no disk pointer)", id), nil)
	}
}
