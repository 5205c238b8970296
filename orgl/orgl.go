// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package orgl implements the per-document version space: a POOM
// subtree hanging off a GRAN bottom crum, lazily paged in from disk.
// Every version ever stored in a document, and every span that
// version ever referenced, lives in its owning orgl — this is what
// lets version comparison (package version) walk two versions'
// histories without touching the documents' live content trees.
package orgl

import (
	"github.com/pkg/errors"

	"github.com/udanax/enfilade/disk"
	"github.com/udanax/enfilade/enfilade"
	"github.com/udanax/enfilade/tumbler"
)

// Store loads and creates orgls on behalf of a GRAN tree whose bottom
// crums may carry GranOrgl leaves.
type Store struct {
	Disk disk.Store
}

// InOrgl pages n's POOM subtree into dst (a fresh in-memory tree) if
// it is not already in-core, rejuvenating it (touching its age to
// AgeFresh so the reaper leaves it alone a while longer) either way.
// It mirrors inorgl/rejuvenate from spec.md §4.4.
func (s *Store) InOrgl(n *enfilade.Crum, dst *enfilade.Tree) (enfilade.CrumID, error) {
	orgl, ok := n.Info.(enfilade.GranOrgl)
	if !ok {
		return enfilade.NilCrum, errors.New("orgl: crum is not a GRANORGL leaf")
	}
	if orgl.OrglInCore {
		root := dst.Arena.Get(orgl.OrglRoot)
		root.Age = enfilade.AgeFresh
		return orgl.OrglRoot, nil
	}
	if orgl.DiskOrglPtr == 0 {
		return enfilade.NilCrum, errors.New("orgl: no in-core root and no disk pointer")
	}
	root, err := s.Disk.LoadOrgl(orgl.DiskOrglPtr, dst.Arena)
	if err != nil {
		return enfilade.NilCrum, errors.Wrap(err, "orgl: paging in POOM subtree")
	}
	n.Info = enfilade.GranOrgl{OrglRoot: root, DiskOrglPtr: orgl.DiskOrglPtr, OrglInCore: true}
	dst.Arena.Get(root).Age = enfilade.AgeFresh
	return root, nil
}

// CreateOrgl allocates a fresh, empty POOM tree, reserves its root,
// and returns a GranOrgl leaf value ready to be written into a GRAN
// bottom crum for a newly created document.
func CreateOrgl() (*enfilade.Tree, enfilade.GranOrgl) {
	poom := enfilade.NewTree(enfilade.POOM)
	poom.Arena.Reserve(poom.Root)
	return poom, enfilade.GranOrgl{OrglRoot: poom.Root, OrglInCore: true}
}

// FetchOrgl retrieves the context at address in gran, validates that
// it landed on an exact GRANORGL leaf, lazily loads its POOM subtree
// if needed, and returns the POOM root — the fetchorgl operation from
// spec.md §4.4.
func (s *Store) FetchOrgl(gran *enfilade.Tree, address tumbler.Tumbler, dst *enfilade.Tree) (enfilade.CrumID, error) {
	ctx, ok := gran.Retrieve(address, enfilade.AxisWidth)
	if !ok {
		return enfilade.NilCrum, errors.New("orgl: address not found")
	}
	leaf := gran.Arena.Get(ctx.Leaf)
	if _, isOrgl := leaf.Info.(enfilade.GranOrgl); !isOrgl {
		return enfilade.NilCrum, errors.New("orgl: leaf at address is not GRANORGL")
	}
	return s.InOrgl(leaf, dst)
}
