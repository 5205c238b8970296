// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package task implements the per-request arena (spec.md §4.9): every
// request allocates its transient specsets, spansets, sporglsets, and
// text buffers out of an Arena, released wholesale at request
// completion. Grounded on the teacher's pool.go, generalized from a
// single sync.Pool of *node[V] to a set of typed bump-allocating slabs,
// with Arena values themselves reused across requests via a
// package-level sync.Pool.
package task

import (
	"sync"

	"github.com/udanax/enfilade/item"
)

// slab is a generic growable typed sub-allocator. It bump-allocates
// values of T out of geometrically grown backing slices; reset keeps
// the first chunk's capacity so the next request's first allocation
// doesn't pay for a fresh make().
type slab[T any] struct {
	chunks [][]T
	cur    []T
}

func (s *slab[T]) alloc(n int) []T {
	if cap(s.cur)-len(s.cur) < n {
		size := n
		if size < 16 {
			size = 16
		}
		if len(s.chunks) > 0 {
			if grown := cap(s.chunks[len(s.chunks)-1]) * 2; grown > size {
				size = grown
			}
		}
		s.cur = make([]T, 0, size)
		s.chunks = append(s.chunks, s.cur)
	}
	start := len(s.cur)
	s.cur = s.cur[:start+n]
	return s.cur[start : start+n]
}

func (s *slab[T]) reset() {
	if len(s.chunks) == 0 {
		return
	}
	first := s.chunks[0][:0]
	s.chunks = s.chunks[:1]
	s.chunks[0] = first
	s.cur = first
}

// Arena is the allocation lifetime of a single request. No value
// returned from an Arena's typed allocators may be retained past the
// matching Release — the engine calls Release (directly, or via Put)
// as soon as the request's response has been produced.
type Arena struct {
	specs   slab[item.VSpec]
	ispans  slab[item.ISpan]
	vspans  slab[item.VSpan]
	sporgls slab[item.Sporgl]
	bytes   slab[byte]
}

// New returns a fresh, empty Arena. Prefer Get for request handling,
// which reuses a released Arena's backing storage.
func New() *Arena {
	return &Arena{}
}

// Release drops every allocation this Arena has made. The Arena
// itself remains usable for a new request.
func (a *Arena) Release() {
	a.specs.reset()
	a.ispans.reset()
	a.vspans.reset()
	a.sporgls.reset()
	a.bytes.reset()
}

// Specs allocates n zero-valued VSpecs for a request-scoped specset.
func (a *Arena) Specs(n int) []item.VSpec {
	return a.specs.alloc(n)
}

// ISpans allocates n zero-valued ISpans for a request-scoped ispanset.
func (a *Arena) ISpans(n int) []item.ISpan {
	return a.ispans.alloc(n)
}

// VSpans allocates n zero-valued VSpans for a request-scoped vspanset.
func (a *Arena) VSpans(n int) []item.VSpan {
	return a.vspans.alloc(n)
}

// Sporgls allocates n zero-valued Sporgls for a request-scoped
// sporglset (link end-sets).
func (a *Arena) Sporgls(n int) []item.Sporgl {
	return a.sporgls.alloc(n)
}

// Bytes allocates n bytes for a transient text buffer.
func (a *Arena) Bytes(n int) []byte {
	return a.bytes.alloc(n)
}

var arenaPool = sync.Pool{New: func() any { return New() }}

// Get retrieves an Arena from the shared pool, or allocates a fresh
// one if the pool is empty.
func Get() *Arena {
	return arenaPool.Get().(*Arena)
}

// Put releases a and returns it to the shared pool for reuse by the
// next request. The caller must not touch a, or anything allocated
// from it, afterward.
func Put(a *Arena) {
	a.Release()
	arenaPool.Put(a)
}
