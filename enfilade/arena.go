// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package enfilade

import (
	"sync"
	"sync/atomic"

	"github.com/udanax/enfilade/internal/idset"
)

// Arena owns every Crum in a tree's slab and is the sole thing that
// ever dereferences a CrumID. It plays the role the teacher's pool[V]
// plays for *node[V]: a sync.Pool-backed allocator with live/total
// counters, generalized here to hand out stable small-integer IDs
// instead of raw pointers, per spec.md §9's "arena allocation and
// stable node IDs" realization.
type Arena struct {
	mu    sync.Mutex
	slab  []*Crum // slab[0] is always nil; valid IDs start at 1
	free  []CrumID

	reserved idset.Set // pinned against reaping by an in-flight operation
	dirty    idset.Set // modified since last flush

	totalAllocated atomic.Int64
	currentLive    atomic.Int64

	pool sync.Pool
}

// NewArena returns an empty, ready-to-use Arena.
func NewArena() *Arena {
	a := &Arena{slab: make([]*Crum, 1)}
	a.pool.New = func() any {
		a.totalAllocated.Add(1)
		return new(Crum)
	}
	return a
}

// Alloc reserves a fresh CrumID and returns it along with the zeroed
// Crum it names. The returned node is automatically Reserve()d: the
// caller is expected to be in the middle of a tree operation.
func (a *Arena) Alloc() (CrumID, *Crum) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.pool.Get().(*Crum)
	a.currentLive.Add(1)

	var id CrumID
	if k := len(a.free); k > 0 {
		id = a.free[k-1]
		a.free = a.free[:k-1]
		a.slab[id] = n
	} else {
		id = CrumID(len(a.slab))
		a.slab = append(a.slab, n)
	}
	a.reserved.Add(uint(id))
	return id, n
}

// Get dereferences id. It panics with Invariant if id is not a live
// node in this arena — a dangling CrumID is an invariant violation,
// not an expected failure.
func (a *Arena) Get(id CrumID) *Crum {
	if id == NilCrum {
		panic(Invariant{Msg: "dereference of NilCrum"})
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if int(id) >= len(a.slab) || a.slab[id] == nil {
		panic(Invariant{Msg: "dereference of freed or unknown CrumID"})
	}
	return a.slab[id]
}

// Free returns id's storage to the pool. The caller must have already
// unlinked id from every parent/sibling edge.
func (a *Arena) Free(id CrumID) {
	a.mu.Lock()
	n := a.slab[id]
	a.slab[id] = nil
	a.free = append(a.free, id)
	a.reserved.Remove(uint(id))
	a.dirty.Remove(uint(id))
	a.mu.Unlock()

	a.currentLive.Add(-1)
	n.reset()
	a.pool.Put(n)
}

// Reserve pins id against reaping for the duration of an in-flight
// tree operation (Age == AgeReserved).
func (a *Arena) Reserve(id CrumID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reserved.Add(uint(id))
}

// Release un-pins id once the operation holding it has finished.
func (a *Arena) Release(id CrumID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reserved.Remove(uint(id))
}

// MarkDirty records that id has been modified since the last flush.
func (a *Arena) MarkDirty(id CrumID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirty.Add(uint(id))
}

// DirtyIDs returns every CrumID modified since the last flush, in
// ascending order, for disk.Store.Flush to write back.
func (a *Arena) DirtyIDs() []CrumID {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []CrumID
	a.dirty.Each(func(id uint) bool {
		out = append(out, CrumID(id))
		return true
	})
	return out
}

// ClearDirty drops id from the dirty set after it has been flushed.
func (a *Arena) ClearDirty(id CrumID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dirty.Remove(uint(id))
}

// Stats returns the number of currently live nodes and the total
// number ever allocated, mirroring pool[V].Stats in the teacher.
func (a *Arena) Stats() (live, total int64) {
	return a.currentLive.Load(), a.totalAllocated.Load()
}

// Reapable reports the set of CrumIDs eligible for LRU reaping: live,
// not reserved, and at least minAge old.
func (a *Arena) Reapable(minAge int) []CrumID {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []CrumID
	for id, n := range a.slab {
		if n == nil || id == 0 {
			continue
		}
		cid := CrumID(id)
		if a.reserved.Contains(uint(cid)) {
			continue
		}
		if n.Age != AgeReserved && n.Age >= minAge {
			out = append(out, cid)
		}
	}
	return out
}
