// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package disk implements the durable block storage backing the two
// persisted enfilades (istream/GRAN and spanf/SPAN) plus the POOM
// orgls referenced from GRANORGL leaves. It keeps a table of encoded
// crum blocks and a per-block reference-count map; there is no
// free-block table, and GC drops unreachable blocks from the table.
// Per spec.md §1 it is
// scoped as a thin external collaborator, not part of the hard core,
// so this package favors a simple, inspectable format over an
// optimized one.
package disk

import (
	"encoding/gob"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/udanax/enfilade/enfilade"
	"github.com/udanax/enfilade/tumbler"
)

// Store is the durable-storage surface the engine depends on: writing
// back dirty crums, loading a paged-out orgl, and running the GC
// reachability scan that reclaims unreferenced blocks.
type Store interface {
	// Flush writes every crum in ids (reading them from arena) to
	// durable storage and clears their dirty bit.
	Flush(arena *enfilade.Arena, ids []enfilade.CrumID) error
	// LoadOrgl reads the POOM subtree rooted at ptr into arena,
	// returning its new in-arena root CrumID.
	LoadOrgl(ptr int64, arena *enfilade.Arena) (enfilade.CrumID, error)
	// StoreOrgl writes the in-memory POOM subtree rooted at root to a
	// fresh disk block and returns its pointer.
	StoreOrgl(root enfilade.CrumID, arena *enfilade.Arena) (int64, error)
	// GC reclaims blocks unreachable from any of roots.
	GC(roots []int64) (reclaimed int, err error)
	// Checkpoint persists buffered state durably without releasing the
	// store (a no-op for MemStore).
	Checkpoint() error
	// Close flushes any buffered state and releases the underlying file.
	Close() error
}

// blockRecord is the on-disk representation of one crum, flattened
// from enfilade.Crum for gob encoding (LeafInfo's interface type can't
// be gob-registered generically, so it is split into tagged fields).
type blockRecord struct {
	EnfType  enfilade.EnfType
	Height   int
	IsApex   bool
	Leftmost bool
	CWid     enfilade.Label
	CDsp     enfilade.Label
	Sons     []enfilade.CrumID

	InfoKind   int // 0 = none, 1 = GranText, 2 = GranOrgl, 3 = TwoDInfo, 4 = OrglRange
	TextBytes  []byte
	OrglRoot   enfilade.CrumID
	OrglDisk   int64
	OrglInCore bool
	HomeDoc    tumbler.Tumbler
	IStart     tumbler.Tumbler
}

// memState is the block table shared by FileStore and MemStore: a
// monotonically increasing block pointer, a map of encoded blocks,
// and a refcount map. FileStore additionally persists this state to a
// backing file; MemStore keeps it in memory only, for tests.
type memState struct {
	mu        sync.Mutex
	nextPtr   int64
	blocks    map[int64][]byte
	refcounts map[int64]int
}

func newMemState() memState {
	return memState{
		nextPtr:   1,
		blocks:    make(map[int64][]byte),
		refcounts: make(map[int64]int),
	}
}

func (s *memState) flush(arena *enfilade.Arena, ids []enfilade.CrumID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		n := arena.Get(id)
		rec := toRecord(n)
		var buf writeCounter
		enc := gob.NewEncoder(&buf)
		if err := enc.Encode(rec); err != nil {
			return errors.Wrap(err, "disk: encoding crum")
		}
		s.blocks[int64(id)] = buf.Bytes()
		arena.ClearDirty(id)
	}
	return nil
}

func (s *memState) storeOrgl(root enfilade.CrumID, arena *enfilade.Arena, flush func(*enfilade.Arena, []enfilade.CrumID) error) (int64, error) {
	s.mu.Lock()
	ptr := s.nextPtr
	s.nextPtr++
	s.mu.Unlock()

	var ids []enfilade.CrumID
	collectSubtree(arena, root, &ids)
	if err := flush(arena, ids); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.refcounts[ptr] = 1
	s.mu.Unlock()
	return ptr, nil
}

func (s *memState) loadOrgl(ptr int64, arena *enfilade.Arena) (enfilade.CrumID, error) {
	s.mu.Lock()
	raw, ok := s.blocks[ptr]
	s.mu.Unlock()
	if !ok {
		return enfilade.NilCrum, errors.Errorf("disk: no block at pointer %d", ptr)
	}
	var rec blockRecord
	dec := gob.NewDecoder(newByteReader(raw))
	if err := dec.Decode(&rec); err != nil {
		return enfilade.NilCrum, errors.Wrap(err, "disk: decoding crum")
	}
	id, n := arena.Alloc()
	fromRecord(&rec, n)
	arena.Release(id)
	return id, nil
}

func (s *memState) gc(roots []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := make(map[int64]bool, len(roots))
	for _, r := range roots {
		live[r] = true
	}
	var reclaimed int
	for ptr := range s.blocks {
		if !live[ptr] {
			delete(s.blocks, ptr)
			delete(s.refcounts, ptr)
			reclaimed++
		}
	}
	return reclaimed, nil
}

// MemStore is a Store backed by nothing but memState: no file, no
// persistence across process restarts. Used in tests and anywhere a
// caller wants the block-reference-counting and GC behavior without
// committing to a file format.
type MemStore struct {
	state memState
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{state: newMemState()}
}

func (s *MemStore) Flush(arena *enfilade.Arena, ids []enfilade.CrumID) error {
	return s.state.flush(arena, ids)
}

func (s *MemStore) StoreOrgl(root enfilade.CrumID, arena *enfilade.Arena) (int64, error) {
	return s.state.storeOrgl(root, arena, s.state.flush)
}

func (s *MemStore) LoadOrgl(ptr int64, arena *enfilade.Arena) (enfilade.CrumID, error) {
	return s.state.loadOrgl(ptr, arena)
}

func (s *MemStore) GC(roots []int64) (int, error) { return s.state.gc(roots) }
func (s *MemStore) Checkpoint() error             { return nil }
func (s *MemStore) Close() error                  { return nil }

// persistedState is the gob-encoded form of memState written to a
// FileStore's backing file on Checkpoint/Close and read back by
// NewFileStore when the file already holds a checkpoint.
type persistedState struct {
	NextPtr   int64
	Blocks    map[int64][]byte
	Refcounts map[int64]int
}

// FileStore persists blocks to a single flat file. It keeps the block
// table and refcount map in memory (there is no free-list) and writes
// them as one gob-encoded checkpoint of the whole table rather than a
// packed loaf format with incremental appends, since
// the wire format, not the disk format, is the part tested against
// the property suite.
type FileStore struct {
	f     *os.File
	path  string
	state memState
}

// NewFileStore opens (creating if necessary) a FileStore backed by
// path, restoring its block table from an existing checkpoint if the
// file is non-empty.
func NewFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "disk: opening store file")
	}
	s := &FileStore{f: f, path: path, state: newMemState()}

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "disk: statting store file")
	}
	if info.Size() == 0 {
		return s, nil
	}
	var ps persistedState
	if err := gob.NewDecoder(f).Decode(&ps); err != nil {
		return nil, errors.Wrap(err, "disk: decoding existing checkpoint")
	}
	s.state.nextPtr = ps.NextPtr
	if ps.Blocks != nil {
		s.state.blocks = ps.Blocks
	}
	if ps.Refcounts != nil {
		s.state.refcounts = ps.Refcounts
	}
	return s, nil
}

func (s *FileStore) Flush(arena *enfilade.Arena, ids []enfilade.CrumID) error {
	return s.state.flush(arena, ids)
}

func (s *FileStore) StoreOrgl(root enfilade.CrumID, arena *enfilade.Arena) (int64, error) {
	return s.state.storeOrgl(root, arena, s.state.flush)
}

func (s *FileStore) LoadOrgl(ptr int64, arena *enfilade.Arena) (enfilade.CrumID, error) {
	return s.state.loadOrgl(ptr, arena)
}

func (s *FileStore) GC(roots []int64) (int, error) { return s.state.gc(roots) }

// Checkpoint overwrites the backing file with the current block
// table. Durability beyond this write-through flush is explicitly out
// of scope (spec.md §1 Non-goals).
func (s *FileStore) Checkpoint() error {
	s.state.mu.Lock()
	ps := persistedState{NextPtr: s.state.nextPtr, Blocks: s.state.blocks, Refcounts: s.state.refcounts}
	s.state.mu.Unlock()

	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "disk: seeking store file")
	}
	if err := s.f.Truncate(0); err != nil {
		return errors.Wrap(err, "disk: truncating store file")
	}
	if err := gob.NewEncoder(s.f).Encode(ps); err != nil {
		return errors.Wrap(err, "disk: encoding checkpoint")
	}
	return s.f.Sync()
}

func (s *FileStore) Close() error {
	if err := s.Checkpoint(); err != nil {
		return err
	}
	return s.f.Close()
}

func toRecord(n *enfilade.Crum) blockRecord {
	rec := blockRecord{
		EnfType:  n.EnfType,
		Height:   n.Height,
		IsApex:   n.IsApex,
		Leftmost: n.Leftmost,
		CWid:     n.CWid,
		CDsp:     n.CDsp,
		Sons:     n.Sons,
	}
	switch v := n.Info.(type) {
	case enfilade.GranText:
		rec.InfoKind = 1
		rec.TextBytes = v.Bytes
	case enfilade.GranOrgl:
		rec.InfoKind = 2
		rec.OrglRoot = v.OrglRoot
		rec.OrglDisk = v.DiskOrglPtr
		rec.OrglInCore = v.OrglInCore
	case enfilade.TwoDInfo:
		rec.InfoKind = 3
		rec.HomeDoc = v.HomeDoc
	case enfilade.OrglRange:
		rec.InfoKind = 4
		rec.HomeDoc = v.HomeDoc
		rec.IStart = v.IStart
	}
	return rec
}

func fromRecord(rec *blockRecord, n *enfilade.Crum) {
	n.EnfType = rec.EnfType
	n.Height = rec.Height
	n.IsApex = rec.IsApex
	n.Leftmost = rec.Leftmost
	n.CWid = rec.CWid
	n.CDsp = rec.CDsp
	n.Sons = rec.Sons
	switch rec.InfoKind {
	case 1:
		n.Info = enfilade.GranText{Bytes: rec.TextBytes}
	case 2:
		n.Info = enfilade.GranOrgl{OrglRoot: rec.OrglRoot, DiskOrglPtr: rec.OrglDisk, OrglInCore: rec.OrglInCore}
	case 3:
		n.Info = enfilade.TwoDInfo{HomeDoc: rec.HomeDoc}
	case 4:
		n.Info = enfilade.OrglRange{HomeDoc: rec.HomeDoc, IStart: rec.IStart}
	}
}

func collectSubtree(arena *enfilade.Arena, id enfilade.CrumID, out *[]enfilade.CrumID) {
	if id == enfilade.NilCrum {
		return
	}
	*out = append(*out, id)
	n := arena.Get(id)
	for _, son := range n.Sons {
		collectSubtree(arena, son, out)
	}
}

// writeCounter is a trivial io.Writer that accumulates bytes, used so
// gob.Encoder can target an in-memory block instead of the file
// directly (batched writes are flushed by Close, matching
// writeenfilades's "flush all dirty crums" boundary in spec.md §6.3).
type writeCounter struct {
	buf []byte
}

func (w *writeCounter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *writeCounter) Bytes() []byte { return w.buf }

type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
