// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package disk

import (
	"path/filepath"
	"testing"

	"github.com/udanax/enfilade/enfilade"
)

func textLeaf(arena *enfilade.Arena, bytes []byte) enfilade.CrumID {
	id, n := arena.Alloc()
	n.EnfType = enfilade.GRAN
	n.Height = 0
	n.Info = enfilade.GranText{Bytes: bytes}
	arena.Release(id)
	return id
}

func TestMemStoreStoreAndLoadOrglRoundTrips(t *testing.T) {
	store := NewMemStore()
	srcArena := enfilade.NewArena()
	root := textLeaf(srcArena, []byte("hello"))

	ptr, err := store.StoreOrgl(root, srcArena)
	if err != nil {
		t.Fatalf("StoreOrgl: %v", err)
	}

	dstArena := enfilade.NewArena()
	loadedID, err := store.LoadOrgl(ptr, dstArena)
	if err != nil {
		t.Fatalf("LoadOrgl: %v", err)
	}
	n := dstArena.Get(loadedID)
	info, ok := n.Info.(enfilade.GranText)
	if !ok || string(info.Bytes) != "hello" {
		t.Fatalf("loaded info = %+v, want GranText{hello}", n.Info)
	}
}

func TestMemStoreGCReclaimsUnreferencedBlocks(t *testing.T) {
	store := NewMemStore()
	arena := enfilade.NewArena()
	root1 := textLeaf(arena, []byte("a"))
	root2 := textLeaf(arena, []byte("b"))

	ptr1, err := store.StoreOrgl(root1, arena)
	if err != nil {
		t.Fatalf("StoreOrgl 1: %v", err)
	}
	if _, err := store.StoreOrgl(root2, arena); err != nil {
		t.Fatalf("StoreOrgl 2: %v", err)
	}

	reclaimed, err := store.GC([]int64{ptr1})
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d, want 1", reclaimed)
	}
	if _, err := store.LoadOrgl(ptr1, enfilade.NewArena()); err != nil {
		t.Fatalf("ptr1 should survive GC: %v", err)
	}
}

func TestFileStoreCheckpointSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.bin")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	arena := enfilade.NewArena()
	root := textLeaf(arena, []byte("durable"))
	ptr, err := store.StoreOrgl(root, arena)
	if err != nil {
		t.Fatalf("StoreOrgl: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen NewFileStore: %v", err)
	}
	defer reopened.Close()

	dstArena := enfilade.NewArena()
	loadedID, err := reopened.LoadOrgl(ptr, dstArena)
	if err != nil {
		t.Fatalf("LoadOrgl after reopen: %v", err)
	}
	info, ok := dstArena.Get(loadedID).Info.(enfilade.GranText)
	if !ok || string(info.Bytes) != "durable" {
		t.Fatalf("loaded info = %+v, want GranText{durable}", dstArena.Get(loadedID).Info)
	}
}
