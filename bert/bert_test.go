// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package bert

import (
	"testing"

	"github.com/udanax/enfilade/tumbler"
)

func doc(n tumbler.Digit) tumbler.Tumbler {
	return tumbler.New(false, 1, n)
}

func alwaysOwned(tumbler.Tumbler, int) bool { return true }
func neverOwned(tumbler.Tumbler, int) bool  { return false }

func newVersionOf(d tumbler.Tumbler) CreateNewVersionFunc {
	return func() (tumbler.Tumbler, error) { return tumbler.Add(d, tumbler.New(false, 0, 1)), nil }
}

func TestOpenReadThenReadSameConnectionIncrementsCount(t *testing.T) {
	tbl := NewTable()
	d := doc(1)

	got, ok, err := tbl.Open(d, ReadBert, ModeCopyIf, 1, alwaysOwned, newVersionOf(d))
	if err != nil || !ok || !got.Eq(d) {
		t.Fatalf("first open: got=%v ok=%v err=%v", got, ok, err)
	}

	got2, ok2, err2 := tbl.Open(d, ReadBert, ModeCopyIf, 1, alwaysOwned, newVersionOf(d))
	if err2 != nil || !ok2 || !got2.Eq(d) {
		t.Fatalf("second open: got=%v ok=%v err=%v", got2, ok2, err2)
	}
	if tbl.entries[d][0].Count != 2 {
		t.Fatalf("count = %d, want 2", tbl.entries[d][0].Count)
	}
}

func TestOpenWriteWhileReadOpenByOtherCopiesNew(t *testing.T) {
	tbl := NewTable()
	d := doc(1)

	if _, ok, err := tbl.Open(d, ReadBert, ModeCopyIf, 1, alwaysOwned, newVersionOf(d)); err != nil || !ok {
		t.Fatalf("conn1 read open failed: %v %v", ok, err)
	}

	got, ok, err := tbl.Open(d, WriteBert, ModeCopyIf, 2, alwaysOwned, newVersionOf(d))
	if err != nil || !ok {
		t.Fatalf("conn2 write open: ok=%v err=%v", ok, err)
	}
	if got.Eq(d) {
		t.Fatalf("expected a copied version, got original %v back", got)
	}
}

func TestOpenOnlyRefusesWrite(t *testing.T) {
	tbl := NewTable()
	d := doc(1)

	_, ok, err := tbl.Open(d, WriteBert, ModeOnly, 1, neverOwned, newVersionOf(d))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ONLY write to be refused")
	}
}

func TestOpenCopyAlwaysCreatesNewVersion(t *testing.T) {
	tbl := NewTable()
	d := doc(1)

	got, ok, err := tbl.Open(d, ReadBert, ModeCopy, 1, alwaysOwned, newVersionOf(d))
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if got.Eq(d) {
		t.Fatal("COPY mode must always create a new version")
	}
}

func TestCloseDecrementsThenRemoves(t *testing.T) {
	tbl := NewTable()
	d := doc(1)
	tbl.AddDirect(d, 1, false, ReadBert)
	tbl.incrementOpen(d, 1)

	if !tbl.Close(d, 1, nil) {
		t.Fatal("first close should succeed (count drops to 1)")
	}
	if _, ok := tbl.entries[d]; !ok {
		t.Fatal("entry should still exist after first close")
	}
	if !tbl.Close(d, 1, nil) {
		t.Fatal("second close should succeed (count drops to 0, entry removed)")
	}
	if _, ok := tbl.entries[d]; ok {
		t.Fatal("entry should be gone after count reaches zero")
	}
}

func TestCloseReclaimsCreatedUnmodified(t *testing.T) {
	tbl := NewTable()
	d := doc(1)
	tbl.AddDirect(d, 1, true, WriteBert)

	var reclaimed tumbler.Tumbler
	tbl.Close(d, 1, func(tp tumbler.Tumbler) { reclaimed = tp })
	if !reclaimed.Eq(d) {
		t.Fatalf("expected reclaim of %v, got %v", d, reclaimed)
	}
}

func TestCloseAllDropsEveryEntryForConnection(t *testing.T) {
	tbl := NewTable()
	d1, d2 := doc(1), doc(2)
	tbl.AddDirect(d1, 1, false, ReadBert)
	tbl.AddDirect(d2, 1, false, WriteBert)
	tbl.AddDirect(d1, 2, false, ReadBert)

	tbl.CloseAll(1, nil)

	if _, ok := tbl.entries[d2]; ok {
		t.Fatal("d2 had only connection 1's entry, should be gone")
	}
	if entries, ok := tbl.entries[d1]; !ok || len(entries) != 1 || entries[0].Connection != 2 {
		t.Fatalf("d1 should retain only connection 2's entry, got %+v", entries)
	}
}
