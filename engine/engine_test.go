// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package engine

import (
	"testing"

	"github.com/udanax/enfilade/bert"
	"github.com/udanax/enfilade/disk"
	"github.com/udanax/enfilade/item"
	"github.com/udanax/enfilade/tumbler"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(disk.NewMemStore())
}

func TestCreateNewDocumentAndInsert(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	doc, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument: %v", err)
	}

	if _, ok, err := e.Open(doc, bert.WriteBert, bert.ModeOnly, conn); err != nil || !ok {
		t.Fatalf("Open(write): ok=%v err=%v", ok, err)
	}

	ok, err := e.Insert(doc, tumbler.Zero, []byte("hello"), conn)
	if err != nil || !ok {
		t.Fatalf("Insert: ok=%v err=%v", ok, err)
	}

	vspan, ok := e.RetrieveDocVSpan(doc)
	if !ok {
		t.Fatalf("RetrieveDocVSpan: doc not found")
	}
	specset := item.SpecSet{{DocISA: doc, VSpanSet: item.VSpanSet{vspan}}}
	got, err := e.RetrieveV(specset)
	if err != nil {
		t.Fatalf("RetrieveV: %v", err)
	}
	if len(got) != 1 || string(got[0]) != "hello" {
		t.Fatalf("RetrieveV = %q, want [hello]", got)
	}
}

func TestInsertWithoutWriteBertFails(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	doc, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument: %v", err)
	}

	ok, err := e.Insert(doc, tumbler.Zero, []byte("hello"), conn)
	if err != nil {
		t.Fatalf("Insert: unexpected error %v", err)
	}
	if ok {
		t.Fatalf("Insert succeeded without an open write bert")
	}
}

func TestCreateNewVersionClonesContent(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	doc, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument: %v", err)
	}
	if _, ok, err := e.Open(doc, bert.WriteBert, bert.ModeOnly, conn); err != nil || !ok {
		t.Fatalf("Open(write): ok=%v err=%v", ok, err)
	}
	if ok, err := e.Insert(doc, tumbler.Zero, []byte("v1"), conn); err != nil || !ok {
		t.Fatalf("Insert: ok=%v err=%v", ok, err)
	}

	v2, err := e.CreateNewVersion(doc, conn)
	if err != nil {
		t.Fatalf("CreateNewVersion: %v", err)
	}
	if v2 == doc {
		t.Fatalf("CreateNewVersion returned same ISA as source")
	}

	vspan, ok := e.RetrieveDocVSpan(v2)
	if !ok {
		t.Fatalf("RetrieveDocVSpan(v2): not found")
	}
	got, err := e.RetrieveV(item.SpecSet{{DocISA: v2, VSpanSet: item.VSpanSet{vspan}}})
	if err != nil {
		t.Fatalf("RetrieveV: %v", err)
	}
	if len(got) != 1 || string(got[0]) != "v1" {
		t.Fatalf("v2 content = %q, want [v1]", got)
	}

	if ok, err := e.Insert(doc, tumbler.Zero, []byte("-only-on-v1"), conn); err != nil || !ok {
		t.Fatalf("Insert into original: ok=%v err=%v", ok, err)
	}
	got2, err := e.RetrieveV(item.SpecSet{{DocISA: v2, VSpanSet: item.VSpanSet{vspan}}})
	if err != nil {
		t.Fatalf("RetrieveV(v2) after mutating original: %v", err)
	}
	if string(got2[0]) != "v1" {
		t.Fatalf("v2 content mutated by sibling insert: %q", got2[0])
	}
}

func TestCreateNodeOrAccountIsIndependentOfDocument(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	node, err := e.CreateNodeOrAccount(conn)
	if err != nil {
		t.Fatalf("CreateNodeOrAccount: %v", err)
	}
	if !e.XAccount(conn, node) {
		t.Fatalf("XAccount rejected a freshly created node")
	}

	doc, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument: %v", err)
	}
	if doc == node {
		t.Fatalf("CreateNewDocument returned the node's ISA")
	}
}

func TestXAccountRejectsUnknownISA(t *testing.T) {
	e := newTestEngine(t)
	if e.XAccount(1, tumbler.New(false, 99)) {
		t.Fatalf("XAccount accepted an unregistered ISA")
	}
}

func TestCreateLinkAndFollow(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	from, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument(from): %v", err)
	}
	to, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument(to): %v", err)
	}

	fromSpec := item.SpecSet{{DocISA: from, VSpanSet: item.VSpanSet{{Stream: tumbler.New(false, 1), Width: tumbler.New(false, 1)}}}}
	toSpec := item.SpecSet{{DocISA: to, VSpanSet: item.VSpanSet{{Stream: tumbler.New(false, 1), Width: tumbler.New(false, 1)}}}}

	linkISA, err := e.MakeLink(conn, fromSpec, toSpec)
	if err != nil {
		t.Fatalf("MakeLink: %v", err)
	}

	got, err := e.FollowLink(linkISA, item.EndSetFrom)
	if err != nil {
		t.Fatalf("FollowLink(from): %v", err)
	}
	if len(got) != 1 || got[0].DocISA != from {
		t.Fatalf("FollowLink(from) = %+v, want doc %+v", got, from)
	}

	matches := e.FindLinksFromToThree(fromSpec, nil, nil)
	found := false
	for _, m := range matches {
		if m == linkISA {
			found = true
		}
	}
	if !found {
		t.Fatalf("FindLinksFromToThree did not return %+v in %+v", linkISA, matches)
	}
}

func TestFindDocsContainingTracksCopyProvenance(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	src, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument(src): %v", err)
	}
	if _, ok, err := e.Open(src, bert.WriteBert, bert.ModeOnly, conn); err != nil || !ok {
		t.Fatalf("Open(src): ok=%v err=%v", ok, err)
	}
	if ok, err := e.Insert(src, tumbler.Zero, []byte("xanadu"), conn); err != nil || !ok {
		t.Fatalf("Insert(src): ok=%v err=%v", ok, err)
	}

	dst, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument(dst): %v", err)
	}
	if _, ok, err := e.Open(dst, bert.WriteBert, bert.ModeOnly, conn); err != nil || !ok {
		t.Fatalf("Open(dst): ok=%v err=%v", ok, err)
	}

	srcVSpan, ok := e.RetrieveDocVSpan(src)
	if !ok {
		t.Fatalf("RetrieveDocVSpan(src): not found")
	}
	srcSpec := item.SpecSet{{DocISA: src, VSpanSet: item.VSpanSet{srcVSpan}}}

	if ok, err := e.Copy(dst, tumbler.Zero, srcSpec, conn); err != nil || !ok {
		t.Fatalf("Copy: ok=%v err=%v", ok, err)
	}

	docs := e.FindDocsContaining(srcSpec)
	found := false
	for _, d := range docs {
		if d == dst {
			found = true
		}
	}
	if !found {
		t.Fatalf("FindDocsContaining(%+v) = %+v, want %+v", srcSpec, docs, dst)
	}
}

func TestOpenCloseRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	doc, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument: %v", err)
	}
	if _, ok, err := e.Open(doc, bert.ReadBert, bert.ModeOnly, conn); err != nil || !ok {
		t.Fatalf("Open(read): ok=%v err=%v", ok, err)
	}
	if !e.Close(doc, conn) {
		t.Fatalf("Close: expected true")
	}
}

// TestDeleteVSpanMidDocument is spec.md §8 scenario 2: deleting a
// range out of the middle of a document's content must remove exactly
// that range, not whatever bytes happen to sit at the deleted vspan's
// own leading tumbler digit.
func TestDeleteVSpanMidDocument(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	doc, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument: %v", err)
	}
	if _, ok, err := e.Open(doc, bert.WriteBert, bert.ModeOnly, conn); err != nil || !ok {
		t.Fatalf("Open(write): ok=%v err=%v", ok, err)
	}
	if ok, err := e.Insert(doc, vAddrFromOffset(tumbler.Zero), []byte("abcdef"), conn); err != nil || !ok {
		t.Fatalf("Insert: ok=%v err=%v", ok, err)
	}

	// removes "cd" (the two bytes starting at offset 2), leaving "abef".
	cut := item.VSpan{Stream: vAddrFromOffset(tumbler.New(false, 2)), Width: tumbler.New(false, 2)}
	if ok, err := e.DeleteVSpan(doc, cut, conn); err != nil || !ok {
		t.Fatalf("DeleteVSpan: ok=%v err=%v", ok, err)
	}

	vspan, ok := e.RetrieveDocVSpan(doc)
	if !ok {
		t.Fatalf("RetrieveDocVSpan: not found")
	}
	got, err := e.RetrieveV(item.SpecSet{{DocISA: doc, VSpanSet: item.VSpanSet{vspan}}})
	if err != nil {
		t.Fatalf("RetrieveV: %v", err)
	}
	if len(got) != 1 || string(got[0]) != "abef" {
		t.Fatalf("RetrieveV after DeleteVSpan = %q, want [abef]", got)
	}
}

// TestShowRelationOf2VersionsSameVersion is spec.md §8 scenario 3:
// comparing a version against a fresh clone of itself yields exactly
// one span-pair spanning the whole document.
func TestShowRelationOf2VersionsSameVersion(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	doc, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument: %v", err)
	}
	if _, ok, err := e.Open(doc, bert.WriteBert, bert.ModeOnly, conn); err != nil || !ok {
		t.Fatalf("Open(write): ok=%v err=%v", ok, err)
	}
	if ok, err := e.Insert(doc, vAddrFromOffset(tumbler.Zero), []byte("hello world"), conn); err != nil || !ok {
		t.Fatalf("Insert: ok=%v err=%v", ok, err)
	}

	doc2, err := e.CreateNewVersion(doc, conn)
	if err != nil {
		t.Fatalf("CreateNewVersion: %v", err)
	}

	v1, ok := e.RetrieveDocVSpan(doc)
	if !ok {
		t.Fatalf("RetrieveDocVSpan(doc): not found")
	}
	v2, ok := e.RetrieveDocVSpan(doc2)
	if !ok {
		t.Fatalf("RetrieveDocVSpan(doc2): not found")
	}

	pairs := e.ShowRelationOf2Versions(
		item.SpecSet{{DocISA: doc, VSpanSet: item.VSpanSet{v1}}},
		item.SpecSet{{DocISA: doc2, VSpanSet: item.VSpanSet{v2}}},
	)
	if len(pairs) != 1 {
		t.Fatalf("ShowRelationOf2Versions = %d pairs, want 1: %+v", len(pairs), pairs)
	}
	if pairs[0].Width != tumbler.New(false, 11) {
		t.Fatalf("pair width = %v, want 11", pairs[0].Width)
	}
}

// TestShowRelationOf2VersionsAfterTransclusionAndInsert is spec.md §8
// scenario 4: D has "AB"; D' transcludes the same "AB" via Copy, then
// inserts "X" between A and B. Comparing D and D' must report the
// transcluded "A" and "B" as two separate common-origin spans, proving
// specset2ispanset resolves shared istream identity through each
// document's own orgl rather than merely relabeling vspans.
func TestShowRelationOf2VersionsAfterTransclusionAndInsert(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	d, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument(d): %v", err)
	}
	if _, ok, err := e.Open(d, bert.WriteBert, bert.ModeOnly, conn); err != nil || !ok {
		t.Fatalf("Open(d): ok=%v err=%v", ok, err)
	}
	if ok, err := e.Insert(d, vAddrFromOffset(tumbler.Zero), []byte("AB"), conn); err != nil || !ok {
		t.Fatalf("Insert(d): ok=%v err=%v", ok, err)
	}

	dPrime, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument(d'): %v", err)
	}
	if _, ok, err := e.Open(dPrime, bert.WriteBert, bert.ModeOnly, conn); err != nil || !ok {
		t.Fatalf("Open(d'): ok=%v err=%v", ok, err)
	}

	dVSpan, ok := e.RetrieveDocVSpan(d)
	if !ok {
		t.Fatalf("RetrieveDocVSpan(d): not found")
	}
	srcSpec := item.SpecSet{{DocISA: d, VSpanSet: item.VSpanSet{dVSpan}}}
	if ok, err := e.Copy(dPrime, vAddrFromOffset(tumbler.Zero), srcSpec, conn); err != nil || !ok {
		t.Fatalf("Copy: ok=%v err=%v", ok, err)
	}

	// insert "X" between A and B, i.e. at offset 1 of d'.
	if ok, err := e.Insert(dPrime, vAddrFromOffset(tumbler.New(false, 1)), []byte("X"), conn); err != nil || !ok {
		t.Fatalf("Insert(d', X): ok=%v err=%v", ok, err)
	}

	got, err := e.RetrieveV(item.SpecSet{{DocISA: dPrime, VSpanSet: item.VSpanSet{{Stream: vAddrFromOffset(tumbler.Zero), Width: tumbler.New(false, 3)}}}})
	if err != nil || len(got) != 1 || string(got[0]) != "AXB" {
		t.Fatalf("RetrieveV(d') = %q err=%v, want [AXB]", got, err)
	}

	dPrimeVSpan, ok := e.RetrieveDocVSpan(dPrime)
	if !ok {
		t.Fatalf("RetrieveDocVSpan(d'): not found")
	}
	pairs := e.ShowRelationOf2Versions(
		item.SpecSet{{DocISA: d, VSpanSet: item.VSpanSet{dVSpan}}},
		item.SpecSet{{DocISA: dPrime, VSpanSet: item.VSpanSet{dPrimeVSpan}}},
	)
	if len(pairs) != 2 {
		t.Fatalf("ShowRelationOf2Versions = %d pairs, want 2: %+v", len(pairs), pairs)
	}
	for i, p := range pairs {
		if p.Width != tumbler.New(false, 1) {
			t.Fatalf("pair %d width = %v, want 1", i, p.Width)
		}
	}
}

func TestQuitClosesEverythingForConnection(t *testing.T) {
	e := newTestEngine(t)
	const conn = 1

	doc, err := e.CreateNewDocument(conn)
	if err != nil {
		t.Fatalf("CreateNewDocument: %v", err)
	}
	if _, ok, err := e.Open(doc, bert.WriteBert, bert.ModeOnly, conn); err != nil || !ok {
		t.Fatalf("Open(write): ok=%v err=%v", ok, err)
	}

	e.Quit(conn)

	if e.hasWrite(doc, conn) {
		t.Fatalf("document still shows an open write bert after Quit")
	}
}
