// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package engine wires every other package into the single dispatching
// object a connection talks to: tumbler addressing, the GRAN content
// tree, per-document orgls, the SPAN link index, the open table, and
// disk persistence. Grounded on
// original_source/backend/do1.c's do* function family — one Engine
// method per do* function, same name minus the "do" prefix, per
// spec.md §6.1's request-code list.
package engine

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/udanax/enfilade/bert"
	"github.com/udanax/enfilade/disk"
	"github.com/udanax/enfilade/enfilade"
	"github.com/udanax/enfilade/item"
	"github.com/udanax/enfilade/link"
	"github.com/udanax/enfilade/orgl"
	"github.com/udanax/enfilade/span"
	"github.com/udanax/enfilade/task"
	"github.com/udanax/enfilade/tumbler"
	"github.com/udanax/enfilade/version"
	"github.com/udanax/enfilade/wire"
)

// Config holds the engine's tunables — the Go stand-in for the
// original's compiled-in constants (spec.md §5).
type Config struct {
	// MaxPayloadBytes bounds a single Insert/Copy fragment's text size.
	MaxPayloadBytes int
}

// DefaultConfig mirrors the original's modest compiled-in buffer
// sizes.
func DefaultConfig() Config {
	return Config{MaxPayloadBytes: 1 << 20}
}

// textSubspaceOrigin is the permascroll V-address of offset zero in
// the text subspace (spec.md §3.4: subspace digit 1 followed by the
// in-subspace offset).
var textSubspaceOrigin = tumbler.Prefix(tumbler.Zero, 1)

// textOffset strips a permascroll V-address's text-subspace digit,
// leaving the bare document-local offset used to index a document's
// orgl (spec.md §3.4's "1.x" addresses, x being the part that matters
// for positioning within the document).
func textOffset(vsa tumbler.Tumbler) tumbler.Tumbler {
	return tumbler.Behead(vsa)
}

// vAddrFromOffset is textOffset's inverse: reattaches the text-subspace
// digit to a bare document-local offset.
func vAddrFromOffset(off tumbler.Tumbler) tumbler.Tumbler {
	return tumbler.Prefix(off, 1)
}

// granFrag is one contiguous run of the shared istream backing some
// part of a document's content.
type granFrag struct {
	start tumbler.Tumbler
	width tumbler.Tumbler
}

// overlap returns the intersection of [aLo,aHi) and [bLo,bHi), and
// whether it's non-empty.
func overlap(aLo, aHi, bLo, bHi tumbler.Tumbler) (lo, hi tumbler.Tumbler, ok bool) {
	if aLo.Cmp(bLo) > 0 {
		lo = aLo
	} else {
		lo = bLo
	}
	if aHi.Cmp(bHi) < 0 {
		hi = aHi
	} else {
		hi = bHi
	}
	return lo, hi, lo.Cmp(hi) < 0
}

// docState is a document's live state: its orgl, the POOM tree mapping
// the document's own V-space (AxisI, bare offsets after textOffset) to
// the ranges of the shared istream (e.GranF) that back it, per
// spec.md §3.5's orgl-as-V-to-I-map. History is the sequence of
// whole-document vspans recorded by every mutating operation, backing
// RetrieveDocVSpanSet.
type docState struct {
	Orgl    *enfilade.Tree
	History item.VSpanSet
}

// width returns the document's current total V-space width, read
// directly off the orgl's root rather than tracked by a separate
// counter.
func (ds *docState) width() tumbler.Tumbler {
	return ds.Orgl.Arena.Get(ds.Orgl.Root).CWid[enfilade.AxisI]
}

// recordVersion appends a vspan covering the document's entire current
// content to its history, mirroring the original's "current vspec"
// bookkeeping on every content-mutating operation.
func (ds *docState) recordVersion() {
	ds.History = append(ds.History, item.VSpan{Stream: textSubspaceOrigin, Width: ds.width()})
}

// insertContent splices a new content-range leaf of the given width,
// backed by the shared istream starting at backingStart, into the
// document's orgl at document-local offset off. If off lands inside an
// existing range, that leaf is split around the new one; a plain
// append or an insert exactly at an existing leaf boundary goes
// straight through Orgl.InsertSequential.
//
// This never calls Tree.Insert2D: cutHostLeaf assumes the inserted
// range is carved entirely out of one host leaf, which does not hold
// for a range landing at or beyond a leaf's own right edge — the
// common case here, including every append and the very first insert
// into a brand-new orgl. See DESIGN.md.
func (ds *docState) insertContent(off, width tumbler.Tumbler, doc, backingStart tumbler.Tumbler) error {
	info := enfilade.OrglRange{HomeDoc: doc, IStart: backingStart}

	ctx, ok := ds.Orgl.Retrieve(off, enfilade.AxisI)
	splitHost := ok && (ctx.Position == tumbler.ThruMe || ctx.Position == tumbler.OnMyLeftBorder)
	if splitHost {
		host := ds.Orgl.Arena.Get(ctx.Leaf)
		hostInfo, isRange := host.Info.(enfilade.OrglRange)
		if isRange {
			hostWidth := host.CWid[enfilade.AxisI]
			leftWidth := tumbler.Sub(off, ctx.Base)
			rightWidth := tumbler.Sub(hostWidth, leftWidth)
			rightIStart := tumbler.Add(hostInfo.IStart, leftWidth)

			if err := ds.Orgl.Delete(ctx.Leaf); err != nil {
				return err
			}
			if !leftWidth.IsZero() {
				if _, err := ds.Orgl.InsertSequential(ctx.Base, leftWidth, enfilade.OrglRange{HomeDoc: hostInfo.HomeDoc, IStart: hostInfo.IStart}); err != nil {
					return err
				}
			}
			if _, err := ds.Orgl.InsertSequential(off, width, info); err != nil {
				return err
			}
			if !rightWidth.IsZero() {
				if _, err := ds.Orgl.InsertSequential(tumbler.Add(off, width), rightWidth, enfilade.OrglRange{HomeDoc: hostInfo.HomeDoc, IStart: rightIStart}); err != nil {
					return err
				}
			}
			return nil
		}
	}

	_, err := ds.Orgl.InsertSequential(off, width, info)
	return err
}

// deleteRange removes the document-local V-range [lo,hi) from the
// document's orgl, reinserting the unaffected left/right remainder of
// any leaf straddling either edge.
func (ds *docState) deleteRange(lo, hi tumbler.Tumbler) error {
	if lo.Cmp(hi) >= 0 {
		return nil
	}
	for _, ctx := range ds.Orgl.RetrieveInSpan(lo, hi, enfilade.AxisI) {
		leaf := ds.Orgl.Arena.Get(ctx.Leaf)
		info, isRange := leaf.Info.(enfilade.OrglRange)
		if !isRange {
			continue
		}
		leafWidth := leaf.CWid[enfilade.AxisI]
		leafEnd := tumbler.Add(ctx.Base, leafWidth)

		if err := ds.Orgl.Delete(ctx.Leaf); err != nil {
			return err
		}
		if ctx.Base.Cmp(lo) < 0 {
			leftWidth := tumbler.Sub(lo, ctx.Base)
			if _, err := ds.Orgl.InsertSequential(ctx.Base, leftWidth, enfilade.OrglRange{HomeDoc: info.HomeDoc, IStart: info.IStart}); err != nil {
				return err
			}
		}
		if leafEnd.Cmp(hi) > 0 {
			rightWidth := tumbler.Sub(leafEnd, hi)
			skipped := tumbler.Sub(hi, ctx.Base)
			rightIStart := tumbler.Add(info.IStart, skipped)
			if _, err := ds.Orgl.InsertSequential(lo, rightWidth, enfilade.OrglRange{HomeDoc: info.HomeDoc, IStart: rightIStart}); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveVSpan walks the document's orgl to translate a doc-local
// vspan into the runs of the shared istream that actually back it —
// the "ispan2vspanset" lookup's dual, and the core of specset2ispanset
// (spec.md §3.5, §4.6 step 2): unlike a vspan's own Stream/Width, the
// returned fragments are real, content-addressed istream identities.
func (ds *docState) resolveVSpan(v item.VSpan) ([]granFrag, error) {
	lo := textOffset(v.Stream)
	hi := tumbler.Add(lo, v.Width)
	if lo.Cmp(hi) >= 0 {
		return nil, nil
	}
	var out []granFrag
	for _, ctx := range ds.Orgl.RetrieveInSpan(lo, hi, enfilade.AxisI) {
		leaf := ds.Orgl.Arena.Get(ctx.Leaf)
		info, isRange := leaf.Info.(enfilade.OrglRange)
		if !isRange {
			continue
		}
		leafEnd := tumbler.Add(ctx.Base, leaf.CWid[enfilade.AxisI])
		oLo, oHi, ok := overlap(lo, hi, ctx.Base, leafEnd)
		if !ok {
			continue
		}
		skip := tumbler.Sub(oLo, ctx.Base)
		out = append(out, granFrag{
			start: tumbler.Add(info.IStart, skip),
			width: tumbler.Sub(oHi, oLo),
		})
	}
	return out, nil
}

// resolveFragments is resolveVSpan over an entire vspan set, in order.
func (ds *docState) resolveFragments(vspans item.VSpanSet) ([]granFrag, error) {
	var out []granFrag
	for _, v := range vspans {
		frags, err := ds.resolveVSpan(v)
		if err != nil {
			return nil, err
		}
		out = append(out, frags...)
	}
	return out, nil
}

// Engine is the single mutable object a connection's requests are
// dispatched against — "global mutable trees" from spec.md §9's Design
// Notes, made explicit and owned by the caller instead of living as
// package-level globals.
type Engine struct {
	mu sync.Mutex

	// GranF is the shared istream (spec.md §3.3): the single GRAN tree
	// every document's content ultimately lives in. A document's orgl
	// never stores bytes itself — it stores OrglRange leaves pointing
	// into GranF, so two documents (or two versions of the same
	// document) can share a run of real bytes without copying them.
	GranF *enfilade.Tree
	// Provenance is a SPAN reverse index over GranF istream identities,
	// parallel to Links' but recording Copy's source-to-destination
	// provenance instead of link end-sets, so FindDocsContaining can
	// answer "who copied from this span" without walking every
	// document.
	Provenance *enfilade.Tree
	Links      *link.Manager
	Bert       *bert.Table
	Disk       disk.Store
	Config     Config

	orglStore *orgl.Store
	docs      map[tumbler.Tumbler]*docState
	links     map[tumbler.Tumbler]link.Link
	owners    map[tumbler.Tumbler]int
	account   map[int]tumbler.Tumbler // connection -> active account ISA

	nextTop  int64
	nextProv int64
}

// New returns an empty Engine backed by store.
func New(store disk.Store) *Engine {
	return &Engine{
		GranF:      enfilade.NewTree(enfilade.GRAN),
		Provenance: enfilade.NewTree(enfilade.SPAN),
		Links:      link.NewManager(enfilade.NewTree(enfilade.SPAN)),
		Bert:       bert.NewTable(),
		Disk:       store,
		Config:     DefaultConfig(),
		orglStore:  &orgl.Store{Disk: store},
		docs:       make(map[tumbler.Tumbler]*docState),
		links:      make(map[tumbler.Tumbler]link.Link),
		owners:     make(map[tumbler.Tumbler]int),
		account:    make(map[int]tumbler.Tumbler),
		nextTop:    1, // 0 is the nil/root ISA
	}
}

// allocISA hands out the next unused top-level ISA. Caller must hold
// e.mu. ISA hierarchy (account contains document, node contains node)
// is tracked via e.owners/e.account rather than nested tumbler-digit
// addressing — see DESIGN.md.
func (e *Engine) allocISA() tumbler.Tumbler {
	id := e.nextTop
	e.nextTop++
	return tumbler.New(false, tumbler.Digit(id))
}

// appendToGran appends text to the shared istream and returns the
// istream address it now starts at. The istream only ever grows by
// append — content is never overwritten or removed from GranF itself,
// only unreferenced from a document's orgl — so this is always a safe
// InsertSequential at the tree's current total width.
func (e *Engine) appendToGran(text []byte) (tumbler.Tumbler, error) {
	start := e.GranF.Arena.Get(e.GranF.Root).CWid[enfilade.AxisWidth]
	width := tumbler.New(false, tumbler.Digit(len(text)))
	if _, err := e.GranF.InsertSequential(start, width, enfilade.GranText{Bytes: text}); err != nil {
		return tumbler.Tumbler{}, err
	}
	return start, nil
}

// readIStream reads width bytes of real content back out of GranF
// starting at start, assembling them out of however many GranText
// leaves they happen to span.
func (e *Engine) readIStream(start, width tumbler.Tumbler) ([]byte, error) {
	if width.IsZero() {
		return nil, nil
	}
	end := tumbler.Add(start, width)
	var out []byte
	for _, ctx := range e.GranF.RetrieveInSpan(start, end, enfilade.AxisWidth) {
		leaf := e.GranF.Arena.Get(ctx.Leaf)
		text, ok := leaf.Info.(enfilade.GranText)
		if !ok {
			continue
		}
		leafEnd := tumbler.Add(ctx.Base, leaf.CWid[enfilade.AxisWidth])
		oLo, oHi, ok := overlap(start, end, ctx.Base, leafEnd)
		if !ok {
			continue
		}
		lo := int(tumbler.Sub(oLo, ctx.Base).Mantissa[0])
		hi := int(tumbler.Sub(oHi, ctx.Base).Mantissa[0])
		if lo < 0 || hi > len(text.Bytes) || lo > hi {
			return nil, errors.Errorf("engine: istream fragment [%d,%d) out of range for leaf of %d bytes", lo, hi, len(text.Bytes))
		}
		out = append(out, text.Bytes[lo:hi]...)
	}
	return out, nil
}

// CreateNodeOrAccount implements docreatenode_or_account: allocates a
// fresh top-level ISA under the NODE,NODE hint — i.e. a standalone
// node (an account, when parent is the zero tumbler) rather than a
// document tied to an existing account.
func (e *Engine) CreateNodeOrAccount(connection int) (tumbler.Tumbler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	isa := e.allocISA()
	e.owners[isa] = connection
	return isa, nil
}

// CreateNewDocument implements docreatenewdocument: allocates a new
// ISA under the ACCOUNT,DOCUMENT hint and gives it an empty orgl.
func (e *Engine) CreateNewDocument(connection int) (tumbler.Tumbler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	isa := e.allocISA()
	poom, _ := orgl.CreateOrgl()
	e.docs[isa] = &docState{Orgl: poom}
	e.owners[isa] = connection
	return isa, nil
}

// CreateNewVersion implements docreatenewversion: clones doc's current
// orgl (a structural clone — its OrglRange leaves still point at the
// same shared istream ranges, so no content is copied) and history
// into a fresh ISA, then registers the new version directly in the
// open table as already held for write by connection — the
// "open-table escape hatch" spec.md §9 calls out, since the caller
// never goes through Open to acquire it.
func (e *Engine) CreateNewVersion(doc tumbler.Tumbler, connection int) (tumbler.Tumbler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	isa, err := e.createNewVersionLocked(doc, connection)
	if err != nil {
		return isa, err
	}
	e.Bert.AddDirect(isa, connection, true, bert.WriteBert)
	return isa, nil
}

// createNewVersionLocked is CreateNewVersion's body, also used as
// bert's CreateNewVersionFunc callback (which runs under Bert's own
// lock, invoked from within Open while e.mu is already held).
func (e *Engine) createNewVersionLocked(doc tumbler.Tumbler, connection int) (tumbler.Tumbler, error) {
	src, ok := e.docs[doc]
	if !ok {
		return tumbler.Tumbler{}, errors.Errorf("engine: %s is not a document", doc)
	}
	newISA := e.allocISA()

	dstPoom := enfilade.NewTree(enfilade.POOM)
	if src.Orgl.Root != enfilade.NilCrum {
		dstPoom.Root = enfilade.CloneSubtree(src.Orgl, src.Orgl.Root, dstPoom)
	}
	history := make(item.VSpanSet, len(src.History))
	copy(history, src.History)

	e.docs[newISA] = &docState{Orgl: dstPoom, History: history}
	e.owners[newISA] = e.owners[doc]
	return newISA, nil
}

// Insert implements doinsert: appends text to the shared istream and
// splices a reference to it into doc's orgl at vsa, then records a new
// version. A mid-document vsa splits whatever range currently occupies
// that position (spec.md §6.1, §8 scenario 4).
func (e *Engine) Insert(doc tumbler.Tumbler, vsa tumbler.Tumbler, text []byte, connection int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ds, ok := e.docs[doc]
	if !ok {
		return false, nil
	}
	if !e.hasWrite(doc, connection) {
		return false, nil
	}
	if len(text) == 0 {
		return true, nil
	}
	if len(text) > e.Config.MaxPayloadBytes {
		return false, errors.New("engine: insert exceeds MaxPayloadBytes")
	}

	start, err := e.appendToGran(text)
	if err != nil {
		return false, err
	}
	width := tumbler.New(false, tumbler.Digit(len(text)))
	if err := ds.insertContent(textOffset(vsa), width, doc, start); err != nil {
		return false, err
	}

	e.Bert.LogModified(doc, connection)
	ds.recordVersion()
	return true, nil
}

// Copy implements docopy: splices references to the istream ranges
// backing specset into dstDoc's orgl starting at vsa — a transclusion,
// not a byte copy — and records a new version, indexing the
// provenance (istream range -> dstDoc) in e.Provenance so
// FindDocsContaining can later answer which documents copied from a
// given span.
func (e *Engine) Copy(dstDoc tumbler.Tumbler, vsa tumbler.Tumbler, specset item.SpecSet, connection int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dst, ok := e.docs[dstDoc]
	if !ok {
		return false, nil
	}
	if !e.hasWrite(dstDoc, connection) {
		return false, nil
	}

	var frags []granFrag
	for _, spec := range specset {
		src, ok := e.docs[spec.DocISA]
		if !ok {
			return false, errors.Errorf("engine: %s is not a document", spec.DocISA)
		}
		f, err := src.resolveFragments(spec.VSpanSet)
		if err != nil {
			return false, err
		}
		frags = append(frags, f...)
	}

	off := textOffset(vsa)
	for _, f := range frags {
		if err := dst.insertContent(off, f.width, dstDoc, f.start); err != nil {
			return false, err
		}
		off = tumbler.Add(off, f.width)

		provSeq := e.nextProv
		e.nextProv++
		provVsa := tumbler.New(false, tumbler.Digit(provSeq))
		if _, err := e.Provenance.Insert2D(f.start, f.width, provVsa, tumbler.New(false, 1), enfilade.TwoDInfo{HomeDoc: dstDoc}); err != nil {
			return false, err
		}
	}

	e.Bert.LogModified(dstDoc, connection)
	dst.recordVersion()
	return true, nil
}

// Rearrange implements dorearrange: rebuilds doc's orgl as the
// concatenation of the document-local ranges named by cutSeq, in
// order — still referencing the same istream bytes, just reordered.
func (e *Engine) Rearrange(doc tumbler.Tumbler, cutSeq []item.ISpan, connection int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ds, ok := e.docs[doc]
	if !ok {
		return false, nil
	}
	if !e.hasWrite(doc, connection) {
		return false, nil
	}

	var frags []granFrag
	for _, cut := range cutSeq {
		f, err := ds.resolveVSpan(item.VSpan{Stream: vAddrFromOffset(cut.Stream), Width: cut.Width})
		if err != nil {
			return false, err
		}
		frags = append(frags, f...)
	}

	newOrgl := enfilade.NewTree(enfilade.POOM)
	off := tumbler.Zero
	for _, f := range frags {
		if _, err := newOrgl.InsertSequential(off, f.width, enfilade.OrglRange{HomeDoc: doc, IStart: f.start}); err != nil {
			return false, err
		}
		off = tumbler.Add(off, f.width)
	}
	ds.Orgl = newOrgl

	e.Bert.LogModified(doc, connection)
	ds.recordVersion()
	return true, nil
}

// DeleteVSpan implements dodeletevspan: removes the document-local
// range vspan names from doc's orgl (spec.md §8 scenario 2) — the
// backing istream bytes in GranF are untouched, since other versions
// or other documents may still reference them.
func (e *Engine) DeleteVSpan(doc tumbler.Tumbler, vspan item.VSpan, connection int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ds, ok := e.docs[doc]
	if !ok {
		return false, nil
	}
	if !e.hasWrite(doc, connection) {
		return false, nil
	}

	lo := textOffset(vspan.Stream)
	hi := tumbler.Add(lo, vspan.Width)
	if err := ds.deleteRange(lo, hi); err != nil {
		return false, err
	}
	e.Bert.LogModified(doc, connection)
	ds.recordVersion()
	return true, nil
}

// hasWrite reports whether connection currently holds at least
// WriteBert on doc — the guard every content-mutating operation
// checks before touching a document, per spec.md §4.8.
func (e *Engine) hasWrite(doc tumbler.Tumbler, connection int) bool {
	_, ok, _ := e.Bert.Open(doc, bert.WriteBert, bert.ModeOnly, connection, e.isOwnedBy, nil)
	return ok
}

func (e *Engine) isOwnedBy(tp tumbler.Tumbler, connection int) bool {
	owner, ok := e.owners[tp]
	return ok && owner == connection
}

// Open implements doopen.
func (e *Engine) Open(doc tumbler.Tumbler, typ bert.Type, mode bert.Mode, connection int) (tumbler.Tumbler, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Bert.Open(doc, typ, mode, connection, e.isOwnedBy, func() (tumbler.Tumbler, error) {
		return e.createNewVersionLocked(doc, connection)
	})
}

// Close implements doclose.
func (e *Engine) Close(doc tumbler.Tumbler, connection int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Bert.Close(doc, connection, nil)
}

// Quit implements the connection-level cleanup dobertexit performs on
// disconnect.
func (e *Engine) Quit(connection int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Bert.CloseAll(connection, nil)
	delete(e.account, connection)
}

// XAccount implements getxaccount/the XACCOUNT request: validates
// account and, if it names a known account ISA, records it as
// connection's active account. CreateNewDocument does not read the
// active account: it allocates a flat ISA owned by the connection.
func (e *Engine) XAccount(connection int, account tumbler.Tumbler) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.owners[account]; !ok {
		return false
	}
	e.account[connection] = account
	return true
}

// CreateLink implements docreatelink.
func (e *Engine) CreateLink(connection int, from, to, three item.SpecSet) (tumbler.Tumbler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	isa := e.allocISA()
	poom, _ := orgl.CreateOrgl()
	l := link.Link{ISA: isa, Orgl: poom}
	if err := e.Links.CreateLink(l, from, to, three); err != nil {
		return tumbler.Tumbler{}, err
	}
	e.links[isa] = l
	e.owners[isa] = connection
	return isa, nil
}

// MakeLink implements domakelink (the two-endset link predecessor
// docreatelink generalizes).
func (e *Engine) MakeLink(connection int, from, to item.SpecSet) (tumbler.Tumbler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	isa := e.allocISA()
	poom, _ := orgl.CreateOrgl()
	l := link.Link{ISA: isa, Orgl: poom}
	if err := e.Links.MakeLink(l, from, to); err != nil {
		return tumbler.Tumbler{}, err
	}
	e.links[isa] = l
	e.owners[isa] = connection
	return isa, nil
}

// FollowLink implements dofollowlink.
func (e *Engine) FollowLink(linkISA tumbler.Tumbler, which item.EndSetKind) (item.SpecSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.links[linkISA]
	if !ok {
		return nil, errors.Errorf("engine: %s is not a link", linkISA)
	}
	return e.Links.FollowLink(l, which)
}

// FindLinksFromToThree implements dofindlinksfromtothree.
func (e *Engine) FindLinksFromToThree(from, to, three item.SpecSet) []tumbler.Tumbler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Links.FindLinksFromToThree(from, to, three)
}

// FindNumOfLinksFromToThree implements dofindnumoflinksfromtothree.
func (e *Engine) FindNumOfLinksFromToThree(from, to, three item.SpecSet) int {
	return len(e.FindLinksFromToThree(from, to, three))
}

// FindNextNLinksFromToThree implements dofindnextnlinksfromtothree:
// pages through the (unordered) match set n at a time, resuming after
// lastLink.
func (e *Engine) FindNextNLinksFromToThree(from, to, three item.SpecSet, lastLink tumbler.Tumbler, n int) []tumbler.Tumbler {
	all := e.FindLinksFromToThree(from, to, three)
	if lastLink == (tumbler.Tumbler{}) {
		if n > len(all) {
			n = len(all)
		}
		return all[:n]
	}
	start := -1
	for i, t := range all {
		if t == lastLink {
			start = i + 1
			break
		}
	}
	if start < 0 || start >= len(all) {
		return nil
	}
	end := start + n
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

// RetrieveEndSets implements doretrieveendsets: for every link named
// in specset, collects its From/To/Three end-sets.
func (e *Engine) RetrieveEndSets(specset item.SpecSet) (from, to, three item.SpecSet, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, spec := range specset {
		l, ok := e.links[spec.DocISA]
		if !ok {
			continue
		}
		f, ferr := e.Links.FollowLink(l, item.EndSetFrom)
		if ferr != nil {
			return nil, nil, nil, ferr
		}
		t, terr := e.Links.FollowLink(l, item.EndSetTo)
		if terr != nil {
			return nil, nil, nil, terr
		}
		h, herr := e.Links.FollowLink(l, item.EndSetThree)
		if herr != nil {
			return nil, nil, nil, herr
		}
		from = append(from, f...)
		to = append(to, t...)
		three = append(three, h...)
	}
	return from, to, three, nil
}

// retrieveVLocked is RetrieveV's body; caller must hold e.mu.
func (e *Engine) retrieveVLocked(specset item.SpecSet) ([][]byte, error) {
	out := make([][]byte, 0, len(specset))
	for _, spec := range specset {
		ds, ok := e.docs[spec.DocISA]
		if !ok {
			return nil, errors.Errorf("engine: %s is not a document", spec.DocISA)
		}
		frags, err := ds.resolveFragments(spec.VSpanSet)
		if err != nil {
			return nil, err
		}
		var b []byte
		for _, f := range frags {
			chunk, err := e.readIStream(f.start, f.width)
			if err != nil {
				return nil, err
			}
			b = append(b, chunk...)
		}
		out = append(out, b)
	}
	return out, nil
}

// RetrieveV implements doretrievev.
func (e *Engine) RetrieveV(specset item.SpecSet) ([][]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retrieveVLocked(specset)
}

// RetrieveDocVSpan implements doretrievedocvspan: the single vspan
// covering doc's entire current content.
func (e *Engine) RetrieveDocVSpan(doc tumbler.Tumbler) (item.VSpan, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ds, ok := e.docs[doc]
	if !ok {
		return item.VSpan{}, false
	}
	return item.VSpan{Stream: textSubspaceOrigin, Width: ds.width()}, true
}

// RetrieveDocVSpanSet implements doretrievedocvspanset: every version
// vspan ever recorded for doc.
func (e *Engine) RetrieveDocVSpanSet(doc tumbler.Tumbler) (item.VSpanSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ds, ok := e.docs[doc]
	if !ok {
		return nil, errors.Errorf("engine: %s is not a document", doc)
	}
	out := make(item.VSpanSet, len(ds.History))
	copy(out, ds.History)
	return out, nil
}

// FindDocsContaining implements dofinddocscontaining: every document
// ISA that has ever Copy'd from an istream range overlapping specset.
func (e *Engine) FindDocsContaining(specset item.SpecSet) []tumbler.Tumbler {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[tumbler.Tumbler]bool)
	var out []tumbler.Tumbler
	for _, spec := range specset {
		src, ok := e.docs[spec.DocISA]
		if !ok {
			continue
		}
		frags, err := src.resolveFragments(spec.VSpanSet)
		if err != nil {
			continue
		}
		for _, f := range frags {
			for _, ctx := range e.Provenance.RetrieveInSpan(f.start, tumbler.Add(f.start, f.width), enfilade.AxisI) {
				leaf := e.Provenance.Arena.Get(ctx.Leaf)
				info, ok := leaf.Info.(enfilade.TwoDInfo)
				if !ok || seen[info.HomeDoc] {
					continue
				}
				seen[info.HomeDoc] = true
				out = append(out, info.HomeDoc)
			}
		}
	}
	return out
}

// docISpans implements the ispan2vspanset reverse lookup
// (span.ISpanLookup): given a real istream range, finds the doc-local
// vspans of doc whose backing overlaps it, by walking doc's orgl. This
// is toISpanSet's inverse.
func (e *Engine) docISpans(doc tumbler.Tumbler, ispan item.ISpan) (item.VSpanSet, bool) {
	ds, ok := e.docs[doc]
	if !ok {
		return nil, false
	}
	total := ds.width()
	if total.IsZero() {
		return nil, true
	}
	iLo, iHi := ispan.Stream, ispan.End()
	var out item.VSpanSet
	for _, ctx := range ds.Orgl.RetrieveInSpan(tumbler.Zero, total, enfilade.AxisI) {
		leaf := ds.Orgl.Arena.Get(ctx.Leaf)
		info, isRange := leaf.Info.(enfilade.OrglRange)
		if !isRange {
			continue
		}
		backingEnd := tumbler.Add(info.IStart, leaf.CWid[enfilade.AxisI])
		oLo, oHi, ok := overlap(iLo, iHi, info.IStart, backingEnd)
		if !ok {
			continue
		}
		skip := tumbler.Sub(oLo, info.IStart)
		vLo := tumbler.Add(ctx.Base, skip)
		out = append(out, item.VSpan{Stream: vAddrFromOffset(vLo), Width: tumbler.Sub(oHi, oLo)})
	}
	return out, true
}

// toISpanSet implements specset2ispanset (spec.md §3.5, §4.6 step 2):
// walks each named document's orgl to resolve its vspans into the
// real, content-addressed istream ranges that back them, rather than
// merely relabeling each vspan's own (document-local, not
// content-identifying) Stream/Width.
func (e *Engine) toISpanSet(specset item.SpecSet) []item.ISpan {
	var out []item.ISpan
	for _, spec := range specset {
		ds, ok := e.docs[spec.DocISA]
		if !ok {
			continue
		}
		frags, err := ds.resolveFragments(spec.VSpanSet)
		if err != nil {
			continue
		}
		for _, f := range frags {
			out = append(out, item.ISpan{Stream: f.start, Width: f.width})
		}
	}
	return out
}

// ShowRelationOf2Versions implements doshowrelationof2versions.
func (e *Engine) ShowRelationOf2Versions(v1, v2 item.SpecSet) []version.SpanPair {
	e.mu.Lock()
	defer e.mu.Unlock()
	return version.ShowRelationOf2Versions(v1, v2, e.toISpanSet)
}

// RestrictToCommonSpans exposes package span's
// RestrictVSpecSetOverCommonISpans wired to this engine's documents —
// used by callers that need a specset trimmed to the portions actually
// still covered by a document's current content, per spec.md §4.5's
// deletion/rearrangement narrowing rule.
func (e *Engine) RestrictToCommonSpans(ispanset []item.ISpan, specset item.SpecSet) item.SpecSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return span.RestrictVSpecSetOverCommonISpans(ispanset, specset, e.docISpans)
}

// DumpState implements the DUMPSTATE request: writes GranF's structure
// — the engine's entire real content, since every document's orgl is
// only references into it — in the wire package's nested DUMPSTATE
// form.
func (e *Engine) DumpState(w io.Writer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return wire.WriteDumpState(w, e.GranF)
}

// Checkpoint persists GranF, every live document's orgl, and every
// live link's orgl to disk, then checkpoints the store itself — the
// engine-level entry point to the disk package's Store.Checkpoint, run
// periodically or before a clean shutdown.
func (e *Engine) Checkpoint() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.GranF.Root != enfilade.NilCrum {
		if _, err := e.Disk.StoreOrgl(e.GranF.Root, e.GranF.Arena); err != nil {
			return errors.Wrap(err, "engine: checkpointing istream")
		}
	}
	for doc, ds := range e.docs {
		if ds.Orgl.Root == enfilade.NilCrum {
			continue
		}
		if _, err := e.Disk.StoreOrgl(ds.Orgl.Root, ds.Orgl.Arena); err != nil {
			return errors.Wrapf(err, "engine: checkpointing orgl for %s", doc)
		}
	}
	for isa, l := range e.links {
		if l.Orgl == nil || l.Orgl.Root == enfilade.NilCrum {
			continue
		}
		if _, err := e.Disk.StoreOrgl(l.Orgl.Root, l.Orgl.Arena); err != nil {
			return errors.Wrapf(err, "engine: checkpointing link orgl for %s", isa)
		}
	}
	return e.Disk.Checkpoint()
}

// Dispatch decodes code and args and calls the matching do*-derived
// method, allocating task as the request's scratch arena and releasing
// it on return. It exists to give request handling (e.g. the wire
// listener in cmd/enfiladed) a single call site instead of one per
// request code; most callers in tests call the typed methods above
// directly.
func (e *Engine) Dispatch(t *task.Arena, code Code, connection int, args ...any) (any, error) {
	defer t.Release()

	switch code {
	case CodeCreateNewDocument:
		return e.CreateNewDocument(connection)
	case CodeCreateNodeOrAccount:
		return e.CreateNodeOrAccount(connection)
	case CodeCreateNewVersion:
		doc, ok := args[0].(tumbler.Tumbler)
		if !ok {
			return nil, errors.New("engine: CreateNewVersion expects a tumbler.Tumbler argument")
		}
		return e.CreateNewVersion(doc, connection)
	case CodeQuit:
		e.Quit(connection)
		return nil, nil
	default:
		return nil, errors.Errorf("engine: unhandled request code %v", code)
	}
}

// Code names a request code from spec.md §6.1. Dispatch only switches
// on the handful with a single natural argument shape; the rest are
// meant to be called directly as typed methods (the shape of
// do1.c's do* functions varies too much — 2 to 6 typed pointer
// out-params apiece — to flatten usefully into one args ...any
// switch without losing the type safety those signatures give callers
// who aren't going through the wire listener).
type Code int

const (
	CodeInsert Code = iota
	CodeCopy
	CodeRearrange
	CodeDeleteVSpan
	CodeCreateNewDocument
	CodeCreateNewVersion
	CodeCreateNodeOrAccount
	CodeCreateLink
	CodeFollowLink
	CodeFindLinksFromToThree
	CodeFindNumOfLinksFromToThree
	CodeFindNextNLinksFromToThree
	CodeRetrieveV
	CodeRetrieveDocVSpan
	CodeRetrieveDocVSpanSet
	CodeRetrieveEndSets
	CodeFindDocsContaining
	CodeShowRelationOf2Versions
	CodeXAccount
	CodeOpen
	CodeClose
	CodeQuit
	CodeDumpState
)
