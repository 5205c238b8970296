// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package bert implements the open table: the per-document,
// per-connection state machine that gates writes (spec.md §4.8).
// Grounded on original_source/green/be_source/bert.c's
// checkforopen/doopen/addtoopen/incrementopen/removefromopen/exitbert.
// The original's fixed NUMBEROFBERTTABLE-bucket hash table of cons
// cells is a C workaround for the lack of a map type, not a
// deliberate design choice, so it's generalized here to a plain
// map[tumbler.Tumbler][]*Entry guarded by a mutex.
package bert

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/udanax/enfilade/tumbler"
)

// Type is the kind of access a request needs on a document.
type Type int

const (
	NoBertRequired Type = iota
	ReadBert
	WriteBert
)

func (t Type) String() string {
	switch t {
	case NoBertRequired:
		return "NOBERT"
	case ReadBert:
		return "READBERT"
	case WriteBert:
		return "WRITEBERT"
	default:
		return "UNKNOWN"
	}
}

// Mode selects how Open behaves when the document is already open —
// BERTMODECOPYIF / BERTMODEONLY / BERTMODECOPY.
type Mode int

const (
	ModeCopyIf Mode = iota
	ModeOnly
	ModeCopy
)

// Entry is one open-table row: a connection's current hold on a
// document (bertentry).
type Entry struct {
	Connection int
	DocumentID tumbler.Tumbler
	Created    bool
	Modified   bool
	Type       Type
	Count      int
}

// Table is the open table for every document currently held open by
// any connection.
type Table struct {
	mu      sync.Mutex
	entries map[tumbler.Tumbler][]*Entry
}

// NewTable returns an empty open table.
func NewTable() *Table {
	return &Table{entries: make(map[tumbler.Tumbler][]*Entry)}
}

// IsOwnedByFunc reports whether connection owns tp's account, i.e.
// isthisusersdocument — supplied by the engine, which owns account
// lookups.
type IsOwnedByFunc func(tp tumbler.Tumbler, connection int) bool

// CreateNewVersionFunc performs create_new_version(doc, account) ->
// new_doc, supplied by the engine.
type CreateNewVersionFunc func() (tumbler.Tumbler, error)

// DeleteVersionFunc reclaims a version created-but-never-modified at
// close time — deleteversion.
type DeleteVersionFunc func(tp tumbler.Tumbler)

// openState is checkforopen's return convention: openRequired (0)
// means no entry yet exists and one should be added; newVersionNeeded
// (-1) means a copy must be made; any other value is the Type of the
// already-open entry found for this connection.
type openState int

const (
	openRequired     openState = 0
	newVersionNeeded openState = -1
)

// checkForOpen implements checkforopen: scan every entry for tp,
// distinguishing a hit by the same connection (returns its type, or
// -1 if it holds read but a write is requested) from a hit by another
// connection (which blocks a plain open when that connection holds a
// non-read lock, or when a write is requested while it holds read).
func (t *Table) checkForOpen(tp tumbler.Tumbler, typ Type, connection int, isOwned IsOwnedByFunc) openState {
	if typ == NoBertRequired {
		return openState(1) // "random > 0" in the original: any truthy sentinel
	}

	foundNonRead := false
	for _, e := range t.entries[tp] {
		if e.Connection == connection {
			switch e.Type {
			case ReadBert:
				if typ == ReadBert {
					return openState(ReadBert)
				}
				return newVersionNeeded
			case WriteBert:
				return openState(WriteBert)
			}
		} else if e.Type != ReadBert || typ == WriteBert {
			foundNonRead = true
		}
	}

	if !foundNonRead && (typ == ReadBert || isOwned(tp, connection)) {
		return openRequired
	}
	return newVersionNeeded
}

// addToOpen appends a fresh entry — addtoopen.
func (t *Table) addToOpen(tp tumbler.Tumbler, connection int, created bool, typ Type) {
	t.entries[tp] = append(t.entries[tp], &Entry{
		Connection: connection,
		DocumentID: tp,
		Created:    created,
		Type:       typ,
		Count:      1,
	})
}

// AddDirect is addToOpen exposed publicly: the documented escape
// hatch create_new_version uses to register a freshly-minted version
// as open without going through Open's ownership gate (spec.md §9).
func (t *Table) AddDirect(tp tumbler.Tumbler, connection int, created bool, typ Type) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addToOpen(tp, connection, created, typ)
}

// incrementOpen bumps every one of connection's entries for tp —
// incrementopen (the original loops over every match; in practice
// Open/addToOpen never create more than one entry per (tp,
// connection) pair, so this affects at most one entry).
func (t *Table) incrementOpen(tp tumbler.Tumbler, connection int) {
	for _, e := range t.entries[tp] {
		if e.Connection == connection {
			e.Count++
		}
	}
}

// LogModified marks connection's open entry for tp as modified —
// logbertmodified.
func (t *Table) LogModified(tp tumbler.Tumbler, connection int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries[tp] {
		if e.Connection == connection {
			e.Modified = true
			return
		}
	}
}

// Open implements doopen: gate a request for type access to tp under
// mode, returning the tumbler the caller should actually use (tp
// itself, or a freshly created version) and whether the open
// succeeded.
func (t *Table) Open(tp tumbler.Tumbler, typ Type, mode Mode, connection int, isOwned IsOwnedByFunc, createNewVersion CreateNewVersionFunc) (tumbler.Tumbler, bool, error) {
	if typ == NoBertRequired {
		return tp, true, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if mode == ModeCopy {
		newtp, err := createNewVersion()
		if err != nil {
			return tumbler.Tumbler{}, false, errors.Wrap(err, "bert: creating new version for COPY open")
		}
		t.addToOpen(newtp, connection, true, typ)
		return newtp, true, nil
	}

	state := t.checkForOpen(tp, typ, connection, isOwned)

	if state == openRequired {
		t.addToOpen(tp, connection, false, typ)
		return tp, true, nil
	}

	switch mode {
	case ModeCopyIf:
		if state == newVersionNeeded {
			return t.copyNew(tp, connection, typ, createNewVersion)
		}
		if typ != WriteBert && Type(state) != WriteBert {
			t.incrementOpen(tp, connection)
			return tp, true, nil
		}
		return t.copyNew(tp, connection, typ, createNewVersion)
	case ModeOnly:
		if state == newVersionNeeded || typ == WriteBert || Type(state) == WriteBert {
			return tumbler.Tumbler{}, false, nil
		}
		t.incrementOpen(tp, connection)
		return tp, true, nil
	default:
		return tumbler.Tumbler{}, false, errors.Errorf("bert: unknown open mode %d", mode)
	}
}

func (t *Table) copyNew(tp tumbler.Tumbler, connection int, typ Type, createNewVersion CreateNewVersionFunc) (tumbler.Tumbler, bool, error) {
	newtp, err := createNewVersion()
	if err != nil {
		return tumbler.Tumbler{}, false, errors.Wrap(err, "bert: creating new version")
	}
	t.addToOpen(newtp, connection, true, typ)
	return newtp, true, nil
}

// removeFromOpen implements removefromopen: decrement the matching
// entry's count, and on reaching zero, drop it — reclaiming the
// version if it was created but never modified.
func (t *Table) removeFromOpen(tp tumbler.Tumbler, connection int, deleteVersion DeleteVersionFunc) bool {
	entries := t.entries[tp]
	for i, e := range entries {
		if e.Connection != connection {
			continue
		}
		e.Count--
		if e.Count > 0 {
			return true
		}
		if e.Created && !e.Modified && deleteVersion != nil {
			deleteVersion(tp)
		}
		t.entries[tp] = append(entries[:i], entries[i+1:]...)
		if len(t.entries[tp]) == 0 {
			delete(t.entries, tp)
		}
		return true
	}
	return false
}

// Close implements doclose.
func (t *Table) Close(tp tumbler.Tumbler, connection int, deleteVersion DeleteVersionFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeFromOpen(tp, connection, deleteVersion)
}

// CloseAll implements exitbert/dobertexit: drop every entry held by
// connection across every document, on disconnect.
func (t *Table) CloseAll(connection int, deleteVersion DeleteVersionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for tp, entries := range t.entries {
		var kept []*Entry
		for _, e := range entries {
			if e.Connection != connection {
				kept = append(kept, e)
				continue
			}
			if e.Created && e.Modified && deleteVersion != nil {
				deleteVersion(e.DocumentID)
			}
		}
		if len(kept) == 0 {
			delete(t.entries, tp)
		} else {
			t.entries[tp] = kept
		}
	}
}
