// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Command enfiladed listens for enfilade wire-protocol connections and
// dispatches them against a single shared engine.Engine backed by a
// disk.FileStore, in the teacher's flag-configured single-binary
// style (cmd/main.go).
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"sync/atomic"

	"github.com/udanax/enfilade/bert"
	"github.com/udanax/enfilade/disk"
	"github.com/udanax/enfilade/engine"
	"github.com/udanax/enfilade/item"
	"github.com/udanax/enfilade/task"
	"github.com/udanax/enfilade/wire"
)

// bertType and bertMode decode the small integer codes a wire OPEN
// request carries for its bert type/mode arguments.
func bertType(n int64) bert.Type { return bert.Type(n) }
func bertMode(n int64) bert.Mode { return bert.Mode(n) }

func main() {
	addr := flag.String("addr", ":8420", "listen address")
	dbPath := flag.String("db", "enfilade.db", "disk block file path")
	flag.Parse()

	log.SetFlags(log.Lmicroseconds)

	store, err := disk.NewFileStore(*dbPath)
	if err != nil {
		log.Fatalf("enfiladed: opening %s: %v", *dbPath, err)
	}
	defer store.Close()

	eng := engine.New(store)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("enfiladed: listen %s: %v", *addr, err)
	}
	log.Printf("enfiladed: listening on %s, store %s", *addr, *dbPath)

	var nextConn int64
	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("enfiladed: accept: %v", err)
			continue
		}
		id := int(atomic.AddInt64(&nextConn, 1))
		go serve(eng, conn, id)
	}
}

// serve handles one connection: a loop of request-code, request-args,
// response, until the peer disconnects or sends Quit. It owns the
// connection's bert-table identity (id) for the lifetime of the
// socket, per spec.md §4.8's per-connection open-table bookkeeping.
func serve(eng *engine.Engine, conn net.Conn, id int) {
	defer conn.Close()
	defer eng.Quit(id)

	r := wire.NewReader(conn)
	w := wire.NewWriter(conn)

	for {
		code, err := r.ReadNumber()
		if err != nil {
			if err != io.EOF {
				log.Printf("enfiladed: conn %d: read request code: %v", id, err)
			}
			return
		}

		t := task.Get()
		done, err := handle(eng, t, w, id, engine.Code(code), r)
		t.Release()
		if err != nil {
			log.Printf("enfiladed: conn %d: request %d: %v", id, code, err)
			if ferr := w.WriteFail(); ferr != nil {
				return
			}
		}
		if ferr := w.Flush(); ferr != nil {
			return
		}
		if done {
			return
		}
	}
}

// handle dispatches a single decoded request, reading its arguments
// off r and writing its reply through w. Returns done=true once the
// connection should close (a Quit request).
func handle(eng *engine.Engine, t *task.Arena, w *wire.Writer, connection int, code engine.Code, r *wire.Reader) (done bool, err error) {
	switch code {
	case engine.CodeCreateNewDocument:
		isa, err := eng.CreateNewDocument(connection)
		if err != nil {
			return false, err
		}
		return false, w.WriteTumbler(isa)

	case engine.CodeCreateNodeOrAccount:
		isa, err := eng.CreateNodeOrAccount(connection)
		if err != nil {
			return false, err
		}
		return false, w.WriteTumbler(isa)

	case engine.CodeCreateNewVersion:
		doc, err := r.ReadTumbler()
		if err != nil {
			return false, err
		}
		isa, err := eng.CreateNewVersion(doc, connection)
		if err != nil {
			return false, err
		}
		return false, w.WriteTumbler(isa)

	case engine.CodeXAccount:
		account, err := r.ReadTumbler()
		if err != nil {
			return false, err
		}
		ok := eng.XAccount(connection, account)
		if !ok {
			return false, w.WriteFail()
		}
		return false, w.WriteNumber(1)

	case engine.CodeInsert:
		doc, err := r.ReadTumbler()
		if err != nil {
			return false, err
		}
		vsa, err := r.ReadTumbler()
		if err != nil {
			return false, err
		}
		text, err := r.ReadText()
		if err != nil {
			return false, err
		}
		ok, err := eng.Insert(doc, vsa, text, connection)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, w.WriteFail()
		}
		return false, w.WriteNumber(1)

	case engine.CodeRetrieveV:
		items, err := r.ReadItemSet()
		if err != nil {
			return false, err
		}
		specset := itemsToSpecSet(items)
		payload, err := eng.RetrieveV(specset)
		if err != nil {
			return false, err
		}
		vals := make([]item.Value, len(payload))
		for i, b := range payload {
			vals[i] = item.Text{Bytes: b}
		}
		return false, w.WriteItemSet(vals)

	case engine.CodeOpen:
		doc, err := r.ReadTumbler()
		if err != nil {
			return false, err
		}
		typCode, err := r.ReadNumber()
		if err != nil {
			return false, err
		}
		modeCode, err := r.ReadNumber()
		if err != nil {
			return false, err
		}
		actual, ok, err := eng.Open(doc, bertType(typCode), bertMode(modeCode), connection)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, w.WriteFail()
		}
		return false, w.WriteTumbler(actual)

	case engine.CodeClose:
		doc, err := r.ReadTumbler()
		if err != nil {
			return false, err
		}
		if !eng.Close(doc, connection) {
			return false, w.WriteFail()
		}
		return false, w.WriteNumber(1)

	case engine.CodeDumpState:
		return false, eng.DumpState(w.Raw())

	case engine.CodeQuit:
		return true, nil

	default:
		return false, errUnhandledCode(code)
	}
}

// itemsToSpecSet reassembles a wire item set of VSpec values into an
// item.SpecSet, skipping any item that isn't a vspec (a malformed
// request rather than an internal invariant break).
func itemsToSpecSet(items []item.Value) item.SpecSet {
	out := make(item.SpecSet, 0, len(items))
	for _, v := range items {
		if spec, ok := v.(item.VSpec); ok {
			out = append(out, spec)
		}
	}
	return out
}

func errUnhandledCode(code engine.Code) error {
	return fmt.Errorf("enfiladed: no wire handler for request code %d", code)
}
