// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package enfilade

import (
	"fmt"
	"io"
	"strings"
)

// String renders t's tree for debugging via Dump; it panics on a
// write error the way the teacher's dumpString does, since a
// strings.Builder never fails to write.
func (t *Tree) String() string {
	w := new(strings.Builder)
	if err := t.Dump(w); err != nil {
		panic(err)
	}
	return w.String()
}

// Dump writes a human-readable recursive rendering of t to w: one
// line per crum, indented by depth, in the spirit of the wire
// protocol's DUMPSTATE nested form (spec.md §6.2) but meant for
// interactive debugging rather than round-tripping through a parser —
// see package wire for the literal DUMPSTATE grammar.
func (t *Tree) Dump(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s:\n", t.Type); err != nil {
		return err
	}
	return t.dumpRec(w, t.Root, 0)
}

func (t *Tree) dumpRec(w io.Writer, id CrumID, depth int) error {
	n := t.Arena.Get(id)
	indent := strings.Repeat(".", depth)
	kind := "cuc"
	if n.IsLeaf() {
		kind = "cbc"
	}
	if _, err := fmt.Fprintf(w, "%s[%s] id:%d h:%d apex:%t wid:%v\n", indent, kind, id, n.Height, n.IsApex, n.CWid); err != nil {
		return err
	}
	if n.IsLeaf() {
		return dumpLeafInfo(w, indent, n.Info)
	}
	for _, sonID := range n.Sons {
		if err := t.dumpRec(w, sonID, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func dumpLeafInfo(w io.Writer, indent string, info LeafInfo) error {
	switch v := info.(type) {
	case GranText:
		_, err := fmt.Fprintf(w, "%stext(#%d)\n", indent, len(v.Bytes))
		return err
	case GranOrgl:
		_, err := fmt.Fprintf(w, "%sorgl(incore=%t disk=%d)\n", indent, v.OrglInCore, v.DiskOrglPtr)
		return err
	case TwoDInfo:
		_, err := fmt.Fprintf(w, "%shomedoc:%v\n", indent, v.HomeDoc)
		return err
	case OrglRange:
		_, err := fmt.Fprintf(w, "%shomedoc:%v istart:%v\n", indent, v.HomeDoc, v.IStart)
		return err
	default:
		_, err := fmt.Fprintf(w, "%s<empty>\n", indent)
		return err
	}
}
