// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package wire implements the line protocol's grammar (spec.md §6.2):
// decimal-ASCII numbers terminated by '~', tumblers rendered as
// "neg_exp~.d0.d1…~", tagged items, item sets, and the DUMPSTATE
// nested tree form. There is no literal grammar for any of this in
// original_source — the historical dump functions
// (test.c's dumpsubtree/showspanfcrum) write to stderr for a human,
// not to a socket for a parser — so this package implements spec.md's
// grammar directly, choosing concrete tag bytes and field order
// consistent with the fragment spec.md §6.2 gives.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/udanax/enfilade/enfilade"
	"github.com/udanax/enfilade/item"
	"github.com/udanax/enfilade/tumbler"
)

// Item tag bytes, spec.md §6.2: "an item is tagged by a single flag
// char": 's' for ispan, 'v' for vspec, 't' for text, 'l' for link
// end-set reference (sporgl), 'a' for a bare address. vspan carries no
// tag (it only ever appears nested inside a vspec's item set, where
// the vspec tag already disambiguates it).
const (
	tagISpan   = 's'
	tagVSpec   = 'v'
	tagText    = 't'
	tagSporgl  = 'l'
	tagAddress = 'a'
	tagFail    = '?'
)

// ErrRequestFailed is the sentinel an engine method's `false` return
// is translated to on the wire — the '?' token (spec.md §7).
var ErrRequestFailed = errors.New("wire: request failed")

// Reader decodes tokens from the wire grammar.
type Reader struct {
	br *bufio.Reader
}

// NewReader wraps r for wire-grammar decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// ReadNumber reads a decimal integer, optionally signed, terminated by
// '~'.
func (r *Reader) ReadNumber() (int64, error) {
	s, err := r.br.ReadString('~')
	if err != nil {
		return 0, errors.Wrap(err, "wire: reading number")
	}
	s = s[:len(s)-1] // drop the trailing '~'
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "wire: bad number %q", s)
	}
	return n, nil
}

// ReadTumbler reads "neg_exp~.d0.d1…~" and returns the Tumbler it
// encodes. The exponent token's own leading '-', if present, is the
// tumbler's Sign (a well-formed Tumbler never has a positive Exp, so
// the "-exp" magnitude itself is never negative — see tumbler.Check).
func (r *Reader) ReadTumbler() (tumbler.Tumbler, error) {
	expTok, err := r.br.ReadString('~')
	if err != nil {
		return tumbler.Tumbler{}, errors.Wrap(err, "wire: reading tumbler exponent")
	}
	expTok = expTok[:len(expTok)-1]

	sign := false
	if strings.HasPrefix(expTok, "-") {
		sign = true
		expTok = expTok[1:]
	}
	negExp, err := strconv.ParseInt(expTok, 10, 64)
	if err != nil {
		return tumbler.Tumbler{}, errors.Wrapf(err, "wire: bad tumbler exponent %q", expTok)
	}

	rest, err := r.br.ReadString('~')
	if err != nil {
		return tumbler.Tumbler{}, errors.Wrap(err, "wire: reading tumbler mantissa")
	}
	rest = rest[:len(rest)-1]

	var digits []tumbler.Digit
	i := 0
	for i < len(rest) {
		if rest[i] != '.' {
			return tumbler.Tumbler{}, errors.Errorf("wire: malformed tumbler mantissa %q", rest)
		}
		i++
		start := i
		for i < len(rest) && rest[i] != '.' {
			i++
		}
		d, err := strconv.ParseInt(rest[start:i], 10, 64)
		if err != nil {
			return tumbler.Tumbler{}, errors.Wrapf(err, "wire: bad mantissa digit in %q", rest)
		}
		digits = append(digits, tumbler.Digit(d))
	}

	t := tumbler.New(sign, digits...)
	t.Exp = int(-negExp)
	return t, nil
}

// ReadText reads a length-prefixed text payload: a number (length)
// followed by that many raw bytes.
func (r *Reader) ReadText() ([]byte, error) {
	n, err := r.ReadNumber()
	if err != nil {
		return nil, errors.Wrap(err, "wire: reading text length")
	}
	if n < 0 {
		return nil, errors.Errorf("wire: negative text length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, errors.Wrap(err, "wire: reading text bytes")
	}
	return buf, nil
}

// peekTag returns the next byte without consuming it.
func (r *Reader) peekTag() (byte, error) {
	b, err := r.br.Peek(1)
	if err != nil {
		return 0, errors.Wrap(err, "wire: peeking item tag")
	}
	return b[0], nil
}

// ReadItem decodes one tagged item. A leading '?' is reported as
// ErrRequestFailed rather than a decoded item, matching spec.md §7's
// "a request-time boolean false propagates to the wire as ?".
func (r *Reader) ReadItem() (item.Value, error) {
	tag, err := r.peekTag()
	if err != nil {
		return nil, err
	}
	if tag == tagFail {
		r.br.ReadByte()
		return nil, ErrRequestFailed
	}

	switch tag {
	case tagISpan:
		r.br.ReadByte()
		if _, err := r.br.ReadString('~'); err != nil {
			return nil, errors.Wrap(err, "wire: reading ispan tag separator")
		}
		stream, err := r.ReadTumbler()
		if err != nil {
			return nil, err
		}
		width, err := r.ReadTumbler()
		if err != nil {
			return nil, err
		}
		return item.ISpan{Stream: stream, Width: width}, nil

	case tagVSpec:
		r.br.ReadByte()
		if _, err := r.br.ReadString('~'); err != nil {
			return nil, errors.Wrap(err, "wire: reading vspec tag separator")
		}
		doc, err := r.ReadTumbler()
		if err != nil {
			return nil, err
		}
		vspans, err := r.readVSpanSet()
		if err != nil {
			return nil, err
		}
		return item.VSpec{DocISA: doc, VSpanSet: vspans}, nil

	case tagText:
		r.br.ReadByte()
		b, err := r.ReadText()
		if err != nil {
			return nil, err
		}
		return item.Text{Bytes: b}, nil

	case tagSporgl:
		r.br.ReadByte()
		if _, err := r.br.ReadString('~'); err != nil {
			return nil, errors.Wrap(err, "wire: reading sporgl tag separator")
		}
		addr, err := r.ReadTumbler()
		if err != nil {
			return nil, err
		}
		origin, err := r.ReadTumbler()
		if err != nil {
			return nil, err
		}
		width, err := r.ReadTumbler()
		if err != nil {
			return nil, err
		}
		return item.Sporgl{Address: addr, Origin: origin, Width: width}, nil

	case tagAddress:
		r.br.ReadByte()
		if _, err := r.br.ReadString('~'); err != nil {
			return nil, errors.Wrap(err, "wire: reading address tag separator")
		}
		t, err := r.ReadTumbler()
		if err != nil {
			return nil, err
		}
		return item.Address{Tumbler: t}, nil

	default:
		// vspan: untagged, two bare tumblers.
		stream, err := r.ReadTumbler()
		if err != nil {
			return nil, err
		}
		width, err := r.ReadTumbler()
		if err != nil {
			return nil, err
		}
		return item.VSpan{Stream: stream, Width: width}, nil
	}
}

func (r *Reader) readVSpanSet() (item.VSpanSet, error) {
	n, err := r.ReadNumber()
	if err != nil {
		return nil, errors.Wrap(err, "wire: reading vspanset count")
	}
	out := make(item.VSpanSet, 0, n)
	for i := int64(0); i < n; i++ {
		v, err := r.ReadItem()
		if err != nil {
			return nil, err
		}
		vs, ok := v.(item.VSpan)
		if !ok {
			return nil, errors.Errorf("wire: expected vspan in vspanset, got %T", v)
		}
		out = append(out, vs)
	}
	return out, nil
}

// ReadItemSet reads "count~" followed by count tagged items.
func (r *Reader) ReadItemSet() ([]item.Value, error) {
	n, err := r.ReadNumber()
	if err != nil {
		return nil, errors.Wrap(err, "wire: reading item set count")
	}
	out := make([]item.Value, 0, n)
	for i := int64(0); i < n; i++ {
		v, err := r.ReadItem()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Writer encodes tokens in the wire grammar.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps w for wire-grammar encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// Flush flushes any buffered output.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Raw exposes the Writer's underlying io.Writer, for callers (such as
// WriteDumpState) that build their own grammar directly on an
// io.Writer rather than through Writer's token methods. Writes
// through Raw share the same buffer as everything else written
// through w, so a single trailing Flush covers both.
func (w *Writer) Raw() io.Writer { return w.bw }

// WriteNumber writes n followed by '~'.
func (w *Writer) WriteNumber(n int64) error {
	_, err := fmt.Fprintf(w.bw, "%d~", n)
	return err
}

// WriteTumbler writes t in "neg_exp~.d0.d1…~" form.
func (w *Writer) WriteTumbler(t tumbler.Tumbler) error {
	_, err := w.bw.WriteString(t.WireString())
	return err
}

// WriteText writes a length-prefixed text payload.
func (w *Writer) WriteText(b []byte) error {
	if err := w.WriteNumber(int64(len(b))); err != nil {
		return err
	}
	_, err := w.bw.Write(b)
	return err
}

// WriteFail writes the request-failed sentinel '?'.
func (w *Writer) WriteFail() error {
	return w.bw.WriteByte(tagFail)
}

// WriteItem encodes one tagged item.
func (w *Writer) WriteItem(v item.Value) error {
	switch it := v.(type) {
	case item.ISpan:
		if err := w.bw.WriteByte(tagISpan); err != nil {
			return err
		}
		if err := w.bw.WriteByte('~'); err != nil {
			return err
		}
		if err := w.WriteTumbler(it.Stream); err != nil {
			return err
		}
		return w.WriteTumbler(it.Width)

	case item.VSpan:
		if err := w.WriteTumbler(it.Stream); err != nil {
			return err
		}
		return w.WriteTumbler(it.Width)

	case item.VSpec:
		if err := w.bw.WriteByte(tagVSpec); err != nil {
			return err
		}
		if err := w.bw.WriteByte('~'); err != nil {
			return err
		}
		if err := w.WriteTumbler(it.DocISA); err != nil {
			return err
		}
		if err := w.WriteNumber(int64(len(it.VSpanSet))); err != nil {
			return err
		}
		for _, vs := range it.VSpanSet {
			if err := w.WriteItem(vs); err != nil {
				return err
			}
		}
		return nil

	case item.Text:
		if err := w.bw.WriteByte(tagText); err != nil {
			return err
		}
		return w.WriteText(it.Bytes)

	case item.Sporgl:
		if err := w.bw.WriteByte(tagSporgl); err != nil {
			return err
		}
		if err := w.bw.WriteByte('~'); err != nil {
			return err
		}
		if err := w.WriteTumbler(it.Address); err != nil {
			return err
		}
		if err := w.WriteTumbler(it.Origin); err != nil {
			return err
		}
		return w.WriteTumbler(it.Width)

	case item.Address:
		if err := w.bw.WriteByte(tagAddress); err != nil {
			return err
		}
		if err := w.bw.WriteByte('~'); err != nil {
			return err
		}
		return w.WriteTumbler(it.Tumbler)

	default:
		return errors.Errorf("wire: unsupported item type %T", v)
	}
}

// WriteItemSet writes "count~" followed by each item.
func (w *Writer) WriteItemSet(items []item.Value) error {
	if err := w.WriteNumber(int64(len(items))); err != nil {
		return err
	}
	for _, it := range items {
		if err := w.WriteItem(it); err != nil {
			return err
		}
	}
	return nil
}

// DumpNode is the decoded shape of one DUMPSTATE tree node: depth,
// height, enfilade type, the wid/dsp label vectors, and children in
// left-to-right order. It carries only tree shape, not leaf content —
// spec.md §6.2's grammar fragment
// "(depth h<height>e<enftype>w<n>tum…d<n>tum…c<n>…)~" names no slot
// for leaf payload bytes, matching original_source's dump functions,
// which log wid/dsp for every crum but the crum's content separately.
type DumpNode struct {
	Depth    int
	Height   int
	EnfType  enfilade.EnfType
	Wid      []tumbler.Tumbler
	Dsp      []tumbler.Tumbler
	Children []DumpNode
}

// WriteDumpState encodes t as a DUMPSTATE nested form.
func WriteDumpState(w io.Writer, t *enfilade.Tree) error {
	ww := NewWriter(w)
	if err := writeDumpNode(ww, t, t.Root, 0); err != nil {
		return err
	}
	return ww.Flush()
}

// writeDumpNode follows the literal grammar
// "(depth h<height>e<enftype>w<n>tum…d<n>tum…c<n>…)~": depth, height,
// enftype and the child count are plain digit runs, each unambiguously
// ended by the next tag letter or, for the child count, by '(' or ')'.
// The w/d axis counts get an explicit '~' terminator instead — unlike
// those, they're immediately followed by tumbler text that can itself
// start with a digit, so a bare digit run can't tell where the count
// ends and the first tumbler begins.
func writeDumpNode(w *Writer, t *enfilade.Tree, id enfilade.CrumID, depth int) error {
	n := t.Arena.Get(id)
	axes := enfilade.WidSize(n.EnfType)

	if _, err := fmt.Fprintf(w.bw, "(%dh%de%d", depth, n.Height, int(n.EnfType)); err != nil {
		return err
	}
	if _, err := w.bw.WriteString("w"); err != nil {
		return err
	}
	if err := w.WriteNumber(int64(axes)); err != nil {
		return err
	}
	for i := 0; i < axes; i++ {
		if err := w.WriteTumbler(n.CWid[i]); err != nil {
			return err
		}
	}
	if _, err := w.bw.WriteString("d"); err != nil {
		return err
	}
	if err := w.WriteNumber(int64(axes)); err != nil {
		return err
	}
	for i := 0; i < axes; i++ {
		if err := w.WriteTumbler(n.CDsp[i]); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w.bw, "c%d", len(n.Sons)); err != nil {
		return err
	}
	for _, son := range n.Sons {
		if err := writeDumpNode(w, t, son, depth+1); err != nil {
			return err
		}
	}
	if _, err := w.bw.WriteString(")~"); err != nil {
		return err
	}
	return nil
}

// ReadDumpState decodes a DUMPSTATE nested form into a DumpNode tree
// — the inverse of WriteDumpState, used by property tests to assert
// the encoding round-trips.
func ReadDumpState(r io.Reader) (DumpNode, error) {
	br := bufio.NewReader(r)
	return readDumpNode(br)
}

func readDumpNode(br *bufio.Reader) (DumpNode, error) {
	open, err := br.ReadByte()
	if err != nil {
		return DumpNode{}, errors.Wrap(err, "wire: reading dumpstate open paren")
	}
	if open != '(' {
		return DumpNode{}, errors.Errorf("wire: expected '(' got %q", open)
	}

	var n DumpNode
	n.Depth, err = readDigitsAsInt(br)
	if err != nil {
		return n, errors.Wrap(err, "wire: reading depth")
	}
	if err := expectByte(br, 'h'); err != nil {
		return n, err
	}
	n.Height, err = readDigitsAsInt(br)
	if err != nil {
		return n, errors.Wrap(err, "wire: reading height")
	}
	if err := expectByte(br, 'e'); err != nil {
		return n, err
	}
	et, err := readDigitsAsInt(br)
	if err != nil {
		return n, errors.Wrap(err, "wire: reading enftype")
	}
	n.EnfType = enfilade.EnfType(et)

	if err := expectByte(br, 'w'); err != nil {
		return n, err
	}
	r := &Reader{br: br}
	wn64, err := r.ReadNumber()
	if err != nil {
		return n, errors.Wrap(err, "wire: reading wid count")
	}
	wn := int(wn64)
	for i := 0; i < wn; i++ {
		t, err := r.ReadTumbler()
		if err != nil {
			return n, errors.Wrap(err, "wire: reading wid tumbler")
		}
		n.Wid = append(n.Wid, t)
	}

	if err := expectByte(br, 'd'); err != nil {
		return n, err
	}
	dn64, err := r.ReadNumber()
	if err != nil {
		return n, errors.Wrap(err, "wire: reading dsp count")
	}
	dn := int(dn64)
	for i := 0; i < dn; i++ {
		t, err := r.ReadTumbler()
		if err != nil {
			return n, errors.Wrap(err, "wire: reading dsp tumbler")
		}
		n.Dsp = append(n.Dsp, t)
	}

	if err := expectByte(br, 'c'); err != nil {
		return n, err
	}
	cn, err := readDigitsAsInt(br)
	if err != nil {
		return n, errors.Wrap(err, "wire: reading child count")
	}
	for i := 0; i < cn; i++ {
		child, err := readDumpNode(br)
		if err != nil {
			return n, err
		}
		n.Children = append(n.Children, child)
	}

	if err := expectByte(br, ')'); err != nil {
		return n, err
	}
	if err := expectByte(br, '~'); err != nil {
		return n, err
	}
	return n, nil
}

func expectByte(br *bufio.Reader, want byte) error {
	got, err := br.ReadByte()
	if err != nil {
		return errors.Wrapf(err, "wire: expecting %q", want)
	}
	if got != want {
		return errors.Errorf("wire: expected %q, got %q", want, got)
	}
	return nil
}

// readDigitsAsInt reads a run of ASCII digits (no terminator — the
// DUMPSTATE grammar's embedded counts and tags are distinguished by
// the next non-digit byte, unlike the top-level number/tumbler tokens
// which are always '~'-terminated).
func readDigitsAsInt(br *bufio.Reader) (int, error) {
	var digits []byte
	for {
		b, err := br.Peek(1)
		if err != nil {
			if err == io.EOF && len(digits) > 0 {
				break
			}
			return 0, err
		}
		if b[0] < '0' || b[0] > '9' {
			break
		}
		digits = append(digits, b[0])
		br.ReadByte()
	}
	if len(digits) == 0 {
		return 0, errors.New("wire: expected digits")
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, err
	}
	return n, nil
}
