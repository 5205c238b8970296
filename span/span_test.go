// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package span

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/udanax/enfilade/item"
	"github.com/udanax/enfilade/tumbler"
)

func is(stream, width tumbler.Digit) item.ISpan {
	return item.ISpan{Stream: tumbler.New(false, stream), Width: tumbler.New(false, width)}
}

func TestIntersectCommutative(t *testing.T) {
	a := []item.ISpan{is(1, 5)}
	b := []item.ISpan{is(3, 5)}
	ab := Intersect(a, b)
	ba := Intersect(b, a)
	if diff := cmp.Diff(ab, ba); diff != "" {
		t.Fatalf("Intersect(a,b) != Intersect(b,a): %s", diff)
	}
	want := []item.ISpan{is(3, 3)}
	if diff := cmp.Diff(ab, want); diff != "" {
		t.Fatalf("Intersect mismatch (-got +want):\n%s", diff)
	}
}

func TestIntersectEmptyInput(t *testing.T) {
	if got := Intersect(nil, []item.ISpan{is(0, 1)}); got != nil {
		t.Fatalf("Intersect(nil, x) = %v, want nil", got)
	}
}

func TestIntersectSelf(t *testing.T) {
	a := []item.ISpan{is(1, 5)}
	got := Intersect(a, a)
	if diff := cmp.Diff(got, a); diff != "" {
		t.Fatalf("Intersect(a,a) != a (-got +want):\n%s", diff)
	}
}

func TestIntersectOneContainsOther(t *testing.T) {
	a := is(0, 10)
	b := is(3, 2)
	got, ok := intersectOne(a, b)
	if !ok {
		t.Fatal("expected overlap")
	}
	want := b
	if diff := cmp.Diff(got, want); diff != "" {
		t.Fatalf("mismatch (-got +want):\n%s", diff)
	}
}

func TestSubtractEqualIsEmpty(t *testing.T) {
	a := is(5, 3)
	got, cmpResult := Subtract(a, a)
	if cmpResult != 0 {
		t.Fatalf("cmp = %d, want 0", cmpResult)
	}
	if !got.Width.IsZero() {
		t.Fatalf("Subtract(a,a).Width = %v, want zero", got.Width)
	}
}

func TestSubtractThenAddRecoversB(t *testing.T) {
	// a subset of b ([2,5) within [2,9)): b - a should be [5,9), and
	// a + (b-a) (by width) reconstructs b's width.
	a := is(2, 3)
	b := is(2, 7)
	rem, cmpResult := Subtract(b, a) // b wider than a
	if cmpResult != 1 {
		t.Fatalf("cmp = %d, want 1 (b wider)", cmpResult)
	}
	total := tumbler.Add(a.Width, rem.Width)
	if total.Cmp(b.Width) != 0 {
		t.Fatalf("a.Width + rem.Width = %v, want %v", total, b.Width)
	}
}

func TestRestrictVSpecSetOverCommonISpansPreservesOrder(t *testing.T) {
	doc1 := tumbler.New(false, 1, 1)
	doc2 := tumbler.New(false, 1, 2)
	specset := item.SpecSet{
		{DocISA: doc1, VSpanSet: item.VSpanSet{{Stream: tumbler.New(false, 1, 1), Width: tumbler.New(false, 5)}}},
		{DocISA: doc2, VSpanSet: item.VSpanSet{{Stream: tumbler.New(false, 1, 1), Width: tumbler.New(false, 5)}}},
	}
	ispanset := []item.ISpan{is(100, 5)}
	lookup := func(docISA tumbler.Tumbler, ispan item.ISpan) (item.VSpanSet, bool) {
		return item.VSpanSet{{Stream: tumbler.New(false, 1, 1), Width: ispan.Width}}, true
	}
	got := RestrictVSpecSetOverCommonISpans(ispanset, specset, lookup)
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if !got[0].DocISA.Eq(doc1) || !got[1].DocISA.Eq(doc2) {
		t.Fatalf("order not preserved: %v", got)
	}
}
