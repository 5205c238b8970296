// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package item

import (
	"testing"

	"github.com/udanax/enfilade/tumbler"
)

func tm(digits ...tumbler.Digit) tumbler.Tumbler {
	return tumbler.New(false, digits...)
}

func TestVSpanInTextSubspace(t *testing.T) {
	link := VSpan{Stream: tm(0, 1), Width: tm(1)}
	if link.InTextSubspace() {
		t.Fatalf("0.1 should be below the text subspace boundary")
	}
	text := VSpan{Stream: tm(1, 1), Width: tm(5)}
	if !text.InTextSubspace() {
		t.Fatalf("1.1 should be in the text subspace")
	}
}

func TestVSpanSetFilterToTextSubspace(t *testing.T) {
	vs := VSpanSet{
		{Stream: tm(0, 1), Width: tm(1)},
		{Stream: tm(1, 1), Width: tm(5)},
	}
	got := vs.FilterToTextSubspace()
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving vspan, got %d", len(got))
	}
	if got[0].Stream.Cmp(tm(1, 1)) != 0 {
		t.Fatalf("expected the text-subspace vspan to survive, got %v", got[0])
	}
}

func TestSpecSetFilterDropsEmptyVSpecs(t *testing.T) {
	ss := SpecSet{
		{DocISA: tm(1, 1), VSpanSet: VSpanSet{{Stream: tm(0, 1), Width: tm(1)}}},
		{DocISA: tm(1, 2), VSpanSet: VSpanSet{{Stream: tm(1, 1), Width: tm(3)}}},
	}
	got := ss.FilterToTextSubspace()
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving vspec, got %d", len(got))
	}
	if got[0].DocISA.Cmp(tm(1, 2)) != 0 {
		t.Fatalf("expected doc 1.2 to survive, got %v", got[0].DocISA)
	}
}

func TestSpanEnd(t *testing.T) {
	s := ISpan{Stream: tm(1, 3), Width: tm(0, 2)}
	want := tm(1, 5)
	if s.End().Cmp(want) != 0 {
		t.Fatalf("End() = %v, want %v", s.End(), want)
	}
}

func TestVSpanSetWidth(t *testing.T) {
	vs := VSpanSet{
		{Stream: tm(1, 1), Width: tm(3)},
		{Stream: tm(1, 10), Width: tm(2)},
	}
	got := vs.Width()
	want := tm(5)
	if got.Cmp(want) != 0 {
		t.Fatalf("Width() = %v, want %v", got, want)
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		KindISpan:   "ispan",
		KindVSpan:   "vspan",
		KindVSpec:   "vspec",
		KindText:    "text",
		KindLink:    "link",
		KindSporgl:  "sporgl",
		KindAddress: "address",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestValueImplementations(t *testing.T) {
	var vals []Value = []Value{
		ISpan{},
		VSpan{},
		VSpec{},
		Text{},
		Link{},
		Sporgl{},
		Address{},
	}
	want := []Kind{KindISpan, KindVSpan, KindVSpec, KindText, KindLink, KindSporgl, KindAddress}
	for i, v := range vals {
		if v.Kind() != want[i] {
			t.Errorf("vals[%d].Kind() = %v, want %v", i, v.Kind(), want[i])
		}
	}
}
