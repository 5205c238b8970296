// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tumbler

import "testing"

func mustParse(t *testing.T, s string) Tumbler {
	t.Helper()
	tm, err := ParseDotted(s)
	if err != nil {
		t.Fatalf("ParseDotted(%q): %v", s, err)
	}
	return tm
}

func TestZero(t *testing.T) {
	if !Zero.IsZero() {
		t.Fatal("Zero.IsZero() == false")
	}
	if Zero.Sign || Zero.Exp != 0 {
		t.Fatal("zero tumbler must have sign=0, exp=0")
	}
}

func TestCmpTotalOrder(t *testing.T) {
	a := mustParse(t, "1.2")
	b := mustParse(t, "1.3")
	c := mustParse(t, "2")

	if a.Cmp(a) != 0 {
		t.Errorf("a.Cmp(a) = %d, want 0", a.Cmp(a))
	}
	if a.Cmp(b) >= 0 {
		t.Errorf("1.2 should be < 1.3")
	}
	if b.Cmp(c) >= 0 {
		t.Errorf("1.3 should be < 2")
	}
	if a.Cmp(c) >= 0 {
		t.Errorf("transitivity: 1.2 should be < 2")
	}
}

func TestCmpZeroVsNegative(t *testing.T) {
	neg := mustParse(t, "1")
	neg.Sign = true
	if Zero.Cmp(neg) <= 0 {
		t.Fatalf("zero should compare greater than any negative tumbler")
	}
	if neg.Cmp(Zero) >= 0 {
		t.Fatalf("negative tumbler should compare less than zero")
	}
}

func TestEq(t *testing.T) {
	a := mustParse(t, "1.2.3")
	b := mustParse(t, "1.2.3")
	if !a.Eq(b) {
		t.Fatal("expected equal tumblers to be Eq")
	}
	if a.Cmp(b) != 0 {
		t.Fatal("Eq and Cmp==0 must agree")
	}
}

func TestAccountEq(t *testing.T) {
	account := mustParse(t, "1.1")
	doc := mustParse(t, "1.1.0.1.0.1")
	if !doc.AccountEq(account) {
		t.Fatalf("doc %v should be under account %v", doc, account)
	}
	other := mustParse(t, "2.1")
	if doc.AccountEq(other) {
		t.Fatalf("doc %v should not be under account %v", doc, other)
	}
}

func TestIntervalCmp(t *testing.T) {
	left := mustParse(t, "1")
	right := mustParse(t, "5")

	cases := []struct {
		addr string
		want IntervalPosition
	}{
		{"0.5", ToMyLeft},
		{"1", OnMyLeftBorder},
		{"3", ThruMe},
		{"5", OnMyRightBorder},
		{"9", ToMyRight},
	}
	for _, c := range cases {
		addr := mustParse(t, c.addr)
		got := IntervalCmp(left, right, addr)
		if got != c.want {
			t.Errorf("IntervalCmp(%v): got %v want %v", c.addr, got, c.want)
		}
	}
}

func TestAddSubRoundTrip(t *testing.T) {
	a := mustParse(t, "3")
	b := mustParse(t, "5")
	sum := Add(a, b)
	if sum.Cmp(mustParse(t, "8")) != 0 {
		t.Fatalf("3+5 = %v, want 8", sum)
	}
	back := Sub(sum, b)
	if back.Cmp(a) != 0 {
		t.Fatalf("(3+5)-5 = %v, want 3", back)
	}
}

func TestAddIdentity(t *testing.T) {
	a := mustParse(t, "1.2.3")
	if Add(a, Zero).Cmp(a) != 0 {
		t.Fatal("a+0 != a")
	}
	if Add(Zero, a).Cmp(a) != 0 {
		t.Fatal("0+a != a")
	}
}

func TestSubSelfIsZero(t *testing.T) {
	a := mustParse(t, "1.2.3")
	if !Sub(a, a).IsZero() {
		t.Fatal("a-a should be zero")
	}
}

func TestIncrementOverflowPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on increment overflow")
		}
		if _, ok := r.(OverflowError); !ok {
			t.Fatalf("expected OverflowError, got %T: %v", r, r)
		}
	}()
	var full Tumbler
	for i := range full.Mantissa {
		full.Mantissa[i] = 1
	}
	Increment(full, 1, 1)
}

func TestTruncate(t *testing.T) {
	a := mustParse(t, "1.2.3.4")
	got := Truncate(a, 2)
	want := mustParse(t, "1.2")
	if got.Cmp(want) != 0 {
		t.Fatalf("Truncate(1.2.3.4, 2) = %v, want %v", got, want)
	}
}

func TestPrefixBehead(t *testing.T) {
	a := mustParse(t, "2.3")
	p := Prefix(a, 1)
	if p.NStories() != a.NStories()+1 {
		t.Fatalf("Prefix should grow nstories by one: got %v", p)
	}
	if b := Behead(p); b.Cmp(a) != 0 {
		t.Fatalf("Behead(Prefix(2.3, 1)) = %v, want 2.3", b)
	}
}

func TestCheckRejectsNegativeZero(t *testing.T) {
	bad := Tumbler{Sign: true}
	if err := bad.Check(); err == nil {
		t.Fatal("expected Check to reject negative zero")
	}
}

func TestCheckAcceptsValidTumblers(t *testing.T) {
	for _, s := range []string{"0", "1", "1.2.3", "1.1.0.1.0.1"} {
		tm := mustParse(t, s)
		if err := tm.Check(); err != nil {
			t.Errorf("Check(%q) = %v, want nil", s, err)
		}
	}
}

func TestWireStringRendersDigits(t *testing.T) {
	a := mustParse(t, "1.2.3")
	ws := a.WireString()
	if ws != "0~.1.2.3~" {
		t.Fatalf("WireString(1.2.3) = %q, want %q", ws, "0~.1.2.3~")
	}
}

func TestDocIDAndVStream(t *testing.T) {
	doc := mustParse(t, "1.1.0.1.0.1")
	v := mustParse(t, "1.1")
	got := DocIDAndVStream(doc, v)
	if got.NStories() <= doc.NStories() {
		t.Fatalf("concatenation should extend nstories: got %v", got)
	}
}
