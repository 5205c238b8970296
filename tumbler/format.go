// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tumbler

import (
	"fmt"
	"strconv"
	"strings"
)

// New builds a Tumbler from a leading sign and a sequence of mantissa
// digits (exp defaults to 0), justifying the result. It exists for
// tests and callers that already have digits in hand rather than a
// wire-format string.
func New(negative bool, digits ...Digit) Tumbler {
	var t Tumbler
	t.Sign = negative
	for i, d := range digits {
		if i >= Places {
			break
		}
		t.Mantissa[i] = d
	}
	return Justify(t)
}

// WireString renders t in the spec.md §6.2 wire format:
// "neg_exp~.d0.d1…~" where neg_exp = -exp.
func (t Tumbler) WireString() string {
	var b strings.Builder
	if t.Sign {
		b.WriteByte('-')
	}
	fmt.Fprintf(&b, "%d~", -t.Exp)
	n := t.NStories()
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, ".%d", t.Mantissa[i])
	}
	b.WriteByte('~')
	return b.String()
}

// String renders a human-readable dotted form, e.g. "1.1.0.1" — used
// by enfilade.Dump and error messages, not the wire protocol.
func (t Tumbler) String() string {
	if t.IsZero() {
		return "0"
	}
	var b strings.Builder
	if t.Sign {
		b.WriteByte('-')
	}
	n := t.NStories()
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%d", t.Mantissa[i])
	}
	return b.String()
}

// ParseDotted parses the human-readable dotted form produced by
// String back into a Tumbler. It is the inverse of String and is used
// by tests.
func ParseDotted(s string) (Tumbler, error) {
	var t Tumbler
	if s == "0" || s == "" {
		return t, nil
	}
	if strings.HasPrefix(s, "-") {
		t.Sign = true
		s = s[1:]
	}
	parts := strings.Split(s, ".")
	if len(parts) > Places {
		return t, fmt.Errorf("tumbler: %d digits exceeds Places=%d", len(parts), Places)
	}
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return t, fmt.Errorf("tumbler: bad digit %q: %w", p, err)
		}
		if n < 0 {
			return t, fmt.Errorf("tumbler: negative digit %q", p)
		}
		t.Mantissa[i] = Digit(n)
	}
	return Justify(t), nil
}
