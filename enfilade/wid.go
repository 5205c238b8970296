// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package enfilade

import "github.com/udanax/enfilade/tumbler"

func zeroWid() tumbler.Tumbler { return tumbler.Zero }

func addWid(a, b tumbler.Tumbler) tumbler.Tumbler { return tumbler.Add(a, b) }

func subWid(a, b tumbler.Tumbler) tumbler.Tumbler { return tumbler.Sub(a, b) }

func eqWid(a, b tumbler.Tumbler) bool { return a.Eq(b) }
