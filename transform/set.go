// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transform

import "github.com/vanadium/otengine/wire"

// pairSet implements spec.md §4.4.3: set instructions address the set
// container itself, not an individual element, so two instructions on the
// same container only conflict when they name the same element value.
// Distinct elements always commute and need no adjustment.
func (m *merger) pairSet(lc int, local, remote wire.Instruction) {
	le, ok1 := setElement(local)
	re, ok2 := setElement(remote)
	if !ok1 || !ok2 || !le.Equal(re) {
		return
	}

	switch local.(type) {
	case *wire.SetInsert:
		if _, ok := remote.(*wire.SetInsert); ok {
			m.discard(lc, local, remote, "duplicate concurrent set insert")
			return
		}
		// local inserts, remote erases the same element: break the tie.
		if !wins(m.local, local, m.remote, remote) {
			m.discard(lc, local, remote, "set insert overwritten by concurrent erase")
		}
	case *wire.SetErase:
		if _, ok := remote.(*wire.SetErase); ok {
			m.discard(lc, local, remote, "duplicate concurrent set erase")
			return
		}
		if !wins(m.local, local, m.remote, remote) {
			m.discard(lc, local, remote, "set erase overwritten by concurrent insert")
		}
	}
}

// pairSetClear implements spec.md §4.4.3's set-clear rule: a Clear sharing
// a set field's path with a SetInsert, SetErase, or another Clear is
// resolved exactly as a list Clear is resolved against a concurrent
// structural op (spec.md §4.4.2) -- the higher tie-break key survives
// outright, discarding the other side. Pairs with no Clear on either side
// fall through to the ordinary same-element set resolution.
func (m *merger) pairSetClear(lc int, local, remote wire.Instruction) {
	_, localClear := local.(*wire.Clear)
	_, remoteClear := remote.(*wire.Clear)
	if !localClear && !remoteClear {
		m.pairSet(lc, local, remote)
		return
	}
	if !wins(m.local, local, m.remote, remote) {
		m.discard(lc, local, remote, "set field cleared or overwritten by higher tie-break concurrent op")
	}
}

func setElement(i wire.Instruction) (wire.Payload, bool) {
	switch v := i.(type) {
	case *wire.SetInsert:
		return v.Element, true
	case *wire.SetErase:
		return v.Element, true
	default:
		return wire.Payload{}, false
	}
}
