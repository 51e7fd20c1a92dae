// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transform

import "github.com/vanadium/otengine/wire"

// pairScalar implements the field-level rules of spec.md §4.4.1: two
// instructions addressing exactly the same path (Relate == Same) that are
// neither list-structural nor set operations.
func (m *merger) pairScalar(lc int, local, remote wire.Instruction) {
	switch l := local.(type) {
	case *wire.Update:
		switch r := remote.(type) {
		case *wire.Update:
			m.pairUpdateUpdate(lc, l, r)
		case *wire.AddInteger:
			m.pairUpdateVsAddInteger(lc, l, r)
		}
	case *wire.AddInteger:
		switch r := remote.(type) {
		case *wire.Update:
			m.pairAddIntegerVsUpdate(lc, l, r)
		case *wire.AddInteger:
			// Concurrent AddIntegers on the same field commute: both
			// survive and their deltas sum when applied (spec.md §4.4.4).
		}
	}
}

// pairUpdateUpdate resolves two concurrent plain writes to the same field:
// the higher tie-break wins outright, and the loser is discarded rather
// than merged field-by-field, since an Update replaces the whole value
// (spec.md §4.4.1). Embedded-object fields follow the same rule: the losing
// Update's nested object, if any, is never materialized, so it needs no
// separate cascading discard pass (spec.md §4.4.6).
func (m *merger) pairUpdateUpdate(lc int, local *wire.Update, remote *wire.Update) {
	if local.Value.Equal(remote.Value) {
		// Same value from both sides: nothing to resolve, but local must
		// still carry forward any pending AddInteger accumulated against
		// it locally -- leave local as-is.
		return
	}
	if wins(m.local, local, m.remote, remote) {
		return
	}
	m.discard(lc, local, remote, "update overwritten by higher tie-break")
}

// pairUpdateVsAddInteger resolves an Update on one side against an
// AddInteger on the other addressing the same integer field (spec.md
// §4.4.4). An AddInteger is discarded only when the Update sets the target
// to null at a tie-break at-or-after its own; in every other case -- the
// Update is a default, or non-default but non-null, or non-default but
// ordered before the AddInteger -- the delta is folded into the surviving
// Update's pending sum (a default Update's tie-break counts as -infinity, so
// it never satisfies the null-at-or-after test). A null Update carries that
// sum without the applier adding it, so the field stays null.
func (m *merger) pairUpdateVsAddInteger(lc int, local *wire.Update, remote *wire.AddInteger) {
	if local.Value.Kind == wire.KindNull && wins(m.local, local, m.remote, remote) {
		m.report(local, remote, "add_integer discarded: update nulled target at or after its time")
		return
	}
	delta := remote.Delta
	if local.PendingAdd != nil {
		delta += *local.PendingAdd
	}
	merged := *local
	merged.PendingAdd = &delta
	m.local.Replace(lc, &merged)
	m.report(local, remote, "add_integer folded into update")
}

func (m *merger) pairAddIntegerVsUpdate(lc int, local *wire.AddInteger, remote *wire.Update) {
	if remote.Value.Kind == wire.KindNull && wins(m.remote, remote, m.local, local) {
		m.discard(lc, local, remote, "add_integer discarded: target nulled at or after its time")
		return
	}
	// remote's update -- default, non-default non-null, or ordered before
	// local -- still leaves a value for local's delta to apply to.
}
