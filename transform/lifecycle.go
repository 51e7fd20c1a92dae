// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transform

import "github.com/vanadium/otengine/wire"

// pairLifecycle implements spec.md §4.4.7 (create/erase/recreate cycles)
// and the dangling-instruction rule: any instruction local holds against an
// object remote has erased is discarded rather than applied against a
// tombstone.
func (m *merger) pairLifecycle(lc int, local, remote wire.Instruction) {
	sameObject := local.Path().Table == remote.Path().Table &&
		local.Path().Object.Equal(remote.Path().Object)
	if !sameObject {
		return
	}

	switch l := local.(type) {
	case *wire.CreateObject:
		if _, ok := remote.(*wire.CreateObject); ok {
			// Both sides concurrently created the same global key: only one
			// create can survive, and spec.md §4.4.7 picks the highest
			// tie-break -- not whichever side happens to be "local" for this
			// call.
			if !wins(m.local, local, m.remote, remote) {
				m.discard(lc, local, remote, "duplicate concurrent create, lower tie-break discarded")
			}
		}
		return
	case *wire.EraseObject:
		_ = l
		return
	default:
		// local is a field/element/collection instruction; if remote erased
		// this object, local's instruction now targets nothing.
		if _, ok := remote.(*wire.EraseObject); ok {
			m.discard(lc, local, remote, "object erased concurrently")
		}
	}
}
