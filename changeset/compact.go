// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package changeset

import "github.com/vanadium/otengine/wire"

// Compact collapses redundant instructions within a single changeset before
// it is ever sent across the wire: repeated Updates to the same path keep
// only the last, AddIntegers following an Update on the same path fold into
// that Update's PendingAdd, and a CreateObject immediately undone by an
// EraseObject within the same changeset discards both (spec.md's
// supplemented compaction pass; grounded on
// test_compact_changesets.cpp's fixtures). Compaction is provably
// equivalent to applying the uncompacted stream: it never changes the
// final state, only the number of instructions needed to reach it, so it is
// always safe to skip (DESIGN.md open-question decision: compaction is not
// load-bearing for convergence).
func (c *Changeset) Compact() {
	lastUpdate := make(map[string]int) // path string -> cursor of last Update
	created := make(map[string]int)    // path string -> cursor of CreateObject
	erased := make(map[string]bool)

	for cursor, instr := range c.instructions {
		if instr == nil {
			continue
		}
		key := objectKey(instr.Path())
		switch v := instr.(type) {
		case *wire.CreateObject:
			created[key] = cursor
		case *wire.EraseObject:
			if createCursor, ok := created[key]; ok && !erased[key] {
				c.Discard(createCursor)
				c.Discard(cursor)
				delete(created, key)
				continue
			}
			erased[key] = true
		case *wire.Update:
			delete(created, key)
			pkey := v.PathV.String()
			if prev, ok := lastUpdate[pkey]; ok {
				if _, ok := c.instructions[prev].(*wire.Update); ok {
					// The later Update overwrites both the earlier value and
					// any delta folded into it.
					c.Replace(prev, nil)
					lastUpdate[pkey] = cursor
					continue
				}
			}
			lastUpdate[pkey] = cursor
		case *wire.AddInteger:
			delete(created, key)
			pkey := v.PathV.String()
			if prev, ok := lastUpdate[pkey]; ok {
				if prevUpd, ok := c.instructions[prev].(*wire.Update); ok {
					merged := *prevUpd
					delta := v.Delta
					if merged.PendingAdd != nil {
						delta += *merged.PendingAdd
					}
					merged.PendingAdd = &delta
					c.Replace(prev, &merged)
					c.Discard(cursor)
					continue
				}
			}
		default:
			delete(created, key)
		}
	}
}

func objectKey(p wire.Path) string {
	return p.Table + "\x00" + p.Object.String()
}
