// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transform

import "github.com/vanadium/otengine/wire"

// pairListStructural implements spec.md §4.4.2: two list-structural
// instructions (insert/move/erase/clear) that share a list container, even
// if their trailing index differs. A Clear against any other structural
// instruction on the same container is resolved by tie-break: the side
// with the lower tie-break key is discarded, whichever side is local.
func (m *merger) pairListStructural(lc int, local, remote wire.Instruction) {
	if _, ok := remote.(*wire.Clear); ok {
		if !sameContainer(local.Path(), remote.Path()) {
			return
		}
		if _, ok := local.(*wire.Clear); ok {
			if !wins(m.local, local, m.remote, remote) {
				m.discard(lc, local, remote, "duplicate concurrent clear, lower tie-break discarded")
			}
			return
		}
		if !wins(m.local, local, m.remote, remote) {
			m.discard(lc, local, remote, "list cleared concurrently by higher tie-break")
		}
		return
	}
	if _, ok := local.(*wire.Clear); ok {
		if !sameContainer(local.Path(), remote.Path()) {
			return
		}
		// local's Clear only subsumes remote's element op if it also wins the
		// tie-break; otherwise local must yield so the symmetric call (with
		// remote's structural op as the winner) is the one that survives.
		if !wins(m.local, local, m.remote, remote) {
			m.discard(lc, local, remote, "clear overwritten by higher tie-break concurrent structural op")
		}
		return
	}

	li, ri, ok := wire.SharedListAncestor(local.Path(), remote.Path())
	if !ok {
		return
	}

	switch l := local.(type) {
	case *wire.ArrayInsert:
		switch remote.(type) {
		case *wire.ArrayInsert:
			m.transformInsertVsInsert(lc, l, li, ri, remote)
		case *wire.ArrayErase:
			m.transformInsertVsErase(lc, l, li, ri)
		case *wire.ArrayMove:
			rm := remote.(*wire.ArrayMove)
			m.transformInsertVsMove(lc, l, li, ri, rm.To)
		}
	case *wire.ArrayErase:
		switch remote.(type) {
		case *wire.ArrayInsert:
			m.transformEraseVsInsert(lc, l, li, ri)
		case *wire.ArrayErase:
			m.transformEraseVsErase(lc, l, li, ri)
		case *wire.ArrayMove:
			rm := remote.(*wire.ArrayMove)
			m.transformEraseVsMove(lc, l, li, ri, rm.To)
		}
	case *wire.ArrayMove:
		// Concurrent moves of the same list are rare and their composition
		// is not commutative in general; this module resolves them by
		// tie-break and discards the losing move. A move against an insert
		// or erase has its source index shifted the way an insert would be.
		switch remote.(type) {
		case *wire.ArrayInsert:
			m.transformMoveVsInsert(lc, l, li, ri)
		case *wire.ArrayErase:
			m.transformMoveVsErase(lc, l, li, ri)
		case *wire.ArrayMove:
			if !wins(m.local, local, m.remote, remote) {
				m.discard(lc, local, remote, "move overwritten by higher tie-break concurrent move")
			}
		}
	}
}

// sameContainer reports whether a and b address the same list/dictionary/set
// container, regardless of whether either path has a trailing element
// selector (an element-addressing path and the bare container path it
// lives in -- e.g. an ArrayInsert's path versus a Clear's -- name the same
// container).
func sameContainer(a, b wire.Path) bool {
	return containerOf(a).Table == containerOf(b).Table &&
		containerOf(a).Object.Equal(containerOf(b).Object) &&
		containerOf(a).Field == containerOf(b).Field &&
		tailEqual(containerOf(a).Tail, containerOf(b).Tail)
}

// containerOf strips a trailing index selector, returning the path to the
// list itself; paths with no trailing index (or none at all) are returned
// unchanged, since they already address the container.
func containerOf(p wire.Path) wire.Path {
	if len(p.Tail) > 0 && p.Tail[len(p.Tail)-1].Kind == wire.SubPathIndex {
		return p.WithTail(append([]wire.SubPath(nil), p.Tail[:len(p.Tail)-1]...))
	}
	return p
}

func tailEqual(a, b []wire.SubPath) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind {
			return false
		}
		if a[i].Kind == wire.SubPathKey {
			if a[i].Key != b[i].Key {
				return false
			}
		} else if a[i].Index != b[i].Index {
			return false
		}
	}
	return true
}

func withIndex(p wire.Path, idx int64) wire.Path {
	tail := append([]wire.SubPath(nil), p.Tail...)
	tail[len(tail)-1] = wire.Index(idx)
	return p.WithTail(tail)
}

// transformInsertVsInsert implements the two-concurrent-prepend scenario of
// spec.md §8: inserts at indices before the other's shift right by one;
// inserts at the exact same index are ordered by tie-break, with the loser
// shifting right so both elements survive.
func (m *merger) transformInsertVsInsert(lc int, local *wire.ArrayInsert, li, ri int64, remote wire.Instruction) {
	switch {
	case li > ri:
		local.PathV = withIndex(local.PathV, li+1)
		local.PriorSize++
	case li == ri:
		if !wins(m.local, local, m.remote, remote) {
			local.PathV = withIndex(local.PathV, li+1)
			local.PriorSize++
		}
	}
}

func (m *merger) transformInsertVsErase(lc int, local *wire.ArrayInsert, li, ri int64) {
	if li > ri {
		local.PathV = withIndex(local.PathV, li-1)
		local.PriorSize--
	}
}

func (m *merger) transformEraseVsInsert(lc int, local *wire.ArrayErase, li, ri int64) {
	if li >= ri {
		local.PathV = withIndex(local.PathV, li+1)
		local.PriorSize++
	}
}

// transformEraseVsErase discards local outright when both sides erase the
// identical element (idempotent -- the element is already gone once), and
// otherwise shifts local's index left for every remote erase that preceded
// it in the list.
func (m *merger) transformEraseVsErase(lc int, local *wire.ArrayErase, li, ri int64) {
	if li == ri {
		m.discard(lc, local, local, "element already erased concurrently")
		return
	}
	if li > ri {
		local.PathV = withIndex(local.PathV, li-1)
		local.PriorSize--
	}
}

func (m *merger) transformInsertVsMove(lc int, local *wire.ArrayInsert, li, ri int64, to int64) {
	adjustForMove(&local.PathV, &local.PriorSize, li, ri, to)
}

func (m *merger) transformEraseVsMove(lc int, local *wire.ArrayErase, li, ri int64, to int64) {
	adjustForMove(&local.PathV, &local.PriorSize, li, ri, to)
}

func (m *merger) transformMoveVsInsert(lc int, local *wire.ArrayMove, li, ri int64) {
	if li >= ri {
		local.PathV = withIndex(local.PathV, li+1)
	}
}

func (m *merger) transformMoveVsErase(lc int, local *wire.ArrayMove, li, ri int64) {
	if li == ri {
		m.discard(lc, local, local, "moved element erased concurrently")
		return
	}
	if li > ri {
		local.PathV = withIndex(local.PathV, li-1)
	}
}

// adjustForMove rewrites a local index affected by a concurrent remote
// ArrayMove from ri to "to": the element that used to sit at ri is removed
// from that position and reinserted at "to", shifting every index after
// ri up to and including "to" (or from "to" up to but excluding ri, for a
// backward move) by one.
func adjustForMove(path *wire.Path, priorSize *int64, li, from, to int64) {
	switch {
	case li == from:
		*path = withIndex(*path, to)
	case from < to && li > from && li <= to:
		*path = withIndex(*path, li-1)
	case to < from && li >= to && li < from:
		*path = withIndex(*path, li+1)
	}
	_ = priorSize
}
