// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transform implements the pairwise operational-transform merge at
// the heart of this module (spec.md §4.4). It is grounded on two teacher
// shapes: the conflict classification in services/syncbase/sync/dag.go
// (hasConflict/getObjectGraft walk two divergent histories looking for a
// common ancestor) and the resolver callback in
// services/syncbase/vsync/initiator.go (detectConflicts/resolveConflicts),
// generalized from DAG-node resolution to per-instruction field/element
// rules, with ties broken by the (timestamp, origin) tuple pattern found in
// the CRDT resolver among other_examples/.
package transform

import (
	"github.com/davecgh/go-spew/spew"

	"github.com/vanadium/otengine/changeset"
	"github.com/vanadium/otengine/peer"
	"github.com/vanadium/otengine/wire"
)

// Reporter receives a diagnostic record for every conflicting pair the
// merge resolves, for logging or test assertions. A nil Reporter disables
// reporting.
type Reporter interface {
	Conflict(local, remote wire.Instruction, resolution string)
}

// DumpReporter renders conflicts with go-spew, matching the teacher's use
// of verbose struct dumps in its own test diagnostics.
type DumpReporter struct {
	Entries []string
}

func (d *DumpReporter) Conflict(local, remote wire.Instruction, resolution string) {
	d.Entries = append(d.Entries, resolution+": local="+spew.Sdump(local)+" remote="+spew.Sdump(remote))
}

// tieBreakOf returns the effective tie-break for an instruction within its
// owning changeset: a default Update counts as -infinity regardless of its
// changeset's real timestamp (spec.md §4.4.1), and a direct instruction
// simply inherits its changeset's origin tuple.
func tieBreakOf(c *changeset.Changeset, instr wire.Instruction) peer.TieBreak {
	if u, ok := instr.(*wire.Update); ok && u.IsDefault {
		return peer.MinTieBreak
	}
	return c.TieBreak()
}

// wins reports whether a (from changeset cA) beats b (from changeset cB) in
// a head-to-head tie-break. When both sides are default Updates, MinTieBreak
// collides; in that case only, the real changeset tuples are compared
// instead.
func wins(cA *changeset.Changeset, a wire.Instruction, cB *changeset.Changeset, b wire.Instruction) bool {
	ta, tb := tieBreakOf(cA, a), tieBreakOf(cB, b)
	if ta == peer.MinTieBreak && tb == peer.MinTieBreak {
		ta, tb = cA.TieBreak(), cB.TieBreak()
	}
	return tb.Less(ta)
}

// Merge transforms local in place against remote: after Merge returns,
// local can be applied to a state that already reflects remote and yield
// the same final state as applying remote then local would have without
// the merge (the OT convergence property, spec.md §4.4, pinned by the
// property tests in §8). remote is never modified; a symmetric second call
// with the arguments swapped is required to transform remote against local
// when both sides need replaying against each other's effects.
func Merge(local, remote *changeset.Changeset, reporter Reporter) {
	m := &merger{local: local, remote: remote, reporter: reporter}
	m.run()
}

type merger struct {
	local, remote *changeset.Changeset
	reporter      Reporter
}

func (m *merger) report(a, b wire.Instruction, resolution string) {
	if m.reporter != nil {
		m.reporter.Conflict(a, b, resolution)
	}
}

func (m *merger) run() {
	m.local.Iterate(func(lc int, li wire.Instruction) {
		m.remote.Iterate(func(rc int, ri wire.Instruction) {
			cur := m.local.At(lc)
			if cur == nil {
				return
			}
			m.pair(lc, cur, rc, ri)
		})
	})
}

// pair resolves one (local, remote) instruction pair. It only ever mutates
// or discards the local slot; remote is immutable input throughout this
// call (the caller is responsible for invoking Merge a second time with
// swapped arguments if remote must itself be adjusted for a second replay
// direction).
func (m *merger) pair(lc int, local wire.Instruction, rc int, remote wire.Instruction) {
	rel := wire.Relate(local.Path(), remote.Path())

	switch {
	case isObjectLifecycle(local) || isObjectLifecycle(remote):
		m.pairLifecycle(lc, local, remote)
		return
	case isListStructural(local) && isListStructural(remote) && sameContainer(local.Path(), remote.Path()):
		// List-structural pairs compare by shared container, not by exact
		// path equality: two inserts at different indices of the same list
		// still need index adjustment even though their full paths differ.
		m.pairListStructural(lc, local, remote)
		return
	case rel == wire.Disjoint:
		return
	}

	switch {
	case (isSetOp(local) || isClear(local)) && (isSetOp(remote) || isClear(remote)) && rel == wire.Same:
		// A set Clear sharing the set field's bare path with a SetInsert,
		// SetErase or another Clear is a same-container structural conflict
		// (spec.md §4.4.3), not a scalar one; route it the way list Clear
		// pairs are routed rather than letting it fall through pairScalar's
		// Update/AddInteger-only switch with no effect.
		m.pairSetClear(lc, local, remote)
	case rel == wire.Same:
		m.pairScalar(lc, local, remote)
	case rel == wire.BPrefixOfA:
		// remote addresses a container that local writes through; if remote
		// clears that container, local's deeper write is moot -- unless
		// local is the single dictionary entry directly inside the cleared
		// container, in which case spec.md §4.4.3 applies the same tie-break
		// rule as a list Clear vs. a concurrent element op: the higher
		// tie-break key survives regardless of which side is local. Only a
		// Clear is handled here: an ArrayInsert or ArrayErase at an ancestor
		// index leaves local's deeper path unchanged and local in place.
		if _, ok := remote.(*wire.Clear); ok {
			if isImmediateKeyChild(remote.Path(), local.Path()) {
				if !wins(m.local, local, m.remote, remote) {
					m.discard(lc, local, remote, "dictionary cleared concurrently by higher tie-break")
				}
				return
			}
			m.discard(lc, local, remote, "ancestor container cleared")
		}
	case rel == wire.APrefixOfB:
		if _, ok := local.(*wire.Clear); ok {
			if isImmediateKeyChild(local.Path(), remote.Path()) {
				if !wins(m.local, local, m.remote, remote) {
					m.discard(lc, local, remote, "dictionary clear overwritten by higher tie-break concurrent key write")
				}
				return
			}
			// local's Clear already subsumes remote's deeper write; nothing
			// to change on the local side.
		}
	}
}

func isObjectLifecycle(i wire.Instruction) bool {
	switch i.(type) {
	case *wire.CreateObject, *wire.EraseObject:
		return true
	}
	return false
}

func isListStructural(i wire.Instruction) bool {
	switch i.(type) {
	case *wire.ArrayInsert, *wire.ArrayMove, *wire.ArrayErase, *wire.Clear:
		return true
	}
	return false
}

func isSetOp(i wire.Instruction) bool {
	switch i.(type) {
	case *wire.SetInsert, *wire.SetErase:
		return true
	}
	return false
}

func isClear(i wire.Instruction) bool {
	_, ok := i.(*wire.Clear)
	return ok
}

// isImmediateKeyChild reports whether descendant addresses a single
// dictionary entry directly inside the container ancestor addresses: one
// tail selector deeper than ancestor, and keyed rather than indexed. Writes
// nested further below a dictionary entry (an embedded object's own fields,
// say) are not a same-container conflict with the ancestor Clear and keep
// the unconditional cascade-discard rule instead (spec.md §4.4.5).
func isImmediateKeyChild(ancestor, descendant wire.Path) bool {
	if len(descendant.Tail) != len(ancestor.Tail)+1 {
		return false
	}
	return descendant.Tail[len(descendant.Tail)-1].Kind == wire.SubPathKey
}

func (m *merger) discard(lc int, local, remote wire.Instruction, why string) {
	m.report(local, remote, "discard: "+why)
	m.local.Discard(lc)
}
