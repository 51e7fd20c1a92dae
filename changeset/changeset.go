// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package changeset holds the Changeset container: an ordered, stably
// addressed sequence of wire.Instruction values plus the interning table
// they reference strings through (spec.md §3, §4.2). Transform and
// compaction both operate in place on a Changeset's instruction slots rather
// than building a new slice, so that cursors handed out during a merge stay
// valid for its whole lifetime.
package changeset

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/vanadium/otengine/peer"
	"github.com/vanadium/otengine/wire"
)

// Local LEB128 helpers mirror wire's unexported codec primitives: the
// changeset header (origin tuple, interning table, slot count) uses the
// same varint format as the instruction stream it wraps (spec.md §4.1, §4.2).

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func putVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r io.ByteReader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, errors.Wrap(wire.ErrBadFormat, err.Error())
	}
	return v, nil
}

func readVarint(r io.ByteReader) (int64, error) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		return 0, errors.Wrap(wire.ErrBadFormat, err.Error())
	}
	return v, nil
}

func putBytes(buf *bytes.Buffer, b []byte) {
	putUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, errors.Wrap(wire.ErrBadFormat, err.Error())
	}
	return out, nil
}

// Changeset is one peer's indivisible unit of replication: every
// instruction it carries shares the same origin timestamp and origin file
// identity (spec.md §3), which is what lets Compact collapse AddInteger
// deltas losslessly into a single Update.PendingAdd field.
type Changeset struct {
	OriginTimestamp    peer.Timestamp
	OriginFileIdentity peer.FileIdentity

	// instructions holds one slot per pushed instruction. A nil slot means
	// "discarded by a transform pass" (spec.md §4.4.5): the slot survives so
	// that every cursor handed out by Push keeps addressing the same
	// position for the remainder of a merge.
	instructions []wire.Instruction

	strings []string
	index   map[string]int
}

// New creates an empty changeset tagged with the given tie-break origin.
func New(ts peer.Timestamp, origin peer.FileIdentity) *Changeset {
	return &Changeset{
		OriginTimestamp:    ts,
		OriginFileIdentity: origin,
		index:              make(map[string]int),
	}
}

// TieBreak returns the (timestamp, origin) pair every instruction in this
// changeset is compared with during a merge.
func (c *Changeset) TieBreak() peer.TieBreak {
	return peer.TieBreak{Timestamp: c.OriginTimestamp, Origin: c.OriginFileIdentity}
}

// Intern returns the stable index for s, adding it to the table if this is
// the first occurrence. Two calls with equal content always return the same
// index (spec.md §3 interning invariant (a)).
func (c *Changeset) Intern(s string) int {
	if idx, ok := c.index[s]; ok {
		return idx
	}
	idx := len(c.strings)
	c.strings = append(c.strings, s)
	c.index[s] = idx
	return idx
}

// Lookup resolves an interned index back to its string. Equality between
// two payloads or paths must always be decided on the resolved strings, not
// on the indices themselves: a merge may rebuild the table with different
// numbering (spec.md §3 interning invariant (b)).
func (c *Changeset) Lookup(idx int) (string, error) {
	if idx < 0 || idx >= len(c.strings) {
		return "", errors.Errorf("changeset: interned string index %d out of range", idx)
	}
	return c.strings[idx], nil
}

// Len returns the number of instruction slots, including discarded ones.
func (c *Changeset) Len() int { return len(c.instructions) }

// Push appends instr and returns the cursor addressing its slot.
func (c *Changeset) Push(instr wire.Instruction) int {
	c.instructions = append(c.instructions, instr)
	return len(c.instructions) - 1
}

// At returns the instruction at cursor, or nil if that slot was discarded.
func (c *Changeset) At(cursor int) wire.Instruction {
	return c.instructions[cursor]
}

// Replace overwrites the instruction at cursor in place. The slot's position
// is unaffected, so any other cursor referencing later slots stays valid.
func (c *Changeset) Replace(cursor int, instr wire.Instruction) {
	c.instructions[cursor] = instr
}

// Discard nulls out the slot at cursor. A discarded instruction contributes
// nothing when the changeset is applied, but its position is preserved so
// prior_size bookkeeping computed against slot indices doesn't shift
// (spec.md §4.4.5).
func (c *Changeset) Discard(cursor int) {
	c.instructions[cursor] = nil
}

// Iterate calls fn once per non-discarded instruction in slot order, passing
// the slot's cursor alongside it.
func (c *Changeset) Iterate(fn func(cursor int, instr wire.Instruction)) {
	for i, instr := range c.instructions {
		if instr != nil {
			fn(i, instr)
		}
	}
}

// RewritePaths applies fn to every live instruction's path, replacing it in
// place via wire.WithPath. Used when a schema change (table or column rename)
// must retarget every already-recorded instruction without disturbing slot
// positions or any other field (spec.md §3 schema evolution).
func (c *Changeset) RewritePaths(fn func(wire.Path) wire.Path) {
	c.Iterate(func(cursor int, instr wire.Instruction) {
		c.Replace(cursor, wire.WithPath(instr, fn(instr.Path())))
	})
}

// Instructions returns the live (non-discarded) instructions in order. The
// returned slice is a fresh copy; mutating it does not affect the changeset.
func (c *Changeset) Instructions() []wire.Instruction {
	out := make([]wire.Instruction, 0, len(c.instructions))
	c.Iterate(func(_ int, instr wire.Instruction) { out = append(out, instr) })
	return out
}

// Encode serializes the changeset header (origin tuple, interning table)
// followed by every instruction slot in order. Discarded slots are encoded
// as a single zero tag byte, distinct from every real instruction tag, so
// Decode can restore them as nil without shifting cursors. The instructions
// are encoded first, so every string they intern is in the table by the
// time the header is written.
func (c *Changeset) Encode(w io.Writer) error {
	var body bytes.Buffer
	for _, instr := range c.instructions {
		if instr == nil {
			body.WriteByte(0)
			continue
		}
		if err := wire.Encode(&body, c, instr); err != nil {
			return errors.Wrap(err, "changeset: encode instruction")
		}
	}
	var buf bytes.Buffer
	putVarint(&buf, int64(c.OriginTimestamp))
	putUvarint(&buf, uint64(c.OriginFileIdentity))
	putUvarint(&buf, uint64(len(c.strings)))
	for _, s := range c.strings {
		putBytes(&buf, []byte(s))
	}
	putUvarint(&buf, uint64(len(c.instructions)))
	buf.Write(body.Bytes())
	_, err := w.Write(buf.Bytes())
	return err
}

// Decode reads a changeset previously written by Encode.
func Decode(r *bytes.Reader) (*Changeset, error) {
	ts, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	origin, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	c := New(peer.Timestamp(ts), peer.FileIdentity(origin))
	nStrings, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nStrings; i++ {
		b, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		s := string(b)
		c.strings = append(c.strings, s)
		c.index[s] = len(c.strings) - 1
	}
	nInstr, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	c.instructions = make([]wire.Instruction, nInstr)
	for i := uint64(0); i < nInstr; i++ {
		peeked, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(wire.ErrBadFormat, err.Error())
		}
		if peeked == 0 {
			continue
		}
		if err := r.UnreadByte(); err != nil {
			return nil, err
		}
		instr, err := wire.Decode(r, c)
		if err != nil {
			return nil, err
		}
		c.instructions[i] = instr
	}
	return c, nil
}
