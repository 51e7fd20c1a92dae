// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package apply executes a transformed changeset's instructions against a
// group.Tx, in the style of the teacher's watchable layer replaying a log
// of store operations into a transaction (server/watchable/stream.go) and
// store/util.go's RunInTransaction retry wrapper.
package apply

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vanadium/otengine/changeset"
	"github.com/vanadium/otengine/errs"
	"github.com/vanadium/otengine/group"
	"github.com/vanadium/otengine/wire"
)

// Applier executes changesets against a group.Tx. It caches object-existence
// lookups for the duration of a single Apply call, since a
// changeset routinely touches the same object many times in a row (repeated
// field updates, a create immediately followed by several inserts).
type Applier struct {
	existsCache *lru.Cache[string, bool]
	colCache    *lru.Cache[string, group.ColumnSpec]
}

// New returns an Applier with a bounded per-call lookup cache.
func New() *Applier {
	existsCache, _ := lru.New[string, bool](1024)
	colCache, _ := lru.New[string, group.ColumnSpec](1024)
	return &Applier{existsCache: existsCache, colCache: colCache}
}

// Apply executes every live (non-discarded) instruction in c against tx, in
// slot order. It stops and returns the first error encountered; the caller
// is responsible for rolling back tx on error.
func (a *Applier) Apply(tx group.Tx, c *changeset.Changeset) error {
	a.existsCache.Purge()
	a.colCache.Purge()
	var applyErr error
	c.Iterate(func(cursor int, instr wire.Instruction) {
		if applyErr != nil {
			return
		}
		if err := a.applyOne(tx, instr); err != nil {
			kind := errs.KindBadChangeset
			if errs.Is(err, errs.KindBadSchema) {
				kind = errs.KindBadSchema
			}
			wrapped := errs.Wrap(kind, err, wireAt(cursor, instr)).(*errs.Error)
			wrapped.InstructionIndex = cursor
			applyErr = wrapped
		}
	})
	return applyErr
}

func wireAt(cursor int, instr wire.Instruction) string {
	return instr.Kind().String() + " at " + instr.Path().String() + " (slot " + itoa(cursor) + ")"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

func (a *Applier) applyOne(tx group.Tx, instr wire.Instruction) error {
	switch v := instr.(type) {
	case *wire.AddTable:
		return tx.AddTable(v.PathV.Table, v.PrimaryKeyCol, v.Embedded)
	case *wire.EraseTable:
		return tx.EraseTable(v.PathV.Table)
	case *wire.AddColumn:
		return tx.AddColumn(v.PathV.Table, v.PathV.Field, group.ColumnSpec{
			Type: v.Type, Nullable: v.Nullable, Collection: v.Collection,
			LinkTarget: v.LinkTarget, IsPrimary: v.IsPrimary,
		})
	case *wire.EraseColumn:
		return tx.EraseColumn(v.PathV.Table, v.PathV.Field)
	case *wire.CreateObject:
		return tx.CreateObject(v.PathV.Table, v.PathV.Object)
	case *wire.EraseObject:
		return tx.EraseObject(v.PathV.Table, v.PathV.Object)
	case *wire.Update:
		if err := a.checkObjectExists(tx, v.PathV); err != nil {
			return err
		}
		val := v.Value
		// A null Update carries its pending sum without applying it: the
		// field stays null.
		if v.PendingAdd != nil && val.Kind != wire.KindNull {
			if val.Kind != wire.KindInt {
				return errs.Newf(errs.KindBadChangeset, "pending add on non-integer field %s", v.PathV)
			}
			val.Int += *v.PendingAdd
		}
		return tx.Set(v.PathV, val)
	case *wire.AddInteger:
		if err := a.checkObjectExists(tx, v.PathV); err != nil {
			return err
		}
		cur, ok, err := tx.Get(v.PathV)
		if err != nil {
			return err
		}
		if !ok || cur.Kind != wire.KindInt {
			return errs.Newf(errs.KindBadChangeset, "add_integer on absent or non-integer field %s", v.PathV)
		}
		cur.Int += v.Delta
		return tx.Set(v.PathV, cur)
	case *wire.ArrayInsert:
		if err := a.checkObjectExists(tx, v.PathV); err != nil {
			return err
		}
		if err := checkPriorSize(tx, v.PathV, v.PriorSize); err != nil {
			return err
		}
		idx, err := lastIndex(v.PathV)
		if err != nil {
			return err
		}
		return tx.ArrayInsert(containerPath(v.PathV), idx, v.Value)
	case *wire.ArrayMove:
		if err := a.checkObjectExists(tx, v.PathV); err != nil {
			return err
		}
		from, err := lastIndex(v.PathV)
		if err != nil {
			return err
		}
		return tx.ArrayMove(containerPath(v.PathV), from, v.To)
	case *wire.ArrayErase:
		if err := a.checkObjectExists(tx, v.PathV); err != nil {
			return err
		}
		if err := checkPriorSize(tx, v.PathV, v.PriorSize); err != nil {
			return err
		}
		idx, err := lastIndex(v.PathV)
		if err != nil {
			return err
		}
		return tx.ArrayErase(containerPath(v.PathV), idx)
	case *wire.Clear:
		if err := a.checkObjectExists(tx, v.PathV); err != nil {
			return err
		}
		return tx.Clear(v.PathV)
	case *wire.SetInsert:
		if err := a.checkObjectExists(tx, v.PathV); err != nil {
			return err
		}
		return tx.SetInsert(v.PathV, v.Element)
	case *wire.SetErase:
		if err := a.checkObjectExists(tx, v.PathV); err != nil {
			return err
		}
		return tx.SetErase(v.PathV, v.Element)
	default:
		return errs.Newf(errs.KindBadChangeset, "unknown instruction type %T", instr)
	}
}

func (a *Applier) checkObjectExists(tx group.Tx, path wire.Path) error {
	key := path.Table + "\x00" + path.Object.String()
	if ok, hit := a.existsCache.Get(key); hit {
		if !ok {
			return errs.Newf(errs.KindBadChangeset, "object %s does not exist", path)
		}
		return nil
	}
	exists, err := tx.ObjectExists(path.Table, path.Object)
	if err != nil {
		return err
	}
	a.existsCache.Add(key, exists)
	if !exists {
		return errs.Newf(errs.KindBadChangeset, "object %s does not exist", path)
	}
	return nil
}

// checkPriorSize validates that the container's current length matches the
// instruction's recorded PriorSize, the invariant spec.md §4.4.2 relies on
// to keep array indices meaningful across a merge.
func checkPriorSize(tx group.Tx, path wire.Path, want int64) error {
	got, err := tx.ContainerLen(containerPath(path))
	if err != nil {
		return err
	}
	if got != want {
		return errs.Newf(errs.KindBadChangeset, "prior_size mismatch at %s: want %d, have %d", path, want, got)
	}
	return nil
}

// containerPath strips the final index sub-path, returning the path to the
// list itself.
func containerPath(p wire.Path) wire.Path {
	if len(p.Tail) == 0 {
		return p
	}
	return p.WithTail(append([]wire.SubPath(nil), p.Tail[:len(p.Tail)-1]...))
}

func lastIndex(p wire.Path) (int64, error) {
	if len(p.Tail) == 0 || p.Tail[len(p.Tail)-1].Kind != wire.SubPathIndex {
		return 0, errs.Newf(errs.KindBadChangeset, "path %s has no trailing list index", p)
	}
	return p.Tail[len(p.Tail)-1].Index, nil
}
