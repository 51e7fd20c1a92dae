// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package group

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/vanadium/otengine/errs"
	"github.com/vanadium/otengine/wire"
)

// objItem is a btree.Item ordering live object keys within one table, in
// the style of the teacher's store/test fake (services/syncbase/store/test/store.go),
// adapted from a raw-byte-keyed store to a GlobalKey-addressed one.
type objItem string

func (o objItem) Less(than btree.Item) bool { return o < than.(objItem) }

type table struct {
	spec    TableSpec
	objects *btree.BTree // of objItem, one per live object
}

// FakeGroup is an in-memory Group for tests and for driving the property
// tests in spec.md §8. Transactions are serialized: BeginTx takes the
// group's own lock, which Commit/Rollback releases, matching the teacher
// fake's single-writer assumption. Writes go straight into the group's
// maps, so Rollback only releases the lock; it does not undo them.
type FakeGroup struct {
	mu     sync.Mutex
	tables map[string]*table
	fields map[string]wire.Payload   // path.String() -> scalar value
	lists  map[string][]wire.Payload // container path.String() -> ordered elements
	sets   map[string]map[string]wire.Payload
}

// NewFakeGroup returns an empty group with no tables.
func NewFakeGroup() *FakeGroup {
	return &FakeGroup{
		tables: make(map[string]*table),
		fields: make(map[string]wire.Payload),
		lists:  make(map[string][]wire.Payload),
		sets:   make(map[string]map[string]wire.Payload),
	}
}

func (g *FakeGroup) BeginTx(ctx context.Context) (Tx, error) {
	select {
	case <-ctx.Done():
		return nil, errs.Wrap(errs.KindCancelled, ctx.Err(), "group: begin tx")
	default:
	}
	g.mu.Lock()
	return &fakeTx{g: g, committed: false}, nil
}

type fakeTx struct {
	g         *FakeGroup
	committed bool
	done      bool
}

func (t *fakeTx) end() {
	if !t.done {
		t.done = true
		t.g.mu.Unlock()
	}
}

func (t *fakeTx) Commit() error   { t.end(); return nil }
func (t *fakeTx) Rollback() error { t.end(); return nil }

func (t *fakeTx) Schema() Schema { return fakeSchema{t.g} }

type fakeSchema struct{ g *FakeGroup }

func (s fakeSchema) Table(name string) (TableSpec, bool) {
	tb, ok := s.g.tables[name]
	if !ok {
		return TableSpec{}, false
	}
	return tb.spec, true
}

func (t *fakeTx) AddTable(name, primaryKeyCol string, embedded bool) error {
	if _, ok := t.g.tables[name]; ok {
		return errs.Newf(errs.KindBadSchema, "group: table %q already exists", name)
	}
	t.g.tables[name] = &table{
		spec:    TableSpec{PrimaryKeyCol: primaryKeyCol, Embedded: embedded, Columns: make(map[string]ColumnSpec)},
		objects: btree.New(32),
	}
	return nil
}

func (t *fakeTx) EraseTable(name string) error {
	if _, ok := t.g.tables[name]; !ok {
		return errs.Newf(errs.KindBadSchema, "group: table %q does not exist", name)
	}
	delete(t.g.tables, name)
	return nil
}

func (t *fakeTx) AddColumn(table, col string, spec ColumnSpec) error {
	tb, ok := t.g.tables[table]
	if !ok {
		return errs.Newf(errs.KindBadSchema, "group: table %q does not exist", table)
	}
	tb.spec.Columns[col] = spec
	return nil
}

func (t *fakeTx) EraseColumn(table, col string) error {
	tb, ok := t.g.tables[table]
	if !ok {
		return errs.Newf(errs.KindBadSchema, "group: table %q does not exist", table)
	}
	delete(tb.spec.Columns, col)
	return nil
}

func objKey(table string, key wire.GlobalKey) objItem {
	return objItem(table + "\x00" + key.String())
}

func (t *fakeTx) ObjectExists(table string, key wire.GlobalKey) (bool, error) {
	tb, ok := t.g.tables[table]
	if !ok {
		return false, errs.Newf(errs.KindBadSchema, "group: table %q does not exist", table)
	}
	return tb.objects.Get(objKey(table, key)) != nil, nil
}

func (t *fakeTx) CreateObject(table string, key wire.GlobalKey) error {
	tb, ok := t.g.tables[table]
	if !ok {
		return errs.Newf(errs.KindBadSchema, "group: table %q does not exist", table)
	}
	tb.objects.ReplaceOrInsert(objKey(table, key))
	return nil
}

func (t *fakeTx) EraseObject(table string, key wire.GlobalKey) error {
	tb, ok := t.g.tables[table]
	if !ok {
		return errs.Newf(errs.KindBadSchema, "group: table %q does not exist", table)
	}
	tb.objects.Delete(objKey(table, key))
	prefix := table + "\x00" + key.String()
	for k := range t.g.fields {
		if hasPrefix(k, prefix) {
			delete(t.g.fields, k)
		}
	}
	for k := range t.g.lists {
		if hasPrefix(k, prefix) {
			delete(t.g.lists, k)
		}
	}
	for k := range t.g.sets {
		if hasPrefix(k, prefix) {
			delete(t.g.sets, k)
		}
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (t *fakeTx) Get(path wire.Path) (wire.Payload, bool, error) {
	v, ok := t.g.fields[path.String()]
	return v, ok, nil
}

func (t *fakeTx) Set(path wire.Path, val wire.Payload) error {
	switch val.Kind {
	case wire.KindOpenList:
		t.g.lists[path.String()] = nil
	case wire.KindOpenDictionary:
		// Dictionaries are represented as scalar sub-fields addressed by
		// their own Path with a Key sub-path; opening one needs no backing
		// slice, only the sentinel recorded so reads can distinguish
		// "empty open dictionary" from "never written".
	}
	t.g.fields[path.String()] = val
	return nil
}

func (t *fakeTx) Delete(path wire.Path) error {
	delete(t.g.fields, path.String())
	delete(t.g.lists, path.String())
	delete(t.g.sets, path.String())
	return nil
}

func (t *fakeTx) ContainerLen(path wire.Path) (int64, error) {
	key := path.String()
	if l, ok := t.g.lists[key]; ok {
		return int64(len(l)), nil
	}
	if s, ok := t.g.sets[key]; ok {
		return int64(len(s)), nil
	}
	return 0, nil
}

func (t *fakeTx) ArrayInsert(path wire.Path, index int64, val wire.Payload) error {
	key := path.String()
	l := t.g.lists[key]
	if index < 0 || index > int64(len(l)) {
		return errs.Newf(errs.KindBadChangeset, "group: array insert index %d out of range (len %d)", index, len(l))
	}
	l = append(l, wire.Payload{})
	copy(l[index+1:], l[index:])
	l[index] = val
	t.g.lists[key] = l
	return nil
}

func (t *fakeTx) ArrayMove(path wire.Path, from, to int64) error {
	key := path.String()
	l := t.g.lists[key]
	if from < 0 || from >= int64(len(l)) || to < 0 || to >= int64(len(l)) {
		return errs.Newf(errs.KindBadChangeset, "group: array move index out of range")
	}
	v := l[from]
	l = append(l[:from], l[from+1:]...)
	l = append(l, wire.Payload{})
	copy(l[to+1:], l[to:])
	l[to] = v
	t.g.lists[key] = l
	return nil
}

func (t *fakeTx) ArrayErase(path wire.Path, index int64) error {
	key := path.String()
	l := t.g.lists[key]
	if index < 0 || index >= int64(len(l)) {
		return errs.Newf(errs.KindBadChangeset, "group: array erase index %d out of range (len %d)", index, len(l))
	}
	t.g.lists[key] = append(l[:index], l[index+1:]...)
	return nil
}

func (t *fakeTx) Clear(path wire.Path) error {
	key := path.String()
	if _, ok := t.g.lists[key]; ok {
		t.g.lists[key] = nil
	}
	if _, ok := t.g.sets[key]; ok {
		t.g.sets[key] = make(map[string]wire.Payload)
	}
	return nil
}

func elemKey(p wire.Payload) string {
	return fmt.Sprintf("%d:%v", p.Kind, p)
}

func (t *fakeTx) SetInsert(path wire.Path, elem wire.Payload) error {
	key := path.String()
	s := t.g.sets[key]
	if s == nil {
		s = make(map[string]wire.Payload)
		t.g.sets[key] = s
	}
	s[elemKey(elem)] = elem
	return nil
}

func (t *fakeTx) SetErase(path wire.Path, elem wire.Payload) error {
	key := path.String()
	if s, ok := t.g.sets[key]; ok {
		delete(s, elemKey(elem))
	}
	return nil
}
