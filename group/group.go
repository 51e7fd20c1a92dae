// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package group defines the external collaborator the integrator applies
// changesets against: a transactional key/value-shaped object store, in the
// style of the teacher's store.Store / store.StoreReadWriter / store.Transaction
// interfaces (services/syncbase/store/util.go), generalized from raw bytes
// to typed field values since this module's unit of storage is a
// wire.Payload rather than an opaque blob.
package group

import (
	"context"

	"github.com/vanadium/otengine/wire"
)

// ColumnSpec describes one column of a table (spec.md §3 AddColumn fields).
type ColumnSpec struct {
	Type       wire.ColumnType
	Nullable   bool
	Collection wire.CollectionKind
	LinkTarget string
	IsPrimary  bool
}

// TableSpec describes one table's schema.
type TableSpec struct {
	PrimaryKeyCol string
	Embedded      bool
	Columns       map[string]ColumnSpec
}

// Schema is the read-only schema view a Tx exposes. The applier does not
// consult it: a missing table surfaces as a BadSchema error from the Tx
// method that needed it.
type Schema interface {
	Table(name string) (TableSpec, bool)
}

// Group is anything that can hand out transactions over its stored object
// graph. A real implementation backs this with a persistent KV store; tests
// use the in-memory FakeGroup.
type Group interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a single read-write transaction against a Group. All path-addressed
// methods take a fully resolved wire.Path (table, global object key, field,
// sub-path tail) exactly as produced by the wire/changeset layers.
//
// Implementations must make Get/Set/Delete/ContainerLen observable only
// within the transaction until Commit; Rollback must leave the underlying
// Group completely unchanged.
type Tx interface {
	Schema() Schema

	// AddTable, EraseTable, AddColumn and EraseColumn mutate the schema.
	AddTable(name, primaryKeyCol string, embedded bool) error
	EraseTable(name string) error
	AddColumn(table, col string, spec ColumnSpec) error
	EraseColumn(table, col string) error

	// ObjectExists reports whether an object with the given global key is
	// live (created and not erased) in table.
	ObjectExists(table string, key wire.GlobalKey) (bool, error)
	CreateObject(table string, key wire.GlobalKey) error
	EraseObject(table string, key wire.GlobalKey) error

	// Get reads the current value at path. ok is false if the path has
	// never been written (and should read as the column's default).
	Get(path wire.Path) (val wire.Payload, ok bool, err error)
	// Set writes val at path, opening any container sentinel it carries.
	Set(path wire.Path, val wire.Payload) error
	// Delete removes whatever value is stored at path.
	Delete(path wire.Path) error

	// ContainerLen returns the current element count of the list,
	// dictionary or set at path, used to validate PriorSize (spec.md
	// §4.4.2).
	ContainerLen(path wire.Path) (int64, error)
	// ArrayInsert, ArrayMove, ArrayErase and Clear mutate list-shaped
	// containers; SetInsert/SetErase mutate set-shaped containers.
	ArrayInsert(path wire.Path, index int64, val wire.Payload) error
	ArrayMove(path wire.Path, from, to int64) error
	ArrayErase(path wire.Path, index int64) error
	Clear(path wire.Path) error
	SetInsert(path wire.Path, elem wire.Payload) error
	SetErase(path wire.Path, elem wire.Payload) error

	Commit() error
	Rollback() error
}
