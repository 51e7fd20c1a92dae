// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

// Kind tags the variant of an Instruction. Go has no sum types, so the
// tagged-union shape below follows the same pattern the teacher's VDL
// codegen produces for wire unions (server/watchable/types.vdl.go's Op
// interface): one concrete struct per variant and an Index()-equivalent
// Kind() method. The applier and transformer type-switch on the concrete
// structs; Go does not check those switches for exhaustiveness, so an
// unhandled variant reaches the applier's default error branch or is left
// untouched by the transformer.
type Kind uint8

const (
	KindAddTable Kind = iota
	KindEraseTable
	KindAddColumn
	KindEraseColumn
	KindCreateObject
	KindEraseObject
	KindUpdate
	KindAddInteger
	KindArrayInsert
	KindArrayMove
	KindArrayErase
	KindClear
	KindSetInsert
	KindSetErase
)

func (k Kind) String() string {
	switch k {
	case KindAddTable:
		return "AddTable"
	case KindEraseTable:
		return "EraseTable"
	case KindAddColumn:
		return "AddColumn"
	case KindEraseColumn:
		return "EraseColumn"
	case KindCreateObject:
		return "CreateObject"
	case KindEraseObject:
		return "EraseObject"
	case KindUpdate:
		return "Update"
	case KindAddInteger:
		return "AddInteger"
	case KindArrayInsert:
		return "ArrayInsert"
	case KindArrayMove:
		return "ArrayMove"
	case KindArrayErase:
		return "ArrayErase"
	case KindClear:
		return "Clear"
	case KindSetInsert:
		return "SetInsert"
	case KindSetErase:
		return "SetErase"
	default:
		return "Unknown"
	}
}

// CollectionKind names the shape of a collection-typed column (spec.md §3
// schema row).
type CollectionKind uint8

const (
	CollectionNone CollectionKind = iota
	CollectionList
	CollectionDictionary
	CollectionSet
)

// ColumnType names the declared scalar/link type of a column.
type ColumnType uint8

const (
	ColumnInt ColumnType = iota
	ColumnBool
	ColumnFloat
	ColumnDouble
	ColumnString
	ColumnBinary
	ColumnTimestamp
	ColumnDecimal
	ColumnObjectID
	ColumnUUID
	ColumnLink
	ColumnTypedLink
	ColumnMixed
)

// Instruction is the common interface implemented by every variant below.
// A nil Instruction slot (see changeset.Changeset) means "discarded by
// transform" while preserving the slot's position for cursor stability.
type Instruction interface {
	Kind() Kind
	Path() Path
}

// --- Schema group ---

type AddTable struct {
	PathV         Path
	PrimaryKeyCol string // empty if the table has no declared primary key
	Embedded      bool
}

func (i *AddTable) Kind() Kind { return KindAddTable }
func (i *AddTable) Path() Path { return i.PathV }

type EraseTable struct {
	PathV Path
}

func (i *EraseTable) Kind() Kind { return KindEraseTable }
func (i *EraseTable) Path() Path { return i.PathV }

type AddColumn struct {
	PathV      Path
	Type       ColumnType
	Nullable   bool
	Collection CollectionKind
	LinkTarget string // target table name, valid iff Type is Link/TypedLink
	IsPrimary  bool
}

func (i *AddColumn) Kind() Kind { return KindAddColumn }
func (i *AddColumn) Path() Path { return i.PathV }

type EraseColumn struct {
	PathV Path
}

func (i *EraseColumn) Kind() Kind { return KindEraseColumn }
func (i *EraseColumn) Path() Path { return i.PathV }

// --- Object lifecycle group ---

type CreateObject struct {
	PathV Path
	// PrimaryKey carries the PK payload for PK tables; zero Payload
	// (KindNull) for non-PK tables, which are identified by PathV.Object
	// instead (spec.md §3).
	PrimaryKey Payload
}

func (i *CreateObject) Kind() Kind { return KindCreateObject }
func (i *CreateObject) Path() Path { return i.PathV }

type EraseObject struct {
	PathV Path
}

func (i *EraseObject) Kind() Kind { return KindEraseObject }
func (i *EraseObject) Path() Path { return i.PathV }

// --- Scalar mutation group ---

// Update sets the value at a field or collection-element path. IsDefault
// marks a value written because the field was never explicitly set (spec.md
// §4.4.1): it behaves as timestamp -infinity in every tie-break. PendingAdd,
// when non-nil, is the summed AddInteger delta(s) that followed this Update
// on the same path within the same changeset, plus any concurrent
// AddInteger delta a merge folded into it (spec.md §3, §4.4.4); since
// every instruction in a changeset shares one origin timestamp, multiple
// same-path AddIntegers collapse losslessly into a single signed sum.
type Update struct {
	PathV      Path
	Value      Payload
	IsDefault  bool
	PendingAdd *int64
}

func (i *Update) Kind() Kind { return KindUpdate }
func (i *Update) Path() Path { return i.PathV }

// AddInteger is a standalone integer delta with no preceding Update on its
// path within the same changeset (spec.md §4.4.4): it targets whatever
// integer is already present in the receiving state.
type AddInteger struct {
	PathV Path
	Delta int64
}

func (i *AddInteger) Kind() Kind { return KindAddInteger }
func (i *AddInteger) Path() Path { return i.PathV }

// --- Collection structural group ---

type ArrayInsert struct {
	PathV     Path // Tail's last selector is the insertion index
	Value     Payload
	PriorSize int64
}

func (i *ArrayInsert) Kind() Kind { return KindArrayInsert }
func (i *ArrayInsert) Path() Path { return i.PathV }

type ArrayMove struct {
	PathV Path // Tail's last selector is the source index
	To    int64
}

func (i *ArrayMove) Kind() Kind { return KindArrayMove }
func (i *ArrayMove) Path() Path { return i.PathV }

type ArrayErase struct {
	PathV     Path // Tail's last selector is the erased index
	PriorSize int64
}

func (i *ArrayErase) Kind() Kind { return KindArrayErase }
func (i *ArrayErase) Path() Path { return i.PathV }

// Clear empties a list, dictionary or set addressed by PathV.
type Clear struct {
	PathV Path
}

func (i *Clear) Kind() Kind { return KindClear }
func (i *Clear) Path() Path { return i.PathV }

// --- Set group ---

type SetInsert struct {
	PathV   Path
	Element Payload
}

func (i *SetInsert) Kind() Kind { return KindSetInsert }
func (i *SetInsert) Path() Path { return i.PathV }

type SetErase struct {
	PathV   Path
	Element Payload
}

func (i *SetErase) Kind() Kind { return KindSetErase }
func (i *SetErase) Path() Path { return i.PathV }

// WithPath returns a shallow copy of instr with its path replaced by p. Used
// by changeset.RewritePaths when a schema change (a table or column rename)
// needs every already-recorded instruction's path updated in place without
// disturbing its slot position or any other field.
func WithPath(instr Instruction, p Path) Instruction {
	switch v := instr.(type) {
	case *AddTable:
		c := *v
		c.PathV = p
		return &c
	case *EraseTable:
		c := *v
		c.PathV = p
		return &c
	case *AddColumn:
		c := *v
		c.PathV = p
		return &c
	case *EraseColumn:
		c := *v
		c.PathV = p
		return &c
	case *CreateObject:
		c := *v
		c.PathV = p
		return &c
	case *EraseObject:
		c := *v
		c.PathV = p
		return &c
	case *Update:
		c := *v
		c.PathV = p
		return &c
	case *AddInteger:
		c := *v
		c.PathV = p
		return &c
	case *ArrayInsert:
		c := *v
		c.PathV = p
		return &c
	case *ArrayMove:
		c := *v
		c.PathV = p
		return &c
	case *ArrayErase:
		c := *v
		c.PathV = p
		return &c
	case *Clear:
		c := *v
		c.PathV = p
		return &c
	case *SetInsert:
		c := *v
		c.PathV = p
		return &c
	case *SetErase:
		c := *v
		c.PathV = p
		return &c
	default:
		return instr
	}
}
