// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayloadKind tags the variant held by a Payload (spec.md §3).
type PayloadKind uint8

const (
	KindNull PayloadKind = iota
	KindInt
	KindBool
	KindFloat
	KindDouble
	KindString
	KindBinary
	KindTimestamp
	KindDecimal
	KindObjectID
	KindUUID
	KindLink
	KindTypedLink
	KindOpenList
	KindOpenDictionary
)

// ObjectID is a 12-byte identifier in the style of a Mongo-like ObjectId
// base scalar type.
type ObjectID [12]byte

// Link is a reference to another row: a target table plus its global key.
type Link struct {
	Table string
	Key   GlobalKey
}

// Payload is the polymorphic value carried by Update and by collection
// element operations (spec.md §3): a base scalar, a link/typed-link, a
// nested-collection sentinel, or null.
type Payload struct {
	Kind PayloadKind

	Int       int64
	Bool      bool
	Float     float32
	Double    float64
	Str       string
	Binary    []byte
	Timestamp int64 // nanoseconds since epoch
	Decimal   decimal.Decimal
	ObjectID  ObjectID
	UUID      uuid.UUID

	Link Link
	// TypedLinkTable carries the table tag for a typed-link payload; Link
	// itself holds the target.
	TypedLinkTable string
}

// Null is the null payload.
func Null() Payload { return Payload{Kind: KindNull} }

// OpenList is the sentinel payload that converts a field or element into a
// list container.
func OpenList() Payload { return Payload{Kind: KindOpenList} }

// OpenDictionary is the sentinel payload that converts a field or element
// into a dictionary container.
func OpenDictionary() Payload { return Payload{Kind: KindOpenDictionary} }

// IsContainerSentinel reports whether p opens a nested list or dictionary.
func (p Payload) IsContainerSentinel() bool {
	return p.Kind == KindOpenList || p.Kind == KindOpenDictionary
}

// SameContainerKind reports whether p and other are both container
// sentinels of the same kind.
func (p Payload) SameContainerKind(other Payload) bool {
	return p.IsContainerSentinel() && p.Kind == other.Kind
}

// Equal reports structural equality. String payloads compare by content
// (via the interning table lookup already resolved into Str), never by
// interned index (spec.md §3 interning invariant (b)).
func (p Payload) Equal(other Payload) bool {
	if p.Kind != other.Kind {
		return false
	}
	switch p.Kind {
	case KindNull, KindOpenList, KindOpenDictionary:
		return true
	case KindInt:
		return p.Int == other.Int
	case KindBool:
		return p.Bool == other.Bool
	case KindFloat:
		return p.Float == other.Float
	case KindDouble:
		return p.Double == other.Double
	case KindString:
		return p.Str == other.Str
	case KindBinary:
		return string(p.Binary) == string(other.Binary)
	case KindTimestamp:
		return p.Timestamp == other.Timestamp
	case KindDecimal:
		return p.Decimal.Equal(other.Decimal)
	case KindObjectID:
		return p.ObjectID == other.ObjectID
	case KindUUID:
		return p.UUID == other.UUID
	case KindLink:
		return p.Link.Table == other.Link.Table && p.Link.Key.Equal(other.Link.Key)
	case KindTypedLink:
		return p.TypedLinkTable == other.TypedLinkTable && p.Link.Key.Equal(other.Link.Key)
	default:
		return false
	}
}
