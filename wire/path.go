// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import "fmt"

// SubPathKind distinguishes dictionary descent (by string key) from list
// descent (by integer index) within a Path's tail.
type SubPathKind uint8

const (
	// SubPathKey descends into a dictionary by string key.
	SubPathKey SubPathKind = iota
	// SubPathIndex descends into a list by integer index.
	SubPathIndex
)

// SubPath is one step below the addressed field: either a dictionary key or
// a list index.
type SubPath struct {
	Kind  SubPathKind
	Key   string
	Index int64
}

// Key constructs a dictionary-descent sub-path.
func Key(k string) SubPath { return SubPath{Kind: SubPathKey, Key: k} }

// Index constructs a list-descent sub-path.
func Index(i int64) SubPath { return SubPath{Kind: SubPathIndex, Index: i} }

func (s SubPath) String() string {
	if s.Kind == SubPathKey {
		return fmt.Sprintf("[%q]", s.Key)
	}
	return fmt.Sprintf("[%d]", s.Index)
}

// GlobalKey is the cross-peer stable identity of an object (spec.md §3):
// either a primary-key value (for PK tables, carried in PK) or a (High, Low)
// pair for tables without a declared primary key.
type GlobalKey struct {
	// HasPK is true when this key is a primary-key payload rather than a
	// (High, Low) pair.
	HasPK bool
	PK    Payload
	High  uint64
	Low   uint64
}

func (k GlobalKey) String() string {
	if k.HasPK {
		return fmt.Sprintf("pk:%v", k.PK)
	}
	return fmt.Sprintf("%x:%x", k.High, k.Low)
}

// Equal reports whether two global keys address the same object.
func (k GlobalKey) Equal(other GlobalKey) bool {
	if k.HasPK != other.HasPK {
		return false
	}
	if k.HasPK {
		return k.PK.Equal(other.PK)
	}
	return k.High == other.High && k.Low == other.Low
}

// Path addresses a position inside the object graph: a table, a global
// object key, a field name, and an ordered sequence of sub-selectors
// (spec.md §3). A path with an empty Tail addresses the field itself.
type Path struct {
	Table  string
	Object GlobalKey
	Field  string
	Tail   []SubPath
}

func (p Path) String() string {
	s := fmt.Sprintf("%s[%v].%s", p.Table, p.Object, p.Field)
	for _, t := range p.Tail {
		s += t.String()
	}
	return s
}

// WithTail returns a copy of p with Tail replaced.
func (p Path) WithTail(tail []SubPath) Path {
	p.Tail = tail
	return p
}

// Relationship classifies how two paths relate (spec.md §4.4).
type Relationship int

const (
	// Disjoint means the paths differ at some level before either ends.
	Disjoint Relationship = iota
	// Same means the paths are identical through their last component.
	Same
	// APrefixOfB means a is a strict prefix of b: b points inside the
	// container a addresses.
	APrefixOfB
	// BPrefixOfA is the mirror of APrefixOfB.
	BPrefixOfA
)

// commonBase reports whether two paths share table, object and field -- the
// precondition for any Same/prefix relationship; they are otherwise always
// Disjoint at the field level.
func commonBase(a, b Path) bool {
	return a.Table == b.Table && a.Object.Equal(b.Object) && a.Field == b.Field
}

// Relate classifies the relationship between two paths with a single
// left-to-right walk, as recommended in spec.md §9.
func Relate(a, b Path) Relationship {
	if !commonBase(a, b) {
		return Disjoint
	}
	n := len(a.Tail)
	if len(b.Tail) < n {
		n = len(b.Tail)
	}
	for i := 0; i < n; i++ {
		if !subPathEqual(a.Tail[i], b.Tail[i]) {
			return Disjoint
		}
	}
	switch {
	case len(a.Tail) == len(b.Tail):
		return Same
	case len(a.Tail) < len(b.Tail):
		return APrefixOfB
	default:
		return BPrefixOfA
	}
}

func subPathEqual(a, b SubPath) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == SubPathKey {
		return a.Key == b.Key
	}
	return a.Index == b.Index
}

// SharedListAncestor returns the last shared index-typed sub-path position
// at which a and b diverge with list indices at the same depth, used by the
// list rules in spec.md §4.4.2. ok is false unless both paths address
// elements of the *same* list (Same path relationship one level short of
// the final selector, with both final selectors being indices).
func SharedListAncestor(a, b Path) (ai, bi int64, ok bool) {
	if !commonBase(a, b) {
		return 0, 0, false
	}
	if len(a.Tail) == 0 || len(b.Tail) == 0 {
		return 0, 0, false
	}
	if len(a.Tail) != len(b.Tail) {
		return 0, 0, false
	}
	for i := 0; i < len(a.Tail)-1; i++ {
		if !subPathEqual(a.Tail[i], b.Tail[i]) {
			return 0, 0, false
		}
	}
	last := len(a.Tail) - 1
	at, bt := a.Tail[last], b.Tail[last]
	if at.Kind != SubPathIndex || bt.Kind != SubPathIndex {
		return 0, 0, false
	}
	return at.Index, bt.Index, true
}
