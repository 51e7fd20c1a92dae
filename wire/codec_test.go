// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vanadium/otengine/wire"
)

// fakeInterner is a minimal wire.Interner for codec tests, independent of
// the changeset package so wire can be tested in isolation.
type fakeInterner struct {
	strings []string
	index   map[string]int
}

func newFakeInterner() *fakeInterner {
	return &fakeInterner{index: make(map[string]int)}
}

func (f *fakeInterner) Intern(s string) int {
	if idx, ok := f.index[s]; ok {
		return idx
	}
	idx := len(f.strings)
	f.strings = append(f.strings, s)
	f.index[s] = idx
	return idx
}

func (f *fakeInterner) Lookup(idx int) (string, error) {
	return f.strings[idx], nil
}

func roundTrip(t *testing.T, instr wire.Instruction) wire.Instruction {
	t.Helper()
	interner := newFakeInterner()
	var buf bytes.Buffer
	require.NoError(t, wire.Encode(&buf, interner, instr))
	got, err := wire.Decode(bytes.NewReader(buf.Bytes()), interner)
	require.NoError(t, err)
	return got
}

func TestCodecRoundTripInstructions(t *testing.T) {
	path := wire.Path{Table: "widgets", Object: wire.GlobalKey{HasPK: true, PK: wire.Payload{Kind: wire.KindInt, Int: 7}}, Field: "name"}

	cases := []wire.Instruction{
		&wire.AddTable{PathV: wire.Path{Table: "widgets"}, PrimaryKeyCol: "id"},
		&wire.EraseTable{PathV: wire.Path{Table: "widgets"}},
		&wire.AddColumn{PathV: path, Type: wire.ColumnString, Nullable: true},
		&wire.CreateObject{PathV: path, PrimaryKey: wire.Payload{Kind: wire.KindInt, Int: 7}},
		&wire.EraseObject{PathV: path},
		&wire.Update{PathV: path, Value: wire.Payload{Kind: wire.KindString, Str: "hello"}},
		&wire.Update{PathV: path, Value: wire.Payload{Kind: wire.KindInt, Int: 3}, IsDefault: true, PendingAdd: ptr(int64(5))},
		&wire.AddInteger{PathV: path, Delta: -4},
		&wire.ArrayInsert{PathV: path.WithTail([]wire.SubPath{wire.Index(2)}), Value: wire.Payload{Kind: wire.KindBool, Bool: true}, PriorSize: 2},
		&wire.ArrayMove{PathV: path.WithTail([]wire.SubPath{wire.Index(0)}), To: 3},
		&wire.ArrayErase{PathV: path.WithTail([]wire.SubPath{wire.Index(1)}), PriorSize: 4},
		&wire.Clear{PathV: path},
		&wire.SetInsert{PathV: path, Element: wire.Payload{Kind: wire.KindDouble, Double: 1.5}},
		&wire.SetErase{PathV: path, Element: wire.Payload{Kind: wire.KindDouble, Double: 1.5}},
	}

	for _, want := range cases {
		got := roundTrip(t, want)
		require.Equal(t, want.Kind(), got.Kind())
		require.Equal(t, want.Path().String(), got.Path().String())
	}
}

func TestCodecRoundTripPayloadKinds(t *testing.T) {
	path := wire.Path{Table: "t", Object: wire.GlobalKey{High: 1, Low: 2}, Field: "f"}
	u := uuid.New()
	payloads := []wire.Payload{
		wire.Null(),
		{Kind: wire.KindInt, Int: -42},
		{Kind: wire.KindBool, Bool: true},
		{Kind: wire.KindFloat, Float: 3.25},
		{Kind: wire.KindDouble, Double: -9.5},
		{Kind: wire.KindString, Str: "hello world"},
		{Kind: wire.KindBinary, Binary: []byte{1, 2, 3, 0, 255}},
		{Kind: wire.KindTimestamp, Timestamp: 123456789},
		{Kind: wire.KindDecimal, Decimal: decimal.RequireFromString("-123.456")},
		{Kind: wire.KindObjectID, ObjectID: wire.ObjectID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		{Kind: wire.KindUUID, UUID: u},
		{Kind: wire.KindLink, Link: wire.Link{Table: "other", Key: wire.GlobalKey{HasPK: true, PK: wire.Payload{Kind: wire.KindInt, Int: 9}}}},
		wire.OpenList(),
		wire.OpenDictionary(),
	}

	for _, p := range payloads {
		want := &wire.Update{PathV: path, Value: p}
		got := roundTrip(t, want).(*wire.Update)
		require.True(t, p.Equal(got.Value), "payload kind %v round-trip mismatch: %+v vs %+v", p.Kind, p, got.Value)
	}
}

// TestCodecPathRoundTripStructural checks a multi-level path (a key and an
// index below the field) survives the codec: go-cmp diffs the rendered
// path, which spells out every component, and the value and prior size are
// compared directly.
func TestCodecPathRoundTripStructural(t *testing.T) {
	path := wire.Path{
		Table:  "docs",
		Object: wire.GlobalKey{High: 7, Low: 9},
		Field:  "items",
		Tail:   []wire.SubPath{wire.Key("en"), wire.Index(3)},
	}
	want := &wire.ArrayInsert{PathV: path, Value: wire.Payload{Kind: wire.KindInt, Int: 1}, PriorSize: 3}
	got := roundTrip(t, want).(*wire.ArrayInsert)

	if diff := cmp.Diff(want.PathV.String(), got.PathV.String()); diff != "" {
		t.Fatalf("path mismatch (-want +got):\n%s", diff)
	}
	require.True(t, want.Value.Equal(got.Value))
	require.Equal(t, want.PriorSize, got.PriorSize)
}

func TestCodecRejectsUnknownTag(t *testing.T) {
	_, err := wire.Decode(bytes.NewReader([]byte{0xFF}), newFakeInterner())
	require.Error(t, err)
}

func ptr(v int64) *int64 { return &v }
