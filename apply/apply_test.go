// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package apply_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vanadium/otengine/apply"
	"github.com/vanadium/otengine/changeset"
	"github.com/vanadium/otengine/group"
	"github.com/vanadium/otengine/wire"
)

func newTx(t *testing.T) (group.Tx, *group.FakeGroup) {
	t.Helper()
	g := group.NewFakeGroup()
	tx, err := g.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.AddTable("widgets", "id", false))
	require.NoError(t, tx.AddColumn("widgets", "name", group.ColumnSpec{Type: wire.ColumnString, Nullable: true}))
	require.NoError(t, tx.AddColumn("widgets", "tags", group.ColumnSpec{Collection: wire.CollectionList}))
	return tx, g
}

func widgetPath(field string) wire.Path {
	return wire.Path{Table: "widgets", Object: wire.GlobalKey{HasPK: true, PK: wire.Payload{Kind: wire.KindInt, Int: 1}}, Field: field}
}

func TestApplyCreateThenUpdate(t *testing.T) {
	tx, _ := newTx(t)
	a := apply.New()
	c := changeset.New(1, 1)
	c.Push(&wire.CreateObject{PathV: widgetPath(""), PrimaryKey: wire.Payload{Kind: wire.KindInt, Int: 1}})
	c.Push(&wire.Update{PathV: widgetPath("name"), Value: wire.Payload{Kind: wire.KindString, Str: "gizmo"}})

	require.NoError(t, a.Apply(tx, c))

	v, ok, err := tx.Get(widgetPath("name"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "gizmo", v.Str)
}

func TestApplyUpdateWithPendingAdd(t *testing.T) {
	tx, _ := newTx(t)
	require.NoError(t, tx.AddColumn("widgets", "count", group.ColumnSpec{Type: wire.ColumnInt}))
	require.NoError(t, tx.CreateObject("widgets", widgetPath("").Object))

	a := apply.New()
	c := changeset.New(1, 1)
	delta := int64(5)
	c.Push(&wire.Update{PathV: widgetPath("count"), Value: wire.Payload{Kind: wire.KindInt, Int: 10}, PendingAdd: &delta})

	require.NoError(t, a.Apply(tx, c))

	v, ok, err := tx.Get(widgetPath("count"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(15), v.Int)
}

func TestApplyRejectsMissingObject(t *testing.T) {
	tx, _ := newTx(t)
	a := apply.New()
	c := changeset.New(1, 1)
	c.Push(&wire.Update{PathV: widgetPath("name"), Value: wire.Payload{Kind: wire.KindString, Str: "x"}})

	err := a.Apply(tx, c)
	require.Error(t, err)
}

func TestApplyArrayInsertAndPriorSizeCheck(t *testing.T) {
	tx, _ := newTx(t)
	require.NoError(t, tx.CreateObject("widgets", widgetPath("").Object))

	a := apply.New()
	c := changeset.New(1, 1)
	p := widgetPath("tags").WithTail([]wire.SubPath{wire.Index(0)})
	c.Push(&wire.ArrayInsert{PathV: p, Value: wire.Payload{Kind: wire.KindString, Str: "red"}, PriorSize: 0})

	require.NoError(t, a.Apply(tx, c))

	n, err := tx.ContainerLen(widgetPath("tags"))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// A stale prior_size should now be rejected.
	c2 := changeset.New(1, 1)
	c2.Push(&wire.ArrayInsert{PathV: p, Value: wire.Payload{Kind: wire.KindString, Str: "blue"}, PriorSize: 0})
	require.Error(t, a.Apply(tx, c2))
}
