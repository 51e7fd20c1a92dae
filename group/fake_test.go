// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package group_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vanadium/otengine/group"
	"github.com/vanadium/otengine/wire"
)

func TestFakeGroupObjectLifecycle(t *testing.T) {
	g := group.NewFakeGroup()
	tx, err := g.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.AddTable("t", "id", false))

	key := wire.GlobalKey{HasPK: true, PK: wire.Payload{Kind: wire.KindInt, Int: 1}}
	ok, err := tx.ObjectExists("t", key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tx.CreateObject("t", key))
	ok, err = tx.ObjectExists("t", key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, tx.EraseObject("t", key))
	ok, err = tx.ObjectExists("t", key)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, tx.Commit())
}

func TestFakeGroupArrayOperations(t *testing.T) {
	g := group.NewFakeGroup()
	tx, err := g.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.AddTable("t", "id", false))
	key := wire.GlobalKey{HasPK: true, PK: wire.Payload{Kind: wire.KindInt, Int: 1}}
	require.NoError(t, tx.CreateObject("t", key))

	path := wire.Path{Table: "t", Object: key, Field: "list"}
	require.NoError(t, tx.ArrayInsert(path, 0, wire.Payload{Kind: wire.KindInt, Int: 1}))
	require.NoError(t, tx.ArrayInsert(path, 1, wire.Payload{Kind: wire.KindInt, Int: 2}))
	require.NoError(t, tx.ArrayInsert(path, 1, wire.Payload{Kind: wire.KindInt, Int: 3}))

	n, err := tx.ContainerLen(path)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	require.NoError(t, tx.ArrayErase(path, 0))
	n, err = tx.ContainerLen(path)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestFakeGroupSetOperations(t *testing.T) {
	g := group.NewFakeGroup()
	tx, err := g.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.AddTable("t", "id", false))
	key := wire.GlobalKey{HasPK: true, PK: wire.Payload{Kind: wire.KindInt, Int: 1}}
	require.NoError(t, tx.CreateObject("t", key))

	path := wire.Path{Table: "t", Object: key, Field: "tags"}
	require.NoError(t, tx.SetInsert(path, wire.Payload{Kind: wire.KindString, Str: "a"}))
	require.NoError(t, tx.SetInsert(path, wire.Payload{Kind: wire.KindString, Str: "b"}))
	n, err := tx.ContainerLen(path)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, tx.SetErase(path, wire.Payload{Kind: wire.KindString, Str: "a"}))
	n, err = tx.ContainerLen(path)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
