// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package integrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vanadium/otengine/changeset"
	"github.com/vanadium/otengine/group"
	"github.com/vanadium/otengine/history"
	"github.com/vanadium/otengine/integrate"
	"github.com/vanadium/otengine/peer"
	"github.com/vanadium/otengine/wire"
)

func setupGroup(t *testing.T) *group.FakeGroup {
	t.Helper()
	g := group.NewFakeGroup()
	tx, err := g.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.AddTable("widgets", "id", false))
	require.NoError(t, tx.AddColumn("widgets", "name", group.ColumnSpec{Type: wire.ColumnString, Nullable: true}))
	require.NoError(t, tx.Commit())
	return g
}

func widgetKey() wire.GlobalKey {
	return wire.GlobalKey{HasPK: true, PK: wire.Payload{Kind: wire.KindInt, Int: 1}}
}

func TestIntegrateAppliesAndRecordsHistory(t *testing.T) {
	g := setupGroup(t)
	log := history.New()
	in := integrate.New(g, log, 1)

	c := changeset.New(10, 2)
	c.Push(&wire.CreateObject{PathV: wire.Path{Table: "widgets", Object: widgetKey()}, PrimaryKey: wire.Payload{Kind: wire.KindInt, Int: 1}})
	c.Push(&wire.Update{PathV: wire.Path{Table: "widgets", Object: widgetKey(), Field: "name"}, Value: wire.Payload{Kind: wire.KindString, Str: "gizmo"}})

	v, err := in.Integrate(context.Background(), 2, peer.Version(5), c)
	require.NoError(t, err)
	require.Equal(t, peer.Version(1), v)

	e, ok := log.EntryAt(v)
	require.True(t, ok)
	require.Equal(t, peer.FileIdentity(2), e.Origin)

	require.True(t, log.HasPulled(2, peer.Version(5)))
}

func TestIntegrateDedupsRedelivery(t *testing.T) {
	g := setupGroup(t)
	log := history.New()
	in := integrate.New(g, log, 1)

	c := changeset.New(10, 2)
	c.Push(&wire.CreateObject{PathV: wire.Path{Table: "widgets", Object: widgetKey()}, PrimaryKey: wire.Payload{Kind: wire.KindInt, Int: 1}})

	_, err := in.Integrate(context.Background(), 2, peer.Version(1), c)
	require.NoError(t, err)

	head := log.Head()
	got, err := in.Integrate(context.Background(), 2, peer.Version(1), c)
	require.NoError(t, err)
	require.Equal(t, head, got)
}
