// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package history_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vanadium/otengine/changeset"
	"github.com/vanadium/otengine/history"
	"github.com/vanadium/otengine/peer"
	"github.com/vanadium/otengine/wire"
)

func TestAppendAndEntryAt(t *testing.T) {
	log := history.New()
	c := changeset.New(10, 2)
	c.Push(&wire.Update{PathV: wire.Path{Table: "t", Object: wire.GlobalKey{HasPK: true}, Field: "f"},
		Value: wire.Payload{Kind: wire.KindInt, Int: 1}})

	v, err := log.Append(2, 10, peer.NoVersion, c)
	require.NoError(t, err)
	require.Equal(t, peer.Version(1), v)

	e, ok := log.EntryAt(v)
	require.True(t, ok)
	require.Equal(t, peer.FileIdentity(2), e.Origin)
	require.Equal(t, peer.Timestamp(10), e.OriginTimestamp)

	got, err := log.Changeset(v)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
}

func TestFindNextSkipsSameOrigin(t *testing.T) {
	log := history.New()
	c1 := changeset.New(1, 9) // originated at peer 9
	c2 := changeset.New(2, 7) // originated at peer 7

	v1, err := log.Append(9, 1, peer.NoVersion, c1)
	require.NoError(t, err)
	v2, err := log.Append(7, 2, peer.NoVersion, c2)
	require.NoError(t, err)

	// Looking for entries to send to peer 9: its own entry (v1) must be
	// skipped, v2 should be returned.
	next, ok := log.FindNext(9, peer.NoVersion)
	require.True(t, ok)
	require.Equal(t, v2, next)

	_, ok = log.FindNext(9, v2)
	require.False(t, ok)
	_ = v1
}

func TestReciprocalRecordedVsAbsent(t *testing.T) {
	log := history.New()
	c := changeset.New(1, 1)
	v, err := log.Append(1, 1, peer.NoVersion, c)
	require.NoError(t, err)

	_, recorded, err := log.Reciprocal(v, 2)
	require.NoError(t, err)
	require.False(t, recorded)

	require.NoError(t, log.SetReciprocal(v, 2, changeset.New(1, 1)))
	got, recorded, err := log.Reciprocal(v, 2)
	require.NoError(t, err)
	require.True(t, recorded)
	require.NotNil(t, got)
	require.Equal(t, 0, got.Len())
}

func TestMarkAndHasPulled(t *testing.T) {
	log := history.New()
	require.False(t, log.HasPulled(5, 3))
	log.MarkPulled(5, 3)
	require.True(t, log.HasPulled(5, 3))
	require.False(t, log.HasPulled(5, 4))
}
