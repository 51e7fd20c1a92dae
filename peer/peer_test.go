// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package peer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vanadium/otengine/peer"
)

func TestTieBreakLessOrdersByTimestampThenOrigin(t *testing.T) {
	a := peer.TieBreak{Timestamp: 1, Origin: 5}
	b := peer.TieBreak{Timestamp: 2, Origin: 1}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))

	c := peer.TieBreak{Timestamp: 1, Origin: 1}
	d := peer.TieBreak{Timestamp: 1, Origin: 5}
	require.True(t, c.Less(d))
}

func TestMinTieBreakNeverWins(t *testing.T) {
	real := peer.TieBreak{Timestamp: -1000000, Origin: 1}
	require.True(t, peer.MinTieBreak.Less(real))
	require.False(t, real.Less(peer.MinTieBreak))
}

func TestSystemClockStrictlyIncreasing(t *testing.T) {
	c := peer.NewSystemClock()
	var last peer.Timestamp
	for i := 0; i < 1000; i++ {
		now := c.Now()
		require.Greater(t, int64(now), int64(last))
		last = now
	}
}

func TestFileIdentityIsCoordinator(t *testing.T) {
	require.True(t, peer.CoordinatorIdentity.IsCoordinator())
	require.False(t, peer.FileIdentity(2).IsCoordinator())
	require.False(t, peer.NoIdentity.IsCoordinator())
}
