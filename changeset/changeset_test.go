// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package changeset_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vanadium/otengine/changeset"
	"github.com/vanadium/otengine/peer"
	"github.com/vanadium/otengine/wire"
)

func samplePath() wire.Path {
	return wire.Path{Table: "widgets", Object: wire.GlobalKey{HasPK: true, PK: wire.Payload{Kind: wire.KindInt, Int: 1}}, Field: "name"}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := changeset.New(100, 2)
	c.Push(&wire.Update{PathV: samplePath(), Value: wire.Payload{Kind: wire.KindString, Str: "a"}})
	c.Push(&wire.AddInteger{PathV: samplePath(), Delta: 3})

	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf))

	got, err := changeset.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, peer.Timestamp(100), got.OriginTimestamp)
	require.Equal(t, peer.FileIdentity(2), got.OriginFileIdentity)
	require.Equal(t, 2, got.Len())

	instrs := got.Instructions()
	require.Len(t, instrs, 2)
	require.Equal(t, wire.KindUpdate, instrs[0].Kind())
	require.Equal(t, wire.KindAddInteger, instrs[1].Kind())
}

func TestDiscardPreservesCursorPositions(t *testing.T) {
	c := changeset.New(1, 1)
	c0 := c.Push(&wire.Update{PathV: samplePath(), Value: wire.Payload{Kind: wire.KindInt, Int: 1}})
	c1 := c.Push(&wire.Update{PathV: samplePath(), Value: wire.Payload{Kind: wire.KindInt, Int: 2}})

	c.Discard(c0)
	require.Nil(t, c.At(c0))
	require.NotNil(t, c.At(c1))
	require.Equal(t, 2, c.Len())

	var seen int
	c.Iterate(func(cursor int, instr wire.Instruction) { seen++ })
	require.Equal(t, 1, seen)
}

func TestInternDeduplicatesByContent(t *testing.T) {
	c := changeset.New(1, 1)
	a := c.Intern("hello")
	b := c.Intern("hello")
	require.Equal(t, a, b)
	s, err := c.Lookup(a)
	require.NoError(t, err)
	require.Equal(t, "hello", s)
}

func TestCompactCollapsesUpdatesAndFoldsAddInteger(t *testing.T) {
	c := changeset.New(1, 1)
	c.Push(&wire.Update{PathV: samplePath(), Value: wire.Payload{Kind: wire.KindInt, Int: 1}})
	c.Push(&wire.Update{PathV: samplePath(), Value: wire.Payload{Kind: wire.KindInt, Int: 2}})
	c.Push(&wire.AddInteger{PathV: samplePath(), Delta: 10})

	c.Compact()

	instrs := c.Instructions()
	require.Len(t, instrs, 1)
	u := instrs[0].(*wire.Update)
	require.Equal(t, int64(2), u.Value.Int)
	require.NotNil(t, u.PendingAdd)
	require.Equal(t, int64(10), *u.PendingAdd)
}

func TestRewritePathsRetargetsLiveInstructionsOnly(t *testing.T) {
	c := changeset.New(1, 1)
	live := c.Push(&wire.Update{PathV: samplePath(), Value: wire.Payload{Kind: wire.KindInt, Int: 1}})
	discarded := c.Push(&wire.Update{PathV: samplePath(), Value: wire.Payload{Kind: wire.KindInt, Int: 2}})
	c.Discard(discarded)

	renamed := samplePath()
	renamed.Table = "gadgets"
	c.RewritePaths(func(p wire.Path) wire.Path {
		p.Table = renamed.Table
		return p
	})

	require.Equal(t, "gadgets", c.At(live).Path().Table)
	require.Nil(t, c.At(discarded))
}

func TestCompactDropsCreateThenErase(t *testing.T) {
	c := changeset.New(1, 1)
	c.Push(&wire.CreateObject{PathV: samplePath()})
	c.Push(&wire.EraseObject{PathV: samplePath()})

	c.Compact()

	require.Empty(t, c.Instructions())
}
