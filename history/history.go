// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package history holds the append-only per-file log of changesets this
// peer has produced, plus the reciprocal transforms computed against each
// other known peer. It is grounded on the teacher's log record shape
// (services/syncbase/vsync/sync_state.go's logRecKey/putLogRec/getLogRec/
// delLogRec) and the persisted-DAG-node pattern in
// services/syncbase/sync/dag.go, generalized from a content-addressed DAG
// to a flat per-origin version sequence since this module's ordering is
// already total within one file's log.
package history

import (
	"bytes"
	"sync"

	roaring "github.com/RoaringBitmap/roaring/v2"
	"github.com/golang/snappy"
	"github.com/pkg/errors"

	"github.com/vanadium/otengine/changeset"
	"github.com/vanadium/otengine/peer"
)

// Reciprocal caches the changeset computed by transforming one log entry
// against everything a given peer has already sent, so a later integrate
// for that peer can replay the cached result instead of re-merging. Recorded
// distinguishes "computed, and happened to be empty" from "never computed"
// (DESIGN.md open-question decision): an empty Changeset slice alone can't
// carry that distinction.
type Reciprocal struct {
	Recorded  bool
	Changeset []byte // snappy-compressed encoded changeset, possibly zero-length
}

// Entry is one record in the log: a single changeset this peer committed,
// tagged with the tie-break tuple every instruction inside it shares.
type Entry struct {
	Version         peer.Version
	Origin          peer.FileIdentity
	OriginTimestamp peer.Timestamp
	// RemoteVersion is the version this entry corresponds to on the peer it
	// was received from, or peer.NoVersion for a locally originated entry.
	RemoteVersion peer.Version
	Changeset     []byte // snappy-compressed encoded changeset

	reciprocals map[peer.FileIdentity]Reciprocal
}

// Log is one file's append-only changeset history.
type Log struct {
	mu      sync.RWMutex
	entries []Entry // entries[i] has Version == peer.Version(i+1)
	// pulled tracks, per remote peer, which of its versions this log has
	// already integrated -- the dedup guard against redelivery across an
	// unreliable transport.
	pulled map[peer.FileIdentity]*roaring.Bitmap
}

// New returns an empty log.
func New() *Log {
	return &Log{pulled: make(map[peer.FileIdentity]*roaring.Bitmap)}
}

// Append compresses and records c as the next entry, returning its new
// version number.
func (l *Log) Append(origin peer.FileIdentity, ts peer.Timestamp, remoteVersion peer.Version, c *changeset.Changeset) (peer.Version, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return peer.NoVersion, errors.Wrap(err, "history: encode changeset")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	v := peer.Version(len(l.entries) + 1)
	l.entries = append(l.entries, Entry{
		Version:         v,
		Origin:          origin,
		OriginTimestamp: ts,
		RemoteVersion:   remoteVersion,
		Changeset:       snappy.Encode(nil, buf.Bytes()),
		reciprocals:     make(map[peer.FileIdentity]Reciprocal),
	})
	return v, nil
}

// EntryAt returns the entry at version v.
func (l *Log) EntryAt(v peer.Version) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if v == peer.NoVersion || int(v) > len(l.entries) {
		return Entry{}, false
	}
	return l.entries[v-1], true
}

// Head returns the most recent version in the log, or peer.NoVersion if
// empty.
func (l *Log) Head() peer.Version {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return peer.Version(len(l.entries))
}

// Changeset decodes the changeset stored at version v.
func (l *Log) Changeset(v peer.Version) (*changeset.Changeset, error) {
	e, ok := l.EntryAt(v)
	if !ok {
		return nil, errors.Errorf("history: no entry at version %d", v)
	}
	return decodeCompressed(e.Changeset)
}

func decodeCompressed(compressed []byte) (*changeset.Changeset, error) {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, errors.Wrap(err, "history: snappy decode")
	}
	return changeset.Decode(bytes.NewReader(raw))
}

// FindNext scans forward from after (exclusive) for the next entry that
// should be sent to forPeer: an origin-polarity-aware scan that skips
// entries originated by forPeer itself, so a peer never gets echoed its own
// changeset back (grounded on sync_state.go's per-peer log cursor walk).
func (l *Log) FindNext(forPeer peer.FileIdentity, after peer.Version) (peer.Version, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := int(after); i < len(l.entries); i++ {
		e := l.entries[i]
		if e.Origin == forPeer {
			continue
		}
		return e.Version, true
	}
	return peer.NoVersion, false
}

// SetReciprocal records the changeset produced by transforming the entry at
// v against everything forPeer has already sent.
func (l *Log) SetReciprocal(v peer.Version, forPeer peer.FileIdentity, c *changeset.Changeset) error {
	var buf bytes.Buffer
	if c != nil {
		if err := c.Encode(&buf); err != nil {
			return errors.Wrap(err, "history: encode reciprocal")
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if v == peer.NoVersion || int(v) > len(l.entries) {
		return errors.Errorf("history: no entry at version %d", v)
	}
	e := &l.entries[v-1]
	if e.reciprocals == nil {
		e.reciprocals = make(map[peer.FileIdentity]Reciprocal)
	}
	e.reciprocals[forPeer] = Reciprocal{Recorded: true, Changeset: snappy.Encode(nil, buf.Bytes())}
	return nil
}

// Reciprocal returns the cached reciprocal transform for (v, forPeer), if
// one has been recorded.
func (l *Log) Reciprocal(v peer.Version, forPeer peer.FileIdentity) (*changeset.Changeset, bool, error) {
	l.mu.RLock()
	e, ok := l.entryAtLocked(v)
	var r Reciprocal
	if ok {
		r, ok = e.reciprocals[forPeer]
	}
	l.mu.RUnlock()
	if !ok || !r.Recorded {
		return nil, false, nil
	}
	c, err := decodeCompressed(r.Changeset)
	return c, true, err
}

func (l *Log) entryAtLocked(v peer.Version) (Entry, bool) {
	if v == peer.NoVersion || int(v) > len(l.entries) {
		return Entry{}, false
	}
	return l.entries[v-1], true
}

// MarkPulled records that version v from peer "from" has been integrated,
// using a roaring bitmap for compact storage of what is typically a long
// run of consecutive versions.
func (l *Log) MarkPulled(from peer.FileIdentity, v peer.Version) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.pulled[from]
	if b == nil {
		b = roaring.New()
		l.pulled[from] = b
	}
	b.Add(uint32(v))
}

// HasPulled reports whether version v from peer "from" has already been
// integrated, guarding against redelivery.
func (l *Log) HasPulled(from peer.FileIdentity, v peer.Version) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b := l.pulled[from]
	if b == nil {
		return false
	}
	return b.Contains(uint32(v))
}
