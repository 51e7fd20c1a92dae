// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package integrate orchestrates one incoming changeset's whole lifecycle:
// transform it against everything this peer has committed since the
// sender last synced, apply it inside a single group transaction, and
// record it (and the reciprocal transforms it produces) in the local
// history log. It is grounded on the teacher's initiator.go
// (processUpdatedObjects/updateDbAndSyncSt/updateLogAndDag), which performs
// the same begin-tx/resolve/apply/commit/update-log sequence for the DAG
// case.
package integrate

import (
	"bytes"
	"context"

	"go.uber.org/zap"

	"github.com/vanadium/otengine/apply"
	"github.com/vanadium/otengine/changeset"
	"github.com/vanadium/otengine/errs"
	"github.com/vanadium/otengine/group"
	"github.com/vanadium/otengine/history"
	"github.com/vanadium/otengine/peer"
	"github.com/vanadium/otengine/transform"
)

// Option configures an Integrator, in the style of the teacher's
// nosql.Database functional-option constructors.
type Option func(*config)

type config struct {
	disableCompaction bool
	reporter          transform.Reporter
	log               *zap.Logger
}

// DisableCompaction turns off the Compact pass incoming changesets would
// otherwise get before transform; useful for tests asserting on exact
// instruction shapes.
func DisableCompaction() Option {
	return func(c *config) { c.disableCompaction = true }
}

// WithReporter attaches a transform.Reporter that receives every conflict
// resolution this Integrator's merges produce.
func WithReporter(r transform.Reporter) Option {
	return func(c *config) { c.reporter = r }
}

// WithLogger attaches a zap logger; Integrate logs at debug level when it
// commits or skips a redelivered changeset and at warn level when the
// rebase or apply step fails, in the style of the teacher's vlog call sites
// around vsync/initiator.go's commit path. Cancellation, BeginTx, history
// append and commit failures are returned without a log entry.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.log = l }
}

// Integrator applies incoming changesets from remote peers against a local
// group.Group, keeping self's history log consistent with what was
// actually applied.
type Integrator struct {
	g       group.Group
	log     *history.Log
	applier *apply.Applier
	self    peer.FileIdentity
	cfg     config
}

// New returns an Integrator for peer self, applying into g and recording
// into log.
func New(g group.Group, log *history.Log, self peer.FileIdentity, opts ...Option) *Integrator {
	in := &Integrator{g: g, log: log, applier: apply.New(), self: self}
	for _, opt := range opts {
		opt(&in.cfg)
	}
	return in
}

// Integrate transforms incoming (received from remote, corresponding to
// remoteVersion on remote's own log) against every local entry remote
// hasn't already incorporated, applies the result, and appends it to the
// local history. It returns the new local version, or an error if the
// incoming changeset is malformed, targets unknown schema, or ctx is
// cancelled.
func (in *Integrator) Integrate(ctx context.Context, remote peer.FileIdentity, remoteVersion peer.Version, incoming *changeset.Changeset) (peer.Version, error) {
	select {
	case <-ctx.Done():
		return peer.NoVersion, errs.Wrap(errs.KindCancelled, ctx.Err(), "integrate: cancelled")
	default:
	}

	if in.log.HasPulled(incoming.OriginFileIdentity, remoteVersion) {
		// Already integrated this exact changeset (e.g. redelivered after an
		// ack was lost); treat as a no-op rather than double-applying.
		in.logger().Debug("integrate: skipping already-pulled changeset",
			zap.Uint64("remote", uint64(remote)), zap.Uint64("remote_version", uint64(remoteVersion)))
		return in.log.Head(), nil
	}

	if !in.cfg.disableCompaction {
		incoming.Compact()
	}

	if err := in.rebaseAgainstLocalHistory(remote, incoming); err != nil {
		in.logger().Warn("integrate: rebase against local history failed", zap.Error(err))
		return peer.NoVersion, err
	}

	tx, err := in.g.BeginTx(ctx)
	if err != nil {
		return peer.NoVersion, err
	}
	if err := in.applier.Apply(tx, incoming); err != nil {
		tx.Rollback()
		in.logger().Warn("integrate: apply failed", zap.Error(err))
		return peer.NoVersion, err
	}

	v, err := in.log.Append(incoming.OriginFileIdentity, incoming.OriginTimestamp, remoteVersion, incoming)
	if err != nil {
		tx.Rollback()
		return peer.NoVersion, err
	}
	if err := tx.Commit(); err != nil {
		return peer.NoVersion, err
	}

	in.log.MarkPulled(incoming.OriginFileIdentity, remoteVersion)
	in.logger().Debug("integrate: committed changeset",
		zap.Uint64("origin", uint64(incoming.OriginFileIdentity)), zap.Uint64("local_version", uint64(v)))
	return v, nil
}

func (in *Integrator) logger() *zap.Logger {
	if in.cfg.log != nil {
		return in.cfg.log
	}
	return zap.NewNop()
}

// IntegrateBytes decodes an on-wire changeset before calling Integrate.
func (in *Integrator) IntegrateBytes(ctx context.Context, remote peer.FileIdentity, remoteVersion peer.Version, raw []byte) (peer.Version, error) {
	c, err := changeset.Decode(bytes.NewReader(raw))
	if err != nil {
		return peer.NoVersion, errs.Wrap(errs.KindBadFormat, err, "integrate: decode incoming changeset")
	}
	return in.Integrate(ctx, remote, remoteVersion, c)
}

// rebaseAgainstLocalHistory walks every local log entry remote has not yet
// incorporated, transforming incoming against each in turn (so it lands
// correctly relative to everything this peer has already committed), and
// caches the symmetric reciprocal for remote so a later send to remote can
// reuse it instead of re-merging from scratch.
func (in *Integrator) rebaseAgainstLocalHistory(remote peer.FileIdentity, incoming *changeset.Changeset) error {
	after := peer.NoVersion
	for {
		v, ok := in.log.FindNext(remote, after)
		if !ok {
			return nil
		}
		after = v

		local, err := in.log.Changeset(v)
		if err != nil {
			return errs.Wrap(errs.KindBadChangeset, err, "integrate: decode local history entry")
		}

		// Work on a fresh copy of local's wire form so the stored history
		// entry itself is never mutated by this merge.
		localCopy, err := roundTripCopy(local)
		if err != nil {
			return err
		}

		transform.Merge(incoming, localCopy, in.cfg.reporter)
		transform.Merge(localCopy, incoming, in.cfg.reporter)

		if err := in.log.SetReciprocal(v, remote, localCopy); err != nil {
			return errs.Wrap(errs.KindBadChangeset, err, "integrate: cache reciprocal")
		}
	}
}

func roundTripCopy(c *changeset.Changeset) (*changeset.Changeset, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return nil, err
	}
	return changeset.Decode(bytes.NewReader(buf.Bytes()))
}
