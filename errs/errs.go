// Copyright 2015 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs defines the error kinds the conflict-resolution core
// returns, following the (ID, action) shape the teacher's verror package
// uses (store/util.go's WrapError), rebuilt here on top of
// github.com/pkg/errors since this module has no RPC layer to propagate
// verror.IDAction across.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies why an operation on the core failed.
type Kind int

const (
	// KindBadFormat means a byte stream failed to decode: truncated input,
	// an unrecognized tag byte, or a length prefix past the end of the
	// buffer (spec.md §4.1).
	KindBadFormat Kind = iota
	// KindBadSchema means a changeset references a table, column or
	// primary-key shape the receiving group does not have.
	KindBadSchema
	// KindBadChangeset means a changeset is internally inconsistent: a
	// prior_size that doesn't match, a path into a container that isn't
	// open, an instruction referencing a discarded object.
	KindBadChangeset
	// KindCancelled means the caller's context was cancelled mid-operation.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindBadFormat:
		return "BadFormat"
	case KindBadSchema:
		return "BadSchema"
	case KindBadChangeset:
		return "BadChangeset"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type the apply and group packages return and
// that integrate uses for cancellation, decode and rebase failures; the
// wire, changeset and history packages return plain github.com/pkg/errors
// values (decode failures wrap wire.ErrBadFormat). InstructionIndex is -1
// when the failure isn't attributable to a single instruction slot.
type Error struct {
	Kind             Kind
	InstructionIndex int
	cause            error
}

func (e *Error) Error() string {
	if e.InstructionIndex >= 0 {
		return fmt.Sprintf("%s: instruction %d: %v", e.Kind, e.InstructionIndex, e.cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with no instruction attached.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, InstructionIndex: -1, cause: errors.New(msg)}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, InstructionIndex: -1, cause: errors.Errorf(format, args...)}
}

// At attaches an instruction index to a new error of the given kind.
func At(kind Kind, index int, msg string) error {
	return &Error{Kind: kind, InstructionIndex: index, cause: errors.New(msg)}
}

// Atf is At with fmt.Sprintf-style formatting.
func Atf(kind Kind, index int, format string, args ...interface{}) error {
	return &Error{Kind: kind, InstructionIndex: index, cause: errors.Errorf(format, args...)}
}

// Wrap attaches kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, InstructionIndex: -1, cause: errors.Wrap(err, msg)}
}

// Is reports whether err is an *Error of the given kind, unwrapping through
// any wrapping errors.Wrap layers.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
