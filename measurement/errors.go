// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import (
	"errors"
	"fmt"
)

// A Kind classifies an [Error].
type Kind int

const (
	KindInvalidArgument Kind = iota + 1
	KindUnknownEvent
	KindComponentMismatch
	KindOutOfMemory
	KindInvalidHandle
	KindAttachFailed
	KindBackendError
)

var kindNames = map[Kind]string{
	KindInvalidArgument:   "invalid argument",
	KindUnknownEvent:      "unknown event",
	KindComponentMismatch: "component mismatch",
	KindOutOfMemory:       "out of memory",
	KindInvalidHandle:     "invalid handle",
	KindAttachFailed:      "attach failed",
	KindBackendError:      "backend error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels for use with errors.Is. An *Error matches the sentinel of its
// Kind.
var (
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrUnknownEvent      = &Error{Kind: KindUnknownEvent}
	ErrComponentMismatch = &Error{Kind: KindComponentMismatch}
	ErrOutOfMemory       = &Error{Kind: KindOutOfMemory}
	ErrInvalidHandle     = &Error{Kind: KindInvalidHandle}
	ErrAttachFailed      = &Error{Kind: KindAttachFailed}
	ErrBackendError      = &Error{Kind: KindBackendError}
)

// An Error is returned by the operations of a [Context].
type Error struct {
	Kind Kind
	Msg  string
	Err  error // Underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
