// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package threads maps the logical thread identifiers of a host VM to the
// native OS thread IDs that hardware counters can be attached to.
package threads

import (
	"errors"
	"sync"

	"github.com/go-logr/logr"
)

// InvalidThreadID is returned by [Registry.NativeID] for unknown threads.
const InvalidThreadID = -1

var (
	// ErrAlreadyRegistered is returned when registering a logical thread
	// that is already mapped. The existing mapping is left unchanged.
	ErrAlreadyRegistered = errors.New("thread already registered")

	// ErrNotRegistered is returned when unregistering an unknown native
	// thread. Thread teardown races make this expected.
	ErrNotRegistered = errors.New("thread not registered")
)

type entry struct {
	native  int
	logical int64
}

// A Registry is a set of logical to native thread mappings. It is safe for
// concurrent use. The lock is only held for the table scan or update.
type Registry struct {
	logger logr.Logger

	mu      sync.Mutex
	entries []entry
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for registration traces.
func WithLogger(logger logr.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New returns an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{logger: logr.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithName("threads")
	return r
}

// Register maps logical to native. If logical is already registered, it
// returns ErrAlreadyRegistered and leaves the table as it was.
func (r *Registry) Register(logical int64, native int) error {
	r.mu.Lock()
	for _, e := range r.entries {
		if e.logical == logical {
			r.mu.Unlock()
			return ErrAlreadyRegistered
		}
	}
	r.entries = append(r.entries, entry{native: native, logical: logical})
	r.mu.Unlock()

	r.logger.V(1).Info("registered thread", "logical", logical, "native", native)
	return nil
}

// RegisterCurrent maps logical to the OS thread running the caller. The
// caller should be locked to its thread with [runtime.LockOSThread] for the
// mapping to stay meaningful.
func (r *Registry) RegisterCurrent(logical int64) (native int, err error) {
	native = CurrentID()
	return native, r.Register(logical, native)
}

// UnregisterNative removes the mapping of the native thread. Order of the
// remaining entries is not preserved.
func (r *Registry) UnregisterNative(native int) error {
	r.mu.Lock()
	for i, e := range r.entries {
		if e.native == native {
			last := len(r.entries) - 1
			r.entries[i] = r.entries[last]
			r.entries = r.entries[:last]
			r.mu.Unlock()

			r.logger.V(1).Info("unregistered thread", "logical", e.logical, "native", native)
			return nil
		}
	}
	r.mu.Unlock()
	return ErrNotRegistered
}

// NativeID returns the native thread of logical, or InvalidThreadID.
func (r *Registry) NativeID(logical int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.logical == logical {
			return e.native
		}
	}
	return InvalidThreadID
}

// Len returns the number of registered threads.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
