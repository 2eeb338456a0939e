// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"errors"

	"github.com/ubench-dev/ubench/threads"
)

// CompiledMethodLoad is called by the host after it compiles a method.
func (a *Agent) CompiledMethodLoad() {
	a.mustBeLoaded()
	a.counters.CompiledMethodLoad()
}

// GarbageCollectionFinish is called by the host after each collection.
func (a *Agent) GarbageCollectionFinish() {
	a.mustBeLoaded()
	a.counters.GarbageCollectionFinish()
}

// VMInit is called once the host VM is initialized. resolve looks up what
// ThreadStart needs to find logical thread ids; if it fails, the agent
// cannot map threads and terminates. Thread callbacks take effect from here
// on.
func (a *Agent) VMInit(resolve func() error) {
	a.mustBeLoaded()
	if resolve != nil {
		if err := resolve(); err != nil {
			a.Fatal(err, "resolving host thread identifiers")
			return
		}
	}
	a.threadsEnabled.Store(true)
	a.logger.V(1).Info("thread registration enabled")
}

// ThreadStart is called on a new host thread. It maps logical to the OS
// thread running the caller.
func (a *Agent) ThreadStart(logical int64) {
	a.mustBeLoaded()
	if !a.threadsEnabled.Load() {
		return
	}
	native, err := a.threads.RegisterCurrent(logical)
	switch {
	case errors.Is(err, threads.ErrAlreadyRegistered):
		a.logger.V(1).Info("thread already registered", "logical", logical, "native", native)
	case err != nil:
		a.Fatal(err, "registering thread", "logical", logical)
	}
}

// ThreadEnd is called on a host thread that is about to finish.
func (a *Agent) ThreadEnd() {
	a.mustBeLoaded()
	if !a.threadsEnabled.Load() {
		return
	}
	native := threads.CurrentID()
	if err := a.threads.UnregisterNative(native); err != nil {
		a.logger.V(1).Info("failed to unregister thread", "native", native, "err", err)
	}
}
