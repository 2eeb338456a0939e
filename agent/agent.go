// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package agent is the boundary between a host VM and the measurement core.
//
// The host calls the inbound callbacks ([Agent.CompiledMethodLoad],
// [Agent.GarbageCollectionFinish], [Agent.ThreadStart], [Agent.ThreadEnd],
// [Agent.VMInit]) from its own threads. The embedding application uses the
// outbound operations to create event sets and read their results.
package agent

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/ubench-dev/ubench/counters"
	"github.com/ubench-dev/ubench/measurement"
	"github.com/ubench-dev/ubench/threads"
)

// An Agent owns a measurement context and the process-wide state the host
// VM feeds.
type Agent struct {
	logger   logr.Logger
	exit     func(code int)
	ctxOpts  []measurement.ContextOption
	counters *counters.Counters
	threads  *threads.Registry
	ctx      *measurement.Context

	startup sync.Once
	loaded  atomic.Bool

	// Thread callbacks are ignored until VMInit succeeds.
	threadsEnabled atomic.Bool
}

// An Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger logr.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithExit replaces os.Exit as the way [Agent.Fatal] terminates.
func WithExit(exit func(code int)) Option {
	return func(a *Agent) {
		a.exit = exit
	}
}

// WithContextOptions passes opts through to the measurement context. The
// agent uses the counters and thread registry of that context.
func WithContextOptions(opts ...measurement.ContextOption) Option {
	return func(a *Agent) {
		a.ctxOpts = append(a.ctxOpts, opts...)
	}
}

// New returns an Agent. It is not usable before [Agent.Startup].
func New(opts ...Option) *Agent {
	a := &Agent{logger: logr.Discard(), exit: os.Exit}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithName("agent")
	return a
}

// Startup initializes the agent. The host may load the agent more than once
// (as an agent and as a library); only the first call has an effect. It
// reports whether this call did the initialization.
func (a *Agent) Startup() bool {
	first := false
	a.startup.Do(func() {
		first = true
		opts := append([]measurement.ContextOption{measurement.WithLogger(a.logger)}, a.ctxOpts...)
		a.ctx = measurement.New(opts...)
		a.counters = a.ctx.Counters()
		a.threads = a.ctx.Threads()
		a.loaded.Store(true)
		a.logger.V(1).Info("agent started", "capabilities", fmt.Sprintf("%+v", a.ctx.Capabilities()))
	})
	if !first {
		a.logger.V(1).Info("agent already started")
	}
	return first
}

// Loaded reports whether Startup has run.
func (a *Agent) Loaded() bool {
	return a.loaded.Load()
}

// Context returns the measurement context, or nil before Startup.
func (a *Agent) Context() *measurement.Context {
	return a.ctx
}

// Counters returns the process-wide counters, or nil before Startup.
func (a *Agent) Counters() *counters.Counters {
	return a.counters
}

// Threads returns the thread registry, or nil before Startup.
func (a *Agent) Threads() *threads.Registry {
	return a.threads
}

// Fatal logs err and terminates the process. It is used for conditions
// after which the shared counter and thread state can't be trusted.
func (a *Agent) Fatal(err error, msg string, keysAndValues ...any) {
	a.logger.Error(err, msg, append(keysAndValues, "fatal", true)...)
	a.exit(1)
}

func (a *Agent) mustBeLoaded() {
	if !a.loaded.Load() {
		panic("agent: used before Startup")
	}
}
