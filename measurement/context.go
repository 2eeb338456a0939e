// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package measurement captures snapshots of wall-clock time, thread CPU time,
// resource usage, host-VM counters and hardware counters around code
// regions, and derives per-event values from them.
//
// A [Context] owns a table of event sets. Each event set is created from a
// list of event names, holds a fixed buffer of snapshots, and is addressed
// by a small integer id:
//
//	ctx := measurement.New()
//	id, err := ctx.Create(10, []string{"SYS:wallclock-time", "PERF:instructions"})
//	...
//	ctx.Start(id)
//	work()
//	ctx.Stop(id)
//	table, err := ctx.Results(id)
//
// A single event set must only be used by one goroutine at a time. Distinct
// event sets may be used concurrently.
package measurement

import (
	"slices"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ubench-dev/ubench/counters"
	"github.com/ubench-dev/ubench/threads"
)

// An Option modifies a single event set.
type Option int

const (
	// OptionInherit also counts hardware events of threads the measured
	// thread creates after the set is created.
	OptionInherit Option = 1
)

// An Observer is told about event set activity, for instrumentation.
type Observer interface {
	EventSetCreated()
	EventSetDestroyed()
	EventSetCreateFailed(kind Kind)
	SnapshotTaken(tag int)
	BackendFailed(op string)
}

type nopObserver struct{}

func (nopObserver) EventSetCreated()          {}
func (nopObserver) EventSetDestroyed()        {}
func (nopObserver) EventSetCreateFailed(Kind) {}
func (nopObserver) SnapshotTaken(int)         {}
func (nopObserver) BackendFailed(string)      {}

// A Context holds event sets and the registry that resolves their events.
// Its methods are safe for concurrent use, subject to the rule that one
// event set is only used by one goroutine at a time.
type Context struct {
	logger    logr.Logger
	caps      Capabilities
	catalogue Catalogue
	opener    CounterOpener
	counters  *counters.Counters
	threads   *threads.Registry
	observer  Observer

	registry *Registry

	// mu guards the table. Create and Destroy hold it for writing; every
	// operation on an existing id holds it for reading.
	mu   sync.RWMutex
	sets []*eventSet // nil for free slots
	free []int       // Free ids, sorted
}

// A ContextOption configures a Context.
type ContextOption func(*Context)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger logr.Logger) ContextOption {
	return func(c *Context) {
		c.logger = logger
	}
}

// WithCatalogue replaces the hardware counter catalogue.
func WithCatalogue(cat Catalogue) ContextOption {
	return func(c *Context) {
		c.catalogue = cat
	}
}

// WithCounterOpener replaces how hardware counter groups are opened.
func WithCounterOpener(o CounterOpener) ContextOption {
	return func(c *Context) {
		c.opener = o
	}
}

// WithCapabilities overrides the detected platform capabilities.
func WithCapabilities(caps Capabilities) ContextOption {
	return func(c *Context) {
		c.caps = caps
	}
}

// WithCounters sets the process-wide counters VM events are read from.
func WithCounters(cs *counters.Counters) ContextOption {
	return func(c *Context) {
		c.counters = cs
	}
}

// WithThreads sets the registry used to attach sets to logical threads.
func WithThreads(r *threads.Registry) ContextOption {
	return func(c *Context) {
		c.threads = r
	}
}

// WithMetrics sets an Observer of event set activity.
func WithMetrics(o Observer) ContextOption {
	return func(c *Context) {
		c.observer = o
	}
}

// New returns a Context with no event sets.
func New(opts ...ContextOption) *Context {
	c := &Context{
		logger:    logr.Discard(),
		caps:      PlatformCapabilities(),
		catalogue: defaultCatalogue(),
		opener:    defaultOpener(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.counters == nil {
		c.counters = new(counters.Counters)
	}
	if c.threads == nil {
		c.threads = threads.New(threads.WithLogger(c.logger))
	}
	c.logger = c.logger.WithName("measurement")
	c.registry = NewRegistry(c.caps, c.catalogue)
	return c
}

// Registry returns the registry that resolves event names.
func (c *Context) Registry() *Registry { return c.registry }

// Counters returns the process-wide counters of c.
func (c *Context) Counters() *counters.Counters { return c.counters }

// Threads returns the thread registry of c.
func (c *Context) Threads() *threads.Registry { return c.threads }

// Capabilities returns the backends c can collect.
func (c *Context) Capabilities() Capabilities { return c.caps }

// Resolve resolves an event name. See [Registry.Resolve].
func (c *Context) Resolve(name string) (Event, error) { return c.registry.Resolve(name) }

// ForEach enumerates event names. See [Registry.ForEach].
func (c *Context) ForEach(fn func(name string) bool) error { return c.registry.ForEach(fn) }

// Supported reports whether name resolves.
func (c *Context) Supported(name string) bool { return c.registry.Supported(name) }

// SupportedEvents lists every enumerable event name.
func (c *Context) SupportedEvents() ([]string, error) { return c.registry.SupportedEvents() }

// insert stores s in the lowest free slot and returns its id.
func (c *Context) insert(s *eventSet) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.free) > 0 {
		id := c.free[0]
		c.free = c.free[1:]
		c.sets[id] = s
		return id
	}
	c.sets = append(c.sets, s)
	return len(c.sets) - 1
}

// lookup returns the live set id. The caller must hold c.mu.
func (c *Context) lookup(id int) (*eventSet, error) {
	if id < 0 || id >= len(c.sets) || c.sets[id] == nil {
		return nil, newError(KindInvalidHandle, nil, "invalid event set id %d", id)
	}
	return c.sets[id], nil
}

// Create creates an event set for count measurements of the named events
// on the calling thread and returns its id.
//
// If the set uses hardware counters, thread time or resource usage, the
// calling goroutine stays locked to its OS thread until the set is
// destroyed. Start, Stop, Sample and Destroy should then be called from
// that goroutine.
func (c *Context) Create(count int, names []string, opts ...Option) (int, error) {
	s, err := c.newEventSet(count, names, opts)
	if err != nil {
		c.observer.EventSetCreateFailed(KindOf(err))
		return -1, err
	}
	return c.register(s), nil
}

// CreateAttached is like Create, but counts hardware events of the native
// thread registered for the host VM's logical thread. Clocks and resource
// usage are still those of the caller, which is locked to its OS thread the
// same way.
func (c *Context) CreateAttached(logical int64, count int, names []string, opts ...Option) (int, error) {
	return c.createAttached(func() (int, error) {
		native := c.threads.NativeID(logical)
		if native == threads.InvalidThreadID {
			return 0, newError(KindAttachFailed, nil, "unknown thread %d (not registered)", logical)
		}
		return native, nil
	}, count, names, opts)
}

// CreateAttachedNative is like Create, but counts hardware events of the
// OS thread with the given native ID.
func (c *Context) CreateAttachedNative(native int, count int, names []string, opts ...Option) (int, error) {
	return c.createAttached(func() (int, error) { return native, nil }, count, names, opts)
}

func (c *Context) createAttached(thread func() (int, error), count int, names []string, opts []Option) (int, error) {
	s, err := c.newEventSet(count, names, opts)
	if err != nil {
		c.observer.EventSetCreateFailed(KindOf(err))
		return -1, err
	}
	if s.group != nil {
		err := s.attach(thread)
		if err != nil {
			s.close()
			c.observer.EventSetCreateFailed(KindOf(err))
			return -1, err
		}
		c.logger.V(1).Info("attached event set", "native", s.native)
	}
	return c.register(s), nil
}

func (c *Context) register(s *eventSet) int {
	s.pin()
	id := c.insert(s)
	c.observer.EventSetCreated()
	c.logger.V(1).Info("created event set", "id", id, "events", s.names(), "backends", s.backends.String(), "capacity", len(s.data), "pinned", s.pinned)
	return id
}

// Destroy closes the set's counter group, drops its buffers and frees id
// for reuse.
func (c *Context) Destroy(id int) error {
	c.mu.Lock()
	s, err := c.lookup(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.sets[id] = nil
	i, _ := slices.BinarySearch(c.free, id)
	c.free = slices.Insert(c.free, i, id)
	c.mu.Unlock()

	s.close()
	c.observer.EventSetDestroyed()
	c.logger.V(1).Info("destroyed event set", "id", id)
	return nil
}

// batch applies op to every id in order. An invalid id ends the batch with
// an InvalidHandle error; ids before it stay processed.
func (c *Context) batch(ids []int, op func(*eventSet)) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range ids {
		s, err := c.lookup(id)
		if err != nil {
			return err
		}
		op(s)
	}
	return nil
}

// Start records a start snapshot in every set, starting its hardware
// counters first. When a set's buffer is full, its last two snapshots are
// overwritten.
func (c *Context) Start(ids ...int) error {
	return c.batch(ids, func(s *eventSet) {
		c.captureStart(s, s.next())
	})
}

// Stop records an end snapshot in every set and stops its hardware
// counters.
func (c *Context) Stop(ids ...int) error {
	return c.batch(ids, func(s *eventSet) {
		c.captureStop(s, s.next())
	})
}

// Sample records a snapshot tagged with tag in every set. The tag must not
// be SnapshotStart or SnapshotEnd.
func (c *Context) Sample(tag int, ids ...int) error {
	return c.batch(ids, func(s *eventSet) {
		c.captureSample(s, s.next(), tag)
	})
}

// Reset forgets every recorded snapshot of the sets. Buffers are kept.
func (c *Context) Reset(ids ...int) error {
	return c.batch(ids, func(s *eventSet) {
		s.cursor = 0
	})
}

// Events returns the names of the events of set id, in column order.
func (c *Context) Events(id int) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return s.names(), nil
}

// Len returns the number of snapshots recorded in set id.
func (c *Context) Len(id int) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.lookup(id)
	if err != nil {
		return 0, err
	}
	return s.cursor, nil
}
