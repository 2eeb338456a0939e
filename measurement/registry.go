// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import (
	"errors"
	"strings"
)

// An Event is a resolved event name. It is immutable.
type Event struct {
	Name    string
	Backend Backend

	// Hardware and Index are only set for BackendHardware. Index is the
	// event's slot in the set's counter group.
	Hardware HardwareCounter
	Index    int

	Accessor Accessor
}

type canonicalEvent struct {
	name       string
	backend    Backend
	accessor   Accessor
	deprecated bool
}

// canonicalEvents are the events with fixed names. Deprecated names resolve
// but are not enumerated.
var canonicalEvents = []canonicalEvent{
	{"SYS:wallclock-time", BackendWallClock, wallClock{}, false},
	{"SYS:thread-time", BackendThreadTime, threadTime{}, false},
	{"SYS:thread-time-rusage", BackendResourceUsage, usageTime, false},
	{"SYS:forced-context-switches", BackendResourceUsage, usageForcedSwitches, false},
	{"SYS:voluntary-context-switches", BackendResourceUsage, usageVoluntarySwitches, false},
	{"SYS:page-faults", BackendResourceUsage, usagePageFaults, false},
	{"JVM:compilations", BackendVM, vmCompilations, false},
	{"JVM:gc-count", BackendVM, vmGarbageCollections, false},

	{"SYS_WALLCLOCK", BackendWallClock, wallClock{}, true},
	{"SYS_THREADTIME", BackendThreadTime, threadTime{}, true},
	{"forced-context-switch", BackendResourceUsage, usageForcedSwitches, true},
	{"JVM_COMPILATIONS", BackendVM, vmCompilations, true},
}

// HardwarePrefix is the namespace of hardware counter names, used as
// PERF:counter or PERF/component:counter.
const HardwarePrefix = "PERF"

// errNotMine is returned by a prefix resolver that doesn't handle a name.
var errNotMine = errors.New("not handled by this resolver")

// A Registry resolves event names.
type Registry struct {
	caps      Capabilities
	catalogue Catalogue
}

// NewRegistry returns a Registry with the hardware counters of cat. Events
// whose backend is missing from caps do not resolve.
func NewRegistry(caps Capabilities, cat Catalogue) *Registry {
	return &Registry{caps: caps, catalogue: cat}
}

// Resolve resolves name. Canonical names match case-insensitively before
// any prefix resolver is tried. An unknown name yields an UnknownEvent
// error.
func (r *Registry) Resolve(name string) (Event, error) {
	for _, ce := range canonicalEvents {
		if strings.EqualFold(ce.name, name) && r.caps.Has(ce.backend) {
			return Event{Name: name, Backend: ce.backend, Accessor: ce.accessor}, nil
		}
	}

	var cause error
	for _, resolve := range []func(string) (Event, error){r.resolveHardware} {
		ev, err := resolve(name)
		if err == nil {
			return ev, nil
		}
		if err != errNotMine {
			cause = err
		}
	}
	return Event{}, newError(KindUnknownEvent, cause, "unknown event %q", name)
}

// resolveHardware handles PERF:counter and PERF/component:counter.
func (r *Registry) resolveHardware(name string) (Event, error) {
	rest, ok := strings.CutPrefix(name, HardwarePrefix)
	if !ok || !r.caps.HardwareCounters || r.catalogue == nil {
		return Event{}, errNotMine
	}
	var component, counter string
	switch {
	case strings.HasPrefix(rest, ":"):
		counter = rest[1:]
	case strings.HasPrefix(rest, "/"):
		component, counter, ok = strings.Cut(rest[1:], ":")
		if !ok || component == "" {
			return Event{}, errNotMine
		}
	default:
		return Event{}, errNotMine
	}
	if counter == "" {
		return Event{}, errNotMine
	}
	hc, err := r.catalogue.Lookup(component, counter)
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Backend: BackendHardware, Hardware: hc}, nil
}

// ForEach calls fn with every supported, non-deprecated event name until fn
// returns false. Hardware counters of the default component are named
// PERF:counter, all others PERF/component:counter.
func (r *Registry) ForEach(fn func(name string) bool) error {
	for _, ce := range canonicalEvents {
		if ce.deprecated || !r.caps.Has(ce.backend) {
			continue
		}
		if !fn(ce.name) {
			return nil
		}
	}
	if !r.caps.HardwareCounters || r.catalogue == nil {
		return nil
	}
	def := r.catalogue.DefaultComponent()
	return r.catalogue.ForEach(func(component, counter string) bool {
		if component == def {
			return fn(HardwarePrefix + ":" + counter)
		}
		return fn(HardwarePrefix + "/" + component + ":" + counter)
	})
}

// Supported reports whether name resolves.
func (r *Registry) Supported(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// SupportedEvents returns every name ForEach enumerates.
func (r *Registry) SupportedEvents() ([]string, error) {
	var names []string
	err := r.ForEach(func(name string) bool {
		names = append(names, name)
		return true
	})
	return names, err
}
