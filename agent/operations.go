// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package agent

import (
	"github.com/ubench-dev/ubench/measurement"
	"github.com/ubench-dev/ubench/results"
)

// CreateEventSet creates an event set for count measurements of names on
// the calling thread.
func (a *Agent) CreateEventSet(count int, names []string, opts ...measurement.Option) (int, error) {
	a.mustBeLoaded()
	return a.ctx.Create(count, names, opts...)
}

// CreateAttachedEventSet creates an event set whose hardware counters
// count the host thread logical.
func (a *Agent) CreateAttachedEventSet(logical int64, count int, names []string, opts ...measurement.Option) (int, error) {
	a.mustBeLoaded()
	return a.ctx.CreateAttached(logical, count, names, opts...)
}

// CreateAttachedEventSetOnNativeThread creates an event set whose hardware
// counters count the OS thread native.
func (a *Agent) CreateAttachedEventSetOnNativeThread(native int, count int, names []string, opts ...measurement.Option) (int, error) {
	a.mustBeLoaded()
	return a.ctx.CreateAttachedNative(native, count, names, opts...)
}

// DestroyEventSet destroys the event set id.
func (a *Agent) DestroyEventSet(id int) error {
	a.mustBeLoaded()
	return a.ctx.Destroy(id)
}

// Start records a start snapshot in each of ids. It stops at the first
// invalid id; earlier sets stay started.
func (a *Agent) Start(ids ...int) error {
	a.mustBeLoaded()
	return a.ctx.Start(ids...)
}

// Stop records an end snapshot in each of ids, like Start.
func (a *Agent) Stop(ids ...int) error {
	a.mustBeLoaded()
	return a.ctx.Stop(ids...)
}

// Sample records a snapshot tagged tag in each of ids without ending the
// measurement.
func (a *Agent) Sample(tag int, ids ...int) error {
	a.mustBeLoaded()
	return a.ctx.Sample(tag, ids...)
}

// Reset drops the recorded snapshots of each of ids.
func (a *Agent) Reset(ids ...int) error {
	a.mustBeLoaded()
	return a.ctx.Reset(ids...)
}

// Results returns one row of deltas per completed measurement of id.
func (a *Agent) Results(id int) (*results.Table, error) {
	a.mustBeLoaded()
	return a.ctx.Results(id)
}

// RawResults returns one row per snapshot of id.
func (a *Agent) RawResults(id int) (*results.Table, error) {
	a.mustBeLoaded()
	return a.ctx.RawResults(id)
}

// IsEventSupported reports whether name can be measured.
func (a *Agent) IsEventSupported(name string) bool {
	a.mustBeLoaded()
	return a.ctx.Supported(name)
}

// SupportedEvents lists the events that can be measured.
func (a *Agent) SupportedEvents() ([]string, error) {
	a.mustBeLoaded()
	return a.ctx.SupportedEvents()
}

// FilterSupportedEvents returns the names that can be measured, in order.
func (a *Agent) FilterSupportedEvents(names []string) []string {
	a.mustBeLoaded()
	var out []string
	for _, name := range names {
		if a.ctx.Supported(name) {
			out = append(out, name)
		} else {
			a.logger.V(1).Info("dropping unsupported event", "name", name)
		}
	}
	return out
}
