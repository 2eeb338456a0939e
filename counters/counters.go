// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package counters holds the process-wide counters that a host VM feeds
// through its compilation and garbage collection callbacks.
package counters

import "sync/atomic"

// Counters counts JIT compilations and finished garbage collections. The zero
// value is ready to use. All methods are safe for concurrent use and never
// block.
//
// No ordering is promised between counters: a snapshot may observe an
// increment from any thread.
type Counters struct {
	compilations      atomic.Int64
	compilationsTotal atomic.Int64
	gcTotal           atomic.Int64
}

// CompiledMethodLoad records that the VM finished compiling a method.
func (c *Counters) CompiledMethodLoad() {
	c.compilations.Add(1)
	c.compilationsTotal.Add(1)
}

// GarbageCollectionFinish records that the VM finished a collection.
func (c *Counters) GarbageCollectionFinish() {
	c.gcTotal.Add(1)
}

// Compilations returns the number of compilations since the last
// [Counters.CompilationsAndReset].
func (c *Counters) Compilations() int64 {
	return c.compilations.Load()
}

// CompilationsAndReset returns the same value as Compilations and starts a
// new window.
func (c *Counters) CompilationsAndReset() int64 {
	return c.compilations.Swap(0)
}

// CompilationsTotal returns the number of compilations since the process
// started. It is never reset.
func (c *Counters) CompilationsTotal() int64 {
	return c.compilationsTotal.Load()
}

// GarbageCollections returns the number of finished collections since the
// process started.
func (c *Counters) GarbageCollections() int64 {
	return c.gcTotal.Load()
}
