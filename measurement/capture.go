// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

// Backends are read in a fixed order. A start or sample reads the
// wall-clock last, right before the measured region begins; a stop reads it
// first, right after the region ends.

// Observers are told about start and sample snapshots before any backend is
// read, and about stop snapshots after, so metrics stay outside the
// measured region. Releasing the batch read lock after the last start is
// the one piece of table bookkeeping left inside it.

func (c *Context) captureStart(s *eventSet, snap *Snapshot) {
	c.observer.SnapshotTaken(SnapshotStart)
	if s.backends&BackendHardware != 0 {
		if err := s.group.Start(); err != nil {
			snap.HardwareStartStatus = statusOf(err)
			c.observer.BackendFailed("start")
		}
	}
	snap.Tag = SnapshotStart
	c.populate(s, snap)
}

func (c *Context) captureSample(s *eventSet, snap *Snapshot, tag int) {
	c.observer.SnapshotTaken(tag)
	snap.Tag = tag
	c.populate(s, snap)
}

func (c *Context) populate(s *eventSet, snap *Snapshot) {
	b := s.backends
	if b&BackendResourceUsage != 0 {
		readResourceUsage(&snap.Usage)
	}
	if b&BackendVM != 0 {
		snap.Compilations = c.counters.CompilationsTotal()
		snap.GarbageCollections = c.counters.GarbageCollections()
	}
	if b&BackendThreadTime != 0 {
		snap.ThreadTime = threadTimeNow()
	}
	if b&BackendHardware != 0 {
		if err := s.group.Read(snap.Hardware[:len(s.hw)]); err != nil {
			snap.HardwareStatus = statusOf(err)
			c.observer.BackendFailed("read")
		}
	}
	if b&BackendWallClock != 0 {
		snap.WallClock = wallClockNow()
	}
}

func (c *Context) captureStop(s *eventSet, snap *Snapshot) {
	b := s.backends
	if b&BackendWallClock != 0 {
		snap.WallClock = wallClockNow()
	}
	if b&BackendHardware != 0 {
		if err := s.group.Stop(snap.Hardware[:len(s.hw)]); err != nil {
			snap.HardwareStatus = statusOf(err)
			c.observer.BackendFailed("stop")
		}
	}
	if b&BackendThreadTime != 0 {
		snap.ThreadTime = threadTimeNow()
	}
	if b&BackendVM != 0 {
		snap.Compilations = c.counters.CompilationsTotal()
		snap.GarbageCollections = c.counters.GarbageCollections()
	}
	if b&BackendResourceUsage != 0 {
		readResourceUsage(&snap.Usage)
	}
	snap.Tag = SnapshotEnd
	c.observer.SnapshotTaken(SnapshotEnd)
}
