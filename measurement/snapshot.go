// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import "strings"

// MaxHardwareEvents is the largest number of distinct hardware counters in
// one event set.
const MaxHardwareEvents = 20

// Reserved snapshot tags. Sample tags must be other values.
const (
	SnapshotStart = -1
	SnapshotEnd   = -2
)

// A Backend is a source of measurement data. Event sets keep a bitmask of
// the backends their events need, and only those are read on capture.
type Backend uint8

const (
	BackendWallClock Backend = 1 << iota
	BackendThreadTime
	BackendResourceUsage
	BackendVM
	BackendHardware
)

var backendNames = []string{"wallclock", "threadtime", "rusage", "vm", "hardware"}

func (b Backend) String() string {
	if b == 0 {
		return "none"
	}
	var parts []string
	for i, name := range backendNames {
		if b&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// ResourceUsage is the part of getrusage(2) that events can report. Times
// are in nanoseconds.
type ResourceUsage struct {
	UserTime            int64
	SystemTime          int64
	MinorFaults         int64
	MajorFaults         int64
	VoluntarySwitches   int64
	InvoluntarySwitches int64
}

// A Snapshot is one point-in-time capture of every backend of an event set.
// Fields of backends the set doesn't use are left zero. It is a plain value.
type Snapshot struct {
	WallClock          int64 // Monotonic, ns
	ThreadTime         int64 // ns
	Usage              ResourceUsage
	Compilations       int64
	GarbageCollections int64

	Hardware [MaxHardwareEvents]int64
	// HardwareStatus is the status of reading the counter group (and
	// stopping it, for an end snapshot). HardwareStartStatus is the status
	// of starting it, for a start snapshot. 0 is OK; failures are negative.
	HardwareStatus      int64
	HardwareStartStatus int64

	// Tag is SnapshotStart, SnapshotEnd, or a caller's sample tag.
	Tag int
}

// hardwareStatus returns the first failure recorded in s, or 0.
func (s *Snapshot) hardwareStatus() int64 {
	if s.HardwareStatus != 0 {
		return s.HardwareStatus
	}
	return s.HardwareStartStatus
}
