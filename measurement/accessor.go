// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

// An Accessor derives the value of one event from snapshots.
type Accessor interface {
	// Delta returns the change of the event between a start and an end
	// snapshot. It is not clamped: a negative result from a monotonic source
	// is reported as is.
	Delta(start, end *Snapshot) int64

	// Raw returns the value of the event in a single snapshot.
	Raw(s *Snapshot) int64
}

type wallClock struct{}

func (wallClock) Delta(start, end *Snapshot) int64 { return end.WallClock - start.WallClock }
func (wallClock) Raw(s *Snapshot) int64            { return s.WallClock }

type threadTime struct{}

func (threadTime) Delta(start, end *Snapshot) int64 { return end.ThreadTime - start.ThreadTime }
func (threadTime) Raw(s *Snapshot) int64            { return s.ThreadTime }

// usageField selects the resource-usage value an event reports.
type usageField int

const (
	usageTime usageField = iota // User plus system time
	usageForcedSwitches
	usageVoluntarySwitches
	usagePageFaults
)

func (f usageField) Delta(start, end *Snapshot) int64 { return f.Raw(end) - f.Raw(start) }

func (f usageField) Raw(s *Snapshot) int64 {
	u := &s.Usage
	switch f {
	case usageTime:
		return u.UserTime + u.SystemTime
	case usageForcedSwitches:
		return u.InvoluntarySwitches
	case usageVoluntarySwitches:
		return u.VoluntarySwitches
	case usagePageFaults:
		return u.MinorFaults + u.MajorFaults
	}
	panic("bad usageField")
}

// vmCounter selects a process-wide counter fed by the host VM.
type vmCounter int

const (
	vmCompilations vmCounter = iota
	vmGarbageCollections
)

func (c vmCounter) Delta(start, end *Snapshot) int64 { return c.Raw(end) - c.Raw(start) }

func (c vmCounter) Raw(s *Snapshot) int64 {
	if c == vmCompilations {
		return s.Compilations
	}
	return s.GarbageCollections
}

// hardwareSlot reads one member of the set's counter group. If the group
// failed in either snapshot, it returns that (negative) status instead.
type hardwareSlot int

func (h hardwareSlot) Delta(start, end *Snapshot) int64 {
	if st := start.hardwareStatus(); st != 0 {
		return st
	}
	if st := end.HardwareStatus; st != 0 {
		return st
	}
	return end.Hardware[h] - start.Hardware[h]
}

func (h hardwareSlot) Raw(s *Snapshot) int64 {
	if st := s.hardwareStatus(); st != 0 {
		return st
	}
	return s.Hardware[h]
}
