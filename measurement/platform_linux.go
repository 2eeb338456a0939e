// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import (
	"os"

	"golang.org/x/sys/unix"
)

func probeCapabilities() Capabilities {
	var ts unix.Timespec
	var ru unix.Rusage
	_, err := os.Stat("/proc/sys/kernel/perf_event_paranoid")
	return Capabilities{
		WallClock:        unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts) == nil,
		ThreadTime:       unix.ClockGettime(unix.CLOCK_THREAD_CPUTIME_ID, &ts) == nil,
		ResourceUsage:    unix.Getrusage(unix.RUSAGE_THREAD, &ru) == nil,
		HardwareCounters: err == nil,
	}
}

func wallClockNow() int64 {
	var ts unix.Timespec
	unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return ts.Nano()
}

func threadTimeNow() int64 {
	var ts unix.Timespec
	unix.ClockGettime(unix.CLOCK_THREAD_CPUTIME_ID, &ts)
	return ts.Nano()
}

func readResourceUsage(u *ResourceUsage) {
	var ru unix.Rusage
	unix.Getrusage(unix.RUSAGE_THREAD, &ru)
	u.UserTime = ru.Utime.Nano()
	u.SystemTime = ru.Stime.Nano()
	u.MinorFaults = int64(ru.Minflt)
	u.MajorFaults = int64(ru.Majflt)
	u.VoluntarySwitches = int64(ru.Nvcsw)
	u.InvoluntarySwitches = int64(ru.Nivcsw)
}
