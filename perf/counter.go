// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package perf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ubench-dev/ubench/events"
)

// Target specifies what goroutine, thread, or CPU a [Counter] should monitor.
type Target interface {
	pidCPU() (pid, cpu int)
	open()
	close()
}

type targetThisGoroutine struct{}

func (targetThisGoroutine) pidCPU() (pid, cpu int) { return 0, -1 }
func (targetThisGoroutine) open()                  { runtime.LockOSThread() }
func (targetThisGoroutine) close()                 { runtime.UnlockOSThread() }

type targetThread int

func (t targetThread) pidCPU() (pid, cpu int) { return int(t), -1 }
func (targetThread) open()                    {}
func (targetThread) close()                   {}

// TargetThisGoroutine monitors the calling goroutine. This will call
// [runtime.LockOSThread] on Open and [runtime.UnlockOSThread] on Close.
var TargetThisGoroutine Target = targetThisGoroutine{}

// TargetThread monitors the OS thread with the given thread ID. Unlike
// [TargetThisGoroutine], it does not lock the calling goroutine.
func TargetThread(tid int) Target {
	return targetThread(tid)
}

// Options modify how a [Counter] is opened.
type Options struct {
	// Inherit makes the counter also count threads created by the target
	// after the counter is opened.
	Inherit bool
}

// A Counter reports the number of times a [events.Event] or group of Events
// occurred.
type Counter struct {
	target  Target
	files   []*os.File // files[0] is the group leader
	scales  []scale
	running bool
	buf     []byte
}

type scale struct {
	scale float64
	unit  string
}

// Layout of a PERF_FORMAT_GROUP read with both times: nr, time_enabled,
// time_running, then one value per event.
const (
	readHeaderWords = 3
	wordSize        = 8
)

// OpenCounter returns a new [Counter] that reads values for the given
// [events.Event] or group of Events on the given [Target]. Callers are
// expected to call [Counter.Close] when done with this Counter.
//
// If multiple events are given, they are opened as a group, which means they
// will all be scheduled onto the hardware at the same time.
//
// The counter is initially not running. Call [Counter.Start] to start it.
func OpenCounter(target Target, evs ...events.Event) (*Counter, error) {
	return OpenGroup(target, Options{}, evs...)
}

// OpenGroup is like [OpenCounter], but takes Options.
func OpenGroup(target Target, opts Options, evs ...events.Event) (_ *Counter, err error) {
	if len(evs) == 0 {
		return nil, nil
	}

	c := &Counter{
		target: target,
		scales: make([]scale, len(evs)),
		buf:    make([]byte, (readHeaderWords+len(evs))*wordSize),
	}
	for i, ev := range evs {
		c.scales[i] = scale{1, ""}
		if es, ok := ev.(events.EventScale); ok {
			c.scales[i].scale, c.scales[i].unit = es.ScaleUnit()
		}
	}

	target.open()
	defer func() {
		if err != nil {
			for _, f := range c.files {
				f.Close()
			}
			target.close()
		}
	}()

	pid, cpu := target.pidCPU()
	group := -1
	for i, ev := range evs {
		attr, err := eventAttr(ev, i == 0, opts)
		if err != nil {
			return nil, err
		}
		fd, err := unix.PerfEventOpen(attr, pid, cpu, group, unix.PERF_FLAG_FD_CLOEXEC)
		if err != nil {
			if i == 0 {
				err = paranoidHint(err)
			}
			return nil, err
		}
		if i == 0 {
			group = fd
		}
		// Members stay open for as long as the group.
		c.files = append(c.files, os.NewFile(uintptr(fd), "<perf-event>"))
	}
	return c, nil
}

// eventAttr returns the attributes to open ev with. Only the group leader
// carries the read format, and every event starts disabled.
func eventAttr(ev events.Event, leader bool, opts Options) (*unix.PerfEventAttr, error) {
	attr := &unix.PerfEventAttr{}
	attr.Size = uint32(unsafe.Sizeof(*attr))
	if err := ev.SetAttrs(attr); err != nil {
		return nil, err
	}
	if leader {
		attr.Read_format = unix.PERF_FORMAT_TOTAL_TIME_ENABLED |
			unix.PERF_FORMAT_TOTAL_TIME_RUNNING |
			unix.PERF_FORMAT_GROUP
	}
	attr.Bits = unix.PerfBitDisabled
	if opts.Inherit {
		attr.Bits |= unix.PerfBitInherit
	}
	return attr, nil
}

const paranoidPath = "/proc/sys/kernel/perf_event_paranoid"

// paranoidHint adds a suggestion to EACCES if perf_event_paranoid is
// unreadable or restrictive.
func paranoidHint(err error) error {
	if !errors.Is(err, syscall.EACCES) {
		return err
	}
	data, rerr := os.ReadFile(paranoidPath)
	if rerr == nil {
		if level, perr := strconv.Atoi(string(bytes.TrimSpace(data))); perr == nil && level <= 0 {
			return err
		}
	}
	return fmt.Errorf("%w (consider: echo 0 | sudo tee %s)", err, paranoidPath)
}

// Close closes this counter and unlocks the goroutine from the OS thread.
func (c *Counter) Close() {
	if c == nil || c.files == nil {
		return
	}
	for _, f := range c.files {
		f.Close()
	}
	c.files = nil
	c.target.close()
	c.target = nil
}

// Len returns the number of events in c.
func (c *Counter) Len() int {
	if c == nil {
		return 0
	}
	return len(c.scales)
}

// Start the counter. Starting a running counter does nothing.
func (c *Counter) Start() error {
	if c == nil || c.running {
		return nil
	}
	if err := c.ioctl(unix.PERF_EVENT_IOC_ENABLE, "enabling"); err != nil {
		return err
	}
	c.running = true
	return nil
}

// Stop the counter. Stopping a stopped counter does nothing.
func (c *Counter) Stop() error {
	if c == nil || !c.running {
		return nil
	}
	c.running = false
	return c.ioctl(unix.PERF_EVENT_IOC_DISABLE, "disabling")
}

// Reset zeroes every event in c.
func (c *Counter) Reset() error {
	if c == nil {
		return nil
	}
	return c.ioctl(unix.PERF_EVENT_IOC_RESET, "resetting")
}

// ioctl applies a PERF_EVENT_IOC_* request to the whole group.
func (c *Counter) ioctl(req uint, what string) error {
	if c.files == nil {
		return errClosed
	}
	if err := unix.IoctlSetInt(int(c.files[0].Fd()), req, unix.PERF_IOC_FLAG_GROUP); err != nil {
		return fmt.Errorf("%s counter: %w", what, err)
	}
	return nil
}

var errClosed = errors.New("Counter is closed")

// Count is the value of a Counter.
type Count struct {
	RawValue uint64 // The number of events while this counter was running.

	// Normally, TimeEnabled == TimeRunning. However, if more counters are
	// running than the hardware can support, events will be multiplexed onto
	// the hardware. In that case, TimeRunning < TimeEnabled, and the raw
	// counter value should be scaled under the assumption that the event is
	// happening at a regular rate and the sampled time is representative.

	TimeEnabled uint64 // Total time the Counter was started.
	TimeRunning uint64 // Total time the Counter was actually counting.

	scale scale
}

// Value returns the measured value of Count, scaled to account for time the
// counter was scheduled, and to account for any conversion factors in the
// underlying event.
func (c Count) Value() (float64, string) {
	v := float64(c.RawValue)
	if c.TimeEnabled != c.TimeRunning {
		if c.TimeRunning == 0 {
			return 0, c.scale.unit
		}
		v *= float64(c.TimeEnabled) / float64(c.TimeRunning)
	}
	if c.scale.scale != 1 {
		v *= c.scale.scale
	}
	return v, c.scale.unit
}

// ReadOne returns the current value of the first event in c. For counters that
// only have a single Event, this is faster and more ergonomic than
// [Counter.ReadGroup].
func (c *Counter) ReadOne() (Count, error) {
	// TODO: Use RDPMC when possible.
	var cs [1]Count
	err := c.ReadGroup(cs[:])
	return cs[0], err
}

// ReadGroup returns the current value of all events in c. Extra elements of
// cs are left alone.
func (c *Counter) ReadGroup(cs []Count) error {
	if c == nil {
		return nil
	}
	if c.files == nil {
		return errClosed
	}
	if _, err := c.files[0].Read(c.buf); err != nil {
		return err
	}

	word := func(i int) uint64 { return binary.NativeEndian.Uint64(c.buf[i*wordSize:]) }
	if nr := word(0); nr != uint64(len(c.scales)) {
		return fmt.Errorf("read returned %d events, expected %d", nr, len(c.scales))
	}
	enabled, running := word(1), word(2)
	for i := range min(len(cs), len(c.scales)) {
		cs[i] = Count{
			RawValue:    word(readHeaderWords + i),
			TimeEnabled: enabled,
			TimeRunning: running,
			scale:       c.scales[i],
		}
	}
	return nil
}
