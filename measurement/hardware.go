// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import (
	"errors"
	"fmt"
	"syscall"
)

// A HardwareKey identifies what a hardware counter counts. Counters with
// equal keys share one slot of a counter group.
type HardwareKey struct {
	Type    uint32
	Config  uint64
	Config1 uint64
	Config2 uint64
}

func (k HardwareKey) String() string {
	return fmt.Sprintf("type=%d,config=%#x,config1=%#x,config2=%#x", k.Type, k.Config, k.Config1, k.Config2)
}

// A HardwareCounter is a counter resolved by a [Catalogue].
type HardwareCounter struct {
	Component string
	Name      string
	Key       HardwareKey

	// Event is the catalogue's own description of the counter, passed back
	// to its CounterOpener.
	Event any
}

// A Catalogue knows the hardware counters of the host.
type Catalogue interface {
	// DefaultComponent is the component of counters named without one.
	DefaultComponent() string

	// Lookup resolves counter on component. An empty component means any
	// component that knows the counter.
	Lookup(component, counter string) (HardwareCounter, error)

	// ForEach calls fn for every counter until fn returns false.
	ForEach(fn func(component, counter string) bool) error
}

// A CounterGroup is a group of hardware counters that are started, read and
// stopped together.
type CounterGroup interface {
	Start() error
	// Read stores the current value of each member in values.
	Read(values []int64) error
	// Stop reads like Read and then disables the group.
	Stop(values []int64) error
	// Attach moves the group to the OS thread tid.
	Attach(tid int) error
	Close() error
}

// A CounterOpener opens counter groups on the calling thread. If inherit is
// set, threads created later by that thread are counted too.
type CounterOpener interface {
	Open(counters []HardwareCounter, inherit bool) (CounterGroup, error)
}

// errNoCounters is returned by the opener of platforms without hardware
// counters.
var errNoCounters = errors.New("hardware counters are not supported on this platform")

// statusOf converts a backend error into a snapshot status.
func statusOf(err error) int64 {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return -int64(errno)
	}
	return -1
}
