// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import (
	"runtime"
	"slices"
	"unsafe"
)

// maxBufferBytes bounds the snapshot buffer of one event set.
const maxBufferBytes = 1 << 30

type eventSet struct {
	backends Backend
	events   []Event

	hw     []HardwareCounter // Distinct members of group, in slot order
	group  CounterGroup
	native int  // Attached thread, or 0
	pinned bool // Holds a runtime.LockOSThread

	data   []Snapshot // Capacity is twice the requested count
	cursor int
}

// newEventSet resolves names and allocates a set, without registering it.
func (c *Context) newEventSet(count int, names []string, opts []Option) (*eventSet, error) {
	if count <= 0 {
		return nil, newError(KindInvalidArgument, nil, "measurement count must be positive, got %d", count)
	}
	if len(names) == 0 {
		return nil, newError(KindInvalidArgument, nil, "no events given")
	}
	if uint64(count) > maxBufferBytes/2/uint64(unsafe.Sizeof(Snapshot{})) {
		return nil, newError(KindOutOfMemory, nil, "cannot allocate %d measurements", count)
	}

	s := &eventSet{events: make([]Event, 0, len(names))}
	for _, name := range names {
		ev, err := c.registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		if ev.Backend == BackendHardware {
			if ev.Index, err = s.addCounter(ev.Hardware); err != nil {
				return nil, err
			}
			ev.Accessor = hardwareSlot(ev.Index)
		}
		s.backends |= ev.Backend
		s.events = append(s.events, ev)
	}

	if len(s.hw) > 0 {
		inherit := slices.Contains(opts, OptionInherit)
		g, err := c.opener.Open(s.hw, inherit)
		if err != nil {
			return nil, newError(KindBackendError, err, "opening counter group")
		}
		s.group = g
	}

	s.data = make([]Snapshot, 2*count)
	return s, nil
}

// addCounter returns the group slot of hc, adding it if the set doesn't
// count the same key yet.
func (s *eventSet) addCounter(hc HardwareCounter) (int, error) {
	for i, have := range s.hw {
		if have.Key == hc.Key {
			return i, nil
		}
	}
	if len(s.hw) > 0 && s.hw[0].Component != hc.Component {
		return 0, newError(KindComponentMismatch, nil, "counter %s is on component %q, but %s is on %q", hc.Name, hc.Component, s.hw[0].Name, s.hw[0].Component)
	}
	if len(s.hw) == MaxHardwareEvents {
		return 0, newError(KindInvalidArgument, nil, "more than %d hardware counters", MaxHardwareEvents)
	}
	s.hw = append(s.hw, hc)
	return len(s.hw) - 1, nil
}

func (s *eventSet) attach(thread func() (int, error)) error {
	native, err := thread()
	if err != nil {
		return err
	}
	if err := s.group.Attach(native); err != nil {
		return newError(KindAttachFailed, err, "attaching to thread %d", native)
	}
	s.native = native
	return nil
}

// threadScoped are the backends that read the calling OS thread.
const threadScoped = BackendThreadTime | BackendResourceUsage

// pin locks the calling goroutine to its OS thread if s reads per-thread
// clocks or usage, so start and stop read the same thread.
func (s *eventSet) pin() {
	if s.backends&threadScoped != 0 && !s.pinned {
		runtime.LockOSThread()
		s.pinned = true
	}
}

func (s *eventSet) close() {
	if s.pinned {
		runtime.UnlockOSThread()
		s.pinned = false
	}
	if s.group != nil {
		s.group.Close()
		s.group = nil
	}
	s.data = nil
}

// next returns the snapshot slot to write and advances the cursor. A full
// buffer slides back by two, so the newest pair overwrites the last one.
func (s *eventSet) next() *Snapshot {
	if s.cursor >= len(s.data) {
		s.cursor -= 2
	}
	snap := &s.data[s.cursor]
	s.cursor++
	*snap = Snapshot{}
	return snap
}

func (s *eventSet) names() []string {
	names := make([]string, len(s.events))
	for i, ev := range s.events {
		names[i] = ev.Name
	}
	return names
}
