// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import (
	"fmt"
	"sort"
	"sync"
	"syscall"
)

// fakeCatalogue knows a "cpu" component with a few counters (cycles has an
// alias) and an "uncore" component.
type fakeCatalogue struct {
	counters map[string]map[string]HardwareKey
}

func newFakeCatalogue() *fakeCatalogue {
	cpu := map[string]HardwareKey{
		"cycles":       {Type: 0, Config: 0},
		"cpu-cycles":   {Type: 0, Config: 0},
		"instructions": {Type: 0, Config: 1},
	}
	for i := 0; i <= MaxHardwareEvents; i++ {
		cpu[fmt.Sprintf("c%d", i)] = HardwareKey{Type: 4, Config: uint64(i)}
	}
	return &fakeCatalogue{counters: map[string]map[string]HardwareKey{
		"cpu":    cpu,
		"uncore": {"reads": {Type: 16, Config: 4}},
	}}
}

func (f *fakeCatalogue) DefaultComponent() string { return "cpu" }

func (f *fakeCatalogue) Lookup(component, counter string) (HardwareCounter, error) {
	comps := []string{component}
	if component == "" {
		comps = []string{"cpu", "uncore"}
	}
	for _, comp := range comps {
		if key, ok := f.counters[comp][counter]; ok {
			return HardwareCounter{Component: comp, Name: counter, Key: key}, nil
		}
	}
	return HardwareCounter{}, fmt.Errorf("no counter %q", counter)
}

func (f *fakeCatalogue) ForEach(fn func(component, counter string) bool) error {
	var comps []string
	for comp := range f.counters {
		comps = append(comps, comp)
	}
	sort.Strings(comps)
	for _, comp := range comps {
		var names []string
		for name := range f.counters[comp] {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !fn(comp, name) {
				return nil
			}
		}
	}
	return nil
}

// fakeOpener opens fakeGroups whose counters advance by 10 per read.
type fakeOpener struct {
	mu     sync.Mutex
	groups []*fakeGroup

	failOpen   error
	failStart  error
	failRead   error
	failAttach error
}

func (o *fakeOpener) Open(counters []HardwareCounter, inherit bool) (CounterGroup, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failOpen != nil {
		return nil, o.failOpen
	}
	g := &fakeGroup{opener: o, counters: counters, inherit: inherit}
	o.groups = append(o.groups, g)
	return g, nil
}

func (o *fakeOpener) last() *fakeGroup {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.groups[len(o.groups)-1]
}

type fakeGroup struct {
	opener   *fakeOpener
	counters []HardwareCounter
	inherit  bool

	reads    int64
	running  bool
	attached int
	closed   bool
}

func (g *fakeGroup) Start() error {
	if g.opener.failStart != nil {
		return g.opener.failStart
	}
	g.running = true
	return nil
}

func (g *fakeGroup) Read(values []int64) error {
	if g.opener.failRead != nil {
		return g.opener.failRead
	}
	g.reads++
	for i := range values {
		values[i] = g.reads * 10 * int64(i+1)
	}
	return nil
}

func (g *fakeGroup) Stop(values []int64) error {
	err := g.Read(values)
	g.running = false
	return err
}

func (g *fakeGroup) Attach(tid int) error {
	if g.opener.failAttach != nil {
		return g.opener.failAttach
	}
	g.attached = tid
	return nil
}

func (g *fakeGroup) Close() error {
	g.closed = true
	return nil
}

var errFakeBusy = fmt.Errorf("group busy: %w", syscall.EBUSY)

// recordingObserver counts what it is told.
type recordingObserver struct {
	mu        sync.Mutex
	created   int
	destroyed int
	failed    map[Kind]int
	snapshots map[int]int
	at        map[int]int64 // Wall-clock of the last snapshot per tag
	backend   map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{failed: map[Kind]int{}, snapshots: map[int]int{}, at: map[int]int64{}, backend: map[string]int{}}
}

func (r *recordingObserver) EventSetCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *recordingObserver) EventSetDestroyed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed++
}

func (r *recordingObserver) EventSetCreateFailed(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[kind]++
}

func (r *recordingObserver) SnapshotTaken(tag int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[tag]++
	r.at[tag] = wallClockNow()
}

func (r *recordingObserver) BackendFailed(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backend[op]++
}
