// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import (
	"errors"
	"fmt"

	"github.com/ubench-dev/ubench/events"
	"github.com/ubench-dev/ubench/perf"
)

// perfCatalogue resolves counters with the events package.
type perfCatalogue struct{}

func defaultCatalogue() Catalogue { return perfCatalogue{} }

func (perfCatalogue) DefaultComponent() string { return "cpu" }

func (perfCatalogue) Lookup(component, counter string) (HardwareCounter, error) {
	ev, err := events.ParseComponentEvent(component, counter)
	if err != nil {
		return HardwareCounter{}, err
	}
	key, err := events.KeyOf(ev)
	if err != nil {
		return HardwareCounter{}, err
	}
	pmu, err := events.Component(ev)
	if err != nil {
		return HardwareCounter{}, err
	}
	return HardwareCounter{
		Component: pmu,
		Name:      counter,
		Key:       HardwareKey{key.Type, key.Config, key.Config1, key.Config2},
		Event:     ev,
	}, nil
}

func (perfCatalogue) ForEach(fn func(component, counter string) bool) error {
	return events.ForEach(func(n events.Name) bool {
		return fn(n.PMU, n.Event)
	})
}

// perfOpener opens perf_event counter groups.
type perfOpener struct{}

func defaultOpener() CounterOpener { return perfOpener{} }

func (perfOpener) Open(counters []HardwareCounter, inherit bool) (CounterGroup, error) {
	evs := make([]events.Event, len(counters))
	for i, hc := range counters {
		ev, ok := hc.Event.(events.Event)
		if !ok {
			return nil, fmt.Errorf("counter %s was not resolved by the perf catalogue", hc.Name)
		}
		evs[i] = ev
	}
	g := &perfGroup{evs: evs, opts: perf.Options{Inherit: inherit}, counts: make([]perf.Count, len(evs))}
	c, err := perf.OpenGroup(perf.TargetThisGoroutine, g.opts, evs...)
	if err != nil {
		return nil, err
	}
	g.c = c
	return g, nil
}

type perfGroup struct {
	evs    []events.Event
	opts   perf.Options
	c      *perf.Counter
	counts []perf.Count
}

func (g *perfGroup) Start() error {
	return g.c.Start()
}

func (g *perfGroup) Read(values []int64) error {
	if err := g.c.ReadGroup(g.counts); err != nil {
		return err
	}
	return storeCounts(g.counts, values)
}

// errNotScheduled is reported for a group that was enabled but never got
// onto the hardware.
var errNotScheduled = errors.New("counter group enabled but never scheduled")

// storeCounts copies the raw counts into values.
func storeCounts(counts []perf.Count, values []int64) error {
	for i, c := range counts {
		values[i] = int64(c.RawValue)
	}
	if len(counts) > 0 && counts[0].TimeEnabled > 0 && counts[0].TimeRunning == 0 {
		return errNotScheduled
	}
	return nil
}

func (g *perfGroup) Stop(values []int64) error {
	err := g.Read(values)
	if err2 := g.c.Stop(); err == nil {
		err = err2
	}
	return err
}

func (g *perfGroup) Attach(tid int) error {
	c, err := perf.OpenGroup(perf.TargetThread(tid), g.opts, g.evs...)
	if err != nil {
		return err
	}
	g.c.Close()
	g.c = c
	return nil
}

func (g *perfGroup) Close() error {
	g.c.Close()
	return nil
}
