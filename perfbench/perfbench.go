// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// perfbench is a utility for counting performance events in a Go benchmark.
package perfbench

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ubench-dev/ubench/measurement"
)

// TODO: Sometimes you want to use custom counters in benchmarks and get the
// nice integration with testing.B, but not just automatically report them as
// X/op. Something between the measurement package and the current perfbench
// package.

// defaultEvents are measured as one event set. Hardware counters share a
// counter group, so they count exactly the same code.
var defaultEvents = []string{
	"PERF:cpu-cycles",
	"PERF:instructions",
	"PERF:cache-misses",
	"PERF:cache-references",
	"SYS:thread-time",
}

// metricName returns the benchmark metric of an event, without the "/op".
func metricName(event string) string {
	if event == "SYS:thread-time" {
		return "thread-ns"
	}
	return strings.TrimPrefix(event, measurement.HardwarePrefix+":")
}

// benchContext holds the event sets of all benchmarks.
var benchContext = sync.OnceValue(func() *measurement.Context {
	return measurement.New()
})

// benchEvents are the default events this host supports.
var benchEvents = sync.OnceValue(func() []string {
	ctx := benchContext()
	return slices.DeleteFunc(slices.Clone(defaultEvents), func(ev string) bool {
		return !ctx.Supported(ev)
	})
})

var printUnits = sync.OnceFunc(func() {
	// Currently all events are better=lower.
	for _, event := range benchEvents() {
		fmt.Printf("Unit %s better=lower\n", metricName(event))
	}
	fmt.Printf("\n")
})

// testingB is the *testing.B interface needed by Counters. Used for testing.
type testingB interface {
	ReportMetric(n float64, unit string)
	Logf(format string, args ...any)
	Cleanup(func())
}

var openErrors sync.Map

// logOnce reports each distinct message once, to avoid flooding the
// benchmark log.
func logOnce(b testingB, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if _, prev := openErrors.Swap(msg, true); !prev {
		b.Logf("%s", msg)
	}
}

// Counters is a set of performance counters that will be reported in benchmark
// results.
type Counters struct {
	b  testingB
	bN int

	events  []string
	id      int // Event set, or -1 if it couldn't be created
	running bool
	totals  []int64 // Sum over completed Start/Stop pairs
}

// Open starts a set of performance counters for benchmark b. These counters
// will be reported as metrics when the benchmark ends. The counters only count
// performance events on the calling goroutine, which stays locked to its OS
// thread until the benchmark ends. Events the host can't count are left out.
//
// The counters are running on return. In general, any calls to b.StopTimer,
// b.StartTimer, or b.ResetTimer should be paired with the equivalent calls on
// Counters.
//
// The final value of the counters is captured in a b.Cleanup function. If the
// benchmark does substantial other work in cleanup functions, it may want to
// explicitly call [Counters.Stop] before returning.
func Open(b *testing.B) *Counters {
	printUnits()
	return open(b, b.N, benchEvents())
}

func open(b testingB, bN int, events []string) *Counters {
	cs := &Counters{
		b:      b,
		bN:     bN,
		events: events,
		id:     -1,
		totals: make([]int64, len(events)),
	}

	if len(events) > 0 {
		id, err := benchContext().Create(1, events)
		if err != nil {
			logOnce(b, "error opening counters: %v", err)
		} else {
			cs.id = id
		}
	}

	b.Cleanup(cs.close)
	cs.Start()
	return cs
}

// Start resumes counting. It does nothing if the counters are running.
func (cs *Counters) Start() {
	if cs.id < 0 || cs.running {
		return
	}
	benchContext().Start(cs.id)
	cs.running = true
}

// Stop pauses counting and adds what was counted since Start to the totals.
func (cs *Counters) Stop() {
	if cs.id < 0 || !cs.running {
		return
	}
	ctx := benchContext()
	ctx.Stop(cs.id)
	cs.running = false

	t, err := ctx.Results(cs.id)
	if err != nil {
		logOnce(cs.b, "error reading counters: %v", err)
		return
	}
	for i, v := range t.Last() {
		if v < 0 {
			logOnce(cs.b, "error reading %s: status %d", cs.events[i], v)
			continue
		}
		cs.totals[i] += v
	}
}

// Reset sets the totals to zero. Running counters keep running from now.
func (cs *Counters) Reset() {
	clear(cs.totals)
	if cs.running {
		ctx := benchContext()
		ctx.Reset(cs.id)
		ctx.Start(cs.id)
	}
}

// Total returns the total count of the named counter, which is a reported
// metric name without the "/op". If the named counter is unknown or could not
// be opened, this returns 0, false.
func (cs *Counters) Total(name string) (float64, bool) {
	if cs.id < 0 {
		return 0, false
	}
	for i, event := range cs.events {
		if metricName(event) == name {
			return float64(cs.totals[i]), true
		}
	}
	return 0, false
}

func (cs *Counters) close() {
	if cs.b == nil {
		return
	}

	cs.Stop()
	if cs.id >= 0 {
		for i, event := range cs.events {
			cs.b.ReportMetric(float64(cs.totals[i])/float64(cs.bN), metricName(event)+"/op")
		}
		benchContext().Destroy(cs.id)
	}
	cs.b = nil
}
