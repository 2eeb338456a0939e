// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics exports the activity of a measurement context as
// Prometheus metrics.
package metrics

import (
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/ubench-dev/ubench/counters"
	"github.com/ubench-dev/ubench/measurement"
	"github.com/ubench-dev/ubench/threads"
)

const namespace = "ubench"

// A Collector implements [measurement.Observer] with Prometheus metrics.
type Collector struct {
	active         prometheus.Gauge
	createFailures *prometheus.CounterVec
	backendErrors  *prometheus.CounterVec

	// Children of ubench_snapshots_total, resolved up front since
	// snapshots are taken inside measured regions.
	snapStart, snapEnd, snapSample prometheus.Counter
}

var _ measurement.Observer = (*Collector)(nil)

// New registers the metrics on reg. If cs or ts is non-nil, their values
// are exported too. A nil reg creates unregistered metrics.
func New(reg prometheus.Registerer, cs *counters.Counters, ts *threads.Registry) *Collector {
	f := promauto.With(reg)
	snapshots := f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_total",
		Help:      "Snapshots taken, by type.",
	}, []string{"type"})
	c := &Collector{
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_sets_active",
			Help:      "Event sets currently allocated.",
		}),
		createFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_set_create_failures_total",
			Help:      "Failed event set creations, by error kind.",
		}, []string{"kind"}),
		backendErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Hardware counter group failures during capture, by operation.",
		}, []string{"op"}),
		snapStart:  snapshots.WithLabelValues("start"),
		snapEnd:    snapshots.WithLabelValues("end"),
		snapSample: snapshots.WithLabelValues("sample"),
	}

	if cs != nil {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vm_compilations_total",
			Help:      "Methods compiled by the host VM.",
		}, func() float64 { return float64(cs.CompilationsTotal()) })
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vm_gc_total",
			Help:      "Garbage collections finished by the host VM.",
		}, func() float64 { return float64(cs.GarbageCollections()) })
	}
	if ts != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threads_registered",
			Help:      "Host threads mapped to native threads.",
		}, func() float64 { return float64(ts.Len()) })
	}
	return c
}

// EventSetCreated and EventSetDestroyed track the active event sets.
func (c *Collector) EventSetCreated()   { c.active.Inc() }
func (c *Collector) EventSetDestroyed() { c.active.Dec() }

// EventSetCreateFailed counts a failed creation by error kind.
func (c *Collector) EventSetCreateFailed(kind measurement.Kind) {
	c.createFailures.WithLabelValues(KindLabel(kind)).Inc()
}

// SnapshotTaken counts a snapshot as a start, an end or a sample.
func (c *Collector) SnapshotTaken(tag int) {
	switch tag {
	case measurement.SnapshotStart:
		c.snapStart.Inc()
	case measurement.SnapshotEnd:
		c.snapEnd.Inc()
	default:
		c.snapSample.Inc()
	}
}

// BackendFailed counts a hardware group failure during op.
func (c *Collector) BackendFailed(op string) {
	c.backendErrors.WithLabelValues(op).Inc()
}

// KindLabel is the label value of an error kind, like "invalid_handle".
func KindLabel(kind measurement.Kind) string {
	return strings.ReplaceAll(kind.String(), " ", "_")
}

// Dump writes everything g gathers in the text exposition format.
func Dump(w io.Writer, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
