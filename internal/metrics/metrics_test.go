// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubench-dev/ubench/counters"
	"github.com/ubench-dev/ubench/measurement"
	"github.com/ubench-dev/ubench/threads"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	cs := new(counters.Counters)
	ts := threads.New()
	c := New(reg, cs, ts)

	ctx := measurement.New(
		measurement.WithLogger(testr.New(t)),
		measurement.WithCapabilities(measurement.Capabilities{WallClock: true}),
		measurement.WithCounters(cs),
		measurement.WithThreads(ts),
		measurement.WithMetrics(c),
	)
	id, err := ctx.Create(2, []string{"SYS:wallclock-time"})
	require.NoError(t, err)
	_, err = ctx.Create(0, []string{"SYS:wallclock-time"})
	require.Error(t, err)
	_, err = ctx.Create(1, []string{"nope"})
	require.Error(t, err)

	require.NoError(t, ctx.Start(id))
	require.NoError(t, ctx.Sample(1, id))
	require.NoError(t, ctx.Stop(id))
	cs.CompiledMethodLoad()
	cs.GarbageCollectionFinish()
	require.NoError(t, ts.Register(1, 100))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapStart))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapSample))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.snapEnd))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.createFailures.WithLabelValues("invalid_argument")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.createFailures.WithLabelValues("unknown_event")))

	require.NoError(t, ctx.Destroy(id))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.active))

	want := `
# HELP ubench_threads_registered Host threads mapped to native threads.
# TYPE ubench_threads_registered gauge
ubench_threads_registered 1
# HELP ubench_vm_compilations_total Methods compiled by the host VM.
# TYPE ubench_vm_compilations_total counter
ubench_vm_compilations_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "ubench_threads_registered", "ubench_vm_compilations_total"))
}

func TestBackendFailed(t *testing.T) {
	c := New(nil, nil, nil)
	c.BackendFailed("read")
	c.BackendFailed("read")
	c.BackendFailed("stop")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.backendErrors.WithLabelValues("read")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.backendErrors))
}

func TestKindLabel(t *testing.T) {
	assert.Equal(t, "component_mismatch", KindLabel(measurement.KindComponentMismatch))
	assert.Equal(t, "backend_error", KindLabel(measurement.KindBackendError))
}

func TestDump(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, nil, nil)
	c.EventSetCreated()

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, reg))
	assert.Contains(t, buf.String(), "# TYPE ubench_event_sets_active gauge\nubench_event_sets_active 1\n")
}
