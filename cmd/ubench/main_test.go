// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	if testing.Verbose() && errOut.Len() > 0 {
		t.Logf("stderr:\n%s", errOut.String())
	}
	return out.String(), err
}

func TestEventsCommand(t *testing.T) {
	out, err := execute(t, "events", "--component", "JVM")
	require.NoError(t, err)
	assert.Equal(t, "JVM:compilations\nJVM:gc-count\n", out)

	out, err = execute(t, "events")
	require.NoError(t, err)
	assert.Contains(t, out, "SYS:wallclock-time\n")
	assert.NotContains(t, out, "SYS_WALLCLOCK")
}

func TestComponentOf(t *testing.T) {
	for name, want := range map[string]string{
		"SYS:wallclock-time":               "SYS",
		"PERF:instructions":                "PERF",
		"PERF/uncore_imc_0:cas_count_read": "uncore_imc_0",
		"bare":                             "bare",
	} {
		assert.Equal(t, want, componentOf(name), name)
	}
}

func TestCheckCommand(t *testing.T) {
	out, err := execute(t, "check", "SYS:wallclock-time", "sys_wallclock")
	require.NoError(t, err)
	assert.Equal(t, "SYS:wallclock-time\tsupported\nsys_wallclock\tsupported\n", out)

	out, err = execute(t, "check", "SYS:wallclock-time", "bogus")
	assert.EqualError(t, err, "1 of 2 events not supported")
	assert.Contains(t, out, "bogus\tunsupported (unknown event \"bogus\")")
}

func TestRunCSV(t *testing.T) {
	out, err := execute(t, "run", "-w", "spin", "--size", "1000", "--runs", "3",
		"-e", "SYS:wallclock-time,JVM:gc-count", "-f", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "SYS:wallclock-time,JVM:gc-count", lines[0])
}

func TestRunThreads(t *testing.T) {
	out, err := execute(t, "run", "-w", "hash", "--size", "4096", "--runs", "2", "--threads", "3",
		"-e", "SYS:wallclock-time", "-f", "tsv")
	require.NoError(t, err)
	for _, want := range []string{"thread 1\n", "thread 2\n", "thread 3\n"} {
		assert.Contains(t, out, want)
	}
	assert.Equal(t, 3, strings.Count(out, "SYS:wallclock-time\n"))
}

func TestRunMeter(t *testing.T) {
	out, err := execute(t, "run", "-w", "alloc", "--size", "4096", "--runs", "4", "--threads", "2",
		"-e", "SYS:wallclock-time,JVM:compilations", "--meter", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "SYS:wallclock-time")
	assert.Contains(t, out, "ubench_snapshots_total{type=\"start\"} 10")
	assert.Contains(t, out, "ubench_event_sets_active 0")
}

func TestRunConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workload: sleep\nsize: 64\nruns: 5\nformat: csv\nevents: [SYS:wallclock-time]\n"), 0o644))

	out, err := execute(t, "run", "--config", path, "--runs", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 3)
}

func TestRunErrors(t *testing.T) {
	_, err := execute(t, "run", "-e", "bogus")
	assert.ErrorContains(t, err, `unknown event "bogus"`)

	_, err = execute(t, "run", "-w", "fft")
	assert.ErrorContains(t, err, `unknown workload "fft"`)

	_, err = execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config")
}
