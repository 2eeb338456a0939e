// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ubench-dev/ubench/agent"
	"github.com/ubench-dev/ubench/counters"
	"github.com/ubench-dev/ubench/internal/config"
	"github.com/ubench-dev/ubench/internal/metrics"
	"github.com/ubench-dev/ubench/measurement"
	"github.com/ubench-dev/ubench/results"
	"github.com/ubench-dev/ubench/threads"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		configPath string
		cfg        = config.Default()
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Measure a built-in workload",
		Long: `Run a built-in workload on worker threads and print one row per run.

Each worker locks itself to an OS thread, registers it like a host VM
thread and measures its runs with an event set attached to that thread.
With --meter, the main thread starts and stops the sets of all workers
together and prints their sums. Only hardware counters follow the
attached thread; clocks and resource usage are those of the main
thread, which stays locked while the sets exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				base, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = overrideFlags(cmd, base, cfg)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd, flags, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML `file` with run settings; flags override it")
	f.StringSliceVarP(&cfg.Events, "events", "e", cfg.Events, "events to measure")
	f.IntVar(&cfg.Count, "count", cfg.Count, "event set capacity in measurements")
	f.IntVar(&cfg.Runs, "runs", cfg.Runs, "measured runs per thread")
	f.IntVar(&cfg.Threads, "threads", cfg.Threads, "worker threads")
	f.StringVarP(&cfg.Workload, "workload", "w", cfg.Workload, fmt.Sprintf("workload, one of %v", config.Workloads))
	f.IntVar(&cfg.Size, "size", cfg.Size, "work per run")
	f.BoolVar(&cfg.Inherit, "inherit", cfg.Inherit, "also count threads started by the workers")
	f.BoolVar(&cfg.Meter, "meter", cfg.Meter, "measure all threads together and print their sums")
	f.StringVarP(&cfg.Format, "format", "f", cfg.Format, fmt.Sprintf("output format, one of %v", config.Formats))
	f.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "print Prometheus metrics after the results")
	return cmd
}

// overrideFlags returns base with the settings given on the command line
// taken from flagCfg.
func overrideFlags(cmd *cobra.Command, base, flagCfg config.Config) config.Config {
	f := cmd.Flags()
	set := func(name string, apply func()) {
		if f.Changed(name) {
			apply()
		}
	}
	set("events", func() { base.Events = flagCfg.Events })
	set("count", func() { base.Count = flagCfg.Count })
	set("runs", func() { base.Runs = flagCfg.Runs })
	set("threads", func() { base.Threads = flagCfg.Threads })
	set("workload", func() { base.Workload = flagCfg.Workload })
	set("size", func() { base.Size = flagCfg.Size })
	set("inherit", func() { base.Inherit = flagCfg.Inherit })
	set("meter", func() { base.Meter = flagCfg.Meter })
	set("format", func() { base.Format = flagCfg.Format })
	set("metrics", func() { base.Metrics = flagCfg.Metrics })
	return base
}

func newWriter(format string, w io.Writer) results.Writer {
	switch format {
	case "csv":
		return results.NewCSVWriter(w)
	case "tsv":
		return results.NewSeparatedWriter(w, "\t")
	case "pretty":
		return results.NewPrettyWriter(w)
	}
	return results.NewTabularWriter(w)
}

func run(cmd *cobra.Command, flags *rootFlags, cfg config.Config) error {
	work, err := lookupWorkload(cfg.Workload)
	if err != nil {
		return err
	}

	logger := flags.logger(cmd)
	cs := new(counters.Counters)
	ts := threads.New(threads.WithLogger(logger))
	reg := prometheus.NewRegistry()
	a := startAgent(logger, agent.WithContextOptions(
		measurement.WithCounters(cs),
		measurement.WithThreads(ts),
		measurement.WithMetrics(metrics.New(reg, cs, ts)),
	))
	for _, name := range cfg.Events {
		if _, err := a.Context().Resolve(name); err != nil {
			return err
		}
	}

	r := &runner{
		agent:  a,
		vm:     newGoRuntime(a),
		cfg:    cfg,
		work:   work,
		logger: logger.WithName("run"),
	}
	if cfg.Inherit {
		r.opts = append(r.opts, measurement.OptionInherit)
	}

	out := cmd.OutOrStdout()
	if cfg.Meter {
		err = r.meter(out)
	} else {
		err = r.perThread(out)
	}
	if err != nil {
		return err
	}
	if cfg.Metrics {
		fmt.Fprintln(out)
		return metrics.Dump(out, reg)
	}
	return nil
}

type runner struct {
	agent  *agent.Agent
	vm     *goRuntime
	cfg    config.Config
	opts   []measurement.Option
	work   workload
	logger logr.Logger
}

// worker runs fn on a new goroutine locked to its OS thread and registered
// with the agent as logical thread id.
func (r *runner) worker(g *errgroup.Group, id int64, fn func() error) {
	g.Go(func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		r.agent.ThreadStart(id)
		defer r.agent.ThreadEnd()
		return fn()
	})
}

// perThread measures every worker with its own event set and prints one
// table per worker.
func (r *runner) perThread(out io.Writer) error {
	tables := make([]*results.Table, r.cfg.Threads)
	var g errgroup.Group
	for i := range tables {
		r.worker(&g, int64(i+1), func() error {
			id, err := r.agent.CreateAttachedEventSet(int64(i+1), r.cfg.Count, r.cfg.Events, r.opts...)
			if err != nil {
				return fmt.Errorf("thread %d: %w", i+1, err)
			}
			defer r.agent.DestroyEventSet(id)
			for range r.cfg.Runs {
				if err := r.agent.Start(id); err != nil {
					return err
				}
				r.work(r.cfg.Size)
				r.vm.sync()
				if err := r.agent.Stop(id); err != nil {
					return err
				}
			}
			tables[i], err = r.agent.Results(id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, t := range tables {
		if r.cfg.Threads > 1 {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "thread %d\n", i+1)
		}
		if err := results.Write(newWriter(r.cfg.Format, out), t); err != nil {
			return err
		}
	}
	return nil
}

// meter keeps the workers parked on their threads, measures all of them
// from this goroutine with one MultiMeter and prints the sums.
func (r *runner) meter(out io.Writer) error {
	n := r.cfg.Threads
	ready := make(chan struct{}, n)
	done := make(chan struct{}, n)
	start := make([]chan struct{}, n)

	var g errgroup.Group
	for i := range start {
		start[i] = make(chan struct{})
		r.worker(&g, int64(i+1), func() error {
			ready <- struct{}{}
			for range start[i] {
				r.work(r.cfg.Size)
				done <- struct{}{}
			}
			return nil
		})
	}
	stopWorkers := func() {
		for _, c := range start {
			close(c)
		}
		g.Wait()
	}
	for range n {
		<-ready
	}

	group := measurement.EventGroup{Names: r.cfg.Events}
	for i := range n {
		id, err := r.agent.CreateAttachedEventSet(int64(i+1), r.cfg.Count, r.cfg.Events, r.opts...)
		if err != nil {
			stopWorkers()
			return fmt.Errorf("thread %d: %w", i+1, err)
		}
		defer r.agent.DestroyEventSet(id)
		group.IDs = append(group.IDs, id)
	}
	defer stopWorkers()

	m, err := measurement.NewMultiMeter(r.agent.Context(), group)
	if err != nil {
		return err
	}
	if err := m.SelfTest(); err != nil {
		return err
	}
	step := func() {
		for _, c := range start {
			c <- struct{}{}
		}
		for range n {
			<-done
		}
	}
	for range r.cfg.Runs {
		if err := m.Start(); err != nil {
			return err
		}
		step()
		r.vm.sync()
		if err := m.Stop(); err != nil {
			return err
		}
	}
	r.logger.V(1).Info("measured", "threads", n, "runs", r.cfg.Runs)
	return m.Save(newWriter(r.cfg.Format, out))
}
