// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ubench lists the events this host can measure and measures
// built-in workloads with them.
//
// Usage:
//
//	ubench events [--component NAME]
//	ubench check EVENT...
//	ubench run [flags]
package main

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ubench-dev/ubench/agent"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	verbosity int
}

func (f *rootFlags) logger(cmd *cobra.Command) logr.Logger {
	return newLogger(cmd.ErrOrStderr(), f.verbosity)
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	cmd := &cobra.Command{
		Use:          "ubench",
		Short:        "Measure code regions with clocks, resource usage and hardware counters",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().IntVarP(&flags.verbosity, "verbosity", "v", 0, "log verbosity; 1 traces event sets and threads")
	cmd.AddCommand(
		newEventsCmd(&flags),
		newCheckCmd(&flags),
		newRunCmd(&flags),
	)
	return cmd
}

// newLogger returns a zap-backed logger writing to w.
func newLogger(w io.Writer, verbosity int) logr.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(zapcore.Level(-verbosity)),
	)
	return zapr.NewLogger(zap.New(core))
}

// startAgent starts an agent the way a host VM would, with the Go runtime
// in the role of the VM.
func startAgent(logger logr.Logger, opts ...agent.Option) *agent.Agent {
	a := agent.New(append([]agent.Option{agent.WithLogger(logger)}, opts...)...)
	a.Startup()
	a.VMInit(nil)
	return a
}
