// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ubench-dev/ubench/measurement"
)

func newEventsCmd(flags *rootFlags) *cobra.Command {
	var component string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the supported events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := startAgent(flags.logger(cmd))
			out := cmd.OutOrStdout()
			var werr error
			err := a.Context().ForEach(func(name string) bool {
				if component != "" && componentOf(name) != component {
					return true
				}
				_, werr = fmt.Fprintln(out, name)
				return werr == nil
			})
			if err != nil {
				return err
			}
			return werr
		},
	}
	cmd.Flags().StringVar(&component, "component", "", "only list events of this namespace (SYS, JVM, PERF) or hardware component")
	return cmd
}

// componentOf returns the hardware component of a PERF/component:counter
// name, or the namespace of any other name.
func componentOf(name string) string {
	prefix, _, _ := strings.Cut(name, ":")
	if comp, ok := strings.CutPrefix(prefix, measurement.HardwarePrefix+"/"); ok {
		return comp
	}
	return prefix
}

func newCheckCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check EVENT...",
		Short: "Report whether events are supported",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := startAgent(flags.logger(cmd))
			out := cmd.OutOrStdout()
			missing := 0
			for _, name := range args {
				_, err := a.Context().Resolve(name)
				if err != nil {
					missing++
					fmt.Fprintf(out, "%s\tunsupported (%v)\n", name, err)
					continue
				}
				fmt.Fprintf(out, "%s\tsupported\n", name)
			}
			if missing > 0 {
				return fmt.Errorf("%d of %d events not supported", missing, len(args))
			}
			return nil
		},
	}
}
