// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the run configuration of the ubench command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Workloads are the built-in workloads of ubench run.
var Workloads = []string{"hash", "sleep", "alloc", "spin"}

// Formats are the output formats of ubench run.
var Formats = []string{"table", "csv", "tsv", "pretty"}

// A Config describes one ubench run.
type Config struct {
	// Events are measured by every worker thread.
	Events []string `yaml:"events"`
	// Count is the capacity of each event set, in measurements.
	Count int `yaml:"count"`
	// Runs is the number of measurements taken per thread.
	Runs int `yaml:"runs"`
	// Threads is the number of worker threads.
	Threads int `yaml:"threads"`

	Workload string `yaml:"workload"`
	// Size scales the work done by one run of the workload.
	Size int `yaml:"size"`

	// Inherit also counts threads started by the workers.
	Inherit bool `yaml:"inherit"`
	// Meter sums all threads into a single table.
	Meter bool `yaml:"meter"`

	Format string `yaml:"format"`
	// Metrics prints Prometheus metrics after the results.
	Metrics bool `yaml:"metrics"`
}

// Default returns the configuration used for missing settings.
func Default() Config {
	return Config{
		Events:   []string{"SYS:wallclock-time", "SYS:thread-time"},
		Count:    10,
		Runs:     10,
		Threads:  1,
		Workload: "hash",
		Size:     1 << 16,
		Format:   "table",
	}
}

// Load reads the YAML file at path on top of [Default].
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of [Default] and validates the result. Unknown
// keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting of c.
func (c Config) Validate() error {
	switch {
	case len(c.Events) == 0:
		return errors.New("no events")
	case c.Count <= 0:
		return fmt.Errorf("count must be positive, got %d", c.Count)
	case c.Runs <= 0:
		return fmt.Errorf("runs must be positive, got %d", c.Runs)
	case c.Threads <= 0:
		return fmt.Errorf("threads must be positive, got %d", c.Threads)
	case c.Size < 0:
		return fmt.Errorf("size must not be negative, got %d", c.Size)
	case !slices.Contains(Workloads, c.Workload):
		return fmt.Errorf("unknown workload %q (want one of %v)", c.Workload, Workloads)
	case !slices.Contains(Formats, c.Format):
		return fmt.Errorf("unknown format %q (want one of %v)", c.Format, Formats)
	}
	return nil
}

// Marshal encodes c as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
