// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import (
	"fmt"

	"github.com/ubench-dev/ubench/results"
)

// An EventGroup is a set of event sets whose values are summed into one
// logical group of columns, for example one set per thread measuring the
// same events.
type EventGroup struct {
	IDs   []int
	Names []string
}

// sum adds the values of rows into dst round-robin: value k of the
// concatenated rows goes to column k mod len(dst).
func (g *EventGroup) sum(rows [][]int64, dst []int64) {
	clear(dst)
	k := 0
	for _, row := range rows {
		for _, v := range row {
			dst[k] += v
			k = (k + 1) % len(dst)
		}
	}
}

// A MultiMeter starts and stops the event sets of several groups in one
// batch and collects one row per measurement.
type MultiMeter struct {
	ctx    *Context
	groups []EventGroup
	ids    []int
	names  []string
	table  *results.Table
}

// NewMultiMeter returns a MultiMeter over groups.
func NewMultiMeter(ctx *Context, groups ...EventGroup) (*MultiMeter, error) {
	m := &MultiMeter{ctx: ctx, groups: groups}
	for _, g := range groups {
		if len(g.Names) == 0 {
			return nil, newError(KindInvalidArgument, nil, "event group with no names")
		}
		m.ids = append(m.ids, g.IDs...)
		m.names = append(m.names, g.Names...)
	}
	m.table = results.New(m.names...)
	return m, nil
}

// Start starts every event set.
func (m *MultiMeter) Start() error {
	return m.ctx.Start(m.ids...)
}

// StopMeasurement stops every event set without collecting.
func (m *MultiMeter) StopMeasurement() error {
	return m.ctx.Stop(m.ids...)
}

// ProcessLastMeasurement adds a row built from the latest result of every
// event set.
func (m *MultiMeter) ProcessLastMeasurement() error {
	row := make([]int64, 0, len(m.names))
	for _, g := range m.groups {
		var rows [][]int64
		for _, id := range g.IDs {
			t, err := m.ctx.Results(id)
			if err != nil {
				return err
			}
			last := t.Last()
			if last == nil {
				return fmt.Errorf("event set %d has no complete measurement", id)
			}
			rows = append(rows, last)
		}
		part := make([]int64, len(g.Names))
		g.sum(rows, part)
		row = append(row, part...)
	}
	m.table.AddRow(row)
	return nil
}

// Stop stops every event set and collects the measurement.
func (m *MultiMeter) Stop() error {
	if err := m.StopMeasurement(); err != nil {
		return err
	}
	return m.ProcessLastMeasurement()
}

// Table returns the collected rows.
func (m *MultiMeter) Table() *results.Table {
	return m.table
}

// Save writes the collected rows to w.
func (m *MultiMeter) Save(w results.Writer) error {
	return results.Write(w, m.table)
}

// SelfTest runs one empty measurement and discards it.
func (m *MultiMeter) SelfTest() error {
	if err := m.Start(); err != nil {
		return err
	}
	if err := m.Stop(); err != nil {
		return err
	}
	m.table = results.New(m.names...)
	return nil
}
