// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package results holds measurement results as tables of 64-bit values and
// writes them out as CSV or aligned text.
package results

import "fmt"

// A Table is a list of rows with one named column per event.
type Table struct {
	Names []string
	Rows  [][]int64
}

// New returns an empty Table with the given column names.
func New(names ...string) *Table {
	return &Table{Names: append([]string(nil), names...)}
}

// AddRow appends a copy of row. It panics if the row has the wrong number
// of columns.
func (t *Table) AddRow(row []int64) {
	if len(row) != len(t.Names) {
		panic(fmt.Sprintf("row has %d values, table has %d columns", len(row), len(t.Names)))
	}
	t.Rows = append(t.Rows, append([]int64(nil), row...))
}

// Column returns a copy of the values in the named column.
func (t *Table) Column(name string) ([]int64, bool) {
	i := t.index(name)
	if i < 0 {
		return nil, false
	}
	col := make([]int64, len(t.Rows))
	for r, row := range t.Rows {
		col[r] = row[i]
	}
	return col, true
}

// Last returns the last row, or nil if t is empty.
func (t *Table) Last() []int64 {
	if len(t.Rows) == 0 {
		return nil
	}
	return t.Rows[len(t.Rows)-1]
}

func (t *Table) index(name string) int {
	for i, n := range t.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// A Merger joins tables column-wise. The zero value is an empty result.
type Merger struct {
	t Table
}

// AddColumns appends the columns of t, each name prefixed with prefix. Unless
// the merger is still empty, t must have the same number of rows.
func (m *Merger) AddColumns(t *Table, prefix string) error {
	if len(m.t.Names) != 0 && len(t.Rows) != len(m.t.Rows) {
		return fmt.Errorf("row number is different (wanted %d, but got %d)", len(m.t.Rows), len(t.Rows))
	}
	for _, name := range t.Names {
		m.t.Names = append(m.t.Names, prefix+name)
	}
	if m.t.Rows == nil {
		m.t.Rows = make([][]int64, len(t.Rows))
	}
	for i, row := range t.Rows {
		m.t.Rows[i] = append(m.t.Rows[i], row...)
	}
	return nil
}

// AddColumn appends a single named column.
func (m *Merger) AddColumn(values []int64, name string) error {
	return m.AddColumns(columnTable(name, values), "")
}

// Table returns the merged table. It shares storage with m.
func (m *Merger) Table() *Table {
	return &m.t
}

func columnTable(name string, values []int64) *Table {
	t := &Table{Names: []string{name}, Rows: make([][]int64, len(values))}
	for i, v := range values {
		t.Rows[i] = []int64{v}
	}
	return t
}
