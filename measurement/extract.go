// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import "github.com/ubench-dev/ubench/results"

// TypeColumn is the name of the snapshot tag column of [Context.RawResults].
const TypeColumn = "TYPE"

// Results pairs every start snapshot of set id with the next end snapshot
// at or after it, and returns one row of deltas per pair. Samples are
// skipped, as is a start without a later end.
//
// A hardware counter column holds a negative status instead of a value if
// the counter group failed in either snapshot of the pair.
func (c *Context) Results(id int) (*results.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.lookup(id)
	if err != nil {
		return nil, err
	}

	t := results.New(s.names()...)
	row := make([]int64, len(s.events))
	data := s.data[:s.cursor]
	for i := 0; i < len(data); {
		start := findTag(data, i, SnapshotStart)
		end := findTag(data, start, SnapshotEnd)
		if end < 0 {
			break
		}
		for e, ev := range s.events {
			row[e] = ev.Accessor.Delta(&data[start], &data[end])
		}
		t.AddRow(row)
		i = end + 1
	}
	return t, nil
}

// RawResults returns one row per recorded snapshot of set id, of every
// type, with the raw value of each event and a trailing TYPE column holding
// the snapshot tag.
func (c *Context) RawResults(id int) (*results.Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, err := c.lookup(id)
	if err != nil {
		return nil, err
	}

	t := results.New(append(s.names(), TypeColumn)...)
	row := make([]int64, len(s.events)+1)
	for i := range s.data[:s.cursor] {
		snap := &s.data[i]
		for e, ev := range s.events {
			row[e] = ev.Accessor.Raw(snap)
		}
		row[len(s.events)] = int64(snap.Tag)
		t.AddRow(row)
	}
	return t, nil
}

// findTag returns the index of the first snapshot at or after from with the
// given tag, or -1.
func findTag(data []Snapshot, from int, tag int) int {
	if from < 0 {
		return -1
	}
	for i := from; i < len(data); i++ {
		if data[i].Tag == tag {
			return i
		}
	}
	return -1
}
