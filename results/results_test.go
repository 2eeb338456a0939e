// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package results

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Table {
	t := New("SYS:wallclock-time", "JVM:compilations")
	t.AddRow([]int64{1500, 2})
	t.AddRow([]int64{-1, 0})
	return t
}

func TestAddRowCopies(t *testing.T) {
	tab := New("a")
	row := []int64{1}
	tab.AddRow(row)
	row[0] = 99
	assert.Equal(t, [][]int64{{1}}, tab.Rows)
	assert.Panics(t, func() { tab.AddRow([]int64{1, 2}) })
}

func TestColumn(t *testing.T) {
	tab := sample()
	col, ok := tab.Column("SYS:wallclock-time")
	require.True(t, ok)
	assert.Equal(t, []int64{1500, -1}, col)
	_, ok = tab.Column("nope")
	assert.False(t, ok)
	assert.Equal(t, []int64{-1, 0}, tab.Last())
	assert.Nil(t, New("x").Last())
}

func TestMerger(t *testing.T) {
	var m Merger
	require.NoError(t, m.AddColumns(sample(), "t0_"))
	require.NoError(t, m.AddColumns(sample(), "t1_"))
	require.NoError(t, m.AddColumn([]int64{7, 8}, "run"))

	want := &Table{
		Names: []string{"t0_SYS:wallclock-time", "t0_JVM:compilations", "t1_SYS:wallclock-time", "t1_JVM:compilations", "run"},
		Rows: [][]int64{
			{1500, 2, 1500, 2, 7},
			{-1, 0, -1, 0, 8},
		},
	}
	if diff := cmp.Diff(want, m.Table()); diff != "" {
		t.Errorf("merged table mismatch (-want +got):\n%s", diff)
	}

	err := m.AddColumn([]int64{1}, "short")
	assert.EqualError(t, err, "row number is different (wanted 2, but got 1)")
}

func TestMergerSingleColumnFirst(t *testing.T) {
	var m Merger
	require.NoError(t, m.AddColumn([]int64{1, 2, 3}, "n"))
	assert.Equal(t, [][]int64{{1}, {2}, {3}}, m.Table().Rows)
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(NewCSVWriter(&buf), sample()))
	assert.Equal(t, "SYS:wallclock-time,JVM:compilations\n1500,2\n-1,0\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(NewSeparatedWriter(&buf, "\t"), sample()))
	assert.Equal(t, "SYS:wallclock-time\tJVM:compilations\n1500\t2\n-1\t0\n", buf.String())
}

func TestTabular(t *testing.T) {
	var buf bytes.Buffer
	tab := New("a", "a-very-long-column-name")
	tab.AddRow([]int64{1, 22})
	require.NoError(t, Write(NewTabularWriter(&buf), tab))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	// Column widths are max(14, len(name))+1.
	widthA, widthB := 15, len("a-very-long-column-name")+1
	assert.Equal(t, strings.Repeat(" ", widthA-1)+"a"+" a-very-long-column-name", lines[0])
	assert.Equal(t, strings.Repeat(" ", widthA-1)+"1"+strings.Repeat(" ", widthB-2)+"22", lines[1])

	w := NewTabularWriter(&buf)
	require.NoError(t, w.WriteHeader([]string{"x"}))
	assert.Error(t, w.WriteRow([]int64{1, 2}))
}

func TestPretty(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	require.NoError(t, Write(NewPrettyWriter(&buf), sample()))
	out := buf.String()
	for _, want := range []string{"SYS:wallclock-time", "JVM:compilations", "1500", "-1"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "\x1b[", "NO_COLOR output must not contain escapes")
}
