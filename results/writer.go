// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package results

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// A Writer streams a header followed by rows. Flush must be called after the
// last row.
type Writer interface {
	WriteHeader(names []string) error
	WriteRow(values []int64) error
	Flush() error
}

// Write writes all of t to w and flushes it.
func Write(w Writer, t *Table) error {
	if err := w.WriteHeader(t.Names); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := w.WriteRow(row); err != nil {
			return err
		}
	}
	return w.Flush()
}

type csvWriter struct {
	w   *bufio.Writer
	sep string
}

// NewCSVWriter returns a Writer of comma separated values.
func NewCSVWriter(w io.Writer) Writer {
	return NewSeparatedWriter(w, ",")
}

// NewSeparatedWriter is like NewCSVWriter with a custom separator, for
// example "\t".
func NewSeparatedWriter(w io.Writer, sep string) Writer {
	return &csvWriter{bufio.NewWriter(w), sep}
}

func (c *csvWriter) WriteHeader(names []string) error {
	for i, name := range names {
		if i > 0 {
			c.w.WriteString(c.sep)
		}
		c.w.WriteString(name)
	}
	return c.w.WriteByte('\n')
}

func (c *csvWriter) WriteRow(values []int64) error {
	var buf [20]byte
	for i, v := range values {
		if i > 0 {
			c.w.WriteString(c.sep)
		}
		c.w.Write(strconv.AppendInt(buf[:0], v, 10))
	}
	return c.w.WriteByte('\n')
}

func (c *csvWriter) Flush() error {
	return c.w.Flush()
}

// MinColumnWidth is the narrowest column of a tabular writer. It fits eight
// hours in nanoseconds.
const MinColumnWidth = 14

type tabularWriter struct {
	w      *bufio.Writer
	widths []int
}

// NewTabularWriter returns a Writer of right-aligned, fixed-width columns.
// Each column is one wider than the larger of its name and MinColumnWidth.
func NewTabularWriter(w io.Writer) Writer {
	return &tabularWriter{w: bufio.NewWriter(w)}
}

func (t *tabularWriter) WriteHeader(names []string) error {
	t.widths = make([]int, len(names))
	for i, name := range names {
		t.widths[i] = max(MinColumnWidth, len(name)) + 1
		fmt.Fprintf(t.w, "%*s", t.widths[i], name)
	}
	return t.w.WriteByte('\n')
}

func (t *tabularWriter) WriteRow(values []int64) error {
	if len(values) != len(t.widths) {
		return fmt.Errorf("row has %d values, header has %d columns", len(values), len(t.widths))
	}
	for i, v := range values {
		fmt.Fprintf(t.w, "%*d", t.widths[i], v)
	}
	return t.w.WriteByte('\n')
}

func (t *tabularWriter) Flush() error {
	return t.w.Flush()
}
