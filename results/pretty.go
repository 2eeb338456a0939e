// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package results

import (
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFE66D")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
	errStyle    = cellStyle.Foreground(lipgloss.Color("#FF6B6B"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
)

type prettyWriter struct {
	w        io.Writer
	colorize bool
	names    []string
	rows     [][]int64
}

// NewPrettyWriter returns a Writer that renders a bordered table for a
// terminal once flushed. Negative values, which signal a backend failure,
// are highlighted unless NO_COLOR is set.
func NewPrettyWriter(w io.Writer) Writer {
	return &prettyWriter{w: w, colorize: os.Getenv("NO_COLOR") == ""}
}

func (p *prettyWriter) WriteHeader(names []string) error {
	p.names = append([]string(nil), names...)
	return nil
}

func (p *prettyWriter) WriteRow(values []int64) error {
	p.rows = append(p.rows, append([]int64(nil), values...))
	return nil
}

func (p *prettyWriter) Flush() error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(p.names...)
	for _, row := range p.rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = strconv.FormatInt(v, 10)
		}
		t.Row(cells...)
	}
	if p.colorize {
		t.BorderStyle(borderStyle).StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(p.rows) && col < len(p.rows[row]) && p.rows[row][col] < 0 {
				return errStyle
			}
			return cellStyle
		})
	} else {
		t.StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
		})
	}
	_, err := io.WriteString(p.w, t.String()+"\n")
	p.rows = nil
	return err
}
