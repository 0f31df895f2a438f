// Package table renders aligned text tables that may contain ANSI colours.
package table

import (
	"fmt"
	"io"
	"strings"
)

// Column describes one column. Format runs on a cell after its width is
// measured, so it may add escapes but must not change the visible text.
type Column struct {
	Header     string
	Blank      string // shown for empty cells, "-" when unset
	Format     func(string) string
	MinWidth   int
	AlignRight bool
}

type Table struct {
	columns []Column
	rows    [][]string
	widths  []int
}

func New(cols ...Column) *Table {
	t := &Table{
		columns: cols,
		widths:  make([]int, len(cols)),
	}
	for i := range t.columns {
		if t.columns[i].Blank == "" {
			t.columns[i].Blank = "-"
		}
		t.widths[i] = max(t.columns[i].MinWidth, VisibleLength(t.columns[i].Header))
	}
	return t
}

// AddRow appends a row; missing and extra cells are blanked and dropped
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(cells) && cells[i] != "" {
			row[i] = cells[i]
		} else {
			row[i] = t.columns[i].Blank
		}
		t.widths[i] = max(t.widths[i], VisibleLength(row[i]))
	}
	t.rows = append(t.rows, row)
}

func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the header, a dashed rule and every row
func (t *Table) Render(w io.Writer) error {
	header := make([]string, len(t.columns))
	rule := make([]string, len(t.columns))
	for i, col := range t.columns {
		header[i] = t.pad(i, col.Header)
		rule[i] = strings.Repeat("-", t.widths[i])
	}
	if err := t.line(w, header); err != nil {
		return err
	}
	if err := t.line(w, rule); err != nil {
		return err
	}

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			padded := t.pad(i, cell)
			if f := t.columns[i].Format; f != nil && cell != t.columns[i].Blank {
				padded = strings.Replace(padded, cell, f(cell), 1)
			}
			cells[i] = padded
		}
		if err := t.line(w, cells); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) line(w io.Writer, cells []string) error {
	_, err := fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	return err
}

func (t *Table) pad(i int, s string) string {
	n := t.widths[i] - VisibleLength(s)
	if n <= 0 {
		return s
	}
	if t.columns[i].AlignRight {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}

// VisibleLength counts the runes of s outside SGR escape sequences
func VisibleLength(s string) int {
	length := 0
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		default:
			length++
		}
	}
	return length
}
