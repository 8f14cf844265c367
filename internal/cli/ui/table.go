// Package ui renders command output: tables, sections, status messages
// and progress indicators.
package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// paint returns a color that is disabled when noColor is set
func paint(noColor bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if noColor {
		c.DisableColor()
	}
	return c
}

// Table renders rows under bold headers with aligned columns
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// NewTable creates a new table with the given headers
func NewTable(w io.Writer, noColor bool, headers ...string) *Table {
	return &Table{
		writer:  w,
		headers: headers,
		noColor: noColor,
	}
}

// AddRow adds a row; missing cells render empty and extra cells are dropped
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Render renders the table to the writer
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = width(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], width(cell))
		}
	}

	bold := paint(t.noColor, color.Bold, color.FgCyan)
	gray := paint(t.noColor, color.FgHiBlack)

	cells := make([]string, len(t.headers))
	for i, header := range t.headers {
		cells[i] = bold.Sprint(padRight(header, widths[i]))
	}
	fmt.Fprintln(t.writer, strings.TrimRight(strings.Join(cells, "  "), " "))

	for i, w := range widths {
		cells[i] = gray.Sprint(strings.Repeat("─", w))
	}
	fmt.Fprintln(t.writer, strings.Join(cells, "  "))

	for _, row := range t.rows {
		for i, cell := range row {
			cells[i] = padRight(cell, widths[i])
		}
		fmt.Fprintln(t.writer, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func width(s string) int {
	return utf8.RuneCountInString(s)
}

// padRight pads a string with spaces on the right to reach the target width
func padRight(s string, w int) string {
	if n := width(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}

// KeyValueTable renders aligned "key: value" lines
type KeyValueTable struct {
	writer  io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValueTable creates a new key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, noColor: noColor}
}

// AddRow adds a key-value pair to the table
func (t *KeyValueTable) AddRow(key, value string) {
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Render renders the key-value table
func (t *KeyValueTable) Render() {
	keyWidth := 0
	for _, key := range t.keys {
		keyWidth = max(keyWidth, width(key)+1)
	}

	cyan := paint(t.noColor, color.FgCyan)
	for i, key := range t.keys {
		cyan.Fprint(t.writer, padRight(key+":", keyWidth))
		fmt.Fprintf(t.writer, " %s\n", t.values[i])
	}
}

// Section renders a bold title followed by indented lines
type Section struct {
	writer  io.Writer
	title   string
	lines   []string
	noColor bool
}

// NewSection creates a new section
func NewSection(w io.Writer, title string, noColor bool) *Section {
	return &Section{writer: w, title: title, noColor: noColor}
}

// AddLine adds a line to the section content
func (s *Section) AddLine(line string) {
	s.lines = append(s.lines, line)
}

// Render renders the section followed by a blank line
func (s *Section) Render() {
	paint(s.noColor, color.Bold, color.FgCyan).Fprintln(s.writer, s.title)
	for _, line := range s.lines {
		fmt.Fprintf(s.writer, "  %s\n", line)
	}
	fmt.Fprintln(s.writer)
}

// Header renders a styled title underlined by a divider
func Header(w io.Writer, title string, noColor bool) {
	paint(noColor, color.Bold, color.FgCyan).Fprintln(w, title)
	paint(noColor, color.FgHiBlack).Fprintln(w, strings.Repeat("─", width(title)))
}
