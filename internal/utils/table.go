package utils

import (
	"fmt"
	"strings"
)

// Table renders aligned, box-drawn tables for CLI output.
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow appends a row. Rows whose cell count does not match the headers
// are dropped.
func (t *Table) AddRow(cells ...string) {
	if len(cells) != len(t.headers) {
		return
	}
	t.rows = append(t.rows, cells)
	for i, cell := range cells {
		if len(cell) > t.widths[i] {
			t.widths[i] = len(cell)
		}
	}
}

// String returns the rendered table.
func (t *Table) String() string {
	var sb strings.Builder
	t.border(&sb, "┌", "┬", "┐")
	t.row(&sb, t.headers)
	t.border(&sb, "├", "┼", "┤")
	for _, r := range t.rows {
		t.row(&sb, r)
	}
	t.border(&sb, "└", "┴", "┘")
	return sb.String()
}

func (t *Table) row(sb *strings.Builder, cells []string) {
	sb.WriteString("│")
	for i, cell := range cells {
		sb.WriteString(fmt.Sprintf(" %-*s │", t.widths[i], cell))
	}
	sb.WriteString("\n")
}

func (t *Table) border(sb *strings.Builder, left, mid, right string) {
	sb.WriteString(left)
	for i, w := range t.widths {
		sb.WriteString(strings.Repeat("─", w+2))
		if i < len(t.widths)-1 {
			sb.WriteString(mid)
		}
	}
	sb.WriteString(right)
	sb.WriteString("\n")
}
