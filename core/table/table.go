// Package table provides the in-memory tabular value passed between pipeline stages.
//
// A Table is an ordered set of equally long, typed columns. Column types are decided once
// at the ingestion boundary (see ReadCSV) and never change implicitly afterwards: writing
// an incompatible value returns a ValidationError instead of coercing.
package table

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// Table is an ordered collection of named, typed columns.
type Table struct {
	cols  []*Column
	index map[string]int
	nrows int
}

// New builds a table from columns of equal length with unique names.
func New(cols ...*Column) (*Table, error) {
	t := &Table{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.nrows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) { return t.nrows, len(t.cols) }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.name
	}
	return names
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// Col returns the i-th column.
func (t *Table) Col(i int) *Column { return t.cols[i] }

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// AddColumn appends a column. The first column of an empty table fixes the row count.
func (t *Table) AddColumn(c *Column) error {
	if _, dup := t.index[c.name]; dup {
		return perrors.NewValidationError("column", "duplicate column name", c.name)
	}
	if len(t.cols) == 0 && t.nrows == 0 {
		t.nrows = c.Len()
	}
	if c.Len() != t.nrows {
		return perrors.NewDimensionError("Table.AddColumn("+c.name+")", t.nrows, c.Len(), 0)
	}
	t.index[c.name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// ReplaceColumn swaps the column with the same name, keeping its position.
func (t *Table) ReplaceColumn(c *Column) error {
	i, ok := t.index[c.name]
	if !ok {
		return perrors.NewValidationError("column", "no such column", c.name)
	}
	if c.Len() != t.nrows {
		return perrors.NewDimensionError("Table.ReplaceColumn("+c.name+")", t.nrows, c.Len(), 0)
	}
	t.cols[i] = c
	return nil
}

// Drop removes the named columns that exist and returns the names actually removed.
func (t *Table) Drop(names ...string) []string {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var removed []string
	kept := t.cols[:0:0]
	for _, c := range t.cols {
		if drop[c.name] {
			removed = append(removed, c.name)
			continue
		}
		kept = append(kept, c)
	}
	t.cols = kept
	t.reindex()
	return removed
}

// Rename changes a column name.
func (t *Table) Rename(from, to string) error {
	i, ok := t.index[from]
	if !ok {
		return perrors.NewValidationError("column", "no such column", from)
	}
	if from == to {
		return nil
	}
	if _, dup := t.index[to]; dup {
		return perrors.NewValidationError("column", "duplicate column name", to)
	}
	t.cols[i] = t.cols[i].withName(to)
	t.reindex()
	return nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.cols))
	for i, c := range t.cols {
		t.index[c.name] = i
	}
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{cols: make([]*Column, len(t.cols)), nrows: t.nrows}
	for i, c := range t.cols {
		out.cols[i] = c.Clone()
	}
	out.reindex()
	return out
}

// SelectRows returns a new table holding the rows at idx, in order.
func (t *Table) SelectRows(idx []int) *Table {
	out := &Table{cols: make([]*Column, len(t.cols)), nrows: len(idx)}
	for i, c := range t.cols {
		out.cols[i] = c.Select(idx)
	}
	out.reindex()
	return out
}

// Select returns a new table with only the named columns, in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := &Table{index: make(map[string]int, len(names)), nrows: t.nrows}
	for _, n := range names {
		c, ok := t.Column(n)
		if !ok {
			return nil, perrors.NewValidationError("column", "no such column", n)
		}
		if err := out.AddColumn(c.Clone()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// rowKey renders row i so that two rows share a key iff every cell is equal,
// missing cells included.
func (t *Table) rowKey(i int, sb *strings.Builder) string {
	sb.Reset()
	for j, c := range t.cols {
		if j > 0 {
			sb.WriteByte(0x1f)
		}
		if c.missing[i] {
			sb.WriteString("\x00")
			continue
		}
		sb.WriteString(c.ValueString(i))
	}
	return sb.String()
}

// DropDuplicates returns a table without exact duplicate rows, keeping the first
// occurrence, and the number of rows removed.
func (t *Table) DropDuplicates() (*Table, int) {
	seen := make(map[uint64][]string, t.nrows)
	keep := make([]int, 0, t.nrows)
	var sb strings.Builder
	for i := 0; i < t.nrows; i++ {
		key := t.rowKey(i, &sb)
		h := xxhash.Sum64String(key)
		dup := false
		for _, k := range seen[h] {
			if k == key {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[h] = append(seen[h], key)
		keep = append(keep, i)
	}
	return t.SelectRows(keep), t.nrows - len(keep)
}

// CountMissing returns the number of missing cells across all columns.
func (t *Table) CountMissing() int {
	n := 0
	for _, c := range t.cols {
		n += c.CountMissing()
	}
	return n
}

// Row renders row i as strings, in column order.
func (t *Table) Row(i int) []string {
	row := make([]string, len(t.cols))
	for j, c := range t.cols {
		row[j] = c.ValueString(i)
	}
	return row
}

func (t *Table) String() string {
	return fmt.Sprintf("Table(%d rows x %d columns)", t.nrows, len(t.cols))
}

// NormalizeColumnNames trims column names and removes embedded spaces.
// It fails if two columns collapse onto the same name.
func (t *Table) NormalizeColumnNames() error {
	for _, name := range t.Columns() {
		norm := strings.ReplaceAll(strings.TrimSpace(name), " ", "")
		if norm == name {
			continue
		}
		if err := t.Rename(name, norm); err != nil {
			return err
		}
	}
	return nil
}
