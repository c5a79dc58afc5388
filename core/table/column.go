package table

import (
	"fmt"
	"math"
	"strconv"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// Kind is the declared type of a column. It is fixed when the column is created.
type Kind int

const (
	// Int columns hold int64 values.
	Int Kind = iota
	// Float columns hold float64 values.
	Float
	// String columns hold categorical levels.
	String
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether k is Int or Float.
func (k Kind) IsNumeric() bool {
	return k == Int || k == Float
}

// Column is a named, typed vector where every cell may be missing.
type Column struct {
	name    string
	kind    Kind
	ints    []int64
	floats  []float64
	strs    []string
	missing []bool
}

// NewIntColumn creates an Int column. missing may be nil.
func NewIntColumn(name string, values []int64, missing []bool) *Column {
	return &Column{name: name, kind: Int, ints: values, missing: normMissing(missing, len(values))}
}

// NewFloatColumn creates a Float column. NaN values are recorded as missing.
func NewFloatColumn(name string, values []float64, missing []bool) *Column {
	m := normMissing(missing, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			m[i] = true
		}
	}
	return &Column{name: name, kind: Float, floats: values, missing: m}
}

// NewStringColumn creates a categorical column. missing may be nil.
func NewStringColumn(name string, values []string, missing []bool) *Column {
	return &Column{name: name, kind: String, strs: values, missing: normMissing(missing, len(values))}
}

func normMissing(missing []bool, n int) []bool {
	out := make([]bool, n)
	copy(out, missing)
	return out
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Kind returns the declared column type.
func (c *Column) Kind() Kind { return c.kind }

// Len returns the number of cells.
func (c *Column) Len() int { return len(c.missing) }

// IsMissing reports whether cell i is missing.
func (c *Column) IsMissing(i int) bool { return c.missing[i] }

// CountMissing returns the number of missing cells.
func (c *Column) CountMissing() int {
	n := 0
	for _, m := range c.missing {
		if m {
			n++
		}
	}
	return n
}

// Int returns cell i of an Int column.
func (c *Column) Int(i int) int64 {
	if c.kind != Int {
		panic(fmt.Sprintf("table: Int() on %s column %q", c.kind, c.name))
	}
	return c.ints[i]
}

// Float returns cell i of a numeric column as float64. Missing cells read as NaN.
func (c *Column) Float(i int) float64 {
	if c.missing[i] {
		return math.NaN()
	}
	switch c.kind {
	case Int:
		return float64(c.ints[i])
	case Float:
		return c.floats[i]
	default:
		panic(fmt.Sprintf("table: Float() on %s column %q", c.kind, c.name))
	}
}

// Str returns cell i of a String column.
func (c *Column) Str(i int) string {
	if c.kind != String {
		panic(fmt.Sprintf("table: Str() on %s column %q", c.kind, c.name))
	}
	return c.strs[i]
}

// SetInt writes an Int cell and clears its missing flag.
func (c *Column) SetInt(i int, v int64) error {
	if c.kind != Int {
		return c.kindError("int", v)
	}
	c.ints[i] = v
	c.missing[i] = false
	return nil
}

// SetFloat writes a Float cell and clears its missing flag.
func (c *Column) SetFloat(i int, v float64) error {
	if c.kind != Float {
		return c.kindError("float", v)
	}
	c.floats[i] = v
	c.missing[i] = math.IsNaN(v)
	return nil
}

// SetString writes a String cell and clears its missing flag.
func (c *Column) SetString(i int, v string) error {
	if c.kind != String {
		return c.kindError("string", v)
	}
	c.strs[i] = v
	c.missing[i] = false
	return nil
}

func (c *Column) kindError(want string, v interface{}) error {
	return perrors.NewValidationError(c.name,
		fmt.Sprintf("cannot write %s value into %s column", want, c.kind), v)
}

// ValueString renders cell i the way it is written to CSV. Missing cells render empty.
func (c *Column) ValueString(i int) string {
	if c.missing[i] {
		return ""
	}
	switch c.kind {
	case Int:
		return strconv.FormatInt(c.ints[i], 10)
	case Float:
		return strconv.FormatFloat(c.floats[i], 'g', -1, 64)
	default:
		return c.strs[i]
	}
}

// Clone returns a deep copy.
func (c *Column) Clone() *Column {
	out := &Column{name: c.name, kind: c.kind, missing: append([]bool(nil), c.missing...)}
	switch c.kind {
	case Int:
		out.ints = append([]int64(nil), c.ints...)
	case Float:
		out.floats = append([]float64(nil), c.floats...)
	default:
		out.strs = append([]string(nil), c.strs...)
	}
	return out
}

// withName returns a shallow copy under a new name sharing the cells.
func (c *Column) withName(name string) *Column {
	cp := *c
	cp.name = name
	return &cp
}

// Select returns a new column holding the cells at idx, in order.
func (c *Column) Select(idx []int) *Column {
	out := &Column{name: c.name, kind: c.kind, missing: make([]bool, len(idx))}
	switch c.kind {
	case Int:
		out.ints = make([]int64, len(idx))
	case Float:
		out.floats = make([]float64, len(idx))
	default:
		out.strs = make([]string, len(idx))
	}
	for j, i := range idx {
		out.missing[j] = c.missing[i]
		switch c.kind {
		case Int:
			out.ints[j] = c.ints[i]
		case Float:
			out.floats[j] = c.floats[i]
		default:
			out.strs[j] = c.strs[i]
		}
	}
	return out
}

// ToInt converts a numeric column to Int, truncating toward zero. It returns the new
// column and how many cells had a fractional part. Missing cells stay missing.
func (c *Column) ToInt() (*Column, int, error) {
	switch c.kind {
	case Int:
		return c.Clone(), 0, nil
	case Float:
	default:
		return nil, 0, perrors.NewValidationError(c.name, "cannot convert categorical column to int", c.kind.String())
	}
	vals := make([]int64, len(c.floats))
	truncated := 0
	for i, v := range c.floats {
		if c.missing[i] {
			continue
		}
		t := math.Trunc(v)
		if t != v {
			truncated++
		}
		vals[i] = int64(t)
	}
	return NewIntColumn(c.name, vals, c.missing), truncated, nil
}

// Counts returns the occurrence count of every non-missing level of a String column.
func (c *Column) Counts() map[string]int {
	counts := make(map[string]int)
	if c.kind != String {
		return counts
	}
	for i, s := range c.strs {
		if !c.missing[i] {
			counts[s]++
		}
	}
	return counts
}

// NonMissingFloats returns the non-missing cells of a numeric column.
func (c *Column) NonMissingFloats() []float64 {
	out := make([]float64, 0, len(c.missing))
	for i := range c.missing {
		if !c.missing[i] {
			out = append(out, c.Float(i))
		}
	}
	return out
}
