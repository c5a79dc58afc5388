package table

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// missingTokens are cell values read as missing.
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
}

// ReadCSV parses CSV with a header row and infers each column's type from its
// non-missing cells: Int if every cell parses as an integer, Float if every cell parses
// as a number, String otherwise. A header-only input yields a table with zero rows.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, perrors.Wrap(err, "reading CSV")
	}
	if len(records) == 0 {
		return &Table{index: map[string]int{}}, nil
	}

	headers := records[0]
	dataRows := records[1:]

	t := &Table{index: make(map[string]int, len(headers)), nrows: len(dataRows)}
	for j, header := range headers {
		cells := make([]string, len(dataRows))
		for i, row := range dataRows {
			if j < len(row) {
				cells[i] = strings.TrimSpace(row[j])
			}
		}
		col, err := columnFromStrings(header, cells)
		if err != nil {
			return nil, perrors.Wrapf(err, "creating column %s", header)
		}
		if err := t.AddColumn(col); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func columnFromStrings(name string, data []string) (*Column, error) {
	missing := make([]bool, len(data))
	for i, v := range data {
		missing[i] = missingTokens[v]
	}

	switch inferKind(data, missing) {
	case Int:
		vals := make([]int64, len(data))
		for i, v := range data {
			if missing[i] {
				continue
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, err
			}
			vals[i] = n
		}
		return NewIntColumn(name, vals, missing), nil
	case Float:
		vals := make([]float64, len(data))
		for i, v := range data {
			if missing[i] {
				continue
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, err
			}
			vals[i] = f
		}
		return NewFloatColumn(name, vals, missing), nil
	default:
		vals := make([]string, len(data))
		for i, v := range data {
			if !missing[i] {
				vals[i] = v
			}
		}
		return NewStringColumn(name, vals, missing), nil
	}
}

// inferKind determines the most specific type for the given cells.
func inferKind(data []string, missing []bool) Kind {
	canBeInt := true
	canBeFloat := true
	hasValue := false

	for i, value := range data {
		if missing[i] {
			continue
		}
		hasValue = true
		if canBeInt {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				canBeInt = false
			}
		}
		if canBeFloat {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				canBeFloat = false
			}
		}
		if !canBeFloat {
			break
		}
	}

	switch {
	case !hasValue:
		return Float // all cells missing
	case canBeInt:
		return Int
	case canBeFloat:
		return Float
	default:
		return String
	}
}

// WriteCSV writes the table with a header row. Missing cells are written empty.
func WriteCSV(w io.Writer, t *Table) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(t.Columns()); err != nil {
		return perrors.Wrap(err, "writing headers")
	}
	for i := 0; i < t.NumRows(); i++ {
		if err := csvWriter.Write(t.Row(i)); err != nil {
			return perrors.Wrapf(err, "writing row %d", i)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// SaveCSV writes the table to path, creating parent directories. Failures are
// returned as PersistenceError.
func SaveCSV(path string, t *Table) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return perrors.NewPersistenceError("mkdir", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return perrors.NewPersistenceError("create", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = perrors.NewPersistenceError("close", path, cerr)
		}
	}()
	if err := WriteCSV(f, t); err != nil {
		return perrors.NewPersistenceError("write", path, err)
	}
	return nil
}
