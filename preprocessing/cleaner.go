package preprocessing

import (
	"fmt"
	"math"
	"time"

	"github.com/letstravel/prospensity/core/table"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
)

// Column names the cleaner knows about.
const (
	DefaultIDColumn        = "CustomerID"
	PersonsVisitingColumn  = "NumberOfPersonVisiting"
	ChildrenVisitingColumn = "NumberOfChildrenVisiting"
	TotalVisitingColumn    = "TotalPersonVisiting"
	HasChildrenColumn      = "isChildrenVisiting"

	DefaultRareThreshold = 10
	DefaultOtherLabel    = "Other"
)

// Correction rewrites one categorical level into another.
//
// When RequireCanonical is set the rewrite only happens if both From and To occur in
// the column; otherwise it is skipped and logged.
type Correction struct {
	Column           string `yaml:"column" json:"column"`
	From             string `yaml:"from" json:"from"`
	To               string `yaml:"to" json:"to"`
	RequireCanonical bool   `yaml:"require_canonical" json:"require_canonical"`
}

// DefaultCorrections are the known label fixes for the travel CRM export.
func DefaultCorrections() []Correction {
	return []Correction{
		{Column: "Gender", From: "Fe Male", To: "Female"},
		{Column: "MaritalStatus", From: "Single", To: "Unmarried", RequireCanonical: true},
	}
}

// Cleaner turns a raw record table into a cleaned, feature-engineered table:
//
//  1. normalize column names
//  2. drop exact duplicate rows
//  3. drop the identifier column
//  4. split columns into numeric and categorical
//  5. fill missing numeric cells with the median, categorical cells with the mode
//  6. coerce numeric columns to integers
//  7. apply categorical corrections
//  8. collapse rare categorical levels into the catch-all label
//  9. derive TotalPersonVisiting and isChildrenVisiting
//
// The input table is never modified.
type Cleaner struct {
	IDColumn      string
	RareThreshold int
	OtherLabel    string
	Corrections   []Correction

	// Exclude lists columns the categorical steps must leave alone (e.g. the target).
	Exclude []string

	logger log.Logger
}

// NewCleaner creates a cleaner with the default identifier, threshold and corrections.
func NewCleaner() *Cleaner {
	return &Cleaner{
		IDColumn:      DefaultIDColumn,
		RareThreshold: DefaultRareThreshold,
		OtherLabel:    DefaultOtherLabel,
		Corrections:   DefaultCorrections(),
	}
}

// WithIDColumn sets the identifier column dropped in step 3.
func (c *Cleaner) WithIDColumn(name string) *Cleaner {
	c.IDColumn = name
	return c
}

// WithRareThreshold sets the minimum level frequency kept in step 8.
func (c *Cleaner) WithRareThreshold(n int) *Cleaner {
	c.RareThreshold = n
	return c
}

// WithCorrections replaces the correction table.
func (c *Cleaner) WithCorrections(corrections []Correction) *Cleaner {
	c.Corrections = corrections
	return c
}

// WithExclude sets columns excluded from the categorical steps.
func (c *Cleaner) WithExclude(columns ...string) *Cleaner {
	c.Exclude = columns
	return c
}

// WithLogger sets the logger.
func (c *Cleaner) WithLogger(l log.Logger) *Cleaner {
	c.logger = l
	return c
}

func (c *Cleaner) getLogger() log.Logger {
	if c.logger == nil {
		c.logger = log.GetLoggerWithName("preprocessing.cleaner")
	}
	return c.logger.With(log.StageKey, log.StagePreprocess)
}

// Clean runs every step in order and returns the cleaned table. On error nothing is
// returned but the error.
func (c *Cleaner) Clean(raw *table.Table) (out *table.Table, err error) {
	defer perrors.Recover(&err, "Cleaner.Clean")

	logger := c.getLogger()
	start := time.Now()

	if c.RareThreshold < 0 {
		return nil, perrors.NewValidationError("rare_threshold", "must be non-negative", c.RareThreshold)
	}

	t := raw.Clone()
	rows, cols := t.Shape()
	logger.Info("Preprocessing started", log.RowsKey, rows, log.ColumnsKey, cols)

	steps := []struct {
		name string
		fn   func(*table.Table, log.Logger) (*table.Table, error)
	}{
		{"normalize_columns", c.normalizeColumns},
		{"drop_duplicates", c.dropDuplicates},
		{"drop_identifier", c.dropIdentifier},
		{"fill_missing", c.fillMissing},
		{"coerce_integers", c.coerceIntegers},
		{"apply_corrections", c.applyCorrections},
		{"collapse_rare_levels", c.collapseRare},
		{"derive_visiting", c.deriveVisiting},
	}
	for _, step := range steps {
		t, err = step.fn(t, logger)
		if err != nil {
			logger.Error("Preprocessing step failed", err, "step", step.name)
			return nil, err
		}
	}

	rows, cols = t.Shape()
	logger.Info("Preprocessing completed",
		log.RowsKey, rows,
		log.ColumnsKey, cols,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return t, nil
}

// SaveCleaned writes a cleaned table as CSV, creating parent directories.
func (c *Cleaner) SaveCleaned(t *table.Table, path string) error {
	if err := table.SaveCSV(path, t); err != nil {
		c.getLogger().Error("Saving cleaned data failed", err, log.PathKey, path)
		return err
	}
	c.getLogger().Info("Cleaned data saved", log.PathKey, path, log.RowsKey, t.NumRows())
	return nil
}

func (c *Cleaner) excluded(name string) bool {
	for _, e := range c.Exclude {
		if e == name {
			return true
		}
	}
	return false
}

// partition splits column names by declared type, preserving order.
func (c *Cleaner) partition(t *table.Table) (numeric, categorical []string) {
	for i := 0; i < t.NumCols(); i++ {
		col := t.Col(i)
		if col.Kind().IsNumeric() {
			numeric = append(numeric, col.Name())
		} else {
			categorical = append(categorical, col.Name())
		}
	}
	return numeric, categorical
}

func (c *Cleaner) normalizeColumns(t *table.Table, _ log.Logger) (*table.Table, error) {
	return t, t.NormalizeColumnNames()
}

func (c *Cleaner) dropDuplicates(t *table.Table, logger log.Logger) (*table.Table, error) {
	deduped, removed := t.DropDuplicates()
	if removed == 0 {
		logger.Info("No duplicate rows found", log.RowsKey, t.NumRows())
	} else {
		logger.Info("Dropped duplicate rows",
			"before", t.NumRows(),
			"after", deduped.NumRows(),
			"removed", removed,
		)
	}
	return deduped, nil
}

func (c *Cleaner) dropIdentifier(t *table.Table, logger log.Logger) (*table.Table, error) {
	if c.IDColumn == "" || !t.HasColumn(c.IDColumn) {
		logger.Info("Identifier column not present, no column dropped", log.ColumnKey, c.IDColumn)
		return t, nil
	}
	t.Drop(c.IDColumn)
	logger.Info("Dropped identifier column", log.ColumnKey, c.IDColumn)
	return t, nil
}

func (c *Cleaner) fillMissing(t *table.Table, logger log.Logger) (*table.Table, error) {
	numeric, categorical := c.partition(t)

	for _, name := range numeric {
		col, _ := t.Column(name)
		n := col.CountMissing()
		if n == 0 {
			continue
		}
		values := col.NonMissingFloats()
		if len(values) == 0 {
			return nil, perrors.NewValueError("Cleaner.fillMissing", fmt.Sprintf("numeric column %s has no values to impute from", name))
		}
		median := Median(values)
		for i := 0; i < col.Len(); i++ {
			if !col.IsMissing(i) {
				continue
			}
			var err error
			if col.Kind() == table.Int {
				err = col.SetInt(i, int64(math.Trunc(median)))
			} else {
				err = col.SetFloat(i, median)
			}
			if err != nil {
				return nil, err
			}
		}
		logger.Info("Filled missing numeric cells with median", log.ColumnKey, name, "filled", n, "median", median)
	}

	for _, name := range categorical {
		col, _ := t.Column(name)
		n := col.CountMissing()
		if n == 0 {
			continue
		}
		mode, ok := Mode(col.Counts())
		if !ok {
			return nil, perrors.NewValueError("Cleaner.fillMissing", fmt.Sprintf("categorical column %s has no values to impute from", name))
		}
		for i := 0; i < col.Len(); i++ {
			if col.IsMissing(i) {
				if err := col.SetString(i, mode); err != nil {
					return nil, err
				}
			}
		}
		logger.Info("Filled missing categorical cells with mode", log.ColumnKey, name, "filled", n, "mode", mode)
	}
	return t, nil
}

func (c *Cleaner) coerceIntegers(t *table.Table, logger log.Logger) (*table.Table, error) {
	numeric, _ := c.partition(t)
	for _, name := range numeric {
		col, _ := t.Column(name)
		if col.Kind() == table.Int {
			continue
		}
		converted, truncated, err := col.ToInt()
		if err != nil {
			return nil, err
		}
		if err := t.ReplaceColumn(converted); err != nil {
			return nil, err
		}
		if truncated > 0 {
			perrors.Warn(perrors.NewDataConversionWarning(name, "float", "int",
				fmt.Sprintf("%d fractional values truncated", truncated)))
		}
		logger.Debug("Coerced numeric column to integer", log.ColumnKey, name, "truncated", truncated)
	}
	return t, nil
}

func (c *Cleaner) applyCorrections(t *table.Table, logger log.Logger) (*table.Table, error) {
	for _, corr := range c.Corrections {
		col, ok := t.Column(corr.Column)
		if !ok || col.Kind() != table.String || c.excluded(corr.Column) {
			logger.Debug("Correction skipped, column not categorical or absent", log.ColumnKey, corr.Column)
			continue
		}
		counts := col.Counts()
		if counts[corr.From] == 0 {
			continue
		}
		if corr.RequireCanonical && counts[corr.To] == 0 {
			logger.Info("Correction skipped, canonical level absent",
				log.ColumnKey, corr.Column, "from", corr.From, "to", corr.To)
			continue
		}
		replaced := 0
		for i := 0; i < col.Len(); i++ {
			if !col.IsMissing(i) && col.Str(i) == corr.From {
				if err := col.SetString(i, corr.To); err != nil {
					return nil, err
				}
				replaced++
			}
		}
		logger.Info("Applied categorical correction",
			log.ColumnKey, corr.Column, "from", corr.From, "to", corr.To, "replaced", replaced)
	}
	return t, nil
}

func (c *Cleaner) collapseRare(t *table.Table, logger log.Logger) (*table.Table, error) {
	_, categorical := c.partition(t)
	for _, name := range categorical {
		if c.excluded(name) {
			continue
		}
		col, _ := t.Column(name)
		counts := col.Counts()
		rare := make(map[string]bool)
		for level, n := range counts {
			if n < c.RareThreshold && level != c.OtherLabel {
				rare[level] = true
			}
		}
		if len(rare) == 0 {
			continue
		}
		for i := 0; i < col.Len(); i++ {
			if rare[col.Str(i)] {
				if err := col.SetString(i, c.OtherLabel); err != nil {
					return nil, err
				}
			}
		}
		collapsed := make([]string, 0, len(rare))
		for level := range rare {
			collapsed = append(collapsed, level)
		}
		logger.Info("Collapsed rare levels",
			log.ColumnKey, name, "levels", SortedLevels(toCounts(collapsed)), "into", c.OtherLabel)
	}
	return t, nil
}

func toCounts(levels []string) map[string]int {
	m := make(map[string]int, len(levels))
	for _, l := range levels {
		m[l]++
	}
	return m
}

func (c *Cleaner) deriveVisiting(t *table.Table, logger log.Logger) (*table.Table, error) {
	persons, okP := t.Column(PersonsVisitingColumn)
	children, okC := t.Column(ChildrenVisitingColumn)
	if !okP || !okC {
		logger.Debug("Visiting columns absent, no features derived")
		return t, nil
	}
	if persons.Kind() != table.Int || children.Kind() != table.Int {
		return nil, perrors.NewValidationError(PersonsVisitingColumn, "visiting counts must be integer columns",
			persons.Kind().String()+"/"+children.Kind().String())
	}

	n := t.NumRows()
	total := make([]int64, n)
	hasChildren := make([]int64, n)
	for i := 0; i < n; i++ {
		total[i] = persons.Int(i) + children.Int(i)
		if children.Int(i) > 0 {
			hasChildren[i] = 1
		}
	}
	t.Drop(PersonsVisitingColumn, ChildrenVisitingColumn)
	if err := t.AddColumn(table.NewIntColumn(TotalVisitingColumn, total, nil)); err != nil {
		return nil, err
	}
	if err := t.AddColumn(table.NewIntColumn(HasChildrenColumn, hasChildren, nil)); err != nil {
		return nil, err
	}
	logger.Info("Derived visiting features",
		"added", []string{TotalVisitingColumn, HasChildrenColumn},
		"dropped", []string{PersonsVisitingColumn, ChildrenVisitingColumn})
	return t, nil
}
