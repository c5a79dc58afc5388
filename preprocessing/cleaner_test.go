package preprocessing

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/letstravel/prospensity/core/table"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
)

const rawTravelCSV = `CustomerID,Age,Gender,MaritalStatus,MonthlyIncome,NumberOfPersonVisiting,NumberOfChildrenVisiting,ProdTaken
200000,41,Female,Single,20993.5,3,1,1
200001,49,Male,Divorced,,3,2,0
200002,,Fe Male,Unmarried,17090,3,,1
200003,33,Female,Single,17909,2,1,0
200004,,Male,Married,18468,2,0,0
200005,32,Fe Male,Married,18068,3,1,0
`

func readTable(t *testing.T, csv string) *table.Table {
	t.Helper()
	tbl, err := table.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	return tbl
}

func newTestCleaner() (*Cleaner, *log.TestLogger) {
	logger, _ := log.NewTestLogger(log.LevelDebug)
	c := NewCleaner().WithRareThreshold(0).WithExclude("ProdTaken").WithLogger(logger)
	return c, logger
}

func captureWarnings(t *testing.T) func() []error {
	t.Helper()
	var mu sync.Mutex
	var got []error
	perrors.SetWarningHandler(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, w)
	})
	t.Cleanup(func() { perrors.SetWarningHandler(nil) })
	return func() []error {
		mu.Lock()
		defer mu.Unlock()
		return append([]error(nil), got...)
	}
}

func levels(t *testing.T, tbl *table.Table, name string) map[string]int {
	t.Helper()
	col, ok := tbl.Column(name)
	require.True(t, ok, name)
	return col.Counts()
}

func TestCleanerCorrectsGenderLabels(t *testing.T) {
	c, _ := newTestCleaner()
	out, err := c.Clean(readTable(t, rawTravelCSV))
	require.NoError(t, err)

	gender := levels(t, out, "Gender")
	assert.Equal(t, map[string]int{"Female": 4, "Male": 2}, gender)
	assert.NotContains(t, gender, "Fe Male")
}

func TestCleanerMaritalStatusCorrectionNeedsCanonicalLevel(t *testing.T) {
	c, _ := newTestCleaner()
	out, err := c.Clean(readTable(t, rawTravelCSV))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Unmarried": 3, "Divorced": 1, "Married": 2}, levels(t, out, "MaritalStatus"))

	noCanonical := strings.ReplaceAll(rawTravelCSV, "Unmarried", "Married")
	c, logger := newTestCleaner()
	out, err = c.Clean(readTable(t, noCanonical))
	require.NoError(t, err)
	assert.Equal(t, 2, levels(t, out, "MaritalStatus")["Single"])
	assert.True(t, logger.ContainsMessage("Correction skipped, canonical level absent"))
}

func TestCleanerWithoutIdentifierColumn(t *testing.T) {
	noID := `Age,Gender,ProdTaken
30,Male,0
40,Female,1
`
	c, logger := newTestCleaner()
	out, err := c.Clean(readTable(t, noID))
	require.NoError(t, err)
	assert.Equal(t, []string{"Age", "Gender", "ProdTaken"}, out.Columns())
	assert.True(t, logger.ContainsMessage("Identifier column not present, no column dropped"))
	assert.True(t, logger.ContainsMessage("No duplicate rows found"))
}

func TestCleanerCollapsesRareLevels(t *testing.T) {
	n := 55
	occ := make([]string, n)
	age := make([]int64, n)
	for i := range occ {
		age[i] = int64(i)
		switch {
		case i < 50:
			occ[i] = "X"
		case i < 53:
			occ[i] = "Y"
		default:
			occ[i] = "Z"
		}
	}
	raw := mustTable(t,
		table.NewIntColumn("Age", age, nil),
		table.NewStringColumn("Occupation", occ, nil),
	)

	out, err := NewCleaner().WithRareThreshold(10).Clean(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"X": 50, "Other": 5}, levels(t, out, "Occupation"))

	for level, count := range levels(t, out, "Occupation") {
		if level != DefaultOtherLabel {
			assert.GreaterOrEqual(t, count, 10, level)
		}
	}
}

func TestCleanerExcludedColumnsKeepRareLevels(t *testing.T) {
	raw := mustTable(t,
		table.NewIntColumn("Age", []int64{1, 2, 3}, nil),
		table.NewStringColumn("Label", []string{"yes", "no", "no"}, nil),
	)
	out, err := NewCleaner().WithExclude("Label").Clean(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"yes": 1, "no": 2}, levels(t, out, "Label"))
}

func TestCleanerFillsAndCoerces(t *testing.T) {
	warnings := captureWarnings(t)
	c, _ := newTestCleaner()
	out, err := c.Clean(readTable(t, rawTravelCSV))
	require.NoError(t, err)

	assert.Equal(t, 0, out.CountMissing())
	for _, name := range out.Columns() {
		col, _ := out.Column(name)
		assert.NotEqual(t, table.Float, col.Kind(), "%s should be integer or categorical", name)
	}

	age, _ := out.Column("Age")
	// median of 41, 49, 33, 32 is 37
	assert.Equal(t, int64(37), age.Int(2))
	assert.Equal(t, int64(37), age.Int(4))

	income, _ := out.Column("MonthlyIncome")
	assert.Equal(t, int64(20993), income.Int(0))
	assert.Equal(t, int64(18068), income.Int(1))

	var conv *perrors.DataConversionWarning
	found := false
	for _, w := range warnings() {
		if perrors.As(w, &conv) && conv.Column == "MonthlyIncome" {
			found = true
		}
	}
	assert.True(t, found, "truncating MonthlyIncome should warn")
}

func TestCleanerDerivesVisitingColumns(t *testing.T) {
	c, _ := newTestCleaner()
	out, err := c.Clean(readTable(t, rawTravelCSV))
	require.NoError(t, err)

	assert.False(t, out.HasColumn(PersonsVisitingColumn))
	assert.False(t, out.HasColumn(ChildrenVisitingColumn))
	assert.False(t, out.HasColumn(DefaultIDColumn))

	total, ok := out.Column(TotalVisitingColumn)
	require.True(t, ok)
	kids, ok := out.Column(HasChildrenColumn)
	require.True(t, ok)

	// children median of 1, 2, 1, 0, 1 is 1
	wantTotal := []int64{4, 5, 4, 3, 2, 4}
	wantKids := []int64{1, 1, 1, 1, 0, 1}
	for i := 0; i < out.NumRows(); i++ {
		assert.Equal(t, wantTotal[i], total.Int(i), "row %d", i)
		assert.Equal(t, wantKids[i], kids.Int(i), "row %d", i)
		assert.Contains(t, []int64{0, 1}, kids.Int(i))
	}
}

func TestCleanerDropsDuplicatesAndLogs(t *testing.T) {
	dup := rawTravelCSV + "200001,49,Male,Divorced,,3,2,0\n"
	c, logger := newTestCleaner()
	out, err := c.Clean(readTable(t, dup))
	require.NoError(t, err)
	assert.Equal(t, 6, out.NumRows())
	assert.True(t, logger.ContainsMessage("Dropped duplicate rows"))
	assert.True(t, logger.ContainsField(log.StageKey, log.StagePreprocess))
}

func TestCleanerIsIdempotent(t *testing.T) {
	c, _ := newTestCleaner()
	once, err := c.Clean(readTable(t, rawTravelCSV))
	require.NoError(t, err)
	twice, err := c.Clean(once)
	require.NoError(t, err)

	assert.Equal(t, once.Columns(), twice.Columns())
	require.Equal(t, once.NumRows(), twice.NumRows())
	for i := 0; i < once.NumRows(); i++ {
		assert.Equal(t, once.Row(i), twice.Row(i), "row %d", i)
	}
}

func TestCleanerSecondPassDropsCorrectedDuplicates(t *testing.T) {
	c, _ := newTestCleaner()
	raw := readTable(t, "CustomerID,ProdTaken,Age,Gender\n1,0,30,Female\n2,0,30,Fe Male\n3,1,40,Male\n")

	once, err := c.Clean(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, once.NumRows())

	// dedupe runs before corrections, so the corrected row only matches on a second pass
	twice, err := c.Clean(once)
	require.NoError(t, err)
	assert.Equal(t, 2, twice.NumRows())
}

func TestCleanerDoesNotModifyInput(t *testing.T) {
	raw := readTable(t, rawTravelCSV)
	before := raw.String()
	c, _ := newTestCleaner()
	_, err := c.Clean(raw)
	require.NoError(t, err)
	assert.Equal(t, before, raw.String())
	assert.True(t, raw.HasColumn(DefaultIDColumn))
}

func TestCleanerErrors(t *testing.T) {
	allMissing := mustTable(t,
		table.NewStringColumn("Gender", []string{"", ""}, []bool{true, true}),
		table.NewIntColumn("Age", []int64{1, 2}, nil),
	)
	_, err := NewCleaner().Clean(allMissing)
	var ve *perrors.ValueError
	assert.ErrorAs(t, err, &ve)

	_, err = NewCleaner().WithRareThreshold(-1).Clean(allMissing)
	var vErr *perrors.ValidationError
	assert.ErrorAs(t, err, &vErr)

	clash := readTable(t, "A B,AB\n1,2\n")
	_, err = NewCleaner().Clean(clash)
	assert.Error(t, err)
}

func TestSaveCleaned(t *testing.T) {
	c, _ := newTestCleaner()
	out, err := c.Clean(readTable(t, rawTravelCSV))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "processed", "cleaned.csv")
	require.NoError(t, c.SaveCleaned(out, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	back, err := table.ReadCSV(f)
	require.NoError(t, err)
	assert.Equal(t, out.Columns(), back.Columns())
	assert.Equal(t, out.NumRows(), back.NumRows())
}
