// Package model_selection provides seeded train/test partitioning of tables.
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/letstravel/prospensity/core/table"
	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// DefaultTestSize and DefaultRandomState are the split defaults used by training.
const (
	DefaultTestSize    = 0.2
	DefaultRandomState = 42
)

// Split holds the row indices of each partition.
type Split struct {
	TrainIndices []int
	TestIndices  []int
}

// ShuffleSplit computes a seeded shuffle split of n rows. The test partition gets
// ceil(n*testSize) rows and the train partition the rest. Identical n, testSize and seed
// always produce the same split. Indices within each partition are in shuffled order.
func ShuffleSplit(n int, testSize float64, seed uint64) (*Split, error) {
	if n < 2 {
		return nil, perrors.NewValueError("ShuffleSplit",
			"at least 2 rows are required to split into train and test")
	}
	if testSize <= 0 || testSize >= 1 || math.IsNaN(testSize) {
		return nil, perrors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}

	nTest := int(math.Ceil(float64(n) * testSize))
	nTrain := n - nTest
	if nTrain == 0 {
		return nil, perrors.NewValueError("ShuffleSplit",
			"test_size leaves the train partition empty")
	}

	r := rand.New(rand.NewPCG(seed, seed))
	perm := r.Perm(n)

	return &Split{
		TrainIndices: append([]int(nil), perm[nTest:]...),
		TestIndices:  append([]int(nil), perm[:nTest]...),
	}, nil
}

// Sorted returns a copy of the split with both index lists in ascending order.
func (s *Split) Sorted() *Split {
	train := append([]int(nil), s.TrainIndices...)
	test := append([]int(nil), s.TestIndices...)
	sort.Ints(train)
	sort.Ints(test)
	return &Split{TrainIndices: train, TestIndices: test}
}

// TrainTestSplit partitions the rows of t into disjoint train and test tables whose
// union is t.
//
// Example:
//
//	train, test, err := model_selection.TrainTestSplit(cleaned, 0.2, 42)
func TrainTestSplit(t *table.Table, testSize float64, seed uint64) (train, test *table.Table, err error) {
	s, err := ShuffleSplit(t.NumRows(), testSize, seed)
	if err != nil {
		return nil, nil, err
	}
	return t.SelectRows(s.TrainIndices), t.SelectRows(s.TestIndices), nil
}
