package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/letstravel/prospensity/core/model"
	"github.com/letstravel/prospensity/core/table"
	perrors "github.com/letstravel/prospensity/pkg/errors"
)

var (
	_ model.TableTransformer = (*OneHotEncoder)(nil)
	_ model.ParameterGetter  = (*OneHotEncoder)(nil)
)

// Unknown-level policies for OneHotEncoder.
const (
	HandleUnknownIgnore = "ignore"
	HandleUnknownError  = "error"
)

// OneHotEncoder はカテゴリ列をワンホット表現に展開する
//
// 各列の語彙は学習時の水準を昇順に並べたもの。DropFirst が true の場合、先頭の水準は
// 基準として出力しない（全て0の行がその水準を表す）。未知の水準は HandleUnknown が
// "ignore" のとき全て0のブロックになる。
type OneHotEncoder struct {
	model.StateManager

	// Columns は対象のカテゴリ列
	Columns []string

	// Categories は列ごとの学習済み語彙（昇順）
	Categories [][]string

	// DropFirst は先頭の水準を落とすかどうか
	DropFirst bool

	// HandleUnknown は未知の水準の扱い ("ignore" または "error")
	HandleUnknown string
}

// NewOneHotEncoder は新しいOneHotEncoderを作成する
//
// 使用例:
//
//	enc := preprocessing.NewOneHotEncoder("Gender", "Occupation").WithDropFirst(true)
//	err := enc.Fit(train)
//	X, err := enc.Transform(test)
func NewOneHotEncoder(columns ...string) *OneHotEncoder {
	return &OneHotEncoder{
		Columns:       columns,
		HandleUnknown: HandleUnknownIgnore,
	}
}

// WithDropFirst は先頭水準を落とすかどうかを設定する
func (e *OneHotEncoder) WithDropFirst(drop bool) *OneHotEncoder {
	e.DropFirst = drop
	return e
}

// WithHandleUnknown は未知水準の扱いを設定する
func (e *OneHotEncoder) WithHandleUnknown(policy string) *OneHotEncoder {
	e.HandleUnknown = policy
	return e
}

// Fit は各列の語彙を学習する。欠損セルは語彙に含めない。
func (e *OneHotEncoder) Fit(t *table.Table) (err error) {
	defer perrors.Recover(&err, "OneHotEncoder.Fit")
	e.Reset()

	if t.NumRows() == 0 {
		return perrors.NewModelError("OneHotEncoder.Fit", "empty data", perrors.ErrEmptyData)
	}
	if e.HandleUnknown != HandleUnknownIgnore && e.HandleUnknown != HandleUnknownError {
		return perrors.NewValidationError("handle_unknown", "must be \"ignore\" or \"error\"", e.HandleUnknown)
	}

	cats := make([][]string, len(e.Columns))
	for k, name := range e.Columns {
		col, err := stringColumn(t, name)
		if err != nil {
			return err
		}
		cats[k] = SortedLevels(col.Counts())
	}
	e.Categories = cats
	e.SetDimensions(e.outputWidth(), t.NumRows())
	e.SetFitted()
	return nil
}

func (e *OneHotEncoder) blockWidth(k int) int {
	n := len(e.Categories[k])
	if e.DropFirst && n > 0 {
		n--
	}
	return n
}

func (e *OneHotEncoder) outputWidth() int {
	w := 0
	for k := range e.Categories {
		w += e.blockWidth(k)
	}
	return w
}

// Transform はテーブルをワンホット行列に変換する
func (e *OneHotEncoder) Transform(t *table.Table) (*mat.Dense, error) {
	if err := e.RequireFitted("OneHotEncoder", "Transform"); err != nil {
		return nil, err
	}
	n := t.NumRows()
	width, _ := e.GetDimensions()
	if n == 0 {
		return nil, perrors.NewModelError("OneHotEncoder.Transform", "empty data", perrors.ErrEmptyData)
	}
	if width == 0 {
		return nil, perrors.NewValueError("OneHotEncoder.Transform", "encoder produces no output columns")
	}

	out := mat.NewDense(n, width, nil)
	offset := 0
	for k, name := range e.Columns {
		col, err := stringColumn(t, name)
		if err != nil {
			return nil, err
		}
		index := make(map[string]int, len(e.Categories[k]))
		for pos, level := range e.Categories[k] {
			index[level] = pos
		}
		first := 0
		if e.DropFirst {
			first = 1
		}
		for i := 0; i < n; i++ {
			if col.IsMissing(i) {
				continue
			}
			pos, known := index[col.Str(i)]
			if !known {
				if e.HandleUnknown == HandleUnknownError {
					return nil, perrors.NewValidationError(name, "unknown category", col.Str(i))
				}
				continue
			}
			if pos < first {
				continue
			}
			out.Set(i, offset+pos-first, 1)
		}
		offset += e.blockWidth(k)
	}
	return out, nil
}

// FeatureNames は "列名_水準" 形式の出力列名を返す
func (e *OneHotEncoder) FeatureNames() []string {
	var names []string
	for k, name := range e.Columns {
		levels := e.Categories[k]
		if e.DropFirst && len(levels) > 0 {
			levels = levels[1:]
		}
		for _, level := range levels {
			names = append(names, fmt.Sprintf("%s_%s", name, level))
		}
	}
	return names
}

// GetParams はエンコーダのパラメータを取得する
func (e *OneHotEncoder) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"drop":           e.DropFirst,
		"handle_unknown": e.HandleUnknown,
	}
}

func stringColumn(t *table.Table, name string) (*table.Column, error) {
	col, ok := t.Column(name)
	if !ok {
		return nil, perrors.NewValidationError(name, "column not found", t.Columns())
	}
	if col.Kind() != table.String {
		return nil, perrors.NewValidationError(name, "expected categorical column", col.Kind().String())
	}
	return col, nil
}
