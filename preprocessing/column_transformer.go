package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/letstravel/prospensity/core/model"
	"github.com/letstravel/prospensity/core/table"
	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
)

var _ model.TableTransformer = (*ColumnTransformer)(nil)

// ColumnTransformer maps a table to a design matrix column-wise: categorical columns are
// one-hot encoded, numeric columns standardized, and any other numeric column of the
// fitting table is passed through unchanged. Output order is categorical blocks, then
// numeric, then passthrough.
//
// Once fitted it holds only captured statistics and vocabularies and is never modified
// by Transform, so the same value can be shared by training, evaluation and serving,
// and serialized with gob on its own.
type ColumnTransformer struct {
	model.StateManager

	Categorical []string
	Numeric     []string
	Passthrough []string

	Encoder *OneHotEncoder
	Scaler  *StandardScaler

	logger log.Logger
}

// NewColumnTransformer creates a transformer for the given categorical and numeric
// columns with a drop-first, ignore-unknown encoder and a default scaler.
func NewColumnTransformer(categorical, numeric []string) *ColumnTransformer {
	return &ColumnTransformer{
		Categorical: append([]string(nil), categorical...),
		Numeric:     append([]string(nil), numeric...),
		Encoder: NewOneHotEncoder(categorical...).
			WithDropFirst(true).
			WithHandleUnknown(HandleUnknownIgnore),
		Scaler: NewStandardScalerDefault(),
	}
}

// WithScaler replaces the numeric scaler.
func (ct *ColumnTransformer) WithScaler(s *StandardScaler) *ColumnTransformer {
	ct.Scaler = s
	return ct
}

// WithLogger sets the logger used during Fit.
func (ct *ColumnTransformer) WithLogger(l log.Logger) *ColumnTransformer {
	ct.logger = l
	return ct
}

func (ct *ColumnTransformer) getLogger() log.Logger {
	if ct.logger == nil {
		ct.logger = log.GetLoggerWithName("preprocessing.column_transformer")
	}
	return ct.logger
}

// Fit captures vocabularies and scaling statistics from t. Columns of t that are in
// neither list become passthrough columns; they must be numeric.
func (ct *ColumnTransformer) Fit(t *table.Table) (err error) {
	defer perrors.Recover(&err, "ColumnTransformer.Fit")
	ct.Reset()

	if t.NumRows() == 0 {
		return perrors.NewModelError("ColumnTransformer.Fit", "empty data", perrors.ErrEmptyData)
	}

	listed := make(map[string]bool, len(ct.Categorical)+len(ct.Numeric))
	for _, c := range ct.Categorical {
		listed[c] = true
	}
	for _, c := range ct.Numeric {
		if listed[c] {
			return perrors.NewValidationError(c, "column listed as both categorical and numeric", c)
		}
		listed[c] = true
	}

	ct.Passthrough = nil
	for _, name := range t.Columns() {
		if listed[name] {
			continue
		}
		col, _ := t.Column(name)
		if !col.Kind().IsNumeric() {
			return perrors.NewValidationError(name, "unlisted column must be numeric to pass through", col.Kind().String())
		}
		ct.Passthrough = append(ct.Passthrough, name)
	}

	if len(ct.Categorical) > 0 {
		if err := ct.Encoder.Fit(t); err != nil {
			return err
		}
	}
	if len(ct.Numeric) > 0 {
		num, err := numericMatrix(t, ct.Numeric)
		if err != nil {
			return err
		}
		if err := ct.Scaler.Fit(num); err != nil {
			return err
		}
	}

	width := len(ct.Numeric) + len(ct.Passthrough)
	if len(ct.Categorical) > 0 {
		w, _ := ct.Encoder.GetDimensions()
		width += w
	}
	if width == 0 {
		return perrors.NewValueError("ColumnTransformer.Fit", "no output features")
	}
	ct.SetDimensions(width, t.NumRows())
	ct.SetFitted()

	ct.getLogger().Debug("ColumnTransformer fitted",
		log.OperationKey, log.OperationFit,
		"categorical", len(ct.Categorical),
		"numeric", len(ct.Numeric),
		"passthrough", len(ct.Passthrough),
		log.FeaturesKey, width,
	)
	return nil
}

// Transform applies the captured parameters to t. t must contain every fitted column;
// extra columns are ignored. Missing numeric cells are rejected.
func (ct *ColumnTransformer) Transform(t *table.Table) (*mat.Dense, error) {
	if err := ct.RequireFitted("ColumnTransformer", "Transform"); err != nil {
		return nil, err
	}
	n := t.NumRows()
	if n == 0 {
		return nil, perrors.NewModelError("ColumnTransformer.Transform", "empty data", perrors.ErrEmptyData)
	}
	width, _ := ct.GetDimensions()
	out := mat.NewDense(n, width, nil)
	offset := 0

	if len(ct.Categorical) > 0 {
		if w, _ := ct.Encoder.GetDimensions(); w > 0 {
			enc, err := ct.Encoder.Transform(t)
			if err != nil {
				return nil, err
			}
			out.Slice(0, n, offset, offset+w).(*mat.Dense).Copy(enc)
			offset += w
		}
	}

	if len(ct.Numeric) > 0 {
		num, err := numericMatrix(t, ct.Numeric)
		if err != nil {
			return nil, err
		}
		scaled, err := ct.Scaler.Transform(num)
		if err != nil {
			return nil, err
		}
		w := len(ct.Numeric)
		out.Slice(0, n, offset, offset+w).(*mat.Dense).Copy(scaled)
		offset += w
	}

	if len(ct.Passthrough) > 0 {
		pass, err := numericMatrix(t, ct.Passthrough)
		if err != nil {
			return nil, err
		}
		w := len(ct.Passthrough)
		out.Slice(0, n, offset, offset+w).(*mat.Dense).Copy(pass)
	}

	return out, nil
}

// FitTransform fits on t and transforms it.
func (ct *ColumnTransformer) FitTransform(t *table.Table) (*mat.Dense, error) {
	if err := ct.Fit(t); err != nil {
		return nil, err
	}
	return ct.Transform(t)
}

// FeatureNames returns the output column names in output order.
func (ct *ColumnTransformer) FeatureNames() []string {
	var names []string
	if len(ct.Categorical) > 0 {
		names = append(names, ct.Encoder.FeatureNames()...)
	}
	names = append(names, ct.Numeric...)
	names = append(names, ct.Passthrough...)
	return names
}

// InputColumns returns every column Transform reads.
func (ct *ColumnTransformer) InputColumns() []string {
	cols := append([]string(nil), ct.Categorical...)
	cols = append(cols, ct.Numeric...)
	return append(cols, ct.Passthrough...)
}

func (ct *ColumnTransformer) String() string {
	return fmt.Sprintf("ColumnTransformer(cat=%v, num=%v, remainder=%v)", ct.Categorical, ct.Numeric, ct.Passthrough)
}

func numericMatrix(t *table.Table, names []string) (*mat.Dense, error) {
	n := t.NumRows()
	m := mat.NewDense(n, len(names), nil)
	for j, name := range names {
		col, ok := t.Column(name)
		if !ok {
			return nil, perrors.NewValidationError(name, "column not found", t.Columns())
		}
		if !col.Kind().IsNumeric() {
			return nil, perrors.NewValidationError(name, "expected numeric column", col.Kind().String())
		}
		for i := 0; i < n; i++ {
			if col.IsMissing(i) {
				return nil, perrors.NewValueError("ColumnTransformer.Transform",
					fmt.Sprintf("missing value in numeric column %s at row %d", name, i))
			}
			m.Set(i, j, col.Float(i))
		}
	}
	return m, nil
}
