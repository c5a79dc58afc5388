package errors

import (
	"math"
)

// CheckNumericalStability は values に NaN または Inf が含まれていれば
// NumericalInstabilityError を返す。
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewNumericalInstabilityError(operation, values, iteration)
		}
	}
	return nil
}

// CheckScalar は単一の値について CheckNumericalStability と同じ検査を行う。
func CheckScalar(operation string, value float64, iteration int) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NewNumericalInstabilityError(operation, []float64{value}, iteration)
	}
	return nil
}

// ClipValue は value を [lo, hi] に収める。
func ClipValue(value, lo, hi float64) float64 {
	return math.Min(math.Max(value, lo), hi)
}

// StabilizeLog は log(max(value, 1e-15)) を返す。
func StabilizeLog(value float64) float64 {
	return math.Log(math.Max(value, 1e-15))
}

// StabilizeExp は指数部を ±700 に制限した exp を返す。
func StabilizeExp(value float64) float64 {
	const limit = 700.0
	switch {
	case value > limit:
		return math.Exp(limit)
	case value < -limit:
		return 0
	}
	return math.Exp(value)
}
