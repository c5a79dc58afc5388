// Package errors はパイプライン全体のエラーハンドリングと警告システムを提供します。
// すべてのエラー型はcockroachdb/errorsでスタックトレースを付与され、
// Kind() による分類と IsTransient / IsPrecondition による判定をサポートします。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("prospensity-warning: %v\n", w)
	}
)

// SetWarningHandler は警告ハンドラを設定します。
// 学習パイプラインは起動時に構造化ロガーへ転送するハンドラを登録します。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    logger.Warn("warning", "warning", w)
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// Warn は警告を発生させます。
func Warn(w error) {
	warningMutex.Lock()
	handler := warningHandler
	warningMutex.Unlock()

	if handler != nil {
		handler(w)
	}
}

// ===========================================================================
//
//	警告型
//
// ===========================================================================

// DataConversionWarning はデータの型が暗黙的に変換された場合に発生する警告です。
// 例えば、小数値を含む数値列を整数へ切り捨てた場合など。
type DataConversionWarning struct {
	Column   string
	FromType string
	ToType   string
	Reason   string
}

func (w *DataConversionWarning) Error() string {
	return fmt.Sprintf("column %s converted from %s to %s. Reason: %s", w.Column, w.FromType, w.ToType, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DataConversionWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("column", w.Column).
		Str("from_type", w.FromType).
		Str("to_type", w.ToType).
		Str("reason", w.Reason).
		Str("type", "DataConversionWarning")
}

// NewDataConversionWarning は新しいDataConversionWarningを作成します。
func NewDataConversionWarning(column, from, to, reason string) *DataConversionWarning {
	return &DataConversionWarning{Column: column, FromType: from, ToType: to, Reason: reason}
}

// UndefinedMetricWarning は評価指標が計算できない場合に発生する警告です。
// 例えば、適合率(precision)を計算する際に、陽性クラスの予測が一つもなかった場合など。
type UndefinedMetricWarning struct {
	Metric    string
	Condition string
	Result    float64 // この条件で返される値
}

func (w *UndefinedMetricWarning) Error() string {
	return fmt.Sprintf("'%s' is ill-defined and being set to %f due to %s.", w.Metric, w.Result, w.Condition)
}

// NewUndefinedMetricWarning は新しいUndefinedMetricWarningを作成します。
func NewUndefinedMetricWarning(metric, condition string, result float64) *UndefinedMetricWarning {
	return &UndefinedMetricWarning{Metric: metric, Condition: condition, Result: result}
}

// ===========================================================================
//
//	エラー種別
//
// ===========================================================================

// エラー種別の識別子。ログの error.kind フィールドに出力されます。
const (
	KindSourceNotFound = "source_not_found"
	KindEmptySource    = "empty_source"
	KindNotFitted      = "not_fitted"
	KindPersistence    = "persistence"
	KindUpstream       = "upstream"
	KindValidation     = "validation"
	KindValue          = "value"
	KindDimension      = "dimension"
	KindModel          = "model"
	KindNumerical      = "numerical_instability"
	KindPanic          = "panic"
)

// ===========================================================================
//
//	I/O 系エラー型
//
// ===========================================================================

// SourceNotFoundError は生データの所在（ファイルパスやS3オブジェクト）が存在しない場合のエラーです。
type SourceNotFoundError struct {
	Location string
	Err      error
}

func (e *SourceNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prospensity: source not found: %s: %v", e.Location, e.Err)
	}
	return fmt.Sprintf("prospensity: source not found: %s", e.Location)
}

func (e *SourceNotFoundError) Unwrap() error { return e.Err }

// Kind はエラー種別を返します。
func (e *SourceNotFoundError) Kind() string { return KindSourceNotFound }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SourceNotFoundError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("location", e.Location).
		Str("type", "SourceNotFoundError")
}

// NewSourceNotFoundError は新しいSourceNotFoundErrorを作成し、スタックトレースを付与します。
func NewSourceNotFoundError(location string, cause error) error {
	return errors.WithStack(&SourceNotFoundError{Location: location, Err: cause})
}

// EmptySourceError はソースを解析した結果、データ行が0件だった場合のエラーです。
type EmptySourceError struct {
	Location string
}

func (e *EmptySourceError) Error() string {
	return fmt.Sprintf("prospensity: source %s contains no data rows", e.Location)
}

// Kind はエラー種別を返します。
func (e *EmptySourceError) Kind() string { return KindEmptySource }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *EmptySourceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("location", e.Location).
		Str("type", "EmptySourceError")
}

// NewEmptySourceError は新しいEmptySourceErrorを作成し、スタックトレースを付与します。
func NewEmptySourceError(location string) error {
	return errors.WithStack(&EmptySourceError{Location: location})
}

// PersistenceError はアーティファクトやサイドファイルの書き込み・読み込みに失敗した場合のエラーです。
type PersistenceError struct {
	Op   string // "save", "load", "mkdir" など
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("prospensity: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Kind はエラー種別を返します。
func (e *PersistenceError) Kind() string { return KindPersistence }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *PersistenceError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("path", e.Path).
		Str("type", "PersistenceError")
}

// NewPersistenceError は新しいPersistenceErrorを作成し、スタックトレースを付与します。
func NewPersistenceError(op, path string, cause error) error {
	return errors.WithStack(&PersistenceError{Op: op, Path: path, Err: cause})
}

// UpstreamError は推論サービスへのリクエストが失敗した場合のエラーです。
// トランスポートエラーの場合 StatusCode は0になります。
type UpstreamError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prospensity: upstream %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("prospensity: upstream %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Kind はエラー種別を返します。
func (e *UpstreamError) Kind() string { return KindUpstream }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UpstreamError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("url", e.URL).
		Int("status_code", e.StatusCode).
		Str("type", "UpstreamError")
}

// NewUpstreamError は新しいUpstreamErrorを作成し、スタックトレースを付与します。
func NewUpstreamError(url string, statusCode int, body string, cause error) error {
	return errors.WithStack(&UpstreamError{URL: url, StatusCode: statusCode, Body: body, Err: cause})
}

// ===========================================================================
//
//	前提条件系エラー型
//
// ===========================================================================

// NotFittedError はモデルや変換器が未学習の状態で使用された場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("prospensity: %s: this component is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// Kind はエラー種別を返します。
func (e *NotFittedError) Kind() string { return KindNotFitted }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("prospensity: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

// Kind はエラー種別を返します。
func (e *DimensionError) Kind() string { return KindDimension }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError は入力パラメータの検証に失敗した場合のエラーです。
// `ValueError`よりも具体的なバリデーションロジックの失敗を示します。
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("prospensity: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// Kind はエラー種別を返します。
func (e *ValidationError) Kind() string { return KindValidation }

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError は新しいValidationErrorを作成し、スタックトレースを付与します。
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("prospensity: %s: %s", e.Op, e.Message)
}

// Kind はエラー種別を返します。
func (e *ValueError) Kind() string { return KindValue }

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError は学習済みモデルの内部状態に関するエラーです（壊れた木構造など）。
type ModelError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prospensity: %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("prospensity: %s: %s", e.Op, e.Reason)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Kind はエラー種別を返します。
func (e *ModelError) Kind() string { return KindModel }

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, reason string, err error) error {
	modelErr := &ModelError{Op: op, Reason: reason, Err: err}
	return errors.WithStack(modelErr)
}

// NumericalInstabilityError は数値計算が不安定になった場合のエラーです。
// NaN、Inf などを検出します。
type NumericalInstabilityError struct {
	Operation string    // 発生した操作（例: "gradient", "leaf_value"）
	Values    []float64 // 問題のある値
	Iteration int       // 発生したイテレーション番号
}

func (e *NumericalInstabilityError) Error() string {
	valStr := ""
	for i, v := range e.Values {
		if i > 0 {
			valStr += ", "
		}
		if i >= 5 {
			valStr += "..."
			break
		}
		valStr += fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("prospensity: numerical instability detected in %s at iteration %d. Values: [%s]",
		e.Operation, e.Iteration, valStr)
}

// Kind はエラー種別を返します。
func (e *NumericalInstabilityError) Kind() string { return KindNumerical }

// NewNumericalInstabilityError は新しいNumericalInstabilityErrorを作成します。
func NewNumericalInstabilityError(operation string, values []float64, iteration int) error {
	err := &NumericalInstabilityError{
		Operation: operation,
		Values:    values,
		Iteration: iteration,
	}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	分類ヘルパー
//
// ===========================================================================

// IsTransient はI/Oに起因するエラー（ソース欠如、永続化失敗、上流サービス失敗）かどうかを判定します。
// 再実行で解消する可能性があるため、呼び出し側はリトライやユーザーへの再試行案内に使えます。
func IsTransient(err error) bool {
	var (
		notFound    *SourceNotFoundError
		persistence *PersistenceError
		upstream    *UpstreamError
	)
	return errors.As(err, &notFound) || errors.As(err, &persistence) || errors.As(err, &upstream)
}

// IsPrecondition は呼び出し順序や入力値の誤りに起因するエラーかどうかを判定します。
// 同じ入力で再実行しても結果は変わりません。
func IsPrecondition(err error) bool {
	var (
		notFitted  *NotFittedError
		validation *ValidationError
		value      *ValueError
		dimension  *DimensionError
		empty      *EmptySourceError
	)
	return errors.As(err, &notFitted) || errors.As(err, &validation) ||
		errors.As(err, &value) || errors.As(err, &dimension) || errors.As(err, &empty)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")
)
