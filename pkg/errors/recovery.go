package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError は Fit や Transform の内部で発生した panic を回復したエラーです。
// 木の構築や行列演算の奥で起きた範囲外アクセスなどを、スタック付きで呼び出し元へ返します。
type PanicError struct {
	Operation  string      // panic を回復した操作名
	PanicValue interface{} // panic() に渡された値
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// Kind はエラー分類を返します。
func (e *PanicError) Kind() string { return KindPanic }

// String はスタックトレースを含む詳細を返します。
func (e *PanicError) String() string {
	return e.Error() + "\nStack trace:\n" + e.StackTrace
}

// NewPanicError は現在のゴルーチンのスタックを記録した PanicError を作成します。
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		Operation:  operation,
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
	}
}

// Recover は名前付き戻り値 err と組み合わせて defer で使います。
//
//	func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
//	    defer perrors.Recover(&err, "StandardScaler.Fit")
//	    ...
//	}
//
// panic が起きると err に PanicError を設定します。既にエラーが設定されていた場合は
// そのエラーを残したまま panic の情報を付け加えます。
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	if *err != nil {
		*err = Wrapf(*err, "panic in %s: %v", operation, r)
		return
	}
	*err = NewPanicError(operation, r)
}

// SafeExecute は fn を実行し、panic を PanicError に変換して返します。
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
