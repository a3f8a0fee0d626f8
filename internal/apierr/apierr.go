package apierr

import (
	"errors"
	"fmt"
)

// Kind — класс ошибки брокерского API. От класса зависит реакция движка:
// transient — пропустить тик и попробовать позже,
// business  — пропустить конкретный вход, продолжать работать,
// fatal     — HALT, нужен оператор.
type Kind int

const (
	KindTransient Kind = iota
	KindBusiness
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindBusiness:
		return "business"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error — классифицированная ошибка API.
type Error struct {
	Kind Kind
	Code string // код брокера, если был
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func Transient(err error, format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Business(code string, format string, args ...any) *Error {
	return &Error{Kind: KindBusiness, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func Fatal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindFatal, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Известные business-коды.
const (
	CodeInsufficientFunds = "insufficient_funds"
	CodeSymbolHalted      = "symbol_halted"
	CodeNotFound          = "not_found"
)

// KindOf вытаскивает класс из цепочки. Неклассифицированное считаем
// transient: хуже зря подождать тик, чем зря остановить бота.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindTransient
}

func IsFatal(err error) bool     { return KindOf(err) == KindFatal }
func IsBusiness(err error) bool  { return KindOf(err) == KindBusiness }
func IsTransient(err error) bool { return KindOf(err) == KindTransient }

// CodeOf — business-код, если есть.
func CodeOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
