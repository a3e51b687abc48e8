package units

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized = errors.New("unit system not initialized")
	ErrNoFile         = errors.New("units file not found")
	ErrIO             = errors.New("i/o error reading units file")
	ErrSyntax         = errors.New("syntax error")
	ErrUnknown        = errors.New("unknown unit")
	ErrInvalid        = errors.New("invalid unit")
	ErrNotTime        = errors.New("unit is not time-like")
	ErrConvert        = errors.New("units are not convertible")
)

// Error carries one of the sentinel kinds above plus detail.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func syntaxf(format string, args ...any) error {
	return &Error{Kind: ErrSyntax, Msg: fmt.Sprintf(format, args...)}
}

// Status codes, numbered after the udunits UT_E* constants.
const (
	CodeOK             = 0
	CodeNoFile         = -1
	CodeSyntax         = -2
	CodeUnknown        = -3
	CodeIO             = -4
	CodeInvalid        = -5
	CodeNotInitialized = -6
	CodeConvert        = -7
	CodeNotTime        = -10
	CodeOther          = -1000
)

var codes = []struct {
	kind error
	code int
}{
	{ErrNoFile, CodeNoFile},
	{ErrSyntax, CodeSyntax},
	{ErrUnknown, CodeUnknown},
	{ErrIO, CodeIO},
	{ErrInvalid, CodeInvalid},
	{ErrNotInitialized, CodeNotInitialized},
	{ErrConvert, CodeConvert},
	{ErrNotTime, CodeNotTime},
}

// Code maps err to its status code. Errors from outside this package map to
// CodeOther.
func Code(err error) int {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return CodeOther
}
