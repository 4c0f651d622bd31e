// Copyright 2023 CeresDB Project Authors. Licensed under Apache-2.0.

package coderr

import (
	"fmt"

	"github.com/pkg/errors"
)

var _ CodeError = &codeError{code: 0, desc: "", cause: nil}

// CodeError is an error with code.
type CodeError interface {
	error
	Code() Code
	// WithCausef should generate a new CodeError instance with the provided cause details.
	WithCausef(format string, a ...any) CodeError
	// WithCause should generate a new CodeError instance with the provided cause details.
	WithCause(cause error) CodeError
}

// Is checks whether the cause of `err` is the kind of error specified by the `expectCode`.
// Returns false if the cause of `err` is not CodeError.
func Is(err error, expectCode Code) bool {
	code, b := GetCauseCode(err)
	if b && code == expectCode {
		return true
	}

	return false
}

// GetCauseCode walks the error chain and returns the code of the first CodeError found.
func GetCauseCode(err error) (Code, bool) {
	if err == nil {
		return Invalid, false
	}

	var cerr CodeError
	if errors.As(err, &cerr) {
		return cerr.Code(), true
	}

	cause := errors.Cause(err)
	if cerr, ok := cause.(CodeError); ok {
		return cerr.Code(), true
	}
	return Invalid, false
}

// NewCodeError creates a base CodeError definition.
// The CodeError defined by this method should be used as a sentinel and its
// WithCause/WithCausef methods produce the concrete errors.
func NewCodeError(code Code, desc string) CodeError {
	return &codeError{
		code:  code,
		desc:  desc,
		cause: nil,
	}
}

type codeError struct {
	code  Code
	desc  string
	cause error
}

func (e *codeError) Error() string {
	desc := fmt.Sprintf("(#%d)%s", e.code, e.desc)
	if e.cause != nil {
		desc = fmt.Sprintf("%s, cause:%v", desc, e.cause)
	}
	return desc
}

func (e *codeError) Code() Code {
	return e.code
}

// Is reports whether target is the sentinel this error was derived from.
func (e *codeError) Is(target error) bool {
	t, ok := target.(*codeError)
	if !ok {
		return false
	}
	return t.code == e.code && t.desc == e.desc
}

// Unwrap exposes the cause for errors.Is/As.
func (e *codeError) Unwrap() error {
	return e.cause
}

func (e *codeError) WithCausef(format string, a ...any) CodeError {
	errMsg := fmt.Sprintf(format, a...)
	causeWithStack := errors.WithStack(errors.New(errMsg))
	return &codeError{
		code:  e.code,
		desc:  e.desc,
		cause: causeWithStack,
	}
}

func (e *codeError) WithCause(cause error) CodeError {
	causeWithStack := errors.WithStack(cause)
	return &codeError{
		code:  e.code,
		desc:  e.desc,
		cause: causeWithStack,
	}
}
