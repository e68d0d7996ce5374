package errors

import (
	stdErrors "errors"
	"fmt"
)

// Coder is implemented by domain errors that know which code they map to.
type Coder interface {
	ErrorCode() Code
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) ErrorCode() Code {
	return e.Code()
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// From returns the *Error in err's chain. Errors that only implement Coder are
// wrapped with their code; anything else becomes CodeInternal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	var coder Coder
	if stdErrors.As(err, &coder) {
		return Wrap(coder.ErrorCode(), err, err.Error())
	}
	return Wrap(CodeInternal, err, "unexpected error")
}

// CodeOf returns the first code found in the error chain, CodeInternal otherwise.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var coder Coder
	if stdErrors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return CodeInternal
}

// Is reports whether err carries code anywhere in its chain.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether the caller may retry the failed operation later.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(CodeOf(err)).Retryable
}
