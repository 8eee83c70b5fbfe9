// internal/errcode/errcode.go
package errcode

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Code is a stable numeric status reported in every result envelope.
// Values are part of the wire contract and must never be renumbered.
type Code int

const (
	Success               Code = 0
	NoSuchElement         Code = 7
	NoSuchFrame           Code = 8
	UnknownCommand        Code = 9
	StaleElementReference Code = 10
	ElementNotVisible     Code = 11
	InvalidElementState   Code = 12
	UnknownError          Code = 13
	ElementNotSelectable  Code = 15
	JavaScriptError       Code = 17
	XPathLookup           Code = 19
	NoSuchWindow          Code = 23
	InvalidCookieDomain   Code = 24
	UnableToSetCookie     Code = 25
	ModalDialogOpened     Code = 26
	NoModalDialogOpen     Code = 27
	ScriptTimeout         Code = 28
	InvalidSelector       Code = 32
	SqlDatabase           Code = 33
	MoveTargetOutOfBounds Code = 34
)

var names = map[Code]string{
	Success:               "Success",
	NoSuchElement:         "NoSuchElementError",
	NoSuchFrame:           "NoSuchFrameError",
	UnknownCommand:        "UnknownCommandError",
	StaleElementReference: "StaleElementReferenceError",
	ElementNotVisible:     "ElementNotVisibleError",
	InvalidElementState:   "InvalidElementStateError",
	UnknownError:          "UnknownError",
	ElementNotSelectable:  "ElementNotSelectableError",
	JavaScriptError:       "JavaScriptError",
	XPathLookup:           "XPathLookupError",
	NoSuchWindow:          "NoSuchWindowError",
	InvalidCookieDomain:   "InvalidCookieDomainError",
	UnableToSetCookie:     "UnableToSetCookieError",
	ModalDialogOpened:     "ModalDialogOpenedError",
	NoModalDialogOpen:     "NoModalDialogOpenError",
	ScriptTimeout:         "ScriptTimeoutError",
	InvalidSelector:       "InvalidSelectorError",
	SqlDatabase:           "SqlDatabaseError",
	MoveTargetOutOfBounds: "MoveTargetOutOfBoundsError",
}

var byName = func() map[string]Code {
	m := make(map[string]Code, len(names))
	for c, n := range names {
		m[n] = c
	}
	return m
}()

// String returns the symbolic name of the code. Unrecognized codes are
// reported as "UnknownError".
func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return names[UnknownError]
}

// Known reports whether c is part of the taxonomy.
func (c Code) Known() bool {
	_, ok := names[c]
	return ok
}

// Lookup returns the code registered under a symbolic name.
func Lookup(name string) (Code, bool) {
	c, ok := byName[name]
	return c, ok
}

// All returns every code in the taxonomy in ascending order.
func All() []Code {
	codes := make([]Code, 0, len(names))
	for c := range names {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Error is a failure classified with a taxonomy code. Atoms return these so the
// dispatcher can report a precise status instead of UnknownError.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, &errcode.Error{Code: errcode.NoSuchElement}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a classified error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. When format is empty the wrapped
// error's text becomes the message.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	msg := ""
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	} else if err != nil {
		msg = err.Error()
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// FromError classifies any error into the taxonomy. A typed *Error anywhere in
// the chain wins; deadline expiry becomes ScriptTimeout; the rest is UnknownError.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		if !typed.Code.Known() || typed.Code == Success {
			return &Error{Code: UnknownError, Message: typed.Error(), Err: err}
		}
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: ScriptTimeout, Message: err.Error(), Err: err}
	}
	return &Error{Code: UnknownError, Message: err.Error(), Err: err}
}

// CodeOf is shorthand for FromError(err).Code, returning Success for nil.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	return FromError(err).Code
}
