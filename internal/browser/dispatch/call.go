// internal/browser/dispatch/call.go
package dispatch

import (
	"math"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/api/schemas"
	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/browser/handles"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

// Call is what an operation sees: the window the command runs against, its
// execution context and the decoded arguments.
type Call struct {
	Command string
	Window  *dom.Window
	Exec    *handles.Context
	Args    []any
	Logger  *zap.Logger
}

// Len is the number of arguments supplied.
func (c *Call) Len() int { return len(c.Args) }

// Arg returns argument i, or nil when it was not supplied.
func (c *Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Present reports whether argument i was supplied and is not null.
func (c *Call) Present(i int) bool { return c.Arg(i) != nil }

func (c *Call) missing(i int) error {
	return errcode.New(errcode.UnknownError, "%s: missing argument %d", c.Command, i)
}

func (c *Call) invalid(i int, want string) error {
	return errcode.New(errcode.UnknownError, "%s: argument %d must be %s, got %T", c.Command, i, want, c.Arg(i))
}

// String returns argument i as a string.
func (c *Call) String(i int) (string, error) {
	if !c.Present(i) {
		return "", c.missing(i)
	}
	s, ok := c.Arg(i).(string)
	if !ok {
		return "", c.invalid(i, "a string")
	}
	return s, nil
}

// Int returns argument i as an integer. Numbers with a fraction are rejected.
func (c *Call) Int(i int) (int, error) {
	if !c.Present(i) {
		return 0, c.missing(i)
	}
	f, ok := c.Arg(i).(float64)
	if !ok {
		return 0, c.invalid(i, "an integer")
	}
	n, ok := Integer(f)
	if !ok {
		return 0, c.invalid(i, "an integer")
	}
	return n, nil
}

// maxExactInt is the largest magnitude a float64 holds without losing integers.
const maxExactInt = 1 << 53

// Integer converts a wire number to an int when it is integral and within the
// range a float64 represents exactly.
func Integer(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > maxExactInt {
		return 0, false
	}
	return int(f), true
}

// Bool returns argument i as a boolean.
func (c *Call) Bool(i int) (bool, error) {
	if !c.Present(i) {
		return false, c.missing(i)
	}
	b, ok := c.Arg(i).(bool)
	if !ok {
		return false, c.invalid(i, "a boolean")
	}
	return b, nil
}

// Element returns argument i as a DOM element.
func (c *Call) Element(i int) (*html.Node, error) {
	if !c.Present(i) {
		return nil, c.missing(i)
	}
	n, ok := c.Arg(i).(*html.Node)
	if !ok || !dom.IsElement(n) {
		return nil, c.invalid(i, "an element")
	}
	return n, nil
}

// OptionalElement returns argument i as an element, or nil when absent.
func (c *Call) OptionalElement(i int) (*html.Node, error) {
	if !c.Present(i) {
		return nil, nil
	}
	return c.Element(i)
}

// WindowAt returns argument i as a window.
func (c *Call) WindowAt(i int) (*dom.Window, error) {
	if !c.Present(i) {
		return nil, c.missing(i)
	}
	w, ok := c.Arg(i).(*dom.Window)
	if !ok {
		return nil, c.invalid(i, "a window")
	}
	return w, nil
}

// Mapping returns argument i as a decoded mapping.
func (c *Call) Mapping(i int) (map[string]any, error) {
	if !c.Present(i) {
		return nil, c.missing(i)
	}
	m, ok := c.Arg(i).(map[string]any)
	if !ok {
		return nil, c.invalid(i, "an object")
	}
	return m, nil
}

// List returns argument i as a decoded sequence; an absent argument is empty.
func (c *Call) List(i int) ([]any, error) {
	if !c.Present(i) {
		return nil, nil
	}
	l, ok := c.Arg(i).([]any)
	if !ok {
		return nil, c.invalid(i, "an array")
	}
	return l, nil
}

// Callable returns argument i as an in-process function.
func (c *Call) Callable(i int) (schemas.Callable, error) {
	if !c.Present(i) {
		return nil, c.missing(i)
	}
	fn, ok := c.Arg(i).(schemas.Callable)
	if !ok {
		return nil, c.invalid(i, "a function")
	}
	return fn, nil
}
