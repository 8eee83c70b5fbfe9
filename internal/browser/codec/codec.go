// Package codec converts between live command values and wire values. The
// encoder replaces live objects with handles minted in an execution context;
// the decoder resolves them back.
package codec

import (
	"math"
	"reflect"
	"runtime"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/api/schemas"
	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/browser/handles"
)

// Minter hands out handles for live objects.
type Minter interface {
	Mint(obj any) (string, error)
}

// Resolver turns handles back into live objects.
type Resolver interface {
	Resolve(handle string) (any, error)
}

var _ Minter = (*handles.Context)(nil)
var _ Resolver = (*handles.Context)(nil)

// Function is implemented by values that behave as functions but are not Go
// funcs, such as script functions. They follow the same encoding rules.
type Function interface {
	FunctionString() string
}

// Encode converts a command result into a wire value. It never fails: shapes
// it cannot represent degrade to null, functions inside mappings are dropped,
// and functions anywhere else become their string form.
func Encode(m Minter, v any) schemas.Value {
	return encode(m, v)
}

func encode(m Minter, v any) schemas.Value {
	switch t := v.(type) {
	case nil:
		return schemas.Null()
	case schemas.Value:
		return encodeValue(m, t)
	case *html.Node:
		if t == nil || (t.Type != html.ElementNode && t.Type != html.DocumentNode) {
			return schemas.Null()
		}
		return reference(m, t, schemas.ElementRef)
	case *dom.Window:
		if t == nil {
			return schemas.Null()
		}
		return reference(m, t, schemas.WindowRef)
	case bool:
		return schemas.Bool(t)
	case string:
		return schemas.String(t)
	case schemas.Callable:
		return schemas.String(FunctionString(t))
	case Function:
		return schemas.String(t.FunctionString())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return number(rv.Float())
	case reflect.Bool:
		return schemas.Bool(rv.Bool())
	case reflect.String:
		return schemas.String(rv.String())
	case reflect.Func:
		if rv.IsNil() {
			return schemas.Null()
		}
		return schemas.String(FunctionString(v))
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return schemas.Null()
		}
		items := make([]schemas.Value, rv.Len())
		for i := range items {
			items[i] = encode(m, rv.Index(i).Interface())
		}
		return schemas.Sequence(items...)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return schemas.Null()
		}
		if rv.IsNil() {
			return schemas.Null()
		}
		fields := make(map[string]schemas.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			val := iter.Value()
			if isFunction(val) {
				continue
			}
			fields[iter.Key().String()] = encode(m, val.Interface())
		}
		return schemas.Mapping(fields)
	}
	return schemas.Null()
}

// encodeValue applies the function rules to a value that is already on the
// wire side. References pass through untouched.
func encodeValue(m Minter, v schemas.Value) schemas.Value {
	switch v.Kind() {
	case schemas.KindNumber:
		return number(v.AsNumber())
	case schemas.KindFunction:
		return schemas.String(FunctionString(v.Callable()))
	case schemas.KindSequence:
		items := make([]schemas.Value, v.Len())
		for i, it := range v.Items() {
			items[i] = encodeValue(m, it)
		}
		return schemas.Sequence(items...)
	case schemas.KindMapping:
		fields := make(map[string]schemas.Value, v.Len())
		for k, f := range v.Fields() {
			if f.Kind() == schemas.KindFunction {
				continue
			}
			fields[k] = encodeValue(m, f)
		}
		return schemas.Mapping(fields)
	}
	return v
}

func reference(m Minter, obj any, wrap func(string) schemas.Value) schemas.Value {
	if m == nil {
		return schemas.Null()
	}
	h, err := m.Mint(obj)
	if err != nil {
		return schemas.Null()
	}
	return wrap(h)
}

func isFunction(v reflect.Value) bool {
	for v.Kind() == reflect.Interface && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() == reflect.Func {
		return true
	}
	if v.CanInterface() {
		if _, ok := v.Interface().(Function); ok {
			return true
		}
	}
	if v.Kind() == reflect.Struct && v.Type() == reflect.TypeOf(schemas.Value{}) {
		return v.Interface().(schemas.Value).Kind() == schemas.KindFunction
	}
	return false
}

// FunctionString is the string form of a function value: "function" followed
// by the name the runtime knows it by.
func FunctionString(fn any) string {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return "function"
	}
	name := ""
	if f := runtime.FuncForPC(rv.Pointer()); f != nil {
		name = f.Name()
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
	}
	if name == "" {
		return "function"
	}
	return "function " + name
}

// number degrades NaN and the infinities to null, which JSON cannot carry.
func number(f float64) schemas.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return schemas.Null()
	}
	return schemas.Number(f)
}
