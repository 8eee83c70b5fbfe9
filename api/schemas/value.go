package schemas

import (
	"fmt"
	"math"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reserved keys that tag a JSON object as a reference to a live object.
const (
	ElementKey = "ELEMENT"
	WindowKey  = "WINDOW"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
	KindElement
	KindWindow
	KindFunction
)

var kindNames = [...]string{"null", "bool", "number", "string", "sequence", "mapping", "element", "window", "function"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Callable is a function handed to an atom by an in-process caller. It never
// crosses the wire; a Function value marshals to null.
type Callable func(args ...interface{}) (interface{}, error)

// Value is a wire value: a tagged union over the JSON shapes exchanged with a
// remote caller plus the two reference variants. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	seq  []Value
	m    map[string]Value
	fn   Callable
}

// -- Constructors --

func Null() Value               { return Value{} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Number(n float64) Value    { return Value{kind: KindNumber, n: n} }
func Int(n int) Value           { return Value{kind: KindNumber, n: float64(n)} }
func String(s string) Value     { return Value{kind: KindString, s: s} }
func ElementRef(h string) Value { return Value{kind: KindElement, s: h} }
func WindowRef(h string) Value  { return Value{kind: KindWindow, s: h} }

// Sequence builds an ordered list value.
func Sequence(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, seq: items}
}

// Mapping builds a keyed value. The map is used as is.
func Mapping(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindMapping, m: fields}
}

// Func wraps an in-process callable.
func Func(fn Callable) Value {
	if fn == nil {
		return Null()
	}
	return Value{kind: KindFunction, fn: fn}
}

// -- Accessors --

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) AsBool() bool      { return v.b }
func (v Value) AsNumber() float64 { return v.n }

// AsString returns the string payload. For references it is the handle.
func (v Value) AsString() string { return v.s }

// Handle returns the handle of an Element or Window reference, or "".
func (v Value) Handle() string {
	if v.kind == KindElement || v.kind == KindWindow {
		return v.s
	}
	return ""
}

// Items returns the members of a Sequence.
func (v Value) Items() []Value { return v.seq }

// Fields returns the entries of a Mapping.
func (v Value) Fields() map[string]Value { return v.m }

// Callable returns the function of a Function value.
func (v Value) Callable() Callable { return v.fn }

// Get returns a Mapping entry.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	f, ok := v.m[key]
	return f, ok
}

// Len is the number of members of a Sequence or Mapping.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return len(v.m)
	}
	return 0
}

// GoString renders a compact debugging form, used by test failure output.
func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindNumber:
		return fmt.Sprintf("%v", v.n)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindElement:
		return fmt.Sprintf("{ELEMENT:%s}", v.s)
	case KindWindow:
		return fmt.Sprintf("{WINDOW:%s}", v.s)
	case KindFunction:
		return "func"
	case KindSequence:
		parts := make([]string, len(v.seq))
		for i, it := range v.seq {
			parts[i] = it.GoString()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case KindMapping:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + v.m[k].GoString()
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
	return "?"
}

// Equal reports deep structural equality. Functions are never equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString, KindElement, KindWindow:
		return v.s == o.s
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// -- JSON --

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromInterface(raw)
	return nil
}

// Interface converts the value into a plain JSON tree
// (nil, bool, float64, string, []interface{}, map[string]interface{}).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return nil
		}
		return v.n
	case KindString:
		return v.s
	case KindElement:
		return map[string]interface{}{ElementKey: v.s}
	case KindWindow:
		return map[string]interface{}{WindowKey: v.s}
	case KindSequence:
		out := make([]interface{}, len(v.seq))
		for i, it := range v.seq {
			out[i] = it.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]interface{}, len(v.m))
		for k, f := range v.m {
			out[k] = f.Interface()
		}
		return out
	}
	return nil
}

// FromInterface converts a plain JSON tree into a Value, recognizing the
// reference tags. Unsupported Go types become Null.
func FromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Int(t)
	case int64:
		return Number(float64(t))
	case string:
		return String(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromInterface(it)
		}
		return Sequence(items...)
	case []string:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = String(it)
		}
		return Sequence(items...)
	case map[string]interface{}:
		if h, ok := t[ElementKey].(string); ok {
			return ElementRef(h)
		}
		if h, ok := t[WindowKey].(string); ok {
			return WindowRef(h)
		}
		fields := make(map[string]Value, len(t))
		for k, f := range t {
			fields[k] = FromInterface(f)
		}
		return Mapping(fields)
	case Callable:
		return Func(t)
	}
	return Null()
}

// ParseValues decodes a JSON array of wire values. Empty input is an empty list.
func ParseValues(data string) ([]Value, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var out []Value
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON array: %w", err)
	}
	return out, nil
}
