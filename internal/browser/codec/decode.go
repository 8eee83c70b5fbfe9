package codec

import (
	"github.com/xkilldash9x/wdatoms/api/schemas"
)

// Decode converts a wire value into the live value an operation receives:
// references are resolved, sequences become []any, mappings become
// map[string]any, numbers become float64 and callables pass through as is.
// The first handle that fails to resolve aborts decoding with its error.
func Decode(r Resolver, v schemas.Value) (any, error) {
	switch v.Kind() {
	case schemas.KindNull:
		return nil, nil
	case schemas.KindBool:
		return v.AsBool(), nil
	case schemas.KindNumber:
		return v.AsNumber(), nil
	case schemas.KindString:
		return v.AsString(), nil
	case schemas.KindFunction:
		return v.Callable(), nil
	case schemas.KindElement, schemas.KindWindow:
		return r.Resolve(v.Handle())
	case schemas.KindSequence:
		out := make([]any, v.Len())
		for i, it := range v.Items() {
			d, err := Decode(r, it)
			if err != nil {
				return nil, err
			}
			out[i] = d
		}
		return out, nil
	case schemas.KindMapping:
		out := make(map[string]any, v.Len())
		for k, f := range v.Fields() {
			d, err := Decode(r, f)
			if err != nil {
				return nil, err
			}
			out[k] = d
		}
		return out, nil
	}
	return nil, nil
}

// DecodeArgs decodes a command's argument list.
func DecodeArgs(r Resolver, args []schemas.Value) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		d, err := Decode(r, a)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}
