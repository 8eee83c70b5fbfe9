package jsexec

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dop251/goja"

	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

// maxDepth bounds conversion of deeply nested script values.
const maxDepth = 32

// converter turns script values back into Go values. path holds the objects
// currently being expanded so a cycle is caught on its first revisit.
type converter struct {
	b    *bridge
	ctx  context.Context
	path map[*goja.Object]struct{}
}

// export converts v into something the result encoder accepts: wrapped nodes
// become *html.Node again, the global object becomes the window, functions
// become *Function. Cyclic values fail with a JavaScriptError, and conversion
// stops as soon as ctx ends.
func (b *bridge) export(ctx context.Context, v goja.Value) (result any, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		// Getters run script, which may throw or be interrupted.
		switch x := r.(type) {
		case *goja.InterruptedError:
			err = fmt.Errorf("script interrupted: %w", ctx.Err())
		case *goja.Exception:
			err = errcode.Wrap(errcode.JavaScriptError, x, "%s", x.Value().String())
		default:
			if ctx.Err() != nil {
				err = fmt.Errorf("script interrupted: %w", ctx.Err())
				break
			}
			if e, ok := x.(error); ok {
				err = errcode.Wrap(errcode.JavaScriptError, e, "%v", e)
				break
			}
			panic(r)
		}
		result = nil
	}()

	c := &converter{b: b, ctx: ctx, path: make(map[*goja.Object]struct{})}
	return c.convert(v, 0)
}

func (c *converter) convert(v goja.Value, depth int) (any, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, fmt.Errorf("script interrupted: %w", err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) || depth > maxDepth {
		return nil, nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export(), nil
	}
	b := c.b
	if n, ok := b.nodes[obj]; ok {
		return n, nil
	}
	if obj == b.vm.GlobalObject() {
		return b.win, nil
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return &Function{source: obj.String()}, nil
	}
	if p, ok := obj.Export().(*goja.Promise); ok {
		return p, nil
	}

	if _, seen := c.path[obj]; seen {
		return nil, errcode.New(errcode.JavaScriptError, "cyclic object value")
	}
	c.path[obj] = struct{}{}
	defer delete(c.path, obj)

	if obj.ClassName() == "Array" {
		length := obj.Get("length").ToInteger()
		items := make([]any, 0, min(length, 1024))
		for i := int64(0); i < length; i++ {
			item, err := c.convert(obj.Get(strconv.FormatInt(i, 10)), depth+1)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	}

	if e, ok := obj.Export().(error); ok {
		return e.Error(), nil
	}
	fields := make(map[string]any)
	for _, k := range obj.Keys() {
		field, err := c.convert(obj.Get(k), depth+1)
		if err != nil {
			return nil, err
		}
		fields[k] = field
	}
	return fields, nil
}
