// internal/browser/jsexec/bindings.go
package jsexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/api/schemas"
	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
)

// Function is a script function handed back to Go. It encodes as its source.
type Function struct {
	source string
}

// FunctionString returns the function's source text.
func (f *Function) FunctionString() string { return f.source }

// bridge binds one window's document into one VM. Wrappers are kept in an
// identity map both ways so a node always maps to the same JS object and
// back to the same *html.Node.
type bridge struct {
	vm     *goja.Runtime
	win    *dom.Window
	doc    *html.Node
	logger *zap.Logger

	wrappers map[*html.Node]*goja.Object
	nodes    map[*goja.Object]*html.Node
}

func newBridge(win *dom.Window, logger *zap.Logger) *bridge {
	b := &bridge{
		vm:       goja.New(),
		win:      win,
		doc:      win.Document(),
		logger:   logger,
		wrappers: make(map[*html.Node]*goja.Object),
		nodes:    make(map[*goja.Object]*html.Node),
	}
	b.install()
	return b
}

func (b *bridge) throw(format string, args ...any) {
	panic(b.vm.NewGoError(fmt.Errorf(format, args...)))
}

func (b *bridge) install() {
	global := b.vm.GlobalObject()
	_ = global.Set("window", global)
	_ = global.Set("name", b.win.Name())

	location := b.vm.NewObject()
	_ = location.Set("href", b.win.URL())
	_ = location.Set("origin", b.win.Origin())
	_ = global.Set("location", location)

	document := b.vm.NewObject()
	_ = document.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return b.query(b.doc, call.Argument(0).String(), false)
	})
	_ = document.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return b.query(b.doc, call.Argument(0).String(), true)
	})
	_ = document.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		n, err := dom.Find(b.doc, dom.ByID, call.Argument(0).String())
		if err != nil {
			b.throw("getElementById: %v", err)
		}
		return b.wrap(n)
	})
	b.accessor(document, "body", func() goja.Value { return b.wrap(dom.Body(b.doc)) }, nil)
	b.accessor(document, "documentElement", func() goja.Value {
		for c := b.doc.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				return b.wrap(c)
			}
		}
		return goja.Null()
	}, nil)
	b.accessor(document, "activeElement", func() goja.Value { return b.wrap(b.win.ActiveElement()) }, nil)
	_ = global.Set("document", document)
}

// accessor defines a property with a getter and an optional setter.
func (b *bridge) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	setter := goja.Undefined()
	if set != nil {
		setter = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	if err := obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		b.logger.Error("Failed to define property.", zap.String("property", name), zap.Error(err))
	}
}

func (b *bridge) query(root *html.Node, selector string, all bool) goja.Value {
	nodes, err := dom.FindAll(root, dom.ByCSS, selector)
	if err != nil {
		b.throw("'%s' is not a valid selector: %v", selector, err)
	}
	if !all {
		if len(nodes) == 0 {
			return goja.Null()
		}
		return b.wrap(nodes[0])
	}
	values := make([]any, len(nodes))
	for i, n := range nodes {
		values[i] = b.wrap(n)
	}
	return b.vm.NewArray(values...)
}

// wrap returns the JS object for an element, creating it on first sight.
func (b *bridge) wrap(n *html.Node) goja.Value {
	if n == nil || n.Type != html.ElementNode {
		return goja.Null()
	}
	if obj, ok := b.wrappers[n]; ok {
		return obj
	}

	obj := b.vm.NewObject()
	b.wrappers[n] = obj
	b.nodes[obj] = n

	_ = obj.Set("nodeType", 1)
	_ = obj.Set("tagName", strings.ToUpper(n.Data))
	_ = obj.Set("nodeName", strings.ToUpper(n.Data))

	b.accessor(obj, "id",
		func() goja.Value { v, _ := dom.Attr(n, "id"); return b.vm.ToValue(v) },
		func(v goja.Value) { dom.SetAttr(n, "id", v.String()) })
	b.accessor(obj, "className",
		func() goja.Value { v, _ := dom.Attr(n, "class"); return b.vm.ToValue(v) },
		func(v goja.Value) { dom.SetAttr(n, "class", v.String()) })
	b.accessor(obj, "value",
		func() goja.Value { return b.vm.ToValue(dom.Value(n)) },
		func(v goja.Value) {
			if dom.TagName(n) == "textarea" {
				b.setText(n, v.String())
				return
			}
			dom.SetAttr(n, "value", v.String())
		})
	b.accessor(obj, "checked",
		func() goja.Value { return b.vm.ToValue(dom.IsSelected(n)) },
		func(v goja.Value) { dom.SetSelected(n, v.ToBoolean()) })
	b.accessor(obj, "textContent",
		func() goja.Value { return b.vm.ToValue(dom.TextContent(n)) },
		func(v goja.Value) { b.setText(n, v.String()) })
	b.accessor(obj, "parentNode", func() goja.Value { return b.wrap(n.Parent) }, nil)
	b.accessor(obj, "children", func() goja.Value {
		var kids []any
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				kids = append(kids, b.wrap(c))
			}
		}
		return b.vm.NewArray(kids...)
	}, nil)

	_ = obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		v, ok := dom.Attr(n, call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return b.vm.ToValue(v)
	})
	_ = obj.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		dom.SetAttr(n, call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = obj.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		dom.RemoveAttr(n, call.Argument(0).String())
		return goja.Undefined()
	})
	_ = obj.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		return b.vm.ToValue(dom.HasAttr(n, call.Argument(0).String()))
	})
	_ = obj.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return b.query(n, call.Argument(0).String(), false)
	})
	_ = obj.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return b.query(n, call.Argument(0).String(), true)
	})
	_ = obj.Set("remove", func(goja.FunctionCall) goja.Value {
		dom.Remove(n)
		return goja.Undefined()
	})
	_ = obj.Set("focus", func(goja.FunctionCall) goja.Value {
		b.win.Focus(n)
		return goja.Undefined()
	})
	return obj
}

func (b *bridge) setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// toJS converts a decoded argument into a script value.
func (b *bridge) toJS(v any) goja.Value {
	switch t := v.(type) {
	case nil:
		return goja.Null()
	case *html.Node:
		return b.wrap(t)
	case *dom.Window:
		if t == b.win {
			return b.vm.GlobalObject()
		}
		return goja.Null()
	case []any:
		items := make([]any, len(t))
		for i, it := range t {
			items[i] = b.toJS(it)
		}
		return b.vm.NewArray(items...)
	case map[string]any:
		obj := b.vm.NewObject()
		for k, f := range t {
			_ = obj.Set(k, b.toJS(f))
		}
		return obj
	case schemas.Callable:
		return b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			args := make([]interface{}, len(call.Arguments))
			for i, a := range call.Arguments {
				arg, err := b.export(context.Background(), a)
				if err != nil {
					panic(b.vm.NewGoError(err))
				}
				args[i] = arg
			}
			out, err := t(args...)
			if err != nil {
				panic(b.vm.NewGoError(err))
			}
			return b.toJS(out)
		})
	}
	return b.vm.ToValue(v)
}
