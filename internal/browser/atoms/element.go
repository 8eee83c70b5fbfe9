// internal/browser/atoms/element.go
package atoms

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/internal/browser/dispatch"
	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

const (
	msgNotVisible     = "Element is not currently visible and may not be manipulated"
	msgNotEditable    = "Element must be user-editable in order to clear it."
	msgNotInteractive = "Element is not currently interactable and may not be manipulated"
	msgNotSelectable  = "Element is not selectable"
	msgNotInForm      = "Element was not in a form, so could not submit."
	msgNoElement      = "Unable to locate element"
)

func activeElement(_ context.Context, call *dispatch.Call) (any, error) {
	return call.Window.ActiveElement(), nil
}

func clearElement(_ context.Context, call *dispatch.Call) (any, error) {
	el, err := call.Element(0)
	if err != nil {
		return nil, err
	}
	if !dom.IsDisplayed(el) {
		return nil, errcode.New(errcode.ElementNotVisible, msgNotVisible)
	}
	if !dom.IsEditable(el) {
		return nil, errcode.New(errcode.InvalidElementState, msgNotEditable)
	}
	dom.ClearValue(el)
	call.Window.Focus(el)
	return nil, nil
}

// click activates an element the way a pointer click would: it focuses the
// element, flips check boxes, selects radios and options, and submits the
// owning form when the element is a submit control.
func click(_ context.Context, call *dispatch.Call) (any, error) {
	el, err := call.Element(0)
	if err != nil {
		return nil, err
	}
	if !dom.IsDisplayed(el) {
		return nil, errcode.New(errcode.ElementNotVisible, msgNotVisible)
	}
	call.Window.Focus(el)
	if !dom.IsEnabled(el) {
		// Clicking a disabled control is legal and does nothing.
		return nil, nil
	}

	if dom.IsSelectable(el) {
		typ, _ := dom.Attr(el, "type")
		checkbox := strings.EqualFold(typ, "checkbox")
		dom.SetSelected(el, !(checkbox && dom.IsSelected(el)))
		return nil, nil
	}
	if dom.IsSubmitControl(el) {
		if form := dom.FindForm(el); form != nil {
			call.Window.RecordSubmission(dom.NewSubmission(form))
		}
	}
	return nil, nil
}

// locator accepts {strategy: target} or the W3C {using, value} form.
func locator(call *dispatch.Call) (strategy, target string, err error) {
	m, err := call.Mapping(0)
	if err != nil {
		return "", "", err
	}
	if using, ok := m["using"].(string); ok {
		value, ok := m["value"].(string)
		if !ok {
			return "", "", errcode.New(errcode.InvalidSelector, "Locator value must be a string")
		}
		return using, value, nil
	}
	if len(m) != 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", "", errcode.New(errcode.InvalidSelector, "Locator must name exactly one strategy, got %v", keys)
	}
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return "", "", errcode.New(errcode.InvalidSelector, "Locator target for %s must be a string", k)
		}
		strategy, target = k, s
	}
	return strategy, target, nil
}

// searchRoot is the optional scoping element, defaulting to the document.
func searchRoot(call *dispatch.Call) (*html.Node, error) {
	root, err := call.OptionalElement(1)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return call.Window.Document(), nil
	}
	return root, nil
}

func findElement(_ context.Context, call *dispatch.Call) (any, error) {
	strategy, target, err := locator(call)
	if err != nil {
		return nil, err
	}
	root, err := searchRoot(call)
	if err != nil {
		return nil, err
	}
	el, err := dom.Find(root, strategy, target)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, errcode.New(errcode.NoSuchElement, "%s: {%s: %s}", msgNoElement, strategy, target)
	}
	call.Logger.Debug("Located element.", zap.String("strategy", strategy), zap.String("xpath", dom.XPathOf(el)))
	return el, nil
}

func findElements(_ context.Context, call *dispatch.Call) (any, error) {
	strategy, target, err := locator(call)
	if err != nil {
		return nil, err
	}
	root, err := searchRoot(call)
	if err != nil {
		return nil, err
	}
	els, err := dom.FindAll(root, strategy, target)
	if err != nil {
		return nil, err
	}
	if els == nil {
		els = []*html.Node{}
	}
	return els, nil
}

func getAttributeValue(_ context.Context, call *dispatch.Call) (any, error) {
	el, err := call.Element(0)
	if err != nil {
		return nil, err
	}
	name, err := call.String(1)
	if err != nil {
		return nil, err
	}
	v, ok := dom.AttributeValue(el, name)
	if !ok {
		return nil, nil
	}
	return v, nil
}

func getTagName(_ context.Context, call *dispatch.Call) (any, error) {
	el, err := call.Element(0)
	if err != nil {
		return nil, err
	}
	return dom.TagName(el), nil
}

func getText(_ context.Context, call *dispatch.Call) (any, error) {
	el, err := call.Element(0)
	if err != nil {
		return nil, err
	}
	return dom.VisibleText(el), nil
}

func isDisplayed(_ context.Context, call *dispatch.Call) (any, error) {
	el, err := call.Element(0)
	if err != nil {
		return nil, err
	}
	return dom.IsDisplayed(el), nil
}

func isEnabled(_ context.Context, call *dispatch.Call) (any, error) {
	el, err := call.Element(0)
	if err != nil {
		return nil, err
	}
	return dom.IsEnabled(el), nil
}

func isSelected(_ context.Context, call *dispatch.Call) (any, error) {
	el, err := call.Element(0)
	if err != nil {
		return nil, err
	}
	if !dom.IsSelectable(el) {
		return nil, errcode.New(errcode.ElementNotSelectable, msgNotSelectable)
	}
	return dom.IsSelected(el), nil
}

func submit(_ context.Context, call *dispatch.Call) (any, error) {
	el, err := call.Element(0)
	if err != nil {
		return nil, err
	}
	form := dom.FindForm(el)
	if form == nil {
		return nil, errcode.New(errcode.NoSuchElement, msgNotInForm)
	}
	call.Window.RecordSubmission(dom.NewSubmission(form))
	return nil, nil
}

// toggle flips a check box or multi-select option and selects a radio or
// single-select option, returning the new state.
func toggle(_ context.Context, call *dispatch.Call) (any, error) {
	el, err := call.Element(0)
	if err != nil {
		return nil, err
	}
	if !dom.IsSelectable(el) {
		return nil, errcode.New(errcode.ElementNotSelectable, msgNotSelectable)
	}
	if !dom.IsDisplayed(el) {
		return nil, errcode.New(errcode.ElementNotVisible, msgNotVisible)
	}
	if !dom.IsEnabled(el) {
		return nil, errcode.New(errcode.InvalidElementState, msgNotInteractive)
	}

	next := !dom.IsSelected(el)
	if !next && !canDeselect(el) {
		next = true
	}
	dom.SetSelected(el, next)
	return dom.IsSelected(el), nil
}

func canDeselect(el *html.Node) bool {
	switch dom.TagName(el) {
	case "input":
		typ, _ := dom.Attr(el, "type")
		return strings.EqualFold(typ, "checkbox")
	case "option":
		for p := el.Parent; p != nil; p = p.Parent {
			if dom.TagName(p) == "select" {
				return dom.HasAttr(p, "multiple")
			}
		}
	}
	return false
}
