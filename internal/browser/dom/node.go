// internal/browser/dom/node.go
package dom

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

var errWindowClosed = errcode.New(errcode.NoSuchWindow, "Window has been closed.")

// -- Tree helpers --

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// TagName returns the lower-case tag of an element, or "".
func TagName(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return strings.ToLower(n.Data)
}

// IsAttached walks from n towards the root and reports whether the walk ends
// at doc. A detached node's walk ends at some other parentless node.
func IsAttached(n, doc *html.Node) bool {
	if n == nil || doc == nil {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == doc {
			return true
		}
	}
	return false
}

// walkElements visits element descendants of root in document order. fn
// returns false to skip the element's subtree.
func walkElements(root *html.Node, fn func(*html.Node) bool) {
	if root == nil {
		return
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if !fn(c) {
				continue
			}
		}
		walkElements(c, fn)
	}
}

func documentElement(doc *html.Node) *html.Node {
	if doc == nil {
		return nil
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// Body returns the <body> of a document.
func Body(doc *html.Node) *html.Node {
	root := documentElement(doc)
	if root == nil {
		return nil
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if TagName(c) == "body" {
			return c
		}
	}
	return nil
}

// closest returns the nearest inclusive ancestor with one of the given tags.
func closest(n *html.Node, tags ...string) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		t := TagName(cur)
		for _, want := range tags {
			if t == want {
				return cur
			}
		}
	}
	return nil
}

// -- Attributes --

// Attr returns the value of an attribute. Names are case-insensitive.
func Attr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	name = strings.ToLower(name)
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.ToLower(a.Key) == name {
			return a.Val, true
		}
	}
	return "", false
}

// HasAttr reports whether the attribute is present.
func HasAttr(n *html.Node, name string) bool {
	_, ok := Attr(n, name)
	return ok
}

// SetAttr adds or replaces an attribute.
func SetAttr(n *html.Node, name, value string) {
	name = strings.ToLower(name)
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.ToLower(a.Key) == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, name string) {
	name = strings.ToLower(name)
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.ToLower(a.Key) == name {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

// booleanAttributes report "true" or null rather than their literal value.
var booleanAttributes = map[string]bool{
	"async": true, "autofocus": true, "autoplay": true, "checked": true,
	"compact": true, "complete": true, "controls": true, "declare": true,
	"defaultchecked": true, "defaultselected": true, "defer": true,
	"disabled": true, "draggable": true, "ended": true, "formnovalidate": true,
	"hidden": true, "indeterminate": true, "iscontenteditable": true,
	"ismap": true, "itemscope": true, "loop": true, "multiple": true,
	"muted": true, "nohref": true, "noresize": true, "noshade": true,
	"novalidate": true, "nowrap": true, "open": true, "paused": true,
	"pubdate": true, "readonly": true, "required": true, "reversed": true,
	"scoped": true, "seamless": true, "seeking": true, "selected": true,
	"spellcheck": true, "truespeed": true, "willvalidate": true,
}

// AttributeValue implements the GET_ATTRIBUTE_VALUE lookup: boolean
// attributes yield "true" or absent, "value" reflects the current form value,
// and "className" is an alias for "class".
func AttributeValue(n *html.Node, name string) (string, bool) {
	lower := strings.ToLower(name)
	switch lower {
	case "classname", "class":
		return Attr(n, "class")
	case "value":
		if TagName(n) == "textarea" || TagName(n) == "select" {
			return Value(n), true
		}
	case "selected", "checked":
		if IsSelectable(n) {
			if IsSelected(n) {
				return "true", true
			}
			return "", false
		}
	}
	v, ok := Attr(n, lower)
	if !ok {
		return "", false
	}
	if booleanAttributes[lower] {
		return "true", true
	}
	return v, true
}

// -- Visibility --

var neverDisplayed = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "title": true, "meta": true, "link": true, "base": true,
}

func styleDeclarations(n *html.Node) map[string]string {
	raw, ok := Attr(n, "style")
	if !ok {
		return nil
	}
	decls := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.ToLower(strings.TrimSpace(kv[1]))
		val = strings.TrimSpace(strings.TrimSuffix(val, "!important"))
		decls[prop] = val
	}
	return decls
}

// IsDisplayed approximates whether an element would be rendered: it must be
// in a document, outside non-rendered containers, and neither it nor an
// ancestor may be hidden, display:none or (nearest declaration) invisible.
func IsDisplayed(n *html.Node) bool {
	if !IsElement(n) {
		return false
	}
	if t := TagName(n); t == "option" || t == "optgroup" {
		if sel := closest(n.Parent, "select", "datalist"); sel != nil {
			if TagName(sel) == "datalist" {
				return false
			}
			return IsDisplayed(sel)
		}
	}
	if TagName(n) == "input" {
		if typ, _ := Attr(n, "type"); strings.EqualFold(typ, "hidden") {
			return false
		}
	}

	visibilityDecided := false
	var cur *html.Node
	for cur = n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if neverDisplayed[TagName(cur)] {
			return false
		}
		if HasAttr(cur, "hidden") {
			return false
		}
		decls := styleDeclarations(cur)
		if decls["display"] == "none" {
			return false
		}
		if !visibilityDecided {
			if v, ok := decls["visibility"]; ok && v != "inherit" {
				if v == "hidden" || v == "collapse" {
					return false
				}
				visibilityDecided = true
			}
		}
		if op, ok := decls["opacity"]; ok && (op == "0" || op == "0.0") {
			return false
		}
	}
	// A displayed element must hang off a document node.
	return cur != nil && cur.Type == html.DocumentNode
}

// -- Form state --

var formControls = map[string]bool{
	"button": true, "input": true, "select": true, "textarea": true,
	"option": true, "optgroup": true, "fieldset": true,
}

// IsEnabled reports whether a form control is enabled. Elements that are not
// form controls are always enabled.
func IsEnabled(n *html.Node) bool {
	if !IsElement(n) {
		return false
	}
	tag := TagName(n)
	if !formControls[tag] {
		return true
	}
	if HasAttr(n, "disabled") {
		return false
	}
	if tag == "option" || tag == "optgroup" {
		if p := closest(n.Parent, "optgroup", "select"); p != nil {
			return IsEnabled(p)
		}
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if TagName(p) == "fieldset" && HasAttr(p, "disabled") {
			return false
		}
	}
	return true
}

// IsSelectable reports whether an element has a selected state.
func IsSelectable(n *html.Node) bool {
	switch TagName(n) {
	case "option":
		return true
	case "input":
		typ, _ := Attr(n, "type")
		typ = strings.ToLower(typ)
		return typ == "checkbox" || typ == "radio"
	}
	return false
}

// IsSelected reports the checked/selected state of a selectable element.
func IsSelected(n *html.Node) bool {
	if TagName(n) == "option" {
		return HasAttr(n, "selected")
	}
	return HasAttr(n, "checked")
}

// SetSelected changes the selected state, keeping radio groups and
// single-selects consistent.
func SetSelected(n *html.Node, selected bool) {
	flag := "checked"
	if TagName(n) == "option" {
		flag = "selected"
	}
	if !selected {
		RemoveAttr(n, flag)
		return
	}

	switch TagName(n) {
	case "option":
		if sel := closest(n.Parent, "select"); sel != nil && !HasAttr(sel, "multiple") {
			walkElements(sel, func(o *html.Node) bool {
				if TagName(o) == "option" {
					RemoveAttr(o, "selected")
				}
				return true
			})
		}
	case "input":
		if typ, _ := Attr(n, "type"); strings.EqualFold(typ, "radio") {
			name, _ := Attr(n, "name")
			scope := FindForm(n)
			if scope == nil {
				scope = rootOf(n)
			}
			walkElements(scope, func(o *html.Node) bool {
				if o != n && TagName(o) == "input" {
					otype, _ := Attr(o, "type")
					oname, _ := Attr(o, "name")
					if strings.EqualFold(otype, "radio") && oname == name {
						RemoveAttr(o, "checked")
					}
				}
				return true
			})
		}
	}
	SetAttr(n, flag, "")
}

func rootOf(n *html.Node) *html.Node {
	cur := n
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

var textInputTypes = map[string]bool{
	"": true, "text": true, "password": true, "email": true, "number": true,
	"search": true, "tel": true, "url": true, "date": true, "datetime-local": true,
	"month": true, "week": true, "time": true, "color": true,
}

// IsEditable reports whether the user could type into the element.
func IsEditable(n *html.Node) bool {
	if !IsEnabled(n) {
		return false
	}
	switch TagName(n) {
	case "textarea":
		return !HasAttr(n, "readonly")
	case "input":
		typ, _ := Attr(n, "type")
		return textInputTypes[strings.ToLower(typ)] && !HasAttr(n, "readonly")
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if ce, ok := Attr(cur, "contenteditable"); ok {
			ce = strings.ToLower(ce)
			return ce == "" || ce == "true" || ce == "plaintext-only"
		}
	}
	return false
}

// Value returns the current value of a form control.
func Value(n *html.Node) string {
	switch TagName(n) {
	case "textarea":
		return TextContent(n)
	case "select":
		var first, chosen string
		haveFirst, found := false, false
		walkElements(n, func(o *html.Node) bool {
			if TagName(o) != "option" {
				return true
			}
			v := optionValue(o)
			if !haveFirst {
				first, haveFirst = v, true
			}
			if HasAttr(o, "selected") && !found {
				chosen, found = v, true
			}
			return true
		})
		if found {
			return chosen
		}
		return first
	case "option":
		return optionValue(n)
	}
	v, _ := Attr(n, "value")
	return v
}

func optionValue(o *html.Node) string {
	if v, ok := Attr(o, "value"); ok {
		return v
	}
	return strings.TrimSpace(TextContent(o))
}

// ClearValue empties an editable element.
func ClearValue(n *html.Node) {
	switch TagName(n) {
	case "textarea":
		removeChildren(n)
	case "input":
		SetAttr(n, "value", "")
	default:
		removeChildren(n)
	}
}

func removeChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// Remove detaches n from its parent.
func Remove(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// FindForm returns the form an element belongs to: the element itself, the
// form named by its form attribute, or the nearest enclosing form.
func FindForm(n *html.Node) *html.Node {
	if TagName(n) == "form" {
		return n
	}
	if id, ok := Attr(n, "form"); ok && id != "" {
		var found *html.Node
		walkElements(rootOf(n), func(c *html.Node) bool {
			if found == nil && TagName(c) == "form" {
				if cid, _ := Attr(c, "id"); cid == id {
					found = c
				}
			}
			return found == nil
		})
		if found != nil {
			return found
		}
	}
	return closest(n, "form")
}

// IsSubmitControl reports whether clicking el submits its form.
func IsSubmitControl(n *html.Node) bool {
	typ, hasType := Attr(n, "type")
	typ = strings.ToLower(typ)
	switch TagName(n) {
	case "button":
		return !hasType || typ == "submit"
	case "input":
		return typ == "submit" || typ == "image"
	}
	return false
}

// FormData collects the successful controls of a form.
func FormData(form *html.Node) url.Values {
	data := url.Values{}
	walkElements(form, func(c *html.Node) bool {
		name, ok := Attr(c, "name")
		if !ok || name == "" || !IsEnabled(c) {
			return true
		}
		switch TagName(c) {
		case "input":
			typ, _ := Attr(c, "type")
			switch strings.ToLower(typ) {
			case "submit", "image", "button", "reset", "file":
				return true
			case "checkbox", "radio":
				if !IsSelected(c) {
					return true
				}
				v, ok := Attr(c, "value")
				if !ok {
					v = "on"
				}
				data.Add(name, v)
				return true
			}
			data.Add(name, Value(c))
		case "textarea", "select":
			data.Add(name, Value(c))
			return false
		}
		return true
	})
	return data
}

// NewSubmission describes submitting form.
func NewSubmission(form *html.Node) Submission {
	action, _ := Attr(form, "action")
	method, _ := Attr(form, "method")
	if method == "" {
		method = "get"
	}
	return Submission{
		Form:   form,
		Action: action,
		Method: strings.ToLower(method),
		Fields: FormData(form),
	}
}

// -- Text --

// TextContent concatenates all descendant text nodes.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return b.String()
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true,
	"figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tr": true, "ul": true, "option": true,
}

// VisibleText returns the rendered text of an element: hidden descendants are
// skipped, block boundaries become line breaks and whitespace is collapsed.
func VisibleText(n *html.Node) string {
	if !IsDisplayed(n) {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			// Source line breaks are ordinary whitespace; only block
			// boundaries and <br> break lines.
			b.WriteString(strings.Map(func(r rune) rune {
				if r == '\n' || r == '\r' {
					return ' '
				}
				return r
			}, c.Data))
			return
		case html.ElementNode:
			if c != n && !IsDisplayed(c) {
				return
			}
			tag := TagName(c)
			if tag == "br" {
				b.WriteString("\n")
				return
			}
			if blockElements[tag] {
				b.WriteString("\n")
			}
			for k := c.FirstChild; k != nil; k = k.NextSibling {
				walk(k)
			}
			if blockElements[tag] {
				b.WriteString("\n")
			}
			return
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
