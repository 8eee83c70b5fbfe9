package dom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
)

const formHTML = `
	<html><head><title>t</title></head><body>
		<form id="f" action="/go">
			<input id="text" name="q" value="hello">
			<input id="ro" name="ro" value="x" readonly>
			<input id="dis" name="dis" value="y" disabled>
			<input id="hidden" type="hidden" name="h" value="secret">
			<input id="cb" type="checkbox" name="cb" value="yes" checked>
			<input id="cb2" type="checkbox" name="cb2">
			<input id="r1" type="radio" name="r" value="1" checked>
			<input id="r2" type="radio" name="r" value="2">
			<textarea id="ta" name="ta">some text</textarea>
			<select id="sel" name="sel">
				<option id="o1" value="a">A</option>
				<option id="o2" value="b" selected>B</option>
			</select>
			<fieldset disabled><input id="in-fs" name="fs"></fieldset>
			<button id="go">Go</button>
		</form>
		<input id="orphan" form="f" name="orphan" value="o">
		<div id="none" style="display: none"><span id="inside-none">x</span></div>
		<div id="invisible" style="visibility:hidden"><span id="revisible" style="visibility: visible">y</span></div>
		<p id="hid" hidden>z</p>
		<div id="editable" contenteditable="true"><span id="child-edit">e</span></div>
		<div id="text-block">Hello   <b>bold</b>
			world<div>second line</div><span style="display:none">gone</span></div>
	</body></html>`

func byID(t *testing.T, doc *html.Node, id string) *html.Node {
	t.Helper()
	n, err := dom.Find(doc, "id", id)
	require.NoError(t, err)
	require.NotNil(t, n, "no element with id %s", id)
	return n
}

func TestIsDisplayed(t *testing.T) {
	doc := parseDoc(t, formHTML)

	tests := map[string]bool{
		"text":        true,
		"hidden":      false,
		"none":        false,
		"inside-none": false,
		"invisible":   false,
		"revisible":   true,
		"hid":         false,
		"o1":          true,
	}
	for id, want := range tests {
		t.Run(id, func(t *testing.T) {
			assert.Equal(t, want, dom.IsDisplayed(byID(t, doc, id)))
		})
	}

	title, err := dom.Find(doc, "tagName", "title")
	require.NoError(t, err)
	assert.False(t, dom.IsDisplayed(title))

	detached := byID(t, doc, "text")
	dom.Remove(detached)
	assert.False(t, dom.IsDisplayed(detached))
}

func TestFormStatePredicates(t *testing.T) {
	doc := parseDoc(t, formHTML)

	assert.True(t, dom.IsEnabled(byID(t, doc, "text")))
	assert.False(t, dom.IsEnabled(byID(t, doc, "dis")))
	assert.False(t, dom.IsEnabled(byID(t, doc, "in-fs")))
	assert.True(t, dom.IsEnabled(byID(t, doc, "none")))

	assert.True(t, dom.IsEditable(byID(t, doc, "text")))
	assert.True(t, dom.IsEditable(byID(t, doc, "ta")))
	assert.False(t, dom.IsEditable(byID(t, doc, "ro")))
	assert.False(t, dom.IsEditable(byID(t, doc, "dis")))
	assert.False(t, dom.IsEditable(byID(t, doc, "cb")))
	assert.True(t, dom.IsEditable(byID(t, doc, "child-edit")))

	assert.True(t, dom.IsSelectable(byID(t, doc, "cb")))
	assert.True(t, dom.IsSelectable(byID(t, doc, "o1")))
	assert.False(t, dom.IsSelectable(byID(t, doc, "text")))

	assert.True(t, dom.IsSelected(byID(t, doc, "cb")))
	assert.False(t, dom.IsSelected(byID(t, doc, "cb2")))
}

func TestSetSelectedKeepsGroupsConsistent(t *testing.T) {
	doc := parseDoc(t, formHTML)

	r2 := byID(t, doc, "r2")
	dom.SetSelected(r2, true)
	assert.True(t, dom.IsSelected(r2))
	assert.False(t, dom.IsSelected(byID(t, doc, "r1")))

	o1 := byID(t, doc, "o1")
	dom.SetSelected(o1, true)
	assert.True(t, dom.IsSelected(o1))
	assert.False(t, dom.IsSelected(byID(t, doc, "o2")))
	assert.Equal(t, "a", dom.Value(byID(t, doc, "sel")))

	cb := byID(t, doc, "cb")
	dom.SetSelected(cb, false)
	assert.False(t, dom.IsSelected(cb))
}

func TestValuesAndClearing(t *testing.T) {
	doc := parseDoc(t, formHTML)

	text := byID(t, doc, "text")
	assert.Equal(t, "hello", dom.Value(text))
	dom.ClearValue(text)
	assert.Equal(t, "", dom.Value(text))

	ta := byID(t, doc, "ta")
	assert.Equal(t, "some text", dom.Value(ta))
	dom.ClearValue(ta)
	assert.Equal(t, "", dom.Value(ta))

	assert.Equal(t, "b", dom.Value(byID(t, doc, "sel")))
}

func TestAttributeValue(t *testing.T) {
	doc := parseDoc(t, formHTML)

	v, ok := dom.AttributeValue(byID(t, doc, "ro"), "readonly")
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	_, ok = dom.AttributeValue(byID(t, doc, "text"), "readonly")
	assert.False(t, ok)

	v, ok = dom.AttributeValue(byID(t, doc, "cb"), "checked")
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	_, ok = dom.AttributeValue(byID(t, doc, "cb2"), "checked")
	assert.False(t, ok)

	v, ok = dom.AttributeValue(byID(t, doc, "ta"), "value")
	assert.True(t, ok)
	assert.Equal(t, "some text", v)

	v, ok = dom.AttributeValue(byID(t, doc, "text"), "name")
	assert.True(t, ok)
	assert.Equal(t, "q", v)
}

func TestFormsAndSubmission(t *testing.T) {
	doc := parseDoc(t, formHTML)
	form := byID(t, doc, "f")

	assert.Same(t, form, dom.FindForm(byID(t, doc, "text")))
	assert.Same(t, form, dom.FindForm(byID(t, doc, "orphan")))
	assert.Same(t, form, dom.FindForm(form))
	assert.Nil(t, dom.FindForm(byID(t, doc, "hid")))

	assert.True(t, dom.IsSubmitControl(byID(t, doc, "go")))
	assert.False(t, dom.IsSubmitControl(byID(t, doc, "text")))

	sub := dom.NewSubmission(form)
	assert.Equal(t, "/go", sub.Action)
	assert.Equal(t, "get", sub.Method)
	assert.Equal(t, "hello", sub.Fields.Get("q"))
	assert.Equal(t, "secret", sub.Fields.Get("h"))
	assert.Equal(t, "yes", sub.Fields.Get("cb"))
	assert.Equal(t, "1", sub.Fields.Get("r"))
	assert.Equal(t, "b", sub.Fields.Get("sel"))
	assert.Equal(t, "some text", sub.Fields.Get("ta"))
	assert.False(t, sub.Fields.Has("cb2"))
	assert.False(t, sub.Fields.Has("dis"))
	assert.False(t, sub.Fields.Has("fs"))
}

func TestVisibleText(t *testing.T) {
	doc := parseDoc(t, formHTML)

	assert.Equal(t, "Hello bold world\nsecond line", dom.VisibleText(byID(t, doc, "text-block")))
	assert.Equal(t, "", dom.VisibleText(byID(t, doc, "none")))
}

func TestIsAttached(t *testing.T) {
	doc := parseDoc(t, formHTML)
	el := byID(t, doc, "hid")

	assert.True(t, dom.IsAttached(el, doc))
	assert.True(t, dom.IsAttached(doc, doc))

	other := parseDoc(t, formHTML)
	assert.False(t, dom.IsAttached(el, other))

	dom.Remove(el)
	assert.False(t, dom.IsAttached(el, doc))
	assert.False(t, dom.IsAttached(nil, doc))
}
