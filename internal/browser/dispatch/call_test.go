package dispatch_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wdatoms/internal/browser/dispatch"
	"github.com/xkilldash9x/wdatoms/internal/browser/dom"
	"github.com/xkilldash9x/wdatoms/internal/errcode"
)

func TestCallArgumentHelpers(t *testing.T) {
	el := &html.Node{Type: html.ElementNode, Data: "div"}
	win := dom.NewWindow()
	call := &dispatch.Call{
		Command: "TEST",
		Args:    []any{"s", 2.0, 2.5, true, el, win, map[string]any{"k": "v"}, []any{1.0}, nil},
	}

	s, err := call.String(0)
	require.NoError(t, err)
	assert.Equal(t, "s", s)

	n, err := call.Int(1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = call.Int(2)
	assert.Equal(t, errcode.UnknownError, errcode.CodeOf(err))

	b, err := call.Bool(3)
	require.NoError(t, err)
	assert.True(t, b)

	got, err := call.Element(4)
	require.NoError(t, err)
	assert.Same(t, el, got)

	w, err := call.WindowAt(5)
	require.NoError(t, err)
	assert.Same(t, win, w)

	m, err := call.Mapping(6)
	require.NoError(t, err)
	assert.Equal(t, "v", m["k"])

	l, err := call.List(7)
	require.NoError(t, err)
	assert.Len(t, l, 1)

	opt, err := call.OptionalElement(8)
	require.NoError(t, err)
	assert.Nil(t, opt)

	_, err = call.String(8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST: missing argument 8")

	_, err = call.Element(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 0 must be an element, got string")

	assert.Equal(t, 9, call.Len())
	assert.False(t, call.Present(20))
}

func TestInteger(t *testing.T) {
	for _, f := range []float64{0, 3, -2, 1 << 53} {
		n, ok := dispatch.Integer(f)
		assert.True(t, ok, "%v", f)
		assert.Equal(t, int(f), n)
	}
	for _, f := range []float64{0.5, -1.25, 1 << 54, -1e300, math.NaN(), math.Inf(-1)} {
		_, ok := dispatch.Integer(f)
		assert.False(t, ok, "%v", f)
	}
}
