package schemas_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/wdatoms/api/schemas"
)

func TestValueJSONReferences(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		kind     schemas.Kind
		handle   string
		expected string
	}{
		{"element", `{"ELEMENT":":wdc:0"}`, schemas.KindElement, ":wdc:0", `{"ELEMENT":":wdc:0"}`},
		{"window", `{"WINDOW":":wdc:4"}`, schemas.KindWindow, ":wdc:4", `{"WINDOW":":wdc:4"}`},
		{"element wins over window", `{"WINDOW":":wdc:1","ELEMENT":":wdc:2"}`, schemas.KindElement, ":wdc:2", `{"ELEMENT":":wdc:2"}`},
		{"non-string tag is a mapping", `{"ELEMENT":3}`, schemas.KindMapping, "", `{"ELEMENT":3}`},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var v schemas.Value
			require.NoError(t, v.UnmarshalJSON([]byte(tc.input)))
			assert.Equal(t, tc.kind, v.Kind())
			assert.Equal(t, tc.handle, v.Handle())

			out, err := v.MarshalJSON()
			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(out))
		})
	}
}

func TestValueNestedStructure(t *testing.T) {
	t.Parallel()

	args, err := schemas.ParseValues(`[1, "two", [true, null], {"k": {"ELEMENT": ":wdc:7"}}]`)
	require.NoError(t, err)
	require.Len(t, args, 4)

	assert.Equal(t, schemas.KindNumber, args[0].Kind())
	assert.Equal(t, 1.0, args[0].AsNumber())
	assert.Equal(t, "two", args[1].AsString())
	require.Equal(t, schemas.KindSequence, args[2].Kind())
	assert.True(t, args[2].Items()[0].AsBool())
	assert.True(t, args[2].Items()[1].IsNull())

	ref, ok := args[3].Get("k")
	require.True(t, ok)
	assert.Equal(t, ":wdc:7", ref.Handle())
}

func TestParseValuesRejectsNonArrays(t *testing.T) {
	t.Parallel()

	_, err := schemas.ParseValues(`{"ELEMENT": ":wdc:0"}`)
	assert.Error(t, err)

	empty, err := schemas.ParseValues("   ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFunctionValuesNeverCrossTheWire(t *testing.T) {
	t.Parallel()

	fn := schemas.Func(func(args ...interface{}) (interface{}, error) { return len(args), nil })
	assert.Equal(t, schemas.KindFunction, fn.Kind())
	assert.NotNil(t, fn.Callable())

	out, err := fn.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))

	seq := schemas.Sequence(schemas.Int(1), fn)
	out, err = seq.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[1, null]`, string(out))
}

func TestValueEqual(t *testing.T) {
	t.Parallel()

	a := schemas.Mapping(map[string]schemas.Value{
		"list": schemas.Sequence(schemas.Int(1), schemas.ElementRef(":wdc:0")),
	})
	b := schemas.Mapping(map[string]schemas.Value{
		"list": schemas.Sequence(schemas.Int(1), schemas.ElementRef(":wdc:0")),
	})
	c := schemas.Mapping(map[string]schemas.Value{
		"list": schemas.Sequence(schemas.Int(1), schemas.WindowRef(":wdc:0")),
	})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, "{list:[1,{ELEMENT::wdc:0}]}", a.GoString())
}

func TestEmptySequenceMarshalsAsArray(t *testing.T) {
	t.Parallel()

	out, err := schemas.Sequence().MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out))
}

func TestNonFiniteNumbersMarshalAsNull(t *testing.T) {
	t.Parallel()

	env := schemas.Envelope{Status: 0, Value: schemas.Sequence(schemas.Number(math.NaN()), schemas.Number(math.Inf(1)), schemas.Int(2))}
	assert.Equal(t, `{"status":0,"value":[null,null,2]}`, env.String())
}
