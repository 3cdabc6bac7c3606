package tools_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekerworks/searchagent/action"
	"github.com/seekerworks/searchagent/tools"
)

func mathRegistry(t *testing.T) *action.Registry {
	t.Helper()
	reg := action.NewRegistry()
	require.NoError(t, reg.Register(tools.MathTools()...))
	return reg
}

func call(t *testing.T, reg *action.Registry, name string, args map[string]string) (string, error) {
	t.Helper()
	tool, ok := reg.Get(name)
	require.True(t, ok, "tool %s not registered", name)
	return tool.Execute(context.Background(), args)
}

func TestArithmetic(t *testing.T) {
	reg := mathRegistry(t)

	cases := []struct {
		tool string
		args map[string]string
		want string
	}{
		{"add", map[string]string{"a": "2", "b": "3"}, "5"},
		{"subtract", map[string]string{"a": "10", "b": "4"}, "6"},
		{"multiply", map[string]string{"a": "6", "b": "7"}, "42"},
		{"divide", map[string]string{"a": "9", "b": "2"}, "4.5"},
		{"power", map[string]string{"a": "2", "b": "10"}, "1024"},
		{"remainder", map[string]string{"a": "10", "b": "3"}, "1"},
		{"sqrt", map[string]string{"a": "49"}, "7"},
		{"cbrt", map[string]string{"a": "27"}, "3"},
		{"factorial", map[string]string{"a": "5"}, "120"},
	}
	for _, tc := range cases {
		got, err := call(t, reg, tc.tool, tc.args)
		require.NoError(t, err, tc.tool)
		assert.Equal(t, tc.want, got, tc.tool)
	}
}

func TestArithmeticErrors(t *testing.T) {
	reg := mathRegistry(t)

	_, err := call(t, reg, "divide", map[string]string{"a": "1", "b": "0"})
	require.Error(t, err)

	_, err = call(t, reg, "sqrt", map[string]string{"a": "-4"})
	require.Error(t, err)

	_, err = call(t, reg, "log", map[string]string{"a": "0"})
	require.Error(t, err)

	_, err = call(t, reg, "factorial", map[string]string{"a": "-1"})
	require.Error(t, err)

	_, err = call(t, reg, "add", map[string]string{"a": "two", "b": "3"})
	require.Error(t, err)

	_, err = call(t, reg, "add", map[string]string{"a": "2"})
	require.Error(t, err)
}

func TestStringsToCharsToInt(t *testing.T) {
	reg := mathRegistry(t)
	got, err := call(t, reg, "strings_to_chars_to_int", map[string]string{"string": "ABC"})
	require.NoError(t, err)
	assert.Equal(t, "[65, 66, 67]", got)
}

func TestIntListToExponentialSum(t *testing.T) {
	reg := mathRegistry(t)
	got, err := call(t, reg, "int_list_to_exponential_sum", map[string]string{"numbers": "0, 0"})
	require.NoError(t, err)
	assert.Equal(t, "2", got)

	// Bracketed lists are accepted too.
	got, err = call(t, reg, "int_list_to_exponential_sum", map[string]string{"numbers": "[0]"})
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestFibonacciNumbers(t *testing.T) {
	reg := mathRegistry(t)

	got, err := call(t, reg, "fibonacci_numbers", map[string]string{"n": "7"})
	require.NoError(t, err)
	assert.Equal(t, "[0, 1, 1, 2, 3, 5, 8]", got)

	got, err = call(t, reg, "fibonacci_numbers", map[string]string{"n": "0"})
	require.NoError(t, err)
	assert.Equal(t, "[]", got)
}

func TestOpenURLMarker(t *testing.T) {
	tool := tools.OpenURLTool()
	got, err := tool.Execute(context.Background(), map[string]string{"url": "https://example.com/doc"})
	require.NoError(t, err)
	assert.Equal(t, tools.OpenURLPrefix+" https://example.com/doc", got)

	_, err = tool.Execute(context.Background(), map[string]string{})
	require.Error(t, err)
}
