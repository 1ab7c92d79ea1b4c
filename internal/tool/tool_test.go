package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSchemaAndValidate(t *testing.T) {
	schema, err := CompileSchema("echo", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []any{"text"},
	})
	require.NoError(t, err)

	assert.NoError(t, ValidateArgs(schema, map[string]any{"text": "hi"}))
	assert.Error(t, ValidateArgs(schema, map[string]any{}))
	assert.Error(t, ValidateArgs(schema, map[string]any{"text": 42}))
}

func TestCompileSchema_Invalid(t *testing.T) {
	_, err := CompileSchema("broken", map[string]any{
		"type": 12345,
	})
	assert.Error(t, err)
}

func TestValidateArgs_StripsContext(t *testing.T) {
	schema, err := CompileSchema("strict", map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"q": map[string]any{"type": "string"},
		},
	})
	require.NoError(t, err)

	// The injected _context member must not trip additionalProperties.
	args := map[string]any{
		"q":        "search",
		"_context": map[string]any{"channel": "cli", "sender_id": "me"},
	}
	assert.NoError(t, ValidateArgs(schema, args))
	// And stripping must not mutate the caller's map.
	_, still := args["_context"]
	assert.True(t, still)
}

func TestValidateArgs_NilSchema(t *testing.T) {
	assert.NoError(t, ValidateArgs(nil, map[string]any{"anything": true}))
}

func TestStringArg(t *testing.T) {
	args := map[string]any{"name": "value", "count": 3}

	v, err := StringArg(args, "name")
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	_, err = StringArg(args, "missing")
	assert.Error(t, err)

	_, err = StringArg(args, "count")
	assert.Error(t, err)
}

func TestResultHelpers(t *testing.T) {
	ok := Ok("all good")
	assert.True(t, ok.Success)
	assert.Equal(t, "all good", ok.Output)
	assert.Empty(t, ok.Error)

	fail := Fail("nope")
	assert.False(t, fail.Success)
	assert.Equal(t, "nope", fail.Error)
}
