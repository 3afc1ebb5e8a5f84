package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addArgs struct {
	A    float64 `json:"a" description:"First addend"`
	B    float64 `json:"b" description:"Second addend"`
	Mode string  `json:"mode,omitempty" enum:"exact,rounded"`
	Note *string `json:"note"`
	skip int
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(addArgs{})

	assert.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]any)
	require.Len(t, props, 4)
	assert.Equal(t, "number", props["a"].(map[string]any)["type"])
	assert.Equal(t, "First addend", props["a"].(map[string]any)["description"])
	assert.Equal(t, []string{"exact", "rounded"}, props["mode"].(map[string]any)["enum"])
	assert.Equal(t, "string", props["note"].(map[string]any)["type"])
	assert.Equal(t, []string{"a", "b"}, schema["required"])
}

func TestCreateSchemaNonStruct(t *testing.T) {
	schema := CreateSchema(42)
	assert.Empty(t, schema["properties"])
	assert.NotContains(t, schema, "required")
}

func TestValidateParameters(t *testing.T) {
	built := CreateSchema(addArgs{})
	decoded := map[string]any{
		"type":     "object",
		"required": []any{"a"},
		"properties": map[string]any{
			"a": map[string]any{"type": "integer"},
		},
	}

	tests := []struct {
		name   string
		schema map[string]any
		params map[string]any
		field  string
	}{
		{"valid", built, map[string]any{"a": 1.0, "b": 2}, ""},
		{"missing required", built, map[string]any{"a": 1.0}, "b"},
		{"wrong type", built, map[string]any{"a": "one", "b": 2.0}, "a"},
		{"enum mismatch", built, map[string]any{"a": 1.0, "b": 2.0, "mode": "fuzzy"}, "mode"},
		{"extra fields allowed", built, map[string]any{"a": 1.0, "b": 2.0, "x": true}, ""},
		{"decoded required list", decoded, map[string]any{}, "a"},
		{"fractional integer", decoded, map[string]any{"a": 1.5}, "a"},
		{"whole float as integer", decoded, map[string]any{"a": 3.0}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.params, tt.schema)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
