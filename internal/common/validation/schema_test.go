package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qa-autoresponder/pkg/registry"
)

func TestRegistryValidator_AnswerQuestion(t *testing.T) {
	v, err := NewRegistryValidator(registry.Default())
	require.NoError(t, err)

	result, err := v.Validate("answer-question", map[string]interface{}{
		"question": map[string]interface{}{"id": "q-1", "text": "What color is it?", "productRef": "MLB1"},
	})
	require.NoError(t, err)
	assert.True(t, result.Valid, result.Error())

	result, err = v.Validate("answer-question", map[string]interface{}{
		"question": map[string]interface{}{"text": "What color is it?"},
	})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Error(), "id")
}

func TestRegistryValidator_UnknownTaskPasses(t *testing.T) {
	v, err := NewRegistryValidator(registry.Default())
	require.NoError(t, err)

	result, err := v.Validate("not-registered", map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateAgainst_Enum(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{"type": "string", "enum": []interface{}{"auto_answer", "escalate"}},
		},
	}

	result, err := ValidateAgainst(schema, map[string]interface{}{"action": "shrug"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Len(t, result.GetErrorMessages(), 1)
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("support@example.com"))
	assert.False(t, ValidateEmail("Support <support@example.com>"))
	assert.False(t, ValidateEmail("not-an-email"))
}
