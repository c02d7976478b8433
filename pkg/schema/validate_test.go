package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/theomcp/pkg/apperror"
)

func TestValidatePropertiesRequired(t *testing.T) {
	reg := Default(true)

	_, err := reg.ValidateProperties("notion", map[string]any{"caption": "Grace"}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrMissingProperty))

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, []string{"id"}, appErr.Details["missing"])

	// Not enforced on partial updates.
	_, err = reg.ValidateProperties("notion", map[string]any{"description": "x"}, false)
	assert.NoError(t, err)
}

func TestValidatePropertiesRejectUnknown(t *testing.T) {
	reg := Default(false)

	_, err := reg.ValidateProperties("person", map[string]any{"caption": "Paul", "born": 5, "died": 67}, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrUnknownProperty))

	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, []string{"born", "died"}, appErr.Details["unknown"])
}

func TestValidatePropertiesUnknownLabel(t *testing.T) {
	reg := Default(false)
	_, err := reg.ValidateProperties("chapter", map[string]any{"caption": "x"}, true)
	assert.True(t, errors.Is(err, apperror.ErrUnknownLabel))
}

func TestValidatePropertiesCoercion(t *testing.T) {
	reg := Default(false)

	input := map[string]any{
		"caption":     "Jn 1:1",
		"id":          "17",
		"chapter":     float64(1),
		"verse":       "1",
		"importIndex": 4,
		"RST":         "In the beginning was the Word",
		"bookShort":   "Jn",
	}
	out, err := reg.ValidateProperties("Verse", input, true)
	require.NoError(t, err)

	assert.Equal(t, int64(17), out["id"])
	assert.Equal(t, int64(1), out["chapter"])
	assert.Equal(t, int64(1), out["verse"])
	assert.Equal(t, int64(4), out["importIndex"])
	assert.Equal(t, "Jn 1:1", out["caption"])

	// Input untouched.
	assert.Equal(t, "17", input["id"])
	assert.Equal(t, float64(1), input["chapter"])
}

func TestValidatePropertiesChapterOnlyCoercedForVerse(t *testing.T) {
	reg := Default(false)

	def := DefaultDefinition(false)
	def.Labels = append(def.Labels, LabelDefinition{Name: "chapterNote", Properties: []string{"caption", "chapter"}})
	custom, err := New(def)
	require.NoError(t, err)

	out, err := custom.ValidateProperties("chapterNote", map[string]any{"caption": "c", "chapter": "IV"}, true)
	require.NoError(t, err)
	assert.Equal(t, "IV", out["chapter"])

	_, err = reg.ValidateProperties("verse", map[string]any{"caption": "c", "chapter": "IV"}, true)
	assert.True(t, errors.Is(err, apperror.ErrInvalidPropertyType))
}

func TestValidatePropertiesInvalidTypes(t *testing.T) {
	reg := Default(false)

	tests := []struct {
		name  string
		props map[string]any
	}{
		{"fractional id", map[string]any{"caption": "a", "id": 1.5}},
		{"bool id", map[string]any{"caption": "a", "id": true}},
		{"nil value", map[string]any{"caption": nil}},
		{"nested map", map[string]any{"caption": map[string]any{"x": 1}}},
		{"list value", map[string]any{"caption": []any{"a", "b"}}},
		{"numeric caption", map[string]any{"caption": 5}},
		{"float caption", map[string]any{"caption": float64(5)}},
		{"bool caption", map[string]any{"caption": true}},
		{"fractional description", map[string]any{"caption": "a", "description": 3.5}},
		{"fractional json.Number", map[string]any{"caption": "a", "description": json.Number("0.5")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.ValidateProperties("notion", tt.props, false)
			assert.True(t, errors.Is(err, apperror.ErrInvalidPropertyType), "got %v", err)
		})
	}
}

func TestValidatePropertiesIdempotent(t *testing.T) {
	reg := Default(true)

	once, err := reg.ValidateProperties("verse", map[string]any{"caption": "Jn 1:2", "id": float64(2), "chapter": "1"}, true)
	require.NoError(t, err)
	twice, err := reg.ValidateProperties("verse", once, true)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestValidatePropertiesScalarKinds(t *testing.T) {
	reg := Default(false)

	out, err := reg.ValidateProperties("notion", map[string]any{
		"caption":     "5",
		"description": float64(3),
		"quotation":   false,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "5", out["caption"])
	assert.Equal(t, int64(3), out["description"])
	assert.Equal(t, false, out["quotation"])

	_, err = reg.ValidateProperties("verse", map[string]any{"caption": "Jn 1:1", "RST": 1}, true)
	assert.True(t, errors.Is(err, apperror.ErrInvalidPropertyType))
}
