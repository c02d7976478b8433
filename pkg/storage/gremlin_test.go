package storage

import (
	"encoding/json"
	"testing"

	gremlingo "github.com/apache/tinkerpop/gremlin-go/v3/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeGremlinID(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int64 untouched", int64(4096), int64(4096)},
		{"json float", float64(4096), int64(4096)},
		{"fractional float kept", 1.5, 1.5},
		{"json number", json.Number("8192"), int64(8192)},
		{"int", 12, int64(12)},
		{"numeric string", " 40 ", int64(40)},
		{"custom string id", "abc-123", "abc-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeGremlinID(tt.in))
		})
	}
}

func TestProjectedVertex(t *testing.T) {
	raw := map[any]any{
		"id":    int64(4112),
		"label": "notion",
		"props": map[any]any{
			"caption":     []any{"Grace"},
			"description": "scalar from a lenient serializer",
		},
	}

	pm, err := projectedVertex(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(4112), pm.ID())
	assert.Equal(t, "notion", pm.Label())
	assert.Equal(t, []any{"Grace"}, pm["caption"])
	desc, ok := pm.Value("description")
	assert.True(t, ok)
	assert.Equal(t, "scalar from a lenient serializer", desc)

	// A property literally named "label" stays a property.
	raw["props"] = map[string]any{"label": []any{"shadow"}}
	pm, err = projectedVertex(raw)
	require.NoError(t, err)
	assert.Equal(t, "notion", pm.Label())
	assert.Equal(t, []any{"shadow"}, pm["label"])

	_, err = projectedVertex("not a map")
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestToInt(t *testing.T) {
	for _, v := range []any{int64(3), int32(3), 3, 3.0} {
		n, err := toInt(v)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	}
	_, err := toInt("3")
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestIncidentEdgeCount(t *testing.T) {
	n, err := incidentEdgeCount([]*gremlingo.Result{{Data: map[any]any{"edges": int64(3)}}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = incidentEdgeCount(nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = incidentEdgeCount([]*gremlingo.Result{{Data: "unexpected"}})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestNewGremlinEngine_RequiresURL(t *testing.T) {
	_, err := NewGremlinEngine(GremlinOptions{})
	assert.Error(t, err)
}
