package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orneryd/theomcp/pkg/storage"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		raw  storage.PropertyMap
		want Record
	}{
		{
			name: "metadata and single values",
			raw: storage.PropertyMap{
				storage.TokenID:    int64(4128),
				storage.TokenLabel: "notion",
				"caption":          []any{"Grace"},
				"id":               []any{int64(7)},
			},
			want: Record{"internal_id": int64(4128), "label": "notion", "caption": "Grace", "id": int64(7)},
		},
		{
			name: "multi-valued property stays a list",
			raw: storage.PropertyMap{
				storage.TokenID:    "v1",
				storage.TokenLabel: "person",
				"alias":            []any{"Paul", "Saul"},
			},
			want: Record{"internal_id": "v1", "label": "person", "alias": []any{"Paul", "Saul"}},
		},
		{
			name: "scalar passes through",
			raw:  storage.PropertyMap{"caption": "bare"},
			want: Record{"caption": "bare"},
		},
		{
			name: "empty list passes through",
			raw: storage.PropertyMap{
				storage.TokenLabel: "book",
				"internal":         []any{},
			},
			want: Record{"label": "book", "internal": []any{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flatten(tt.raw))
		})
	}
}

func TestRecord_Summary(t *testing.T) {
	rec := Record{"internal_id": "v9", "label": "verse", "caption": "Jn 1:1", "id": int64(43001), "RST": "..."}
	assert.Equal(t, Summary{Label: "verse", ID: int64(43001), InternalID: "v9", Caption: "Jn 1:1"}, rec.Summary())
	assert.Equal(t, "Jn 1:1", rec.Caption())

	empty := Record{}
	assert.Equal(t, "", empty.Label())
	assert.Nil(t, empty.Summary().ID)
}
