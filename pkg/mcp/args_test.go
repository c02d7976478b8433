package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/theomcp/pkg/apperror"
	"github.com/orneryd/theomcp/pkg/graph"
)

// decodeArgs builds arguments the way they arrive from a client.
func decodeArgs(t *testing.T, raw string) map[string]any {
	t.Helper()
	var args map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &args))
	return args
}

func TestGetInt(t *testing.T) {
	args := decodeArgs(t, `{"limit": 20, "offset": "5", "bad": 1.5, "word": "ten"}`)

	n, err := getInt(args, "limit", 1000)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = getInt(args, "offset", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = getInt(args, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	for _, key := range []string{"bad", "word"} {
		_, err = getInt(args, key, 0)
		assert.ErrorIs(t, err, apperror.ErrInvalidArgument, key)
	}
}

func TestRequireInternalID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    any
		wantErr bool
	}{
		{name: "string identity", raw: `{"internal_id": "7f0c"}`, want: "7f0c"},
		{name: "numeric identity", raw: `{"internal_id": 4128}`, want: int64(4128)},
		{name: "numeric string stays a string", raw: `{"internal_id": "4128"}`, want: "4128"},
		{name: "missing", raw: `{}`, wantErr: true},
		{name: "empty", raw: `{"internal_id": ""}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := requireInternalID(decodeArgs(t, tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetStringSlice(t *testing.T) {
	args := decodeArgs(t, `{"labels": ["verse", "book"], "one": "notion", "none": [], "mixed": ["a", 1]}`)

	got, err := getStringSlice(args, "labels")
	require.NoError(t, err)
	assert.Equal(t, []string{"verse", "book"}, got)

	got, err = getStringSlice(args, "one")
	require.NoError(t, err)
	assert.Equal(t, []string{"notion"}, got)

	got, err = getStringSlice(args, "none")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = getStringSlice(args, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = getStringSlice(args, "mixed")
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
}

func TestGetCaptionMap(t *testing.T) {
	args := decodeArgs(t, `{"edges_out": {"isSupportedBy": ["To"], "refersTo": "Jn 1:1"}, "bad": {"refersTo": [1]}}`)

	got, err := getCaptionMap(args, "edges_out")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"isSupportedBy": {"To"}, "refersTo": {"Jn 1:1"}}, got)

	_, err = getCaptionMap(args, "bad")
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)
}

func TestGetReferences(t *testing.T) {
	args := decodeArgs(t, `{
		"supported_by": [{"caption": "To"}, {"id": 3, "label": "verse"}],
		"bad_id": [{"id": "three"}],
		"empty_ref": [{"label": "notion"}],
		"not_list": {"caption": "To"}
	}`)

	refs, err := getReferences(args, "supported_by")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, graph.ByCaption("To", ""), refs[0])
	assert.Equal(t, graph.ByID(3, "verse"), refs[1])

	_, err = getReferences(args, "bad_id")
	assert.ErrorIs(t, err, apperror.ErrInvalidReference)

	_, err = getReferences(args, "empty_ref")
	assert.ErrorIs(t, err, apperror.ErrInvalidReference)

	_, err = getReferences(args, "not_list")
	assert.ErrorIs(t, err, apperror.ErrInvalidArgument)

	refs, err = getReferences(args, "missing")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestInlineReference(t *testing.T) {
	ref, err := inlineReference(decodeArgs(t, `{"caption": "Grace", "label": "notion", "id": null}`))
	require.NoError(t, err)
	assert.Equal(t, graph.ByCaption("Grace", "notion"), ref)

	_, err = inlineReference(decodeArgs(t, `{"label": "notion"}`))
	assert.ErrorIs(t, err, apperror.ErrInvalidReference)
}
