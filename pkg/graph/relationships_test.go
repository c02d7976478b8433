package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/theomcp/pkg/apperror"
	"github.com/orneryd/theomcp/pkg/schema"
)

func TestInverseTables(t *testing.T) {
	for direct, inverse := range inverseOf {
		assert.NotEqual(t, direct, inverse)
		back, ok := DirectName(inverse)
		require.True(t, ok)
		assert.Equal(t, direct, back)
	}

	inv, ok := InverseName("isSupportedBy")
	assert.True(t, ok)
	assert.Equal(t, "supports", inv)

	_, ok = InverseName("writtenBy")
	assert.False(t, ok)
}

func TestRenameIncoming(t *testing.T) {
	a := Summary{Caption: "A"}
	b := Summary{Caption: "B"}

	got := RenameIncoming(Relationships{
		"isSupportedBy": {a},
		"next":          {b},
		"writtenBy":     {a, b},
	})

	assert.Equal(t, Relationships{
		"supports":  {a},
		"previous":  {b},
		"writtenBy": {a, b},
	}, got)
}

func TestMergeRelationshipView(t *testing.T) {
	a := Summary{Caption: "A"}
	b := Summary{Caption: "B"}
	c := Summary{Caption: "C"}

	got := MergeRelationshipView(
		Relationships{"refersTo": {a}, "writtenBy": {b}},
		Relationships{"isReferredBy": {c}, "writtenBy": {c}},
	)
	assert.Equal(t, Relationships{
		"refersTo":     {a},
		"isReferredBy": {c},
		"writtenBy":    {b, c},
	}, got)

	assert.Empty(t, MergeRelationshipView(nil, nil))
	assert.NotNil(t, MergeRelationshipView(nil, nil))
}

func TestPartitionCallerRelationships(t *testing.T) {
	reg := schema.Default(false)

	tests := []struct {
		name    string
		input   map[string][]string
		wantOut map[string][]string
		wantIn  map[string][]string
		wantErr error
	}{
		{
			name:    "direct and inverse",
			input:   map[string][]string{"isSupportedBy": {"To"}, "supports": {"From"}},
			wantOut: map[string][]string{"isSupportedBy": {"To"}},
			wantIn:  map[string][]string{"isSupportedBy": {"From"}},
		},
		{
			name:    "labels without an inverse are outgoing",
			input:   map[string][]string{"writtenBy": {"John"}, "ISPARALLELTO": {"Mk 1:1"}},
			wantOut: map[string][]string{"writtenBy": {"John"}, "isParallelTo": {"Mk 1:1"}},
			wantIn:  map[string][]string{},
		},
		{
			name:    "inverse names merge with the direct label",
			input:   map[string][]string{"isContainedIn": {"Group A"}, "previous": {"Gen 1:1"}},
			wantOut: map[string][]string{},
			wantIn:  map[string][]string{"contains": {"Group A"}, "next": {"Gen 1:1"}},
		},
		{
			name:    "unknown name",
			input:   map[string][]string{"likes": {"X"}},
			wantErr: apperror.ErrUnknownEdgeLabel,
		},
		{
			name:    "empty",
			input:   nil,
			wantOut: map[string][]string{},
			wantIn:  map[string][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, in, err := PartitionCallerRelationships(reg, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out)
			assert.Equal(t, tt.wantIn, in)
		})
	}
}
