package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorError(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without internal error",
			err:      New(KindNotFound, "vertex not found: label=%s id=%d", "notion", 7),
			expected: "not_found: vertex not found: label=notion id=7",
		},
		{
			name:     "with internal error",
			err:      New(KindStoreFailure, "create vertex").WithInternal(errors.New("connection reset")),
			expected: "store_failure: create vertex (connection reset)",
		},
		{
			name:     "empty message",
			err:      &Error{Kind: KindAmbiguous},
			expected: "ambiguous: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := New(KindAlreadyExists, "vertex already exists: caption=%q", "Grace")
	wrapped := fmt.Errorf("create: %w", err)

	assert.True(t, errors.Is(wrapped, ErrAlreadyExists))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, KindAlreadyExists, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestWithDetailsCopies(t *testing.T) {
	base := New(KindAmbiguous, "ambiguous")
	withDetails := base.WithDetails(map[string]any{"matches": 2})

	assert.Nil(t, base.Details)
	assert.Equal(t, 2, withDetails.Details["matches"])
	assert.Equal(t, base.Message, withDetails.Message)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ignored"))

	typed := New(KindNotFound, "missing")
	assert.Same(t, typed, Wrap(typed, "outer"))

	cause := errors.New("socket closed")
	err := Wrap(cause, "read vertex %s", "abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreFailure))
	assert.True(t, errors.Is(err, cause))
}

func TestToResponse(t *testing.T) {
	err := New(KindAmbiguous, "two matches").WithDetails(map[string]any{"matches": []string{"a", "b"}})
	body := ToResponse(fmt.Errorf("resolve: %w", err))

	inner := body["error"].(map[string]any)
	assert.Equal(t, "ambiguous", inner["kind"])
	assert.Equal(t, "two matches", inner["message"])
	assert.Equal(t, []string{"a", "b"}, inner["details"].(map[string]any)["matches"])

	body = ToResponse(errors.New("boom"))
	inner = body["error"].(map[string]any)
	assert.Equal(t, "internal_error", inner["kind"])
	assert.NotContains(t, inner, "details")
}
