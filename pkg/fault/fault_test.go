package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		err := New(CodeValidation, "quantity must be positive")
		assert.Equal(t, CodeValidation, CodeOf(err))
	})

	t.Run("wrapped", func(t *testing.T) {
		inner := Wrap(CodeNetwork, "post items", errors.New("connection reset"))
		outer := fmt.Errorf("create item: %w", inner)
		assert.Equal(t, CodeNetwork, CodeOf(outer))
		assert.True(t, HasCode(outer, CodeNetwork))
		assert.False(t, HasCode(outer, CodeValidation))
	})

	t.Run("uncoded defaults to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})
}

func TestWrapPreservesChain(t *testing.T) {
	err := Wrap(CodeNotFound, "load item", ErrNotFound)
	require.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "name must not be empty", Message(New(CodeValidation, "name must not be empty")))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "", Message(nil))
}

func TestBulkError(t *testing.T) {
	be := &BulkError{
		Succeeded: 8,
		Total:     10,
		Rejected: []Rejection{
			{ID: uuid.New(), Reason: "not found"},
			{ID: uuid.New(), Reason: "not found"},
		},
	}
	err := fmt.Errorf("bulk update: %w", be)

	got, ok := AsBulk(err)
	require.True(t, ok)
	assert.Equal(t, 8, got.Succeeded)
	assert.Len(t, got.Rejected, 2)
	assert.Contains(t, be.Error(), "2 of 10")

	_, ok = AsBulk(errors.New("plain"))
	assert.False(t, ok)
}

func TestHTTPStatusRoundTrip(t *testing.T) {
	for _, code := range []Code{
		CodeValidation, CodeUnauthorized, CodeNotFound,
		CodeRoomUnavailable, CodeConflict, CodeTimeout,
	} {
		assert.Equal(t, code, CodeFromHTTPStatus(HTTPStatus(code)), "code %s", code)
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(CodeInternal))
	assert.Equal(t, CodeNetwork, CodeFromHTTPStatus(http.StatusBadGateway))
}
