package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollidesWithExisting_NamesThreshold(t *testing.T) {
	err := NewCollidesWithExisting(1001, 999)

	assert.Equal(t, CodeCollidesWithExisting, err.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
	assert.Equal(t, "nextNumber must be greater than the highest already-issued number (1001).", err.Message)
	assert.Equal(t, int64(1001), err.Details["highest"])
	assert.Equal(t, int64(999), err.Details["proposed"])
}

func TestHasCode_ThroughWrapping(t *testing.T) {
	base := NewEntityArchived("le-1")
	wrapped := fmt.Errorf("create quote: %w", base)

	assert.True(t, HasCode(wrapped, CodeEntityArchived))
	assert.False(t, HasCode(wrapped, CodeEntityNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatus(wrapped))
}

func TestStoreUnavailable_KeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewStoreUnavailable(cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetHTTPStatus_PlainError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("boom")))
}
