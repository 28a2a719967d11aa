package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, New(ErrCodeNotFound, "x").HTTPStatus)
	assert.Equal(t, http.StatusBadRequest, New(ErrCodeValidation, "x").HTTPStatus)
	assert.Equal(t, http.StatusConflict, New(ErrCodeConflict, "x").HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, New(ErrCodeInternal, "x").HTTPStatus)
}

func TestWrappedErrorsAreRecognised(t *testing.T) {
	err := fmt.Errorf("update product: %w", ErrProductLocked)
	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))

	cause := errors.New("db down")
	wrapped := Wrap(cause, ErrCodeInternal, "failed to load product")
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "db down")
}
