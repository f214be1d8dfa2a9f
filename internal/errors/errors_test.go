package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	plain := NewValidationError("frame must not be negative")
	assert.Equal(t, "VALIDATION_ERROR: frame must not be negative", plain.Error())

	cause := errors.New("permission denied")
	wrapped := Wrap(cause, ErrorTypeNotFound, "video not readable", http.StatusNotFound)
	assert.Equal(t, "NOT_FOUND: video not readable (caused by: permission denied)", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err    *AppError
		typ    ErrorType
		status int
	}{
		{NewValidationError("x"), ErrorTypeValidation, http.StatusBadRequest},
		{NewNotFoundError("session"), ErrorTypeNotFound, http.StatusNotFound},
		{NewInternalError("x"), ErrorTypeInternal, http.StatusInternalServerError},
		{NewTimeoutError("x"), ErrorTypeTimeout, http.StatusRequestTimeout},
		{NewConflictError("x"), ErrorTypeConflict, http.StatusConflict},
		{NewRateLimitError("x"), ErrorTypeRateLimit, http.StatusTooManyRequests},
		{NewServiceDownError("redis"), ErrorTypeServiceDown, http.StatusServiceUnavailable},
		{WrapUnsupportedMedia(nil, "x"), ErrorTypeUnsupportedMedia, http.StatusUnsupportedMediaType},
		{WrapUnprocessable(nil, "x"), ErrorTypeUnprocessable, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.typ, tt.err.Type)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
		})
	}

	assert.Equal(t, "session not found", NewNotFoundError("session").Message)
}

func TestDetailsAndCode(t *testing.T) {
	err := NewValidationError("bad seek").
		WithCode("SEEK_RANGE").
		WithDetails(map[string]interface{}{"frame": -1}).
		WithDetails(map[string]interface{}{"max": 299})

	assert.Equal(t, "SEEK_RANGE", err.Code)
	assert.Equal(t, -1, err.Details["frame"])
	assert.Equal(t, 299, err.Details["max"])
}

func TestGetAppError(t *testing.T) {
	app := NewConflictError("no video loaded")

	got, ok := GetAppError(fmt.Errorf("seek: %w", app))
	assert.True(t, ok)
	assert.Same(t, app, got)
	assert.True(t, IsAppError(app))

	_, ok = GetAppError(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsAppError(nil))
}
