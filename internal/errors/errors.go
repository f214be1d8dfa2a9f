package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an error for API clients.
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound         ErrorType = "NOT_FOUND"
	ErrorTypeInternal         ErrorType = "INTERNAL_ERROR"
	ErrorTypeTimeout          ErrorType = "TIMEOUT"
	ErrorTypeConflict         ErrorType = "CONFLICT"
	ErrorTypeRateLimit        ErrorType = "RATE_LIMIT"
	ErrorTypeServiceDown      ErrorType = "SERVICE_DOWN"
	ErrorTypeUnsupportedMedia ErrorType = "UNSUPPORTED_MEDIA"
	ErrorTypeUnprocessable    ErrorType = "UNPROCESSABLE"
)

// AppError is an error with an HTTP status and client-facing message.
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Err        error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails merges details into the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

func New(errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, errType ErrorType, message string, httpStatus int) *AppError {
	return &AppError{
		Type:       errType,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func NewValidationError(message string) *AppError {
	return New(ErrorTypeValidation, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return New(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message, http.StatusInternalServerError)
}

func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message, http.StatusInternalServerError)
}

func NewTimeoutError(message string) *AppError {
	return New(ErrorTypeTimeout, message, http.StatusRequestTimeout)
}

// NewConflictError is used when an operation needs a loaded video.
func NewConflictError(message string) *AppError {
	return New(ErrorTypeConflict, message, http.StatusConflict)
}

func NewRateLimitError(message string) *AppError {
	return New(ErrorTypeRateLimit, message, http.StatusTooManyRequests)
}

func NewServiceDownError(service string) *AppError {
	return New(ErrorTypeServiceDown, fmt.Sprintf("%s service is currently unavailable", service), http.StatusServiceUnavailable)
}

// WrapUnsupportedMedia reports a container or codec the decoder cannot handle.
func WrapUnsupportedMedia(err error, message string) *AppError {
	return Wrap(err, ErrorTypeUnsupportedMedia, message, http.StatusUnsupportedMediaType)
}

// WrapUnprocessable reports a file that opened but could not be decoded.
func WrapUnprocessable(err error, message string) *AppError {
	return Wrap(err, ErrorTypeUnprocessable, message, http.StatusUnprocessableEntity)
}

func IsAppError(err error) bool {
	_, ok := GetAppError(err)
	return ok
}

// GetAppError finds the first AppError in err's chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
