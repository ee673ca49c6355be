package errors

import (
	"errors"
	"net/http"

	f "github.com/soffa-projects/tenantdb/core"
)

type CustomError struct {
	Code    int
	Message string
}

func (e *CustomError) Error() string {
	return e.Message
}

func BadRequest(message string) error {
	return &CustomError{
		Code:    http.StatusBadRequest,
		Message: message,
	}
}

func Unauthorized(message string) error {
	return &CustomError{
		Code:    http.StatusUnauthorized,
		Message: message,
	}
}

func Forbidden(message string) error {
	return &CustomError{
		Code:    http.StatusForbidden,
		Message: message,
	}
}

func Unavailable(message string) error {
	return &CustomError{
		Code:    http.StatusServiceUnavailable,
		Message: message,
	}
}

// GetStatusCode extracts HTTP status code from error.
// Routing errors that are not CustomError values are mapped by kind.
func GetStatusCode(err error) int {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, f.ErrInvalidTenant):
		return http.StatusBadRequest
	case errors.Is(err, f.ErrAcquireTimeout), errors.Is(err, f.ErrNoDefaultPool),
		errors.Is(err, f.ErrPoolCreation), errors.Is(err, f.ErrRegistryClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
