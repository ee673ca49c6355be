package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/assert/v2"
	f "github.com/soffa-projects/tenantdb/core"
)

func TestCustomError_Error(t *testing.T) {
	err := &CustomError{
		Code:    http.StatusBadRequest,
		Message: "test error message",
	}
	assert.Equal(t, err.Error(), "test error message")
}

func TestForbidden(t *testing.T) {
	err := Forbidden("tenant mismatch")

	assert.NotEqual(t, err, nil)
	assert.Equal(t, err.Error(), "tenant mismatch")

	var ce *CustomError
	assert.Equal(t, errors.As(err, &ce), true)
	assert.Equal(t, ce.Code, http.StatusForbidden)
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, GetStatusCode(BadRequest("bad")), http.StatusBadRequest)
	assert.Equal(t, GetStatusCode(Unauthorized("who")), http.StatusUnauthorized)
	assert.Equal(t, GetStatusCode(Forbidden("not yours")), http.StatusForbidden)
	assert.Equal(t, GetStatusCode(Unavailable("down")), http.StatusServiceUnavailable)
}

func TestGetStatusCode_WithWrappedCustomError(t *testing.T) {
	err := fmt.Errorf("handler: %w", Forbidden("not yours"))
	assert.Equal(t, GetStatusCode(err), http.StatusForbidden)
}

func TestGetStatusCode_WithStandardError(t *testing.T) {
	assert.Equal(t, GetStatusCode(errors.New("boom")), http.StatusInternalServerError)
}

func TestGetStatusCode_RoutingErrors(t *testing.T) {
	timeout := fmt.Errorf("%w: tenant acme after 30s", f.ErrAcquireTimeout)
	assert.Equal(t, GetStatusCode(timeout), http.StatusServiceUnavailable)
	assert.Equal(t, GetStatusCode(f.ErrNoDefaultPool), http.StatusServiceUnavailable)
	assert.Equal(t, GetStatusCode(f.ErrRegistryClosed), http.StatusServiceUnavailable)

	creation := fmt.Errorf("%w: tenant acme: %w", f.ErrPoolCreation, errors.New("dial tcp: refused"))
	assert.Equal(t, GetStatusCode(creation), http.StatusServiceUnavailable)
}

func TestGetStatusCode_InvalidTenantWinsOverCreationFailure(t *testing.T) {
	err := fmt.Errorf("%w: tenant a/b: %w", f.ErrPoolCreation, f.ErrInvalidTenant)
	assert.Equal(t, GetStatusCode(err), http.StatusBadRequest)
}
