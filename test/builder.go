package test

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// Helper runs a handler behind a live test server with a client pointed at it.
type Helper struct {
	Server *httptest.Server
	Http   *RestClient
	Assert Assertions
}

func New(t *testing.T, handler http.Handler) *Helper {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &Helper{
		Server: server,
		Http:   NewRestClient(t, server.URL),
		Assert: NewAssertions(t),
	}
}
