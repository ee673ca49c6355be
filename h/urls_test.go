package h

import (
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestParseUrl(t *testing.T) {
	u, err := ParseUrl("https://token@tenants.example.com/api/tenants?region=eu")
	assert.Equal(t, err, nil)
	assert.Equal(t, u.Scheme, "https")
	assert.Equal(t, u.Host, "tenants.example.com")
	assert.Equal(t, u.User, "token")
	assert.Equal(t, u.Path, "/api/tenants")
	assert.Equal(t, u.QueryString("region"), "eu")
	assert.Equal(t, u.QueryString("missing"), "")
}

func TestRemoveParamFromUrl(t *testing.T) {
	out, err := RemoveParamFromUrl("postgres://db:5432/acme?schema=acme&sslmode=disable", "schema")
	assert.Equal(t, err, nil)
	assert.Equal(t, out, "postgres://db:5432/acme?sslmode=disable")
}

func TestRedactUrl(t *testing.T) {
	redacted := RedactUrl("postgres://app:s3cret@db:5432/acme")
	assert.Equal(t, strings.Contains(redacted, "s3cret"), false)
	assert.Equal(t, strings.Contains(redacted, "db:5432/acme"), true)

	assert.Equal(t, RedactUrl("postgres://db:5432/acme"), "postgres://db:5432/acme")
	assert.Equal(t, RedactUrl("app:s3cret@tcp(db:3306)/acme"), "xxxxx@tcp(db:3306)/acme")
	assert.Equal(t, RedactUrl("sqlite:///tmp/acme.db"), "sqlite:///tmp/acme.db")
}
