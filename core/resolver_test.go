package f

import (
	"context"
	"testing"

	"github.com/soffa-projects/tenantdb/test"
)

func TestResolveCurrent(t *testing.T) {
	assert := test.NewAssertions(t)
	resolver := NewTenantResolver("")

	assert.Equals(resolver.ResolveCurrent(context.Background()), DefaultTenant)

	ctx, tc := NewTenantContext(context.Background())
	assert.Equals(resolver.ResolveCurrent(ctx), "crusher")

	tc.Set("   ")
	assert.Equals(resolver.ResolveCurrent(ctx), "crusher")

	tc.Set("acme")
	assert.Equals(resolver.ResolveCurrent(ctx), "acme")

	// ids are opaque; only blankness is checked
	tc.Set(" acme ")
	assert.Equals(resolver.ResolveCurrent(ctx), " acme ")

	tc.Clear()
	assert.Equals(resolver.ResolveCurrent(ctx), "crusher")
}

func TestResolveCurrent_ConfiguredDefault(t *testing.T) {
	assert := test.NewAssertions(t)
	resolver := NewTenantResolver("parent")

	assert.Equals(resolver.ResolveCurrent(context.Background()), "parent")
	assert.Equals(resolver.ResolveCurrent(WithTenant(context.Background(), "acme")), "acme")
}

func TestIsDefault(t *testing.T) {
	assert := test.NewAssertions(t)
	resolver := NewTenantResolver("crusher")

	assert.True(resolver.IsDefault(""))
	assert.True(resolver.IsDefault("  "))
	assert.True(resolver.IsDefault("crusher"))
	assert.True(resolver.IsDefault("Crusher"))
	assert.False(resolver.IsDefault("acme"))

	var zero TenantResolver
	assert.True(zero.IsDefault(DefaultTenant))
}
