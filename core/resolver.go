package f

import (
	"context"
	"strings"
)

// DefaultTenant is the parent tenant used when none is configured.
const DefaultTenant = "crusher"

// TenantResolver turns "no tenant" into the configured default.
type TenantResolver struct {
	DefaultTenant string
}

func NewTenantResolver(defaultTenant string) TenantResolver {
	defaultTenant = strings.TrimSpace(defaultTenant)
	if defaultTenant == "" {
		defaultTenant = DefaultTenant
	}
	return TenantResolver{DefaultTenant: defaultTenant}
}

// ResolveCurrent returns the tenant of ctx, or the default tenant when ctx
// carries none (or a blank one).
func (r TenantResolver) ResolveCurrent(ctx context.Context) string {
	if id, ok := GetTenant(ctx); ok {
		if strings.TrimSpace(id) != "" {
			return id
		}
	}
	return r.defaultTenant()
}

// IsDefault reports whether id routes to the default pool.
func (r TenantResolver) IsDefault(id string) bool {
	id = strings.TrimSpace(id)
	return id == "" || strings.EqualFold(id, r.defaultTenant())
}

func (r TenantResolver) defaultTenant() string {
	if r.DefaultTenant == "" {
		return DefaultTenant
	}
	return r.DefaultTenant
}
