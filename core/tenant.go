package f

import (
	"context"
	"sync"
)

// TenantContext holds the tenant a single unit of work operates as.
//
// A holder is attached to a request context by the request boundary adapter
// and shared by everything running under that context. Concurrent requests
// get distinct holders, so they never observe each other's tenant.
type TenantContext struct {
	mu     sync.RWMutex
	tenant string
	set    bool
}

type tenantContextKey struct{}

// NewTenantContext attaches an empty holder to ctx.
func NewTenantContext(ctx context.Context) (context.Context, *TenantContext) {
	tc := &TenantContext{}
	return context.WithValue(ctx, tenantContextKey{}, tc), tc
}

// WithTenant returns a child context carrying id. Prefer this over the
// mutable holder whenever the call chain accepts a context.
func WithTenant(ctx context.Context, id string) context.Context {
	ctx, tc := NewTenantContext(ctx)
	tc.Set(id)
	return ctx
}

// TenantContextFrom returns the innermost holder of ctx, or nil.
func TenantContextFrom(ctx context.Context) *TenantContext {
	if ctx == nil {
		return nil
	}
	tc, _ := ctx.Value(tenantContextKey{}).(*TenantContext)
	return tc
}

// SetTenant stores id in the holder of ctx. It reports false when ctx
// carries no holder.
func SetTenant(ctx context.Context, id string) bool {
	tc := TenantContextFrom(ctx)
	if tc == nil {
		return false
	}
	tc.Set(id)
	return true
}

func GetTenant(ctx context.Context) (string, bool) {
	tc := TenantContextFrom(ctx)
	if tc == nil {
		return "", false
	}
	return tc.Get()
}

func ClearTenant(ctx context.Context) {
	if tc := TenantContextFrom(ctx); tc != nil {
		tc.Clear()
	}
}

func (tc *TenantContext) Set(id string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tenant = id
	tc.set = true
}

func (tc *TenantContext) Get() (string, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.tenant, tc.set
}

func (tc *TenantContext) Clear() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.tenant = ""
	tc.set = false
}
