package adapters

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"

	f "github.com/soffa-projects/tenantdb/core"
)

// fakePool hands out fakeConnections and records its lifecycle.
type fakePool struct {
	tenant     string
	target     string
	acquireErr error
	acquired   atomic.Int32
	released   atomic.Int32
	closed     atomic.Bool
}

func (p *fakePool) Tenant() string { return p.tenant }
func (p *fakePool) Target() string { return p.target }

func (p *fakePool) Acquire(ctx context.Context) (f.Connection, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.acquired.Add(1)
	return &fakeConnection{pool: p}, nil
}

func (p *fakePool) Ping(_ context.Context) error { return nil }
func (p *fakePool) Stats() sql.DBStats           { return sql.DBStats{MaxOpenConnections: 1} }

func (p *fakePool) Close() error {
	p.closed.Store(true)
	return nil
}

type fakeConnection struct {
	f.Connection
	pool     *fakePool
	released atomic.Bool
}

func (c *fakeConnection) Tenant() string               { return c.pool.tenant }
func (c *fakeConnection) Target() string               { return c.pool.target }
func (c *fakeConnection) Ping(_ context.Context) error { return nil }

func (c *fakeConnection) Release() error {
	if c.released.CompareAndSwap(false, true) {
		c.pool.released.Add(1)
	}
	return nil
}

// fakeFactory builds fakePools and counts invocations per tenant. Tenants
// listed in failures fail that many times before succeeding.
type fakeFactory struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	configs  []f.PoolConfig
}

var errUnreachable = errors.New("dial tcp: connection refused")

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		calls:    map[string]int{},
		failures: map[string]int{},
	}
}

func (ff *fakeFactory) build(_ context.Context, cfg f.PoolConfig) (f.Pool, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.calls[cfg.Tenant]++
	ff.configs = append(ff.configs, cfg)
	if ff.failures[cfg.Tenant] > 0 {
		ff.failures[cfg.Tenant]--
		return nil, errUnreachable
	}
	return &fakePool{tenant: cfg.Tenant, target: cfg.Url}, nil
}

func (ff *fakeFactory) callsFor(tenant string) int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.calls[tenant]
}

func (ff *fakeFactory) lastConfig() f.PoolConfig {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.configs[len(ff.configs)-1]
}

type staticSource []f.Tenant

func (s staticSource) Load(_ context.Context) ([]f.Tenant, error) {
	return s, nil
}
