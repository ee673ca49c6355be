package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	f "github.com/soffa-projects/tenantdb/core"
	"github.com/soffa-projects/tenantdb/h"
	"github.com/soffa-projects/tenantdb/log"
	"golang.org/x/sync/errgroup"
)

const (
	routeDefault  = "default"
	routeTenant   = "tenant"
	routeFallback = "fallback"
)

const defaultWarmupConcurrency = 4

// ConnectionProvider hands out connections for whatever tenant is active,
// building tenant pools on first use.
type ConnectionProvider struct {
	registry          *PoolRegistry
	template          f.ConnectionTemplate
	resolver          f.TenantResolver
	factory           f.PoolFactory
	policy            f.FailurePolicy
	warmupConcurrency int
	metrics           *providerMetrics
}

type ProviderOption func(*ConnectionProvider)

// WithPoolFactory replaces NewPool as the way tenant pools are built.
func WithPoolFactory(factory f.PoolFactory) ProviderOption {
	return func(p *ConnectionProvider) {
		p.factory = factory
	}
}

func WithFailurePolicy(policy f.FailurePolicy) ProviderOption {
	return func(p *ConnectionProvider) {
		if policy != "" {
			p.policy = policy
		}
	}
}

func WithResolver(resolver f.TenantResolver) ProviderOption {
	return func(p *ConnectionProvider) {
		p.resolver = resolver
	}
}

func WithWarmupConcurrency(n int) ProviderOption {
	return func(p *ConnectionProvider) {
		if n > 0 {
			p.warmupConcurrency = n
		}
	}
}

func NewConnectionProvider(registry *PoolRegistry, template f.ConnectionTemplate, opts ...ProviderOption) (*ConnectionProvider, error) {
	if err := template.Validate(); err != nil {
		return nil, err
	}
	p := &ConnectionProvider{
		registry:          registry,
		template:          template,
		resolver:          f.NewTenantResolver(""),
		factory:           NewPool,
		policy:            f.FailureFallback,
		warmupConcurrency: defaultWarmupConcurrency,
		metrics:           newProviderMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.policy != f.FailureFallback && p.policy != f.FailureFail {
		return nil, fmt.Errorf("unknown failure policy: %s", p.policy)
	}
	return p, nil
}

// OpenDefault builds the default pool from cfg and installs it.
func (p *ConnectionProvider) OpenDefault(ctx context.Context, cfg f.PoolConfig) error {
	if cfg.Tenant == "" {
		cfg.Tenant = p.resolver.DefaultTenant
	}
	pool, err := p.factory(ctx, cfg)
	if err != nil {
		return err
	}
	if err := p.registry.SetDefault(pool); err != nil {
		_ = pool.Close()
		return err
	}
	log.Info("default pool ready: %s", h.RedactUrl(cfg.Url))
	return nil
}

func (p *ConnectionProvider) Registry() *PoolRegistry {
	return p.registry
}

func (p *ConnectionProvider) Resolver() f.TenantResolver {
	return p.resolver
}

// GetConnection returns a connection for tenantId. Blank ids and the default
// tenant are served by the default pool. A tenant whose pool cannot be built
// is served by the default pool too, unless the failure policy is "fail".
func (p *ConnectionProvider) GetConnection(ctx context.Context, tenantId string) (f.Connection, error) {
	start := time.Now()
	pool, route, err := p.resolvePool(ctx, tenantId)
	if err != nil {
		return nil, err
	}
	return p.acquire(ctx, pool, route, start)
}

// GetCurrentConnection returns a connection for the tenant carried by ctx.
func (p *ConnectionProvider) GetCurrentConnection(ctx context.Context) (f.Connection, error) {
	return p.GetConnection(ctx, p.resolver.ResolveCurrent(ctx))
}

// GetAnyConnection returns a connection from the default pool, for work
// that does not belong to a tenant.
func (p *ConnectionProvider) GetAnyConnection(ctx context.Context) (f.Connection, error) {
	start := time.Now()
	pool, err := p.registry.Default()
	if err != nil {
		return nil, err
	}
	return p.acquire(ctx, pool, routeDefault, start)
}

// ReleaseConnection returns cnx to the pool it came from.
func (p *ConnectionProvider) ReleaseConnection(cnx f.Connection) error {
	if cnx == nil {
		return nil
	}
	return cnx.Release()
}

// Register builds and registers the pool of tenantId ahead of its first
// request. Construction errors are returned, never masked.
func (p *ConnectionProvider) Register(ctx context.Context, tenantId string) (f.Pool, error) {
	if p.resolver.IsDefault(tenantId) {
		return p.registry.Default()
	}
	return p.registry.GetOrCreate(tenantId, func() (f.Pool, error) {
		return p.buildPool(ctx, tenantId)
	})
}

// Warmup registers the pools of every tenant listed by source. Tenants whose
// pool cannot be built are logged and left for lazy creation.
func (p *ConnectionProvider) Warmup(ctx context.Context, source f.TenantSource) error {
	tenants, err := source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tenants: %w", err)
	}
	var g errgroup.Group
	g.SetLimit(p.warmupConcurrency)
	var failed atomic.Int32
	for _, tenant := range tenants {
		id := tenant.ID
		if p.resolver.IsDefault(id) {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := p.Register(ctx, id); err != nil {
				failed.Add(1)
				log.Warn("warmup: pool for tenant %s not created: %v", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("warmup completed: %d tenants listed, %d failed", len(tenants), failed.Load())
	return nil
}

func (p *ConnectionProvider) Close() error {
	return p.registry.Close()
}

// PrometheusCollectors returns the provider and registry metrics.
func (p *ConnectionProvider) PrometheusCollectors() []prometheus.Collector {
	return append(p.metrics.PrometheusCollectors(), p.registry.PrometheusCollectors()...)
}

func (p *ConnectionProvider) resolvePool(ctx context.Context, tenantId string) (f.Pool, string, error) {
	if p.resolver.IsDefault(tenantId) {
		pool, err := p.registry.Default()
		return pool, routeDefault, err
	}
	pool, err := p.registry.GetOrCreate(tenantId, func() (f.Pool, error) {
		return p.buildPool(ctx, tenantId)
	})
	if err == nil {
		return pool, routeTenant, nil
	}
	if p.policy == f.FailureFail || errors.Is(err, f.ErrRegistryClosed) {
		return nil, "", fmt.Errorf("%w: tenant %s: %w", f.ErrPoolCreation, tenantId, err)
	}
	def, defErr := p.registry.Default()
	if defErr != nil {
		return nil, "", fmt.Errorf("%w: tenant %s: %w", f.ErrPoolCreation, tenantId, errors.Join(err, defErr))
	}
	log.Warn("failed to create pool for tenant %s, falling back to default pool: %v", tenantId, err)
	p.metrics.fallbacks.Inc()
	return def, routeFallback, nil
}

// buildPool runs detached from the caller's cancellation: the result is
// shared with every caller waiting on the same tenant.
func (p *ConnectionProvider) buildPool(ctx context.Context, tenantId string) (f.Pool, error) {
	cfg, err := p.template.PoolConfig(tenantId)
	if err != nil {
		return nil, err
	}
	log.Info("creating pool for tenant %s: %s", tenantId, h.RedactUrl(cfg.Url))
	return p.factory(context.WithoutCancel(ctx), cfg)
}

func (p *ConnectionProvider) acquire(ctx context.Context, pool f.Pool, route string, start time.Time) (f.Connection, error) {
	cnx, err := pool.Acquire(ctx)
	p.metrics.acquireDur.WithLabelValues(route).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, f.ErrAcquireTimeout) {
			p.metrics.timeouts.Inc()
			log.Error("connection acquisition timed out for tenant %s: %v", pool.Tenant(), err)
		}
		return nil, err
	}
	p.metrics.acquisitions.WithLabelValues(route).Inc()
	return cnx, nil
}
