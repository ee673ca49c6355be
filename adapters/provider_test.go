package adapters

import (
	"context"
	"fmt"
	"sync"
	"testing"

	f "github.com/soffa-projects/tenantdb/core"
	"github.com/soffa-projects/tenantdb/test"
)

func newTestProvider(t *testing.T, factory *fakeFactory, opts ...ProviderOption) *ConnectionProvider {
	t.Helper()
	options := append([]ProviderOption{WithPoolFactory(factory.build)}, opts...)
	provider, err := NewConnectionProvider(NewPoolRegistry(), f.ConnectionTemplate{URLTemplate: "db://host/%s"}, options...)
	if err != nil {
		t.Fatal(err)
	}
	if err := provider.OpenDefault(context.Background(), f.PoolConfig{Url: "db://host/crusher"}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func TestNewConnectionProvider_InvalidTemplate(t *testing.T) {
	assert := test.NewAssertions(t)

	_, err := NewConnectionProvider(NewPoolRegistry(), f.ConnectionTemplate{URLTemplate: "db://host/fixed"})
	assert.ErrorIs(err, f.ErrInvalidTemplate)

	_, err = NewConnectionProvider(NewPoolRegistry(), f.ConnectionTemplate{URLTemplate: "db://host/%s"}, WithFailurePolicy("retry"))
	assert.NotNil(err)
}

func TestGetConnection_DefaultTenantUsesDefaultPool(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	provider := newTestProvider(t, factory)

	for _, id := range []string{"", "  ", "crusher", "CRUSHER"} {
		cnx, err := provider.GetConnection(context.Background(), id)
		assert.Nil(err)
		assert.Equals(cnx.Tenant(), "crusher")
		assert.Nil(provider.ReleaseConnection(cnx))
	}
	// only the default pool was ever built
	assert.Equals(factory.callsFor("crusher"), 1)
	assert.Equals(provider.Registry().Len(), 0)
}

func TestGetConnection_BuildsTenantPoolFromTemplate(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	provider := newTestProvider(t, factory)

	cnx, err := provider.GetConnection(context.Background(), "acme")
	assert.Nil(err)
	assert.Equals(cnx.Tenant(), "acme")
	assert.Equals(cnx.Target(), "db://host/acme")
	assert.Nil(provider.ReleaseConnection(cnx))

	cfg := factory.lastConfig()
	assert.Equals(cfg.Tenant, "acme")
	assert.Equals(cfg.Url, "db://host/acme")
	assert.Equals(cfg.MaxPoolSize, f.DefaultMaxPoolSize)

	_, err = provider.GetConnection(context.Background(), "acme")
	assert.Nil(err)
	assert.Equals(factory.callsFor("acme"), 1)
	assert.Equals(provider.Registry().Tenants(), []string{"acme"})
}

func TestGetConnection_ConcurrentFirstUseBuildsOnce(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	provider := newTestProvider(t, factory)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cnx, err := provider.GetConnection(context.Background(), "acme")
			if err == nil {
				_ = provider.ReleaseConnection(cnx)
			}
		}()
	}
	wg.Wait()
	assert.Equals(factory.callsFor("acme"), 1)
}

func TestGetConnection_FallbackOnConstructionFailure(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	factory.failures["acme"] = 1
	provider := newTestProvider(t, factory)

	cnx, err := provider.GetConnection(context.Background(), "acme")
	assert.Nil(err)
	assert.Equals(cnx.Tenant(), "crusher")
	assert.Nil(provider.ReleaseConnection(cnx))
	_, ok := provider.Registry().Get("acme")
	assert.False(ok)

	// the failure is not remembered
	cnx, err = provider.GetConnection(context.Background(), "acme")
	assert.Nil(err)
	assert.Equals(cnx.Tenant(), "acme")
	assert.Equals(factory.callsFor("acme"), 2)
}

func TestGetConnection_FailPolicy(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	factory.failures["acme"] = 1
	provider := newTestProvider(t, factory, WithFailurePolicy(f.FailureFail))

	_, err := provider.GetConnection(context.Background(), "acme")
	assert.ErrorIs(err, f.ErrPoolCreation)
	assert.ErrorIs(err, errUnreachable)
}

func TestGetConnection_InvalidTenantFallsBack(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	provider := newTestProvider(t, factory)

	cnx, err := provider.GetConnection(context.Background(), "acme/../other")
	assert.Nil(err)
	assert.Equals(cnx.Tenant(), "crusher")
	assert.Equals(factory.callsFor("acme/../other"), 0)
}

func TestGetConnection_PaddedIdIsNotRewritten(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	provider := newTestProvider(t, factory)

	cnx, err := provider.GetConnection(context.Background(), " acme")
	assert.Nil(err)
	assert.Equals(cnx.Tenant(), "crusher")
	assert.Equals(factory.callsFor("acme"), 0)
	assert.Equals(provider.Registry().Len(), 0)

	_, err = provider.Register(context.Background(), "acme ")
	assert.ErrorIs(err, f.ErrInvalidTenant)
}

func TestGetConnection_NoDefaultPool(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	factory.failures["acme"] = 1
	provider, err := NewConnectionProvider(NewPoolRegistry(), f.ConnectionTemplate{URLTemplate: "db://host/%s"}, WithPoolFactory(factory.build))
	assert.Nil(err)

	_, err = provider.GetConnection(context.Background(), "")
	assert.ErrorIs(err, f.ErrNoDefaultPool)

	_, err = provider.GetConnection(context.Background(), "acme")
	assert.ErrorIs(err, f.ErrPoolCreation)
	assert.ErrorIs(err, f.ErrNoDefaultPool)
}

func TestGetConnection_AcquireTimeoutIsReturned(t *testing.T) {
	assert := test.NewAssertions(t)
	registry := NewPoolRegistry()
	timeout := fmt.Errorf("%w: tenant acme after 1s", f.ErrAcquireTimeout)
	_, err := registry.GetOrCreate("acme", func() (f.Pool, error) {
		return &fakePool{tenant: "acme", acquireErr: timeout}, nil
	})
	assert.Nil(err)
	provider, err := NewConnectionProvider(registry, f.ConnectionTemplate{URLTemplate: "db://host/%s"})
	assert.Nil(err)

	_, err = provider.GetConnection(context.Background(), "acme")
	assert.ErrorIs(err, f.ErrAcquireTimeout)
}

func TestGetCurrentConnection(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	provider := newTestProvider(t, factory)

	ctx, tc := f.NewTenantContext(context.Background())
	cnx, err := provider.GetCurrentConnection(ctx)
	assert.Nil(err)
	assert.Equals(cnx.Tenant(), "crusher")

	tc.Set("acme")
	cnx, err = provider.GetCurrentConnection(ctx)
	assert.Nil(err)
	assert.Equals(cnx.Tenant(), "acme")

	tc.Clear()
	cnx, err = provider.GetCurrentConnection(ctx)
	assert.Nil(err)
	assert.Equals(cnx.Tenant(), "crusher")
}

func TestGetAnyConnection_IgnoresTenant(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	provider := newTestProvider(t, factory)

	cnx, err := provider.GetAnyConnection(f.WithTenant(context.Background(), "acme"))
	assert.Nil(err)
	assert.Equals(cnx.Tenant(), "crusher")
	assert.Equals(factory.callsFor("acme"), 0)
}

func TestReleaseConnection(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	provider := newTestProvider(t, factory)

	cnx, err := provider.GetConnection(context.Background(), "acme")
	assert.Nil(err)
	pool, _ := provider.Registry().Get("acme")

	assert.Nil(provider.ReleaseConnection(cnx))
	assert.Nil(provider.ReleaseConnection(cnx))
	assert.Nil(provider.ReleaseConnection(nil))
	assert.Equals(pool.(*fakePool).released.Load(), int32(1))
}

func TestRegister_ReturnsConstructionError(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	factory.failures["acme"] = 1
	provider := newTestProvider(t, factory)

	_, err := provider.Register(context.Background(), "acme")
	assert.ErrorIs(err, errUnreachable)

	pool, err := provider.Register(context.Background(), "acme")
	assert.Nil(err)
	assert.Equals(pool.Tenant(), "acme")

	def, err := provider.Register(context.Background(), "crusher")
	assert.Nil(err)
	assert.Equals(def.Tenant(), "crusher")
}

func TestWarmup(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	factory.failures["broken"] = 1
	provider := newTestProvider(t, factory, WithWarmupConcurrency(2))

	source := staticSource{{ID: "acme"}, {ID: "globex"}, {ID: "crusher"}, {ID: "broken"}, {ID: "initech"}}
	assert.Nil(provider.Warmup(context.Background(), source))

	assert.Equals(provider.Registry().Tenants(), []string{"acme", "globex", "initech"})
	assert.Equals(factory.callsFor("crusher"), 1)
	assert.Equals(factory.callsFor("broken"), 1)
}

func TestWarmup_CancelledContext(t *testing.T) {
	assert := test.NewAssertions(t)
	factory := newFakeFactory()
	provider := newTestProvider(t, factory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := provider.Warmup(ctx, staticSource{{ID: "acme"}})
	assert.ErrorIs(err, context.Canceled)
	assert.Equals(provider.Registry().Len(), 0)
}

func TestPrometheusCollectors(t *testing.T) {
	assert := test.NewAssertions(t)
	provider := newTestProvider(t, newFakeFactory())

	assert.True(len(provider.PrometheusCollectors()) > 0)
}
