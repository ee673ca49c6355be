package adapters

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	f "github.com/soffa-projects/tenantdb/core"
	"github.com/soffa-projects/tenantdb/h"
	"github.com/soffa-projects/tenantdb/log"
	"golang.org/x/sync/singleflight"
)

// PoolRegistry maps tenant identifiers to live pools, plus one default pool.
//
// Lookups never block. Construction of a missing pool is deduplicated per
// tenant: concurrent GetOrCreate calls for the same id share one factory
// invocation, while calls for different ids run independently. Failed
// constructions are not remembered.
type PoolRegistry struct {
	pools   sync.Map // tenant id -> f.Pool
	flights singleflight.Group
	count   atomic.Int64

	mu      sync.RWMutex
	def     f.Pool
	closed  bool
	metrics *registryMetrics
}

func NewPoolRegistry() *PoolRegistry {
	r := &PoolRegistry{}
	r.metrics = newRegistryMetrics(r)
	return r
}

// Get returns the pool registered for id.
func (r *PoolRegistry) Get(id string) (f.Pool, bool) {
	if v, ok := r.pools.Load(id); ok {
		return v.(f.Pool), true
	}
	return nil, false
}

// GetOrCreate returns the pool for id, building it with factory when none
// is registered yet. The first caller wins; callers racing with it receive
// the winner's pool.
func (r *PoolRegistry) GetOrCreate(id string, factory func() (f.Pool, error)) (f.Pool, error) {
	if pool, ok := r.Get(id); ok {
		return pool, nil
	}
	v, err, _ := r.flights.Do(id, func() (any, error) {
		// A flight for id may have completed between the lookup above and
		// this one starting.
		if pool, ok := r.Get(id); ok {
			return pool, nil
		}
		if r.isClosed() {
			return nil, f.ErrRegistryClosed
		}
		pool, err := factory()
		if err != nil {
			r.metrics.creations.WithLabelValues("failure").Inc()
			return nil, err
		}
		if pool == nil {
			return nil, fmt.Errorf("pool factory returned no pool for tenant %s", id)
		}
		r.mu.RLock()
		if r.closed {
			r.mu.RUnlock()
			_ = pool.Close()
			return nil, f.ErrRegistryClosed
		}
		r.pools.Store(id, pool)
		r.count.Add(1)
		r.mu.RUnlock()
		r.metrics.creations.WithLabelValues("success").Inc()
		log.Info("tenant %s pool registered (%d tenants)", id, r.count.Load())
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(f.Pool), nil
}

// SetDefault installs the default pool. It can only be done once.
func (r *PoolRegistry) SetDefault(pool f.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.def != nil {
		return f.ErrDefaultPoolAlreadySet
	}
	r.def = pool
	return nil
}

func (r *PoolRegistry) Default() (f.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.def == nil {
		return nil, f.ErrNoDefaultPool
	}
	return r.def, nil
}

// Tenants returns the registered tenant ids, sorted.
func (r *PoolRegistry) Tenants() []string {
	tenants := []string{}
	r.pools.Range(func(key, _ any) bool {
		tenants = append(tenants, key.(string))
		return true
	})
	sort.Strings(tenants)
	return tenants
}

func (r *PoolRegistry) Len() int {
	return int(r.count.Load())
}

// Pools returns a snapshot of every pool, the default one first.
func (r *PoolRegistry) Pools() []f.PoolInfo {
	var infos []f.PoolInfo
	if def, err := r.Default(); err == nil {
		infos = append(infos, poolInfo(def, true))
	}
	for _, id := range r.Tenants() {
		if pool, ok := r.Get(id); ok {
			infos = append(infos, poolInfo(pool, false))
		}
	}
	return infos
}

// Close closes every pool. Pools are never evicted while the process runs,
// so this is meant for shutdown only.
func (r *PoolRegistry) Close() error {
	r.mu.Lock()
	r.closed = true
	def := r.def
	r.mu.Unlock()

	var errs []error
	r.pools.Range(func(key, value any) bool {
		if err := value.(f.Pool).Close(); err != nil {
			errs = append(errs, err)
		}
		r.pools.Delete(key)
		r.count.Add(-1)
		return true
	})
	if def != nil {
		if err := def.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *PoolRegistry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// PrometheusCollectors returns the registry metrics.
func (r *PoolRegistry) PrometheusCollectors() []prometheus.Collector {
	return r.metrics.PrometheusCollectors()
}

func poolInfo(pool f.Pool, isDefault bool) f.PoolInfo {
	stats := pool.Stats()
	return f.PoolInfo{
		Tenant:          pool.Tenant(),
		Target:          h.RedactUrl(pool.Target()),
		Default:         isDefault,
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
	}
}
