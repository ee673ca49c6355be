package adapters

import (
	"github.com/prometheus/client_golang/prometheus"
	f "github.com/soffa-projects/tenantdb/core"
)

const namespace = "tenantdb"

const (
	registrySubsystem = "registry"
	providerSubsystem = "provider"
	poolSubsystem     = "pool"
)

// registryMetrics holds metrics related to the pool registry.
type registryMetrics struct {
	pools     prometheus.GaugeFunc
	creations *prometheus.CounterVec // labelled by result = {"success", "failure"}
	stats     *poolStatsCollector
}

func newRegistryMetrics(r *PoolRegistry) *registryMetrics {
	return &registryMetrics{
		pools: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: registrySubsystem,
			Name:      "tenant_pools",
			Help:      "Number of tenant pools currently registered, excluding the default pool.",
		}, func() float64 { return float64(r.Len()) }),

		creations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: registrySubsystem,
			Name:      "pool_creations_total",
			Help:      "Total number of tenant pool constructions by result.",
		}, []string{"result"}),

		stats: newPoolStatsCollector(r),
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *registryMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.pools,
		m.creations,
		m.stats,
	}
}

// providerMetrics holds metrics related to connection routing.
type providerMetrics struct {
	acquisitions *prometheus.CounterVec   // labelled by route = {"default", "tenant", "fallback"}
	fallbacks    prometheus.Counter       // tenant pool construction failures served by the default pool
	timeouts     prometheus.Counter       // acquisitions that hit the pool timeout
	acquireDur   *prometheus.HistogramVec // labelled by route
}

func newProviderMetrics() *providerMetrics {
	labels := []string{"route"}
	return &providerMetrics{
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: providerSubsystem,
			Name:      "acquisitions_total",
			Help:      "Total number of connections handed out by route.",
		}, labels),

		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: providerSubsystem,
			Name:      "fallbacks_total",
			Help:      "Total number of requests served by the default pool after a tenant pool failed to build.",
		}),

		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: providerSubsystem,
			Name:      "acquire_timeouts_total",
			Help:      "Total number of connection acquisitions that timed out.",
		}),

		acquireDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: providerSubsystem,
			Name:      "acquire_duration_seconds",
			Help:      "Histogram of times spent obtaining a connection, pool construction included.",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 9),
		}, labels),
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *providerMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.acquisitions,
		m.fallbacks,
		m.timeouts,
		m.acquireDur,
	}
}

// poolStatsCollector exports database/sql statistics of every registered pool.
type poolStatsCollector struct {
	registry *PoolRegistry

	open     *prometheus.Desc
	inUse    *prometheus.Desc
	idle     *prometheus.Desc
	waits    *prometheus.Desc
	maxOpen  *prometheus.Desc
	waitTime *prometheus.Desc
}

func newPoolStatsCollector(r *PoolRegistry) *poolStatsCollector {
	labels := []string{"tenant", "default"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, poolSubsystem, name), help, labels, nil)
	}
	return &poolStatsCollector{
		registry: r,
		open:     desc("open_connections", "Number of established connections, in use and idle."),
		inUse:    desc("in_use_connections", "Number of connections currently leased."),
		idle:     desc("idle_connections", "Number of idle connections."),
		waits:    desc("wait_count_total", "Total number of connections waited for."),
		maxOpen:  desc("max_open_connections", "Maximum number of open connections."),
		waitTime: desc("wait_duration_seconds_total", "Total time blocked waiting for a connection."),
	}
}

func (c *poolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.open
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waits
	ch <- c.maxOpen
	ch <- c.waitTime
}

func (c *poolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	if def, err := c.registry.Default(); err == nil {
		c.collectPool(ch, def.Tenant(), "true", def)
	}
	for _, id := range c.registry.Tenants() {
		if pool, ok := c.registry.Get(id); ok {
			c.collectPool(ch, id, "false", pool)
		}
	}
}

func (c *poolStatsCollector) collectPool(ch chan<- prometheus.Metric, tenant string, isDefault string, pool f.Pool) {
	stats := pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(stats.OpenConnections), tenant, isDefault)
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stats.InUse), tenant, isDefault)
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stats.Idle), tenant, isDefault)
	ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(stats.WaitCount), tenant, isDefault)
	ch <- prometheus.MustNewConstMetric(c.maxOpen, prometheus.GaugeValue, float64(stats.MaxOpenConnections), tenant, isDefault)
	ch <- prometheus.MustNewConstMetric(c.waitTime, prometheus.CounterValue, stats.WaitDuration.Seconds(), tenant, isDefault)
}
