package f

import (
	"context"
)

// Tenant is an entry of a tenant listing used to preload pools.
type Tenant struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type TenantList struct {
	Tenants []Tenant `json:"tenants"`
}

// TenantSource lists the tenants known ahead of the first request.
type TenantSource interface {
	Load(ctx context.Context) ([]Tenant, error)
}

// PoolInfo is a point-in-time view of one registered pool.
type PoolInfo struct {
	Tenant          string `json:"tenant"`
	Target          string `json:"target"`
	Default         bool   `json:"default"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	WaitCount       int64  `json:"wait_count"`
}
