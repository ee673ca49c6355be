package f

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/uptrace/bun"
)

type Entity any

const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// FailurePolicy decides what happens when a tenant pool cannot be built.
type FailurePolicy string

const (
	// FailureFallback serves the request from the default pool.
	FailureFallback FailurePolicy = "fallback"
	// FailureFail returns the construction error to the caller.
	FailureFail FailurePolicy = "fail"
)

const (
	DefaultMaxPoolSize       = 10
	DefaultConnectionTimeout = 30 * time.Second
	DefaultIdleTimeout       = 10 * time.Minute
	DefaultMaxLifetime       = 30 * time.Minute
	DefaultValidationTimeout = 5 * time.Second
)

// Pool owns a bounded set of live connections to one database.
type Pool interface {
	Tenant() string
	Target() string
	Acquire(ctx context.Context) (Connection, error)
	Ping(ctx context.Context) error
	Stats() sql.DBStats
	Close() error
}

// PoolFactory builds a validated pool from cfg.
type PoolFactory func(ctx context.Context, cfg PoolConfig) (Pool, error)

// Connection is a leased database session. It belongs to exactly one caller
// between Acquire and Release.
type Connection interface {
	Tenant() string
	Target() string
	DB() bun.IDB
	Ping(ctx context.Context) error
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Insert(ctx context.Context, model Entity) error
	Update(ctx context.Context, model Entity, columns ...string) error
	Delete(ctx context.Context, model Entity) error
	DeleteBy(ctx context.Context, model Entity, where string, args ...any) error
	FindBy(ctx context.Context, model Entity, where string, args ...any) (bool, error)
	ExistsBy(ctx context.Context, model Entity, where string, args ...any) (bool, error)
	CountBy(ctx context.Context, model Entity, where string, args ...any) (int, error)
	Query(ctx context.Context, model Entity, opts ...QueryOpts) (bool, error)
	Release() error
}

type QueryOpts struct {
	Columns string
	Joins   []string
	Where   string
	OrderBy string
	Args    []any
	Limit   int
	Offset  int
}

// PoolConfig is everything needed to open one pool.
type PoolConfig struct {
	Tenant            string
	Url               string
	Driver            string
	Username          string
	Password          string
	MaxPoolSize       int
	ConnectionTimeout time.Duration
	IdleTimeout       time.Duration
	MaxLifetime       time.Duration
	ValidationTimeout time.Duration
}

// ConnectionTemplate describes how tenant pools are built. It is immutable
// once the provider is started.
type ConnectionTemplate struct {
	// URLTemplate holds exactly one %s slot for the tenant identifier.
	URLTemplate       string
	Username          string
	Password          string
	Driver            string
	MaxPoolSize       int
	ConnectionTimeout time.Duration
	IdleTimeout       time.Duration
	MaxLifetime       time.Duration
	ValidationTimeout time.Duration
}

// Validate checks the template has a single substitution slot.
func (t ConnectionTemplate) Validate() error {
	unescaped := strings.ReplaceAll(t.URLTemplate, "%%", "")
	if strings.Count(unescaped, "%") != 1 || strings.Count(unescaped, "%s") != 1 {
		return fmt.Errorf("%w: %q must contain exactly one %%s", ErrInvalidTemplate, t.URLTemplate)
	}
	return nil
}

// Render substitutes tenant into the template.
func (t ConnectionTemplate) Render(tenant string) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	if err := ValidateTenantId(tenant); err != nil {
		return "", err
	}
	return fmt.Sprintf(t.URLTemplate, tenant), nil
}

// PoolConfig renders the template for tenant and applies defaults to the
// tuning parameters left unset.
func (t ConnectionTemplate) PoolConfig(tenant string) (PoolConfig, error) {
	url, err := t.Render(tenant)
	if err != nil {
		return PoolConfig{}, err
	}
	return PoolConfig{
		Tenant:            tenant,
		Url:               url,
		Driver:            t.Driver,
		Username:          t.Username,
		Password:          t.Password,
		MaxPoolSize:       t.MaxPoolSize,
		ConnectionTimeout: t.ConnectionTimeout,
		IdleTimeout:       t.IdleTimeout,
		MaxLifetime:       t.MaxLifetime,
		ValidationTimeout: t.ValidationTimeout,
	}.WithDefaults(), nil
}

func (c PoolConfig) WithDefaults() PoolConfig {
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = DefaultMaxPoolSize
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = DefaultConnectionTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = DefaultMaxLifetime
	}
	if c.ValidationTimeout <= 0 {
		c.ValidationTimeout = DefaultValidationTimeout
	}
	if c.Driver == "" {
		c.Driver = DriverFromUrl(c.Url)
	}
	return c
}

// ValidateTenantId rejects identifiers that would change the structure of
// the rendered connection string.
func ValidateTenantId(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTenant)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune("/?#@:%\\", r) {
			return fmt.Errorf("%w: %q", ErrInvalidTenant, id)
		}
	}
	return nil
}

// DriverFromUrl infers the driver from a connection string scheme.
func DriverFromUrl(url string) string {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "pgx://"):
		return DriverPgx
	case strings.HasPrefix(url, "mysql://"):
		return DriverMySQL
	case strings.HasPrefix(url, "sqlite://"), strings.HasPrefix(url, "file:"):
		return DriverSQLite
	}
	return ""
}
