package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	f "github.com/soffa-projects/tenantdb/core"
	"github.com/soffa-projects/tenantdb/h"
	"github.com/soffa-projects/tenantdb/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// poolImpl wraps the database/sql pool behind a bun.DB. Wait queues, idle
// eviction and connection health are left to database/sql.
type poolImpl struct {
	tenant string
	target string
	cfg    f.PoolConfig
	db     *bun.DB
}

// NewPool opens a pool for cfg and validates it with a bounded ping. A pool
// that fails validation is closed before the error is returned.
func NewPool(ctx context.Context, cfg f.PoolConfig) (f.Pool, error) {
	cfg = cfg.WithDefaults()
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool for tenant %s (%s): %w", cfg.Tenant, h.RedactUrl(cfg.Url), err)
	}
	db.SetMaxOpenConns(cfg.MaxPoolSize)
	db.SetMaxIdleConns(cfg.MaxPoolSize)
	db.SetConnMaxIdleTime(cfg.IdleTimeout)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ValidationTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to validate pool for tenant %s (%s): %w", cfg.Tenant, h.RedactUrl(cfg.Url), err)
	}
	log.Debug("pool opened for tenant %s: driver=%s max=%d", cfg.Tenant, cfg.Driver, cfg.MaxPoolSize)
	return &poolImpl{
		tenant: cfg.Tenant,
		target: cfg.Url,
		cfg:    cfg,
		db:     db,
	}, nil
}

func (p *poolImpl) Tenant() string {
	return p.tenant
}

func (p *poolImpl) Target() string {
	return p.target
}

// Acquire leases a connection, waiting at most ConnectionTimeout when the
// pool is saturated.
func (p *poolImpl) Acquire(ctx context.Context) (f.Connection, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
	defer cancel()
	conn, err := p.db.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: tenant %s after %s", f.ErrAcquireTimeout, p.tenant, p.cfg.ConnectionTimeout)
		}
		return nil, err
	}
	return newConnection(p, conn), nil
}

func (p *poolImpl) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *poolImpl) Stats() sql.DBStats {
	return p.db.Stats()
}

func (p *poolImpl) Close() error {
	return p.db.Close()
}

// ------------------------------------------------------------------------------------------------------------------
// DRIVERS
// ------------------------------------------------------------------------------------------------------------------

func openDB(cfg f.PoolConfig) (db *bun.DB, err error) {
	// pgdriver.WithDSN panics on malformed input.
	defer func() {
		if r := recover(); r != nil {
			db, err = nil, fmt.Errorf("%w: %v", f.ErrInvalidTemplate, r)
		}
	}()
	switch cfg.Driver {
	case f.DriverPostgres:
		return openPostgres(cfg)
	case f.DriverPgx:
		return openPgx(cfg)
	case f.DriverMySQL:
		return openMySQL(cfg)
	case f.DriverSQLite:
		return openSQLite(cfg)
	}
	return nil, fmt.Errorf("%w: %q", f.ErrUnsupportedDriver, cfg.Driver)
}

// splitSchema removes the schema query parameter used by the
// schema-per-tenant layout and returns it separately.
func splitSchema(databaseUrl string) (string, string, error) {
	u, err := h.ParseUrl(databaseUrl)
	if err != nil {
		return "", "", err
	}
	schema := u.QueryString("schema")
	if schema == "" {
		return databaseUrl, "", nil
	}
	dsn, err := h.RemoveParamFromUrl(databaseUrl, "schema")
	return dsn, schema, err
}

func openPostgres(cfg f.PoolConfig) (*bun.DB, error) {
	dsn, schema, err := splitSchema(cfg.Url)
	if err != nil {
		return nil, err
	}
	opts := []pgdriver.Option{
		pgdriver.WithDSN(dsn),
		pgdriver.WithDialTimeout(cfg.ConnectionTimeout),
	}
	if cfg.Username != "" {
		opts = append(opts, pgdriver.WithUser(cfg.Username))
	}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	if schema != "" {
		opts = append(opts, pgdriver.WithConnParams(map[string]interface{}{"search_path": schema}))
	}
	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func openPgx(cfg f.PoolConfig) (*bun.DB, error) {
	dsn, schema, err := splitSchema(cfg.Url)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(dsn, "pgx://") {
		dsn = "postgres://" + strings.TrimPrefix(dsn, "pgx://")
	}
	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.Username != "" {
		connConfig.User = cfg.Username
	}
	if cfg.Password != "" {
		connConfig.Password = cfg.Password
	}
	connConfig.ConnectTimeout = cfg.ConnectionTimeout
	if schema != "" {
		connConfig.RuntimeParams["search_path"] = schema
	}
	sqldb := stdlib.OpenDB(*connConfig)
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func openMySQL(cfg f.PoolConfig) (*bun.DB, error) {
	mc, err := mysql.ParseDSN(strings.TrimPrefix(cfg.Url, "mysql://"))
	if err != nil {
		return nil, err
	}
	if cfg.Username != "" {
		mc.User = cfg.Username
	}
	if cfg.Password != "" {
		mc.Passwd = cfg.Password
	}
	mc.Timeout = cfg.ConnectionTimeout
	mc.ParseTime = true
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sql.OpenDB(connector), mysqldialect.New()), nil
}

func openSQLite(cfg f.PoolConfig) (*bun.DB, error) {
	dsn := strings.TrimPrefix(cfg.Url, "sqlite://")
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}
