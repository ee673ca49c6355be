package adapters

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"

	f "github.com/soffa-projects/tenantdb/core"
	"github.com/uptrace/bun"
)

// connectionImpl is a leased session. Closing the underlying bun.Conn hands
// it back to the pool that issued it, so no pool bookkeeping is needed here.
type connectionImpl struct {
	pool     *poolImpl
	conn     bun.Conn
	released atomic.Bool
}

func newConnection(pool *poolImpl, conn bun.Conn) *connectionImpl {
	return &connectionImpl{
		pool: pool,
		conn: conn,
	}
}

func (c *connectionImpl) Tenant() string {
	return c.pool.tenant
}

func (c *connectionImpl) Target() string {
	return c.pool.target
}

func (c *connectionImpl) DB() bun.IDB {
	return c.conn
}

// Release returns the connection to its pool. Calling it more than once is a no-op.
func (c *connectionImpl) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

func (c *connectionImpl) check() error {
	if c.released.Load() {
		return f.ErrConnectionReleased
	}
	return nil
}

func (c *connectionImpl) Ping(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.conn.PingContext(ctx)
}

func (c *connectionImpl) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.conn.RunInTx(ctx, nil, fn)
}

func (c *connectionImpl) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *connectionImpl) Insert(ctx context.Context, entity f.Entity) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.conn.NewInsert().Model(entity).Exec(ctx)
	return err
}

func (c *connectionImpl) Update(ctx context.Context, entity f.Entity, columns ...string) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.conn.
		NewUpdate().
		Model(entity).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return err
}

func (c *connectionImpl) Delete(ctx context.Context, entity f.Entity) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.conn.NewDelete().Model(entity).WherePK().Exec(ctx)
	return err
}

func (c *connectionImpl) DeleteBy(ctx context.Context, entity f.Entity, where string, args ...any) error {
	if err := c.check(); err != nil {
		return err
	}
	_, err := c.conn.NewDelete().Model(entity).Where(where, args...).Exec(ctx)
	return err
}

// FindBy loads the first row matching where into entity and reports whether one was found.
func (c *connectionImpl) FindBy(ctx context.Context, entity f.Entity, where string, args ...any) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	err := c.conn.NewSelect().Model(entity).Where(where, args...).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *connectionImpl) ExistsBy(ctx context.Context, entity f.Entity, where string, args ...any) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	return c.conn.NewSelect().Model(entity).Where(where, args...).Exists(ctx)
}

func (c *connectionImpl) CountBy(ctx context.Context, entity f.Entity, where string, args ...any) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.conn.NewSelect().Model(entity).Where(where, args...).Count(ctx)
}

func (c *connectionImpl) Query(ctx context.Context, model f.Entity, opts ...f.QueryOpts) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	return Query(ctx, c.conn.NewSelect(), model, opts...)
}

// ------------------------------------------------------------------------------------------------------------------
// COMMON
// ------------------------------------------------------------------------------------------------------------------

// Query applies options to query and scans into model. It reports whether
// at least one row was found.
func Query(ctx context.Context, query *bun.SelectQuery, model f.Entity, options ...f.QueryOpts) (bool, error) {
	q := query.Model(model)
	for _, opts := range options {
		if opts.Columns != "" {
			q = q.ColumnExpr(opts.Columns)
		}
		for _, join := range opts.Joins {
			q = q.Join(join)
		}
		if opts.Where != "" {
			q = q.Where(opts.Where, opts.Args...)
		}
		if opts.OrderBy != "" {
			q = q.Order(opts.OrderBy)
		}
		if opts.Limit > 0 {
			q = q.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			q = q.Offset(opts.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
