package app

import (
	"context"
	"fmt"
	"time"

	"github.com/soffa-projects/tenantdb/adapters"
	"github.com/soffa-projects/tenantdb/config"
	f "github.com/soffa-projects/tenantdb/core"
	"github.com/soffa-projects/tenantdb/h"
	"github.com/soffa-projects/tenantdb/log"
)

const shutdownTimeout = 10 * time.Second

// App owns the connection provider and everything built on top of it.
type App struct {
	Name     string
	Provider *adapters.ConnectionProvider
	Tokens   f.TokenProvider
	cfg      *config.Config
	cache    h.Cache
	server   *adapters.Server
}

// New opens the default pool, then preloads tenant pools when a tenant
// source is configured. Extra provider options are applied after the ones
// derived from cfg.
func New(ctx context.Context, name string, cfg *config.Config, opts ...adapters.ProviderOption) (*App, error) {
	log.SetLevel(cfg.LogLevel)

	options := append([]adapters.ProviderOption{
		adapters.WithResolver(f.NewTenantResolver(cfg.DefaultTenant)),
		adapters.WithFailurePolicy(cfg.Policy()),
	}, opts...)
	provider, err := adapters.NewConnectionProvider(adapters.NewPoolRegistry(), cfg.Template(), options...)
	if err != nil {
		return nil, err
	}
	if err := provider.OpenDefault(ctx, cfg.DefaultPool()); err != nil {
		return nil, fmt.Errorf("failed to open default pool: %w", err)
	}

	app := &App{
		Name:     name,
		Provider: provider,
		cfg:      cfg,
	}
	if cfg.HasTokens() {
		app.Tokens, err = adapters.NewTokenProvider(cfg.Jwt())
		if err != nil {
			_ = provider.Close()
			return nil, err
		}
	}
	if cfg.TenantSource != "" {
		source, err := adapters.NewTenantSource(cfg.TenantSource)
		if err != nil {
			_ = provider.Close()
			return nil, err
		}
		if err := provider.Warmup(ctx, source); err != nil {
			log.Warn("tenant warmup skipped: %v", err)
		}
	}
	return app, nil
}

// Server builds the HTTP server on first use.
func (app *App) Server() (*adapters.Server, error) {
	if app.server != nil {
		return app.server, nil
	}
	cache, err := h.NewCache()
	if err != nil {
		return nil, err
	}
	app.cache = cache
	app.server = adapters.NewServer(adapters.ServerConfig{
		Name:     app.Name,
		Provider: app.Provider,
		Tenant: adapters.TenantMiddlewareConfig{
			Tokens:      app.Tokens,
			AllowHeader: app.cfg.AllowTenantHeader,
			Cache:       cache,
		},
	})
	return app.server, nil
}

// Start serves HTTP until ctx is cancelled, then shuts everything down.
func (app *App) Start(ctx context.Context, port int) error {
	server, err := app.Server()
	if err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("starting webserver...")
		errc <- server.Listen(port)
	}()
	select {
	case err = <-errc:
	case <-ctx.Done():
		log.Info("shutdown notice received ...")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	app.Shutdown(shutdownCtx)
	return err
}

func (app *App) Shutdown(ctx context.Context) {
	if app.server != nil {
		if err := app.server.Shutdown(ctx); err != nil {
			log.Error("error shutting down server: %v", err)
		}
	}
	if app.cache != nil {
		app.cache.Close()
	}
	if err := app.Provider.Close(); err != nil {
		log.Error("error closing pools: %v", err)
	}
	log.Info("shutdown complete")
}
