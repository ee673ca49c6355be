package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	prettylogger "github.com/rdbell/echo-pretty-logger"
	f "github.com/soffa-projects/tenantdb/core"
	"github.com/soffa-projects/tenantdb/errors"
	"github.com/soffa-projects/tenantdb/h"
	"github.com/soffa-projects/tenantdb/log"
	"github.com/ztrue/tracerr"
)

const TenantHeader = "X-TenantId"

const _tenantIdKey = "tenantId"

const maxTokenCacheTtl = 15 * time.Minute

// TenantMiddlewareConfig drives how a request is mapped to a tenant.
type TenantMiddlewareConfig struct {
	Tokens f.TokenProvider
	// AllowHeader accepts the X-TenantId header when the request carries no token.
	AllowHeader bool
	// Cache remembers the tenant of verified tokens. Optional.
	Cache h.Cache
}

// TenantMiddleware attaches a TenantContext to every request and clears it
// when the request ends, whatever the exit path. Requests without a tenant
// run as the default tenant. A bearer token that fails verification is
// rejected.
func TenantMiddleware(cfg TenantMiddlewareConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantId, err := cfg.tenantOf(c.Request())
			if err != nil {
				return err
			}
			ctx, tc := f.NewTenantContext(c.Request().Context())
			defer tc.Clear()
			if tenantId != "" {
				tc.Set(tenantId)
			}
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(_tenantIdKey, tenantId)
			return next(c)
		}
	}
}

func (cfg TenantMiddlewareConfig) tenantOf(req *http.Request) (string, error) {
	token := bearerToken(req)
	if token == "" {
		if cfg.AllowHeader {
			return strings.TrimSpace(req.Header.Get(TenantHeader)), nil
		}
		return "", nil
	}
	if cfg.Tokens == nil {
		return "", errors.Unauthorized("token verification is not configured")
	}
	if cfg.Cache != nil {
		if v, ok := cfg.Cache.Get(token); ok {
			return v.(string), nil
		}
	}
	verified, err := cfg.Tokens.Verify(token)
	// A token that fails verification is refused, not treated as the default tenant.
	if err != nil {
		log.Debug("rejected bearer token: %v", err)
		return "", errors.Unauthorized("invalid token")
	}
	tenantId := h.FirstClaimValue(verified, f.TenantClaims...)
	if cfg.Cache != nil {
		ttl := maxTokenCacheTtl
		if exp, ok := verified.Expiration(); ok {
			if remaining := time.Until(exp); remaining < ttl {
				ttl = remaining
			}
		}
		cfg.Cache.SetWithTTL(token, tenantId, ttl)
	}
	return tenantId, nil
}

func bearerToken(req *http.Request) string {
	authz := req.Header.Get(echo.HeaderAuthorization)
	if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}

// ------------------------------------------------------------------------------------------------------------------
// SERVER
// ------------------------------------------------------------------------------------------------------------------

type ServerConfig struct {
	Name     string
	Provider *ConnectionProvider
	Tenant   TenantMiddlewareConfig
}

type Server struct {
	internal *echo.Echo
	provider *ConnectionProvider
	name     string
}

// NewServer builds the echo server exposing the routing endpoints. Metrics
// go to a registry owned by the server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Name == "" {
		cfg.Name = "tenantdb"
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(cfg.Provider.PrometheusCollectors()...)

	e.Use(prettylogger.Logger)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogLevel: 2,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			tracerr.PrintSourceColor(tracerr.Wrap(err))
			return err
		},
	}))
	e.Use(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestID())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  namespace,
		Registerer: registry,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))

	s := &Server{
		internal: e,
		provider: cfg.Provider,
		name:     cfg.Name,
	}
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: registry}))
	e.GET("/health", s.health)

	api := e.Group("", TenantMiddleware(cfg.Tenant))
	api.GET("/tenants", s.tenants)
	api.GET("/tenants/:tenant/ping", s.pingTenant)
	api.GET("/whoami", s.whoami)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.internal
}

func (s *Server) Listen(port int) error {
	if port == 0 {
		port = 8080
	}
	log.Info("listening on :%d", port)
	err := s.internal.Start(fmt.Sprintf(":%d", port))
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.internal.Shutdown(ctx)
}

type pingResponse struct {
	Requested string `json:"requested"`
	Tenant    string `json:"tenant"`
	Target    string `json:"target"`
	Fallback  bool   `json:"fallback"`
	Latency   string `json:"latency"`
}

func (s *Server) health(c echo.Context) error {
	ctx := c.Request().Context()
	check := f.NewHealthCheck(s.name)
	if def, err := s.provider.Registry().Default(); err != nil {
		check.Add("default", err, nil)
	} else {
		check.Add("default", def.Ping(ctx), map[string]any{"tenant": def.Tenant()})
	}
	check.Add("tenants", nil, map[string]any{"count": s.provider.Registry().Len()})
	code := http.StatusOK
	if check.Status() != f.StatusUp {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, check.Build())
}

func (s *Server) tenants(c echo.Context) error {
	return c.JSON(http.StatusOK, s.provider.Registry().Pools())
}

// pingTenant only serves the tenant of the caller. Anonymous callers can
// reach the default tenant and nothing else.
func (s *Server) pingTenant(c echo.Context) error {
	requested := c.Param("tenant")
	resolver := s.provider.Resolver()
	if !resolver.IsDefault(requested) {
		if err := f.ValidateTenantId(requested); err != nil {
			return errors.BadRequest(err.Error())
		}
	}
	current := resolver.ResolveCurrent(c.Request().Context())
	if requested != current && !(resolver.IsDefault(requested) && resolver.IsDefault(current)) {
		return errors.Forbidden(fmt.Sprintf("tenant %s is not accessible with the current credentials", requested))
	}
	return s.ping(c, requested)
}

func (s *Server) whoami(c echo.Context) error {
	return s.ping(c, s.provider.Resolver().ResolveCurrent(c.Request().Context()))
}

func (s *Server) ping(c echo.Context, requested string) error {
	ctx := c.Request().Context()
	start := time.Now()
	cnx, err := s.provider.GetConnection(ctx, requested)
	if err != nil {
		return err
	}
	defer func() {
		_ = s.provider.ReleaseConnection(cnx)
	}()
	if err := cnx.Ping(ctx); err != nil {
		return errors.Unavailable(fmt.Sprintf("tenant %s is unreachable", cnx.Tenant()))
	}
	return c.JSON(http.StatusOK, pingResponse{
		Requested: requested,
		Tenant:    cnx.Tenant(),
		Target:    h.RedactUrl(cnx.Target()),
		Fallback:  !s.provider.Resolver().IsDefault(requested) && s.provider.Resolver().IsDefault(cnx.Tenant()),
		Latency:   time.Since(start).String(),
	})
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := errors.GetStatusCode(err)
	message := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		message = fmt.Sprint(he.Message)
	}
	if code >= 500 {
		log.Error("unexpected error: %v", err)
	}
	_ = mapError(c, code, message)
}

func mapError(c echo.Context, status int, message string) error {
	kind := "err_functional"
	if status >= 500 {
		kind = "err_technical"
	}
	return c.JSON(status, map[string]any{
		"requestId": c.Response().Header().Get(echo.HeaderXRequestID),
		"kind":      kind,
		"timestamp": time.Now().Format(time.RFC3339),
		"uri":       c.Request().URL.Path,
		"error":     message,
		"success":   false,
	})
}
