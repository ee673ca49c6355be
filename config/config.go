package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	f "github.com/soffa-projects/tenantdb/core"
	"github.com/soffa-projects/tenantdb/h"
)

type Config struct {
	DatabaseUrl       string        `envconfig:"DATABASE_URL" validate:"required"`
	UrlTemplate       string        `envconfig:"TENANT_DATABASE_URL_TEMPLATE" validate:"required"`
	Username          string        `envconfig:"TENANT_DATABASE_USERNAME"`
	Password          string        `envconfig:"TENANT_DATABASE_PASSWORD"`
	Driver            string        `envconfig:"TENANT_DATABASE_DRIVER" validate:"omitempty,oneof=postgres pgx mysql sqlite"`
	DefaultTenant     string        `envconfig:"DEFAULT_TENANT" default:"crusher" validate:"required"`
	MaxPoolSize       int           `envconfig:"DB_MAX_POOL_SIZE" default:"10" validate:"gt=0"`
	ConnectionTimeout time.Duration `envconfig:"DB_CONNECTION_TIMEOUT" default:"30s" validate:"gt=0"`
	IdleTimeout       time.Duration `envconfig:"DB_IDLE_TIMEOUT" default:"10m" validate:"gt=0"`
	MaxLifetime       time.Duration `envconfig:"DB_MAX_LIFETIME" default:"30m" validate:"gt=0"`
	ValidationTimeout time.Duration `envconfig:"DB_VALIDATION_TIMEOUT" default:"5s" validate:"gt=0"`
	FailurePolicy     string        `envconfig:"TENANT_POOL_FAILURE_POLICY" default:"fallback" validate:"oneof=fallback fail"`
	TenantSource      string        `envconfig:"TENANT_SOURCE"`
	JwtSecret         string        `envconfig:"JWT_SECRET"`
	JwtIssuer         string        `envconfig:"JWT_ISSUER" default:"tenantdb"`
	JwkPublicBase64   string        `envconfig:"JWT_JWK_PUBLIC_BASE64"`
	JwkPrivateBase64  string        `envconfig:"JWT_JWK_PRIVATE_BASE64"`
	AllowTenantHeader bool          `envconfig:"ALLOW_TENANT_HEADER" default:"false"`
	HttpPort          int           `envconfig:"HTTP_PORT" default:"8080" validate:"gt=0,lte=65535"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads cfg from the environment, loading .env first outside production.
func Load(cfg *Config) error {
	if err := h.LoadEnv(cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

func MustLoad() *Config {
	cfg := &Config{}
	if err := Load(cfg); err != nil {
		log.Fatal(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return c.Template().Validate()
}

// Template is the connection template applied to every tenant pool.
func (c *Config) Template() f.ConnectionTemplate {
	return f.ConnectionTemplate{
		URLTemplate:       c.UrlTemplate,
		Username:          c.Username,
		Password:          c.Password,
		Driver:            c.Driver,
		MaxPoolSize:       c.MaxPoolSize,
		ConnectionTimeout: c.ConnectionTimeout,
		IdleTimeout:       c.IdleTimeout,
		MaxLifetime:       c.MaxLifetime,
		ValidationTimeout: c.ValidationTimeout,
	}
}

// DefaultPool describes the parent pool. It keeps the credentials embedded
// in DATABASE_URL and shares the tuning of tenant pools.
func (c *Config) DefaultPool() f.PoolConfig {
	return f.PoolConfig{
		Tenant:            c.DefaultTenant,
		Url:               c.DatabaseUrl,
		Driver:            c.Driver,
		MaxPoolSize:       c.MaxPoolSize,
		ConnectionTimeout: c.ConnectionTimeout,
		IdleTimeout:       c.IdleTimeout,
		MaxLifetime:       c.MaxLifetime,
		ValidationTimeout: c.ValidationTimeout,
	}.WithDefaults()
}

// HasTokens reports whether bearer tokens can be verified.
func (c *Config) HasTokens() bool {
	return c.JwtSecret != "" || c.JwkPublicBase64 != "" || c.JwkPrivateBase64 != ""
}

// Jwt is the token configuration. A key pair selects RS256, the shared
// secret HS256.
func (c *Config) Jwt() f.JwtConfig {
	return f.JwtConfig{
		Issuer:           c.JwtIssuer,
		SecretKey:        c.JwtSecret,
		JwkPublicBase64:  c.JwkPublicBase64,
		JwkPrivateBase64: c.JwkPrivateBase64,
	}
}

func (c *Config) Policy() f.FailurePolicy {
	return f.FailurePolicy(c.FailurePolicy)
}
