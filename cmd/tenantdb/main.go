package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soffa-projects/tenantdb/adapters"
	"github.com/soffa-projects/tenantdb/app"
	"github.com/soffa-projects/tenantdb/config"
	f "github.com/soffa-projects/tenantdb/core"
	"github.com/soffa-projects/tenantdb/log"
	"github.com/spf13/cobra"
)

const appName = "tenantdb"

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Tenant-aware database connection routing",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	httpPort int
	tokenTtl time.Duration
	subject  string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  serve,
	}
	serveCmd.Flags().IntVar(&httpPort, "port", 0, "HTTP port, overrides HTTP_PORT")

	pingCmd := &cobra.Command{
		Use:   "ping <tenant>",
		Short: "Resolve the pool of a tenant and ping it",
		Args:  cobra.ExactArgs(1),
		RunE:  ping,
	}

	tokenCmd := &cobra.Command{
		Use:   "token <tenant>",
		Short: "Issue a development token carrying the tenant claim",
		Args:  cobra.ExactArgs(1),
		RunE:  token,
	}
	tokenCmd.Flags().DurationVar(&tokenTtl, "ttl", time.Hour, "token lifetime")
	tokenCmd.Flags().StringVar(&subject, "sub", "dev", "token subject")

	rootCmd.AddCommand(serveCmd, pingCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	if httpPort == 0 {
		httpPort = cfg.HttpPort
	}
	a, err := app.New(ctx, appName, cfg)
	if err != nil {
		return err
	}
	return a.Start(ctx, httpPort)
}

func ping(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg := config.MustLoad()
	cfg.TenantSource = ""
	a, err := app.New(ctx, appName, cfg)
	if err != nil {
		return err
	}
	defer a.Shutdown(ctx)

	start := time.Now()
	cnx, err := a.Provider.GetConnection(ctx, args[0])
	if err != nil {
		return err
	}
	defer func() {
		_ = a.Provider.ReleaseConnection(cnx)
	}()
	if err := cnx.Ping(ctx); err != nil {
		return fmt.Errorf("tenant %s is unreachable: %w", cnx.Tenant(), err)
	}
	log.Info("tenant %s served by pool %s in %s", args[0], cnx.Tenant(), time.Since(start))
	return json.NewEncoder(cmd.OutOrStdout()).Encode(a.Provider.Registry().Pools())
}

func token(cmd *cobra.Command, args []string) error {
	cfg := &config.Config{}
	if err := config.Load(cfg); err != nil {
		return err
	}
	if cfg.JwtSecret == "" && cfg.JwkPrivateBase64 == "" {
		return fmt.Errorf("neither JWT_SECRET nor JWT_JWK_PRIVATE_BASE64 is set")
	}
	tokens, err := adapters.NewTokenProvider(cfg.Jwt())
	if err != nil {
		return err
	}
	signed, err := tokens.Create(f.CreateJwtConfig{
		Subject: subject,
		Claims:  map[string]any{f.TenantClaims[0]: args[0]},
		Ttl:     tokenTtl,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), signed)
	return err
}
