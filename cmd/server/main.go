// Command server runs the umfrage survey response API.
//
// Configuration is read from a YAML file and UMFRAGE_* environment
// variables (see pkg/config). The file is located via UMFRAGE_CONFIG,
// ./config.yaml or /etc/umfrage/config.yaml.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/rhuss/umfrage/internal/app"
	"github.com/rhuss/umfrage/pkg/auth"
	"github.com/rhuss/umfrage/pkg/auth/apikey"
	"github.com/rhuss/umfrage/pkg/auth/jwt"
	"github.com/rhuss/umfrage/pkg/auth/noop"
	"github.com/rhuss/umfrage/pkg/config"
	"github.com/rhuss/umfrage/pkg/debug"
	"github.com/rhuss/umfrage/pkg/transport"
	transporthttp "github.com/rhuss/umfrage/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	a, err := app.Open(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	slog.Info("storage ready", "driver", a.DB.Driver())

	authMW, err := buildAuth(cfg)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxUploadSize(cfg.Server.MaxUploadBytes),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLogger(slog.Default()),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithMetrics(cfg.Observability.Metrics.Path))
	}

	slog.Info("umfrage starting",
		"port", cfg.Server.Port,
		"data_dir", a.Files.Root(),
		"auth", cfg.Auth.Type,
	)
	return transporthttp.NewServer(a.Service, a.DB.HealthCheck, authMW, opts...).ListenAndServe()
}

// buildAuth assembles the authenticator chain and rate limiter for the
// configured auth type.
func buildAuth(cfg *config.Config) (transport.Middleware, error) {
	chain := &auth.Chain{Default: auth.No}

	switch cfg.Auth.Type {
	case "", "none":
		chain.Authenticators = []auth.Authenticator{noop.Authenticator{}}
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys = append(keys, apikey.Key{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
					Scopes:      k.Scopes,
				},
			})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(keys)}
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Secret:      []byte(cfg.Auth.JWT.Secret),
			Issuer:      cfg.Auth.JWT.Issuer,
			Audience:    cfg.Auth.JWT.Audience,
			ScopesClaim: cfg.Auth.JWT.ScopesClaim,
			Leeway:      cfg.Auth.JWT.Leeway,
		})
		if err != nil {
			return nil, err
		}
		chain.Authenticators = []auth.Authenticator{a}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	var limiter auth.RateLimiter
	if rl := cfg.Auth.RateLimit; rl.RequestsPerMinute > 0 || len(rl.Tiers) > 0 {
		tiers := make(map[string]auth.TierLimit, len(rl.Tiers))
		for name, t := range rl.Tiers {
			tiers[name] = auth.TierLimit{RequestsPerMinute: t.RequestsPerMinute, Burst: t.Burst}
		}
		limiter = auth.NewLimiter(tiers, auth.TierLimit{RequestsPerMinute: rl.RequestsPerMinute, Burst: rl.Burst})
	}

	bypass := []string{"/healthz"}
	if cfg.Observability.Metrics.Enabled {
		bypass = append(bypass, cfg.Observability.Metrics.Path)
	}
	return auth.Middleware(chain, limiter, bypass), nil
}
