package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rolesclub/rolesbot/internal/config"
	"github.com/rolesclub/rolesbot/internal/gateway"
	"github.com/rolesclub/rolesbot/internal/observability"
	"github.com/rolesclub/rolesbot/internal/round"
	"github.com/rolesclub/rolesbot/internal/router"
	"github.com/rolesclub/rolesbot/internal/sessions"
	"github.com/rolesclub/rolesbot/internal/tenant"
	"github.com/rolesclub/rolesbot/internal/webhook"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.Setup(ctx, observability.TraceConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Version:     Version,
			Environment: cfg.Telemetry.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Protocol:    cfg.Telemetry.Protocol,
			Insecure:    cfg.Telemetry.Insecure,
			SampleRate:  cfg.Telemetry.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry.shutdown_failed", "error", err)
			}
		}()
	}

	registry, err := tenant.Load(cfg.ClubsDir)
	if err != nil {
		return fmt.Errorf("load clubs: %w", err)
	}
	slog.Info("tenants.loaded", "clubs", len(registry.Contexts()))

	sessionStore, err := openSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessionStore.Close()

	sender := gateway.New(gateway.Options{
		APIKey:       cfg.Gupshup.APIKey,
		AppName:      cfg.Gupshup.AppName,
		Source:       cfg.Gupshup.Source,
		RateLimitRPM: cfg.Gupshup.RateLimitRPM,
		Timeout:      time.Duration(cfg.Gupshup.TimeoutSeconds) * time.Second,
	})

	engine := round.NewEngine(sender)
	dispatcher := router.NewDispatcher(registry, engine, router.NewSessionManager(sessionStore), sender)

	server := webhook.New(webhook.Options{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		VerifyToken: cfg.Gupshup.VerifyToken,
	}, dispatcher)

	slog.Info("rolesbot.start", "version", Version, "sessions", cfg.Sessions.Backend)
	return server.Run(ctx)
}

func openSessionStore(cfg *config.Config) (sessions.Store, error) {
	switch cfg.Sessions.Backend {
	case "sqlite":
		return sessions.NewSQLite(cfg.Sessions.SQLitePath)
	case "postgres":
		return sessions.NewPostgres(cfg.Database.PostgresDSN)
	default:
		return sessions.NewMemory(), nil
	}
}

func setupLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
