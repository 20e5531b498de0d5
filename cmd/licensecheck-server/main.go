package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/information-sharing-networks/audiobook-license/app/internal/config"
	"github.com/information-sharing-networks/audiobook-license/app/internal/logger"
	"github.com/information-sharing-networks/audiobook-license/app/internal/server"
	"github.com/information-sharing-networks/audiobook-license/app/internal/version"
)

func main() {
	cmd := &cobra.Command{
		Use:   "licensecheck-server",
		Short: "Audiobook license check server",
		Long: `licensecheck-server runs the audiobook license checks over HTTP.

POST a manifest to /v1/license-checks to receive the verdict of each check.
The trusted signature issuers and their key sets are listed under /v1/issuers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.String("USER_AGENT", cfg.UserAgent),
		slog.Duration("HTTP_TIMEOUT", cfg.HTTPTimeout),
		slog.Int("HTTP_RETRY_MAX", cfg.HTTPRetryMax),
		slog.Any("OUTBOUND_RPS", cfg.OutboundRPS),
		slog.String("ISSUER_REGISTRY_PATH", cfg.IssuerRegistryPath),
		slog.Bool("SKIP_JWK_CACHE", cfg.SkipJWKCache),
	)

	appLogger.Info("Starting server", slog.String("version", version.Get().Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := server.NewServer(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := server.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}
