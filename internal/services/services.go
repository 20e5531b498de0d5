package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/information-sharing-networks/audiobook-license/app/internal/config"
	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
	"github.com/information-sharing-networks/audiobook-license/app/internal/fulfillment"
	"github.com/information-sharing-networks/audiobook-license/app/internal/issuers"
	"github.com/information-sharing-networks/audiobook-license/app/internal/licensecheck"
	"github.com/information-sharing-networks/audiobook-license/app/internal/metrics"
	"github.com/information-sharing-networks/audiobook-license/app/internal/transport"
)

// Services aggregates the external integrations used by the checks and the fulfillment workflow.
type Services struct {
	Fetcher  transport.Fetcher
	Registry *issuers.Registry
	KeySets  issuers.KeySetProvider

	// Metrics is optional
	Metrics *metrics.Metrics

	logger    *slog.Logger
	chunkSize int
}

// NewServices creates the service implementations based on configuration.
//
// The cached key set provider is used unless SKIP_JWK_CACHE is set; it lives until ctx is cancelled.
// m may be nil.
func NewServices(ctx context.Context, cfg *config.Environment, logger *slog.Logger, m *metrics.Metrics) (*Services, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	registry, err := issuers.LoadRegistry(cfg.IssuerRegistryPath)
	if err != nil {
		return nil, err
	}

	fetcher := transport.NewHTTPFetcher(transport.Options{
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.HTTPTimeout,
		RetryMax:          cfg.HTTPRetryMax,
		RetryWaitMin:      cfg.HTTPRetryWaitMin,
		RetryWaitMax:      cfg.HTTPRetryWaitMax,
		RequestsPerSecond: float64(cfg.OutboundRPS),
		Burst:             int(cfg.OutboundBurst),
		Logger:            logger.With(slog.String("component", "fetcher")),
	})

	var keySets issuers.KeySetProvider
	if cfg.SkipJWKCache {
		logger.Debug("JWK cache disabled, issuer key sets are fetched on every check")
		keySets = issuers.NewHTTPKeySetProvider(fetcher)
	} else {
		keySets, err = issuers.NewCachedKeySetProvider(ctx, issuers.CachedKeySetProviderConfig{
			Fetcher:            fetcher,
			MinRefreshInterval: cfg.JWKCacheMinRefresh,
			MaxRefreshInterval: cfg.JWKCacheMaxRefresh,
			FetchTimeout:       cfg.HTTPTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create JWK cache: %w", err)
		}
	}

	logger.Debug("services initialized",
		slog.Int("issuers", registry.Len()),
		slog.Bool("jwk_cache", !cfg.SkipJWKCache),
		slog.Any("signature_algorithms", crypto.SupportedAlgorithms()),
	)

	return &Services{
		Fetcher:   fetcher,
		Registry:  registry,
		KeySets:   keySets,
		Metrics:   m,
		logger:    logger,
		chunkSize: cfg.DownloadChunkSize,
	}, nil
}

// Orchestrator returns an orchestrator running the standard checks.
// now is the clock used by the rights check; nil means time.Now.
func (s *Services) Orchestrator(now func() time.Time) *licensecheck.Orchestrator {
	checks := licensecheck.StandardChecks(licensecheck.Dependencies{
		Issuers: s.Registry,
		KeySets: s.KeySets,
		Fetcher: s.Fetcher,
		Now:     now,
		Logger:  s.logger,
	})

	var opts []licensecheck.Option
	if s.Metrics != nil {
		opts = append(opts, licensecheck.WithRecorder(s.Metrics))
	}
	return licensecheck.NewOrchestrator(s.logger, checks, opts...)
}

// Workflow returns a fulfillment workflow authenticating with credentials (nil for none).
func (s *Services) Workflow(credentials transport.Credentials, verifyHash bool) (*fulfillment.Workflow, error) {
	cfg := fulfillment.Config{
		Fetcher:     s.Fetcher,
		Credentials: credentials,
		ChunkSize:   s.chunkSize,
		VerifyHash:  verifyHash,
		Logger:      s.logger,
	}
	if s.Metrics != nil {
		cfg.Recorder = s.Metrics
	}
	return fulfillment.NewWorkflow(cfg)
}
