package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Environment variables with defaults
type Environment struct {

	// general settings
	Environment string `env:"ENVIRONMENT,default=dev"`
	LogLevel    string `env:"LOG_LEVEL,default=debug"`

	// http server settings
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=60s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	MaxRequestSize        int64         `env:"MAX_REQUEST_SIZE,default=1048576"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`

	// outbound http settings (certificates, status documents, licenses, publications)
	UserAgent        string        `env:"USER_AGENT,default=audiobook-licensecheck/1.0"`
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT,default=30s"`
	HTTPRetryMax     int           `env:"HTTP_RETRY_MAX,default=2"`
	HTTPRetryWaitMin time.Duration `env:"HTTP_RETRY_WAIT_MIN,default=1s"`
	HTTPRetryWaitMax time.Duration `env:"HTTP_RETRY_WAIT_MAX,default=5s"`
	OutboundRPS      int32         `env:"OUTBOUND_RPS,default=0"`
	OutboundBurst    int32         `env:"OUTBOUND_BURST,default=10"`

	// download settings
	DownloadChunkSize int `env:"DOWNLOAD_CHUNK_SIZE,default=65536"`

	// issuer settings
	// ISSUER_REGISTRY_PATH is an optional csv file of additional signature issuers (issuer,certificate_url)
	IssuerRegistryPath string `env:"ISSUER_REGISTRY_PATH"`

	// JWK cache settings
	SkipJWKCache       bool          `env:"SKIP_JWK_CACHE,default=false"`
	JWKCacheMinRefresh time.Duration `env:"JWK_CACHE_MIN_REFRESH,default=10m"`
	JWKCacheMaxRefresh time.Duration `env:"JWK_CACHE_MAX_REFRESH,default=12h"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

// NewConfig loads environment variables and returns an Environment struct that contains the values
func NewConfig() (*Environment, error) {
	var cfg Environment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks the loaded values are usable
func validateConfig(cfg *Environment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}
	if cfg.UserAgent == "" {
		return fmt.Errorf("USER_AGENT must not be empty")
	}
	if cfg.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be greater than 0")
	}
	if cfg.HTTPRetryMax < 0 {
		return fmt.Errorf("HTTP_RETRY_MAX must be 0 or greater")
	}
	if cfg.HTTPRetryWaitMin > cfg.HTTPRetryWaitMax {
		return fmt.Errorf("HTTP_RETRY_WAIT_MIN (%s) cannot be greater than HTTP_RETRY_WAIT_MAX (%s)",
			cfg.HTTPRetryWaitMin, cfg.HTTPRetryWaitMax)
	}
	if cfg.OutboundRPS > 0 && cfg.OutboundBurst < 1 {
		return fmt.Errorf("OUTBOUND_BURST must be at least 1 when OUTBOUND_RPS is set")
	}
	if cfg.DownloadChunkSize < 512 {
		return fmt.Errorf("DOWNLOAD_CHUNK_SIZE must be at least 512 bytes, got %d", cfg.DownloadChunkSize)
	}
	if cfg.MaxRequestSize < 1 {
		return fmt.Errorf("MAX_REQUEST_SIZE must be at least 1")
	}
	if cfg.JWKCacheMinRefresh > cfg.JWKCacheMaxRefresh {
		return fmt.Errorf("JWK_CACHE_MIN_REFRESH (%s) cannot be greater than JWK_CACHE_MAX_REFRESH (%s)",
			cfg.JWKCacheMinRefresh, cfg.JWKCacheMaxRefresh)
	}

	return nil
}
