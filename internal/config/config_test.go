package config

import (
	"testing"
	"time"
)

func validConfig() Environment {
	return Environment{
		Environment:        "dev",
		LogLevel:           "info",
		Port:               8080,
		MaxRequestSize:     1024,
		UserAgent:          "test-agent/1.0",
		HTTPTimeout:        10 * time.Second,
		HTTPRetryMax:       2,
		HTTPRetryWaitMin:   time.Second,
		HTTPRetryWaitMax:   5 * time.Second,
		OutboundBurst:      10,
		DownloadChunkSize:  4096,
		JWKCacheMinRefresh: 10 * time.Minute,
		JWKCacheMaxRefresh: 12 * time.Hour,
	}
}

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")

	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.UserAgent != "audiobook-licensecheck/1.0" {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %s, want 30s", cfg.HTTPTimeout)
	}
	if cfg.DownloadChunkSize != 65536 {
		t.Errorf("DownloadChunkSize = %d, want 65536", cfg.DownloadChunkSize)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Environment)
		wantErr bool
	}{
		{"valid", func(*Environment) {}, false},
		{"port too low", func(c *Environment) { c.Port = 0 }, true},
		{"port too high", func(c *Environment) { c.Port = 70000 }, true},
		{"unknown environment", func(c *Environment) { c.Environment = "qa" }, true},
		{"empty user agent", func(c *Environment) { c.UserAgent = "" }, true},
		{"zero http timeout", func(c *Environment) { c.HTTPTimeout = 0 }, true},
		{"negative retries", func(c *Environment) { c.HTTPRetryMax = -1 }, true},
		{"retry wait inverted", func(c *Environment) { c.HTTPRetryWaitMin = 10 * time.Second }, true},
		{"outbound burst missing", func(c *Environment) { c.OutboundRPS = 5; c.OutboundBurst = 0 }, true},
		{"chunk size too small", func(c *Environment) { c.DownloadChunkSize = 16 }, true},
		{"request size zero", func(c *Environment) { c.MaxRequestSize = 0 }, true},
		{"jwk refresh inverted", func(c *Environment) { c.JWKCacheMinRefresh = 24 * time.Hour }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := validateConfig(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
