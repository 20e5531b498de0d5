package issuers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
	"github.com/information-sharing-networks/audiobook-license/app/internal/transport"
)

// KeySetProvider returns the JWK set published at a certificate URL.
//
// Retrieval failures are crypto certificate errors.
// Malformed key material is a crypto key management error.
type KeySetProvider interface {
	KeySet(ctx context.Context, certificateURL string) (jwk.Set, error)
}

// StatusError records a non-2xx response from a certificate URL.
// It is wrapped in the certificate errors returned by both providers.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.URL, e.StatusCode)
}

// StatusCodeOf returns the HTTP status code recorded in err, if any.
func StatusCodeOf(err error) (int, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}

// HTTPKeySetProvider fetches the key set on every call.
type HTTPKeySetProvider struct {
	fetcher transport.Fetcher
}

func NewHTTPKeySetProvider(fetcher transport.Fetcher) *HTTPKeySetProvider {
	return &HTTPKeySetProvider{fetcher: fetcher}
}

func (p *HTTPKeySetProvider) KeySet(ctx context.Context, certificateURL string) (jwk.Set, error) {
	resp, err := p.fetcher.Fetch(ctx, &transport.Request{
		URL:    certificateURL,
		Accept: "application/json",
	})
	if err != nil {
		return nil, crypto.WrapCertificateError(err, "failed to retrieve certificate")
	}

	if !resp.OK() {
		return nil, crypto.WrapCertificateError(
			&StatusError{URL: certificateURL, StatusCode: resp.StatusCode},
			"failed to retrieve certificate")
	}

	if int64(len(resp.Body)) > crypto.MaxKeySetSize {
		return nil, crypto.NewKeyManagementError(fmt.Sprintf("key set exceeds %d bytes", crypto.MaxKeySetSize))
	}

	return crypto.ParseKeySet(resp.Body)
}

// CachedKeySetProviderConfig configures a CachedKeySetProvider.
type CachedKeySetProviderConfig struct {
	// Fetcher retrieves key sets, for the first fetch and for background refreshes. Required.
	Fetcher transport.Fetcher

	// MinRefreshInterval is the minimum interval between refreshes of a key set.
	MinRefreshInterval time.Duration

	// MaxRefreshInterval is the maximum interval between refreshes of a key set.
	MaxRefreshInterval time.Duration

	// FetchTimeout bounds the first fetch of a key set. Defaults to 30s.
	FetchTimeout time.Duration
}

// CachedKeySetProvider keeps key sets in an auto-refreshing cache.
//
// Certificate URLs are registered with the cache on first use; the first call for a URL blocks until
// the key set has been fetched. Later calls are served from the cache, which refreshes in the background.
// All fetches go through the configured Fetcher.
type CachedKeySetProvider struct {
	cache  *jwk.Cache
	client *fetcherClient
	config CachedKeySetProviderConfig
	logger *slog.Logger

	// mu serializes registration so each URL is registered once
	mu sync.Mutex
}

// NewCachedKeySetProvider creates the cache. The cache runs until ctx is cancelled.
func NewCachedKeySetProvider(ctx context.Context, config CachedKeySetProviderConfig, logger *slog.Logger) (*CachedKeySetProvider, error) {
	if logger == nil {
		return nil, crypto.NewInternalError("logger cannot be nil")
	}
	if config.Fetcher == nil {
		return nil, crypto.NewInternalError("fetcher cannot be nil")
	}
	if config.MinRefreshInterval > config.MaxRefreshInterval {
		return nil, crypto.NewInternalError("min refresh interval cannot be greater than max refresh interval")
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}

	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, crypto.WrapKeyManagementError(err, "failed to create JWK cache")
	}

	logger.Debug("JWK cache initialized",
		slog.Duration("min_refresh", config.MinRefreshInterval),
		slog.Duration("max_refresh", config.MaxRefreshInterval))

	return &CachedKeySetProvider{
		cache:  cache,
		client: newFetcherClient(config.Fetcher),
		config: config,
		logger: logger,
	}, nil
}

func (p *CachedKeySetProvider) register(ctx context.Context, certificateURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cache.IsRegistered(ctx, certificateURL) {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	defer cancel()

	err := p.cache.Register(fetchCtx, certificateURL,
		jwk.WithMinInterval(p.config.MinRefreshInterval),
		jwk.WithMaxInterval(p.config.MaxRefreshInterval),
		jwk.WithHTTPClient(p.client),
	)
	if err != nil {
		// a failed first fetch leaves the URL registered; remove it so the next call retries
		if p.cache.IsRegistered(ctx, certificateURL) {
			_ = p.cache.Unregister(ctx, certificateURL)
		}

		fetched, outcome := p.client.outcome(certificateURL)
		switch {
		case outcome != nil:
			return outcome
		case fetched:
			// the document was retrieved, so the cache failed to parse it
			return crypto.WrapKeyManagementError(err, "failed to parse JWK set")
		default:
			return crypto.WrapCertificateError(err, "failed to retrieve certificate")
		}
	}

	p.logger.Info("registered certificate URL for background refresh",
		slog.String("certificate_url", certificateURL))
	return nil
}

func (p *CachedKeySetProvider) KeySet(ctx context.Context, certificateURL string) (jwk.Set, error) {
	if err := p.register(ctx, certificateURL); err != nil {
		return nil, err
	}

	set, err := p.cache.Lookup(ctx, certificateURL)
	if err != nil {
		return nil, crypto.WrapCertificateError(err, "failed to retrieve certificate")
	}
	if set.Len() == 0 {
		return nil, crypto.NewKeyManagementError("JWK set contains no keys")
	}
	return set, nil
}

// fetcherClient is the cache's HTTP client. It fetches through a transport.Fetcher and records the
// outcome of the latest fetch of each URL, so a failed registration can be classified.
type fetcherClient struct {
	fetcher transport.Fetcher

	mu       sync.Mutex
	outcomes map[string]error
}

func newFetcherClient(fetcher transport.Fetcher) *fetcherClient {
	return &fetcherClient{fetcher: fetcher, outcomes: make(map[string]error)}
}

func (c *fetcherClient) Do(req *http.Request) (*http.Response, error) {
	certificateURL := req.URL.String()

	resp, err := c.fetcher.Fetch(req.Context(), &transport.Request{
		URL:    certificateURL,
		Accept: "application/json",
	})

	var outcome error
	switch {
	case err != nil:
		outcome = crypto.WrapCertificateError(err, "failed to retrieve certificate")
	case resp.StatusCode != http.StatusOK:
		outcome = crypto.WrapCertificateError(
			&StatusError{URL: certificateURL, StatusCode: resp.StatusCode},
			"failed to retrieve certificate")
	case int64(len(resp.Body)) > crypto.MaxKeySetSize:
		outcome = crypto.NewKeyManagementError(fmt.Sprintf("key set exceeds %d bytes", crypto.MaxKeySetSize))
	}

	c.mu.Lock()
	c.outcomes[certificateURL] = outcome
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if outcome != nil && resp.StatusCode == http.StatusOK {
		return nil, outcome
	}

	header := make(http.Header)
	if resp.ContentType != "" {
		header.Set("Content-Type", resp.ContentType)
	}
	return &http.Response{
		Status:        resp.Status,
		StatusCode:    resp.StatusCode,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(resp.Body)),
		ContentLength: int64(len(resp.Body)),
		Request:       req,
	}, nil
}

// outcome reports whether certificateURL has been fetched and, if so, the classified failure of that fetch.
func (c *fetcherClient) outcome(certificateURL string) (bool, error) {
	key := certificateURL
	if u, err := url.Parse(certificateURL); err == nil {
		key = u.String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	outcome, fetched := c.outcomes[key]
	delete(c.outcomes, key)
	return fetched, outcome
}
