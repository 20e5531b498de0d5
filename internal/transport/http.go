package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// ErrBodyTooLarge is returned by Fetch when a response body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Options configure an HTTPFetcher.
type Options struct {
	// UserAgent is sent with every request that does not set its own.
	UserAgent string

	// Timeout bounds a whole Fetch, retries and body read included.
	// Streams opened with Open are bounded by the caller's context instead.
	Timeout time.Duration

	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// RequestsPerSecond throttles outbound requests. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// MaxBodySize caps the body read by Fetch. Zero means 10MB.
	MaxBodySize int64

	// Logger receives retry diagnostics. Nil disables them.
	Logger *slog.Logger

	// HTTPClient replaces the underlying client (tests).
	HTTPClient *http.Client
}

// HTTPFetcher is a Fetcher backed by a retrying HTTP client.
//
// Connection errors, 429 and 5xx responses are retried with backoff.
// When retries are exhausted on a status code, the last response is returned.
type HTTPFetcher struct {
	client      *retryablehttp.Client
	limiter     *rate.Limiter
	userAgent   string
	timeout     time.Duration
	maxBodySize int64
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil
	if opts.Logger != nil {
		retryClient.Logger = opts.Logger
	}
	if opts.HTTPClient != nil {
		retryClient.HTTPClient = opts.HTTPClient
	}

	f := &HTTPFetcher{
		client:      retryClient,
		userAgent:   opts.UserAgent,
		timeout:     opts.Timeout,
		maxBodySize: opts.MaxBodySize,
	}
	if f.maxBodySize <= 0 {
		f.maxBodySize = 10 * 1024 * 1024
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return f
}

func (f *HTTPFetcher) do(ctx context.Context, req *Request) (*http.Response, error) {
	if req == nil || req.URL == "" {
		return nil, fmt.Errorf("request URL is required")
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = f.userAgent
	}
	if userAgent != "" {
		httpReq.Header.Set("User-Agent", userAgent)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	if req.Credentials != nil {
		httpReq.Header.Set("Authorization", req.Credentials.Authorization())
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", req.URL, err)
	}

	return resp, nil
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	resp, err := f.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", req.URL, ErrBodyTooLarge, f.maxBodySize)
	}

	return &Response{
		URL:         req.URL,
		StatusCode:  resp.StatusCode,
		Status:      resp.Status,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Open implements Fetcher.
func (f *HTTPFetcher) Open(ctx context.Context, req *Request) (*Stream, error) {
	resp, err := f.do(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Stream{
		URL:           req.URL,
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}
