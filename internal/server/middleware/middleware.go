// Package middleware holds the HTTP middleware of the license check API.
package middleware

import (
	"fmt"
	"log/slog"
	"math"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/information-sharing-networks/audiobook-license/app/internal/api"
	"github.com/information-sharing-networks/audiobook-license/app/internal/logger"
)

// ManifestBody guards endpoints that accept a manifest document in the request body.
//
// Requests are rejected before the handler runs when the declared Content-Length exceeds maxBytes (413),
// the body is declared empty (400) or the Content-Type is not JSON (415). A missing Content-Type is allowed.
// Bodies without a declared length are capped at maxBytes; the handler sees an *http.MaxBytesError.
//
// X-Max-Request-Size is set on every response.
func ManifestBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Max-Request-Size", strconv.FormatInt(maxBytes, 10))

			if r.ContentLength > maxBytes {
				api.RespondWithErrorResponse(w, r, api.NewRequestTooLargeError(
					fmt.Sprintf("Manifest size (%d bytes) exceeds maximum allowed size (%d bytes)", r.ContentLength, maxBytes)))
				return
			}
			if r.ContentLength == 0 {
				api.RespondWithErrorResponse(w, r, api.NewMalformedRequestError("Request body must contain a manifest"))
				return
			}
			if contentType := r.Header.Get("Content-Type"); contentType != "" && !isJSONMediaType(contentType) {
				api.RespondWithErrorResponse(w, r, api.NewUnsupportedMediaTypeError(
					fmt.Sprintf("Manifests must be sent as JSON, got %q", contentType)))
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// isJSONMediaType accepts application/json and structured +json types such as application/webpub+json.
func isJSONMediaType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || (strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json"))
}

// APIHeaders sets the response headers for a JSON-only API.
// Handlers may override Cache-Control (e.g. for issuer key sets).
func APIHeaders(environment string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")

			if environment == "prod" || environment == "staging" {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIdleTimeout is how long a client's limiter is kept after its last request.
const clientIdleTimeout = 10 * time.Minute

// ClientRateLimit limits each client to requestsPerSecond with the given burst.
// Clients are identified by the host part of RemoteAddr, so chi's RealIP must run first.
// Rejected requests get a 429 with Retry-After. If requestsPerSecond <= 0, rate limiting is disabled.
func ClientRateLimit(requestsPerSecond int32, burst int32) func(http.Handler) http.Handler {
	if requestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	limiters := newClientLimiters(rate.Limit(requestsPerSecond), int(burst), time.Now)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientKey(r)

			reservation := limiters.get(client).Reserve()
			delay := reservation.Delay()
			if !reservation.OK() || delay > 0 {
				reservation.Cancel()

				logger.ContextRequestLogger(r.Context()).Warn("Rate limit exceeded",
					slog.String("component", "ClientRateLimit"),
					slog.String("client", client),
				)
				logger.ContextWithLogAttrs(r.Context(), slog.String("client", client))

				retryAfter := 1
				if reservation.OK() {
					retryAfter = int(math.Ceil(delay.Seconds()))
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				api.RespondWithErrorResponse(w, r, api.NewRateLimitError("Too many license checks. Please try again later."))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one limiter per client. Idle clients are swept on access.
type clientLimiters struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func newClientLimiters(limit rate.Limit, burst int, now func() time.Time) *clientLimiters {
	return &clientLimiters{
		limit:     limit,
		burst:     burst,
		now:       now,
		clients:   make(map[string]*clientLimiter),
		lastSweep: now(),
	}
}

func (c *clientLimiters) get(client string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) > clientIdleTimeout {
		for key, cl := range c.clients {
			if now.Sub(cl.lastSeen) > clientIdleTimeout {
				delete(c.clients, key)
			}
		}
		c.lastSweep = now
	}

	cl, ok := c.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (c *clientLimiters) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}
