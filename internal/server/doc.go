// Package server provides the HTTP server for the license check service.
//
// the server is configured through environment variables
// (see app/internal/config/config.go for details)
//
// Routes:
//   - POST /v1/license-checks runs the license checks against a manifest
//   - GET /v1/issuers and /v1/issuers/keys expose the trusted issuers
//   - GET /health/live, /version and /metrics
//
// handlers are in app/internal/server/handlers, middleware is in app/internal/server/middleware
package server
