// Package handlers provides the HTTP handlers of the license check service:
// infrastructure (health, version), the license check endpoint and the issuer endpoints.
//
// Handlers are constructed with their dependencies and return http.HandlerFunc.
// Errors are sent with api.RespondWithErrorResponse.
package handlers
