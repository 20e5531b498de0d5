package api

// error_response.go maps lower level errors to the error response returned to the client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
	"github.com/information-sharing-networks/audiobook-license/app/internal/logger"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {

	// The HTTP method used to make the request e.g. GET, POST, etc
	HTTPMethod string `json:"httpMethod"`

	// The URI that was requested
	RequestURI string `json:"requestUri"`

	// The HTTP status code returned
	StatusCode int `json:"statusCode"`

	// A standard short description corresponding to the HTTP status code
	StatusCodeText string `json:"statusCodeText"`

	// A description of the failure category
	StatusCodeMessage string `json:"statusCodeMessage,omitempty"`

	// The chi request id, also written to the server log
	ProviderCorrelationReference string `json:"providerCorrelationReference,omitempty"`

	ErrorDateTime string `json:"errorDateTime"`

	Errors []DetailedError `json:"errors"`
}

// DetailedError gives the root cause of a failure.
type DetailedError struct {
	ErrorCode        ErrorCode `json:"errorCode"`
	Property         string    `json:"property,omitempty"`
	Value            string    `json:"value,omitempty"`
	ErrorCodeText    string    `json:"errorCodeText"`
	ErrorCodeMessage string    `json:"errorCodeMessage"`
}

// MapErrorToResponse maps api, manifest, crypto or generic errors to an error response.
//
// The mapping also establishes the HTTP status code.
// Unmapped errors become a 500 with a generic message; the detail is only logged.
func MapErrorToResponse(err error, r *http.Request) *ErrorResponse {
	requestID := middleware.GetReqID(r.Context())

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		statusCode, text := statusForCode(apiErr.Code())
		return newErrorResponse(r, requestID, statusCode, apiErr.Code(), text, err.Error())
	}

	if errors.Is(err, manifest.ErrInvalidManifest) {
		return newErrorResponse(r, requestID, http.StatusBadRequest, ErrCodeInvalidManifest, "Invalid manifest", err.Error())
	}

	var cryptoErr *crypto.CryptoError
	if errors.As(err, &cryptoErr) {
		return errorResponseFromCrypto(cryptoErr, r, requestID)
	}

	reqLogger := logger.ContextRequestLogger(r.Context())
	reqLogger.Error("BUG: Unmapped error type in MapErrorToResponse",
		slog.String("error_type", fmt.Sprintf("%T", err)),
		slog.String("error", err.Error()),
		slog.String("request_id", requestID),
	)
	return newErrorResponse(r, requestID, http.StatusInternalServerError, ErrCodeInternalError, "Internal Error", "An internal error occurred")
}

func statusForCode(code ErrorCode) (int, string) {
	switch code {
	case ErrCodeMalformedRequest:
		return http.StatusBadRequest, "Malformed request"
	case ErrCodeInvalidManifest:
		return http.StatusBadRequest, "Invalid manifest"
	case ErrCodeBadSignature:
		return http.StatusBadRequest, "Bad signature"
	case ErrCodeUpstreamError:
		return http.StatusBadGateway, "Upstream error"
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests, "Rate limit exceeded"
	case ErrCodeRequestTooLarge:
		return http.StatusRequestEntityTooLarge, "Request too large"
	case ErrCodeUnsupportedMediaType:
		return http.StatusUnsupportedMediaType, "Unsupported media type"
	case ErrCodeNotFound:
		return http.StatusNotFound, "Not found"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

// errorResponseFromCrypto maps crypto errors; only validation and signature failures are the client's fault
func errorResponseFromCrypto(err *crypto.CryptoError, r *http.Request, requestID string) *ErrorResponse {
	switch err.Code() {
	case crypto.ErrCodeValidation:
		return newErrorResponse(r, requestID, http.StatusBadRequest, ErrCodeInvalidManifest, "Invalid manifest", err.Error())
	case crypto.ErrCodeInvalidSignature, crypto.ErrCodeUnsupportedAlgorithm:
		return newErrorResponse(r, requestID, http.StatusBadRequest, ErrCodeBadSignature, "Bad signature", err.Error())
	default:
		return newErrorResponse(r, requestID, http.StatusInternalServerError, ErrCodeInternalError, "Internal Error", err.Error())
	}
}

func newErrorResponse(r *http.Request, requestID string, statusCode int, code ErrorCode, text, message string) *ErrorResponse {
	return &ErrorResponse{
		HTTPMethod:                   r.Method,
		RequestURI:                   r.RequestURI,
		StatusCode:                   statusCode,
		StatusCodeText:               http.StatusText(statusCode),
		StatusCodeMessage:            text,
		ProviderCorrelationReference: requestID,
		ErrorDateTime:                time.Now().UTC().Format(time.RFC3339),
		Errors: []DetailedError{
			{
				ErrorCode:        code,
				ErrorCodeText:    text,
				ErrorCodeMessage: message,
			},
		},
	}
}
