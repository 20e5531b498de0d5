package api

// errors.go defines the error codes used by the license check API

import "fmt"

// APIError represents a structured error from the api package.
type APIError struct {
	// code is the API error code
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *APIError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *APIError) Code() ErrorCode { return e.code }
func (e *APIError) Unwrap() error   { return e.wrapped }

// ErrorCode is used in errors returned by the API.
//
//   - 7000-7999 technical errors: the request could not be processed as sent.
//   - 8000-8999 functional errors: the request was valid but refers to something that does not exist.
type ErrorCode int

const (
	// ErrCodeMalformedRequest is used when the request body cannot be read or decoded
	ErrCodeMalformedRequest ErrorCode = 7001

	// ErrCodeInvalidManifest is used when the body is JSON but not a usable manifest
	ErrCodeInvalidManifest ErrorCode = 7002

	// ErrCodeBadSignature is used when a manifest signature extension cannot be decoded
	ErrCodeBadSignature ErrorCode = 7003

	// ErrCodeUpstreamError is used when an issuer's key set could not be retrieved
	ErrCodeUpstreamError ErrorCode = 7004

	// ErrCodeInternalError is used when an internal server error occurs
	ErrCodeInternalError ErrorCode = 7005

	// ErrCodeRateLimitExceeded is used when the rate limit is exceeded
	// - this is only used in the middleware
	ErrCodeRateLimitExceeded ErrorCode = 7009

	// ErrCodeRequestTooLarge is used when the request body is too large
	// - this is only used in the middleware
	ErrCodeRequestTooLarge ErrorCode = 7010

	// ErrCodeUnsupportedMediaType is used when a manifest is sent with a non-JSON content type
	ErrCodeUnsupportedMediaType ErrorCode = 7011

	// ErrCodeNotFound is used for unknown routes and unknown issuers
	ErrCodeNotFound ErrorCode = 8001
)

// NewMalformedRequestError creates an error for malformed requests.
func NewMalformedRequestError(msg string) error {
	return &APIError{code: ErrCodeMalformedRequest, message: msg}
}

// WrapMalformedRequestError wraps an existing error as a malformed request error.
func WrapMalformedRequestError(err error, msg string) error {
	return &APIError{code: ErrCodeMalformedRequest, message: msg, wrapped: err}
}

// WrapInvalidManifestError wraps a manifest parse failure.
func WrapInvalidManifestError(err error, msg string) error {
	return &APIError{code: ErrCodeInvalidManifest, message: msg, wrapped: err}
}

// WrapUpstreamError wraps a failure to retrieve a remote document.
func WrapUpstreamError(err error, msg string) error {
	return &APIError{code: ErrCodeUpstreamError, message: msg, wrapped: err}
}

func NewNotFoundError(msg string) error {
	return &APIError{code: ErrCodeNotFound, message: msg}
}

// NewInternalError creates an internal error for unexpected failures.
func NewInternalError(msg string) error {
	return &APIError{code: ErrCodeInternalError, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &APIError{code: ErrCodeInternalError, message: msg, wrapped: err}
}

// NewRateLimitError is used by the rate limit middleware.
func NewRateLimitError(msg string) error {
	return &APIError{code: ErrCodeRateLimitExceeded, message: msg}
}

// NewRequestTooLargeError is used by the request size middleware.
func NewRequestTooLargeError(msg string) error {
	return &APIError{code: ErrCodeRequestTooLarge, message: msg}
}

// NewUnsupportedMediaTypeError is used when the request body is not a JSON manifest.
func NewUnsupportedMediaTypeError(msg string) error {
	return &APIError{code: ErrCodeUnsupportedMediaType, message: msg}
}
