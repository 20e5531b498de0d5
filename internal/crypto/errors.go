package crypto

import (
	"errors"
	"fmt"
)

// Error represents a structured error from the crypto package
type Error interface {
	error
	Code() ErrorCode
	Unwrap() error
}

type ErrorCode string

const (
	ErrCodeValidation           ErrorCode = "validation"
	ErrCodeInvalidChecksum      ErrorCode = "invalid_checksum"
	ErrCodeInvalidSignature     ErrorCode = "invalid_signature"
	ErrCodeCertificate          ErrorCode = "certificate"
	ErrCodeKeyManagement        ErrorCode = "key_management"
	ErrCodeUnsupportedAlgorithm ErrorCode = "unsupported_algorithm"
	ErrCodeInternal             ErrorCode = "internal"
)

// CryptoError represents a structured error from the crypto package
type CryptoError struct {

	// code classifies the failure
	code ErrorCode

	// message is a human-readable error message
	message string

	// wrapped is the optional underlying error
	wrapped error
}

func (e *CryptoError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *CryptoError) Code() ErrorCode { return e.code }
func (e *CryptoError) Unwrap() error   { return e.wrapped }

// Message returns the message without the wrapped error text.
func (e *CryptoError) Message() string { return e.message }

// NewValidationError creates a validation error for invalid input
// (malformed JSON, bad base64, missing fields).
func NewValidationError(msg string) error {
	return &CryptoError{code: ErrCodeValidation, message: msg}
}

// WrapValidationError wraps an existing error as a validation error.
func WrapValidationError(err error, msg string) error {
	return &CryptoError{code: ErrCodeValidation, message: msg, wrapped: err}
}

// NewChecksumError creates a checksum verification error.
// Use this when a downloaded resource does not match the checksum declared for it.
func NewChecksumError(msg string) error {
	return &CryptoError{code: ErrCodeInvalidChecksum, message: msg}
}

// WrapChecksumError wraps an existing error as a checksum error.
func WrapChecksumError(err error, msg string) error {
	return &CryptoError{code: ErrCodeInvalidChecksum, message: msg, wrapped: err}
}

// NewSignatureError creates a signature verification error.
func NewSignatureError(msg string) error {
	return &CryptoError{code: ErrCodeInvalidSignature, message: msg}
}

// WrapSignatureError wraps an existing error as a signature error.
func WrapSignatureError(err error, msg string) error {
	return &CryptoError{code: ErrCodeInvalidSignature, message: msg, wrapped: err}
}

// NewCertificateError creates a certificate retrieval error.
// Use this when an issuer's key set could not be downloaded (transport failure or non-2xx response).
//
// The returned error will have code ErrCodeCertificate.
func NewCertificateError(msg string) error {
	return &CryptoError{code: ErrCodeCertificate, message: msg}
}

// WrapCertificateError wraps an existing error as a certificate error.
//
// The returned error will have code ErrCodeCertificate.
func WrapCertificateError(err error, msg string) error {
	return &CryptoError{code: ErrCodeCertificate, message: msg, wrapped: err}
}

// NewKeyManagementError creates a key management error.
// Use this for errors related to key loading, key generation,
// invalid key format, or JWK parsing failures.
//
// The returned error will have code ErrCodeKeyManagement.
func NewKeyManagementError(msg string) error {
	return &CryptoError{code: ErrCodeKeyManagement, message: msg}
}

// WrapKeyManagementError wraps an existing error as a key management error.
//
// The returned error will have code ErrCodeKeyManagement.
func WrapKeyManagementError(err error, msg string) error {
	return &CryptoError{code: ErrCodeKeyManagement, message: msg, wrapped: err}
}

// NewUnsupportedAlgorithmError is returned when no verifier or signer is registered for an algorithm URI.
func NewUnsupportedAlgorithmError(msg string) error {
	return &CryptoError{code: ErrCodeUnsupportedAlgorithm, message: msg}
}

// NewInternalError creates an internal error for unexpected failures.
// Use this for errors related to crypto library failures, unexpected nil values,
// or system errors that should not normally occur.
//
// The returned error will have code ErrCodeInternal.
func NewInternalError(msg string) error {
	return &CryptoError{code: ErrCodeInternal, message: msg}
}

// WrapInternalError wraps an existing error as an internal error.
func WrapInternalError(err error, msg string) error {
	return &CryptoError{code: ErrCodeInternal, message: msg, wrapped: err}
}

// ErrorCodeOf returns the code of the first CryptoError in err's chain, or "" if there is none.
func ErrorCodeOf(err error) ErrorCode {
	var cryptoErr *CryptoError
	if errors.As(err, &cryptoErr) {
		return cryptoErr.code
	}
	return ""
}
