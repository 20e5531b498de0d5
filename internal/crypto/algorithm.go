// algorithm.go maps the signature algorithm identifiers found in signed manifests to signing and verification functions.
//
// Manifests identify algorithms by XML-DSig URI. Only RSA with SHA-256 (PKCS #1 v1.5) is in use today;
// other algorithms can be added to the registry without changing callers.
package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
)

// Algorithm is a signature algorithm URI
type Algorithm string

const (
	// AlgorithmRSASHA256: RSASSA-PKCS1-v1_5 with SHA-256
	AlgorithmRSASHA256 Algorithm = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
)

// SignatureScheme signs and verifies raw signatures for one algorithm.
type SignatureScheme interface {
	// Verify returns nil if signature is valid for message under publicKey.
	// A key of the wrong type returns a key management error; a bad signature returns a signature error.
	Verify(publicKey crypto.PublicKey, message, signature []byte) error

	// Sign returns the raw signature of message.
	Sign(privateKey crypto.PrivateKey, message []byte) ([]byte, error)

	// SupportsKey reports whether publicKey is of a type this scheme verifies with.
	SupportsKey(publicKey crypto.PublicKey) bool
}

var (
	schemesMu sync.RWMutex
	schemes   = map[Algorithm]SignatureScheme{
		AlgorithmRSASHA256: rsaSHA256{},
	}
)

// RegisterSignatureScheme adds (or replaces) the scheme used for alg.
func RegisterSignatureScheme(alg Algorithm, scheme SignatureScheme) {
	schemesMu.Lock()
	defer schemesMu.Unlock()
	schemes[alg] = scheme
}

// LookupSignatureScheme returns the scheme registered for alg,
// or an unsupported algorithm error.
func LookupSignatureScheme(alg Algorithm) (SignatureScheme, error) {
	schemesMu.RLock()
	defer schemesMu.RUnlock()

	scheme, ok := schemes[alg]
	if !ok {
		return nil, NewUnsupportedAlgorithmError(fmt.Sprintf("Unsupported signature algorithm %s.", alg))
	}
	return scheme, nil
}

// SupportedAlgorithms lists the registered algorithm URIs in sorted order.
func SupportedAlgorithms() []Algorithm {
	schemesMu.RLock()
	defer schemesMu.RUnlock()

	algs := make([]Algorithm, 0, len(schemes))
	for alg := range schemes {
		algs = append(algs, alg)
	}
	sort.Slice(algs, func(i, j int) bool { return algs[i] < algs[j] })
	return algs
}

type rsaSHA256 struct{}

func (rsaSHA256) SupportsKey(publicKey crypto.PublicKey) bool {
	_, ok := publicKey.(*rsa.PublicKey)
	return ok
}

func (rsaSHA256) Verify(publicKey crypto.PublicKey, message, signature []byte) error {
	rsaKey, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		return NewKeyManagementError(fmt.Sprintf("expected RSA public key, got %T", publicKey))
	}

	digest := sha256.Sum256(message)
	if err := rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest[:], signature); err != nil {
		return WrapSignatureError(err, "signature not verified")
	}
	return nil
}

func (rsaSHA256) Sign(privateKey crypto.PrivateKey, message []byte) ([]byte, error) {
	rsaKey, ok := privateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, NewKeyManagementError(fmt.Sprintf("expected RSA private key, got %T", privateKey))
	}

	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, rsaKey, crypto.SHA256, digest[:])
	if err != nil {
		return nil, WrapInternalError(err, "failed to sign message")
	}
	return sig, nil
}

// UsableKeys returns the keys the scheme can verify with, in order.
func UsableKeys(scheme SignatureScheme, keys []crypto.PublicKey) []crypto.PublicKey {
	var usable []crypto.PublicKey
	for _, key := range keys {
		if scheme.SupportsKey(key) {
			usable = append(usable, key)
		}
	}
	return usable
}

// VerifyWithAnyKey reports whether signature verifies under at least one of keys.
//
// Keys are tried in order so that an issuer can rotate keys without re-signing manifests.
// Keys of a type the scheme cannot use are skipped.
func VerifyWithAnyKey(scheme SignatureScheme, keys []crypto.PublicKey, message, signature []byte) bool {
	for _, key := range keys {
		if scheme.Verify(key, message, signature) == nil {
			return true
		}
	}
	return false
}
