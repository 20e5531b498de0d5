// JWK (JSON Web Key) helpers
//
// Signature issuers publish their public keys as a JWK set (RFC 7517), typically at /.well-known/jwks.json.
// these functions parse those sets into native crypto keys for signature verification,
// and build sets for distribution by the keygen CLI.

package crypto

import (
	"crypto"
	"crypto/rsa"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// RSAPublicKeyToJWK converts a RSA public key to JWK format
func RSAPublicKeyToJWK(publicKey *rsa.PublicKey, keyID string) (jwk.Key, error) {
	if publicKey == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	if keyID == "" {
		return nil, fmt.Errorf("keyID is required")
	}

	key, err := jwk.Import(publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK from RSA public key: %w", err)
	}

	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}

	if err := key.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}

	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}

	return key, nil
}

// NewRSAPublicKeySet returns a JWK set containing the given public keys.
// kids[i] is used as the key ID of keys[i].
func NewRSAPublicKeySet(keys []*rsa.PublicKey, kids []string) (jwk.Set, error) {
	if len(keys) != len(kids) {
		return nil, fmt.Errorf("got %d keys and %d key IDs", len(keys), len(kids))
	}

	set := jwk.NewSet()
	for i, publicKey := range keys {
		key, err := RSAPublicKeyToJWK(publicKey, kids[i])
		if err != nil {
			return nil, err
		}
		if err := set.AddKey(key); err != nil {
			return nil, fmt.Errorf("failed to add key %s: %w", kids[i], err)
		}
	}
	return set, nil
}

// ParseKeySet parses a JWK set document.
// Malformed key material returns a key management error.
func ParseKeySet(data []byte) (jwk.Set, error) {
	set, err := jwk.Parse(data)
	if err != nil {
		return nil, WrapKeyManagementError(err, "failed to parse JWK set")
	}
	if set.Len() == 0 {
		return nil, NewKeyManagementError("JWK set contains no keys")
	}
	return set, nil
}

// PublicKeys exports every key in set as a native public key.
//
// Private keys in the set are reduced to their public half.
// An empty set, or a key that cannot be exported, returns a key management error.
func PublicKeys(set jwk.Set) ([]crypto.PublicKey, error) {
	if set == nil || set.Len() == 0 {
		return nil, NewKeyManagementError("JWK set contains no keys")
	}

	keys := make([]crypto.PublicKey, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}

		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			kid, _ := key.KeyID()
			return nil, WrapKeyManagementError(err, fmt.Sprintf("failed to export key %q", kid))
		}

		if signer, ok := raw.(crypto.Signer); ok {
			raw = signer.Public()
		}
		keys = append(keys, raw)
	}

	if len(keys) == 0 {
		return nil, NewKeyManagementError("JWK set contains no usable keys")
	}
	return keys, nil
}

// GenerateKeyIDFromRSAKey generates a key ID from an RSA public key using the SHA-256 JWK thumbprint (RFC 7638).
// Returns the first 16 characters of the hex-encoded thumbprint.
func GenerateKeyIDFromRSAKey(publickey *rsa.PublicKey) (string, error) {
	if publickey == nil {
		return "", fmt.Errorf("public key is nil")
	}

	jwkKey, err := jwk.Import(publickey)
	if err != nil {
		return "", fmt.Errorf("failed to import key: %w", err)
	}

	thumbprint, err := jwkKey.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to generate thumbprint: %w", err)
	}

	return fmt.Sprintf("%x", thumbprint)[:16], nil
}
