package manifest

import (
	"bytes"
	stdcrypto "crypto"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
)

// CanonicalBytes returns the canonical form of a manifest document with its signature extension removed.
// These are the bytes the signature is computed over.
func CanonicalBytes(data []byte) ([]byte, error) {
	return crypto.CanonicalizeWithout(data, "metadata", SignatureExtensionKey)
}

// Sign computes a signature over the canonical manifest and returns the document
// with the signature extension added to "metadata" (replacing any existing signature).
func Sign(data []byte, issuer string, alg crypto.Algorithm, privateKey stdcrypto.PrivateKey) ([]byte, error) {
	if issuer == "" {
		return nil, fmt.Errorf("issuer is required")
	}

	scheme, err := crypto.LookupSignatureScheme(alg)
	if err != nil {
		return nil, err
	}

	canonical, err := CanonicalBytes(data)
	if err != nil {
		return nil, err
	}

	sig, err := scheme.Sign(privateKey, canonical)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var doc map[string]any
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	metadata, ok := doc["metadata"].(map[string]any)
	if !ok {
		metadata = map[string]any{}
		doc["metadata"] = metadata
	}
	metadata[SignatureExtensionKey] = Signature{
		Issuer:    issuer,
		Algorithm: string(alg),
		Value:     base64.StdEncoding.EncodeToString(sig),
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode signed manifest: %w", err)
	}
	return out, nil
}
