// signed manifests are canonicalized per RFC 8785 (JSON Canonicalization Scheme) before signing and verification.
// this implementation uses the gowebpki/jcs library to perform the canonicalization
package crypto

import (
	"bytes"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// CanonicalizeJSON converts JSON to canonical form per RFC 8785
// This ensures consistent hashing/signing of JSON documents
//
// If the input is not valid JSON, an error is returned (handled by jcs library).
func CanonicalizeJSON(jsonData []byte) ([]byte, error) {
	return jcs.Transform(jsonData)
}

// CanonicalizeWithout removes the member addressed by path from the document and
// returns the canonical form of what remains.
//
// path is a list of object member names, e.g. ("metadata", "http://www.feedbooks.com/audiobooks/signature").
// If any element of the path is missing, or is not an object, the document is canonicalized unchanged.
func CanonicalizeWithout(jsonData []byte, path ...string) ([]byte, error) {
	if len(path) == 0 {
		return CanonicalizeJSON(jsonData)
	}

	decoder := json.NewDecoder(bytes.NewReader(jsonData))
	decoder.UseNumber()

	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return nil, WrapValidationError(err, "failed to decode JSON document")
	}

	node, ok := doc.(map[string]any)
	for _, name := range path[:len(path)-1] {
		if !ok {
			break
		}
		node, ok = node[name].(map[string]any)
	}
	if ok {
		delete(node, path[len(path)-1])
	}

	stripped, err := json.Marshal(doc)
	if err != nil {
		return nil, WrapInternalError(err, "failed to encode JSON document")
	}

	return jcs.Transform(stripped)
}
