// crypto package provides the cryptographic primitives used to check signed audiobook manifests.
//
// these are low level functions - the licensecheck package combines them into the signature check.
//   - canonical.go: RFC 8785 canonicalization (with removal of the embedded signature)
//   - algorithm.go: signature schemes keyed by algorithm URI
//   - jwk.go: issuer key sets
//   - keys.go: key generation and PEM/JWK files for the keygen and sign commands
//   - checksum.go: SHA-256 and CRC-32 checksums for downloaded and repackaged publications
package crypto
