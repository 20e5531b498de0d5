// this file contains functions to calculate and verify checksums of downloaded resources.
//
// LCP licenses declare the SHA-256 of the protected publication as a base64 string (link "hash").
// zip entries carry a CRC-32 that must be recomputed when an entry is copied into a new archive.

package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// CalculateSHA256Hex calculates the SHA-256 checksum of data and returns it as a hex string
func CalculateSHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CalculateSHA256FromFile calculates the SHA-256 checksum of a file and returns the raw digest
func CalculateSHA256FromFile(filepath string) ([]byte, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()

	_, err = io.Copy(hasher, file)
	if err != nil {
		return nil, fmt.Errorf("failed to copy file contents: %w", err)
	}

	return hasher.Sum(nil), nil
}

// VerifyFileChecksum verifies that a file matches the expected checksum.
//
// The expected value can be hex or standard base64 encoded (LCP uses base64).
// A mismatch returns a checksum error.
func VerifyFileChecksum(filepath string, expectedChecksum string) error {
	digest, err := CalculateSHA256FromFile(filepath)
	if err != nil {
		return WrapInternalError(err, "failed to calculate checksum")
	}

	if hex.EncodeToString(digest) == expectedChecksum ||
		base64.StdEncoding.EncodeToString(digest) == expectedChecksum {
		return nil
	}

	return NewChecksumError(fmt.Sprintf("checksum mismatch: expected %s, got %s",
		expectedChecksum, base64.StdEncoding.EncodeToString(digest)))
}

// CalculateCRC32 reads r to the end and returns the IEEE CRC-32 and the number of bytes read.
func CalculateCRC32(r io.Reader) (uint32, int64, error) {
	hasher := crc32.NewIEEE()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return 0, n, fmt.Errorf("failed to read content: %w", err)
	}
	return hasher.Sum32(), n, nil
}
