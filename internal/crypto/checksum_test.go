package crypto

import (
	"bytes"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

var testData = []byte("hello world")

const (
	expectedChecksumHex    = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	expectedChecksumBase64 = "uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek="
)

func TestCalculateSHA256Hex(t *testing.T) {
	if got := CalculateSHA256Hex(testData); got != expectedChecksumHex {
		t.Errorf("CalculateSHA256Hex() = %v, want %v", got, expectedChecksumHex)
	}
}

func TestVerifyFileChecksum(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")

	if err := os.WriteFile(testFile, testData, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		checksum string
		wantCode ErrorCode
	}{
		{"hex", testFile, expectedChecksumHex, ""},
		{"base64", testFile, expectedChecksumBase64, ""},
		{"mismatch", testFile, "0000000000000000000000000000000000000000000000000000000000000000", ErrCodeInvalidChecksum},
		{"missing file", filepath.Join(tmpDir, "missing.txt"), expectedChecksumHex, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyFileChecksum(tt.path, tt.checksum)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("VerifyFileChecksum() unexpected error: %v", err)
				}
				return
			}
			if got := ErrorCodeOf(err); got != tt.wantCode {
				t.Errorf("VerifyFileChecksum() code = %q, want %q (err: %v)", got, tt.wantCode, err)
			}
		})
	}
}

func TestCalculateCRC32(t *testing.T) {
	crc, n, err := CalculateCRC32(bytes.NewReader(testData))
	if err != nil {
		t.Fatalf("CalculateCRC32() error = %v", err)
	}
	if n != int64(len(testData)) {
		t.Errorf("size = %d, want %d", n, len(testData))
	}
	if want := crc32.ChecksumIEEE(testData); crc != want {
		t.Errorf("crc = %08x, want %08x", crc, want)
	}
}
