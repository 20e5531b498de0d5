package fulfillment

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/transport"
)

const testManifest = `{"metadata":{"identifier":"urn:isbn:9780000000001","title":"Test Book"},"readingOrder":[{"href":"chapter1.mp3","type":"audio/mpeg"}]}`

type testEntry struct {
	name   string
	method uint16
	data   []byte
}

func defaultEntries() []testEntry {
	return []testEntry{
		{name: "manifest.json", method: zip.Deflate, data: []byte(testManifest)},
		{name: "audio/", method: zip.Store},
		{name: "audio/chapter1.mp3", method: zip.Store, data: bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x64}, 4096)},
		{name: "cover.jpg", method: zip.Deflate, data: []byte("not really a jpeg")},
	}
}

func buildPackage(t *testing.T, entries []testEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method, Modified: time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)})
		if err != nil {
			t.Fatalf("CreateHeader(%s) error = %v", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatalf("Write(%s) error = %v", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return buf.Bytes()
}

func writePackage(t *testing.T, entries []testEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.audiobook")
	if err := os.WriteFile(path, buildPackage(t, entries), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

type archivedEntry struct {
	method uint16
	crc    uint32
	data   []byte
}

// readPackage returns the entry names in archive order and their contents.
func readPackage(t *testing.T, path string) ([]string, map[string]archivedEntry) {
	t.Helper()

	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader(%s) error = %v", path, err)
	}
	defer reader.Close()

	var names []string
	entries := make(map[string]archivedEntry)
	for _, f := range reader.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%s) error = %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("ReadAll(%s) error = %v", f.Name, err)
		}
		names = append(names, f.Name)
		entries[f.Name] = archivedEntry{method: f.Method, crc: f.CRC32, data: data}
	}
	return names, entries
}

func licenseJSON(publicationURL string, length int64, hash string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "ef15e740-697f-11e3-949a-0800200c9a66",
  "issued": "2023-04-01T10:00:00Z",
  "provider": "https://www.cantookaudio.com",
  "encryption": {"profile": "http://readium.org/lcp/basic-profile", "content_key": {}, "user_key": {}},
  "links": [
    {"rel": "publication", "href": %q, "type": "application/audiobook+lcp", "length": %d, "hash": %q}
  ],
  "user": {"id": "user-1"},
  "rights": {},
  "signature": {"algorithm": "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"}
}`, publicationURL, length, hash))
}

func sha256Base64(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorkflow(t *testing.T, cfg Config) *Workflow {
	t.Helper()
	if cfg.Fetcher == nil {
		cfg.Fetcher = transport.NewHTTPFetcher(transport.Options{UserAgent: "fulfillment-test/1.0"})
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	w, err := NewWorkflow(cfg)
	if err != nil {
		t.Fatalf("NewWorkflow() error = %v", err)
	}
	return w
}

type fakeRecorder struct {
	mu         sync.Mutex
	steps      []string
	downloaded int64
}

func (r *fakeRecorder) ObserveStep(step, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step+"="+outcome)
}

func (r *fakeRecorder) AddDownloadedBytes(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloaded += n
}

func hasEvent(evts []events.Event, prefix string) bool {
	for _, e := range evts {
		if strings.HasPrefix(e.Message, prefix) {
			return true
		}
	}
	return false
}

// assertOnlyFile fails if dir contains anything other than name.
func assertOnlyFile(t *testing.T, dir, name string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if e.Name() != name {
			t.Errorf("unexpected file %s left in %s", e.Name(), dir)
		}
	}
}
