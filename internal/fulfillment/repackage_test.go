package fulfillment

import (
	"archive/zip"
	"bytes"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRepackage(t *testing.T) {
	entries := defaultEntries()
	path := writePackage(t, entries)
	license := licenseJSON("https://example.com/book", 0, "")

	recorder := &fakeRecorder{}
	w := newTestWorkflow(t, Config{Recorder: recorder, Credentials: nil})

	got, err := w.Repackage("https://example.com/book", license, path)
	if err != nil {
		t.Fatalf("Repackage() error = %v", err)
	}

	if got.Source != "manifest.json" || got.ContentType != "text/json" {
		t.Errorf("artifact = %s (%s), want manifest.json (text/json)", got.Source, got.ContentType)
	}
	if string(got.Data) != testManifest {
		t.Errorf("artifact data = %s", got.Data)
	}

	names, archived := readPackage(t, path)
	if len(names) != len(entries)+1 {
		t.Fatalf("got %d entries, want %d: %v", len(names), len(entries)+1, names)
	}
	if names[0] != LicenseEntryName {
		t.Errorf("first entry = %s, want %s", names[0], LicenseEntryName)
	}
	if !bytes.Equal(archived[LicenseEntryName].data, license) {
		t.Errorf("embedded license differs from input")
	}

	for i, e := range entries {
		if names[i+1] != e.name {
			t.Errorf("entry %d = %s, want %s", i+1, names[i+1], e.name)
		}
		a := archived[e.name]
		if !bytes.Equal(a.data, e.data) {
			t.Errorf("%s: content changed", e.name)
		}
		if a.method != e.method {
			t.Errorf("%s: method = %d, want %d", e.name, a.method, e.method)
		}
		if want := crc32.ChecksumIEEE(e.data); a.crc != want {
			t.Errorf("%s: crc = %08x, want %08x", e.name, a.crc, want)
		}
	}

	assertOnlyFile(t, filepath.Dir(path), filepath.Base(path))

	if len(recorder.steps) != 1 || recorder.steps[0] != "repackage=success" {
		t.Errorf("recorded steps = %v", recorder.steps)
	}
}

func TestRepackage_ReplacesExistingLicense(t *testing.T) {
	entries := append([]testEntry{{name: LicenseEntryName, method: zip.Deflate, data: []byte(`{"id":"old"}`)}}, defaultEntries()...)
	path := writePackage(t, entries)
	license := licenseJSON("https://example.com/book", 0, "")

	w := newTestWorkflow(t, Config{})
	if _, err := w.Repackage("https://example.com/book", license, path); err != nil {
		t.Fatalf("Repackage() error = %v", err)
	}

	names, archived := readPackage(t, path)
	if len(names) != len(entries) {
		t.Fatalf("got %d entries, want %d: %v", len(names), len(entries), names)
	}
	count := 0
	for _, name := range names {
		if name == LicenseEntryName {
			count++
		}
	}
	if count != 1 {
		t.Errorf("found %d %s entries, want 1", count, LicenseEntryName)
	}
	if !bytes.Equal(archived[LicenseEntryName].data, license) {
		t.Errorf("old license was not replaced")
	}
}

func TestRepackage_MissingManifestPanics(t *testing.T) {
	path := writePackage(t, []testEntry{{name: "chapter1.mp3", method: zip.Store, data: []byte("audio")}})
	original, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	w := newTestWorkflow(t, Config{})

	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("Repackage() did not panic")
			}
			if !strings.Contains(r.(string), "manifest.json") {
				t.Errorf("panic = %v", r)
			}
		}()
		_, _ = w.Repackage("https://example.com/book", []byte(`{}`), path)
	}()

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(original, after) {
		t.Error("package was modified")
	}
	assertOnlyFile(t, filepath.Dir(path), filepath.Base(path))
}

func TestRepackage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{
			name: "not a zip",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "book.audiobook")
				if err := os.WriteFile(path, []byte("<html>not found</html>"), 0o644); err != nil {
					t.Fatal(err)
				}
				return path
			},
		},
		{
			name: "missing file",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "absent.audiobook")
			},
		},
		{
			name: "corrupt entry",
			setup: func(t *testing.T) string {
				data := buildPackage(t, []testEntry{
					{name: "manifest.json", method: zip.Store, data: []byte(testManifest)},
				})
				// flip a byte of the stored manifest so its CRC no longer matches
				idx := bytes.Index(data, []byte(testManifest))
				data[idx+2] ^= 0xff
				path := filepath.Join(t.TempDir(), "book.audiobook")
				if err := os.WriteFile(path, data, 0o644); err != nil {
					t.Fatal(err)
				}
				return path
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.setup(t)
			w := newTestWorkflow(t, Config{})

			_, err := w.Repackage("https://example.com/book", []byte(`{}`), path)
			if err == nil {
				t.Fatal("Repackage() expected error")
			}
			if code := ErrorCodeOf(err); code != ErrCodeRepackageFailed {
				t.Errorf("code = %q, want %q", code, ErrCodeRepackageFailed)
			}
			assertOnlyFile(t, filepath.Dir(path), filepath.Base(path))
		})
	}
}

func TestExtractManifest(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		path := writePackage(t, defaultEntries())

		got, err := ExtractManifest(path)
		if err != nil {
			t.Fatalf("ExtractManifest() error = %v", err)
		}
		if string(got.Data) != testManifest {
			t.Errorf("Data = %s", got.Data)
		}
		if got.ContentType != "text/json" {
			t.Errorf("ContentType = %s", got.ContentType)
		}
	})

	t.Run("absent", func(t *testing.T) {
		path := writePackage(t, []testEntry{{name: "chapter1.mp3", method: zip.Store, data: []byte("audio")}})

		_, err := ExtractManifest(path)
		if code := ErrorCodeOf(err); code != ErrCodeNotFound {
			t.Fatalf("code = %q, want %q (err %v)", code, ErrCodeNotFound, err)
		}
		if err.Error() != "Container does not appear to contain manifest.json" {
			t.Errorf("message = %q", err.Error())
		}
	})
}
