package fulfillment

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
)

const (
	// LicenseEntryName is the archive entry the license is embedded as.
	LicenseEntryName = "license.lcpl"

	// ManifestEntryName is the archive entry holding the publication manifest.
	ManifestEntryName = "manifest.json"

	manifestContentType = "text/json"
)

// Repackage rewrites the package at packagePath with the license embedded as license.lcpl.
//
// license.lcpl is written first, followed by every original entry with its original compression
// method. An existing license.lcpl entry is replaced. The new archive is built in a temporary file
// next to the package and renamed over it only once complete; on any failure the original package
// is left untouched. The returned artifact holds the package's manifest.json.
//
// Repackage panics if the package has no manifest.json: FetchPublication only produces packages
// from a license server, and a package without a manifest means the server is broken.
func (w *Workflow) Repackage(source string, license []byte, packagePath string) (_ *Fulfilled, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.observe(StepRepackage, start, newRepackageError(fmt.Errorf("%v", r), "Repackaging aborted"))
			panic(r)
		}
		w.observe(StepRepackage, start, err)
	}()

	logger := w.logger.With(slog.String("package", packagePath), slog.String("source", source))

	reader, err := zip.OpenReader(packagePath)
	if err != nil {
		return nil, newRepackageError(err, fmt.Sprintf("Failed to open %s", packagePath))
	}
	defer reader.Close()

	temp, err := os.CreateTemp(filepath.Dir(packagePath), "."+filepath.Base(packagePath)+".*.tmp")
	if err != nil {
		return nil, newRepackageError(err, "Failed to create temporary file")
	}
	renamed := false
	defer func() {
		if !renamed {
			_ = temp.Close()
			_ = os.Remove(temp.Name())
		}
	}()

	zw := zip.NewWriter(temp)

	if err := writeEntry(zw, &zip.FileHeader{Name: LicenseEntryName, Method: zip.Deflate, Modified: time.Now()}, bytes.NewReader(license)); err != nil {
		return nil, newRepackageError(err, "Failed to write "+LicenseEntryName)
	}

	var manifest []byte
	copied := make([]copiedEntry, 0, len(reader.File))

	for _, entry := range reader.File {
		if entry.Name == LicenseEntryName {
			logger.Debug("replacing existing license entry")
			continue
		}

		data, err := readEntry(entry)
		if err != nil {
			return nil, newRepackageError(err, "Failed to read "+entry.Name)
		}

		crc, size, err := crypto.CalculateCRC32(bytes.NewReader(data))
		if err != nil {
			return nil, newRepackageError(err, "Failed to checksum "+entry.Name)
		}

		header := &zip.FileHeader{
			Name:     entry.Name,
			Comment:  entry.Comment,
			Method:   entry.Method,
			Modified: entry.Modified,
		}
		header.SetMode(entry.Mode())
		if err := writeEntry(zw, header, bytes.NewReader(data)); err != nil {
			return nil, newRepackageError(err, "Failed to write "+entry.Name)
		}
		copied = append(copied, copiedEntry{header: header, crc: crc, size: size})

		if entry.Name == ManifestEntryName {
			manifest = data
		}
	}

	if err := zw.Close(); err != nil {
		return nil, newRepackageError(err, "Failed to finish archive")
	}

	// the writer fills in each header's CRC and size as it closes the entry
	for _, c := range copied {
		if c.header.CRC32 != c.crc || int64(c.header.UncompressedSize64) != c.size {
			return nil, newRepackageError(nil, fmt.Sprintf("Checksum mismatch after copying %s", c.header.Name))
		}
	}

	if manifest == nil {
		panic(fmt.Sprintf("fulfillment: package %s does not contain %s", packagePath, ManifestEntryName))
	}

	if err := temp.Sync(); err != nil {
		return nil, newRepackageError(err, "Failed to sync temporary file")
	}
	if err := temp.Close(); err != nil {
		return nil, newRepackageError(err, "Failed to close temporary file")
	}
	// the source reader must be closed before the rename on platforms that lock open files
	_ = reader.Close()

	if err := os.Rename(temp.Name(), packagePath); err != nil {
		return nil, newRepackageError(err, fmt.Sprintf("Failed to replace %s", packagePath))
	}
	renamed = true

	logger.Info("package repackaged", slog.Int("entries", len(copied)+1))

	return &Fulfilled{
		Source:        ManifestEntryName,
		ContentType:   manifestContentType,
		Authorization: w.authorization(),
		Data:          manifest,
	}, nil
}

// ExtractManifest returns manifest.json from an archive.
func ExtractManifest(packagePath string) (*Fulfilled, error) {
	reader, err := zip.OpenReader(packagePath)
	if err != nil {
		return nil, newRepackageError(err, fmt.Sprintf("Failed to open %s", packagePath))
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if entry.Name != ManifestEntryName {
			continue
		}
		data, err := readEntry(entry)
		if err != nil {
			return nil, newRepackageError(err, "Failed to read "+ManifestEntryName)
		}
		return &Fulfilled{
			Source:      ManifestEntryName,
			ContentType: manifestContentType,
			Data:        data,
		}, nil
	}

	return nil, newNotFoundError("Container does not appear to contain " + ManifestEntryName)
}

type copiedEntry struct {
	header *zip.FileHeader
	crc    uint32
	size   int64
}

// readEntry reads an entry fully. The zip reader verifies the stored CRC at EOF.
func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		if errors.Is(err, zip.ErrChecksum) {
			return nil, crypto.WrapChecksumError(err, "entry "+entry.Name+" is corrupt")
		}
		return nil, err
	}
	return data, nil
}

func writeEntry(zw *zip.Writer, header *zip.FileHeader, r io.Reader) error {
	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}
