// Package fulfillment downloads the publication referenced by an LCP license and embeds the license in it.
//
// The steps are FetchLicense, ParseLicense, FetchPublication and Repackage; Run chains them.
// Each step emits progress events and returns a *Error on failure.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
	"github.com/information-sharing-networks/audiobook-license/app/internal/events"
	"github.com/information-sharing-networks/audiobook-license/app/internal/lcp"
	"github.com/information-sharing-networks/audiobook-license/app/internal/transport"
)

// EventSource is the source of every event emitted by the workflow.
const EventSource = "ManifestFulfillment"

const (
	StepFetchLicense     = "fetch_license"
	StepParseLicense     = "parse_license"
	StepFetchPublication = "fetch_publication"
	StepRepackage        = "repackage"

	defaultChunkSize = 64 * 1024

	// maxErrorBodySize caps how much of a failed response is kept in ServerData
	maxErrorBodySize = 64 * 1024

	progressInterval = time.Second
)

// Fulfilled is a document produced by a fulfillment step.
type Fulfilled struct {
	Source      string
	ContentType string

	// Authorization is the Authorization header value used to fetch the document, if any.
	Authorization string

	Data []byte
}

// Result is the outcome of a complete fulfillment.
type Result struct {
	License     *lcp.License
	PackagePath string
	Manifest    *Fulfilled
}

// StepRecorder records step outcomes. *metrics.Metrics implements it.
type StepRecorder interface {
	ObserveStep(step, outcome string, d time.Duration)
	AddDownloadedBytes(n int64)
}

type Config struct {
	Fetcher transport.Fetcher

	// Credentials are sent with the license and publication requests. nil means anonymous.
	Credentials transport.Credentials

	// ChunkSize is the download buffer size; cancellation is checked between chunks.
	ChunkSize int

	// VerifyHash checks the downloaded publication against the hash declared in the license.
	VerifyHash bool

	Recorder StepRecorder
	Logger   *slog.Logger
}

type Workflow struct {
	fetcher     transport.Fetcher
	credentials transport.Credentials
	chunkSize   int
	verifyHash  bool
	recorder    StepRecorder
	logger      *slog.Logger
}

func NewWorkflow(cfg Config) (*Workflow, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Workflow{
		fetcher:     cfg.Fetcher,
		credentials: cfg.Credentials,
		chunkSize:   chunkSize,
		verifyHash:  cfg.VerifyHash,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
	}, nil
}

// Run fetches and parses the license at licenseURI, then fulfills it into outputPath.
func (w *Workflow) Run(ctx context.Context, licenseURI, outputPath string, sink events.Sink) (*Result, error) {
	fetched, err := w.FetchLicense(ctx, licenseURI, sink)
	if err != nil {
		return nil, err
	}

	license, err := w.ParseLicense(fetched.Data)
	if err != nil {
		return nil, err
	}

	return w.Fulfill(ctx, license, outputPath, sink)
}

// Fulfill downloads the publication of an already parsed license and repackages it.
func (w *Workflow) Fulfill(ctx context.Context, license *lcp.License, outputPath string, sink events.Sink) (*Result, error) {
	if err := w.FetchPublication(ctx, license, outputPath, sink); err != nil {
		return nil, err
	}

	manifest, err := w.Repackage(license.PublicationLink().Href, license.Bytes(), outputPath)
	if err != nil {
		return nil, err
	}

	return &Result{
		License:     license,
		PackagePath: outputPath,
		Manifest:    manifest,
	}, nil
}

// FetchLicense downloads the license document at uri.
func (w *Workflow) FetchLicense(ctx context.Context, uri string, sink events.Sink) (_ *Fulfilled, err error) {
	start := time.Now()
	defer func() { w.observe(StepFetchLicense, start, err) }()

	sink.Emit(EventSource, "Fulfilling "+uri)

	resp, err := w.fetcher.Fetch(ctx, w.request(uri, lcp.LicenseContentType))
	if err != nil {
		return nil, newDownloadError(err, fmt.Sprintf("Failed to fetch %s", uri))
	}

	sink.Emit(EventSource, fmt.Sprintf("Received %d %s for %s", resp.StatusCode, reasonPhrase(resp.Status, resp.StatusCode), uri))

	if !resp.OK() {
		return nil, newHTTPError(uri, resp.StatusCode, reasonPhrase(resp.Status, resp.StatusCode), resp.Body, resp.ContentType)
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}

	return &Fulfilled{
		Source:        uri,
		ContentType:   contentType,
		Authorization: w.authorization(),
		Data:          resp.Body,
	}, nil
}

// ParseLicense parses a downloaded license document.
func (w *Workflow) ParseLicense(data []byte) (_ *lcp.License, err error) {
	start := time.Now()
	defer func() { w.observe(StepParseLicense, start, err) }()

	license, err := lcp.ParseLicense(data)
	if err != nil {
		return nil, newParseError(err, "Failed to parse license")
	}
	return license, nil
}

// FetchPublication downloads the publication linked from license to outputPath.
//
// Any existing file at outputPath is replaced. The partial file is deleted if the download
// fails or ctx is cancelled; cancellation returns ErrCancelled.
func (w *Workflow) FetchPublication(ctx context.Context, license *lcp.License, outputPath string, sink events.Sink) (err error) {
	start := time.Now()
	defer func() { w.observe(StepFetchPublication, start, err) }()

	link := license.PublicationLink()
	logger := w.logger.With(slog.String("license_id", license.ID), slog.String("publication", link.Href))

	sink.Emit(EventSource, "Download started...")

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return w.downloadFailed(sink, err, "Failed to create output directory")
	}
	if err := os.Remove(outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return w.downloadFailed(sink, err, "Failed to remove existing output file")
	}

	stream, err := w.fetcher.Open(ctx, w.request(link.Href, link.Type))
	if err != nil {
		if ctx.Err() != nil {
			sink.Emit(EventSource, "Download cancelled.")
			return ErrCancelled
		}
		return w.downloadFailed(sink, err, fmt.Sprintf("Failed to fetch %s", link.Href))
	}
	defer stream.Body.Close()

	if !stream.OK() {
		body, _ := io.ReadAll(io.LimitReader(stream.Body, maxErrorBodySize))
		httpErr := newHTTPError(link.Href, stream.StatusCode, reasonPhrase(stream.Status, stream.StatusCode), body, stream.ContentType)
		sink.Emit(EventSource, "Download failed: "+httpErr.Error())
		return httpErr
	}

	expected := stream.ContentLength
	if expected <= 0 {
		expected = link.Length
	}

	received, err := w.copyToFile(ctx, stream.Body, outputPath, expected, sink)
	if err != nil {
		_ = os.Remove(outputPath)
		if errors.Is(err, ErrCancelled) {
			logger.Info("publication download cancelled", slog.Int64("received", received))
			sink.Emit(EventSource, "Download cancelled.")
			return ErrCancelled
		}
		return w.downloadFailed(sink, err, "Failed to download publication")
	}

	if link.Length > 0 && received != link.Length {
		_ = os.Remove(outputPath)
		return w.downloadFailed(sink, nil,
			fmt.Sprintf("Publication length mismatch: expected %d bytes, received %d", link.Length, received))
	}

	if w.verifyHash && link.Hash != "" {
		if err := crypto.VerifyFileChecksum(outputPath, link.Hash); err != nil {
			_ = os.Remove(outputPath)
			return w.downloadFailed(sink, err, "Publication does not match the license hash")
		}
	}

	logger.Info("publication downloaded", slog.Int64("bytes", received), slog.Duration("elapsed", time.Since(start)))
	sink.Emit(EventSource, "Download completed successfully.")
	return nil
}

// copyToFile copies body to a new file at path in chunks, checking ctx before each read.
func (w *Workflow) copyToFile(ctx context.Context, body io.Reader, path string, expected int64, sink events.Sink) (int64, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	buf := make([]byte, w.chunkSize)
	var received int64
	start := time.Now()
	lastProgress := start

	for {
		if ctx.Err() != nil {
			return received, ErrCancelled
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				return received, fmt.Errorf("failed to write %s: %w", path, err)
			}
			received += int64(n)
			if w.recorder != nil {
				w.recorder.AddDownloadedBytes(int64(n))
			}
			if now := time.Now(); now.Sub(lastProgress) >= progressInterval {
				lastProgress = now
				sink.Emit(EventSource, progressMessage(received, expected, now.Sub(start)))
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return received, ErrCancelled
			}
			return received, fmt.Errorf("failed to read response body: %w", readErr)
		}
	}

	sink.Emit(EventSource, progressMessage(received, expected, time.Since(start)))

	if err := file.Sync(); err != nil {
		return received, fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return received, fmt.Errorf("failed to close %s: %w", path, err)
	}
	return received, nil
}

func progressMessage(received, expected int64, elapsed time.Duration) string {
	var rate int64
	if seconds := elapsed.Seconds(); seconds > 0 {
		rate = int64(float64(received) / seconds)
	}
	total := "?"
	if expected > 0 {
		total = fmt.Sprintf("%d", expected)
	}
	return fmt.Sprintf("Downloading: %d / %s (%d B/s)", received, total, rate)
}

func (w *Workflow) downloadFailed(sink events.Sink, err error, message string) error {
	fe := newDownloadError(err, message)
	sink.Emit(EventSource, "Download failed: "+fe.Error())
	return fe
}

func (w *Workflow) request(uri, accept string) *transport.Request {
	return &transport.Request{
		URL:         uri,
		Accept:      accept,
		Credentials: w.credentials,
	}
}

func (w *Workflow) authorization() string {
	if w.credentials == nil {
		return ""
	}
	return w.credentials.Authorization()
}

func (w *Workflow) observe(step string, start time.Time, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, ErrCancelled):
		outcome = "cancelled"
	case err != nil:
		outcome = "failure"
	}

	if w.recorder != nil {
		w.recorder.ObserveStep(step, outcome, time.Since(start))
	}

	if err != nil && outcome == "failure" {
		w.logger.Warn("fulfillment step failed",
			slog.String("step", step),
			slog.String("code", string(ErrorCodeOf(err))),
			slog.String("error", err.Error()),
		)
	}
}

// reasonPhrase strips the status code from an HTTP status line ("404 Not Found" -> "Not Found").
func reasonPhrase(status string, code int) string {
	return strings.TrimSpace(strings.TrimPrefix(status, fmt.Sprintf("%d", code)))
}
