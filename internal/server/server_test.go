package server

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/information-sharing-networks/audiobook-license/app/internal/api"
	"github.com/information-sharing-networks/audiobook-license/app/internal/config"
	"github.com/information-sharing-networks/audiobook-license/app/internal/crypto"
	"github.com/information-sharing-networks/audiobook-license/app/internal/issuers"
	"github.com/information-sharing-networks/audiobook-license/app/internal/lcp"
	"github.com/information-sharing-networks/audiobook-license/app/internal/licensecheck"
	"github.com/information-sharing-networks/audiobook-license/app/internal/manifest"
	"github.com/information-sharing-networks/audiobook-license/app/internal/metrics"
	"github.com/information-sharing-networks/audiobook-license/app/internal/services"
	"github.com/information-sharing-networks/audiobook-license/app/internal/transport"
)

const testIssuer = "https://publisher.example.com"

// publisher serves an issuer key set and license status documents.
type publisher struct {
	*httptest.Server
	key    *rsa.PrivateKey
	status atomic.Value
}

func newPublisher(t *testing.T) *publisher {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	set, err := crypto.NewRSAPublicKeySet([]*rsa.PublicKey{&key.PublicKey}, []string{"k1"})
	if err != nil {
		t.Fatalf("NewRSAPublicKeySet() error = %v", err)
	}
	keySet, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	p := &publisher{key: key}
	p.status.Store("active")

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jwks.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(keySet)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", lcp.StatusContentType)
		_, _ = fmt.Fprintf(w, `{"id":"lsd-1","status":%q,"updated":{"license":"2020-01-01T00:00:00Z","status":"2020-01-02T00:00:00Z"},"links":[]}`, p.status.Load().(string))
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

// manifest returns a signed manifest with a rights window and a status link.
func (p *publisher) manifest(t *testing.T) []byte {
	t.Helper()

	doc := map[string]any{
		"@context": "https://readium.org/webpub-manifest/context.jsonld",
		"metadata": map[string]any{
			"@type":      "http://schema.org/Audiobook",
			"identifier": "urn:isbn:9780000000002",
			"title":      "A Test Audiobook",
			manifest.RightsExtensionKey: map[string]any{
				"start": "2020-01-01T00:00:00Z",
				"end":   "2030-01-01T00:00:00Z",
			},
		},
		"links": []map[string]any{
			{"rel": "license", "href": p.URL + "/status", "type": lcp.StatusContentType},
		},
		"readingOrder": []map[string]any{{"href": "chapter1.mp3", "type": "audio/mpeg"}},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	signed, err := manifest.Sign(data, testIssuer, crypto.AlgorithmRSASHA256, p.key)
	if err != nil {
		t.Fatalf("manifest.Sign() error = %v", err)
	}
	return signed
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Environment {
	return &config.Environment{
		Environment:    "test",
		MaxRequestSize: 64 * 1024,
		RateLimitRPS:   0,
	}
}

func newTestServer(t *testing.T, cfg *config.Environment, p *publisher) *Server {
	t.Helper()

	registry, err := issuers.NewRegistry(issuers.Issuer{Name: testIssuer, CertificateURL: p.URL + "/.well-known/jwks.json"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	fetcher := transport.NewHTTPFetcher(transport.Options{
		UserAgent:    "server-test/1.0",
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
	})

	m := metrics.New()
	svc := &services.Services{
		Fetcher:  fetcher,
		Registry: registry,
		KeySets:  issuers.NewHTTPKeySetProvider(fetcher),
		Metrics:  m,
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	orchestrator := licensecheck.NewOrchestrator(discardLogger(), licensecheck.StandardChecks(licensecheck.Dependencies{
		Issuers: registry,
		KeySets: svc.KeySets,
		Fetcher: fetcher,
		Now:     func() time.Time { return now },
		Logger:  discardLogger(),
	}), licensecheck.WithRecorder(m))

	return New(cfg, discardLogger(), svc, orchestrator)
}

func postCheck(t *testing.T, s *Server, query string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/license-checks"+query, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decodeCheckResponse(t *testing.T, rr *httptest.ResponseRecorder) api.LicenseCheckResponse {
	t.Helper()
	var resp api.LicenseCheckResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestLicenseChecks(t *testing.T) {
	p := newPublisher(t)
	s := newTestServer(t, testConfig(), p)
	signed := p.manifest(t)

	for _, query := range []string{"", "?parallel=true"} {
		t.Run("query="+query, func(t *testing.T) {
			rr := postCheck(t, s, query, signed)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
			}

			resp := decodeCheckResponse(t, rr)
			if !resp.Succeeded {
				t.Errorf("succeeded = false, summary = %v", resp.Summary)
			}
			if len(resp.Verdicts) != 3 {
				t.Fatalf("got %d verdicts, want 3", len(resp.Verdicts))
			}
			wantOrder := []string{licensecheck.SignatureCheckName, licensecheck.RightsCheckName, licensecheck.StatusCheckName}
			for i, v := range resp.Verdicts {
				if v.ShortName != wantOrder[i] {
					t.Errorf("verdict %d = %s, want %s", i, v.ShortName, wantOrder[i])
				}
				if v.Kind != licensecheck.Succeeded {
					t.Errorf("%s = %v (%s)", v.ShortName, v.Kind, v.Message)
				}
			}
			if len(resp.Summary) != 3 || resp.Summary[0] != "FeedbooksSignatureCheck: Signature verified." {
				t.Errorf("summary = %v", resp.Summary)
			}
			if len(resp.Events) == 0 {
				t.Error("no events in response")
			}
			if resp.RunID.String() == "00000000-0000-0000-0000-000000000000" {
				t.Error("run_id not set")
			}
		})
	}
}

func TestLicenseChecks_Rejected(t *testing.T) {
	p := newPublisher(t)
	p.status.Store("revoked")
	s := newTestServer(t, testConfig(), p)

	rr := postCheck(t, s, "", p.manifest(t))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	resp := decodeCheckResponse(t, rr)
	if resp.Succeeded {
		t.Error("succeeded = true for a revoked license")
	}
	if resp.Verdicts[2].Kind != licensecheck.Failed {
		t.Errorf("status verdict = %+v", resp.Verdicts[2])
	}
}

func TestLicenseChecks_BadRequests(t *testing.T) {
	p := newPublisher(t)
	cfg := testConfig()
	cfg.MaxRequestSize = 256
	s := newTestServer(t, cfg, p)

	tests := []struct {
		name       string
		query      string
		body       []byte
		wantStatus int
		wantCode   api.ErrorCode
	}{
		{"not json", "", []byte("not a manifest"), http.StatusBadRequest, api.ErrCodeInvalidManifest},
		{"json array", "", []byte("[1,2,3]"), http.StatusBadRequest, api.ErrCodeInvalidManifest},
		{"bad parallel flag", "?parallel=maybe", []byte(`{"metadata":{}}`), http.StatusBadRequest, api.ErrCodeMalformedRequest},
		{"too large", "", bytes.Repeat([]byte("x"), 1024), http.StatusRequestEntityTooLarge, api.ErrCodeRequestTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postCheck(t, s, tt.query, tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}

			var resp api.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(resp.Errors) != 1 || resp.Errors[0].ErrorCode != tt.wantCode {
				t.Errorf("errors = %+v, want code %d", resp.Errors, tt.wantCode)
			}
		})
	}
}

func TestIssuerEndpoints(t *testing.T) {
	p := newPublisher(t)
	s := newTestServer(t, testConfig(), p)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"list", "/v1/issuers", http.StatusOK, p.URL + "/.well-known/jwks.json"},
		{"keys", "/v1/issuers/keys?issuer=" + url.QueryEscape(testIssuer), http.StatusOK, `"kid":"k1"`},
		{"unknown issuer", "/v1/issuers/keys?issuer=" + url.QueryEscape("https://unknown.example.com"), http.StatusNotFound, "unknown issuer"},
		{"missing issuer", "/v1/issuers/keys", http.StatusBadRequest, "issuer parameter is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %q", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestInfrastructureEndpoints(t *testing.T) {
	p := newPublisher(t)
	s := newTestServer(t, testConfig(), p)

	// run one check so the verdict counters have samples
	if rr := postCheck(t, s, "", p.manifest(t)); rr.Code != http.StatusOK {
		t.Fatalf("license check status = %d", rr.Code)
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"health", "/health/live", http.StatusOK, "OK"},
		{"version", "/version", http.StatusOK, `"service":"licensecheck-server"`},
		{"metrics", "/metrics", http.StatusOK, `audiobook_license_check_verdicts_total{check="FeedbooksSignatureCheck",result="succeeded"} 1`},
		{"unknown route", "/v2/nothing", http.StatusNotFound, `"errorCode":8001`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body does not contain %q:\n%s", tt.wantBody, rr.Body.String())
			}
			if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("security headers not set")
			}
		})
	}
}
