// Package issuers maps signature issuers to the location of their public key sets and retrieves those sets.
//
// # registry
// The registry is the set of issuers whose signatures are trusted. Each issuer URI (the "issuer" field of a
// manifest signature) maps to a certificate URL serving a JWK set.
//
// The registry always contains the built-in issuers. Additional issuers can be loaded from a CSV file with
// the columns issuer,certificate_url. A header row is allowed.
//
// Issuers not in the registry are unknown and their signatures fail verification.
package issuers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
)

var ErrInvalidRegistry = errors.New("invalid issuer registry")

// built-in issuers
var defaultIssuers = map[string]string{
	"https://www.cantookaudio.com": "https://listen.cantookaudio.com/.well-known/jwks.json",
}

// Issuer is a trusted signature issuer.
type Issuer struct {
	// Name is the issuer URI as it appears in manifest signatures (e.g. "https://www.cantookaudio.com")
	Name string `json:"issuer"`

	// CertificateURL serves the issuer's JWK set
	CertificateURL string `json:"certificate_url"`
}

// Registry maps issuer URIs to certificate URLs.
// A Registry is not modified after it is loaded and is safe for concurrent reads.
type Registry struct {
	issuers map[string]Issuer
}

// NewRegistry returns a registry holding the built-in issuers plus extra.
// An entry in extra replaces a built-in issuer with the same name.
func NewRegistry(extra ...Issuer) (*Registry, error) {
	r := &Registry{issuers: make(map[string]Issuer)}
	for name, certURL := range defaultIssuers {
		r.issuers[name] = Issuer{Name: name, CertificateURL: certURL}
	}

	seen := make(map[string]bool)
	for _, issuer := range extra {
		if err := validateIssuer(issuer); err != nil {
			return nil, err
		}
		if seen[issuer.Name] {
			return nil, fmt.Errorf("%w: duplicate issuer %s", ErrInvalidRegistry, issuer.Name)
		}
		seen[issuer.Name] = true
		r.issuers[issuer.Name] = issuer
	}
	return r, nil
}

// DefaultRegistry returns a registry holding only the built-in issuers.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry()
	return r
}

// LoadRegistry returns the built-in issuers plus those in the CSV file at path.
// An empty path returns the default registry.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read issuer registry: %w", err)
	}

	extra, err := parseRegistryCSV(data)
	if err != nil {
		return nil, err
	}
	return NewRegistry(extra...)
}

func parseRegistryCSV(data []byte) ([]Issuer, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse csv: %v", ErrInvalidRegistry, err)
	}

	var issuers []Issuer
	for i, record := range records {
		// skip header row
		if i == 0 && len(record) > 0 && record[0] == "issuer" {
			continue
		}
		if len(record) != 2 {
			return nil, fmt.Errorf("%w: line %d: expected 2 fields, got %d", ErrInvalidRegistry, i+1, len(record))
		}
		issuers = append(issuers, Issuer{Name: record[0], CertificateURL: record[1]})
	}
	return issuers, nil
}

func validateIssuer(issuer Issuer) error {
	if issuer.Name == "" {
		return fmt.Errorf("%w: issuer not set", ErrInvalidRegistry)
	}
	if issuer.CertificateURL == "" {
		return fmt.Errorf("%w: certificate_url not set for %s", ErrInvalidRegistry, issuer.Name)
	}

	u, err := url.Parse(issuer.CertificateURL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("%w: invalid certificate_url for %s: %q", ErrInvalidRegistry, issuer.Name, issuer.CertificateURL)
	}
	return nil
}

// CertificateURL returns the certificate URL of issuer.
func (r *Registry) CertificateURL(issuer string) (string, bool) {
	entry, ok := r.issuers[issuer]
	if !ok {
		return "", false
	}
	return entry.CertificateURL, true
}

// Issuers returns every issuer, sorted by name.
func (r *Registry) Issuers() []Issuer {
	list := make([]Issuer, 0, len(r.issuers))
	for _, issuer := range r.issuers {
		list = append(list, issuer)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Len returns the number of issuers.
func (r *Registry) Len() int {
	return len(r.issuers)
}
