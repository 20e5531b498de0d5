// Package manifest parses the parts of a Readium Web Publication audiobook manifest that license checks read:
// the original bytes, the protection extensions embedded in "metadata", and the top level "links".
//
// Reading order, table of contents and other playback data are ignored.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// SignatureExtensionKey is the metadata member holding the manifest signature.
	SignatureExtensionKey = "http://www.feedbooks.com/audiobooks/signature"

	// RightsExtensionKey is the metadata member holding the rights validity window.
	RightsExtensionKey = "http://www.feedbooks.com/audiobooks/rights"
)

// ErrInvalidManifest is wrapped by every error returned from Parse.
var ErrInvalidManifest = errors.New("invalid manifest")

// ExtensionKind discriminates the Extension union.
type ExtensionKind int

const (
	KindOther ExtensionKind = iota
	KindSignature
	KindRights
)

func (k ExtensionKind) String() string {
	switch k {
	case KindSignature:
		return "signature"
	case KindRights:
		return "rights"
	default:
		return "other"
	}
}

// Signature is the embedded manifest signature.
type Signature struct {
	Issuer    string `json:"issuer"`
	Algorithm string `json:"algorithm"`

	// Value is the base64 encoded signature over the canonical manifest without this extension.
	Value string `json:"value"`
}

// Rights is the validity window of the license. A nil bound is unbounded on that side.
type Rights struct {
	ValidStart *time.Time
	ValidEnd   *time.Time
}

// Extension is a tagged union over the extension types found in manifest metadata.
// Exactly one of Signature and Rights is set for the matching Kind; KindOther carries only Raw.
type Extension struct {
	Kind ExtensionKind

	// Name is the metadata member name, e.g. SignatureExtensionKey
	Name string

	Signature *Signature
	Rights    *Rights

	Raw json.RawMessage
}

// Link is a manifest link.
type Link struct {
	Href      string
	Rel       []string
	Type      string
	Templated bool
}

// HasRel reports whether rel is one of the link's relations.
func (l Link) HasRel(rel string) bool {
	for _, r := range l.Rel {
		if r == rel {
			return true
		}
	}
	return false
}

// Manifest is a parsed manifest. It is not modified after Parse returns.
type Manifest struct {
	// OriginalBytes are the bytes the manifest was parsed from (needed for signature checks).
	OriginalBytes []byte

	Identifier string
	Title      string

	Extensions []Extension
	Links      []Link
}

// Signature returns the signature extension, if present.
func (m *Manifest) Signature() (*Signature, bool) {
	ext, ok := m.Extension(KindSignature)
	if !ok {
		return nil, false
	}
	return ext.Signature, true
}

// Rights returns the rights extension, if present.
func (m *Manifest) Rights() (*Rights, bool) {
	ext, ok := m.Extension(KindRights)
	if !ok {
		return nil, false
	}
	return ext.Rights, true
}

// Extension returns the first extension of the given kind.
func (m *Manifest) Extension(kind ExtensionKind) (Extension, bool) {
	for _, ext := range m.Extensions {
		if ext.Kind == kind {
			return ext, true
		}
	}
	return Extension{}, false
}

type rawManifest struct {
	Metadata map[string]json.RawMessage `json:"metadata"`
	Links    []rawLink                  `json:"links"`
}

type rawLink struct {
	Href      string          `json:"href"`
	Rel       json.RawMessage `json:"rel"`
	Type      string          `json:"type"`
	Templated bool            `json:"templated"`
}

type rawRights struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Parse parses a manifest document.
func Parse(data []byte) (*Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrInvalidManifest)
	}

	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	m := &Manifest{
		OriginalBytes: bytes.Clone(data),
	}

	if err := m.parseMetadata(raw.Metadata); err != nil {
		return nil, err
	}

	for i, rl := range raw.Links {
		rels, err := parseRel(rl.Rel)
		if err != nil {
			return nil, fmt.Errorf("%w: links[%d].rel: %v", ErrInvalidManifest, i, err)
		}
		m.Links = append(m.Links, Link{
			Href:      rl.Href,
			Rel:       rels,
			Type:      rl.Type,
			Templated: rl.Templated,
		})
	}

	return m, nil
}

func (m *Manifest) parseMetadata(metadata map[string]json.RawMessage) error {
	if v, ok := metadata["identifier"]; ok {
		_ = json.Unmarshal(v, &m.Identifier)
	}
	if v, ok := metadata["title"]; ok {
		_ = json.Unmarshal(v, &m.Title)
	}

	// extensions are identified by URI member names; sort for a stable order
	names := make([]string, 0, len(metadata))
	for name := range metadata {
		if strings.Contains(name, "://") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		value := metadata[name]
		ext := Extension{Kind: KindOther, Name: name, Raw: value}

		switch name {
		case SignatureExtensionKey:
			var sig Signature
			if err := json.Unmarshal(value, &sig); err != nil {
				return fmt.Errorf("%w: signature extension: %v", ErrInvalidManifest, err)
			}
			ext.Kind = KindSignature
			ext.Signature = &sig

		case RightsExtensionKey:
			var rr rawRights
			if err := json.Unmarshal(value, &rr); err != nil {
				return fmt.Errorf("%w: rights extension: %v", ErrInvalidManifest, err)
			}
			rights := &Rights{}
			var err error
			if rights.ValidStart, err = parseTimestamp(rr.Start); err != nil {
				return fmt.Errorf("%w: rights extension start: %v", ErrInvalidManifest, err)
			}
			if rights.ValidEnd, err = parseTimestamp(rr.End); err != nil {
				return fmt.Errorf("%w: rights extension end: %v", ErrInvalidManifest, err)
			}
			ext.Kind = KindRights
			ext.Rights = rights
		}

		m.Extensions = append(m.Extensions, ext)
	}

	return nil
}

// timestamps without a zone are read as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func parseTimestamp(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", s)
}

// parseRel accepts a single relation or an array of relations.
func parseRel(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("rel must be a string or an array of strings")
	}
	return many, nil
}
