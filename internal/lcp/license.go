// Package lcp models Readium LCP license documents and license status documents.
package lcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// LicenseContentType is the media type of an LCP license document.
	LicenseContentType = "application/vnd.readium.lcp.license.v1.0+json"

	// StatusContentType is the media type of an LCP license status document.
	StatusContentType = "application/vnd.readium.license.status.v1.0+json"

	RelPublication = "publication"
	RelStatus      = "status"
)

// ErrInvalidLicense is wrapped by every error returned from ParseLicense.
var ErrInvalidLicense = errors.New("invalid LCP license")

// License is an LCP license document.
type License struct {
	ID         string     `json:"id"`
	Provider   string     `json:"provider"`
	Issued     time.Time  `json:"issued"`
	Updated    *time.Time `json:"updated,omitempty"`
	Encryption Encryption `json:"encryption"`
	Links      []Link     `json:"links"`
	User       UserInfo   `json:"user"`
	Rights     UserRights `json:"rights"`
	Signature  Signature  `json:"signature"`

	// raw holds the bytes the license was parsed from; these are what get embedded in a publication.
	raw []byte
}

type Encryption struct {
	Profile    string     `json:"profile,omitempty"`
	ContentKey ContentKey `json:"content_key"`
	UserKey    UserKey    `json:"user_key"`
}

type ContentKey struct {
	Algorithm string `json:"algorithm,omitempty"`
	Value     []byte `json:"encrypted_value,omitempty"`
}

type UserKey struct {
	Algorithm string `json:"algorithm,omitempty"`
	TextHint  string `json:"text_hint,omitempty"`
	KeyCheck  []byte `json:"key_check,omitempty"`
}

type UserInfo struct {
	ID        string   `json:"id,omitempty"`
	Email     string   `json:"email,omitempty"`
	Name      string   `json:"name,omitempty"`
	Encrypted []string `json:"encrypted,omitempty"`
}

type UserRights struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
	Print *int32     `json:"print,omitempty"`
	Copy  *int32     `json:"copy,omitempty"`
}

type Signature struct {
	Certificate []byte `json:"certificate"`
	Value       []byte `json:"value"`
	Algorithm   string `json:"algorithm"`
}

// Link is a link in a license or status document.
type Link struct {
	Rel       string `json:"rel"`
	Href      string `json:"href"`
	Type      string `json:"type,omitempty"`
	Title     string `json:"title,omitempty"`
	Profile   string `json:"profile,omitempty"`
	Templated bool   `json:"templated,omitempty"`
	Length    int64  `json:"length,omitempty"`

	// Hash is the base64 SHA-256 of the linked resource
	Hash string `json:"hash,omitempty"`
}

// ParseLicense parses an LCP license document.
// The license must have an id and a publication link with an href.
func ParseLicense(data []byte) (*License, error) {
	var license License
	if err := json.Unmarshal(data, &license); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLicense, err)
	}

	if license.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidLicense)
	}

	link, ok := license.Link(RelPublication)
	if !ok {
		return nil, fmt.Errorf("%w: no %q link", ErrInvalidLicense, RelPublication)
	}
	if link.Href == "" {
		return nil, fmt.Errorf("%w: %q link has no href", ErrInvalidLicense, RelPublication)
	}

	license.raw = bytes.Clone(data)
	return &license, nil
}

// Bytes returns the original license bytes.
func (l *License) Bytes() []byte {
	return l.raw
}

// Link returns the first link with the given relation.
func (l *License) Link(rel string) (Link, bool) {
	for _, link := range l.Links {
		if link.Rel == rel {
			return link, true
		}
	}
	return Link{}, false
}

// PublicationLink returns the link to the protected publication.
// It is always present on a license returned by ParseLicense.
func (l *License) PublicationLink() Link {
	link, _ := l.Link(RelPublication)
	return link
}

// StatusLink returns the link to the license status document, if the license has one.
func (l *License) StatusLink() (Link, bool) {
	return l.Link(RelStatus)
}
