package lcp

import (
	"errors"
	"testing"
)

const testLicense = `{
  "id": "ef15e740-697f-11e3-949a-0800200c9a66",
  "issued": "2023-04-01T10:00:00Z",
  "provider": "https://www.cantookaudio.com",
  "encryption": {
    "profile": "http://readium.org/lcp/basic-profile",
    "content_key": {"algorithm": "http://www.w3.org/2001/04/xmlenc#aes256-cbc", "encrypted_value": "/k8RpXqf4E2WEunCp76E8PjhS051NXwAXeTD1ioazYxCRGvHLAck/KQ3cCh5JxDmCK0nRLyAxs1X0aA3z55boQ=="},
    "user_key": {"algorithm": "http://www.w3.org/2001/04/xmlenc#sha256", "text_hint": "Enter your email address"}
  },
  "links": [
    {"rel": "hint", "href": "https://example.com/passphrase-hint"},
    {"rel": "publication", "href": "https://example.com/books/1.audiobook", "type": "application/audiobook+lcp", "length": 1024, "hash": "uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek="},
    {"rel": "status", "href": "https://example.com/licenses/1/status", "type": "application/vnd.readium.license.status.v1.0+json"}
  ],
  "user": {"id": "user-1"},
  "rights": {"start": "2023-04-01T10:00:00Z", "end": "2023-05-01T10:00:00Z"},
  "signature": {"algorithm": "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256", "certificate": "", "value": ""}
}`

func TestParseLicense(t *testing.T) {
	license, err := ParseLicense([]byte(testLicense))
	if err != nil {
		t.Fatalf("ParseLicense() error = %v", err)
	}

	if license.ID != "ef15e740-697f-11e3-949a-0800200c9a66" {
		t.Errorf("ID = %q", license.ID)
	}

	pub := license.PublicationLink()
	if pub.Href != "https://example.com/books/1.audiobook" {
		t.Errorf("publication href = %q", pub.Href)
	}
	if pub.Hash != "uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek=" {
		t.Errorf("publication hash = %q", pub.Hash)
	}

	status, ok := license.StatusLink()
	if !ok || status.Type != StatusContentType {
		t.Errorf("status link = %+v, %v", status, ok)
	}

	if string(license.Bytes()) != testLicense {
		t.Error("Bytes() do not match the parsed input")
	}

	if license.Rights.End == nil || license.Rights.End.Month() != 5 {
		t.Errorf("rights end = %v", license.Rights.End)
	}
}

func TestParseLicense_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `<license/>`},
		{"missing id", `{"links": [{"rel": "publication", "href": "https://example.com/b"}]}`},
		{"no publication link", `{"id": "1", "links": [{"rel": "status", "href": "https://example.com/s"}]}`},
		{"publication without href", `{"id": "1", "links": [{"rel": "publication"}]}`},
		{"bad issued timestamp", `{"id": "1", "issued": "today", "links": [{"rel": "publication", "href": "x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLicense([]byte(tt.data))
			if !errors.Is(err, ErrInvalidLicense) {
				t.Errorf("ParseLicense() error = %v, want ErrInvalidLicense", err)
			}
		})
	}
}
