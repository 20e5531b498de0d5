// Package transport is the HTTP fetch capability used by license checks and fulfillment.
//
// A Fetcher performs GET requests with a user agent and optional credentials.
// Non-2xx responses are returned as responses, not errors: callers decide what a failed status means.
// Only transport failures (DNS, TLS, connection, body read) are returned as errors.
package transport

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
)

// Credentials produce the value of the Authorization header.
type Credentials interface {
	Authorization() string
}

// BasicAuth is HTTP basic authentication.
type BasicAuth struct {
	Username string
	Password string
}

func (b BasicAuth) Authorization() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(b.Username+":"+b.Password))
}

// BearerToken is an OAuth bearer token.
type BearerToken struct {
	Token string
}

func (b BearerToken) Authorization() string {
	return "Bearer " + b.Token
}

// Request describes a GET request.
type Request struct {
	URL string

	// UserAgent overrides the fetcher's default user agent when set.
	UserAgent string

	// Accept sets the Accept header when set.
	Accept string

	// Credentials are optional.
	Credentials Credentials

	// Header holds any additional headers.
	Header http.Header
}

// Response is a fully read response.
type Response struct {
	URL         string
	StatusCode  int
	Status      string
	ContentType string
	Body        []byte
}

// OK reports whether the response has a 2xx status code.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Stream is a response whose body has not been read. The caller must close Body.
type Stream struct {
	URL           string
	StatusCode    int
	Status        string
	ContentType   string
	ContentLength int64
	Body          io.ReadCloser
}

// OK reports whether the response has a 2xx status code.
func (s *Stream) OK() bool {
	return s.StatusCode >= 200 && s.StatusCode < 300
}

// Fetcher performs HTTP GET requests.
type Fetcher interface {
	// Fetch performs the request and reads the whole body.
	Fetch(ctx context.Context, req *Request) (*Response, error)

	// Open performs the request and returns the unread body.
	Open(ctx context.Context, req *Request) (*Stream, error)
}
