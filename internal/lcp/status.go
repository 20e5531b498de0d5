package lcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a license.
type Status string

const (
	StatusReady     Status = "ready"
	StatusActive    Status = "active"
	StatusRevoked   Status = "revoked"
	StatusReturned  Status = "returned"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Statuses lists every valid Status.
var Statuses = []Status{
	StatusReady,
	StatusActive,
	StatusRevoked,
	StatusReturned,
	StatusCancelled,
	StatusExpired,
}

// Valid reports whether s is one of the six defined statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// StatusDocument is an LCP license status document.
type StatusDocument struct {
	ID              string           `json:"id"`
	Status          Status           `json:"status"`
	Message         string           `json:"message"`
	Updated         *Updated         `json:"updated,omitempty"`
	Links           []Link           `json:"links,omitempty"`
	PotentialRights *PotentialRights `json:"potential_rights,omitempty"`
	Events          []Event          `json:"events,omitempty"`
}

type Updated struct {
	License *time.Time `json:"license,omitempty"`
	Status  *time.Time `json:"status,omitempty"`
}

type PotentialRights struct {
	End *time.Time `json:"end,omitempty"`
}

type Event struct {
	Type       string    `json:"type"`
	DeviceName string    `json:"name"`
	DeviceID   string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
}

// ParseError is a positioned error found while parsing a status document.
// Line and Column are 1-based.
type ParseError struct {
	Source  string
	Line    int
	Column  int
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s: %d:%d: %s", e.Source, e.Line, e.Column, e.Message)
}

// StatusParser parses status documents. source identifies the document (usually its URL) in errors.
// Exactly one of the results is non-empty.
type StatusParser interface {
	Parse(source string, data []byte) (*StatusDocument, []ParseError)
}

// JSONStatusParser is the StatusParser for JSON status documents.
type JSONStatusParser struct{}

func (JSONStatusParser) Parse(source string, data []byte) (*StatusDocument, []ParseError) {
	var doc StatusDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, []ParseError{decodeError(source, data, err)}
	}

	var errs []ParseError
	if doc.ID == "" {
		line, col := position(data, keyOffset(data, "id"))
		errs = append(errs, ParseError{Source: source, Line: line, Column: col, Message: "missing required field 'id'"})
	}

	switch {
	case doc.Status == "":
		line, col := position(data, keyOffset(data, "status"))
		errs = append(errs, ParseError{Source: source, Line: line, Column: col, Message: "missing required field 'status'"})
	case !doc.Status.Valid():
		line, col := position(data, keyOffset(data, "status"))
		errs = append(errs, ParseError{
			Source:  source,
			Line:    line,
			Column:  col,
			Message: fmt.Sprintf("unrecognized status %q", string(doc.Status)),
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &doc, nil
}

func decodeError(source string, data []byte, err error) ParseError {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError

	offset := int64(len(data))
	message := err.Error()

	switch {
	case errors.As(err, &syntaxErr):
		// Offset counts the offending byte
		offset = syntaxErr.Offset - 1
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
		message = fmt.Sprintf("field '%s': expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}

	line, col := position(data, offset)
	return ParseError{Source: source, Line: line, Column: col, Message: message}
}

// keyOffset returns the offset of the first occurrence of the quoted member name, or 0.
func keyOffset(data []byte, key string) int64 {
	i := bytes.Index(data, []byte(`"`+key+`"`))
	if i < 0 {
		return 0
	}
	return int64(i)
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	if offset < 0 {
		offset = 0
	}
	prefix := data[:offset]
	line := bytes.Count(prefix, []byte("\n")) + 1
	col := int(offset) - bytes.LastIndexByte(prefix, '\n')
	return line, col
}
