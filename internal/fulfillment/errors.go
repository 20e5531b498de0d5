package fulfillment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled is returned when the context is cancelled during a download.
// It is not a failure: the caller asked for the work to stop.
var ErrCancelled = errors.New("fulfillment cancelled")

type ErrorCode string

const (
	// ErrCodeHTTPRequestFailed: the server responded with a non-2xx status. ServerData is set.
	ErrCodeHTTPRequestFailed ErrorCode = "http_request_failed"

	// ErrCodeParseFailed: a downloaded document could not be parsed.
	ErrCodeParseFailed ErrorCode = "parse_failed"

	// ErrCodeDownloadFailed: the request could not be made, or the body could not be read or stored.
	ErrCodeDownloadFailed ErrorCode = "download_failed"

	// ErrCodeRepackageFailed: the package could not be rewritten.
	ErrCodeRepackageFailed ErrorCode = "repackage_failed"

	// ErrCodeNotFound: a required archive entry is missing.
	ErrCodeNotFound ErrorCode = "not_found"
)

// ServerData is what the server sent back for a failed request.
type ServerData struct {
	URI         string         `json:"uri"`
	Code        int            `json:"code"`
	Body        []byte         `json:"body,omitempty"`
	ContentType string         `json:"content_type"`
	Problem     *ProblemReport `json:"problem,omitempty"`
}

// ProblemReport is an RFC 7807 problem details document.
type ProblemReport struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Status   int    `json:"status,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// Error is a fulfillment failure.
type Error struct {
	code    ErrorCode
	message string

	// extraMessages are supplementary diagnostics, e.g. the problem details sent by the server
	extraMessages []string

	serverData *ServerData
	wrapped    error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *Error) Code() ErrorCode         { return e.code }
func (e *Error) Message() string         { return e.message }
func (e *Error) ExtraMessages() []string { return e.extraMessages }
func (e *Error) ServerData() *ServerData { return e.serverData }
func (e *Error) Unwrap() error           { return e.wrapped }

// ErrorCodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func ErrorCodeOf(err error) ErrorCode {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.code
	}
	return ""
}

const defaultContentType = "application/octet-stream"

// newHTTPError builds the error for a non-2xx response.
func newHTTPError(uri string, code int, message string, body []byte, contentType string) *Error {
	if contentType == "" {
		contentType = defaultContentType
	}
	data := &ServerData{
		URI:         uri,
		Code:        code,
		Body:        body,
		ContentType: contentType,
	}

	extra := []string{fmt.Sprintf("URL returned HTTP status %d.", code)}
	if report := parseProblemReport(body, contentType); report != nil {
		data.Problem = report
		extra = append(extra,
			"Problem details [Title]:    "+report.Title,
			"Problem details [Detail]:   "+report.Detail,
			"Problem details [Type]:     "+report.Type,
			"Problem details [Instance]: "+report.Instance,
			fmt.Sprintf("Problem details [Status]:   %d", report.Status),
		)
	}

	return &Error{
		code:          ErrCodeHTTPRequestFailed,
		message:       message,
		extraMessages: extra,
		serverData:    data,
	}
}

func parseProblemReport(body []byte, contentType string) *ProblemReport {
	if !strings.HasPrefix(contentType, "application/problem+json") || len(body) == 0 {
		return nil
	}
	var report ProblemReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil
	}
	return &report
}

func newParseError(err error, message string) *Error {
	return &Error{code: ErrCodeParseFailed, message: message, extraMessages: []string{err.Error()}, wrapped: err}
}

func newDownloadError(err error, message string) *Error {
	return &Error{code: ErrCodeDownloadFailed, message: message, wrapped: err}
}

func newRepackageError(err error, message string) *Error {
	return &Error{code: ErrCodeRepackageFailed, message: message, wrapped: err}
}

func newNotFoundError(message string) *Error {
	return &Error{code: ErrCodeNotFound, message: message}
}
