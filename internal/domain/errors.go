package domain

import (
	"errors"
	"fmt"
)

// Fetch failure reasons.
const (
	ReasonNetworkError           = "network_error"
	ReasonTimeout                = "timeout"
	ReasonHTTPStatus             = "http_status"
	ReasonUnsupportedContentType = "unsupported_content_type"
	ReasonTooManyRedirects       = "too_many_redirects"
	ReasonParseError             = "parse_error"
	ReasonInvalidURL             = "invalid_url"
	ReasonDisallowed             = "disallowed_by_robots"
)

// ErrInvalidRequest is matched by every EngineError.
var ErrInvalidRequest = errors.New("invalid crawl request")

// FetchError is returned when a single page could not be retrieved.
type FetchError struct {
	URL        string
	Reason     string
	StatusCode int
	Err        error
}

// Code renders the reason the way it is reported to callers, e.g.
// "http_status:404".
func (e *FetchError) Code() string {
	if e.Reason == ReasonHTTPStatus {
		return fmt.Sprintf("%s:%d", ReasonHTTPStatus, e.StatusCode)
	}
	return e.Reason
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Code(), e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Code())
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is returned when a fetched page could not be parsed as HTML.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s: %v", e.URL, ReasonParseError, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DomainError terminates a single domain's crawl because its seed could not
// be processed.
type DomainError struct {
	Seed string
	Err  error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("seed %s unreachable: %s", e.Seed, Reason(e.Err))
}

func (e *DomainError) Unwrap() error { return e.Err }

// EngineError is a malformed request rejected before any crawling starts.
type EngineError struct {
	Field   string
	Message string
}

func (e *EngineError) Error() string {
	if e.Field == "" {
		return "invalid crawl request: " + e.Message
	}
	return fmt.Sprintf("invalid crawl request: %s: %s", e.Field, e.Message)
}

func (e *EngineError) Is(target error) bool { return target == ErrInvalidRequest }

// Reason extracts the short failure code carried by a fetch or parse error.
func Reason(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Code()
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return ReasonParseError
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
