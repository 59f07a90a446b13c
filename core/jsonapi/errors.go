package jsonapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Remote error codes the engine distinguishes.
const (
	CodeStateError          = "STATE_ERROR"
	CodeEntityError         = "ENTITY_ERROR"
	CodeRelationshipInvalid = "ENTITY_ERROR.RELATIONSHIP.INVALID"
	CodeAttributeInvalid    = "ENTITY_ERROR.ATTRIBUTE.INVALID"
	CodeNotFound            = "NOT_FOUND"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
)

// ErrorSource points at the part of the request an error refers to.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

// ErrorObject is one entry of a JSON:API errors array.
type ErrorObject struct {
	ID     string       `json:"id,omitempty"`
	Status string       `json:"status,omitempty"`
	Code   string       `json:"code,omitempty"`
	Title  string       `json:"title,omitempty"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
}

// APIError is a non-2xx response from the remote system.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Errors     []ErrorObject
	// Retry is the parsed Retry-After header.
	Retry time.Duration
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s: %d", e.Method, e.Path, e.StatusCode)
	if code := e.Code(); code != "" {
		msg += " " + code
	}
	if detail := e.Detail(); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// Code returns the first remote error code.
func (e *APIError) Code() string {
	for _, obj := range e.Errors {
		if obj.Code != "" {
			return obj.Code
		}
	}
	return ""
}

// Detail returns the first remote error detail, falling back to its title.
func (e *APIError) Detail() string {
	for _, obj := range e.Errors {
		if obj.Detail != "" {
			return obj.Detail
		}
		if obj.Title != "" {
			return obj.Title
		}
	}
	return ""
}

// HasCode reports whether any error code equals code or is nested under it
// (ENTITY_ERROR matches ENTITY_ERROR.RELATIONSHIP.INVALID).
func (e *APIError) HasCode(code string) bool {
	for _, obj := range e.Errors {
		if obj.Code == code || strings.HasPrefix(obj.Code, code+".") {
			return true
		}
	}
	return false
}

func (e *APIError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500
}

func (e *APIError) RetryAfter() time.Duration {
	return e.Retry
}

// TransportError is a failure to exchange or decode a response.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Temporary() bool { return true }

// PageError is a failed page fetch during pagination.
type PageError struct {
	// Page is the zero-based index of the failed page.
	Page int
	// Offset is the number of records yielded before the failure.
	Offset int
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("fetch page %d (offset %d): %v", e.Page, e.Offset, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
