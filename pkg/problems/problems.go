// pkg/problems/problems.go
package problems

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
)

// Kind classifies a failure for transport mapping. Guards and resolvers
// return errors carrying exactly one Kind; the adapters translate it to an
// HTTP status (RPC surface) or an error envelope (tool surface).
type Kind int

const (
	KindValidation Kind = iota // input rejected before any guard ran
	KindUnauthorized
	KindForbidden // missing scope, or member without an adequate role
	KindNotFound  // no membership record; indistinguishable from "no such org"
	KindInternal  // directory or vendor call failed
)

// Error is the single error type crossing package boundaries in the
// authorization pipeline.
type Error struct {
	Kind   Kind
	Title  string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Title + ": " + e.Detail
	}
	return e.Title
}

func (e *Error) Unwrap() error { return e.Cause }

func Validation(detail string) *Error {
	return &Error{Kind: KindValidation, Title: "invalid_input", Detail: detail}
}

func Unauthorized(detail string) *Error {
	return &Error{Kind: KindUnauthorized, Title: "unauthorized", Detail: detail}
}

func Forbidden(detail string) *Error {
	return &Error{Kind: KindForbidden, Title: "forbidden", Detail: detail}
}

func NotFound(detail string) *Error {
	return &Error{Kind: KindNotFound, Title: "not_found", Detail: detail}
}

func Internal(detail string, cause error) *Error {
	return &Error{Kind: KindInternal, Title: "internal_error", Detail: detail, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// anything a handler did not classify itself.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// Status maps a Kind to its HTTP status code.
func Status(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func slug(k Kind) string {
	switch k {
	case KindValidation:
		return "invalid-input"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not-found"
	default:
		return "internal"
	}
}

// Base returns the base URL for problem type identifiers.
// Order of precedence:
// 1. PROBLEM_BASE_URL (exact base, e.g. https://mydomain.com/problems)
// 2. BASE_PUBLIC_URL + "/problems" (if set)
// 3. https://example.com/problems (fallback)
func Base() string {
	if b := os.Getenv("PROBLEM_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/")
	}
	if b := os.Getenv("BASE_PUBLIC_URL"); b != "" {
		return strings.TrimRight(b, "/") + "/problems"
	}
	return "https://example.com/problems"
}

// Type builds a full problem type URL for the given slug.
func Type(slug string) string { return Base() + "/" + slug }

// Write renders err as an RFC 7807 application/problem+json response.
// Internal causes are logged by callers, never echoed to the wire.
func Write(w http.ResponseWriter, err error) {
	k := KindOf(err)
	title := "internal_error"
	detail := ""
	var pe *Error
	if errors.As(err, &pe) {
		title = pe.Title
		detail = pe.Detail
	}
	st := Status(k)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(st)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   Type(slug(k)),
		"title":  title,
		"status": st,
		"detail": detail,
	})
}
