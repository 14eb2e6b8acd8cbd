package domain

import (
	"errors"
	"strings"
)

// DomainError is an error carrying a stable code of the form
// MX-<AREA>-<NNNN>. The number reads like an HTTP status with a trailing
// digit: 4xxx is the caller's fault, 5xxx the server's.
//
// Two DomainErrors match under errors.Is when their codes are equal, so
// callers compare against the package variables below.
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(e.Code)
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	return b.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Code == t.Code
}

// NewDomainError returns an error with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// WithDetails returns a copy of e with details appended to the message.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithCause returns a copy of e wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// ServerSide reports whether the code is in the 5xxx range.
func (e *DomainError) ServerSide() bool {
	i := strings.LastIndexByte(e.Code, '-')
	return i >= 0 && i+1 < len(e.Code) && e.Code[i+1] == '5'
}

// CodeOf returns the code of the first DomainError in err's chain, or "".
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Session errors.
var (
	ErrSessionValidation = NewDomainError("MX-SESS-4001", "session validation failed")
	ErrSessionNotFound   = NewDomainError("MX-SESS-4040", "session not found")
	ErrSessionConflict   = NewDomainError("MX-SESS-4090", "session id conflict")
)

// Protocol errors.
var (
	ErrMalformedRequest   = NewDomainError("MX-PROTO-4000", "malformed request")
	ErrUnsupportedRequest = NewDomainError("MX-PROTO-4001", "unsupported request")
)

// System errors.
var (
	ErrInternalServer = NewDomainError("MX-SYS-5000", "internal server error")
	ErrStorageError   = NewDomainError("MX-SYS-5001", "storage error")

	// ErrServiceUnavailable means the server could not be reached or is
	// shutting down.
	ErrServiceUnavailable = NewDomainError("MX-SYS-5030", "service unavailable")
)
