package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Format(t *testing.T) {
	base := NewDomainError("MX-TEST-4000", "bad thing")

	if got, want := base.Error(), "[MX-TEST-4000] bad thing"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got, want := base.WithDetails("id 7").Error(), "[MX-TEST-4000] bad thing: id 7"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDomainError_CopiesDoNotAlias(t *testing.T) {
	cause := errors.New("disk full")
	derived := ErrStorageError.WithDetails("create").WithCause(cause)

	if ErrStorageError.Details != "" || ErrStorageError.Cause != nil {
		t.Fatal("package error was modified")
	}
	if derived.Details != "create" || !errors.Is(derived, cause) {
		t.Errorf("derived = %+v", derived)
	}
}

func TestDomainError_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("lookup: %w", ErrSessionNotFound.WithDetails("id 3"))

	if !errors.Is(err, ErrSessionNotFound) {
		t.Error("wrapped error should match its code")
	}
	if errors.Is(err, ErrSessionConflict) {
		t.Error("different code must not match")
	}
	if errors.Is(ErrSessionNotFound, errors.New("session not found")) {
		t.Error("plain error must not match")
	}
}

func TestDomainError_ServerSide(t *testing.T) {
	tests := []struct {
		err  *DomainError
		want bool
	}{
		{ErrSessionNotFound, false},
		{ErrMalformedRequest, false},
		{ErrInternalServer, true},
		{ErrServiceUnavailable, true},
		{NewDomainError("bogus", "x"), false},
		{NewDomainError("MX-", "x"), false},
	}
	for _, tt := range tests {
		if got := tt.err.ServerSide(); got != tt.want {
			t.Errorf("%s ServerSide() = %v, want %v", tt.err.Code, got, tt.want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", ErrStorageError)); got != "MX-SYS-5001" {
		t.Errorf("CodeOf(wrapped) = %q", got)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %q", got)
	}
}

func TestCodesUnique(t *testing.T) {
	all := []*DomainError{
		ErrSessionValidation, ErrSessionNotFound, ErrSessionConflict,
		ErrMalformedRequest, ErrUnsupportedRequest,
		ErrInternalServer, ErrStorageError, ErrServiceUnavailable,
	}
	seen := map[string]bool{}
	for _, e := range all {
		if seen[e.Code] {
			t.Errorf("duplicate code %s", e.Code)
		}
		seen[e.Code] = true
		if e.Message == "" {
			t.Errorf("%s has no message", e.Code)
		}
	}
}
