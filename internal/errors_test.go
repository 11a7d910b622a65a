package internal

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAuthUnavailableError(t *testing.T) {
	err := &AuthUnavailableError{Op: "send_message"}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "send_message") {
		t.Errorf("AuthUnavailableError.Error() should contain op, got: %q", errorMsg)
	}

	if !errors.Is(err, ErrAuthUnavailable) {
		t.Error("AuthUnavailableError should unwrap to ErrAuthUnavailable")
	}
	if !IsAuthUnavailable(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsAuthUnavailable() should see through wrapping")
	}
}

func TestRemoteError(t *testing.T) {
	tests := []struct {
		name     string
		err      *RemoteError
		contains string
	}{
		{
			name:     "server answered",
			err:      &RemoteError{Op: "list_sessions", Status: 500, Body: "boom"},
			contains: "status 500",
		},
		{
			name:     "transport failure",
			err:      &RemoteError{Op: "list_sessions", Err: errors.New("connection refused")},
			contains: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); !strings.Contains(got, tt.contains) {
				t.Errorf("RemoteError.Error() = %q, want it to contain %q", got, tt.contains)
			}
		})
	}

	inner := errors.New("dial tcp")
	if !errors.Is(&RemoteError{Err: inner}, inner) {
		t.Error("RemoteError.Unwrap() should return transport error")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("x"), 0},
		{"remote", &RemoteError{Status: 404}, 404},
		{"wrapped remote", fmt.Errorf("delete: %w", &RemoteError{Status: 503}), 503},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSessionGone(t *testing.T) {
	gone := &SessionGoneError{SessionID: "s1", Body: "session_deleted"}
	if !IsSessionGone(gone) {
		t.Error("IsSessionGone() = false, want true")
	}
	if !IsSessionGone(fmt.Errorf("send: %w", gone)) {
		t.Error("IsSessionGone() should see through wrapping")
	}
	if IsSessionGone(&RemoteError{Status: 404}) {
		t.Error("IsSessionGone() = true for plain 404, want false")
	}
}

func TestConfirmationStateError(t *testing.T) {
	err := &ConfirmationStateError{SessionID: "s1", MessageID: "m1", Reason: "missing plan id"}
	msg := err.Error()
	for _, want := range []string{"s1", "m1", "missing plan id"} {
		if !strings.Contains(msg, want) {
			t.Errorf("ConfirmationStateError.Error() = %q, want it to contain %q", msg, want)
		}
	}
}

func TestExportError(t *testing.T) {
	originalErr := errors.New("write failed")
	err := &ExportError{
		Format: "jsonl",
		Path:   "/test/output.jsonl",
		Err:    originalErr,
	}

	errorMsg := err.Error()
	if !strings.Contains(errorMsg, "export error") {
		t.Errorf("ExportError.Error() should contain 'export error', got: %q", errorMsg)
	}
	if !strings.Contains(errorMsg, "jsonl") {
		t.Errorf("ExportError.Error() should contain format, got: %q", errorMsg)
	}

	if !errors.Is(err, originalErr) {
		t.Error("ExportError.Unwrap() should return original error")
	}
}
