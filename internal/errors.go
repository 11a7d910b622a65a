package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthUnavailable is returned by write operations when no credential is present
	ErrAuthUnavailable = errors.New("not signed in")

	// ErrTurnInFlight is returned when a send is attempted while the session already has one running
	ErrTurnInFlight = errors.New("a message is already being processed for this session")

	// ErrConfirmationPending is returned when a send is attempted while a plan awaits confirmation
	ErrConfirmationPending = errors.New("a plan is awaiting confirmation; approve or cancel it first")

	// ErrSessionNotFound is returned when a local session id is unknown to the store
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyMessage is returned when a message has neither text nor files
	ErrEmptyMessage = errors.New("message must contain text or files")

	// ErrHistoryUnavailable is returned when a message is sent to a preview whose history could not be loaded
	ErrHistoryUnavailable = errors.New("session history could not be loaded")
)

// AuthUnavailableError wraps ErrAuthUnavailable with the operation that required a credential
type AuthUnavailableError struct {
	Op string // "create_session", "send_message", ...
}

func (e *AuthUnavailableError) Error() string {
	return fmt.Sprintf("auth unavailable [%s]: %v", e.Op, ErrAuthUnavailable)
}

func (e *AuthUnavailableError) Unwrap() error {
	return ErrAuthUnavailable
}

// RemoteError represents a non-success response from the chat backend
type RemoteError struct {
	Op     string
	Status int
	Body   string
	Err    error // transport error, nil when the server answered
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote error [%s]: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote error [%s] status %d: %s", e.Op, e.Status, e.Body)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// SessionGoneError is returned when the server reports that a session was deleted
// while a turn for it was in flight
type SessionGoneError struct {
	SessionID string
	Body      string
}

func (e *SessionGoneError) Error() string {
	return fmt.Sprintf("session gone [%s]: %s", e.SessionID, e.Body)
}

// ConfirmationStateError means a confirmation request cannot be issued because
// local state is missing the identifiers the backend needs
type ConfirmationStateError struct {
	SessionID string
	MessageID string
	Reason    string
}

func (e *ConfirmationStateError) Error() string {
	return fmt.Sprintf("confirmation unavailable [%s/%s]: %s", e.SessionID, e.MessageID, e.Reason)
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IsSessionGone reports whether err is (or wraps) a SessionGoneError
func IsSessionGone(err error) bool {
	var gone *SessionGoneError
	return errors.As(err, &gone)
}

// IsAuthUnavailable reports whether err is (or wraps) ErrAuthUnavailable
func IsAuthUnavailable(err error) bool {
	return errors.Is(err, ErrAuthUnavailable)
}

// StatusOf returns the HTTP status carried by a RemoteError, or 0
func StatusOf(err error) int {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Status
	}
	return 0
}
