package internal

import (
	"time"
)

// SessionSummary is one entry of the backend session listing
type SessionSummary struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	CreatedAt       time.Time `json:"created_at"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageRole Role      `json:"last_message_role,omitempty"`
}

// RemoteMessage is a message as returned by the backend
type RemoteMessage struct {
	ID                   string       `json:"id"`
	SessionID            string       `json:"session_id"`
	Role                 Role         `json:"role"`
	Content              string       `json:"content"`
	CreatedAt            time.Time    `json:"created_at"`
	Files                []Attachment `json:"files,omitempty"`
	Tables               []Table      `json:"tables,omitempty"`
	Charts               []Chart      `json:"charts,omitempty"`
	AwaitingConfirmation bool         `json:"awaiting_confirmation,omitempty"`
	PlanID               string       `json:"plan_id,omitempty"`
	ConfirmationSummary  string       `json:"confirmation_summary,omitempty"`
}

// SendResult is the backend response to a posted message
type SendResult struct {
	UserMessage      RemoteMessage `json:"user_message"`
	AssistantMessage RemoteMessage `json:"assistant_message"`
}

// ConfirmResult is the backend response to a plan approval or cancellation
type ConfirmResult struct {
	Content string  `json:"content,omitempty"`
	Tables  []Table `json:"tables,omitempty"`
	Charts  []Chart `json:"charts,omitempty"`

	// set on cancellation
	Detail string `json:"detail,omitempty"`
	Result string `json:"result,omitempty"`

	Cancelled bool `json:"-"`
}

// Text returns the content that should replace the confirmed message
func (r ConfirmResult) Text() string {
	if r.Cancelled {
		if r.Result != "" {
			return r.Result
		}
		return r.Detail
	}
	return r.Content
}

// CreateSessionRequest is the body of POST /sessions
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// ConfirmRequest is the body of POST /confirm/{plan_id}
type ConfirmRequest struct {
	SessionID string `json:"session_id"`
	Approve   bool   `json:"approve"`
}

// ErrorBody is the JSON shape of backend errors
type ErrorBody struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

// SessionGoneCode marks a 404 that means the session was deleted mid-turn
const SessionGoneCode = "session_deleted"

// FileUpload is a local file to send with a message
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Attachment describes the upload as it will appear on the optimistic message
func (f FileUpload) Attachment() Attachment {
	return Attachment{
		Name: f.Name,
		Size: int64(len(f.Data)),
		Type: f.ContentType,
	}
}
