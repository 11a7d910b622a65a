package internal

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SessionState tracks how much of a session's history is held locally
type SessionState int

const (
	// StateTransient sessions have never been sent to the server
	StateTransient SessionState = iota
	// StatePreview sessions came from a listing and hold at most one synthetic message
	StatePreview
	// StateFull sessions hold their full server history
	StateFull
	// StatePersistedEmpty sessions exist on the server with no messages
	StatePersistedEmpty
)

func (s SessionState) String() string {
	switch s {
	case StateTransient:
		return "transient"
	case StatePreview:
		return "preview"
	case StateFull:
		return "full"
	case StatePersistedEmpty:
		return "persisted-empty"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Attachment describes a file attached to a message
type Attachment struct {
	Name        string `json:"name" yaml:"name"`
	Size        int64  `json:"size" yaml:"size"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	DownloadURL string `json:"download_url,omitempty" yaml:"download_url,omitempty"`
}

// Table is a tabular artifact produced by the agent
type Table struct {
	Title       string          `json:"title,omitempty" yaml:"title,omitempty"`
	Headers     []string        `json:"headers" yaml:"headers"`
	Rows        [][]interface{} `json:"rows" yaml:"rows"`
	Index       []interface{}   `json:"index,omitempty" yaml:"index,omitempty"`
	DownloadURL string          `json:"download_url,omitempty" yaml:"download_url,omitempty"`
}

// Chart is an opaque chart specification produced by the agent
type Chart struct {
	Title string          `json:"title,omitempty" yaml:"title,omitempty"`
	Spec  json.RawMessage `json:"spec,omitempty" yaml:"-"`
}

// Confirmation marks an assistant message that represents a paused plan
type Confirmation struct {
	PlanID   string `json:"plan_id,omitempty" yaml:"plan_id,omitempty"`
	Summary  string `json:"summary,omitempty" yaml:"summary,omitempty"`
	Awaiting bool   `json:"awaiting" yaml:"awaiting"`
}

// Message is one entry in a session timeline
type Message struct {
	ID           string        `json:"id" yaml:"id"`
	Role         Role          `json:"role" yaml:"role"`
	Content      string        `json:"content" yaml:"content"`
	Attachments  []Attachment  `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	Tables       []Table       `json:"tables,omitempty" yaml:"tables,omitempty"`
	Charts       []Chart       `json:"charts,omitempty" yaml:"charts,omitempty"`
	Timestamp    time.Time     `json:"timestamp" yaml:"timestamp"`
	Confirmation *Confirmation `json:"confirmation,omitempty" yaml:"confirmation,omitempty"`

	// Synthetic is set on preview placeholders built from a session listing
	Synthetic bool `json:"-" yaml:"-"`
	// Failed is set on the placeholder appended when a turn fails
	Failed bool `json:"-" yaml:"-"`
}

// AwaitingConfirmation reports whether the message is a plan waiting for approval
func (m Message) AwaitingConfirmation() bool {
	return m.Confirmation != nil && m.Confirmation.Awaiting
}

// Clone returns a deep copy of the message
func (m Message) Clone() Message {
	out := m
	if m.Attachments != nil {
		out.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Tables != nil {
		out.Tables = append([]Table(nil), m.Tables...)
	}
	if m.Charts != nil {
		out.Charts = append([]Chart(nil), m.Charts...)
	}
	if m.Confirmation != nil {
		c := *m.Confirmation
		out.Confirmation = &c
	}
	return out
}

// ChatSession is the local representation of one conversation
type ChatSession struct {
	LocalID   string
	ServerID  string
	Title     string
	Messages  []Message
	State     SessionState
	CreatedAt time.Time
	Loading   bool
}

// Persisted reports whether the server knows about the session
func (s ChatSession) Persisted() bool {
	return s.State != StateTransient
}

// IsPreview reports whether only a listing summary is held locally
func (s ChatSession) IsPreview() bool {
	return s.State == StatePreview
}

// AwaitingMessage returns the message waiting for plan confirmation, if any
func (s ChatSession) AwaitingMessage() (Message, bool) {
	for _, m := range s.Messages {
		if m.AwaitingConfirmation() {
			return m, true
		}
	}
	return Message{}, false
}

// HasLocalMessages reports whether the session holds any non-synthetic message
func (s ChatSession) HasLocalMessages() bool {
	for _, m := range s.Messages {
		if !m.Synthetic {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the session
func (s ChatSession) Clone() ChatSession {
	out := s
	if s.Messages != nil {
		out.Messages = make([]Message, len(s.Messages))
		for i, m := range s.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}

// Validate checks the structural invariants of a session
func (s ChatSession) Validate() error {
	if s.ServerID == "" && s.State != StateTransient {
		return fmt.Errorf("session %s: state %s without server id", s.LocalID, s.State)
	}
	if s.ServerID != "" && s.State == StateTransient {
		return fmt.Errorf("session %s: server id %s on transient session", s.LocalID, s.ServerID)
	}
	synthetic := 0
	for _, m := range s.Messages {
		if m.Synthetic {
			synthetic++
		}
	}
	if synthetic > 0 && s.State != StatePreview {
		return fmt.Errorf("session %s: synthetic message in %s session", s.LocalID, s.State)
	}
	if synthetic > 1 {
		return fmt.Errorf("session %s: preview holds %d synthetic messages", s.LocalID, synthetic)
	}
	awaiting := 0
	for _, m := range s.Messages {
		if m.AwaitingConfirmation() {
			awaiting++
		}
	}
	if awaiting > 1 {
		return fmt.Errorf("session %s: %d messages awaiting confirmation", s.LocalID, awaiting)
	}
	return nil
}

// MessageEdit rewrites one message in place, identified by ID
type MessageEdit struct {
	ID    string
	Apply func(Message) Message
}

// SessionPatch is a partial update applied by the store's merge functions.
// Nil fields are left untouched.
type SessionPatch struct {
	ServerID  *string
	Title     *string
	State     *SessionState
	CreatedAt *time.Time
	Append    []Message
	Edits     []MessageEdit
}

func ptr[T any](v T) *T {
	return &v
}
