package export

import (
	"time"

	"github.com/tw1nflame/chat-langchain/internal"
)

// Document is the exported shape of a chat session
type Document struct {
	ID        string             `json:"id" yaml:"id"`
	Title     string             `json:"title" yaml:"title"`
	State     string             `json:"state" yaml:"state"`
	CreatedAt time.Time          `json:"created_at" yaml:"created_at"`
	Messages  []internal.Message `json:"messages" yaml:"messages"`
}

// NewDocument builds the exported form of session. Preview placeholders
// and failed-turn replies are left out.
func NewDocument(session *internal.ChatSession) Document {
	doc := Document{
		ID:        sessionID(session),
		Title:     session.Title,
		State:     session.State.String(),
		CreatedAt: session.CreatedAt,
		Messages:  make([]internal.Message, 0, len(session.Messages)),
	}
	for _, m := range session.Messages {
		if m.Synthetic || m.Failed {
			continue
		}
		doc.Messages = append(doc.Messages, m)
	}
	return doc
}

func sessionID(session *internal.ChatSession) string {
	if session.ServerID != "" {
		return session.ServerID
	}
	return session.LocalID
}
