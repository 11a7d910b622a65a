package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tw1nflame/chat-langchain/internal"
)

// JSONLExporter exports sessions in JSONL format (one message per line)
type JSONLExporter struct{}

// jsonlLine is one message line, tagged with its session
type jsonlLine struct {
	SessionID string `json:"session_id"`
	internal.Message
}

// Export exports a session to JSONL format
func (e *JSONLExporter) Export(session *internal.ChatSession, w io.Writer) error {
	enc := json.NewEncoder(w)
	doc := NewDocument(session)

	for _, msg := range doc.Messages {
		if err := enc.Encode(jsonlLine{SessionID: doc.ID, Message: msg}); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
