package internal

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TurnErrorText is shown as the assistant reply when a turn fails
const TurnErrorText = "Sorry, something went wrong while processing your message. Please try again."

// Normalizer converts backend records into local messages
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

// NewNormalizer creates a new Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// NormalizeMessage converts a RemoteMessage to a Message
func (n *Normalizer) NormalizeMessage(rm RemoteMessage) Message {
	msg := Message{
		ID:          rm.ID,
		Role:        n.normalizeRole(rm.Role),
		Content:     rm.Content,
		Attachments: rm.Files,
		Tables:      rm.Tables,
		Charts:      rm.Charts,
		Timestamp:   rm.CreatedAt,
	}
	if msg.ID == "" {
		msg.ID = n.newID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = n.now()
	}
	if rm.AwaitingConfirmation || rm.PlanID != "" {
		msg.Confirmation = &Confirmation{
			PlanID:   rm.PlanID,
			Summary:  rm.ConfirmationSummary,
			Awaiting: rm.AwaitingConfirmation,
		}
	}
	return msg.Clone()
}

// NormalizeHistory converts a full server history, keeping server order and
// at most one awaiting confirmation
func (n *Normalizer) NormalizeHistory(remote []RemoteMessage) []Message {
	messages := make([]Message, 0, len(remote))
	for _, rm := range remote {
		messages = append(messages, n.NormalizeMessage(rm))
	}
	return singleAwaiting(messages)
}

// UserMessage builds the optimistic message for a user turn
func (n *Normalizer) UserMessage(content string, files []FileUpload) Message {
	msg := Message{
		ID:        n.newID(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: n.now(),
	}
	for _, f := range files {
		msg.Attachments = append(msg.Attachments, f.Attachment())
	}
	return msg
}

// ErrorMessage builds the assistant placeholder appended when a turn fails
func (n *Normalizer) ErrorMessage() Message {
	return Message{
		ID:        n.newID(),
		Role:      RoleAssistant,
		Content:   TurnErrorText,
		Timestamp: n.now(),
		Failed:    true,
	}
}

// normalizeRole maps unknown roles to assistant
func (n *Normalizer) normalizeRole(role Role) Role {
	switch Role(strings.ToLower(string(role))) {
	case RoleUser:
		return RoleUser
	default:
		return RoleAssistant
	}
}

// PreviewMessage builds the synthetic placeholder for a listed session.
// Its ID is derived from the server id so repeated listings merge to the same entry.
func PreviewMessage(s SessionSummary) (Message, bool) {
	if strings.TrimSpace(s.LastMessage) == "" {
		return Message{}, false
	}
	role := RoleAssistant
	if s.LastMessageRole == RoleUser {
		role = RoleUser
	}
	return Message{
		ID:        "preview-" + s.ID,
		Role:      role,
		Content:   s.LastMessage,
		Timestamp: s.CreatedAt,
		Synthetic: true,
	}, true
}
