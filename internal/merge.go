package internal

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultTitle   = "New chat"
	maxTitleLength = 50
)

// MergeSession applies patch to cur and returns the next session value.
// It never mutates cur.
//
// ServerID is set at most once; later patches carrying a different id are
// ignored. A patch that sets ServerID on a transient session promotes it to
// StateFull unless it also carries a State. State changes that would break
// the ServerID/State pairing are ignored. Appended messages whose ID is
// already present are skipped, so replaying a patch is harmless.
func MergeSession(cur ChatSession, patch SessionPatch) ChatSession {
	next := cur.Clone()

	if patch.ServerID != nil && *patch.ServerID != "" && next.ServerID == "" {
		next.ServerID = *patch.ServerID
		if patch.State == nil {
			next.State = StateFull
		}
	}

	if patch.State != nil {
		next.State = mergeState(next.ServerID, next.State, *patch.State)
	}

	if patch.CreatedAt != nil && !patch.CreatedAt.IsZero() {
		next.CreatedAt = *patch.CreatedAt
	}

	if len(patch.Append) > 0 {
		next.Messages = appendMessages(next.Messages, patch.Append)
	}

	for _, edit := range patch.Edits {
		next.Messages = applyEdit(next.Messages, edit)
	}

	if next.State != StatePreview {
		next.Messages = dropSynthetic(next.Messages)
	}
	if next.State == StatePersistedEmpty && len(next.Messages) > 0 {
		next.State = StateFull
	}
	next.Messages = singleAwaiting(next.Messages)

	if next.ServerID == "" {
		next.Title = DeriveTitle(next.Messages)
	} else if patch.Title != nil && *patch.Title != "" {
		next.Title = *patch.Title
	} else if next.Title == "" {
		next.Title = defaultTitle
	}

	return next
}

// ReplaceSessionMessages swaps the whole message array, then applies patch
func ReplaceSessionMessages(cur ChatSession, messages []Message, patch SessionPatch) ChatSession {
	base := cur.Clone()
	base.Messages = make([]Message, 0, len(messages))
	for _, m := range messages {
		base.Messages = append(base.Messages, m.Clone())
	}
	return MergeSession(base, patch)
}

func mergeState(serverID string, cur, want SessionState) SessionState {
	switch {
	case serverID == "":
		return StateTransient
	case want == StateTransient:
		if cur == StateTransient {
			return StateFull
		}
		return cur
	case want == StatePreview && (cur == StateFull || cur == StatePersistedEmpty):
		// history already held; never demote
		return cur
	}
	return want
}

func appendMessages(existing []Message, add []Message) []Message {
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[m.ID] = true
	}
	out := existing
	for _, m := range add {
		if m.ID != "" && seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m.Clone())
	}
	return out
}

func applyEdit(messages []Message, edit MessageEdit) []Message {
	if edit.Apply == nil {
		return messages
	}
	for i, m := range messages {
		if m.ID != edit.ID {
			continue
		}
		updated := edit.Apply(m.Clone())
		// identity and position are fixed
		updated.ID = m.ID
		updated.Role = m.Role
		messages[i] = updated
		return messages
	}
	return messages
}

func dropSynthetic(messages []Message) []Message {
	out := messages[:0]
	for _, m := range messages {
		if !m.Synthetic {
			out = append(out, m)
		}
	}
	return out
}

// singleAwaiting keeps only the most recent awaiting confirmation
func singleAwaiting(messages []Message) []Message {
	found := false
	for i := len(messages) - 1; i >= 0; i-- {
		if !messages[i].AwaitingConfirmation() {
			continue
		}
		if found {
			c := *messages[i].Confirmation
			c.Awaiting = false
			messages[i].Confirmation = &c
			continue
		}
		found = true
	}
	return messages
}

// DeriveTitle builds a session title from its first user message
func DeriveTitle(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser || m.Synthetic {
			continue
		}
		text := strings.Join(strings.Fields(firstLine(m.Content)), " ")
		if text == "" && len(m.Attachments) > 0 {
			text = m.Attachments[0].Name
		}
		if text == "" {
			continue
		}
		return truncateTitle(text)
	}
	return defaultTitle
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleLength {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxTitleLength-3])) + "..."
}

// SummaryPatch converts a listing entry into the patch merged for that session.
// Sessions already held locally keep their messages and state; only server
// metadata is refreshed.
func SummaryPatch(existing *ChatSession, s SessionSummary) SessionPatch {
	patch := SessionPatch{
		ServerID:  ptr(s.ID),
		Title:     ptr(s.Title),
		CreatedAt: ptr(s.CreatedAt),
	}
	if existing != nil {
		return patch
	}
	patch.State = ptr(StatePreview)
	if preview, ok := PreviewMessage(s); ok {
		patch.Append = []Message{preview}
	}
	return patch
}
