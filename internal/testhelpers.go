package internal

import (
	"time"
)

// CreateTestSession creates a persisted test session with sample data
func CreateTestSession(id string) *ChatSession {
	now := time.Now()
	return &ChatSession{
		LocalID:  "local-" + id,
		ServerID: id,
		Title:    "Test Conversation",
		State:    StateFull,
		Messages: []Message{
			{
				ID:        id + "-m1",
				Role:      RoleUser,
				Content:   "Hello, how are you?",
				Timestamp: now,
			},
			{
				ID:        id + "-m2",
				Role:      RoleAssistant,
				Content:   "I'm doing well, thank you!",
				Timestamp: now,
			},
		},
		CreatedAt: now,
	}
}

// CreateTestSessionWithMessages creates a persisted test session with custom messages
func CreateTestSessionWithMessages(id string, messages []Message) *ChatSession {
	return &ChatSession{
		LocalID:   "local-" + id,
		ServerID:  id,
		Title:     "Test Conversation",
		State:     StateFull,
		Messages:  messages,
		CreatedAt: time.Now(),
	}
}

// CreateTestSummary creates a listing entry as the backend would return it
func CreateTestSummary(id, title, lastMessage string, createdAt time.Time) SessionSummary {
	return SessionSummary{
		ID:              id,
		Title:           title,
		CreatedAt:       createdAt,
		LastMessage:     lastMessage,
		LastMessageRole: RoleAssistant,
	}
}

// CreateTestRemoteMessage creates a backend message record
func CreateTestRemoteMessage(id, sessionID string, role Role, content string) RemoteMessage {
	return RemoteMessage{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
