package internal

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"
)

// TurnController drives one user message to assistant response exchange
type TurnController struct {
	api   ChatAPI
	store *SessionStore
	norm  *Normalizer

	creates singleflight.Group

	// loadHistory promotes a preview before a turn is sent to it
	loadHistory func(ctx context.Context, localID string) error
}

// TurnOption configures a TurnController
type TurnOption func(*TurnController)

// WithHistoryLoader sets how a preview's full history is loaded before a
// turn; usually Engine.LoadHistory
func WithHistoryLoader(fn func(ctx context.Context, localID string) error) TurnOption {
	return func(tc *TurnController) { tc.loadHistory = fn }
}

// NewTurnController creates a controller over api and store
func NewTurnController(api ChatAPI, store *SessionStore, opts ...TurnOption) *TurnController {
	tc := &TurnController{
		api:   api,
		store: store,
		norm:  NewNormalizer(),
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// endTurn clears the in-flight flag and swaps out for the cleared snapshot
func (tc *TurnController) endTurn(localID string, out *ChatSession) {
	cleared, ok := tc.store.EndTurn(localID)
	if ok && out.LocalID == localID {
		*out = cleared
	}
}

// Send runs one turn on the session and returns its final state.
//
// The user message is appended before any network call. A transient
// session is created on the server first. A failed turn appends the fixed
// error reply instead of returning an error; a session that disappeared
// server-side aborts silently. A preview is promoted first so a plan
// awaiting confirmation in its history blocks the turn.
func (tc *TurnController) Send(ctx context.Context, localID, content string, files []FileUpload) (out ChatSession, err error) {
	if strings.TrimSpace(content) == "" && len(files) == 0 {
		return ChatSession{}, ErrEmptyMessage
	}
	if _, ok := tc.store.Get(localID); !ok {
		return ChatSession{}, ErrSessionNotFound
	}
	if !tc.store.BeginTurn(localID) {
		return ChatSession{}, ErrTurnInFlight
	}
	defer tc.endTurn(localID, &out)

	s, ok := tc.store.Get(localID)
	if !ok {
		return ChatSession{}, ErrSessionNotFound
	}
	if s.IsPreview() {
		if s, err = tc.promote(ctx, localID); err != nil {
			return s, err
		}
	}
	if _, awaiting := s.AwaitingMessage(); awaiting {
		return s, ErrConfirmationPending
	}

	userMsg := tc.norm.UserMessage(content, files)
	s, ok = tc.store.Update(localID, SessionPatch{Append: []Message{userMsg}})
	if !ok {
		return ChatSession{}, ErrSessionNotFound
	}

	serverID := s.ServerID
	if serverID == "" {
		id, err := tc.ensureServerSession(ctx, localID, s.Title)
		if err != nil {
			if IsSessionGone(err) {
				return tc.snapshot(localID), nil
			}
			return tc.fail(localID, "create session", err), nil
		}
		serverID = id
	}

	result, err := tc.api.SendMessage(ctx, serverID, content, files)
	if err != nil {
		if IsSessionGone(err) {
			LogInfo("Session %s was removed while a message was in flight", serverID)
			return tc.snapshot(localID), nil
		}
		return tc.fail(localID, "send message", err), nil
	}

	reply := tc.norm.NormalizeMessage(result.AssistantMessage)
	reply.Role = RoleAssistant
	s, ok = tc.store.Update(localID, SessionPatch{Append: []Message{reply}})
	if !ok {
		LogDebug("Session %s removed before reply was applied", localID)
		return ChatSession{}, nil
	}
	return s, nil
}

// ensureServerSession creates the server session for a transient one and
// records its id on the freshly appended local state. Concurrent callers
// for the same session share one create.
func (tc *TurnController) ensureServerSession(ctx context.Context, localID, title string) (string, error) {
	v, err, _ := tc.creates.Do(localID, func() (interface{}, error) {
		if cur, ok := tc.store.Get(localID); ok && cur.ServerID != "" {
			return cur.ServerID, nil
		}

		created, err := tc.api.CreateSession(ctx, title)
		if err != nil {
			return "", err
		}

		patch := SessionPatch{ServerID: ptr(created.ID), State: ptr(StateFull)}
		if created.Title != "" {
			patch.Title = ptr(created.Title)
		}
		if _, ok := tc.store.Update(localID, patch); !ok {
			// deleted locally while creating; don't leave an orphan behind
			if err := tc.api.DeleteSession(ctx, created.ID); err != nil {
				LogWarn("Failed to delete orphaned session %s: %v", created.ID, err)
			}
			return "", &SessionGoneError{SessionID: created.ID, Body: "removed locally during creation"}
		}
		LogDebug("Session %s persisted as %s", localID, created.ID)
		return created.ID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// promote loads a preview's history and returns the resulting session.
// A session still in preview afterwards cannot take a turn.
func (tc *TurnController) promote(ctx context.Context, localID string) (ChatSession, error) {
	var loadErr error
	if tc.loadHistory != nil {
		loadErr = tc.loadHistory(ctx, localID)
	}
	s, ok := tc.store.Get(localID)
	if !ok {
		return ChatSession{}, ErrSessionNotFound
	}
	if !s.IsPreview() {
		return s, nil
	}
	if loadErr != nil {
		return s, fmt.Errorf("%w: %v", ErrHistoryUnavailable, loadErr)
	}
	return s, ErrHistoryUnavailable
}

func (tc *TurnController) fail(localID, op string, err error) ChatSession {
	LogError("Failed to %s: %v", op, err)
	s, ok := tc.store.Update(localID, SessionPatch{Append: []Message{tc.norm.ErrorMessage()}})
	if !ok {
		return ChatSession{}
	}
	return s
}

func (tc *TurnController) snapshot(localID string) ChatSession {
	s, _ := tc.store.Get(localID)
	return s
}

// ResolveConfirmation approves or cancels the plan carried by messageID and
// rewrites that message in place
func (tc *TurnController) ResolveConfirmation(ctx context.Context, localID, messageID string, approve bool) (out ChatSession, err error) {
	s, ok := tc.store.Get(localID)
	if !ok {
		return ChatSession{}, ErrSessionNotFound
	}
	if s.ServerID == "" {
		return s, &ConfirmationStateError{
			SessionID: localID,
			MessageID: messageID,
			Reason:    "session has not been saved on the server",
		}
	}

	var target *Message
	for i := range s.Messages {
		if s.Messages[i].ID == messageID {
			target = &s.Messages[i]
			break
		}
	}
	if target == nil || !target.AwaitingConfirmation() {
		return s, &ConfirmationStateError{
			SessionID: s.ServerID,
			MessageID: messageID,
			Reason:    "message is not awaiting confirmation; reload the session",
		}
	}
	planID := target.Confirmation.PlanID
	if planID == "" {
		return s, &ConfirmationStateError{
			SessionID: s.ServerID,
			MessageID: messageID,
			Reason:    "plan id is missing; reload the session",
		}
	}

	if !tc.store.BeginTurn(localID) {
		return s, ErrTurnInFlight
	}
	defer tc.endTurn(localID, &out)

	result, err := tc.api.ResolveConfirmation(ctx, s.ServerID, planID, approve)
	if err != nil {
		verb := "approve"
		if !approve {
			verb = "cancel"
		}
		return tc.snapshot(localID), fmt.Errorf("failed to %s plan: %w", verb, err)
	}

	edit := MessageEdit{ID: messageID, Apply: func(m Message) Message {
		if approve {
			m.Content = result.Text()
			m.Tables = result.Tables
			m.Charts = result.Charts
		} else {
			m.Content = result.Text()
		}
		m.Confirmation = nil
		return m
	}}
	s, ok = tc.store.Update(localID, SessionPatch{Edits: []MessageEdit{edit}})
	if !ok {
		return ChatSession{}, ErrSessionNotFound
	}
	return s, nil
}
