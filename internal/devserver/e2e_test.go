package devserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tw1nflame/chat-langchain/internal"
)

type clientFixture struct {
	store  *internal.SessionStore
	engine *internal.Engine
	turns  *internal.TurnController
	client *internal.APIClient
}

func newClientFixture(t *testing.T, baseURL string) clientFixture {
	t.Helper()
	client := internal.NewAPIClient(baseURL+APIPrefix, internal.NewTokenProvider(testToken, nil), 5*time.Second)
	store := internal.NewSessionStore()
	engine := internal.NewEngine(client, store)
	return clientFixture{
		store:  store,
		engine: engine,
		turns:  internal.NewTurnController(client, store, internal.WithHistoryLoader(engine.LoadHistory)),
		client: client,
	}
}

func TestEndToEnd_HelloTurn(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	fx := newClientFixture(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, fx.engine.Load(ctx))
	active, ok := fx.store.Active()
	require.True(t, ok)
	require.Equal(t, internal.StateTransient, active.State)

	s, err := fx.turns.Send(ctx, active.LocalID, "Hello", nil)
	require.NoError(t, err)
	assert.Equal(t, internal.StateFull, s.State)
	assert.NotEmpty(t, s.ServerID)
	assert.Equal(t, "Hello", s.Title)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "Hello", s.Messages[0].Content)
	assert.Equal(t, "Echo: Hello", s.Messages[1].Content)
	assert.NoError(t, s.Validate())

	// a second client sees the session as a preview and promotes it once
	other := newClientFixture(t, srv.URL)
	require.NoError(t, other.engine.Refresh(ctx))
	preview, ok := other.store.FindByServerID(s.ServerID)
	require.True(t, ok)
	assert.Equal(t, internal.StatePreview, preview.State)
	require.Len(t, preview.Messages, 1)
	assert.Equal(t, "Echo: Hello", preview.Messages[0].Content)

	full, err := other.engine.SelectByServerID(ctx, s.ServerID)
	require.NoError(t, err)
	assert.Equal(t, internal.StateFull, full.State)
	require.Len(t, full.Messages, 2)
	assert.Equal(t, s.Messages[1].ID, full.Messages[1].ID, "the reply keeps its server id")
}

func TestEndToEnd_PlanApprovedInPlace(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	fx := newClientFixture(t, srv.URL)
	ctx := context.Background()

	s := fx.engine.NewChat()
	s, err := fx.turns.Send(ctx, s.LocalID, PlanPrefix+"load; chart", nil)
	require.NoError(t, err)

	pending, ok := s.AwaitingMessage()
	require.True(t, ok)

	_, err = fx.turns.Send(ctx, s.LocalID, "are you there?", nil)
	assert.ErrorIs(t, err, internal.ErrConfirmationPending)

	s, err = fx.turns.ResolveConfirmation(ctx, s.LocalID, pending.ID, true)
	require.NoError(t, err)
	require.Len(t, s.Messages, 2, "approval never appends")
	assert.Equal(t, pending.ID, s.Messages[1].ID)
	assert.Contains(t, s.Messages[1].Content, "Plan completed.")
	assert.False(t, s.Messages[1].AwaitingConfirmation())
	require.Len(t, s.Messages[1].Tables, 1)

	_, err = fx.turns.ResolveConfirmation(ctx, s.LocalID, pending.ID, true)
	var stateErr *internal.ConfirmationStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestEndToEnd_PlanCancelled(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	fx := newClientFixture(t, srv.URL)
	ctx := context.Background()

	s := fx.engine.NewChat()
	s, err := fx.turns.Send(ctx, s.LocalID, PlanPrefix+"drop everything", nil)
	require.NoError(t, err)
	pending, ok := s.AwaitingMessage()
	require.True(t, ok)

	s, err = fx.turns.ResolveConfirmation(ctx, s.LocalID, pending.ID, false)
	require.NoError(t, err)
	assert.Equal(t, CancelledResult, s.Messages[1].Content)

	// the server history agrees with the in-place edit
	history, err := fx.client.ListMessages(ctx, s.ServerID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, CancelledResult, history[1].Content)
	assert.False(t, history[1].AwaitingConfirmation)
}

func TestEndToEnd_SessionGoneIsSilent(t *testing.T) {
	srv, store := newTestServer(t, Options{ReplyDelay: 200 * time.Millisecond})
	fx := newClientFixture(t, srv.URL)
	ctx := context.Background()

	created, err := store.CreateSession(ctx, "Doomed")
	require.NoError(t, err)
	require.NoError(t, fx.engine.Refresh(ctx))
	local, ok := fx.store.FindByServerID(created.ID)
	require.True(t, ok)
	_, err = fx.engine.Select(ctx, local.LocalID)
	require.NoError(t, err)

	// delete once the user message is stored, while the reply is delayed
	go func() {
		for i := 0; i < 100; i++ {
			if messages, err := store.ListMessages(context.Background(), created.ID); err == nil && len(messages) > 0 {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
		_ = store.DeleteSession(context.Background(), created.ID)
	}()

	s, err := fx.turns.Send(ctx, local.LocalID, "anyone?", nil)
	require.NoError(t, err)
	require.Len(t, s.Messages, 1, "no reply and no error message after a mid-turn deletion")
	assert.Equal(t, "anyone?", s.Messages[0].Content)
}

func TestEndToEnd_DeleteAndAttachments(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	fx := newClientFixture(t, srv.URL)
	ctx := context.Background()

	s := fx.engine.NewChat()
	s, err := fx.turns.Send(ctx, s.LocalID, "", []internal.FileUpload{
		{Name: "report.csv", ContentType: "text/csv", Data: []byte("a\n1\n")},
	})
	require.NoError(t, err)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "report.csv", s.Title)
	assert.Equal(t, "Echo: [attached: report.csv]", s.Messages[1].Content)

	require.NoError(t, fx.engine.Delete(ctx, s.LocalID))
	sessions, err := fx.client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
