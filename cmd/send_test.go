package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tw1nflame/chat-langchain/internal"
	"github.com/tw1nflame/chat-langchain/internal/devserver"
	"github.com/tw1nflame/chat-langchain/testutil"
)

func TestSendCommand_NewChat(t *testing.T) {
	b := newBackend(t)

	out, err := runCLI(t, "", b.args(true, "send", "Hello", "there")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Echo: Hello there")

	s := b.onlySession(t)
	assert.Equal(t, "Hello there", s.Title)
	assert.Contains(t, out, "Session: "+s.ID)

	// a second send to the same session appends to it
	out, err = runCLI(t, "", b.args(true, "send", "--session", s.ID, "again")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Echo: again")
	assert.NotContains(t, out, "Echo: Hello there")

	history, err := b.store.ListMessages(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestSendCommand_Validation(t *testing.T) {
	b := newBackend(t)

	_, err := runCLI(t, "", b.args(true, "send")...)
	assert.ErrorIs(t, err, internal.ErrEmptyMessage)

	_, err = runCLI(t, "", b.args(true, "send", "--file", "/nonexistent/file.csv")...)
	assert.Error(t, err)

	_, err = runCLI(t, "", b.args(true, "send", "--session", "missing", "hi")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")
}

func TestSendCommand_NotSignedIn(t *testing.T) {
	b := newBackend(t)

	out, err := runCLI(t, "", b.args(false, "send", "Hello")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Sorry, something went wrong")
}

func TestSendCommand_Attachment(t *testing.T) {
	b := newBackend(t)
	dir := testutil.CreateTempDir(t)
	path := testutil.CreateUploadFixture(t, dir, "report.csv", []byte("region,total\nnorth,10\n"))

	out, err := runCLI(t, "", b.args(true, "send", "--file", path)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Echo: [attached: report.csv]")

	s := b.onlySession(t)
	assert.Equal(t, "report.csv", s.Title)
	history, err := b.store.ListMessages(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, history[0].Files, 1)
	attachment := history[0].Files[0]
	assert.Equal(t, "report.csv", attachment.Name)
	assert.NotEmpty(t, attachment.Type)

	// the attachment can be fetched back through the CLI
	target := filepath.Join(dir, "copy.csv")
	_, err = runCLI(t, "", b.args(true, "download", attachment.DownloadURL, "-o", target)...)
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "region,total\nnorth,10\n", string(data))
}

func TestConfirmCommand(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	out, err := runCLI(t, "", b.args(true, "send", devserver.PlanPrefix+"load; chart")...)
	require.NoError(t, err)
	assert.Contains(t, out, "I will run the following plan")
	assert.Contains(t, out, "Awaiting confirmation")

	s := b.onlySession(t)
	history, err := b.store.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	pending := history[1]
	require.True(t, pending.AwaitingConfirmation)

	// sending while the plan is pending is refused
	_, err = runCLI(t, "", b.args(true, "send", "--session", s.ID, "hurry up")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "awaiting confirmation")

	_, err = runCLI(t, "", b.args(true, "confirm", s.ID, pending.ID)...)
	assert.Error(t, err, "one of --approve or --cancel is required")
	_, err = runCLI(t, "", b.args(true, "confirm", s.ID, pending.ID, "--approve", "--cancel")...)
	assert.Error(t, err)

	out, err = runCLI(t, "", b.args(true, "confirm", s.ID, pending.ID[:8], "--approve")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Plan completed.")
	assert.Contains(t, out, "Plan steps")
	assert.NotContains(t, out, "Awaiting confirmation")

	history, err = b.store.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, history, 2, "approval edits the plan message in place")
	assert.False(t, history[1].AwaitingConfirmation)

	// the plan is no longer pending
	_, err = runCLI(t, "", b.args(true, "confirm", s.ID, pending.ID, "--cancel")...)
	var stateErr *internal.ConfirmationStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestConfirmCommand_Cancel(t *testing.T) {
	b := newBackend(t)

	_, err := runCLI(t, "", b.args(true, "send", devserver.PlanPrefix+"drop tables")...)
	require.NoError(t, err)
	s := b.onlySession(t)
	history, err := b.store.ListMessages(context.Background(), s.ID)
	require.NoError(t, err)

	out, err := runCLI(t, "", b.args(true, "confirm", s.ID, history[1].ID, "--cancel")...)
	require.NoError(t, err)
	assert.Contains(t, out, devserver.CancelledResult)
}

func TestDeleteCommand(t *testing.T) {
	b := newBackend(t)
	created, err := b.store.CreateSession(context.Background(), "Scratch")
	require.NoError(t, err)

	_, err = runCLI(t, "", b.args(true, "delete", "missing")...)
	assert.Error(t, err)

	_, err = runCLI(t, "", b.args(true, "rm", created.ID)...)
	require.NoError(t, err)

	exists, err := b.store.SessionExists(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, exists)
}
