package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tw1nflame/chat-langchain/internal"
)

func TestLoginLogout_Token(t *testing.T) {
	b := newBackend(t)
	creds := internal.NewCredentialCache(b.cacheDir)

	_, err := runCLI(t, "", b.args(false, "login")...)
	assert.Error(t, err, "login needs --token or --email")

	_, err = runCLI(t, "", b.args(true, "login")...)
	require.NoError(t, err)
	_, err = os.Stat(creds.GetPath())
	require.NoError(t, err)

	// later commands pick the cached token up without --token
	_, err = runCLI(t, "", b.args(false, "send", "cached")...)
	require.NoError(t, err)
	s := b.onlySession(t)

	out, err := runCLI(t, "", b.args(false, "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "cached")
	assert.Contains(t, out, s.ID)

	_, err = runCLI(t, "", b.args(false, "logout")...)
	require.NoError(t, err)
	_, err = os.Stat(creds.GetPath())
	assert.True(t, os.IsNotExist(err))

	out, err = runCLI(t, "", b.args(false, "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found")
}

func TestLogin_PasswordNeedsSupabase(t *testing.T) {
	b := newBackend(t)

	_, err := runCLI(t, "", b.args(false, "login", "--email", "a@example.com", "--password", "pw")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supabase")
}
