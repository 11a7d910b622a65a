package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tw1nflame/chat-langchain/internal"
	"github.com/tw1nflame/chat-langchain/internal/devserver"
	"github.com/tw1nflame/chat-langchain/testutil"
)

const testToken = "cli-token"

// backend is a dev server on an in-memory database plus a config file
// pointing at it
type backend struct {
	url      string
	store    *devserver.Store
	config   string
	cacheDir string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	store, err := devserver.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv := httptest.NewServer(devserver.NewServer(store, devserver.Options{Token: testToken}).Router())
	t.Cleanup(srv.Close)

	dir := testutil.CreateTempDir(t)
	cacheDir := filepath.Join(dir, "cache")
	apiURL := srv.URL + devserver.APIPrefix
	config := testutil.CreateConfigFixture(t, dir, fmt.Sprintf("api_url: %s\ncache_dir: %s\nlog_level: error\n", apiURL, cacheDir))

	return &backend{url: apiURL, store: store, config: config, cacheDir: cacheDir}
}

// args prefixes the global flags that point the CLI at the backend
func (b *backend) args(withToken bool, args ...string) []string {
	global := []string{"--config=" + b.config}
	if withToken {
		global = append(global, "--token="+testToken)
	}
	return append(global, args...)
}

// onlySession returns the single session stored on the backend
func (b *backend) onlySession(t *testing.T) internal.SessionSummary {
	t.Helper()
	sessions, err := b.store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	return sessions[0]
}

// resetFlags restores flag variables between executions of rootCmd
func resetFlags() {
	verbose, configPath, apiURL, apiToken = false, "", "", ""
	limit = 0
	format, outputDir, sessionID, exportAll = "jsonl", "./exports", "", false
	sendSession, sendFiles = "", nil
	confirmApprove, confirmCancel = false, false
	loginEmail, loginPassword = "", ""
	downloadOut = ""
	inspectFormat, inspectSampleRows = "text", 3
	devserverAddr, devserverToken, devserverDB, devserverDelay, devserverEcho = ":8000", "", "devserver.db", 0, false

	// cobra keeps --help and --version set once parsed
	for _, c := range append(rootCmd.Commands(), rootCmd) {
		for _, name := range []string{"help", "version"} {
			if f := c.Flags().Lookup(name); f != nil {
				_ = f.Value.Set("false")
				f.Changed = false
			}
		}
	}
}

// runCLI executes the root command with args and returns everything it printed
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)

	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	err := rootCmd.Execute()
	return out.String(), err
}
