package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tw1nflame/chat-langchain/testutil"
)

// backendStub serves an empty listing and counts requests per path
type backendStub struct {
	mu    sync.Mutex
	calls map[string]int
}

func (b *backendStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls[r.Method+" "+r.URL.Path]++
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, []SessionSummary{})
}

func (b *backendStub) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

func newTestApp(t *testing.T, token string) (*App, *backendStub) {
	t.Helper()
	stub := &backendStub{calls: map[string]int{}}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.APIURL = srv.URL
	cfg.Token = token
	cfg.TimeoutSeconds = 5
	cfg.CacheDir = testutil.CreateTempDir(t)

	app := NewApp(cfg, func(context.Context, string) error { return nil })
	t.Cleanup(app.Close)
	return app, stub
}

func TestApp_StartSignedIn(t *testing.T) {
	app, stub := newTestApp(t, "secret")

	require.NoError(t, app.Start(context.Background()))
	assert.Equal(t, 1, stub.count("GET /sessions"))

	active, ok := app.Store.Active()
	require.True(t, ok)
	assert.Equal(t, StateTransient, active.State)
}

func TestApp_StartSignedOut(t *testing.T) {
	app, stub := newTestApp(t, "")

	require.NoError(t, app.Start(context.Background()))
	assert.Equal(t, 0, stub.count("GET /sessions"), "no credential means no listing request")
	assert.Equal(t, 1, app.Store.Len())
}

func TestApp_SignOutClearsStore(t *testing.T) {
	app, _ := newTestApp(t, "")
	ctx := context.Background()
	require.NoError(t, app.Start(ctx))

	provider, ok := app.Auth.(*TokenProvider)
	require.True(t, ok)
	require.NoError(t, provider.SignIn("fresh-token"))

	stored, err := app.Credentials.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)

	require.NoError(t, app.SignOut(ctx))
	assert.Equal(t, 0, app.Store.Len())

	stored, err = app.Credentials.Load()
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestNewApp_SelectsSupabase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheDir = testutil.CreateTempDir(t)
	cfg.SupabaseURL = "https://proj.supabase.co"
	cfg.SupabaseAnonKey = "anon"

	app := NewApp(cfg, nil)
	defer app.Close()
	_, ok := app.Auth.(*SupabaseProvider)
	assert.True(t, ok)

	cfg.Token = "explicit"
	app = NewApp(cfg, nil)
	_, ok = app.Auth.(*TokenProvider)
	assert.True(t, ok, "an explicit token wins over Supabase")
}
