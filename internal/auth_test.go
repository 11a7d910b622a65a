package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tw1nflame/chat-langchain/testutil"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []AuthEventType
}

func (r *eventRecorder) record(ev AuthEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev.Type)
	r.mu.Unlock()
}

func (r *eventRecorder) get() []AuthEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuthEventType(nil), r.events...)
}

func TestTokenProvider(t *testing.T) {
	ctx := context.Background()
	cache := NewCredentialCache(testutil.CreateTempDir(t))

	p := NewTokenProvider("", cache)
	s, err := p.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	rec := &eventRecorder{}
	cancel := p.Subscribe(rec.record)
	defer cancel()

	require.Error(t, p.SignIn("   "))
	require.NoError(t, p.SignIn("tok-123"))

	s, err = p.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "tok-123", s.AccessToken)

	// a later invocation picks up the cached token
	again := NewTokenProvider("", cache)
	s, _ = again.CurrentSession(ctx)
	require.NotNil(t, s)
	assert.Equal(t, "tok-123", s.AccessToken)

	require.NoError(t, p.SignOut(ctx))
	s, _ = p.CurrentSession(ctx)
	assert.Nil(t, s)
	stored, _ := cache.Load()
	assert.Nil(t, stored)

	assert.Equal(t, []AuthEventType{AuthSignedIn, AuthSignedOut}, rec.get())
}

func TestTokenProvider_ExplicitTokenWins(t *testing.T) {
	cache := NewCredentialCache(testutil.CreateTempDir(t))
	require.NoError(t, cache.Save(&AuthSession{AccessToken: "cached"}))

	p := NewTokenProvider("flag", cache)
	s, _ := p.CurrentSession(context.Background())
	require.NotNil(t, s)
	assert.Equal(t, "flag", s.AccessToken)
}

func TestAuthBroadcaster_Unsubscribe(t *testing.T) {
	var b authBroadcaster
	rec := &eventRecorder{}
	cancel := b.Subscribe(rec.record)
	b.emit(AuthEvent{Type: AuthSignedIn})
	cancel()
	b.emit(AuthEvent{Type: AuthSignedOut})

	assert.Equal(t, []AuthEventType{AuthSignedIn}, rec.get())
}

func newSupabaseServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	refreshes := &atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Query().Get("grant_type") {
		case "password":
			if body["password"] != "hunter2" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"expires_in":    3600,
				"user":          map[string]string{"id": "user-1", "email": body["email"]},
			})
		case "refresh_token":
			refreshes.Add(1)
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token":  "access-2",
				"refresh_token": "refresh-2",
				"expires_in":    3600,
				"user":          map[string]string{"id": "user-1"},
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": "user-1", "email": "a@example.com"})
	})
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, refreshes
}

func TestSupabaseProvider_SignInAndUser(t *testing.T) {
	srv, _ := newSupabaseServer(t)
	ctx := context.Background()
	cache := NewCredentialCache(filepath.Join(testutil.CreateTempDir(t), "cache"))
	p := NewSupabaseProvider(srv.URL, "anon", 5*time.Second, cache)

	rec := &eventRecorder{}
	p.Subscribe(rec.record)

	_, err := p.SignInWithPassword(ctx, "a@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusOf(err))

	s, err := p.SignInWithPassword(ctx, "a@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "user-1", s.User.ID)
	assert.False(t, s.ExpiresAt.IsZero())

	user, err := p.User(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", user.Email)

	stored, err := cache.Load()
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "access-1", stored.AccessToken)

	require.NoError(t, p.SignOut(ctx))
	cur, _ := p.CurrentSession(ctx)
	assert.Nil(t, cur)
	stored, _ = cache.Load()
	assert.Nil(t, stored)

	assert.Equal(t, []AuthEventType{AuthSignedIn, AuthSignedOut}, rec.get())
}

func TestSupabaseProvider_RefreshesExpiredSession(t *testing.T) {
	srv, refreshes := newSupabaseServer(t)
	cache := NewCredentialCache(testutil.CreateTempDir(t))
	require.NoError(t, cache.Save(&AuthSession{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         AuthUser{ID: "user-1"},
	}))

	p := NewSupabaseProvider(srv.URL, "anon", 5*time.Second, cache)
	s, err := p.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "access-2", s.AccessToken)
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestSupabaseProvider_ExpiredWithoutRefreshToken(t *testing.T) {
	srv, _ := newSupabaseServer(t)
	cache := NewCredentialCache(testutil.CreateTempDir(t))
	require.NoError(t, cache.Save(&AuthSession{AccessToken: "stale", ExpiresAt: time.Now().Add(-time.Minute)}))

	p := NewSupabaseProvider(srv.URL, "anon", 5*time.Second, cache)
	rec := &eventRecorder{}
	p.Subscribe(rec.record)

	s, err := p.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = p.User(context.Background())
	assert.True(t, IsAuthUnavailable(err))
	assert.Equal(t, []AuthEventType{AuthSignedOut}, rec.get(), "dropped once")

	stored, _ := cache.Load()
	assert.Nil(t, stored)
}

func TestSupabaseProvider_FailedRefreshSignsOut(t *testing.T) {
	srv, _ := newSupabaseServer(t)
	cache := NewCredentialCache(testutil.CreateTempDir(t))
	require.NoError(t, cache.Save(&AuthSession{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         AuthUser{ID: "user-1"},
	}))
	srv.Close()

	api := newFakeAPI()
	api.sessions = []SessionSummary{CreateTestSummary("srv-1", "Mine", "hi", time.Now())}
	store := NewSessionStore()
	engine := NewEngine(api, store)
	store.Upsert("l1", SessionPatch{ServerID: ptr("srv-1"), State: ptr(StateFull)})

	p := NewSupabaseProvider(srv.URL, "anon", time.Second, cache)
	p.Subscribe(func(ev AuthEvent) {
		if err := engine.HandleAuthEvent(context.Background(), ev); err != nil {
			t.Errorf("HandleAuthEvent() error = %v", err)
		}
	})

	s, err := p.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Zero(t, store.Len(), "sign-out clears the sessions")
}
