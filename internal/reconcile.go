package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// identityScope is the lifecycle state of one signed-in identity.
// firstLoad is the onFirstLoadComplete event; it fires at most once per scope.
type identityScope struct {
	userID    string
	firstLoad sync.Once
}

// Engine merges server session data into the store without destroying
// unsaved local state
type Engine struct {
	api   ChatAPI
	store *SessionStore
	norm  *Normalizer
	dedup *Deduplicator

	fetches singleflight.Group
	newID   func() string
	now     func() time.Time

	// discard drops cached credential artifacts on sign-out
	discard func() error

	scopeMu sync.Mutex
	scope   *identityScope
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithCredentialDiscard sets the hook run on sign-out
func WithCredentialDiscard(fn func() error) EngineOption {
	return func(e *Engine) { e.discard = fn }
}

// WithIDGenerator overrides how local session ids are minted
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *Engine) { e.newID = newID }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over api and store
func NewEngine(api ChatAPI, store *SessionStore, opts ...EngineOption) *Engine {
	e := &Engine{
		api:   api,
		store: store,
		norm:  NewNormalizer(),
		dedup: NewDeduplicator(),
		newID: uuid.NewString,
		now:   time.Now,
		scope: &identityScope{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's session store
func (e *Engine) Store() *SessionStore {
	return e.store
}

// Refresh lists server sessions and merges them into the store.
// Nothing held locally is removed. On failure the store is left as it was.
func (e *Engine) Refresh(ctx context.Context) error {
	summaries, err := e.api.ListSessions(ctx)
	if err != nil {
		LogWarn("Failed to refresh sessions: %v", err)
		return err
	}
	added := e.store.MergeListing(summaries, e.newID)
	LogDebug("Merged %d listed session(s), %d new", len(summaries), added)
	return nil
}

// Load runs the startup sequence for the current identity: refresh, then
// the first-load event
func (e *Engine) Load(ctx context.Context) error {
	err := e.Refresh(ctx)
	e.EnsureInitialSession()
	return err
}

// EnsureInitialSession creates one transient session when the store is
// empty. It acts at most once per identity scope.
func (e *Engine) EnsureInitialSession() {
	e.scopeMu.Lock()
	scope := e.scope
	e.scopeMu.Unlock()

	scope.firstLoad.Do(func() {
		if e.store.Len() == 0 {
			s := e.NewChat()
			LogDebug("Created initial session %s", s.LocalID)
			return
		}
		if _, ok := e.store.Active(); !ok {
			e.activateMostRecent()
		}
	})
}

// NewChat creates a transient session and makes it active
func (e *Engine) NewChat() ChatSession {
	id := e.newID()
	s := e.store.Upsert(id, SessionPatch{CreatedAt: ptr(e.now())})
	e.store.SetActive(id)
	return s
}

// Select makes the session active and, for previews, fetches its full
// history once. A failed fetch still activates the session.
func (e *Engine) Select(ctx context.Context, localID string) (ChatSession, error) {
	s, ok := e.store.Get(localID)
	if !ok {
		return ChatSession{}, ErrSessionNotFound
	}
	e.store.SetActive(localID)

	if s.ServerID == "" || !s.IsPreview() {
		return s, nil
	}

	if err := e.promote(ctx, localID, s.ServerID); err != nil {
		LogWarn("Failed to load messages for session %s: %v", s.ServerID, err)
	}
	s, ok = e.store.Get(localID)
	if !ok {
		return ChatSession{}, ErrSessionNotFound
	}
	return s, nil
}

// SelectByServerID selects the session carrying serverID, refreshing the
// listing first if it is not held locally
func (e *Engine) SelectByServerID(ctx context.Context, serverID string) (ChatSession, error) {
	s, ok := e.store.FindByServerID(serverID)
	if !ok {
		if err := e.Refresh(ctx); err != nil {
			return ChatSession{}, err
		}
		s, ok = e.store.FindByServerID(serverID)
		if !ok {
			return ChatSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, serverID)
		}
	}
	return e.Select(ctx, s.LocalID)
}

// LoadHistory promotes the session if it is still a preview, without
// changing the active session
func (e *Engine) LoadHistory(ctx context.Context, localID string) error {
	s, ok := e.store.Get(localID)
	if !ok {
		return ErrSessionNotFound
	}
	if s.ServerID == "" || !s.IsPreview() {
		return nil
	}
	return e.promote(ctx, localID, s.ServerID)
}

// promote replaces a preview's placeholder with the full history.
// Concurrent calls for the same session share one fetch.
func (e *Engine) promote(ctx context.Context, localID, serverID string) error {
	_, err, _ := e.fetches.Do(localID, func() (interface{}, error) {
		remote, err := e.api.ListMessages(ctx, serverID)
		if err != nil {
			return nil, err
		}
		history := e.norm.NormalizeHistory(remote)

		e.store.ReplaceMessagesFunc(localID, func(cur ChatSession) ([]Message, SessionPatch) {
			if !cur.IsPreview() {
				return cur.Messages, SessionPatch{}
			}
			merged := history
			if cur.HasLocalMessages() {
				merged = e.dedup.MergeHistory(history, cur.Messages)
			}
			state := StateFull
			if len(merged) == 0 {
				state = StatePersistedEmpty
			}
			return merged, SessionPatch{State: &state}
		})
		return nil, nil
	})
	return err
}

// PrefetchAll promotes every preview session, at most limit at a time.
// Individual failures are logged and leave the preview in place.
func (e *Engine) PrefetchAll(ctx context.Context, limit int) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, s := range e.store.List() {
		if !s.IsPreview() {
			continue
		}
		g.Go(func() error {
			if err := e.promote(gctx, s.LocalID, s.ServerID); err != nil {
				LogWarn("Failed to prefetch session %s: %v", s.ServerID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Delete removes the session locally at once and then, if the server knows
// it, remotely. A failed remote delete triggers a full refresh and is returned.
func (e *Engine) Delete(ctx context.Context, localID string) error {
	s, ok := e.store.Remove(localID)
	if !ok {
		return ErrSessionNotFound
	}
	if _, ok := e.store.Active(); !ok {
		e.activateMostRecent()
	}
	if !s.Persisted() {
		return nil
	}

	if err := e.api.DeleteSession(ctx, s.ServerID); err != nil {
		LogWarn("Failed to delete session %s: %v", s.ServerID, err)
		_ = e.Refresh(ctx)
		return fmt.Errorf("failed to delete session %q: %w", s.Title, err)
	}
	return nil
}

// HandleAuthEvent reacts to identity changes. Sign-in starts a new scope
// for a different user and loads; sign-out clears everything.
func (e *Engine) HandleAuthEvent(ctx context.Context, ev AuthEvent) error {
	switch ev.Type {
	case AuthSignedIn:
		userID := ""
		if ev.Session != nil {
			userID = ev.Session.User.ID
		}
		e.scopeMu.Lock()
		prev := e.scope.userID
		if prev != userID {
			e.scope = &identityScope{userID: userID}
		}
		e.scopeMu.Unlock()
		if prev != "" && prev != userID {
			// another identity's sessions must not leak across
			e.store.Clear()
		}
		return e.Load(ctx)

	case AuthSignedOut:
		e.store.Clear()
		e.scopeMu.Lock()
		e.scope = &identityScope{}
		e.scopeMu.Unlock()
		if e.discard != nil {
			if err := e.discard(); err != nil {
				LogWarn("Failed to discard cached credentials: %v", err)
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown auth event: %s", ev.Type)
}

func (e *Engine) activateMostRecent() {
	sessions := e.store.List()
	if len(sessions) > 0 {
		e.store.SetActive(sessions[0].LocalID)
	}
}
