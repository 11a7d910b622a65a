package internal

import (
	"context"
	"sync"
)

// Authenticator is an AuthProvider that can also sign out
type Authenticator interface {
	AuthProvider
	SignOut(ctx context.Context) error
}

// App wires the auth provider, API client, store, engine and turn
// controller for one page session
type App struct {
	Config      Config
	Auth        Authenticator
	Client      *APIClient
	Store       *SessionStore
	Engine      *Engine
	Turns       *TurnController
	Downloader  *Downloader
	Credentials *CredentialCache

	mu          sync.Mutex
	ctx         context.Context
	unsubscribe func()
}

// NewApp builds the component graph from cfg. open is the fallback for
// failed downloads; nil uses the platform browser.
func NewApp(cfg Config, open Opener) *App {
	creds := NewCredentialCache(cfg.CacheDir)

	var auth Authenticator
	if cfg.UseSupabase() && cfg.Token == "" {
		auth = NewSupabaseProvider(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.Timeout(), creds)
	} else {
		auth = NewTokenProvider(cfg.Token, creds)
	}

	client := NewAPIClient(cfg.APIURL, auth, cfg.Timeout())
	store := NewSessionStore()
	engine := NewEngine(client, store, WithCredentialDiscard(creds.Clear))

	return &App{
		Config:      cfg,
		Auth:        auth,
		Client:      client,
		Store:       store,
		Engine:      engine,
		Turns:       NewTurnController(client, store, WithHistoryLoader(engine.LoadHistory)),
		Downloader:  NewDownloader(cfg.APIURL, auth, cfg.Timeout(), open),
		Credentials: creds,
	}
}

// Start subscribes the engine to identity changes and runs the initial load
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	if a.unsubscribe == nil {
		a.unsubscribe = a.Auth.Subscribe(a.onAuthEvent)
	}
	a.mu.Unlock()

	s, err := a.Auth.CurrentSession(ctx)
	if err != nil {
		return err
	}
	if s != nil {
		return a.Engine.HandleAuthEvent(ctx, AuthEvent{Type: AuthSignedIn, Session: s})
	}
	LogDebug("No credential, starting signed out")
	return a.Engine.Load(ctx)
}

func (a *App) onAuthEvent(ev AuthEvent) {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.Engine.HandleAuthEvent(ctx, ev); err != nil {
		LogWarn("Handling %s failed: %v", ev.Type, err)
	}
}

// SignOut signs out through the provider; the engine clears the store
// when the event arrives
func (a *App) SignOut(ctx context.Context) error {
	return a.Auth.SignOut(ctx)
}

// Close unsubscribes from identity changes
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	SyncLogger()
}
