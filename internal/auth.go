package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// AuthEventType is the kind of identity change delivered to subscribers
type AuthEventType string

const (
	AuthSignedIn  AuthEventType = "SIGNED_IN"
	AuthSignedOut AuthEventType = "SIGNED_OUT"
)

// AuthUser identifies the signed-in user
type AuthUser struct {
	ID       string                 `json:"id" yaml:"id"`
	Email    string                 `json:"email,omitempty" yaml:"email,omitempty"`
	Metadata map[string]interface{} `json:"user_metadata,omitempty" yaml:"metadata,omitempty"`
}

// AuthSession is a signed-in identity with its bearer credential
type AuthSession struct {
	AccessToken  string    `json:"access_token" yaml:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"-" yaml:"expires_at,omitempty"`
	User         AuthUser  `json:"user" yaml:"user"`
}

// Expired reports whether the access token is past its expiry
func (s *AuthSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// AuthEvent is delivered to subscribers on sign-in and sign-out
type AuthEvent struct {
	Type    AuthEventType
	Session *AuthSession
}

// AuthProvider supplies the current identity. A nil session with a nil error
// means the user is not signed in.
type AuthProvider interface {
	CurrentSession(ctx context.Context) (*AuthSession, error)
	Subscribe(fn func(AuthEvent)) (cancel func())
}

// authBroadcaster fans identity events out to subscribers
type authBroadcaster struct {
	mu     sync.Mutex
	subs   map[int]func(AuthEvent)
	nextID int
}

func (b *authBroadcaster) Subscribe(fn func(AuthEvent)) func() {
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[int]func(AuthEvent))
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *authBroadcaster) emit(ev AuthEvent) {
	b.mu.Lock()
	fns := make([]func(AuthEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// TokenProvider serves a static bearer token
type TokenProvider struct {
	authBroadcaster

	mu      sync.RWMutex
	session *AuthSession
	cache   *CredentialCache
}

// NewTokenProvider creates a provider. An empty token means signed out;
// when cache is non-nil a previously stored token is used instead.
func NewTokenProvider(token string, cache *CredentialCache) *TokenProvider {
	p := &TokenProvider{cache: cache}
	if token != "" {
		p.session = &AuthSession{AccessToken: token, User: AuthUser{ID: "token"}}
	} else if cache != nil {
		if stored, err := cache.Load(); err != nil {
			LogWarn("Failed to load cached credentials: %v", err)
		} else {
			p.session = stored
		}
	}
	return p
}

// CurrentSession returns the token session, or nil when signed out
func (p *TokenProvider) CurrentSession(ctx context.Context) (*AuthSession, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.session == nil || p.session.AccessToken == "" {
		return nil, nil
	}
	s := *p.session
	return &s, nil
}

// SignIn stores the token and notifies subscribers
func (p *TokenProvider) SignIn(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is empty")
	}
	s := &AuthSession{AccessToken: strings.TrimSpace(token), User: AuthUser{ID: "token"}}
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.Save(s); err != nil {
			return err
		}
	}
	LogDebug("Signed in with token %s", RedactToken(s.AccessToken))
	p.emit(AuthEvent{Type: AuthSignedIn, Session: s})
	return nil
}

// SignOut forgets the token and notifies subscribers
func (p *TokenProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()

	var err error
	if p.cache != nil {
		err = p.cache.Clear()
	}
	p.emit(AuthEvent{Type: AuthSignedOut})
	return err
}

// SupabaseProvider signs in against a Supabase auth endpoint
type SupabaseProvider struct {
	authBroadcaster

	baseURL    string
	anonKey    string
	httpClient *http.Client
	cache      *CredentialCache
	now        func() time.Time

	mu      sync.RWMutex
	session *AuthSession
}

// NewSupabaseProvider creates a provider for the project at baseURL
func NewSupabaseProvider(baseURL, anonKey string, timeout time.Duration, cache *CredentialCache) *SupabaseProvider {
	p := &SupabaseProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		now:        time.Now,
	}
	if cache != nil {
		if stored, err := cache.Load(); err != nil {
			LogWarn("Failed to load cached credentials: %v", err)
		} else {
			p.session = stored
		}
	}
	return p
}

type supabaseTokenResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	RefreshToken string   `json:"refresh_token"`
	User         AuthUser `json:"user"`
}

func (r supabaseTokenResponse) session(now time.Time) *AuthSession {
	s := &AuthSession{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		User:         r.User,
	}
	switch {
	case r.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return s
}

// SignInWithPassword exchanges email and password for a session
func (p *SupabaseProvider) SignInWithPassword(ctx context.Context, email, password string) (*AuthSession, error) {
	body := map[string]string{"email": email, "password": password}
	s, err := p.tokenGrant(ctx, "password", body)
	if err != nil {
		return nil, err
	}
	p.setSession(s)
	LogDebug("Signed in as %s with token %s", s.User.Email, RedactToken(s.AccessToken))
	p.emit(AuthEvent{Type: AuthSignedIn, Session: s})
	return s, nil
}

// CurrentSession returns the stored session, refreshing it when expired.
// A session that cannot be refreshed is dropped and SIGNED_OUT is emitted.
func (p *SupabaseProvider) CurrentSession(ctx context.Context) (*AuthSession, error) {
	p.mu.RLock()
	cur := p.session
	p.mu.RUnlock()
	if cur == nil || cur.AccessToken == "" {
		return nil, nil
	}
	if !cur.Expired(p.now()) {
		s := *cur
		return &s, nil
	}
	if cur.RefreshToken == "" {
		p.dropSession(cur)
		return nil, nil
	}

	refreshed, err := p.tokenGrant(ctx, "refresh_token", map[string]string{"refresh_token": cur.RefreshToken})
	if err != nil {
		LogWarn("Failed to refresh session: %v", err)
		p.dropSession(cur)
		return nil, nil
	}
	p.setSession(refreshed)
	s := *refreshed
	return &s, nil
}

// User fetches the user behind the current session
func (p *SupabaseProvider) User(ctx context.Context) (*AuthUser, error) {
	s, err := p.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &AuthUnavailableError{Op: "get_user"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(req, s.AccessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: "get_user", Err: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Op: "get_user", Status: resp.StatusCode, Body: string(data)}
	}
	var user AuthUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	return &user, nil
}

// SignOut revokes the session on a best-effort basis and forgets it locally
func (p *SupabaseProvider) SignOut(ctx context.Context) error {
	p.mu.RLock()
	cur := p.session
	p.mu.RUnlock()

	if cur != nil && cur.AccessToken != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/v1/logout", nil)
		if err == nil {
			p.setHeaders(req, cur.AccessToken)
			if resp, err := p.httpClient.Do(req); err != nil {
				LogWarn("Logout request failed: %v", err)
			} else {
				resp.Body.Close()
			}
		}
	}

	p.setSession(nil)
	p.emit(AuthEvent{Type: AuthSignedOut})
	return nil
}

func (p *SupabaseProvider) tokenGrant(ctx context.Context, grant string, body map[string]string) (*AuthSession, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/auth/v1/token?grant_type=%s", p.baseURL, grant)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	p.setHeaders(req, "")
	req.Header.Set("Content-Type", "application/json")

	LogDebug("POST %s headers=%v", url, RedactHeaders(req.Header))
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteError{Op: "token_" + grant, Err: err}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteError{Op: "token_" + grant, Status: resp.StatusCode, Body: string(data)}
	}

	var tr supabaseTokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access token")
	}
	return tr.session(p.now()), nil
}

func (p *SupabaseProvider) setHeaders(req *http.Request, token string) {
	req.Header.Set("apikey", p.anonKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// dropSession forgets stale if it is still the current session and
// announces the sign-out once
func (p *SupabaseProvider) dropSession(stale *AuthSession) {
	p.mu.Lock()
	if p.session != stale {
		p.mu.Unlock()
		return
	}
	p.session = nil
	p.mu.Unlock()

	if p.cache != nil {
		if err := p.cache.Clear(); err != nil {
			LogWarn("Failed to update credential cache: %v", err)
		}
	}
	LogInfo("Session expired; signed out")
	p.emit(AuthEvent{Type: AuthSignedOut})
}

func (p *SupabaseProvider) setSession(s *AuthSession) {
	p.mu.Lock()
	p.session = s
	p.mu.Unlock()

	if p.cache == nil {
		return
	}
	var err error
	if s == nil {
		err = p.cache.Clear()
	} else {
		err = p.cache.Save(s)
	}
	if err != nil {
		LogWarn("Failed to update credential cache: %v", err)
	}
}
