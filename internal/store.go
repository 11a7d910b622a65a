package internal

import (
	"sort"
	"sync"
)

// SessionStore holds every ChatSession of the current page session, keyed by local id.
// All mutations go through MergeSession under the write lock; readers get copies.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]ChatSession
	active   string

	listenersMu sync.Mutex
	listeners   map[int]func(localID string)
	nextID      int
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]ChatSession),
		listeners: make(map[int]func(string)),
	}
}

// Upsert merges patch into the session, creating it when absent
func (s *SessionStore) Upsert(localID string, patch SessionPatch) ChatSession {
	s.mu.Lock()
	cur, ok := s.sessions[localID]
	if !ok {
		cur = ChatSession{LocalID: localID}
	}
	next := MergeSession(cur, patch)
	s.put(next, cur.ServerID)
	s.mu.Unlock()

	s.notify(localID)
	return next.Clone()
}

// Update merges patch into the session and reports false, changing nothing,
// when the session is absent
func (s *SessionStore) Update(localID string, patch SessionPatch) (ChatSession, bool) {
	s.mu.Lock()
	cur, ok := s.sessions[localID]
	if !ok {
		s.mu.Unlock()
		return ChatSession{}, false
	}
	next := MergeSession(cur, patch)
	s.put(next, cur.ServerID)
	s.mu.Unlock()

	s.notify(localID)
	return next.Clone(), true
}

// ReplaceMessages swaps the session's message array and applies patch.
// It reports false when the session is absent.
func (s *SessionStore) ReplaceMessages(localID string, messages []Message, patch SessionPatch) (ChatSession, bool) {
	return s.ReplaceMessagesFunc(localID, func(ChatSession) ([]Message, SessionPatch) {
		return messages, patch
	})
}

// ReplaceMessagesFunc is ReplaceMessages with the array and patch computed
// from the session value current at merge time
func (s *SessionStore) ReplaceMessagesFunc(localID string, fn func(cur ChatSession) ([]Message, SessionPatch)) (ChatSession, bool) {
	s.mu.Lock()
	cur, ok := s.sessions[localID]
	if !ok {
		s.mu.Unlock()
		return ChatSession{}, false
	}
	messages, patch := fn(cur.Clone())
	next := ReplaceSessionMessages(cur, messages, patch)
	s.put(next, cur.ServerID)
	s.mu.Unlock()

	s.notify(localID)
	return next.Clone(), true
}

// put stores next and folds away preview duplicates created when a listing
// raced with session creation. Callers hold the write lock.
func (s *SessionStore) put(next ChatSession, prevServerID string) {
	s.sessions[next.LocalID] = next
	if next.ServerID == "" || prevServerID == next.ServerID {
		return
	}
	for id, other := range s.sessions {
		if id == next.LocalID || other.ServerID != next.ServerID {
			continue
		}
		if other.State == StatePreview && !other.HasLocalMessages() {
			delete(s.sessions, id)
			if s.active == id {
				s.active = next.LocalID
			}
		}
	}
}

// Remove deletes the session and returns its last value
func (s *SessionStore) Remove(localID string) (ChatSession, bool) {
	s.mu.Lock()
	cur, ok := s.sessions[localID]
	if ok {
		delete(s.sessions, localID)
		if s.active == localID {
			s.active = ""
		}
	}
	s.mu.Unlock()

	if ok {
		s.notify(localID)
	}
	return cur, ok
}

// Get returns a copy of the session
func (s *SessionStore) Get(localID string) (ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.sessions[localID]
	if !ok {
		return ChatSession{}, false
	}
	return cur.Clone(), true
}

// FindByServerID returns the session carrying the given server id
func (s *SessionStore) FindByServerID(serverID string) (ChatSession, bool) {
	if serverID == "" {
		return ChatSession{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByServerIDLocked(serverID)
}

func (s *SessionStore) findByServerIDLocked(serverID string) (ChatSession, bool) {
	for _, cur := range s.sessions {
		if cur.ServerID == serverID {
			return cur.Clone(), true
		}
	}
	return ChatSession{}, false
}

// MergeListing merges a server listing in one atomic step and returns the
// number of sessions that were not held locally before. Nothing is removed.
func (s *SessionStore) MergeListing(summaries []SessionSummary, newLocalID func() string) int {
	s.mu.Lock()
	added := 0
	var touched []string
	for _, summary := range summaries {
		if summary.ID == "" {
			continue
		}
		existing, ok := s.findByServerIDLocked(summary.ID)
		if ok {
			next := MergeSession(existing, SummaryPatch(&existing, summary))
			s.sessions[next.LocalID] = next
			touched = append(touched, next.LocalID)
			continue
		}
		localID := newLocalID()
		next := MergeSession(ChatSession{LocalID: localID}, SummaryPatch(nil, summary))
		s.sessions[localID] = next
		touched = append(touched, localID)
		added++
	}
	s.mu.Unlock()

	for _, id := range touched {
		s.notify(id)
	}
	return added
}

// List returns every session, newest first. Ties keep transient sessions first.
func (s *SessionStore) List() []ChatSession {
	s.mu.RLock()
	out := make([]ChatSession, 0, len(s.sessions))
	for _, cur := range s.sessions {
		out = append(out, cur.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		if out[i].Persisted() != out[j].Persisted() {
			return !out[i].Persisted()
		}
		return out[i].LocalID < out[j].LocalID
	})
	return out
}

// Len returns the number of sessions
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// BeginTurn sets the session's loading flag. It returns false when the flag
// was already set or the session is absent.
func (s *SessionStore) BeginTurn(localID string) bool {
	s.mu.Lock()
	cur, ok := s.sessions[localID]
	if !ok || cur.Loading {
		s.mu.Unlock()
		return false
	}
	cur.Loading = true
	s.sessions[localID] = cur
	s.mu.Unlock()

	s.notify(localID)
	return true
}

// EndTurn clears the session's loading flag and returns the resulting snapshot
func (s *SessionStore) EndTurn(localID string) (ChatSession, bool) {
	s.mu.Lock()
	cur, ok := s.sessions[localID]
	if ok {
		cur.Loading = false
		s.sessions[localID] = cur
		cur = cur.Clone()
	}
	s.mu.Unlock()

	if ok {
		s.notify(localID)
	}
	return cur, ok
}

// SetActive marks the session shown by the rendering layer
func (s *SessionStore) SetActive(localID string) bool {
	s.mu.Lock()
	_, ok := s.sessions[localID]
	if ok {
		s.active = localID
	}
	s.mu.Unlock()
	return ok
}

// Active returns the active session
func (s *SessionStore) Active() (ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == "" {
		return ChatSession{}, false
	}
	cur, ok := s.sessions[s.active]
	if !ok {
		return ChatSession{}, false
	}
	return cur.Clone(), true
}

// Clear removes every session
func (s *SessionStore) Clear() {
	s.mu.Lock()
	s.sessions = make(map[string]ChatSession)
	s.active = ""
	s.mu.Unlock()

	s.notify("")
}

// Subscribe registers fn to be called after every change. The local id is
// empty when the whole store changed. The returned func unregisters fn.
func (s *SessionStore) Subscribe(fn func(localID string)) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *SessionStore) notify(localID string) {
	s.listenersMu.Lock()
	fns := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(localID)
	}
}
