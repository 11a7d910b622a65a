package internal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeAPI is an in-memory ChatAPI that records every call
type fakeAPI struct {
	mu sync.Mutex

	calls    []string
	sessions []SessionSummary
	messages map[string][]RemoteMessage
	nextID   int

	listErr     error
	createErr   error
	deleteErr   error
	messagesErr error
	sendErr     error
	confirmErr  error

	// beforeCreateReturn runs inside CreateSession after the id is minted
	beforeCreateReturn func()
	// beforeSendReturn runs inside SendMessage before the reply is returned
	beforeSendReturn func()

	reply        RemoteMessage
	confirmReply ConfirmResult
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages: make(map[string][]RemoteMessage),
		reply:    RemoteMessage{Role: RoleAssistant, Content: "Hi there!"},
	}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) count(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeAPI) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	f.record("list")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]SessionSummary(nil), f.sessions...), nil
}

func (f *fakeAPI) CreateSession(ctx context.Context, title string) (SessionSummary, error) {
	f.record("create:" + title)
	f.mu.Lock()
	if f.createErr != nil {
		err := f.createErr
		f.mu.Unlock()
		return SessionSummary{}, err
	}
	f.nextID++
	s := SessionSummary{ID: fmt.Sprintf("srv-%d", f.nextID), Title: title, CreatedAt: time.Now()}
	f.sessions = append(f.sessions, s)
	hook := f.beforeCreateReturn
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return s, nil
}

func (f *fakeAPI) DeleteSession(ctx context.Context, id string) error {
	f.record("delete:" + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, s := range f.sessions {
		if s.ID == id {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			break
		}
	}
	delete(f.messages, id)
	return nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, sessionID string) ([]RemoteMessage, error) {
	f.record("messages:" + sessionID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	return append([]RemoteMessage(nil), f.messages[sessionID]...), nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, sessionID, content string, files []FileUpload) (SendResult, error) {
	f.record("send:" + sessionID)
	f.mu.Lock()
	hook := f.beforeSendReturn
	err := f.sendErr
	reply := f.reply
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return SendResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	user := RemoteMessage{ID: fmt.Sprintf("u-%d", f.nextID), SessionID: sessionID, Role: RoleUser, Content: content, CreatedAt: time.Now()}
	reply.ID = fmt.Sprintf("a-%d", f.nextID)
	reply.SessionID = sessionID
	reply.CreatedAt = time.Now()
	f.messages[sessionID] = append(f.messages[sessionID], user, reply)
	return SendResult{UserMessage: user, AssistantMessage: reply}, nil
}

func (f *fakeAPI) ResolveConfirmation(ctx context.Context, sessionID, planID string, approve bool) (ConfirmResult, error) {
	f.record(fmt.Sprintf("confirm:%s:%s:%t", sessionID, planID, approve))
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return ConfirmResult{}, f.confirmErr
	}
	res := f.confirmReply
	res.Cancelled = !approve
	return res, nil
}
