package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ChatAPI is the backend surface used by the engine and the turn controller
type ChatAPI interface {
	ListSessions(ctx context.Context) ([]SessionSummary, error)
	CreateSession(ctx context.Context, title string) (SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error
	ListMessages(ctx context.Context, sessionID string) ([]RemoteMessage, error)
	SendMessage(ctx context.Context, sessionID, content string, files []FileUpload) (SendResult, error)
	ResolveConfirmation(ctx context.Context, sessionID, planID string, approve bool) (ConfirmResult, error)
}

// APIClient talks to the chat backend over HTTP
type APIClient struct {
	baseURL    string
	auth       AuthProvider
	httpClient *http.Client
}

// NewAPIClient creates a client for the backend rooted at baseURL
func NewAPIClient(baseURL string, auth AuthProvider, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the backend root
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

func (c *APIClient) token(ctx context.Context) (string, error) {
	if c.auth == nil {
		return "", nil
	}
	s, err := c.auth.CurrentSession(ctx)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", nil
	}
	return s.AccessToken, nil
}

// do sends a request and returns status and body. Transport failures come back as *RemoteError.
func (c *APIClient) do(ctx context.Context, op, method, path, token string, body io.Reader, contentType string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	LogDebug("%s %s headers=%v", method, path, RedactHeaders(req.Header))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &RemoteError{Op: op, Status: resp.StatusCode, Err: err}
	}
	LogDebug("%s %s -> %d", method, path, resp.StatusCode)
	return resp.StatusCode, data, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func decodeJSON(op string, data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", op, err)
	}
	return nil
}

// ListSessions returns the caller's sessions, newest first. A missing
// credential or a 401/403 yields an empty list.
func (c *APIClient) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		LogDebug("list_sessions: no credential, returning empty listing")
		return []SessionSummary{}, nil
	}

	status, data, err := c.do(ctx, "list_sessions", http.MethodGet, "/sessions", token, nil, "")
	if err != nil {
		return nil, err
	}
	if isAuthStatus(status) {
		LogDebug("list_sessions: status %d, returning empty listing", status)
		return []SessionSummary{}, nil
	}
	if !isSuccess(status) {
		return nil, &RemoteError{Op: "list_sessions", Status: status, Body: string(data)}
	}

	var sessions []SessionSummary
	if err := decodeJSON("list_sessions", data, &sessions); err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// CreateSession creates a server session
func (c *APIClient) CreateSession(ctx context.Context, title string) (SessionSummary, error) {
	token, err := c.token(ctx)
	if err != nil {
		return SessionSummary{}, err
	}
	if token == "" {
		return SessionSummary{}, &AuthUnavailableError{Op: "create_session"}
	}

	payload, err := json.Marshal(CreateSessionRequest{Title: title})
	if err != nil {
		return SessionSummary{}, err
	}
	status, data, err := c.do(ctx, "create_session", http.MethodPost, "/sessions", token, bytes.NewReader(payload), "application/json")
	if err != nil {
		return SessionSummary{}, err
	}
	if !isSuccess(status) {
		return SessionSummary{}, &RemoteError{Op: "create_session", Status: status, Body: string(data)}
	}

	var created SessionSummary
	if err := decodeJSON("create_session", data, &created); err != nil {
		return SessionSummary{}, err
	}
	if created.ID == "" {
		return SessionSummary{}, fmt.Errorf("create_session response has no id")
	}
	return created, nil
}

// DeleteSession deletes a server session
func (c *APIClient) DeleteSession(ctx context.Context, id string) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return &AuthUnavailableError{Op: "delete_session"}
	}

	status, data, err := c.do(ctx, "delete_session", http.MethodDelete, "/sessions/"+url.PathEscape(id), token, nil, "")
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &RemoteError{Op: "delete_session", Status: status, Body: string(data)}
	}
	return nil
}

// ListMessages returns a session's full history in order. A missing
// credential or a 401/403 yields an empty list.
func (c *APIClient) ListMessages(ctx context.Context, sessionID string) ([]RemoteMessage, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return []RemoteMessage{}, nil
	}

	status, data, err := c.do(ctx, "list_messages", http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/messages", token, nil, "")
	if err != nil {
		return nil, err
	}
	if isAuthStatus(status) {
		return []RemoteMessage{}, nil
	}
	if !isSuccess(status) {
		return nil, &RemoteError{Op: "list_messages", Status: status, Body: string(data)}
	}

	var messages []RemoteMessage
	if err := decodeJSON("list_messages", data, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage posts a user turn as multipart form data
func (c *APIClient) SendMessage(ctx context.Context, sessionID, content string, files []FileUpload) (SendResult, error) {
	token, err := c.token(ctx)
	if err != nil {
		return SendResult{}, err
	}
	if token == "" {
		return SendResult{}, &AuthUnavailableError{Op: "send_message"}
	}

	body, contentType, err := encodeMessageForm(content, files)
	if err != nil {
		return SendResult{}, err
	}

	status, data, err := c.do(ctx, "send_message", http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/messages", token, body, contentType)
	if err != nil {
		return SendResult{}, err
	}
	if status == http.StatusNotFound && isSessionGoneBody(data) {
		return SendResult{}, &SessionGoneError{SessionID: sessionID, Body: string(data)}
	}
	if !isSuccess(status) {
		return SendResult{}, &RemoteError{Op: "send_message", Status: status, Body: string(data)}
	}

	var result SendResult
	if err := decodeJSON("send_message", data, &result); err != nil {
		return SendResult{}, err
	}
	return result, nil
}

// ResolveConfirmation approves or cancels a paused plan
func (c *APIClient) ResolveConfirmation(ctx context.Context, sessionID, planID string, approve bool) (ConfirmResult, error) {
	token, err := c.token(ctx)
	if err != nil {
		return ConfirmResult{}, err
	}
	if token == "" {
		return ConfirmResult{}, &AuthUnavailableError{Op: "resolve_confirmation"}
	}

	payload, err := json.Marshal(ConfirmRequest{SessionID: sessionID, Approve: approve})
	if err != nil {
		return ConfirmResult{}, err
	}
	status, data, err := c.do(ctx, "resolve_confirmation", http.MethodPost, "/confirm/"+url.PathEscape(planID), token, bytes.NewReader(payload), "application/json")
	if err != nil {
		return ConfirmResult{}, err
	}
	if !isSuccess(status) {
		return ConfirmResult{}, &RemoteError{Op: "resolve_confirmation", Status: status, Body: string(data)}
	}

	var result ConfirmResult
	if err := decodeJSON("resolve_confirmation", data, &result); err != nil {
		return ConfirmResult{}, err
	}
	result.Cancelled = !approve
	return result, nil
}

// Health checks that the backend is reachable
func (c *APIClient) Health(ctx context.Context) error {
	status, data, err := c.do(ctx, "health", http.MethodGet, "/health", "", nil, "")
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &RemoteError{Op: "health", Status: status, Body: string(data)}
	}
	return nil
}

func isSessionGoneBody(data []byte) bool {
	var body ErrorBody
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Code == SessionGoneCode || body.Detail == SessionGoneCode {
			return true
		}
	}
	return bytes.Contains(data, []byte(SessionGoneCode))
}

func encodeMessageForm(content string, files []FileUpload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("role", string(RoleUser)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("content", content); err != nil {
		return nil, "", err
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
