package devserver

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tw1nflame/chat-langchain/internal"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		internal.LogWarn("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail, code string) {
	writeJSON(w, status, internal.ErrorBody{Detail: detail, Code: code})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	internal.LogError("%s: %v", op, err)
	writeError(w, http.StatusInternalServerError, "Internal server error", "")
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.internalError(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req internal.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), "")
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New chat"
	}

	created, err := s.store.CreateSession(r.Context(), title)
	if err != nil {
		s.internalError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteSession(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found", "")
		return
	}
	if err != nil {
		s.internalError(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.ListMessages(r.Context(), chi.URLParam(r, "sessionID"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found", "")
		return
	}
	if err != nil {
		s.internalError(w, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) sessionGone(w http.ResponseWriter, sessionID string) {
	internal.LogInfo("Session %s was deleted during the turn", sessionID)
	writeError(w, http.StatusNotFound, "Session was deleted", internal.SessionGoneCode)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "Invalid form: "+err.Error(), "")
		return
	}
	if role := r.FormValue("role"); role != "" && role != string(internal.RoleUser) {
		writeError(w, http.StatusBadRequest, "Only user messages can be posted", "")
		return
	}
	content := strings.TrimSpace(r.FormValue("content"))
	var uploads []*multipart.FileHeader
	if r.MultipartForm != nil {
		uploads = r.MultipartForm.File["files"]
	}
	if content == "" && len(uploads) == 0 {
		writeError(w, http.StatusBadRequest, "Message must include text or files", "")
		return
	}

	history, err := s.store.ListMessages(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found", "")
		return
	}
	if err != nil {
		s.internalError(w, "load history", err)
		return
	}

	files := make([]internal.Attachment, 0, len(uploads))
	for _, fh := range uploads {
		att, err := s.saveUpload(r, sessionID, fh)
		if err != nil {
			s.internalError(w, "save upload", err)
			return
		}
		files = append(files, att)
	}

	userMsg, err := s.store.InsertMessage(ctx, internal.RemoteMessage{
		SessionID: sessionID,
		Role:      internal.RoleUser,
		Content:   content,
		Files:     files,
	})
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found", "")
		return
	}
	if err != nil {
		s.internalError(w, "insert user message", err)
		return
	}

	if s.opts.ReplyDelay > 0 {
		select {
		case <-time.After(s.opts.ReplyDelay):
		case <-ctx.Done():
			return
		}
	}

	reply := internal.RemoteMessage{SessionID: sessionID, Role: internal.RoleAssistant}
	request, isPlan := parsePlanRequest(content)
	if isPlan {
		reply.Content = planProposal(request)
		reply.AwaitingConfirmation = true
		reply.PlanID = uuid.NewString()
		reply.ConfirmationSummary = request
	} else {
		text, err := s.opts.Responder.Respond(ctx, history, promptFor(content, files))
		if err != nil {
			internal.LogError("Responder failed for session %s: %v", sessionID, err)
			writeError(w, http.StatusBadGateway, "Agent failed to respond", "")
			return
		}
		reply.Content = text
	}

	assistantMsg, err := s.store.InsertMessage(ctx, reply)
	if errors.Is(err, ErrNotFound) {
		s.sessionGone(w, sessionID)
		return
	}
	if err != nil {
		s.internalError(w, "insert assistant message", err)
		return
	}

	if isPlan {
		plan := Plan{ID: reply.PlanID, SessionID: sessionID, MessageID: assistantMsg.ID, Request: request}
		if err := s.store.CreatePlan(ctx, plan); err != nil {
			s.internalError(w, "create plan", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, internal.SendResult{UserMessage: userMsg, AssistantMessage: assistantMsg})
}

func (s *Server) saveUpload(r *http.Request, sessionID string, fh *multipart.FileHeader) (internal.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return internal.Attachment{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return internal.Attachment{}, err
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return s.store.SaveFile(r.Context(), sessionID, fh.Filename, contentType, data)
}

func promptFor(content string, files []internal.Attachment) string {
	if len(files) == 0 {
		return content
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	attached := fmt.Sprintf("[attached: %s]", strings.Join(names, ", "))
	if content == "" {
		return attached
	}
	return content + " " + attached
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	planID := chi.URLParam(r, "planID")

	var req internal.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error(), "")
		return
	}

	plan, err := s.store.GetPlan(ctx, planID)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Plan not found", "")
		return
	}
	if err != nil {
		s.internalError(w, "load plan", err)
		return
	}
	if plan.SessionID != req.SessionID {
		writeError(w, http.StatusBadRequest, "Plan does not belong to this session", "")
		return
	}

	claimed, err := s.store.ClaimPlan(ctx, planID)
	if err != nil {
		s.internalError(w, "claim plan", err)
		return
	}
	if !claimed {
		current, err := s.store.GetPlan(ctx, planID)
		if err == nil && current.Status == PlanRunning {
			writeError(w, http.StatusConflict, "Confirmation already in progress", "")
			return
		}
		writeError(w, http.StatusConflict, "Plan already resolved", "")
		return
	}

	if !req.Approve {
		if err := s.store.ResolvePlan(ctx, plan, PlanCancelled, CancelledResult, nil); err != nil {
			s.resolveFailed(w, plan, err)
			return
		}
		writeJSON(w, http.StatusOK, internal.ConfirmResult{Detail: "Plan cancelled", Result: CancelledResult})
		return
	}

	text, err := s.opts.Responder.Respond(ctx, nil, plan.Request)
	if err != nil {
		internal.LogError("Responder failed for plan %s: %v", plan.ID, err)
		if relErr := s.store.ReleasePlan(ctx, plan.ID); relErr != nil {
			internal.LogWarn("Failed to release plan %s: %v", plan.ID, relErr)
		}
		writeError(w, http.StatusBadGateway, "Agent failed to run the plan", "")
		return
	}

	result := internal.ConfirmResult{
		Content: "Plan completed.\n\n" + text,
		Tables:  []internal.Table{planTable(plan)},
	}
	if err := s.store.ResolvePlan(ctx, plan, PlanDone, result.Content, result.Tables); err != nil {
		s.resolveFailed(w, plan, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) resolveFailed(w http.ResponseWriter, plan Plan, err error) {
	if errors.Is(err, ErrNotFound) {
		s.sessionGone(w, plan.SessionID)
		return
	}
	if relErr := s.store.ReleasePlan(context.Background(), plan.ID); relErr != nil {
		internal.LogWarn("Failed to release plan %s: %v", plan.ID, relErr)
	}
	s.internalError(w, "resolve plan", err)
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	f, err := s.store.GetFile(r.Context(), chi.URLParam(r, "fileID"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found", "")
		return
	}
	if err != nil {
		s.internalError(w, "load file", err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

func (s *Server) handleDownloadPlanTable(w http.ResponseWriter, r *http.Request) {
	plan, err := s.store.GetPlan(r.Context(), chi.URLParam(r, "planID"))
	if errors.Is(err, ErrNotFound) || (err == nil && plan.Status != PlanDone) {
		writeError(w, http.StatusNotFound, "Table not found", "")
		return
	}
	if err != nil {
		s.internalError(w, "load plan", err)
		return
	}

	table := planTable(plan)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "plan-"+plan.ID+".csv"))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(table.Headers)
	for _, row := range table.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = fmt.Sprint(v)
		}
		_ = cw.Write(record)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		internal.LogWarn("Failed to write table CSV: %v", err)
	}
}
