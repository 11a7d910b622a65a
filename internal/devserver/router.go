package devserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tw1nflame/chat-langchain/internal"
)

// APIPrefix is the path every backend route is mounted under
const APIPrefix = "/api/v1"

// Options configures the dev backend
type Options struct {
	// Token is the accepted bearer token. Empty accepts any non-empty token.
	Token string
	// ReplyDelay is slept before each reply to widen the mid-turn window
	ReplyDelay time.Duration
	// Responder produces assistant replies; nil echoes the prompt
	Responder Responder
	// MaxUploadBytes bounds the in-memory part of a multipart upload
	MaxUploadBytes int64
}

// Server is a development implementation of the chat backend
type Server struct {
	store *Store
	opts  Options
}

// NewServer creates a server over store
func NewServer(store *Store, opts Options) *Server {
	if opts.Responder == nil {
		opts.Responder = EchoResponder{}
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Server{store: store, opts: opts}
}

// Router builds the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)

			r.Get("/sessions", s.handleListSessions)
			r.Post("/sessions", s.handleCreateSession)
			r.Delete("/sessions/{sessionID}", s.handleDeleteSession)
			r.Get("/sessions/{sessionID}/messages", s.handleListMessages)
			r.Post("/sessions/{sessionID}/messages", s.handleSendMessage)

			r.Post("/confirm/{planID}", s.handleConfirm)

			r.Get("/files/{fileID}", s.handleDownloadFile)
			r.Get("/plans/{planID}/table.csv", s.handleDownloadPlanTable)
		})
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		internal.LogInfo("Dev backend listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	internal.LogInfo("Shutting down dev backend...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated", "")
			return
		}
		if s.opts.Token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Token)) != 1 {
			internal.LogDebug("Rejected token %s", internal.RedactToken(token))
			writeError(w, http.StatusForbidden, "Invalid token", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			internal.LogDebug("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}
