package cmd

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tw1nflame/chat-langchain/internal"
)

// newApp builds the client for one command invocation
func newApp() *internal.App {
	return internal.NewApp(cfg, nil)
}

// startApp builds the client and runs the initial load. With strict set a
// failed listing is returned; otherwise it is logged and the app still
// holds its initial transient session.
func startApp(ctx context.Context, strict bool) (*internal.App, error) {
	app := newApp()
	err := internal.ShowProgress(ctx, "Loading sessions", func() error {
		return app.Start(ctx)
	})
	if err != nil {
		if strict {
			app.Close()
			return nil, fmt.Errorf("failed to load sessions: %w", err)
		}
		internal.LogWarn("Failed to load sessions: %v", err)
	}
	return app, nil
}

// findSession resolves a server id, a unique server id prefix or a local id
func findSession(app *internal.App, ref string) (internal.ChatSession, error) {
	if strings.TrimSpace(ref) == "" {
		return internal.ChatSession{}, fmt.Errorf("session id is required")
	}
	if s, ok := app.Store.FindByServerID(ref); ok {
		return s, nil
	}
	if s, ok := app.Store.Get(ref); ok {
		return s, nil
	}

	var matches []internal.ChatSession
	for _, s := range app.Store.List() {
		if s.ServerID != "" && strings.HasPrefix(s.ServerID, ref) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return internal.ChatSession{}, fmt.Errorf("session not found: %s (use 'chat-langchain list' to see available sessions)", ref)
	default:
		return internal.ChatSession{}, fmt.Errorf("session id %q is ambiguous (%d matches)", ref, len(matches))
	}
}

// readUploads loads files to attach to a message
func readUploads(paths []string) ([]internal.FileUpload, error) {
	uploads := make([]internal.FileUpload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		uploads = append(uploads, internal.FileUpload{
			Name:        filepath.Base(p),
			ContentType: contentTypeFor(p, data),
			Data:        data,
		})
	}
	return uploads, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func contentTypeFor(path string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// isStdout reports whether w is the process stdout, so terminal styling
// only applies when writing there
func isStdout(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && f == os.Stdout
}
