package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Opener hands a URL to something outside the process, usually a browser
type Opener func(ctx context.Context, url string) error

// Downloader fetches file and table artifacts with the bearer credential
type Downloader struct {
	baseURL    string
	auth       AuthProvider
	httpClient *http.Client
	open       Opener
}

// NewDownloader creates a downloader. Relative URLs are resolved against
// baseURL. open is called when the authenticated fetch fails.
func NewDownloader(baseURL string, auth AuthProvider, timeout time.Duration, open Opener) *Downloader {
	if open == nil {
		open = BrowserOpener
	}
	return &Downloader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		httpClient: &http.Client{Timeout: timeout},
		open:       open,
	}
}

// ResolveURL turns a download reference into an absolute URL
func (d *Downloader) ResolveURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if strings.HasPrefix(ref, "/") {
		// backend-relative references are rooted at the host, not the API prefix
		if i := strings.Index(d.baseURL, "://"); i >= 0 {
			if j := strings.Index(d.baseURL[i+3:], "/"); j >= 0 {
				return d.baseURL[:i+3+j] + ref
			}
		}
		return d.baseURL + ref
	}
	return d.baseURL + "/" + ref
}

// Fetch copies the artifact at ref into w. When the authenticated fetch
// fails the URL is passed to the fallback opener and the original error is returned.
func (d *Downloader) Fetch(ctx context.Context, ref string, w io.Writer) (int64, error) {
	target := d.ResolveURL(ref)
	n, err := d.fetch(ctx, target, w)
	if err == nil {
		return n, nil
	}

	LogWarn("Authenticated download failed, opening URL directly: %v", err)
	if openErr := d.open(ctx, target); openErr != nil {
		LogWarn("Failed to open %s: %v", target, openErr)
	}
	return 0, err
}

func (d *Downloader) fetch(ctx context.Context, target string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	if d.auth != nil {
		s, err := d.auth.CurrentSession(ctx)
		if err != nil {
			return 0, err
		}
		if s != nil && s.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+s.AccessToken)
		}
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, &RemoteError{Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &RemoteError{Op: "download", Status: resp.StatusCode, Body: string(body)}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write download: %w", err)
	}
	return n, nil
}

// BrowserOpener opens url with the platform's default handler
func BrowserOpener(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
	return cmd.Start()
}
