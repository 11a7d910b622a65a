package internal

import (
	"bytes"
	"net/http"
	"os"
	"strings"
	"testing"
)

func TestSetLogLevel(t *testing.T) {
	originalLevel := logLevel
	defer SetLogLevel(originalLevel)

	SetLogLevel(LogLevelDebug)
	if logLevel != LogLevelDebug {
		t.Errorf("SetLogLevel() logLevel = %v, want LogLevelDebug", logLevel)
	}

	SetLogLevel(LogLevelError)
	if logLevel != LogLevelError {
		t.Errorf("SetLogLevel() logLevel = %v, want LogLevelError", logLevel)
	}
}

func TestSetVerbose(t *testing.T) {
	originalLevel := logLevel
	defer SetLogLevel(originalLevel)

	SetVerbose(true)
	if logLevel != LogLevelDebug {
		t.Errorf("SetVerbose(true) logLevel = %v, want LogLevelDebug", logLevel)
	}

	SetVerbose(false)
	if logLevel != LogLevelInfo {
		t.Errorf("SetVerbose(false) logLevel = %v, want LogLevelInfo", logLevel)
	}
}

func TestLogFunctions_RespectLevel(t *testing.T) {
	originalLevel := logLevel
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer func() {
		SetLogOutput(os.Stderr)
		SetLogLevel(originalLevel)
	}()

	SetLogLevel(LogLevelWarn)
	LogError("test error message")
	LogWarn("test warning message")
	LogInfo("test info message")
	LogDebug("test debug message")

	out := buf.String()
	if !strings.Contains(out, "test error message") || !strings.Contains(out, "test warning message") {
		t.Errorf("log output missing error/warn lines: %q", out)
	}
	if strings.Contains(out, "test info message") || strings.Contains(out, "test debug message") {
		t.Errorf("log output contains lines below level: %q", out)
	}
}

func TestLogLevels(t *testing.T) {
	if LogLevelError >= LogLevelWarn {
		t.Error("LogLevelError should be less than LogLevelWarn")
	}
	if LogLevelWarn >= LogLevelInfo {
		t.Error("LogLevelWarn should be less than LogLevelInfo")
	}
	if LogLevelInfo >= LogLevelDebug {
		t.Error("LogLevelInfo should be less than LogLevelDebug")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LogLevelDebug, true},
		{"WARN", LogLevelWarn, true},
		{" error ", LogLevelError, true},
		{"info", LogLevelInfo, true},
		{"loud", LogLevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLogLevel(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLogLevel(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRedactToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"short", "****"},
		{"eyJhbGciOiJIUzI1NiJ9.payload.sig", "eyJh****"},
	}
	for _, tt := range tests {
		if got := RedactToken(tt.in); got != tt.want {
			t.Errorf("RedactToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer supersecrettoken")
	h.Set("apikey", "anon-key-value-123")
	h.Set("Content-Type", "application/json")

	got := RedactHeaders(h)
	if strings.Contains(got.Get("Authorization"), "supersecrettoken") {
		t.Errorf("RedactHeaders() leaked bearer token: %q", got.Get("Authorization"))
	}
	if got.Get("Authorization") != "Bearer supe****" {
		t.Errorf("RedactHeaders() Authorization = %q, want %q", got.Get("Authorization"), "Bearer supe****")
	}
	if strings.Contains(got.Get("apikey"), "value") {
		t.Errorf("RedactHeaders() leaked apikey: %q", got.Get("apikey"))
	}
	if got.Get("Content-Type") != "application/json" {
		t.Error("RedactHeaders() should keep non-sensitive headers")
	}
	if h.Get("Authorization") != "Bearer supersecrettoken" {
		t.Error("RedactHeaders() must not modify its input")
	}
}
