package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tw1nflame/chat-langchain/internal"
)

// sessionWithPlaceholders holds one real exchange plus the client-only
// messages that never leave the process
func sessionWithPlaceholders() *internal.ChatSession {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	return &internal.ChatSession{
		LocalID:   "local-42",
		ServerID:  "srv-42",
		Title:     "Revenue",
		State:     internal.StateFull,
		CreatedAt: now,
		Messages: []internal.Message{
			{ID: "preview-srv-42", Role: internal.RoleAssistant, Content: "stale listing summary", Synthetic: true},
			{ID: "u1", Role: internal.RoleUser, Content: "revenue by quarter", Timestamp: now},
			{ID: "a1", Role: internal.RoleAssistant, Content: "Q1 was strongest", Timestamp: now},
			{ID: "u2", Role: internal.RoleUser, Content: "and by region?", Timestamp: now},
			{ID: "e1", Role: internal.RoleAssistant, Content: "Sorry, something went wrong", Failed: true},
		},
	}
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{format: "jsonl", wantExt: "jsonl"},
		{format: "md", wantExt: "md"},
		{format: "markdown", wantExt: "md"},
		{format: "yaml", wantExt: "yaml"},
		{format: "json", wantExt: "json"},
		{format: "csv", wantErr: true},
		{format: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exporter, err := NewExporter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewExporter(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if tt.wantErr {
				if exporter != nil {
					t.Errorf("NewExporter(%q) = %T, want nil", tt.format, exporter)
				}
				return
			}
			if got := exporter.Extension(); got != tt.wantExt {
				t.Errorf("Extension() = %v, want %v", got, tt.wantExt)
			}
		})
	}
}

func TestNewDocument(t *testing.T) {
	doc := NewDocument(sessionWithPlaceholders())

	if doc.ID != "srv-42" {
		t.Errorf("ID = %v, want the server id", doc.ID)
	}
	if doc.State != "full" {
		t.Errorf("State = %v, want full", doc.State)
	}
	var ids []string
	for _, m := range doc.Messages {
		ids = append(ids, m.ID)
	}
	if got, want := strings.Join(ids, ","), "u1,a1,u2"; got != want {
		t.Errorf("message ids = %v, want %v", got, want)
	}
}

func TestExporters_OmitClientOnlyMessages(t *testing.T) {
	for _, format := range []string{"json", "jsonl", "yaml", "md"} {
		t.Run(format, func(t *testing.T) {
			exporter, err := NewExporter(format)
			if err != nil {
				t.Fatalf("NewExporter() error = %v", err)
			}

			var buf bytes.Buffer
			if err := exporter.Export(sessionWithPlaceholders(), &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			out := buf.String()

			for _, want := range []string{"srv-42", "revenue by quarter", "and by region?"} {
				if !strings.Contains(out, want) {
					t.Errorf("Export() output missing %q", want)
				}
			}
			for _, unwanted := range []string{"stale listing summary", "something went wrong", "local-42"} {
				if strings.Contains(out, unwanted) {
					t.Errorf("Export() output contains %q", unwanted)
				}
			}
		})
	}
}
