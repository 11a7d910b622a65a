package internal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewDeduplicator(t *testing.T) {
	d := NewDeduplicator()
	if d == nil {
		t.Error("NewDeduplicator() returned nil")
	}
}

func TestDeduplicator_MergeHistory(t *testing.T) {
	tests := []struct {
		name    string
		history []Message
		local   []Message
		want    []string
	}{
		{
			name:    "history wins over placeholder",
			history: []Message{{ID: "u1", Role: RoleUser, Content: "q"}, {ID: "a1", Role: RoleAssistant, Content: "r"}},
			local:   []Message{{ID: "preview-s1", Role: RoleAssistant, Content: "r", Synthetic: true}},
			want:    []string{"u1", "a1"},
		},
		{
			name:    "local message already on server",
			history: []Message{{ID: "u1", Role: RoleUser, Content: "Hello"}},
			local:   []Message{{ID: "tmp", Role: RoleUser, Content: "Hello"}},
			want:    []string{"u1"},
		},
		{
			name:    "unsent local message kept",
			history: []Message{{ID: "u1", Role: RoleUser, Content: "Hello"}},
			local:   []Message{{ID: "tmp", Role: RoleUser, Content: "Follow up"}},
			want:    []string{"u1", "tmp"},
		},
		{
			name:    "repeated content counted",
			history: []Message{{ID: "u1", Role: RoleUser, Content: "yes"}},
			local: []Message{
				{ID: "t1", Role: RoleUser, Content: "yes"},
				{ID: "t2", Role: RoleUser, Content: "yes"},
			},
			want: []string{"u1", "t2"},
		},
		{
			name:    "same id skipped",
			history: []Message{{ID: "a1", Role: RoleAssistant, Content: "old"}},
			local:   []Message{{ID: "a1", Role: RoleAssistant, Content: "edited"}},
			want:    []string{"a1"},
		},
		{
			name:    "role is part of the match",
			history: []Message{{ID: "a1", Role: RoleAssistant, Content: "ok"}},
			local:   []Message{{ID: "t1", Role: RoleUser, Content: "ok"}},
			want:    []string{"a1", "t1"},
		},
	}

	d := NewDeduplicator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := messageIDs(d.MergeHistory(tt.history, tt.local))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MergeHistory() (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeduplicator_Fingerprint(t *testing.T) {
	d := NewDeduplicator()
	a := d.fingerprint(Message{Role: RoleUser, Content: "ab"})
	b := d.fingerprint(Message{Role: RoleUser, Content: "ab"})
	c := d.fingerprint(Message{Role: "usera", Content: "b"})

	if a != b {
		t.Error("fingerprint() should be stable for same input")
	}
	if a == c {
		t.Error("fingerprint() should separate role from content")
	}
}
