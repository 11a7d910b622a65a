package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Deduplicator reconciles a fetched history with messages produced locally
// while the fetch was in flight
type Deduplicator struct{}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{}
}

// MergeHistory decides the message array for a promoted preview.
// The fetched history wins unless local holds at least one non-synthetic
// message; then the result is history followed by the local messages the
// history does not already contain, in their original order. Matching is a
// multiset match on role and content.
func (d *Deduplicator) MergeHistory(history, local []Message) []Message {
	out := make([]Message, 0, len(history)+len(local))
	out = append(out, history...)

	remaining := make(map[string]int, len(history))
	ids := make(map[string]bool, len(history))
	for _, m := range history {
		remaining[d.fingerprint(m)]++
		ids[m.ID] = true
	}

	for _, m := range local {
		if m.Synthetic {
			continue
		}
		if ids[m.ID] {
			continue
		}
		key := d.fingerprint(m)
		if remaining[key] > 0 {
			remaining[key]--
			continue
		}
		out = append(out, m)
	}
	return out
}

// fingerprint creates a content-based hash for a message
func (d *Deduplicator) fingerprint(m Message) string {
	h := sha256.New()
	h.Write([]byte(m.Role))
	h.Write([]byte{0})
	h.Write([]byte(m.Content))
	return hex.EncodeToString(h.Sum(nil))
}
