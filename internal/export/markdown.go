package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/tw1nflame/chat-langchain/internal"
)

// MarkdownExporter exports sessions in Markdown format
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session *internal.ChatSession, w io.Writer) error {
	doc := NewDocument(session)

	_, _ = fmt.Fprintf(w, "# %s\n\n", escapeMarkdown(doc.Title))
	_, _ = fmt.Fprintf(w, "**Session:** %s  \n", doc.ID)
	if !doc.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(doc.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range doc.Messages {
		timestamp := ""
		if !msg.Timestamp.IsZero() {
			timestamp = fmt.Sprintf(" (%s)", msg.Timestamp.Format("2006-01-02 15:04:05"))
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", msg.Role, timestamp, escapeMarkdown(msg.Content))

		for _, a := range msg.Attachments {
			if a.DownloadURL != "" {
				_, _ = fmt.Fprintf(w, "- 📎 [%s](%s)\n", a.Name, a.DownloadURL)
			} else {
				_, _ = fmt.Fprintf(w, "- 📎 %s\n", a.Name)
			}
		}
		if len(msg.Attachments) > 0 {
			_, _ = fmt.Fprintln(w)
		}

		for _, table := range msg.Tables {
			writeTable(w, table)
		}

		if msg.Confirmation != nil && msg.Confirmation.Awaiting {
			_, _ = fmt.Fprintf(w, "> ⏸ Awaiting confirmation (plan %s)\n\n", msg.Confirmation.PlanID)
		}

		if i < len(doc.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

func writeTable(w io.Writer, t internal.Table) {
	if len(t.Headers) == 0 {
		return
	}
	if t.Title != "" {
		_, _ = fmt.Fprintf(w, "**%s**\n\n", escapeMarkdown(t.Title))
	}
	_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(escapeCells(t.Headers), " | "))
	_, _ = fmt.Fprintf(w, "|%s\n", strings.Repeat(" --- |", len(t.Headers)))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		_, _ = fmt.Fprintf(w, "| %s |\n", strings.Join(escapeCells(cells), " | "))
	}
	_, _ = fmt.Fprintln(w)
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.ReplaceAll(strings.ReplaceAll(c, "|", "\\|"), "\n", " ")
	}
	return out
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	// Basic escaping - preserve code blocks
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
