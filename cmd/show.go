package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal"
)

var limit int

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true).
			Padding(0, 2)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show messages for a specific session",
	Long: `Load and display the full history of one session.

The id may be a full server id, a unique prefix of one, or a local id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := startApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer app.Close()

		target, err := findSession(app, args[0])
		if err != nil {
			return err
		}

		session, err := app.Engine.Select(cmd.Context(), target.LocalID)
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}

		out := cmd.OutOrStdout()
		r := newMessageRenderer(internal.IsTerminal() && isStdout(out))
		r.session(out, session, limit)
		return nil
	},
}

// messageRenderer prints sessions and messages. Content is rendered as
// Markdown with glamour on a terminal and wrapped plain text otherwise.
type messageRenderer struct {
	markdown *glamour.TermRenderer
}

func newMessageRenderer(terminal bool) *messageRenderer {
	r := &messageRenderer{}
	if terminal {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err != nil {
			internal.LogDebug("Markdown rendering unavailable: %v", err)
		} else {
			r.markdown = md
		}
	}
	return r
}

func (r *messageRenderer) session(out io.Writer, session internal.ChatSession, limit int) {
	r.header(out, session)

	messages := session.Messages
	total := len(messages)
	if limit > 0 && limit < total {
		messages = messages[:limit]
	}
	for i, msg := range messages {
		r.message(out, i+1, total, msg)
	}

	if limit > 0 && limit < total {
		fmt.Fprintln(out)
		fmt.Fprintln(out, lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true).
			Render(fmt.Sprintf("... (%d more message(s))", total-limit)))
	}
}

func (r *messageRenderer) header(out io.Writer, session internal.ChatSession) {
	title := session.Title
	if title == "" {
		title = "New chat"
	}
	fmt.Fprintln(out, sessionHeaderStyle.Render(fmt.Sprintf("💬 %s", title)))

	var metaParts []string
	if session.ServerID != "" {
		metaParts = append(metaParts, fmt.Sprintf("ID: %s", session.ServerID))
	}
	if !session.CreatedAt.IsZero() {
		metaParts = append(metaParts, fmt.Sprintf("Created: %s", session.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	metaParts = append(metaParts, fmt.Sprintf("Messages: %d", len(session.Messages)))
	fmt.Fprintln(out, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Fprintln(out)
}

func (r *messageRenderer) message(out io.Writer, index, total int, msg internal.Message) {
	var actorStyle lipgloss.Style
	var actorLabel string

	switch msg.Role {
	case internal.RoleUser:
		actorStyle = userMessageStyle
		actorLabel = "👤 User"
	default:
		actorStyle = assistantMessageStyle
		actorLabel = "🤖 Assistant"
	}

	header := actorStyle.Render(actorLabel)
	if index > 0 {
		header += " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	}
	if !msg.Timestamp.IsZero() {
		header += " " + timestampStyle.Render(msg.Timestamp.Local().Format("15:04:05"))
	}
	if msg.ID != "" && !msg.Synthetic {
		header += " " + idStyle.Render(shortID(msg.ID))
	}
	fmt.Fprintln(out, header)

	content := strings.TrimSpace(msg.Content)
	if content == "" && len(msg.Attachments) == 0 {
		fmt.Fprintln(out, messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	} else if content != "" {
		fmt.Fprintln(out, r.render(content))
	}

	for _, a := range msg.Attachments {
		line := fmt.Sprintf("📎 %s (%d bytes)", a.Name, a.Size)
		if a.DownloadURL != "" {
			line += " " + idStyle.Render(a.DownloadURL)
		}
		fmt.Fprintln(out, messageContentStyle.Render(line))
	}
	for _, t := range msg.Tables {
		fmt.Fprintln(out, messageContentStyle.Render(formatTable(t)))
	}
	for _, c := range msg.Charts {
		title := c.Title
		if title == "" {
			title = "chart"
		}
		fmt.Fprintln(out, messageContentStyle.Render("📈 "+title))
	}
	if msg.AwaitingConfirmation() {
		fmt.Fprintln(out, pendingStyle.Render(fmt.Sprintf(
			"⏸  Awaiting confirmation: chat-langchain confirm <session> %s --approve|--cancel", msg.ID)))
	}

	fmt.Fprintln(out)
}

func (r *messageRenderer) render(content string) string {
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(content); err == nil {
			return strings.TrimRight(rendered, "\n")
		}
	}
	return messageContentStyle.Render(wrapText(content, 80))
}

func formatTable(t internal.Table) string {
	var b strings.Builder
	title := t.Title
	if title == "" {
		title = "table"
	}
	fmt.Fprintf(&b, "📊 %s (%d row(s))", title, len(t.Rows))
	if len(t.Headers) > 0 {
		b.WriteString("\n" + strings.Join(t.Headers, " | "))
	}
	for i, row := range t.Rows {
		if i == 5 {
			fmt.Fprintf(&b, "\n... (%d more row(s))", len(t.Rows)-i)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		b.WriteString("\n" + strings.Join(cells, " | "))
	}
	if t.DownloadURL != "" {
		b.WriteString("\n" + idStyle.Render(t.DownloadURL))
	}
	return b.String()
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		words := strings.Fields(line)
		currentLine := ""
		for _, word := range words {
			switch {
			case currentLine == "":
				currentLine = word
			case len(currentLine)+len(word)+1 > width:
				wrapped = append(wrapped, currentLine)
				currentLine = word
			default:
				currentLine += " " + word
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of messages to show")
}
