package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal"
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Long: `List the signed-in user's sessions, newest first.

Sessions that have not been opened yet are shown as previews with the last
message from the listing. Use 'chat-langchain show <id>' to load one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := startApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer app.Close()

		var persisted []internal.ChatSession
		for _, s := range app.Store.List() {
			if s.Persisted() {
				persisted = append(persisted, s)
			}
		}
		displaySessions(cmd.OutOrStdout(), persisted, time.Now())
		return nil
	},
}

func displaySessions(out io.Writer, sessions []internal.ChatSession, now time.Time) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No sessions found"))
		return
	}

	header := headerStyle.Render(fmt.Sprintf("📋 Found %d session(s)", len(sessions)))
	fmt.Fprintln(out, header)
	fmt.Fprintln(out)

	// Use tabwriter for aligned columns with better spacing
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("State")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Created")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))

	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		if r := []rune(title); len(r) > 50 {
			title = string(r[:47]) + "..."
		}

		// a preview only knows its last message, not the count
		messages := dateStyle.Render("—")
		if !s.IsPreview() {
			messages = countStyle.Render(strconv.Itoa(len(s.Messages)))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			idStyle.Render(shortID(s.ServerID)),
			title,
			stateStyle.Render(s.State.String()),
			messages,
			formatCreated(s.CreatedAt, now))
	}

	_ = w.Flush()
	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("💡 Tip: Use the ID (e.g., ")+
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render(sessions[0].ServerID)+
		idStyle.Render(") with `chat-langchain show <id>`"))
}

func formatCreated(t, now time.Time) string {
	if t.IsZero() {
		return dateStyle.Render("—")
	}
	t = t.Local()
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return dateStyle.Render(t.Format("Today 15:04"))
	case diff < 7*24*time.Hour:
		return dateStyle.Render(t.Format("Mon 15:04"))
	case diff < 365*24*time.Hour:
		return dateStyle.Render(t.Format("Jan 02 15:04"))
	default:
		return dateStyle.Render(t.Format("2006-01-02"))
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
}
