package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check configuration, credentials and backend reachability",
	Long: `Check the health of chat-langchain by verifying:
  • Config path detection
  • Config file and backend URL
  • Cached or configured credential
  • Backend reachability
  • Session listing

Pass --verbose for paths and per-session detail.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		fmt.Fprintln(out, sectionStyle.Render("🔍 Chat LangChain Health Check"))
		fmt.Fprintln(out)

		// Step 1: Detect config paths
		fmt.Fprintln(out, infoStyle.Render("Step 1: Detecting config paths..."))
		paths, err := internal.DetectConfigPaths()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to detect config paths:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render("✅ Config paths detected"))
		if verbose {
			fmt.Fprintf(out, "   Config dir: %s\n", paths.ConfigDir)
			fmt.Fprintf(out, "   Cache dir: %s\n", cfg.CacheDir)
		}
		fmt.Fprintln(out)

		// Step 2: Config file
		fmt.Fprintln(out, infoStyle.Render("Step 2: Checking configuration..."))
		switch {
		case configPath != "":
			fmt.Fprintln(out, successStyle.Render("✅ Using config file "+configPath))
		case paths.ConfigExists():
			fmt.Fprintln(out, successStyle.Render("✅ Config file found"))
			if verbose {
				fmt.Fprintf(out, "   File: %s\n", paths.ConfigFile)
			}
		default:
			fmt.Fprintln(out, warningStyle.Render("⚠️  No config file, using defaults and environment"))
			if verbose {
				fmt.Fprintf(out, "   Expected: %s\n", paths.ConfigFile)
			}
		}
		fmt.Fprintf(out, "   API: %s\n", cfg.APIURL)
		if cfg.UseSupabase() {
			fmt.Fprintf(out, "   Sign-in: Supabase (%s)\n", cfg.SupabaseURL)
		} else {
			fmt.Fprintln(out, "   Sign-in: bearer token")
		}
		fmt.Fprintln(out)

		app := newApp()
		defer app.Close()

		// Step 3: Credential
		fmt.Fprintln(out, infoStyle.Render("Step 3: Checking credential..."))
		session, err := app.Auth.CurrentSession(ctx)
		signedIn := err == nil && session != nil
		switch {
		case err != nil:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Credential unavailable:"), err)
		case session == nil:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Not signed in"))
			fmt.Fprintln(out, "   Run 'chat-langchain login --token <token>' to sign in")
		default:
			fmt.Fprintln(out, successStyle.Render("✅ Signed in"))
			if verbose {
				fmt.Fprintf(out, "   Token: %s\n", internal.RedactToken(session.AccessToken))
				if session.User.Email != "" {
					fmt.Fprintf(out, "   User: %s\n", session.User.Email)
				}
				if !session.ExpiresAt.IsZero() {
					fmt.Fprintf(out, "   Expires: %s\n", session.ExpiresAt.Local().Format("2006-01-02 15:04"))
				}
			}
		}
		fmt.Fprintln(out)

		// Step 4: Backend reachability
		fmt.Fprintln(out, infoStyle.Render("Step 4: Contacting backend..."))
		reachable := app.Client.Health(ctx) == nil
		if reachable {
			fmt.Fprintln(out, successStyle.Render("✅ Backend reachable"))
		} else {
			fmt.Fprintln(out, errorStyle.Render("❌ Backend unreachable at "+cfg.APIURL))
		}
		fmt.Fprintln(out)

		// Step 5: Sessions
		sessionCount := 0
		listed := false
		fmt.Fprintln(out, infoStyle.Render("Step 5: Listing sessions..."))
		switch {
		case !reachable:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Skipped, backend unreachable"))
		case !signedIn:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Skipped, not signed in"))
		default:
			summaries, err := app.Client.ListSessions(ctx)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render("❌ Failed to list sessions:"), err)
				break
			}
			listed = true
			sessionCount = len(summaries)
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Found %d session(s)", sessionCount)))
			if verbose {
				for i, s := range summaries {
					if i == 5 {
						fmt.Fprintf(out, "   ... and %d more\n", len(summaries)-5)
						break
					}
					title := s.Title
					if title == "" {
						title = "Untitled"
					}
					fmt.Fprintf(out, "   [%d] %s (ID: %s)\n", i+1, title, shortID(s.ID))
				}
			}
		}
		fmt.Fprintln(out)

		// Summary
		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)

		switch {
		case listed:
			fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
			fmt.Fprintln(out, successStyle.Render("   • Backend: Reachable"))
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("   • Sessions: %d found", sessionCount)))
			return nil
		case reachable:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Backend reachable but sessions could not be listed"))
			fmt.Fprintln(out, "   • Check the credential with 'chat-langchain login'")
			return nil
		default:
			fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			fmt.Fprintln(out, "   • The backend did not answer")
			fmt.Fprintln(out, "   • Set api_url in the config or pass --api-url")
			return fmt.Errorf("health check failed: backend unreachable")
		}
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
