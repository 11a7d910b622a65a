package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal"
)

var (
	verbose    bool
	configPath string
	apiURL     string
	apiToken   string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// cfg is loaded once per invocation before any subcommand runs
var cfg internal.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chat-langchain",
	Short: "Chat with the LangChain data agent from the terminal",
	Long: `A terminal client for the LangChain data-analysis agent.

Sessions live on the backend. The client lists them as previews, loads the
full history when a session is opened, and keeps optimistic local state in
step with the server while a turn is in flight. Plans that need approval
are shown in place and can be approved or cancelled.

Quick Start:
  chat-langchain login --token <token>    # Store a bearer token
  chat-langchain chat                     # Interactive chat
  chat-langchain list                     # List sessions
  chat-langchain show <session-id>        # Show one session
  chat-langchain export --all --format md # Export everything as Markdown
  chat-langchain devserver                # Run a local development backend`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := internal.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if apiURL != "" {
			loaded.APIURL = apiURL
		}
		if apiToken != "" {
			loaded.Token = apiToken
		}
		cfg = loaded

		if level, ok := internal.ParseLogLevel(cfg.LogLevel); ok {
			internal.SetLogLevel(level)
		} else {
			internal.LogWarn("Unknown log level %q, using info", cfg.LogLevel)
		}
		if verbose {
			internal.SetVerbose(true)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	defer internal.SyncLogger()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: detected per OS)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "Bearer token (overrides config and cached login)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
