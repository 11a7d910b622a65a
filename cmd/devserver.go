package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal"
	"github.com/tw1nflame/chat-langchain/internal/devserver"
)

var (
	devserverAddr  string
	devserverToken string
	devserverDB    string
	devserverDelay time.Duration
	devserverEcho  bool
)

// devserverCmd runs the local backend
var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local development backend",
	Long: `Run a development implementation of the chat backend on SQLite.

Replies come from Gemini when gemini_api_key (or GEMINI_API_KEY) is set and
echo the prompt otherwise. Messages starting with "/plan " produce a plan
that waits for approval, with steps separated by ";".

Point the client at it with:
  chat-langchain --api-url http://localhost:8000/api/v1 --token dev chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := devserver.OpenStore(devserverDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				internal.LogWarn("Failed to close database: %v", err)
			}
		}()

		responder, closeResponder, err := newResponder(ctx)
		if err != nil {
			return err
		}
		defer closeResponder()

		if devserverToken == "" {
			internal.LogWarn("No --token set; any bearer token is accepted")
		}
		srv := devserver.NewServer(store, devserver.Options{
			Token:      devserverToken,
			ReplyDelay: devserverDelay,
			Responder:  responder,
		})
		internal.PrintInfo(fmt.Sprintf("Serving %s on %s (database %s)", devserver.APIPrefix, devserverAddr, devserverDB))
		return srv.ListenAndServe(ctx, devserverAddr)
	},
}

func newResponder(ctx context.Context) (devserver.Responder, func(), error) {
	if devserverEcho || cfg.GeminiAPIKey == "" {
		internal.LogInfo("Using echo replies")
		return devserver.EchoResponder{}, func() {}, nil
	}
	gemini, err := devserver.NewGeminiResponder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	internal.LogInfo("Using Gemini model %s", cfg.GeminiModel)
	return gemini, func() {
		if err := gemini.Close(); err != nil {
			internal.LogDebug("Failed to close Gemini client: %v", err)
		}
	}, nil
}

func init() {
	rootCmd.AddCommand(devserverCmd)
	devserverCmd.Flags().StringVar(&devserverAddr, "addr", ":8000", "Listen address")
	devserverCmd.Flags().StringVar(&devserverToken, "accept-token", "", "Bearer token to accept (default: any)")
	devserverCmd.Flags().StringVar(&devserverDB, "db", "devserver.db", "SQLite database path (\":memory:\" for a throwaway one)")
	devserverCmd.Flags().DurationVar(&devserverDelay, "delay", 0, "Delay before each reply")
	devserverCmd.Flags().BoolVar(&devserverEcho, "echo", false, "Echo replies even when a Gemini key is configured")
}
