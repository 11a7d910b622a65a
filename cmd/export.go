package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal"
	"github.com/tw1nflame/chat-langchain/internal/export"
)

var (
	format    string
	outputDir string
	sessionID string
	exportAll bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export sessions to file",
	Long: `Export chat sessions to various formats (jsonl, md, yaml, json).

Export one session with --session, or every session with --all. Previews
are loaded in full before they are written, a few at a time.
Use 'chat-langchain list' to see available session IDs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (sessionID == "") == !exportAll {
			return fmt.Errorf("exactly one of --session or --all is required")
		}

		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		app, err := startApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx := cmd.Context()
		var sessions []internal.ChatSession
		steps := []internal.ProgressStep{
			{
				Message: "Loading session history",
				Fn: func() error {
					if sessionID != "" {
						target, err := findSession(app, sessionID)
						if err != nil {
							return err
						}
						s, err := app.Engine.Select(ctx, target.LocalID)
						if err != nil {
							return err
						}
						sessions = []internal.ChatSession{s}
						return nil
					}
					if err := app.Engine.PrefetchAll(ctx, cfg.PrefetchLimit); err != nil {
						return err
					}
					for _, s := range app.Store.List() {
						if s.Persisted() {
							sessions = append(sessions, s)
						}
					}
					return nil
				},
			},
			{
				Message: "Preparing output directory",
				Fn: func() error {
					if err := os.MkdirAll(outputDir, 0755); err != nil {
						return fmt.Errorf("failed to create output directory: %w", err)
					}
					return nil
				},
			},
		}
		if err := internal.ShowProgressWithSteps(ctx, steps); err != nil {
			return err
		}

		exported := 0
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d session(s) to %s", len(sessions), outputDir), func() error {
			for i := range sessions {
				session := &sessions[i]
				if session.IsPreview() {
					internal.LogWarn("Session %s is still a preview; exporting its last message only", session.ServerID)
				}
				path := filepath.Join(outputDir, fmt.Sprintf("session_%s.%s", session.ServerID, exporter.Extension()))

				if err := writeExport(exporter, format, session, path); err != nil {
					internal.LogError("%v", err)
					if sessionID != "" {
						return err
					}
					continue
				}
				exported++
			}
			return nil
		})
		if err != nil {
			return err
		}

		internal.PrintSuccess(fmt.Sprintf("Export complete: %d session(s) exported to %s", exported, outputDir))
		return nil
	},
}

// writeExport writes one session to path
func writeExport(exporter export.Exporter, format string, session *internal.ChatSession, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := exporter.Export(session, file); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().StringVar(&sessionID, "session", "", "Export a specific session by ID")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every session")
}
