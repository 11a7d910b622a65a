package cmd

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal"
)

var downloadOut string

// downloadCmd fetches an attachment or table artifact
var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download a file or table from a message",
	Long: `Download an artifact referenced by a message, such as an attachment or a
table export. Relative URLs are resolved against the backend. If the
authenticated download fails the URL is opened in the browser instead.

Use "-o -" to write to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := newApp()
		defer app.Close()

		ref := args[0]
		target := downloadOut
		if target == "" {
			target = downloadName(app.Downloader.ResolveURL(ref))
		}

		var w io.Writer
		if target == "-" {
			w = cmd.OutOrStdout()
		} else {
			f, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			defer func() { _ = f.Close() }()
			w = f
		}

		var n int64
		err := internal.ShowProgress(cmd.Context(), "Downloading "+ref, func() error {
			var fetchErr error
			n, fetchErr = app.Downloader.Fetch(cmd.Context(), ref, w)
			return fetchErr
		})
		if err != nil {
			if target != "-" {
				_ = os.Remove(target)
			}
			return fmt.Errorf("download failed: %w", err)
		}

		if target != "-" {
			internal.PrintSuccess(fmt.Sprintf("Saved %d bytes to %s", n, target))
		}
		return nil
	},
}

// downloadName picks a local file name from the last path segment of u
func downloadName(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "download"
	}
	name := path.Base(parsed.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadOut, "output", "o", "", "Output file (default: name from the URL)")
}
