package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal"
)

var (
	sendSession string
	sendFiles   []string

	confirmApprove bool
	confirmCancel  bool
)

// sendCmd runs one turn
var sendCmd = &cobra.Command{
	Use:   "send [--session <id>] [--file <path>]... <message>",
	Short: "Send one message and print the reply",
	Long: `Send a message to a session and print the assistant's reply.

Without --session a new chat is started; it is created on the server with
the message as its title. Files given with --file are attached.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		content := strings.Join(args, " ")
		files, err := readUploads(sendFiles)
		if err != nil {
			return err
		}
		if strings.TrimSpace(content) == "" && len(files) == 0 {
			return internal.ErrEmptyMessage
		}

		app, err := startApp(cmd.Context(), sendSession != "")
		if err != nil {
			return err
		}
		defer app.Close()

		var target internal.ChatSession
		if sendSession != "" {
			if target, err = findSession(app, sendSession); err != nil {
				return err
			}
			if target, err = app.Engine.Select(cmd.Context(), target.LocalID); err != nil {
				return err
			}
		} else {
			target = app.Engine.NewChat()
		}

		before := len(target.Messages)
		var session internal.ChatSession
		err = internal.ShowProgress(cmd.Context(), "Waiting for the assistant", func() error {
			var sendErr error
			session, sendErr = app.Turns.Send(cmd.Context(), target.LocalID, content, files)
			return sendErr
		})
		if errors.Is(err, internal.ErrConfirmationPending) {
			pending, _ := session.AwaitingMessage()
			return fmt.Errorf("a plan is awaiting confirmation; run 'chat-langchain confirm %s %s --approve' or '--cancel' first",
				session.ServerID, pending.ID)
		}
		if err != nil {
			return err
		}

		printTurn(cmd.OutOrStdout(), session, before)
		return nil
	},
}

// printTurn prints the messages added after index before
func printTurn(out io.Writer, session internal.ChatSession, before int) {
	r := newMessageRenderer(internal.IsTerminal() && isStdout(out))
	if before > len(session.Messages) {
		before = 0
	}
	added := session.Messages[before:]
	if len(added) == 0 || added[len(added)-1].Role == internal.RoleUser {
		internal.PrintWarning("No reply was received; the session may have been deleted")
		return
	}
	for _, msg := range added {
		if msg.Role == internal.RoleUser {
			continue
		}
		r.message(out, 0, 0, msg)
	}
	if session.ServerID != "" {
		fmt.Fprintln(out, idStyle.Render("Session: "+session.ServerID))
	}
}

// confirmCmd resolves a pending plan
var confirmCmd = &cobra.Command{
	Use:   "confirm <session-id> <message-id> (--approve | --cancel)",
	Short: "Approve or cancel a plan awaiting confirmation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if confirmApprove == confirmCancel {
			return fmt.Errorf("exactly one of --approve or --cancel is required")
		}

		app, err := startApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer app.Close()

		target, err := findSession(app, args[0])
		if err != nil {
			return err
		}
		if target, err = app.Engine.Select(cmd.Context(), target.LocalID); err != nil {
			return err
		}

		messageID := args[1]
		if pending, ok := target.AwaitingMessage(); ok && strings.HasPrefix(pending.ID, messageID) {
			messageID = pending.ID
		}

		action := "Running plan"
		if confirmCancel {
			action = "Cancelling plan"
		}
		var session internal.ChatSession
		err = internal.ShowProgress(cmd.Context(), action, func() error {
			var resolveErr error
			session, resolveErr = app.Turns.ResolveConfirmation(cmd.Context(), target.LocalID, messageID, confirmApprove)
			return resolveErr
		})
		if err != nil {
			return err
		}

		for _, msg := range session.Messages {
			if msg.ID == messageID {
				newMessageRenderer(internal.IsTerminal() && isStdout(cmd.OutOrStdout())).message(cmd.OutOrStdout(), 0, 0, msg)
			}
		}
		return nil
	},
}

// deleteCmd removes a session
var deleteCmd = &cobra.Command{
	Use:     "delete <session-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a session",
	Args:    cobra.ExactArgs(1),
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
		if err := app.Engine.Delete(cmd.Context(), target.LocalID); err != nil {
			return err
		}

		title := target.Title
		if title == "" {
			title = target.ServerID
		}
		internal.PrintSuccess(fmt.Sprintf("Deleted %q", title))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(deleteCmd)

	sendCmd.Flags().StringVarP(&sendSession, "session", "s", "", "Session id (default: start a new chat)")
	sendCmd.Flags().StringArrayVarP(&sendFiles, "file", "f", nil, "File to attach (repeatable)")

	confirmCmd.Flags().BoolVar(&confirmApprove, "approve", false, "Approve and run the plan")
	confirmCmd.Flags().BoolVar(&confirmCancel, "cancel", false, "Cancel the plan")
}
