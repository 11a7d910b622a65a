package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tw1nflame/chat-langchain/internal"
)

const chatHelp = `Commands:
  /new                 start a new chat
  /list                list sessions
  /use <n|id>          switch to a session from /list
  /attach <path>       attach a file to the next message
  /approve             approve the plan awaiting confirmation
  /cancel              cancel the plan awaiting confirmation
  /delete              delete the current session
  /download <url> [f]  download an artifact
  /refresh             reload the session listing
  /plan <steps>        ask for a plan (steps separated by ";")
  /help                show this help
  /quit                exit`

// chatCmd runs the interactive client
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat interactively",
	Long: `Start an interactive chat. Lines are sent to the current session;
lines starting with "/" are commands (see /help).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := startApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		repl := &chatREPL{
			app:    app,
			in:     bufio.NewScanner(cmd.InOrStdin()),
			out:    out,
			render: newMessageRenderer(internal.IsTerminal() && isStdout(out)),
		}
		return repl.run(cmd.Context())
	},
}

// chatREPL reads commands and messages line by line
type chatREPL struct {
	app     *internal.App
	in      *bufio.Scanner
	out     io.Writer
	render  *messageRenderer
	pending []internal.FileUpload
	listing []internal.ChatSession
}

var errQuit = errors.New("quit")

func (c *chatREPL) run(ctx context.Context) error {
	fmt.Fprintln(c.out, headerStyle.Render("💬 chat-langchain")+" "+idStyle.Render("type /help for commands"))
	c.showActive()

	for {
		fmt.Fprint(c.out, c.prompt())
		if !c.in.Scan() {
			fmt.Fprintln(c.out)
			return c.in.Err()
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}

		var err error
		if strings.HasPrefix(line, "/") {
			err = c.command(ctx, line)
		} else {
			err = c.send(ctx, line)
		}
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(c.out, errorStyle.Render("✗ "+err.Error()))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *chatREPL) prompt() string {
	title := "new chat"
	if s, ok := c.app.Store.Active(); ok && s.Title != "" {
		title = s.Title
		if r := []rune(title); len(r) > 24 {
			title = string(r[:21]) + "..."
		}
	}
	attach := ""
	if len(c.pending) > 0 {
		attach = fmt.Sprintf(" +%d file(s)", len(c.pending))
	}
	return titleStyle.Render(title) + idStyle.Render(attach) + " > "
}

func (c *chatREPL) showActive() {
	s, ok := c.app.Store.Active()
	if !ok || len(s.Messages) == 0 {
		return
	}
	c.render.session(c.out, s, 0)
}

// active returns the current session, starting a new chat when none is active
func (c *chatREPL) active() internal.ChatSession {
	s, ok := c.app.Store.Active()
	if !ok {
		s = c.app.Engine.NewChat()
	}
	return s
}

func (c *chatREPL) send(ctx context.Context, content string) error {
	s := c.active()
	before := len(s.Messages)
	files := c.pending

	var session internal.ChatSession
	err := internal.ShowProgress(ctx, "Waiting for the assistant", func() error {
		var sendErr error
		session, sendErr = c.app.Turns.Send(ctx, s.LocalID, content, files)
		return sendErr
	})
	if errors.Is(err, internal.ErrConfirmationPending) {
		return fmt.Errorf("a plan is awaiting confirmation; use /approve or /cancel")
	}
	if err != nil {
		return err
	}
	c.pending = nil
	printTurn(c.out, session, before)
	return nil
}

func (c *chatREPL) command(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit", "/q":
		return errQuit
	case "/help", "/?":
		fmt.Fprintln(c.out, chatHelp)
	case "/plan":
		// plan requests are messages to the agent
		return c.send(ctx, line)
	case "/new":
		c.app.Engine.NewChat()
		c.pending = nil
		fmt.Fprintln(c.out, successStyle.Render("✓ New chat"))
	case "/list":
		c.list()
	case "/use":
		if len(args) != 1 {
			return fmt.Errorf("usage: /use <n|id>")
		}
		return c.use(ctx, args[0])
	case "/attach":
		if len(args) == 0 {
			return fmt.Errorf("usage: /attach <path>")
		}
		uploads, err := readUploads(args)
		if err != nil {
			return err
		}
		c.pending = append(c.pending, uploads...)
		for _, u := range uploads {
			fmt.Fprintln(c.out, idStyle.Render(fmt.Sprintf("📎 %s (%d bytes) will be sent with the next message", u.Name, len(u.Data))))
		}
	case "/approve", "/cancel":
		return c.resolve(ctx, name == "/approve")
	case "/delete":
		s, ok := c.app.Store.Active()
		if !ok {
			return internal.ErrSessionNotFound
		}
		if err := c.app.Engine.Delete(ctx, s.LocalID); err != nil {
			return err
		}
		fmt.Fprintln(c.out, successStyle.Render("✓ Deleted"))
		c.showActive()
	case "/download":
		if len(args) == 0 || len(args) > 2 {
			return fmt.Errorf("usage: /download <url> [file]")
		}
		return c.download(ctx, args)
	case "/refresh":
		if err := c.app.Engine.Refresh(ctx); err != nil {
			return err
		}
		c.list()
	default:
		return fmt.Errorf("unknown command %s (type /help)", name)
	}
	return nil
}

// list shows server sessions and unsaved local chats that hold messages
func (c *chatREPL) list() {
	active, _ := c.app.Store.Active()
	c.listing = c.listing[:0]
	for _, s := range c.app.Store.List() {
		if s.Persisted() || len(s.Messages) > 0 || s.LocalID == active.LocalID {
			c.listing = append(c.listing, s)
		}
	}
	if len(c.listing) == 0 {
		fmt.Fprintln(c.out, idStyle.Render("No sessions yet"))
		return
	}
	for i, s := range c.listing {
		marker := " "
		if s.LocalID == active.LocalID {
			marker = "*"
		}
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		id := shortID(s.ServerID)
		if !s.Persisted() {
			id = "unsaved"
		}
		fmt.Fprintf(c.out, "%s %2d  %s  %s\n", marker, i+1, title, idStyle.Render(id))
	}
}

func (c *chatREPL) use(ctx context.Context, ref string) error {
	var target internal.ChatSession
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(c.listing) {
		target = c.listing[n-1]
	} else {
		found, err := findSession(c.app, ref)
		if err != nil {
			return err
		}
		target = found
	}
	s, err := c.app.Engine.Select(ctx, target.LocalID)
	if err != nil {
		return err
	}
	c.pending = nil
	c.render.session(c.out, s, 0)
	return nil
}

func (c *chatREPL) resolve(ctx context.Context, approve bool) error {
	s, ok := c.app.Store.Active()
	if !ok {
		return internal.ErrSessionNotFound
	}
	pending, ok := s.AwaitingMessage()
	if !ok {
		return fmt.Errorf("no plan is awaiting confirmation")
	}

	action := "Running plan"
	if !approve {
		action = "Cancelling plan"
	}
	var session internal.ChatSession
	err := internal.ShowProgress(ctx, action, func() error {
		var resolveErr error
		session, resolveErr = c.app.Turns.ResolveConfirmation(ctx, s.LocalID, pending.ID, approve)
		return resolveErr
	})
	if err != nil {
		return err
	}
	for _, msg := range session.Messages {
		if msg.ID == pending.ID {
			c.render.message(c.out, 0, 0, msg)
		}
	}
	return nil
}

func (c *chatREPL) download(ctx context.Context, args []string) error {
	ref := args[0]
	target := downloadName(c.app.Downloader.ResolveURL(ref))
	if len(args) == 2 {
		target = args[1]
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	n, err := c.app.Downloader.Fetch(ctx, ref, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return fmt.Errorf("download failed: %w", err)
	}
	fmt.Fprintln(c.out, successStyle.Render(fmt.Sprintf("✓ Saved %d bytes to %s", n, target)))
	return nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
