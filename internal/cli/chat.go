// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/chatstream/internal/chat"
	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/locale"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/util"
)

// =============================================================================
// INPUT
// =============================================================================

// inputReader reads one line of user input per call. io.EOF ends the REPL.
type inputReader interface {
	ReadInput(prompt string) (string, error)
	Close()
}

// lineEditor provides input history and line editing for interactive chat.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor(historyFile string) *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	e := &lineEditor{line: line, historyFile: historyFile}
	e.loadHistory()
	return e
}

func (e *lineEditor) loadHistory() {
	if f, err := os.Open(e.historyFile); err == nil {
		e.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with arrow-key history navigation. Ctrl+C at the
// prompt ends the session like Ctrl+D.
func (e *lineEditor) ReadInput(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists input history with owner-only permissions.
func (e *lineEditor) saveHistory() {
	if err := os.MkdirAll(filepath.Dir(e.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	e.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (e *lineEditor) Close() {
	e.saveHistory()
	e.line.Close()
}

// lineScanner reads plain lines, for piped input.
type lineScanner struct {
	scanner *bufio.Scanner
}

func (s *lineScanner) ReadInput(string) (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *lineScanner) Close() {}

// =============================================================================
// COMMAND
// =============================================================================

type chatOptions struct {
	conversationID string
	noMarkdown     bool
}

func newChatCommand(a *app) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Chat reads questions line by line and streams each answer.
Ctrl+C cancels the answer in progress; Ctrl+C or Ctrl+D at the prompt
ends the session. Type /help for the session commands.

Locale and channel changes in the config file apply to the next turn.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.conversationID, "conversation", "", "conversation id (default from config, else generated)")
	cmd.Flags().BoolVar(&opts.noMarkdown, "no-markdown", false, "print raw answers while they stream")
	return cmd
}

// repl is one interactive chat session.
type repl struct {
	app      *app
	out      io.Writer
	errOut   io.Writer
	input    inputReader
	markdown bool

	mu      sync.Mutex
	session *session
}

func (a *app) runChat(cmd *cobra.Command, opts *chatOptions) error {
	s, err := a.newSession(opts.conversationID)
	if err != nil {
		return err
	}

	r := &repl{
		app:      a,
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
		markdown: !opts.noMarkdown,
		session:  s,
	}
	defer func() { r.current().Close() }()

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && f == os.Stdin && IsTTY() {
		r.input = newLineEditor(filepath.Join(filepath.Dir(a.configPath), "chat_history"))
	} else {
		r.input = &lineScanner{scanner: bufio.NewScanner(in)}
	}
	defer r.input.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	r.watchConfig(ctx)
	r.handleInterrupts(ctx)

	r.printWelcome()
	return r.loop(ctx)
}

func (r *repl) current() *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// handleInterrupts cancels the active turn on Ctrl+C. While the prompt is
// showing liner owns the terminal and Ctrl+C never reaches here.
func (r *repl) handleInterrupts(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				r.current().coord.CancelActive()
			}
		}
	}()
}

// watchConfig applies locale and channel edits to the running session.
func (r *repl) watchConfig(ctx context.Context) {
	logger := r.app.logger
	err := config.Watch(ctx, r.app.configPath, func(cfg *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed; keeping previous settings", zap.Error(err))
			return
		}
		config.SetGlobal(cfg)

		coord := r.current().coord
		coord.SetCatalog(locale.For(cfg.Locale))
		coord.SetChannel(cfg.Endpoint.Channel)
		logger.Info("config reloaded",
			zap.String("locale", cfg.Locale),
			zap.String("channel", cfg.Endpoint.Channel))
	})
	if err != nil {
		logger.Debug("config watch unavailable", zap.Error(err))
	}
}

func (r *repl) loop(ctx context.Context) error {
	prompt := PromptStyle.Render("chatstream> ")
	for {
		input, err := r.input.ReadInput(prompt)
		if errors.Is(err, io.EOF) {
			r.printExitSummary()
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		switch {
		case input == "":
			continue
		case strings.EqualFold(input, "exit"), strings.EqualFold(input, "quit"):
			r.printExitSummary()
			return nil
		case strings.HasPrefix(input, "//"):
			// Escaped: send the text with one slash removed.
			input = input[1:]
		case strings.HasPrefix(input, "/"):
			if !r.handleSlashCommand(input) {
				r.printExitSummary()
				return nil
			}
			continue
		}

		if err := r.ask(ctx, input); err != nil {
			fmt.Fprintf(r.errOut, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}
}

// ask runs one turn and archives the transcript.
func (r *repl) ask(ctx context.Context, input string) error {
	s := r.current()
	display := newProgress(r.out, r.errOut, r.markdown)

	turn, err := runTurn(ctx, s.coord, input, display.update)
	if err != nil {
		return err
	}
	display.finish(turn)
	r.app.archiveTranscript(s)
	return nil
}

// handleSlashCommand runs a session command and reports whether the REPL
// should continue.
func (r *repl) handleSlashCommand(input string) bool {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/help", "/?":
		r.printHelp()
	case "/history":
		r.printHistory()
	case "/cancel":
		coord := r.current().coord
		if coord.State() == chat.StateIdle {
			fmt.Fprintln(r.out, DimStyle.Render("No answer in progress."))
		} else {
			coord.CancelActive()
		}
	case "/new":
		r.newConversation()
	case "/quit", "/exit", "/q":
		return false
	default:
		fmt.Fprintf(r.out, "%s unknown command %s (try /help)\n", WarningStyle.Render("[?]"), fields[0])
	}
	return true
}

// newConversation replaces the session with one under a fresh id.
func (r *repl) newConversation() {
	next, err := r.app.newSession(uuid.NewString())
	if err != nil {
		fmt.Fprintf(r.errOut, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		return
	}
	// Carry over settings reloaded since startup.
	if cfg := config.Global(); cfg != nil {
		next.coord.SetCatalog(locale.For(cfg.Locale))
		next.coord.SetChannel(cfg.Endpoint.Channel)
	}

	r.mu.Lock()
	prev := r.session
	r.session = next
	r.mu.Unlock()

	if err := prev.Close(); err != nil {
		r.app.logger.Warn("failed to close previous session", zap.Error(err))
	}
	fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render("New conversation:"), next.conversationID)
}

// =============================================================================
// OUTPUT
// =============================================================================

func (r *repl) printWelcome() {
	s := r.current()
	fmt.Fprintln(r.out, TitleStyle.Render("chatstream")+" "+DimStyle.Render(config.Version))
	fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render("Endpoint:    "), r.app.cfg.Endpoint.URL)
	fmt.Fprintf(r.out, "%s %s\n", LabelStyle.Render("Conversation:"), s.conversationID)
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, Ctrl+C cancels an answer."))
	fmt.Fprintln(r.out)
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, TitleStyle.Render("Commands"))
	fmt.Fprintln(r.out, "  /help      Show this help")
	fmt.Fprintln(r.out, "  /history   Show the conversation so far")
	fmt.Fprintln(r.out, "  /cancel    Cancel the answer in progress")
	fmt.Fprintln(r.out, "  /new       Start a new conversation")
	fmt.Fprintln(r.out, "  /quit      End the session")
	fmt.Fprintln(r.out, "  //text     Send text that starts with /")
}

func (r *repl) printHistory() {
	t := r.current().coord.Transcript()
	if t.IsEmpty() {
		fmt.Fprintln(r.out, DimStyle.Render("No turns yet."))
		return
	}
	width := GetTerminalWidth() - 16
	for _, turn := range t.Turns() {
		label := RoleStyle(turn.Role).Render(fmt.Sprintf("%-9s", turn.Role.DisplayName()+":"))
		line := util.Preview(turn.Content, width)
		if tag := outcomeTag(turn.Outcome); tag != "" && turn.Role == model.RoleAgent {
			line += " " + OutcomeStyle(turn.Outcome).Render(tag)
		}
		fmt.Fprintf(r.out, "%s %s\n", label, line)
	}
}

func (r *repl) printExitSummary() {
	s := r.current()
	turns := s.coord.Transcript().Len() / 2
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, RenderSeparator(40))
	fmt.Fprintf(r.out, "%s %d question(s) in conversation %s\n",
		LabelStyle.Render("Session:"), turns, s.conversationID)
}
