// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/chatstream/internal/chat"
	"github.com/jeranaias/chatstream/internal/storage"
)

type askOptions struct {
	jsonOutput     bool
	noMarkdown     bool
	conversationID string
}

// askResult is the --json output of ask.
type askResult struct {
	ConversationID string `json:"conversation_id"`
	Outcome        string `json:"outcome"`
	Answer         string `json:"answer"`
	Error          string `json:"error,omitempty"`
}

func newAskCommand(a *app) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask one question and stream the answer",
		Long: `Ask posts a single question and shows the answer while it streams.
On a terminal the final answer is rendered as markdown. The command
exits with status 1 when the turn does not complete.`,
		Example: `  chatstream ask "What is 2+2?"
  chatstream ask --json --conversation support-42 hello`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&opts.noMarkdown, "no-markdown", false, "print the raw answer while it streams")
	cmd.Flags().StringVar(&opts.conversationID, "conversation", "", "conversation id (default from config, else generated)")
	return cmd
}

func (a *app) runAsk(cmd *cobra.Command, question string, opts *askOptions) error {
	s, err := a.newSession(opts.conversationID)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	show := func(string) {}
	var display progress
	if !opts.jsonOutput {
		display = newProgress(out, cmd.ErrOrStderr(), !opts.noMarkdown)
		show = display.update
	}

	turn, err := runTurn(ctx, s.coord, question, show)
	if err != nil {
		return err
	}
	if display != nil {
		display.finish(turn)
	}
	a.archiveTranscript(s)

	failed := s.coord.LastOutcome() != chat.StateDone
	if opts.jsonOutput {
		result := askResult{
			ConversationID: s.conversationID,
			Outcome:        turn.Outcome.String(),
			Answer:         turn.Content,
		}
		if err := s.coord.LastError(); err != nil {
			result.Error = err.Error()
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	if failed {
		return exitCodeErr{code: ExitGeneralError}
	}
	return nil
}

// archiveTranscript saves the session's transcript. Failures are logged;
// the turn itself already succeeded or failed on its own.
func (a *app) archiveTranscript(s *session) {
	archive, err := storage.NewArchive(archiveDir(a.cfg))
	if err == nil {
		err = archive.Save(s.conversationID, s.coord.Transcript())
	}
	if err != nil {
		a.logger.Warn("failed to archive transcript",
			zap.String("conversation_id", s.conversationID),
			zap.Error(err))
	}
}
