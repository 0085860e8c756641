// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/storage"
	"github.com/jeranaias/chatstream/internal/util"
)

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage archived conversations",
	}

	var jsonOutput bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List archived conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := storage.NewArchive(archiveDir(a.cfg))
			if err != nil {
				return err
			}
			metas, err := archive.List()
			if err != nil {
				return err
			}
			return printArchiveList(cmd.OutOrStdout(), metas, jsonOutput)
		},
	}
	list.Flags().BoolVar(&jsonOutput, "json", false, "print the list as JSON")

	show := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print an archived conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := storage.NewArchive(archiveDir(a.cfg))
			if err != nil {
				return err
			}
			archived, err := archive.Load(args[0])
			if errors.Is(err, storage.ErrTranscriptNotFound) {
				return fmt.Errorf("no archived conversation %q", args[0])
			}
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), archived.Transcript())
			return nil
		},
	}

	remove := &cobra.Command{
		Use:     "delete <conversation-id>",
		Aliases: []string{"rm"},
		Short:   "Delete an archived conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive, err := storage.NewArchive(archiveDir(a.cfg))
			if err != nil {
				return err
			}
			if err := archive.Delete(args[0]); err != nil {
				if errors.Is(err, storage.ErrTranscriptNotFound) {
					return fmt.Errorf("no archived conversation %q", args[0])
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted "+args[0]))
			return nil
		},
	}

	var (
		format     string
		outputDir  string
		noMetadata bool
	)
	exportCmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Export an archived conversation to Markdown or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := export.DefaultOptions()
			if noMetadata {
				opts = export.Options{}
			}
			exporter, err := export.ForFormat(format, opts)
			if err != nil {
				return err
			}

			archive, err := storage.NewArchive(archiveDir(a.cfg))
			if err != nil {
				return err
			}
			archived, err := archive.Load(args[0])
			if errors.Is(err, storage.ErrTranscriptNotFound) {
				return fmt.Errorf("no archived conversation %q", args[0])
			}
			if err != nil {
				return err
			}

			path, err := export.WriteFile(outputDir, archived, exporter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Exported"), path)
			return nil
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "markdown", "export format (markdown, json)")
	exportCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "output directory")
	exportCmd.Flags().BoolVar(&noMetadata, "no-metadata", false, "omit frontmatter and turn times (markdown)")

	cmd.AddCommand(list, show, remove, exportCmd)
	return cmd
}

func printArchiveList(w io.Writer, metas []storage.ArchiveMeta, jsonOutput bool) error {
	if jsonOutput {
		if metas == nil {
			metas = []storage.ArchiveMeta{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(metas)
	}

	if len(metas) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No archived conversations."))
		return nil
	}
	for _, m := range metas {
		fmt.Fprintf(w, "%s  %s  %3d  %s\n",
			m.ConversationID,
			DimStyle.Render(m.UpdatedAt.Local().Format("2006-01-02 15:04")),
			m.TurnCount,
			util.Preview(m.Summary, 50))
	}
	return nil
}

func printTranscript(w io.Writer, t model.Transcript) {
	for _, turn := range t.Turns() {
		fmt.Fprintln(w, RoleStyle(turn.Role).Render(turn.Role.DisplayName()+":"))
		content := turn.Content
		if turn.Role == model.RoleAgent {
			content = OutcomeStyle(turn.Outcome).Render(content)
			if tag := outcomeTag(turn.Outcome); tag != "" {
				content += " " + tag
			}
		}
		fmt.Fprintln(w, content)
		fmt.Fprintln(w)
	}
}
