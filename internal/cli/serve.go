// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/chatstream/internal/server"
)

func newServeCommand(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local development backend",
		Long: `Serve runs a local backend that speaks the streaming protocol. It
answers integer arithmetic and echoes everything else word by word.

Queries starting with a directive exercise the failure paths:
  /status <code>   answer with that HTTP status
  /error <msg>     stream a partial answer, then an [ERROR] frame
  /drop            stream a partial answer, then close without [DONE]`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}

			srv := server.New(server.Options{
				Addr:       cfg.Addr,
				Path:       cfg.Path,
				RateLimit:  cfg.RateLimit,
				Burst:      cfg.Burst,
				TokenDelay: cfg.TokenDelay(),
				Logger:     a.logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "%s http://%s%s\n",
				SuccessStyle.Render("Serving on"), srv.Addr(), srv.Path())
			fmt.Fprintln(cmd.OutOrStdout(), DimStyle.Render("Press Ctrl+C to stop."))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
