// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/chatstream/internal/config"
	"github.com/jeranaias/chatstream/internal/logging"
	"github.com/jeranaias/chatstream/internal/metrics"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0
	// ExitGeneralError indicates a failed command or a failed turn.
	ExitGeneralError = 1
)

// exitCodeErr ends the process with code without printing anything more.
// Commands return it after they have already reported the failure.
type exitCodeErr struct {
	code int
}

func (e exitCodeErr) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func (e exitCodeErr) ExitCode() int {
	return e.code
}

// =============================================================================
// APP STATE
// =============================================================================

// app is the state shared by every command of one invocation. It is filled
// in by the root command's PersistentPreRunE.
type app struct {
	configFlag string
	logLevel   string

	configPath string
	cfg        *config.Config
	logger     *zap.Logger

	metricsServer *http.Server
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(config.Version)
	root.SetArgs(args)
	return exitCode(root.ExecuteContext(ctx), root.ErrOrStderr())
}

// exitCode maps a command error to an exit code, printing it unless it
// carries its own code.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return ExitSuccess
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	fmt.Fprintf(stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
	return ExitGeneralError
}

// NewRootCommand builds the chatstream command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "chatstream",
		Short: "Streaming chat client for SSE completion endpoints",
		Long: `chatstream posts a question to a streaming completion endpoint and
renders the answer as it arrives. Each frame carries the whole answer
so far; [DONE] ends the turn and [ERROR] replaces it with a message.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			a.teardown()
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.configFlag, "config", "", "config file (default ~/.chatstream/config.toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newAskCommand(a),
		newChatCommand(a),
		newVisitorCommand(a),
		newHistoryCommand(a),
		newServeCommand(a),
		newConfigCommand(a),
	)
	return root
}

// setup loads configuration, builds the logger and starts the optional
// metrics endpoint.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.configFlag
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	a.configPath = path
	a.cfg = cfg
	a.logger = logger.With(zap.String("command", cmd.Name()))
	config.SetGlobal(cfg)

	if cfg.Metrics.Enabled {
		a.startMetrics()
	}
	return nil
}

func (a *app) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsServer = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := a.metricsServer
	logger := a.logger
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics endpoint stopped", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}()
	logger.Info("metrics endpoint listening", zap.String("addr", srv.Addr))
}

func (a *app) teardown() {
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsServer.Shutdown(ctx)
		a.metricsServer = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// isStdout reports whether w is the process stdout. Terminal rendering
// only applies there.
func isStdout(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && f == os.Stdout
}
