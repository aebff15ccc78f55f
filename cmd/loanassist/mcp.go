package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/nmehta/loanassist/internal/backend"
	"github.com/nmehta/loanassist/internal/config"
	"github.com/nmehta/loanassist/internal/mcpserver"
	"github.com/nmehta/loanassist/internal/orchestrator"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the loan workflow as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// stdout belongs to the MCP transport; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	// Tool calls are synchronous, so no pacing delays between steps.
	orch := orchestrator.New(orchestrator.Config{
		Backend:   backend.New(cfg.Backend.BaseURL),
		LetterDir: cfg.Letter.OutputDir,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go orch.Run(ctx)

	mcpSrv := mcpserver.New(mcpserver.Deps{Orchestrator: orch})
	stdioSrv := server.NewStdioServer(mcpSrv)
	logger.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
