package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nmehta/loanassist/internal/backend"
	"github.com/nmehta/loanassist/internal/config"
	"github.com/nmehta/loanassist/internal/orchestrator"
	"github.com/nmehta/loanassist/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive loan application session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

func runChat() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file instead of stderr.
	logger, closeLog, err := fileLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	pacing := orchestrator.Pacing{}
	if cfg.Pacing.Enabled {
		pacing = orchestrator.DefaultPacing()
	}

	orch := orchestrator.New(orchestrator.Config{
		Backend:   backend.New(cfg.Backend.BaseURL),
		Pacing:    pacing,
		LetterDir: cfg.Letter.OutputDir,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	p := tea.NewProgram(tui.New(orch), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running chat UI: %w", err)
	}
	return nil
}

func fileLogger(cfg config.Config) (*slog.Logger, func(), error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating data dir: %w", err)
	}
	path := filepath.Join(cfg.Storage.DataDir, "chat.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	return logger, func() { f.Close() }, nil
}
