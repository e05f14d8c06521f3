// NeonNexus Chat - terminal client
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/ashureev/neonnexus-chat/internal/agent"
	"github.com/ashureev/neonnexus-chat/internal/chat"
	"github.com/ashureev/neonnexus-chat/internal/config"
	"github.com/ashureev/neonnexus-chat/internal/tip"
	"github.com/ashureev/neonnexus-chat/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "neonnexus:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	threadFile, err := config.ThreadFile()
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs go to a file.
	logPath := filepath.Join(filepath.Dir(threadFile), "chat.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	threadID, err := tui.LoadOrCreateThreadID(threadFile)
	if err != nil {
		return err
	}
	slog.Info("Starting terminal client", "thread_id", threadID, "agent", cfg.Agent.BaseURL)

	ctx := context.Background()

	agentClient := agent.NewClient(agent.ClientConfig{
		BaseURL: cfg.Agent.BaseURL,
		Timeout: cfg.Agent.Timeout,
	}, logger)

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("init conversation logger: %w", err)
	}
	defer func() { _ = conversationLogger.Close() }()

	var tips tip.Generator
	if cfg.Tip.Enabled {
		gen, err := tip.NewGenAIGenerator(ctx, tip.GenAIConfig{
			Model:    cfg.Tip.Model,
			APIKey:   cfg.Tip.APIKey,
			Project:  cfg.Tip.Project,
			Location: cfg.Tip.Location,
			BaseURL:  cfg.Tip.BaseURL,
		})
		if err != nil {
			slog.Warn("Failed to initialize tip generator, tips will be disabled", "error", err)
		} else {
			tips = gen
		}
	}

	opts := chat.Options{
		Tips:         tips,
		TipDebounce:  cfg.Tip.Debounce,
		TipMinLength: cfg.Tip.MinLength,
		TipTimeout:   cfg.Tip.Timeout,
		Log:          conversationLogger,
		Logger:       logger,
	}

	model := tui.New(tui.Config{
		ThreadFile: threadFile,
		NewController: func(id string) *chat.Controller {
			return chat.NewController(id, agentClient, opts)
		},
		ClearSession: agentClient.ClearSession,
	}, threadID)

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run terminal ui: %w", err)
	}
	return nil
}
