// NeonNexus Chat - chat relay server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/neonnexus-chat/internal/agent"
	"github.com/ashureev/neonnexus-chat/internal/api"
	"github.com/ashureev/neonnexus-chat/internal/chat"
	"github.com/ashureev/neonnexus-chat/internal/config"
	"github.com/ashureev/neonnexus-chat/internal/identity"
	"github.com/ashureev/neonnexus-chat/internal/middleware"
	"github.com/ashureev/neonnexus-chat/internal/realtime"
	"github.com/ashureev/neonnexus-chat/internal/store"
	"github.com/ashureev/neonnexus-chat/internal/tip"
	"github.com/ashureev/neonnexus-chat/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

// startupHealthTimeout bounds the agent check so an unreachable host does not
// delay startup by the full agent timeout.
const startupHealthTimeout = 3 * time.Second

type healthChecker interface {
	Health(ctx context.Context) error
}

func checkAgentReachable(ctx context.Context, checker healthChecker, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return checker.Health(ctx)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "agent", cfg.Agent.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	agentClient := agent.NewClient(agent.ClientConfig{
		BaseURL: cfg.Agent.BaseURL,
		Timeout: cfg.Agent.Timeout,
	}, logger)
	if err := checkAgentReachable(ctx, agentClient, startupHealthTimeout); err != nil {
		slog.Warn("Agent is not reachable yet, replies will show connection errors", "error", err)
	}

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Debug("Failed to close conversation logger", "error", closeErr)
		}
	}()

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
			slog.Info("Tip generator initialized", "model", cfg.Tip.Model)
		}
	}
	if tips == nil {
		cfg.Tip.Enabled = false
		slog.Info("Tips disabled")
	}

	// Initialize services.
	registry := chat.NewRegistry(agentClient, chat.Options{
		Tips:         tips,
		TipDebounce:  cfg.Tip.Debounce,
		TipMinLength: cfg.Tip.MinLength,
		TipTimeout:   cfg.Tip.Timeout,
		Log:          conversationLogger,
		Logger:       logger,
	})
	defer registry.CloseAll()

	conns := realtime.NewConnManager()
	defer conns.CloseAll()

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, registry, agentClient, conns, cfg)
	chatHandler := api.NewChatHandler(baseHandler, limiter)
	healthHandler := api.NewHealthHandler(baseHandler)
	wsHandler := realtime.NewChatSocketHandler(registry, conns, cfg.FrontendURL, cfg.IsDevelopment(), cfg.MaxMessageLength)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Routes bound to the device's thread.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Message submissions hold the request open until the agent answers and
	// WebSocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	chat.StartTTLWorker(ctx, registry, repo, cfg.SessionTTL)
	slog.Info("TTL worker started", "session_ttl", cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conns.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
