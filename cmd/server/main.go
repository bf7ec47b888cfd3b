// ai-agent-go - AI chat session server
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/161043261/ai-agent-go/internal/api"
	"github.com/161043261/ai-agent-go/internal/auth"
	"github.com/161043261/ai-agent-go/internal/cache"
	"github.com/161043261/ai-agent-go/internal/chat"
	"github.com/161043261/ai-agent-go/internal/config"
	"github.com/161043261/ai-agent-go/internal/middleware"
	"github.com/161043261/ai-agent-go/internal/model"
	"github.com/161043261/ai-agent-go/internal/store"
)

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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

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

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// The cache/queue backend falls back to in-process when Redis is
	// disabled or unreachable; only a broken fallback is fatal.
	cacheBackend, err := cache.New(cfg.Redis, cfg.CacheTTL)
	if err != nil {
		slog.Error("Failed to initialize cache backend", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := cacheBackend.Close(); closeErr != nil {
			slog.Error("Failed to close cache backend", "error", closeErr)
		}
	}()

	retriever := cache.NewSnippetRetriever(cacheBackend, 3)
	factory := model.NewFactory(cfg.Model, retriever)

	// Initialize services.
	chatService := chat.NewService(repo, cacheBackend, factory)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := chatService.StartPersistence(ctx); err != nil {
		slog.Error("Failed to start persistence pipeline", "error", err)
		os.Exit(1)
	}

	// Rehydrate conversation state; sessions still hydrate lazily on miss.
	if err := chatService.Bootstrap(ctx); err != nil {
		slog.Error("Bootstrap replay failed, continuing with lazy hydration", "error", err)
	}

	// Initialize handlers.
	tokens := auth.NewTokenManager(cfg.JWTSecret)
	userHandler := api.NewUserHandler(repo, tokens)
	sessionHandler := api.NewSessionHandler(chatService)
	fileHandler := api.NewFileHandler(retriever)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	corsOrigins := []string{cfg.FrontendURL}
	if cfg.FrontendURL == "" {
		corsOrigins = []string{"*"}
	}
	r.Use(middleware.CORS(corsOrigins))

	// Public routes.
	userHandler.RegisterRoutes(r)

	// Authenticated chat routes.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokens))
		sessionHandler.RegisterRoutes(r)
		fileHandler.RegisterRoutes(r)
	})

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,                 // 0 = no timeout for SSE support
		IdleTimeout:  120 * time.Second, // 2 minutes for idle connections
	}

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

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
