// Lunch picker LINE bot server.
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

	"github.com/ashureev/lunch-picker/internal/api"
	"github.com/ashureev/lunch-picker/internal/app"
	"github.com/ashureev/lunch-picker/internal/bot"
	"github.com/ashureev/lunch-picker/internal/config"
	"github.com/ashureev/lunch-picker/internal/conversation"
	"github.com/ashureev/lunch-picker/internal/line"
	"github.com/ashureev/lunch-picker/internal/middleware"
	"github.com/ashureev/lunch-picker/internal/scheduler"
	"github.com/ashureev/lunch-picker/internal/session"
	"github.com/ashureev/lunch-picker/internal/transcript"
	"github.com/ashureev/lunch-picker/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
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
	if err := cfg.RequireServerCredentials(); err != nil {
		slog.Error("Missing credentials", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "timezone", cfg.TimeZone)

	// Initialize dependencies.
	core, err := app.NewCore(cfg, nil)
	if err != nil {
		slog.Error("Failed to initialize core", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := core.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := core.Repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	sessions, closeSessions, err := newSessionStore(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer closeSessions()

	machine := conversation.NewMachine(sessions, core.Recommender, core.Recorder,
		conversation.WithWindowDays(cfg.History.WindowDays),
		conversation.WithVenueLookup(core.Repo),
		conversation.WithLogger(logger))

	lineClient, err := line.NewClient(cfg.LINE.AccessToken)
	if err != nil {
		slog.Error("Failed to initialize LINE client", "error", err)
		os.Exit(1)
	}
	lunchBot := bot.New(machine, core.Catalog, lineClient, cfg.LINE.AdminUserID, bot.WithLogger(logger))
	if cfg.LINE.AdminUserID == "" {
		slog.Info("USER_ID_ADMIN not set, new-venue notifications will not be pushed")
	}

	journal, err := transcript.New(transcript.Config{
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	if journal != nil {
		defer func() { _ = journal.Close() }()
		lunchBot.SetTranscript(journal)
		slog.Info("Dialogue transcript enabled", "dir", cfg.Transcript.Dir)
	}

	// Initialize handlers.
	webhook := line.NewWebhook(lunchBot, lineClient, cfg.LINE.ChannelSecret, line.WithLogger(logger))
	adminHandler := api.NewAdminHandler(api.NewHandler(core.Repo), lunchBot, core.Recommender, core.Recorder, cfg.History.WindowDays)
	if cfg.Admin.Token == "" {
		slog.Info("ADMIN_TOKEN not set, admin endpoints disabled")
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	webhook.Routes(r)

	r.Group(func(r chi.Router) {
		r.Use(middleware.CORS(cfg.Admin.AllowedOrigins))
		adminHandler.RegisterRoutes(r, middleware.AdminToken(cfg.Admin.Token))
	})

	r.Handle("/*", web.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start background workers.
	sweeperDone := session.StartSweeper(ctx, sessions, cfg.Session.SweepInterval)

	syncJob := func(ctx context.Context) error {
		_, err := lunchBot.RunScheduledSync(ctx)
		return err
	}
	daily, err := scheduler.New("catalog-sync", cfg.Sync.Cron, syncJob,
		scheduler.WithLocation(cfg.Location()),
		scheduler.WithLogger(logger))
	if err != nil {
		slog.Error("Failed to initialize sync scheduler", "error", err)
		os.Exit(1)
	}
	schedulerDone := daily.Start(ctx)

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

	for _, done := range []<-chan struct{}{sweeperDone, schedulerDone} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			slog.Warn("Background worker did not stop before shutdown deadline")
		}
	}

	slog.Info("Server stopped successfully")
}

// newSessionStore selects Redis when REDIS_ADDR is set, otherwise an
// in-process store.
func newSessionStore(cfg *config.Config, logger *slog.Logger) (session.Store, func(), error) {
	if cfg.Redis.Addr == "" {
		slog.Info("Using in-memory session store", "ttl", cfg.Session.TTL)
		return session.NewMemoryStore(cfg.Session.TTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	slog.Info("Using Redis session store", "addr", cfg.Redis.Addr, "ttl", cfg.Session.TTL)
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Error("Failed to close redis client", "error", err)
		}
	}
	return session.NewRedisStore(client, cfg.Session.TTL, session.WithLogger(logger)), closeFn, nil
}
