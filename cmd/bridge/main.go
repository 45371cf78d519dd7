package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lmittmann/tint"

	"copier_bridge/internal/api"
	"copier_bridge/internal/auth"
	"copier_bridge/internal/commands"
	"copier_bridge/internal/config"
	"copier_bridge/internal/directory"
	"copier_bridge/internal/httpmiddleware"
	"copier_bridge/internal/ledger"
	"copier_bridge/internal/logging"
	"copier_bridge/internal/middleware"
	"copier_bridge/internal/notify"
	"copier_bridge/internal/reconciler"
	"copier_bridge/internal/runstate"
	"copier_bridge/internal/storage"
	"copier_bridge/internal/telegram"
	"copier_bridge/internal/telegram/handlers"
	"copier_bridge/internal/watermark"
)

func main() {
	bootLogger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{TimeFormat: time.Kitchen}))

	cfg, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.LogFile, slog.LevelDebug)
	if err != nil {
		bootLogger.Error("Failed to open log file", slog.String("path", cfg.LogFile), slog.Any("error", err))
		os.Exit(1)
	}
	defer logCloser.Close()

	logger.Info("=== Copier Bridge ===")

	store, err := storage.New(cfg.DBPath, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	authService := auth.NewService(cfg.JWTSecret, cfg.TokenTTL, cfg.AgentAPIKey)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seedAdmin(ctx, store, authService, cfg, logger); err != nil {
		logger.Error("Failed to seed admin user", slog.Any("error", err))
		os.Exit(1)
	}

	notifier := newNotifier(cfg, logger)

	resolver := directory.New(store, logger)
	state := runstate.New(store, notifier, logger)
	queue := commands.New(store, notifier, logger)

	services := api.Services{
		Ledger:     ledger.New(store, logger),
		Reconciler: reconciler.New(store, resolver, state, logger),
		Commands:   queue,
		State:      state,
		Watermark:  watermark.New(store),
		Directory:  resolver,
	}

	if cfg.CommandTTL > 0 {
		logger.Info("⌛ Command expiry enabled",
			slog.Duration("ttl", cfg.CommandTTL),
			slog.Duration("interval", cfg.SweepInterval))

		go queue.RunExpiry(ctx, cfg.CommandTTL, cfg.SweepInterval)
	}

	if cfg.TelegramCommands {
		startBot(ctx, cfg, store, services, logger)
	}

	var limiter *middleware.RateLimiter
	if cfg.AgentRateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.AgentRateLimit, cfg.AgentRateBurst)
	}

	apiHandler := api.New(store, authService, services, logger)
	router := apiHandler.SetupRouter(limiter)

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("🚀 Server starting...", slog.String("address", cfg.Address))
		logger.Info(fmt.Sprintf("📡 Agent API at http://%s/api/agent", cfg.Address))
		logger.Info(fmt.Sprintf("🏥 Health check at http://%s/health", cfg.Address))

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	logger.Info("✅ Server stopped")
}

// seedAdmin creates the configured operator on first start
func seedAdmin(ctx context.Context, store *storage.Storage, authService *auth.Service, cfg *config.Config, logger *slog.Logger) error {
	exists, err := store.UserExists(ctx, cfg.AdminUsername)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	if cfg.AdminPassword == "" {
		logger.Warn("⚠️  ADMIN_PASSWORD not set, dashboard login is disabled until a user exists",
			slog.String("username", cfg.AdminUsername))

		return nil
	}

	hash, err := authService.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}

	_, err = store.CreateUser(ctx, cfg.AdminUsername, hash)

	return err
}

func newNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if !cfg.TelegramEnabled() {
		logger.Info("🔕 Telegram alerts disabled")
		return notify.Nop{}
	}

	client := httpmiddleware.NewClient(logger, 30*time.Second)

	tg, err := notify.NewTelegram(cfg.TelegramToken, tgbotapi.APIEndpoint, cfg.TelegramChatID, client, logger)
	if err != nil {
		logger.Warn("Failed to start telegram notifier, alerts disabled", slog.Any("error", err))
		return notify.Nop{}
	}

	return tg
}

// startBot runs the operator bot until ctx is done
func startBot(ctx context.Context, cfg *config.Config, store *storage.Storage, services api.Services, logger *slog.Logger) {
	tgService, err := telegram.New(cfg.TelegramToken, tgbotapi.APIEndpoint, httpmiddleware.NewClient(logger, 90*time.Second), logger)
	if err != nil {
		logger.Warn("Failed to start telegram bot, bot commands disabled", slog.Any("error", err))
		return
	}

	handler := handlers.New(store, services.Ledger, services.Commands, services.State, tgService, cfg.TelegramChatID, logger)

	go handler.Run(tgService.GetUpdatesChan())

	go func() {
		<-ctx.Done()
		tgService.StopReceivingUpdates()
	}()

	logger.Info("🤖 Telegram bot commands enabled", slog.Int64("chat_id", cfg.TelegramChatID))
}
