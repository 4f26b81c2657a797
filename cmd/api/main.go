package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Trimesters-ai/ester/internal/analysis/temporal"
	"github.com/Trimesters-ai/ester/internal/config"
	"github.com/Trimesters-ai/ester/internal/handler"
	"github.com/Trimesters-ai/ester/internal/model/persona"
	"github.com/Trimesters-ai/ester/internal/service/ai"
	"github.com/Trimesters-ai/ester/internal/service/chat"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		newLogger("").Fatal("failed to load configuration", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("no .env file loaded, using system environment only", zap.Error(envErr))
	}
	if cfg.Source != "" {
		logger.Info("configuration file loaded", zap.String("path", cfg.Source))
	}

	streamer, err := ai.NewStreamer(ctx, cfg.AI, logger)
	if err != nil {
		logger.Fatal("failed to initialize completion backend", zap.Error(err))
	}
	if cfg.AI.Enabled() {
		logger.Info("completion backend initialized", zap.String("provider", cfg.AI.Provider), zap.String("model", cfg.AI.Model))
	} else {
		logger.Warn("no default completion key configured, users must supply their own", zap.String("provider", cfg.AI.Provider))
	}

	opts := []chat.Option{
		chat.WithLocation(cfg.Session.Location),
		chat.WithWelcome(cfg.Session.SeedWelcome),
	}
	if cfg.Session.RelativeDates {
		opts = append(opts, chat.WithDateExtractor(temporal.New(temporal.WithRelative())))
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	chatService := chat.NewService(personaStore, streamer, logger, opts...)

	router := handler.NewRouter(personaStore, chatService, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Ester backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
