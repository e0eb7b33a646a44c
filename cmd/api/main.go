package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Filora/internal/app"
	"github.com/markdave123-py/Filora/internal/config"
	"github.com/markdave123-py/Filora/internal/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, flush := logger.New(cfg.LogLevel)
	defer flush()

	if err := run(cfg, log); err != nil {
		log.Error("filora stopped with error", zap.Error(err))
		flush()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Handle SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Warn("closing resources", zap.Error(err))
		}
	}()

	if application.Indexer != nil {
		application.Indexer.Start(ctx, cfg.IndexWorkers)
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- application.Server.Start() }()

	log.Info("Filora is running; DB connected and bootstrapped.", zap.String("provider_mode", cfg.ProviderMode))

	select {
	case err := <-serverErr:
		stop()
		if application.Indexer != nil {
			application.Indexer.Wait()
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if application.Indexer != nil {
		application.Indexer.Wait()
	}
	return nil
}
