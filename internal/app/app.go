package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Filora/internal/api/handlers"
	"github.com/markdave123-py/Filora/internal/config"
	db "github.com/markdave123-py/Filora/internal/core/database"
	"github.com/markdave123-py/Filora/internal/core/extraction"
	"github.com/markdave123-py/Filora/internal/core/extraction/tesseract"
	"github.com/markdave123-py/Filora/internal/core/ingestion_engine"
	"github.com/markdave123-py/Filora/internal/core/llm"
	objectclient "github.com/markdave123-py/Filora/internal/core/object-client"
	"github.com/markdave123-py/Filora/internal/services"
)

const startupTimeout = 2 * time.Minute

type App struct {
	DBClient  *db.DatabaseClient
	Providers *llm.Providers
	// Indexer is nil when no embedder is configured.
	Indexer ingestion_engine.Indexer
	Server  *Server

	logger *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	if err := os.MkdirAll(cfg.WorkDir, 0o750); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	dbClient, err := db.NewDatabaseClient(appCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, logger)
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}
	logger.Info("object client initialized and ready", zap.String("bucket", cfg.BucketName))

	providers, err := llm.NewProvider(appCtx, cfg, logger)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("couldn't initialize the language model: %w", err)
	}

	registry := extraction.NewRegistry(tesseract.NewRecognizer(cfg.OCRLanguage), cfg.WorkDir)
	processor := extraction.NewProcessor(
		registry,
		extraction.NewThumbnailGenerator(cfg.WorkDir, logger),
		extraction.ProcessorConfig{
			Workers:       cfg.ExtractWorkers,
			MaxBatchFiles: cfg.MaxBatchFiles,
			Timeout:       cfg.ExtractTimeout,
			RemoveSources: true,
		},
		logger,
	)

	a := &App{DBClient: dbClient, Providers: providers, logger: logger}
	if providers.Embedder != nil {
		a.Indexer = ingestion_engine.NewFileIndexer(dbClient, providers.Embedder, ingestion_engine.DefaultIndexConfig(), logger)
	}

	fileSvc := services.NewFileService(dbClient, objClient, processor, a.Indexer, cfg.BucketName, cfg.WorkDir, cfg.MaxBatchFiles, logger)
	assistantSvc := services.NewAssistantService(dbClient, providers.LLM, providers.Embedder, cfg.MonthlyTokenLimit, logger)

	a.Server = NewServer(cfg, Handlers{
		Files:  handlers.NewFileHandler(fileSvc, cfg.MaxUploadBytes(), logger),
		AI:     handlers.NewAIHandler(assistantSvc, logger),
		Health: handlers.NewHealthHandler(dbClient, logger),
	}, logger)

	return a, nil
}

// Close releases the model clients and the database pool.
func (a *App) Close() error {
	var errs []error
	if a.Providers != nil {
		errs = append(errs, a.Providers.Close())
	}
	if a.DBClient != nil {
		errs = append(errs, a.DBClient.Close())
	}
	return errors.Join(errs...)
}
