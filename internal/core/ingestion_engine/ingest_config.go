package ingestion_engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/Filora/internal/core"
	"github.com/markdave123-py/Filora/internal/models"
)

// IndexConfig tunes the streaming pipeline.
//
// TargetTokens:   approximate tokens per chunk (e.g., 500).
// OverlapTokens:  token overlap between consecutive chunks for context bleed (e.g., 50).
// BatchSize:      how many chunks to embed/write in one batch (e.g., 32).
// MaxFragmentLen: upper bound in bytes for one fragment of extracted text.
// JobTimeout:     budget for indexing one file.
type IndexConfig struct {
	TargetTokens   int
	OverlapTokens  int
	BatchSize      int
	MaxFragmentLen int
	JobTimeout     time.Duration
}

func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		TargetTokens:   500,
		OverlapTokens:  50,
		BatchSize:      32,
		MaxFragmentLen: 2000,
		JobTimeout:     5 * time.Minute,
	}
}

// chunk is the internal representation passed through the pipeline.
//
// Pos:      stable, zero-based position of the chunk inside the file.
// Text:     chunk content (built from one or more fragments).
// TokenCnt: approximate token count (used for batching and overlap math).
type chunk struct {
	Pos      int
	Text     string
	TokenCnt int
}

// chunkStore is the slice of core.DbClient the indexer needs.
type chunkStore interface {
	GetFile(ctx context.Context, id string) (*models.File, error)
	UpdateFileIndexStatus(ctx context.Context, id, status string) error
	ListFileIDsByIndexStatus(ctx context.Context, statuses ...string) ([]string, error)
	InsertFileChunks(ctx context.Context, chunks []models.FileChunk) error
	DeleteFileChunks(ctx context.Context, fileID string) error
}

// FileIndexer turns the extracted text of stored files into embedded chunks:
//
// db:       persistence for files and chunks.
// embedder: embedding provider (Gemini).
// cfg:      runtime tuning knobs for the pipeline.
// jobs:     in-memory queue of file IDs to process.
type FileIndexer struct {
	db       chunkStore
	embedder core.EmbeddingProvider
	cfg      IndexConfig
	logger   *zap.Logger
	jobs     chan string
	wg       sync.WaitGroup

	// closed is shut once the context given to Start is done.
	closed    chan struct{}
	closeOnce sync.Once
}
