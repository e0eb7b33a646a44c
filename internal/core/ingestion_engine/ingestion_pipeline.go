package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Filora/internal/core"
	"github.com/markdave123-py/Filora/internal/models"
)

// ErrQueueClosed is returned by Enqueue once the workers have shut down.
var ErrQueueClosed = errors.New("indexer: queue closed")

// NewFileIndexer constructs the indexer with a bounded job queue (64).
func NewFileIndexer(db chunkStore, emb core.EmbeddingProvider, cfg IndexConfig, logger *zap.Logger) *FileIndexer {
	def := DefaultIndexConfig()
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = def.TargetTokens
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxFragmentLen <= 0 {
		cfg.MaxFragmentLen = def.MaxFragmentLen
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileIndexer{
		db: db, embedder: emb, cfg: cfg, logger: logger,
		jobs:   make(chan string, 64),
		closed: make(chan struct{}),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel until ctx
// is cancelled. Files left pending or mid-index by an earlier run are
// queued again once the workers are up.
func (i *FileIndexer) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	go func() {
		<-ctx.Done()
		i.closeOnce.Do(func() { close(i.closed) })
	}()
	for w := 1; w <= numWorkers; w++ {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			for {
				select {
				case <-ctx.Done():
					i.logger.Debug("index worker shutting down", zap.Int("worker", w))
					return
				case fileID := <-i.jobs:
					start := time.Now()
					if err := i.processOne(ctx, fileID); err != nil {
						i.logger.Error("indexing failed",
							zap.String("file_id", fileID), zap.Int("worker", w), zap.Error(err))
						continue
					}
					i.logger.Info("file indexed",
						zap.String("file_id", fileID), zap.Int("worker", w), zap.Duration("elapsed", time.Since(start)))
				}
			}
		}()
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.requeueStale(ctx)
	}()
}

// requeueStale enqueues files whose indexing never finished. It runs
// alongside the workers so a backlog larger than the queue does not block.
func (i *FileIndexer) requeueStale(ctx context.Context) {
	ids, err := i.db.ListFileIDsByIndexStatus(ctx, models.IndexPending, models.IndexIndexing)
	if err != nil {
		i.logger.Error("listing unfinished files failed", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}
	i.logger.Info("requeueing unfinished files", zap.Int("count", len(ids)))
	for _, id := range ids {
		if err := i.Enqueue(ctx, id); err != nil {
			i.logger.Warn("requeue stopped", zap.String("file_id", id), zap.Error(err))
			return
		}
	}
}

// Wait blocks until every worker started by Start has returned.
func (i *FileIndexer) Wait() {
	i.wg.Wait()
}

// Enqueue schedules a file for indexing, blocking while the queue is full.
func (i *FileIndexer) Enqueue(ctx context.Context, fileID string) error {
	select {
	case <-i.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case i.jobs <- fileID:
		return nil
	case <-i.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", fileID, ctx.Err())
	}
}

// processOne streams, chunks, embeds and persists a single file's text.
func (i *FileIndexer) processOne(ctx context.Context, fileID string) error {
	proctx, cancel := context.WithTimeout(ctx, i.cfg.JobTimeout)
	defer cancel()

	file, err := i.db.GetFile(proctx, fileID)
	if err != nil {
		return fmt.Errorf("load file: %w", err)
	}
	if file == nil {
		return fmt.Errorf("file not found: %s", fileID)
	}
	if !file.ExtractionOK {
		return i.db.UpdateFileIndexStatus(proctx, fileID, models.IndexSkipped)
	}

	if err := i.db.UpdateFileIndexStatus(proctx, fileID, models.IndexIndexing); err != nil {
		return fmt.Errorf("mark indexing: %w", err)
	}
	// Re-indexing replaces any earlier chunks.
	if err := i.db.DeleteFileChunks(proctx, fileID); err != nil {
		i.markFailed(fileID)
		return fmt.Errorf("clear chunks: %w", err)
	}

	g, gctx := errgroup.WithContext(proctx)

	// text -> fragments
	fragCh := i.streamExtract(gctx, g, strings.NewReader(file.ExtractedText), i.cfg.MaxFragmentLen)
	// fragments -> chunks
	chunkCh := i.streamChunk(gctx, g, fragCh, i.cfg.TargetTokens, i.cfg.OverlapTokens)
	// chunks -> embed + persist
	var written int
	g.Go(func() error {
		n, err := i.embedAndPersist(gctx, fileID, chunkCh, i.cfg.BatchSize)
		written = n
		return err
	})

	if err := g.Wait(); err != nil {
		i.markFailed(fileID)
		return err
	}

	i.logger.Debug("chunks written", zap.String("file_id", fileID), zap.Int("chunks", written))
	return i.db.UpdateFileIndexStatus(proctx, fileID, models.IndexReady)
}

// markFailed records the failure even when the job's context is already done.
func (i *FileIndexer) markFailed(fileID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := i.db.UpdateFileIndexStatus(ctx, fileID, models.IndexFailed); err != nil {
		i.logger.Warn("could not mark file as failed", zap.String("file_id", fileID), zap.Error(err))
	}
}
