package ingestion_engine

import "context"

// Indexer schedules stored files for chunking and embedding.
type Indexer interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, fileID string) error
	Wait()
}

var _ Indexer = (*FileIndexer)(nil)
