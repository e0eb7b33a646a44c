package core

import (
	"context"
	"io"

	"github.com/markdave123-py/Filora/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
// Lookups of a single row return (nil, nil) when nothing matches.
type DbClient interface {
	CreateFile(ctx context.Context, file *models.File) error
	GetFile(ctx context.Context, id string) (*models.File, error)
	GetUserFile(ctx context.Context, userID, id string) (*models.File, error)
	ListFilesByUser(ctx context.Context, userID string, opts models.FileListOptions) ([]models.File, int, error)
	UpdateFileIndexStatus(ctx context.Context, id, status string) error
	ListFileIDsByIndexStatus(ctx context.Context, statuses ...string) ([]string, error)
	DeleteFile(ctx context.Context, userID, id string) error

	InsertFileChunks(ctx context.Context, chunks []models.FileChunk) error
	DeleteFileChunks(ctx context.Context, fileID string) error
	SearchFileChunks(ctx context.Context, fileID string, queryVec []float32, limit int) ([]models.FileChunk, error)

	GetMonthlyUsage(ctx context.Context, userID, month string) (int, error)
	AddUsage(ctx context.Context, userID, month string, tokens int) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// ObjectClient defines interactions with S3 or any S3-compatible store.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error

	// GetObjectReader streams an object; the caller closes the body.
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
