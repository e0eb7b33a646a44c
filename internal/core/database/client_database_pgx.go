package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/Filora/internal/config"
	"github.com/markdave123-py/Filora/internal/core"
	"github.com/markdave123-py/Filora/internal/models"
)

type DatabaseClient struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	logger.Info("connected to postgres")
	return &DatabaseClient{db: db, logger: logger}, nil
}

// buildDSN pins certificate verification when a root cert is configured.
func buildDSN(databaseURL, sslCertPath string) (string, error) {
	if sslCertPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(sslCertPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", sslCertPath, err)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", sslCertPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Files

const fileColumns = `id, user_id, original_name, mime_type, size, object_key, thumbnail_key, storage_url,
	strategy, extracted_text, extraction_ok, extraction_error, index_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(r rowScanner) (*models.File, error) {
	var f models.File
	err := r.Scan(
		&f.ID, &f.UserID, &f.OriginalName, &f.MIMEType, &f.Size, &f.ObjectKey, &f.ThumbnailKey, &f.StorageURL,
		&f.Strategy, &f.ExtractedText, &f.ExtractionOK, &f.ExtractionError, &f.IndexStatus, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *DatabaseClient) CreateFile(ctx context.Context, file *models.File) error {
	if file == nil {
		return errors.New("nil file")
	}
	const q = `
		INSERT INTO files
			(id, user_id, original_name, mime_type, size, object_key, thumbnail_key, storage_url,
			 strategy, extracted_text, extraction_ok, extraction_error, index_status)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`
	return c.db.QueryRowContext(ctx, q,
		file.ID, file.UserID, file.OriginalName, file.MIMEType, file.Size, file.ObjectKey, file.ThumbnailKey, file.StorageURL,
		file.Strategy, file.ExtractedText, file.ExtractionOK, file.ExtractionError, file.IndexStatus,
	).Scan(&file.CreatedAt, &file.UpdatedAt)
}

func (c *DatabaseClient) GetFile(ctx context.Context, id string) (*models.File, error) {
	q := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	f, err := scanFile(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

func (c *DatabaseClient) GetUserFile(ctx context.Context, userID, id string) (*models.File, error) {
	q := `SELECT ` + fileColumns + ` FROM files WHERE id = $1 AND user_id = $2`
	f, err := scanFile(c.db.QueryRowContext(ctx, q, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// ListFilesByUser returns one page of files, newest first, plus the total
// number of files matching the filter.
func (c *DatabaseClient) ListFilesByUser(ctx context.Context, userID string, opts models.FileListOptions) ([]models.File, int, error) {
	pattern := likePrefix(opts.TypePrefix)

	var total int
	const countQ = `SELECT count(*) FROM files WHERE user_id = $1 AND mime_type LIKE $2`
	if err := c.db.QueryRowContext(ctx, countQ, userID, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.File{}, 0, nil
	}

	q := `SELECT ` + fileColumns + `
		FROM files
		WHERE user_id = $1 AND mime_type LIKE $2
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`
	rows, err := c.db.QueryContext(ctx, q, userID, pattern, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []models.File{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *f)
	}
	return out, total, rows.Err()
}

// likePrefix turns a MIME prefix into a LIKE pattern with wildcards escaped.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

func (c *DatabaseClient) UpdateFileIndexStatus(ctx context.Context, id, status string) error {
	const q = `
		UPDATE files
		SET index_status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("file not found: %s", id)
	}
	return nil
}

// ListFileIDsByIndexStatus returns the ids of files in any of the given
// index states, oldest first.
func (c *DatabaseClient) ListFileIDsByIndexStatus(ctx context.Context, statuses ...string) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = st
	}
	q := `SELECT id FROM files WHERE index_status IN (` + strings.Join(placeholders, ", ") + `) ORDER BY created_at, id`

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteFile removes the row; its chunks go with it through the foreign key.
func (c *DatabaseClient) DeleteFile(ctx context.Context, userID, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("file not found: %s", id)
	}
	return nil
}

// Chunks

// InsertFileChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertFileChunks(ctx context.Context, chunks []models.FileChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO file_chunks
			(id, file_id, position, text, embedding, token_count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.FileID, ch.Position, ch.Text, vec, ch.TokenCount); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) DeleteFileChunks(ctx context.Context, fileID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM file_chunks WHERE file_id = $1`, fileID)
	return err
}

// SearchFileChunks finds the top-k chunks of a file closest to a query embedding.
func (c *DatabaseClient) SearchFileChunks(ctx context.Context, fileID string, queryVec []float32, limit int) ([]models.FileChunk, error) {
	const q = `
		SELECT id, file_id, position, text, token_count
		FROM file_chunks
		WHERE file_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <-> $2
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, fileID, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FileChunk
	for rows.Next() {
		var ch models.FileChunk
		if err := rows.Scan(&ch.ID, &ch.FileID, &ch.Position, &ch.Text, &ch.TokenCount); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Usage

func (c *DatabaseClient) GetMonthlyUsage(ctx context.Context, userID, month string) (int, error) {
	var tokens int
	err := c.db.QueryRowContext(ctx,
		`SELECT tokens FROM usage_monthly WHERE user_id = $1 AND month = $2`, userID, month,
	).Scan(&tokens)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return tokens, err
}

// AddUsage increments the month's counter and returns the new total.
func (c *DatabaseClient) AddUsage(ctx context.Context, userID, month string, tokens int) (int, error) {
	const q = `
		INSERT INTO usage_monthly (user_id, month, tokens)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, month)
		DO UPDATE SET tokens = usage_monthly.tokens + EXCLUDED.tokens, updated_at = now()
		RETURNING tokens
	`
	var total int
	if err := c.db.QueryRowContext(ctx, q, userID, month, tokens).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
