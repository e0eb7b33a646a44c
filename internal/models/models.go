package models

import (
	"time"
)

// Index states of a file's chunk embeddings.
const (
	IndexPending  = "pending"
	IndexIndexing = "indexing"
	IndexReady    = "ready"
	IndexFailed   = "failed"
	IndexSkipped  = "skipped" // extraction failed or no embedder configured
)

// File is one uploaded file together with the text extracted from it.
type File struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"user_id"`
	OriginalName    string    `db:"original_name" json:"original_name"`
	MIMEType        string    `db:"mime_type" json:"mime_type"`
	Size            int64     `db:"size" json:"size"`
	ObjectKey       string    `db:"object_key" json:"-"`
	ThumbnailKey    string    `db:"thumbnail_key" json:"-"`
	StorageURL      string    `db:"storage_url" json:"storage_url"`
	Strategy        string    `db:"strategy" json:"strategy"`
	ExtractedText   string    `db:"extracted_text" json:"extracted_text,omitempty"`
	ExtractionOK    bool      `db:"extraction_ok" json:"extraction_ok"`
	ExtractionError string    `db:"extraction_error" json:"extraction_error,omitempty"`
	IndexStatus     string    `db:"index_status" json:"index_status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// HasThumbnail reports whether a preview was stored for the file.
func (f *File) HasThumbnail() bool {
	return f.ThumbnailKey != ""
}

// FileChunk represents one text chunk of a file's extracted text.
type FileChunk struct {
	ID         string    `db:"id" json:"id"`
	FileID     string    `db:"file_id" json:"file_id"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	Position   int       `db:"position" json:"position"`
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// FileListOptions pages through a user's files. TypePrefix filters on the
// start of the MIME type, e.g. "image/".
type FileListOptions struct {
	Offset     int
	Limit      int
	TypePrefix string
}

// MonthlyUsage is the approximate token count a user spent with the
// assistant in one calendar month ("2006-01").
type MonthlyUsage struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Month     string    `db:"month" json:"month"`
	Tokens    int       `db:"tokens" json:"tokens"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
