package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Filora/internal/core"
	"github.com/markdave123-py/Filora/internal/core/extraction"
	"github.com/markdave123-py/Filora/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	uploadWorkers   = 4
	thumbnailName   = "thumb.jpg"

	objectCleanupTimeout = 30 * time.Second
)

// BatchProcessor extracts text from a batch of stored uploads.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, files []extraction.UploadedFile) ([]extraction.ExtractionOutcome, error)
}

type indexQueue interface {
	Enqueue(ctx context.Context, fileID string) error
}

// IncomingFile is one part of an upload request.
type IncomingFile struct {
	Name     string
	MIMEType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// UploadResult reports what happened to one IncomingFile. Outcome is nil
// when the file never reached extraction.
type UploadResult struct {
	Name    string                        `json:"name"`
	File    *models.File                  `json:"file,omitempty"`
	Outcome *extraction.ExtractionOutcome `json:"outcome,omitempty"`
	Error   string                        `json:"error,omitempty"`
}

// FileList is one page of a user's files.
type FileList struct {
	Files      []models.File `json:"files"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
}

type FileService struct {
	db        core.DbClient
	storage   core.ObjectClient
	processor BatchProcessor
	indexer   indexQueue
	bucket    string
	workDir   string
	maxBatch  int
	logger    *zap.Logger
}

// NewFileService wires the upload pipeline. indexer may be nil, in which case
// files are stored with index status "skipped".
func NewFileService(db core.DbClient, storage core.ObjectClient, processor BatchProcessor, indexer indexQueue,
	bucket, workDir string, maxBatch int, logger *zap.Logger) *FileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{
		db: db, storage: storage, processor: processor, indexer: indexer,
		bucket: bucket, workDir: workDir, maxBatch: maxBatch, logger: logger,
	}
}

// pendingUpload tracks one part through the upload pipeline.
type pendingUpload struct {
	in        IncomingFile
	fileID    string
	objectKey string
	localPath string
	size      int64
	url       string
	err       error
}

// Upload stores, extracts and records a batch of files. It returns one
// result per input, in input order. Per-file failures are reported in the
// results; the error is reserved for an invalid batch.
func (s *FileService) Upload(ctx context.Context, userID string, files []IncomingFile) ([]UploadResult, error) {
	if len(files) == 0 {
		return nil, extraction.ErrEmptyBatch
	}
	if s.maxBatch > 0 && len(files) > s.maxBatch {
		return nil, fmt.Errorf("%w: %d files (max %d)", extraction.ErrBatchTooLarge, len(files), s.maxBatch)
	}

	pending := make([]*pendingUpload, len(files))
	for i, f := range files {
		id := uuid.NewString()
		pending[i] = &pendingUpload{
			in:        f,
			fileID:    id,
			objectKey: s.objectKey(userID, id, f.Name),
		}
	}
	defer func() {
		for _, p := range pending {
			if p.localPath != "" {
				_ = os.Remove(p.localPath)
			}
		}
	}()

	// spool + store originals
	var g errgroup.Group
	g.SetLimit(uploadWorkers)
	for _, p := range pending {
		g.Go(func() error {
			p.err = s.spoolAndStore(ctx, p)
			if p.err != nil {
				s.logger.Warn("storing upload failed",
					zap.String("user_id", userID), zap.String("file", p.in.Name), zap.Error(p.err))
			}
			return nil
		})
	}
	_ = g.Wait()

	var (
		batch   []extraction.UploadedFile
		batchOf []int
	)
	for i, p := range pending {
		if p.err != nil {
			continue
		}
		batch = append(batch, extraction.UploadedFile{
			Path:         p.localPath,
			MIMEType:     p.in.MIMEType,
			OriginalName: p.in.Name,
			Size:         p.size,
		})
		batchOf = append(batchOf, i)
	}

	results := make([]UploadResult, len(files))
	for i, p := range pending {
		results[i] = UploadResult{Name: p.in.Name}
		if p.err != nil {
			results[i].Error = "could not store file"
		}
	}
	if len(batch) == 0 {
		return results, nil
	}

	outcomes, err := s.processor.ProcessBatch(ctx, batch)
	if err != nil {
		s.cleanupObjects(pending, batchOf)
		return nil, err
	}

	for k, out := range outcomes {
		i := batchOf[k]
		p := pending[i]
		outcome := out
		results[i].Outcome = &outcome

		file, err := s.record(ctx, userID, p, out)
		if err != nil {
			s.logger.Error("recording upload failed",
				zap.String("user_id", userID), zap.String("file_id", p.fileID), zap.Error(err))
			s.deleteObjects(p.objectKey, file.ThumbnailKey)
			results[i].Error = "could not save file metadata"
			continue
		}
		results[i].File = file
	}
	return results, nil
}

// spoolAndStore copies the part to local disk and uploads the original.
func (s *FileService) spoolAndStore(ctx context.Context, p *pendingUpload) error {
	rc, err := p.in.Open()
	if err != nil {
		return fmt.Errorf("open part: %w", err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(s.workDir, "upload-*"+filepath.Ext(safeName(p.in.Name)))
	if err != nil {
		return fmt.Errorf("spool: %w", err)
	}
	p.localPath = tmp.Name()

	n, err := io.Copy(tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("spool: %w", err)
	}
	p.size = n

	f, err := os.Open(p.localPath)
	if err != nil {
		return fmt.Errorf("reopen spool: %w", err)
	}
	defer f.Close()

	url, err := s.storage.UploadFile(ctx, s.bucket, p.objectKey, f, contentTypeOrDefault(p.in.MIMEType))
	if err != nil {
		return err
	}
	p.url = url
	return nil
}

// record stores the thumbnail, inserts the row and schedules indexing. The
// returned file is never nil so callers can clean up its objects.
func (s *FileService) record(ctx context.Context, userID string, p *pendingUpload, out extraction.ExtractionOutcome) (*models.File, error) {
	file := &models.File{
		ID:              p.fileID,
		UserID:          userID,
		OriginalName:    p.in.Name,
		MIMEType:        p.in.MIMEType,
		Size:            p.size,
		ObjectKey:       p.objectKey,
		StorageURL:      p.url,
		Strategy:        string(out.Strategy),
		ExtractedText:   out.ExtractedText,
		ExtractionOK:    out.Success,
		ExtractionError: out.Error,
		IndexStatus:     models.IndexSkipped,
	}
	if out.Success && s.indexer != nil {
		file.IndexStatus = models.IndexPending
	}

	if out.Thumbnail.Generated() {
		key, err := s.storeThumbnail(ctx, p, out.Thumbnail.Path)
		if err != nil {
			s.logger.Warn("storing thumbnail failed", zap.String("file_id", p.fileID), zap.Error(err))
		} else {
			file.ThumbnailKey = key
		}
	}

	if err := s.db.CreateFile(ctx, file); err != nil {
		return file, err
	}

	if file.IndexStatus == models.IndexPending {
		if err := s.indexer.Enqueue(ctx, file.ID); err != nil {
			s.logger.Warn("could not schedule indexing", zap.String("file_id", file.ID), zap.Error(err))
			if err := s.db.UpdateFileIndexStatus(context.WithoutCancel(ctx), file.ID, models.IndexFailed); err == nil {
				file.IndexStatus = models.IndexFailed
			}
		}
	}
	return file, nil
}

func (s *FileService) storeThumbnail(ctx context.Context, p *pendingUpload, localPath string) (string, error) {
	defer os.Remove(localPath)

	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := path.Join(path.Dir(p.objectKey), thumbnailName)
	if _, err := s.storage.UploadFile(ctx, s.bucket, key, f, "image/jpeg"); err != nil {
		return "", err
	}
	return key, nil
}

// List returns a page of the user's files, newest first. typePrefix filters
// on the MIME type ("image/", "application/pdf").
func (s *FileService) List(ctx context.Context, userID string, page, limit int, typePrefix string) (*FileList, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	files, total, err := s.db.ListFilesByUser(ctx, userID, models.FileListOptions{
		Offset:     (page - 1) * limit,
		Limit:      limit,
		TypePrefix: strings.ToLower(strings.TrimSpace(typePrefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return &FileList{
		Files:      files,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

func (s *FileService) Get(ctx context.Context, userID, id string) (*models.File, error) {
	if !validFileID(id) {
		return nil, ErrNotFound
	}
	f, err := s.db.GetUserFile(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if f == nil {
		return nil, ErrNotFound
	}
	return f, nil
}

// Delete removes the file's objects, then its row and chunks. Object
// storage errors are logged and do not block the delete.
func (s *FileService) Delete(ctx context.Context, userID, id string) error {
	f, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	s.deleteObjects(f.ObjectKey, f.ThumbnailKey)
	if err := s.db.DeleteFile(ctx, userID, id); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	s.logger.Info("file deleted", zap.String("user_id", userID), zap.String("file_id", id))
	return nil
}

// Open streams the stored original, or its thumbnail when thumbnail is set.
// The caller closes the reader.
func (s *FileService) Open(ctx context.Context, userID, id string, thumbnail bool) (io.ReadCloser, *models.File, error) {
	f, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	key := f.ObjectKey
	if thumbnail {
		if !f.HasThumbnail() {
			return nil, nil, ErrNotFound
		}
		key = f.ThumbnailKey
	}
	rc, err := s.storage.GetObjectReader(ctx, s.bucket, key)
	if err != nil {
		return nil, nil, fmt.Errorf("open object: %w", err)
	}
	return rc, f, nil
}

func (s *FileService) deleteObjects(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), objectCleanupTimeout)
	defer cancel()
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.storage.DeleteFile(ctx, s.bucket, key); err != nil {
			s.logger.Warn("deleting object failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// cleanupObjects drops the originals of a batch that never got recorded.
func (s *FileService) cleanupObjects(pending []*pendingUpload, idx []int) {
	for _, i := range idx {
		s.deleteObjects(pending[i].objectKey)
	}
}

// objectKey creates a consistent S3 key layout.
func (s *FileService) objectKey(userID, fileID, filename string) string {
	return path.Join("users", userID, "files", fileID, safeName(filename))
}

// safeName strips path components and whitespace from a client file name.
func safeName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(strings.TrimSpace(name))
	name = strings.TrimLeft(name, ".")
	name = strings.Join(strings.Fields(name), "_")
	if name == "" || name == "/" {
		return "file"
	}
	return name
}

func contentTypeOrDefault(ct string) string {
	if strings.TrimSpace(ct) == "" {
		return "application/octet-stream"
	}
	return ct
}

// validFileID reports whether id can name a file row. Ids are UUIDs, so
// anything else cannot match and must not reach the database.
func validFileID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// IsBatchError reports whether err rejects the whole upload batch.
func IsBatchError(err error) bool {
	return errors.Is(err, extraction.ErrEmptyBatch) || errors.Is(err, extraction.ErrBatchTooLarge)
}
