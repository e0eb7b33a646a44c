package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/markdave123-py/Filora/internal/core"
	"github.com/markdave123-py/Filora/internal/models"
)

// file ids are UUIDs in storage
const (
	idA       = "0f8fad5b-d9cb-469f-a165-70867728950e"
	idB       = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	idMissing = "6ba7b810-9dad-41d1-80b4-00c04fd430c8"
)

type fakeDB struct {
	mu       sync.Mutex
	files    map[string]*models.File
	chunks   map[string][]models.FileChunk
	usage    map[string]int
	statuses map[string]string

	createErr error
	addErr    error
	searched  []string
}

var _ core.DbClient = (*fakeDB)(nil)

func newFakeDB() *fakeDB {
	return &fakeDB{
		files:    map[string]*models.File{},
		chunks:   map[string][]models.FileChunk{},
		usage:    map[string]int{},
		statuses: map[string]string{},
	}
}

func (d *fakeDB) CreateFile(ctx context.Context, f *models.File) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return d.createErr
	}
	cp := *f
	d.files[f.ID] = &cp
	return nil
}

func (d *fakeDB) GetFile(ctx context.Context, id string) (*models.File, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.files[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (d *fakeDB) GetUserFile(ctx context.Context, userID, id string) (*models.File, error) {
	f, err := d.GetFile(ctx, id)
	if f == nil || err != nil || f.UserID != userID {
		return nil, err
	}
	return f, nil
}

func (d *fakeDB) ListFilesByUser(ctx context.Context, userID string, opts models.FileListOptions) ([]models.File, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var all []models.File
	for _, f := range d.files {
		if f.UserID == userID && strings.HasPrefix(f.MIMEType, opts.TypePrefix) {
			all = append(all, *f)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OriginalName < all[j].OriginalName })
	total := len(all)
	if opts.Offset >= total {
		return []models.File{}, total, nil
	}
	end := min(opts.Offset+opts.Limit, total)
	return all[opts.Offset:end], total, nil
}

func (d *fakeDB) UpdateFileIndexStatus(ctx context.Context, id, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[id] = status
	if f, ok := d.files[id]; ok {
		f.IndexStatus = status
	}
	return nil
}

func (d *fakeDB) ListFileIDsByIndexStatus(ctx context.Context, statuses ...string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for id, f := range d.files {
		if slices.Contains(statuses, f.IndexStatus) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (d *fakeDB) DeleteFile(ctx context.Context, userID, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[id]
	if !ok || f.UserID != userID {
		return fmt.Errorf("file not found: %s", id)
	}
	delete(d.files, id)
	delete(d.chunks, id)
	return nil
}

func (d *fakeDB) InsertFileChunks(ctx context.Context, chunks []models.FileChunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range chunks {
		d.chunks[c.FileID] = append(d.chunks[c.FileID], c)
	}
	return nil
}

func (d *fakeDB) DeleteFileChunks(ctx context.Context, fileID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.chunks, fileID)
	return nil
}

func (d *fakeDB) SearchFileChunks(ctx context.Context, fileID string, queryVec []float32, limit int) ([]models.FileChunk, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.searched = append(d.searched, fileID)
	chunks := d.chunks[fileID]
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

func (d *fakeDB) GetMonthlyUsage(ctx context.Context, userID, month string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.usage[userID+"/"+month], nil
}

func (d *fakeDB) AddUsage(ctx context.Context, userID, month string, tokens int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.addErr != nil {
		return 0, d.addErr
	}
	d.usage[userID+"/"+month] += tokens
	return d.usage[userID+"/"+month], nil
}

func (d *fakeDB) Ping(ctx context.Context) error { return nil }
func (d *fakeDB) Close() error                   { return nil }

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	failKeys  map[string]bool
	deleted   []string
	deleteErr error
}

var _ core.ObjectClient = (*fakeStorage)(nil)

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, types: map[string]string{}, failKeys: map[string]bool{}}
}

func (s *fakeStorage) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.failKeys {
		if strings.HasSuffix(key, k) {
			return "", errors.New("s3 upload failed: access denied")
		}
	}
	s.objects[key] = b
	s.types[key] = contentType
	return "https://" + bucket + ".example/" + key, nil
}

func (s *fakeStorage) DeleteFile(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	delete(s.objects, key)
	return s.deleteErr
}

func (s *fakeStorage) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, errors.New("s3 get failed: no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *fakeStorage) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (q *fakeQueue) Enqueue(ctx context.Context, fileID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, fileID)
	return nil
}

type fakeLLM struct {
	model  string
	answer string
	err    error

	system string
	user   string
}

func (l *fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	l.system, l.user = systemPrompt, userPrompt
	return l.answer, l.err
}

func (l *fakeLLM) Model() string { return l.model }

type fakeEmbedder struct {
	calls int
	err   error
}

func (e *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func incoming(name, mime string, data []byte) IncomingFile {
	return IncomingFile{
		Name:     name,
		MIMEType: mime,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
