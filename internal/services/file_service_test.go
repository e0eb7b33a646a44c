package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/markdave123-py/Filora/internal/core/extraction"
	"github.com/markdave123-py/Filora/internal/models"
)

type fileServiceFixture struct {
	svc     *FileService
	db      *fakeDB
	storage *fakeStorage
	queue   *fakeQueue
	workDir string
}

func newFileServiceFixture(t *testing.T, withIndexer bool) *fileServiceFixture {
	t.Helper()
	work := t.TempDir()
	reg := extraction.NewRegistry(nil, work)
	proc := extraction.NewProcessor(reg, extraction.NewThumbnailGenerator(work, zap.NewNop()),
		extraction.ProcessorConfig{Workers: 2, MaxBatchFiles: 5}, zap.NewNop())

	f := &fileServiceFixture{db: newFakeDB(), storage: newFakeStorage(), queue: &fakeQueue{}, workDir: work}
	var q indexQueue
	if withIndexer {
		q = f.queue
	}
	f.svc = NewFileService(f.db, f.storage, proc, q, "bucket", work, 5, zap.NewNop())
	return f
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func assertWorkDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 0 {
		t.Errorf("work dir should be empty, found %v", names)
	}
}

func TestUploadStoresExtractsAndRecords(t *testing.T) {
	fx := newFileServiceFixture(t, true)
	ctx := context.Background()

	results, err := fx.svc.Upload(ctx, "user-1", []IncomingFile{
		incoming("notes.txt", "text/plain", []byte("meeting at noon")),
		incoming("broken.pdf", "application/pdf", []byte("not a pdf")),
		incoming("photo.png", "image/png", pngBytes(t, 300, 200)),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	txt := results[0]
	if txt.Name != "notes.txt" || txt.Error != "" || txt.File == nil {
		t.Fatalf("text result = %+v", txt)
	}
	if !txt.Outcome.Success || txt.File.ExtractedText != "meeting at noon" {
		t.Errorf("text outcome = %+v", txt.Outcome)
	}
	if txt.File.IndexStatus != models.IndexPending {
		t.Errorf("text index status = %q, want pending", txt.File.IndexStatus)
	}
	wantKey := "users/user-1/files/" + txt.File.ID + "/notes.txt"
	if txt.File.ObjectKey != wantKey {
		t.Errorf("object key = %q, want %q", txt.File.ObjectKey, wantKey)
	}
	if got := string(fx.storage.objects[wantKey]); got != "meeting at noon" {
		t.Errorf("stored original = %q", got)
	}
	if txt.File.Size != int64(len("meeting at noon")) {
		t.Errorf("size = %d", txt.File.Size)
	}

	pdf := results[1]
	if pdf.File == nil || pdf.Outcome.Success || pdf.File.ExtractionOK {
		t.Fatalf("pdf result = %+v", pdf)
	}
	if !strings.HasPrefix(pdf.File.ExtractionError, "PDF processing failed") {
		t.Errorf("pdf error = %q", pdf.File.ExtractionError)
	}
	if pdf.File.IndexStatus != models.IndexSkipped {
		t.Errorf("pdf index status = %q, want skipped", pdf.File.IndexStatus)
	}

	img := results[2]
	if img.File == nil || !img.File.HasThumbnail() {
		t.Fatalf("image result = %+v", img)
	}
	if want := "users/user-1/files/" + img.File.ID + "/thumb.jpg"; img.File.ThumbnailKey != want {
		t.Errorf("thumbnail key = %q, want %q", img.File.ThumbnailKey, want)
	}
	if fx.storage.types[img.File.ThumbnailKey] != "image/jpeg" {
		t.Errorf("thumbnail content type = %q", fx.storage.types[img.File.ThumbnailKey])
	}

	if len(fx.queue.ids) != 1 || fx.queue.ids[0] != txt.File.ID {
		t.Errorf("enqueued %v, want only the text file", fx.queue.ids)
	}
	if len(fx.db.files) != 3 {
		t.Errorf("recorded %d files, want 3", len(fx.db.files))
	}
	assertWorkDirEmpty(t, fx.workDir)
}

func TestUploadStorageFailureIsPerFile(t *testing.T) {
	fx := newFileServiceFixture(t, false)
	fx.storage.failKeys["secret.txt"] = true

	results, err := fx.svc.Upload(context.Background(), "u", []IncomingFile{
		incoming("secret.txt", "text/plain", []byte("x")),
		incoming("public.txt", "text/plain", []byte("y")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if results[0].Error == "" || results[0].File != nil || results[0].Outcome != nil {
		t.Errorf("failed result = %+v", results[0])
	}
	if results[1].Error != "" || results[1].File == nil {
		t.Errorf("second result = %+v", results[1])
	}
	if results[1].File.IndexStatus != models.IndexSkipped {
		t.Errorf("without an indexer status = %q, want skipped", results[1].File.IndexStatus)
	}
	assertWorkDirEmpty(t, fx.workDir)
}

func TestUploadOpenFailure(t *testing.T) {
	fx := newFileServiceFixture(t, false)
	bad := IncomingFile{Name: "gone.txt", MIMEType: "text/plain", Open: func() (io.ReadCloser, error) {
		return nil, errors.New("part vanished")
	}}

	results, err := fx.svc.Upload(context.Background(), "u", []IncomingFile{bad})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if results[0].Error == "" {
		t.Errorf("result = %+v, want error", results[0])
	}
}

func TestUploadMetadataFailureRemovesObjects(t *testing.T) {
	fx := newFileServiceFixture(t, false)
	fx.db.createErr = errors.New("db down")

	results, err := fx.svc.Upload(context.Background(), "u", []IncomingFile{
		incoming("a.png", "image/png", pngBytes(t, 40, 40)),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if results[0].Error == "" || results[0].File != nil {
		t.Errorf("result = %+v", results[0])
	}
	if keys := fx.storage.keys(); len(keys) != 0 {
		t.Errorf("objects left behind: %v", keys)
	}
	assertWorkDirEmpty(t, fx.workDir)
}

func TestUploadEnqueueFailureMarksFailed(t *testing.T) {
	fx := newFileServiceFixture(t, true)
	fx.queue.err = context.DeadlineExceeded

	results, err := fx.svc.Upload(context.Background(), "u", []IncomingFile{
		incoming("a.txt", "text/plain", []byte("a")),
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := results[0].File.IndexStatus; got != models.IndexFailed {
		t.Errorf("index status = %q, want failed", got)
	}
}

func TestUploadRejectsInvalidBatches(t *testing.T) {
	fx := newFileServiceFixture(t, false)

	if _, err := fx.svc.Upload(context.Background(), "u", nil); !errors.Is(err, extraction.ErrEmptyBatch) || !IsBatchError(err) {
		t.Errorf("empty batch err = %v", err)
	}

	var many []IncomingFile
	for range 6 {
		many = append(many, incoming("a.txt", "text/plain", []byte("a")))
	}
	if _, err := fx.svc.Upload(context.Background(), "u", many); !errors.Is(err, extraction.ErrBatchTooLarge) || !IsBatchError(err) {
		t.Errorf("oversized batch err = %v", err)
	}
	if len(fx.storage.keys()) != 0 {
		t.Error("nothing should be stored for a rejected batch")
	}
}

func TestListPaginates(t *testing.T) {
	fx := newFileServiceFixture(t, false)
	for _, name := range []string{"a.txt", "b.txt", "c.png", "d.txt"} {
		mime := "text/plain"
		if strings.HasSuffix(name, ".png") {
			mime = "image/png"
		}
		fx.db.files[name] = &models.File{ID: name, UserID: "u", OriginalName: name, MIMEType: mime}
	}
	fx.db.files["other"] = &models.File{ID: "other", UserID: "someone-else", OriginalName: "z.txt", MIMEType: "text/plain"}

	list, err := fx.svc.List(context.Background(), "u", 2, 3, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list.Total != 4 || list.TotalPages != 2 || list.Page != 2 || list.Limit != 3 {
		t.Errorf("list meta = %+v", list)
	}
	if len(list.Files) != 1 || list.Files[0].OriginalName != "d.txt" {
		t.Errorf("page 2 = %+v", list.Files)
	}

	list, err = fx.svc.List(context.Background(), "u", 0, 0, " Image/ ")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list.Total != 1 || list.Page != 1 || list.Limit != defaultPageSize {
		t.Errorf("filtered list = %+v", list)
	}

	list, _ = fx.svc.List(context.Background(), "u", 1, 1000, "")
	if list.Limit != maxPageSize {
		t.Errorf("limit = %d, want capped at %d", list.Limit, maxPageSize)
	}
}

func TestGetDeleteAndOpenAreScopedToOwner(t *testing.T) {
	fx := newFileServiceFixture(t, false)
	ctx := context.Background()

	results, err := fx.svc.Upload(ctx, "owner", []IncomingFile{incoming("pic.png", "image/png", pngBytes(t, 64, 64))})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	id := results[0].File.ID

	if _, err := fx.svc.Get(ctx, "intruder", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get by another user err = %v, want ErrNotFound", err)
	}
	if err := fx.svc.Delete(ctx, "intruder", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete by another user err = %v, want ErrNotFound", err)
	}

	rc, f, err := fx.svc.Open(ctx, "owner", id, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if f.OriginalName != "pic.png" || len(data) == 0 {
		t.Errorf("Open returned %q with %d bytes", f.OriginalName, len(data))
	}

	rc, _, err = fx.svc.Open(ctx, "owner", id, true)
	if err != nil {
		t.Fatalf("Open thumbnail: %v", err)
	}
	rc.Close()

	fx.storage.deleteErr = errors.New("transient")
	if err := fx.svc.Delete(ctx, "owner", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fx.storage.deleted) != 2 {
		t.Errorf("deleted objects %v, want original and thumbnail", fx.storage.deleted)
	}
	if _, err := fx.svc.Get(ctx, "owner", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
}

func TestOpenThumbnailMissing(t *testing.T) {
	fx := newFileServiceFixture(t, false)
	fx.db.files[idA] = &models.File{ID: idA, UserID: "u", ObjectKey: "k"}
	if _, _, err := fx.svc.Open(context.Background(), "u", idA, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open thumbnail err = %v, want ErrNotFound", err)
	}
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	fx := newFileServiceFixture(t, false)
	ctx := context.Background()
	// the fake would happily return a row for any key; the id check must
	// reject these before the store is asked
	for _, id := range []string{"not-a-uuid", "", "123", "0f8fad5b-d9cb-469f-a165-70867728950"} {
		fx.db.files[id] = &models.File{ID: id, UserID: "u", ObjectKey: "k"}

		if _, err := fx.svc.Get(ctx, "u", id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) err = %v, want ErrNotFound", id, err)
		}
		if err := fx.svc.Delete(ctx, "u", id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete(%q) err = %v, want ErrNotFound", id, err)
		}
		if _, _, err := fx.svc.Open(ctx, "u", id, false); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"Q3 report final.xlsx", "Q3_report_final.xlsx"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\notes.txt`, "notes.txt"},
		{".env", "env"},
		{"", "file"},
		{"   ", "file"},
		{"/", "file"},
	}
	for _, tt := range tests {
		if got := safeName(tt.in); got != tt.want {
			t.Errorf("safeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := filepath.Ext(safeName("scan.JPEG")); got != ".JPEG" {
		t.Errorf("extension = %q", got)
	}
}
