package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/markdave123-py/Filora/internal/models"
	"github.com/markdave123-py/Filora/internal/services"
)

const (
	uploadField = "files"
	// multipartMemory is how much of a form is buffered in memory before
	// parts spill to temp files.
	multipartMemory = 8 << 20
)

type fileService interface {
	Upload(ctx context.Context, userID string, files []services.IncomingFile) ([]services.UploadResult, error)
	List(ctx context.Context, userID string, page, limit int, typePrefix string) (*services.FileList, error)
	Get(ctx context.Context, userID, id string) (*models.File, error)
	Delete(ctx context.Context, userID, id string) error
	Open(ctx context.Context, userID, id string, thumbnail bool) (io.ReadCloser, *models.File, error)
}

type FileHandler struct {
	files          fileService
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewFileHandler(files fileService, maxUploadBytes int64, logger *zap.Logger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{files: files, maxUploadBytes: maxUploadBytes, logger: logger}
}

type uploadResponse struct {
	Results   []services.UploadResult `json:"results"`
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
}

// Upload accepts a multipart batch under the "files" field. It answers 200
// with one result per part even when some of them failed.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, `no files in form field "files"`)
		return
	}

	incoming := make([]services.IncomingFile, 0, len(headers))
	for _, fh := range headers {
		incoming = append(incoming, incomingFromHeader(fh))
	}

	results, err := h.files.Upload(r.Context(), uid, incoming)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := uploadResponse{Results: results}
	for _, res := range results {
		if res.Error == "" && res.Outcome != nil && res.Outcome.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func incomingFromHeader(fh *multipart.FileHeader) services.IncomingFile {
	return services.IncomingFile{
		Name:     fh.Filename,
		MIMEType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// List answers GET /files?page=&limit=&type=. Extracted text is left out of
// listings; fetch a single file for it.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := queryInt(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be a number")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a number")
		return
	}

	list, err := h.files.List(r.Context(), uid, page, limit, q.Get("type"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if list.Files == nil {
		list.Files = []models.File{}
	}
	for i := range list.Files {
		list.Files[i].ExtractedText = ""
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	f, err := h.files.Get(r.Context(), uid, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.files.Delete(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Download streams the stored original.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, false)
}

// Thumbnail streams the JPEG thumbnail of an image upload.
func (h *FileHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, true)
}

func (h *FileHandler) stream(w http.ResponseWriter, r *http.Request, thumbnail bool) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	rc, f, err := h.files.Open(r.Context(), uid, chi.URLParam(r, "id"), thumbnail)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	defer rc.Close()

	if thumbnail {
		w.Header().Set("Content-Type", "image/jpeg")
	} else {
		w.Header().Set("Content-Type", f.MIMEType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.OriginalName))
		if f.Size > 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("streaming object failed", zap.String("file_id", f.ID), zap.Error(err))
	}
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
