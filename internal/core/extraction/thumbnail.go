package extraction

import (
	"context"
	"fmt"
	"os"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const (
	thumbnailSize    = 200
	thumbnailQuality = 80
)

// ThumbnailGenerator writes 200x200 cover-cropped JPEG previews for images.
type ThumbnailGenerator struct {
	workDir string
	logger  *zap.Logger
}

func NewThumbnailGenerator(workDir string, logger *zap.Logger) *ThumbnailGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThumbnailGenerator{workDir: workDir, logger: logger}
}

// Generate returns ThumbnailNone for non-image types without touching the
// file. Any error while rendering is logged and reported as ThumbnailFailed.
func (g *ThumbnailGenerator) Generate(ctx context.Context, file UploadedFile) (res ThumbnailResult) {
	if !IsImageMIME(file.MIMEType) {
		return ThumbnailResult{Status: ThumbnailNone}
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("thumbnail generation panicked",
				zap.String("file", file.OriginalName), zap.Any("panic", r))
			res = ThumbnailResult{Status: ThumbnailFailed}
		}
	}()

	path, err := g.render(file.Path)
	if err != nil {
		g.logger.Warn("thumbnail generation failed",
			zap.String("file", file.OriginalName),
			zap.String("mime_type", file.MIMEType),
			zap.Error(err))
		return ThumbnailResult{Status: ThumbnailFailed}
	}
	return ThumbnailResult{Status: ThumbnailGenerated, Path: path}
}

func (g *ThumbnailGenerator) render(src string) (string, error) {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	thumb := imaging.Fill(img, thumbnailSize, thumbnailSize, imaging.Center, imaging.Lanczos)

	out, err := os.CreateTemp(g.workDir, "thumb-*.jpg")
	if err != nil {
		return "", err
	}
	path := out.Name()
	if err := imaging.Encode(out, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("encode: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
