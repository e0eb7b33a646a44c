// Package tesseract binds the OCR stage of the extraction pipeline to the
// Tesseract engine through gosseract. It needs libtesseract at build time.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/markdave123-py/Filora/internal/core/extraction"
)

var _ extraction.Recognizer = (*Recognizer)(nil)

// Recognizer creates one Tesseract client per call; clients are not safe to
// share between goroutines.
type Recognizer struct {
	languages []string
}

func NewRecognizer(languages ...string) *Recognizer {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &Recognizer{languages: languages}
}

func (r *Recognizer) Recognize(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.languages...); err != nil {
		return "", fmt.Errorf("tesseract language: %w", err)
	}
	// automatic page segmentation, keep spacing between words; the engine
	// mode is left to the installed traineddata
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return "", fmt.Errorf("tesseract page mode: %w", err)
	}
	if err := client.SetVariable("preserve_interword_spaces", "1"); err != nil {
		return "", fmt.Errorf("tesseract variable: %w", err)
	}

	if err := client.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("tesseract image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}
