// Package extraction turns uploaded files into plain UTF-8 text.
//
// A Processor resolves a Strategy from the declared MIME type, runs the
// matching Extractor and, for images, a thumbnail generator. Every file in a
// batch gets exactly one ExtractionOutcome; extractor failures are recorded in
// the outcome and never abort the rest of the batch.
package extraction

import "context"

// Strategy names the algorithm used to convert one file format into text.
type Strategy string

const (
	StrategyPDF         Strategy = "pdf"
	StrategyWord        Strategy = "word"
	StrategySpreadsheet Strategy = "spreadsheet"
	StrategyPlainText   Strategy = "text"
	StrategyImageOCR    Strategy = "image_ocr"
	StrategyFallback    Strategy = "fallback"
)

// NoTextInImage is returned by the OCR extractor when recognition yields nothing.
const NoTextInImage = "No text found in image"

// UploadedFile is a stored upload handed to the processor exactly once.
type UploadedFile struct {
	Path         string // readable file on local disk
	MIMEType     string // as declared by the client
	OriginalName string
	Size         int64 // informational, not re-validated
}

// SourceInfo echoes the input for logging and persistence.
type SourceInfo struct {
	Name     string `json:"name"`
	MIMEType string `json:"type"`
	Size     int64  `json:"size"`
}

type ThumbnailStatus string

const (
	ThumbnailNone      ThumbnailStatus = "none"
	ThumbnailGenerated ThumbnailStatus = "generated"
	ThumbnailFailed    ThumbnailStatus = "failed"
)

// ThumbnailResult reports the preview for image inputs. Path is set only when
// Status is ThumbnailGenerated; the caller owns the file from then on.
type ThumbnailResult struct {
	Status ThumbnailStatus `json:"status"`
	Path   string          `json:"-"`
}

// Generated reports whether a preview file is available.
func (t ThumbnailResult) Generated() bool {
	return t.Status == ThumbnailGenerated && t.Path != ""
}

// ExtractionOutcome is the per-file result. ExtractedText is never empty: on
// failure it carries a diagnostic, and Error is set iff Success is false.
type ExtractionOutcome struct {
	Success       bool            `json:"success"`
	ExtractedText string          `json:"extracted_text"`
	Error         string          `json:"error,omitempty"`
	Strategy      Strategy        `json:"strategy"`
	Source        SourceInfo      `json:"source"`
	Thumbnail     ThumbnailResult `json:"thumbnail"`
}

// Extractor converts one file format into text.
type Extractor interface {
	Extract(ctx context.Context, file UploadedFile) (string, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(ctx context.Context, file UploadedFile) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, file UploadedFile) (string, error) {
	return f(ctx, file)
}

// Recognizer runs optical character recognition on an image file.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Thumbnailer produces previews; it must never fail the caller.
type Thumbnailer interface {
	Generate(ctx context.Context, file UploadedFile) ThumbnailResult
}
