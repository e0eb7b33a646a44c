package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyBatch    = errors.New("extraction: empty batch")
	ErrBatchTooLarge = errors.New("extraction: batch exceeds maximum size")
)

// failureLabels prefix the diagnostic of a failed outcome.
var failureLabels = map[Strategy]string{
	StrategyPDF:         "PDF processing failed",
	StrategyWord:        "Word document processing failed",
	StrategySpreadsheet: "Excel processing failed",
	StrategyPlainText:   "Text file processing failed",
	StrategyImageOCR:    "Image OCR processing failed",
	StrategyFallback:    "File processing failed",
}

// ProcessorConfig tunes batch processing.
//
// Workers:       files processed concurrently within one batch.
// MaxBatchFiles: upper bound on a batch; 0 disables the check.
// Timeout:       per-file budget covering extraction and thumbnailing; 0 disables it.
// RemoveSources: delete each UploadedFile once its outcome is built.
type ProcessorConfig struct {
	Workers       int
	MaxBatchFiles int
	Timeout       time.Duration
	RemoveSources bool
}

// Processor is the ingestion orchestrator. It holds no per-batch state and is
// safe for concurrent use.
type Processor struct {
	registry *Registry
	thumbs   Thumbnailer
	cfg      ProcessorConfig
	logger   *zap.Logger
}

func NewProcessor(registry *Registry, thumbs Thumbnailer, cfg ProcessorConfig, logger *zap.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{registry: registry, thumbs: thumbs, cfg: cfg, logger: logger}
}

// ProcessBatch returns one outcome per file, outcome[i] describing files[i].
// It only fails for a structurally invalid batch; per-file failures are
// reported inside the outcomes.
func (p *Processor) ProcessBatch(ctx context.Context, files []UploadedFile) ([]ExtractionOutcome, error) {
	if len(files) == 0 {
		return nil, ErrEmptyBatch
	}
	if p.cfg.MaxBatchFiles > 0 && len(files) > p.cfg.MaxBatchFiles {
		return nil, fmt.Errorf("%w: %d files (max %d)", ErrBatchTooLarge, len(files), p.cfg.MaxBatchFiles)
	}

	outcomes := make([]ExtractionOutcome, len(files))

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i := range files {
		g.Go(func() error {
			outcomes[i] = p.Process(ctx, files[i])
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, nil
}

// Process runs the pipeline for a single file: detect, extract and, for
// images, thumbnail in parallel with extraction.
func (p *Processor) Process(ctx context.Context, file UploadedFile) ExtractionOutcome {
	start := time.Now()
	strategy := DetectStrategy(file.MIMEType)

	out := ExtractionOutcome{
		Strategy: strategy,
		Source: SourceInfo{
			Name:     file.OriginalName,
			MIMEType: file.MIMEType,
			Size:     file.Size,
		},
		Thumbnail: ThumbnailResult{Status: ThumbnailNone},
	}

	fctx, cancel := p.fileContext(ctx)
	defer cancel()

	var thumbCh chan ThumbnailResult
	if p.thumbs != nil && IsImageMIME(file.MIMEType) {
		thumbCh = make(chan ThumbnailResult, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					thumbCh <- ThumbnailResult{Status: ThumbnailFailed}
				}
			}()
			thumbCh <- p.thumbs.Generate(fctx, file)
		}()
	}

	text, err := p.extract(fctx, strategy, file)

	if thumbCh != nil {
		out.Thumbnail = p.awaitThumbnail(fctx, thumbCh, file)
	}

	if err != nil {
		msg := SanitizeText(failureLabels[strategy] + ": " + err.Error())
		out.Success = false
		out.Error = msg
		out.ExtractedText = "Error processing file: " + msg
		p.logger.Warn("file extraction failed",
			zap.String("file", file.OriginalName),
			zap.String("mime_type", file.MIMEType),
			zap.String("strategy", string(strategy)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	} else {
		text = SanitizeText(text)
		if strings.TrimSpace(text) == "" {
			text = fmt.Sprintf("No text content found in %q", file.OriginalName)
		}
		out.Success = true
		out.ExtractedText = text
		p.logger.Debug("file extracted",
			zap.String("file", file.OriginalName),
			zap.String("strategy", string(strategy)),
			zap.Int("chars", len(text)),
			zap.String("thumbnail", string(out.Thumbnail.Status)),
			zap.Duration("elapsed", time.Since(start)))
	}

	if p.cfg.RemoveSources {
		if err := os.Remove(file.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("removing processed upload failed", zap.String("path", file.Path), zap.Error(err))
		}
	}
	return out
}

func (p *Processor) fileContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, p.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

type extractResult struct {
	text string
	err  error
}

// extract runs the strategy's extractor in its own goroutine so a panic or an
// extractor that ignores ctx cannot take the batch down or hold it past the
// per-file timeout.
func (p *Processor) extract(ctx context.Context, strategy Strategy, file UploadedFile) (string, error) {
	done := make(chan extractResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- extractResult{err: fmt.Errorf("%s extractor panicked: %v", strategy, r)}
			}
		}()
		text, err := p.registry.Lookup(strategy).Extract(ctx, file)
		done <- extractResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		return "", p.contextError(ctx)
	}
}

func (p *Processor) awaitThumbnail(ctx context.Context, ch <-chan ThumbnailResult, file UploadedFile) ThumbnailResult {
	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		// a result that landed together with the deadline still counts
		select {
		case res := <-ch:
			return res
		default:
		}
		// The generator still owns whatever it writes; drop it once it lands.
		go func() {
			if res := <-ch; res.Path != "" {
				_ = os.Remove(res.Path)
			}
		}()
		p.logger.Warn("thumbnail generation abandoned",
			zap.String("file", file.OriginalName), zap.Error(ctx.Err()))
		return ThumbnailResult{Status: ThumbnailFailed}
	}
}

func (p *Processor) contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && p.cfg.Timeout > 0 {
		return fmt.Errorf("timed out after %s", p.cfg.Timeout)
	}
	return fmt.Errorf("cancelled: %w", ctx.Err())
}
