package extraction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// maxOCRDimension bounds both sides of the image handed to the OCR engine.
const maxOCRDimension = 2000

// ImageOCRExtractor pre-processes an image for recognition (fit within
// 2000x2000 without upscaling, greyscale, contrast stretch, PNG re-encode) and
// runs the Recognizer on the result. The pre-processed copy is a temp file
// removed before Extract returns.
type ImageOCRExtractor struct {
	recognizer Recognizer
	workDir    string
}

func NewImageOCRExtractor(rec Recognizer, workDir string) *ImageOCRExtractor {
	return &ImageOCRExtractor{recognizer: rec, workDir: workDir}
}

func (e *ImageOCRExtractor) Extract(ctx context.Context, file UploadedFile) (string, error) {
	if e.recognizer == nil {
		return "", errors.New("no OCR engine configured")
	}

	optimized, err := e.preprocess(file.Path)
	if err != nil {
		return "", fmt.Errorf("pre-processing: %w", err)
	}
	defer os.Remove(optimized)

	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := e.recognizer.Recognize(ctx, optimized)
	if err != nil {
		return "", fmt.Errorf("recognition: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return NoTextInImage, nil
	}
	return text, nil
}

// preprocess writes the OCR-ready copy of src and returns its path.
func (e *ImageOCRExtractor) preprocess(src string) (string, error) {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}

	fitted := imaging.Fit(img, maxOCRDimension, maxOCRDimension, imaging.Lanczos)
	prepared := normalizeContrast(imaging.Grayscale(fitted))

	out, err := os.CreateTemp(e.workDir, "ocr-*.png")
	if err != nil {
		return "", err
	}
	path := out.Name()
	if err := imaging.Encode(out, prepared, imaging.PNG); err != nil {
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

// clipPercent is the share of pixels at each end of the luminance histogram
// that is allowed to saturate when stretching.
const clipPercent = 1

// normalizeContrast stretches the luminance of a greyscale image between its
// 1st and 99th percentile, so a few stray black or white pixels do not pin
// the range.
func normalizeContrast(img *image.NRGBA) *image.NRGBA {
	var hist [256]int
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[img.NRGBAAt(x, y).R]++
		}
	}
	total := b.Dx() * b.Dy()
	if total == 0 {
		return img
	}

	lo, hi := 0, 255
	cum := 0
	for v := range 256 {
		cum += hist[v]
		if cum*100 >= total*clipPercent {
			lo = v
			break
		}
	}
	cum = 0
	for v := range 256 {
		cum += hist[v]
		if cum*100 >= total*(100-clipPercent) {
			hi = v
			break
		}
	}
	if hi <= lo || (lo == 0 && hi == 255) {
		return img
	}

	span := hi - lo
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := (int(c.R) - lo) * 255 / span
		v = max(0, min(255, v))
		return color.NRGBA{R: uint8(v), G: uint8(v), B: uint8(v), A: c.A}
	})
}
