package extraction

import "strings"

const (
	mimePDF  = "application/pdf"
	mimeDoc  = "application/msword"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXls  = "application/vnd.ms-excel"
	mimeXlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var mimeStrategies = map[string]Strategy{
	mimePDF:      StrategyPDF,
	mimeDoc:      StrategyWord,
	mimeDocx:     StrategyWord,
	mimeXls:      StrategySpreadsheet,
	mimeXlsx:     StrategySpreadsheet,
	"text/plain": StrategyPlainText,
	"text/csv":   StrategyPlainText,
	"image/jpeg": StrategyImageOCR,
	"image/png":  StrategyImageOCR,
	"image/gif":  StrategyImageOCR,
	"image/webp": StrategyImageOCR,
}

// NormalizeMIME drops parameters and case so "Text/Plain; charset=utf-8"
// compares equal to "text/plain".
func NormalizeMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// DetectStrategy maps a declared MIME type to an extraction strategy.
// Unrecognized types map to StrategyFallback.
func DetectStrategy(mimeType string) Strategy {
	if s, ok := mimeStrategies[NormalizeMIME(mimeType)]; ok {
		return s
	}
	return StrategyFallback
}

// IsImageMIME reports whether the type belongs to the image family.
func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(NormalizeMIME(mimeType), "image/")
}
