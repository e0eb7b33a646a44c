package extraction

import "sync"

// Registry maps strategies to extractors. Lookups for a strategy with no
// registered extractor resolve to the fallback extractor.
type Registry struct {
	mu         sync.RWMutex
	extractors map[Strategy]Extractor
	fallback   Extractor
}

// NewRegistry registers the built-in extractors. OCR output is produced by
// rec; pre-processed images are written to workDir ("" means os.TempDir).
func NewRegistry(rec Recognizer, workDir string) *Registry {
	r := &Registry{
		extractors: make(map[Strategy]Extractor),
		fallback:   FallbackExtractor{},
	}
	r.Register(StrategyPDF, PDFExtractor{})
	r.Register(StrategyWord, WordExtractor{})
	r.Register(StrategySpreadsheet, SpreadsheetExtractor{})
	r.Register(StrategyPlainText, TextExtractor{})
	r.Register(StrategyImageOCR, NewImageOCRExtractor(rec, workDir))
	r.Register(StrategyFallback, r.fallback)
	return r
}

// Register replaces the extractor for s.
func (r *Registry) Register(s Strategy, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[s] = e
}

func (r *Registry) Lookup(s Strategy) Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.extractors[s]; ok && e != nil {
		return e
	}
	return r.fallback
}
