package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/markdave123-py/Filora/internal/config"
	"github.com/markdave123-py/Filora/internal/core"
)

// Providers bundles the generator and, in live mode, the embedder. Embedder
// is nil in simulated mode, which disables chunk indexing and retrieval.
type Providers struct {
	LLM      core.LLMProvider
	Embedder core.EmbeddingProvider

	closers []func() error
}

// Close releases the underlying API clients.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewProvider builds the providers selected by cfg.ProviderMode.
func NewProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Providers, error) {
	switch cfg.ProviderMode {
	case config.ProviderModeSimulated:
		logger.Info("using simulated language model; chunk indexing disabled")
		return &Providers{LLM: NewSimulatedLLM(cfg.GenModel)}, nil

	case config.ProviderModeLive:
		gen, err := NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return nil, fmt.Errorf("gemini generator: %w", err)
		}
		emb, err := NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			_ = gen.Close()
			return nil, fmt.Errorf("gemini embedder: %w", err)
		}
		logger.Info("using gemini",
			zap.String("gen_model", gen.Model()),
			zap.String("embed_model", emb.modelName))
		return &Providers{
			LLM:      gen,
			Embedder: emb,
			closers:  []func() error{gen.Close, emb.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unknown provider mode %q", cfg.ProviderMode)
	}
}
