package llm

import (
	"context"
	"fmt"

	"github.com/markdave123-py/Filora/internal/core"
)

const (
	simulatedName   = "Filora Assistant"
	simulatedModel  = "simulated"
	excerptRuneSize = 50
)

// SimulatedLLM answers deterministically without calling any API. It is used
// when no provider key is configured and in tests.
type SimulatedLLM struct {
	modelName string
}

func NewSimulatedLLM(modelName string) *SimulatedLLM {
	if modelName == "" {
		modelName = simulatedModel
	}
	return &SimulatedLLM{modelName: modelName}
}

func (s *SimulatedLLM) Model() string { return s.modelName }

func (s *SimulatedLLM) ForModel(name string) core.LLMProvider {
	if name == "" {
		return s
	}
	return &SimulatedLLM{modelName: name}
}

func (s *SimulatedLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Hello! I'm %s (%s). I understand you're asking about: %q. Here's my response based on the files you shared.",
		simulatedName, s.modelName, excerpt(userPrompt, excerptRuneSize)), nil
}

// excerpt cuts s to n runes, marking the cut with "...".
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var _ core.LLMProvider = (*SimulatedLLM)(nil)
