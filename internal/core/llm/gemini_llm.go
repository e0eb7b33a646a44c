package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/Filora/internal/core"
)

const (
	defaultGenModel = "gemini-1.5-flash"
	// maxAnswerTokens bounds a single answer; usage metering counts it.
	maxAnswerTokens = 2048
)

// ErrBlocked reports a prompt or answer withheld by the provider's safety
// filters. The files themselves may be the trigger.
var ErrBlocked = errors.New("response blocked by safety filters")

// sendFunc performs one generate call; tests replace it to avoid the network.
type sendFunc func(ctx context.Context, m *genai.GenerativeModel, parts ...genai.Part) (*genai.GenerateContentResponse, error)

func sendGenerate(ctx context.Context, m *genai.GenerativeModel, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	return m.GenerateContent(ctx, parts...)
}

type GeminiLLM struct {
	client    *genai.Client
	modelName string
	send      sendFunc
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if modelName == "" {
		modelName = defaultGenModel
	}
	return &GeminiLLM{client: cl, modelName: modelName, send: sendGenerate}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) Model() string { return g.modelName }

// ForModel returns a generator for another model sharing the same client.
func (g *GeminiLLM) ForModel(name string) core.LLMProvider {
	if name == "" || name == g.modelName {
		return g
	}
	return &GeminiLLM{client: g.client, modelName: name, send: g.send}
}

// Generate sends the file context as the system instruction and the user's
// prompt as the only turn.
func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.model()
	m.SetMaxOutputTokens(maxAnswerTokens)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	send := g.send
	if send == nil {
		send = sendGenerate
	}
	resp, err := send(ctx, m, genai.Text(userPrompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", fmt.Errorf("%s: %w", g.modelName, ErrBlocked)
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return candidateText(resp), nil
}

func (g *GeminiLLM) model() *genai.GenerativeModel {
	if g.client == nil {
		return &genai.GenerativeModel{}
	}
	return g.client.GenerativeModel(g.modelName)
}

// candidateText joins the text parts of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
