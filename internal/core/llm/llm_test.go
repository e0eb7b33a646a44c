package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"

	"github.com/markdave123-py/Filora/internal/config"
)

func TestSimulatedLLMIsDeterministic(t *testing.T) {
	s := NewSimulatedLLM("gemini-pro")
	prompt := "Summarise the quarterly revenue figures from the attached spreadsheet please"

	a, err := s.Generate(context.Background(), "system", prompt)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, _ := s.Generate(context.Background(), "system", prompt)
	if a != b {
		t.Errorf("answers differ:\n%s\n%s", a, b)
	}
	if !strings.Contains(a, "(gemini-pro)") {
		t.Errorf("answer %q should name the model", a)
	}
	if !strings.Contains(a, prompt[:50]+"...") {
		t.Errorf("answer %q should quote a 50 character excerpt", a)
	}
	if strings.Contains(a, prompt) {
		t.Errorf("answer %q should not quote the whole prompt", a)
	}
}

func TestSimulatedLLMForModel(t *testing.T) {
	s := NewSimulatedLLM("")
	if s.Model() != simulatedModel {
		t.Errorf("Model() = %q, want %q", s.Model(), simulatedModel)
	}
	if got := s.ForModel("other").Model(); got != "other" {
		t.Errorf("ForModel(other).Model() = %q", got)
	}
	if s.ForModel("") != s {
		t.Error("ForModel(\"\") should return the receiver")
	}
}

func TestSimulatedLLMHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSimulatedLLM("").Generate(ctx, "", "hi"); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"héllo wörld", 5, "héllo..."},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := excerpt(tt.in, tt.n); got != tt.want {
			t.Errorf("excerpt(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestNewProviderModes(t *testing.T) {
	p, err := NewProvider(context.Background(), &config.Config{ProviderMode: config.ProviderModeSimulated, GenModel: "m"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProvider(simulated): %v", err)
	}
	if p.Embedder != nil {
		t.Error("simulated mode should not configure an embedder")
	}
	if p.LLM.Model() != "m" {
		t.Errorf("LLM.Model() = %q, want m", p.LLM.Model())
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	if _, err := NewProvider(context.Background(), &config.Config{ProviderMode: "bogus"}, zap.NewNop()); err == nil {
		t.Error("expected an error for an unknown mode")
	}
	if _, err := NewProvider(context.Background(), &config.Config{ProviderMode: config.ProviderModeLive}, zap.NewNop()); err == nil {
		t.Error("expected an error for live mode without a key")
	}
}

func TestCandidateText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{"nil response", nil, ""},
		{"no candidates", &genai.GenerateContentResponse{}, ""},
		{"no content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, ""},
		{
			"joins text parts",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{genai.Text("The launch "), genai.Blob{MIMEType: "image/png"}, genai.Text("is Friday.\n")}},
			}}},
			"The launch is Friday.",
		},
	}
	for _, tt := range tests {
		if got := candidateText(tt.resp); got != tt.want {
			t.Errorf("%s: candidateText = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestGeminiGenerateSendsSystemInstruction(t *testing.T) {
	var gotModel *genai.GenerativeModel
	var gotParts []genai.Part
	g := &GeminiLLM{modelName: "gen-1", send: func(ctx context.Context, m *genai.GenerativeModel, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
		gotModel, gotParts = m, parts
		return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Friday.")}},
		}}}, nil
	}}

	answer, err := g.Generate(context.Background(), "File: notes.txt\nContent: launch friday", "when?")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer != "Friday." {
		t.Errorf("answer = %q", answer)
	}

	si := gotModel.SystemInstruction
	if si == nil || len(si.Parts) != 1 || si.Parts[0] != genai.Text("File: notes.txt\nContent: launch friday") {
		t.Errorf("system instruction = %+v", si)
	}
	if gotModel.MaxOutputTokens == nil || *gotModel.MaxOutputTokens != maxAnswerTokens {
		t.Errorf("max output tokens = %v", gotModel.MaxOutputTokens)
	}
	if len(gotParts) != 1 || gotParts[0] != genai.Text("when?") {
		t.Errorf("parts = %v", gotParts)
	}

	// the override keeps the transport
	if _, err := g.ForModel("gen-2").Generate(context.Background(), "", "hi"); err != nil {
		t.Fatalf("ForModel Generate: %v", err)
	}
	if gotModel.SystemInstruction != nil {
		t.Error("empty system prompt should leave no instruction")
	}
}

func TestGeminiGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		blocked bool
	}{
		{"blocked", &genai.BlockedError{}, true},
		{"transport", errors.New("unavailable"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &GeminiLLM{modelName: "m", send: func(ctx context.Context, m *genai.GenerativeModel, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
				return nil, tt.err
			}}
			_, err := g.Generate(context.Background(), "sys", "q")
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, ErrBlocked) != tt.blocked {
				t.Errorf("err = %v, blocked = %v", err, tt.blocked)
			}
		})
	}
}
