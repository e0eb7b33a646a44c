package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/markdave123-py/Filora/internal/core"
	"github.com/markdave123-py/Filora/internal/core/ingestion_engine"
	"github.com/markdave123-py/Filora/internal/models"
)

const (
	// maxContextBytes caps the extracted text quoted per file when no chunk
	// index is available.
	maxContextBytes = 8000
	retrievalTopK   = 5
	usageMonthFmt   = "2006-01"
)

// modelSelector is implemented by providers that can answer with another model.
type modelSelector interface {
	ForModel(name string) core.LLMProvider
}

type AskRequest struct {
	Prompt  string   `json:"prompt"`
	FileIDs []string `json:"file_ids"`
	Model   string   `json:"model,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	MonthTokens      int `json:"month_tokens"`
	MonthlyLimit     int `json:"monthly_limit"`
}

type AskResponse struct {
	Answer string   `json:"answer"`
	Model  string   `json:"model"`
	Files  []string `json:"files"`
	Usage  Usage    `json:"usage"`
}

// AssistantService answers prompts against the text of a user's files.
type AssistantService struct {
	db       core.DbClient
	llm      core.LLMProvider
	embedder core.EmbeddingProvider
	limit    int
	logger   *zap.Logger
	now      func() time.Time
}

// NewAssistantService builds the assistant. embedder may be nil, in which
// case file context always comes from the stored extracted text. A
// monthlyLimit of zero disables the usage cap.
func NewAssistantService(db core.DbClient, llm core.LLMProvider, embedder core.EmbeddingProvider, monthlyLimit int, logger *zap.Logger) *AssistantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssistantService{db: db, llm: llm, embedder: embedder, limit: monthlyLimit, logger: logger, now: time.Now}
}

func (s *AssistantService) Ask(ctx context.Context, userID string, req AskRequest) (*AskResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	month := s.now().UTC().Format(usageMonthFmt)
	used, err := s.db.GetMonthlyUsage(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("read usage: %w", err)
	}
	if s.limit > 0 && used >= s.limit {
		return nil, ErrQuotaExceeded
	}

	files, err := s.loadFiles(ctx, userID, req.FileIDs)
	if err != nil {
		return nil, err
	}

	systemPrompt := ""
	names := make([]string, 0, len(files))
	if len(files) > 0 {
		block := s.buildContext(ctx, prompt, files)
		systemPrompt = "You have access to the following files:\n\n" + block +
			"\n\nUse this information to answer the user's questions."
		for _, f := range files {
			names = append(names, f.OriginalName)
		}
	}

	provider := s.llm
	if req.Model != "" {
		if sel, ok := provider.(modelSelector); ok {
			provider = sel.ForModel(req.Model)
		}
	}

	answer, err := provider.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	usage := Usage{
		PromptTokens:     ingestion_engine.ApproxTokens(systemPrompt) + ingestion_engine.ApproxTokens(prompt),
		CompletionTokens: ingestion_engine.ApproxTokens(answer),
		MonthlyLimit:     s.limit,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	usage.MonthTokens = used + usage.TotalTokens

	total, err := s.db.AddUsage(context.WithoutCancel(ctx), userID, month, usage.TotalTokens)
	if err != nil {
		s.logger.Warn("recording usage failed", zap.String("user_id", userID), zap.Error(err))
	} else {
		usage.MonthTokens = total
	}

	s.logger.Info("prompt answered",
		zap.String("user_id", userID),
		zap.String("model", provider.Model()),
		zap.Int("files", len(files)),
		zap.Int("tokens", usage.TotalTokens))

	return &AskResponse{Answer: answer, Model: provider.Model(), Files: names, Usage: usage}, nil
}

// loadFiles resolves ids in request order, ignoring duplicates.
func (s *AssistantService) loadFiles(ctx context.Context, userID string, ids []string) ([]*models.File, error) {
	seen := make(map[string]bool, len(ids))
	var files []*models.File
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if !validFileID(id) {
			return nil, fmt.Errorf("file %s: %w", id, ErrNotFound)
		}

		f, err := s.db.GetUserFile(ctx, userID, id)
		if err != nil {
			return nil, fmt.Errorf("load file %s: %w", id, err)
		}
		if f == nil {
			return nil, fmt.Errorf("file %s: %w", id, ErrNotFound)
		}
		files = append(files, f)
	}
	return files, nil
}

// buildContext renders "File: <name>\nContent: <text>" per file, separated
// by blank lines. Indexed files contribute their chunks closest to the
// prompt; the rest contribute truncated extracted text.
func (s *AssistantService) buildContext(ctx context.Context, prompt string, files []*models.File) string {
	var queryVec []float32
	embedded := false

	parts := make([]string, 0, len(files))
	for _, f := range files {
		content := ""
		if s.embedder != nil && f.IndexStatus == models.IndexReady {
			if !embedded {
				embedded = true
				vecs, err := s.embedder.EmbedTexts(ctx, []string{prompt})
				if err != nil || len(vecs) == 0 {
					s.logger.Warn("embedding prompt failed, using extracted text", zap.Error(err))
				} else {
					queryVec = vecs[0]
				}
			}
			if queryVec != nil {
				content = s.retrieve(ctx, f, queryVec)
			}
		}
		if content == "" {
			content = truncateUTF8(f.ExtractedText, maxContextBytes)
		}
		parts = append(parts, "File: "+f.OriginalName+"\nContent: "+content)
	}
	return strings.Join(parts, "\n\n")
}

func (s *AssistantService) retrieve(ctx context.Context, f *models.File, queryVec []float32) string {
	chunks, err := s.db.SearchFileChunks(ctx, f.ID, queryVec, retrievalTopK)
	if err != nil {
		s.logger.Warn("chunk search failed", zap.String("file_id", f.ID), zap.Error(err))
		return ""
	}
	texts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		texts = append(texts, ch.Text)
	}
	return strings.Join(texts, "\n---\n")
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
