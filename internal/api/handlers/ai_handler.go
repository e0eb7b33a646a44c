package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/markdave123-py/Filora/internal/services"
)

// maxAskBody bounds the JSON body of an ask request.
const maxAskBody = 1 << 20

type assistant interface {
	Ask(ctx context.Context, userID string, req services.AskRequest) (*services.AskResponse, error)
}

type AIHandler struct {
	assistant assistant
	logger    *zap.Logger
}

func NewAIHandler(a assistant, logger *zap.Logger) *AIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIHandler{assistant: a, logger: logger}
}

// Ask answers POST /ai/ask with a prompt and optional file ids.
func (h *AIHandler) Ask(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	var req services.AskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.assistant.Ask(r.Context(), uid, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
