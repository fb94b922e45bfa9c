package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"campusrag/internal/middleware"
	"campusrag/internal/vector"
)

type VectorStore interface {
	Stats(ctx context.Context) (vector.Stats, error)
}

type Handler struct {
	store          VectorStore
	embeddingModel string
	llmModel       string
}

func NewHandler(store VectorStore, embeddingModel, llmModel string) *Handler {
	return &Handler{store: store, embeddingModel: embeddingModel, llmModel: llmModel}
}

type StatsResponse struct {
	Records        int    `json:"records"`
	Backend        string `json:"backend"`
	Dim            int    `json:"dim"`
	EmbeddingModel string `json:"embedding_model"`
	LLMModel       string `json:"llm_model"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	stats, err := h.store.Stats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read store stats", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to read corpus stats", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Records:        stats.Records,
		Backend:        stats.Backend,
		Dim:            stats.Dim,
		EmbeddingModel: h.embeddingModel,
		LLMModel:       h.llmModel,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
