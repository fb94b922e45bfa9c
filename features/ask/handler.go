package ask

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"campusrag/internal/middleware"
	"campusrag/internal/query"
)

// Answerer is the question-answering surface the handler needs;
// satisfied by *query.Analyzer.
type Answerer interface {
	Answer(ctx context.Context, req query.Request) (query.Response, error)
}

type Handler struct {
	answerer Answerer
}

func NewHandler(a Answerer) *Handler {
	return &Handler{answerer: a}
}

// Ask handles POST /ask. The response always carries an answer; vague
// questions additionally carry clarification prompts the client can
// render and feed back through prior_answers.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req query.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.WarnContext(ctx, "invalid ask payload", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INVALID_PAYLOAD", "request body must be valid JSON", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		h.writeError(ctx, w, "MISSING_QUESTION", "question is required", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "answering question", "correlationId", correlationID)

	resp, err := h.answerer.Answer(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "failed to answer question", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to answer question", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
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
