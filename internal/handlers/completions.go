package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/middleware"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

type CompletionRecorder interface {
	Record(ctx context.Context, completerID, postID uuid.UUID) (*models.RewardOutcome, error)
}

type CompletionHandler struct {
	completions CompletionRecorder
	logger      *zap.Logger
}

func NewCompletionHandler(completions CompletionRecorder, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{completions: completions, logger: logger}
}

// Record marks the shared post as completed by the caller and settles the
// owner's reward. Repeating the call is safe.
func (h *CompletionHandler) Record(w http.ResponseWriter, r *http.Request) {
	postID, ok := pathID(w, r, "id", "post")
	if !ok {
		return
	}

	outcome, err := h.completions.Record(r.Context(), middleware.GetUserID(r.Context()), postID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
