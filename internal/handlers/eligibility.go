package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/middleware"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

type EligibilityChecker interface {
	EvaluateAndReconcile(ctx context.Context, userID uuid.UUID) (*models.EligibilityStatus, error)
}

type EligibilityHandler struct {
	checker EligibilityChecker
	logger  *zap.Logger
}

func NewEligibilityHandler(checker EligibilityChecker, logger *zap.Logger) *EligibilityHandler {
	return &EligibilityHandler{checker: checker, logger: logger}
}

// Exam reports the weekly exam quota. It may roll a stale week forward.
func (h *EligibilityHandler) Exam(w http.ResponseWriter, r *http.Request) {
	status, err := h.checker.EvaluateAndReconcile(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
