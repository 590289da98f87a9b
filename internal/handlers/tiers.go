package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

type TierRefresher interface {
	Refresh(ctx context.Context, userID uuid.UUID) (models.Tier, error)
}

type TierHandler struct {
	tiers  TierRefresher
	logger *zap.Logger
}

func NewTierHandler(tiers TierRefresher, logger *zap.Logger) *TierHandler {
	return &TierHandler{tiers: tiers, logger: logger}
}

// Refresh is called by billing after a plan change. Admin key only.
func (h *TierHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}

	tier, err := h.tiers.Refresh(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	h.logger.Info("user tier refreshed", zap.String("user_id", userID.String()), zap.String("tier", string(tier)))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId": userID,
		"tier":   tier,
	})
}
