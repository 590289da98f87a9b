package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/middleware"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

type CreditAPI interface {
	Balance(ctx context.Context, userID uuid.UUID) (*models.CreditLedger, error)
	Spend(ctx context.Context, userID uuid.UUID, req models.SpendCreditsRequest) (*models.CreditLedger, error)
	OverrideShareLimits(ctx context.Context, userID uuid.UUID, limits models.ShareLimits) (*models.CreditLedger, error)
}

type CreditHandler struct {
	credits CreditAPI
	logger  *zap.Logger
}

func NewCreditHandler(credits CreditAPI, logger *zap.Logger) *CreditHandler {
	return &CreditHandler{credits: credits, logger: logger}
}

func (h *CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.credits.Balance(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

func (h *CreditHandler) Spend(w http.ResponseWriter, r *http.Request) {
	var req models.SpendCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	ledger, err := h.credits.Spend(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

// OverrideShareLimits is an operator action; the route is guarded by the admin key.
func (h *CreditHandler) OverrideShareLimits(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id", "user")
	if !ok {
		return
	}
	var req models.ShareLimits
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	ledger, err := h.credits.OverrideShareLimits(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}
