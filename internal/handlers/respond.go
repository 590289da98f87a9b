package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func requestID(r *http.Request) string {
	if id := chimiddleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

func apiError(code, message string, r *http.Request) models.APIError {
	return models.APIError{Code: code, Message: message, RequestID: requestID(r)}
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{Error: apiError(code, message, r)}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	e := apiError(code, message, r)
	e.Fields = fields
	return models.ErrorResponse{Error: e}
}

// decodeBody parses an optional JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid "+label+" ID", r))
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		validation *services.ValidationError
		conflict   *services.ConflictError
		notFound   *services.NotFoundError
		forbidden  *services.ForbiddenError
		rateLimit  *services.RateLimitError
		quota      *services.QuotaExceededError
		state      *services.InvalidStateError
		credits    *services.InsufficientCreditsError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.As(err, &quota):
		resp := models.QuotaExceededResponse{Error: apiError("QUOTA_EXCEEDED", quota.Error(), r)}
		if quota.Status != nil {
			resp.ExamsTaken = quota.Status.ExamsTakenThisWeek
			resp.MaxExams = quota.Status.MaxExamsPerWeek
			resp.NextEligibleAt = quota.Status.NextEligibleAt
		}
		writeJSON(w, http.StatusTooManyRequests, resp)
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, models.ConflictResponse{
			Error:           apiError("CONFLICT", conflict.Message, r),
			PausedSessionID: conflict.ResourceID,
		})
	case errors.As(err, &state):
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_STATE", state.Error(), r))
	case errors.As(err, &credits):
		writeJSON(w, http.StatusConflict, errorResp("INSUFFICIENT_CREDITS", credits.Error(), r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbidden.Message, r))
	case errors.As(err, &rateLimit):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimit.Message, r))
	default:
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r)),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
