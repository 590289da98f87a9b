package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/middleware"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

// SessionAPI is the session lifecycle as seen by HTTP callers.
type SessionAPI interface {
	CreateExam(ctx context.Context, userID uuid.UUID, req models.CreateExamRequest) (*models.SessionView, error)
	CreatePractice(ctx context.Context, userID uuid.UUID, req models.CreatePracticeRequest) (*models.SessionView, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.SessionView, error)
	List(ctx context.Context, userID uuid.UUID, status string) ([]*models.SessionView, error)
	Pause(ctx context.Context, userID, id uuid.UUID, req models.PauseSessionRequest) (*models.SessionView, error)
	Resume(ctx context.Context, userID, id uuid.UUID, pauseDuration *int) (*models.SessionView, error)
	ApplyTimer(ctx context.Context, userID, id uuid.UUID, req models.TimerUpdateRequest) (*models.TimerSnapshot, error)
	RecordAnswer(ctx context.Context, userID, id uuid.UUID) (*models.SessionView, error)
	Complete(ctx context.Context, userID, id uuid.UUID) (*models.SessionView, error)
	Abandon(ctx context.Context, userID, id uuid.UUID) (*models.SessionView, error)
}

type SessionHandler struct {
	sessions SessionAPI
	logger   *zap.Logger
}

func NewSessionHandler(sessions SessionAPI, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

func (h *SessionHandler) CreateExam(w http.ResponseWriter, r *http.Request) {
	var req models.CreateExamRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	view, err := h.sessions.CreateExam(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *SessionHandler) CreatePractice(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePracticeRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	view, err := h.sessions.CreatePractice(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.sessions.List(r.Context(), middleware.GetUserID(r.Context()), r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "session")
	if !ok {
		return
	}
	view, err := h.sessions.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "session")
	if !ok {
		return
	}
	var req models.PauseSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	view, err := h.sessions.Pause(r.Context(), middleware.GetUserID(r.Context()), id, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "session")
	if !ok {
		return
	}
	var req struct {
		PauseDuration *int `json:"pauseDuration"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	view, err := h.sessions.Resume(r.Context(), middleware.GetUserID(r.Context()), id, req.PauseDuration)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *SessionHandler) UpdateTimer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "session")
	if !ok {
		return
	}
	var req models.TimerUpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	snap, err := h.sessions.ApplyTimer(r.Context(), middleware.GetUserID(r.Context()), id, req)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *SessionHandler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessions.RecordAnswer)
}

func (h *SessionHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessions.Complete)
}

func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessions.Abandon)
}

func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, uuid.UUID, uuid.UUID) (*models.SessionView, error)) {
	id, ok := pathID(w, r, "id", "session")
	if !ok {
		return
	}
	view, err := apply(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
