package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/middleware"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/services"
)

// stubSessions answers every call with view/err and records the last request.
type stubSessions struct {
	view      *models.SessionView
	err       error
	userID    uuid.UUID
	sessionID uuid.UUID
	pause     models.PauseSessionRequest
	timer     models.TimerUpdateRequest
	resumeFor *int
}

func (s *stubSessions) CreateExam(ctx context.Context, userID uuid.UUID, req models.CreateExamRequest) (*models.SessionView, error) {
	s.userID = userID
	return s.view, s.err
}

func (s *stubSessions) CreatePractice(ctx context.Context, userID uuid.UUID, req models.CreatePracticeRequest) (*models.SessionView, error) {
	s.userID = userID
	return s.view, s.err
}

func (s *stubSessions) Get(ctx context.Context, userID, id uuid.UUID) (*models.SessionView, error) {
	s.userID, s.sessionID = userID, id
	return s.view, s.err
}

func (s *stubSessions) List(ctx context.Context, userID uuid.UUID, status string) ([]*models.SessionView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []*models.SessionView{s.view}, nil
}

func (s *stubSessions) Pause(ctx context.Context, userID, id uuid.UUID, req models.PauseSessionRequest) (*models.SessionView, error) {
	s.userID, s.sessionID, s.pause = userID, id, req
	return s.view, s.err
}

func (s *stubSessions) Resume(ctx context.Context, userID, id uuid.UUID, pauseDuration *int) (*models.SessionView, error) {
	s.sessionID, s.resumeFor = id, pauseDuration
	return s.view, s.err
}

func (s *stubSessions) ApplyTimer(ctx context.Context, userID, id uuid.UUID, req models.TimerUpdateRequest) (*models.TimerSnapshot, error) {
	s.timer = req
	if s.err != nil {
		return nil, s.err
	}
	return &s.view.Timer, nil
}

func (s *stubSessions) RecordAnswer(ctx context.Context, userID, id uuid.UUID) (*models.SessionView, error) {
	s.sessionID = id
	return s.view, s.err
}

func (s *stubSessions) Complete(ctx context.Context, userID, id uuid.UUID) (*models.SessionView, error) {
	s.sessionID = id
	return s.view, s.err
}

func (s *stubSessions) Abandon(ctx context.Context, userID, id uuid.UUID) (*models.SessionView, error) {
	s.sessionID = id
	return s.view, s.err
}

func sessionRouter(h *SessionHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/sessions/exam", h.CreateExam)
	r.Post("/sessions/practice", h.CreatePractice)
	r.Get("/sessions", h.List)
	r.Get("/sessions/{id}", h.Get)
	r.Post("/sessions/{id}/pause", h.Pause)
	r.Post("/sessions/{id}/resume", h.Resume)
	r.Post("/sessions/{id}/complete", h.Complete)
	r.Post("/sessions/{id}/abandon", h.Abandon)
	r.Post("/sessions/{id}/answers", h.RecordAnswer)
	r.Patch("/sessions/{id}/timer", h.UpdateTimer)
	return r
}

func newRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-1")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func do(t *testing.T, h http.Handler, method, path, body string, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	req := newRequest(method, path, body)
	return serve(h, req.WithContext(middleware.WithUserID(req.Context(), userID)))
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func sampleView() *models.SessionView {
	remaining := 7200
	return &models.SessionView{
		Session: &models.Session{ID: uuid.New(), Kind: models.SessionKindExam, Status: models.SessionStatusInProgress},
		Timer:   models.TimerSnapshot{RemainingSeconds: &remaining},
	}
}

func TestCreateExamReturnsCreated(t *testing.T) {
	stub := &stubSessions{view: sampleView()}
	user := uuid.New()

	rr := do(t, sessionRouter(NewSessionHandler(stub, zap.NewNop())), http.MethodPost, "/sessions/exam", `{"questionIds":["q1"]}`, user)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if stub.userID != user {
		t.Errorf("expected user from token to reach the service")
	}
	var got models.SessionView
	decode(t, rr, &got)
	if got.Session.ID != stub.view.Session.ID {
		t.Errorf("expected session %s, got %s", stub.view.Session.ID, got.Session.ID)
	}
}

func TestCreateExamQuotaExceeded(t *testing.T) {
	limit := 3
	next := time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)
	stub := &stubSessions{err: &services.QuotaExceededError{Status: &models.EligibilityStatus{
		ExamsTakenThisWeek: 3, MaxExamsPerWeek: &limit, NextEligibleAt: &next,
	}}}

	rr := do(t, sessionRouter(NewSessionHandler(stub, zap.NewNop())), http.MethodPost, "/sessions/exam", "", uuid.New())

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	var body models.QuotaExceededResponse
	decode(t, rr, &body)
	if body.Error.Code != "QUOTA_EXCEEDED" || body.Error.RequestID != "req-1" {
		t.Errorf("unexpected error envelope %+v", body.Error)
	}
	if body.ExamsTaken != 3 || body.MaxExams == nil || *body.MaxExams != 3 {
		t.Errorf("expected examsTaken=3 maxExams=3, got %d %v", body.ExamsTaken, body.MaxExams)
	}
	if body.NextEligibleAt == nil || !body.NextEligibleAt.Equal(next) {
		t.Errorf("expected nextEligibleAt %s, got %v", next, body.NextEligibleAt)
	}
}

func TestPauseConflictCarriesPausedSession(t *testing.T) {
	paused := uuid.New()
	stub := &stubSessions{err: &services.ConflictError{Message: "You already have a paused exam session", ResourceID: &paused}}
	target := uuid.New()

	rr := do(t, sessionRouter(NewSessionHandler(stub, zap.NewNop())), http.MethodPost,
		"/sessions/"+target.String()+"/pause", `{"remainingTimeSeconds":100,"currentTimeSpent":7100}`, uuid.New())

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var body models.ConflictResponse
	decode(t, rr, &body)
	if body.PausedSessionID == nil || *body.PausedSessionID != paused {
		t.Errorf("expected pausedSessionId %s, got %v", paused, body.PausedSessionID)
	}
	if stub.sessionID != target {
		t.Errorf("expected path id to reach the service")
	}
	if stub.pause.RemainingTimeSeconds == nil || *stub.pause.RemainingTimeSeconds != 100 {
		t.Errorf("expected remainingTimeSeconds to be decoded")
	}
}

func TestResumeAcceptsEmptyBody(t *testing.T) {
	stub := &stubSessions{view: sampleView()}
	h := sessionRouter(NewSessionHandler(stub, zap.NewNop()))

	rr := do(t, h, http.MethodPost, "/sessions/"+uuid.NewString()+"/resume", "", uuid.New())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if stub.resumeFor != nil {
		t.Errorf("expected no client pause duration")
	}

	rr = do(t, h, http.MethodPost, "/sessions/"+uuid.NewString()+"/resume", `{"pauseDuration":42}`, uuid.New())
	if rr.Code != http.StatusOK || stub.resumeFor == nil || *stub.resumeFor != 42 {
		t.Fatalf("expected pauseDuration 42 to be forwarded, got code %d", rr.Code)
	}
}

func TestUpdateTimerReturnsSnapshot(t *testing.T) {
	stub := &stubSessions{view: sampleView()}

	rr := do(t, sessionRouter(NewSessionHandler(stub, zap.NewNop())), http.MethodPatch,
		"/sessions/"+uuid.NewString()+"/timer", `{"action":"sync","currentTimeSpent":60}`, uuid.New())

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if stub.timer.Action != models.TimerActionSync || *stub.timer.CurrentTimeSpent != 60 {
		t.Errorf("unexpected timer request %+v", stub.timer)
	}
	var snap models.TimerSnapshot
	decode(t, rr, &snap)
	if snap.RemainingSeconds == nil || *snap.RemainingSeconds != 7200 {
		t.Errorf("expected remainingSeconds 7200, got %v", snap.RemainingSeconds)
	}
}

func TestSessionRoutesRejectBadInput(t *testing.T) {
	h := sessionRouter(NewSessionHandler(&stubSessions{view: sampleView()}, zap.NewNop()))

	tests := []struct {
		name, method, path, body string
	}{
		{"bad id", http.MethodGet, "/sessions/not-a-uuid", ""},
		{"bad pause body", http.MethodPost, "/sessions/" + uuid.NewString() + "/pause", "{"},
		{"bad practice body", http.MethodPost, "/sessions/practice", `{"questionCount":"ten"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, tc.method, tc.path, tc.body, uuid.New())
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", &services.ValidationError{Fields: map[string]string{"category": "required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"invalid state", &services.InvalidStateError{Current: models.SessionStatusCompleted, Action: "pause"}, http.StatusBadRequest, "INVALID_STATE"},
		{"forbidden", &services.ForbiddenError{Message: "no"}, http.StatusForbidden, "FORBIDDEN"},
		{"not found", &services.NotFoundError{Message: "Session not found"}, http.StatusNotFound, "NOT_FOUND"},
		{"insufficient credits", &services.InsufficientCreditsError{Type: models.CreditTypeShareExam}, http.StatusConflict, "INSUFFICIENT_CREDITS"},
		{"rate limit", &services.RateLimitError{Message: "slow down"}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"wrapped", fmt.Errorf("outer: %w", &services.NotFoundError{Message: "gone"}), http.StatusNotFound, "NOT_FOUND"},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubSessions{err: tc.err}
			rr := do(t, sessionRouter(NewSessionHandler(stub, zap.NewNop())), http.MethodPost,
				"/sessions/"+uuid.NewString()+"/complete", "", uuid.New())

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body models.ErrorResponse
			decode(t, rr, &body)
			if body.Error.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, body.Error.Code)
			}
			if body.Error.Code == "INTERNAL_ERROR" && body.Error.Message == tc.err.Error() {
				t.Errorf("internal error details leaked to the client")
			}
		})
	}
}
