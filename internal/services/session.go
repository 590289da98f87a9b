package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/metrics"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

const (
	listSessionsLimit = 50
	expirySweepBatch  = 100
	abandonAttempts   = 3
)

// EligibilityChecker gates exam creation.
type EligibilityChecker interface {
	EvaluateAndReconcile(ctx context.Context, userID uuid.UUID) (*models.EligibilityStatus, error)
}

type SessionConfig struct {
	ExamDurationSeconds  int
	MaxPracticeQuestions int
	ExpiryGrace          time.Duration
}

// SessionService owns the session state machine:
//
//	in_progress -> paused -> in_progress
//	in_progress | paused -> completed | abandoned
//
// Completed and abandoned sessions are never modified again.
type SessionService struct {
	sessions    SessionStore
	eligibility EligibilityChecker
	limiter     *PauseLimiter
	timer       TimerCoordinator
	events      SessionEventPublisher
	cfg         SessionConfig
	now         func() time.Time
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewSessionService(
	sessions SessionStore,
	eligibility EligibilityChecker,
	limiter *PauseLimiter,
	events SessionEventPublisher,
	cfg SessionConfig,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		eligibility: eligibility,
		limiter:     limiter,
		events:      events,
		cfg:         cfg,
		now:         time.Now,
		logger:      logger,
		tracer:      otel.Tracer("github.com/hossamSharif/TafawoqWeb-sub004/internal/services"),
	}
}

func (s *SessionService) view(sess *models.Session) *models.SessionView {
	return &models.SessionView{Session: sess, Timer: s.timer.Snapshot(sess)}
}

func (s *SessionService) startSpan(ctx context.Context, name string, sessionID uuid.UUID) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "SessionService."+name)
	if sessionID != uuid.Nil {
		span.SetAttributes(attribute.String("session.id", sessionID.String()))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func validateQuestionIDs(ids []string, fields map[string]string) {
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			fields[fmt.Sprintf("questionIds[%d]", i)] = "Question id must not be empty"
			return
		}
	}
}

// CreateExam starts an exam after the weekly quota check.
func (s *SessionService) CreateExam(ctx context.Context, userID uuid.UUID, req models.CreateExamRequest) (_ *models.SessionView, err error) {
	ctx, span := s.startSpan(ctx, "CreateExam", uuid.Nil)
	defer func() { endSpan(span, err) }()

	fields := map[string]string{}
	validateQuestionIDs(req.QuestionIDs, fields)
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	status, err := s.eligibility.EvaluateAndReconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !status.IsEligible {
		metrics.QuotaDenied()
		s.logger.Info("exam creation blocked by weekly quota",
			zap.String("user_id", userID.String()),
			zap.Int("exams_taken", status.ExamsTakenThisWeek))
		return nil, &QuotaExceededError{Status: status}
	}

	total := s.cfg.ExamDurationSeconds
	remaining := total
	sess := &models.Session{
		ID:                   uuid.New(),
		UserID:               userID,
		Kind:                 models.SessionKindExam,
		Status:               models.SessionStatusInProgress,
		QuestionIDs:          req.QuestionIDs,
		TotalQuestions:       len(req.QuestionIDs),
		StartTime:            s.now().UTC(),
		RemainingTimeSeconds: &remaining,
		TotalDurationSeconds: &total,
	}
	return s.create(ctx, sess)
}

// CreatePractice starts a practice drill. Practice sessions are not quota-gated.
func (s *SessionService) CreatePractice(ctx context.Context, userID uuid.UUID, req models.CreatePracticeRequest) (_ *models.SessionView, err error) {
	ctx, span := s.startSpan(ctx, "CreatePractice", uuid.Nil)
	defer func() { endSpan(span, err) }()

	fields := map[string]string{}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		fields["category"] = "Category is required"
	}
	if req.QuestionCount < 1 || req.QuestionCount > s.cfg.MaxPracticeQuestions {
		fields["questionCount"] = fmt.Sprintf("Question count must be between 1 and %d", s.cfg.MaxPracticeQuestions)
	}
	if len(req.QuestionIDs) > req.QuestionCount {
		fields["questionIds"] = "More question ids than questionCount"
	}
	validateQuestionIDs(req.QuestionIDs, fields)
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	sess := &models.Session{
		ID:             uuid.New(),
		UserID:         userID,
		Kind:           models.SessionKindPractice,
		Status:         models.SessionStatusInProgress,
		Category:       &category,
		QuestionIDs:    req.QuestionIDs,
		TotalQuestions: req.QuestionCount,
		StartTime:      s.now().UTC(),
	}
	return s.create(ctx, sess)
}

func (s *SessionService) create(ctx context.Context, sess *models.Session) (*models.SessionView, error) {
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	metrics.SessionTransition(string(sess.Kind), "create", "ok")
	s.logger.Info("session started",
		zap.String("session_id", sess.ID.String()),
		zap.String("user_id", sess.UserID.String()),
		zap.String("kind", string(sess.Kind)))
	return s.view(sess), nil
}

// load fetches a session and checks ownership.
func (s *SessionService) load(ctx context.Context, userID, id uuid.UUID) (*models.Session, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Session not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess.UserID != userID {
		return nil, &ForbiddenError{Message: "You do not have access to this session"}
	}
	return sess, nil
}

// stateError reloads the session after a lost compare-and-swap so the caller
// sees the status that won.
func (s *SessionService) stateError(ctx context.Context, id uuid.UUID, action string, cause error) error {
	if !errors.Is(cause, repository.ErrStateMismatch) {
		return fmt.Errorf("%s session: %w", action, cause)
	}
	current, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("reload session: %w", err)
	}
	return &InvalidStateError{Current: current.Status, Action: action}
}

func (s *SessionService) Get(ctx context.Context, userID, id uuid.UUID) (*models.SessionView, error) {
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.view(sess), nil
}

func (s *SessionService) List(ctx context.Context, userID uuid.UUID, status string) ([]*models.SessionView, error) {
	st := models.SessionStatus(status)
	if status != "" && !st.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"status": "Unknown session status"}}
	}

	sessions, err := s.sessions.ListSessions(ctx, userID, st, listSessionsLimit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	views := make([]*models.SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, s.view(sess))
	}
	return views, nil
}

// Pause freezes the session with the client's timer snapshot. The client is the
// timer authority between syncs, so the reported values are stored as given
// once they are in range.
func (s *SessionService) Pause(ctx context.Context, userID, id uuid.UUID, req models.PauseSessionRequest) (_ *models.SessionView, err error) {
	ctx, span := s.startSpan(ctx, "Pause", id)
	defer func() { endSpan(span, err) }()

	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusInProgress {
		return nil, &InvalidStateError{Current: sess.Status, Action: "pause"}
	}

	fields := map[string]string{}
	timeSpent := sess.TimeSpentSeconds
	if req.CurrentTimeSpent != nil {
		if *req.CurrentTimeSpent < 0 {
			fields["currentTimeSpent"] = "Must not be negative"
		}
		timeSpent = *req.CurrentTimeSpent
	}

	var remaining *int
	if sess.Kind == models.SessionKindExam && sess.TotalDurationSeconds != nil {
		total := *sess.TotalDurationSeconds
		r := RemainingSeconds(total, timeSpent)
		if req.RemainingTimeSeconds != nil {
			if *req.RemainingTimeSeconds < 0 || *req.RemainingTimeSeconds > total {
				fields["remainingTimeSeconds"] = fmt.Sprintf("Must be between 0 and %d", total)
			}
			r = *req.RemainingTimeSeconds
		}
		remaining = &r
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	decision, err := s.limiter.CanPause(ctx, userID, sess.Kind)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, s.pauseConflict(sess, decision.ConflictingSessionID)
	}

	updated, err := s.sessions.PauseSession(ctx, id, userID, remaining, timeSpent, s.now().UTC())
	if errors.Is(err, repository.ErrPauseConflict) {
		// Lost the race to another device; report whichever session holds the slot.
		decision, lookupErr := s.limiter.CanPause(ctx, userID, sess.Kind)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, s.pauseConflict(sess, decision.ConflictingSessionID)
	}
	if err != nil {
		return nil, s.stateError(ctx, id, "pause", err)
	}

	metrics.SessionTransition(string(sess.Kind), "pause", "ok")
	return s.view(updated), nil
}

func (s *SessionService) pauseConflict(sess *models.Session, conflicting *uuid.UUID) error {
	if conflicting != nil && *conflicting == sess.ID {
		// A concurrent pause of this same session won.
		metrics.SessionTransition(string(sess.Kind), "pause", "invalid_state")
		return &InvalidStateError{Current: models.SessionStatusPaused, Action: "pause"}
	}
	metrics.PauseConflict(string(sess.Kind))
	s.logger.Info("pause rejected, another session already paused",
		zap.String("session_id", sess.ID.String()),
		zap.String("kind", string(sess.Kind)))
	return &ConflictError{
		Message:    fmt.Sprintf("You already have a paused %s session", sess.Kind),
		ResourceID: conflicting,
	}
}

// Resume restarts a paused session. pauseDuration, when given, is the client's
// measure of the pause; otherwise the wall-clock interval since paused_at is used.
func (s *SessionService) Resume(ctx context.Context, userID, id uuid.UUID, pauseDuration *int) (_ *models.SessionView, err error) {
	ctx, span := s.startSpan(ctx, "Resume", id)
	defer func() { endSpan(span, err) }()

	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusPaused {
		return nil, &InvalidStateError{Current: sess.Status, Action: "resume"}
	}

	now := s.now().UTC()
	paused := s.timer.PausedFor(sess, now)
	if pauseDuration != nil {
		if *pauseDuration < 0 {
			return nil, &ValidationError{Fields: map[string]string{"pauseDuration": "Must not be negative"}}
		}
		paused = *pauseDuration
	}

	updated, err := s.sessions.ResumeSession(ctx, id, userID, paused, now)
	if err != nil {
		return nil, s.stateError(ctx, id, "resume", err)
	}
	metrics.SessionTransition(string(sess.Kind), "resume", "ok")
	return s.view(updated), nil
}

// ApplyTimer handles client timer events. Pause and resume go through the
// state machine; sync overwrites time spent on a running session.
func (s *SessionService) ApplyTimer(ctx context.Context, userID, id uuid.UUID, req models.TimerUpdateRequest) (*models.TimerSnapshot, error) {
	var view *models.SessionView
	var err error

	switch req.Action {
	case models.TimerActionSync:
		view, err = s.sync(ctx, userID, id, req.CurrentTimeSpent)
	case models.TimerActionPause:
		view, err = s.Pause(ctx, userID, id, models.PauseSessionRequest{CurrentTimeSpent: req.CurrentTimeSpent})
	case models.TimerActionResume:
		view, err = s.Resume(ctx, userID, id, req.PauseDuration)
	default:
		return nil, &ValidationError{Fields: map[string]string{"action": "Action must be sync, pause or resume"}}
	}
	if err != nil {
		return nil, err
	}
	return &view.Timer, nil
}

func (s *SessionService) sync(ctx context.Context, userID, id uuid.UUID, timeSpent *int) (*models.SessionView, error) {
	if timeSpent == nil || *timeSpent < 0 {
		return nil, &ValidationError{Fields: map[string]string{"currentTimeSpent": "A non-negative value is required"}}
	}

	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusInProgress {
		return nil, &InvalidStateError{Current: sess.Status, Action: "sync"}
	}

	var remaining *int
	if sess.Kind == models.SessionKindExam && sess.TotalDurationSeconds != nil {
		r := RemainingSeconds(*sess.TotalDurationSeconds, *timeSpent)
		remaining = &r
	}

	updated, err := s.sessions.SyncSessionTimer(ctx, id, userID, *timeSpent, remaining, s.now().UTC())
	if err != nil {
		return nil, s.stateError(ctx, id, "sync", err)
	}
	return s.view(updated), nil
}

// RecordAnswer counts one submitted answer.
func (s *SessionService) RecordAnswer(ctx context.Context, userID, id uuid.UUID) (*models.SessionView, error) {
	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionStatusInProgress {
		return nil, &InvalidStateError{Current: sess.Status, Action: "answer"}
	}
	if sess.TotalQuestions > 0 && sess.AnsweredCount >= sess.TotalQuestions {
		return nil, &ValidationError{Fields: map[string]string{"answers": "All questions have already been answered"}}
	}

	updated, err := s.sessions.RecordAnswer(ctx, id, userID, s.now().UTC())
	if err != nil {
		return nil, s.stateError(ctx, id, "answer", err)
	}
	return s.view(updated), nil
}

// Complete closes a running or paused session and hands it to scoring. For
// exams the weekly count is incremented in the same transaction.
func (s *SessionService) Complete(ctx context.Context, userID, id uuid.UUID) (_ *models.SessionView, err error) {
	ctx, span := s.startSpan(ctx, "Complete", id)
	defer func() { endSpan(span, err) }()

	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		return nil, &InvalidStateError{Current: sess.Status, Action: "complete"}
	}

	now := s.now().UTC()
	done, err := s.sessions.CompleteSession(ctx, id, userID, sess.Status, s.timer.PausedFor(sess, now), now)
	if err != nil {
		return nil, s.stateError(ctx, id, "complete", err)
	}
	metrics.SessionTransition(string(done.Kind), "complete", "ok")

	if s.events != nil {
		evt := models.SessionCompletedEvent{
			SessionID:        done.ID,
			UserID:           done.UserID,
			Kind:             done.Kind,
			AnsweredCount:    done.AnsweredCount,
			TotalQuestions:   done.TotalQuestions,
			TimeSpentSeconds: done.TimeSpentSeconds,
			CompletedAt:      now,
		}
		if err := s.events.PublishSessionCompleted(ctx, evt); err != nil {
			s.logger.Error("failed to publish session completion",
				zap.String("session_id", done.ID.String()), zap.Error(err))
		}
	}

	s.logger.Info("session completed",
		zap.String("session_id", done.ID.String()),
		zap.String("kind", string(done.Kind)))
	return s.view(done), nil
}

// Abandon ends a session without scoring. Abandoning a finished session
// succeeds without changing it.
func (s *SessionService) Abandon(ctx context.Context, userID, id uuid.UUID) (_ *models.SessionView, err error) {
	ctx, span := s.startSpan(ctx, "Abandon", id)
	defer func() { endSpan(span, err) }()

	sess, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	done, err := s.abandon(ctx, sess)
	if err != nil {
		return nil, err
	}
	return s.view(done), nil
}

func (s *SessionService) abandon(ctx context.Context, sess *models.Session) (*models.Session, error) {
	for attempt := 0; attempt < abandonAttempts; attempt++ {
		if sess.Status.IsTerminal() {
			return sess, nil
		}

		now := s.now().UTC()
		done, err := s.sessions.AbandonSession(ctx, sess.ID, sess.Status, s.timer.PausedFor(sess, now), now)
		if err == nil {
			metrics.SessionTransition(string(done.Kind), "abandon", "ok")
			return done, nil
		}
		if !errors.Is(err, repository.ErrStateMismatch) {
			return nil, fmt.Errorf("abandon session: %w", err)
		}

		// Status moved under us (e.g. paused or completed concurrently); retry from the new state.
		sess, err = s.sessions.GetSession(ctx, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("reload session: %w", err)
		}
	}
	if sess.Status.IsTerminal() {
		return sess, nil
	}
	return nil, fmt.Errorf("abandon session %s: status kept changing", sess.ID)
}

// SweepExpired abandons running exams whose time budget, plus accumulated pauses
// and the grace period, has elapsed. It returns how many were closed.
func (s *SessionService) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.sessions.ListOverdueExamIDs(ctx, s.now().UTC(), s.cfg.ExpiryGrace, expirySweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list overdue exams: %w", err)
	}

	closed := 0
	for _, id := range ids {
		sess, err := s.sessions.GetSession(ctx, id)
		if err != nil {
			s.logger.Error("expiry sweep: failed to load session", zap.String("session_id", id.String()), zap.Error(err))
			continue
		}
		done, err := s.abandon(ctx, sess)
		if err != nil {
			s.logger.Error("expiry sweep: failed to abandon session", zap.String("session_id", id.String()), zap.Error(err))
			continue
		}
		if done.Status == models.SessionStatusAbandoned {
			closed++
			metrics.SessionExpired()
		}
	}
	return closed, nil
}
