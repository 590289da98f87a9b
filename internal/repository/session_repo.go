package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, user_id, kind, status, category, question_ids, total_questions, answered_count,
	start_time, end_time, paused_at, time_spent_seconds, time_paused_seconds,
	remaining_time_seconds, total_duration_seconds, created_at, updated_at`

func scanSession(row pgx.Row) (*models.Session, error) {
	s := &models.Session{}
	var kind, status string
	var questions []byte
	err := row.Scan(
		&s.ID, &s.UserID, &kind, &status, &s.Category, &questions, &s.TotalQuestions, &s.AnsweredCount,
		&s.StartTime, &s.EndTime, &s.PausedAt, &s.TimeSpentSeconds, &s.TimePausedSeconds,
		&s.RemainingTimeSeconds, &s.TotalDurationSeconds, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Kind = models.SessionKind(kind)
	s.Status = models.SessionStatus(status)
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &s.QuestionIDs); err != nil {
			return nil, fmt.Errorf("decode question ids: %w", err)
		}
	}
	if s.QuestionIDs == nil {
		s.QuestionIDs = []string{}
	}
	return s, nil
}

// casResult turns "no row matched" into ErrStateMismatch for conditional updates.
func casResult(s *models.Session, err error) (*models.Session, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, ErrStateMismatch
	}
	return s, err
}

func (r *SessionRepo) CreateSession(ctx context.Context, s *models.Session) error {
	if s.QuestionIDs == nil {
		s.QuestionIDs = []string{}
	}
	questions, err := json.Marshal(s.QuestionIDs)
	if err != nil {
		return fmt.Errorf("encode question ids: %w", err)
	}

	query := `INSERT INTO sessions (id, user_id, kind, status, category, question_ids, total_questions,
			start_time, time_spent_seconds, remaining_time_seconds, total_duration_seconds, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $8, $8)
		RETURNING created_at, updated_at`

	return r.pool.QueryRow(ctx, query,
		s.ID, s.UserID, string(s.Kind), string(s.Status), s.Category, questions, s.TotalQuestions,
		s.StartTime, s.RemainingTimeSeconds, s.TotalDurationSeconds,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

func (r *SessionRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

func (r *SessionRepo) FindPausedSession(ctx context.Context, userID uuid.UUID, kind models.SessionKind) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE user_id = $1 AND kind = $2 AND status = 'paused'
		LIMIT 1`
	return scanSession(r.pool.QueryRow(ctx, query, userID, string(kind)))
}

func (r *SessionRepo) ListSessions(ctx context.Context, userID uuid.UUID, status models.SessionStatus, limit int) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, userID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepo) PauseSession(ctx context.Context, id, userID uuid.UUID, remaining *int, timeSpent int, at time.Time) (*models.Session, error) {
	query := `UPDATE sessions
		SET status = 'paused',
			paused_at = $3,
			remaining_time_seconds = COALESCE($4::INTEGER, remaining_time_seconds),
			time_spent_seconds = $5,
			updated_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'in_progress'
		RETURNING ` + sessionColumns

	s, err := scanSession(r.pool.QueryRow(ctx, query, id, userID, at, remaining, timeSpent))
	if isUniqueViolation(err, pausedSessionIndex) {
		return nil, ErrPauseConflict
	}
	return casResult(s, err)
}

func (r *SessionRepo) ResumeSession(ctx context.Context, id, userID uuid.UUID, pausedSeconds int, at time.Time) (*models.Session, error) {
	query := `UPDATE sessions
		SET status = 'in_progress',
			paused_at = NULL,
			time_paused_seconds = time_paused_seconds + $3,
			updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = 'paused'
		RETURNING ` + sessionColumns

	return casResult(scanSession(r.pool.QueryRow(ctx, query, id, userID, pausedSeconds, at)))
}

func (r *SessionRepo) SyncSessionTimer(ctx context.Context, id, userID uuid.UUID, timeSpent int, remaining *int, at time.Time) (*models.Session, error) {
	query := `UPDATE sessions
		SET time_spent_seconds = $3,
			remaining_time_seconds = $4,
			updated_at = $5
		WHERE id = $1 AND user_id = $2 AND status = 'in_progress'
		RETURNING ` + sessionColumns

	return casResult(scanSession(r.pool.QueryRow(ctx, query, id, userID, timeSpent, remaining, at)))
}

func (r *SessionRepo) RecordAnswer(ctx context.Context, id, userID uuid.UUID, at time.Time) (*models.Session, error) {
	query := `UPDATE sessions
		SET answered_count = answered_count + 1,
			updated_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'in_progress'
		  AND (total_questions = 0 OR answered_count < total_questions)
		RETURNING ` + sessionColumns

	return casResult(scanSession(r.pool.QueryRow(ctx, query, id, userID, at)))
}

// CompleteSession closes the session and, for exams, counts it against the
// weekly quota in the same transaction.
func (r *SessionRepo) CompleteSession(ctx context.Context, id, userID uuid.UUID, from models.SessionStatus, pausedSeconds int, at time.Time) (*models.Session, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin complete session: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE sessions
		SET status = 'completed',
			end_time = $4,
			paused_at = NULL,
			time_paused_seconds = time_paused_seconds + $5,
			updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = $3
		RETURNING ` + sessionColumns

	s, err := casResult(scanSession(tx.QueryRow(ctx, query, id, userID, string(from), at, pausedSeconds)))
	if err != nil {
		return nil, err
	}

	if s.Kind == models.SessionKindExam {
		if _, err := tx.Exec(ctx, incrementWeeklyExamsSQL, userID, dateOnly(at), at); err != nil {
			return nil, fmt.Errorf("increment weekly exam count: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit complete session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) AbandonSession(ctx context.Context, id uuid.UUID, from models.SessionStatus, pausedSeconds int, at time.Time) (*models.Session, error) {
	query := `UPDATE sessions
		SET status = 'abandoned',
			end_time = $3,
			paused_at = NULL,
			time_paused_seconds = time_paused_seconds + $4,
			updated_at = $3
		WHERE id = $1 AND status = $2
		RETURNING ` + sessionColumns

	return casResult(scanSession(r.pool.QueryRow(ctx, query, id, string(from), at, pausedSeconds)))
}

// ListOverdueExamIDs returns running exams whose wall-clock budget (duration
// plus accumulated pauses plus grace) has elapsed.
func (r *SessionRepo) ListOverdueExamIDs(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]uuid.UUID, error) {
	query := `SELECT id FROM sessions
		WHERE kind = 'exam' AND status = 'in_progress'
		  AND start_time + (COALESCE(total_duration_seconds, 0) + time_paused_seconds + $2) * INTERVAL '1 second' < $1
		ORDER BY start_time
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, now, int(grace.Seconds()), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
