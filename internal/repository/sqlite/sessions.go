package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

const sessionColumns = `id, user_id, kind, status, category, question_ids, total_questions, answered_count,
	start_time, end_time, paused_at, time_spent_seconds, time_paused_seconds,
	remaining_time_seconds, total_duration_seconds, created_at, updated_at`

func scanSession(row rowScanner) (*models.Session, error) {
	s := &models.Session{}
	var kind, status, questions string
	var start, created, updated int64
	var end, paused sql.NullInt64
	err := row.Scan(
		&s.ID, &s.UserID, &kind, &status, &s.Category, &questions, &s.TotalQuestions, &s.AnsweredCount,
		&start, &end, &paused, &s.TimeSpentSeconds, &s.TimePausedSeconds,
		&s.RemainingTimeSeconds, &s.TotalDurationSeconds, &created, &updated,
	)
	if err != nil {
		return nil, notFound(err)
	}
	s.Kind = models.SessionKind(kind)
	s.Status = models.SessionStatus(status)
	s.StartTime = fromMillis(start)
	s.EndTime = timePtr(end)
	s.PausedAt = timePtr(paused)
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(updated)
	if err := json.Unmarshal([]byte(questions), &s.QuestionIDs); err != nil {
		return nil, fmt.Errorf("decode question ids: %w", err)
	}
	if s.QuestionIDs == nil {
		s.QuestionIDs = []string{}
	}
	return s, nil
}

func casResult(s *models.Session, err error) (*models.Session, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return nil, repository.ErrStateMismatch
	}
	return s, err
}

func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	if sess.QuestionIDs == nil {
		sess.QuestionIDs = []string{}
	}
	questions, err := json.Marshal(sess.QuestionIDs)
	if err != nil {
		return fmt.Errorf("encode question ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (id, user_id, kind, status, category, question_ids, total_questions,
			start_time, time_spent_seconds, remaining_time_seconds, total_duration_seconds, created_at, updated_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, 0, ?9, ?10, ?8, ?8)`,
		sess.ID, sess.UserID, string(sess.Kind), string(sess.Status), sess.Category, string(questions), sess.TotalQuestions,
		toMillis(sess.StartTime), sess.RemainingTimeSeconds, sess.TotalDurationSeconds,
	)
	if isForeignKeyViolation(err) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	sess.StartTime = fromMillis(toMillis(sess.StartTime))
	sess.CreatedAt = sess.StartTime
	sess.UpdatedAt = sess.StartTime
	return nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?1`, id))
}

func (s *Store) FindPausedSession(ctx context.Context, userID uuid.UUID, kind models.SessionKind) (*models.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ?1 AND kind = ?2 AND status = 'paused'
		LIMIT 1`, userID, string(kind)))
}

func (s *Store) ListSessions(ctx context.Context, userID uuid.UUID, status models.SessionStatus, limit int) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ?1 AND (?2 = '' OR status = ?2)
		ORDER BY created_at DESC
		LIMIT ?3`, userID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []*models.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) PauseSession(ctx context.Context, id, userID uuid.UUID, remaining *int, timeSpent int, at time.Time) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `UPDATE sessions
		SET status = 'paused',
			paused_at = ?3,
			remaining_time_seconds = COALESCE(?4, remaining_time_seconds),
			time_spent_seconds = ?5,
			updated_at = ?3
		WHERE id = ?1 AND user_id = ?2 AND status = 'in_progress'
		RETURNING `+sessionColumns, id, userID, toMillis(at), remaining, timeSpent))
	if isUniqueViolation(err) {
		return nil, repository.ErrPauseConflict
	}
	return casResult(sess, err)
}

func (s *Store) ResumeSession(ctx context.Context, id, userID uuid.UUID, pausedSeconds int, at time.Time) (*models.Session, error) {
	return casResult(scanSession(s.db.QueryRowContext(ctx, `UPDATE sessions
		SET status = 'in_progress',
			paused_at = NULL,
			time_paused_seconds = time_paused_seconds + ?3,
			updated_at = ?4
		WHERE id = ?1 AND user_id = ?2 AND status = 'paused'
		RETURNING `+sessionColumns, id, userID, pausedSeconds, toMillis(at))))
}

func (s *Store) SyncSessionTimer(ctx context.Context, id, userID uuid.UUID, timeSpent int, remaining *int, at time.Time) (*models.Session, error) {
	return casResult(scanSession(s.db.QueryRowContext(ctx, `UPDATE sessions
		SET time_spent_seconds = ?3,
			remaining_time_seconds = ?4,
			updated_at = ?5
		WHERE id = ?1 AND user_id = ?2 AND status = 'in_progress'
		RETURNING `+sessionColumns, id, userID, timeSpent, remaining, toMillis(at))))
}

func (s *Store) RecordAnswer(ctx context.Context, id, userID uuid.UUID, at time.Time) (*models.Session, error) {
	return casResult(scanSession(s.db.QueryRowContext(ctx, `UPDATE sessions
		SET answered_count = answered_count + 1,
			updated_at = ?3
		WHERE id = ?1 AND user_id = ?2 AND status = 'in_progress'
		  AND (total_questions = 0 OR answered_count < total_questions)
		RETURNING `+sessionColumns, id, userID, toMillis(at))))
}

func (s *Store) CompleteSession(ctx context.Context, id, userID uuid.UUID, from models.SessionStatus, pausedSeconds int, at time.Time) (*models.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin complete session: %w", err)
	}
	defer tx.Rollback()

	sess, err := casResult(scanSession(tx.QueryRowContext(ctx, `UPDATE sessions
		SET status = 'completed',
			end_time = ?4,
			paused_at = NULL,
			time_paused_seconds = time_paused_seconds + ?5,
			updated_at = ?4
		WHERE id = ?1 AND user_id = ?2 AND status = ?3
		RETURNING `+sessionColumns, id, userID, string(from), toMillis(at), pausedSeconds)))
	if err != nil {
		return nil, err
	}

	if sess.Kind == models.SessionKindExam {
		if _, err := tx.ExecContext(ctx, incrementWeeklyExamsSQL, userID, toDate(at), toMillis(at)); err != nil {
			return nil, fmt.Errorf("increment weekly exam count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit complete session: %w", err)
	}
	return sess, nil
}

func (s *Store) AbandonSession(ctx context.Context, id uuid.UUID, from models.SessionStatus, pausedSeconds int, at time.Time) (*models.Session, error) {
	return casResult(scanSession(s.db.QueryRowContext(ctx, `UPDATE sessions
		SET status = 'abandoned',
			end_time = ?3,
			paused_at = NULL,
			time_paused_seconds = time_paused_seconds + ?4,
			updated_at = ?3
		WHERE id = ?1 AND status = ?2
		RETURNING `+sessionColumns, id, string(from), toMillis(at), pausedSeconds)))
}

func (s *Store) ListOverdueExamIDs(ctx context.Context, now time.Time, grace time.Duration, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions
		WHERE kind = 'exam' AND status = 'in_progress'
		  AND start_time + (COALESCE(total_duration_seconds, 0) + time_paused_seconds + ?2) * 1000 < ?1
		ORDER BY start_time
		LIMIT ?3`, toMillis(now), int(grace.Seconds()), limit)
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
