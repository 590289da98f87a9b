package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

// ISO dates compare correctly as text, so date(?2, '-7 days') is the window edge.
const incrementWeeklyExamsSQL = `
	INSERT INTO performance_records (user_id, weekly_exam_count, week_start_date, updated_at)
	VALUES (?1, 1, ?2, ?3)
	ON CONFLICT (user_id) DO UPDATE SET
		weekly_exam_count = CASE
			WHEN performance_records.week_start_date <= date(?2, '-7 days') THEN 1
			ELSE performance_records.weekly_exam_count + 1
		END,
		week_start_date = CASE
			WHEN performance_records.week_start_date <= date(?2, '-7 days') THEN ?2
			ELSE performance_records.week_start_date
		END,
		updated_at = ?3`

func (s *Store) GetPerformance(ctx context.Context, userID uuid.UUID) (*models.PerformanceRecord, error) {
	p := &models.PerformanceRecord{}
	var weekStart string
	var updated int64

	err := s.db.QueryRowContext(ctx, `SELECT user_id, weekly_exam_count, week_start_date, updated_at
		FROM performance_records WHERE user_id = ?1`, userID,
	).Scan(&p.UserID, &p.WeeklyExamCount, &weekStart, &updated)
	if err != nil {
		return nil, notFound(err)
	}

	p.WeekStartDate, err = time.Parse(dateLayout, weekStart)
	if err != nil {
		return nil, fmt.Errorf("parse week start %q: %w", weekStart, err)
	}
	p.UpdatedAt = fromMillis(updated)
	return p, nil
}

func (s *Store) ResetWeek(ctx context.Context, userID uuid.UUID, today time.Time) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO performance_records (user_id, weekly_exam_count, week_start_date, updated_at)
		VALUES (?1, 0, ?2, ?3)
		ON CONFLICT (user_id) DO UPDATE SET
			weekly_exam_count = 0,
			week_start_date = excluded.week_start_date,
			updated_at = excluded.updated_at
		WHERE performance_records.week_start_date <= date(excluded.week_start_date, '-7 days')`,
		userID, toDate(today), toMillis(time.Now()))
	return err
}

// SetPerformance overwrites a user's weekly counters. Used for seeding.
func (s *Store) SetPerformance(ctx context.Context, p *models.PerformanceRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO performance_records (user_id, weekly_exam_count, week_start_date, updated_at)
		VALUES (?1, ?2, ?3, ?4)
		ON CONFLICT (user_id) DO UPDATE SET
			weekly_exam_count = excluded.weekly_exam_count,
			week_start_date = excluded.week_start_date,
			updated_at = excluded.updated_at`,
		p.UserID, p.WeeklyExamCount, toDate(p.WeekStartDate), toMillis(time.Now()))
	return err
}
