package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

// incrementWeeklyExamsSQL counts one completed exam, starting a fresh window
// when the stored one is at least seven days old.
const incrementWeeklyExamsSQL = `
	INSERT INTO performance_records (user_id, weekly_exam_count, week_start_date, updated_at)
	VALUES ($1, 1, $2::DATE, $3)
	ON CONFLICT (user_id) DO UPDATE SET
		weekly_exam_count = CASE
			WHEN performance_records.week_start_date <= $2::DATE - 7 THEN 1
			ELSE performance_records.weekly_exam_count + 1
		END,
		week_start_date = CASE
			WHEN performance_records.week_start_date <= $2::DATE - 7 THEN $2::DATE
			ELSE performance_records.week_start_date
		END,
		updated_at = $3`

type PerformanceRepo struct {
	pool *pgxpool.Pool
}

func NewPerformanceRepo(pool *pgxpool.Pool) *PerformanceRepo {
	return &PerformanceRepo{pool: pool}
}

func (r *PerformanceRepo) GetPerformance(ctx context.Context, userID uuid.UUID) (*models.PerformanceRecord, error) {
	p := &models.PerformanceRecord{}
	query := `SELECT user_id, weekly_exam_count, week_start_date, updated_at
		FROM performance_records WHERE user_id = $1`

	err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.WeeklyExamCount, &p.WeekStartDate, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.WeekStartDate = dateOnly(p.WeekStartDate)
	return p, nil
}

// ResetWeek writes absolute values so duplicate resets from racing checks are
// harmless. The WHERE guard keeps a reset from clobbering a window that
// another request already rolled forward.
func (r *PerformanceRepo) ResetWeek(ctx context.Context, userID uuid.UUID, today time.Time) error {
	query := `INSERT INTO performance_records (user_id, weekly_exam_count, week_start_date, updated_at)
		VALUES ($1, 0, $2::DATE, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			weekly_exam_count = 0,
			week_start_date = EXCLUDED.week_start_date,
			updated_at = NOW()
		WHERE performance_records.week_start_date <= EXCLUDED.week_start_date - 7`

	_, err := r.pool.Exec(ctx, query, userID, dateOnly(today))
	return err
}
