package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

const shareResetAssignments = `
	share_credits_exam_monthly_limit = CASE WHEN share_limit_source = 'tier' THEN ?1 ELSE share_credits_exam_monthly_limit END,
	share_credits_practice_monthly_limit = CASE WHEN share_limit_source = 'tier' THEN ?2 ELSE share_credits_practice_monthly_limit END,
	share_credits_exam = CASE WHEN share_limit_source = 'tier' THEN ?1 ELSE share_credits_exam_monthly_limit END,
	share_credits_practice = CASE WHEN share_limit_source = 'tier' THEN ?2 ELSE share_credits_practice_monthly_limit END,
	share_credits_last_reset_at = ?3,
	updated_at = ?3`

func (s *Store) EnsureLedger(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO credit_ledgers (user_id, updated_at) VALUES (?1, ?2)
		ON CONFLICT DO NOTHING`, userID, toMillis(time.Now()))
	if isForeignKeyViolation(err) {
		return repository.ErrNotFound
	}
	return err
}

func (s *Store) GetLedger(ctx context.Context, userID uuid.UUID) (*models.CreditLedger, error) {
	l := &models.CreditLedger{}
	var source string
	var lastReset sql.NullInt64
	var updated int64

	err := s.db.QueryRowContext(ctx, `SELECT user_id, exam_credits, practice_credits, share_credits_exam, share_credits_practice,
			share_credits_exam_monthly_limit, share_credits_practice_monthly_limit,
			share_credits_last_reset_at, share_limit_source, updated_at
		FROM credit_ledgers WHERE user_id = ?1`, userID,
	).Scan(
		&l.UserID, &l.ExamCredits, &l.PracticeCredits, &l.ShareCreditsExam, &l.ShareCreditsPractice,
		&l.ShareCreditsExamMonthlyLimit, &l.ShareCreditsPracticeMonthlyLimit,
		&lastReset, &source, &updated,
	)
	if err != nil {
		return nil, notFound(err)
	}
	l.ShareCreditsLastResetAt = timePtr(lastReset)
	l.ShareLimitSource = models.ShareLimitSource(source)
	l.UpdatedAt = fromMillis(updated)
	return l, nil
}

func (s *Store) SpendCredits(ctx context.Context, userID uuid.UUID, ct models.CreditType, amount int) (int, error) {
	col, err := repository.CreditColumn(ct)
	if err != nil {
		return 0, err
	}

	var balance int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`UPDATE credit_ledgers SET %[1]s = %[1]s - ?2, updated_at = ?3
		WHERE user_id = ?1 AND %[1]s >= ?2
		RETURNING %[1]s`, col), userID, amount, toMillis(time.Now())).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.ErrInsufficientCredits
	}
	return balance, err
}

func (s *Store) ResetShareCreditsForUser(ctx context.Context, userID uuid.UUID, limits models.ShareLimits, monthStart, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE credit_ledgers SET `+shareResetAssignments+`
		WHERE user_id = ?4
		  AND (share_credits_last_reset_at IS NULL OR share_credits_last_reset_at < ?5)`,
		limits.Exam, limits.Practice, toMillis(at), userID, toMillis(monthStart))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) ResetShareCreditsForTier(ctx context.Context, tier models.Tier, limits models.ShareLimits, monthStart, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE credit_ledgers SET `+shareResetAssignments+`
		WHERE user_id IN (SELECT id FROM users WHERE plan = ?4)
		  AND (share_credits_last_reset_at IS NULL OR share_credits_last_reset_at < ?5)`,
		limits.Exam, limits.Practice, toMillis(at), string(tier), toMillis(monthStart))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) SetShareLimitOverride(ctx context.Context, userID uuid.UUID, limits models.ShareLimits) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO credit_ledgers (user_id, share_credits_exam_monthly_limit, share_credits_practice_monthly_limit, share_limit_source, updated_at)
		VALUES (?1, ?2, ?3, 'override', ?4)
		ON CONFLICT (user_id) DO UPDATE SET
			share_credits_exam_monthly_limit = excluded.share_credits_exam_monthly_limit,
			share_credits_practice_monthly_limit = excluded.share_credits_practice_monthly_limit,
			share_credits_exam = MIN(credit_ledgers.share_credits_exam, excluded.share_credits_exam_monthly_limit),
			share_credits_practice = MIN(credit_ledgers.share_credits_practice, excluded.share_credits_practice_monthly_limit),
			share_limit_source = 'override',
			updated_at = excluded.updated_at`,
		userID, limits.Exam, limits.Practice, toMillis(time.Now()))
	if isForeignKeyViolation(err) {
		return repository.ErrNotFound
	}
	return err
}

func (s *Store) GrantReward(ctx context.Context, g *models.RewardGrant) error {
	col, err := repository.CreditColumn(g.CreditType)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reward grant: %w", err)
	}
	defer tx.Rollback()

	at := toMillis(g.GrantedAt)
	res, err := tx.ExecContext(ctx, `UPDATE shared_content_completions
		SET reward_status = 'granted', rewarded_at = ?2
		WHERE id = ?1 AND reward_status = 'pending'`, g.CompletionID, at)
	if err != nil {
		return fmt.Errorf("claim completion: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return repository.ErrAlreadyClaimed
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO credit_ledgers (user_id, %[1]s, updated_at) VALUES (?1, ?2, ?3)
		ON CONFLICT (user_id) DO UPDATE SET %[1]s = credit_ledgers.%[1]s + excluded.%[1]s, updated_at = excluded.updated_at`, col),
		g.OwnerID, g.Units, at); err != nil {
		return fmt.Errorf("increment %s: %w", col, err)
	}

	n := g.Notification
	if _, err := tx.ExecContext(ctx, `INSERT INTO notifications (id, user_id, category, title, message, target_type, target_id, created_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)`,
		n.ID, n.UserID, n.Category, n.Title, n.Message, string(n.TargetType), n.TargetID, at); err != nil {
		return fmt.Errorf("insert reward notification: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reward grant: %w", err)
	}
	n.CreatedAt = fromMillis(at)
	return nil
}
