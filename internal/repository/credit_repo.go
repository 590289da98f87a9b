package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

type CreditRepo struct {
	pool *pgxpool.Pool
}

func NewCreditRepo(pool *pgxpool.Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

// CreditColumn maps a credit type to its ledger column. Column names never
// come from user input.
func CreditColumn(ct models.CreditType) (string, error) {
	switch ct {
	case models.CreditTypeExam:
		return "exam_credits", nil
	case models.CreditTypePractice:
		return "practice_credits", nil
	case models.CreditTypeShareExam:
		return "share_credits_exam", nil
	case models.CreditTypeSharePractice:
		return "share_credits_practice", nil
	}
	return "", fmt.Errorf("unknown credit type %q", ct)
}

// ShareResetAssignments recomputes tier-derived limits and refills share
// balances to the limit; overridden ledgers refill to their stored limit.
// Positional parameters: $1 exam limit, $2 practice limit, $3 reset time.
const ShareResetAssignments = `
	share_credits_exam_monthly_limit = CASE WHEN share_limit_source = 'tier' THEN $1 ELSE share_credits_exam_monthly_limit END,
	share_credits_practice_monthly_limit = CASE WHEN share_limit_source = 'tier' THEN $2 ELSE share_credits_practice_monthly_limit END,
	share_credits_exam = CASE WHEN share_limit_source = 'tier' THEN $1 ELSE share_credits_exam_monthly_limit END,
	share_credits_practice = CASE WHEN share_limit_source = 'tier' THEN $2 ELSE share_credits_practice_monthly_limit END,
	share_credits_last_reset_at = $3,
	updated_at = $3`

func (r *CreditRepo) EnsureLedger(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, "INSERT INTO credit_ledgers (user_id) VALUES ($1) ON CONFLICT DO NOTHING", userID)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

func (r *CreditRepo) GetLedger(ctx context.Context, userID uuid.UUID) (*models.CreditLedger, error) {
	l := &models.CreditLedger{}
	var source string
	query := `SELECT user_id, exam_credits, practice_credits, share_credits_exam, share_credits_practice,
			share_credits_exam_monthly_limit, share_credits_practice_monthly_limit,
			share_credits_last_reset_at, share_limit_source, updated_at
		FROM credit_ledgers WHERE user_id = $1`

	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&l.UserID, &l.ExamCredits, &l.PracticeCredits, &l.ShareCreditsExam, &l.ShareCreditsPractice,
		&l.ShareCreditsExamMonthlyLimit, &l.ShareCreditsPracticeMonthlyLimit,
		&l.ShareCreditsLastResetAt, &source, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	l.ShareLimitSource = models.ShareLimitSource(source)
	return l, nil
}

// SpendCredits decrements a balance only when it covers the amount.
func (r *CreditRepo) SpendCredits(ctx context.Context, userID uuid.UUID, ct models.CreditType, amount int) (int, error) {
	col, err := CreditColumn(ct)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`UPDATE credit_ledgers SET %[1]s = %[1]s - $2, updated_at = NOW()
		WHERE user_id = $1 AND %[1]s >= $2
		RETURNING %[1]s`, col)

	var balance int
	err = r.pool.QueryRow(ctx, query, userID, amount).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInsufficientCredits
	}
	return balance, err
}

func (r *CreditRepo) ResetShareCreditsForUser(ctx context.Context, userID uuid.UUID, limits models.ShareLimits, monthStart, at time.Time) (bool, error) {
	query := `UPDATE credit_ledgers SET ` + ShareResetAssignments + `
		WHERE user_id = $4
		  AND (share_credits_last_reset_at IS NULL OR share_credits_last_reset_at < $5)`

	tag, err := r.pool.Exec(ctx, query, limits.Exam, limits.Practice, at, userID, monthStart)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *CreditRepo) ResetShareCreditsForTier(ctx context.Context, tier models.Tier, limits models.ShareLimits, monthStart, at time.Time) (int64, error) {
	query := `UPDATE credit_ledgers SET ` + ShareResetAssignments + `
		WHERE user_id IN (SELECT id FROM users WHERE plan = $4)
		  AND (share_credits_last_reset_at IS NULL OR share_credits_last_reset_at < $5)`

	tag, err := r.pool.Exec(ctx, query, limits.Exam, limits.Practice, at, string(tier), monthStart)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetShareLimitOverride pins the monthly share limits for one user and caps the
// current balances at the new limits.
func (r *CreditRepo) SetShareLimitOverride(ctx context.Context, userID uuid.UUID, limits models.ShareLimits) error {
	query := `INSERT INTO credit_ledgers (user_id, share_credits_exam_monthly_limit, share_credits_practice_monthly_limit, share_limit_source)
		VALUES ($1, $2, $3, 'override')
		ON CONFLICT (user_id) DO UPDATE SET
			share_credits_exam_monthly_limit = EXCLUDED.share_credits_exam_monthly_limit,
			share_credits_practice_monthly_limit = EXCLUDED.share_credits_practice_monthly_limit,
			share_credits_exam = LEAST(credit_ledgers.share_credits_exam, EXCLUDED.share_credits_exam_monthly_limit),
			share_credits_practice = LEAST(credit_ledgers.share_credits_practice, EXCLUDED.share_credits_practice_monthly_limit),
			share_limit_source = 'override',
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, userID, limits.Exam, limits.Practice)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

// GrantReward claims the completion row, credits the owner and records the
// notification in one transaction. A completion that is no longer pending
// yields ErrAlreadyClaimed and nothing is written.
func (r *CreditRepo) GrantReward(ctx context.Context, g *models.RewardGrant) error {
	col, err := CreditColumn(g.CreditType)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reward grant: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE shared_content_completions
		SET reward_status = 'granted', rewarded_at = $2
		WHERE id = $1 AND reward_status = 'pending'`, g.CompletionID, g.GrantedAt)
	if err != nil {
		return fmt.Errorf("claim completion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyClaimed
	}

	increment := fmt.Sprintf(`INSERT INTO credit_ledgers (user_id, %[1]s) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET %[1]s = credit_ledgers.%[1]s + EXCLUDED.%[1]s, updated_at = NOW()`, col)
	if _, err := tx.Exec(ctx, increment, g.OwnerID, g.Units); err != nil {
		return fmt.Errorf("increment %s: %w", col, err)
	}

	n := g.Notification
	if err := tx.QueryRow(ctx, `INSERT INTO notifications (id, user_id, category, title, message, target_type, target_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		n.ID, n.UserID, n.Category, n.Title, n.Message, string(n.TargetType), n.TargetID, g.GrantedAt,
	).Scan(&n.CreatedAt); err != nil {
		return fmt.Errorf("insert reward notification: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reward grant: %w", err)
	}
	return nil
}
