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

// PostRepo reads shared posts and records their completions.
type PostRepo struct {
	pool *pgxpool.Pool
}

func NewPostRepo(pool *pgxpool.Pool) *PostRepo {
	return &PostRepo{pool: pool}
}

func (r *PostRepo) GetSharedPost(ctx context.Context, postID uuid.UUID) (*models.SharedPost, error) {
	p := &models.SharedPost{}
	query := `SELECT id, user_id, title, shared_exam_id, shared_practice_id, created_at
		FROM shared_posts WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, postID).Scan(&p.ID, &p.UserID, &p.Title, &p.SharedExamID, &p.SharedPracticeID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RecordCompletion inserts the (post, user) completion row once. The second
// return value reports whether this call created it.
func (r *PostRepo) RecordCompletion(ctx context.Context, postID, userID uuid.UUID, at time.Time) (*models.ShareCompletion, bool, error) {
	c := &models.ShareCompletion{}
	var status string

	err := r.pool.QueryRow(ctx, `INSERT INTO shared_content_completions (id, post_id, user_id, reward_status, created_at)
		VALUES ($1, $2, $3, 'pending', $4)
		ON CONFLICT (post_id, user_id) DO NOTHING
		RETURNING id, post_id, user_id, reward_status, rewarded_at, created_at`,
		uuid.New(), postID, userID, at,
	).Scan(&c.ID, &c.PostID, &c.UserID, &status, &c.RewardedAt, &c.CreatedAt)
	if err == nil {
		c.RewardStatus = models.RewardStatus(status)
		return c, true, nil
	}
	if isForeignKeyViolation(err) {
		return nil, false, ErrNotFound
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	err = r.pool.QueryRow(ctx, `SELECT id, post_id, user_id, reward_status, rewarded_at, created_at
		FROM shared_content_completions WHERE post_id = $1 AND user_id = $2`, postID, userID,
	).Scan(&c.ID, &c.PostID, &c.UserID, &status, &c.RewardedAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	c.RewardStatus = models.RewardStatus(status)
	return c, false, nil
}

func (r *PostRepo) MarkCompletionSkipped(ctx context.Context, completionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE shared_content_completions SET reward_status = 'skipped'
		WHERE id = $1 AND reward_status = 'pending'`, completionID)
	return err
}
