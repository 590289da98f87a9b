package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

func (s *Store) GetSharedPost(ctx context.Context, postID uuid.UUID) (*models.SharedPost, error) {
	p := &models.SharedPost{}
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, title, shared_exam_id, shared_practice_id, created_at
		FROM shared_posts WHERE id = ?1`, postID,
	).Scan(&p.ID, &p.UserID, &p.Title, &p.SharedExamID, &p.SharedPracticeID, &created)
	if err != nil {
		return nil, notFound(err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

// CreateSharedPost stores a post row. Posts belong to the sharing subsystem;
// this exists for local seeding.
func (s *Store) CreateSharedPost(ctx context.Context, p *models.SharedPost) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO shared_posts (id, user_id, title, shared_exam_id, shared_practice_id, created_at)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6)`,
		p.ID, p.UserID, p.Title, p.SharedExamID, p.SharedPracticeID, toMillis(p.CreatedAt))
	return err
}

func scanCompletion(row rowScanner) (*models.ShareCompletion, error) {
	c := &models.ShareCompletion{}
	var status string
	var rewarded sql.NullInt64
	var created int64
	if err := row.Scan(&c.ID, &c.PostID, &c.UserID, &status, &rewarded, &created); err != nil {
		return nil, err
	}
	c.RewardStatus = models.RewardStatus(status)
	c.RewardedAt = timePtr(rewarded)
	c.CreatedAt = fromMillis(created)
	return c, nil
}

func (s *Store) RecordCompletion(ctx context.Context, postID, userID uuid.UUID, at time.Time) (*models.ShareCompletion, bool, error) {
	c, err := scanCompletion(s.db.QueryRowContext(ctx, `INSERT INTO shared_content_completions (id, post_id, user_id, reward_status, created_at)
		VALUES (?1, ?2, ?3, 'pending', ?4)
		ON CONFLICT (post_id, user_id) DO NOTHING
		RETURNING id, post_id, user_id, reward_status, rewarded_at, created_at`,
		uuid.New(), postID, userID, toMillis(at)))
	if err == nil {
		return c, true, nil
	}
	if isForeignKeyViolation(err) {
		return nil, false, repository.ErrNotFound
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	c, err = scanCompletion(s.db.QueryRowContext(ctx, `SELECT id, post_id, user_id, reward_status, rewarded_at, created_at
		FROM shared_content_completions WHERE post_id = ?1 AND user_id = ?2`, postID, userID))
	if err != nil {
		return nil, false, notFound(err)
	}
	return c, false, nil
}

func (s *Store) MarkCompletionSkipped(ctx context.Context, completionID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE shared_content_completions SET reward_status = 'skipped'
		WHERE id = ?1 AND reward_status = 'pending'`, completionID)
	return err
}
