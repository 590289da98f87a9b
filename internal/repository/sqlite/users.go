package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

func (s *Store) GetUserTier(ctx context.Context, userID uuid.UUID) (models.Tier, error) {
	var plan string
	if err := s.db.QueryRowContext(ctx, "SELECT plan FROM users WHERE id = ?1", userID).Scan(&plan); err != nil {
		return "", notFound(err)
	}
	return models.ParseTier(plan), nil
}

// UpsertUser mirrors a user row owned by the auth service.
func (s *Store) UpsertUser(ctx context.Context, u *models.User) error {
	if u.Plan == "" {
		u.Plan = models.TierFree
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (id, email, full_name, plan, created_at)
		VALUES (?1, ?2, ?3, ?4, ?5)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			full_name = excluded.full_name,
			plan = excluded.plan`,
		u.ID, u.Email, u.FullName, string(u.Plan), toMillis(u.CreatedAt))
	return err
}
