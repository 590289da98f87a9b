package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/metrics"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
)

const maxSpendAmount = 100

var shareLimitsByTier = map[models.Tier]models.ShareLimits{
	models.TierFree:    {Exam: 2, Practice: 3},
	models.TierPremium: {Exam: 10, Practice: 15},
}

// ShareLimitsForTier returns the monthly share-credit ceilings for a tier.
func ShareLimitsForTier(t models.Tier) models.ShareLimits {
	if l, ok := shareLimitsByTier[t]; ok {
		return l
	}
	return shareLimitsByTier[models.TierFree]
}

// MonthStart is the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// CreditService manages ledger balances. Every balance change is a single
// conditional statement in the store, never a read-modify-write here.
type CreditService struct {
	credits CreditStore
	tiers   TierSource
	now     func() time.Time
	logger  *zap.Logger
}

func NewCreditService(credits CreditStore, tiers TierSource, logger *zap.Logger) *CreditService {
	return &CreditService{credits: credits, tiers: tiers, now: time.Now, logger: logger}
}

// Balance returns the ledger after applying any monthly share reset that is due.
func (c *CreditService) Balance(ctx context.Context, userID uuid.UUID) (*models.CreditLedger, error) {
	if _, err := c.ReconcileShareCredits(ctx, userID); err != nil {
		return nil, err
	}
	return c.ledger(ctx, userID)
}

func (c *CreditService) ledger(ctx context.Context, userID uuid.UUID) (*models.CreditLedger, error) {
	l, err := c.credits.GetLedger(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "Credit ledger not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return l, nil
}

// ReconcileShareCredits creates the ledger if needed and refills share credits
// when the calendar month has turned since the last reset.
func (c *CreditService) ReconcileShareCredits(ctx context.Context, userID uuid.UUID) (bool, error) {
	tier, err := c.tiers.Tier(ctx, userID)
	if err != nil {
		return false, err
	}
	if err := c.credits.EnsureLedger(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, &NotFoundError{Message: "User not found"}
		}
		return false, fmt.Errorf("ensure ledger: %w", err)
	}

	now := c.now().UTC()
	reset, err := c.credits.ResetShareCreditsForUser(ctx, userID, ShareLimitsForTier(tier), MonthStart(now), now)
	if err != nil {
		return false, fmt.Errorf("reset share credits: %w", err)
	}
	if reset {
		metrics.ShareCreditsReset(string(tier), 1)
		c.logger.Debug("share credits reset", zap.String("user_id", userID.String()), zap.String("tier", string(tier)))
	}
	return reset, nil
}

// Spend consumes credits with a guarded decrement.
func (c *CreditService) Spend(ctx context.Context, userID uuid.UUID, req models.SpendCreditsRequest) (*models.CreditLedger, error) {
	if req.Amount == 0 {
		req.Amount = 1
	}
	fields := map[string]string{}
	if !req.Type.Valid() {
		fields["type"] = "Type must be exam, practice, share_exam or share_practice"
	}
	if req.Amount < 1 || req.Amount > maxSpendAmount {
		fields["amount"] = fmt.Sprintf("Amount must be between 1 and %d", maxSpendAmount)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if _, err := c.ReconcileShareCredits(ctx, userID); err != nil {
		return nil, err
	}

	if _, err := c.credits.SpendCredits(ctx, userID, req.Type, req.Amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			return nil, &InsufficientCreditsError{Type: req.Type}
		}
		return nil, fmt.Errorf("spend credits: %w", err)
	}
	return c.ledger(ctx, userID)
}

// ResetAllDue runs the monthly share reset for every tier.
func (c *CreditService) ResetAllDue(ctx context.Context) (int64, error) {
	now := c.now().UTC()
	var total int64
	for _, tier := range []models.Tier{models.TierFree, models.TierPremium} {
		n, err := c.credits.ResetShareCreditsForTier(ctx, tier, ShareLimitsForTier(tier), MonthStart(now), now)
		if err != nil {
			return total, fmt.Errorf("reset %s share credits: %w", tier, err)
		}
		metrics.ShareCreditsReset(string(tier), n)
		total += n
	}
	return total, nil
}

// OverrideShareLimits pins a user's monthly limits. Later resets refill to the
// pinned values instead of the tier defaults.
func (c *CreditService) OverrideShareLimits(ctx context.Context, userID uuid.UUID, limits models.ShareLimits) (*models.CreditLedger, error) {
	fields := map[string]string{}
	if limits.Exam < 0 {
		fields["exam"] = "Must not be negative"
	}
	if limits.Practice < 0 {
		fields["practice"] = "Must not be negative"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if err := c.credits.SetShareLimitOverride(ctx, userID, limits); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Message: "User not found"}
		}
		return nil, fmt.Errorf("override share limits: %w", err)
	}
	c.logger.Info("share limits overridden",
		zap.String("user_id", userID.String()),
		zap.Int("exam", limits.Exam),
		zap.Int("practice", limits.Practice))
	return c.ledger(ctx, userID)
}
