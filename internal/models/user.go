package models

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the cached subscription level kept on the users row by the billing side.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// ParseTier maps unknown or empty plans to the free tier.
func ParseTier(plan string) Tier {
	if Tier(plan) == TierPremium {
		return TierPremium
	}
	return TierFree
}

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Plan      Tier      `json:"plan"`
	CreatedAt time.Time `json:"createdAt"`
}
