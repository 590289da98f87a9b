package models

import (
	"time"

	"github.com/google/uuid"
)

type PerformanceRecord struct {
	UserID          uuid.UUID `json:"userId"`
	WeeklyExamCount int       `json:"weeklyExamCount"`
	WeekStartDate   time.Time `json:"weekStartDate"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

const (
	EligibilityReasonPremium      = "premium"
	EligibilityReasonWithinQuota  = "within_quota"
	EligibilityReasonLimitReached = "weekly_limit_reached"
)

// EligibilityStatus is the weekly exam quota view. MaxExamsPerWeek is nil for
// unlimited tiers.
type EligibilityStatus struct {
	IsEligible         bool       `json:"isEligible"`
	ExamsTakenThisWeek int        `json:"examsTakenThisWeek"`
	MaxExamsPerWeek    *int       `json:"maxExamsPerWeek"`
	NextEligibleAt     *time.Time `json:"nextEligibleAt"`
	Reason             string     `json:"reason"`
	WeekStartDate      time.Time  `json:"weekStartDate"`
}
