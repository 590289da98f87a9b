package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct {
	Message    string
	ResourceID *uuid.UUID
}

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }

// QuotaExceededError carries the eligibility snapshot so callers can show when
// the next exam becomes available.
type QuotaExceededError struct {
	Status *models.EligibilityStatus
}

func (e *QuotaExceededError) Error() string { return "Weekly exam limit reached" }

type InvalidStateError struct {
	Current models.SessionStatus
	Action  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a session that is %s", e.Action, e.Current)
}

type InsufficientCreditsError struct {
	Type models.CreditType
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("not enough %s credits", e.Type)
}
