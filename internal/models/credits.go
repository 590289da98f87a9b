package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditType names one consumable balance on the ledger.
type CreditType string

const (
	CreditTypeExam          CreditType = "exam"
	CreditTypePractice      CreditType = "practice"
	CreditTypeShareExam     CreditType = "share_exam"
	CreditTypeSharePractice CreditType = "share_practice"
)

func (c CreditType) Valid() bool {
	switch c {
	case CreditTypeExam, CreditTypePractice, CreditTypeShareExam, CreditTypeSharePractice:
		return true
	}
	return false
}

// RewardCreditType is the balance credited when content of the given kind is completed.
func RewardCreditType(kind SessionKind) CreditType {
	if kind == SessionKindExam {
		return CreditTypeExam
	}
	return CreditTypePractice
}

// ShareLimitSource records where the monthly share limits came from. Only
// tier-derived limits are recomputed by a reset.
type ShareLimitSource string

const (
	ShareLimitSourceTier     ShareLimitSource = "tier"
	ShareLimitSourceOverride ShareLimitSource = "override"
)

type ShareLimits struct {
	Exam     int `json:"exam"`
	Practice int `json:"practice"`
}

type CreditLedger struct {
	UserID                           uuid.UUID        `json:"userId"`
	ExamCredits                      int              `json:"examCredits"`
	PracticeCredits                  int              `json:"practiceCredits"`
	ShareCreditsExam                 int              `json:"shareCreditsExam"`
	ShareCreditsPractice             int              `json:"shareCreditsPractice"`
	ShareCreditsExamMonthlyLimit     int              `json:"shareCreditsExamMonthlyLimit"`
	ShareCreditsPracticeMonthlyLimit int              `json:"shareCreditsPracticeMonthlyLimit"`
	ShareCreditsLastResetAt          *time.Time       `json:"shareCreditsLastResetAt"`
	ShareLimitSource                 ShareLimitSource `json:"shareLimitSource"`
	UpdatedAt                        time.Time        `json:"updatedAt"`
}

type SpendCreditsRequest struct {
	Type   CreditType `json:"type"`
	Amount int        `json:"amount"`
}

// RewardGrant is applied atomically: the completion claim, the balance
// increment and the notification insert commit together.
type RewardGrant struct {
	CompletionID uuid.UUID
	OwnerID      uuid.UUID
	CreditType   CreditType
	Units        int
	Notification *Notification
	GrantedAt    time.Time
}

type RewardOutcome struct {
	CompletionID   uuid.UUID   `json:"completionId"`
	PostID         uuid.UUID   `json:"postId"`
	OwnerID        uuid.UUID   `json:"ownerId"`
	Kind           SessionKind `json:"kind"`
	Rewarded       bool        `json:"rewarded"`
	Reason         string      `json:"reason,omitempty"`
	NotificationID *uuid.UUID  `json:"notificationId,omitempty"`
}
