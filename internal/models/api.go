package models

import (
	"time"

	"github.com/google/uuid"
)

// WebSocket message pushed to connected clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

// QuotaExceededResponse carries the remediation data shown to blocked users.
type QuotaExceededResponse struct {
	Error          APIError   `json:"error"`
	ExamsTaken     int        `json:"examsTaken"`
	MaxExams       *int       `json:"maxExams"`
	NextEligibleAt *time.Time `json:"nextEligibleAt"`
}

type ConflictResponse struct {
	Error           APIError   `json:"error"`
	PausedSessionID *uuid.UUID `json:"pausedSessionId,omitempty"`
}
