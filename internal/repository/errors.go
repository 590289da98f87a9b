package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrStateMismatch indicates a compare-and-swap update found the row in another state.
	ErrStateMismatch = errors.New("record state changed")
	// ErrPauseConflict indicates the one-paused-session-per-kind constraint rejected a write.
	ErrPauseConflict = errors.New("paused session already exists")
	// ErrInsufficientCredits indicates a guarded decrement found a balance below the amount.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrAlreadyClaimed indicates a completion row was already rewarded or skipped.
	ErrAlreadyClaimed = errors.New("completion already claimed")
)

const pausedSessionIndex = "uq_sessions_one_paused_per_kind"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
