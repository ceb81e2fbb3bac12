package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// DefaultTimeout bounds every database call when no timeout is configured.
const DefaultTimeout = 300 * time.Millisecond

const uniqueViolation = "23505"

var (
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrSettingsNotFound signals that the singleton settings row is missing.
	ErrSettingsNotFound = errors.New("settings not found")
	// ErrConflict signals a unique constraint violation on insert.
	ErrConflict = errors.New("unique constraint violated")
	// ErrTimeout signals that the database did not answer within the timeout.
	ErrTimeout = errors.New("database operation timed out")
	// ErrBackend wraps any other database or driver failure.
	ErrBackend = errors.New("database error")
)

// withTimeout derives the context a single database call runs under.
//
// When the deadline passes the caller stops waiting. A statement the server
// already accepted may still commit.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// translate maps a driver or GORM error onto the store taxonomy. ctx must be
// the context returned by withTimeout for the failed call.
func translate(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		pgconn.Timeout(err):
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrBackend, err)
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

// ErrorKind labels err for metrics: timeout, conflict, not_found, backend or unknown.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrLinkNotFound), errors.Is(err, ErrSettingsNotFound):
		return "not_found"
	case errors.Is(err, ErrBackend):
		return "backend"
	default:
		return "unknown"
	}
}
