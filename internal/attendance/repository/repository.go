package repository

import (
	"context"
	"time"

	"cheqr/backend/internal/attendance/domain"
)

// Repository defines persistence for attendance sessions and their scans.
// Lookups return (nil, nil) when nothing matches; errors are reserved for store failures.
type Repository interface {
	// Create persists a new session. Returns domain.ErrSessionExists if the course already has a session
	// with the same issuedAt/expiresAt.
	Create(ctx context.Context, s *domain.Session) error
	// GetByID returns the session with its scans in arrival order.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// FindLive returns the most recently issued session for courseID with expiresAt > now. Scans are not loaded.
	FindLive(ctx context.Context, courseID string, now time.Time) (*domain.Session, error)
	// FindByWindow returns the session for courseID issued at issuedAt and expiring at expiresAt. Scans are not loaded.
	FindByWindow(ctx context.Context, courseID string, issuedAt, expiresAt time.Time) (*domain.Session, error)
	// AppendScanIfAbsent atomically records studentID against sessionID. Returns domain.ErrAlreadyRecorded when the
	// student already has a scan in the session and domain.ErrNotFound when the session does not exist.
	AppendScanIfAbsent(ctx context.Context, sessionID, studentID string, scannedAt time.Time) (*domain.ScanRecord, error)
	// ListByCourse returns every session for courseID with its scans, most recent issuedAt first.
	ListByCourse(ctx context.Context, courseID string) ([]*domain.Session, error)
	// CountScansSince counts scans across all sessions of courseID with scannedAt >= since.
	CountScansSince(ctx context.Context, courseID string, since time.Time) (int, error)
}
