package service

import (
	"context"
	"fmt"
	"time"

	"cheqr/backend/internal/attendance/codec"
	"cheqr/backend/internal/attendance/domain"
	"cheqr/backend/internal/clock"
	"cheqr/backend/internal/policy/engine"
)

// DefaultRecentWindow is the lecturer dashboard's "new scans" window.
const DefaultRecentWindow = 5 * time.Minute

// MaxRecentWindow bounds the recent-scan query.
const MaxRecentWindow = 24 * time.Hour

// Reader serves the lecturer read side: attendance lists, recent-scan counts and session lookups.
// It is the reconciliation path for missed live events.
type Reader struct {
	sessions SessionRepo
	courses  CourseLookup
	authz    engine.Authorizer
	codec    *codec.Codec
	clock    clock.Clock
}

// NewReader returns a Reader.
func NewReader(sessions SessionRepo, courses CourseLookup, authz engine.Authorizer, c *codec.Codec, clk clock.Clock) *Reader {
	return &Reader{sessions: sessions, courses: courses, authz: authz, codec: c, clock: clk}
}

// CheckAccess returns nil when subjectID (with role) may view courseID's attendance.
// Errors: domain.ErrNotFound (course absent), domain.ErrUnauthorized (policy denied).
func (r *Reader) CheckAccess(ctx context.Context, subjectID, role, courseID string) error {
	course, err := r.courses.GetByID(ctx, courseID)
	if err != nil {
		return fmt.Errorf("look up course: %w", err)
	}
	if course == nil {
		return fmt.Errorf("%w: course %s", domain.ErrNotFound, courseID)
	}
	ok, err := r.authz.Authorize(ctx, engine.Request{
		Action:    engine.ActionViewAttendance,
		SubjectID: subjectID,
		Role:      role,
		Course:    course,
	})
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	if !ok {
		return domain.ErrUnauthorized
	}
	return nil
}

// ListAttendance returns every session of courseID with its scans, most recent first. Never nil.
func (r *Reader) ListAttendance(ctx context.Context, courseID string) ([]*domain.Session, error) {
	if courseID == "" {
		return nil, fmt.Errorf("%w: course id is required", domain.ErrInvalidArgument)
	}
	list, err := r.sessions.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if list == nil {
		list = []*domain.Session{}
	}
	return list, nil
}

// RecentScanCount counts scans for courseID in the last window (DefaultRecentWindow when zero).
func (r *Reader) RecentScanCount(ctx context.Context, courseID string, window time.Duration) (int, error) {
	if courseID == "" {
		return 0, fmt.Errorf("%w: course id is required", domain.ErrInvalidArgument)
	}
	if window == 0 {
		window = DefaultRecentWindow
	}
	if window < 0 || window > MaxRecentWindow {
		return 0, fmt.Errorf("%w: window must be positive and at most %s", domain.ErrInvalidArgument, MaxRecentWindow)
	}
	n, err := r.sessions.CountScansSince(ctx, courseID, r.clock.Now().Add(-window))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Session returns the session with its scans. Errors: domain.ErrNotFound.
func (r *Reader) Session(ctx context.Context, id string) (*domain.Session, error) {
	s, err := r.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return s, nil
}

// Encode returns the QR text for s, exactly as Generate returned it.
func (r *Reader) Encode(s *domain.Session) (string, error) {
	return r.codec.Encode(s)
}

// Now exposes the reader's clock so callers can compute remaining time consistently.
func (r *Reader) Now() time.Time {
	return r.clock.Now()
}
