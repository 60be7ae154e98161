// Package service implements attendance session generation, scan validation and the lecturer read side.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"cheqr/backend/internal/attendance/domain"
	coursedomain "cheqr/backend/internal/course/domain"
)

const instrumentationName = "cheqr.attendance"

// SessionRepo is the session store the services need. repository.Repository satisfies it.
type SessionRepo interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	FindLive(ctx context.Context, courseID string, now time.Time) (*domain.Session, error)
	FindByWindow(ctx context.Context, courseID string, issuedAt, expiresAt time.Time) (*domain.Session, error)
	AppendScanIfAbsent(ctx context.Context, sessionID, studentID string, scannedAt time.Time) (*domain.ScanRecord, error)
	ListByCourse(ctx context.Context, courseID string) ([]*domain.Session, error)
	CountScansSince(ctx context.Context, courseID string, since time.Time) (int, error)
}

// CourseLookup reads courses from the course directory. Returns (nil, nil) when the course does not exist.
type CourseLookup interface {
	GetByID(ctx context.Context, id string) (*coursedomain.Course, error)
}

// counter returns a named counter from the global meter provider. Instrument creation only fails on invalid
// names; a no-op counter is used then so metrics can never break a request.
func counter(name, description string) metric.Int64Counter {
	meter := otel.Meter(instrumentationName)
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		log.Warn().Err(err).Str("instrument", name).Msg("attendance: counter unavailable")
		c, _ = meter.Int64Counter("attendance.unavailable")
	}
	return c
}
