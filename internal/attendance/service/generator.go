package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"cheqr/backend/internal/attendance/codec"
	"cheqr/backend/internal/attendance/domain"
	"cheqr/backend/internal/clock"
	"cheqr/backend/internal/config"
	"cheqr/backend/internal/notify"
	"cheqr/backend/internal/policy/engine"
)

// GenerateRequest asks for a QR session for a course.
type GenerateRequest struct {
	CourseID   string
	LecturerID string
	// Duration overrides the default window; zero selects the default. Must be in (0, 8h].
	Duration time.Duration
}

// GenerateResult is the session to display. Reused is true when an existing live session was returned.
type GenerateResult struct {
	Session *domain.Session
	Payload domain.Payload
	// Encoded is the QR text for Payload.
	Encoded string
	Reused  bool
}

// Generator creates attendance sessions on lecturer request.
type Generator struct {
	sessions        SessionRepo
	courses         CourseLookup
	authz           engine.Authorizer
	codec           *codec.Codec
	clock           clock.Clock
	notifier        notify.Notifier
	defaultDuration time.Duration
	newID           func() string
	generated       metric.Int64Counter
}

// NewGenerator returns a Generator. notifier may be nil. A non-positive defaultDuration selects one hour.
func NewGenerator(
	sessions SessionRepo,
	courses CourseLookup,
	authz engine.Authorizer,
	c *codec.Codec,
	clk clock.Clock,
	notifier notify.Notifier,
	defaultDuration time.Duration,
) *Generator {
	if !config.ValidSessionDuration(defaultDuration) {
		defaultDuration = time.Hour
	}
	return &Generator{
		sessions:        sessions,
		courses:         courses,
		authz:           authz,
		codec:           c,
		clock:           clk,
		notifier:        notifier,
		defaultDuration: defaultDuration,
		newID:           uuid.NewString,
		generated:       counter("attendance.sessions.generated", "Attendance sessions returned to lecturers"),
	}
}

// Generate returns a live session for the course, creating one unless a live one already exists.
// Errors: domain.ErrInvalidArgument (missing ids, bad duration), domain.ErrNotFound (course absent),
// domain.ErrUnauthorized (lecturer is not assigned to the course); anything else is a store or policy failure.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "attendance.Generate")
	defer span.End()

	if req.CourseID == "" || req.LecturerID == "" {
		return nil, fmt.Errorf("%w: course id and lecturer id are required", domain.ErrInvalidArgument)
	}
	d := req.Duration
	if d == 0 {
		d = g.defaultDuration
	}
	if !config.ValidSessionDuration(d) {
		return nil, fmt.Errorf("%w: duration must be whole seconds, positive and at most %s", domain.ErrInvalidArgument, config.MaxSessionDuration)
	}

	course, err := g.courses.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, fmt.Errorf("look up course: %w", err)
	}
	if course == nil {
		return nil, fmt.Errorf("%w: course %s", domain.ErrNotFound, req.CourseID)
	}
	allowed, err := g.authz.Authorize(ctx, engine.Request{
		Action:    engine.ActionGenerateSession,
		SubjectID: req.LecturerID,
		Role:      "lecturer",
		Course:    course,
	})
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	if !allowed {
		return nil, domain.ErrUnauthorized
	}

	now := g.clock.Now()
	live, err := g.sessions.FindLive(ctx, course.ID, now)
	if err != nil {
		return nil, fmt.Errorf("find live session: %w", err)
	}
	if live != nil {
		return g.result(ctx, live, true)
	}

	issuedAt := now.Truncate(time.Second)
	s := &domain.Session{
		ID:         g.newID(),
		CourseID:   course.ID,
		CourseCode: course.Code,
		CourseName: course.Name,
		LecturerID: req.LecturerID,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(d),
	}
	if err := g.sessions.Create(ctx, s); err != nil {
		if !errors.Is(err, domain.ErrSessionExists) {
			return nil, fmt.Errorf("create session: %w", err)
		}
		// A concurrent request created the same window first.
		existing, ferr := g.sessions.FindByWindow(ctx, s.CourseID, s.IssuedAt, s.ExpiresAt)
		if ferr != nil || existing == nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		return g.result(ctx, existing, true)
	}

	log.Ctx(ctx).Info().
		Str("session_id", s.ID).
		Str("course_id", s.CourseID).
		Time("expires_at", s.ExpiresAt).
		Msg("attendance: session generated")
	notify.PublishAsync(g.notifier, s.CourseID, notify.Event{
		Type:      notify.EventSessionGenerated,
		CourseID:  s.CourseID,
		SessionID: s.ID,
		At:        s.IssuedAt,
	})
	return g.result(ctx, s, false)
}

func (g *Generator) result(ctx context.Context, s *domain.Session, reused bool) (*GenerateResult, error) {
	p := domain.PayloadFor(s)
	encoded, err := g.codec.EncodePayload(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	g.generated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("reused", reused)))
	return &GenerateResult{Session: s, Payload: p, Encoded: encoded, Reused: reused}, nil
}
