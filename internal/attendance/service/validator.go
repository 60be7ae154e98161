package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"cheqr/backend/internal/attendance/codec"
	"cheqr/backend/internal/attendance/domain"
	"cheqr/backend/internal/clock"
	coursedomain "cheqr/backend/internal/course/domain"
	"cheqr/backend/internal/notify"
)

// ScanRequest is one scan attempt. IntendedCourseID is the course whose screen the student opened before scanning.
type ScanRequest struct {
	RawPayload       string
	StudentID        string
	IntendedCourseID string
	// IntendedCourseCode is display-only: the wrong-course message prefers the code from the course directory
	// and uses this, then the id, only when the intended course cannot be found.
	IntendedCourseCode string
}

// Validator decides whether a scan records attendance. Each attempt is evaluated independently against current
// store state; gates run in a fixed order and the first failure decides the reason.
type Validator struct {
	sessions SessionRepo
	courses  CourseLookup
	codec    *codec.Codec
	clock    clock.Clock
	notifier notify.Notifier
	scans    metric.Int64Counter
}

// NewValidator returns a Validator. notifier may be nil.
func NewValidator(sessions SessionRepo, courses CourseLookup, c *codec.Codec, clk clock.Clock, notifier notify.Notifier) *Validator {
	return &Validator{
		sessions: sessions,
		courses:  courses,
		codec:    c,
		clock:    clk,
		notifier: notifier,
		scans:    counter("attendance.scans", "Scan attempts by outcome"),
	}
}

// Validate runs the gates for req. Rejections are returned as results with Accepted false; the error is reserved
// for missing request fields (domain.ErrInvalidArgument) and store or lookup failures, which callers may retry.
func (v *Validator) Validate(ctx context.Context, req ScanRequest) (*domain.ScanResult, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "attendance.Validate")
	defer span.End()

	if req.StudentID == "" || req.IntendedCourseID == "" {
		return nil, fmt.Errorf("%w: student id and intended course id are required", domain.ErrInvalidArgument)
	}
	res, err := v.validate(ctx, req)
	if err != nil {
		return nil, err
	}
	v.scans.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", res.Outcome())))

	l := log.Ctx(ctx)
	if res.Accepted {
		l.Info().Str("session_id", res.Record.SessionID).Str("student_id", req.StudentID).Msg("attendance: scan accepted")
		notify.PublishAsync(v.notifier, res.Session.CourseID, notify.Event{
			Type:      notify.EventNewScan,
			CourseID:  res.Session.CourseID,
			SessionID: res.Record.SessionID,
			StudentID: res.Record.StudentID,
			At:        res.Record.ScannedAt,
		})
	} else {
		l.Info().Str("reason", string(res.Reason)).Str("student_id", req.StudentID).
			Str("course_id", req.IntendedCourseID).Msg("attendance: scan rejected")
	}
	return res, nil
}

func (v *Validator) validate(ctx context.Context, req ScanRequest) (*domain.ScanResult, error) {
	res := &domain.ScanResult{LastState: domain.StateReceived}

	p, err := v.codec.Decode(req.RawPayload)
	if err != nil {
		return reject(res, domain.RejectMalformedCode, "Invalid QR code format."), nil
	}
	res.Payload = p
	res.LastState = domain.StateDecoded

	if v.codec.Signing() && !v.codec.Verify(p) {
		return reject(res, domain.RejectInvalidSignature,
			"This QR code could not be verified. Please scan the code displayed by your lecturer."), nil
	}

	if p.CourseID != req.IntendedCourseID {
		return reject(res, domain.RejectWrongCourse, fmt.Sprintf(
			"This QR code is for %s. You are trying to mark attendance for %s.", p.CourseCode, v.intendedCode(ctx, req))), nil
	}
	res.LastState = domain.StateCourseMatched

	course, err := v.enrolledCourse(ctx, p.CourseID, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("look up course: %w", err)
	}
	if !course.IsEnrolled(req.StudentID) {
		return reject(res, domain.RejectNotEnrolled, fmt.Sprintf(
			"You are not enrolled in %s. Attendance cannot be marked.", p.CourseCode)), nil
	}
	res.LastState = domain.StateEnrollmentVerified

	now := v.clock.Now()
	if now.After(p.ExpiresAt) {
		return reject(res, domain.RejectExpired,
			"This QR code has expired. Please ask your lecturer to generate a new one."), nil
	}
	res.LastState = domain.StateNotExpired

	s, err := v.sessions.FindByWindow(ctx, p.CourseID, p.GeneratedAt, p.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if s == nil {
		return reject(res, domain.RejectSessionNotFound, sessionGoneMessage), nil
	}
	res.Session = s

	rec, err := v.sessions.AppendScanIfAbsent(ctx, s.ID, req.StudentID, now)
	switch {
	case errors.Is(err, domain.ErrAlreadyRecorded):
		return reject(res, domain.RejectAlreadyRecorded,
			"Your attendance for this session has already been recorded."), nil
	case errors.Is(err, domain.ErrNotFound):
		return reject(res, domain.RejectSessionNotFound, sessionGoneMessage), nil
	case err != nil:
		return nil, fmt.Errorf("record scan: %w", err)
	}
	res.LastState = domain.StateNotDuplicate

	res.Accepted = true
	res.LastState = domain.StateAccepted
	res.Record = rec
	res.Message = fmt.Sprintf("Attendance recorded for %s.", s.CourseCode)
	return res, nil
}

const sessionGoneMessage = "This QR code is no longer valid. Please ask your lecturer to generate a new one."

// reject finalises res as a rejection. LastState keeps the last gate passed.
func reject(res *domain.ScanResult, reason domain.RejectReason, msg string) *domain.ScanResult {
	res.Accepted = false
	res.Reason = reason
	res.Message = msg
	return res
}

// cacheInvalidator is implemented by course lookups that may serve stale entries.
type cacheInvalidator interface {
	Invalidate(id string)
}

// enrolledCourse loads the course for the enrollment gate. When a cached entry does not list the student,
// the entry is dropped and read once more so an enrollment made after caching is seen immediately.
func (v *Validator) enrolledCourse(ctx context.Context, courseID, studentID string) (*coursedomain.Course, error) {
	course, err := v.courses.GetByID(ctx, courseID)
	if err != nil || course.IsEnrolled(studentID) {
		return course, err
	}
	inv, ok := v.courses.(cacheInvalidator)
	if !ok {
		return course, nil
	}
	inv.Invalidate(courseID)
	return v.courses.GetByID(ctx, courseID)
}

// intendedCode names the course the student meant to scan for, preferring the directory's code.
func (v *Validator) intendedCode(ctx context.Context, req ScanRequest) string {
	c, err := v.courses.GetByID(ctx, req.IntendedCourseID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("course_id", req.IntendedCourseID).Msg("attendance: intended course lookup failed")
	}
	if c != nil && c.Code != "" {
		return c.Code
	}
	if req.IntendedCourseCode != "" {
		return req.IntendedCourseCode
	}
	return req.IntendedCourseID
}
