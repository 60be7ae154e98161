package engine

import (
	"context"

	coursedomain "cheqr/backend/internal/course/domain"
)

// Action names what the subject wants to do with a course.
type Action string

const (
	// ActionGenerateSession is a lecturer generating (or reusing) a QR session.
	ActionGenerateSession Action = "generate_session"
	// ActionViewAttendance is reading a course's attendance list, recent-scan count or live channel.
	ActionViewAttendance Action = "view_attendance"
)

// Request is the input to a course authorization decision.
type Request struct {
	Action    Action
	SubjectID string
	// Role is the bearer's role (admin, lecturer, student); may be empty for service callers.
	Role   string
	Course *coursedomain.Course
}

// Authorizer decides whether a subject may act on a course.
type Authorizer interface {
	// Authorize returns true when the policy allows the request.
	// An error means no decision could be made at all; policy evaluation failures fall back to built-in rules.
	Authorize(ctx context.Context, req Request) (bool, error)
}
