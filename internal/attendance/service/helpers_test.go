package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"cheqr/backend/internal/attendance/codec"
	"cheqr/backend/internal/attendance/repository"
	"cheqr/backend/internal/clock"
	coursedomain "cheqr/backend/internal/course/domain"
	courserepo "cheqr/backend/internal/course/repository"
	"cheqr/backend/internal/notify"
	"cheqr/backend/internal/policy/engine"
)

// nine is 2024-01-01T09:00:00+08:00.
var nine = time.Date(2024, 1, 1, 9, 0, 0, 0, clock.ReferenceZone)

// testClock is a settable clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.In(clock.ReferenceZone)
	c.mu.Unlock()
}

// eventRecorder collects published events.
type eventRecorder struct {
	ch chan notify.Event
}

func newEventRecorder() *eventRecorder { return &eventRecorder{ch: make(chan notify.Event, 32)} }

func (r *eventRecorder) Publish(ctx context.Context, courseID string, ev notify.Event) error {
	r.ch <- ev
	return nil
}

func (r *eventRecorder) wait(t *testing.T) notify.Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
	return notify.Event{}
}

// fixture wires the services over in-memory stores.
type fixture struct {
	sessions  *repository.MemoryRepository
	courses   *courserepo.MemoryRepository
	clock     *testClock
	events    *eventRecorder
	codec     *codec.Codec
	generator *Generator
	validator *Validator
	reader    *Reader
}

func newFixture(t *testing.T, secret string) *fixture {
	t.Helper()
	authz, err := engine.NewOPAEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	f := &fixture{
		sessions: repository.NewMemoryRepository(),
		courses: courserepo.NewMemoryRepository(
			&coursedomain.Course{ID: "course-a", Code: "CS101", Name: "Intro to Computing", LecturerID: "lect-a", EnrolledStudentIDs: []string{"stu-1", "stu-2"}},
			&coursedomain.Course{ID: "course-b", Code: "MA201", Name: "Linear Algebra", LecturerID: "lect-b", EnrolledStudentIDs: []string{"stu-1", "stu-3"}},
		),
		clock:  &testClock{},
		events: newEventRecorder(),
		codec:  codec.New(nil, secret),
	}
	f.clock.Set(nine)
	f.generator = NewGenerator(f.sessions, f.courses, authz, f.codec, f.clock, f.events, time.Hour)
	f.validator = NewValidator(f.sessions, f.courses, f.codec, f.clock, f.events)
	f.reader = NewReader(f.sessions, f.courses, authz, f.codec, f.clock)
	return f
}

// generate creates a session for course at the fixture's current time.
func (f *fixture) generate(t *testing.T, courseID, lecturerID string) *GenerateResult {
	t.Helper()
	res, err := f.generator.Generate(context.Background(), GenerateRequest{CourseID: courseID, LecturerID: lecturerID})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return res
}

// drain discards queued events.
func (f *fixture) drain() {
	for {
		select {
		case <-f.events.ch:
		default:
			return
		}
	}
}

// stubAuthorizer returns a fixed decision.
type stubAuthorizer struct {
	allow bool
	err   error
}

func (s stubAuthorizer) Authorize(ctx context.Context, req engine.Request) (bool, error) {
	return s.allow, s.err
}
