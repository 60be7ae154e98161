package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"cheqr/backend/internal/attendance/domain"
	"cheqr/backend/internal/attendance/repository"
	coursedomain "cheqr/backend/internal/course/domain"
	"cheqr/backend/internal/notify"
)

func TestGenerate_DefaultWindow(t *testing.T) {
	f := newFixture(t, "")
	res := f.generate(t, "course-a", "lect-a")

	if res.Reused {
		t.Error("first generate should not be reused")
	}
	s := res.Session
	if !s.IssuedAt.Equal(nine) {
		t.Errorf("IssuedAt = %v, want %v", s.IssuedAt, nine)
	}
	if got := s.ExpiresAt.Sub(s.IssuedAt); got != time.Hour {
		t.Errorf("window = %v, want 1h", got)
	}
	if s.CourseCode != "CS101" || s.CourseName != "Intro to Computing" || s.LecturerID != "lect-a" {
		t.Errorf("session snapshot = %+v", s)
	}
	want := `{"courseId":"course-a","courseCode":"CS101","courseName":"Intro to Computing","generatedAt":"2024-01-01T09:00:00+08:00","expiresAt":"2024-01-01T10:00:00+08:00"}`
	if res.Encoded != want {
		t.Errorf("Encoded = %s, want %s", res.Encoded, want)
	}
	stored, err := f.sessions.GetByID(context.Background(), s.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: %v, %v", stored, err)
	}
}

func TestGenerate_DurationOverride(t *testing.T) {
	f := newFixture(t, "")
	res, err := f.generator.Generate(context.Background(), GenerateRequest{
		CourseID: "course-a", LecturerID: "lect-a", Duration: 90 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := res.Session.ExpiresAt.Sub(res.Session.IssuedAt); got != 90*time.Minute {
		t.Errorf("window = %v, want 90m", got)
	}
	if !res.Payload.ExpiresAt.Equal(res.Session.ExpiresAt) {
		t.Error("payload expiry differs from session expiry")
	}
}

func TestGenerate_TruncatesToSeconds(t *testing.T) {
	f := newFixture(t, "")
	f.clock.Set(nine.Add(1500 * time.Millisecond))
	res := f.generate(t, "course-a", "lect-a")
	if !res.Session.IssuedAt.Equal(nine.Add(time.Second)) {
		t.Errorf("IssuedAt = %v, want whole second", res.Session.IssuedAt)
	}
	if res.Session.ExpiresAt.Nanosecond() != 0 {
		t.Errorf("ExpiresAt = %v, want whole second", res.Session.ExpiresAt)
	}
}

func TestGenerate_ReusesLiveSession(t *testing.T) {
	f := newFixture(t, "")
	first := f.generate(t, "course-a", "lect-a")

	f.clock.Set(nine.Add(20 * time.Minute))
	second := f.generate(t, "course-a", "lect-a")
	if !second.Reused {
		t.Error("second generate within the window should be reused")
	}
	if second.Session.ID != first.Session.ID {
		t.Errorf("session id = %s, want %s", second.Session.ID, first.Session.ID)
	}
	if second.Encoded != first.Encoded {
		t.Error("reused session should encode to the same payload")
	}

	f.clock.Set(nine.Add(time.Hour + time.Second))
	third := f.generate(t, "course-a", "lect-a")
	if third.Reused || third.Session.ID == first.Session.ID {
		t.Error("generate after expiry should create a new session")
	}
	list, _ := f.sessions.ListByCourse(context.Background(), "course-a")
	if len(list) != 2 {
		t.Errorf("stored sessions = %d, want 2", len(list))
	}
}

func TestGenerate_PublishesSessionGenerated(t *testing.T) {
	f := newFixture(t, "")
	res := f.generate(t, "course-a", "lect-a")

	ev := f.events.wait(t)
	if ev.Type != notify.EventSessionGenerated || ev.CourseID != "course-a" || ev.SessionID != res.Session.ID {
		t.Errorf("event = %+v", ev)
	}
	if !ev.At.Equal(res.Session.IssuedAt) {
		t.Errorf("event At = %v, want %v", ev.At, res.Session.IssuedAt)
	}
}

func TestGenerate_Errors(t *testing.T) {
	testCases := []struct {
		name string
		req  GenerateRequest
		want error
	}{
		{"missing course", GenerateRequest{LecturerID: "lect-a"}, domain.ErrInvalidArgument},
		{"missing lecturer", GenerateRequest{CourseID: "course-a"}, domain.ErrInvalidArgument},
		{"negative duration", GenerateRequest{CourseID: "course-a", LecturerID: "lect-a", Duration: -time.Minute}, domain.ErrInvalidArgument},
		{"fractional seconds", GenerateRequest{CourseID: "course-a", LecturerID: "lect-a", Duration: time.Hour + 500*time.Millisecond}, domain.ErrInvalidArgument},
		{"duration too long", GenerateRequest{CourseID: "course-a", LecturerID: "lect-a", Duration: 8*time.Hour + time.Second}, domain.ErrInvalidArgument},
		{"unknown course", GenerateRequest{CourseID: "nope", LecturerID: "lect-a"}, domain.ErrNotFound},
		{"other lecturer", GenerateRequest{CourseID: "course-a", LecturerID: "lect-b"}, domain.ErrUnauthorized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, "")
			res, err := f.generator.Generate(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if res != nil {
				t.Error("result should be nil on error")
			}
			list, _ := f.sessions.ListByCourse(context.Background(), "course-a")
			if len(list) != 0 {
				t.Error("no session should be stored on error")
			}
		})
	}
}

func TestGenerate_MaxDurationAccepted(t *testing.T) {
	f := newFixture(t, "")
	res, err := f.generator.Generate(context.Background(), GenerateRequest{
		CourseID: "course-a", LecturerID: "lect-a", Duration: 8 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := res.Session.ExpiresAt.Sub(res.Session.IssuedAt); got != 8*time.Hour {
		t.Errorf("window = %v, want 8h", got)
	}
}

type failingCourses struct{ err error }

func (f failingCourses) GetByID(ctx context.Context, id string) (*coursedomain.Course, error) {
	return nil, f.err
}

func TestGenerate_CourseLookupFailure(t *testing.T) {
	f := newFixture(t, "")
	boom := errors.New("mongo down")
	g := NewGenerator(f.sessions, failingCourses{err: boom}, stubAuthorizer{allow: true}, f.codec, f.clock, nil, time.Hour)

	_, err := g.Generate(context.Background(), GenerateRequest{CourseID: "course-a", LecturerID: "lect-a"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Error("infrastructure failure must not look like not found")
	}
}

func TestGenerate_AuthorizerFailure(t *testing.T) {
	f := newFixture(t, "")
	boom := errors.New("policy unavailable")
	g := NewGenerator(f.sessions, f.courses, stubAuthorizer{err: boom}, f.codec, f.clock, nil, time.Hour)

	_, err := g.Generate(context.Background(), GenerateRequest{CourseID: "course-a", LecturerID: "lect-a"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
}

// racingRepo hides live sessions from FindLive so Create hits the window conflict a concurrent request would.
type racingRepo struct {
	*repository.MemoryRepository
}

func (r racingRepo) FindLive(ctx context.Context, courseID string, now time.Time) (*domain.Session, error) {
	return nil, nil
}

func TestGenerate_ConcurrentWindowReusesWinner(t *testing.T) {
	f := newFixture(t, "")
	winner := f.generate(t, "course-a", "lect-a")

	g := NewGenerator(racingRepo{f.sessions}, f.courses, stubAuthorizer{allow: true}, f.codec, f.clock, nil, time.Hour)
	res, err := g.Generate(context.Background(), GenerateRequest{CourseID: "course-a", LecturerID: "lect-a"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Reused || res.Session.ID != winner.Session.ID {
		t.Errorf("got session %s reused=%v, want winner %s", res.Session.ID, res.Reused, winner.Session.ID)
	}
}

func TestNewGenerator_InvalidDefaultDuration(t *testing.T) {
	f := newFixture(t, "")
	for _, d := range []time.Duration{0, -time.Minute, 9 * time.Hour, time.Hour + 500*time.Millisecond} {
		g := NewGenerator(f.sessions, f.courses, stubAuthorizer{allow: true}, f.codec, f.clock, nil, d)
		if g.defaultDuration != time.Hour {
			t.Errorf("defaultDuration(%v) = %v, want 1h", d, g.defaultDuration)
		}
	}
}

func TestGenerate_EncodedWindowMatchesStoredWindow(t *testing.T) {
	f := newFixture(t, "")
	f.clock.Set(nine.Add(250 * time.Millisecond))
	res, err := f.generator.Generate(context.Background(), GenerateRequest{
		CourseID: "course-a", LecturerID: "lect-a", Duration: 90 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	p, err := f.codec.Decode(res.Encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !p.GeneratedAt.Equal(res.Session.IssuedAt) || !p.ExpiresAt.Equal(res.Session.ExpiresAt) {
		t.Fatalf("payload window %v..%v, session window %v..%v",
			p.GeneratedAt, p.ExpiresAt, res.Session.IssuedAt, res.Session.ExpiresAt)
	}

	f.clock.Set(nine.Add(10 * time.Minute))
	if scanned := scan(t, f, res.Encoded, "stu-1", "course-a"); !scanned.Accepted {
		t.Errorf("scan rejected: %s", scanned.Reason)
	}
}
