package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cheqr/backend/internal/course/domain"
)

var (
	_ Repository = (*MemoryRepository)(nil)
	_ Repository = (*CachedRepository)(nil)
	_ Repository = (*MongoRepository)(nil)
)

// countingRepo counts lookups and can be made to fail.
type countingRepo struct {
	inner Repository
	calls int
	err   error
}

func (r *countingRepo) GetByID(ctx context.Context, id string) (*domain.Course, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.inner.GetByID(ctx, id)
}

func testCourse() *domain.Course {
	return &domain.Course{
		ID:                 "course-a",
		Code:               "CS101",
		Name:               "Intro",
		LecturerID:         "lect-1",
		EnrolledStudentIDs: []string{"stu-1", "stu-2"},
	}
}

func TestMemoryRepository_GetByID(t *testing.T) {
	repo := NewMemoryRepository(testCourse())
	ctx := context.Background()

	c, err := repo.GetByID(ctx, "course-a")
	if err != nil || c == nil {
		t.Fatalf("GetByID = %v, %v", c, err)
	}
	if !c.IsEnrolled("stu-2") || c.IsEnrolled("stu-3") {
		t.Errorf("enrollment = %v", c.EnrolledStudentIDs)
	}
	c.EnrolledStudentIDs[0] = "mutated"
	again, _ := repo.GetByID(ctx, "course-a")
	if again.EnrolledStudentIDs[0] != "stu-1" {
		t.Error("GetByID should return a copy")
	}

	missing, err := repo.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetByID(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestCachedRepository_CachesHits(t *testing.T) {
	inner := &countingRepo{inner: NewMemoryRepository(testCourse())}
	repo := NewCachedRepository(inner, time.Minute)
	defer repo.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := repo.GetByID(ctx, "course-a")
		if err != nil || c == nil || c.Code != "CS101" {
			t.Fatalf("GetByID = %v, %v", c, err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
	repo.Invalidate("course-a")
	if _, err := repo.GetByID(ctx, "course-a"); err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner calls after Invalidate = %d, want 2", inner.calls)
	}
}

func TestCachedRepository_DoesNotCacheMisses(t *testing.T) {
	mem := NewMemoryRepository()
	inner := &countingRepo{inner: mem}
	repo := NewCachedRepository(inner, time.Minute)
	defer repo.Close()
	ctx := context.Background()

	if c, err := repo.GetByID(ctx, "course-a"); err != nil || c != nil {
		t.Fatalf("GetByID(missing) = %v, %v", c, err)
	}
	mem.Put(testCourse())
	c, err := repo.GetByID(ctx, "course-a")
	if err != nil || c == nil {
		t.Fatalf("course created after a miss should be found: %v, %v", c, err)
	}
}

func TestCachedRepository_PropagatesErrors(t *testing.T) {
	boom := errors.New("mongo down")
	repo := NewCachedRepository(&countingRepo{err: boom}, time.Minute)
	defer repo.Close()

	if _, err := repo.GetByID(context.Background(), "course-a"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if _, err := repo.GetByID(context.Background(), "course-a"); !errors.Is(err, boom) {
		t.Errorf("second err = %v, want %v", err, boom)
	}
}

func TestCachedRepository_ReturnsCopies(t *testing.T) {
	repo := NewCachedRepository(NewMemoryRepository(testCourse()), time.Minute)
	defer repo.Close()
	ctx := context.Background()

	c, _ := repo.GetByID(ctx, "course-a")
	c.EnrolledStudentIDs[0] = "mutated"
	again, _ := repo.GetByID(ctx, "course-a")
	if again.EnrolledStudentIDs[0] != "stu-1" {
		t.Error("cached course was mutated through a returned value")
	}
}

func TestMongoRepository_RoundTrip(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx := context.Background()
	repo, err := Connect(ctx, uri, "cheqr_test")
	if err != nil {
		t.Skipf("MongoDB connection failed (expected in test environment): %v", err)
	}
	defer repo.Close(ctx)

	for _, id := range []string{"65a1b2c3d4e5f60718293a4b", "plain-string-id"} {
		c := testCourse()
		c.ID = id
		if err := repo.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert(%s): %v", id, err)
		}
		got, err := repo.GetByID(ctx, id)
		if err != nil || got == nil {
			t.Fatalf("GetByID(%s) = %v, %v", id, got, err)
		}
		if got.ID != id || got.LecturerID != "lect-1" || !got.IsEnrolled("stu-1") {
			t.Errorf("GetByID(%s) = %+v", id, got)
		}
	}
	if got, err := repo.GetByID(ctx, "65a1b2c3d4e5f60718290000"); err != nil || got != nil {
		t.Errorf("GetByID(missing) = %v, %v; want nil, nil", got, err)
	}
}
