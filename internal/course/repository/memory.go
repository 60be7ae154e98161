package repository

import (
	"context"
	"sync"

	"cheqr/backend/internal/course/domain"
)

// MemoryRepository is a fixed in-process course directory for development without MongoDB and for tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	courses map[string]domain.Course
}

// NewMemoryRepository returns a directory holding copies of courses.
func NewMemoryRepository(courses ...*domain.Course) *MemoryRepository {
	r := &MemoryRepository{courses: make(map[string]domain.Course)}
	for _, c := range courses {
		r.Put(c)
	}
	return r
}

// Put adds or replaces a course.
func (r *MemoryRepository) Put(c *domain.Course) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.courses[c.ID] = *copyCourse(c)
}

// GetByID returns a copy of the course, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.courses[id]
	if !ok {
		return nil, nil
	}
	return copyCourse(&c), nil
}
