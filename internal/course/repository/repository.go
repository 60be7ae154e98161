package repository

import (
	"context"

	"cheqr/backend/internal/course/domain"
)

// Repository is the read side of the course directory. The course-management service owns writes.
type Repository interface {
	// GetByID returns the course for id, or nil if not found.
	// It returns an error only for lookup failures, not for missing courses.
	GetByID(ctx context.Context, id string) (*domain.Course, error)
}
