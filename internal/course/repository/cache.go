package repository

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"cheqr/backend/internal/course/domain"
)

// CachedRepository is a read-through cache in front of another Repository.
// Only hits are cached, so a course created after a miss is visible on the next lookup.
type CachedRepository struct {
	next  Repository
	cache *ttlcache.Cache[string, domain.Course]
}

// NewCachedRepository wraps next with a ttl-bounded cache and starts its cleanup loop. Call Close to stop it.
func NewCachedRepository(next Repository, ttl time.Duration) *CachedRepository {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, domain.Course](ttl),
		ttlcache.WithDisableTouchOnHit[string, domain.Course](),
	)
	go cache.Start()
	return &CachedRepository{next: next, cache: cache}
}

// GetByID returns the cached course or loads it from the wrapped repository.
func (r *CachedRepository) GetByID(ctx context.Context, id string) (*domain.Course, error) {
	if item := r.cache.Get(id); item != nil {
		c := item.Value()
		return copyCourse(&c), nil
	}
	c, err := r.next.GetByID(ctx, id)
	if err != nil || c == nil {
		return c, err
	}
	r.cache.Set(id, *copyCourse(c), ttlcache.DefaultTTL)
	return c, nil
}

// Invalidate drops id from the cache so the next lookup reads the wrapped repository.
func (r *CachedRepository) Invalidate(id string) {
	r.cache.Delete(id)
}

// Close stops the cleanup goroutine.
func (r *CachedRepository) Close() {
	r.cache.Stop()
}

func copyCourse(c *domain.Course) *domain.Course {
	cp := *c
	cp.EnrolledStudentIDs = append([]string(nil), c.EnrolledStudentIDs...)
	return &cp
}
