package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"cheqr/backend/internal/attendance/domain"
)

// MemoryRepository is an in-process Repository used when DATABASE_URL is unset and in tests.
// A single mutex makes every append a check-and-insert, matching the Postgres unique constraint.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	order    []string // creation order, for stable ties
}

// NewMemoryRepository returns an empty in-memory session store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*domain.Session)}
}

// Create stores a copy of s.
func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return domain.ErrSessionExists
	}
	for _, existing := range r.sessions {
		if sameWindow(existing, s.CourseID, s.IssuedAt, s.ExpiresAt) {
			return domain.ErrSessionExists
		}
	}
	cp := *s
	cp.Scans = nil
	r.sessions[s.ID] = &cp
	r.order = append(r.order, s.ID)
	return nil
}

// GetByID returns a copy of the session with its scans, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return clone(s, true), nil
}

// FindLive returns the newest session for courseID with expiresAt after now, or nil.
func (r *MemoryRepository) FindLive(ctx context.Context, courseID string, now time.Time) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.Session
	for _, id := range r.order {
		s := r.sessions[id]
		if s.CourseID != courseID || !s.ExpiresAt.After(now) {
			continue
		}
		if best == nil || !s.IssuedAt.Before(best.IssuedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, nil
	}
	return clone(best, false), nil
}

// FindByWindow returns the session for courseID with exactly this window, or nil.
func (r *MemoryRepository) FindByWindow(ctx context.Context, courseID string, issuedAt, expiresAt time.Time) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if sameWindow(s, courseID, issuedAt, expiresAt) {
			return clone(s, false), nil
		}
	}
	return nil, nil
}

// AppendScanIfAbsent appends the scan unless studentID already scanned into sessionID.
func (r *MemoryRepository) AppendScanIfAbsent(ctx context.Context, sessionID, studentID string, scannedAt time.Time) (*domain.ScanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, rec := range s.Scans {
		if rec.StudentID == studentID {
			return nil, domain.ErrAlreadyRecorded
		}
	}
	rec := domain.ScanRecord{SessionID: sessionID, StudentID: studentID, ScannedAt: scannedAt}
	s.Scans = append(s.Scans, rec)
	return &rec, nil
}

// ListByCourse returns copies of all sessions for courseID, most recent issuedAt first.
func (r *MemoryRepository) ListByCourse(ctx context.Context, courseID string) ([]*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Session, 0)
	for _, id := range r.order {
		if s := r.sessions[id]; s.CourseID == courseID {
			out = append(out, clone(s, true))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

// CountScansSince counts scans for courseID with scannedAt at or after since.
func (r *MemoryRepository) CountScansSince(ctx context.Context, courseID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.CourseID != courseID {
			continue
		}
		for _, rec := range s.Scans {
			if !rec.ScannedAt.Before(since) {
				n++
			}
		}
	}
	return n, nil
}

func sameWindow(s *domain.Session, courseID string, issuedAt, expiresAt time.Time) bool {
	return s.CourseID == courseID && s.IssuedAt.Equal(issuedAt) && s.ExpiresAt.Equal(expiresAt)
}

func clone(s *domain.Session, withScans bool) *domain.Session {
	cp := *s
	cp.Scans = nil
	if withScans && len(s.Scans) > 0 {
		cp.Scans = append([]domain.ScanRecord(nil), s.Scans...)
	}
	return &cp
}
