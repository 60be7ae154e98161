package notify

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity used when NewHub gets a non-positive size.
const DefaultBuffer = 16

// Hub is the in-process per-course subscriber registry behind the lecturer live channel.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
}

// Subscription receives events for one course until Close is called.
type Subscription struct {
	CourseID string
	// C delivers events; it is closed by Close.
	C <-chan Event

	ch   chan Event
	hub  *Hub
	once sync.Once
}

// NewHub returns a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a new subscriber for courseID.
func (h *Hub) Subscribe(courseID string) *Subscription {
	ch := make(chan Event, h.buffer)
	s := &Subscription{CourseID: courseID, C: ch, ch: ch, hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[courseID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[courseID] = set
	}
	set[s] = struct{}{}
	return s
}

// Close unregisters the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[s.CourseID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.CourseID)
			}
		}
		close(s.ch)
	})
}

// Publish delivers ev to every subscriber of courseID without blocking. Always returns nil.
func (h *Hub) Publish(ctx context.Context, courseID string, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[courseID] {
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions for courseID.
func (h *Hub) Subscribers(courseID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[courseID])
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
