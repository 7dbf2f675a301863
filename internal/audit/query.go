package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Criteria filters a Search over stored events. Zero-valued fields match
// everything.
//
// Criteria instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Criteria struct {
	AccountID    string
	RestaurantID string
	EventTypes   []string
	MinSeverity  Severity
	From         time.Time
	To           time.Time
	Limit        int
}

// Stats aggregates stored events for one account over a trailing window.
//
// Stats instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Stats struct {
	TotalEvents int
	Failures    int
	BySeverity  map[Severity]int
	ByType      map[string]int
}

// Store is the read-side counterpart of a [Sink]: somewhere events can be
// searched and aggregated after delivery.
type Store interface {
	Sink
	Search(ctx context.Context, criteria Criteria) ([]Event, error)
	Stats(ctx context.Context, accountID string, days int) (Stats, error)
}

// MemoryStore keeps events in memory, bounded to a fixed capacity with
// oldest-first eviction. Suitable for tests, development, and small
// single-node deployments; production deployments supply their own Store.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	now      func() time.Time
}

// NewMemoryStore describes the newmemorystore operation and its observable behavior.
//
// NewMemoryStore may return an error when input validation, dependency calls, or security checks fail.
// NewMemoryStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryStore{capacity: capacity, now: time.Now}
}

// Write describes the write operation and its observable behavior.
func (s *MemoryStore) Write(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, events...)
	if over := len(s.events) - s.capacity; over > 0 {
		s.events = s.events[over:]
	}
	return nil
}

// Search describes the search operation and its observable behavior.
//
// Search may return an error when input validation, dependency calls, or security checks fail.
// Search does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryStore) Search(ctx context.Context, criteria Criteria) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, event := range s.events {
		if !matches(event, criteria) {
			continue
		}
		out = append(out, event)
	}

	// Newest first; ULIDs sort lexicographically by time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if criteria.Limit > 0 && len(out) > criteria.Limit {
		out = out[:criteria.Limit]
	}
	return out, nil
}

// Stats describes the stats operation and its observable behavior.
//
// Stats may return an error when input validation, dependency calls, or security checks fail.
// Stats does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *MemoryStore) Stats(ctx context.Context, accountID string, days int) (Stats, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := s.now().AddDate(0, 0, -days)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		BySeverity: make(map[Severity]int),
		ByType:     make(map[string]int),
	}
	for _, event := range s.events {
		if accountID != "" && event.AccountID != accountID {
			continue
		}
		if event.Timestamp.Before(cutoff) {
			continue
		}
		stats.TotalEvents++
		stats.BySeverity[event.Severity]++
		stats.ByType[event.EventType]++
		if !event.Success {
			stats.Failures++
		}
	}
	return stats, nil
}

func matches(event Event, criteria Criteria) bool {
	if criteria.AccountID != "" && event.AccountID != criteria.AccountID {
		return false
	}
	if criteria.RestaurantID != "" && event.RestaurantID != criteria.RestaurantID {
		return false
	}
	if criteria.MinSeverity != "" && !event.Severity.AtLeast(criteria.MinSeverity) {
		return false
	}
	if !criteria.From.IsZero() && event.Timestamp.Before(criteria.From) {
		return false
	}
	if !criteria.To.IsZero() && event.Timestamp.After(criteria.To) {
		return false
	}
	if len(criteria.EventTypes) > 0 {
		found := false
		for _, t := range criteria.EventTypes {
			if event.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
