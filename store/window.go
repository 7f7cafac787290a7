// Package store implements the bounded, indexed in-memory retention of
// recent security events that rule correlation searches against.
package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
)

// WindowedEventStore retains the most recent events in a fixed-size ring
// plus two capped secondary indices (by source IP and by event type). The
// ring evicts by count; the indices evict by count and, during periodic
// cleanup, by age. One mutex guards everything: insert, lookup and cleanup
// are mutually exclusive, so readers always see a consistent snapshot.
type WindowedEventStore struct {
	mu     sync.RWMutex
	events []*core.SecurityEvent
	head   int
	count  int

	byIP   map[string][]*core.SecurityEvent
	byType map[string][]*core.SecurityEvent

	maxPerIP   int
	maxPerType int
	retention  time.Duration

	cleanupInterval time.Duration
	cancel          context.CancelFunc
	done            chan struct{}
	logger          *zap.SugaredLogger
}

// NewWindowedEventStore creates a store with the given caps. Call Start to
// run the periodic index cleanup.
func NewWindowedEventStore(maxEvents, maxPerIP, maxPerType int, retention, cleanupInterval time.Duration, logger *zap.SugaredLogger) *WindowedEventStore {
	return &WindowedEventStore{
		events:          make([]*core.SecurityEvent, maxEvents),
		byIP:            make(map[string][]*core.SecurityEvent),
		byType:          make(map[string][]*core.SecurityEvent),
		maxPerIP:        maxPerIP,
		maxPerType:      maxPerType,
		retention:       retention,
		cleanupInterval: cleanupInterval,
		logger:          logger,
	}
}

// Start launches the background cleanup loop.
func (s *WindowedEventStore) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := s.CleanupExpired(time.Now())
				if removed > 0 {
					s.logger.Debugw("Window cleanup removed expired index entries", "removed", removed)
				}
			case <-loopCtx.Done():
				return
			}
		}
	}()
}

// Stop halts the cleanup loop.
func (s *WindowedEventStore) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

// Insert adds an event. When the ring is full the oldest event is evicted
// and removed from both indices, so an evicted event is gone everywhere.
func (s *WindowedEventStore) Insert(event *core.SecurityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == len(s.events) {
		evicted := s.events[s.head]
		s.removeFromIndexes(evicted)
	} else {
		s.count++
	}
	s.events[s.head] = event
	s.head = (s.head + 1) % len(s.events)

	if event.SourceIP != "" {
		s.byIP[event.SourceIP] = appendCapped(s.byIP[event.SourceIP], event, s.maxPerIP)
	}
	if event.EventType != "" {
		s.byType[event.EventType] = appendCapped(s.byType[event.EventType], event, s.maxPerType)
	}

	metrics.WindowEvents.Set(float64(s.count))
}

// appendCapped appends and drops the oldest entries past the cap.
func appendCapped(list []*core.SecurityEvent, event *core.SecurityEvent, cap int) []*core.SecurityEvent {
	list = append(list, event)
	if len(list) > cap {
		list = list[len(list)-cap:]
	}
	return list
}

func (s *WindowedEventStore) removeFromIndexes(event *core.SecurityEvent) {
	if event == nil {
		return
	}
	s.byIP[event.SourceIP] = removeByID(s.byIP[event.SourceIP], event.EventID)
	if len(s.byIP[event.SourceIP]) == 0 {
		delete(s.byIP, event.SourceIP)
	}
	s.byType[event.EventType] = removeByID(s.byType[event.EventType], event.EventID)
	if len(s.byType[event.EventType]) == 0 {
		delete(s.byType, event.EventType)
	}
}

func removeByID(list []*core.SecurityEvent, eventID string) []*core.SecurityEvent {
	for i, e := range list {
		if e.EventID == eventID {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// EventsBySourceIP returns a snapshot of the per-IP index for ip.
func (s *WindowedEventStore) EventsBySourceIP(ip string) []*core.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.byIP[ip])
}

// EventsByType returns a snapshot of the per-type index for eventType.
func (s *WindowedEventStore) EventsByType(eventType string) []*core.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.byType[eventType])
}

// Recent returns up to n most recent events, oldest first.
func (s *WindowedEventStore) Recent(n int) []*core.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > s.count {
		n = s.count
	}
	out := make([]*core.SecurityEvent, 0, n)
	start := s.head - n
	for i := 0; i < n; i++ {
		idx := ((start + i) % len(s.events) + len(s.events)) % len(s.events)
		out = append(out, s.events[idx])
	}
	return out
}

// Len returns the number of events currently retained in the ring.
func (s *WindowedEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// HasEvent reports whether an event ID is still present in the ring.
func (s *WindowedEventStore) HasEvent(eventID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := 0; i < s.count; i++ {
		idx := ((s.head - 1 - i) % len(s.events) + len(s.events)) % len(s.events)
		if s.events[idx] != nil && s.events[idx].EventID == eventID {
			return true
		}
	}
	return false
}

// CleanupExpired removes index entries older than the retention cutoff.
// The primary ring is untouched: it evicts strictly by count. Returns the
// number of removed index entries.
func (s *WindowedEventStore) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.retention)
	removed := 0
	removed += pruneIndex(s.byIP, cutoff)
	removed += pruneIndex(s.byType, cutoff)
	return removed
}

func pruneIndex(index map[string][]*core.SecurityEvent, cutoff time.Time) int {
	removed := 0
	for key, list := range index {
		kept := list[:0]
		for _, e := range list {
			if e.Timestamp.After(cutoff) {
				kept = append(kept, e)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(index, key)
		} else {
			index[key] = kept
		}
	}
	return removed
}

func snapshot(list []*core.SecurityEvent) []*core.SecurityEvent {
	if len(list) == 0 {
		return nil
	}
	out := make([]*core.SecurityEvent, len(list))
	copy(out, list)
	return out
}
