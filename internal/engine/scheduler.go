package engine

import (
	"sync"
	"time"
)

// Scheduler owns the one-shot timers behind investment maturation. Every
// timer is individually cancellable and Close cancels everything still
// pending, so a torn-down session can never credit a stale payout.
type Scheduler struct {
	mu     sync.Mutex
	timers map[int]*time.Timer
	next   int
	closed bool
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[int]*time.Timer)}
}

// AfterFunc schedules f to run once after d. The returned cancel function
// stops the callback if it has not fired yet; calling it more than once is
// harmless.
func (s *Scheduler) AfterFunc(d time.Duration, f func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}

	id := s.next
	s.next++

	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		_, live := s.timers[id]
		delete(s.timers, id)
		closed := s.closed
		s.mu.Unlock()
		if live && !closed {
			f()
		}
	})
	s.timers[id] = timer

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t, ok := s.timers[id]; ok {
			t.Stop()
			delete(s.timers, id)
		}
	}
}

// Pending returns how many timers have not fired or been cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close cancels every pending timer. The scheduler accepts no new work
// afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
