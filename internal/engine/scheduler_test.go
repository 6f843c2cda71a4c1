package engine

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFires(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	fired := make(chan struct{})
	s.AfterFunc(time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	if s.Pending() != 0 {
		t.Errorf("pending = %d, want 0 after fire", s.Pending())
	}
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	defer s.Close()

	var fired atomic.Bool
	cancel := s.AfterFunc(10*time.Millisecond, func() { fired.Store(true) })
	cancel()
	cancel() // double cancel is harmless

	time.Sleep(30 * time.Millisecond)
	if fired.Load() {
		t.Error("cancelled timer fired")
	}
	if s.Pending() != 0 {
		t.Errorf("pending = %d, want 0", s.Pending())
	}
}

func TestSchedulerCloseCancelsAll(t *testing.T) {
	s := NewScheduler()

	var fired atomic.Int32
	for i := 0; i < 5; i++ {
		s.AfterFunc(10*time.Millisecond, func() { fired.Add(1) })
	}
	s.Close()

	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Errorf("%d timers fired after Close", got)
	}

	// New work after Close is refused.
	cancel := s.AfterFunc(time.Millisecond, func() { fired.Add(1) })
	cancel()
	time.Sleep(10 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("timer scheduled after Close fired")
	}
}
