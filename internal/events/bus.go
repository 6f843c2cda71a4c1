// Package events fans engine state changes out to rendering and UI
// collaborators. Events are a closed set of typed payloads; subscribers get
// their own buffered channel and slow consumers drop rather than stall the
// engine loop.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event is one of the concrete event types below. The unexported method keeps
// the set closed so dispatchers can switch exhaustively.
type Event interface {
	event()
}

// EmpireUpdated signals a change to an empire's ledger or holdings.
type EmpireUpdated struct {
	PlayerID string
	Cash     float64
	NetWorth float64
}

// CargoChanged signals a cargo lot mutation.
type CargoChanged struct {
	PlayerID  string
	Commodity string
	Quantity  int
}

// RouteClaimed signals exclusive acquisition of a trade route.
type RouteClaimed struct {
	RouteID  string
	PlayerID string
	// Authoritative is false for optimistic local applies.
	Authoritative bool
}

// RouteInvested signals an owner-only investment into a route.
type RouteInvested struct {
	RouteID  string
	PlayerID string
	Amount   float64
}

// MarketTicked carries the refreshed market indices.
type MarketTicked struct {
	Goods, Capital, Asset, Labor float64
	OverallHealth                float64
}

// InvestmentMatured signals a scheduled return being credited.
type InvestmentMatured struct {
	PlayerID string
	Amount   float64
}

// ExperienceGained signals XP granted for an action.
type ExperienceGained struct {
	PlayerID  string
	ActionKey string
	Amount    int
}

// LevelUp signals one level crossed in a cascade (emitted once per level).
type LevelUp struct {
	PlayerID string
	Level    int
	Unlocks  []string
}

// AchievementUnlocked signals a completed achievement.
type AchievementUnlocked struct {
	PlayerID      string
	AchievementID string
	Rarity        string
	UnlockedAt    time.Time
}

// SingularityAdvanced carries the new global countdown progress.
type SingularityAdvanced struct {
	Progress float64
	Phase    string
}

// SingularityPhase signals a one-time threshold crossing.
type SingularityPhase struct {
	Threshold float64
	Phase     string
}

// GameOver signals the terminal singularity state. Published exactly once.
type GameOver struct {
	Reason string
}

// SyncStateChanged signals a sync client connection state transition.
type SyncStateChanged struct {
	From, To string
}

func (EmpireUpdated) event()       {}
func (CargoChanged) event()        {}
func (RouteClaimed) event()        {}
func (RouteInvested) event()       {}
func (MarketTicked) event()        {}
func (InvestmentMatured) event()   {}
func (ExperienceGained) event()    {}
func (LevelUp) event()             {}
func (AchievementUnlocked) event() {}
func (SingularityAdvanced) event() {}
func (SingularityPhase) event()    {}
func (GameOver) event()            {}
func (SyncStateChanged) event()    {}

// Bus is a publish/subscribe fan-out for engine events.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given channel buffer size and
// returns its event channel plus an unsubscribe function. Unsubscribing
// closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish delivers ev to every subscriber without blocking. A subscriber
// whose buffer is full misses the event.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("event dropped for slow subscriber", "subscriber", id)
		}
	}
}
