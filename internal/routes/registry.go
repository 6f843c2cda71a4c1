// Package routes tracks trade route ownership. A route moves from unowned to
// owned exactly once; the claim check-and-set holds a per-route lock so two
// concurrent claims resolve deterministically to one winner.
package routes

import (
	"errors"
	"sync"
	"time"

	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
)

var (
	ErrAlreadyOwned = errors.New("routes: route already owned")
	ErrNotOwner     = errors.New("routes: caller does not own route")
	ErrUnknownRoute = errors.New("routes: unknown route")
)

// Route is a claimable trade lane between two ports.
type Route struct {
	mu sync.Mutex

	ID                 string  `json:"id" yaml:"id"`
	Origin             string  `json:"origin" yaml:"origin"`
	Destination        string  `json:"destination" yaml:"destination"`
	Distance           float64 `json:"distance" yaml:"distance"`
	Profitability      float64 `json:"profitability" yaml:"profitability"`
	RequiredInvestment float64 `json:"required_investment" yaml:"required_investment"`
	Owner              string  `json:"owner,omitempty"`
	TrafficVolume      float64 `json:"traffic_volume"`
}

// State is the lock-free snapshot form of a route used on the wire.
type State struct {
	ID                 string  `json:"id"`
	Origin             string  `json:"origin"`
	Destination        string  `json:"destination"`
	Distance           float64 `json:"distance"`
	Profitability      float64 `json:"profitability"`
	RequiredInvestment float64 `json:"required_investment"`
	Owner              string  `json:"owner,omitempty"`
	TrafficVolume      float64 `json:"traffic_volume"`
}

// Scheduler schedules a cancellable one-shot callback for maturing returns.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// Config tunes route investment settlement.
type Config struct {
	GrowthFactor    float64
	MaturationDelay time.Duration
}

// DefaultConfig returns the tuning used when no balance file overrides it.
func DefaultConfig() Config {
	return Config{GrowthFactor: 1.2, MaturationDelay: 45 * time.Second}
}

// Registry holds every route in the world, keyed by ID.
type Registry struct {
	mu     sync.RWMutex
	cfg    Config
	routes map[string]*Route
}

// NewRegistry creates a registry seeded with the given routes.
func NewRegistry(cfg Config, seed []*Route) *Registry {
	r := &Registry{cfg: cfg, routes: make(map[string]*Route, len(seed))}
	for _, rt := range seed {
		r.routes[rt.ID] = rt
	}
	return r
}

// Get returns a route by ID.
func (r *Registry) Get(id string) (*Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.routes[id]
	return rt, ok
}

// Claim attempts exclusive acquisition of a route for the empire. The owner
// check, funds debit, and owner set happen under the route's lock, so exactly
// one of any set of racing claims succeeds. On failure nothing changes.
func (r *Registry) Claim(routeID string, emp *economy.Empire) error {
	rt, ok := r.Get(routeID)
	if !ok {
		return ErrUnknownRoute
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.Owner != "" {
		return ErrAlreadyOwned
	}
	if err := emp.ProcessPayment(rt.RequiredInvestment); err != nil {
		return err
	}
	rt.Owner = emp.PlayerID
	emp.AddRoute(rt.ID)
	return nil
}

// Invest debits an owner-only investment and schedules its maturing return
// (amount * profitability * growthFactor on top of principal) through the
// scheduler. The cancel function drops the pending payout.
func (r *Registry) Invest(routeID string, emp *economy.Empire, amount float64, sched Scheduler, matured func(payout float64)) (cancel func(), err error) {
	rt, ok := r.Get(routeID)
	if !ok {
		return nil, ErrUnknownRoute
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.Owner != emp.PlayerID {
		return nil, ErrNotOwner
	}
	if err := emp.ProcessPayment(amount); err != nil {
		return nil, err
	}
	rt.TrafficVolume += amount

	payout := amount + amount*rt.Profitability*r.cfg.GrowthFactor
	cancel = sched.AfterFunc(r.cfg.MaturationDelay, func() {
		emp.ReceivePayment(payout)
		if matured != nil {
			matured(payout)
		}
	})
	return cancel, nil
}

// ForceOwner applies an authoritative ownership decision without touching any
// ledger. Used when reconciling a broadcast from the authoritative peer.
func (r *Registry) ForceOwner(routeID, playerID string) error {
	rt, ok := r.Get(routeID)
	if !ok {
		return ErrUnknownRoute
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.Owner = playerID
	return nil
}

// Release reverts an optimistic claim, returning the route to unowned. Only
// the recorded owner may be rolled back; refunds are the caller's concern
// because only the claim journal knows the debited amount.
func (r *Registry) Release(routeID, playerID string) error {
	rt, ok := r.Get(routeID)
	if !ok {
		return ErrUnknownRoute
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.Owner != playerID {
		return ErrNotOwner
	}
	rt.Owner = ""
	return nil
}

// OwnerOf returns the current owner of a route, or empty for unowned.
func (r *Registry) OwnerOf(routeID string) string {
	rt, ok := r.Get(routeID)
	if !ok {
		return ""
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.Owner
}

// States snapshots every route for the wire.
func (r *Registry) States() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]State, 0, len(r.routes))
	for _, rt := range r.routes {
		rt.mu.Lock()
		out = append(out, State{
			ID:                 rt.ID,
			Origin:             rt.Origin,
			Destination:        rt.Destination,
			Distance:           rt.Distance,
			Profitability:      rt.Profitability,
			RequiredInvestment: rt.RequiredInvestment,
			Owner:              rt.Owner,
			TrafficVolume:      rt.TrafficVolume,
		})
		rt.mu.Unlock()
	}
	return out
}

// OwnedBy returns the IDs of routes currently owned by the player.
func (r *Registry) OwnedBy(playerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, rt := range r.routes {
		rt.mu.Lock()
		if rt.Owner == playerID {
			out = append(out, rt.ID)
		}
		rt.mu.Unlock()
	}
	return out
}
