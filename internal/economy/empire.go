// Package economy provides the per-player ledger: cash, credit, cargo
// holdings, and the atomic payment operations everything else spends through.
package economy

import (
	"errors"
	"sync"
	"time"
)

// Ledger failure sentinels. Operations that return one of these leave the
// empire completely unchanged.
var (
	ErrInsufficientFunds = errors.New("economy: insufficient funds")
	ErrInvalidQuantity   = errors.New("economy: invalid cargo quantity")
)

// Empire is a player's complete economic state. Ledger operations lock
// internally so they appear atomic to concurrent readers (the sync client's
// read pump snapshots empires while the engine loop mutates them).
type Empire struct {
	mu sync.Mutex

	PlayerID    string  `json:"player_id"`
	Cash        float64 `json:"cash"`
	CreditLimit float64 `json:"credit_limit"`
	CreditUsed  float64 `json:"credit_used"`
	Reputation  float64 `json:"reputation"` // 0..100

	Level      int `json:"level"`
	Experience int `json:"experience"`

	ResearchPoints int `json:"research_points"`
	ShipSlots      int `json:"ship_slots"`
	RouteSlots     int `json:"route_slots"`

	OwnedRoutes      map[string]bool      `json:"owned_routes"`
	UnlockedFeatures map[string]bool      `json:"unlocked_features"`
	Cargo            map[Commodity]*CargoLot `json:"cargo"`

	TotalRevenue    float64   `json:"total_revenue"`
	TotalExpenses   float64   `json:"total_expenses"`
	LastTransaction time.Time `json:"last_transaction"`
}

// NewEmpire creates a fresh empire at level 1 with the given starting funds.
func NewEmpire(playerID string, startingCash, creditLimit float64) *Empire {
	return &Empire{
		PlayerID:         playerID,
		Cash:             startingCash,
		CreditLimit:      creditLimit,
		Reputation:       50,
		Level:            1,
		ShipSlots:        2,
		RouteSlots:       3,
		OwnedRoutes:      make(map[string]bool),
		UnlockedFeatures: make(map[string]bool),
		Cargo:            make(map[Commodity]*CargoLot),
	}
}

// CanAfford reports whether the empire can cover amount from cash plus
// remaining credit headroom.
func (e *Empire) CanAfford(amount float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canAffordLocked(amount)
}

func (e *Empire) canAffordLocked(amount float64) bool {
	if e.Cash >= amount {
		return true
	}
	return e.Cash+(e.CreditLimit-e.CreditUsed) >= amount
}

// ProcessPayment debits amount, drawing from cash first and pushing any
// shortfall onto credit. Returns ErrInsufficientFunds with no side effect
// when cash plus credit headroom can't cover it.
func (e *Empire) ProcessPayment(amount float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount < 0 {
		return ErrInvalidQuantity
	}
	if !e.canAffordLocked(amount) {
		return ErrInsufficientFunds
	}

	if e.Cash >= amount {
		e.Cash -= amount
	} else {
		shortfall := amount - e.Cash
		e.Cash = 0
		e.CreditUsed += shortfall
	}

	e.TotalExpenses += amount
	e.LastTransaction = time.Now()
	return nil
}

// ReceivePayment credits amount to cash, then opportunistically retires
// outstanding credit from the new balance.
func (e *Empire) ReceivePayment(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount <= 0 {
		return
	}

	e.Cash += amount
	e.TotalRevenue += amount

	if e.CreditUsed > 0 {
		repay := e.CreditUsed
		if e.Cash < repay {
			repay = e.Cash
		}
		e.Cash -= repay
		e.CreditUsed -= repay
	}

	e.LastTransaction = time.Now()
}

// Refund reverses a prior ProcessPayment of the same amount: drawn credit is
// restored first (mirroring how the shortfall accrued), the remainder returns
// to cash, and the recorded expense is backed out. Used when the authority
// rejects an optimistically applied claim.
func (e *Empire) Refund(amount float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount <= 0 {
		return
	}

	restore := e.CreditUsed
	if restore > amount {
		restore = amount
	}
	e.CreditUsed -= restore
	e.Cash += amount - restore
	e.TotalExpenses -= amount
	e.LastTransaction = time.Now()
}

// Balance returns the current cash on hand.
func (e *Empire) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Cash
}

// OutstandingCredit returns how much credit is currently drawn.
func (e *Empire) OutstandingCredit() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.CreditUsed
}

// NetWorth is cash minus drawn credit. Used for singularity weighting and
// leaderboard submissions.
func (e *Empire) NetWorth() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Cash - e.CreditUsed
}

// AddRoute records ownership of a route on the empire side.
func (e *Empire) AddRoute(routeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.OwnedRoutes[routeID] = true
}

// RemoveRoute drops a route from the empire's holdings (rollback path).
func (e *Empire) RemoveRoute(routeID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.OwnedRoutes, routeID)
}

// RouteCount returns how many routes the empire owns.
func (e *Empire) RouteCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.OwnedRoutes)
}

// Unlock records a feature token granted by a level-up.
func (e *Empire) Unlock(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.UnlockedFeatures[token] = true
}

// Progress returns the current level and experience.
func (e *Empire) Progress() (level, experience int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Level, e.Experience
}

// SetProgress overwrites level and experience in one step. Used by the
// progression engine's cascade loop and by persistence restore.
func (e *Empire) SetProgress(level, experience int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Level = level
	e.Experience = experience
}

// ApplyLevelReward credits a level's structured reward.
func (e *Empire) ApplyLevelReward(cash float64, research, shipSlots, routeSlots int) {
	if cash > 0 {
		e.ReceivePayment(cash)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ResearchPoints += research
	e.ShipSlots += shipSlots
	e.RouteSlots += routeSlots
}

// AdjustReputation moves reputation by delta, clamped to [0, 100].
func (e *Empire) AdjustReputation(delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Reputation += delta
	if e.Reputation < 0 {
		e.Reputation = 0
	}
	if e.Reputation > 100 {
		e.Reputation = 100
	}
}
