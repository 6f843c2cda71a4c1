package economy

import "time"

// EmpireView is a lock-consistent copy of an empire for serialization: wire
// messages, persisted snapshots, and leaderboard submissions read views, never
// the live struct.
type EmpireView struct {
	PlayerID    string  `json:"player_id"`
	Cash        float64 `json:"cash"`
	CreditLimit float64 `json:"credit_limit"`
	CreditUsed  float64 `json:"credit_used"`
	Reputation  float64 `json:"reputation"`

	Level      int `json:"level"`
	Experience int `json:"experience"`

	ResearchPoints int `json:"research_points"`
	ShipSlots      int `json:"ship_slots"`
	RouteSlots     int `json:"route_slots"`

	OwnedRoutes      []string   `json:"owned_routes"`
	UnlockedFeatures []string   `json:"unlocked_features"`
	Cargo            []CargoLot `json:"cargo"`

	TotalRevenue    float64   `json:"total_revenue"`
	TotalExpenses   float64   `json:"total_expenses"`
	LastTransaction time.Time `json:"last_transaction"`
}

// View snapshots the empire under its lock.
func (e *Empire) View() EmpireView {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := EmpireView{
		PlayerID:        e.PlayerID,
		Cash:            e.Cash,
		CreditLimit:     e.CreditLimit,
		CreditUsed:      e.CreditUsed,
		Reputation:      e.Reputation,
		Level:           e.Level,
		Experience:      e.Experience,
		ResearchPoints:  e.ResearchPoints,
		ShipSlots:       e.ShipSlots,
		RouteSlots:      e.RouteSlots,
		TotalRevenue:    e.TotalRevenue,
		TotalExpenses:   e.TotalExpenses,
		LastTransaction: e.LastTransaction,
	}
	for id := range e.OwnedRoutes {
		v.OwnedRoutes = append(v.OwnedRoutes, id)
	}
	for token := range e.UnlockedFeatures {
		v.UnlockedFeatures = append(v.UnlockedFeatures, token)
	}
	for _, lot := range e.Cargo {
		v.Cargo = append(v.Cargo, *lot)
	}
	return v
}

// ApplyView overwrites the empire's state from a view. Used when the
// authoritative peer sends an empireUpdate or a persisted snapshot is
// restored.
func (e *Empire) ApplyView(v EmpireView) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Cash = v.Cash
	e.CreditLimit = v.CreditLimit
	e.CreditUsed = v.CreditUsed
	e.Reputation = v.Reputation
	e.Level = v.Level
	e.Experience = v.Experience
	e.ResearchPoints = v.ResearchPoints
	e.ShipSlots = v.ShipSlots
	e.RouteSlots = v.RouteSlots
	e.TotalRevenue = v.TotalRevenue
	e.TotalExpenses = v.TotalExpenses
	e.LastTransaction = v.LastTransaction

	e.OwnedRoutes = make(map[string]bool, len(v.OwnedRoutes))
	for _, id := range v.OwnedRoutes {
		e.OwnedRoutes[id] = true
	}
	e.UnlockedFeatures = make(map[string]bool, len(v.UnlockedFeatures))
	for _, token := range v.UnlockedFeatures {
		e.UnlockedFeatures[token] = true
	}
	e.Cargo = make(map[Commodity]*CargoLot, len(v.Cargo))
	for _, lot := range v.Cargo {
		l := lot
		e.Cargo[l.Commodity] = &l
	}
}
