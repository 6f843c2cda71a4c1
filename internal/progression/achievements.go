package progression

import (
	"time"

	"github.com/jfuginay/flexport-cross-platform-game/internal/events"
)

// Metric defines how an achievement measures its progress.
type Metric string

const (
	// MetricCumulative sums contributions across actions.
	MetricCumulative Metric = "cumulative"
	// MetricSingleEvent tracks the best single observed value.
	MetricSingleEvent Metric = "single_event"
	// MetricConsecutive counts an unbroken run; a failed action resets the
	// internal streak but never the recorded best progress.
	MetricConsecutive Metric = "consecutive"
)

// Rarity tiers scale the bonus XP paid on unlock.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// BonusMultiplier returns the rarity's XP scale factor.
func (r Rarity) BonusMultiplier() float64 {
	switch r {
	case RarityUncommon:
		return 2
	case RarityRare:
		return 4
	case RarityEpic:
		return 8
	case RarityLegendary:
		return 16
	default:
		return 1
	}
}

// AchievementSpec declares one achievement: which action key it watches, how
// it measures progress, and what it pays on unlock.
type AchievementSpec struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	ActionKey string  `yaml:"action_key"`
	Metric    Metric  `yaml:"metric"`
	Target    float64 `yaml:"target"`
	Rarity    Rarity  `yaml:"rarity"`
	// ContextKey names the context value used as the contribution; empty
	// means each matching action contributes 1.
	ContextKey string `yaml:"context_key"`
}

// Achievement is the live progress state for one spec.
type Achievement struct {
	Spec       AchievementSpec `json:"spec"`
	Progress   float64         `json:"progress"`
	Unlocked   bool            `json:"unlocked"`
	UnlockedAt time.Time       `json:"unlocked_at,omitzero"`

	streak float64 // consecutive metric only
}

func defaultAchievements() []AchievementSpec {
	return []AchievementSpec{
		{ID: "first_trade", Name: "Open for Business", ActionKey: "complete_trade", Metric: MetricCumulative, Target: 1, Rarity: RarityCommon},
		{ID: "trade_mogul", Name: "Trade Mogul", ActionKey: "complete_trade", Metric: MetricCumulative, Target: 100, Rarity: RarityRare},
		{ID: "route_baron", Name: "Route Baron", ActionKey: "claim_route", Metric: MetricCumulative, Target: 5, Rarity: RarityEpic},
		{ID: "hot_streak", Name: "Hot Streak", ActionKey: "complete_trade", Metric: MetricConsecutive, Target: 10, Rarity: RarityUncommon, ContextKey: "profit_margin"},
		{ID: "millionaire", Name: "Self-Made Millionaire", ActionKey: "complete_trade", Metric: MetricSingleEvent, Target: 1_000_000, Rarity: RarityLegendary, ContextKey: "net_worth"},
		{ID: "deep_water", Name: "Deep Water", ActionKey: "claim_route", Metric: MetricSingleEvent, Target: 10_000, Rarity: RarityUncommon, ContextKey: "distance"},
	}
}

// Achievements returns the live achievement list (persistence serializes it).
func (t *Tracker) Achievements() []*Achievement {
	return t.achievements
}

// RestoreAchievements replaces live progress from persisted state, matching
// by ID. Unknown IDs are ignored so balance changes don't break old saves.
func (t *Tracker) RestoreAchievements(saved []*Achievement) {
	byID := make(map[string]*Achievement, len(saved))
	for _, a := range saved {
		byID[a.Spec.ID] = a
	}
	for _, a := range t.achievements {
		if s, ok := byID[a.Spec.ID]; ok {
			a.Progress = s.Progress
			a.Unlocked = s.Unlocked
			a.UnlockedAt = s.UnlockedAt
		}
	}
}

// UpdateAchievements advances every non-completed achievement watching this
// action key. Progress is clamped at the target; crossing it unlocks exactly
// once and pays rarity-scaled bonus XP through a path that does not re-enter
// achievement evaluation.
func (t *Tracker) UpdateAchievements(actionKey string, ctx map[string]float64) {
	for _, a := range t.achievements {
		if a.Unlocked || a.Spec.ActionKey != actionKey {
			continue
		}

		value := 1.0
		if a.Spec.ContextKey != "" {
			value = ctx[a.Spec.ContextKey]
		}

		switch a.Spec.Metric {
		case MetricCumulative:
			a.Progress += value
		case MetricSingleEvent:
			if value > a.Progress {
				a.Progress = value
			}
		case MetricConsecutive:
			if value > 0 {
				a.streak++
			} else {
				a.streak = 0
			}
			if a.streak > a.Progress {
				a.Progress = a.streak
			}
		}

		if a.Progress > a.Spec.Target {
			a.Progress = a.Spec.Target
		}

		if a.Progress >= a.Spec.Target {
			t.unlock(a)
		}
	}
}

func (t *Tracker) unlock(a *Achievement) {
	a.Unlocked = true
	a.UnlockedAt = time.Now()

	bonus := int(float64(t.cfg.AchievementBonusXP) * a.Spec.Rarity.BonusMultiplier())
	t.addExperience(bonus)

	if t.bus != nil {
		t.bus.Publish(events.AchievementUnlocked{
			PlayerID:      t.emp.PlayerID,
			AchievementID: a.Spec.ID,
			Rarity:        string(a.Spec.Rarity),
			UnlockedAt:    a.UnlockedAt,
		})
	}
}
