// Package progression turns completed actions into experience, cascading
// level-ups, unlock tokens, and achievement progress for a single empire.
package progression

import (
	"math"

	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
	"github.com/jfuginay/flexport-cross-platform-game/internal/events"
)

// Reward is the structured payout applied when a level is reached.
type Reward struct {
	Cash           float64 `yaml:"cash"`
	ResearchPoints int     `yaml:"research_points"`
	ShipSlots      int     `yaml:"ship_slots"`
	RouteSlots     int     `yaml:"route_slots"`
}

// LevelSpec overrides the generated unlocks/rewards for one level.
type LevelSpec struct {
	Level   int      `yaml:"level"`
	Unlocks []string `yaml:"unlocks"`
	Reward  Reward   `yaml:"reward"`
}

// Config tunes the experience curve and XP sources.
type Config struct {
	MaxLevel        int     `yaml:"max_level"`
	BaseRequirement int     `yaml:"base_requirement"` // XP to reach level 2
	Growth          float64 `yaml:"growth"`           // per-level requirement multiplier
	LevelBonus      float64 `yaml:"level_bonus"`      // XP scaling per current level

	// Base XP per action key and per-context-key multipliers.
	Actions     map[string]int     `yaml:"actions"`
	Multipliers map[string]float64 `yaml:"multipliers"`

	// Explicit per-level unlocks/rewards; levels not listed get generated
	// rewards.
	Levels []LevelSpec `yaml:"levels"`

	// Bonus XP granted per achievement unlock before the rarity multiplier.
	AchievementBonusXP int               `yaml:"achievement_bonus_xp"`
	Achievements       []AchievementSpec `yaml:"achievements"`
}

// DefaultConfig returns the tuning used when no balance file overrides it.
func DefaultConfig() Config {
	return Config{
		MaxLevel:        25,
		BaseRequirement: 100,
		Growth:          1.15,
		LevelBonus:      0.02,
		Actions: map[string]int{
			"complete_trade":   50,
			"claim_route":      120,
			"invest_route":     40,
			"invest_market":    35,
			"deliver_cargo":    25,
			"investment_matured": 30,
		},
		Multipliers: map[string]float64{
			"profit_margin": 0.5,
			"distance":      0.0001,
		},
		Levels: []LevelSpec{
			{Level: 2, Unlocks: []string{"market_investing"}, Reward: Reward{Cash: 50_000, ResearchPoints: 10}},
			{Level: 3, Unlocks: []string{"route_investing"}, Reward: Reward{Cash: 75_000, ResearchPoints: 15, RouteSlots: 1}},
			{Level: 5, Unlocks: []string{"bulk_trading"}, Reward: Reward{Cash: 150_000, ResearchPoints: 25, ShipSlots: 1}},
			{Level: 8, Unlocks: []string{"credit_expansion"}, Reward: Reward{Cash: 300_000, ResearchPoints: 40, RouteSlots: 1}},
			{Level: 12, Unlocks: []string{"luxury_goods"}, Reward: Reward{Cash: 600_000, ResearchPoints: 60, ShipSlots: 1, RouteSlots: 1}},
		},
		AchievementBonusXP: 25,
		Achievements:       defaultAchievements(),
	}
}

// Tracker binds a progression config to one empire.
type Tracker struct {
	cfg          Config
	emp          *economy.Empire
	bus          *events.Bus
	achievements []*Achievement
	levelIndex   map[int]LevelSpec
}

// New creates a tracker for the empire. The bus may be nil in tests.
func New(cfg Config, emp *economy.Empire, bus *events.Bus) *Tracker {
	idx := make(map[int]LevelSpec, len(cfg.Levels))
	for _, ls := range cfg.Levels {
		idx[ls.Level] = ls
	}

	achs := make([]*Achievement, 0, len(cfg.Achievements))
	for _, spec := range cfg.Achievements {
		achs = append(achs, &Achievement{Spec: spec})
	}

	return &Tracker{cfg: cfg, emp: emp, bus: bus, achievements: achs, levelIndex: idx}
}

// Requirement returns the XP needed to advance from level-1 to level,
// deterministic from the growth curve.
func (t *Tracker) Requirement(level int) int {
	if level <= 1 {
		return 0
	}
	req := float64(t.cfg.BaseRequirement) * math.Pow(t.cfg.Growth, float64(level-2))
	return int(math.Round(req))
}

// RecordAction is the main entry point: grants XP for the action and advances
// achievement progress. Returns the XP granted.
func (t *Tracker) RecordAction(actionKey string, ctx map[string]float64) int {
	xp := t.GrantExperience(actionKey, ctx)
	t.UpdateAchievements(actionKey, ctx)
	return xp
}

// GrantExperience computes XP for an action (base value, context multipliers,
// level scaling), adds it, and runs the cascading level-up loop. Returns the
// integer XP granted, 0 for unknown action keys.
func (t *Tracker) GrantExperience(actionKey string, ctx map[string]float64) int {
	base, ok := t.cfg.Actions[actionKey]
	if !ok {
		return 0
	}

	xp := float64(base)
	for key, value := range ctx {
		if mult, ok := t.cfg.Multipliers[key]; ok {
			xp *= 1 + value*mult
		}
	}

	level, _ := t.emp.Progress()
	xp *= 1 + float64(level)*t.cfg.LevelBonus

	granted := int(xp)
	t.addExperience(granted)

	if t.bus != nil && granted > 0 {
		t.bus.Publish(events.ExperienceGained{PlayerID: t.emp.PlayerID, ActionKey: actionKey, Amount: granted})
	}
	return granted
}

// addExperience adds raw XP and cascades level-ups. A single large grant can
// cross several thresholds; every crossed level's rewards and unlocks apply.
func (t *Tracker) addExperience(amount int) {
	if amount <= 0 {
		return
	}

	level, exp := t.emp.Progress()
	exp += amount

	for level < t.cfg.MaxLevel && exp >= t.Requirement(level+1) {
		exp -= t.Requirement(level + 1)
		level++
		t.applyLevel(level)
	}

	t.emp.SetProgress(level, exp)
}

// applyLevel applies one reached level's unlocks and structured reward.
func (t *Tracker) applyLevel(level int) {
	spec, ok := t.levelIndex[level]
	if !ok {
		spec = generatedLevel(level)
	}

	for _, token := range spec.Unlocks {
		t.emp.Unlock(token)
	}
	t.emp.ApplyLevelReward(spec.Reward.Cash, spec.Reward.ResearchPoints, spec.Reward.ShipSlots, spec.Reward.RouteSlots)

	if t.bus != nil {
		t.bus.Publish(events.LevelUp{PlayerID: t.emp.PlayerID, Level: level, Unlocks: spec.Unlocks})
	}
}

// generatedLevel fills in rewards for levels without an explicit spec.
func generatedLevel(level int) LevelSpec {
	spec := LevelSpec{
		Level:  level,
		Reward: Reward{Cash: float64(level) * 25_000, ResearchPoints: level * 5},
	}
	if level%2 == 0 {
		spec.Reward.RouteSlots = 1
	}
	if level%3 == 0 {
		spec.Reward.ShipSlots = 1
	}
	return spec
}
