// Package singularity drives the global AI-takeover countdown: a monotonic
// progress value that crosses one-time phase thresholds and ends the game
// exactly once at 100.
package singularity

import (
	"sync"

	"github.com/jfuginay/flexport-cross-platform-game/internal/events"
)

// Phase names the progress bands.
type Phase string

const (
	PhaseDormant   Phase = "dormant"
	PhaseStirring  Phase = "stirring"
	PhaseAwakening Phase = "awakening"
	PhaseAscendant Phase = "ascendant"
	PhaseCritical  Phase = "critical"
	PhaseTerminal  Phase = "terminal"
)

// PhaseFor returns the band a progress value falls in.
func PhaseFor(progress float64) Phase {
	switch {
	case progress >= 100:
		return PhaseTerminal
	case progress >= 95:
		return PhaseCritical
	case progress >= 75:
		return PhaseAscendant
	case progress >= 50:
		return PhaseAwakening
	case progress >= 25:
		return PhaseStirring
	default:
		return PhaseDormant
	}
}

// Weights caps and weights the four inputs to AdvanceAmount.
type Weights struct {
	Wealth     float64 `yaml:"wealth"`
	Assets     float64 `yaml:"assets"`
	Reputation float64 `yaml:"reputation"`
	Turns      float64 `yaml:"turns"`

	WealthCap float64 `yaml:"wealth_cap"` // net worth treated as "full" contribution
	AssetsCap float64 `yaml:"assets_cap"` // owned route count treated as full
	TurnsCap  float64 `yaml:"turns_cap"`  // elapsed turns treated as full
}

// DefaultWeights is the 30/30/20/20 split from the balance baseline.
func DefaultWeights() Weights {
	return Weights{
		Wealth: 0.30, Assets: 0.30, Reputation: 0.20, Turns: 0.20,
		WealthCap: 10_000_000, AssetsCap: 10, TurnsCap: 500,
	}
}

// AdvanceAmount derives a per-turn progress increment from empire standing.
// Each input is normalized against its cap, clamped to [0,1], and weighted.
func AdvanceAmount(w Weights, netWorth float64, assetCount int, reputation float64, turns int) float64 {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}

	wealth := clamp(netWorth / w.WealthCap)
	assets := clamp(float64(assetCount) / w.AssetsCap)
	rep := clamp(reputation / 100)
	turn := clamp(float64(turns) / w.TurnsCap)

	return wealth*w.Wealth + assets*w.Assets + rep*w.Reputation + turn*w.Turns
}

// Controller holds the countdown state. Thread-safe: the engine loop advances
// it while server broadcasts read it.
type Controller struct {
	mu         sync.Mutex
	progress   float64
	terminal   bool
	thresholds map[float64]bool // threshold → already fired
	bus        *events.Bus
}

// New creates a controller at zero progress with one-time notifications at
// the given thresholds.
func New(bus *events.Bus, thresholds ...float64) *Controller {
	fired := make(map[float64]bool, len(thresholds))
	for _, th := range thresholds {
		fired[th] = false
	}
	return &Controller{thresholds: fired, bus: bus}
}

// Advance increases progress by amount, clamped at 100. Threshold crossings
// fire once; reaching 100 sets the terminal flag exactly once and publishes
// GameOver. Calls after the terminal transition are no-ops.
func (c *Controller) Advance(amount float64) {
	c.mu.Lock()

	if c.terminal || amount <= 0 {
		c.mu.Unlock()
		return
	}

	c.progress += amount
	if c.progress > 100 {
		c.progress = 100
	}

	var crossed []float64
	for th, fired := range c.thresholds {
		if !fired && c.progress >= th {
			c.thresholds[th] = true
			crossed = append(crossed, th)
		}
	}

	becameTerminal := false
	if c.progress >= 100 {
		c.terminal = true
		becameTerminal = true
	}
	progress := c.progress
	c.mu.Unlock()

	if c.bus == nil {
		return
	}
	for _, th := range crossed {
		c.bus.Publish(events.SingularityPhase{Threshold: th, Phase: string(PhaseFor(th))})
	}
	c.bus.Publish(events.SingularityAdvanced{Progress: progress, Phase: string(PhaseFor(progress))})
	if becameTerminal {
		c.bus.Publish(events.GameOver{Reason: "the singularity has arrived"})
	}
}

// SetProgress jumps to an authoritative progress value. Regressions are
// ignored so a stale broadcast can never rewind the countdown.
func (c *Controller) SetProgress(progress float64) {
	c.mu.Lock()
	current := c.progress
	c.mu.Unlock()

	if progress > current {
		c.Advance(progress - current)
	}
}

// Progress returns the current countdown value.
func (c *Controller) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Terminal reports whether the game has ended.
func (c *Controller) Terminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal
}

// CurrentPhase returns the band for the current progress.
func (c *Controller) CurrentPhase() Phase {
	return PhaseFor(c.Progress())
}
