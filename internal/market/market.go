// Package market simulates the four global commodity/asset indices and the
// forward-settling market investments priced off them.
package market

import (
	"sync"
	"time"

	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
	"github.com/jfuginay/flexport-cross-platform-game/internal/entropy"
)

// Index identifies one of the four tracked indices.
type Index int

const (
	IndexGoods Index = iota
	IndexCapital
	IndexAsset
	IndexLabor
	indexCount
)

var indexNames = [...]string{"goods", "capital", "asset", "labor"}

// String returns the wire name of the index.
func (i Index) String() string {
	if int(i) < len(indexNames) {
		return indexNames[i]
	}
	return "unknown"
}

// IndexFromString maps a wire name back to an Index.
func IndexFromString(name string) (Index, bool) {
	for i, n := range indexNames {
		if n == name {
			return Index(i), true
		}
	}
	return 0, false
}

// Config tunes the fluctuation model and investment settlement.
type Config struct {
	Baseline        float64
	Min             float64
	Max             float64
	Volatility      float64 // index points per second of drift at full noise
	BaseReturnRate  float64
	MaturationDelay time.Duration
}

// DefaultConfig returns the tuning used when no balance file overrides it.
func DefaultConfig() Config {
	return Config{
		Baseline:        100,
		Min:             40,
		Max:             250,
		Volatility:      4,
		BaseReturnRate:  0.15,
		MaturationDelay: 30 * time.Second,
	}
}

// Snapshot is the wire form of the market state.
type Snapshot struct {
	Goods         float64 `json:"goods"`
	Capital       float64 `json:"capital"`
	Asset         float64 `json:"asset"`
	Labor         float64 `json:"labor"`
	OverallHealth float64 `json:"overall_health"`
}

// Scheduler schedules a cancellable one-shot callback. Satisfied by the
// engine's timer scheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// Engine holds the index state. Mutations come from Tick (local simulation)
// or ApplySnapshot (authoritative broadcast), never both at once; a mutex
// keeps reads from the server broadcast path consistent.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	drift   *entropy.Drift
	t       float64
	indices [indexCount]float64
	health  float64
}

// New creates a market engine with all indices at baseline. Drift noise is
// seeded so offline simulation is reproducible.
func New(cfg Config, seed int64) *Engine {
	e := &Engine{cfg: cfg, drift: entropy.NewDrift(seed)}
	for i := range e.indices {
		e.indices[i] = cfg.Baseline
	}
	e.health = 1
	return e
}

// Tick advances the local fluctuation model by dt and recomputes overall
// health. Used when no authoritative peer is feeding snapshots.
func (e *Engine) Tick(dt time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	secs := dt.Seconds()
	e.t += secs
	for i := range e.indices {
		e.indices[i] += e.drift.Sample(i, e.t) * e.cfg.Volatility * secs
		e.indices[i] = e.clamp(e.indices[i])
	}
	e.recomputeHealth()
}

// ApplySnapshot overwrites the indices with authoritative values, clamped to
// the configured bounds. Supersedes local simulation while connected.
func (e *Engine) ApplySnapshot(s Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.indices[IndexGoods] = e.clamp(s.Goods)
	e.indices[IndexCapital] = e.clamp(s.Capital)
	e.indices[IndexAsset] = e.clamp(s.Asset)
	e.indices[IndexLabor] = e.clamp(s.Labor)
	e.recomputeHealth()
}

// Snapshot returns the current index values and health.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Goods:         e.indices[IndexGoods],
		Capital:       e.indices[IndexCapital],
		Asset:         e.indices[IndexAsset],
		Labor:         e.indices[IndexLabor],
		OverallHealth: e.health,
	}
}

// OverallHealth is the mean of the four indices normalized to baseline
// (1.0 = all indices at baseline).
func (e *Engine) OverallHealth() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health
}

// Value returns one index's current level.
func (e *Engine) Value(i Index) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indices[i]
}

// Invest debits the empire and schedules a maturing return of
// amount * overallHealth * baseReturnRate on top of the principal, credited
// through ReceivePayment after the configured delay. The returned cancel
// function drops the pending payout (session teardown).
func (e *Engine) Invest(emp *economy.Empire, amount float64, sched Scheduler, matured func(payout float64)) (cancel func(), err error) {
	if err := emp.ProcessPayment(amount); err != nil {
		return nil, err
	}

	payout := amount + amount*e.OverallHealth()*e.cfg.BaseReturnRate
	cancel = sched.AfterFunc(e.cfg.MaturationDelay, func() {
		emp.ReceivePayment(payout)
		if matured != nil {
			matured(payout)
		}
	})
	return cancel, nil
}

func (e *Engine) clamp(v float64) float64 {
	if v < e.cfg.Min {
		return e.cfg.Min
	}
	if v > e.cfg.Max {
		return e.cfg.Max
	}
	return v
}

func (e *Engine) recomputeHealth() {
	var sum float64
	for i := range e.indices {
		sum += e.indices[i]
	}
	e.health = sum / float64(indexCount) / e.cfg.Baseline
}
