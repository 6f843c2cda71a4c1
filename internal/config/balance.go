package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jfuginay/flexport-cross-platform-game/internal/engine"
	"github.com/jfuginay/flexport-cross-platform-game/internal/market"
	"github.com/jfuginay/flexport-cross-platform-game/internal/progression"
	"github.com/jfuginay/flexport-cross-platform-game/internal/routes"
	"github.com/jfuginay/flexport-cross-platform-game/internal/singularity"
)

// Balance is the assembled game tuning handed to the session wiring.
type Balance struct {
	StartingCash   float64
	StartingCredit float64

	Market      market.Config
	Routes      routes.Config
	RouteSeed   []*routes.Route
	Progression progression.Config
	Engine      engine.Config

	SingularityThresholds []float64
}

// balanceFile is the YAML schema. Durations are plain seconds so the tuning
// file stays hand-editable.
type balanceFile struct {
	StartingCash   float64 `yaml:"starting_cash"`
	StartingCredit float64 `yaml:"starting_credit"`

	Market struct {
		Baseline          float64 `yaml:"baseline"`
		Min               float64 `yaml:"min"`
		Max               float64 `yaml:"max"`
		Volatility        float64 `yaml:"volatility"`
		BaseReturnRate    float64 `yaml:"base_return_rate"`
		MaturationSeconds float64 `yaml:"maturation_seconds"`
	} `yaml:"market"`

	Routes struct {
		GrowthFactor      float64 `yaml:"growth_factor"`
		MaturationSeconds float64 `yaml:"maturation_seconds"`
	} `yaml:"routes"`

	RouteSeed []struct {
		ID                 string  `yaml:"id"`
		Origin             string  `yaml:"origin"`
		Destination        string  `yaml:"destination"`
		Distance           float64 `yaml:"distance"`
		Profitability      float64 `yaml:"profitability"`
		RequiredInvestment float64 `yaml:"required_investment"`
	} `yaml:"route_seed"`

	Progression progression.Config `yaml:"progression"`

	Engine struct {
		TickMillis               int64   `yaml:"tick_millis"`
		OfflineMarketTickSeconds float64 `yaml:"offline_market_tick_seconds"`
		TurnSeconds              float64 `yaml:"turn_seconds"`
	} `yaml:"engine"`

	Singularity struct {
		Thresholds []float64           `yaml:"thresholds"`
		Weights    singularity.Weights `yaml:"weights"`
	} `yaml:"singularity"`
}

// DefaultBalance is the compiled-in tuning.
func DefaultBalance() Balance {
	return Balance{
		StartingCash:          1_000_000,
		StartingCredit:        250_000,
		Market:                market.DefaultConfig(),
		Routes:                routes.DefaultConfig(),
		RouteSeed:             defaultRouteSeed(),
		Progression:           progression.DefaultConfig(),
		Engine:                engine.DefaultConfig(),
		SingularityThresholds: []float64{75, 95},
	}
}

func defaultRouteSeed() []*routes.Route {
	return []*routes.Route{
		{ID: "shanghai-la", Origin: "Shanghai", Destination: "Los Angeles", Distance: 10_400, Profitability: 0.35, RequiredInvestment: 600_000},
		{ID: "rotterdam-ny", Origin: "Rotterdam", Destination: "New York", Distance: 6_200, Profitability: 0.22, RequiredInvestment: 350_000},
		{ID: "singapore-mumbai", Origin: "Singapore", Destination: "Mumbai", Distance: 3_900, Profitability: 0.18, RequiredInvestment: 220_000},
		{ID: "hamburg-santos", Origin: "Hamburg", Destination: "Santos", Distance: 9_900, Profitability: 0.30, RequiredInvestment: 480_000},
		{ID: "busan-seattle", Origin: "Busan", Destination: "Seattle", Distance: 8_300, Profitability: 0.26, RequiredInvestment: 410_000},
		{ID: "dubai-piraeus", Origin: "Dubai", Destination: "Piraeus", Distance: 4_800, Profitability: 0.20, RequiredInvestment: 260_000},
	}
}

// LoadBalance reads tuning from a YAML file, overlaying the defaults. An
// empty path returns the defaults unchanged.
func LoadBalance(path string) (Balance, error) {
	b := DefaultBalance()
	if path == "" {
		return b, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Balance{}, fmt.Errorf("read balance file: %w", err)
	}

	var f balanceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Balance{}, fmt.Errorf("parse balance file: %w", err)
	}

	if f.StartingCash > 0 {
		b.StartingCash = f.StartingCash
	}
	if f.StartingCredit > 0 {
		b.StartingCredit = f.StartingCredit
	}

	if f.Market.Baseline > 0 {
		b.Market.Baseline = f.Market.Baseline
	}
	if f.Market.Min > 0 {
		b.Market.Min = f.Market.Min
	}
	if f.Market.Max > 0 {
		b.Market.Max = f.Market.Max
	}
	if f.Market.Volatility > 0 {
		b.Market.Volatility = f.Market.Volatility
	}
	if f.Market.BaseReturnRate > 0 {
		b.Market.BaseReturnRate = f.Market.BaseReturnRate
	}
	if f.Market.MaturationSeconds > 0 {
		b.Market.MaturationDelay = secs(f.Market.MaturationSeconds)
	}

	if f.Routes.GrowthFactor > 0 {
		b.Routes.GrowthFactor = f.Routes.GrowthFactor
	}
	if f.Routes.MaturationSeconds > 0 {
		b.Routes.MaturationDelay = secs(f.Routes.MaturationSeconds)
	}

	if len(f.RouteSeed) > 0 {
		seed := make([]*routes.Route, 0, len(f.RouteSeed))
		for _, r := range f.RouteSeed {
			seed = append(seed, &routes.Route{
				ID:                 r.ID,
				Origin:             r.Origin,
				Destination:        r.Destination,
				Distance:           r.Distance,
				Profitability:      r.Profitability,
				RequiredInvestment: r.RequiredInvestment,
			})
		}
		b.RouteSeed = seed
	}

	if f.Progression.MaxLevel > 0 {
		b.Progression = f.Progression
	}

	if f.Engine.TickMillis > 0 {
		b.Engine.TickInterval = time.Duration(f.Engine.TickMillis) * time.Millisecond
	}
	if f.Engine.OfflineMarketTickSeconds > 0 {
		b.Engine.OfflineMarketTick = secs(f.Engine.OfflineMarketTickSeconds)
	}
	if f.Engine.TurnSeconds > 0 {
		b.Engine.TurnInterval = secs(f.Engine.TurnSeconds)
	}

	if len(f.Singularity.Thresholds) > 0 {
		b.SingularityThresholds = f.Singularity.Thresholds
	}
	if f.Singularity.Weights != (singularity.Weights{}) {
		b.Engine.Weights = f.Singularity.Weights
	}

	return b, nil
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
