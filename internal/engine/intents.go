package engine

import (
	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
)

// Intent is a player action waiting to be applied. The set is closed; the
// engine's dispatcher switches exhaustively.
type Intent interface {
	intent()
}

// ClaimRouteIntent requests exclusive acquisition of a trade route.
type ClaimRouteIntent struct {
	RouteID string
}

// InvestRouteIntent puts money into an owned route for a maturing return.
type InvestRouteIntent struct {
	RouteID string
	Amount  float64
}

// InvestMarketIntent puts money into a market index for a maturing return.
type InvestMarketIntent struct {
	MarketType string
	Amount     float64
}

// TradeCargoIntent buys or sells a cargo lot at the given unit price.
type TradeCargoIntent struct {
	Commodity economy.Commodity
	Quantity  int
	UnitPrice float64
	Sell      bool
}

func (ClaimRouteIntent) intent()   {}
func (InvestRouteIntent) intent()  {}
func (InvestMarketIntent) intent() {}
func (TradeCargoIntent) intent()   {}
