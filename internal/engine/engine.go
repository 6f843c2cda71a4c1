// Package engine runs the client session loop: a fixed-timestep,
// single-goroutine core that drains player intents and network events,
// simulates the market when no authority is reachable, and advances the
// singularity countdown. Business logic is connectivity-agnostic: the same
// code paths apply an intent whether it came from the UI while offline or is
// being optimistically applied ahead of authoritative confirmation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
	"github.com/jfuginay/flexport-cross-platform-game/internal/events"
	"github.com/jfuginay/flexport-cross-platform-game/internal/market"
	"github.com/jfuginay/flexport-cross-platform-game/internal/progression"
	"github.com/jfuginay/flexport-cross-platform-game/internal/protocol"
	"github.com/jfuginay/flexport-cross-platform-game/internal/routes"
	"github.com/jfuginay/flexport-cross-platform-game/internal/singularity"
)

// Transport is how the engine reaches the authoritative peer. The sync client
// implements it; a nil transport means permanently offline.
type Transport interface {
	Connected() bool
	Send(msg any) error
}

// Config tunes the session loop cadence.
type Config struct {
	TickInterval      time.Duration
	OfflineMarketTick time.Duration
	TurnInterval      time.Duration
	Weights           singularity.Weights
}

// DefaultConfig returns the loop cadence used when no balance file overrides
// it.
func DefaultConfig() Config {
	return Config{
		TickInterval:      250 * time.Millisecond,
		OfflineMarketTick: 5 * time.Second,
		TurnInterval:      5 * time.Second,
		Weights:           singularity.DefaultWeights(),
	}
}

// Deps collects the engine's collaborators.
type Deps struct {
	Empire      *economy.Empire
	Market      *market.Engine
	Routes      *routes.Registry
	Progress    *progression.Tracker
	Singularity *singularity.Controller
	Bus         *events.Bus
}

// Engine is the session core. All state mutation happens on the goroutine
// running Run (or, in tests, calling Step).
type Engine struct {
	cfg Config
	d   Deps

	sched   *Scheduler
	journal *Journal

	// Claims whose progression reward has not settled yet, by route ID.
	pendingRewards map[string]struct{}

	transportMu sync.RWMutex
	transport   Transport

	intents chan Intent
	net     chan any
	tasks   chan func()

	done     chan struct{}
	stopOnce sync.Once

	sinceMarket time.Duration
	sinceTurn   time.Duration
	turns       int

	connectedPlayers  int
	globalTradeVolume float64
}

// New creates a session engine around the given collaborators.
func New(cfg Config, d Deps) *Engine {
	return &Engine{
		cfg:            cfg,
		d:              d,
		sched:          NewScheduler(),
		journal:        NewJournal(),
		pendingRewards: make(map[string]struct{}),
		intents:        make(chan Intent, 64),
		net:            make(chan any, 256),
		tasks:          make(chan func(), 64),
		done:           make(chan struct{}),
	}
}

// SetTransport attaches the sync client. May be called before Run or never.
func (e *Engine) SetTransport(t Transport) {
	e.transportMu.Lock()
	defer e.transportMu.Unlock()
	e.transport = t
}

func (e *Engine) connected() bool {
	e.transportMu.RLock()
	defer e.transportMu.RUnlock()
	return e.transport != nil && e.transport.Connected()
}

func (e *Engine) send(msg any) {
	e.transportMu.RLock()
	t := e.transport
	e.transportMu.RUnlock()
	if t == nil || !t.Connected() {
		return
	}
	if err := t.Send(msg); err != nil {
		slog.Warn("intent send failed, continuing locally", "error", err)
	}
}

// SubmitIntent queues a player action for the next step. Returns false if the
// engine is shut down or the queue is full (the caller may retry next frame).
func (e *Engine) SubmitIntent(i Intent) bool {
	select {
	case <-e.done:
		return false
	default:
	}
	select {
	case e.intents <- i:
		return true
	default:
		slog.Warn("intent queue full, dropping", "intent", i)
		return false
	}
}

// DeliverNet places an inbound network message onto the engine's queue.
// Called from the sync client's read pump.
func (e *Engine) DeliverNet(msg any) {
	select {
	case e.net <- msg:
	case <-e.done:
	}
}

// AfterFunc schedules a cancellable callback that runs on the engine
// goroutine. Satisfies the market and routes scheduler contracts so maturing
// investments settle on the main loop, never concurrently with it.
func (e *Engine) AfterFunc(d time.Duration, f func()) (cancel func()) {
	return e.sched.AfterFunc(d, func() {
		select {
		case e.tasks <- f:
		case <-e.done:
		}
	})
}

// Run drives the loop until the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	slog.Info("session engine started", "player", e.d.Empire.PlayerID, "tick", e.cfg.TickInterval)

	for {
		select {
		case <-ctx.Done():
			e.Stop()
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.Step(e.cfg.TickInterval)
		}
	}
}

// Stop tears the session down: pending maturation timers are cancelled so no
// stale payout can land after teardown.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
		e.sched.Close()
		slog.Info("session engine stopped", "player", e.d.Empire.PlayerID, "turns", e.turns)
	})
}

// Step advances the session by dt: drains queued intents, network events, and
// matured-investment tasks, then runs the periodic simulation work. Exposed
// so tests can drive the loop deterministically.
func (e *Engine) Step(dt time.Duration) {
	for {
		select {
		case i := <-e.intents:
			e.applyIntent(i)
			continue
		default:
		}
		break
	}
	for {
		select {
		case msg := <-e.net:
			e.handleNet(msg)
			continue
		default:
		}
		break
	}
	for {
		select {
		case task := <-e.tasks:
			task()
			continue
		default:
		}
		break
	}

	// World drift: when no authority feeds us snapshots, perturb the market
	// locally on a slow cadence.
	e.sinceMarket += dt
	if e.sinceMarket >= e.cfg.OfflineMarketTick {
		if !e.connected() {
			e.d.Market.Tick(e.sinceMarket)
			e.publishMarket()
		}
		e.sinceMarket = 0
	}

	e.sinceTurn += dt
	if e.sinceTurn >= e.cfg.TurnInterval {
		e.sinceTurn = 0
		e.advanceTurn()
	}
}

// advanceTurn increments the turn counter, settles claim rewards, and feeds
// the singularity controller its weighted advance.
func (e *Engine) advanceTurn() {
	e.turns++
	e.settleClaimRewards()
	amount := singularity.AdvanceAmount(
		e.cfg.Weights,
		e.d.Empire.NetWorth(),
		e.d.Empire.RouteCount(),
		e.d.Empire.View().Reputation,
		e.turns,
	)
	e.d.Singularity.Advance(amount)
}

// settleClaimRewards grants progression for claims whose ownership is
// settled: at the next turn for offline claims, after the authoritative
// verdict for journaled ones. A claim that lost its route grants nothing.
func (e *Engine) settleClaimRewards() {
	me := e.d.Empire.PlayerID
	for id := range e.pendingRewards {
		if e.journal.Has(id) {
			continue
		}
		delete(e.pendingRewards, id)

		rt, ok := e.d.Routes.Get(id)
		if !ok || e.d.Routes.OwnerOf(id) != me {
			continue
		}
		e.d.Progress.RecordAction("claim_route", map[string]float64{
			"distance":      rt.Distance,
			"profit_margin": rt.Profitability,
		})
		e.publishEmpire()
	}
}

// Turns returns how many turns have elapsed this session.
func (e *Engine) Turns() int { return e.turns }

func (e *Engine) applyIntent(i Intent) {
	switch it := i.(type) {
	case ClaimRouteIntent:
		e.applyClaim(it)
	case InvestRouteIntent:
		e.applyRouteInvestment(it)
	case InvestMarketIntent:
		e.applyMarketInvestment(it)
	case TradeCargoIntent:
		e.applyTrade(it)
	}
}

func (e *Engine) applyClaim(it ClaimRouteIntent) {
	emp := e.d.Empire

	rt, ok := e.d.Routes.Get(it.RouteID)
	if !ok {
		slog.Warn("claim for unknown route", "route", it.RouteID)
		return
	}
	required := rt.RequiredInvestment

	if err := e.d.Routes.Claim(it.RouteID, emp); err != nil {
		slog.Info("claim refused", "route", it.RouteID, "error", err)
		return
	}

	connected := e.connected()
	slog.Info("route claimed",
		"route", it.RouteID,
		"cost", humanize.Commaf(required),
		"optimistic", connected)

	e.d.Bus.Publish(events.RouteClaimed{RouteID: it.RouteID, PlayerID: emp.PlayerID, Authoritative: !connected})
	e.publishEmpire()

	// Progression settles at a later turn, once ownership can no longer be
	// contradicted. A rolled-back claim must leave no trace in the ledger.
	e.pendingRewards[it.RouteID] = struct{}{}

	if connected {
		e.journal.RecordClaim(it.RouteID, required)
		e.send(protocol.ClaimRoute{RouteID: it.RouteID, PlayerID: emp.PlayerID})
	}
}

func (e *Engine) applyRouteInvestment(it InvestRouteIntent) {
	emp := e.d.Empire

	_, err := e.d.Routes.Invest(it.RouteID, emp, it.Amount, e, func(payout float64) {
		e.d.Bus.Publish(events.InvestmentMatured{PlayerID: emp.PlayerID, Amount: payout})
		e.publishEmpire()
		e.d.Progress.RecordAction("investment_matured", map[string]float64{
			"profit_margin": (payout - it.Amount) / it.Amount,
		})
	})
	if err != nil {
		slog.Info("route investment refused", "route", it.RouteID, "error", err)
		return
	}

	e.d.Bus.Publish(events.RouteInvested{RouteID: it.RouteID, PlayerID: emp.PlayerID, Amount: it.Amount})
	e.publishEmpire()
	e.d.Progress.RecordAction("invest_route", map[string]float64{"profit_margin": 0})

	if e.connected() {
		e.send(protocol.InvestInRoute{RouteID: it.RouteID, Amount: it.Amount, PlayerID: emp.PlayerID})
	}
}

func (e *Engine) applyMarketInvestment(it InvestMarketIntent) {
	emp := e.d.Empire

	_, err := e.d.Market.Invest(emp, it.Amount, e, func(payout float64) {
		e.d.Bus.Publish(events.InvestmentMatured{PlayerID: emp.PlayerID, Amount: payout})
		e.publishEmpire()
		e.d.Progress.RecordAction("investment_matured", map[string]float64{
			"profit_margin": (payout - it.Amount) / it.Amount,
		})
	})
	if err != nil {
		slog.Info("market investment refused", "error", err)
		return
	}

	e.publishEmpire()
	e.d.Progress.RecordAction("invest_market", nil)

	if e.connected() {
		e.send(protocol.InvestInMarket{MarketType: it.MarketType, Amount: it.Amount, PlayerID: emp.PlayerID})
	}
}

func (e *Engine) applyTrade(it TradeCargoIntent) {
	emp := e.d.Empire
	total := float64(it.Quantity) * it.UnitPrice

	if it.Sell {
		basis, held := emp.LotUnitPrice(it.Commodity)
		if err := emp.RemoveCargo(it.Commodity, it.Quantity); err != nil {
			slog.Info("cargo sale refused", "commodity", it.Commodity, "error", err)
			return
		}
		emp.ReceivePayment(total)

		margin := 0.0
		if held && basis > 0 {
			margin = (it.UnitPrice - basis) / basis
		}
		e.d.Progress.RecordAction("complete_trade", map[string]float64{
			"profit_margin": margin,
			"net_worth":     emp.NetWorth(),
		})
	} else {
		if err := emp.ProcessPayment(total); err != nil {
			slog.Info("cargo purchase refused", "commodity", it.Commodity, "error", err)
			return
		}
		if err := emp.AddCargo(it.Commodity, it.Quantity, it.UnitPrice); err != nil {
			emp.Refund(total)
			slog.Warn("cargo purchase rolled back", "commodity", it.Commodity, "error", err)
			return
		}
		e.d.Progress.RecordAction("deliver_cargo", map[string]float64{})
	}

	e.d.Bus.Publish(events.CargoChanged{
		PlayerID:  emp.PlayerID,
		Commodity: it.Commodity.String(),
		Quantity:  emp.CargoQuantity(it.Commodity),
	})
	e.publishEmpire()
}

func (e *Engine) handleNet(msg any) {
	switch m := msg.(type) {
	case protocol.GameStateUpdate:
		e.connectedPlayers = m.ConnectedPlayers
		e.globalTradeVolume = m.GlobalTradeVolume

	case protocol.RouteClaimed:
		e.reconcileClaim(m.RouteID, m.PlayerID)

	case protocol.RouteRejected:
		if rec, ok := e.journal.Take(m.RouteID); ok {
			e.rollbackClaim(rec)
		}

	case protocol.SingularityUpdate:
		e.d.Singularity.SetProgress(m.Progress)

	case protocol.EmpireUpdate:
		if m.PlayerID == e.d.Empire.PlayerID {
			e.d.Empire.ApplyView(m.Empire)
			e.publishEmpire()
		}

	case protocol.MarketUpdate:
		e.d.Market.ApplySnapshot(m.Market)
		e.publishMarket()

	case protocol.SyncState:
		e.applySyncState(m)

	default:
		slog.Warn("unhandled network message", "type", fmt.Sprintf("%T", msg))
	}
}

// reconcileClaim applies an authoritative ownership decision. If we had an
// optimistic claim on the route and lost, the exact prior state is restored
// before the authoritative owner is recorded.
func (e *Engine) reconcileClaim(routeID, winner string) {
	me := e.d.Empire.PlayerID

	if rec, ok := e.journal.Take(routeID); ok {
		if winner == me {
			// Confirmation: the optimistic apply stands.
			return
		}
		e.rollbackClaim(rec)
	}

	if err := e.d.Routes.ForceOwner(routeID, winner); err != nil {
		slog.Warn("authoritative claim for unknown route", "route", routeID)
		return
	}
	if winner == me {
		e.d.Empire.AddRoute(routeID)
	}
	e.d.Bus.Publish(events.RouteClaimed{RouteID: routeID, PlayerID: winner, Authoritative: true})
}

// rollbackClaim reverts an optimistic claim: route back to unowned, holding
// removed, investment refunded.
func (e *Engine) rollbackClaim(rec claimRecord) {
	emp := e.d.Empire

	if err := e.d.Routes.Release(rec.RouteID, emp.PlayerID); err != nil {
		slog.Warn("rollback release failed", "route", rec.RouteID, "error", err)
	}
	emp.RemoveRoute(rec.RouteID)
	emp.Refund(rec.Amount)
	delete(e.pendingRewards, rec.RouteID)

	slog.Info("optimistic claim rolled back",
		"route", rec.RouteID,
		"refund", humanize.Commaf(rec.Amount))
	e.publishEmpire()
}

// applySyncState performs full reconciliation against an authoritative
// snapshot: last-synced-wins, with optimistic claims the snapshot contradicts
// rolled back first.
func (e *Engine) applySyncState(s protocol.SyncState) {
	if s.Digest != "" {
		want, err := s.ComputeDigest()
		if err == nil && want != s.Digest {
			slog.Warn("sync snapshot digest mismatch", "got", s.Digest, "want", want)
		}
	}

	me := e.d.Empire.PlayerID
	for _, rs := range s.Routes {
		if e.journal.Has(rs.ID) && rs.Owner == "" {
			// The snapshot predates our claim; the verdict is still in
			// flight.
			continue
		}
		if rec, ok := e.journal.Take(rs.ID); ok && rs.Owner != me {
			e.rollbackClaim(rec)
		}

		if rs.Owner != me && e.d.Routes.OwnerOf(rs.ID) == me {
			// A claim made while offline that the authority never saw.
			// Re-assert it when the route is still free, otherwise give
			// the investment back.
			if rt, ok := e.d.Routes.Get(rs.ID); ok {
				if rs.Owner == "" && e.connected() {
					e.journal.RecordClaim(rs.ID, rt.RequiredInvestment)
					e.send(protocol.ClaimRoute{RouteID: rs.ID, PlayerID: me})
					slog.Info("re-asserting offline claim", "route", rs.ID)
					continue
				}
				e.rollbackClaim(claimRecord{RouteID: rs.ID, Amount: rt.RequiredInvestment})
			}
		}

		if err := e.d.Routes.ForceOwner(rs.ID, rs.Owner); err != nil {
			slog.Warn("sync snapshot names unknown route", "route", rs.ID)
			continue
		}
		if rs.Owner == me {
			e.d.Empire.AddRoute(rs.ID)
		}
	}

	e.d.Market.ApplySnapshot(s.Market)
	e.publishMarket()
	e.d.Singularity.SetProgress(s.Singularity)

	for _, v := range s.Empires {
		if v.PlayerID == me {
			e.d.Empire.ApplyView(v)
			e.publishEmpire()
		}
	}
}

func (e *Engine) publishEmpire() {
	e.d.Bus.Publish(events.EmpireUpdated{
		PlayerID: e.d.Empire.PlayerID,
		Cash:     e.d.Empire.Balance(),
		NetWorth: e.d.Empire.NetWorth(),
	})
}

func (e *Engine) publishMarket() {
	s := e.d.Market.Snapshot()
	e.d.Bus.Publish(events.MarketTicked{
		Goods:         s.Goods,
		Capital:       s.Capital,
		Asset:         s.Asset,
		Labor:         s.Labor,
		OverallHealth: s.OverallHealth,
	})
}
