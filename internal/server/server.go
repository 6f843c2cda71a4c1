// Package server hosts the authoritative game state: it owns the route
// registry, the market, and the singularity clock, and reconciles every
// connected client against them over websockets.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/jfuginay/flexport-cross-platform-game/internal/config"
	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
	"github.com/jfuginay/flexport-cross-platform-game/internal/engine"
	"github.com/jfuginay/flexport-cross-platform-game/internal/events"
	"github.com/jfuginay/flexport-cross-platform-game/internal/market"
	"github.com/jfuginay/flexport-cross-platform-game/internal/protocol"
	"github.com/jfuginay/flexport-cross-platform-game/internal/routes"
	"github.com/jfuginay/flexport-cross-platform-game/internal/singularity"
)

// Server is the authoritative peer. All game messages are handled on the hub
// goroutine; empires and the registry carry their own locks so the HTTP
// endpoints can read them concurrently.
type Server struct {
	balance config.Balance
	hub     *Hub
	sched   *engine.Scheduler

	registry *routes.Registry
	market   *market.Engine
	sing     *singularity.Controller
	bus      *events.Bus

	limiter *RateLimiter
	started time.Time

	mu          sync.Mutex
	empires     map[string]*economy.Empire
	tradeVolume float64
	turns       int
}

// New assembles an authoritative server from game balance and a market seed.
func New(balance config.Balance, seed int64) *Server {
	bus := events.NewBus()
	s := &Server{
		balance:  balance,
		hub:      newHub(),
		sched:    engine.NewScheduler(),
		registry: routes.NewRegistry(balance.Routes, balance.RouteSeed),
		market:   market.New(balance.Market, seed),
		sing:     singularity.New(bus, balance.SingularityThresholds...),
		bus:      bus,
		limiter:  NewRateLimiter(10, 20),
		started:  time.Now(),
		empires:  make(map[string]*economy.Empire),
	}
	s.hub.onMessage = s.handleMessage
	s.hub.onLeave = s.handleLeave
	return s
}

// Handler returns the HTTP mux: the websocket endpoint plus the public
// read-only API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.limiter.Middleware(s.serveWS))
	mux.HandleFunc("/api/v1/status", s.limiter.Middleware(s.handleStatus))
	mux.HandleFunc("/api/v1/leaderboard", s.limiter.Middleware(s.handleLeaderboard))
	return mux
}

// Run drives the hub and the market clock until the context is cancelled.
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run(ctx)

	ticker := time.NewTicker(s.balance.Engine.TurnInterval)
	defer ticker.Stop()
	defer s.sched.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick advances the market and the singularity clock, broadcasting both.
func (s *Server) tick() {
	s.market.Tick(s.balance.Engine.TurnInterval)
	s.hub.Broadcast(protocol.MarketUpdate{Market: s.market.Snapshot()})

	s.mu.Lock()
	s.turns++
	turns := s.turns
	var totalWorth float64
	var totalAssets int
	var totalRep float64
	for _, emp := range s.empires {
		v := emp.View()
		totalWorth += emp.NetWorth()
		totalAssets += len(v.OwnedRoutes)
		totalRep += v.Reputation
	}
	n := len(s.empires)
	s.mu.Unlock()

	if n == 0 {
		return
	}

	before := s.sing.Progress()
	s.sing.Advance(singularity.AdvanceAmount(
		s.balance.Engine.Weights, totalWorth, totalAssets, totalRep/float64(n), turns))
	if after := s.sing.Progress(); after != before {
		s.hub.Broadcast(protocol.SingularityUpdate{Progress: after})
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	sess := &session{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(20, 40),
	}
	s.hub.register <- sess

	go sess.writePump()
	go sess.readPump()
}

// empire returns the server-side ledger for a player, creating it on first
// contact.
func (s *Server) empire(playerID string) *economy.Empire {
	s.mu.Lock()
	defer s.mu.Unlock()

	emp, ok := s.empires[playerID]
	if !ok {
		emp = economy.NewEmpire(playerID, s.balance.StartingCash, s.balance.StartingCredit)
		s.empires[playerID] = emp
	}
	return emp
}

func (s *Server) addTradeVolume(amount float64) {
	s.mu.Lock()
	s.tradeVolume += amount
	s.mu.Unlock()
}

// handleMessage runs on the hub goroutine.
func (s *Server) handleMessage(sess *session, msg any) {
	switch m := msg.(type) {
	case protocol.JoinGame:
		s.handleJoin(sess, m)
	case protocol.ClaimRoute:
		s.handleClaim(sess, m)
	case protocol.InvestInRoute:
		s.handleRouteInvestment(sess, m)
	case protocol.InvestInMarket:
		s.handleMarketInvestment(sess, m)
	case protocol.RequestSync:
		sess.push(s.syncState())
	default:
		slog.Warn("unexpected message from client", "player", sess.playerID, "type", fmt.Sprintf("%T", msg))
	}
}

func (s *Server) handleJoin(sess *session, m protocol.JoinGame) {
	sess.playerID = m.PlayerID
	sess.platform = m.Platform
	s.empire(m.PlayerID)

	slog.Info("player joined", "player", m.PlayerID, "platform", m.Platform)

	sess.push(s.syncState())
	s.broadcastGameState()
}

func (s *Server) handleLeave(sess *session) {
	if sess.playerID != "" {
		slog.Info("player left", "player", sess.playerID)
	}
	s.broadcastGameState()
}

func (s *Server) broadcastGameState() {
	s.mu.Lock()
	volume := s.tradeVolume
	s.mu.Unlock()

	s.hub.deliver(protocol.GameStateUpdate{
		ConnectedPlayers:  s.hub.count(),
		GlobalTradeVolume: volume,
	})
}

// handleClaim resolves the race authoritatively: the registry's per-route
// lock picks exactly one winner, everyone hears the verdict, the loser is
// told directly.
func (s *Server) handleClaim(sess *session, m protocol.ClaimRoute) {
	emp := s.empire(m.PlayerID)

	if err := s.registry.Claim(m.RouteID, emp); err != nil {
		sess.push(protocol.RouteRejected{
			RouteID:  m.RouteID,
			PlayerID: m.PlayerID,
			Reason:   err.Error(),
		})
		// The route may have gone to someone else while this client was
		// offline; repeat the verdict so it reconciles.
		if owner := s.registry.OwnerOf(m.RouteID); owner != "" {
			sess.push(protocol.RouteClaimed{RouteID: m.RouteID, PlayerID: owner})
		}
		return
	}

	if route, ok := s.registry.Get(m.RouteID); ok {
		s.addTradeVolume(route.RequiredInvestment)
		slog.Info("route claimed",
			"route", m.RouteID,
			"player", m.PlayerID,
			"investment", humanize.Commaf(route.RequiredInvestment))
	}

	s.hub.deliver(protocol.RouteClaimed{RouteID: m.RouteID, PlayerID: m.PlayerID})
	sess.push(protocol.EmpireUpdate{PlayerID: m.PlayerID, Empire: emp.View()})
}

func (s *Server) handleRouteInvestment(sess *session, m protocol.InvestInRoute) {
	emp := s.empire(m.PlayerID)

	_, err := s.registry.Invest(m.RouteID, emp, m.Amount, s.sched, func(payout float64) {
		sess.push(protocol.EmpireUpdate{PlayerID: m.PlayerID, Empire: emp.View()})
	})
	if err != nil {
		slog.Warn("route investment refused", "player", m.PlayerID, "route", m.RouteID, "error", err)
		return
	}

	s.addTradeVolume(m.Amount)
	sess.push(protocol.EmpireUpdate{PlayerID: m.PlayerID, Empire: emp.View()})
}

func (s *Server) handleMarketInvestment(sess *session, m protocol.InvestInMarket) {
	emp := s.empire(m.PlayerID)

	_, err := s.market.Invest(emp, m.Amount, s.sched, func(payout float64) {
		sess.push(protocol.EmpireUpdate{PlayerID: m.PlayerID, Empire: emp.View()})
	})
	if err != nil {
		slog.Warn("market investment refused", "player", m.PlayerID, "error", err)
		return
	}

	s.addTradeVolume(m.Amount)
	sess.push(protocol.EmpireUpdate{PlayerID: m.PlayerID, Empire: emp.View()})
}

// syncState snapshots the whole authoritative state for reconciliation.
func (s *Server) syncState() protocol.SyncState {
	s.mu.Lock()
	views := make([]economy.EmpireView, 0, len(s.empires))
	for _, emp := range s.empires {
		views = append(views, emp.View())
	}
	s.mu.Unlock()

	sort.Slice(views, func(i, j int) bool { return views[i].PlayerID < views[j].PlayerID })

	state := protocol.SyncState{
		Routes:      s.registry.States(),
		Market:      s.market.Snapshot(),
		Singularity: s.sing.Progress(),
		Empires:     views,
	}
	if digest, err := state.ComputeDigest(); err == nil {
		state.Digest = digest
	}
	return state
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	players := len(s.empires)
	volume := s.tradeVolume
	turns := s.turns
	s.mu.Unlock()

	status := map[string]any{
		"name":          "Flexport",
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"players":       players,
		"turns":         turns,
		"trade_volume":  volume,
		"market_health": s.market.OverallHealth(),
		"singularity":   s.sing.Progress(),
		"phase":         s.sing.CurrentPhase(),
	}
	writeJSON(w, status)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		PlayerID   string  `json:"player_id"`
		NetWorth   float64 `json:"net_worth"`
		Level      int     `json:"level"`
		Routes     int     `json:"routes"`
		Reputation float64 `json:"reputation"`
	}

	s.mu.Lock()
	result := make([]entry, 0, len(s.empires))
	for _, emp := range s.empires {
		v := emp.View()
		result = append(result, entry{
			PlayerID:   v.PlayerID,
			NetWorth:   emp.NetWorth(),
			Level:      v.Level,
			Routes:     len(v.OwnedRoutes),
			Reputation: v.Reputation,
		})
	}
	s.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].NetWorth > result[j].NetWorth })
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
