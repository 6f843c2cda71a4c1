// Package protocol defines the JSON wire messages exchanged over the
// persistent socket between clients and the authoritative peer.
package protocol

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
	"github.com/jfuginay/flexport-cross-platform-game/internal/market"
	"github.com/jfuginay/flexport-cross-platform-game/internal/routes"
)

// Envelope wraps every message with its type tag.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Message type tags.
const (
	TypeJoinGame       = "joinGame"
	TypeClaimRoute     = "claimRoute"
	TypeInvestInRoute  = "investInRoute"
	TypeInvestInMarket = "investInMarket"
	TypeRequestSync    = "requestSync"

	TypeGameStateUpdate   = "gameStateUpdate"
	TypeRouteClaimed      = "routeClaimed"
	TypeRouteRejected     = "routeRejected"
	TypeSingularityUpdate = "singularityUpdate"
	TypeEmpireUpdate      = "empireUpdate"
	TypeMarketUpdate      = "marketUpdate"
	TypeSyncState         = "syncState"
)

// Client → server intents.

type JoinGame struct {
	PlayerID string `json:"playerId"`
	Platform string `json:"platform"`
}

type ClaimRoute struct {
	RouteID  string `json:"routeId"`
	PlayerID string `json:"playerId"`
}

type InvestInRoute struct {
	RouteID  string  `json:"routeId"`
	Amount   float64 `json:"amount"`
	PlayerID string  `json:"playerId"`
}

type InvestInMarket struct {
	MarketType string  `json:"marketType"`
	Amount     float64 `json:"amount"`
	PlayerID   string  `json:"playerId"`
}

type RequestSync struct {
	PlayerID string `json:"playerId"`
}

// Server → client broadcasts and replies.

type GameStateUpdate struct {
	ConnectedPlayers  int     `json:"connectedPlayers"`
	GlobalTradeVolume float64 `json:"globalTradeVolume"`
}

// RouteClaimed is the authoritative ownership decision; every client
// reconciles its local registry against it.
type RouteClaimed struct {
	RouteID  string `json:"routeId"`
	PlayerID string `json:"playerId"`
}

// RouteRejected tells one client its optimistic claim lost the race.
type RouteRejected struct {
	RouteID  string `json:"routeId"`
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"`
}

type SingularityUpdate struct {
	Progress float64 `json:"progress"`
}

type EmpireUpdate struct {
	PlayerID string             `json:"playerId"`
	Empire   economy.EmpireView `json:"empireData"`
}

type MarketUpdate struct {
	Market market.Snapshot `json:"marketData"`
}

// SyncState is the full-state reconciliation reply. Digest is a blake3 hash
// of the snapshot content so a client can cheaply notice divergence before
// applying.
type SyncState struct {
	Routes      []routes.State       `json:"routes"`
	Market      market.Snapshot      `json:"market"`
	Singularity float64              `json:"singularity"`
	Empires     []economy.EmpireView `json:"empires"`
	Digest      string               `json:"digest,omitempty"`
}

// ComputeDigest hashes the snapshot content (with the digest field cleared).
func (s SyncState) ComputeDigest() (string, error) {
	s.Digest = ""
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("digest snapshot: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// typeOf maps a payload to its wire tag.
func typeOf(msg any) (string, bool) {
	switch msg.(type) {
	case JoinGame:
		return TypeJoinGame, true
	case ClaimRoute:
		return TypeClaimRoute, true
	case InvestInRoute:
		return TypeInvestInRoute, true
	case InvestInMarket:
		return TypeInvestInMarket, true
	case RequestSync:
		return TypeRequestSync, true
	case GameStateUpdate:
		return TypeGameStateUpdate, true
	case RouteClaimed:
		return TypeRouteClaimed, true
	case RouteRejected:
		return TypeRouteRejected, true
	case SingularityUpdate:
		return TypeSingularityUpdate, true
	case EmpireUpdate:
		return TypeEmpireUpdate, true
	case MarketUpdate:
		return TypeMarketUpdate, true
	case SyncState:
		return TypeSyncState, true
	}
	return "", false
}

// Encode wraps a payload struct in its envelope and marshals it.
func Encode(msg any) ([]byte, error) {
	typ, ok := typeOf(msg)
	if !ok {
		return nil, fmt.Errorf("protocol: unknown message type %T", msg)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: payload})
}

// Decode parses an envelope and returns the concrete payload struct.
// Unknown type tags are an error, never a panic.
func Decode(data []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: envelope: %w", err)
	}

	var msg any
	switch env.Type {
	case TypeJoinGame:
		msg = &JoinGame{}
	case TypeClaimRoute:
		msg = &ClaimRoute{}
	case TypeInvestInRoute:
		msg = &InvestInRoute{}
	case TypeInvestInMarket:
		msg = &InvestInMarket{}
	case TypeRequestSync:
		msg = &RequestSync{}
	case TypeGameStateUpdate:
		msg = &GameStateUpdate{}
	case TypeRouteClaimed:
		msg = &RouteClaimed{}
	case TypeRouteRejected:
		msg = &RouteRejected{}
	case TypeSingularityUpdate:
		msg = &SingularityUpdate{}
	case TypeEmpireUpdate:
		msg = &EmpireUpdate{}
	case TypeMarketUpdate:
		msg = &MarketUpdate{}
	case TypeSyncState:
		msg = &SyncState{}
	default:
		return nil, fmt.Errorf("protocol: unknown message type %q", env.Type)
	}

	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("protocol: payload for %s: %w", env.Type, err)
	}

	// Return the value, not the pointer, so dispatchers switch on concrete
	// types.
	switch m := msg.(type) {
	case *JoinGame:
		return *m, nil
	case *ClaimRoute:
		return *m, nil
	case *InvestInRoute:
		return *m, nil
	case *InvestInMarket:
		return *m, nil
	case *RequestSync:
		return *m, nil
	case *GameStateUpdate:
		return *m, nil
	case *RouteClaimed:
		return *m, nil
	case *RouteRejected:
		return *m, nil
	case *SingularityUpdate:
		return *m, nil
	case *EmpireUpdate:
		return *m, nil
	case *MarketUpdate:
		return *m, nil
	case *SyncState:
		return *m, nil
	}
	return nil, fmt.Errorf("protocol: unreachable type %q", env.Type)
}
