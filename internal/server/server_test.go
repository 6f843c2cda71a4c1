package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jfuginay/flexport-cross-platform-game/internal/config"
	"github.com/jfuginay/flexport-cross-platform-game/internal/protocol"
)

func startTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	balance := config.DefaultBalance()
	balance.Engine.TurnInterval = 20 * time.Millisecond

	s := New(balance, 42)
	ts := httptest.NewServer(s.Handler())

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	data, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil decodes frames until one of the wanted type arrives. Other
// frames (market ticks, game state broadcasts) are skipped.
func readUntil[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var zero T
			t.Fatalf("waiting for %T: %v", zero, err)
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if m, ok := msg.(T); ok {
			return m
		}
	}
}

func TestJoinDeliversSyncState(t *testing.T) {
	_, ts := startTestServer(t)
	conn := dial(t, ts)

	send(t, conn, protocol.JoinGame{PlayerID: "p1", Platform: "web"})

	state := readUntil[protocol.SyncState](t, conn)
	if len(state.Routes) == 0 {
		t.Fatal("sync state has no routes")
	}
	if state.Digest == "" {
		t.Fatal("sync state missing digest")
	}

	want, err := state.ComputeDigest()
	if err != nil {
		t.Fatal(err)
	}
	if state.Digest != want {
		t.Errorf("digest = %s, want %s", state.Digest, want)
	}

	found := false
	for _, e := range state.Empires {
		if e.PlayerID == "p1" {
			found = true
			if e.Cash != 1_000_000 {
				t.Errorf("joining empire cash = %v, want 1000000", e.Cash)
			}
		}
	}
	if !found {
		t.Error("joining player missing from sync state")
	}
}

func TestClaimRaceHasOneWinner(t *testing.T) {
	_, ts := startTestServer(t)

	c1 := dial(t, ts)
	c2 := dial(t, ts)
	send(t, c1, protocol.JoinGame{PlayerID: "p1", Platform: "web"})
	send(t, c2, protocol.JoinGame{PlayerID: "p2", Platform: "mobile"})
	readUntil[protocol.SyncState](t, c1)
	readUntil[protocol.SyncState](t, c2)

	// p1 claims and the server settles it before p2 tries.
	send(t, c1, protocol.ClaimRoute{RouteID: "shanghai-la", PlayerID: "p1"})
	v1 := readUntil[protocol.RouteClaimed](t, c1)
	if v1.PlayerID != "p1" {
		t.Fatalf("winner = %s, want p1", v1.PlayerID)
	}

	send(t, c2, protocol.ClaimRoute{RouteID: "shanghai-la", PlayerID: "p2"})

	// The loser gets an explicit rejection plus the authoritative verdict.
	rej := readUntil[protocol.RouteRejected](t, c2)
	if rej.RouteID != "shanghai-la" {
		t.Errorf("rejection for route %s", rej.RouteID)
	}
	v2 := readUntil[protocol.RouteClaimed](t, c2)
	if v2.PlayerID != "p1" {
		t.Errorf("loser's verdict names %s, want p1", v2.PlayerID)
	}
}

func TestClaimDebitsServerLedger(t *testing.T) {
	s, ts := startTestServer(t)
	conn := dial(t, ts)

	send(t, conn, protocol.JoinGame{PlayerID: "p1", Platform: "web"})
	readUntil[protocol.SyncState](t, conn)

	send(t, conn, protocol.ClaimRoute{RouteID: "rotterdam-ny", PlayerID: "p1"})
	update := readUntil[protocol.EmpireUpdate](t, conn)

	if update.Empire.Cash != 650_000 {
		t.Errorf("cash after claim = %v, want 650000", update.Empire.Cash)
	}
	if s.registry.OwnerOf("rotterdam-ny") != "p1" {
		t.Errorf("registry owner = %q, want p1", s.registry.OwnerOf("rotterdam-ny"))
	}
}

func TestMarketBroadcasts(t *testing.T) {
	_, ts := startTestServer(t)
	conn := dial(t, ts)

	send(t, conn, protocol.JoinGame{PlayerID: "p1", Platform: "web"})
	readUntil[protocol.SyncState](t, conn)

	update := readUntil[protocol.MarketUpdate](t, conn)
	if update.Market.Goods <= 0 {
		t.Errorf("market update goods = %v", update.Market.Goods)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, ts := startTestServer(t)
	conn := dial(t, ts)
	send(t, conn, protocol.JoinGame{PlayerID: "p1", Platform: "web"})
	readUntil[protocol.SyncState](t, conn)

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}

	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["players"].(float64) != 1 {
		t.Errorf("players = %v, want 1", status["players"])
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	s, ts := startTestServer(t)

	s.empire("rich").ReceivePayment(5_000_000)
	s.empire("poor")

	resp, err := http.Get(ts.URL + "/api/v1/leaderboard")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	defer resp.Body.Close()

	var entries []struct {
		PlayerID string  `json:"player_id"`
		NetWorth float64 `json:"net_worth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].PlayerID != "rich" {
		t.Errorf("leader = %s, want rich", entries[0].PlayerID)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	if !rl.Allow("1.2.3.4") || !rl.Allow("1.2.3.4") {
		t.Fatal("burst should be allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("third immediate request should be limited")
	}
	// Separate IPs do not share buckets.
	if !rl.Allow("5.6.7.8") {
		t.Fatal("fresh IP should be allowed")
	}
}

func TestHubDispatchOutrunsBroadcastQueue(t *testing.T) {
	h := newHub()

	handled := make(chan struct{})
	h.onMessage = func(sess *session, msg any) {
		// A handler fanning out far more frames than the broadcast
		// queue holds must never stall the hub goroutine.
		for i := 0; i < 2*cap(h.broadcast); i++ {
			h.deliver(protocol.GameStateUpdate{ConnectedPlayers: i})
		}
		close(handled)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	sess := &session{hub: h, send: make(chan []byte, 1)}
	h.register <- sess

	data, err := protocol.Encode(protocol.RequestSync{PlayerID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	h.inbound <- inbound{sess: sess, data: data}

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("hub stalled fanning out its own messages")
	}
}
