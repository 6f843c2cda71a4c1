package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jfuginay/flexport-cross-platform-game/internal/entropy"
	"github.com/jfuginay/flexport-cross-platform-game/internal/events"
	"github.com/jfuginay/flexport-cross-platform-game/internal/protocol"
)

type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recorder) DeliverNet(msg any) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestBackoffDoublesToCap(t *testing.T) {
	c := New(Config{
		ReconnectBase: time.Second,
		ReconnectCap:  10 * time.Second,
	}, &recorder{}, nil)

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{9, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := c.backoff(tc.attempt); got != tc.want {
			t.Errorf("backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New(Config{}, &recorder{}, nil)
	if err := c.Send(protocol.RequestSync{PlayerID: "p1"}); err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if c.Connected() {
		t.Fatal("fresh client reports connected")
	}
}

// echoServer upgrades connections, records the first frames, and replies
// with a singularityUpdate. The returned drop closes every live server-side
// connection; closing the httptest server alone leaves hijacked websocket
// conns open.
func echoServer(t *testing.T) (*httptest.Server, string, func()) {
	t.Helper()
	var mu sync.Mutex
	conns := make(map[*websocket.Conn]struct{})

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()
		defer func() {
			mu.Lock()
			delete(conns, conn)
			mu.Unlock()
			conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			if _, ok := msg.(protocol.RequestSync); ok {
				reply, _ := protocol.Encode(protocol.SingularityUpdate{Progress: 7})
				conn.WriteMessage(websocket.TextMessage, reply)
			}
		}
	}))
	drop := func() {
		mu.Lock()
		defer mu.Unlock()
		for conn := range conns {
			conn.Close()
		}
	}
	return ts, "ws" + strings.TrimPrefix(ts.URL, "http"), drop
}

func TestConnectAndDeliver(t *testing.T) {
	ts, url, _ := echoServer(t)
	defer ts.Close()

	rx := &recorder{}
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	c := New(Config{
		URL:               url,
		PlayerID:          "p1",
		Platform:          "web",
		HeartbeatInterval: time.Hour,
	}, rx, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	// The connect handshake sends a requestSync, so the echo server's reply
	// lands in the receiver.
	deadline := time.Now().Add(3 * time.Second)
	for rx.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rx.count() == 0 {
		t.Fatal("no message delivered")
	}
	rx.mu.Lock()
	first := rx.msgs[0]
	rx.mu.Unlock()
	if m, ok := first.(protocol.SingularityUpdate); !ok || m.Progress != 7 {
		t.Fatalf("delivered %v", first)
	}
	if !c.Connected() {
		t.Fatal("client should report connected")
	}

	// Connection state transitions were published.
	sawConnected := false
	for done := false; !done; {
		select {
		case ev := <-ch:
			if sc, ok := ev.(events.SyncStateChanged); ok && sc.To == string(StateConnected) {
				sawConnected = true
				done = true
			}
		default:
			done = true
		}
	}
	if !sawConnected {
		t.Error("no SyncStateChanged to connected")
	}
}

func TestTeardownOnCancel(t *testing.T) {
	ts, url, _ := echoServer(t)
	defer ts.Close()

	c := New(Config{URL: url, PlayerID: "p1", HeartbeatInterval: time.Hour}, &recorder{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for !c.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !c.Connected() {
		t.Fatal("never connected")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state after teardown = %s", c.State())
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	ts, url, drop := echoServer(t)

	rx := &recorder{}
	c := New(Config{
		URL:               url,
		PlayerID:          "p1",
		HeartbeatInterval: time.Hour,
		ReconnectBase:     10 * time.Millisecond,
		ReconnectCap:      20 * time.Millisecond,
	}, rx, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for !c.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !c.Connected() {
		t.Fatal("never connected")
	}

	// Kill the live connection; the client should fall out of connected.
	drop()
	deadline = time.Now().Add(3 * time.Second)
	for c.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if c.Connected() {
		t.Fatal("client still connected after server drop")
	}

	// The same server is still listening, so the backoff loop reconnects.
	deadline = time.Now().Add(3 * time.Second)
	for !c.Connected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !c.Connected() {
		t.Fatal("client never reconnected")
	}
	ts.Close()
}

func TestBackoffJitterStaysBounded(t *testing.T) {
	c := New(Config{
		ReconnectBase: time.Second,
		ReconnectCap:  10 * time.Second,
		Jitter:        entropy.NewLocked(entropy.NewSeeded(1)),
	}, &recorder{}, nil)

	for attempt := 1; attempt <= 9; attempt++ {
		base := time.Second << (attempt - 1)
		if base > 10*time.Second {
			base = 10 * time.Second
		}
		got := c.backoff(attempt)
		if got < base || got > base+base/4 {
			t.Errorf("backoff(%d) = %v, want within [%v, %v]", attempt, got, base, base+base/4)
		}
	}
}
