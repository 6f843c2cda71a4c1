// Package client maintains the persistent socket to the authoritative peer:
// it dials, reconnects with capped exponential backoff, heartbeats, and
// feeds inbound messages to the session engine.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jfuginay/flexport-cross-platform-game/internal/entropy"
	"github.com/jfuginay/flexport-cross-platform-game/internal/events"
	"github.com/jfuginay/flexport-cross-platform-game/internal/protocol"
)

// State is the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// ErrNotConnected is returned by Send while the socket is down. Callers keep
// working locally; the engine reconciles on the next sync.
var ErrNotConnected = errors.New("client: not connected")

// Receiver absorbs inbound messages. The session engine implements it.
type Receiver interface {
	DeliverNet(msg any)
}

// Config tunes the connection loop.
type Config struct {
	URL               string
	PlayerID          string
	Platform          string
	DialTimeout       time.Duration
	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectCap      time.Duration

	// Jitter spreads reconnect delays so a fleet of clients dropped by the
	// same outage does not redial in lockstep. Nil means no jitter.
	Jitter entropy.Source
}

// Client is the sync client. It satisfies the engine's Transport interface.
type Client struct {
	cfg Config
	rx  Receiver
	bus *events.Bus

	mu    sync.Mutex
	conn  *websocket.Conn
	state State
}

// New creates a client in the disconnected state. Run starts it.
func New(cfg Config, rx Receiver, bus *events.Bus) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = time.Second
	}
	if cfg.ReconnectCap <= 0 {
		cfg.ReconnectCap = 30 * time.Second
	}
	return &Client{cfg: cfg, rx: rx, bus: bus, state: StateDisconnected}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the socket is up.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Send encodes and writes a message. Safe from any goroutine.
func (c *Client) Send(msg any) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.DialTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) setState(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from == to {
		return
	}
	slog.Info("sync state changed", "from", from, "to", to)
	if c.bus != nil {
		c.bus.Publish(events.SyncStateChanged{From: string(from), To: string(to)})
	}
}

// Run dials and keeps the connection alive until the context is cancelled.
// Each successful connection joins the game and requests a full sync, so
// reconnection always reconciles.
func (c *Client) Run(ctx context.Context) {
	defer c.setState(StateDisconnected)

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if attempt == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
			if !sleep(ctx, c.backoff(attempt)) {
				return
			}
		}

		conn, err := c.dial(ctx)
		if err != nil {
			slog.Warn("dial failed", "url", c.cfg.URL, "attempt", attempt+1, "error", err)
			attempt++
			continue
		}

		c.mu.Lock()
		from := c.state
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()
		slog.Info("sync state changed", "from", from, "to", StateConnected)
		if c.bus != nil {
			c.bus.Publish(events.SyncStateChanged{From: string(from), To: string(StateConnected)})
		}

		c.Send(protocol.JoinGame{PlayerID: c.cfg.PlayerID, Platform: c.cfg.Platform})
		c.Send(protocol.RequestSync{PlayerID: c.cfg.PlayerID})

		attempt = 1
		c.serve(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	return conn, err
}

// serve reads frames until the socket breaks or the context is cancelled.
// Heartbeats run here so a dead connection is noticed within one interval.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				slog.Warn("dropping bad frame", "error", err)
				continue
			}
			c.rx.DeliverNet(msg)
		}
	}()

	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			<-done
			return
		case <-done:
			conn.Close()
			return
		case <-heartbeat.C:
			if err := c.Send(protocol.RequestSync{PlayerID: c.cfg.PlayerID}); err != nil {
				conn.Close()
				<-done
				return
			}
		}
	}
}

// backoff returns the delay before the given reconnect attempt, doubling
// from the base up to the cap, plus up to a quarter of jitter when a source
// is configured.
func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.ReconnectBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.cfg.ReconnectCap {
			d = c.cfg.ReconnectCap
			break
		}
	}
	if d > c.cfg.ReconnectCap {
		d = c.cfg.ReconnectCap
	}
	if c.cfg.Jitter != nil {
		d += time.Duration(float64(d) / 4 * c.cfg.Jitter.Float64())
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
