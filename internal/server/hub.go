package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/jfuginay/flexport-cross-platform-game/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// session is one connected player socket.
type session struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	// Set on joinGame, read only from the hub goroutine afterward.
	playerID string
	platform string
}

// inbound carries a raw frame from a session's read pump to the hub
// goroutine, where all dispatch happens.
type inbound struct {
	sess *session
	data []byte
}

// Hub maintains the set of active sessions and serializes all game message
// handling onto one goroutine.
type Hub struct {
	register   chan *session
	unregister chan *session
	broadcast  chan []byte
	inbound    chan inbound
	sessions   map[*session]bool

	// Dispatch hooks, set by the Server before Run.
	onMessage func(*session, any)
	onLeave   func(*session)
}

func newHub() *Hub {
	return &Hub{
		register:   make(chan *session),
		unregister: make(chan *session),
		broadcast:  make(chan []byte, 64),
		inbound:    make(chan inbound, 256),
		sessions:   make(map[*session]bool),
	}
}

// Run owns the session set until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for sess := range h.sessions {
				close(sess.send)
				delete(h.sessions, sess)
			}
			return

		case sess := <-h.register:
			h.sessions[sess] = true
			slog.Info("session connected", "sessions", len(h.sessions))

		case sess := <-h.unregister:
			if _, ok := h.sessions[sess]; ok {
				delete(h.sessions, sess)
				close(sess.send)
				if h.onLeave != nil {
					h.onLeave(sess)
				}
			}

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case in := <-h.inbound:
			msg, err := protocol.Decode(in.data)
			if err != nil {
				slog.Warn("dropping bad frame", "error", err)
				continue
			}
			if h.onMessage != nil {
				h.onMessage(in.sess, msg)
			}
		}
	}
}

// fanOut delivers a frame to every session, evicting clients whose send
// buffer is full. Hub goroutine only.
func (h *Hub) fanOut(data []byte) {
	for sess := range h.sessions {
		select {
		case sess.send <- data:
		default:
			close(sess.send)
			delete(h.sessions, sess)
		}
	}
}

// Broadcast encodes a message and queues it for fan-out. Safe from any
// goroutine except the hub's own: the goroutine draining h.broadcast must
// not send into it. Dispatch hooks use deliver instead.
func (h *Hub) Broadcast(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encode broadcast", "error", err)
		return
	}
	h.broadcast <- data
}

// deliver encodes a message and fans it out immediately. Hub goroutine only.
func (h *Hub) deliver(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encode broadcast", "error", err)
		return
	}
	h.fanOut(data)
}

// count must only be called from the hub goroutine.
func (h *Hub) count() int {
	return len(h.sessions)
}

// push encodes a message for one session, dropping it if the client is slow.
func (s *session) push(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		slog.Error("encode message", "error", err)
		return
	}
	select {
	case s.send <- data:
	default:
		slog.Warn("slow client, dropping message", "player", s.playerID)
	}
}

func (s *session) readPump() {
	defer func() {
		s.hub.unregister <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("read error", "player", s.playerID, "error", err)
			}
			return
		}
		if s.limiter != nil && !s.limiter.Allow() {
			slog.Warn("message rate exceeded, dropping frame", "player", s.playerID)
			continue
		}
		s.hub.inbound <- inbound{sess: s, data: data}
	}
}

func (s *session) writePump() {
	defer s.conn.Close()

	for msg := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
