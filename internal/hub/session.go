package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/pepeant/diceland-server/pkg/protocol"
)

// session is one live connection and its player-facing state. The id,
// traceID, conn and send channel are immutable after construction; the
// player fields and the alive flag belong to the hub's run goroutine.
type session struct {
	id      string
	traceID string // log correlation only, never on the wire
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	nickname string
	room     string
	x, y     float64
	cash     float64
	alive    bool
	joinedAt time.Time
}

func newSession(h *Hub, id string, conn *websocket.Conn) *session {
	return &session{
		id:       id,
		traceID:  xid.New().String(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.opts.SendBuffer),
		closed:   make(chan struct{}),
		nickname: protocol.DefaultNickname,
		room:     h.opts.DefaultRoom,
		alive:    true,
		joinedAt: time.Now(),
	}
}

// player snapshots the public fields for roster and join/update payloads.
func (s *session) player() protocol.Player {
	return protocol.Player{
		ID:       s.id,
		Nickname: s.nickname,
		Room:     s.room,
		X:        s.x,
		Y:        s.y,
		Cash:     s.cash,
	}
}

// enqueue hands a serialized frame to the write pump. Delivery is best
// effort: a consumer that stopped draining its buffer loses frames rather
// than stalling the hub.
func (s *session) enqueue(data []byte) {
	select {
	case s.send <- data:
	default:
		s.hub.logger.Debug("send buffer full, dropping frame",
			"player_id", s.id,
			"conn_id", s.traceID,
		)
	}
}

// ping writes a transport-level ping control frame. Safe to call while the
// write pump owns the data channel; gorilla allows concurrent WriteControl.
func (s *session) ping(timeout time.Duration) {
	_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// close tears down the transport. Idempotent; shared by the eviction,
// disconnect and shutdown paths.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// readPump pulls frames off the socket, decodes them permissively and
// forwards the survivors to the hub. Malformed or unknown frames are
// dropped without any answer to the sender. Any read error, clean close
// included, funnels into the same unregister path.
func (s *session) readPump() {
	defer func() {
		s.hub.post(event{kind: eventUnregister, sess: s})
		s.close()
	}()

	s.conn.SetReadLimit(s.hub.opts.MaxMessageSize)
	s.conn.SetPongHandler(func(string) error {
		s.hub.post(event{kind: eventPong, sess: s})
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.hub.logger.Debug("read error",
					"player_id", s.id,
					"conn_id", s.traceID,
					"error", err,
				)
			}
			return
		}

		msg, err := protocol.Decode(raw)
		if err != nil {
			continue
		}

		if !s.hub.post(event{kind: eventMessage, sess: s, msg: msg}) {
			return
		}
	}
}

// writePump drains the send channel onto the socket, one JSON object per
// text frame. It exits on write failure or when the session is closed, and
// sends a close frame on the way out of a clean shutdown.
func (s *session) writePump() {
	defer s.close()

	for {
		select {
		case <-s.closed:
			deadline := time.Now().Add(s.hub.opts.WriteTimeout)
			_ = s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				deadline,
			)
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.opts.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			atomic.AddInt64(&s.hub.messagesSent, 1)
		}
	}
}
