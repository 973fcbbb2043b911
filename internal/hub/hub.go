// Package hub implements the DiceLand lobby relay: it owns the registry of
// live connections, assigns player identities, fans out presence, roster,
// state and chat frames, and evicts connections that stop answering pings.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pepeant/diceland-server/internal/logging"
	"github.com/pepeant/diceland-server/pkg/protocol"
)

// Options configures a Hub.
type Options struct {
	HeartbeatInterval time.Duration
	MaxNickname       int
	MaxChatLen        int
	DefaultRoom       string
	SendBuffer        int
	MaxMessageSize    int64
	WriteTimeout      time.Duration
	ReadBufferSize    int
	WriteBufferSize   int
}

// DefaultOptions returns the production defaults: a 30s liveness sweep,
// 12-rune nicknames, 280-rune chat lines, and the "lobby" room.
func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 30 * time.Second,
		MaxNickname:       12,
		MaxChatLen:        280,
		DefaultRoom:       "lobby",
		SendBuffer:        256,
		MaxMessageSize:    4096,
		WriteTimeout:      10 * time.Second,
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
	}
}

type eventKind int

const (
	eventRegister eventKind = iota
	eventUnregister
	eventPong
	eventMessage
)

// event is the single unit of work for the run loop. Register,
// disconnect, pong and inbound frames all travel through one channel so
// that per-connection ordering is preserved end to end.
type event struct {
	kind eventKind
	sess *session
	msg  protocol.ClientMessage
}

// Hub mediates all cross-connection communication. The sessions map and
// every per-player field are touched only by the run goroutine.
type Hub struct {
	opts     Options
	logger   *logging.Logger
	upgrader websocket.Upgrader

	sessions map[string]*session
	events   chan event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	nextID           uint64
	online           int64
	messagesSent     int64
	messagesReceived int64
	startTime        time.Time
}

// Stats is a point-in-time snapshot of hub counters.
type Stats struct {
	Online           int     `json:"online"`
	MessagesSent     int64   `json:"messages_sent"`
	MessagesReceived int64   `json:"messages_received"`
	Uptime           float64 `json:"uptime_seconds"`
}

func New(logger *logging.Logger, opts Options) *Hub {
	return &Hub{
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				// The lobby accepts any origin; identity is ephemeral.
				return true
			},
		},
		sessions:  make(map[string]*session),
		events:    make(chan event, 1024),
		startTime: time.Now(),
	}
}

// Start launches the run loop. ServeWS must not be called before Start.
func (h *Hub) Start(ctx context.Context) error {
	if h.ctx != nil {
		return errors.New("hub already started")
	}
	h.ctx, h.cancel = context.WithCancel(ctx)
	h.wg.Add(1)
	go h.run()
	h.logger.Info("hub started", "heartbeat_interval", h.opts.HeartbeatInterval)
	return nil
}

// Stop terminates the run loop and closes every live connection.
func (h *Hub) Stop() error {
	if h.cancel == nil {
		return errors.New("hub not started")
	}
	h.cancel()
	h.wg.Wait()

	// The loop has exited, so the map is safe to touch from here.
	for _, s := range h.sessions {
		s.close()
	}
	h.sessions = make(map[string]*session)
	atomic.StoreInt64(&h.online, 0)

	h.logger.Info("hub stopped")
	return nil
}

// Stats returns current counters without touching loop-owned state.
func (h *Hub) Stats() Stats {
	return Stats{
		Online:           int(atomic.LoadInt64(&h.online)),
		MessagesSent:     atomic.LoadInt64(&h.messagesSent),
		MessagesReceived: atomic.LoadInt64(&h.messagesReceived),
		Uptime:           time.Since(h.startTime).Seconds(),
	}
}

// ServeWS upgrades an HTTP request and hands the connection to the hub.
// The identifier is allocated here so it is assigned the moment the socket
// opens; it is never reused while the process runs.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The request-scoped logger carries the HTTP request id.
		logging.FromContext(r.Context()).Error("websocket upgrade failed", "error", err)
		return
	}

	id := fmt.Sprintf("p%d", atomic.AddUint64(&h.nextID, 1))
	s := newSession(h, id, conn)

	if !h.post(event{kind: eventRegister, sess: s}) {
		conn.Close()
		return
	}

	go s.writePump()
	go s.readPump()
}

// post enqueues an event for the run loop. It reports false once the hub
// is shutting down.
func (h *Hub) post(ev event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case ev := <-h.events:
			h.dispatch(ev)
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) dispatch(ev event) {
	switch ev.kind {
	case eventRegister:
		h.handleRegister(ev.sess)
	case eventUnregister:
		h.handleUnregister(ev.sess)
	case eventPong:
		h.handlePong(ev.sess)
	case eventMessage:
		h.handleMessage(ev.sess, ev.msg)
	}
}

func (h *Hub) handleRegister(s *session) {
	h.sessions[s.id] = s
	atomic.StoreInt64(&h.online, int64(len(h.sessions)))

	h.sendTo(s, protocol.Hello{Type: protocol.TypeHello, PlayerID: s.id})
	h.sendTo(s, protocol.Roster{
		Type:    protocol.TypeRoster,
		Players: h.rosterExcept(s),
		Online:  len(h.sessions),
	})
	h.broadcast(protocol.Presence{Type: protocol.TypePresence, Online: len(h.sessions)}, nil)
	h.broadcast(protocol.PlayerJoin{Type: protocol.TypePlayerJoin, Player: s.player()}, s)

	h.logger.Info("client connected",
		"player_id", s.id,
		"conn_id", s.traceID,
		"online", len(h.sessions),
	)
}

// handleUnregister removes a connection and announces the departure. It is
// a no-op for a connection that was already removed, so the close and
// eviction paths can both call it safely.
func (h *Hub) handleUnregister(s *session) {
	if _, ok := h.sessions[s.id]; !ok {
		return
	}
	delete(h.sessions, s.id)
	atomic.StoreInt64(&h.online, int64(len(h.sessions)))
	s.close()

	h.broadcast(protocol.PlayerLeave{Type: protocol.TypePlayerLeave, PlayerID: s.id}, nil)
	h.broadcast(protocol.Sys{
		Type: protocol.TypeSys,
		Text: fmt.Sprintf("%s left", s.nickname),
		TS:   now(),
	}, nil)
	h.broadcast(protocol.Presence{Type: protocol.TypePresence, Online: len(h.sessions)}, nil)

	h.logger.Info("client disconnected",
		"player_id", s.id,
		"conn_id", s.traceID,
		"online", len(h.sessions),
		"session_duration", time.Since(s.joinedAt),
	)
}

func (h *Hub) handlePong(s *session) {
	if _, ok := h.sessions[s.id]; ok {
		s.alive = true
	}
}

func (h *Hub) handleMessage(s *session, msg protocol.ClientMessage) {
	if _, ok := h.sessions[s.id]; !ok {
		return
	}
	atomic.AddInt64(&h.messagesReceived, 1)

	switch m := msg.(type) {
	case protocol.HelloRequest:
		h.handleHello(s, m)
	case protocol.StateRequest:
		h.handleState(s, m)
	case protocol.ChatRequest:
		h.handleChat(s, m)
	case protocol.SysRequest:
		h.handleSys(m)
	}
}

func (h *Hub) handleHello(s *session, m protocol.HelloRequest) {
	s.nickname = protocol.CleanNickname(m.Nickname, h.opts.MaxNickname)

	h.sendTo(s, protocol.Hello{Type: protocol.TypeHello, PlayerID: s.id})
	h.broadcast(protocol.PlayerUpdate{Type: protocol.TypePlayerUpdate, Player: s.player()}, s)

	h.logger.Debug("nickname set", "player_id", s.id, "nickname", s.nickname)
}

func (h *Hub) handleState(s *session, m protocol.StateRequest) {
	// Last write wins; absent or invalid fields keep their current values.
	// Reported cash and position are relayed as-is, nothing here second-
	// guesses what the game client claims.
	if m.Room != nil {
		s.room = *m.Room
	}
	if m.X != nil {
		s.x = *m.X
	}
	if m.Y != nil {
		s.y = *m.Y
	}
	if m.Cash != nil {
		s.cash = *m.Cash
	}

	// Sender included; clients filter their own echo by playerId.
	h.broadcast(protocol.State{
		Type:     protocol.TypeState,
		PlayerID: s.id,
		Nickname: s.nickname,
		Room:     s.room,
		X:        s.x,
		Y:        s.y,
		Cash:     s.cash,
		TS:       now(),
	}, nil)
}

func (h *Hub) handleChat(s *session, m protocol.ChatRequest) {
	text := protocol.CleanText(m.Text, h.opts.MaxChatLen)
	if text == "" {
		return
	}

	room := strings.TrimSpace(m.Room)
	if room == "" {
		room = h.opts.DefaultRoom
	}

	// A chat frame may rename its sender in passing.
	if strings.TrimSpace(m.Nickname) != "" {
		s.nickname = protocol.CleanNickname(m.Nickname, h.opts.MaxNickname)
	}

	h.broadcast(protocol.Chat{
		Type:     protocol.TypeChat,
		Room:     room,
		PlayerID: s.id,
		Nickname: s.nickname,
		Text:     text,
		TS:       now(),
	}, nil)
}

func (h *Hub) handleSys(m protocol.SysRequest) {
	h.broadcast(protocol.Sys{
		Type: protocol.TypeSys,
		Text: protocol.Truncate(m.Text, h.opts.MaxChatLen),
		TS:   now(),
	}, nil)
}

// sweep is the liveness pass: evict whoever never answered the previous
// ping, then challenge the survivors. Browsers drop TCP connections without
// a close frame all the time; without this the registry would drift from
// reality indefinitely.
func (h *Hub) sweep() {
	var dead []*session
	for _, s := range h.sessions {
		if !s.alive {
			dead = append(dead, s)
		}
	}
	for _, s := range dead {
		h.logger.Warn("heartbeat missed, terminating",
			"player_id", s.id,
			"conn_id", s.traceID,
		)
		h.handleUnregister(s)
	}

	for _, s := range h.sessions {
		s.alive = false
		s.ping(h.opts.WriteTimeout)
	}

	h.broadcast(protocol.Presence{Type: protocol.TypePresence, Online: len(h.sessions)}, nil)
}

// broadcast serializes once and fans out to every registered session,
// optionally excluding one. Sessions that are gone from the map no longer
// receive anything, which is what bounds a broadcast to OPEN connections.
func (h *Hub) broadcast(msg any, except *session) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast", "error", err)
		return
	}
	for _, s := range h.sessions {
		if s == except {
			continue
		}
		s.enqueue(data)
	}
}

func (h *Hub) sendTo(s *session, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}
	s.enqueue(data)
}

func (h *Hub) rosterExcept(except *session) []protocol.Player {
	players := make([]protocol.Player, 0, len(h.sessions))
	for _, s := range h.sessions {
		if s == except {
			continue
		}
		players = append(players, s.player())
	}
	return players
}

func now() int64 {
	return time.Now().UnixMilli()
}
