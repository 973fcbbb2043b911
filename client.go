// Package diceland provides a Go client for the DiceLand lobby server,
// mirroring what the browser client does over the same wire protocol.
package diceland

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/pepeant/diceland-server/pkg/protocol"
)

// ErrNotConnected is returned when sending on a client whose read loop has
// already observed a transport failure.
var ErrNotConnected = errors.New("diceland: not connected")

// Client is one connection to the lobby. It tracks the assigned player id,
// the online count and a snapshot of remote players, and forwards every
// decoded server frame on Events. Reconnecting means dialing a fresh
// Client; the server hands out a new identity either way.
type Client struct {
	conn   *websocket.Conn
	events chan any
	done   chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex

	mu       sync.RWMutex
	playerID string
	online   int
	players  map[string]protocol.Player
}

// Dial connects to a lobby endpoint, e.g. "ws://localhost:8080/ws".
func Dial(rawURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:    conn,
		events:  make(chan any, 64),
		done:    make(chan struct{}),
		players: make(map[string]protocol.Player),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers every decoded server frame. The channel is closed when
// the connection dies.
func (c *Client) Events() <-chan any {
	return c.events
}

// Done is closed when the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// PlayerID returns the server-assigned identity, empty until the first
// hello frame arrives.
func (c *Client) PlayerID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// Online returns the last presence count seen.
func (c *Client) Online() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// Players returns the current snapshot of remote players.
func (c *Client) Players() []protocol.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	players := make([]protocol.Player, 0, len(c.players))
	for _, p := range c.players {
		players = append(players, p)
	}
	return players
}

// Hello introduces or renames this client.
func (c *Client) Hello(nickname string) error {
	return c.write(map[string]any{
		"type":     protocol.TypeHello,
		"nickname": nickname,
	})
}

// SendChat relays a chat line to the given room; an empty room means the
// server default.
func (c *Client) SendChat(text, room string) error {
	payload := map[string]any{
		"type": protocol.TypeChat,
		"text": text,
	}
	if room != "" {
		payload["room"] = room
	}
	return c.write(payload)
}

// SendState reports this client's room, position and cash.
func (c *Client) SendState(room string, x, y, cash float64) error {
	return c.write(map[string]any{
		"type": protocol.TypeState,
		"room": room,
		"x":    x,
		"y":    y,
		"cash": cash,
	})
}

// SendSys relays a narrator-style announcement.
func (c *Client) SendSys(text string) error {
	return c.write(map[string]any{
		"type": protocol.TypeSys,
		"text": text,
	})
}

// Close tears the connection down. The server notices either through the
// close frame or at its next liveness sweep.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) write(payload map[string]any) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(payload)
}

func (c *Client) readLoop() {
	defer func() {
		c.closeOnce.Do(func() { close(c.done) })
		close(c.events)
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.DecodeServer(raw)
		if err != nil {
			continue
		}
		c.apply(msg)

		select {
		case c.events <- msg:
		default:
			// A consumer that stopped draining loses events; the snapshot
			// accessors stay current regardless.
		}
	}
}

// apply folds a server frame into the tracked snapshot, the same
// bookkeeping the browser client keeps in its players map.
func (c *Client) apply(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case *protocol.Hello:
		c.playerID = m.PlayerID
	case *protocol.Presence:
		c.online = m.Online
	case *protocol.Roster:
		c.online = m.Online
		for _, p := range m.Players {
			c.players[p.ID] = p
		}
	case *protocol.PlayerJoin:
		c.players[m.Player.ID] = m.Player
	case *protocol.PlayerUpdate:
		c.players[m.Player.ID] = m.Player
	case *protocol.PlayerLeave:
		delete(c.players, m.PlayerID)
	case *protocol.State:
		if m.PlayerID == c.playerID {
			return
		}
		c.players[m.PlayerID] = protocol.Player{
			ID:       m.PlayerID,
			Nickname: m.Nickname,
			Room:     m.Room,
			X:        m.X,
			Y:        m.Y,
			Cash:     m.Cash,
		}
	}
}
