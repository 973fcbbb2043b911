// Package protocol defines the JSON wire format spoken between the DiceLand
// lobby server and its clients: one object per frame, always tagged with a
// string "type" field.
package protocol

// Message type tags. Client and server frames share one namespace;
// "hello", "chat" and "sys" flow in both directions.
const (
	TypeHello        = "hello"
	TypePresence     = "presence"
	TypeRoster       = "roster"
	TypePlayerJoin   = "player_join"
	TypePlayerUpdate = "player_update"
	TypePlayerLeave  = "player_leave"
	TypeState        = "state"
	TypeChat         = "chat"
	TypeSys          = "sys"
)

// Player is the public snapshot of one live connection, as enumerated in
// roster and player_join/player_update payloads.
type Player struct {
	ID       string  `json:"id"`
	Nickname string  `json:"nickname"`
	Room     string  `json:"room"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Cash     float64 `json:"cash"`
}

// Hello is sent to a client right after the handshake and again as the
// confirmation of a client-side hello.
type Hello struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// Presence carries the current count of live connections.
type Presence struct {
	Type   string `json:"type"`
	Online int    `json:"online"`
}

// Roster enumerates every other live connection for a newly joined client.
type Roster struct {
	Type    string   `json:"type"`
	Players []Player `json:"players"`
	Online  int      `json:"online"`
}

// PlayerJoin announces a new connection to everyone else.
type PlayerJoin struct {
	Type   string `json:"type"`
	Player Player `json:"player"`
}

// PlayerUpdate announces a changed nickname to everyone else.
type PlayerUpdate struct {
	Type   string `json:"type"`
	Player Player `json:"player"`
}

// PlayerLeave announces a departed connection.
type PlayerLeave struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// State is the server-side fan-out of one connection's room/position/cash.
type State struct {
	Type     string  `json:"type"`
	PlayerID string  `json:"playerId"`
	Nickname string  `json:"nickname"`
	Room     string  `json:"room"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Cash     float64 `json:"cash"`
	TS       int64   `json:"ts"`
}

// Chat is a relayed chat line.
type Chat struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
	Text     string `json:"text"`
	TS       int64  `json:"ts"`
}

// Sys is a narrator-style announcement with no sender identity.
type Sys struct {
	Type string `json:"type"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
}
