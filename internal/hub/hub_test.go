package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pepeant/diceland-server/internal/logging"
	"github.com/pepeant/diceland-server/pkg/protocol"
)

func testOptions() Options {
	opts := DefaultOptions()
	// Keep the sweep out of the way unless a test is about it.
	opts.HeartbeatInterval = time.Hour
	return opts
}

func newTestHub(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	t.Helper()

	logger := logging.New(logging.Config{Level: "error", Format: "text"})
	h := New(logger, opts)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		if err := h.Stop(); err != nil {
			t.Errorf("Stop() error = %v", err)
		}
		srv.Close()
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads until a frame of the wanted type arrives, skipping
// everything else. Reading continuously also keeps the client answering
// server pings.
func readFrame(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q frame: %v", wantType, err)
		}
		var frame map[string]any
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("invalid frame %s: %v", raw, err)
		}
		if frame["type"] == wantType {
			return frame
		}
	}
}

func readHello(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	frame := readFrame(t, conn, protocol.TypeHello)
	id, _ := frame["playerId"].(string)
	if id == "" {
		t.Fatal("hello frame without playerId")
	}
	return id
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

func TestConnectAssignsDistinctIDs(t *testing.T) {
	_, srv := newTestHub(t, testOptions())

	const n = 5
	seen := make(map[string]bool, n)
	conns := make([]*websocket.Conn, 0, n)
	for i := 0; i < n; i++ {
		conn := dial(t, srv)
		id := readHello(t, conn)
		if seen[id] {
			t.Fatalf("identifier %q assigned twice", id)
		}
		seen[id] = true
		conns = append(conns, conn)
	}

	// The first connection eventually observes the full lobby.
	for {
		frame := readFrame(t, conns[0], protocol.TypePresence)
		if int(frame["online"].(float64)) == n {
			break
		}
	}

	conns[n-1].Close()
	conns[n-2].Close()
	for {
		frame := readFrame(t, conns[0], protocol.TypePresence)
		if int(frame["online"].(float64)) == n-2 {
			break
		}
	}
}

func TestReconnectGetsFreshID(t *testing.T) {
	_, srv := newTestHub(t, testOptions())

	conn := dial(t, srv)
	first := readHello(t, conn)
	conn.Close()

	conn = dial(t, srv)
	second := readHello(t, conn)

	if first == second {
		t.Fatalf("reconnect reused identifier %q", first)
	}
}

func TestWhitespaceChatProducesNoBroadcast(t *testing.T) {
	_, srv := newTestHub(t, testOptions())

	a := dial(t, srv)
	readHello(t, a)
	b := dial(t, srv)
	readHello(t, b)

	send(t, a, `{"type":"chat","text":"   "}`)
	send(t, a, `{"type":"chat","text":"ping"}`)

	// Per-sender order is preserved, so if the whitespace line had been
	// relayed it would arrive before "ping".
	frame := readFrame(t, b, protocol.TypeChat)
	if frame["text"] != "ping" {
		t.Fatalf("first relayed chat = %q, want %q", frame["text"], "ping")
	}
}

func TestChatReachesEveryConnection(t *testing.T) {
	_, srv := newTestHub(t, testOptions())

	a := dial(t, srv)
	idA := readHello(t, a)
	b := dial(t, srv)
	readHello(t, b)

	send(t, a, `{"type":"chat","text":"hello","room":"lobby"}`)

	for _, conn := range []*websocket.Conn{a, b} {
		frame := readFrame(t, conn, protocol.TypeChat)
		if frame["text"] != "hello" || frame["room"] != "lobby" {
			t.Errorf("chat frame = %v", frame)
		}
		if frame["playerId"] != idA {
			t.Errorf("chat playerId = %v, want %v", frame["playerId"], idA)
		}
		if _, ok := frame["ts"].(float64); !ok {
			t.Errorf("chat frame missing ts: %v", frame)
		}
	}
}

func TestChatTruncation(t *testing.T) {
	_, srv := newTestHub(t, testOptions())

	a := dial(t, srv)
	readHello(t, a)

	long := strings.Repeat("x", 500)
	payload, _ := json.Marshal(map[string]any{"type": "chat", "text": long})
	send(t, a, string(payload))

	frame := readFrame(t, a, protocol.TypeChat)
	if got := len(frame["text"].(string)); got != 280 {
		t.Fatalf("relayed chat length = %d, want 280", got)
	}

	exact := strings.Repeat("y", 280)
	payload, _ = json.Marshal(map[string]any{"type": "chat", "text": exact})
	send(t, a, string(payload))

	frame = readFrame(t, a, protocol.TypeChat)
	if frame["text"] != exact {
		t.Fatal("chat at the bound should round-trip verbatim")
	}
}

func TestStatePartialUpdateRetainsFields(t *testing.T) {
	_, srv := newTestHub(t, testOptions())

	a := dial(t, srv)
	idA := readHello(t, a)
	b := dial(t, srv)
	readHello(t, b)

	send(t, a, `{"type":"state","room":"casino","x":12.5,"y":-3}`)

	frame := readFrame(t, b, protocol.TypeState)
	if frame["playerId"] != idA || frame["room"] != "casino" || frame["x"].(float64) != 12.5 || frame["y"].(float64) != -3.0 {
		t.Fatalf("state frame = %v", frame)
	}

	// A partial update must leave the other fields alone.
	send(t, a, `{"type":"state","cash":100}`)

	frame = readFrame(t, b, protocol.TypeState)
	if frame["room"] != "casino" || frame["x"].(float64) != 12.5 || frame["y"].(float64) != -3.0 {
		t.Fatalf("partial state clobbered fields: %v", frame)
	}
	if frame["cash"].(float64) != 100 {
		t.Fatalf("cash = %v, want 100", frame["cash"])
	}

	// A later joiner sees the same values in its roster.
	c := dial(t, srv)
	roster := readFrame(t, c, protocol.TypeRoster)
	players := roster["players"].([]any)
	var found bool
	for _, p := range players {
		player := p.(map[string]any)
		if player["id"] != idA {
			continue
		}
		found = true
		if player["room"] != "casino" || player["x"].(float64) != 12.5 || player["cash"].(float64) != 100 {
			t.Fatalf("roster entry = %v", player)
		}
	}
	if !found {
		t.Fatalf("roster missing %s: %v", idA, players)
	}
}

func TestHelloRenameBroadcastsUpdate(t *testing.T) {
	_, srv := newTestHub(t, testOptions())

	a := dial(t, srv)
	idA := readHello(t, a)
	b := dial(t, srv)
	readHello(t, b)

	send(t, a, `{"type":"hello","nickname":"HighRollerSupreme"}`)

	// Echoed confirmation to the sender.
	if got := readHello(t, a); got != idA {
		t.Fatalf("hello echo playerId = %q, want %q", got, idA)
	}

	frame := readFrame(t, b, protocol.TypePlayerUpdate)
	player := frame["player"].(map[string]any)
	if player["id"] != idA {
		t.Fatalf("player_update id = %v, want %v", player["id"], idA)
	}
	if player["nickname"] != "HighRollerSu" {
		t.Fatalf("nickname = %q, want 12-rune truncation", player["nickname"])
	}
}

func TestSysRelayedWithoutSender(t *testing.T) {
	_, srv := newTestHub(t, testOptions())

	a := dial(t, srv)
	readHello(t, a)
	b := dial(t, srv)
	readHello(t, b)

	send(t, a, `{"type":"sys","text":"the gunman enters"}`)

	frame := readFrame(t, b, protocol.TypeSys)
	if frame["text"] != "the gunman enters" {
		t.Fatalf("sys text = %q", frame["text"])
	}
	if _, ok := frame["playerId"]; ok {
		t.Fatal("sys frame must not carry a sender identity")
	}
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	_, srv := newTestHub(t, testOptions())

	a := dial(t, srv)
	readHello(t, a)
	b := dial(t, srv)
	readHello(t, b)

	send(t, a, `this is not json`)
	send(t, a, `{"no":"type"}`)
	send(t, a, `{"type":"teleport"}`)
	send(t, a, `{"type":"chat","text":"still here"}`)

	frame := readFrame(t, b, protocol.TypeChat)
	if frame["text"] != "still here" {
		t.Fatalf("chat after junk = %q", frame["text"])
	}
}

func TestHeartbeatEvictsSilentConnection(t *testing.T) {
	opts := testOptions()
	opts.HeartbeatInterval = 50 * time.Millisecond
	_, srv := newTestHub(t, opts)

	a := dial(t, srv)
	readHello(t, a)

	b := dial(t, srv)
	idB := readHello(t, b)
	// b stops reading here: it never processes pings, so it never pongs.

	frame := readFrame(t, a, protocol.TypePlayerLeave)
	if frame["playerId"] != idB {
		t.Fatalf("player_leave for %v, want %v", frame["playerId"], idB)
	}

	// Exactly once: no further player_leave for b over several sweeps.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		_ = a.SetReadDeadline(deadline)
		_, raw, err := a.ReadMessage()
		if err != nil {
			break
		}
		var extra map[string]any
		if err := json.Unmarshal(raw, &extra); err != nil {
			t.Fatalf("invalid frame %s: %v", raw, err)
		}
		if extra["type"] == protocol.TypePlayerLeave && extra["playerId"] == idB {
			t.Fatal("duplicate player_leave broadcast")
		}
	}
}

func TestResponsiveConnectionSurvivesSweeps(t *testing.T) {
	opts := testOptions()
	opts.HeartbeatInterval = 50 * time.Millisecond
	h, srv := newTestHub(t, opts)

	a := dial(t, srv)
	readHello(t, a)

	// Reading continuously answers pings; ride out many sweep periods.
	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		_ = a.SetReadDeadline(deadline)
		if _, _, err := a.ReadMessage(); err != nil {
			break
		}
	}

	if got := h.Stats().Online; got != 1 {
		t.Fatalf("online = %d, want the responsive connection to survive", got)
	}
}

func TestDisconnectBroadcastsDeparture(t *testing.T) {
	_, srv := newTestHub(t, testOptions())

	a := dial(t, srv)
	readHello(t, a)
	b := dial(t, srv)
	idB := readHello(t, b)

	b.Close()

	frame := readFrame(t, a, protocol.TypePlayerLeave)
	if frame["playerId"] != idB {
		t.Fatalf("player_leave playerId = %v, want %v", frame["playerId"], idB)
	}

	for {
		frame := readFrame(t, a, protocol.TypePresence)
		if int(frame["online"].(float64)) == 1 {
			break
		}
	}
}

func TestStatsCounters(t *testing.T) {
	h, srv := newTestHub(t, testOptions())

	a := dial(t, srv)
	readHello(t, a)

	send(t, a, `{"type":"chat","text":"counting"}`)
	readFrame(t, a, protocol.TypeChat)

	stats := h.Stats()
	if stats.Online != 1 {
		t.Errorf("Online = %d, want 1", stats.Online)
	}
	if stats.MessagesReceived < 1 {
		t.Errorf("MessagesReceived = %d, want at least 1", stats.MessagesReceived)
	}
	if stats.MessagesSent < 1 {
		t.Errorf("MessagesSent = %d, want at least 1", stats.MessagesSent)
	}
}
