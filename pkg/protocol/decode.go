package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
)

var (
	// ErrMalformed is returned for frames that are not valid JSON objects,
	// lack a string "type" field, or miss a required field. Callers drop
	// these silently; nothing is surfaced to the sender.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrUnknownType is returned for well-formed frames whose type is not
	// part of the catalogue. Same policy: drop, don't answer.
	ErrUnknownType = errors.New("protocol: unknown message type")
)

// ClientMessage is the decoded form of one inbound frame.
type ClientMessage interface {
	clientMessage()
}

// HelloRequest updates the sender's nickname.
type HelloRequest struct {
	Nickname string
}

// StateRequest carries a partial room/position/cash update. Nil fields were
// absent or failed the type check and must leave current values untouched.
type StateRequest struct {
	Room *string
	X    *float64
	Y    *float64
	Cash *float64
}

// ChatRequest carries one chat line. Nickname, when present, renames the
// sender in the same frame.
type ChatRequest struct {
	Text     string
	Room     string
	Nickname string
}

// SysRequest carries a free-form announcement relayed verbatim.
type SysRequest struct {
	Text string
}

func (HelloRequest) clientMessage() {}
func (StateRequest) clientMessage() {}
func (ChatRequest) clientMessage()  {}
func (SysRequest) clientMessage()   {}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one inbound frame into its typed variant. A field of the
// wrong JSON type is treated as absent rather than failing the whole frame,
// so a single sloppy client cannot lose an otherwise valid update.
func Decode(raw []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformed
	}
	if env.Type == "" {
		return nil, ErrMalformed
	}

	fields := objectFields(raw)

	switch env.Type {
	case TypeHello:
		return decodeHello(fields), nil
	case TypeState:
		return decodeState(fields), nil
	case TypeChat:
		return decodeChat(fields)
	case TypeSys:
		return decodeSys(fields)
	default:
		return nil, ErrUnknownType
	}
}

func decodeHello(fields map[string]json.RawMessage) HelloRequest {
	var msg HelloRequest
	if s, ok := stringField(fields, "nickname"); ok {
		msg.Nickname = s
	}
	return msg
}

func decodeState(fields map[string]json.RawMessage) StateRequest {
	var msg StateRequest
	if room, ok := stringField(fields, "room"); ok && strings.TrimSpace(room) != "" {
		msg.Room = &room
	}
	if x, ok := numberField(fields, "x"); ok {
		msg.X = &x
	}
	if y, ok := numberField(fields, "y"); ok {
		msg.Y = &y
	}
	if cash, ok := numberField(fields, "cash"); ok {
		msg.Cash = &cash
	}
	return msg
}

func decodeChat(fields map[string]json.RawMessage) (ClientMessage, error) {
	text, ok := stringField(fields, "text")
	if !ok {
		return nil, ErrMalformed
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrMalformed
	}

	msg := ChatRequest{Text: text}
	if room, ok := stringField(fields, "room"); ok {
		msg.Room = room
	}
	if nickname, ok := stringField(fields, "nickname"); ok {
		msg.Nickname = nickname
	}
	return msg, nil
}

func decodeSys(fields map[string]json.RawMessage) (ClientMessage, error) {
	text, ok := stringField(fields, "text")
	if !ok || text == "" {
		return nil, ErrMalformed
	}
	return SysRequest{Text: text}, nil
}

// objectFields splits a frame into its raw top-level fields. The frame is
// already known to be a JSON object at this point.
func objectFields(raw []byte) map[string]json.RawMessage {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func numberField(fields map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
