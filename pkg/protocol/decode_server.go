package protocol

import "encoding/json"

// DecodeServer parses one server-to-client frame into its typed variant.
// Used by the Go client; the browser client does the same dispatch in JS.
func DecodeServer(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrMalformed
	}

	var (
		msg any
		dst any
	)

	switch env.Type {
	case TypeHello:
		var m Hello
		msg, dst = &m, &m
	case TypePresence:
		var m Presence
		msg, dst = &m, &m
	case TypeRoster:
		var m Roster
		msg, dst = &m, &m
	case TypePlayerJoin:
		var m PlayerJoin
		msg, dst = &m, &m
	case TypePlayerUpdate:
		var m PlayerUpdate
		msg, dst = &m, &m
	case TypePlayerLeave:
		var m PlayerLeave
		msg, dst = &m, &m
	case TypeState:
		var m State
		msg, dst = &m, &m
	case TypeChat:
		var m Chat
		msg, dst = &m, &m
	case TypeSys:
		var m Sys
		msg, dst = &m, &m
	default:
		return nil, ErrUnknownType
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, ErrMalformed
	}
	return msg, nil
}
