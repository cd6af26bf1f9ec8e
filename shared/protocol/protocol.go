package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode wraps v into an envelope of the given type and channel.
func Encode(typ, channel string, v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return json.Marshal(MsgEnvelope{Type: typ, Channel: channel, Data: b})
}

// RoomChannel is the channel every member of (level, gameID) listens on.
// Any client can compute it without asking the server.
func RoomChannel(level, gameID string) string {
	return level + "_" + gameID
}

func PlayerChannel(level, gameID string) string {
	return RoomChannel(level, gameID) + "_player"
}

func CountdownChannel(level, gameID string) string {
	return RoomChannel(level, gameID) + "_countdown"
}
