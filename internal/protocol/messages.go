// Package protocol defines the JSON frames exchanged with lobby clients.
//
// Inbound frames decode into a closed set of variants so the dispatcher can
// match them exhaustively; an unrecognized "type" is a decode error, never a
// silent fallthrough.
package protocol

import (
	"encoding/json"
	"errors"
)

var (
	ErrMalformedFrame = errors.New("malformed_frame")
	ErrUnknownType    = errors.New("unknown_message_type")
)

// Inbound is the sealed set of client-to-server messages.
type Inbound interface {
	inbound()
}

type CreateRoom struct {
	Username string
}

type JoinRoom struct {
	Username string
	RoomCode string
}

type JoinQueue struct {
	GameType string
}

// StatusRequest asks for a fresh room_status broadcast. RoomID may be empty,
// in which case the session's current room is meant.
type StatusRequest struct {
	RoomID string
}

type Keepalive struct{}

func (CreateRoom) inbound()    {}
func (JoinRoom) inbound()      {}
func (JoinQueue) inbound()     {}
func (StatusRequest) inbound() {}
func (Keepalive) inbound()     {}

// envelope covers every field any inbound frame may carry. Unknown fields are
// ignored by encoding/json.
type envelope struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	RoomCode string `json:"room_code"`
	GameType string `json:"game_type"`
	RoomID   string `json:"room_id"`
}

const (
	// DefaultUsername stands in when a client omits its display name.
	DefaultUsername = "Anonymous"
	// DefaultGameType is the queue key used when join_queue names none.
	DefaultGameType = "4p"
)

// Decode parses one text frame into its Inbound variant.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformedFrame
	}

	switch env.Type {
	case "create_room":
		return CreateRoom{Username: usernameOrDefault(env.Username)}, nil
	case "join_room":
		return JoinRoom{Username: usernameOrDefault(env.Username), RoomCode: env.RoomCode}, nil
	case "join_queue":
		gameType := env.GameType
		if gameType == "" {
			gameType = DefaultGameType
		}
		return JoinQueue{GameType: gameType}, nil
	case "room_status":
		return StatusRequest{RoomID: env.RoomID}, nil
	case "keepalive":
		return Keepalive{}, nil
	default:
		return nil, ErrUnknownType
	}
}

func usernameOrDefault(username string) string {
	if username == "" {
		return DefaultUsername
	}
	return username
}
