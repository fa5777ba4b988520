// internal/message/message.go
// Contains data structures for messages exchanged between clients and server.
package message

import "encoding/json"

// Message types carried in the "type" field.
const (
	TypePlayersList  = "players_list"
	TypePlayerJoined = "player_joined"
	TypePlayerUpdate = "player_update"
	TypePlayerLeft   = "player_left"
	TypePing         = "ping"
	TypePong         = "pong"
)

// PlayerState is the last known position and appearance of a player. It is
// always replaced as a whole. X, Y and Avatar are null when the client
// omitted them.
type PlayerState struct {
	X          *float64        `json:"x"`
	Y          *float64        `json:"y"`
	Avatar     json.RawMessage `json:"avatar"`
	FacingLeft bool            `json:"facingLeft"`
}

// PlayersList is the snapshot sent to a client right after it connects.
type PlayersList struct {
	Type    string                 `json:"type"`
	Players map[string]PlayerState `json:"players"`
}

// PlayerJoined announces a new connection. Data is an empty object when the
// player has not reported any state yet.
type PlayerJoined struct {
	Type string `json:"type"`
	UID  string `json:"uid"`
	Data any    `json:"data"`
}

type PlayerUpdate struct {
	Type string      `json:"type"`
	UID  string      `json:"uid"`
	Data PlayerState `json:"data"`
}

type PlayerLeft struct {
	Type string `json:"type"`
	UID  string `json:"uid"`
}

type Pong struct {
	Type string `json:"type"`
}

// ClientMessage is any message received from a client. Only the fields used
// by the message type are set.
type ClientMessage struct {
	Type       string          `json:"type"`
	X          *float64        `json:"x"`
	Y          *float64        `json:"y"`
	Avatar     json.RawMessage `json:"avatar"`
	FacingLeft *bool           `json:"facingLeft"`
}

// State extracts the player state of a player_update message. facingLeft
// defaults to false.
func (m ClientMessage) State() PlayerState {
	s := PlayerState{X: m.X, Y: m.Y, Avatar: m.Avatar}
	if m.FacingLeft != nil {
		s.FacingLeft = *m.FacingLeft
	}
	return s
}

// Event is the payload exported to the presence event stream.
type Event struct {
	Type      string       `json:"type"`
	UID       string       `json:"uid"`
	Data      *PlayerState `json:"data,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

// AvatarRequest is the body of POST /avatar.
type AvatarRequest struct {
	UID      string `json:"uid"`
	AvatarID any    `json:"avatar_id"`
}

// SaveRequest is the body of POST /save.
type SaveRequest struct {
	UID      string `json:"uid"`
	SavedIDs any    `json:"saved_ids"`
}

// UserResponse is returned by GET /user/{uid}.
type UserResponse struct {
	UID    string `json:"uid"`
	Avatar any    `json:"avatar"`
	Saved  any    `json:"saved"`
	Start  any    `json:"start"`
}

type BeginResponse struct {
	UID string `json:"uid"`
}

type StatusResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}
