/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package bingo

// Client to server event types.
const (
	ActionJoinSession = "join_session"
	ActionStartGame   = "start_game"
	ActionDrawNumber  = "draw_number"
	ActionResetGame   = "reset_game"
)

// Server to client event types.
const (
	EventSessionStarted = "session_started"
	EventNumberDrawn    = "number_drawn"
	EventSessionReset   = "session_reset"
)

// Action is an inbound frame: {"type": "draw_number", "data": {"sessionId": "..."}}.
type Action struct {
	Type string     `json:"type"`
	Data SessionRef `json:"data"`
}

type SessionRef struct {
	SessionID string `json:"sessionId"`
}

// Event is an outbound frame. Data holds one of the payload types below.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SessionStarted is the payload of session_started.
type SessionStarted struct {
	SessionID string `json:"sessionId"`
}

// NumberDrawn is the payload of number_drawn.
type NumberDrawn struct {
	Number       int   `json:"number"`
	DrawnNumbers []int `json:"drawnNumbers"`
}

// SessionReset is the payload of session_reset.
type SessionReset struct {
	SessionID string `json:"sessionId"`
}
