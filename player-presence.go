package pongroom

import "time"

// PlayerPresence reports whether a player known to the room currently holds
// a live session, and when it was last seen disconnecting.
type PlayerPresence[PlayerId comparable] struct {
	ID          PlayerId  `json:"id"`
	IsConnected bool      `json:"isConnected"`
	LastSeen    time.Time `json:"lastSeen"`
}
