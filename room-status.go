package pongroom

// RoomStatus gates new connections. A room is Locked once its session has
// started.
type RoomStatus int8

const (
	Inactive RoomStatus = iota - 1
	Open
	Locked
)

func (r RoomStatus) String() string {
	switch r {
	case Inactive:
		return "Inactive"
	case Open:
		return "Open"
	case Locked:
		return "Locked"
	default:
		return "Unknown"
	}
}

// GetStatus reads the status under the room lock.
func (room *Room[RoomId, PlayerID]) GetStatus() RoomStatus {
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.Status
}
