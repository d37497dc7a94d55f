package pongroom

import (
	"errors"
	"net/http"

	"github.com/gobwas/ws"
)

type GetPlayerIDFromRequester[PlayerId comparable] interface {
	GetPlayerIdFromRequest(w http.ResponseWriter, r *http.Request) PlayerId
}
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

var ErrNoPlayerID = errors.New("playerID is empty")

// HandleSocketWithPlayer upgrades the request and attaches the connection to
// the room as playerID. Admission errors, including CapacityError, are passed
// to onError before the upgrade.
func (room *Room[RoomId, PlayerId]) HandleSocketWithPlayer(playerID PlayerId, onError ErrorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var zero PlayerId
		if playerID == zero {
			onError(w, r, ErrNoPlayerID)
			return
		}
		if err := room.Admit(playerID); err != nil {
			onError(w, r, err)
			return
		}

		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			onError(w, r, err)
			return
		}
		room.Slogger.Info("new socket connection", "player", playerID)

		ss := newSocketSession[PlayerId](room.ctx, conn, playerID, room.messages, room.Slogger)
		if err := room.attach(ss); err != nil {
			// Lost a race for the last slot after upgrading.
			room.dropUpgraded(ss, err)
			return
		}
		ss.start()
	}
}

// dropUpgraded refuses a session that was never started.
func (room *Room[RoomId, PlayerId]) dropUpgraded(ss *SocketSession[PlayerId], err error) {
	room.Slogger.Warn("dropping upgraded connection", "player", ss.ReferenceID(), "err", err)
	ss.cancel()
	body := ws.NewCloseFrameBody(ws.StatusPolicyViolation, err.Error())
	_ = ws.WriteFrame(ss.conn, ws.NewCloseFrame(body))
	ss.conn.Close()
}

func (room *Room[RoomId, PlayerId]) HandleSocket(playerStore GetPlayerIDFromRequester[PlayerId], onError ErrorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID := playerStore.GetPlayerIdFromRequest(w, r)
		room.HandleSocketWithPlayer(playerID, onError)(w, r)
	}
}

func (room *Room[RoomId, PlayerId]) CanJoin(playerID PlayerId) bool {
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.canJoin(playerID)
}

func (room *Room[RoomId, PlayerId]) canJoin(playerID PlayerId) bool {
	if room.Status == Inactive {
		return false
	}

	p, ok := room.players[playerID]
	if ok && p != nil {
		// Player is already connected. Only allow one connection.
		return false
	}
	if !ok && room.Status == Locked {
		// Locked Room and player was not previously connected when locked
		return false
	}
	return true
}
