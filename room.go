package pongroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SocketSessioner is a connected participant as seen by the room.
type SocketSessioner[PlayerID comparable] interface {
	ReferenceID() PlayerID
	// Send queues message for delivery. It must not block.
	Send(message []byte) error
	Close()
}

var (
	ErrRoomClosed       = errors.New("room is not accepting new players")
	ErrAlreadyConnected = errors.New("player is already connected")
	ErrSendBufferFull   = errors.New("send buffer is full")
	ErrSessionClosed    = errors.New("session is closed")
)

// CapacityError is returned when a room already holds MaxPlayers connections.
type CapacityError struct {
	Reason string
}

func (e CapacityError) Error() string { return e.Reason }

type Room[RoomId comparable, PlayerID comparable] struct {
	ID   RoomId
	opts Options[PlayerID]

	mu            sync.RWMutex
	Status        RoomStatus
	players       map[PlayerID]SocketSessioner[PlayerID]
	lastSeen      map[PlayerID]time.Time
	cleanupPeriod time.Duration
	maxPlayers    int

	// MessageProcessing
	messages chan SocketMessage[PlayerID]

	// Concurrency
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	// Logging
	Slogger *slog.Logger
}

// Options configures a Room. Every callback runs on the goroutine that runs
// Room.Start, one at a time.
type Options[PlayerID comparable] struct {
	OnConnect    func(player PlayerID)
	OnDisconnect func(player PlayerID)
	OnRemove     func(player PlayerID)
	OnMessage    func(player PlayerID, message []byte)
	// OnTick is called every TickPeriod with the fixed timestep in seconds.
	OnTick func(dt float64)

	TickPeriod    time.Duration
	CleanupPeriod time.Duration
	// MaxPlayers limits concurrent connections. Zero means DefaultMaxPlayers.
	MaxPlayers int

	Slogger *slog.Logger
}

const (
	defaultCleanupPeriod time.Duration = time.Second * 30
	DefaultMaxPlayers                  = 2
	messageBuffer                      = 255
)

func NewRoom[RoomId comparable, PlayerID comparable](parentCtx context.Context, id RoomId, options Options[PlayerID]) *Room[RoomId, PlayerID] {
	ctx, cancel := context.WithCancel(parentCtx)
	room := &Room[RoomId, PlayerID]{
		ID:            id,
		opts:          options,
		Status:        Open,
		players:       make(map[PlayerID]SocketSessioner[PlayerID]),
		lastSeen:      make(map[PlayerID]time.Time),
		cleanupPeriod: options.CleanupPeriod,
		maxPlayers:    options.MaxPlayers,
		messages:      make(chan SocketMessage[PlayerID], messageBuffer),
		ctx:           ctx,
		cancel:        cancel,
	}
	if room.cleanupPeriod == 0 {
		room.cleanupPeriod = defaultCleanupPeriod
	}
	if room.maxPlayers <= 0 {
		room.maxPlayers = DefaultMaxPlayers
	}
	room.setLogger()
	return room
}

func (room *Room[RoomId, PlayerID]) setLogger() {
	if room.opts.Slogger != nil {
		room.Slogger = room.opts.Slogger.With("room", room.ID)
	} else {
		room.Slogger = slog.Default().With("room", room.ID)
	}
}

// Context is cancelled when the room stops.
func (room *Room[RoomId, PlayerID]) Context() context.Context { return room.ctx }

func (room *Room[RoomId, PlayerID]) GetPlayerPresences() []PlayerPresence[PlayerID] {
	room.mu.RLock()
	defer room.mu.RUnlock()
	presences := make([]PlayerPresence[PlayerID], 0, len(room.players))
	for playerID, p := range room.players {
		presences = append(presences, PlayerPresence[PlayerID]{
			ID:          playerID,
			IsConnected: p != nil,
			LastSeen:    room.lastSeen[playerID],
		})
	}
	return presences
}

func (room *Room[RoomId, PlayerID]) GetPlayerPresence(playerID PlayerID) PlayerPresence[PlayerID] {
	room.mu.RLock()
	defer room.mu.RUnlock()
	p, ok := room.players[playerID]
	return PlayerPresence[PlayerID]{
		ID:          playerID,
		IsConnected: ok && p != nil,
		LastSeen:    room.lastSeen[playerID],
	}
}

// ConnectedCount is the number of players with a live session.
func (room *Room[RoomId, PlayerID]) ConnectedCount() int {
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.connectedCount()
}

func (room *Room[RoomId, PlayerID]) connectedCount() int {
	n := 0
	for _, p := range room.players {
		if p != nil {
			n++
		}
	}
	return n
}

func (room *Room[RoomId, PlayerID]) Start() {
	sl := room.Slogger.With("func", "room.Start")
	sl.Debug("starting")

	cleanup := time.NewTicker(room.cleanupPeriod)
	var tickC <-chan time.Time
	if room.opts.TickPeriod > 0 {
		ticker := time.NewTicker(room.opts.TickPeriod)
		defer ticker.Stop()
		tickC = ticker.C
	}
	dt := room.opts.TickPeriod.Seconds()
	defer func() {
		cleanup.Stop()
		sl.Info("stopped")
	}()
	for {
		select {
		case <-cleanup.C:
			sl.Debug("Cleaning up players")
			room.CleanUpPlayers()
		case <-tickC:
			if room.opts.OnTick != nil {
				room.opts.OnTick(dt)
			}
		case <-room.ctx.Done():
			sl.Debug("stopping")
			return
		case msg := <-room.messages:
			room.handle(sl, msg)
		}
	}
}

func (room *Room[RoomId, PlayerID]) handle(sl *slog.Logger, msg SocketMessage[PlayerID]) {
	switch msg.Type {
	case Connect:
		sl.Debug("connected", "player", msg.ReferenceID)
		if room.opts.OnConnect != nil {
			room.opts.OnConnect(msg.ReferenceID)
		}
	case Disconnect:
		sl.Debug("disconnecting", "player", msg.ReferenceID)
		room.mu.Lock()
		if _, ok := room.players[msg.ReferenceID]; ok {
			room.players[msg.ReferenceID] = nil
		}
		room.lastSeen[msg.ReferenceID] = time.Now()
		room.mu.Unlock()
		sl.Debug("disconnected", "player", msg.ReferenceID)
		if room.opts.OnDisconnect != nil {
			room.opts.OnDisconnect(msg.ReferenceID)
		}
	case Message:
		sl.Debug("message", "player", msg.ReferenceID, "size", len(msg.Message))
		if room.opts.OnMessage != nil {
			room.opts.OnMessage(msg.ReferenceID, msg.Message)
		}
	}
}

// Stop cancels the room and closes every session. Queued outbound messages
// are flushed before the sessions close. It is safe to call from a callback.
func (room *Room[RoomId, PlayerID]) Stop() {
	room.stopOnce.Do(func() {
		sl := room.Slogger.With("func", "room.Stop")
		sl.Debug("closing", "status", "started")
		room.cancel()

		room.mu.RLock()
		sessions := make([]SocketSessioner[PlayerID], 0, len(room.players))
		for _, p := range room.players {
			if p != nil {
				sessions = append(sessions, p)
			}
		}
		room.mu.RUnlock()

		for _, ss := range sessions {
			sl.Debug("closing player", "player", ss.ReferenceID())
			ss.Close()
		}
		sl.Debug("room closed", "status", "completed")
	})
}

// Admit reports whether playerID may connect right now.
func (room *Room[RoomId, PlayerID]) Admit(playerID PlayerID) error {
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.admit(playerID)
}

func (room *Room[RoomId, PlayerID]) admit(playerID PlayerID) error {
	if room.ctx.Err() != nil || !room.canJoin(playerID) {
		if p, ok := room.players[playerID]; ok && p != nil {
			return ErrAlreadyConnected
		}
		return ErrRoomClosed
	}
	if room.connectedCount() >= room.maxPlayers {
		return CapacityError{Reason: fmt.Sprintf("Max player in session is %d", room.maxPlayers)}
	}
	return nil
}

// attach registers ss and queues its connect event ahead of any message it
// may produce.
func (room *Room[RoomId, PlayerID]) attach(ss SocketSessioner[PlayerID]) error {
	playerID := ss.ReferenceID()
	room.mu.Lock()
	if err := room.admit(playerID); err != nil {
		room.mu.Unlock()
		return err
	}
	room.players[playerID] = ss
	room.mu.Unlock()

	select {
	case room.messages <- SocketMessage[PlayerID]{ReferenceID: playerID, Type: Connect}:
		return nil
	case <-room.ctx.Done():
		return ErrRoomClosed
	}
}

func (room *Room[RoomId, PlayerID]) SendMessageToPlayer(player PlayerID, message []byte) {
	sl := room.Slogger.With("func", "room.SendMessageToPlayer")
	room.mu.RLock()
	ps, ok := room.players[player]
	room.mu.RUnlock()
	if !ok || ps == nil {
		sl.Debug("player not found", "player", player)
		return
	}
	room.send(sl, ps, message)
}

func (room *Room[RoomId, PlayerID]) SendMessageToAllPlayers(message []byte) {
	room.SendMessageToOthers(*new(PlayerID), message)
}

// SendMessageToOthers sends message to every connected player except one.
// The zero PlayerID excludes nobody.
func (room *Room[RoomId, PlayerID]) SendMessageToOthers(except PlayerID, message []byte) {
	sl := room.Slogger.With("func", "room.SendMessageToOthers")
	var zero PlayerID
	room.mu.RLock()
	targets := make([]SocketSessioner[PlayerID], 0, len(room.players))
	for pid, p := range room.players {
		if p == nil || (except != zero && pid == except) {
			continue
		}
		targets = append(targets, p)
	}
	room.mu.RUnlock()
	for _, p := range targets {
		room.send(sl, p, message)
	}
}

func (room *Room[RoomId, PlayerID]) send(sl *slog.Logger, ps SocketSessioner[PlayerID], message []byte) {
	err := ps.Send(message)
	switch {
	case err == nil:
	case errors.Is(err, ErrSendBufferFull):
		sl.Warn("send buffer full, closing session", "player", ps.ReferenceID())
		go ps.Close()
	default:
		sl.Debug("send failed", "player", ps.ReferenceID(), "err", err)
	}
}

// Kick closes player's session. Its queued messages are flushed first and
// the disconnect comes back through the event loop.
func (room *Room[RoomId, PlayerID]) Kick(player PlayerID) {
	room.mu.RLock()
	ps := room.players[player]
	room.mu.RUnlock()
	if ps == nil {
		return
	}
	room.Slogger.Info("kicking player", "func", "room.Kick", "player", player)
	go ps.Close()
}

func (room *Room[RoomId, PlayerID]) CleanUpPlayers() {
	sl := room.Slogger.With("func", "room.CleanUpPlayers")
	room.mu.Lock()
	if room.Status != Open {
		room.mu.Unlock()
		return
	}
	sl.Debug("starting")
	removed := make([]PlayerID, 0)
	for playerID, p := range room.players {
		if p == nil && time.Since(room.lastSeen[playerID]) > room.cleanupPeriod {
			sl.Info("removing", "player", playerID,
				slog.Group("checks",
					"lastSeen", room.lastSeen[playerID],
					"timeSince", time.Since(room.lastSeen[playerID]),
					"cleanupPeriod", room.cleanupPeriod,
				))
			delete(room.players, playerID)
			delete(room.lastSeen, playerID)
			removed = append(removed, playerID)
		}
	}
	room.mu.Unlock()

	room.notifyRemoved(removed)
	sl.Debug("finished")
}

func (room *Room[RoomId, PlayerID]) SetStatus(status RoomStatus) {
	room.mu.Lock()
	if room.Status == status {
		room.mu.Unlock()
		return
	}
	room.Slogger.Debug("setting status", "func", "room.SetStatus", "status", status)
	room.Status = status
	removed := make([]PlayerID, 0)
	if status == Locked {
		// Forget players that are not connected at the moment of locking.
		for pid, p := range room.players {
			if p != nil {
				continue
			}
			delete(room.players, pid)
			delete(room.lastSeen, pid)
			removed = append(removed, pid)
		}
	}
	room.mu.Unlock()
	room.notifyRemoved(removed)
}

func (room *Room[RoomId, PlayerID]) notifyRemoved(players []PlayerID) {
	if room.opts.OnRemove == nil {
		return
	}
	for _, pid := range players {
		room.opts.OnRemove(pid)
	}
}
