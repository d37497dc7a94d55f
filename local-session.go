package pongroom

import (
	"context"
	"sync"
)

// LocalSession is a participant living in the same process as the room. It
// has the same ordering and back-pressure rules as a SocketSession.
type LocalSession[PlayerID comparable] struct {
	referenceID PlayerID
	inbox       chan []byte
	messages    chan<- SocketMessage[PlayerID]

	parent    context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewLocalSession attaches an in-process participant to the room.
func (room *Room[RoomId, PlayerID]) NewLocalSession(playerID PlayerID) (*LocalSession[PlayerID], error) {
	var zero PlayerID
	if playerID == zero {
		return nil, ErrNoPlayerID
	}
	ctx, cancel := context.WithCancel(room.ctx)
	ls := &LocalSession[PlayerID]{
		referenceID: playerID,
		inbox:       make(chan []byte, sendBuffer),
		messages:    room.messages,
		parent:      room.ctx,
		ctx:         ctx,
		cancel:      cancel,
	}
	if err := room.attach(ls); err != nil {
		cancel()
		return nil, err
	}
	return ls, nil
}

func (ls *LocalSession[PlayerID]) ReferenceID() PlayerID { return ls.referenceID }

func (ls *LocalSession[PlayerID]) Send(message []byte) error {
	if ls.ctx.Err() != nil {
		return ErrSessionClosed
	}
	select {
	case ls.inbox <- message:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Inbox yields the frames the room sent to this participant, in order.
func (ls *LocalSession[PlayerID]) Inbox() <-chan []byte { return ls.inbox }

// Done is closed once the session is closed.
func (ls *LocalSession[PlayerID]) Done() <-chan struct{} { return ls.ctx.Done() }

// Write delivers message to the room as if it came from the participant.
func (ls *LocalSession[PlayerID]) Write(message []byte) error {
	if ls.ctx.Err() != nil {
		return ErrSessionClosed
	}
	select {
	case ls.messages <- SocketMessage[PlayerID]{ReferenceID: ls.referenceID, Type: Message, Message: message}:
		return nil
	case <-ls.ctx.Done():
		return ErrSessionClosed
	}
}

// Close detaches the participant. The room sees a disconnect unless it is
// already stopping.
func (ls *LocalSession[PlayerID]) Close() {
	ls.closeOnce.Do(func() {
		ls.cancel()
		select {
		case ls.messages <- SocketMessage[PlayerID]{ReferenceID: ls.referenceID, Type: Disconnect}:
		case <-ls.parent.Done():
		}
	})
}
