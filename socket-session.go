package pongroom

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

type SocketMessageType int

const (
	Disconnect SocketMessageType = iota - 1
	Connect
	Message
)

func (t SocketMessageType) String() string {
	switch t {
	case Disconnect:
		return "Disconnect"
	case Connect:
		return "Connect"
	case Message:
		return "Message"
	default:
		return "Unknown"
	}
}

type SocketMessage[PlayerId comparable] struct {
	ReferenceID PlayerId
	Type        SocketMessageType
	Message     []byte
}

const (
	sendBuffer   = 255
	pingPeriod   = time.Second * 10
	flushTimeout = time.Second
)

// SocketSession is a websocket connection to one participant. Outbound
// frames go through a bounded queue drained by WriteLoop; inbound frames are
// forwarded to the room by ReadLoop.
type SocketSession[PlayerId comparable] struct {
	// The key bit - the web-socket connection
	conn net.Conn
	// The reference bit
	referenceID PlayerId

	// The message bit
	send     chan []byte
	Messages chan<- SocketMessage[PlayerId]

	// The concurrency bit
	parent     context.Context
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	writerDone chan struct{}
	closeOnce  sync.Once

	sl *slog.Logger
}

// newSocketSession creates a session bound to parent. Its loops run once
// start is called.
func newSocketSession[PlayerId comparable](parent context.Context, conn net.Conn, referenceID PlayerId, messages chan<- SocketMessage[PlayerId], sl *slog.Logger) *SocketSession[PlayerId] {
	ctx, cancel := context.WithCancel(parent)
	return &SocketSession[PlayerId]{
		conn:        conn,
		referenceID: referenceID,
		send:        make(chan []byte, sendBuffer),
		Messages:    messages,
		parent:      parent,
		ctx:         ctx,
		cancel:      cancel,
		writerDone:  make(chan struct{}),
		sl:          sl.With("player", referenceID),
	}
}

func (s *SocketSession[PlayerId]) start() {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.ReadLoop()
	}()
	go func() {
		defer s.wg.Done()
		defer close(s.writerDone)
		s.WriteLoop()
	}()
}

func (s *SocketSession[PlayerId]) ReferenceID() PlayerId {
	return s.referenceID
}

// Close flushes queued frames, closes the connection and waits for both
// loops to exit.
func (s *SocketSession[PlayerId]) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.writerDone
		s.conn.Close()
	})
	s.wg.Wait()
}

func (s *SocketSession[PlayerId]) ReadLoop() {
	sl := s.sl.With("func", "socket.ReadLoop")
	sl.Debug("starting")
	defer func() {
		s.cancel()
		<-s.writerDone
		s.conn.Close()
		sl.Debug("ReadLoop exited")
	}()
	for {
		msg, _, err := wsutil.ReadClientData(s.conn)
		if err != nil {
			var er wsutil.ClosedError
			if errors.As(err, &er) {
				sl.Debug("ReadLoop closing", "code", er.Code, "reason", er.Reason)
			} else if s.ctx.Err() == nil {
				sl.Warn("ReadLoop error", "err", err)
			}
			// send the disconnect message for ANY error that terminates the loop.
			s.forward(s.unregisterMessage())
			return
		}
		if !s.forward(SocketMessage[PlayerId]{
			ReferenceID: s.referenceID,
			Type:        Message,
			Message:     msg,
		}) {
			return
		}
	}
}

func (s *SocketSession[PlayerId]) forward(sm SocketMessage[PlayerId]) bool {
	select {
	case s.Messages <- sm:
		return true
	case <-s.parent.Done():
		return false
	}
}

func (s *SocketSession[PlayerId]) WriteLoop() {
	sl := s.sl.With("func", "socket.WriteLoop")
	sl.Debug("starting")
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sl.Debug("WriteLoop exited")
	}()
	for {
		select {
		case msg := <-s.send:
			if err := wsutil.WriteServerBinary(s.conn, msg); err != nil {
				sl.Debug("write failed", "err", err)
				s.conn.Close()
				return
			}
		case <-ticker.C:
			sl.Log(context.Background(), slog.Level(-8), "ping")
			if err := wsutil.WriteServerMessage(s.conn, ws.OpPing, []byte("ping")); err != nil {
				s.conn.Close()
				return
			}
		case <-s.ctx.Done():
			s.flush()
			return
		}
	}
}

// flush writes whatever is still queued and says goodbye.
func (s *SocketSession[PlayerId]) flush() {
	_ = s.conn.SetWriteDeadline(time.Now().Add(flushTimeout))
	for {
		select {
		case msg := <-s.send:
			if err := wsutil.WriteServerBinary(s.conn, msg); err != nil {
				return
			}
		default:
			body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
			_ = wsutil.WriteServerMessage(s.conn, ws.OpClose, body)
			return
		}
	}
}

func (s *SocketSession[PlayerId]) unregisterMessage() SocketMessage[PlayerId] {
	return SocketMessage[PlayerId]{
		ReferenceID: s.referenceID,
		Type:        Disconnect,
		Message:     nil,
	}
}

// Send queues message without blocking.
func (s *SocketSession[PlayerId]) Send(message []byte) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	select {
	case s.send <- message:
		return nil
	default:
		return ErrSendBufferFull
	}
}
