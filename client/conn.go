package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chilledoj/pongroom"
	"github.com/chilledoj/pongroom/protocol"
	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

// Conn is a participant's ordered, reliable link to the host.
type Conn interface {
	// ReadFrame blocks until the next frame arrives or the link is closed.
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// RejectedError is returned by Dial when the host refuses the upgrade, e.g.
// because the session is full.
type RejectedError struct {
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("client: host refused connection (%d): %s", e.Status, e.Reason)
}

// WSConn is a Conn over a gorilla websocket.
type WSConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the session socket at rawURL. name is only a label.
func Dial(ctx context.Context, rawURL, name string) (*WSConn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if name != "" {
		q := u.Query()
		q.Set("name", name)
		u.RawQuery = q.Encode()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return nil, &RejectedError{Status: resp.StatusCode, Reason: strings.TrimSpace(string(body))}
		}
		return nil, err
	}
	return &WSConn{conn: conn}, nil
}

func (c *WSConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *WSConn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Close says goodbye to the host and closes the socket. It is safe to call
// more than once.
func (c *WSConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// LocalConn is a Conn over a session living in the host process.
type LocalConn struct {
	ls *pongroom.LocalSession[protocol.ParticipantID]
}

func NewLocalConn(ls *pongroom.LocalSession[protocol.ParticipantID]) *LocalConn {
	return &LocalConn{ls: ls}
}

// ReadFrame drains frames that were queued before the session closed and
// then reports io.EOF.
func (c *LocalConn) ReadFrame() ([]byte, error) {
	select {
	case frame := <-c.ls.Inbox():
		return frame, nil
	case <-c.ls.Done():
		select {
		case frame := <-c.ls.Inbox():
			return frame, nil
		default:
			return nil, io.EOF
		}
	}
}

func (c *LocalConn) WriteFrame(frame []byte) error { return c.ls.Write(frame) }

func (c *LocalConn) Close() error {
	c.ls.Close()
	return nil
}
