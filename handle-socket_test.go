package pongroom

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	httptest2 "github.com/getlantern/httptest"
	"github.com/gobwas/ws"
)

func newUpgradeRequest(t *testing.T) *http.Request {
	t.Helper()
	testR := httptest.NewRequest("GET", "/", nil)
	testR.Header.Set("Upgrade", "websocket")
	testR.Header.Set("Connection", "Upgrade")
	testR.Header.Set("Sec-WebSocket-Version", "13")

	key, err := generateChallengeKey()
	if err != nil {
		t.Fatal(err)
	}
	testR.Header.Set("Sec-WebSocket-Key", key)
	return testR
}

func TestRoom_HandleSocketWithPlayer(t *testing.T) {
	t.Run("should error on nil player id reference", func(t *testing.T) {
		testW := httptest.NewRecorder()
		testR := httptest.NewRequest("GET", "/", nil)
		var player string

		room, _, cleanup := setupTestRoom[string](t, "test-socket-error")
		defer cleanup()

		var httpErr error
		room.HandleSocketWithPlayer(player, func(w http.ResponseWriter, r *http.Request, err error) {
			httpErr = err
			http.Error(w, "error", http.StatusInternalServerError)
		})(testW, testR)

		resp := testW.Result()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("expected status code to be %d, got %d", http.StatusInternalServerError, resp.StatusCode)
		}
		if !errors.Is(httpErr, ErrNoPlayerID) {
			t.Fatalf("expected ErrNoPlayerID, got %v", httpErr)
		}
	})
	t.Run("should connect player to the room", func(t *testing.T) {
		testW := httptest2.NewRecorder(nil)
		testR := newUpgradeRequest(t)

		player := "player-1"
		room, handler, cleanup := setupTestRoom[string](t, "test-socket-connect")
		defer cleanup()
		go room.Start()

		var httpErr error
		room.HandleSocketWithPlayer(player, func(w http.ResponseWriter, r *http.Request, err error) {
			httpErr = err
			t.Log(err)
			http.Error(w, "error", http.StatusInternalServerError)
		})(testW, testR)

		// The recorder has no client input, so the session reads EOF, flushes
		// its close frame and closes the connection. Nothing writes after that.
		waitFor(t, "socket closed", testW.Closed)
		resp := testW.Result()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status code to be %d, got %d", http.StatusOK, resp.StatusCode)
		}
		if httpErr != nil {
			t.Fatalf("expected http errors to be nil, got %s", httpErr.Error())
		}

		waitFor(t, "OnConnect", func() bool { return len(handler.GetOnConnectResults()) == 1 })
		if handler.GetOnConnectResults()[0] != player {
			t.Fatalf("expected onConnect to be called with player '%s', got '%s'", player, handler.GetOnConnectResults()[0])
		}
		// The player stays known after the disconnect.
		if len(room.GetPlayerPresences()) != 1 {
			t.Fatalf("expected player count to be 1, got %d", len(room.GetPlayerPresences()))
		}
	})
	t.Run("should reject a full room before upgrading", func(t *testing.T) {
		testW := httptest.NewRecorder()
		testR := newUpgradeRequest(t)

		room, handler, cleanup := setupTestRoom[string](t, "test-socket-full")
		defer cleanup()
		room.players["player-1"] = newMockSocketSession("player-1")
		room.players["player-2"] = newMockSocketSession("player-2")

		var httpErr error
		room.HandleSocketWithPlayer("player-3", func(w http.ResponseWriter, r *http.Request, err error) {
			httpErr = err
			http.Error(w, err.Error(), http.StatusConflict)
		})(testW, testR)

		if testW.Result().StatusCode != http.StatusConflict {
			t.Fatalf("expected status code to be %d, got %d", http.StatusConflict, testW.Result().StatusCode)
		}
		var capErr CapacityError
		if !errors.As(httpErr, &capErr) {
			t.Fatalf("expected CapacityError, got %v", httpErr)
		}
		if len(handler.GetOnConnectResults()) != 0 {
			t.Fatal("expected no OnConnect call")
		}
	})
}

func TestRoom_dropUpgraded(t *testing.T) {
	room, _, cleanup := setupTestRoom[string](t, "test-socket-drop")
	defer cleanup()

	server, client := net.Pipe()
	defer client.Close()
	ss := newSocketSession[string](room.ctx, server, "player-3", room.messages, testLogger())

	go room.dropUpgraded(ss, CapacityError{Reason: "full"})

	frame, err := ws.ReadFrame(client)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Header.OpCode != ws.OpClose {
		t.Fatalf("expected a close frame, got %v", frame.Header.OpCode)
	}
	code, reason := ws.ParseCloseFrameData(frame.Payload)
	if code != ws.StatusPolicyViolation || reason != "full" {
		t.Fatalf("expected policy violation 'full', got %d %q", code, reason)
	}
	if ss.ctx.Err() == nil {
		t.Fatal("expected the session context to be cancelled")
	}
	if room.ctx.Err() != nil {
		t.Fatal("expected the room to keep running")
	}
}

func generateChallengeKey() (string, error) {
	p := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, p); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(p), nil
}

func TestRoom_CanJoin(t *testing.T) {
	t.Run("should return true if room is open", func(t *testing.T) {
		room, _, cleanup := setupTestRoom[string](t, "test-room-1")
		defer cleanup()

		if !room.CanJoin("player-1") {
			t.Fatal("expected CanJoin to return true")
		}
	})
	t.Run("should return false if room is inactive", func(t *testing.T) {
		room, _, cleanup := setupTestRoom[string](t, "test-room-2")
		defer cleanup()
		room.Status = Inactive
		if room.CanJoin("player-1") {
			t.Fatal("expected CanJoin to return false")
		}
	})
	t.Run("should return false if room is locked and is new player", func(t *testing.T) {
		room, _, cleanup := setupTestRoom[string](t, "test-room-2")
		defer cleanup()
		room.Status = Locked
		if room.CanJoin("player-1") {
			t.Fatal("expected CanJoin to return false")
		}
	})
	t.Run("should return false if player is already connected", func(t *testing.T) {
		room, _, cleanup := setupTestRoom[string](t, "test-room-3")
		defer cleanup()

		p1 := "player-1"
		room.players[p1] = newMockSocketSession[string](p1)

		for _, rs := range []RoomStatus{Open, Locked} {
			room.Status = rs
			if room.CanJoin(p1) {
				t.Fatal("expected CanJoin to return false")
			}
		}
	})
	t.Run("should refuse everyone once stopped", func(t *testing.T) {
		room := NewRoom[string, string](context.Background(), "test-room-stopped", Options[string]{})
		room.Stop()
		if err := room.Admit("player-1"); !errors.Is(err, ErrRoomClosed) {
			t.Fatalf("expected ErrRoomClosed, got %v", err)
		}
	})
}
