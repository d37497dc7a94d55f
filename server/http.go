package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chilledoj/pongroom"
	"github.com/chilledoj/pongroom/protocol"
	"github.com/chilledoj/pongroom/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type sessionResponse struct {
	Room    string                                            `json:"room"`
	Status  string                                            `json:"status"`
	Codec   string                                            `json:"codec"`
	Players []pongroom.PlayerPresence[protocol.ParticipantID] `json:"players"`
	Session session.Snapshot                                  `json:"session"`
}

// Routes serves the session socket and its status endpoints.
func (h *Host) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/api/session", h.handleSession)
	r.Get("/ws", h.Room.HandleSocket(h, h.socketError))
	return r
}

func (h *Host) handleSession(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, sessionResponse{
		Room:    h.Room.ID,
		Status:  h.Room.GetStatus().String(),
		Codec:   h.codec.Name(),
		Players: h.Room.GetPlayerPresences(),
		Session: h.Session.Snapshot(),
	})
}

// GetPlayerIdFromRequest assigns a fresh participant id to every connection.
// The name query parameter is only a label for the logs.
func (h *Host) GetPlayerIdFromRequest(w http.ResponseWriter, r *http.Request) protocol.ParticipantID {
	id := uuid.NewString()
	h.Slogger.Info("socket requested", "func", "host.GetPlayerIdFromRequest", "participant", id, "name", r.URL.Query().Get("name"))
	return id
}

func (h *Host) socketError(w http.ResponseWriter, r *http.Request, err error) {
	var capErr pongroom.CapacityError
	switch {
	case errors.As(err, &capErr):
		h.Slogger.Info("connection refused", "func", "host.socketError", "reason", capErr.Reason)
		http.Error(w, capErr.Reason, http.StatusConflict)
	case errors.Is(err, pongroom.ErrRoomClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.Slogger.Warn("socket upgrade failed", "func", "host.socketError", "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func (h *Host) jsonResponse(w http.ResponseWriter, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		h.Slogger.Error("could not encode response", "func", "host.jsonResponse", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(buf)
}
