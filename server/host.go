// Package server hosts one game session behind a websocket room.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/chilledoj/pongroom"
	"github.com/chilledoj/pongroom/config"
	"github.com/chilledoj/pongroom/physics"
	"github.com/chilledoj/pongroom/protocol"
	"github.com/chilledoj/pongroom/session"
	"github.com/google/uuid"
)

const RoomID = "pong"

// Host is the authority process: a room whose callbacks drive a
// session.Authority.
type Host struct {
	*pongroom.Room[string, protocol.ParticipantID]
	Session *session.Authority

	codec protocol.Codec

	mu    sync.Mutex
	local map[protocol.ParticipantID]bool

	Slogger *slog.Logger
}

func NewHost(ctx context.Context, cfg config.Config, sl *slog.Logger) (*Host, error) {
	codec, err := protocol.NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	if sl == nil {
		sl = slog.Default()
	}
	h := &Host{
		codec:   codec,
		local:   make(map[protocol.ParticipantID]bool),
		Slogger: sl.With("component", "host"),
	}
	h.Room = pongroom.NewRoom[string, protocol.ParticipantID](ctx, RoomID, pongroom.Options[protocol.ParticipantID]{
		OnConnect:     h.OnConnect,
		OnDisconnect:  h.OnDisconnect,
		OnMessage:     h.OnMessage,
		OnRemove:      h.OnRemove,
		OnTick:        h.OnTick,
		TickPeriod:    cfg.TickPeriod(),
		CleanupPeriod: cfg.CleanupPeriod,
		MaxPlayers:    session.MaxParticipants,
		Slogger:       sl,
	})
	h.Session = session.NewAuthority(session.NewRoomOutbox(h.Room, codec, sl), session.Options{
		RNG:     physics.NewRNG(cfg.Seed, "ball"),
		Codec:   codec,
		OnStart: h.onStart,
		OnEnded: h.onEnded,
		OnExit:  h.Room.Stop,
		Slogger: sl,
	})
	return h, nil
}

func (h *Host) Codec() protocol.Codec { return h.codec }

// JoinLocal attaches a participant that lives in the host process. Its
// readiness is flipped by the session directly rather than relayed.
func (h *Host) JoinLocal() (*pongroom.LocalSession[protocol.ParticipantID], error) {
	id := uuid.NewString()
	h.mu.Lock()
	h.local[id] = true
	h.mu.Unlock()
	ls, err := h.Room.NewLocalSession(id)
	if err != nil {
		h.forgetLocal(id)
		return nil, err
	}
	return ls, nil
}

func (h *Host) isLocal(id protocol.ParticipantID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.local[id]
}

func (h *Host) forgetLocal(id protocol.ParticipantID) {
	h.mu.Lock()
	delete(h.local, id)
	h.mu.Unlock()
}

func (h *Host) OnConnect(id protocol.ParticipantID) {
	sl := h.Slogger.With("func", "host.OnConnect", "participant", id)
	h.send(id, protocol.Welcome{ParticipantID: id, Codec: h.codec.Name()})
	if err := h.Session.HandleJoin(id); err != nil {
		sl.Warn("join refused", "err", err)
		h.send(id, protocol.Rejected{Reason: err.Error()})
		h.Room.Kick(id)
		return
	}
	sl.Debug("joined")
}

func (h *Host) OnDisconnect(id protocol.ParticipantID) {
	if err := h.Session.HandleLeave(id); err != nil {
		h.Slogger.Warn("leave failed", "func", "host.OnDisconnect", "participant", id, "err", err)
	}
}

func (h *Host) OnMessage(id protocol.ParticipantID, frame []byte) {
	sl := h.Slogger.With("func", "host.OnMessage", "participant", id)
	env, err := h.codec.Decode(frame)
	if err != nil {
		sl.Warn("undecodable frame", "err", err)
		return
	}
	if env.Type == protocol.TypeReadyToggled && h.isLocal(id) && h.setLocalReady(id, env) {
		return
	}
	err = h.Session.HandleMessage(id, env)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrUnauthorized):
		sl.Warn("message rejected", "type", env.Type, "err", err)
	default:
		sl.Debug("message failed", "type", env.Type, "err", err)
	}
}

// setLocalReady applies a toggle from the host's own participant. It reports
// false when the message should take the relayed path instead.
func (h *Host) setLocalReady(id protocol.ParticipantID, env protocol.Envelope) bool {
	msg, err := protocol.DecodePayload[protocol.ReadyToggled](env)
	if err != nil || msg.ParticipantID != id {
		return false
	}
	for _, e := range h.Session.Snapshot().Ready {
		if e.ParticipantID == id && e.Ready == msg.Ready {
			return true
		}
	}
	if err := h.Session.SetLocalReady(id); err != nil {
		h.Slogger.Debug("local toggle failed", "func", "host.setLocalReady", "participant", id, "err", err)
	}
	return true
}

func (h *Host) OnRemove(id protocol.ParticipantID) {
	h.forgetLocal(id)
	h.Slogger.Debug("participant forgotten", "func", "host.OnRemove", "participant", id)
}

func (h *Host) OnTick(dt float64) {
	if err := h.Session.Tick(dt); err != nil {
		h.Slogger.Error("tick failed", "func", "host.OnTick", "err", err)
	}
}

func (h *Host) onStart(slots [session.MaxParticipants]protocol.ParticipantID) {
	h.Room.SetStatus(pongroom.Locked)
	h.Slogger.Info("room locked", "slot0", slots[0], "slot1", slots[1])
}

func (h *Host) onEnded(res session.Result) {
	h.Slogger.Info("game over", "winner", res.Winner, "reason", res.Reason)
	h.Session.Exit()
}

func (h *Host) send(id protocol.ParticipantID, msg protocol.Message) {
	frame, err := h.codec.Encode(msg)
	if err != nil {
		h.Slogger.Error("could not encode message", "func", "host.send", "type", msg.MessageType(), "err", err)
		return
	}
	h.Room.SendMessageToPlayer(id, frame)
}
