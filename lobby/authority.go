package lobby

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chilledoj/pongroom/dispatch"
	"github.com/chilledoj/pongroom/protocol"
)

var (
	ErrUnknownParticipant = errors.New("lobby: unknown participant")
	ErrForeignToggle      = errors.New("lobby: participant may only toggle its own readiness")
)

// Broadcaster is the outbound side of the channel to the participants.
// Sends never block and never fail from the caller's point of view.
type Broadcaster interface {
	SendTo(id protocol.ParticipantID, msg protocol.Message)
	SendToAll(msg protocol.Message)
	SendToOthers(except protocol.ParticipantID, msg protocol.Message)
}

// Authority owns the canonical readiness map on the host. Once the quorum is
// reached it calls start and, if that succeeds, detaches itself from the
// dispatch registry for good.
//
// Authority must be driven from a single goroutine.
type Authority struct {
	ready   *ReadinessMap
	out     Broadcaster
	start   func() error
	subs    dispatch.Group
	started bool

	Slogger *slog.Logger
}

func NewAuthority(out Broadcaster, start func() error, sl *slog.Logger) *Authority {
	if sl == nil {
		sl = slog.Default()
	}
	return &Authority{
		ready:   NewReadinessMap(),
		out:     out,
		start:   start,
		Slogger: sl.With("component", "lobby"),
	}
}

// Attach subscribes the lobby to join, leave, scene-ready and toggle messages.
func (a *Authority) Attach(reg *dispatch.Registry) {
	a.subs.Add(
		reg.Handle(protocol.TypeJoinSession, func(_ protocol.ParticipantID, env protocol.Envelope) error {
			msg, err := protocol.DecodePayload[protocol.JoinSession](env)
			if err != nil {
				return err
			}
			a.OnParticipantJoined(msg.ParticipantID)
			return nil
		}),
		reg.Handle(protocol.TypeLeaveSession, func(_ protocol.ParticipantID, env protocol.Envelope) error {
			msg, err := protocol.DecodePayload[protocol.LeaveSession](env)
			if err != nil {
				return err
			}
			a.OnParticipantLeft(msg.ParticipantID)
			return nil
		}),
		reg.Handle(protocol.TypeSceneReady, func(from protocol.ParticipantID, _ protocol.Envelope) error {
			a.OnSceneReady(from)
			return nil
		}),
		reg.Handle(protocol.TypeReadyToggled, func(from protocol.ParticipantID, env protocol.Envelope) error {
			msg, err := protocol.DecodePayload[protocol.ReadyToggled](env)
			if err != nil {
				return err
			}
			return a.ApplyToggle(from, msg)
		}),
	)
}

// Detach removes every handler added by Attach.
func (a *Authority) Detach() { a.subs.Close() }

// Attached reports whether the lobby still listens for messages.
func (a *Authority) Attached() bool { return a.subs.Len() > 0 }

// Started reports whether the quorum has already started the session.
func (a *Authority) Started() bool { return a.started }

func (a *Authority) OnParticipantJoined(id protocol.ParticipantID) {
	if !a.ready.Add(id) {
		return
	}
	a.Slogger.Debug("participant joined", "func", "lobby.OnParticipantJoined", "participant", id)
	a.out.SendToAll(protocol.ReadyToggled{ParticipantID: id, Ready: false})
	a.evaluate()
}

// OnParticipantLeft removes id. Unknown ids are ignored.
func (a *Authority) OnParticipantLeft(id protocol.ParticipantID) {
	if !a.ready.Remove(id) {
		return
	}
	a.Slogger.Debug("participant left", "func", "lobby.OnParticipantLeft", "participant", id)
	a.out.SendToAll(protocol.ParticipantLeft{ParticipantID: id})
	a.evaluate()
}

// OnSceneReady pushes the whole readiness map to id, which may have connected
// before it was able to see earlier broadcasts.
func (a *Authority) OnSceneReady(id protocol.ParticipantID) {
	a.out.SendTo(id, protocol.ReadinessSnapshot{Entries: a.ready.Entries()})
}

// SetLocalReady flips the readiness of the host's own participant.
func (a *Authority) SetLocalReady(id protocol.ParticipantID) error {
	cur, ok := a.ready.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParticipant, id)
	}
	a.ready.Set(id, !cur)
	a.out.SendToAll(protocol.ReadyToggled{ParticipantID: id, Ready: !cur})
	a.evaluate()
	return nil
}

// ApplyToggle applies a toggle request sent by from and relays it to every
// other participant.
func (a *Authority) ApplyToggle(from protocol.ParticipantID, msg protocol.ReadyToggled) error {
	if msg.ParticipantID != from {
		a.Slogger.Warn("rejected toggle", "func", "lobby.ApplyToggle", "from", from, "target", msg.ParticipantID)
		return fmt.Errorf("%w: %q toggled %q", ErrForeignToggle, from, msg.ParticipantID)
	}
	if !a.ready.Set(from, msg.Ready) {
		return fmt.Errorf("%w: %q", ErrUnknownParticipant, from)
	}
	a.out.SendToOthers(from, msg)
	a.evaluate()
	return nil
}

func (a *Authority) CheckIsReadyToStart() bool { return a.ready.Quorum() }

func (a *Authority) Entries() []protocol.ReadyEntry { return a.ready.Entries() }

func (a *Authority) evaluate() {
	if a.started || !a.CheckIsReadyToStart() {
		return
	}
	if err := a.start(); err != nil {
		a.Slogger.Error("could not start session", "func", "lobby.evaluate", "err", err)
		return
	}
	a.started = true
	a.Detach()
	a.Slogger.Info("quorum reached, lobby detached")
}
