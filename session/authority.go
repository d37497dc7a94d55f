// Package session drives a single game session on the authority: it composes
// the lobby, the score tracker, the ball simulation and the replicated
// entity positions, and owns the Lobby -> Active -> Ended lifecycle.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"

	"github.com/chilledoj/pongroom/dispatch"
	"github.com/chilledoj/pongroom/geom"
	"github.com/chilledoj/pongroom/lobby"
	"github.com/chilledoj/pongroom/physics"
	"github.com/chilledoj/pongroom/protocol"
	"github.com/chilledoj/pongroom/replica"
	"github.com/chilledoj/pongroom/score"
)

const (
	MaxParticipants = 2

	DefaultHostID protocol.ParticipantID = "host"

	ReasonDisconnected = "participant disconnected"
)

var SlotColors = [MaxParticipants]protocol.Color{
	{R: 66, G: 135, B: 245},
	{R: 245, G: 96, B: 66},
}

type Participant struct {
	ID    protocol.ParticipantID `json:"id"`
	Slot  int                    `json:"slot"`
	Color protocol.Color         `json:"color"`
	Spawn geom.Vec2              `json:"spawn"`
}

// Result describes how a session ended. An empty Winner means the session
// was torn down without one.
type Result struct {
	Winner protocol.ParticipantID
	Reason string
}

type Options struct {
	// HostID owns the entities that belong to no participant, i.e. the ball.
	HostID protocol.ParticipantID
	Field  *physics.Field
	RNG    *rand.Rand
	// Codec packs the join and leave events raised by the transport.
	Codec protocol.Codec

	OnStart func(slots [MaxParticipants]protocol.ParticipantID)
	OnEnded func(Result)
	OnExit  func()

	Slogger *slog.Logger
}

// Authority is the per-session context. All of its exported methods are safe
// for concurrent use, but they are expected to be driven by a single room
// loop.
type Authority struct {
	mu    sync.Mutex
	state State
	opts  Options

	out      Outbox
	registry *dispatch.Registry
	subs     dispatch.Group
	lobby    *lobby.Authority
	scores   *score.Tracker
	engine   *physics.Engine
	replicas *replica.Registry
	ballSync *replica.PositionSync

	connected    []protocol.ParticipantID
	participants [MaxParticipants]Participant
	result       Result
	exited       bool
	pending      []func()

	Slogger *slog.Logger
}

type scorerFunc func(slot, delta int) error

func (f scorerFunc) AddScore(slot, delta int) error { return f(slot, delta) }

func NewAuthority(out Outbox, opts Options) *Authority {
	if opts.HostID == "" {
		opts.HostID = DefaultHostID
	}
	if opts.Codec == nil {
		opts.Codec = protocol.JSONCodec{}
	}
	if opts.Slogger == nil {
		opts.Slogger = slog.Default()
	}
	field := physics.DefaultField()
	if opts.Field != nil {
		field = *opts.Field
	}
	sl := opts.Slogger.With("component", "session")

	a := &Authority{
		state:    Lobby,
		opts:     opts,
		out:      out,
		registry: dispatch.NewRegistry(sl),
		scores:   score.NewTracker(func(p protocol.ScoreUpdated) { out.SendToAll(p) }),
		replicas: replica.NewRegistry(sl),
		Slogger:  sl,
	}
	a.engine = physics.NewEngine(field, opts.RNG, scorerFunc(a.addScore), opts.Slogger)

	// Session handlers go first so the connection order is recorded before
	// the lobby reacts to a join.
	a.subs.Add(
		a.registry.Handle(protocol.TypeJoinSession, a.onJoin),
		a.registry.Handle(protocol.TypeLeaveSession, a.onLeave),
		a.registry.Handle(protocol.TypePositionUpdate, a.onPosition),
	)
	a.lobby = lobby.NewAuthority(out, a.start, opts.Slogger)
	a.lobby.Attach(a.registry)
	return a
}

func (a *Authority) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Lobby exposes the readiness protocol, e.g. for the host's own participant.
func (a *Authority) Lobby() *lobby.Authority { return a.lobby }

// HandleJoin registers a newly connected participant.
func (a *Authority) HandleJoin(id protocol.ParticipantID) error {
	a.mu.Lock()
	err := a.handleJoin(id)
	hooks := a.takePending()
	a.mu.Unlock()
	runAll(hooks)
	return err
}

func (a *Authority) handleJoin(id protocol.ParticipantID) error {
	if a.exited {
		return ErrExited
	}
	if a.state != Lobby {
		return fmt.Errorf("%w: session is %s", ErrNotAccepting, a.state)
	}
	if slices.Contains(a.connected, id) {
		return nil
	}
	if len(a.connected) >= MaxParticipants {
		return fmt.Errorf("%w: max player in session is %d", ErrSessionFull, MaxParticipants)
	}
	return a.dispatchEvent(id, protocol.JoinSession{ParticipantID: id})
}

// HandleLeave processes a transport disconnect. A disconnect while Active
// ends the session without a winner and exits.
func (a *Authority) HandleLeave(id protocol.ParticipantID) error {
	a.mu.Lock()
	var err error
	if !a.exited {
		err = a.dispatchEvent(id, protocol.LeaveSession{ParticipantID: id})
	}
	hooks := a.takePending()
	a.mu.Unlock()
	runAll(hooks)
	return err
}

// HandleMessage routes a decoded participant message.
func (a *Authority) HandleMessage(from protocol.ParticipantID, env protocol.Envelope) error {
	a.mu.Lock()
	err := a.handleMessage(from, env)
	hooks := a.takePending()
	a.mu.Unlock()
	runAll(hooks)
	return err
}

func (a *Authority) handleMessage(from protocol.ParticipantID, env protocol.Envelope) error {
	if a.exited {
		return ErrExited
	}
	if !protocol.FromParticipant(env.Type) {
		a.Slogger.Warn("rejected message", "func", "session.HandleMessage", "from", from, "type", env.Type)
		return fmt.Errorf("%w: participants may not send %q", ErrUnauthorized, env.Type)
	}
	if !slices.Contains(a.connected, from) {
		return fmt.Errorf("%w: %q is not in the session", ErrUnauthorized, from)
	}
	err := a.registry.Dispatch(from, env)
	if errors.Is(err, dispatch.ErrNoHandler) {
		a.Slogger.Debug("ignored message", "func", "session.HandleMessage", "from", from, "type", env.Type, "state", a.state)
		return nil
	}
	return err
}

// SetLocalReady flips the readiness of a participant living in the host
// process.
func (a *Authority) SetLocalReady(id protocol.ParticipantID) error {
	a.mu.Lock()
	var err error
	switch {
	case a.exited:
		err = ErrExited
	case a.state != Lobby:
		err = fmt.Errorf("%w: session is %s", ErrInvalidTransition, a.state)
	default:
		err = a.lobby.SetLocalReady(id)
	}
	hooks := a.takePending()
	a.mu.Unlock()
	runAll(hooks)
	return err
}

// AddScore credits slot on behalf of the authority.
func (a *Authority) AddScore(slot, delta int) error {
	a.mu.Lock()
	err := a.addScore(slot, delta)
	hooks := a.takePending()
	a.mu.Unlock()
	runAll(hooks)
	return err
}

// Tick advances the simulation by dt. It does nothing unless Active.
func (a *Authority) Tick(dt float64) error {
	a.mu.Lock()
	err := a.tick(dt)
	hooks := a.takePending()
	a.mu.Unlock()
	runAll(hooks)
	return err
}

func (a *Authority) tick(dt float64) error {
	if a.exited || a.state != Active {
		return nil
	}
	for slot := range MaxParticipants {
		if view, ok := a.replicas.Lookup(protocol.PaddleEntity(slot)); ok {
			a.engine.Field().SetPaddle(slot, view.Get())
		}
	}
	if err := a.engine.Step(dt); err != nil {
		return err
	}
	if a.state != Active || a.ballSync == nil {
		return nil
	}
	if ball, ok := a.engine.Ball(); ok {
		a.ballSync.Tick(ball.Position)
	}
	return nil
}

// Exit releases the session. It is idempotent.
func (a *Authority) Exit() {
	a.mu.Lock()
	if a.exited {
		a.mu.Unlock()
		return
	}
	a.exited = true
	a.subs.Close()
	a.lobby.Detach()
	a.engine.Despawn()
	for _, e := range a.replicas.Entities() {
		a.replicas.Despawn(e)
	}
	a.ballSync = nil
	hooks := a.takePending()
	a.mu.Unlock()

	runAll(hooks)
	a.Slogger.Info("session exited")
	if a.opts.OnExit != nil {
		a.opts.OnExit()
	}
}

func (a *Authority) Exited() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exited
}

func (a *Authority) dispatchEvent(from protocol.ParticipantID, msg protocol.Message) error {
	env, err := protocol.Pack(a.opts.Codec, msg)
	if err != nil {
		return err
	}
	err = a.registry.Dispatch(from, env)
	if errors.Is(err, dispatch.ErrNoHandler) {
		return nil
	}
	return err
}

func (a *Authority) onJoin(_ protocol.ParticipantID, env protocol.Envelope) error {
	msg, err := protocol.DecodePayload[protocol.JoinSession](env)
	if err != nil {
		return err
	}
	a.connected = append(a.connected, msg.ParticipantID)
	a.Slogger.Info("participant connected", "participant", msg.ParticipantID, "connected", len(a.connected))
	return nil
}

func (a *Authority) onLeave(_ protocol.ParticipantID, env protocol.Envelope) error {
	msg, err := protocol.DecodePayload[protocol.LeaveSession](env)
	if err != nil {
		return err
	}
	idx := slices.Index(a.connected, msg.ParticipantID)
	if idx < 0 {
		return nil
	}
	a.connected = slices.Delete(a.connected, idx, idx+1)
	a.Slogger.Info("participant disconnected", "participant", msg.ParticipantID, "state", a.state)

	if a.state != Active {
		return nil
	}
	if err := a.end(Result{Reason: ReasonDisconnected}); err != nil {
		return err
	}
	a.pending = append(a.pending, a.Exit)
	return nil
}

func (a *Authority) onPosition(from protocol.ParticipantID, env protocol.Envelope) error {
	msg, err := protocol.DecodePayload[protocol.PositionUpdate](env)
	if err != nil {
		return err
	}
	if err := a.replicas.Apply(from, msg.EntityID, msg.Position); err != nil {
		if errors.Is(err, replica.ErrNotOwner) {
			a.Slogger.Warn("rejected position write", "func", "session.onPosition", "from", from, "entity", msg.EntityID)
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return err
	}
	a.out.SendToOthers(from, msg)
	return nil
}

// start enters Active. It is called by the lobby once the quorum is reached.
func (a *Authority) start() error {
	if err := transition(a.state, Active); err != nil {
		return err
	}
	if len(a.connected) != MaxParticipants {
		err := fmt.Errorf("%w: %d participants connected, need %d", ErrInvariantViolation, len(a.connected), MaxParticipants)
		a.Slogger.Error("cannot start session", "func", "session.start", "err", err)
		return err
	}

	var slots [MaxParticipants]protocol.ParticipantID
	for slot, id := range a.connected {
		p := Participant{
			ID:    id,
			Slot:  slot,
			Color: SlotColors[slot],
			Spawn: physics.PaddleSpawn(slot),
		}
		a.participants[slot] = p
		slots[slot] = id
		a.replicas.Spawn(protocol.PaddleEntity(slot), id, p.Spawn)
		a.engine.Field().SetPaddle(slot, p.Spawn)
		a.out.SendTo(id, protocol.SpawnAssignment{Slot: slot, SpawnPosition: p.Spawn, Color: p.Color})
	}

	a.engine.Spawn()
	ball, _ := a.engine.Ball()
	cell := a.replicas.Spawn(protocol.BallEntity, a.opts.HostID, ball.Position)
	a.ballSync = replica.NewPositionSync(protocol.BallEntity, a.opts.HostID, cell, func(u protocol.PositionUpdate) {
		a.out.SendToAll(u)
	})

	a.scores.Reset()
	a.state = Active
	a.out.SendToAll(protocol.SessionStarted{Slots: slots, Authority: a.opts.HostID})
	a.Slogger.Info("session started", "slot0", slots[0], "slot1", slots[1])

	if a.opts.OnStart != nil {
		onStart := a.opts.OnStart
		a.pending = append(a.pending, func() { onStart(slots) })
	}
	return nil
}

func (a *Authority) addScore(slot, delta int) error {
	if a.state != Active {
		return fmt.Errorf("%w: cannot score while %s", ErrInvalidTransition, a.state)
	}
	won, err := a.scores.AddScore(slot, delta)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	return a.end(Result{Winner: a.participants[slot].ID})
}

// end enters Ended and announces the result.
func (a *Authority) end(res Result) error {
	if err := transition(a.state, Ended); err != nil {
		return err
	}
	a.state = Ended
	a.result = res
	a.engine.Despawn()
	a.replicas.Despawn(protocol.BallEntity)
	a.ballSync = nil
	a.out.SendToAll(protocol.GameEnded{WinnerID: res.Winner, Reason: res.Reason})
	a.Slogger.Info("session ended", "winner", res.Winner, "reason", res.Reason, "scores", a.scores.Scores())

	if a.opts.OnEnded != nil {
		onEnded := a.opts.OnEnded
		a.pending = append(a.pending, func() { onEnded(res) })
	}
	return nil
}

func (a *Authority) takePending() []func() {
	hooks := a.pending
	a.pending = nil
	return hooks
}

func runAll(hooks []func()) {
	for _, h := range hooks {
		h()
	}
}
