// Package client is the participant side of a session: it keeps a read-only
// replica of the lobby, scores and entity positions, and drives the locally
// owned paddle.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chilledoj/pongroom/dispatch"
	"github.com/chilledoj/pongroom/geom"
	"github.com/chilledoj/pongroom/lobby"
	"github.com/chilledoj/pongroom/physics"
	"github.com/chilledoj/pongroom/protocol"
	"github.com/chilledoj/pongroom/replica"
)

var (
	ErrRejected      = errors.New("client: rejected by host")
	ErrCodecMismatch = errors.New("client: codec mismatch")
	ErrNotWelcomed   = errors.New("client: not welcomed yet")
)

type Outcome int8

const (
	Pending Outcome = iota
	Won
	Lost
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "Pending"
	case Won:
		return "Won"
	case Lost:
		return "Lost"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

type Options struct {
	// Codec must match the host's. Defaults to JSON.
	Codec protocol.Codec
	// OnMessage observes every message after it has been applied. It runs on
	// the goroutine that called Run.
	OnMessage func(env protocol.Envelope)

	Slogger *slog.Logger
}

type Participant struct {
	conn     Conn
	codec    protocol.Codec
	opts     Options
	registry *dispatch.Registry
	lobby    *lobby.Replica
	replicas *replica.Registry

	mu         sync.RWMutex
	id         protocol.ParticipantID
	spawn      *protocol.SpawnAssignment
	slots      [2]protocol.ParticipantID
	scores     [2]int
	outcome    Outcome
	result     protocol.GameEnded
	paddle     *Paddle
	paddleSync *replica.PositionSync

	Slogger *slog.Logger
}

func NewParticipant(conn Conn, opts Options) *Participant {
	if opts.Codec == nil {
		opts.Codec = protocol.JSONCodec{}
	}
	if opts.Slogger == nil {
		opts.Slogger = slog.Default()
	}
	sl := opts.Slogger.With("component", "participant")
	p := &Participant{
		conn:     conn,
		codec:    opts.Codec,
		opts:     opts,
		registry: dispatch.NewRegistry(sl),
		lobby:    lobby.NewReplica(),
		replicas: replica.NewRegistry(sl),
		Slogger:  sl,
	}
	p.registry.Handle(protocol.TypeWelcome, p.onWelcome)
	p.registry.Handle(protocol.TypeRejected, p.onRejected)
	p.registry.Handle(protocol.TypeSpawnAssignment, p.onSpawn)
	p.registry.Handle(protocol.TypeSessionStarted, p.onStarted)
	p.registry.Handle(protocol.TypeScoreUpdated, p.onScore)
	p.registry.Handle(protocol.TypeGameEnded, p.onEnded)
	p.registry.Handle(protocol.TypePositionUpdate, p.onPosition)
	p.lobby.Attach(p.registry)
	return p
}

// Run applies inbound messages in arrival order until the link closes or
// ctx is cancelled. It returns nil once the game has ended.
func (p *Participant) Run(ctx context.Context) error {
	sl := p.Slogger.With("func", "participant.Run")
	stop := context.AfterFunc(ctx, func() { p.conn.Close() })
	defer stop()

	for {
		frame, err := p.conn.ReadFrame()
		if err != nil {
			if out, _ := p.Outcome(); out != Pending {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("client: read: %w", err)
		}
		env, err := p.codec.Decode(frame)
		if err != nil {
			sl.Warn("undecodable frame", "err", err)
			continue
		}
		err = p.registry.Dispatch("", env)
		switch {
		case err == nil:
		case errors.Is(err, dispatch.ErrNoHandler):
			sl.Debug("ignored message", "type", env.Type)
		case errors.Is(err, ErrRejected), errors.Is(err, ErrCodecMismatch):
			p.conn.Close()
			return err
		default:
			sl.Warn("message failed", "type", env.Type, "err", err)
		}
		if p.opts.OnMessage != nil {
			p.opts.OnMessage(env)
		}
	}
}

// Close drops the link to the host.
func (p *Participant) Close() error { return p.conn.Close() }

func (p *Participant) ID() protocol.ParticipantID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id
}

// Slot reports the slot assigned at session start.
func (p *Participant) Slot() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.spawn == nil {
		return 0, false
	}
	return p.spawn.Slot, true
}

func (p *Participant) Lobby() *lobby.Replica { return p.lobby }

func (p *Participant) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.slots[0] != ""
}

func (p *Participant) Scores() [2]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scores
}

func (p *Participant) Outcome() (Outcome, protocol.GameEnded) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.outcome, p.result
}

// Position reads the replicated position of entity.
func (p *Participant) Position(entity protocol.EntityID) (geom.Vec2, bool) {
	view, ok := p.replicas.Lookup(entity)
	if !ok {
		return geom.Vec2{}, false
	}
	return view.Get(), true
}

// SceneReady asks the host for the full readiness map.
func (p *Participant) SceneReady() error {
	return p.send(protocol.SceneReady{})
}

// ToggleReady flips the local readiness and asks the host to do the same.
func (p *Participant) ToggleReady() error {
	id := p.ID()
	if id == "" {
		return ErrNotWelcomed
	}
	return p.send(p.lobby.Toggle(id))
}

// Tick moves the local paddle by input for dt seconds and publishes it when
// it moved. It returns the paddle position, or false before the session has
// started.
func (p *Participant) Tick(dt, input float64) (geom.Vec2, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paddle == nil || p.paddleSync == nil {
		return geom.Vec2{}, false
	}
	return p.paddleSync.Tick(p.paddle.Move(input, dt)), true
}

func (p *Participant) send(msg protocol.Message) error {
	frame, err := p.codec.Encode(msg)
	if err != nil {
		return err
	}
	return p.conn.WriteFrame(frame)
}

func (p *Participant) publish(u protocol.PositionUpdate) {
	if err := p.send(u); err != nil {
		p.Slogger.Warn("could not publish position", "func", "participant.publish", "entity", u.EntityID, "err", err)
	}
}

func (p *Participant) onWelcome(_ protocol.ParticipantID, env protocol.Envelope) error {
	msg, err := protocol.DecodePayload[protocol.Welcome](env)
	if err != nil {
		return err
	}
	if msg.Codec != p.codec.Name() {
		return fmt.Errorf("%w: host speaks %q", ErrCodecMismatch, msg.Codec)
	}
	p.mu.Lock()
	p.id = msg.ParticipantID
	p.mu.Unlock()
	p.Slogger.Info("welcomed", "participant", msg.ParticipantID)
	return nil
}

func (p *Participant) onRejected(_ protocol.ParticipantID, env protocol.Envelope) error {
	msg, err := protocol.DecodePayload[protocol.Rejected](env)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s", ErrRejected, msg.Reason)
}

func (p *Participant) onSpawn(_ protocol.ParticipantID, env protocol.Envelope) error {
	msg, err := protocol.DecodePayload[protocol.SpawnAssignment](env)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.spawn = &msg
	p.paddle = NewPaddle(msg.SpawnPosition)
	p.mu.Unlock()
	return nil
}

// onStarted spawns the replicated entities. The local paddle becomes
// writable here if a spawn assignment arrived first.
func (p *Participant) onStarted(_ protocol.ParticipantID, env protocol.Envelope) error {
	msg, err := protocol.DecodePayload[protocol.SessionStarted](env)
	if err != nil {
		return err
	}
	p.lobby.Detach()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots = msg.Slots
	for slot, owner := range msg.Slots {
		entity := protocol.PaddleEntity(slot)
		cell := p.replicas.Spawn(entity, owner, physics.PaddleSpawn(slot))
		if owner == p.id && p.spawn != nil && p.spawn.Slot == slot {
			p.paddleSync = replica.NewPositionSync(entity, p.id, cell, p.publish)
		}
	}
	p.replicas.Spawn(protocol.BallEntity, msg.Authority, geom.Vec2{})
	p.Slogger.Info("session started", "slot0", msg.Slots[0], "slot1", msg.Slots[1])
	return nil
}

func (p *Participant) onScore(_ protocol.ParticipantID, env protocol.Envelope) error {
	msg, err := protocol.DecodePayload[protocol.ScoreUpdated](env)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.scores = [2]int{msg.Score0, msg.Score1}
	p.mu.Unlock()
	return nil
}

func (p *Participant) onEnded(_ protocol.ParticipantID, env protocol.Envelope) error {
	msg, err := protocol.DecodePayload[protocol.GameEnded](env)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case msg.WinnerID == "":
		p.outcome = Aborted
	case msg.WinnerID == p.id:
		p.outcome = Won
	default:
		p.outcome = Lost
	}
	p.result = msg
	p.paddleSync = nil
	p.replicas.Despawn(protocol.BallEntity)
	p.Slogger.Info("game ended", "outcome", p.outcome, "winner", msg.WinnerID, "reason", msg.Reason)
	return nil
}

// onPosition applies an update the host relayed for the entity's owner.
// Echoes of locally owned entities are ignored.
func (p *Participant) onPosition(_ protocol.ParticipantID, env protocol.Envelope) error {
	msg, err := protocol.DecodePayload[protocol.PositionUpdate](env)
	if err != nil {
		return err
	}
	view, ok := p.replicas.Lookup(msg.EntityID)
	if !ok {
		p.Slogger.Debug("position for unknown entity", "func", "participant.onPosition", "entity", msg.EntityID)
		return nil
	}
	owner := view.Owner()
	if owner == p.ID() {
		return nil
	}
	return p.replicas.Apply(owner, msg.EntityID, msg.Position)
}
