package session

import (
	"testing"

	"github.com/chilledoj/pongroom/geom"
	"github.com/chilledoj/pongroom/physics"
	"github.com/chilledoj/pongroom/protocol"
	"github.com/chilledoj/pongroom/replica"
	"github.com/chilledoj/pongroom/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 1.0 / 60

type delivery struct {
	to     protocol.ParticipantID
	except protocol.ParticipantID
	all    bool
	msg    protocol.Message
}

type recordingOutbox struct {
	sent []delivery
}

func (o *recordingOutbox) SendTo(id protocol.ParticipantID, msg protocol.Message) {
	o.sent = append(o.sent, delivery{to: id, msg: msg})
}

func (o *recordingOutbox) SendToAll(msg protocol.Message) {
	o.sent = append(o.sent, delivery{all: true, msg: msg})
}

func (o *recordingOutbox) SendToOthers(except protocol.ParticipantID, msg protocol.Message) {
	o.sent = append(o.sent, delivery{except: except, msg: msg})
}

func (o *recordingOutbox) ofType(t protocol.MessageType) []delivery {
	var out []delivery
	for _, d := range o.sent {
		if d.msg.MessageType() == t {
			out = append(out, d)
		}
	}
	return out
}

type hooks struct {
	started int
	ended   []Result
	exits   int
}

func newTestAuthority(t *testing.T) (*Authority, *recordingOutbox, *hooks) {
	t.Helper()
	out := &recordingOutbox{}
	h := &hooks{}
	a := NewAuthority(out, Options{
		RNG:     physics.NewRNG("session-test", "physics"),
		OnStart: func([MaxParticipants]protocol.ParticipantID) { h.started++ },
		OnEnded: func(r Result) { h.ended = append(h.ended, r) },
		OnExit:  func() { h.exits++ },
	})
	return a, out, h
}

func pack(t *testing.T, msg protocol.Message) protocol.Envelope {
	t.Helper()
	env, err := protocol.Pack(protocol.JSONCodec{}, msg)
	require.NoError(t, err)
	return env
}

func ready(t *testing.T, a *Authority, id protocol.ParticipantID) {
	t.Helper()
	require.NoError(t, a.HandleMessage(id, pack(t, protocol.ReadyToggled{ParticipantID: id, Ready: true})))
}

func startedAuthority(t *testing.T) (*Authority, *recordingOutbox, *hooks) {
	t.Helper()
	a, out, h := newTestAuthority(t)
	require.NoError(t, a.HandleJoin("alice"))
	require.NoError(t, a.HandleJoin("bob"))
	ready(t, a, "alice")
	ready(t, a, "bob")
	require.Equal(t, Active, a.State())
	return a, out, h
}

func TestState(t *testing.T) {
	t.Run("should only move forward", func(t *testing.T) {
		require.NoError(t, transition(Lobby, Active))
		require.NoError(t, transition(Active, Ended))
		for _, tc := range [][2]State{{Active, Lobby}, {Ended, Active}, {Ended, Lobby}, {Lobby, Ended}, {Active, Active}} {
			assert.ErrorIs(t, transition(tc[0], tc[1]), ErrInvalidTransition, "%s -> %s", tc[0], tc[1])
		}
	})
	t.Run("should name the states", func(t *testing.T) {
		assert.Equal(t, "Lobby", Lobby.String())
		assert.Equal(t, "Active", Active.String())
		assert.Equal(t, "Ended", Ended.String())
		assert.Equal(t, "Unknown", State(9).String())
	})
}

func TestAuthority_Start(t *testing.T) {
	for _, order := range [][2]protocol.ParticipantID{{"alice", "bob"}, {"bob", "alice"}} {
		t.Run("should start exactly once when "+order[0]+" readies first", func(t *testing.T) {
			a, out, h := newTestAuthority(t)
			require.NoError(t, a.HandleJoin("alice"))
			require.NoError(t, a.HandleJoin("bob"))
			ready(t, a, order[0])
			assert.Equal(t, Lobby, a.State())
			ready(t, a, order[1])

			assert.Equal(t, Active, a.State())
			assert.Equal(t, 1, h.started)
			assert.Len(t, out.ofType(protocol.TypeSessionStarted), 1)
			assert.False(t, a.Lobby().Attached())

			// Further toggles are ignored once the lobby has detached.
			require.NoError(t, a.HandleMessage("alice", pack(t, protocol.ReadyToggled{ParticipantID: "alice", Ready: false})))
			assert.Equal(t, 1, h.started)
			assert.Equal(t, Active, a.State())
		})
	}

	t.Run("should assign slots in connection order", func(t *testing.T) {
		_, out, _ := startedAuthority(t)

		spawns := out.ofType(protocol.TypeSpawnAssignment)
		require.Len(t, spawns, 2)
		assert.Equal(t, protocol.ParticipantID("alice"), spawns[0].to)
		assert.Equal(t, protocol.SpawnAssignment{Slot: 0, SpawnPosition: geom.V(-8, 0), Color: SlotColors[0]}, spawns[0].msg)
		assert.Equal(t, protocol.ParticipantID("bob"), spawns[1].to)
		assert.Equal(t, protocol.SpawnAssignment{Slot: 1, SpawnPosition: geom.V(8, 0), Color: SlotColors[1]}, spawns[1].msg)

		scores := out.ofType(protocol.TypeScoreUpdated)
		require.Len(t, scores, 1)
		assert.Equal(t, protocol.ScoreUpdated{}, scores[0].msg)

		started := out.ofType(protocol.TypeSessionStarted)
		require.Len(t, started, 1)
		assert.Equal(t, protocol.SessionStarted{Slots: [2]protocol.ParticipantID{"alice", "bob"}, Authority: DefaultHostID}, started[0].msg)
	})

	t.Run("should refuse to start without two participants", func(t *testing.T) {
		a, out, h := newTestAuthority(t)
		require.NoError(t, a.HandleJoin("alice"))
		out.sent = nil

		err := a.start()
		require.ErrorIs(t, err, ErrInvariantViolation)
		assert.Equal(t, Lobby, a.State())
		assert.Zero(t, h.started)
		assert.Empty(t, out.sent)
	})

	t.Run("should reject a third participant", func(t *testing.T) {
		a, _, _ := newTestAuthority(t)
		require.NoError(t, a.HandleJoin("alice"))
		require.NoError(t, a.HandleJoin("bob"))
		require.ErrorIs(t, a.HandleJoin("carol"), ErrSessionFull)
		assert.Equal(t, []protocol.ParticipantID{"alice", "bob"}, a.Snapshot().Connected)
	})

	t.Run("should not accept joins once active", func(t *testing.T) {
		a, _, _ := startedAuthority(t)
		require.ErrorIs(t, a.HandleJoin("carol"), ErrNotAccepting)
	})
}

func TestAuthority_Score(t *testing.T) {
	t.Run("should end once when a slot reaches the win score", func(t *testing.T) {
		a, out, h := startedAuthority(t)
		for i := 0; i < score.WinScore; i++ {
			require.NoError(t, a.AddScore(1, 1))
		}

		ended := out.ofType(protocol.TypeGameEnded)
		require.Len(t, ended, 1)
		assert.Equal(t, protocol.GameEnded{WinnerID: "bob"}, ended[0].msg)
		assert.Equal(t, Ended, a.State())
		assert.Equal(t, []Result{{Winner: "bob"}}, h.ended)

		before := len(out.sent)
		require.ErrorIs(t, a.AddScore(0, 1), ErrInvalidTransition)
		require.NoError(t, a.Tick(tick))
		assert.Len(t, out.sent, before)

		snap := a.Snapshot()
		assert.Equal(t, [2]int{0, score.WinScore}, snap.Scores)
		assert.Nil(t, snap.Ball)
		_, ok := a.replicas.Lookup(protocol.BallEntity)
		assert.False(t, ok)
	})

	t.Run("should credit the right slot when the ball crosses a goal", func(t *testing.T) {
		a, out, _ := startedAuthority(t)
		a.engine.SetBall(physics.Ball{Position: geom.V(-physics.GoalX+0.01, 3), Direction: geom.Left, Speed: physics.StartSpeed})
		require.NoError(t, a.Tick(tick))

		assert.Equal(t, [2]int{0, 1}, a.scores.Scores())
		scores := out.ofType(protocol.TypeScoreUpdated)
		assert.Equal(t, protocol.ScoreUpdated{Score0: 0, Score1: 1}, scores[len(scores)-1].msg)
		ball, ok := a.engine.Ball()
		require.True(t, ok)
		assert.Equal(t, physics.StartSpeed, ball.Speed)
	})

	t.Run("should publish the ball position each tick it moves", func(t *testing.T) {
		a, out, _ := startedAuthority(t)
		require.NoError(t, a.Tick(tick))
		updates := out.ofType(protocol.TypePositionUpdate)
		require.Len(t, updates, 1)
		assert.True(t, updates[0].all)
		assert.Equal(t, protocol.BallEntity, updates[0].msg.(protocol.PositionUpdate).EntityID)
	})
}

func TestAuthority_Disconnect(t *testing.T) {
	t.Run("should tear down an active session without a winner", func(t *testing.T) {
		a, out, h := startedAuthority(t)
		require.NoError(t, a.HandleLeave("alice"))

		ended := out.ofType(protocol.TypeGameEnded)
		require.Len(t, ended, 1)
		assert.Equal(t, protocol.GameEnded{Reason: ReasonDisconnected}, ended[0].msg)
		assert.Equal(t, Ended, a.State())
		assert.True(t, a.Exited())
		assert.Equal(t, 1, h.exits)

		a.Exit()
		assert.Equal(t, 1, h.exits)
		require.ErrorIs(t, a.HandleMessage("bob", pack(t, protocol.SceneReady{})), ErrExited)
	})

	t.Run("should only update the lobby when disconnected before start", func(t *testing.T) {
		a, out, h := newTestAuthority(t)
		require.NoError(t, a.HandleJoin("alice"))
		require.NoError(t, a.HandleJoin("bob"))
		out.sent = nil

		require.NoError(t, a.HandleLeave("bob"))
		left := out.ofType(protocol.TypeParticipantLeft)
		require.Len(t, left, 1)
		assert.Empty(t, out.ofType(protocol.TypeGameEnded))
		assert.Equal(t, Lobby, a.State())
		assert.Zero(t, h.exits)

		require.NoError(t, a.HandleJoin("carol"))
		assert.Equal(t, []protocol.ParticipantID{"alice", "carol"}, a.Snapshot().Connected)
	})

	t.Run("should ignore leaves from unknown participants", func(t *testing.T) {
		a, out, _ := newTestAuthority(t)
		require.NoError(t, a.HandleJoin("alice"))
		out.sent = nil
		require.NoError(t, a.HandleLeave("ghost"))
		assert.Empty(t, out.sent)
	})
}

func TestAuthority_Positions(t *testing.T) {
	t.Run("should forward owner writes to the other participant", func(t *testing.T) {
		a, out, _ := startedAuthority(t)
		out.sent = nil
		upd := protocol.PositionUpdate{EntityID: protocol.PaddleEntity(0), Position: geom.V(-8, 2)}
		require.NoError(t, a.HandleMessage("alice", pack(t, upd)))

		fwd := out.ofType(protocol.TypePositionUpdate)
		require.Len(t, fwd, 1)
		assert.Equal(t, protocol.ParticipantID("alice"), fwd[0].except)
		assert.Equal(t, upd, fwd[0].msg)

		require.NoError(t, a.Tick(tick))
		assert.Equal(t, geom.V(-8, 2), a.engine.Field().Paddles[0].Center)
	})

	t.Run("should reject writes from a non owner", func(t *testing.T) {
		a, out, _ := startedAuthority(t)
		out.sent = nil
		err := a.HandleMessage("bob", pack(t, protocol.PositionUpdate{EntityID: protocol.PaddleEntity(0), Position: geom.V(-8, 4)}))
		require.ErrorIs(t, err, ErrUnauthorized)
		require.ErrorIs(t, err, replica.ErrNotOwner)
		assert.Empty(t, out.sent)

		view, ok := a.replicas.Lookup(protocol.PaddleEntity(0))
		require.True(t, ok)
		assert.Equal(t, geom.V(-8, 0), view.Get())

		err = a.HandleMessage("bob", pack(t, protocol.PositionUpdate{EntityID: protocol.BallEntity, Position: geom.Zero}))
		require.ErrorIs(t, err, replica.ErrNotOwner)
	})

	t.Run("should reject authority messages sent by participants", func(t *testing.T) {
		a, _, _ := startedAuthority(t)
		err := a.HandleMessage("alice", pack(t, protocol.ScoreUpdated{Score0: 11}))
		require.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, [2]int{}, a.scores.Scores())
	})

	t.Run("should push a readiness snapshot on scene ready", func(t *testing.T) {
		a, out, _ := newTestAuthority(t)
		require.NoError(t, a.HandleJoin("alice"))
		out.sent = nil
		require.NoError(t, a.HandleMessage("alice", pack(t, protocol.SceneReady{})))
		snaps := out.ofType(protocol.TypeReadinessSnapshot)
		require.Len(t, snaps, 1)
		assert.Equal(t, protocol.ParticipantID("alice"), snaps[0].to)
	})
}
