package lobby

import (
	"errors"
	"testing"

	"github.com/chilledoj/pongroom/dispatch"
	"github.com/chilledoj/pongroom/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	to     protocol.ParticipantID
	except protocol.ParticipantID
	all    bool
	msg    protocol.Message
}

type recorder struct {
	sent []sent
}

func (r *recorder) SendTo(id protocol.ParticipantID, msg protocol.Message) {
	r.sent = append(r.sent, sent{to: id, msg: msg})
}

func (r *recorder) SendToAll(msg protocol.Message) {
	r.sent = append(r.sent, sent{all: true, msg: msg})
}

func (r *recorder) SendToOthers(except protocol.ParticipantID, msg protocol.Message) {
	r.sent = append(r.sent, sent{except: except, msg: msg})
}

func (r *recorder) reset() { r.sent = nil }

func mustPack(t *testing.T, msg protocol.Message) protocol.Envelope {
	t.Helper()
	env, err := protocol.Pack(protocol.JSONCodec{}, msg)
	require.NoError(t, err)
	return env
}

func TestReadinessMap(t *testing.T) {
	t.Run("should list entries sorted by id", func(t *testing.T) {
		rm := NewReadinessMap()
		rm.Add("charlie")
		rm.Add("alice")
		rm.Add("bob")
		rm.Set("bob", true)
		assert.Equal(t, []protocol.ReadyEntry{
			{ParticipantID: "alice"},
			{ParticipantID: "bob", Ready: true},
			{ParticipantID: "charlie"},
		}, rm.Entries())
		assert.Equal(t, []string{
			"PLAYER_alice : NOT READY",
			"PLAYER_bob : READY",
			"PLAYER_charlie : NOT READY",
		}, rm.Lines())
	})
	t.Run("should require two ready participants for quorum", func(t *testing.T) {
		rm := NewReadinessMap()
		rm.Add("alice")
		rm.Set("alice", true)
		assert.False(t, rm.Quorum())
		rm.Add("bob")
		assert.False(t, rm.Quorum())
		rm.Set("bob", true)
		assert.True(t, rm.Quorum())
	})
}

func TestAuthority(t *testing.T) {
	setup := func(t *testing.T, startErr error) (*Authority, *recorder, *dispatch.Registry, *int) {
		t.Helper()
		rec := &recorder{}
		starts := 0
		a := NewAuthority(rec, func() error {
			starts++
			return startErr
		}, nil)
		reg := dispatch.NewRegistry(nil)
		a.Attach(reg)
		return a, rec, reg, &starts
	}

	t.Run("should broadcast a not ready delta on join", func(t *testing.T) {
		a, rec, reg, _ := setup(t, nil)
		require.NoError(t, reg.Dispatch("alice", mustPack(t, protocol.JoinSession{ParticipantID: "alice"})))
		require.Len(t, rec.sent, 1)
		assert.True(t, rec.sent[0].all)
		assert.Equal(t, protocol.ReadyToggled{ParticipantID: "alice"}, rec.sent[0].msg)
		assert.Equal(t, []protocol.ReadyEntry{{ParticipantID: "alice"}}, a.Entries())
	})

	t.Run("should push the full snapshot only to a scene ready participant", func(t *testing.T) {
		a, rec, reg, _ := setup(t, nil)
		a.OnParticipantJoined("bob")
		a.OnParticipantJoined("alice")
		require.NoError(t, a.ApplyToggle("bob", protocol.ReadyToggled{ParticipantID: "bob", Ready: true}))
		rec.reset()

		require.NoError(t, reg.Dispatch("alice", mustPack(t, protocol.SceneReady{})))
		require.Len(t, rec.sent, 1)
		assert.Equal(t, protocol.ParticipantID("alice"), rec.sent[0].to)
		assert.Equal(t, protocol.ReadinessSnapshot{Entries: []protocol.ReadyEntry{
			{ParticipantID: "alice"},
			{ParticipantID: "bob", Ready: true},
		}}, rec.sent[0].msg)
	})

	t.Run("should ignore unknown participants on leave", func(t *testing.T) {
		a, rec, _, _ := setup(t, nil)
		a.OnParticipantJoined("alice")
		rec.reset()
		a.OnParticipantLeft("ghost")
		assert.Empty(t, rec.sent)
		assert.Len(t, a.Entries(), 1)
	})

	t.Run("should broadcast removal on leave", func(t *testing.T) {
		a, rec, reg, _ := setup(t, nil)
		a.OnParticipantJoined("alice")
		rec.reset()
		require.NoError(t, reg.Dispatch("alice", mustPack(t, protocol.LeaveSession{ParticipantID: "alice"})))
		require.Len(t, rec.sent, 1)
		assert.Equal(t, protocol.ParticipantLeft{ParticipantID: "alice"}, rec.sent[0].msg)
		assert.Empty(t, a.Entries())
	})

	t.Run("should relay a toggle to everyone but the requester", func(t *testing.T) {
		a, rec, reg, _ := setup(t, nil)
		a.OnParticipantJoined("alice")
		a.OnParticipantJoined("bob")
		rec.reset()
		require.NoError(t, reg.Dispatch("bob", mustPack(t, protocol.ReadyToggled{ParticipantID: "bob", Ready: true})))
		require.Len(t, rec.sent, 1)
		assert.Equal(t, protocol.ParticipantID("bob"), rec.sent[0].except)
		assert.False(t, a.CheckIsReadyToStart())
	})

	t.Run("should reject toggling someone else", func(t *testing.T) {
		a, rec, _, _ := setup(t, nil)
		a.OnParticipantJoined("alice")
		a.OnParticipantJoined("bob")
		rec.reset()
		err := a.ApplyToggle("bob", protocol.ReadyToggled{ParticipantID: "alice", Ready: true})
		require.ErrorIs(t, err, ErrForeignToggle)
		assert.Empty(t, rec.sent)
		assert.Equal(t, []protocol.ReadyEntry{{ParticipantID: "alice"}, {ParticipantID: "bob"}}, a.Entries())
	})

	for _, order := range [][2]protocol.ParticipantID{{"alice", "bob"}, {"bob", "alice"}} {
		t.Run("should start exactly once when both toggle ready "+order[0]+" first", func(t *testing.T) {
			a, _, reg, starts := setup(t, nil)
			a.OnParticipantJoined("alice")
			a.OnParticipantJoined("bob")

			for _, id := range order {
				require.NoError(t, reg.Dispatch(id, mustPack(t, protocol.ReadyToggled{ParticipantID: id, Ready: true})))
			}
			assert.Equal(t, 1, *starts)
			assert.True(t, a.Started())
			assert.False(t, a.Attached())
			for _, mt := range []protocol.MessageType{
				protocol.TypeJoinSession, protocol.TypeLeaveSession,
				protocol.TypeSceneReady, protocol.TypeReadyToggled,
			} {
				assert.False(t, reg.Has(mt), mt)
			}

			err := reg.Dispatch("alice", mustPack(t, protocol.ReadyToggled{ParticipantID: "alice", Ready: false}))
			require.ErrorIs(t, err, dispatch.ErrNoHandler)
			assert.Equal(t, 1, *starts)
		})
	}

	t.Run("should stay attached when start fails", func(t *testing.T) {
		a, _, _, starts := setup(t, errors.New("boom"))
		a.OnParticipantJoined("alice")
		a.OnParticipantJoined("bob")
		require.NoError(t, a.SetLocalReady("alice"))
		require.NoError(t, a.SetLocalReady("bob"))
		assert.Equal(t, 1, *starts)
		assert.False(t, a.Started())
		assert.True(t, a.Attached())
	})

	t.Run("should flip local readiness and broadcast to all", func(t *testing.T) {
		a, rec, _, _ := setup(t, nil)
		a.OnParticipantJoined("host")
		rec.reset()
		require.NoError(t, a.SetLocalReady("host"))
		require.NoError(t, a.SetLocalReady("host"))
		require.Len(t, rec.sent, 2)
		assert.Equal(t, protocol.ReadyToggled{ParticipantID: "host", Ready: true}, rec.sent[0].msg)
		assert.Equal(t, protocol.ReadyToggled{ParticipantID: "host", Ready: false}, rec.sent[1].msg)
		require.ErrorIs(t, a.SetLocalReady("nobody"), ErrUnknownParticipant)
	})
}

func TestReplica(t *testing.T) {
	t.Run("should mirror authority broadcasts", func(t *testing.T) {
		r := NewReplica()
		reg := dispatch.NewRegistry(nil)
		r.Attach(reg)

		require.NoError(t, reg.Dispatch("", mustPack(t, protocol.ReadinessSnapshot{Entries: []protocol.ReadyEntry{
			{ParticipantID: "alice", Ready: true},
			{ParticipantID: "bob"},
		}})))
		require.NoError(t, reg.Dispatch("", mustPack(t, protocol.ReadyToggled{ParticipantID: "bob", Ready: true})))
		assert.True(t, r.Ready("bob"))

		require.NoError(t, reg.Dispatch("", mustPack(t, protocol.ParticipantLeft{ParticipantID: "alice"})))
		assert.Equal(t, []string{"PLAYER_bob : READY"}, r.Lines())

		r.Detach()
		assert.False(t, reg.Has(protocol.TypeReadyToggled))
	})
	t.Run("should flip the local value and return the request", func(t *testing.T) {
		r := NewReplica()
		req := r.Toggle("alice")
		assert.Equal(t, protocol.ReadyToggled{ParticipantID: "alice", Ready: true}, req)
		assert.True(t, r.Ready("alice"))
		req = r.Toggle("alice")
		assert.False(t, req.Ready)
	})
}
