package lobby

import (
	"sync"

	"github.com/chilledoj/pongroom/dispatch"
	"github.com/chilledoj/pongroom/protocol"
)

// Replica is a participant's read-only copy of the readiness map.
type Replica struct {
	mu    sync.RWMutex
	ready *ReadinessMap
	subs  dispatch.Group
}

func NewReplica() *Replica {
	return &Replica{ready: NewReadinessMap()}
}

func (r *Replica) Attach(reg *dispatch.Registry) {
	r.subs.Add(
		reg.Handle(protocol.TypeReadyToggled, func(_ protocol.ParticipantID, env protocol.Envelope) error {
			msg, err := protocol.DecodePayload[protocol.ReadyToggled](env)
			if err != nil {
				return err
			}
			r.ApplyToggled(msg)
			return nil
		}),
		reg.Handle(protocol.TypeReadinessSnapshot, func(_ protocol.ParticipantID, env protocol.Envelope) error {
			msg, err := protocol.DecodePayload[protocol.ReadinessSnapshot](env)
			if err != nil {
				return err
			}
			r.ApplySnapshot(msg)
			return nil
		}),
		reg.Handle(protocol.TypeParticipantLeft, func(_ protocol.ParticipantID, env protocol.Envelope) error {
			msg, err := protocol.DecodePayload[protocol.ParticipantLeft](env)
			if err != nil {
				return err
			}
			r.ApplyLeft(msg)
			return nil
		}),
	)
}

func (r *Replica) Detach() { r.subs.Close() }

func (r *Replica) ApplyToggled(msg protocol.ReadyToggled) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready.Add(msg.ParticipantID)
	r.ready.Set(msg.ParticipantID, msg.Ready)
}

func (r *Replica) ApplySnapshot(msg protocol.ReadinessSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready.Replace(msg.Entries)
}

func (r *Replica) ApplyLeft(msg protocol.ParticipantLeft) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready.Remove(msg.ParticipantID)
}

// Toggle flips the locally known value for local and returns the request to
// send to the authority.
func (r *Replica) Toggle(local protocol.ParticipantID) protocol.ReadyToggled {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, _ := r.ready.Get(local)
	r.ready.Add(local)
	r.ready.Set(local, !cur)
	return protocol.ReadyToggled{ParticipantID: local, Ready: !cur}
}

func (r *Replica) Ready(id protocol.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ready, _ := r.ready.Get(id)
	return ready
}

func (r *Replica) Entries() []protocol.ReadyEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready.Entries()
}

func (r *Replica) Lines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready.Lines()
}
