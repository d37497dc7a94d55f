package session

import (
	"slices"

	"github.com/chilledoj/pongroom/physics"
	"github.com/chilledoj/pongroom/protocol"
)

// Snapshot is a read-only view of the session for status reporting.
type Snapshot struct {
	State        string                   `json:"state"`
	Connected    []protocol.ParticipantID `json:"connected"`
	Ready        []protocol.ReadyEntry    `json:"ready"`
	Participants []Participant            `json:"participants,omitempty"`
	Scores       [MaxParticipants]int     `json:"scores"`
	Ball         *physics.Ball            `json:"ball,omitempty"`
	Winner       protocol.ParticipantID   `json:"winner,omitempty"`
	Reason       string                   `json:"reason,omitempty"`
	Exited       bool                     `json:"exited"`
}

func (a *Authority) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		State:     a.state.String(),
		Connected: slices.Clone(a.connected),
		Ready:     a.lobby.Entries(),
		Scores:    a.scores.Scores(),
		Winner:    a.result.Winner,
		Reason:    a.result.Reason,
		Exited:    a.exited,
	}
	if a.state != Lobby {
		snap.Participants = slices.Clone(a.participants[:])
	}
	if ball, ok := a.engine.Ball(); ok {
		snap.Ball = &ball
	}
	return snap
}
