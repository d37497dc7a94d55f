package protocol

import "github.com/chilledoj/pongroom/geom"

// ParticipantID is the opaque connection identifier of a participant.
type ParticipantID = string

// EntityID names a replicated entity.
type EntityID = string

const (
	BallEntity EntityID = "ball"
)

// PaddleEntity returns the entity id of the paddle occupying slot.
func PaddleEntity(slot int) EntityID {
	if slot == 1 {
		return "paddle-1"
	}
	return "paddle-0"
}

type MessageType = string

const (
	TypeJoinSession       MessageType = "session.join"
	TypeLeaveSession      MessageType = "session.leave"
	TypeWelcome           MessageType = "session.welcome"
	TypeRejected          MessageType = "session.rejected"
	TypeSceneReady        MessageType = "lobby.scene_ready"
	TypeReadyToggled      MessageType = "lobby.ready"
	TypeReadinessSnapshot MessageType = "lobby.snapshot"
	TypeParticipantLeft   MessageType = "lobby.left"
	TypeSpawnAssignment   MessageType = "session.spawn"
	TypeSessionStarted    MessageType = "session.started"
	TypeScoreUpdated      MessageType = "score.updated"
	TypeGameEnded         MessageType = "session.ended"
	TypePositionUpdate    MessageType = "entity.position"
)

// Message is implemented by every payload that travels over the wire.
type Message interface {
	MessageType() MessageType
}

// FromParticipant reports whether a participant is allowed to send t to the
// authority. Everything else is authority-originated.
func FromParticipant(t MessageType) bool {
	switch t {
	case TypeSceneReady, TypeReadyToggled, TypePositionUpdate:
		return true
	}
	return false
}

// Messages returns a zero value of every wire message.
func Messages() []Message {
	return []Message{
		JoinSession{},
		LeaveSession{},
		Welcome{},
		Rejected{},
		SceneReady{},
		ReadyToggled{},
		ReadinessSnapshot{},
		ParticipantLeft{},
		SpawnAssignment{},
		SessionStarted{},
		ScoreUpdated{},
		GameEnded{},
		PositionUpdate{},
	}
}

type JoinSession struct {
	ParticipantID ParticipantID `json:"participantId" msgpack:"participantId"`
}

type LeaveSession struct {
	ParticipantID ParticipantID `json:"participantId" msgpack:"participantId"`
}

type Welcome struct {
	ParticipantID ParticipantID `json:"participantId" msgpack:"participantId"`
	Codec         string        `json:"codec" msgpack:"codec"`
}

type Rejected struct {
	Reason string `json:"reason" msgpack:"reason"`
}

type SceneReady struct{}

type ReadyToggled struct {
	ParticipantID ParticipantID `json:"participantId" msgpack:"participantId"`
	Ready         bool          `json:"ready" msgpack:"ready"`
}

type ReadyEntry struct {
	ParticipantID ParticipantID `json:"participantId" msgpack:"participantId"`
	Ready         bool          `json:"ready" msgpack:"ready"`
}

type ReadinessSnapshot struct {
	Entries []ReadyEntry `json:"entries" msgpack:"entries"`
}

type ParticipantLeft struct {
	ParticipantID ParticipantID `json:"participantId" msgpack:"participantId"`
}

// Color is an 8-bit RGB triple.
type Color struct {
	R uint8 `json:"r" msgpack:"r"`
	G uint8 `json:"g" msgpack:"g"`
	B uint8 `json:"b" msgpack:"b"`
}

type SpawnAssignment struct {
	Slot          int       `json:"slot" msgpack:"slot"`
	SpawnPosition geom.Vec2 `json:"spawnPosition" msgpack:"spawnPosition"`
	Color         Color     `json:"color" msgpack:"color"`
}

// SessionStarted names the participant in each slot and the owner of the
// authority-driven entities.
type SessionStarted struct {
	Slots     [2]ParticipantID `json:"slots" msgpack:"slots"`
	Authority ParticipantID    `json:"authority" msgpack:"authority"`
}

type ScoreUpdated struct {
	Score0 int `json:"score0" msgpack:"score0"`
	Score1 int `json:"score1" msgpack:"score1"`
}

// GameEnded carries an empty WinnerID when the session was torn down
// without a winner.
type GameEnded struct {
	WinnerID ParticipantID `json:"winnerId" msgpack:"winnerId"`
	Reason   string        `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

type PositionUpdate struct {
	EntityID EntityID  `json:"entityId" msgpack:"entityId"`
	Position geom.Vec2 `json:"position" msgpack:"position"`
}

func (JoinSession) MessageType() MessageType       { return TypeJoinSession }
func (LeaveSession) MessageType() MessageType      { return TypeLeaveSession }
func (Welcome) MessageType() MessageType           { return TypeWelcome }
func (Rejected) MessageType() MessageType          { return TypeRejected }
func (SceneReady) MessageType() MessageType        { return TypeSceneReady }
func (ReadyToggled) MessageType() MessageType      { return TypeReadyToggled }
func (ReadinessSnapshot) MessageType() MessageType { return TypeReadinessSnapshot }
func (ParticipantLeft) MessageType() MessageType   { return TypeParticipantLeft }
func (SpawnAssignment) MessageType() MessageType   { return TypeSpawnAssignment }
func (SessionStarted) MessageType() MessageType    { return TypeSessionStarted }
func (ScoreUpdated) MessageType() MessageType      { return TypeScoreUpdated }
func (GameEnded) MessageType() MessageType         { return TypeGameEnded }
func (PositionUpdate) MessageType() MessageType    { return TypePositionUpdate }
