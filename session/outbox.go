package session

import (
	"log/slog"

	"github.com/chilledoj/pongroom/protocol"
)

// Sender is the byte-level fan-out offered by a room.
type Sender interface {
	SendMessageToPlayer(player protocol.ParticipantID, message []byte)
	SendMessageToAllPlayers(message []byte)
	SendMessageToOthers(except protocol.ParticipantID, message []byte)
}

// Outbox delivers messages to participants. It never blocks the caller.
type Outbox interface {
	SendTo(id protocol.ParticipantID, msg protocol.Message)
	SendToAll(msg protocol.Message)
	SendToOthers(except protocol.ParticipantID, msg protocol.Message)
}

// RoomOutbox encodes messages with Codec and hands the frames to a room.
type RoomOutbox struct {
	Room  Sender
	Codec protocol.Codec

	Slogger *slog.Logger
}

func NewRoomOutbox(room Sender, codec protocol.Codec, sl *slog.Logger) *RoomOutbox {
	if codec == nil {
		codec = protocol.JSONCodec{}
	}
	if sl == nil {
		sl = slog.Default()
	}
	return &RoomOutbox{Room: room, Codec: codec, Slogger: sl}
}

func (o *RoomOutbox) SendTo(id protocol.ParticipantID, msg protocol.Message) {
	if frame, ok := o.encode(msg); ok {
		o.Room.SendMessageToPlayer(id, frame)
	}
}

func (o *RoomOutbox) SendToAll(msg protocol.Message) {
	if frame, ok := o.encode(msg); ok {
		o.Room.SendMessageToAllPlayers(frame)
	}
}

func (o *RoomOutbox) SendToOthers(except protocol.ParticipantID, msg protocol.Message) {
	if frame, ok := o.encode(msg); ok {
		o.Room.SendMessageToOthers(except, frame)
	}
}

func (o *RoomOutbox) encode(msg protocol.Message) ([]byte, bool) {
	frame, err := o.Codec.Encode(msg)
	if err != nil {
		o.Slogger.Error("could not encode message", "func", "session.RoomOutbox", "type", msg.MessageType(), "err", err)
		return nil, false
	}
	return frame, true
}
