package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrEmptyFrame   = errors.New("protocol: empty frame")
	ErrEmptyType    = errors.New("protocol: envelope type is empty")
	ErrEmptyPayload = errors.New("protocol: empty payload")
	ErrUnknownCodec = errors.New("protocol: unknown codec")
)

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Envelope is a decoded frame whose payload has not been unpacked yet.
type Envelope struct {
	Type    MessageType
	payload []byte
	codec   Codec
}

// Codec turns messages into frames and back.
type Codec interface {
	Name() string
	Encode(msg Message) ([]byte, error)
	Decode(frame []byte) (Envelope, error)
	unmarshal(data []byte, v any) error
}

// NewCodec resolves a codec by name.
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// DecodePayload unpacks the envelope payload into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.payload) == 0 {
		return out, fmt.Errorf("%w for type %q", ErrEmptyPayload, env.Type)
	}
	if env.codec == nil {
		return out, fmt.Errorf("protocol: envelope %q has no codec", env.Type)
	}
	err := env.codec.unmarshal(env.payload, &out)
	return out, err
}

type jsonEnvelope struct {
	T string          `json:"type"`
	P json.RawMessage `json:"payload"`
}

type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("protocol: trying to encode nil message")
	}
	if msg.MessageType() == "" {
		return nil, ErrEmptyType
	}
	pb, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonEnvelope{T: msg.MessageType(), P: pb})
}

func (c JSONCodec) Decode(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var e jsonEnvelope
	if err := json.Unmarshal(frame, &e); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode json envelope: %w", err)
	}
	if e.T == "" {
		return Envelope{}, ErrEmptyType
	}
	return Envelope{Type: e.T, payload: e.P, codec: c}, nil
}

func (JSONCodec) unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackEnvelope struct {
	T string             `msgpack:"type"`
	P msgpack.RawMessage `msgpack:"payload"`
}

type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return CodecMsgpack }

func (MsgpackCodec) Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("protocol: trying to encode nil message")
	}
	if msg.MessageType() == "" {
		return nil, ErrEmptyType
	}
	pb, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msgpackEnvelope{T: msg.MessageType(), P: pb})
}

func (c MsgpackCodec) Decode(frame []byte) (Envelope, error) {
	if len(frame) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var e msgpackEnvelope
	if err := msgpack.Unmarshal(frame, &e); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode msgpack envelope: %w", err)
	}
	if e.T == "" {
		return Envelope{}, ErrEmptyType
	}
	return Envelope{Type: e.T, payload: e.P, codec: c}, nil
}

func (MsgpackCodec) unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// Pack runs msg through the codec and returns the resulting envelope. It is
// used for events synthesised in-process, such as joins and leaves.
func Pack(c Codec, msg Message) (Envelope, error) {
	frame, err := c.Encode(msg)
	if err != nil {
		return Envelope{}, err
	}
	return c.Decode(frame)
}
