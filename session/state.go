package session

import (
	"errors"
	"fmt"
)

type State int8

const (
	Lobby State = iota
	Active
	Ended
)

func (s State) String() string {
	switch s {
	case Lobby:
		return "Lobby"
	case Active:
		return "Active"
	case Ended:
		return "Ended"
	default:
		return "Unknown"
	}
}

var (
	ErrInvariantViolation = errors.New("session: invariant violation")
	ErrInvalidTransition  = errors.New("session: invalid state transition")
	ErrUnauthorized       = errors.New("session: unauthorized write")
	ErrSessionFull        = errors.New("session: session is full")
	ErrNotAccepting       = errors.New("session: not accepting participants")
	ErrExited             = errors.New("session: exited")
)

// transition moves from to next. Only the forward steps Lobby->Active and
// Active->Ended are allowed.
func transition(from, next State) error {
	if (from == Lobby && next == Active) || (from == Active && next == Ended) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next)
}
