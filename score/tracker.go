// Package score keeps the authoritative score pair of a session.
package score

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chilledoj/pongroom/protocol"
)

const WinScore = 11

var (
	ErrInvalidSlot   = errors.New("score: slot must be 0 or 1")
	ErrNegativeDelta = errors.New("score: delta must not be negative")
)

// Publisher receives the full score pair after every mutation.
type Publisher func(protocol.ScoreUpdated)

type Tracker struct {
	mu      sync.RWMutex
	scores  [2]int
	publish Publisher
}

func NewTracker(publish Publisher) *Tracker {
	return &Tracker{publish: publish}
}

// AddScore adds delta to slot and publishes the resulting pair. It reports
// whether slot has reached WinScore.
func (t *Tracker) AddScore(slot, delta int) (bool, error) {
	if slot != 0 && slot != 1 {
		return false, fmt.Errorf("%w: got %d", ErrInvalidSlot, slot)
	}
	if delta < 0 {
		return false, fmt.Errorf("%w: got %d", ErrNegativeDelta, delta)
	}
	t.mu.Lock()
	t.scores[slot] += delta
	pair := t.pair()
	won := t.scores[slot] >= WinScore
	t.mu.Unlock()

	if t.publish != nil {
		t.publish(pair)
	}
	return won, nil
}

// Winner returns the slot that has reached WinScore, if any.
func (t *Tracker) Winner() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for slot, s := range t.scores {
		if s >= WinScore {
			return slot, true
		}
	}
	return 0, false
}

func (t *Tracker) Scores() [2]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scores
}

// Reset zeroes both scores and publishes {0,0}.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.scores = [2]int{}
	pair := t.pair()
	t.mu.Unlock()
	if t.publish != nil {
		t.publish(pair)
	}
}

func (t *Tracker) pair() protocol.ScoreUpdated {
	return protocol.ScoreUpdated{Score0: t.scores[0], Score1: t.scores[1]}
}
