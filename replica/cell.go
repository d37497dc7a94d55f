// Package replica holds values that everyone may read but only their owner
// may write.
package replica

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chilledoj/pongroom/protocol"
)

var (
	ErrNotOwner      = errors.New("replica: writer is not the owner")
	ErrUnknownEntity = errors.New("replica: unknown entity")
)

// Cell is a typed value with a fixed owner. Writes from anyone else are
// rejected.
type Cell[T any] struct {
	mu      sync.RWMutex
	owner   protocol.ParticipantID
	value   T
	version uint64
}

func NewCell[T any](owner protocol.ParticipantID, initial T) *Cell[T] {
	return &Cell[T]{owner: owner, value: initial}
}

func (c *Cell[T]) Owner() protocol.ParticipantID { return c.owner }

func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Version counts accepted writes.
func (c *Cell[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Cell[T]) Set(writer protocol.ParticipantID, v T) error {
	if writer != c.owner {
		return fmt.Errorf("%w: %q tried to write a value owned by %q", ErrNotOwner, writer, c.owner)
	}
	c.mu.Lock()
	c.value = v
	c.version++
	c.mu.Unlock()
	return nil
}

// ReadOnly returns a view that cannot write.
func (c *Cell[T]) ReadOnly() View[T] { return c }

// View is the read side of a Cell.
type View[T any] interface {
	Get() T
	Owner() protocol.ParticipantID
	Version() uint64
}
