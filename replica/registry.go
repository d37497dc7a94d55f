package replica

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/chilledoj/pongroom/geom"
	"github.com/chilledoj/pongroom/protocol"
)

// Registry owns the replicated position of every spawned entity and is the
// permission boundary for writes to them.
type Registry struct {
	mu    sync.RWMutex
	cells map[protocol.EntityID]*Cell[geom.Vec2]

	Slogger *slog.Logger
}

func NewRegistry(sl *slog.Logger) *Registry {
	if sl == nil {
		sl = slog.Default()
	}
	return &Registry{
		cells:   make(map[protocol.EntityID]*Cell[geom.Vec2]),
		Slogger: sl,
	}
}

// Spawn creates the replicated position of entity. Spawning an entity that
// already exists replaces it.
func (r *Registry) Spawn(entity protocol.EntityID, owner protocol.ParticipantID, at geom.Vec2) *Cell[geom.Vec2] {
	c := NewCell(owner, at)
	r.mu.Lock()
	r.cells[entity] = c
	r.mu.Unlock()
	r.Slogger.Debug("spawned", "func", "replica.Spawn", "entity", entity, "owner", owner)
	return c
}

func (r *Registry) Despawn(entity protocol.EntityID) {
	r.mu.Lock()
	delete(r.cells, entity)
	r.mu.Unlock()
	r.Slogger.Debug("despawned", "func", "replica.Despawn", "entity", entity)
}

func (r *Registry) Lookup(entity protocol.EntityID) (View[geom.Vec2], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cells[entity]
	if !ok {
		return nil, false
	}
	return c, true
}

// Apply writes value on behalf of writer.
func (r *Registry) Apply(writer protocol.ParticipantID, entity protocol.EntityID, value geom.Vec2) error {
	r.mu.RLock()
	c, ok := r.cells[entity]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	return c.Set(writer, value)
}

// Entities lists spawned entity ids in sorted order.
func (r *Registry) Entities() []protocol.EntityID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]protocol.EntityID, 0, len(r.cells))
	for id := range r.cells {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
