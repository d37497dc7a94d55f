package replica

import (
	"github.com/chilledoj/pongroom/geom"
	"github.com/chilledoj/pongroom/protocol"
)

// PublishThreshold is the distance an owned entity must move before its
// position is published again.
const PublishThreshold = 0.001

// Publisher sends an owned entity's new position to the other processes.
type Publisher func(update protocol.PositionUpdate)

// PositionSync drives one entity's replicated position from the local process.
type PositionSync struct {
	entity  protocol.EntityID
	local   protocol.ParticipantID
	cell    *Cell[geom.Vec2]
	publish Publisher
	last    geom.Vec2
}

func NewPositionSync(entity protocol.EntityID, local protocol.ParticipantID, cell *Cell[geom.Vec2], publish Publisher) *PositionSync {
	return &PositionSync{
		entity:  entity,
		local:   local,
		cell:    cell,
		publish: publish,
		last:    cell.Get(),
	}
}

func (p *PositionSync) IsOwner() bool { return p.cell.Owner() == p.local }

// Tick runs once per local tick with the entity's current local position and
// returns the position the entity should be shown at.
func (p *PositionSync) Tick(current geom.Vec2) geom.Vec2 {
	if !p.IsOwner() {
		return p.cell.Get()
	}
	if geom.Distance(p.last, current) <= PublishThreshold {
		return current
	}
	p.last = current
	if err := p.cell.Set(p.local, current); err != nil {
		return current
	}
	if p.publish != nil {
		p.publish(protocol.PositionUpdate{EntityID: p.entity, Position: current})
	}
	return current
}
