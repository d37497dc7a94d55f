package client

import (
	"github.com/chilledoj/pongroom/geom"
	"github.com/chilledoj/pongroom/physics"
)

// PaddleSpeed is in field units per second at full input.
const PaddleSpeed = 10.0

// Paddle turns vertical input into the local paddle position.
type Paddle struct {
	Position geom.Vec2
}

func NewPaddle(at geom.Vec2) *Paddle {
	return &Paddle{Position: at}
}

// Move applies input, clamped to [-1, 1], for dt seconds.
func (p *Paddle) Move(input, dt float64) geom.Vec2 {
	input = max(-1, min(1, input))
	p.Position.Y = physics.ClampPaddleY(p.Position.Y + input*PaddleSpeed*dt)
	return p.Position
}
