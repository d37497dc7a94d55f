// Package physics runs the authoritative ball simulation.
package physics

import (
	"log/slog"
	"math/rand"

	"github.com/chilledoj/pongroom/geom"
)

const (
	StartSpeed     = 3.0
	MaxSpeed       = 15.0
	SpeedPerBounce = 0.2

	// BounceJitter bounds the random offset added to a reflected direction.
	BounceJitter = 0.05
	// ServeJitter bounds the random offset added to a serve direction.
	ServeJitter = 1.0

	RespawnMinY = -3.0
	RespawnMaxY = 3.0
)

// Ball is the simulated ball. Direction is always a unit vector.
type Ball struct {
	Position  geom.Vec2 `json:"position"`
	Direction geom.Vec2 `json:"direction"`
	Speed     float64   `json:"speed"`
}

// Scorer is credited whenever the ball crosses a goal line.
type Scorer interface {
	AddScore(slot, delta int) error
}

type Engine struct {
	field   Field
	ball    Ball
	spawned bool
	rng     *rand.Rand
	scorer  Scorer

	Slogger *slog.Logger
}

func NewEngine(field Field, rng *rand.Rand, scorer Scorer, sl *slog.Logger) *Engine {
	if rng == nil {
		rng = NewRNG("", "physics")
	}
	if sl == nil {
		sl = slog.Default()
	}
	return &Engine{
		field:   field,
		rng:     rng,
		scorer:  scorer,
		Slogger: sl.With("component", "physics"),
	}
}

// Spawn places the ball at the origin and serves it to the left.
func (e *Engine) Spawn() {
	e.ball = Ball{
		Position:  geom.Zero,
		Direction: e.serveDirection(geom.Left),
		Speed:     StartSpeed,
	}
	e.spawned = true
}

func (e *Engine) Despawn() { e.spawned = false }

func (e *Engine) Spawned() bool { return e.spawned }

// Ball returns the current ball state and whether the ball exists.
func (e *Engine) Ball() (Ball, bool) { return e.ball, e.spawned }

// SetBall replaces the ball state.
func (e *Engine) SetBall(b Ball) {
	e.ball = b
	e.spawned = true
}

func (e *Engine) Field() *Field { return &e.field }

// Step advances the ball by one fixed tick.
func (e *Engine) Step(dt float64) error {
	if !e.spawned || dt <= 0 {
		return nil
	}
	b := &e.ball
	distance := b.Speed * dt

	hit, ok := e.field.Cast(b.Position, b.Direction, distance)
	if !ok {
		b.Position = b.Position.Add(b.Direction.Scale(distance))
		return nil
	}

	if hit.Kind == Goal {
		slot, toward := 0, geom.Right
		if hit.Point.X < 0 {
			slot, toward = 1, geom.Left
		}
		e.Slogger.Debug("goal", "func", "physics.Step", "slot", slot, "x", hit.Point.X)
		if e.scorer != nil {
			if err := e.scorer.AddScore(slot, 1); err != nil {
				return err
			}
		}
		if !e.spawned {
			return nil
		}
		e.ball = Ball{
			Position:  geom.V(0, uniform(e.rng, RespawnMinY, RespawnMaxY)),
			Direction: e.serveDirection(toward),
			Speed:     StartSpeed,
		}
		return nil
	}

	b.Position = hit.Point
	remaining := max(0, distance-hit.Distance)
	b.Direction = e.bounceDirection(b.Direction.Reflect(hit.Normal), hit.Normal)
	b.Position = b.Position.Add(b.Direction.Scale(remaining))
	b.Speed = min(b.Speed+SpeedPerBounce, MaxSpeed)
	return nil
}

func (e *Engine) serveDirection(base geom.Vec2) geom.Vec2 {
	x, y := insideUnitCircle(e.rng)
	dir := base.Add(geom.V(x, y).Scale(ServeJitter)).Normalize()
	if dir == geom.Zero {
		return base
	}
	return dir
}

// bounceDirection perturbs a reflected direction without letting it cross
// back through the surface it bounced off.
func (e *Engine) bounceDirection(reflected, normal geom.Vec2) geom.Vec2 {
	x, y := insideUnitCircle(e.rng)
	perturbed := reflected.Add(geom.V(x, y).Scale(BounceJitter)).Normalize()
	if perturbed.Dot(normal) <= 0 || perturbed == geom.Zero {
		return reflected.Normalize()
	}
	return perturbed
}
