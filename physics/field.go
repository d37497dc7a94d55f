package physics

import (
	"math"

	"github.com/chilledoj/pongroom/geom"
)

const (
	WallY   = 5.0
	GoalX   = 9.5
	PaddleX = 8.0

	// PaddleClamp bounds the vertical position of a paddle's center.
	PaddleClamp = 4.5
)

var PaddleHalf = geom.V(0.15, 0.75)

// PaddleSpawn is the starting center of the paddle in slot.
func PaddleSpawn(slot int) geom.Vec2 {
	if slot == 1 {
		return geom.V(PaddleX, 0)
	}
	return geom.V(-PaddleX, 0)
}

// ClampPaddleY keeps y inside the range a paddle may occupy.
func ClampPaddleY(y float64) float64 {
	return math.Max(-PaddleClamp, math.Min(PaddleClamp, y))
}

type SurfaceKind int

const (
	Solid SurfaceKind = iota
	Goal
)

// Hit is the first surface a ray reaches. Normal points back into the field.
type Hit struct {
	geom.RayHit
	Kind SurfaceKind
}

// Field is the static geometry of the play area plus the two paddles.
type Field struct {
	Top, Bottom         float64
	LeftGoal, RightGoal float64
	Paddles             [2]geom.AABB
}

func DefaultField() Field {
	return Field{
		Top:       WallY,
		Bottom:    -WallY,
		LeftGoal:  -GoalX,
		RightGoal: GoalX,
		Paddles: [2]geom.AABB{
			{Center: PaddleSpawn(0), Half: PaddleHalf},
			{Center: PaddleSpawn(1), Half: PaddleHalf},
		},
	}
}

// SetPaddle moves the collider of the paddle in slot.
func (f *Field) SetPaddle(slot int, center geom.Vec2) {
	if slot != 0 && slot != 1 {
		return
	}
	f.Paddles[slot].Center = center
}

// Cast finds the nearest surface hit by origin + dir*t for t in [0, dist].
// A ray already past a boundary and moving further out hits it at t = 0.
func (f *Field) Cast(origin, dir geom.Vec2, dist float64) (Hit, bool) {
	var best Hit
	found := false
	consider := func(h Hit) {
		if !found || h.Distance < best.Distance {
			best, found = h, true
		}
	}

	if h, ok := castPlane(origin, dir, dist, f.Top, 1, Solid); ok {
		consider(h)
	}
	if h, ok := castPlane(origin, dir, dist, f.Bottom, 1, Solid); ok {
		consider(h)
	}
	for _, p := range f.Paddles {
		if rh, ok := p.Raycast(origin, dir, dist); ok {
			consider(Hit{RayHit: rh, Kind: Solid})
		}
	}
	if h, ok := castPlane(origin, dir, dist, f.LeftGoal, 0, Goal); ok {
		consider(h)
	}
	if h, ok := castPlane(origin, dir, dist, f.RightGoal, 0, Goal); ok {
		consider(h)
	}
	return best, found
}

// castPlane intersects the ray with the line coord[axis] == at. Only rays
// moving away from the field center across that line hit it.
func castPlane(origin, dir geom.Vec2, dist, at float64, axis int, kind SurfaceKind) (Hit, bool) {
	o, d := origin.X, dir.X
	if axis == 1 {
		o, d = origin.Y, dir.Y
	}
	outward := 1.0
	if at < 0 {
		outward = -1
	}
	if d*outward <= 0 {
		return Hit{}, false
	}
	t := (at - o) / d
	if t > dist {
		return Hit{}, false
	}
	t = math.Max(t, 0)
	normal := geom.V(-outward, 0)
	if axis == 1 {
		normal = geom.V(0, -outward)
	}
	return Hit{
		RayHit: geom.RayHit{Distance: t, Point: origin.Add(dir.Scale(t)), Normal: normal},
		Kind:   kind,
	}, true
}
