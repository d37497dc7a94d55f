package geom

import "math"

// AABB is an axis-aligned box described by its center and half extents.
type AABB struct {
	Center Vec2
	Half   Vec2
}

func (b AABB) Min() Vec2 { return b.Center.Sub(b.Half) }
func (b AABB) Max() Vec2 { return b.Center.Add(b.Half) }

// Contains reports whether p lies strictly inside the box.
func (b AABB) Contains(p Vec2) bool {
	lo, hi := b.Min(), b.Max()
	return p.X > lo.X && p.X < hi.X && p.Y > lo.Y && p.Y < hi.Y
}

// RayHit is the first intersection of a ray with a box.
type RayHit struct {
	Distance float64
	Point    Vec2
	Normal   Vec2
}

// Raycast intersects the ray origin + dir*t, 0 <= t <= maxDist, with the box
// using the slab method. dir must be a unit vector. A ray that starts inside
// the box and is not already heading out of it hits at t = 0, with the normal
// of the face it is moving away from.
func (b AABB) Raycast(origin, dir Vec2, maxDist float64) (RayHit, bool) {
	if b.Contains(origin) {
		if dir.Dot(origin.Sub(b.Center)) > 0 {
			return RayHit{}, false
		}
		return RayHit{Point: origin, Normal: trailingFace(dir)}, true
	}
	lo, hi := b.Min(), b.Max()

	tNear, tFar := math.Inf(-1), math.Inf(1)
	var normal Vec2

	axes := [2]struct {
		o, d, lo, hi float64
		n            Vec2
	}{
		{origin.X, dir.X, lo.X, hi.X, Vec2{X: 1}},
		{origin.Y, dir.Y, lo.Y, hi.Y, Vec2{Y: 1}},
	}
	for _, a := range axes {
		if a.d == 0 {
			if a.o < a.lo || a.o > a.hi {
				return RayHit{}, false
			}
			continue
		}
		t1 := (a.lo - a.o) / a.d
		t2 := (a.hi - a.o) / a.d
		n := a.n.Scale(-1)
		if t1 > t2 {
			t1, t2 = t2, t1
			n = a.n
		}
		if t1 > tNear {
			tNear = t1
			normal = n
		}
		if t2 < tFar {
			tFar = t2
		}
		if tNear > tFar {
			return RayHit{}, false
		}
	}
	if tNear < 0 || tNear > maxDist || math.IsInf(tNear, -1) {
		return RayHit{}, false
	}
	return RayHit{
		Distance: tNear,
		Point:    origin.Add(dir.Scale(tNear)),
		Normal:   normal,
	}, true
}

// trailingFace is the outward normal of the face behind a ray moving along dir.
func trailingFace(dir Vec2) Vec2 {
	if math.Abs(dir.X) >= math.Abs(dir.Y) {
		return Vec2{X: -math.Copysign(1, dir.X)}
	}
	return Vec2{Y: -math.Copysign(1, dir.Y)}
}
