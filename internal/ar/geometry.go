package ar

import (
	"fmt"
	"math"
)

// Vec2 is a screen-space position in pixels.
type Vec2 struct {
	X, Y float64
}

// Vec3 is a world-space position or direction. Y is up.
type Vec3 struct {
	X, Y, Z float64
}

// Origin is the world origin, used when no fallback coordinate was stored.
var Origin = Vec3{}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Horizontal projects v onto the ground plane.
func (v Vec3) Horizontal() Vec3 {
	return Vec3{X: v.X, Z: v.Z}
}

// IsZero reports whether every component is exactly zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Quat is a unit rotation quaternion.
type Quat struct {
	X, Y, Z, W float64
}

// Identity is the no-rotation quaternion.
var Identity = Quat{W: 1}

func (q Quat) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g)", q.X, q.Y, q.Z, q.W)
}

// Pose is a position plus rotation.
type Pose struct {
	Position Vec3
	Rotation Quat
}

// YawTowards returns the rotation about the up axis whose forward (+Z) points
// along the horizontal projection of dir. If that projection is exactly zero
// (looking straight up or down) there is no defined heading and keep is
// returned unchanged.
func YawTowards(dir Vec3, keep Quat) Quat {
	h := dir.Horizontal()
	if h.IsZero() {
		return keep
	}
	half := math.Atan2(h.X, h.Z) / 2
	return Quat{Y: math.Sin(half), W: math.Cos(half)}
}
