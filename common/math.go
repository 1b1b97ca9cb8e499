package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultEpsilon is the tolerance used when comparing authoring floats.
const DefaultEpsilon = 1e-5

// NearlyEqual compares with an absolute tolerance below magnitude 1 and a
// relative one above it, so large world coordinates are not held to an
// absolute epsilon finer than their float spacing.
func NearlyEqual(a, b, eps float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= eps*scale
}

func NearlyEqualVec3(a, b mgl64.Vec3, eps float64) bool {
	return NearlyEqual(a[0], b[0], eps) && NearlyEqual(a[1], b[1], eps) && NearlyEqual(a[2], b[2], eps)
}

// NearlyEqualQuat treats q and -q as the same orientation.
func NearlyEqualQuat(a, b mgl64.Quat, eps float64) bool {
	same := NearlyEqual(a.W, b.W, eps) && NearlyEqualVec3(a.V, b.V, eps)
	if same {
		return true
	}
	return NearlyEqual(a.W, -b.W, eps) && NearlyEqualVec3(a.V, b.V.Mul(-1), eps)
}

// Clamp is the float64 equivalent of mgl64.Clamp kept here for call sites that
// only need scalars.
func Clamp(v, lo, hi float64) float64 {
	return mgl64.Clamp(v, lo, hi)
}
