package component

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/physics"
)

// Joint connects the entity's actor to the actor of the entity named
// TargetName, or to the world when TargetName is empty.
type Joint struct {
	Type         physics.JointType
	TargetName   string
	Anchor       mgl64.Vec3
	TargetAnchor mgl64.Vec3

	Revolute  physics.RevoluteSettings
	Prismatic physics.PrismaticSettings
	Distance  physics.DistanceSettings
	Spherical physics.SphericalSettings
	SixAxis   physics.SixAxisSettings

	BreakForce       float64
	BreakTorque      float64
	CollideConnected bool

	// Broken is set when the engine reports the joint broke. A broken joint
	// is not rebuilt until its structural settings change.
	Broken bool
	Handle physics.Handle
}

var JointComponent = NewComponent[Joint]()
