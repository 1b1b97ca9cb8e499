package component

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/physics"
)

// RigidBody owns the entity's physics actor. Colliders on the same entity
// attach their shapes to it.
type RigidBody struct {
	// Mass properties are baked when the actor is built.
	Mass         float64
	CenterOfMass mgl64.Vec3
	LockRotation bool

	IsKinematic            bool
	DisableGravity         bool
	LinearDamping          float64
	AngularDamping         float64
	MaxLinearVelocity      float64
	MaxAngularVelocity     float64
	PositionIterations     uint32
	VelocityIterations     uint32
	SleepThreshold         float64
	StabilizationThreshold float64

	// Teleport requests a hard pose write from the transform on the next
	// tick. It is cleared once applied.
	Teleport               bool
	ZeroVelocityOnTeleport bool

	Handle physics.Handle
}

// NewRigidBody returns a dynamic body with engine-typical defaults.
func NewRigidBody() *RigidBody {
	return &RigidBody{
		Mass:                   1,
		AngularDamping:         0.05,
		PositionIterations:     4,
		VelocityIterations:     1,
		SleepThreshold:         0.005,
		StabilizationThreshold: 0.0025,
	}
}

var RigidBodyComponent = NewComponent[RigidBody]()
