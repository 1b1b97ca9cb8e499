package component

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/physics"
)

type ColliderType uint8

const (
	ColliderBox ColliderType = iota
	ColliderSphere
	ColliderCapsule
)

// Collider is a primitive shape. Without a RigidBody it becomes a static actor.
type Collider struct {
	Type        ColliderType
	HalfExtents mgl64.Vec3
	Radius      float64
	HalfHeight  float64
	Axis        physics.Axis
	Offset      mgl64.Vec3
	IsTrigger   bool

	Friction    float64
	Restitution float64
	CollisionLayer

	// Handle references the actor the shape lives on; it is owned by the
	// RigidBody when one is present.
	Handle physics.Handle
}

func NewBoxCollider(halfExtents mgl64.Vec3) *Collider {
	return &Collider{
		Type:           ColliderBox,
		HalfExtents:    halfExtents,
		Friction:       0.5,
		CollisionLayer: CollisionLayer{Layer: DefaultLayer},
	}
}

func NewSphereCollider(radius float64) *Collider {
	return &Collider{
		Type:           ColliderSphere,
		Radius:         radius,
		Friction:       0.5,
		CollisionLayer: CollisionLayer{Layer: DefaultLayer},
	}
}

func NewCapsuleCollider(radius, halfHeight float64) *Collider {
	return &Collider{
		Type:           ColliderCapsule,
		Radius:         radius,
		HalfHeight:     halfHeight,
		Friction:       0.5,
		CollisionLayer: CollisionLayer{Layer: DefaultLayer},
	}
}

var ColliderComponent = NewComponent[Collider]()
