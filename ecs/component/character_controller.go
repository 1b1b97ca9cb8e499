package component

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/physics"
)

// CharacterController is a sweep-based capsule mover. The transform position
// is the controller's foot.
type CharacterController struct {
	Radius        float64
	Height        float64
	StepOffset    float64
	SlopeLimit    float64
	ContactOffset float64

	// Gravity is the downward acceleration magnitude.
	Gravity         float64
	JumpSpeed       float64
	DesiredVelocity mgl64.Vec3
	JumpRequested   bool
	// Teleport moves the foot to the transform position without sweeping.
	Teleport bool
	CollisionLayer

	Grounded         bool
	GroundNormal     mgl64.Vec3
	GroundDistance   float64
	VerticalVelocity float64
	CollisionFlags   physics.CollisionFlags

	Handle physics.Handle
}

func NewCharacterController() *CharacterController {
	return &CharacterController{
		Radius:         0.4,
		Height:         1.8,
		StepOffset:     0.3,
		SlopeLimit:     45,
		ContactOffset:  0.02,
		Gravity:        9.81,
		JumpSpeed:      5,
		CollisionLayer: CollisionLayer{Layer: DefaultLayer},
	}
}

var CharacterControllerComponent = NewComponent[CharacterController]()
