package component

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/physics"
)

type GroundPlane struct {
	Enabled     bool
	Height      float64
	Friction    float64
	Restitution float64
	IsTrigger   bool
	CollisionLayer
}

// PhysicsScene holds scene-wide physics settings. Only the first entity
// carrying it is used.
type PhysicsScene struct {
	Gravity     mgl64.Vec3
	GroundPlane GroundPlane
	Layers      *physics.LayerMatrix
}

func NewPhysicsScene() *PhysicsScene {
	return &PhysicsScene{
		Gravity: mgl64.Vec3{0, -9.81, 0},
		Layers:  physics.NewLayerMatrix(),
	}
}

var PhysicsSceneComponent = NewComponent[PhysicsScene]()
