package physics

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrUnsupported  = errors.New("physics: unsupported by engine")
	ErrCreateFailed = errors.New("physics: engine creation failed")
	ErrUnknownActor = errors.New("physics: unknown actor")
)

// Engine is the narrow surface the bridge needs from a physics backend.
// Implementations are driven from a single goroutine.
type Engine interface {
	Capabilities() Capabilities

	// CreateActorWithShape is the convenience path: one shape at the actor
	// origin. It cannot express a local shape offset.
	CreateActorWithShape(desc ActorDesc, shape ShapeDesc) (ActorID, error)
	CreateActor(desc ActorDesc) (ActorID, error)
	AttachShape(actor ActorID, shape ShapeDesc) (ShapeID, error)
	DetachShapes(actor ActorID)
	ReleaseActor(actor ActorID)

	ActorPose(actor ActorID) Pose
	SetActorPose(actor ActorID, pose Pose)
	SetKinematicTarget(actor ActorID, pose Pose)
	Velocities(actor ActorID) (linear, angular mgl64.Vec3)
	SetVelocities(actor ActorID, linear, angular mgl64.Vec3)
	SetBodyProps(actor ActorID, props BodyProps)
	SetShapeFilter(actor ActorID, filter FilterData)
	SetShapeMaterial(actor ActorID, mat Material)

	CreateJoint(desc JointDesc) (JointID, error)
	SetJointBreak(joint JointID, force, torque float64)
	SetJointCollideConnected(joint JointID, collide bool)
	ReleaseJoint(joint JointID)

	CreateController(desc ControllerDesc) (ControllerID, error)
	MoveController(ctrl ControllerID, displacement mgl64.Vec3, minDist, dt float64) CollisionFlags
	ControllerFootPosition(ctrl ControllerID) mgl64.Vec3
	SetControllerFootPosition(ctrl ControllerID, foot mgl64.Vec3)
	SetControllerFilter(ctrl ControllerID, filter FilterData)
	ReleaseController(ctrl ControllerID)

	Raycast(origin, dir mgl64.Vec3, maxDist float64, filter QueryFilter) (RaycastHit, bool)
	SweepSphere(center mgl64.Vec3, radius float64, dir mgl64.Vec3, maxDist float64, filter QueryFilter) (RaycastHit, bool)
	Overlap(shape ShapeDesc, pose Pose, filter QueryFilter) []Tag

	SetGravity(g mgl64.Vec3)
	Step(dt float64)
	// DrainActiveTransforms returns the bodies moved by the last step and
	// resets the list.
	DrainActiveTransforms() []ActiveTransform
	SetEventHandler(fn func(Event))

	// Flush releases everything still owned by the engine.
	Flush()
}
