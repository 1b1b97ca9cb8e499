// Package physicstest provides a deterministic in-memory physics.Engine that
// records every call the bridge makes.
package physicstest

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/physics"
)

// Counters tallies engine calls.
type Counters struct {
	ActorsCreated      int
	ConvenienceCreates int
	ActorsReleased     int
	ShapesAttached     int
	ShapeDetaches      int
	PoseWrites         int
	KinematicTargets   int
	FilterPushes       int
	MaterialPushes     int
	PropPushes         int
	JointsCreated      int
	JointsReleased     int
	ControllersCreated int
	ControllerReleases int
	ControllerMoves    int
	Steps              int
	Flushes            int
}

type Actor struct {
	ID       physics.ActorID
	Desc     physics.ActorDesc
	Pose     physics.Pose
	Linear   mgl64.Vec3
	Angular  mgl64.Vec3
	Shapes   []physics.ShapeDesc
	Props    physics.BodyProps
	Filter   physics.FilterData
	Material physics.Material

	target *physics.Pose
}

type Joint struct {
	ID               physics.JointID
	Desc             physics.JointDesc
	BreakForce       float64
	BreakTorque      float64
	CollideConnected bool
}

type Controller struct {
	ID     physics.ControllerID
	Desc   physics.ControllerDesc
	Foot   mgl64.Vec3
	Filter physics.FilterData
	Moves  []mgl64.Vec3
}

// Engine is a recording physics.Engine. Dynamic bodies integrate gravity with
// explicit Euler; kinematic targets are reached in one step. Plane shapes on
// static actors act as the ground for raycasts, sweeps, and controller moves.
type Engine struct {
	Caps    physics.Capabilities
	Gravity mgl64.Vec3
	Counters

	// FailCreate makes every actor, joint, and controller creation fail.
	FailCreate bool

	actors      map[physics.ActorID]*Actor
	joints      map[physics.JointID]*Joint
	controllers map[physics.ControllerID]*Controller
	nextID      uint32
	active      []physics.ActiveTransform
	handler     func(physics.Event)
	pending     []physics.Event
}

func New() *Engine {
	return &Engine{
		Caps: physics.Capabilities{
			MeshCooking:          true,
			CharacterControllers: true,
			HeightFields:         true,
			MaxConvexVertices:    255,
		},
		actors:      make(map[physics.ActorID]*Actor),
		joints:      make(map[physics.JointID]*Joint),
		controllers: make(map[physics.ControllerID]*Controller),
	}
}

func (e *Engine) id() uint32 {
	e.nextID++
	return e.nextID
}

func (e *Engine) Capabilities() physics.Capabilities {
	return e.Caps
}

func (e *Engine) CreateActorWithShape(desc physics.ActorDesc, shape physics.ShapeDesc) (physics.ActorID, error) {
	id, err := e.CreateActor(desc)
	if err != nil {
		return 0, err
	}
	e.ConvenienceCreates++
	e.actors[id].Shapes = append(e.actors[id].Shapes, shape)
	e.actors[id].Filter = shape.Filter
	e.actors[id].Material = shape.Material
	return id, nil
}

func (e *Engine) CreateActor(desc physics.ActorDesc) (physics.ActorID, error) {
	if e.FailCreate {
		return 0, physics.ErrCreateFailed
	}
	id := physics.ActorID(e.id())
	e.actors[id] = &Actor{ID: id, Desc: desc, Pose: desc.Pose, Props: desc.Body}
	e.ActorsCreated++
	return id, nil
}

func (e *Engine) AttachShape(actor physics.ActorID, shape physics.ShapeDesc) (physics.ShapeID, error) {
	a, ok := e.actors[actor]
	if !ok {
		return 0, physics.ErrUnknownActor
	}
	a.Shapes = append(a.Shapes, shape)
	a.Filter = shape.Filter
	a.Material = shape.Material
	e.ShapesAttached++
	return physics.ShapeID(e.id()), nil
}

func (e *Engine) DetachShapes(actor physics.ActorID) {
	if a, ok := e.actors[actor]; ok {
		a.Shapes = nil
		e.ShapeDetaches++
	}
}

func (e *Engine) ReleaseActor(actor physics.ActorID) {
	if _, ok := e.actors[actor]; !ok {
		return
	}
	delete(e.actors, actor)
	e.ActorsReleased++
}

// Actor returns the live actor with id, or nil.
func (e *Engine) Actor(id physics.ActorID) *Actor {
	return e.actors[id]
}

// Actors returns live actors ordered by id.
func (e *Engine) Actors() []*Actor {
	out := make([]*Actor, 0, len(e.actors))
	for _, a := range e.actors {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) ActorPose(actor physics.ActorID) physics.Pose {
	if a, ok := e.actors[actor]; ok {
		return a.Pose
	}
	return physics.IdentityPose()
}

func (e *Engine) SetActorPose(actor physics.ActorID, pose physics.Pose) {
	if a, ok := e.actors[actor]; ok {
		a.Pose = pose
		a.target = nil
		e.PoseWrites++
	}
}

func (e *Engine) SetKinematicTarget(actor physics.ActorID, pose physics.Pose) {
	if a, ok := e.actors[actor]; ok {
		p := pose
		a.target = &p
		e.KinematicTargets++
	}
}

func (e *Engine) Velocities(actor physics.ActorID) (mgl64.Vec3, mgl64.Vec3) {
	if a, ok := e.actors[actor]; ok {
		return a.Linear, a.Angular
	}
	return mgl64.Vec3{}, mgl64.Vec3{}
}

func (e *Engine) SetVelocities(actor physics.ActorID, linear, angular mgl64.Vec3) {
	if a, ok := e.actors[actor]; ok {
		a.Linear = linear
		a.Angular = angular
	}
}

func (e *Engine) SetBodyProps(actor physics.ActorID, props physics.BodyProps) {
	if a, ok := e.actors[actor]; ok {
		a.Props = props
		if props.Kinematic {
			a.Desc.Kind = physics.BodyKinematic
		} else if a.Desc.Kind == physics.BodyKinematic {
			a.Desc.Kind = physics.BodyDynamic
		}
		e.PropPushes++
	}
}

func (e *Engine) SetShapeFilter(actor physics.ActorID, filter physics.FilterData) {
	if a, ok := e.actors[actor]; ok {
		a.Filter = filter
		for i := range a.Shapes {
			a.Shapes[i].Filter = filter
		}
		e.FilterPushes++
	}
}

func (e *Engine) SetShapeMaterial(actor physics.ActorID, mat physics.Material) {
	if a, ok := e.actors[actor]; ok {
		a.Material = mat
		e.MaterialPushes++
	}
}

func (e *Engine) CreateJoint(desc physics.JointDesc) (physics.JointID, error) {
	if e.FailCreate {
		return 0, physics.ErrCreateFailed
	}
	if _, ok := e.actors[desc.ActorA]; !ok {
		return 0, physics.ErrUnknownActor
	}
	if desc.ActorB != 0 {
		if _, ok := e.actors[desc.ActorB]; !ok {
			return 0, physics.ErrUnknownActor
		}
	}
	id := physics.JointID(e.id())
	e.joints[id] = &Joint{
		ID:               id,
		Desc:             desc,
		BreakForce:       desc.BreakForce,
		BreakTorque:      desc.BreakTorque,
		CollideConnected: desc.CollideConnected,
	}
	e.JointsCreated++
	return id, nil
}

func (e *Engine) Joint(id physics.JointID) *Joint {
	return e.joints[id]
}

func (e *Engine) JointCount() int {
	return len(e.joints)
}

func (e *Engine) SetJointBreak(joint physics.JointID, force, torque float64) {
	if j, ok := e.joints[joint]; ok {
		j.BreakForce = force
		j.BreakTorque = torque
	}
}

func (e *Engine) SetJointCollideConnected(joint physics.JointID, collide bool) {
	if j, ok := e.joints[joint]; ok {
		j.CollideConnected = collide
	}
}

func (e *Engine) ReleaseJoint(joint physics.JointID) {
	if _, ok := e.joints[joint]; !ok {
		return
	}
	delete(e.joints, joint)
	e.JointsReleased++
}

// BreakJoint removes a joint and queues the break event for the next step.
func (e *Engine) BreakJoint(joint physics.JointID) {
	j, ok := e.joints[joint]
	if !ok {
		return
	}
	delete(e.joints, joint)
	e.pending = append(e.pending, physics.Event{Kind: physics.EventJointBroken, TagA: j.Desc.Tag, Joint: joint})
}

// QueueEvent delivers ev to the handler during the next Step.
func (e *Engine) QueueEvent(ev physics.Event) {
	e.pending = append(e.pending, ev)
}

func (e *Engine) CreateController(desc physics.ControllerDesc) (physics.ControllerID, error) {
	if e.FailCreate {
		return 0, physics.ErrCreateFailed
	}
	if !e.Caps.CharacterControllers {
		return 0, physics.ErrUnsupported
	}
	id := physics.ControllerID(e.id())
	e.controllers[id] = &Controller{ID: id, Desc: desc, Foot: desc.Position, Filter: desc.Filter}
	e.ControllersCreated++
	return id, nil
}

func (e *Engine) Controller(id physics.ControllerID) *Controller {
	return e.controllers[id]
}

func (e *Engine) MoveController(ctrl physics.ControllerID, displacement mgl64.Vec3, minDist, dt float64) physics.CollisionFlags {
	c, ok := e.controllers[ctrl]
	if !ok {
		return 0
	}
	e.ControllerMoves++
	c.Moves = append(c.Moves, displacement)
	if displacement.Len() < minDist {
		return 0
	}
	var flags physics.CollisionFlags
	next := c.Foot.Add(displacement)
	if floor, ok := e.groundBelow(c.Foot); ok && next.Y() <= floor {
		next[1] = floor
		flags |= physics.CollisionDown
	}
	c.Foot = next
	return flags
}

func (e *Engine) ControllerFootPosition(ctrl physics.ControllerID) mgl64.Vec3 {
	if c, ok := e.controllers[ctrl]; ok {
		return c.Foot
	}
	return mgl64.Vec3{}
}

func (e *Engine) SetControllerFootPosition(ctrl physics.ControllerID, foot mgl64.Vec3) {
	if c, ok := e.controllers[ctrl]; ok {
		c.Foot = foot
	}
}

func (e *Engine) SetControllerFilter(ctrl physics.ControllerID, filter physics.FilterData) {
	if c, ok := e.controllers[ctrl]; ok {
		c.Filter = filter
		e.FilterPushes++
	}
}

func (e *Engine) ReleaseController(ctrl physics.ControllerID) {
	if _, ok := e.controllers[ctrl]; !ok {
		return
	}
	delete(e.controllers, ctrl)
	e.ControllerReleases++
}

func (e *Engine) ControllerCount() int {
	return len(e.controllers)
}

// groundBelow returns the highest plane at or below p.
func (e *Engine) groundBelow(p mgl64.Vec3) (float64, bool) {
	best, found := 0.0, false
	for _, a := range e.actors {
		if a.Desc.Kind != physics.BodyStatic {
			continue
		}
		for _, s := range a.Shapes {
			if s.Type != physics.ShapePlane {
				continue
			}
			h := a.Pose.Position.Y() + s.LocalPose.Position.Y()
			if h <= p.Y()+1e-9 && (!found || h > best) {
				best, found = h, true
			}
		}
	}
	return best, found
}

func (e *Engine) groundActor(height float64) *Actor {
	for _, a := range e.Actors() {
		if a.Desc.Kind != physics.BodyStatic {
			continue
		}
		for _, s := range a.Shapes {
			if s.Type == physics.ShapePlane && a.Pose.Position.Y()+s.LocalPose.Position.Y() == height {
				return a
			}
		}
	}
	return nil
}

// Raycast only hits ground planes, and only for downward rays.
func (e *Engine) Raycast(origin, dir mgl64.Vec3, maxDist float64, filter physics.QueryFilter) (physics.RaycastHit, bool) {
	return e.SweepSphere(origin, 0, dir, maxDist, filter)
}

func (e *Engine) SweepSphere(center mgl64.Vec3, radius float64, dir mgl64.Vec3, maxDist float64, filter physics.QueryFilter) (physics.RaycastHit, bool) {
	if dir.Y() >= 0 {
		return physics.RaycastHit{}, false
	}
	bottom := center.Sub(mgl64.Vec3{0, radius, 0})
	floor, ok := e.groundBelow(bottom.Add(mgl64.Vec3{0, 1e-6, 0}))
	if !ok {
		return physics.RaycastHit{}, false
	}
	a := e.groundActor(floor)
	if a == nil || (filter.Layer != 0 && a.Filter.QueryMask&filter.Layer == 0) {
		return physics.RaycastHit{}, false
	}
	dist := (bottom.Y() - floor) / -dir.Normalize().Y()
	if dist < 0 {
		dist = 0
	}
	if dist > maxDist {
		return physics.RaycastHit{}, false
	}
	return physics.RaycastHit{
		Actor:    a.ID,
		Tag:      a.Desc.Tag,
		Position: mgl64.Vec3{center.X(), floor, center.Z()},
		Normal:   mgl64.Vec3{0, 1, 0},
		Distance: dist,
	}, true
}

// Overlap reports every actor whose position lies within the query shape's
// bounding sphere.
func (e *Engine) Overlap(shape physics.ShapeDesc, pose physics.Pose, filter physics.QueryFilter) []physics.Tag {
	r := shape.Radius
	if shape.Type == physics.ShapeBox {
		r = shape.HalfExtents.Len()
	}
	var out []physics.Tag
	for _, a := range e.Actors() {
		if filter.Layer != 0 && a.Filter.QueryMask&filter.Layer == 0 {
			continue
		}
		if a.Pose.Position.Sub(pose.Position).Len() <= r {
			out = append(out, a.Desc.Tag)
		}
	}
	return out
}

func (e *Engine) SetGravity(g mgl64.Vec3) {
	e.Gravity = g
}

func (e *Engine) Step(dt float64) {
	e.Steps++
	for _, a := range e.Actors() {
		switch {
		case a.target != nil:
			a.Pose = *a.target
			a.target = nil
			a.Linear = mgl64.Vec3{}
			a.Angular = mgl64.Vec3{}
		case a.Desc.Kind == physics.BodyDynamic && !a.Props.Kinematic:
			if !a.Props.DisableGravity {
				a.Linear = a.Linear.Add(e.Gravity.Mul(dt))
			}
			a.Pose.Position = a.Pose.Position.Add(a.Linear.Mul(dt))
		default:
			continue
		}
		e.active = append(e.active, physics.ActiveTransform{Actor: a.ID, Tag: a.Desc.Tag, Pose: a.Pose})
	}
	pending := e.pending
	e.pending = nil
	for _, ev := range pending {
		if e.handler != nil {
			e.handler(ev)
		}
	}
}

func (e *Engine) DrainActiveTransforms() []physics.ActiveTransform {
	out := e.active
	e.active = nil
	return out
}

// InjectActive appends a raw entry to the next drain.
func (e *Engine) InjectActive(at physics.ActiveTransform) {
	e.active = append(e.active, at)
}

func (e *Engine) SetEventHandler(fn func(physics.Event)) {
	e.handler = fn
}

func (e *Engine) Flush() {
	e.Flushes++
	clear(e.actors)
	clear(e.joints)
	clear(e.controllers)
	e.active = nil
	e.pending = nil
}

var _ physics.Engine = (*Engine)(nil)
