// Package chipmunk implements physics.Engine on top of the Chipmunk2D port.
// The simulation runs in the XY plane; the Z coordinate of every actor and
// controller is carried through unchanged and rotations are about Z.
package chipmunk

import (
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

const (
	defaultIterations  = 20
	defaultMaxConvex   = 64
	defaultPlaneExtent = 1e4

	// every shape uses one collision type so a single handler sees all pairs
	bridgeCollisionType cp.CollisionType = 1
)

type Options struct {
	Logger            *zap.Logger
	Iterations        uint
	MaxConvexVertices int
	// PlaneExtent is the half length of the segment that stands in for a plane.
	PlaneExtent float64
}

// Engine is a physics.Engine backed by a cp.Space.
type Engine struct {
	log  *zap.Logger
	opts Options

	space   *cp.Space
	gravity mgl64.Vec3

	nextActor uint32
	nextJoint uint32
	nextCtrl  uint32

	actors      map[physics.ActorID]*actor
	joints      map[physics.JointID]*joint
	controllers map[physics.ControllerID]*controller

	touching map[pairKey]int
	events   []physics.Event
	active   []physics.ActiveTransform
	handler  func(physics.Event)
}

type actor struct {
	id     physics.ActorID
	kind   physics.BodyKind
	body   *cp.Body
	tag    physics.Tag
	z      float64
	props  physics.BodyProps
	shapes []attached

	filter   physics.FilterData
	material physics.Material

	target    *physics.Pose
	lastPos   cp.Vector
	lastAngle float64
}

// attached is one ShapeDesc and the cp shapes built for it.
type attached struct {
	desc  physics.ShapeDesc
	parts []*cp.Shape
}

// shapeData is stored in cp.Shape.UserData.
type shapeData struct {
	actor   physics.ActorID
	ctrl    physics.ControllerID
	tag     physics.Tag
	filter  physics.FilterData
	trigger bool
}

func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Iterations == 0 {
		opts.Iterations = defaultIterations
	}
	if opts.MaxConvexVertices <= 0 {
		opts.MaxConvexVertices = defaultMaxConvex
	}
	if opts.PlaneExtent <= 0 {
		opts.PlaneExtent = defaultPlaneExtent
	}
	e := &Engine{
		log:     opts.Logger.Named("chipmunk"),
		opts:    opts,
		gravity: mgl64.Vec3{0, -9.81, 0},
	}
	e.reset()
	return e
}

func (e *Engine) reset() {
	space := cp.NewSpace()
	space.Iterations = e.opts.Iterations
	space.SetGravity(planar(e.gravity))

	handler := space.NewCollisionHandler(bridgeCollisionType, bridgeCollisionType)
	handler.BeginFunc = func(arb *cp.Arbiter, _ *cp.Space, _ interface{}) bool {
		e.onContact(arb, true)
		return true
	}
	handler.SeparateFunc = func(arb *cp.Arbiter, _ *cp.Space, _ interface{}) {
		e.onContact(arb, false)
	}

	e.space = space
	e.actors = make(map[physics.ActorID]*actor)
	e.joints = make(map[physics.JointID]*joint)
	e.controllers = make(map[physics.ControllerID]*controller)
	e.touching = make(map[pairKey]int)
	e.events = nil
	e.active = nil
}

// Space exposes the underlying space for debug drawing.
func (e *Engine) Space() *cp.Space {
	return e.space
}

func (e *Engine) Capabilities() physics.Capabilities {
	return physics.Capabilities{
		MeshCooking:          true,
		CharacterControllers: true,
		HeightFields:         true,
		MaxConvexVertices:    e.opts.MaxConvexVertices,
	}
}

func (e *Engine) CreateActorWithShape(desc physics.ActorDesc, shape physics.ShapeDesc) (physics.ActorID, error) {
	id, err := e.CreateActor(desc)
	if err != nil {
		return 0, err
	}
	if _, err := e.AttachShape(id, shape); err != nil {
		e.ReleaseActor(id)
		return 0, err
	}
	return id, nil
}

func (e *Engine) CreateActor(desc physics.ActorDesc) (physics.ActorID, error) {
	var body *cp.Body
	switch {
	case desc.Kind == physics.BodyStatic:
		body = cp.NewStaticBody()
	case desc.Kind == physics.BodyKinematic || desc.Body.Kinematic:
		body = cp.NewKinematicBody()
	default:
		mass := desc.Body.Mass
		if mass <= 0 {
			mass = 1
		}
		body = cp.NewBody(mass, cp.MomentForBox(mass, 1, 1))
	}

	e.nextActor++
	a := &actor{
		id:    physics.ActorID(e.nextActor),
		kind:  desc.Kind,
		body:  body,
		tag:   desc.Tag,
		z:     desc.Pose.Position.Z(),
		props: desc.Body,
	}
	body.UserData = a.id
	body.SetPosition(planar(desc.Pose.Position))
	body.SetAngle(zAngle(desc.Pose.Rotation))
	if desc.Kind == physics.BodyDynamic {
		body.SetVelocityUpdateFunc(a.updateVelocity)
	}
	a.lastPos, a.lastAngle = body.Position(), body.Angle()

	e.space.AddBody(body)
	e.actors[a.id] = a
	return a.id, nil
}

func (e *Engine) AttachShape(id physics.ActorID, desc physics.ShapeDesc) (physics.ShapeID, error) {
	a := e.actors[id]
	if a == nil {
		return 0, physics.ErrUnknownActor
	}
	parts, err := e.buildShape(a.body, desc)
	if err != nil {
		return 0, err
	}
	data := &shapeData{actor: a.id, tag: a.tag, filter: desc.Filter, trigger: desc.Trigger}
	for _, s := range parts {
		s.UserData = data
		s.SetCollisionType(bridgeCollisionType)
		s.SetSensor(desc.Trigger)
		s.SetFriction(desc.Material.Friction)
		s.SetElasticity(desc.Material.Restitution)
		s.SetFilter(shapeFilter(desc.Filter))
		e.space.AddShape(s)
	}
	a.shapes = append(a.shapes, attached{desc: desc, parts: parts})
	a.filter = desc.Filter
	a.material = desc.Material
	e.updateMass(a)
	return physics.ShapeID(len(a.shapes)), nil
}

func (e *Engine) DetachShapes(id physics.ActorID) {
	a := e.actors[id]
	if a == nil {
		return
	}
	for _, at := range a.shapes {
		for _, s := range at.parts {
			e.space.RemoveShape(s)
		}
	}
	a.shapes = nil
	e.updateMass(a)
}

func (e *Engine) ReleaseActor(id physics.ActorID) {
	a := e.actors[id]
	if a == nil {
		return
	}
	for _, j := range e.jointsOn(id) {
		e.removeJoint(j)
	}
	e.DetachShapes(id)
	e.space.RemoveBody(a.body)
	delete(e.actors, id)
}

func (e *Engine) ActorPose(id physics.ActorID) physics.Pose {
	a := e.actors[id]
	if a == nil {
		return physics.IdentityPose()
	}
	return a.pose()
}

func (a *actor) pose() physics.Pose {
	p := a.body.Position()
	return physics.Pose{
		Position: mgl64.Vec3{p.X, p.Y, a.z},
		Rotation: mgl64.QuatRotate(a.body.Angle(), mgl64.Vec3{0, 0, 1}),
	}
}

func (e *Engine) SetActorPose(id physics.ActorID, pose physics.Pose) {
	a := e.actors[id]
	if a == nil {
		return
	}
	a.z = pose.Position.Z()
	a.target = nil
	if a.body.GetType() == cp.BODY_STATIC {
		// static shapes keep their cached bounds until re-added
		e.reindex(a, func() {
			a.body.SetPosition(planar(pose.Position))
			a.body.SetAngle(zAngle(pose.Rotation))
		})
		return
	}
	a.body.SetPosition(planar(pose.Position))
	a.body.SetAngle(zAngle(pose.Rotation))
}

func (e *Engine) reindex(a *actor, move func()) {
	for _, at := range a.shapes {
		for _, s := range at.parts {
			e.space.RemoveShape(s)
		}
	}
	move()
	for _, at := range a.shapes {
		for _, s := range at.parts {
			e.space.AddShape(s)
		}
	}
}

func (e *Engine) SetKinematicTarget(id physics.ActorID, pose physics.Pose) {
	a := e.actors[id]
	if a == nil || a.body.GetType() != cp.BODY_KINEMATIC {
		return
	}
	a.target = &pose
}

func (e *Engine) Velocities(id physics.ActorID) (linear, angular mgl64.Vec3) {
	a := e.actors[id]
	if a == nil {
		return
	}
	v := a.body.Velocity()
	return mgl64.Vec3{v.X, v.Y, 0}, mgl64.Vec3{0, 0, a.body.AngularVelocity()}
}

func (e *Engine) SetVelocities(id physics.ActorID, linear, angular mgl64.Vec3) {
	a := e.actors[id]
	if a == nil || a.body.GetType() == cp.BODY_STATIC {
		return
	}
	a.body.SetVelocityVector(planar(linear))
	a.body.SetAngularVelocity(angular.Z())
}

// SetBodyProps patches a rigid body in place. Toggling Kinematic switches the
// cp body type; static actors are left alone.
func (e *Engine) SetBodyProps(id physics.ActorID, props physics.BodyProps) {
	a := e.actors[id]
	if a == nil || a.kind == physics.BodyStatic {
		return
	}
	a.props = props
	if props.Kinematic {
		a.kind = physics.BodyKinematic
		a.body.SetType(cp.BODY_KINEMATIC)
		return
	}
	a.kind = physics.BodyDynamic
	if a.body.GetType() != cp.BODY_DYNAMIC {
		a.target = nil
		a.body.SetType(cp.BODY_DYNAMIC)
		a.body.SetVelocityUpdateFunc(a.updateVelocity)
		a.lastPos, a.lastAngle = a.body.Position(), a.body.Angle()
	}
	e.updateMass(a)
}

func (e *Engine) SetShapeFilter(id physics.ActorID, filter physics.FilterData) {
	a := e.actors[id]
	if a == nil {
		return
	}
	a.filter = filter
	for i := range a.shapes {
		a.shapes[i].desc.Filter = filter
		for _, s := range a.shapes[i].parts {
			s.UserData.(*shapeData).filter = filter
			s.SetFilter(shapeFilter(filter))
		}
	}
}

func (e *Engine) SetShapeMaterial(id physics.ActorID, mat physics.Material) {
	a := e.actors[id]
	if a == nil {
		return
	}
	a.material = mat
	for i := range a.shapes {
		a.shapes[i].desc.Material = mat
		for _, s := range a.shapes[i].parts {
			s.SetFriction(mat.Friction)
			s.SetElasticity(mat.Restitution)
		}
	}
}

// updateMass sets the mass and moment of a dynamic body from its props and
// the shapes attached to it.
func (e *Engine) updateMass(a *actor) {
	if a.body.GetType() != cp.BODY_DYNAMIC {
		return
	}
	mass := a.props.Mass
	if mass <= 0 {
		mass = 1
	}
	moment := 0.0
	if n := len(a.shapes); n > 0 {
		for _, at := range a.shapes {
			moment += shapeMoment(at.desc, mass/float64(n))
		}
	}
	if moment <= 0 || math.IsNaN(moment) {
		moment = cp.MomentForBox(mass, 1, 1)
	}
	if a.props.LockRotation {
		moment = math.Inf(1)
		a.body.SetAngularVelocity(0)
	}
	a.body.SetMass(mass)
	a.body.SetMoment(moment)
}

// updateVelocity applies the per-body gravity, damping, and velocity caps.
func (a *actor) updateVelocity(body *cp.Body, gravity cp.Vector, damping, dt float64) {
	p := a.props
	if p.DisableGravity {
		gravity = cp.Vector{}
	}
	if p.LinearDamping > 0 {
		damping *= math.Exp(-p.LinearDamping * dt)
	}
	cp.BodyUpdateVelocity(body, gravity, damping, dt)

	w := body.AngularVelocity()
	if p.AngularDamping > 0 {
		w *= math.Exp(-p.AngularDamping * dt)
	}
	if p.MaxAngularVelocity > 0 && math.Abs(w) > p.MaxAngularVelocity {
		w = math.Copysign(p.MaxAngularVelocity, w)
	}
	body.SetAngularVelocity(w)

	if p.MaxLinearVelocity > 0 {
		if v := body.Velocity(); v.Length() > p.MaxLinearVelocity {
			body.SetVelocityVector(v.Normalize().Mult(p.MaxLinearVelocity))
		}
	}
}

func (e *Engine) SetGravity(g mgl64.Vec3) {
	e.gravity = g
	e.space.SetGravity(planar(g))
}

func (e *Engine) Step(dt float64) {
	if dt <= 0 {
		return
	}
	kinematic := e.applyTargets(dt)

	e.space.Step(dt)

	for _, a := range kinematic {
		a.body.SetPosition(planar(a.target.Position))
		a.body.SetAngle(zAngle(a.target.Rotation))
		a.body.SetVelocity(0, 0)
		a.body.SetAngularVelocity(0)
		a.z = a.target.Position.Z()
		a.target = nil
	}

	e.checkJointBreaks(dt)
	e.collectActive()
	e.deliverEvents()
}

// applyTargets gives every kinematic body with a pending target the velocity
// that reaches it in one step.
func (e *Engine) applyTargets(dt float64) []*actor {
	var moved []*actor
	for _, id := range e.actorIDs() {
		a := e.actors[id]
		if a.target == nil {
			continue
		}
		to := planar(a.target.Position)
		a.body.SetVelocityVector(to.Sub(a.body.Position()).Mult(1 / dt))
		a.body.SetAngularVelocity(angleDelta(a.body.Angle(), zAngle(a.target.Rotation)) / dt)
		moved = append(moved, a)
	}
	return moved
}

func (e *Engine) collectActive() {
	for _, id := range e.actorIDs() {
		a := e.actors[id]
		if a.body.GetType() != cp.BODY_DYNAMIC || a.body.IsSleeping() {
			continue
		}
		pos, angle := a.body.Position(), a.body.Angle()
		if pos == a.lastPos && angle == a.lastAngle {
			continue
		}
		a.lastPos, a.lastAngle = pos, angle
		e.active = append(e.active, physics.ActiveTransform{Actor: a.id, Tag: a.tag, Pose: a.pose()})
	}
}

func (e *Engine) actorIDs() []physics.ActorID {
	ids := make([]physics.ActorID, 0, len(e.actors))
	for id := range e.actors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *Engine) DrainActiveTransforms() []physics.ActiveTransform {
	out := e.active
	e.active = nil
	return out
}

func (e *Engine) SetEventHandler(fn func(physics.Event)) {
	e.handler = fn
}

func (e *Engine) deliverEvents() {
	events := e.events
	e.events = nil
	if e.handler == nil {
		return
	}
	for _, ev := range events {
		e.handler(ev)
	}
}

// Flush drops every body, shape, constraint, and controller by replacing the space.
func (e *Engine) Flush() {
	e.log.Debug("flushing space",
		zap.Int("actors", len(e.actors)),
		zap.Int("joints", len(e.joints)),
		zap.Int("controllers", len(e.controllers)))
	e.reset()
}

func planar(v mgl64.Vec3) cp.Vector {
	return cp.Vector{X: v.X(), Y: v.Y()}
}

// zAngle extracts the rotation about Z from q.
func zAngle(q mgl64.Quat) float64 {
	if q == (mgl64.Quat{}) {
		return 0
	}
	q = q.Normalize()
	return 2 * math.Atan2(q.V.Z(), q.W)
}

func angleDelta(from, to float64) float64 {
	d := math.Mod(to-from, 2*math.Pi)
	if d > math.Pi {
		d -= 2 * math.Pi
	} else if d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

func shapeFilter(f physics.FilterData) cp.ShapeFilter {
	return cp.ShapeFilter{
		Group:      cp.NO_GROUP,
		Categories: uint(f.Layer),
		Mask:       uint(f.CollideMask),
	}
}

var _ physics.Engine = (*Engine)(nil)
