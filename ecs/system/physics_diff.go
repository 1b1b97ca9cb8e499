package system

import (
	"hash/fnv"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/common"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
)

// Change classifies what the engine side of a component needs this tick.
type Change uint8

const (
	ChangeNone Change = iota
	ChangeInPlace
	ChangeRebuild
	ChangeCreate
	ChangeDestroy
)

func (c Change) String() string {
	switch c {
	case ChangeNone:
		return "unchanged"
	case ChangeInPlace:
		return "in_place"
	case ChangeRebuild:
		return "rebuild"
	case ChangeCreate:
		return "create"
	case ChangeDestroy:
		return "destroy"
	}
	return "unknown"
}

func classify(had, present, structural, runtime bool) Change {
	switch {
	case !present && !had:
		return ChangeNone
	case !present:
		return ChangeDestroy
	case !had:
		return ChangeCreate
	case !structural:
		return ChangeRebuild
	case !runtime:
		return ChangeInPlace
	default:
		return ChangeNone
	}
}

// approx compares authoring floats with the configured epsilon.
type approx float64

func (eps approx) f(a, b float64) bool {
	return common.NearlyEqual(a, b, float64(eps))
}

func (eps approx) v(a, b mgl64.Vec3) bool {
	return common.NearlyEqualVec3(a, b, float64(eps))
}

func (eps approx) material(a, b physics.Material) bool {
	return eps.f(a.Friction, b.Friction) && eps.f(a.Restitution, b.Restitution)
}

type rigidBodySnapshot struct {
	mass         float64
	centerOfMass mgl64.Vec3
	lockRotation bool
	props        physics.BodyProps
}

type surfaceSnapshot struct {
	material physics.Material
	layer    component.CollisionLayer
}

type colliderSnapshot struct {
	typ         component.ColliderType
	halfExtents mgl64.Vec3
	radius      float64
	halfHeight  float64
	axis        physics.Axis
	offset      mgl64.Vec3
	trigger     bool
	surface     surfaceSnapshot
}

type meshSnapshot struct {
	typ         component.MeshColliderType
	path        string
	scale       mgl64.Vec3
	vertexLimit int
	trigger     bool
	surface     surfaceSnapshot
}

type terrainSnapshot struct {
	hash    uint64
	surface surfaceSnapshot
}

type jointSnapshot struct {
	typ          physics.JointType
	anchor       mgl64.Vec3
	targetAnchor mgl64.Vec3
	revolute     physics.RevoluteSettings
	prismatic    physics.PrismaticSettings
	distance     physics.DistanceSettings
	spherical    physics.SphericalSettings
	sixAxis      physics.SixAxisSettings

	breakForce       float64
	breakTorque      float64
	collideConnected bool
}

type controllerSnapshot struct {
	radius        float64
	height        float64
	stepOffset    float64
	slopeLimit    float64
	contactOffset float64
	layer         component.CollisionLayer
}

// diffEngine keeps the last observed value of every shape-affecting field
// per entity per component kind.
type diffEngine struct {
	eps approx

	rigidBodies map[ecs.Entity]rigidBodySnapshot
	colliders   map[ecs.Entity]colliderSnapshot
	meshes      map[ecs.Entity]meshSnapshot
	terrains    map[ecs.Entity]terrainSnapshot
	joints      map[ecs.Entity]jointSnapshot
	controllers map[ecs.Entity]controllerSnapshot
}

func newDiffEngine(eps float64) diffEngine {
	d := diffEngine{eps: approx(eps)}
	d.reset()
	return d
}

func (d *diffEngine) reset() {
	d.rigidBodies = make(map[ecs.Entity]rigidBodySnapshot)
	d.colliders = make(map[ecs.Entity]colliderSnapshot)
	d.meshes = make(map[ecs.Entity]meshSnapshot)
	d.terrains = make(map[ecs.Entity]terrainSnapshot)
	d.joints = make(map[ecs.Entity]jointSnapshot)
	d.controllers = make(map[ecs.Entity]controllerSnapshot)
}

func bodyProps(rb *component.RigidBody) physics.BodyProps {
	return physics.BodyProps{
		Mass:                   rb.Mass,
		CenterOfMass:           rb.CenterOfMass,
		LockRotation:           rb.LockRotation,
		Kinematic:              rb.IsKinematic,
		DisableGravity:         rb.DisableGravity,
		LinearDamping:          rb.LinearDamping,
		AngularDamping:         rb.AngularDamping,
		MaxLinearVelocity:      rb.MaxLinearVelocity,
		MaxAngularVelocity:     rb.MaxAngularVelocity,
		PositionIterations:     rb.PositionIterations,
		VelocityIterations:     rb.VelocityIterations,
		SleepThreshold:         rb.SleepThreshold,
		StabilizationThreshold: rb.StabilizationThreshold,
	}
}

func (d *diffEngine) rigidBody(e ecs.Entity, rb *component.RigidBody) Change {
	prev, had := d.rigidBodies[e]
	if rb == nil {
		delete(d.rigidBodies, e)
		return classify(had, false, true, true)
	}
	cur := rigidBodySnapshot{
		mass:         rb.Mass,
		centerOfMass: rb.CenterOfMass,
		lockRotation: rb.LockRotation,
		props:        bodyProps(rb),
	}
	d.rigidBodies[e] = cur
	if !had {
		return ChangeCreate
	}
	structural := d.eps.f(prev.mass, cur.mass) &&
		d.eps.v(prev.centerOfMass, cur.centerOfMass) &&
		prev.lockRotation == cur.lockRotation
	return classify(true, true, structural, d.propsEqual(prev.props, cur.props))
}

func (d *diffEngine) propsEqual(a, b physics.BodyProps) bool {
	return a.Kinematic == b.Kinematic &&
		a.DisableGravity == b.DisableGravity &&
		d.eps.f(a.LinearDamping, b.LinearDamping) &&
		d.eps.f(a.AngularDamping, b.AngularDamping) &&
		d.eps.f(a.MaxLinearVelocity, b.MaxLinearVelocity) &&
		d.eps.f(a.MaxAngularVelocity, b.MaxAngularVelocity) &&
		a.PositionIterations == b.PositionIterations &&
		a.VelocityIterations == b.VelocityIterations &&
		d.eps.f(a.SleepThreshold, b.SleepThreshold) &&
		d.eps.f(a.StabilizationThreshold, b.StabilizationThreshold)
}

func (d *diffEngine) surfaceEqual(a, b surfaceSnapshot) bool {
	return d.eps.material(a.material, b.material) && a.layer == b.layer
}

func (d *diffEngine) collider(e ecs.Entity, c *component.Collider) Change {
	prev, had := d.colliders[e]
	if c == nil {
		delete(d.colliders, e)
		return classify(had, false, true, true)
	}
	cur := colliderSnapshot{
		typ:         c.Type,
		halfExtents: c.HalfExtents,
		radius:      c.Radius,
		halfHeight:  c.HalfHeight,
		axis:        c.Axis,
		offset:      c.Offset,
		trigger:     c.IsTrigger,
		surface: surfaceSnapshot{
			material: physics.Material{Friction: c.Friction, Restitution: c.Restitution},
			layer:    c.CollisionLayer,
		},
	}
	d.colliders[e] = cur
	if !had {
		return ChangeCreate
	}
	structural := prev.typ == cur.typ &&
		d.eps.v(prev.halfExtents, cur.halfExtents) &&
		d.eps.f(prev.radius, cur.radius) &&
		d.eps.f(prev.halfHeight, cur.halfHeight) &&
		prev.axis == cur.axis &&
		d.eps.v(prev.offset, cur.offset) &&
		prev.trigger == cur.trigger
	return classify(true, true, structural, d.surfaceEqual(prev.surface, cur.surface))
}

func (d *diffEngine) mesh(e ecs.Entity, m *component.MeshCollider) Change {
	prev, had := d.meshes[e]
	if m == nil {
		delete(d.meshes, e)
		return classify(had, false, true, true)
	}
	cur := meshSnapshot{
		typ:         m.Type,
		path:        m.MeshPath,
		scale:       m.Scale,
		vertexLimit: m.VertexLimit,
		trigger:     m.IsTrigger,
		surface: surfaceSnapshot{
			material: physics.Material{Friction: m.Friction, Restitution: m.Restitution},
			layer:    m.CollisionLayer,
		},
	}
	d.meshes[e] = cur
	if !had {
		return ChangeCreate
	}
	structural := prev.typ == cur.typ &&
		prev.path == cur.path &&
		d.eps.v(prev.scale, cur.scale) &&
		prev.vertexLimit == cur.vertexLimit &&
		prev.trigger == cur.trigger
	return classify(true, true, structural, d.surfaceEqual(prev.surface, cur.surface))
}

func (d *diffEngine) terrain(e ecs.Entity, t *component.Terrain) Change {
	prev, had := d.terrains[e]
	if t == nil {
		delete(d.terrains, e)
		return classify(had, false, true, true)
	}
	cur := terrainSnapshot{
		hash: terrainHash(t),
		surface: surfaceSnapshot{
			material: physics.Material{Friction: t.Friction, Restitution: t.Restitution},
			layer:    t.CollisionLayer,
		},
	}
	d.terrains[e] = cur
	if !had {
		return ChangeCreate
	}
	return classify(true, true, prev.hash == cur.hash, d.surfaceEqual(prev.surface, cur.surface))
}

// terrainHashSamples bounds how many heights feed the terrain hash.
const terrainHashSamples = 256

// terrainHash mixes the dimensions, the scale bit patterns, the sample count,
// and a fixed-stride subsample of the heights. The last sample is always
// included.
func terrainHash(t *component.Terrain) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf[:])
	}
	put(uint64(t.Rows))
	put(uint64(t.Cols))
	put(math.Float64bits(t.HeightScale))
	put(math.Float64bits(t.RowScale))
	put(math.Float64bits(t.ColScale))
	n := len(t.Heights)
	put(uint64(n))
	if n == 0 {
		return h.Sum64()
	}
	stride := (n + terrainHashSamples - 1) / terrainHashSamples
	for i := 0; i < n; i += stride {
		put(math.Float64bits(t.Heights[i]))
	}
	put(math.Float64bits(t.Heights[n-1]))
	return h.Sum64()
}

func snapshotJoint(j *component.Joint) jointSnapshot {
	return jointSnapshot{
		typ:              j.Type,
		anchor:           j.Anchor,
		targetAnchor:     j.TargetAnchor,
		revolute:         j.Revolute,
		prismatic:        j.Prismatic,
		distance:         j.Distance,
		spherical:        j.Spherical,
		sixAxis:          j.SixAxis,
		breakForce:       j.BreakForce,
		breakTorque:      j.BreakTorque,
		collideConnected: j.CollideConnected,
	}
}

func (d *diffEngine) joint(e ecs.Entity, j *component.Joint) Change {
	prev, had := d.joints[e]
	if j == nil {
		delete(d.joints, e)
		return classify(had, false, true, true)
	}
	cur := snapshotJoint(j)
	d.joints[e] = cur
	if !had {
		return ChangeCreate
	}
	runtime := d.eps.f(prev.breakForce, cur.breakForce) &&
		d.eps.f(prev.breakTorque, cur.breakTorque) &&
		prev.collideConnected == cur.collideConnected
	return classify(true, true, d.jointStructEqual(prev, cur), runtime)
}

// jointStructEqual compares only the settings of the active joint type.
func (d *diffEngine) jointStructEqual(a, b jointSnapshot) bool {
	if a.typ != b.typ || !d.eps.v(a.anchor, b.anchor) || !d.eps.v(a.targetAnchor, b.targetAnchor) {
		return false
	}
	switch a.typ {
	case physics.JointRevolute:
		return d.limitEqual(a.revolute.Limit, b.revolute.Limit) && d.driveEqual(a.revolute.Drive, b.revolute.Drive)
	case physics.JointPrismatic:
		return a.prismatic.Axis == b.prismatic.Axis && d.limitEqual(a.prismatic.Limit, b.prismatic.Limit)
	case physics.JointDistance:
		x, y := a.distance, b.distance
		return x.MinEnabled == y.MinEnabled && x.MaxEnabled == y.MaxEnabled &&
			d.eps.f(x.Min, y.Min) && d.eps.f(x.Max, y.Max) &&
			x.SpringEnabled == y.SpringEnabled &&
			d.eps.f(x.Stiffness, y.Stiffness) && d.eps.f(x.Damping, y.Damping)
	case physics.JointSpherical:
		x, y := a.spherical, b.spherical
		return x.LimitEnabled == y.LimitEnabled && d.eps.f(x.YAngle, y.YAngle) && d.eps.f(x.ZAngle, y.ZAngle)
	case physics.JointSixAxis:
		x, y := a.sixAxis, b.sixAxis
		if x.Motion != y.Motion {
			return false
		}
		for i := range x.Drives {
			if !d.driveEqual(x.Drives[i], y.Drives[i]) {
				return false
			}
		}
		return d.eps.f(x.LinearLimit, y.LinearLimit) &&
			d.eps.f(x.TwistLower, y.TwistLower) && d.eps.f(x.TwistUpper, y.TwistUpper) &&
			d.eps.f(x.Swing1Limit, y.Swing1Limit) && d.eps.f(x.Swing2Limit, y.Swing2Limit)
	default:
		return true
	}
}

func (d *diffEngine) limitEqual(a, b physics.Limit) bool {
	return a.Enabled == b.Enabled && d.eps.f(a.Lower, b.Lower) && d.eps.f(a.Upper, b.Upper)
}

func (d *diffEngine) driveEqual(a, b physics.Drive) bool {
	return a.Enabled == b.Enabled &&
		d.eps.f(a.Velocity, b.Velocity) &&
		d.eps.f(a.Stiffness, b.Stiffness) &&
		d.eps.f(a.Damping, b.Damping) &&
		d.eps.f(a.ForceLimit, b.ForceLimit)
}

func (d *diffEngine) controller(e ecs.Entity, c *component.CharacterController) Change {
	prev, had := d.controllers[e]
	if c == nil {
		delete(d.controllers, e)
		return classify(had, false, true, true)
	}
	cur := controllerSnapshot{
		radius:        c.Radius,
		height:        c.Height,
		stepOffset:    c.StepOffset,
		slopeLimit:    c.SlopeLimit,
		contactOffset: c.ContactOffset,
		layer:         c.CollisionLayer,
	}
	d.controllers[e] = cur
	if !had {
		return ChangeCreate
	}
	structural := d.eps.f(prev.radius, cur.radius) &&
		d.eps.f(prev.height, cur.height) &&
		d.eps.f(prev.stepOffset, cur.stepOffset) &&
		d.eps.f(prev.slopeLimit, cur.slopeLimit) &&
		d.eps.f(prev.contactOffset, cur.contactOffset)
	return classify(true, true, structural, prev.layer == cur.layer)
}
