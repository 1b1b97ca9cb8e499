package system

import (
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
)

// ownerRole names the component that owns an actor record.
type ownerRole uint8

const (
	ownerNone ownerRole = iota
	ownerRigidBody
	ownerCollider
	ownerMeshCollider
	ownerTerrain
)

func (r ownerRole) String() string {
	switch r {
	case ownerRigidBody:
		return "rigid_body"
	case ownerCollider:
		return "collider"
	case ownerMeshCollider:
		return "mesh_collider"
	case ownerTerrain:
		return "terrain"
	default:
		return "none"
	}
}

// shapeSource is the component whose shapes live on an actor.
type shapeSource uint8

const (
	shapesNone shapeSource = iota
	shapesCollider
	shapesMesh
	shapesTerrain
)

type actorRecord struct {
	entity ecs.Entity
	actor  physics.ActorID
	role   ownerRole
	kind   physics.BodyKind
	shapes shapeSource

	// Components whose Handle field points at this record.
	rb      *component.RigidBody
	col     *component.Collider
	mesh    *component.MeshCollider
	terrain *component.Terrain
}

func (r *actorRecord) clearHandles(h physics.Handle) {
	if r.rb != nil && r.rb.Handle == h {
		r.rb.Handle = physics.Handle{}
	}
	if r.col != nil && r.col.Handle == h {
		r.col.Handle = physics.Handle{}
	}
	if r.mesh != nil && r.mesh.Handle == h {
		r.mesh.Handle = physics.Handle{}
	}
	if r.terrain != nil && r.terrain.Handle == h {
		r.terrain.Handle = physics.Handle{}
	}
}

type jointRecord struct {
	entity ecs.Entity
	joint  physics.JointID
	actorA physics.ActorID
	actorB physics.ActorID
	comp   *component.Joint
}

type controllerRecord struct {
	entity ecs.Entity
	ctrl   physics.ControllerID
	comp   *component.CharacterController
}

// registry maps entities to engine objects. Every record lives in a
// generation-checked arena, and actorOwner is the authority used to validate
// tags coming back from the engine.
type registry struct {
	actors      physics.Arena[*actorRecord]
	joints      physics.Arena[*jointRecord]
	controllers physics.Arena[*controllerRecord]

	actorByEntity map[ecs.Entity]physics.Handle
	jointByEntity map[ecs.Entity]physics.Handle
	ctrlByEntity  map[ecs.Entity]physics.Handle
	jointByID     map[physics.JointID]physics.Handle
	actorOwner    map[physics.ActorID]ecs.Entity

	// failed holds entities whose last creation attempt failed. They are
	// retried only after their components change.
	failed map[ecs.Entity]struct{}

	targets     map[ecs.Entity]jointTarget
	jointFailed map[ecs.Entity][2]physics.ActorID
	ctrlFailed  map[ecs.Entity]struct{}
}

// jointTarget caches the entity a joint's TargetName resolved to.
type jointTarget struct {
	name     string
	entity   ecs.Entity
	resolved bool
}

func newRegistry() registry {
	return registry{
		actorByEntity: make(map[ecs.Entity]physics.Handle),
		jointByEntity: make(map[ecs.Entity]physics.Handle),
		ctrlByEntity:  make(map[ecs.Entity]physics.Handle),
		jointByID:     make(map[physics.JointID]physics.Handle),
		actorOwner:    make(map[physics.ActorID]ecs.Entity),
		failed:        make(map[ecs.Entity]struct{}),
		targets:       make(map[ecs.Entity]jointTarget),
		jointFailed:   make(map[ecs.Entity][2]physics.ActorID),
		ctrlFailed:    make(map[ecs.Entity]struct{}),
	}
}

// reset drops every record and mapping. The arenas are cleared rather than
// replaced so their slot generations keep counting up.
func (r *registry) reset() {
	actors, joints, ctrls := r.actors, r.joints, r.controllers
	actors.Clear()
	joints.Clear()
	ctrls.Clear()
	*r = newRegistry()
	r.actors, r.joints, r.controllers = actors, joints, ctrls
}

func (r *registry) setEpoch(epoch uint64) {
	r.actors.SetEpoch(epoch)
	r.joints.SetEpoch(epoch)
	r.controllers.SetEpoch(epoch)
}

func (r *registry) actorFor(e ecs.Entity) (*actorRecord, physics.Handle, bool) {
	h, ok := r.actorByEntity[e]
	if !ok {
		return nil, physics.Handle{}, false
	}
	rec, ok := r.actors.Get(h)
	return rec, h, ok
}

func (r *registry) addActor(rec *actorRecord) physics.Handle {
	h := r.actors.Insert(rec)
	r.actorByEntity[rec.entity] = h
	r.actorOwner[rec.actor] = rec.entity
	return h
}

func (r *registry) removeActor(h physics.Handle) (*actorRecord, bool) {
	rec, ok := r.actors.Remove(h)
	if !ok {
		return nil, false
	}
	delete(r.actorByEntity, rec.entity)
	delete(r.actorOwner, rec.actor)
	rec.clearHandles(h)
	return rec, true
}

func (r *registry) jointFor(e ecs.Entity) (*jointRecord, physics.Handle, bool) {
	h, ok := r.jointByEntity[e]
	if !ok {
		return nil, physics.Handle{}, false
	}
	rec, ok := r.joints.Get(h)
	return rec, h, ok
}

func (r *registry) addJoint(rec *jointRecord) physics.Handle {
	h := r.joints.Insert(rec)
	r.jointByEntity[rec.entity] = h
	r.jointByID[rec.joint] = h
	return h
}

func (r *registry) removeJoint(h physics.Handle) (*jointRecord, bool) {
	rec, ok := r.joints.Remove(h)
	if !ok {
		return nil, false
	}
	delete(r.jointByEntity, rec.entity)
	delete(r.jointByID, rec.joint)
	if rec.comp != nil && rec.comp.Handle == h {
		rec.comp.Handle = physics.Handle{}
	}
	return rec, true
}

func (r *registry) controllerFor(e ecs.Entity) (*controllerRecord, physics.Handle, bool) {
	h, ok := r.ctrlByEntity[e]
	if !ok {
		return nil, physics.Handle{}, false
	}
	rec, ok := r.controllers.Get(h)
	return rec, h, ok
}

func (r *registry) addController(rec *controllerRecord) physics.Handle {
	h := r.controllers.Insert(rec)
	r.ctrlByEntity[rec.entity] = h
	return h
}

func (r *registry) removeController(h physics.Handle) (*controllerRecord, bool) {
	rec, ok := r.controllers.Remove(h)
	if !ok {
		return nil, false
	}
	delete(r.ctrlByEntity, rec.entity)
	if rec.comp != nil && rec.comp.Handle == h {
		rec.comp.Handle = physics.Handle{}
	}
	return rec, true
}

// teardown releases actors, then joints, then controllers.
func (r *registry) teardown(engine physics.Engine, stats *TickStats) {
	var actors []physics.Handle
	r.actors.Each(func(h physics.Handle, _ *actorRecord) { actors = append(actors, h) })
	for _, h := range actors {
		if rec, ok := r.removeActor(h); ok {
			engine.ReleaseActor(rec.actor)
			stats.ActorsDestroyed++
		}
	}

	var joints []physics.Handle
	r.joints.Each(func(h physics.Handle, _ *jointRecord) { joints = append(joints, h) })
	for _, h := range joints {
		if rec, ok := r.removeJoint(h); ok {
			engine.ReleaseJoint(rec.joint)
			stats.JointsDestroyed++
		}
	}

	var ctrls []physics.Handle
	r.controllers.Each(func(h physics.Handle, _ *controllerRecord) { ctrls = append(ctrls, h) })
	for _, h := range ctrls {
		if rec, ok := r.removeController(h); ok {
			engine.ReleaseController(rec.ctrl)
		}
	}
}

// ValidateAndGetActor resolves a handle minted by this system. Stale handles,
// including ones from an earlier scene epoch, report false.
func (ps *PhysicsSystem) ValidateAndGetActor(h physics.Handle) (physics.ActorID, bool) {
	if ps == nil || h.Epoch() != ps.epoch {
		return 0, false
	}
	rec, ok := ps.reg.actors.Get(h)
	if !ok {
		return 0, false
	}
	return rec.actor, true
}

func (ps *PhysicsSystem) ValidateAndGetJoint(h physics.Handle) (physics.JointID, bool) {
	if ps == nil || h.Epoch() != ps.epoch {
		return 0, false
	}
	rec, ok := ps.reg.joints.Get(h)
	if !ok {
		return 0, false
	}
	return rec.joint, true
}

func (ps *PhysicsSystem) ValidateAndGetController(h physics.Handle) (physics.ControllerID, bool) {
	if ps == nil || h.Epoch() != ps.epoch {
		return 0, false
	}
	rec, ok := ps.reg.controllers.Get(h)
	if !ok {
		return 0, false
	}
	return rec.ctrl, true
}

// ValidateTag decodes an engine user-data tag. The tag must carry the current
// epoch and name an entity that still owns an engine object here.
func (ps *PhysicsSystem) ValidateTag(t physics.Tag) (ecs.Entity, bool) {
	if ps == nil {
		return 0, false
	}
	raw, ok := t.Resolve(ps.epoch)
	if !ok {
		return 0, false
	}
	e := ecs.Entity(raw)
	if _, ok := ps.reg.actorByEntity[e]; ok {
		return e, true
	}
	if _, ok := ps.reg.ctrlByEntity[e]; ok {
		return e, true
	}
	if _, ok := ps.reg.jointByEntity[e]; ok {
		return e, true
	}
	if ps.ground.actor != 0 && ps.ground.owner == e {
		return e, true
	}
	return 0, false
}

// ActorCount reports live actor records, ground plane excluded.
func (ps *PhysicsSystem) ActorCount() int {
	return ps.reg.actors.Len()
}

func (ps *PhysicsSystem) JointCount() int {
	return ps.reg.joints.Len()
}

func (ps *PhysicsSystem) ControllerCount() int {
	return ps.reg.controllers.Len()
}
