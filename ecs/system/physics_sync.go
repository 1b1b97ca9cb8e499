package system

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/common"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
)

func transformPose(t *component.Transform) physics.Pose {
	if t == nil {
		return physics.IdentityPose()
	}
	rot := t.Rotation
	if rot == (mgl64.Quat{}) {
		rot = mgl64.QuatIdent()
	}
	return physics.Pose{Position: t.Position, Rotation: rot}
}

// writeTransform copies pose into t, keeping its scale, and marks it dirty.
func writeTransform(w *ecs.World, e ecs.Entity, t *component.Transform, pose physics.Pose) {
	if t == nil {
		return
	}
	t.Position = pose.Position
	t.Rotation = pose.Rotation
	w.MarkTransformDirty(e)
}

func (ps *PhysicsSystem) poseEqual(a, b physics.Pose) bool {
	eps := float64(ps.diff.eps)
	return common.NearlyEqualVec3(a.Position, b.Position, eps) && common.NearlyEqualQuat(a.Rotation, b.Rotation, eps)
}

// pushTransforms writes authoring transforms into the engine. Teleports
// force the pose; kinematic bodies get a target; static actors follow their
// transform. Dynamic bodies are left to the simulation.
func (ps *PhysicsSystem) pushTransforms(w *ecs.World) {
	ps.reg.actors.Each(func(_ physics.Handle, rec *actorRecord) {
		t, ok := ecs.Get(w, rec.entity, component.TransformComponent.Kind())
		if !ok {
			return
		}
		pose := transformPose(t)

		if rec.rb != nil && rec.rb.Teleport {
			ps.engine.SetActorPose(rec.actor, pose)
			if rec.rb.ZeroVelocityOnTeleport {
				ps.engine.SetVelocities(rec.actor, mgl64.Vec3{}, mgl64.Vec3{})
			}
			rec.rb.Teleport = false
			ps.poses[rec.entity] = pose
			return
		}

		if last, ok := ps.poses[rec.entity]; ok && ps.poseEqual(last, pose) {
			return
		}
		switch rec.kind {
		case physics.BodyKinematic:
			ps.engine.SetKinematicTarget(rec.actor, pose)
		case physics.BodyStatic:
			ps.engine.SetActorPose(rec.actor, pose)
		default:
			return
		}
		ps.poses[rec.entity] = pose
	})
}

// pullTransforms copies the poses of bodies the step moved back into their
// transforms. Entries whose tag is from another epoch, or whose actor is not
// the one this registry holds for the entity, are dropped.
func (ps *PhysicsSystem) pullTransforms(w *ecs.World) {
	for _, at := range ps.engine.DrainActiveTransforms() {
		raw, ok := at.Tag.Resolve(ps.epoch)
		if !ok {
			continue
		}
		e := ecs.Entity(raw)
		if owner, ok := ps.reg.actorOwner[at.Actor]; !ok || owner != e {
			continue
		}
		rec, _, ok := ps.reg.actorFor(e)
		if !ok || rec.actor != at.Actor || rec.kind != physics.BodyDynamic {
			continue
		}
		t, ok := ecs.Get(w, e, component.TransformComponent.Kind())
		if !ok {
			continue
		}
		writeTransform(w, e, t, at.Pose)
		ps.poses[e] = at.Pose
		ps.stats.TransformsPulled++
	}
}
