package system

import (
	"slices"

	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

func (ps *PhysicsSystem) jointCandidates(w *ecs.World) []ecs.Entity {
	seen := make(map[ecs.Entity]struct{})
	ecs.ForEach(w, component.JointComponent.Kind(), func(e ecs.Entity, _ *component.Joint) {
		seen[e] = struct{}{}
	})
	for e := range ps.reg.jointByEntity {
		seen[e] = struct{}{}
	}
	for e := range ps.reg.targets {
		seen[e] = struct{}{}
	}
	out := make([]ecs.Entity, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

// syncJoints runs after syncActors so joints see this tick's actors.
func (ps *PhysicsSystem) syncJoints(w *ecs.World) {
	for _, e := range ps.jointCandidates(w) {
		ps.syncJoint(w, e)
	}
}

func (ps *PhysicsSystem) syncJoint(w *ecs.World, e ecs.Entity) {
	var j *component.Joint
	if ecs.IsAlive(w, e) {
		j, _ = ecs.Get(w, e, component.JointComponent.Kind())
	}
	ch := ps.diff.joint(e, j)
	rec, h, exists := ps.reg.jointFor(e)
	drop := func() {
		if exists {
			ps.destroyJoint(h, rec)
			exists = false
		}
	}

	if j == nil {
		drop()
		delete(ps.reg.targets, e)
		delete(ps.reg.jointFailed, e)
		return
	}

	target, retargeted := ps.resolveJointTarget(w, e, j)
	if !target.resolved {
		drop()
		return
	}
	if ch == ChangeRebuild {
		j.Broken = false
	}
	if j.Broken {
		drop()
		return
	}

	self, _, ok := ps.reg.actorFor(e)
	if !ok {
		drop()
		return
	}
	var other physics.ActorID
	if target.entity != 0 {
		trec, _, ok := ps.reg.actorFor(target.entity)
		if !ok {
			drop()
			return
		}
		other = trec.actor
	}

	if exists && (ch == ChangeRebuild || retargeted || rec.actorA != self.actor || rec.actorB != other) {
		drop()
	}
	if !exists {
		if prev, failed := ps.reg.jointFailed[e]; failed && ch == ChangeNone && prev == [2]physics.ActorID{self.actor, other} {
			return
		}
		ps.createJoint(e, j, self.actor, other)
		return
	}
	if ch == ChangeInPlace {
		ps.engine.SetJointBreak(rec.joint, j.BreakForce, j.BreakTorque)
		ps.engine.SetJointCollideConnected(rec.joint, j.CollideConnected)
		ps.stats.InPlaceUpdates++
	}
}

// resolveJointTarget returns the cached target unless the name changed or the
// cached entity died. An empty name targets the world.
func (ps *PhysicsSystem) resolveJointTarget(w *ecs.World, e ecs.Entity, j *component.Joint) (jointTarget, bool) {
	cur, ok := ps.reg.targets[e]
	if ok && cur.name == j.TargetName {
		if !cur.resolved || cur.entity == 0 || ecs.IsAlive(w, cur.entity) {
			return cur, false
		}
	}

	next := jointTarget{name: j.TargetName}
	if j.TargetName == "" {
		next.resolved = true
	} else if te, found := ecs.FindByName(w, j.TargetName); found && te != e {
		next.entity = te
		next.resolved = true
	} else {
		ps.log.Warn("joint target not found; joint destroyed",
			entityField(e), zap.String("target", j.TargetName))
	}
	ps.reg.targets[e] = next
	return next, true
}

func (ps *PhysicsSystem) createJoint(e ecs.Entity, j *component.Joint, a, b physics.ActorID) {
	desc := physics.JointDesc{
		Type:             j.Type,
		ActorA:           a,
		ActorB:           b,
		AnchorA:          j.Anchor,
		AnchorB:          j.TargetAnchor,
		Revolute:         j.Revolute,
		Prismatic:        j.Prismatic,
		Distance:         j.Distance,
		Spherical:        j.Spherical,
		SixAxis:          j.SixAxis,
		BreakForce:       j.BreakForce,
		BreakTorque:      j.BreakTorque,
		CollideConnected: j.CollideConnected,
		Tag:              ps.tag(e),
	}
	id, err := ps.engine.CreateJoint(desc)
	if err != nil {
		ps.log.Error("joint creation failed", entityField(e), zap.Stringer("type", j.Type), zap.Error(err))
		ps.reg.jointFailed[e] = [2]physics.ActorID{a, b}
		return
	}
	delete(ps.reg.jointFailed, e)
	rec := &jointRecord{entity: e, joint: id, actorA: a, actorB: b, comp: j}
	j.Handle = ps.reg.addJoint(rec)
	ps.stats.JointsCreated++
	ps.log.Debug("joint created", entityField(e), zap.Stringer("type", j.Type))
}

func (ps *PhysicsSystem) destroyJoint(h physics.Handle, rec *jointRecord) {
	ps.engine.ReleaseJoint(rec.joint)
	ps.reg.removeJoint(h)
	ps.stats.JointsDestroyed++
}

// releaseJointsOn destroys every joint attached to actor.
func (ps *PhysicsSystem) releaseJointsOn(actor physics.ActorID) {
	var doomed []physics.Handle
	ps.reg.joints.Each(func(h physics.Handle, rec *jointRecord) {
		if rec.actorA == actor || rec.actorB == actor {
			doomed = append(doomed, h)
		}
	})
	for _, h := range doomed {
		if rec, ok := ps.reg.joints.Get(h); ok {
			ps.destroyJoint(h, rec)
		}
	}
}
