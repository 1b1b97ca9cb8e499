package system

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

// ContactEvent is an engine event with its tags decoded to entities. For
// joint breaks EntityA is the entity carrying the joint.
type ContactEvent struct {
	Kind    physics.EventKind
	EntityA ecs.Entity
	EntityB ecs.Entity
	Point   mgl64.Vec3
	Normal  mgl64.Vec3
	Impulse float64
}

// EventTypePrefix prefixes the world event types the system pushes.
const EventTypePrefix = "physics."

// OnContact registers a callback for contact, trigger, and joint-break
// events. Callbacks run during Update, right after the step.
func (ps *PhysicsSystem) OnContact(fn func(ContactEvent)) {
	if ps == nil || fn == nil {
		return
	}
	ps.handlers = append(ps.handlers, fn)
}

func (ps *PhysicsSystem) onEngineEvent(ev physics.Event) {
	ps.pending = append(ps.pending, ev)
}

func (ps *PhysicsSystem) dispatchEvents(w *ecs.World) {
	events := ps.pending
	ps.pending = nil
	for _, ev := range events {
		var (
			ce ContactEvent
			ok bool
		)
		if ev.Kind == physics.EventJointBroken {
			ce, ok = ps.jointBroken(ev)
		} else {
			ce, ok = ps.decodeContact(ev)
		}
		if !ok {
			continue
		}
		for _, fn := range ps.handlers {
			fn(ce)
		}
		w.Events().Push(ecs.Event{Type: EventTypePrefix + ev.Kind.String(), Data: ce})
		ps.stats.EventsDispatched++
	}
}

func (ps *PhysicsSystem) decodeContact(ev physics.Event) (ContactEvent, bool) {
	a, okA := ps.ValidateTag(ev.TagA)
	b, okB := ps.ValidateTag(ev.TagB)
	if !okA || !okB {
		return ContactEvent{}, false
	}
	return ContactEvent{
		Kind:    ev.Kind,
		EntityA: a,
		EntityB: b,
		Point:   ev.Point,
		Normal:  ev.Normal,
		Impulse: ev.Impulse,
	}, true
}

// jointBroken forgets the joint the engine already removed. The component is
// flagged so the joint stays down until its settings change.
func (ps *PhysicsSystem) jointBroken(ev physics.Event) (ContactEvent, bool) {
	h, ok := ps.reg.jointByID[ev.Joint]
	if !ok {
		return ContactEvent{}, false
	}
	rec, ok := ps.reg.removeJoint(h)
	if !ok {
		return ContactEvent{}, false
	}
	ps.engine.ReleaseJoint(rec.joint)
	if rec.comp != nil {
		rec.comp.Broken = true
	}
	ps.log.Debug("joint broke", entityField(rec.entity), zap.Float64("impulse", ev.Impulse))
	return ContactEvent{Kind: ev.Kind, EntityA: rec.entity, Impulse: ev.Impulse}, true
}

// Raycast casts against the engine and decodes the hit entity.
func (ps *PhysicsSystem) Raycast(origin, dir mgl64.Vec3, maxDist float64, layer uint32) (ecs.Entity, physics.RaycastHit, bool) {
	if ps == nil || ps.engine == nil {
		return 0, physics.RaycastHit{}, false
	}
	hit, ok := ps.engine.Raycast(origin, dir, maxDist, physics.QueryFilter{Layer: layer})
	if !ok {
		return 0, hit, false
	}
	e, ok := ps.ValidateTag(hit.Tag)
	return e, hit, ok
}

// Overlap returns the entities whose shapes overlap shape at pose.
func (ps *PhysicsSystem) Overlap(shape physics.ShapeDesc, pose physics.Pose, layer uint32) []ecs.Entity {
	if ps == nil || ps.engine == nil {
		return nil
	}
	var out []ecs.Entity
	for _, t := range ps.engine.Overlap(shape, pose, physics.QueryFilter{Layer: layer}) {
		if e, ok := ps.ValidateTag(t); ok {
			out = append(out, e)
		}
	}
	return out
}
