package chipmunk

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/physbridge/physics"
)

// queryAccept reports whether a scene query with filter may hit d. Triggers
// are never hit.
func queryAccept(filter physics.QueryFilter) func(*shapeData, *cp.Shape) bool {
	return func(d *shapeData, _ *cp.Shape) bool {
		if d.trigger {
			return false
		}
		if filter.ExcludeActor != 0 && d.actor == filter.ExcludeActor {
			return false
		}
		if filter.ExcludeController != 0 && d.ctrl == filter.ExcludeController {
			return false
		}
		return filter.Layer == 0 || d.filter.QueryMask&filter.Layer != 0
	}
}

func (e *Engine) Raycast(origin, dir mgl64.Vec3, maxDist float64, filter physics.QueryFilter) (physics.RaycastHit, bool) {
	return e.cast(origin, dir, 0, maxDist, filter)
}

func (e *Engine) SweepSphere(center mgl64.Vec3, radius float64, dir mgl64.Vec3, maxDist float64, filter physics.QueryFilter) (physics.RaycastHit, bool) {
	return e.cast(center, dir, radius, maxDist, filter)
}

func (e *Engine) cast(origin, dir mgl64.Vec3, radius, maxDist float64, filter physics.QueryFilter) (physics.RaycastHit, bool) {
	d := planar(dir)
	if maxDist <= 0 || d.Length() == 0 {
		return physics.RaycastHit{}, false
	}
	delta := d.Normalize().Mult(maxDist)
	hit, ok := e.sweep(planar(origin), delta, radius, queryAccept(filter), false)
	if !ok {
		return physics.RaycastHit{}, false
	}
	data := hit.shape.UserData.(*shapeData)
	return physics.RaycastHit{
		Actor:    data.actor,
		Tag:      data.tag,
		Position: mgl64.Vec3{hit.point.X, hit.point.Y, origin.Z()},
		Normal:   mgl64.Vec3{hit.normal.X, hit.normal.Y, 0},
		Distance: hit.alpha * maxDist,
	}, true
}

// Overlap returns the tags of every shape touching shape placed at pose.
// Each owner is reported once.
func (e *Engine) Overlap(shape physics.ShapeDesc, pose physics.Pose, filter physics.QueryFilter) []physics.Tag {
	body := cp.NewKinematicBody()
	body.SetPosition(planar(pose.Position))
	body.SetAngle(zAngle(pose.Rotation))
	parts, err := e.buildShape(body, shape)
	if err != nil {
		return nil
	}

	accept := queryAccept(filter)
	seen := make(map[physics.Tag]struct{})
	var out []physics.Tag
	for _, probe := range parts {
		probe.SetFilter(cp.SHAPE_FILTER_ALL)
		e.space.ShapeQuery(probe, func(s *cp.Shape, _ *cp.ContactPointSet) {
			d, ok := s.UserData.(*shapeData)
			if !ok || !accept(d, s) {
				return
			}
			if _, dup := seen[d.tag]; dup {
				return
			}
			seen[d.tag] = struct{}{}
			out = append(out, d.tag)
		})
	}
	return out
}

// pairKey identifies two touching owners independent of shape count.
type pairKey struct {
	a, b    ownerKey
	trigger bool
}

type ownerKey struct {
	actor physics.ActorID
	ctrl  physics.ControllerID
}

func (k ownerKey) less(o ownerKey) bool {
	if k.actor != o.actor {
		return k.actor < o.actor
	}
	return k.ctrl < o.ctrl
}

// onContact counts touching shape pairs per owner pair so that multi-shape
// actors report one begin and one end.
func (e *Engine) onContact(arb *cp.Arbiter, begin bool) {
	sa, sb := arb.Shapes()
	da, okA := sa.UserData.(*shapeData)
	db, okB := sb.UserData.(*shapeData)
	if !okA || !okB {
		return
	}
	ka, kb := ownerKey{da.actor, da.ctrl}, ownerKey{db.actor, db.ctrl}
	if ka == kb {
		return
	}
	trigger := da.trigger || db.trigger
	key := pairKey{a: ka, b: kb, trigger: trigger}
	if kb.less(ka) {
		key.a, key.b = kb, ka
	}

	n := e.touching[key]
	if begin {
		e.touching[key] = n + 1
		if n > 0 {
			return
		}
	} else {
		if n <= 1 {
			delete(e.touching, key)
		} else {
			e.touching[key] = n - 1
			return
		}
	}

	ev := physics.Event{TagA: da.tag, TagB: db.tag}
	switch {
	case trigger && begin:
		ev.Kind = physics.EventTriggerEnter
	case trigger:
		ev.Kind = physics.EventTriggerExit
	case begin:
		ev.Kind = physics.EventContactBegin
	default:
		ev.Kind = physics.EventContactEnd
	}
	if set := arb.ContactPointSet(); set.Count > 0 {
		p := set.Points[0].PointA
		ev.Point = mgl64.Vec3{p.X, p.Y, e.ownerZ(ka)}
	}
	nrm := arb.Normal()
	ev.Normal = mgl64.Vec3{nrm.X, nrm.Y, 0}
	ev.Impulse = arb.TotalImpulse().Length()
	e.events = append(e.events, ev)
}

func (e *Engine) ownerZ(k ownerKey) float64 {
	if a := e.actors[k.actor]; a != nil {
		return a.z
	}
	if c := e.controllers[k.ctrl]; c != nil {
		return c.foot.Z()
	}
	return 0
}
