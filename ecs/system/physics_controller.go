package system

import (
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

// groundTolerance is how far above ContactOffset a probe hit still counts as
// standing on the ground.
const groundTolerance = 1e-3

var worldUp = mgl64.Vec3{0, 1, 0}

func (ps *PhysicsSystem) controllerCandidates(w *ecs.World) []ecs.Entity {
	seen := make(map[ecs.Entity]struct{})
	ecs.ForEach(w, component.CharacterControllerComponent.Kind(), func(e ecs.Entity, _ *component.CharacterController) {
		seen[e] = struct{}{}
	})
	for e := range ps.reg.ctrlByEntity {
		seen[e] = struct{}{}
	}
	out := make([]ecs.Entity, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

func (ps *PhysicsSystem) syncControllers(w *ecs.World) {
	supported := ps.engine.Capabilities().CharacterControllers
	for _, e := range ps.controllerCandidates(w) {
		var c *component.CharacterController
		if ecs.IsAlive(w, e) {
			c, _ = ecs.Get(w, e, component.CharacterControllerComponent.Kind())
		}
		if c != nil {
			ps.sanitizeLayer(e, filterController, &c.CollisionLayer)
		}
		ch := ps.diff.controller(e, c)
		rec, h, exists := ps.reg.controllerFor(e)

		if c == nil {
			if exists {
				ps.destroyController(h, rec)
			}
			delete(ps.reg.ctrlFailed, e)
			ps.forgetFilter(e, filterController)
			continue
		}
		if !supported {
			if ch == ChangeCreate {
				ps.log.Warn("engine has no character controllers; controller ignored", entityField(e))
			}
			continue
		}

		switch {
		case !exists:
			if _, failed := ps.reg.ctrlFailed[e]; failed && ch == ChangeNone {
				continue
			}
			foot := mgl64.Vec3{}
			if t, ok := ecs.Get(w, e, component.TransformComponent.Kind()); ok {
				foot = t.Position
			}
			ps.createController(e, c, foot)
		case ch == ChangeRebuild:
			foot := ps.engine.ControllerFootPosition(rec.ctrl)
			ps.destroyController(h, rec)
			ps.createController(e, c, foot)
		case ch == ChangeInPlace:
			if f, changed := ps.layerFilter(e, filterController, &c.CollisionLayer); changed {
				ps.engine.SetControllerFilter(rec.ctrl, f)
				ps.stats.FilterPushes++
			}
			ps.stats.InPlaceUpdates++
		}
	}
}

func (ps *PhysicsSystem) createController(e ecs.Entity, c *component.CharacterController, foot mgl64.Vec3) {
	filter, _ := ps.layerFilter(e, filterController, &c.CollisionLayer)
	id, err := ps.engine.CreateController(physics.ControllerDesc{
		Position:      foot,
		Radius:        c.Radius,
		Height:        c.Height,
		StepOffset:    c.StepOffset,
		SlopeLimit:    c.SlopeLimit,
		ContactOffset: c.ContactOffset,
		Filter:        filter,
		Tag:           ps.tag(e),
	})
	if err != nil {
		ps.log.Error("character controller creation failed", entityField(e), zap.Error(err))
		ps.reg.ctrlFailed[e] = struct{}{}
		return
	}
	delete(ps.reg.ctrlFailed, e)
	c.Handle = ps.reg.addController(&controllerRecord{entity: e, ctrl: id, comp: c})
	ps.log.Debug("character controller created", entityField(e))
}

func (ps *PhysicsSystem) destroyController(h physics.Handle, rec *controllerRecord) {
	ps.engine.ReleaseController(rec.ctrl)
	ps.reg.removeController(h)
}

type groundHit struct {
	hit      bool
	grounded bool
	normal   mgl64.Vec3
	distance float64
}

// queryGround sweeps a sphere of the controller's radius down from just above
// the foot. distance is the gap between the foot and the surface.
func (ps *PhysicsSystem) queryGround(rec *controllerRecord, foot mgl64.Vec3) groundHit {
	c := rec.comp
	skin := c.ContactOffset
	center := foot.Add(worldUp.Mul(c.Radius + skin))
	probe := skin + ps.opts.GroundProbeDistance
	hit, ok := ps.engine.SweepSphere(center, c.Radius, worldUp.Mul(-1), probe, physics.QueryFilter{
		Layer:             c.Layer,
		ExcludeController: rec.ctrl,
	})
	if !ok {
		return groundHit{distance: ps.opts.GroundProbeDistance}
	}
	dist := max(hit.Distance-skin, 0)
	return groundHit{
		hit:      true,
		grounded: dist <= c.ContactOffset+groundTolerance,
		normal:   hit.Normal,
		distance: dist,
	}
}

// moveControllers advances every controller: ground query, jump, gravity,
// sweep move, then a second ground query whose result is published on the
// component.
func (ps *PhysicsSystem) moveControllers(w *ecs.World, dt float64) {
	ps.reg.controllers.Each(func(_ physics.Handle, rec *controllerRecord) {
		c := rec.comp
		t, _ := ecs.Get(w, rec.entity, component.TransformComponent.Kind())

		if c.Teleport {
			foot := ps.engine.ControllerFootPosition(rec.ctrl)
			if t != nil {
				foot = t.Position
			}
			ps.engine.SetControllerFootPosition(rec.ctrl, foot)
			c.VerticalVelocity = 0
			c.Teleport = false
			ps.publishGround(c, ps.queryGround(rec, foot), 0)
			return
		}

		foot := ps.engine.ControllerFootPosition(rec.ctrl)
		grounded := ps.queryGround(rec, foot).grounded
		if c.JumpRequested && grounded {
			c.VerticalVelocity = c.JumpSpeed
			c.JumpRequested = false
			grounded = false
		}
		if grounded && c.VerticalVelocity <= 0 {
			c.VerticalVelocity = 0
		} else {
			c.VerticalVelocity -= c.Gravity * dt
		}

		disp := mgl64.Vec3{c.DesiredVelocity.X() * dt, c.VerticalVelocity * dt, c.DesiredVelocity.Z() * dt}
		flags := ps.engine.MoveController(rec.ctrl, disp, ps.opts.MinMoveDistance, dt)
		if flags&physics.CollisionDown != 0 && c.VerticalVelocity < 0 {
			c.VerticalVelocity = 0
		}
		if flags&physics.CollisionUp != 0 && c.VerticalVelocity > 0 {
			c.VerticalVelocity = 0
		}

		foot = ps.engine.ControllerFootPosition(rec.ctrl)
		ps.publishGround(c, ps.queryGround(rec, foot), flags)
		if t != nil {
			t.Position = foot
			w.MarkTransformDirty(rec.entity)
		}
	})
}

func (ps *PhysicsSystem) publishGround(c *component.CharacterController, g groundHit, flags physics.CollisionFlags) {
	c.Grounded = g.grounded || flags&physics.CollisionDown != 0
	c.GroundNormal = g.normal
	c.GroundDistance = g.distance
	c.CollisionFlags = flags
}
