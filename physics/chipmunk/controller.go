package chipmunk

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
	"github.com/milk9111/physbridge/physics"
)

const (
	maxSlideIterations = 4
	defaultSkin        = 0.01
)

// controller is a kinematic capsule moved by sweeps instead of the solver.
type controller struct {
	id    physics.ControllerID
	desc  physics.ControllerDesc
	body  *cp.Body
	shape *cp.Shape
	data  *shapeData
	foot  mgl64.Vec3
}

func (e *Engine) CreateController(desc physics.ControllerDesc) (physics.ControllerID, error) {
	if desc.Radius <= 0 || desc.Height <= 0 {
		return 0, physics.ErrCreateFailed
	}
	e.nextCtrl++
	c := &controller{
		id:   physics.ControllerID(e.nextCtrl),
		desc: desc,
		body: cp.NewKinematicBody(),
		foot: desc.Position,
	}
	c.body.SetPosition(planar(desc.Position))

	bottom, top := c.centers()
	if top.Y > bottom.Y {
		c.shape = cp.NewSegment(c.body, bottom, top, desc.Radius)
	} else {
		c.shape = cp.NewCircle(c.body, desc.Radius, bottom)
	}
	c.data = &shapeData{ctrl: c.id, tag: desc.Tag, filter: desc.Filter}
	c.shape.UserData = c.data
	c.shape.SetCollisionType(bridgeCollisionType)
	c.shape.SetFilter(shapeFilter(desc.Filter))

	e.space.AddBody(c.body)
	e.space.AddShape(c.shape)
	e.controllers[c.id] = c
	return c.id, nil
}

// centers returns the capsule's end-sphere centers relative to the foot.
func (c *controller) centers() (cp.Vector, cp.Vector) {
	r := c.desc.Radius
	return cp.Vector{Y: r}, cp.Vector{Y: math.Max(c.desc.Height-r, r)}
}

func (c *controller) skin() float64 {
	if c.desc.ContactOffset > 0 {
		return c.desc.ContactOffset
	}
	return defaultSkin
}

// MoveController sweeps the capsule along displacement, sliding along every
// surface it meets.
func (e *Engine) MoveController(id physics.ControllerID, displacement mgl64.Vec3, minDist, dt float64) physics.CollisionFlags {
	c := e.controllers[id]
	if c == nil || displacement.Len() < minDist {
		return 0
	}

	pos := planar(c.foot)
	remaining := planar(displacement)
	skin := c.skin()
	var flags physics.CollisionFlags

	for i := 0; i < maxSlideIterations && remaining.Length() > 1e-9; i++ {
		hit, ok := e.sweepController(c, pos, remaining)
		if !ok {
			pos = pos.Add(remaining)
			break
		}
		length := remaining.Length()
		travel := math.Max(hit.alpha*length-skin, 0)
		pos = pos.Add(remaining.Mult(travel / length))
		flags |= classify(hit.normal, c.desc.SlopeLimit)

		rest := remaining.Mult(1 - travel/length)
		remaining = rest.Sub(hit.normal.Mult(rest.Dot(hit.normal)))
	}

	c.foot = mgl64.Vec3{pos.X, pos.Y, c.foot.Z() + displacement.Z()}
	c.body.SetPosition(pos)
	return flags
}

// classify sorts a contact normal into down, up, or sides. slopeLimit is in
// degrees; steeper floors count as sides.
func classify(n cp.Vector, slopeLimit float64) physics.CollisionFlags {
	floor := math.Cos(mgl64.DegToRad(slopeLimit))
	if slopeLimit <= 0 || slopeLimit >= 90 {
		floor = 0.5
	}
	switch {
	case n.Y >= floor:
		return physics.CollisionDown
	case n.Y <= -floor:
		return physics.CollisionUp
	default:
		return physics.CollisionSides
	}
}

type sweepHit struct {
	shape  *cp.Shape
	point  cp.Vector
	normal cp.Vector
	alpha  float64
}

// sweepController finds the earliest blocking hit of both capsule end spheres
// moving from foot along delta.
func (e *Engine) sweepController(c *controller, foot, delta cp.Vector) (sweepHit, bool) {
	accept := func(d *shapeData, s *cp.Shape) bool {
		if s == c.shape || d.trigger {
			return false
		}
		return d.filter.CollideMask&c.data.filter.Layer != 0 && c.data.filter.CollideMask&d.filter.Layer != 0
	}
	bottom, top := c.centers()
	best, found := e.sweep(foot.Add(bottom), delta, c.desc.Radius, accept, true)
	if top.Y > bottom.Y {
		if h, ok := e.sweep(foot.Add(top), delta, c.desc.Radius, accept, true); ok && (!found || h.alpha < best.alpha) {
			best, found = h, true
		}
	}
	return best, found
}

// sweep casts a circle of radius from start along delta and returns the
// nearest accepted hit. With blocking set, hits whose normal does not oppose
// the motion are ignored.
func (e *Engine) sweep(start, delta cp.Vector, radius float64, accept func(*shapeData, *cp.Shape) bool, blocking bool) (sweepHit, bool) {
	var best sweepHit
	found := false
	e.space.SegmentQuery(start, start.Add(delta), radius, cp.SHAPE_FILTER_ALL,
		func(s *cp.Shape, point, normal cp.Vector, alpha float64, _ interface{}) {
			d, ok := s.UserData.(*shapeData)
			if !ok || !accept(d, s) {
				return
			}
			if blocking && normal.Dot(delta) >= 0 {
				return
			}
			if !found || alpha < best.alpha {
				best = sweepHit{shape: s, point: point, normal: normal, alpha: alpha}
				found = true
			}
		}, nil)
	return best, found
}

func (e *Engine) ControllerFootPosition(id physics.ControllerID) mgl64.Vec3 {
	if c := e.controllers[id]; c != nil {
		return c.foot
	}
	return mgl64.Vec3{}
}

func (e *Engine) SetControllerFootPosition(id physics.ControllerID, foot mgl64.Vec3) {
	c := e.controllers[id]
	if c == nil {
		return
	}
	c.foot = foot
	c.body.SetPosition(planar(foot))
	c.body.SetVelocity(0, 0)
}

func (e *Engine) SetControllerFilter(id physics.ControllerID, filter physics.FilterData) {
	c := e.controllers[id]
	if c == nil {
		return
	}
	c.desc.Filter = filter
	c.data.filter = filter
	c.shape.SetFilter(shapeFilter(filter))
}

func (e *Engine) ReleaseController(id physics.ControllerID) {
	c := e.controllers[id]
	if c == nil {
		return
	}
	e.space.RemoveShape(c.shape)
	e.space.RemoveBody(c.body)
	delete(e.controllers, id)
}
