package chipmunk

import (
	"fmt"
	"math"
	"slices"

	"github.com/jakecoffman/cp"
	"github.com/milk9111/physbridge/physics"
)

// freeTravel bounds grooves along axes that have no limit.
const freeTravel = 1e4

// joint is one bridge joint and the cp constraints that emulate it in the plane.
type joint struct {
	id     physics.JointID
	tag    physics.Tag
	actorA physics.ActorID
	actorB physics.ActorID

	parts []*cp.Constraint
	// angular marks the parts whose impulse is a torque.
	angular map[*cp.Constraint]bool

	breakForce  float64
	breakTorque float64
}

func (e *Engine) CreateJoint(desc physics.JointDesc) (physics.JointID, error) {
	a := e.actors[desc.ActorA]
	if a == nil {
		return 0, physics.ErrUnknownActor
	}
	bodyB := e.space.StaticBody
	if desc.ActorB != 0 {
		b := e.actors[desc.ActorB]
		if b == nil {
			return 0, physics.ErrUnknownActor
		}
		bodyB = b.body
	}

	j := &joint{
		tag:         desc.Tag,
		actorA:      desc.ActorA,
		actorB:      desc.ActorB,
		angular:     make(map[*cp.Constraint]bool),
		breakForce:  desc.BreakForce,
		breakTorque: desc.BreakTorque,
	}
	if err := j.build(a.body, bodyB, desc); err != nil {
		return 0, err
	}

	e.nextJoint++
	j.id = physics.JointID(e.nextJoint)
	for _, c := range j.parts {
		c.SetCollideBodies(desc.CollideConnected)
		e.space.AddConstraint(c)
	}
	e.joints[j.id] = j
	return j.id, nil
}

func (j *joint) build(a, b *cp.Body, desc physics.JointDesc) error {
	anchorA, anchorB := planar(desc.AnchorA), planar(desc.AnchorB)
	pivot := func() { j.add(cp.NewPivotJoint2(a, b, anchorA, anchorB), false) }
	rotary := func(lower, upper float64) { j.add(cp.NewRotaryLimitJoint(a, b, lower, upper), true) }

	switch desc.Type {
	case physics.JointFixed:
		pivot()
		rotary(0, 0)

	case physics.JointRevolute:
		pivot()
		s := desc.Revolute
		if s.Limit.Enabled {
			rotary(s.Limit.Lower, s.Limit.Upper)
		}
		if s.Drive.Enabled {
			j.addDrive(a, b, s.Drive)
		}

	case physics.JointSpherical:
		pivot()
		if s := desc.Spherical; s.LimitEnabled {
			rotary(-s.ZAngle, s.ZAngle)
		}

	case physics.JointPrismatic:
		s := desc.Prismatic
		dir, ok := axisDir(s.Axis)
		if !ok {
			pivot()
			rotary(0, 0)
			break
		}
		lower, upper := -freeTravel, freeTravel
		if s.Limit.Enabled {
			lower, upper = s.Limit.Lower, s.Limit.Upper
		}
		j.add(cp.NewGrooveJoint(a, b, anchorA.Add(dir.Mult(lower)), anchorA.Add(dir.Mult(upper)), anchorB), false)
		rotary(0, 0)

	case physics.JointDistance:
		s := desc.Distance
		if s.MinEnabled || s.MaxEnabled {
			lower, upper := 0.0, math.Inf(1)
			if s.MinEnabled {
				lower = s.Min
			}
			if s.MaxEnabled {
				upper = s.Max
			}
			j.add(cp.NewSlideJoint(a, b, anchorA, anchorB, lower, upper), false)
		}
		if s.SpringEnabled {
			rest := s.Min
			if s.MaxEnabled {
				rest = (s.Min + s.Max) / 2
			}
			j.add(cp.NewDampedSpring(a, b, anchorA, anchorB, rest, s.Stiffness, s.Damping), false)
		}

	case physics.JointSixAxis:
		j.buildSixAxis(a, b, anchorA, anchorB, desc.SixAxis)

	default:
		return fmt.Errorf("%w: joint type %s", physics.ErrUnsupported, desc.Type)
	}

	if len(j.parts) == 0 {
		return fmt.Errorf("%w: %s joint constrains nothing in the plane", physics.ErrCreateFailed, desc.Type)
	}
	return nil
}

// buildSixAxis maps the in-plane degrees of freedom: X and Y translation and
// the swing about Z.
func (j *joint) buildSixAxis(a, b *cp.Body, anchorA, anchorB cp.Vector, s physics.SixAxisSettings) {
	mx, my := s.Motion[physics.DOFX], s.Motion[physics.DOFY]
	extent := func(m physics.Motion) float64 {
		if m == physics.MotionLimited {
			return s.LinearLimit
		}
		return freeTravel
	}

	switch {
	case mx == physics.MotionLocked && my == physics.MotionLocked:
		j.add(cp.NewPivotJoint2(a, b, anchorA, anchorB), false)
	case mx == physics.MotionLocked:
		d := extent(my)
		j.add(cp.NewGrooveJoint(a, b, anchorA.Add(cp.Vector{Y: -d}), anchorA.Add(cp.Vector{Y: d}), anchorB), false)
	case my == physics.MotionLocked:
		d := extent(mx)
		j.add(cp.NewGrooveJoint(a, b, anchorA.Add(cp.Vector{X: -d}), anchorA.Add(cp.Vector{X: d}), anchorB), false)
	case mx == physics.MotionLimited || my == physics.MotionLimited:
		j.add(cp.NewSlideJoint(a, b, anchorA, anchorB, 0, s.LinearLimit), false)
	}

	switch s.Motion[physics.DOFSwing2] {
	case physics.MotionLocked:
		j.add(cp.NewRotaryLimitJoint(a, b, 0, 0), true)
	case physics.MotionLimited:
		j.add(cp.NewRotaryLimitJoint(a, b, -s.Swing2Limit, s.Swing2Limit), true)
	}
	if d := s.Drives[physics.DOFSwing2]; d.Enabled {
		j.addDrive(a, b, d)
	}
}

func (j *joint) addDrive(a, b *cp.Body, d physics.Drive) {
	motor := cp.NewSimpleMotor(a, b, d.Velocity)
	if d.ForceLimit > 0 {
		motor.SetMaxForce(d.ForceLimit)
	}
	j.add(motor, true)
}

func (j *joint) add(c *cp.Constraint, angular bool) {
	j.parts = append(j.parts, c)
	if angular {
		j.angular[c] = true
	}
}

func axisDir(axis physics.Axis) (cp.Vector, bool) {
	switch axis {
	case physics.AxisX:
		return cp.Vector{X: 1}, true
	case physics.AxisY:
		return cp.Vector{Y: 1}, true
	}
	return cp.Vector{}, false
}

func (e *Engine) SetJointBreak(id physics.JointID, force, torque float64) {
	if j := e.joints[id]; j != nil {
		j.breakForce, j.breakTorque = force, torque
	}
}

func (e *Engine) SetJointCollideConnected(id physics.JointID, collide bool) {
	j := e.joints[id]
	if j == nil {
		return
	}
	for _, c := range j.parts {
		c.SetCollideBodies(collide)
	}
}

func (e *Engine) ReleaseJoint(id physics.JointID) {
	if j := e.joints[id]; j != nil {
		e.removeJoint(j)
	}
}

func (e *Engine) removeJoint(j *joint) {
	for _, c := range j.parts {
		if e.space.ContainsConstraint(c) {
			e.space.RemoveConstraint(c)
		}
	}
	delete(e.joints, j.id)
}

func (e *Engine) jointsOn(actor physics.ActorID) []*joint {
	var out []*joint
	for _, j := range e.joints {
		if j.actorA == actor || j.actorB == actor {
			out = append(out, j)
		}
	}
	return out
}

// checkJointBreaks removes every joint whose last-step force or torque
// exceeded its threshold and queues a break event for it.
func (e *Engine) checkJointBreaks(dt float64) {
	for _, id := range e.jointIDs() {
		j := e.joints[id]
		if j.breakForce <= 0 && j.breakTorque <= 0 {
			continue
		}
		var force, torque float64
		for _, c := range j.parts {
			if j.angular[c] {
				torque = math.Max(torque, c.Class.GetImpulse()/dt)
			} else {
				force = math.Max(force, c.Class.GetImpulse()/dt)
			}
		}
		if (j.breakForce > 0 && force > j.breakForce) || (j.breakTorque > 0 && torque > j.breakTorque) {
			e.removeJoint(j)
			e.events = append(e.events, physics.Event{
				Kind:    physics.EventJointBroken,
				TagA:    j.tag,
				Joint:   j.id,
				Impulse: math.Max(force, torque) * dt,
			})
		}
	}
}

func (e *Engine) jointIDs() []physics.JointID {
	ids := make([]physics.JointID, 0, len(e.joints))
	for id := range e.joints {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
