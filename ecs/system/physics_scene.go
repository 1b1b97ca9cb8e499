package system

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

type groundSnapshot struct {
	height   float64
	material physics.Material
	trigger  bool
	filter   physics.FilterData
}

// groundState tracks the scene's ground plane actor. It is rebuilt only when
// its snapshot changes.
type groundState struct {
	actor  physics.ActorID
	owner  ecs.Entity
	snap   groundSnapshot
	failed bool
}

func (g *groundState) release(engine physics.Engine) {
	if g.actor != 0 {
		engine.ReleaseActor(g.actor)
	}
	g.actor = 0
}

func (ps *PhysicsSystem) scene(w *ecs.World) (*component.PhysicsScene, ecs.Entity) {
	e, ok := ecs.First(w, component.PhysicsSceneComponent.Kind())
	if !ok {
		return nil, 0
	}
	s, _ := ecs.Get(w, e, component.PhysicsSceneComponent.Kind())
	return s, e
}

func (ps *PhysicsSystem) syncGravity(scene *component.PhysicsScene) {
	g := ps.opts.Gravity
	if scene != nil {
		g = scene.Gravity
	}
	if ps.gravity != nil && *ps.gravity == g {
		return
	}
	ps.engine.SetGravity(g)
	ps.gravity = &g
}

func (ps *PhysicsSystem) groundEqual(a, b groundSnapshot) bool {
	return ps.diff.eps.f(a.height, b.height) &&
		ps.diff.eps.material(a.material, b.material) &&
		a.trigger == b.trigger &&
		a.filter == b.filter
}

func (ps *PhysicsSystem) syncGroundPlane(w *ecs.World, scene *component.PhysicsScene, owner ecs.Entity) {
	if scene == nil || !scene.GroundPlane.Enabled {
		if ps.ground.actor != 0 {
			ps.ground.release(ps.engine)
			ps.log.Debug("ground plane removed")
		}
		ps.ground = groundState{}
		return
	}
	gp := &scene.GroundPlane
	filter, _ := ps.layerFilter(owner, filterGround, &gp.CollisionLayer)
	snap := groundSnapshot{
		height:   gp.Height,
		material: physics.Material{Friction: gp.Friction, Restitution: gp.Restitution},
		trigger:  gp.IsTrigger,
		filter:   filter,
	}
	if ps.ground.owner == owner && ps.groundEqual(ps.ground.snap, snap) && (ps.ground.actor != 0 || ps.ground.failed) {
		return
	}

	ps.ground.release(ps.engine)
	ps.ground = groundState{owner: owner, snap: snap}
	desc := physics.ActorDesc{
		Kind: physics.BodyStatic,
		Pose: physics.Pose{Position: mgl64.Vec3{0, gp.Height, 0}, Rotation: mgl64.QuatIdent()},
		Tag:  ps.tag(owner),
	}
	id, err := ps.engine.CreateActor(desc)
	if err == nil {
		_, err = ps.engine.AttachShape(id, physics.ShapeDesc{
			Type:      physics.ShapePlane,
			LocalPose: physics.IdentityPose(),
			Trigger:   gp.IsTrigger,
			Material:  snap.material,
			Filter:    filter,
		})
		if err != nil {
			ps.engine.ReleaseActor(id)
		}
	}
	if err != nil {
		ps.log.Error("ground plane creation failed", zap.Error(err))
		ps.ground.failed = true
		return
	}
	ps.ground.actor = id
	ps.log.Debug("ground plane built", zap.Float64("height", gp.Height), zap.Uint32("layer", gp.Layer))
}

// GroundPlaneActor returns the engine actor of the ground plane, if any.
func (ps *PhysicsSystem) GroundPlaneActor() (physics.ActorID, bool) {
	return ps.ground.actor, ps.ground.actor != 0
}
