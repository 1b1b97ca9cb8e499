package main

import (
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/config"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
)

const (
	arenaHalfWidth = 60.0
	pickupLayer    = 1 << 2
)

type sceneGen struct {
	w      *ecs.World
	cfg    *config.Config
	rng    *rand.Rand
	bodies []ecs.Entity
}

func (g *sceneGen) add(e ecs.Entity, err error) error {
	if err != nil {
		return fmt.Errorf("populate entity %s: %w", e, err)
	}
	return nil
}

func (g *sceneGen) populate(scene *component.PhysicsScene) error {
	root := ecs.CreateEntity(g.w)
	if err := g.add(root, ecs.Add(g.w, root, component.PhysicsSceneComponent.Kind(), scene)); err != nil {
		return err
	}

	for i := 0; i < g.cfg.Stress.Statics; i++ {
		if err := g.static(i); err != nil {
			return err
		}
	}
	if err := g.terrain(); err != nil {
		return err
	}
	for i := 0; i < g.cfg.Stress.Bodies; i++ {
		if err := g.body(); err != nil {
			return err
		}
	}
	for i := 0; i < g.cfg.Stress.Joints; i++ {
		if err := g.chain(i); err != nil {
			return err
		}
	}
	for i := 0; i < g.cfg.Stress.Controllers; i++ {
		if err := g.controller(); err != nil {
			return err
		}
	}
	return nil
}

func (g *sceneGen) spot(minY, maxY float64) mgl64.Vec3 {
	return mgl64.Vec3{
		(g.rng.Float64()*2 - 1) * arenaHalfWidth,
		minY + g.rng.Float64()*(maxY-minY),
		0,
	}
}

func (g *sceneGen) static(i int) error {
	e := ecs.CreateEntity(g.w)
	if err := g.add(e, ecs.Add(g.w, e, component.TransformComponent.Kind(), component.NewTransform(g.spot(1, 20)))); err != nil {
		return err
	}
	col := component.NewBoxCollider(mgl64.Vec3{1 + g.rng.Float64()*3, 0.25, 1})
	if i%5 == 0 {
		col.IsTrigger = true
		col.Layer = pickupLayer
	}
	return g.add(e, ecs.Add(g.w, e, component.ColliderComponent.Kind(), col))
}

func (g *sceneGen) terrain() error {
	const cols = 64
	heights := make([]float64, 2*cols)
	for i := 0; i < cols; i++ {
		h := g.rng.Float64() * 0.5
		heights[i], heights[cols+i] = h, h
	}
	e := ecs.CreateEntity(g.w)
	if err := g.add(e, ecs.Add(g.w, e, component.TransformComponent.Kind(), component.NewTransform(mgl64.Vec3{-arenaHalfWidth, -0.5, 0}))); err != nil {
		return err
	}
	return g.add(e, ecs.Add(g.w, e, component.TerrainComponent.Kind(), &component.Terrain{
		Rows:           2,
		Cols:           cols,
		Heights:        heights,
		ColScale:       2 * arenaHalfWidth / (cols - 1),
		Friction:       0.9,
		CollisionLayer: component.CollisionLayer{Layer: component.DefaultLayer},
	}))
}

func (g *sceneGen) body() error {
	e := ecs.CreateEntity(g.w)
	if err := g.add(e, ecs.Add(g.w, e, component.TransformComponent.Kind(), component.NewTransform(g.spot(5, 60)))); err != nil {
		return err
	}
	rb := component.NewRigidBody()
	rb.Mass = 0.5 + g.rng.Float64()*2
	if err := g.add(e, ecs.Add(g.w, e, component.RigidBodyComponent.Kind(), rb)); err != nil {
		return err
	}
	var col *component.Collider
	switch g.rng.Intn(3) {
	case 0:
		col = component.NewSphereCollider(0.25 + g.rng.Float64()*0.5)
	case 1:
		col = component.NewCapsuleCollider(0.25, 0.5)
	default:
		col = component.NewBoxCollider(mgl64.Vec3{0.5, 0.5, 0.5})
	}
	col.Restitution = g.rng.Float64() * 0.3
	col.Ignore = pickupLayer
	if err := g.add(e, ecs.Add(g.w, e, component.ColliderComponent.Kind(), col)); err != nil {
		return err
	}
	g.bodies = append(g.bodies, e)
	return nil
}

// chain hangs a two-link pendulum from a named anchor.
func (g *sceneGen) chain(i int) error {
	anchor := g.spot(25, 30)
	name := fmt.Sprintf("anchor-%d", i)

	a := ecs.CreateEntity(g.w)
	if err := g.add(a, ecs.Add(g.w, a, component.NameComponent.Kind(), &component.Name{Value: name})); err != nil {
		return err
	}
	if err := g.add(a, ecs.Add(g.w, a, component.TransformComponent.Kind(), component.NewTransform(anchor))); err != nil {
		return err
	}
	if err := g.add(a, ecs.Add(g.w, a, component.ColliderComponent.Kind(), component.NewSphereCollider(0.2))); err != nil {
		return err
	}

	link := ecs.CreateEntity(g.w)
	if err := g.add(link, ecs.Add(g.w, link, component.TransformComponent.Kind(), component.NewTransform(anchor.Sub(mgl64.Vec3{0, 2, 0})))); err != nil {
		return err
	}
	if err := g.add(link, ecs.Add(g.w, link, component.RigidBodyComponent.Kind(), component.NewRigidBody())); err != nil {
		return err
	}
	if err := g.add(link, ecs.Add(g.w, link, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{0.2, 0.8, 0.2}))); err != nil {
		return err
	}
	j := &component.Joint{
		Type:         physics.JointRevolute,
		TargetName:   name,
		Anchor:       mgl64.Vec3{0, 1, 0},
		TargetAnchor: mgl64.Vec3{},
	}
	if i%2 == 1 {
		j.Type = physics.JointDistance
		j.Distance = physics.DistanceSettings{MaxEnabled: true, Max: 2}
		j.BreakForce = 200
	}
	return g.add(link, ecs.Add(g.w, link, component.JointComponent.Kind(), j))
}

func (g *sceneGen) controller() error {
	e := ecs.CreateEntity(g.w)
	if err := g.add(e, ecs.Add(g.w, e, component.TransformComponent.Kind(), component.NewTransform(g.spot(2, 4)))); err != nil {
		return err
	}
	cc := component.NewCharacterController()
	cc.Gravity *= g.cfg.Controller.GravityScale
	cc.ContactOffset = g.cfg.Controller.ContactOffset
	if err := g.add(e, ecs.Add(g.w, e, component.CharacterControllerComponent.Kind(), cc)); err != nil {
		return err
	}
	sc := &component.ControllerScript{Path: g.cfg.Stress.Script}
	if sc.Path == "" {
		sc.Source = wanderScript
	}
	return g.add(e, ecs.Add(g.w, e, component.ControllerScriptComponent.Kind(), sc))
}

// churn destroys a tenth of the free bodies and spawns replacements.
func (g *sceneGen) churn() {
	n := len(g.bodies) / 10
	for i := 0; i < n; i++ {
		k := g.rng.Intn(len(g.bodies))
		ecs.DestroyEntity(g.w, g.bodies[k])
		g.bodies[k] = g.bodies[len(g.bodies)-1]
		g.bodies = g.bodies[:len(g.bodies)-1]
	}
	for i := 0; i < n; i++ {
		_ = g.body()
	}
}
