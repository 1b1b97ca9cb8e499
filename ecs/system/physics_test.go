package system

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
	"github.com/milk9111/physbridge/physics/physicstest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const tick = 1.0 / 60.0

type bridgeFixture struct {
	t      *testing.T
	w      *ecs.World
	eng    *physicstest.Engine
	ps     *PhysicsSystem
	logs   *observer.ObservedLogs
	meshes *physics.MeshLibrary
}

func newBridge(t *testing.T) *bridgeFixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	eng := physicstest.New()
	meshes := physics.NewMeshLibrary()
	ps := NewPhysicsSystem(eng, PhysicsOptions{Logger: zap.New(core), Meshes: meshes})
	return &bridgeFixture{t: t, w: ecs.NewWorld(), eng: eng, ps: ps, logs: logs, meshes: meshes}
}

func (f *bridgeFixture) update() {
	f.ps.Update(f.w, tick)
}

func (f *bridgeFixture) warnings(snippet string) int {
	return f.logs.FilterLevelExact(zapcore.WarnLevel).FilterMessageSnippet(snippet).Len()
}

func add[T any](t *testing.T, w *ecs.World, e ecs.Entity, kind component.ComponentKind[T], v *T) *T {
	t.Helper()
	if err := ecs.Add(w, e, kind, v); err != nil {
		t.Fatalf("add component: %v", err)
	}
	return v
}

func (f *bridgeFixture) entity(pos mgl64.Vec3) (ecs.Entity, *component.Transform) {
	e := ecs.CreateEntity(f.w)
	return e, add(f.t, f.w, e, component.TransformComponent.Kind(), component.NewTransform(pos))
}

func (f *bridgeFixture) scene() *component.PhysicsScene {
	e := ecs.CreateEntity(f.w)
	return add(f.t, f.w, e, component.PhysicsSceneComponent.Kind(), component.NewPhysicsScene())
}

func (f *bridgeFixture) onlyActor() *physicstest.Actor {
	f.t.Helper()
	actors := f.eng.Actors()
	if len(actors) != 1 {
		f.t.Fatalf("engine actors = %d, want 1", len(actors))
	}
	return actors[0]
}

func TestRigidBodyAndColliderShareOneActor(t *testing.T) {
	f := newBridge(t)
	e, tr := f.entity(mgl64.Vec3{0, 5, 0})
	rb := add(t, f.w, e, component.RigidBodyComponent.Kind(), component.NewRigidBody())
	col := add(t, f.w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{0.5, 0.5, 0.5}))

	f.update()

	if f.eng.ActorsCreated != 1 || f.eng.ConvenienceCreates != 1 {
		t.Fatalf("created = %d (convenience %d), want one convenience create", f.eng.ActorsCreated, f.eng.ConvenienceCreates)
	}
	if rb.Handle.IsZero() || rb.Handle != col.Handle {
		t.Fatalf("handles = %+v / %+v, want the same live handle", rb.Handle, col.Handle)
	}
	if a := f.onlyActor(); a.Desc.Kind != physics.BodyDynamic || a.Desc.Tag != physics.NewTag(f.w.Epoch(), uint64(e)) {
		t.Fatalf("actor desc = %+v", a.Desc)
	}
	if tr.Position.Y() >= 5 {
		t.Fatalf("transform y = %v, want the body to have fallen", tr.Position.Y())
	}
	if f.ps.Stats().TransformsPulled != 1 {
		t.Fatalf("pulled = %d, want 1", f.ps.Stats().TransformsPulled)
	}

	ecs.DestroyEntity(f.w, e)
	f.update()

	if f.eng.ActorsReleased != 1 {
		t.Fatalf("released = %d, want exactly 1", f.eng.ActorsReleased)
	}
	if !rb.Handle.IsZero() || !col.Handle.IsZero() {
		t.Fatal("handles should be cleared once the actor is gone")
	}
	if f.ps.ActorCount() != 0 {
		t.Fatalf("actor records = %d", f.ps.ActorCount())
	}
}

func TestColliderOffsetUsesAttachPath(t *testing.T) {
	f := newBridge(t)
	e, _ := f.entity(mgl64.Vec3{})
	col := component.NewSphereCollider(0.5)
	col.Offset = mgl64.Vec3{0, 1, 0}
	add(t, f.w, e, component.ColliderComponent.Kind(), col)

	f.update()

	if f.eng.ConvenienceCreates != 0 || f.eng.ShapesAttached != 1 {
		t.Fatalf("convenience = %d attached = %d, want an explicit attach", f.eng.ConvenienceCreates, f.eng.ShapesAttached)
	}
	a := f.onlyActor()
	if a.Desc.Kind != physics.BodyStatic || a.Shapes[0].LocalPose.Position != col.Offset {
		t.Fatalf("actor = %+v", a)
	}
}

func TestColliderChanges(t *testing.T) {
	cases := []struct {
		name     string
		edit     func(*component.Collider)
		detaches int
		material int
		rebuilds int
	}{
		{"half_extents_rebuild_shapes", func(c *component.Collider) { c.HalfExtents = mgl64.Vec3{1, 2, 1} }, 1, 0, 1},
		{"friction_in_place", func(c *component.Collider) { c.Friction = 0.9 }, 0, 1, 0},
		{"tiny_edit_ignored", func(c *component.Collider) { c.HalfExtents[0] += 1e-9 }, 0, 0, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newBridge(t)
			e, _ := f.entity(mgl64.Vec3{2, 0, 0})
			col := add(t, f.w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{0.5, 0.5, 0.5}))
			f.update()
			before := f.onlyActor()
			pose := before.Pose

			c.edit(col)
			f.update()

			if f.eng.ActorsReleased != 0 || f.eng.ActorsCreated != 1 {
				t.Fatalf("released = %d created = %d, want the actor kept", f.eng.ActorsReleased, f.eng.ActorsCreated)
			}
			if f.eng.ShapeDetaches != c.detaches || f.ps.Stats().ShapeRebuilds != c.rebuilds {
				t.Fatalf("detaches = %d rebuilds = %d", f.eng.ShapeDetaches, f.ps.Stats().ShapeRebuilds)
			}
			if f.eng.MaterialPushes != c.material {
				t.Fatalf("material pushes = %d, want %d", f.eng.MaterialPushes, c.material)
			}
			after := f.onlyActor()
			if after.ID != before.ID || after.Pose != pose {
				t.Fatalf("actor moved or changed: %+v", after)
			}
			if c.rebuilds == 1 && after.Shapes[0].HalfExtents != col.HalfExtents {
				t.Fatalf("shape = %+v", after.Shapes[0])
			}
		})
	}
}

func TestRigidBodyChanges(t *testing.T) {
	f := newBridge(t)
	e, _ := f.entity(mgl64.Vec3{})
	rb := add(t, f.w, e, component.RigidBodyComponent.Kind(), component.NewRigidBody())
	add(t, f.w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{0.5, 0.5, 0.5}))
	f.update()

	rb.LinearDamping = 0.3
	f.update()
	if f.eng.PropPushes != 1 || f.eng.ActorsReleased != 0 {
		t.Fatalf("damping: props = %d released = %d", f.eng.PropPushes, f.eng.ActorsReleased)
	}

	rb.IsKinematic = true
	f.update()
	if f.eng.PropPushes != 2 || f.eng.ActorsReleased != 0 {
		t.Fatalf("kinematic toggle: props = %d released = %d", f.eng.PropPushes, f.eng.ActorsReleased)
	}
	if f.onlyActor().Desc.Kind != physics.BodyKinematic {
		t.Fatal("toggle did not reach the engine")
	}

	old := rb.Handle
	rb.Mass = 4
	f.update()
	if f.eng.ActorsReleased != 1 || f.eng.ActorsCreated != 2 || f.ps.Stats().ActorsRebuilt != 1 {
		t.Fatalf("mass: released = %d created = %d rebuilt = %d",
			f.eng.ActorsReleased, f.eng.ActorsCreated, f.ps.Stats().ActorsRebuilt)
	}
	if _, ok := f.ps.ValidateAndGetActor(old); ok {
		t.Fatal("handle from before the rebuild still resolves")
	}
	if _, ok := f.ps.ValidateAndGetActor(rb.Handle); !ok {
		t.Fatal("new handle does not resolve")
	}
}

func TestTerrainHeightsRebuild(t *testing.T) {
	f := newBridge(t)
	e, _ := f.entity(mgl64.Vec3{})
	terrain := add(t, f.w, e, component.TerrainComponent.Kind(), &component.Terrain{
		Rows:           2,
		Cols:           3,
		Heights:        []float64{0, 1, 2, 3, 4, 5},
		CollisionLayer: component.CollisionLayer{Layer: component.DefaultLayer},
	})
	f.update()
	if f.eng.ActorsCreated != 1 {
		t.Fatalf("created = %d", f.eng.ActorsCreated)
	}
	hf := f.onlyActor().Shapes[0].HeightField
	if hf == nil || hf.HeightScale != 1 || hf.RowScale != 1 || hf.ColScale != 1 {
		t.Fatalf("heightfield = %+v, want unit scales", hf)
	}

	terrain.Friction = 0.2
	f.update()
	if f.eng.ActorsReleased != 0 || f.eng.MaterialPushes != 1 {
		t.Fatalf("friction: released = %d material = %d", f.eng.ActorsReleased, f.eng.MaterialPushes)
	}

	terrain.Heights[5] = 9
	f.update()
	if f.eng.ActorsReleased != 1 || f.eng.ActorsCreated != 2 {
		t.Fatalf("heights: released = %d created = %d", f.eng.ActorsReleased, f.eng.ActorsCreated)
	}
}

func TestTerrainExcludesOtherComponents(t *testing.T) {
	f := newBridge(t)
	e, _ := f.entity(mgl64.Vec3{})
	add(t, f.w, e, component.TerrainComponent.Kind(), &component.Terrain{Rows: 2, Cols: 2, Heights: []float64{0, 0, 0, 0}})
	rb := add(t, f.w, e, component.RigidBodyComponent.Kind(), component.NewRigidBody())
	f.update()

	if a := f.onlyActor(); a.Desc.Kind != physics.BodyStatic || a.Shapes[0].Type != physics.ShapeHeightField {
		t.Fatalf("actor = %+v", a.Desc)
	}
	if !rb.Handle.IsZero() {
		t.Fatal("ignored rigid body got a handle")
	}
	if f.warnings("terrain excludes") != 1 {
		t.Fatalf("terrain conflict warnings = %d", f.warnings("terrain excludes"))
	}
}

func TestTriangleMeshOnBodyBecomesConvex(t *testing.T) {
	f := newBridge(t)
	f.meshes.Register("ramp", &physics.MeshData{
		Vertices: []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
	})
	e, _ := f.entity(mgl64.Vec3{})
	add(t, f.w, e, component.RigidBodyComponent.Kind(), component.NewRigidBody())
	add(t, f.w, e, component.MeshColliderComponent.Kind(), &component.MeshCollider{
		Type:           component.MeshTriangle,
		MeshPath:       "ramp",
		CollisionLayer: component.CollisionLayer{Layer: 1},
	})

	f.update()
	f.update()

	if s := f.onlyActor().Shapes[0]; s.Type != physics.ShapeConvex {
		t.Fatalf("shape type = %s, want convex", s.Type)
	}
	if n := f.warnings("triangle meshes cannot attach"); n != 1 {
		t.Fatalf("warnings = %d, want exactly 1", n)
	}
}

func TestStaticMeshAndColliderConflict(t *testing.T) {
	f := newBridge(t)
	f.meshes.Register("tri", &physics.MeshData{
		Vertices: []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		Indices:  []uint32{0, 1, 2},
	})
	e, _ := f.entity(mgl64.Vec3{})
	col := add(t, f.w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
	mesh := add(t, f.w, e, component.MeshColliderComponent.Kind(), &component.MeshCollider{
		Type:           component.MeshTriangle,
		MeshPath:       "tri",
		IsTrigger:      true,
		CollisionLayer: component.CollisionLayer{Layer: 1},
	})
	f.update()

	s := f.onlyActor().Shapes[0]
	if s.Type != physics.ShapeTriangleMesh || s.Trigger {
		t.Fatalf("shape = %s trigger %v, want a solid triangle mesh", s.Type, s.Trigger)
	}
	if !col.Handle.IsZero() || mesh.Handle.IsZero() {
		t.Fatal("mesh collider should own the actor")
	}
	if f.warnings("triangle meshes cannot be triggers") != 1 || f.warnings("using the mesh collider") != 1 {
		t.Fatal("missing conflict warnings")
	}

	// removing the mesh hands the actor's shapes to the collider
	ecs.Remove(f.w, e, component.MeshColliderComponent.Kind())
	f.update()
	if f.onlyActor().Shapes[0].Type != physics.ShapeBox {
		t.Fatalf("shape = %s, want box", f.onlyActor().Shapes[0].Type)
	}
	if f.eng.ActorsReleased != 1 || col.Handle.IsZero() {
		t.Fatalf("released = %d col handle %+v", f.eng.ActorsReleased, col.Handle)
	}
}

func TestLayerSanitizedOnce(t *testing.T) {
	f := newBridge(t)
	e, _ := f.entity(mgl64.Vec3{})
	col := component.NewBoxCollider(mgl64.Vec3{1, 1, 1})
	col.Layer = 1<<2 | 1<<4
	add(t, f.w, e, component.ColliderComponent.Kind(), col)

	f.update()
	f.update()

	if col.Layer != 1<<2 {
		t.Fatalf("layer = %#x, want the lowest bit", col.Layer)
	}
	if n := f.warnings("several bits"); n != 1 {
		t.Fatalf("warnings = %d, want 1", n)
	}
	if f.onlyActor().Filter.Layer != 1<<2 {
		t.Fatalf("engine filter = %+v", f.onlyActor().Filter)
	}

	e2, _ := f.entity(mgl64.Vec3{5, 0, 0})
	zero := component.NewBoxCollider(mgl64.Vec3{1, 1, 1})
	zero.Layer = 0
	add(t, f.w, e2, component.ColliderComponent.Kind(), zero)
	f.update()
	if zero.Layer != 1 || f.warnings("no bits set") != 1 {
		t.Fatalf("zero layer = %#x", zero.Layer)
	}
}

func TestLayerMatrixCompile(t *testing.T) {
	f := newBridge(t)
	scene := f.scene()
	e, _ := f.entity(mgl64.Vec3{})
	add(t, f.w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))

	f.update()
	f.update()
	if f.ps.FilterCompiles() != 1 {
		t.Fatalf("compiles = %d, want 1 while the revision is unchanged", f.ps.FilterCompiles())
	}
	pushes := f.eng.FilterPushes

	scene.Layers.SetCollide(0, 1, false)
	f.update()

	if f.ps.FilterCompiles() != 2 {
		t.Fatalf("compiles = %d, want 2", f.ps.FilterCompiles())
	}
	if f.eng.FilterPushes != pushes+1 {
		t.Fatalf("filter pushes = %d, want %d", f.eng.FilterPushes, pushes+1)
	}
	if f.eng.ActorsReleased != 0 || f.eng.ShapeDetaches != 0 || f.ps.Stats().ActorsRebuilt != 0 {
		t.Fatal("a layer matrix edit must not rebuild actors")
	}
	if got := f.onlyActor().Filter.CollideMask; got&(1<<1) != 0 {
		t.Fatalf("collide mask = %#x still contains layer 1", got)
	}

	// an edit that leaves this layer's masks alone pushes nothing
	scene.Layers.SetCollide(5, 6, false)
	f.update()
	if f.eng.FilterPushes != pushes+1 {
		t.Fatalf("filter pushes = %d after unrelated edit", f.eng.FilterPushes)
	}
}

func TestKinematicTeleportAndTarget(t *testing.T) {
	f := newBridge(t)
	e, tr := f.entity(mgl64.Vec3{})
	rb := component.NewRigidBody()
	rb.IsKinematic = true
	add(t, f.w, e, component.RigidBodyComponent.Kind(), rb)
	add(t, f.w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
	f.update()
	if f.eng.KinematicTargets != 0 || f.eng.PoseWrites != 0 {
		t.Fatal("unchanged kinematic pose was pushed")
	}

	tr.Position = mgl64.Vec3{3, 0, 0}
	rb.Teleport = true
	rb.ZeroVelocityOnTeleport = true
	f.update()
	if f.eng.PoseWrites != 1 || f.eng.KinematicTargets != 0 || rb.Teleport {
		t.Fatalf("teleport: writes = %d targets = %d pending %v", f.eng.PoseWrites, f.eng.KinematicTargets, rb.Teleport)
	}
	if got := f.onlyActor().Pose.Position; got != tr.Position {
		t.Fatalf("pose = %v", got)
	}

	tr.Position = mgl64.Vec3{4, 1, 0}
	f.update()
	if f.eng.KinematicTargets != 1 {
		t.Fatalf("targets = %d, want 1", f.eng.KinematicTargets)
	}
	if got := f.onlyActor().Pose.Position; got != tr.Position {
		t.Fatalf("pose after step = %v, want %v", got, tr.Position)
	}
	if f.ps.Stats().TransformsPulled != 0 {
		t.Fatal("kinematic bodies must not be pulled back")
	}
}

func TestStaticColliderFollowsTransform(t *testing.T) {
	f := newBridge(t)
	e, tr := f.entity(mgl64.Vec3{})
	add(t, f.w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
	f.update()

	tr.Position = mgl64.Vec3{0, 0, 7}
	f.update()
	if f.eng.PoseWrites != 1 || f.onlyActor().Pose.Position != tr.Position {
		t.Fatalf("writes = %d pose = %v", f.eng.PoseWrites, f.onlyActor().Pose.Position)
	}
}

func TestStaleEpochIsRejected(t *testing.T) {
	f := newBridge(t)
	e, _ := f.entity(mgl64.Vec3{0, 2, 0})
	rb := add(t, f.w, e, component.RigidBodyComponent.Kind(), component.NewRigidBody())
	add(t, f.w, e, component.ColliderComponent.Kind(), component.NewSphereCollider(0.5))
	f.update()

	tag := physics.NewTag(f.w.Epoch(), uint64(e))
	if got, ok := f.ps.ValidateTag(tag); !ok || got != e {
		t.Fatalf("ValidateTag = %v, %v", got, ok)
	}
	old := rb.Handle

	f.w.Clear()
	if f.eng.ActorsReleased != 1 || f.eng.Flushes != 0 {
		t.Fatalf("clear: released = %d flushes = %d", f.eng.ActorsReleased, f.eng.Flushes)
	}
	f.update()

	if _, ok := f.ps.ValidateTag(tag); ok {
		t.Fatal("tag from the previous scene validated")
	}
	if _, ok := f.ps.ValidateAndGetActor(old); ok {
		t.Fatal("handle from the previous scene resolved")
	}

	// a stale active transform is dropped
	e2, tr2 := f.entity(mgl64.Vec3{0, 2, 0})
	add(t, f.w, e2, component.RigidBodyComponent.Kind(), component.NewRigidBody())
	add(t, f.w, e2, component.ColliderComponent.Kind(), component.NewSphereCollider(0.5))
	f.update()
	actor := f.onlyActor()
	f.eng.InjectActive(physics.ActiveTransform{
		Actor: actor.ID,
		Tag:   physics.NewTag(f.w.Epoch()-1, uint64(e2)),
		Pose:  physics.Pose{Position: mgl64.Vec3{100, 100, 100}, Rotation: mgl64.QuatIdent()},
	})
	f.update()
	if tr2.Position.X() == 100 {
		t.Fatal("stale active transform was applied")
	}
}

func TestCreationFailureNotRetriedUntilChanged(t *testing.T) {
	f := newBridge(t)
	f.eng.FailCreate = true
	e, _ := f.entity(mgl64.Vec3{})
	col := add(t, f.w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))

	f.update()
	f.update()
	failures := f.logs.FilterMessage("actor creation failed; entity is not simulated").Len()
	if failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}

	f.eng.FailCreate = false
	col.Friction = 0.1
	f.update()
	if f.eng.ActorsCreated != 1 || col.Handle.IsZero() {
		t.Fatal("changed components should retry creation")
	}
}

func TestJointLifecycle(t *testing.T) {
	f := newBridge(t)
	a, _ := f.entity(mgl64.Vec3{})
	add(t, f.w, a, component.NameComponent.Kind(), &component.Name{Value: "anchor"})
	add(t, f.w, a, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))

	b, _ := f.entity(mgl64.Vec3{0, -2, 0})
	add(t, f.w, b, component.RigidBodyComponent.Kind(), component.NewRigidBody())
	add(t, f.w, b, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{0.5, 0.5, 0.5}))
	j := add(t, f.w, b, component.JointComponent.Kind(), &component.Joint{Type: physics.JointRevolute, TargetName: "anchor"})

	f.update()
	if f.eng.JointsCreated != 1 || j.Handle.IsZero() {
		t.Fatalf("joints created = %d", f.eng.JointsCreated)
	}
	id, _ := f.ps.ValidateAndGetJoint(j.Handle)
	desc := f.eng.Joint(id).Desc
	if desc.ActorA == 0 || desc.ActorB == 0 || desc.ActorA == desc.ActorB {
		t.Fatalf("joint desc = %+v", desc)
	}

	j.BreakForce = 50
	f.update()
	if f.eng.JointsCreated != 1 || f.eng.Joint(id).BreakForce != 50 {
		t.Fatal("break force should update in place")
	}

	j.TargetName = "missing"
	f.update()
	if f.eng.JointsReleased != 1 || !j.Handle.IsZero() {
		t.Fatalf("released = %d handle %+v", f.eng.JointsReleased, j.Handle)
	}
	f.update()
	if n := f.warnings("joint target not found"); n != 1 {
		t.Fatalf("target warnings = %d, want 1", n)
	}

	j.TargetName = ""
	f.update()
	if f.eng.JointsCreated != 2 || j.Handle.IsZero() {
		t.Fatal("world joint not created")
	}
	id, _ = f.ps.ValidateAndGetJoint(j.Handle)
	if f.eng.Joint(id).Desc.ActorB != 0 {
		t.Fatal("empty target should joint to the world")
	}
}

func TestJointDroppedWithItsActor(t *testing.T) {
	f := newBridge(t)
	a, _ := f.entity(mgl64.Vec3{})
	add(t, f.w, a, component.NameComponent.Kind(), &component.Name{Value: "a"})
	add(t, f.w, a, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
	b, _ := f.entity(mgl64.Vec3{3, 0, 0})
	add(t, f.w, b, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
	j := add(t, f.w, b, component.JointComponent.Kind(), &component.Joint{Type: physics.JointFixed, TargetName: "a"})
	f.update()

	ecs.DestroyEntity(f.w, a)
	f.update()
	if f.eng.JointsReleased != 1 || !j.Handle.IsZero() || f.ps.JointCount() != 0 {
		t.Fatalf("released = %d joints = %d", f.eng.JointsReleased, f.ps.JointCount())
	}
}

func TestJointBreakEvent(t *testing.T) {
	f := newBridge(t)
	e, _ := f.entity(mgl64.Vec3{})
	add(t, f.w, e, component.RigidBodyComponent.Kind(), component.NewRigidBody())
	add(t, f.w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
	j := add(t, f.w, e, component.JointComponent.Kind(), &component.Joint{Type: physics.JointSpherical, BreakForce: 10})
	f.update()

	var got []ContactEvent
	f.ps.OnContact(func(ce ContactEvent) { got = append(got, ce) })

	id, ok := f.ps.ValidateAndGetJoint(j.Handle)
	if !ok {
		t.Fatal("joint handle does not resolve")
	}
	f.eng.BreakJoint(id)
	f.update()

	if len(got) != 1 || got[0].Kind != physics.EventJointBroken || got[0].EntityA != e {
		t.Fatalf("events = %+v", got)
	}
	if !j.Broken || !j.Handle.IsZero() {
		t.Fatal("broken joint should be flagged and unbound")
	}
	evs := f.w.Events().DrainType(EventTypePrefix + physics.EventJointBroken.String())
	if len(evs) != 1 || evs[0].Type != "physics.joint_broken" {
		t.Fatalf("world events = %+v", evs)
	}

	f.update()
	if f.eng.JointsCreated != 1 {
		t.Fatal("broken joint was rebuilt without a settings change")
	}

	j.Anchor = mgl64.Vec3{0, 1, 0}
	f.update()
	if f.eng.JointsCreated != 2 || j.Broken {
		t.Fatal("structural change should rebuild a broken joint")
	}
}

func TestContactEventsDecodeTags(t *testing.T) {
	f := newBridge(t)
	a, _ := f.entity(mgl64.Vec3{})
	add(t, f.w, a, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
	b, _ := f.entity(mgl64.Vec3{0, 2, 0})
	add(t, f.w, b, component.RigidBodyComponent.Kind(), component.NewRigidBody())
	add(t, f.w, b, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
	f.update()

	var got []ContactEvent
	f.ps.OnContact(func(ce ContactEvent) { got = append(got, ce) })

	epoch := f.w.Epoch()
	f.eng.QueueEvent(physics.Event{Kind: physics.EventContactBegin, TagA: physics.NewTag(epoch, uint64(a)), TagB: physics.NewTag(epoch, uint64(b)), Impulse: 3})
	f.eng.QueueEvent(physics.Event{Kind: physics.EventTriggerEnter, TagA: physics.NewTag(epoch+1, uint64(a)), TagB: physics.NewTag(epoch, uint64(b))})
	f.eng.QueueEvent(physics.Event{Kind: physics.EventContactEnd, TagA: physics.NewTag(epoch, 999), TagB: physics.NewTag(epoch, uint64(b))})
	f.update()

	if len(got) != 1 {
		t.Fatalf("events = %+v, want only the valid one", got)
	}
	if got[0].EntityA != a || got[0].EntityB != b || got[0].Impulse != 3 {
		t.Fatalf("event = %+v", got[0])
	}
	if f.ps.Stats().EventsDispatched != 1 {
		t.Fatalf("dispatched = %d", f.ps.Stats().EventsDispatched)
	}
}

func TestGroundPlane(t *testing.T) {
	f := newBridge(t)
	scene := f.scene()
	scene.GroundPlane.Enabled = true
	scene.GroundPlane.Height = -1
	f.update()
	f.update()

	if f.eng.ActorsCreated != 1 {
		t.Fatalf("created = %d, want the ground plane once", f.eng.ActorsCreated)
	}
	id, ok := f.ps.GroundPlaneActor()
	if !ok || f.eng.Actor(id).Pose.Position.Y() != -1 {
		t.Fatal("ground plane at the wrong height")
	}

	owner, hit, ok := f.ps.Raycast(mgl64.Vec3{0, 5, 0}, mgl64.Vec3{0, -1, 0}, 10, component.DefaultLayer)
	if !ok || hit.Distance != 6 {
		t.Fatalf("raycast = %+v %v", hit, ok)
	}
	if sceneEnt, _ := ecs.First(f.w, component.PhysicsSceneComponent.Kind()); owner != sceneEnt {
		t.Fatal("ground hit should decode to the scene entity")
	}

	scene.GroundPlane.Friction = 0.7
	f.update()
	if f.eng.ActorsReleased != 1 || f.eng.ActorsCreated != 2 {
		t.Fatalf("snapshot change: released = %d created = %d", f.eng.ActorsReleased, f.eng.ActorsCreated)
	}

	scene.GroundPlane.Enabled = false
	f.update()
	if _, ok := f.ps.GroundPlaneActor(); ok || f.eng.ActorsReleased != 2 {
		t.Fatal("disabled ground plane should be released")
	}
}

func TestGravityPushedOnChange(t *testing.T) {
	f := newBridge(t)
	f.update()
	if f.eng.Gravity != (mgl64.Vec3{0, -9.81, 0}) {
		t.Fatalf("gravity = %v", f.eng.Gravity)
	}
	scene := f.scene()
	scene.Gravity = mgl64.Vec3{0, -1, 0}
	f.update()
	if f.eng.Gravity != scene.Gravity {
		t.Fatalf("gravity = %v, want scene gravity", f.eng.Gravity)
	}
}

func TestSwapEngineAndClose(t *testing.T) {
	f := newBridge(t)
	e, _ := f.entity(mgl64.Vec3{})
	col := add(t, f.w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
	f.update()

	next := physicstest.New()
	f.ps.SwapEngine(next)
	if f.eng.ActorsReleased != 1 || f.eng.Flushes != 1 {
		t.Fatalf("previous engine: released = %d flushes = %d", f.eng.ActorsReleased, f.eng.Flushes)
	}
	if !col.Handle.IsZero() {
		t.Fatal("handle survived the swap")
	}

	f.ps.Update(f.w, tick)
	if next.ActorsCreated != 1 || col.Handle.IsZero() {
		t.Fatal("actor not recreated on the new engine")
	}
	if f.ps.Engine() != physics.Engine(next) {
		t.Fatal("Engine() should report the new engine")
	}

	f.ps.Close()
	if next.ActorsReleased != 1 || next.Flushes != 1 {
		t.Fatalf("close: released = %d flushes = %d", next.ActorsReleased, next.Flushes)
	}
	f.ps.Update(f.w, tick)
	if next.Steps != 1 {
		t.Fatal("closed system kept stepping")
	}
}

func TestHandlesStayStaleAcrossTeardown(t *testing.T) {
	cases := []struct {
		name     string
		teardown func(f *bridgeFixture)
	}{
		{"swap_engine", func(f *bridgeFixture) { f.ps.SwapEngine(physicstest.New()) }},
		{"teardown", func(f *bridgeFixture) { f.ps.Teardown() }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newBridge(t)
			a, _ := f.entity(mgl64.Vec3{})
			col := add(t, f.w, a, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
			f.update()
			stale := col.Handle

			c.teardown(f)
			ecs.DestroyEntity(f.w, a)
			b, _ := f.entity(mgl64.Vec3{3, 0, 0})
			fresh := add(t, f.w, b, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
			f.update()

			if fresh.Handle.IsZero() {
				t.Fatal("new collider has no actor")
			}
			if fresh.Handle == stale {
				t.Fatalf("new handle %+v equals the one minted before teardown", fresh.Handle)
			}
			if _, ok := f.ps.ValidateAndGetActor(stale); ok {
				t.Fatal("handle from before teardown resolves to another entity's actor")
			}
		})
	}
}

func TestDebugThreadCheck(t *testing.T) {
	core, _ := observer.New(zapcore.WarnLevel)
	eng := physicstest.New()
	ps := NewPhysicsSystem(eng, PhysicsOptions{Logger: zap.New(core), DebugThreadCheck: true})
	w := ecs.NewWorld()
	e := ecs.CreateEntity(w)
	add(t, w, e, component.ColliderComponent.Kind(), component.NewBoxCollider(mgl64.Vec3{1, 1, 1}))
	ps.Update(w, tick)

	ps.OnContact(func(ContactEvent) { ps.Update(w, tick) })
	tag := physics.NewTag(w.Epoch(), uint64(e))
	eng.QueueEvent(physics.Event{Kind: physics.EventContactBegin, TagA: tag, TagB: tag})

	defer func() {
		if recover() == nil {
			t.Fatal("re-entered Update should panic")
		}
	}()
	ps.Update(w, tick)
}

func (f *bridgeFixture) controller(foot mgl64.Vec3) (*component.CharacterController, *component.Transform) {
	scene := f.scene()
	scene.GroundPlane.Enabled = true
	e, tr := f.entity(foot)
	return add(f.t, f.w, e, component.CharacterControllerComponent.Kind(), component.NewCharacterController()), tr
}

func TestControllerGroundedAndJump(t *testing.T) {
	f := newBridge(t)
	cc, tr := f.controller(mgl64.Vec3{})
	f.update()

	if f.eng.ControllersCreated != 1 || cc.Handle.IsZero() {
		t.Fatal("controller not created")
	}
	if !cc.Grounded || cc.VerticalVelocity != 0 {
		t.Fatalf("grounded = %v vv = %v, want resting", cc.Grounded, cc.VerticalVelocity)
	}

	cc.JumpRequested = true
	f.update()
	if cc.JumpRequested || cc.VerticalVelocity <= 0 {
		t.Fatalf("jump not consumed: pending %v vv %v", cc.JumpRequested, cc.VerticalVelocity)
	}
	if cc.Grounded || tr.Position.Y() <= 0 {
		t.Fatalf("grounded = %v y = %v after jumping", cc.Grounded, tr.Position.Y())
	}
}

func TestControllerJumpWaitsForGround(t *testing.T) {
	f := newBridge(t)
	cc, _ := f.controller(mgl64.Vec3{0, 2, 0})
	cc.JumpRequested = true
	f.update()

	if !cc.JumpRequested {
		t.Fatal("airborne jump request should stay pending")
	}
	if cc.Grounded || cc.VerticalVelocity >= 0 {
		t.Fatalf("grounded = %v vv = %v, want falling", cc.Grounded, cc.VerticalVelocity)
	}
}

func TestControllerLandingStopsFall(t *testing.T) {
	f := newBridge(t)
	cc, tr := f.controller(mgl64.Vec3{0, 0.05, 0})
	cc.VerticalVelocity = -3
	f.update()

	if cc.CollisionFlags&physics.CollisionDown == 0 {
		t.Fatalf("flags = %b, want CollisionDown", cc.CollisionFlags)
	}
	if cc.VerticalVelocity != 0 || !cc.Grounded {
		t.Fatalf("vv = %v grounded = %v after landing", cc.VerticalVelocity, cc.Grounded)
	}
	if tr.Position.Y() != 0 {
		t.Fatalf("foot y = %v, want 0", tr.Position.Y())
	}
}

func TestControllerTeleportSkipsSweep(t *testing.T) {
	f := newBridge(t)
	cc, tr := f.controller(mgl64.Vec3{})
	f.update()
	moves := f.eng.ControllerMoves

	tr.Position = mgl64.Vec3{5, 3, 0}
	cc.Teleport = true
	cc.VerticalVelocity = -1
	f.update()

	if f.eng.ControllerMoves != moves {
		t.Fatalf("moves = %d, want %d", f.eng.ControllerMoves, moves)
	}
	id, ok := f.ps.ValidateAndGetController(cc.Handle)
	if !ok || f.eng.ControllerFootPosition(id) != tr.Position {
		t.Fatal("foot not moved to the transform")
	}
	if cc.Teleport || cc.VerticalVelocity != 0 || cc.Grounded {
		t.Fatalf("teleport = %v vv = %v grounded = %v", cc.Teleport, cc.VerticalVelocity, cc.Grounded)
	}
}

func TestControllerRemoved(t *testing.T) {
	f := newBridge(t)
	cc, _ := f.controller(mgl64.Vec3{})
	f.update()

	var e ecs.Entity
	ecs.ForEach(f.w, component.CharacterControllerComponent.Kind(), func(x ecs.Entity, _ *component.CharacterController) { e = x })
	ecs.Remove(f.w, e, component.CharacterControllerComponent.Kind())
	f.update()

	if f.eng.ControllerReleases != 1 || !cc.Handle.IsZero() || f.ps.ControllerCount() != 0 {
		t.Fatalf("releases = %d controllers = %d", f.eng.ControllerReleases, f.ps.ControllerCount())
	}
}
