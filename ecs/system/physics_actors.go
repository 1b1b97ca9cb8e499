package system

import (
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

// minShapeExtent is the smallest dimension a primitive shape is built with.
const minShapeExtent = 1e-3

type actorComponents struct {
	transform *component.Transform
	rb        *component.RigidBody
	col       *component.Collider
	mesh      *component.MeshCollider
	terrain   *component.Terrain
}

func gatherActorComponents(w *ecs.World, e ecs.Entity) actorComponents {
	var c actorComponents
	if !ecs.IsAlive(w, e) {
		return c
	}
	c.transform, _ = ecs.Get(w, e, component.TransformComponent.Kind())
	c.rb, _ = ecs.Get(w, e, component.RigidBodyComponent.Kind())
	c.col, _ = ecs.Get(w, e, component.ColliderComponent.Kind())
	c.mesh, _ = ecs.Get(w, e, component.MeshColliderComponent.Kind())
	c.terrain, _ = ecs.Get(w, e, component.TerrainComponent.Kind())
	return c
}

type actorPlan struct {
	role   ownerRole
	kind   physics.BodyKind
	shapes shapeSource
}

// planActor decides which component owns the actor and which supplies its
// shapes. Terrain excludes everything else; a mesh collider beats a
// primitive collider.
func planActor(c actorComponents) actorPlan {
	switch {
	case c.terrain != nil:
		return actorPlan{role: ownerTerrain, kind: physics.BodyStatic, shapes: shapesTerrain}
	case c.rb != nil:
		p := actorPlan{role: ownerRigidBody, kind: physics.BodyDynamic}
		if c.rb.IsKinematic {
			p.kind = physics.BodyKinematic
		}
		switch {
		case c.mesh != nil:
			p.shapes = shapesMesh
		case c.col != nil:
			p.shapes = shapesCollider
		}
		return p
	case c.mesh != nil:
		return actorPlan{role: ownerMeshCollider, kind: physics.BodyStatic, shapes: shapesMesh}
	case c.col != nil:
		return actorPlan{role: ownerCollider, kind: physics.BodyStatic, shapes: shapesCollider}
	}
	return actorPlan{}
}

// effective drops the components the plan ignores so their snapshots are
// released and they are recreated cleanly if the winner goes away.
func (p actorPlan) effective(c actorComponents) actorComponents {
	out := actorComponents{transform: c.transform}
	if p.role == ownerRigidBody {
		out.rb = c.rb
	}
	switch p.shapes {
	case shapesCollider:
		out.col = c.col
	case shapesMesh:
		out.mesh = c.mesh
	case shapesTerrain:
		out.terrain = c.terrain
	}
	return out
}

func (ps *PhysicsSystem) actorCandidates(w *ecs.World) []ecs.Entity {
	seen := make(map[ecs.Entity]struct{}, len(ps.reg.actorByEntity))
	add := func(e ecs.Entity) { seen[e] = struct{}{} }
	ecs.ForEach(w, component.RigidBodyComponent.Kind(), func(e ecs.Entity, _ *component.RigidBody) { add(e) })
	ecs.ForEach(w, component.ColliderComponent.Kind(), func(e ecs.Entity, _ *component.Collider) { add(e) })
	ecs.ForEach(w, component.MeshColliderComponent.Kind(), func(e ecs.Entity, _ *component.MeshCollider) { add(e) })
	ecs.ForEach(w, component.TerrainComponent.Kind(), func(e ecs.Entity, _ *component.Terrain) { add(e) })
	for e := range ps.reg.actorByEntity {
		add(e)
	}
	for e := range ps.reg.failed {
		add(e)
	}
	out := make([]ecs.Entity, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

func (ps *PhysicsSystem) syncActors(w *ecs.World) {
	for _, e := range ps.actorCandidates(w) {
		ps.syncActor(w, e, gatherActorComponents(w, e))
	}
}

func (ps *PhysicsSystem) syncActor(w *ecs.World, e ecs.Entity, all actorComponents) {
	plan := planActor(all)
	c := plan.effective(all)
	if c.col != nil {
		ps.sanitizeLayer(e, filterCollider, &c.col.CollisionLayer)
	}
	if c.mesh != nil {
		ps.sanitizeLayer(e, filterMesh, &c.mesh.CollisionLayer)
	}
	if c.terrain != nil {
		ps.sanitizeLayer(e, filterTerrain, &c.terrain.CollisionLayer)
	}

	rbCh := ps.diff.rigidBody(e, c.rb)
	colCh := ps.diff.collider(e, c.col)
	meshCh := ps.diff.mesh(e, c.mesh)
	terrCh := ps.diff.terrain(e, c.terrain)

	rec, h, exists := ps.reg.actorFor(e)
	if plan.role == ownerNone {
		if exists {
			ps.destroyActor(h, rec)
		}
		delete(ps.reg.failed, e)
		ps.forgetFilter(e, filterCollider)
		ps.forgetFilter(e, filterMesh)
		ps.forgetFilter(e, filterTerrain)
		return
	}

	if !exists {
		_, failed := ps.reg.failed[e]
		changed := rbCh != ChangeNone || colCh != ChangeNone || meshCh != ChangeNone || terrCh != ChangeNone
		if !failed || changed {
			ps.createActor(w, e, all, c, plan)
		}
		return
	}

	if rec.role != plan.role || rbCh == ChangeRebuild || terrCh == ChangeRebuild {
		ps.log.Debug("rebuilding actor", entityField(e),
			zap.Stringer("role", plan.role), zap.Stringer("previous", rec.role))
		ps.destroyActor(h, rec)
		if ps.createActor(w, e, all, c, plan) {
			ps.stats.ActorsRebuilt++
		}
		return
	}

	if rec.shapes != plan.shapes || reshapes(colCh) || reshapes(meshCh) {
		if rec.shapes != plan.shapes {
			ps.warnConflicts(e, all)
		}
		ps.rebuildShapes(e, rec, h, c, plan)
	} else {
		ps.patchSurface(e, rec, c, colCh, meshCh, terrCh)
	}

	if rbCh == ChangeInPlace {
		ps.engine.SetBodyProps(rec.actor, bodyProps(c.rb))
		rec.kind = plan.kind
		ps.stats.InPlaceUpdates++
	}
}

func reshapes(ch Change) bool {
	return ch == ChangeRebuild || ch == ChangeCreate || ch == ChangeDestroy
}

func (ps *PhysicsSystem) warnConflicts(e ecs.Entity, c actorComponents) {
	if c.terrain != nil && (c.rb != nil || c.col != nil || c.mesh != nil) {
		ps.log.Warn("terrain excludes rigid bodies and colliders on the same entity; ignoring them", entityField(e))
		return
	}
	if c.mesh != nil && c.col != nil {
		ps.log.Warn("mesh collider and collider on the same entity; using the mesh collider", entityField(e))
	}
}

// createActor builds the actor for e. Shapes without a local offset go
// through the engine's single-call path; anything else gets an empty actor at
// the entity pose with shapes attached at their local pose.
func (ps *PhysicsSystem) createActor(w *ecs.World, e ecs.Entity, all, c actorComponents, plan actorPlan) bool {
	ps.warnConflicts(e, all)

	pose := transformPose(c.transform)
	desc := physics.ActorDesc{Kind: plan.kind, Pose: pose, Tag: ps.tag(e)}
	if c.rb != nil {
		desc.Body = bodyProps(c.rb)
	}
	shapes := ps.buildShapes(e, c, plan)

	var (
		id  physics.ActorID
		err error
	)
	if len(shapes) == 1 && primitive(shapes[0].Type) && shapes[0].LocalPose.IsIdentity() {
		id, err = ps.engine.CreateActorWithShape(desc, shapes[0])
	} else {
		id, err = ps.engine.CreateActor(desc)
		if err == nil {
			ps.attachShapes(e, id, shapes)
		}
	}
	if err != nil {
		ps.log.Error("actor creation failed; entity is not simulated",
			entityField(e), zap.Stringer("role", plan.role), zap.Error(err))
		ps.reg.failed[e] = struct{}{}
		return false
	}
	delete(ps.reg.failed, e)

	rec := &actorRecord{entity: e, actor: id, role: plan.role, kind: plan.kind}
	h := ps.reg.addActor(rec)
	ps.bindShapeSource(rec, h, c, plan.shapes)
	if c.rb != nil {
		rec.rb = c.rb
		c.rb.Handle = h
	}
	ps.stats.ActorsCreated++
	ps.log.Debug("actor created", entityField(e),
		zap.Stringer("role", plan.role), zap.Stringer("body", plan.kind), zap.Int("shapes", len(shapes)))

	if plan.kind == physics.BodyDynamic {
		pose = ps.engine.ActorPose(id)
		writeTransform(w, e, c.transform, pose)
	}
	ps.poses[e] = pose
	return true
}

func primitive(t physics.ShapeType) bool {
	return t == physics.ShapeBox || t == physics.ShapeSphere || t == physics.ShapeCapsule
}

func (ps *PhysicsSystem) attachShapes(e ecs.Entity, actor physics.ActorID, shapes []physics.ShapeDesc) {
	for _, s := range shapes {
		if _, err := ps.engine.AttachShape(actor, s); err != nil {
			ps.log.Error("shape attach failed", entityField(e), zap.Stringer("shape", s.Type), zap.Error(err))
		}
	}
}

// bindShapeSource points the shape-supplying component at the record and
// detaches any component that no longer supplies shapes.
func (ps *PhysicsSystem) bindShapeSource(rec *actorRecord, h physics.Handle, c actorComponents, src shapeSource) {
	if rec.col != nil && (src != shapesCollider || rec.col != c.col) {
		if rec.col.Handle == h {
			rec.col.Handle = physics.Handle{}
		}
		rec.col = nil
	}
	if rec.mesh != nil && (src != shapesMesh || rec.mesh != c.mesh) {
		if rec.mesh.Handle == h {
			rec.mesh.Handle = physics.Handle{}
		}
		rec.mesh = nil
	}
	switch src {
	case shapesCollider:
		rec.col = c.col
		c.col.Handle = h
	case shapesMesh:
		rec.mesh = c.mesh
		c.mesh.Handle = h
	case shapesTerrain:
		rec.terrain = c.terrain
		c.terrain.Handle = h
	}
	rec.shapes = src
}

func (ps *PhysicsSystem) rebuildShapes(e ecs.Entity, rec *actorRecord, h physics.Handle, c actorComponents, plan actorPlan) {
	ps.engine.DetachShapes(rec.actor)
	ps.attachShapes(e, rec.actor, ps.buildShapes(e, c, plan))
	ps.bindShapeSource(rec, h, c, plan.shapes)
	ps.stats.ShapeRebuilds++
	ps.log.Debug("actor shapes rebuilt", entityField(e))
}

func (ps *PhysicsSystem) patchSurface(e ecs.Entity, rec *actorRecord, c actorComponents, colCh, meshCh, terrCh Change) {
	switch rec.shapes {
	case shapesCollider:
		if colCh == ChangeInPlace {
			ps.engine.SetShapeMaterial(rec.actor, physics.Material{Friction: c.col.Friction, Restitution: c.col.Restitution})
			ps.pushActorFilter(e, filterCollider, &c.col.CollisionLayer, rec)
			ps.stats.InPlaceUpdates++
		}
	case shapesMesh:
		if meshCh == ChangeInPlace {
			ps.engine.SetShapeMaterial(rec.actor, physics.Material{Friction: c.mesh.Friction, Restitution: c.mesh.Restitution})
			ps.pushActorFilter(e, filterMesh, &c.mesh.CollisionLayer, rec)
			ps.stats.InPlaceUpdates++
		}
	case shapesTerrain:
		if terrCh == ChangeInPlace {
			ps.engine.SetShapeMaterial(rec.actor, physics.Material{Friction: c.terrain.Friction, Restitution: c.terrain.Restitution})
			ps.pushActorFilter(e, filterTerrain, &c.terrain.CollisionLayer, rec)
			ps.stats.InPlaceUpdates++
		}
	}
}

// destroyActor releases joints attached to the actor before the actor.
func (ps *PhysicsSystem) destroyActor(h physics.Handle, rec *actorRecord) {
	ps.releaseJointsOn(rec.actor)
	ps.engine.ReleaseActor(rec.actor)
	ps.reg.removeActor(h)
	delete(ps.poses, rec.entity)
	ps.stats.ActorsDestroyed++
	ps.log.Debug("actor destroyed", entityField(rec.entity), zap.Stringer("role", rec.role))
}

func (ps *PhysicsSystem) buildShapes(e ecs.Entity, c actorComponents, plan actorPlan) []physics.ShapeDesc {
	var (
		s  physics.ShapeDesc
		ok bool
	)
	switch plan.shapes {
	case shapesCollider:
		s, ok = ps.colliderShape(e, c.col), true
	case shapesMesh:
		s, ok = ps.meshShape(e, c.mesh, plan.role == ownerRigidBody)
	case shapesTerrain:
		s, ok = ps.terrainShape(e, c.terrain)
	}
	if !ok {
		return nil
	}
	return []physics.ShapeDesc{s}
}

func clampExtent(v float64) (float64, bool) {
	if v < minShapeExtent {
		return minShapeExtent, true
	}
	return v, false
}

func (ps *PhysicsSystem) colliderShape(e ecs.Entity, col *component.Collider) physics.ShapeDesc {
	s := physics.ShapeDesc{
		LocalPose: physics.Pose{Position: col.Offset, Rotation: mgl64.QuatIdent()},
		Trigger:   col.IsTrigger,
		Material:  physics.Material{Friction: col.Friction, Restitution: col.Restitution},
	}
	clamped := false
	switch col.Type {
	case component.ColliderSphere:
		s.Type = physics.ShapeSphere
		s.Radius, clamped = clampExtent(col.Radius)
	case component.ColliderCapsule:
		s.Type = physics.ShapeCapsule
		s.Axis = col.Axis
		s.Radius, clamped = clampExtent(col.Radius)
		s.HalfHeight = col.HalfHeight
		if s.HalfHeight < 0 {
			s.HalfHeight, clamped = 0, true
		}
	default:
		s.Type = physics.ShapeBox
		for i := range s.HalfExtents {
			var c bool
			s.HalfExtents[i], c = clampExtent(col.HalfExtents[i])
			clamped = clamped || c
		}
	}
	if clamped {
		ps.log.Warn("collider dimensions too small; clamped", entityField(e), zap.Stringer("shape", s.Type))
	}
	s.Filter, _ = ps.layerFilter(e, filterCollider, &col.CollisionLayer)
	return s
}

func (ps *PhysicsSystem) meshShape(e ecs.Entity, m *component.MeshCollider, onBody bool) (physics.ShapeDesc, bool) {
	caps := ps.engine.Capabilities()
	if !caps.MeshCooking {
		ps.log.Error("engine cannot cook meshes; mesh collider dropped", entityField(e), zap.String("mesh", m.MeshPath))
		return physics.ShapeDesc{}, false
	}
	data, err := ps.opts.Meshes.LoadMesh(m.MeshPath)
	if err != nil {
		ps.log.Warn("mesh load failed; mesh collider dropped", entityField(e), zap.Error(err))
		return physics.ShapeDesc{}, false
	}
	if data == nil || len(data.Vertices) == 0 {
		ps.log.Warn("mesh has no geometry; mesh collider dropped", entityField(e), zap.String("mesh", m.MeshPath))
		return physics.ShapeDesc{}, false
	}

	s := physics.ShapeDesc{
		LocalPose: physics.IdentityPose(),
		Mesh:      scaleMesh(data, m.Scale),
		Trigger:   m.IsTrigger,
		Material:  physics.Material{Friction: m.Friction, Restitution: m.Restitution},
	}
	typ := m.Type
	if typ == component.MeshTriangle && onBody {
		ps.log.Warn("triangle meshes cannot attach to rigid bodies; using the convex hull",
			entityField(e), zap.String("mesh", m.MeshPath))
		typ = component.MeshConvex
	}
	if typ == component.MeshTriangle {
		if len(data.Indices) < 3 {
			ps.log.Warn("triangle mesh has no triangles; mesh collider dropped", entityField(e), zap.String("mesh", m.MeshPath))
			return physics.ShapeDesc{}, false
		}
		s.Type = physics.ShapeTriangleMesh
		if s.Trigger {
			ps.log.Warn("triangle meshes cannot be triggers; trigger flag ignored", entityField(e))
			s.Trigger = false
		}
	} else {
		s.Type = physics.ShapeConvex
		s.MaxVertices = ps.convexLimit(e, m, len(data.Vertices), caps.MaxConvexVertices)
	}
	s.Filter, _ = ps.layerFilter(e, filterMesh, &m.CollisionLayer)
	return s, true
}

func (ps *PhysicsSystem) convexLimit(e ecs.Entity, m *component.MeshCollider, vertices, engineMax int) int {
	limit := m.VertexLimit
	if limit <= 0 {
		limit = engineMax
	}
	if engineMax > 0 && limit > engineMax {
		ps.log.Warn("convex vertex limit above engine maximum; clamped",
			entityField(e), zap.Int("limit", limit), zap.Int("max", engineMax))
		return engineMax
	}
	if limit > 0 && vertices > limit {
		ps.log.Warn("convex hull vertex count clamped",
			entityField(e), zap.Int("vertices", vertices), zap.Int("limit", limit))
	}
	return limit
}

func scaleMesh(m *physics.MeshData, scale mgl64.Vec3) *physics.MeshData {
	if scale == (mgl64.Vec3{}) || scale == (mgl64.Vec3{1, 1, 1}) {
		return m
	}
	out := &physics.MeshData{Vertices: make([]mgl64.Vec3, len(m.Vertices)), Indices: m.Indices}
	for i, v := range m.Vertices {
		out.Vertices[i] = mgl64.Vec3{v[0] * scale[0], v[1] * scale[1], v[2] * scale[2]}
	}
	return out
}

func (ps *PhysicsSystem) terrainShape(e ecs.Entity, t *component.Terrain) (physics.ShapeDesc, bool) {
	if !ps.engine.Capabilities().HeightFields {
		ps.log.Error("engine has no heightfield support; terrain dropped", entityField(e))
		return physics.ShapeDesc{}, false
	}
	hf := &physics.HeightField{
		Rows:        t.Rows,
		Cols:        t.Cols,
		HeightScale: t.HeightScale,
		RowScale:    t.RowScale,
		ColScale:    t.ColScale,
	}
	if hf.Rows < 2 || hf.Cols < 2 {
		ps.log.Warn("terrain needs at least 2x2 samples; clamped",
			entityField(e), zap.Int("rows", t.Rows), zap.Int("cols", t.Cols))
		hf.Rows = max(hf.Rows, 2)
		hf.Cols = max(hf.Cols, 2)
	}
	n := hf.Rows * hf.Cols
	hf.Heights = make([]float64, n)
	copy(hf.Heights, t.Heights)
	if len(t.Heights) != n {
		ps.log.Warn("terrain sample count does not match dimensions; padded or truncated",
			entityField(e), zap.Int("samples", len(t.Heights)), zap.Int("expected", n))
	}
	for _, sc := range []*float64{&hf.HeightScale, &hf.RowScale, &hf.ColScale} {
		if *sc <= 0 {
			*sc = 1
		}
	}
	s := physics.ShapeDesc{
		Type:        physics.ShapeHeightField,
		LocalPose:   physics.IdentityPose(),
		HeightField: hf,
		Material:    physics.Material{Friction: t.Friction, Restitution: t.Restitution},
	}
	s.Filter, _ = ps.layerFilter(e, filterTerrain, &t.CollisionLayer)
	return s, true
}
