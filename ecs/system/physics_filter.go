package system

import (
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

type filterKind uint8

const (
	filterCollider filterKind = iota
	filterMesh
	filterTerrain
	filterController
	filterGround
)

func (k filterKind) String() string {
	switch k {
	case filterCollider:
		return "collider"
	case filterMesh:
		return "mesh_collider"
	case filterTerrain:
		return "terrain"
	case filterController:
		return "character_controller"
	default:
		return "ground_plane"
	}
}

type maskKey struct {
	entity ecs.Entity
	kind   filterKind
}

// filterCompiler turns the layer matrix into per-layer masks and caches the
// runtime filter of every entity per component kind. Compilation is skipped
// while the matrix revision is unchanged.
type filterCompiler struct {
	log      *zap.Logger
	matrix   *physics.LayerMatrix
	revision uint64
	compiled bool
	table    physics.MaskTable
	masks    map[maskKey]physics.FilterData

	// Compiles counts full recompilations.
	Compiles int
}

func newFilterCompiler(log *zap.Logger) filterCompiler {
	return filterCompiler{log: log, masks: make(map[maskKey]physics.FilterData)}
}

func (fc *filterCompiler) reset() {
	fc.matrix = nil
	fc.revision = 0
	fc.compiled = false
	fc.table = physics.MaskTable{}
	clear(fc.masks)
}

func (fc *filterCompiler) stale(m *physics.LayerMatrix) bool {
	return !fc.compiled || m != fc.matrix || m.Revision() != fc.revision
}

// compile rebuilds the mask table when m changed and pushes every filter that
// moved into the engine without touching actors.
func (fc *filterCompiler) compile(ps *PhysicsSystem, w *ecs.World, m *physics.LayerMatrix) {
	if !fc.stale(m) {
		return
	}
	fc.matrix = m
	fc.revision = m.Revision()
	fc.table = m.Compile()
	fc.compiled = true
	fc.Compiles++
	fc.log.Debug("layer masks compiled", zap.Uint64("revision", fc.revision))

	ecs.ForEach(w, component.ColliderComponent.Kind(), func(e ecs.Entity, c *component.Collider) {
		if rec, _, ok := ps.reg.actorFor(e); ok && rec.shapes == shapesCollider {
			ps.pushActorFilter(e, filterCollider, &c.CollisionLayer, rec)
		}
	})
	ecs.ForEach(w, component.MeshColliderComponent.Kind(), func(e ecs.Entity, m *component.MeshCollider) {
		if rec, _, ok := ps.reg.actorFor(e); ok && rec.shapes == shapesMesh {
			ps.pushActorFilter(e, filterMesh, &m.CollisionLayer, rec)
		}
	})
	ecs.ForEach(w, component.TerrainComponent.Kind(), func(e ecs.Entity, t *component.Terrain) {
		if rec, _, ok := ps.reg.actorFor(e); ok && rec.shapes == shapesTerrain {
			ps.pushActorFilter(e, filterTerrain, &t.CollisionLayer, rec)
		}
	})
	ecs.ForEach(w, component.CharacterControllerComponent.Kind(), func(e ecs.Entity, c *component.CharacterController) {
		if rec, _, ok := ps.reg.controllerFor(e); ok {
			if f, changed := ps.layerFilter(e, filterController, &c.CollisionLayer); changed {
				ps.engine.SetControllerFilter(rec.ctrl, f)
				ps.stats.FilterPushes++
			}
		}
	})
}

// sanitizeLayer reduces cl.Layer to a single bit, logging any correction.
// It is idempotent.
func (ps *PhysicsSystem) sanitizeLayer(e ecs.Entity, kind filterKind, cl *component.CollisionLayer) {
	fixed, fix := physics.SanitizeLayer(cl.Layer)
	switch fix {
	case physics.LayerFixZero:
		ps.log.Warn("collision layer has no bits set; using layer 0",
			entityField(e), zap.Stringer("kind", kind))
	case physics.LayerFixMultiBit:
		ps.log.Warn("collision layer has several bits set; keeping the lowest",
			entityField(e), zap.Stringer("kind", kind),
			zap.Uint32("layer", cl.Layer), zap.Uint32("fixed", fixed))
	}
	cl.Layer = fixed
}

// layerFilter sanitizes cl in place and returns the entity's filter for kind.
// changed reports whether it differs from the cached one.
func (ps *PhysicsSystem) layerFilter(e ecs.Entity, kind filterKind, cl *component.CollisionLayer) (physics.FilterData, bool) {
	ps.sanitizeLayer(e, kind, cl)
	f := ps.filters.table.Filter(cl.Layer, cl.Ignore)
	key := maskKey{entity: e, kind: kind}
	prev, ok := ps.filters.masks[key]
	ps.filters.masks[key] = f
	return f, !ok || prev != f
}

func (ps *PhysicsSystem) pushActorFilter(e ecs.Entity, kind filterKind, cl *component.CollisionLayer, rec *actorRecord) {
	if f, changed := ps.layerFilter(e, kind, cl); changed {
		ps.engine.SetShapeFilter(rec.actor, f)
		ps.stats.FilterPushes++
	}
}

func (ps *PhysicsSystem) forgetFilter(e ecs.Entity, kind filterKind) {
	delete(ps.filters.masks, maskKey{entity: e, kind: kind})
}

// FilterCompiles reports how many times the layer matrix was compiled.
func (ps *PhysicsSystem) FilterCompiles() int {
	return ps.filters.Compiles
}

func (ps *PhysicsSystem) layerMatrix(scene *component.PhysicsScene) *physics.LayerMatrix {
	if scene != nil && scene.Layers != nil {
		return scene.Layers
	}
	return ps.opts.Layers
}
