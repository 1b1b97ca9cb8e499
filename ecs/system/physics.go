package system

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/common"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/physics"
	"go.uber.org/zap"
)

const (
	defaultGroundProbe = 0.1
	defaultMinMove     = 1e-4
)

// PhysicsOptions configures a PhysicsSystem. Zero values select defaults.
type PhysicsOptions struct {
	Logger *zap.Logger
	Meshes physics.MeshLoader

	// Layers is used when the scene has no PhysicsScene entity or the scene
	// leaves its matrix nil.
	Layers *physics.LayerMatrix
	// Gravity applies while the scene has no PhysicsScene entity.
	Gravity mgl64.Vec3
	Epsilon float64

	GroundProbeDistance float64
	MinMoveDistance     float64

	// DebugThreadCheck panics when Update is re-entered while a tick is
	// already running.
	DebugThreadCheck bool
}

// TickStats counts the lifecycle work done by the last Update.
type TickStats struct {
	ActorsCreated    int
	ActorsRebuilt    int
	ShapeRebuilds    int
	InPlaceUpdates   int
	ActorsDestroyed  int
	FilterPushes     int
	JointsCreated    int
	JointsDestroyed  int
	TransformsPulled int
	EventsDispatched int
}

// PhysicsSystem keeps engine actors, joints, and controllers in step with the
// authoring components of one world.
type PhysicsSystem struct {
	engine *physics.SharedEngine
	log    *zap.Logger
	opts   PhysicsOptions

	bound *ecs.World
	epoch uint64

	reg     registry
	filters filterCompiler
	diff    diffEngine
	ground  groundState
	gravity *mgl64.Vec3
	// poses is the last pose exchanged with the engine per entity.
	poses map[ecs.Entity]physics.Pose

	handlers []func(ContactEvent)
	pending  []physics.Event

	stats  TickStats
	inTick atomic.Bool
}

func NewPhysicsSystem(engine physics.Engine, opts PhysicsOptions) *PhysicsSystem {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Meshes == nil {
		opts.Meshes = physics.NewMeshLibrary()
	}
	if opts.Layers == nil {
		opts.Layers = physics.NewLayerMatrix()
	}
	if opts.Gravity == (mgl64.Vec3{}) {
		opts.Gravity = mgl64.Vec3{0, -9.81, 0}
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = common.DefaultEpsilon
	}
	if opts.GroundProbeDistance <= 0 {
		opts.GroundProbeDistance = defaultGroundProbe
	}
	if opts.MinMoveDistance <= 0 {
		opts.MinMoveDistance = defaultMinMove
	}

	ps := &PhysicsSystem{
		log:   opts.Logger.Named("physics"),
		opts:  opts,
		reg:   newRegistry(),
		diff:  newDiffEngine(opts.Epsilon),
		poses: make(map[ecs.Entity]physics.Pose),
	}
	ps.filters = newFilterCompiler(ps.log)
	ps.attach(physics.Share(engine))
	return ps
}

func (ps *PhysicsSystem) attach(engine *physics.SharedEngine) {
	ps.engine = engine
	if engine != nil {
		engine.SetEventHandler(ps.onEngineEvent)
	}
}

// Engine returns the engine the system currently drives.
func (ps *PhysicsSystem) Engine() physics.Engine {
	if ps == nil || ps.engine == nil {
		return nil
	}
	return ps.engine.Engine
}

// Stats returns the counters of the last Update.
func (ps *PhysicsSystem) Stats() TickStats {
	return ps.stats
}

// Bind registers the before-clear hook on w. Update binds lazily, so calling
// Bind is only needed when the world may be cleared before the first tick.
func (ps *PhysicsSystem) Bind(w *ecs.World) {
	if ps == nil || w == nil || ps.bound == w {
		return
	}
	ps.bound = w
	ps.epoch = w.Epoch()
	ps.reg.setEpoch(ps.epoch)
	w.OnBeforeClear(func(*ecs.World) {
		ps.Teardown()
	})
}

// Update runs one physics tick: filters, diff and lifecycle, game-to-physics
// sync, step, physics-to-game sync, then the controller movement pass.
func (ps *PhysicsSystem) Update(w *ecs.World, dt float64) {
	if ps == nil || w == nil || ps.engine == nil {
		return
	}
	if ps.opts.DebugThreadCheck {
		if !ps.inTick.CompareAndSwap(false, true) {
			panic("physics: Update re-entered while a tick is in progress")
		}
		defer ps.inTick.Store(false)
	}

	ps.Bind(w)
	if ps.epoch != w.Epoch() {
		ps.Teardown()
		ps.epoch = w.Epoch()
		ps.reg.setEpoch(ps.epoch)
	}
	ps.stats = TickStats{}

	scene, sceneEnt := ps.scene(w)
	ps.syncGravity(scene)
	ps.filters.compile(ps, w, ps.layerMatrix(scene))

	ps.syncActors(w)
	ps.syncJoints(w)
	ps.syncControllers(w)
	ps.syncGroundPlane(w, scene, sceneEnt)

	ps.pushTransforms(w)
	ps.engine.Step(dt)
	ps.dispatchEvents(w)
	ps.pullTransforms(w)

	ps.moveControllers(w, dt)
}

// SwapEngine replaces the engine. Every object on the previous engine is
// released while a reference to it is held; the previous engine is flushed
// once that reference and the system's own are dropped. The next Update
// recreates everything on next.
func (ps *PhysicsSystem) SwapEngine(next physics.Engine) {
	if ps == nil {
		return
	}
	prev := ps.engine
	token := prev.Acquire()
	ps.releaseAll(token)
	ps.attach(physics.Share(next))
	prev.Release()
	token.Release()
}

// Teardown releases every engine object the system created and forgets all
// cached state. The engine itself is kept.
func (ps *PhysicsSystem) Teardown() {
	if ps == nil {
		return
	}
	ps.releaseAll(ps.engine)
}

// Close tears down and drops the system's reference to the engine.
func (ps *PhysicsSystem) Close() {
	if ps == nil || ps.engine == nil {
		return
	}
	ps.Teardown()
	ps.engine.Release()
	ps.engine = nil
}

func (ps *PhysicsSystem) releaseAll(engine *physics.SharedEngine) {
	if engine != nil {
		ps.reg.teardown(engine, &ps.stats)
		ps.ground.release(engine)
	}
	ps.reg.reset()
	ps.reg.setEpoch(ps.epoch)
	ps.diff.reset()
	ps.filters.reset()
	ps.ground = groundState{}
	ps.gravity = nil
	ps.poses = make(map[ecs.Entity]physics.Pose)
	ps.pending = nil
}

func (ps *PhysicsSystem) tag(e ecs.Entity) physics.Tag {
	return physics.NewTag(ps.epoch, uint64(e))
}

func entityField(e ecs.Entity) zap.Field {
	return zap.Uint64("entity", uint64(e))
}
