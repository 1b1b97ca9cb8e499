// physics_stress drives the physics bridge over a generated scene on the
// chipmunk backend and reports per-tick lifecycle counters.
//
// Profiling:
//
//	go build ./cmd/physics_stress
//	./physics_stress -config stress.toml -profile cpu
//	go tool pprof -http=":8000" ./physics_stress cpu.pprof
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/config"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"github.com/milk9111/physbridge/ecs/system"
	"github.com/milk9111/physbridge/layers"
	"github.com/milk9111/physbridge/physics"
	"github.com/milk9111/physbridge/physics/chipmunk"
	"github.com/pkg/profile"
	"go.uber.org/zap"
)

const wanderScript = `
update := func(engine, state) {
	t := engine.time()
	if is_undefined(state.dir) {
		state.dir = 1.0
		state.turned = 0.0
	}
	if t - state.turned > 2.0 {
		state.dir = -state.dir
		state.turned = t
	}
	engine.move(state.dir * 3.0, 0)
	if engine.grounded() && int(t) % 3 == 0 {
		engine.jump()
	}
}
`

// churnEvery is how many ticks pass between destroying and respawning a
// batch of bodies.
const churnEvery = 120

func main() {
	cfgPath := flag.String("config", "", "TOML config file (defaults when empty)")
	ticks := flag.Int("ticks", 0, "override stress.ticks")
	prof := flag.String("profile", "", "override stress.profile: cpu, mem or trace")
	flag.Parse()

	if err := run(*cfgPath, *ticks, *prof); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgPath string, ticks int, prof string) error {
	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if ticks > 0 {
		cfg.Stress.Ticks = ticks
	}
	if prof != "" {
		cfg.Stress.Profile = prof
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if p := startProfile(cfg.Stress); p != nil {
		defer p.Stop()
	}

	w := ecs.NewWorld()
	scene := component.NewPhysicsScene()
	scene.Gravity = mgl64.Vec3(cfg.Physics.Gravity)
	scene.GroundPlane = component.GroundPlane{
		Enabled:        cfg.GroundPlane.Enabled,
		Height:         cfg.GroundPlane.Height,
		Friction:       cfg.GroundPlane.Friction,
		Restitution:    cfg.GroundPlane.Restitution,
		CollisionLayer: component.CollisionLayer{Layer: cfg.GroundPlane.Layer},
	}

	var watcher *layers.Watcher
	if cfg.Layers.Path != "" {
		f, err := layers.Load(cfg.Layers.Path)
		if err != nil {
			return err
		}
		if err := f.Apply(scene.Layers); err != nil {
			return err
		}
		if cfg.Layers.Watch {
			if watcher, err = layers.Watch(cfg.Layers.Path, log); err != nil {
				return fmt.Errorf("watch layers: %w", err)
			}
			defer watcher.Close()
		}
	}

	engine := chipmunk.New(chipmunk.Options{
		Logger:            log,
		Iterations:        uint(cfg.Physics.SolverIterations),
		MaxConvexVertices: cfg.Physics.MaxConvexVertices,
	})
	physicsSys := system.NewPhysicsSystem(engine, system.PhysicsOptions{
		Logger:              log,
		Epsilon:             cfg.Physics.Epsilon,
		GroundProbeDistance: cfg.Controller.GroundProbeDistance,
		MinMoveDistance:     cfg.Controller.MinMoveDistance,
		DebugThreadCheck:    cfg.Physics.DebugThreadCheck,
	})
	defer physicsSys.Close()

	var contacts, breaks int
	physicsSys.OnContact(func(ev system.ContactEvent) {
		if ev.Kind == physics.EventJointBroken {
			breaks++
			return
		}
		contacts++
	})

	gen := &sceneGen{w: w, cfg: cfg, rng: rand.New(rand.NewSource(cfg.Stress.Seed))}
	if err := gen.populate(scene); err != nil {
		return err
	}

	sched := ecs.NewScheduler(system.NewControllerScriptSystem(log), physicsSys)
	dt := cfg.Physics.FixedTimestep
	start := time.Now()
	var totals system.TickStats
	for tick := 1; tick <= cfg.Stress.Ticks; tick++ {
		if watcher != nil {
			watcher.Poll(scene.Layers)
		}
		if tick%churnEvery == 0 {
			gen.churn()
		}
		sched.Update(w, dt)
		totals = addStats(totals, physicsSys.Stats())
		if tick%60 == 0 {
			log.Debug("tick", zap.Int("tick", tick), zap.Int("actors", physicsSys.ActorCount()),
				zap.Int("joints", physicsSys.JointCount()), zap.Int("controllers", physicsSys.ControllerCount()))
		}
	}
	elapsed := time.Since(start)

	log.Info("stress run finished",
		zap.Int("ticks", cfg.Stress.Ticks),
		zap.Duration("elapsed", elapsed),
		zap.Duration("per_tick", elapsed/time.Duration(max(cfg.Stress.Ticks, 1))),
		zap.Int("actors_created", totals.ActorsCreated),
		zap.Int("actors_rebuilt", totals.ActorsRebuilt),
		zap.Int("actors_destroyed", totals.ActorsDestroyed),
		zap.Int("in_place_updates", totals.InPlaceUpdates),
		zap.Int("filter_pushes", totals.FilterPushes),
		zap.Int("transforms_pulled", totals.TransformsPulled),
		zap.Int("filter_compiles", physicsSys.FilterCompiles()),
		zap.Int("contacts", contacts),
		zap.Int("joint_breaks", breaks),
	)
	return nil
}

func startProfile(cfg config.StressConfig) interface{ Stop() } {
	var mode func(*profile.Profile)
	switch cfg.Profile {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfileAllocs
	case "trace":
		mode = profile.TraceProfile
	default:
		return nil
	}
	return profile.Start(mode, profile.ProfilePath(cfg.ProfilePath), profile.NoShutdownHook, profile.Quiet)
}

func addStats(a, b system.TickStats) system.TickStats {
	a.ActorsCreated += b.ActorsCreated
	a.ActorsRebuilt += b.ActorsRebuilt
	a.ShapeRebuilds += b.ShapeRebuilds
	a.InPlaceUpdates += b.InPlaceUpdates
	a.ActorsDestroyed += b.ActorsDestroyed
	a.FilterPushes += b.FilterPushes
	a.JointsCreated += b.JointsCreated
	a.JointsDestroyed += b.JointsDestroyed
	a.TransformsPulled += b.TransformsPulled
	a.EventsDispatched += b.EventsDispatched
	return a
}
