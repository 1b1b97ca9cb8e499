package system

import (
	"fmt"
	"os"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"go.uber.org/zap"
)

const controllerDispatchScript = `
update(__engine, __state)
`

type controllerScriptRuntime struct {
	key      string
	compiled *tengo.Compiled
	state    *tengo.Map
}

// ControllerScriptSystem runs each entity's controller script once per tick,
// before the physics system consumes the controller inputs it sets.
type ControllerScriptSystem struct {
	log     *zap.Logger
	load    func(path string) ([]byte, error)
	scripts map[ecs.Entity]*controllerScriptRuntime
	elapsed float64
}

func NewControllerScriptSystem(log *zap.Logger) *ControllerScriptSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &ControllerScriptSystem{
		log:     log.Named("controller_script"),
		load:    os.ReadFile,
		scripts: make(map[ecs.Entity]*controllerScriptRuntime),
	}
}

func (s *ControllerScriptSystem) Update(w *ecs.World, dt float64) {
	if s == nil || w == nil {
		return
	}
	s.elapsed += dt

	live := make(map[ecs.Entity]struct{})
	ecs.ForEach2(w, component.ControllerScriptComponent.Kind(), component.CharacterControllerComponent.Kind(),
		func(e ecs.Entity, sc *component.ControllerScript, cc *component.CharacterController) {
			live[e] = struct{}{}
			rt, err := s.runtime(e, sc)
			if err != nil {
				s.log.Warn("controller script load failed", entityField(e), zap.String("path", sc.Path), zap.Error(err))
				return
			}
			t, _ := ecs.Get(w, e, component.TransformComponent.Kind())
			if err := rt.run(buildControllerEngine(cc, t, s.elapsed, dt)); err != nil {
				s.log.Warn("controller script error", entityField(e), zap.Error(err))
			}
		})
	for e := range s.scripts {
		if _, ok := live[e]; !ok {
			delete(s.scripts, e)
		}
	}
}

func (s *ControllerScriptSystem) runtime(e ecs.Entity, sc *component.ControllerScript) (*controllerScriptRuntime, error) {
	key := sc.Path + "\x00" + sc.Source
	if rt, ok := s.scripts[e]; ok && rt.key == key {
		return rt, nil
	}

	src := []byte(sc.Source)
	if strings.TrimSpace(sc.Source) == "" {
		if strings.TrimSpace(sc.Path) == "" {
			return nil, fmt.Errorf("controller script has neither path nor source")
		}
		b, err := s.load(sc.Path)
		if err != nil {
			return nil, err
		}
		src = b
	}

	script := tengo.NewScript(append(append([]byte{}, src...), []byte("\n"+controllerDispatchScript)...))
	_ = script.Add("__engine", map[string]any{})
	_ = script.Add("__state", map[string]any{})
	script.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))

	compiled, err := script.Compile()
	if err != nil {
		return nil, err
	}
	rt := &controllerScriptRuntime{
		key:      key,
		compiled: compiled,
		state:    &tengo.Map{Value: map[string]tengo.Object{}},
	}
	s.scripts[e] = rt
	return rt, nil
}

func (rt *controllerScriptRuntime) run(engine *tengo.ImmutableMap) error {
	if err := rt.compiled.Set("__engine", engine); err != nil {
		return err
	}
	if err := rt.compiled.Set("__state", rt.state); err != nil {
		return err
	}
	return rt.compiled.Run()
}

func floatArg(args []tengo.Object, i int) float64 {
	if i >= len(args) {
		return 0
	}
	v, _ := tengo.ToFloat64(args[i])
	return v
}

func vecObject(v mgl64.Vec3) tengo.Object {
	return &tengo.Array{Value: []tengo.Object{
		&tengo.Float{Value: v[0]},
		&tengo.Float{Value: v[1]},
		&tengo.Float{Value: v[2]},
	}}
}

func boolObject(b bool) tengo.Object {
	if b {
		return tengo.TrueValue
	}
	return tengo.FalseValue
}

func buildControllerEngine(cc *component.CharacterController, t *component.Transform, elapsed, dt float64) *tengo.ImmutableMap {
	values := map[string]tengo.Object{}

	values["move"] = &tengo.UserFunction{Name: "move", Value: func(args ...tengo.Object) (tengo.Object, error) {
		cc.DesiredVelocity = mgl64.Vec3{floatArg(args, 0), 0, floatArg(args, 1)}
		return tengo.TrueValue, nil
	}}

	values["jump"] = &tengo.UserFunction{Name: "jump", Value: func(args ...tengo.Object) (tengo.Object, error) {
		cc.JumpRequested = true
		return tengo.TrueValue, nil
	}}

	values["teleport"] = &tengo.UserFunction{Name: "teleport", Value: func(args ...tengo.Object) (tengo.Object, error) {
		if t == nil || len(args) < 3 {
			return tengo.FalseValue, nil
		}
		t.Position = mgl64.Vec3{floatArg(args, 0), floatArg(args, 1), floatArg(args, 2)}
		cc.Teleport = true
		return tengo.TrueValue, nil
	}}

	values["grounded"] = &tengo.UserFunction{Name: "grounded", Value: func(args ...tengo.Object) (tengo.Object, error) {
		return boolObject(cc.Grounded), nil
	}}

	values["vertical_velocity"] = &tengo.UserFunction{Name: "vertical_velocity", Value: func(args ...tengo.Object) (tengo.Object, error) {
		return &tengo.Float{Value: cc.VerticalVelocity}, nil
	}}

	values["position"] = &tengo.UserFunction{Name: "position", Value: func(args ...tengo.Object) (tengo.Object, error) {
		if t == nil {
			return vecObject(mgl64.Vec3{}), nil
		}
		return vecObject(t.Position), nil
	}}

	values["time"] = &tengo.UserFunction{Name: "time", Value: func(args ...tengo.Object) (tengo.Object, error) {
		return &tengo.Float{Value: elapsed}, nil
	}}

	values["dt"] = &tengo.UserFunction{Name: "dt", Value: func(args ...tengo.Object) (tengo.Object, error) {
		return &tengo.Float{Value: dt}, nil
	}}

	return &tengo.ImmutableMap{Value: values}
}
