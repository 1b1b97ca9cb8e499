package system

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/ecs"
	"github.com/milk9111/physbridge/ecs/component"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const walkScript = `
update := func(engine, state) {
	engine.move(2, -1)
	if engine.grounded() {
		engine.jump()
	}
}
`

func scriptedController(t *testing.T, w *ecs.World, sc *component.ControllerScript) (*component.CharacterController, *component.Transform) {
	t.Helper()
	e := ecs.CreateEntity(w)
	tr := add(t, w, e, component.TransformComponent.Kind(), component.NewTransform(mgl64.Vec3{}))
	cc := add(t, w, e, component.CharacterControllerComponent.Kind(), component.NewCharacterController())
	add(t, w, e, component.ControllerScriptComponent.Kind(), sc)
	return cc, tr
}

func TestControllerScriptDrivesInputs(t *testing.T) {
	w := ecs.NewWorld()
	s := NewControllerScriptSystem(nil)
	cc, _ := scriptedController(t, w, &component.ControllerScript{Source: walkScript})

	s.Update(w, tick)
	if cc.DesiredVelocity != (mgl64.Vec3{2, 0, -1}) {
		t.Fatalf("desired velocity = %v", cc.DesiredVelocity)
	}
	if cc.JumpRequested {
		t.Fatal("jump requested while airborne")
	}

	cc.Grounded = true
	s.Update(w, tick)
	if !cc.JumpRequested {
		t.Fatal("jump not requested on the ground")
	}
	if len(s.scripts) != 1 {
		t.Fatalf("runtimes = %d, want the compiled script reused", len(s.scripts))
	}
}

func TestControllerScriptLoadsPathAndTeleports(t *testing.T) {
	w := ecs.NewWorld()
	s := NewControllerScriptSystem(nil)
	var loads int
	s.load = func(path string) ([]byte, error) {
		loads++
		if path != "hop.tengo" {
			return nil, errors.New("unexpected path")
		}
		return []byte(`
update := func(engine, state) {
	if engine.time() > 0 {
		engine.teleport(1, 2, 3)
	}
}
`), nil
	}
	cc, tr := scriptedController(t, w, &component.ControllerScript{Path: "hop.tengo"})

	s.Update(w, tick)
	s.Update(w, tick)

	if loads != 1 {
		t.Fatalf("loads = %d, want 1", loads)
	}
	if tr.Position != (mgl64.Vec3{1, 2, 3}) || !cc.Teleport {
		t.Fatalf("position = %v teleport = %v", tr.Position, cc.Teleport)
	}
}

func TestControllerScriptErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	w := ecs.NewWorld()
	s := NewControllerScriptSystem(zap.New(core))
	s.load = func(string) ([]byte, error) { return nil, errors.New("missing") }

	scriptedController(t, w, &component.ControllerScript{Path: "gone.tengo"})
	scriptedController(t, w, &component.ControllerScript{Source: "update := func(engine, state) {"})
	s.Update(w, tick)

	if n := logs.FilterMessage("controller script load failed").Len(); n != 2 {
		t.Fatalf("load failures = %d, want 2", n)
	}
	if len(s.scripts) != 0 {
		t.Fatalf("runtimes = %d, want none", len(s.scripts))
	}
}

func TestControllerScriptDroppedWithComponent(t *testing.T) {
	w := ecs.NewWorld()
	s := NewControllerScriptSystem(nil)
	scriptedController(t, w, &component.ControllerScript{Source: walkScript})
	s.Update(w, tick)

	for _, e := range ecs.Entities(w) {
		ecs.Remove(w, e, component.ControllerScriptComponent.Kind())
	}
	s.Update(w, tick)
	if len(s.scripts) != 0 {
		t.Fatalf("runtimes = %d after removal", len(s.scripts))
	}
}
