package ecs

import "github.com/milk9111/physbridge/ecs/component"

// World owns entities, component storage, and the scene epoch.
type World struct {
	entities entityStore
	stores   map[component.ComponentID]store
	events   EventQueue

	epoch       uint64
	beforeClear []func(w *World)
	dirty       map[Entity]struct{}
}

// NewWorld creates an empty ECS world.
func NewWorld() *World {
	return &World{
		stores: make(map[component.ComponentID]store),
		dirty:  make(map[Entity]struct{}),
		epoch:  1,
	}
}

// Epoch returns the scene epoch. It increases every time the world is cleared,
// so anything tagged with an older epoch belongs to a scene that no longer exists.
func (w *World) Epoch() uint64 {
	if w == nil {
		return 0
	}
	return w.epoch
}

// OnBeforeClear registers a hook that runs before Clear wipes component storage.
func (w *World) OnBeforeClear(fn func(w *World)) {
	if w == nil || fn == nil {
		return
	}
	w.beforeClear = append(w.beforeClear, fn)
}

// Clear destroys every entity and component and bumps the epoch.
func (w *World) Clear() {
	if w == nil {
		return
	}
	for _, fn := range w.beforeClear {
		fn(w)
	}
	for _, s := range w.stores {
		s.clear()
	}
	w.entities.reset()
	w.events.flush()
	clear(w.dirty)
	w.epoch++
}

// MarkTransformDirty records that e's transform was written outside authoring code.
func (w *World) MarkTransformDirty(e Entity) {
	if w == nil || !w.entities.isAlive(e) {
		return
	}
	w.dirty[e] = struct{}{}
}

// TransformDirty reports whether e was marked since the last drain.
func (w *World) TransformDirty(e Entity) bool {
	if w == nil {
		return false
	}
	_, ok := w.dirty[e]
	return ok
}

// DrainDirtyTransforms returns and clears the set of dirty transforms.
func (w *World) DrainDirtyTransforms() []Entity {
	if w == nil || len(w.dirty) == 0 {
		return nil
	}
	out := make([]Entity, 0, len(w.dirty))
	for e := range w.dirty {
		if w.entities.isAlive(e) {
			out = append(out, e)
		}
	}
	clear(w.dirty)
	return out
}

// Events returns the world event queue.
func (w *World) Events() *EventQueue {
	if w == nil {
		return nil
	}
	return &w.events
}

func (w *World) destroy(e Entity) bool {
	if !w.entities.isAlive(e) {
		return false
	}
	for _, s := range w.stores {
		s.remove(e)
	}
	delete(w.dirty, e)
	return w.entities.destroy(e)
}
