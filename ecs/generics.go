package ecs

import "github.com/milk9111/physbridge/ecs/component"

func storeFor[T any](w *World, kind component.ComponentKind[T], create bool) *SparseSet[T] {
	if w == nil || !kind.Valid() {
		return nil
	}
	if s, ok := w.stores[kind.ID()]; ok {
		set, _ := s.(*SparseSet[T])
		return set
	}
	if !create {
		return nil
	}
	set := newSparseSet[T]()
	w.stores[kind.ID()] = set
	return set
}

// CreateEntity allocates a new entity.
func CreateEntity(w *World) Entity {
	return w.entities.create()
}

// DestroyEntity removes every component of e and frees its slot.
func DestroyEntity(w *World, e Entity) bool {
	if w == nil {
		return false
	}
	return w.destroy(e)
}

// IsAlive reports whether an entity handle is valid.
func IsAlive(w *World, e Entity) bool {
	if w == nil {
		return false
	}
	return w.entities.isAlive(e)
}

// Entities returns every live entity.
func Entities(w *World) []Entity {
	if w == nil {
		return nil
	}
	out := make([]Entity, 0, w.entities.count)
	w.entities.each(func(e Entity) { out = append(out, e) })
	return out
}

func Add[T any](w *World, e Entity, kind component.ComponentKind[T], value *T) error {
	if w == nil || !w.entities.isAlive(e) {
		return component.ErrEntityNotAlive
	}
	if !kind.Valid() {
		return component.ErrInvalidComponentKind
	}
	if value == nil {
		return component.ErrNilComponent
	}
	storeFor(w, kind, true).Set(e, value)
	return nil
}

func Remove[T any](w *World, e Entity, kind component.ComponentKind[T]) bool {
	set := storeFor(w, kind, false)
	if set == nil {
		return false
	}
	return set.remove(e)
}

func Has[T any](w *World, e Entity, kind component.ComponentKind[T]) bool {
	set := storeFor(w, kind, false)
	return set != nil && set.has(e) && w.entities.isAlive(e)
}

func Get[T any](w *World, e Entity, kind component.ComponentKind[T]) (*T, bool) {
	set := storeFor(w, kind, false)
	if set == nil || !w.entities.isAlive(e) {
		return nil, false
	}
	v := set.Get(e)
	return v, v != nil
}

// Count returns how many entities carry kind.
func Count[T any](w *World, kind component.ComponentKind[T]) int {
	return storeFor(w, kind, false).size()
}

// First returns the first entity carrying kind.
func First[T any](w *World, kind component.ComponentKind[T]) (Entity, bool) {
	set := storeFor(w, kind, false)
	if set == nil {
		return 0, false
	}
	for _, e := range set.denseEntities {
		if w.entities.isAlive(e) {
			return e, true
		}
	}
	return 0, false
}
