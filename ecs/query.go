package ecs

import "github.com/milk9111/physbridge/ecs/component"

// ForEach visits every live entity carrying kind. The callback may add or
// remove components on the visited entity but must not destroy other entities.
func ForEach[T any](w *World, kind component.ComponentKind[T], fn func(Entity, *T)) {
	set := storeFor(w, kind, false)
	if set == nil || fn == nil {
		return
	}
	ents := append([]Entity(nil), set.denseEntities...)
	for _, e := range ents {
		if !w.entities.isAlive(e) {
			continue
		}
		if v := set.Get(e); v != nil {
			fn(e, v)
		}
	}
}

func ForEach2[A, B any](w *World, ka component.ComponentKind[A], kb component.ComponentKind[B], fn func(Entity, *A, *B)) {
	sb := storeFor(w, kb, false)
	if sb == nil {
		return
	}
	ForEach(w, ka, func(e Entity, a *A) {
		if b := sb.Get(e); b != nil {
			fn(e, a, b)
		}
	})
}

func ForEach3[A, B, C any](w *World, ka component.ComponentKind[A], kb component.ComponentKind[B], kc component.ComponentKind[C], fn func(Entity, *A, *B, *C)) {
	sc := storeFor(w, kc, false)
	if sc == nil {
		return
	}
	ForEach2(w, ka, kb, func(e Entity, a *A, b *B) {
		if c := sc.Get(e); c != nil {
			fn(e, a, b, c)
		}
	})
}

func ForEach4[A, B, C, D any](w *World, ka component.ComponentKind[A], kb component.ComponentKind[B], kc component.ComponentKind[C], kd component.ComponentKind[D], fn func(Entity, *A, *B, *C, *D)) {
	sd := storeFor(w, kd, false)
	if sd == nil {
		return
	}
	ForEach3(w, ka, kb, kc, func(e Entity, a *A, b *B, c *C) {
		if d := sd.Get(e); d != nil {
			fn(e, a, b, c, d)
		}
	})
}

// FindByName does a linear scan for the first live entity whose Name matches.
func FindByName(w *World, name string) (Entity, bool) {
	if w == nil || name == "" {
		return 0, false
	}
	set := storeFor(w, component.NameComponent.Kind(), false)
	if set == nil {
		return 0, false
	}
	for i, e := range set.denseEntities {
		if set.denseValues[i].Value == name && w.entities.isAlive(e) {
			return e, true
		}
	}
	return 0, false
}
