package ecs

// store is the type-erased view of a SparseSet the world uses for bulk removal.
type store interface {
	remove(e Entity) bool
	has(e Entity) bool
	size() int
	clear()
}

// SparseSet is a cache-friendly storage for components keyed by entity slot.
type SparseSet[T any] struct {
	denseEntities []Entity
	denseValues   []*T
	sparse        []int32
}

func newSparseSet[T any]() *SparseSet[T] {
	return &SparseSet[T]{}
}

func (s *SparseSet[T]) index(e Entity) (int, bool) {
	id := int(e.id())
	if s == nil || id <= 0 || id-1 >= len(s.sparse) {
		return 0, false
	}
	idx := int(s.sparse[id-1])
	if idx < 0 || idx >= len(s.denseEntities) || s.denseEntities[idx] != e {
		return 0, false
	}
	return idx, true
}

func (s *SparseSet[T]) has(e Entity) bool {
	_, ok := s.index(e)
	return ok
}

// Get returns the component for e, or nil.
func (s *SparseSet[T]) Get(e Entity) *T {
	idx, ok := s.index(e)
	if !ok {
		return nil
	}
	return s.denseValues[idx]
}

// Set inserts or replaces the component for e.
func (s *SparseSet[T]) Set(e Entity, v *T) {
	id := int(e.id())
	if s == nil || id <= 0 {
		return
	}
	for id-1 >= len(s.sparse) {
		s.sparse = append(s.sparse, -1)
	}
	if idx := s.sparse[id-1]; idx >= 0 && int(idx) < len(s.denseEntities) && s.denseEntities[idx].id() == e.id() {
		// Same slot, possibly a recycled generation: overwrite in place.
		s.denseEntities[idx] = e
		s.denseValues[idx] = v
		return
	}
	s.denseEntities = append(s.denseEntities, e)
	s.denseValues = append(s.denseValues, v)
	s.sparse[id-1] = int32(len(s.denseEntities) - 1)
}

func (s *SparseSet[T]) remove(e Entity) bool {
	idx, ok := s.index(e)
	if !ok {
		return false
	}
	last := len(s.denseEntities) - 1
	moved := s.denseEntities[last]

	s.denseEntities[idx] = moved
	s.denseValues[idx] = s.denseValues[last]
	s.sparse[moved.id()-1] = int32(idx)

	s.denseEntities[last] = 0
	s.denseValues[last] = nil
	s.denseEntities = s.denseEntities[:last]
	s.denseValues = s.denseValues[:last]
	s.sparse[e.id()-1] = -1
	return true
}

func (s *SparseSet[T]) size() int {
	if s == nil {
		return 0
	}
	return len(s.denseEntities)
}

func (s *SparseSet[T]) clear() {
	s.denseEntities = s.denseEntities[:0]
	s.denseValues = s.denseValues[:0]
	s.sparse = s.sparse[:0]
}

// Entities returns the dense entity list. Callers must not mutate it.
func (s *SparseSet[T]) Entities() []Entity {
	if s == nil {
		return nil
	}
	return s.denseEntities
}
