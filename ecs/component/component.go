// Package component holds the authoring data the physics bridge reads and
// writes back. Components are plain structs; the ecs package stores them by
// kind.
package component

import (
	"errors"
	"strconv"
	"sync/atomic"
)

var (
	ErrEntityNotAlive       = errors.New("ecs: entity not alive")
	ErrNilComponent         = errors.New("ecs: component is nil")
	ErrInvalidComponentKind = errors.New("ecs: invalid component kind")
)

// ComponentID is unique per registered kind for the life of the process.
type ComponentID uint32

func (id ComponentID) String() string {
	return "component#" + strconv.FormatUint(uint64(id), 10)
}

var lastComponentID atomic.Uint32

// ComponentKind types a storage slot in the world. The zero kind is invalid.
type ComponentKind[T any] struct {
	id ComponentID
}

// NewComponentKind registers a fresh kind. Two kinds over the same T are
// stored separately.
func NewComponentKind[T any]() ComponentKind[T] {
	return ComponentKind[T]{id: ComponentID(lastComponentID.Add(1))}
}

func (k ComponentKind[T]) ID() ComponentID { return k.id }

func (k ComponentKind[T]) Valid() bool { return k.id != 0 }

// ComponentHandle is the package-level declaration form, e.g.
// `var ColliderComponent = NewComponent[Collider]()`.
type ComponentHandle[T any] struct {
	kind ComponentKind[T]
}

func NewComponent[T any]() ComponentHandle[T] {
	return ComponentHandle[T]{kind: NewComponentKind[T]()}
}

func (h ComponentHandle[T]) Kind() ComponentKind[T] { return h.kind }
