package component

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/milk9111/physbridge/physics"
)

type MeshColliderType uint8

const (
	MeshTriangle MeshColliderType = iota
	MeshConvex
)

type MeshCollider struct {
	Type     MeshColliderType
	MeshPath string
	Scale    mgl64.Vec3
	// VertexLimit caps convex hull vertices. Zero means the engine limit.
	VertexLimit int
	IsTrigger   bool

	Friction    float64
	Restitution float64
	CollisionLayer

	Handle physics.Handle
}

var MeshColliderComponent = NewComponent[MeshCollider]()
