package component

import "github.com/milk9111/physbridge/physics"

// Terrain is a heightfield. It excludes every other collider and rigid body on
// the same entity.
type Terrain struct {
	Rows        int
	Cols        int
	Heights     []float64
	HeightScale float64
	RowScale    float64
	ColScale    float64

	Friction    float64
	Restitution float64
	CollisionLayer

	Handle physics.Handle
}

var TerrainComponent = NewComponent[Terrain]()
