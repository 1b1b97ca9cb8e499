package component

// CollisionLayer is embedded by every shape-bearing physics component.
type CollisionLayer struct {
	// Layer is a single-bit category. Zero or multi-bit values are corrected
	// by the physics system with a logged warning.
	Layer uint32 `yaml:"layer,omitempty"`
	// Ignore removes layers from the compiled collide and query masks.
	Ignore uint32 `yaml:"ignore,omitempty"`
}

// DefaultLayer is the bit for layer 0.
const DefaultLayer uint32 = 1
