package ecs

import "strconv"

// Entity packs a 32-bit slot id in the low bits and a 32-bit generation in the
// high bits. A destroyed slot bumps its generation so old handles stop matching.
type Entity uint64

type entityID uint32
type generation uint32

const entityIDBits = 32

func makeEntity(id entityID, gen generation) Entity {
	return Entity(uint64(gen)<<entityIDBits | uint64(id))
}

func (e Entity) id() entityID {
	return entityID(uint32(e))
}

func (e Entity) generation() generation {
	return generation(uint32(uint64(e) >> entityIDBits))
}

// String formats e as slot#generation.
func (e Entity) String() string {
	return strconv.FormatUint(uint64(e.id()), 10) + "#" + strconv.FormatUint(uint64(e.generation()), 10)
}

// Valid reports whether e could refer to an entity. It does not check liveness.
func (e Entity) Valid() bool {
	return e.id() > 0
}
