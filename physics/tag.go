package physics

// Tag is the user-data value attached to every engine object. It pairs the
// owning entity with the scene epoch current when the object was created.
type Tag struct {
	Epoch  uint64
	Entity uint64
}

func NewTag(epoch, entity uint64) Tag {
	return Tag{Epoch: epoch, Entity: entity}
}

func (t Tag) IsZero() bool {
	return t.Epoch == 0 && t.Entity == 0
}

// Resolve returns the entity if the tag belongs to the current epoch.
func (t Tag) Resolve(currentEpoch uint64) (uint64, bool) {
	if t.Epoch == 0 || t.Epoch != currentEpoch || t.Entity == 0 {
		return 0, false
	}
	return t.Entity, true
}
