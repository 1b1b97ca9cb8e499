package physics

// Handle is a generation-checked reference into an Arena. The zero Handle is
// never valid. The epoch pins the handle to the scene that minted it.
type Handle struct {
	index uint32
	gen   uint32
	epoch uint64
}

func (h Handle) IsZero() bool {
	return h.gen == 0
}

// Epoch returns the scene epoch the handle was minted in.
func (h Handle) Epoch() uint64 {
	return h.epoch
}

type arenaSlot[T any] struct {
	gen   uint32
	used  bool
	value T
}

// Arena stores values behind generation-checked handles. Removing a value bumps
// the slot generation so every outstanding handle to it stops resolving.
type Arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	epoch uint64
	count int
}

// SetEpoch changes the epoch stamped on new handles and required by Get.
func (a *Arena[T]) SetEpoch(epoch uint64) {
	a.epoch = epoch
}

func (a *Arena[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, arenaSlot[T]{})
		idx = uint32(len(a.slots) - 1)
	}
	slot := &a.slots[idx]
	slot.gen++
	slot.used = true
	slot.value = v
	a.count++
	return Handle{index: idx, gen: slot.gen, epoch: a.epoch}
}

func (a *Arena[T]) slot(h Handle) *arenaSlot[T] {
	if h.IsZero() || h.epoch != a.epoch || int(h.index) >= len(a.slots) {
		return nil
	}
	slot := &a.slots[h.index]
	if !slot.used || slot.gen != h.gen {
		return nil
	}
	return slot
}

func (a *Arena[T]) Get(h Handle) (T, bool) {
	if slot := a.slot(h); slot != nil {
		return slot.value, true
	}
	var zero T
	return zero, false
}

func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	slot := a.slot(h)
	if slot == nil {
		return zero, false
	}
	v := slot.value
	slot.value = zero
	slot.used = false
	a.free = append(a.free, h.index)
	a.count--
	return v, true
}

// Clear removes every value. Slot generations are kept, so handles minted
// before the clear never resolve again, even at the same epoch.
func (a *Arena[T]) Clear() {
	var zero T
	a.free = a.free[:0]
	for i := len(a.slots) - 1; i >= 0; i-- {
		a.slots[i].value = zero
		a.slots[i].used = false
		a.free = append(a.free, uint32(i))
	}
	a.count = 0
}

func (a *Arena[T]) Len() int {
	return a.count
}

// Each visits live values in slot order.
func (a *Arena[T]) Each(fn func(Handle, T)) {
	for i := range a.slots {
		slot := &a.slots[i]
		if slot.used {
			fn(Handle{index: uint32(i), gen: slot.gen, epoch: a.epoch}, slot.value)
		}
	}
}
