package physics

import "sync/atomic"

// SharedEngine is a reference-counted ownership token for an Engine. The
// engine is flushed when the last reference is released, so a world that is
// being torn down stays valid while its actors are still being destroyed.
type SharedEngine struct {
	Engine
	refs    atomic.Int32
	flushed atomic.Bool
}

// Share wraps e with a single reference held by the caller.
func Share(e Engine) *SharedEngine {
	if e == nil {
		return nil
	}
	s := &SharedEngine{Engine: e}
	s.refs.Store(1)
	return s
}

// Acquire adds a reference and returns s for chaining.
func (s *SharedEngine) Acquire() *SharedEngine {
	if s == nil {
		return nil
	}
	s.refs.Add(1)
	return s
}

// Release drops a reference and flushes the engine when none remain.
func (s *SharedEngine) Release() {
	if s == nil {
		return
	}
	if s.refs.Add(-1) > 0 {
		return
	}
	if s.flushed.CompareAndSwap(false, true) {
		s.Engine.Flush()
	}
}

// Refs reports the outstanding reference count.
func (s *SharedEngine) Refs() int32 {
	if s == nil {
		return 0
	}
	return s.refs.Load()
}

func (s *SharedEngine) Flushed() bool {
	return s != nil && s.flushed.Load()
}
