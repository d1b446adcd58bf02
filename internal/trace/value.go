// Package trace provides observable values and the writers that persist
// their changes.
package trace

import "sync"

// Sink receives the previous and the new value on every write.
type Sink func(previous, current float64)

// Value is a float64 whose writes are reported to the connected sinks.
// Sinks run on the writer's goroutine, after the value has been stored.
type Value struct {
	mu    sync.RWMutex
	v     float64
	sinks []Sink
}

func (t *Value) Get() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.v
}

// Set stores v and notifies every sink, even when v equals the old value.
func (t *Value) Set(v float64) {
	t.mu.Lock()
	prev := t.v
	t.v = v
	sinks := t.sinks
	t.mu.Unlock()

	for _, s := range sinks {
		s(prev, v)
	}
}

// Connect registers a sink for all future writes.
func (t *Value) Connect(s Sink) {
	if s == nil {
		return
	}
	t.mu.Lock()
	t.sinks = append(t.sinks[:len(t.sinks):len(t.sinks)], s)
	t.mu.Unlock()
}
