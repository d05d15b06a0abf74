// Package transform converts events between client payload formats.
package transform

import (
	"sync"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// Func converts an event from one format to another. It must not modify its
// argument.
type Func func(evt *model.Event) *model.Event

// Registry holds transformers keyed by "{from}:{to}".
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

func key(from, to string) string { return from + ":" + to }

// Register adds or replaces the transformer from one format to another.
func (r *Registry) Register(from, to string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[key(from, to)] = fn
}

// Apply returns evt converted to toFormat. The event is returned unchanged
// when toFormat is empty, already matches, or has no registered transformer.
// A nil registry applies no transformations.
func (r *Registry) Apply(evt *model.Event, toFormat string) *model.Event {
	if r == nil || toFormat == "" || toFormat == evt.Format {
		return evt
	}
	r.mu.RLock()
	fn, ok := r.funcs[key(evt.Format, toFormat)]
	r.mu.RUnlock()
	if !ok {
		return evt
	}
	out := fn(evt)
	if out == nil {
		return evt
	}
	return out
}

// Has reports whether a transformer from one format to another is registered.
func (r *Registry) Has(from, to string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[key(from, to)]
	return ok
}
